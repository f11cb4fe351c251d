package recurrence

import (
	"errors"
	"fmt"
	"time"

	"organizer/internal/models"
)

// DefaultMaxDays bounds how many days a single recurring task may be walked
// when the expander has no explicit limit.
const DefaultMaxDays = 36600

var ErrRangeTooLarge = errors.New("recurrence range too large")

// Occurrence is one calendar-day manifestation of a task. Index is the
// position of the task in the slice passed to Expand, so edits and deletes
// can target the original record.
type Occurrence struct {
	Task  models.Task `json:"task"`
	Index int         `json:"index"`
	Date  DateKey     `json:"date"`
}

// Days groups occurrences by day key. Within a day, occurrences keep the
// order of the input tasks.
type Days map[DateKey][]Occurrence

// Count returns the number of occurrences across all days.
func (d Days) Count() int {
	n := 0
	for _, occ := range d {
		n += len(occ)
	}
	return n
}

// Expander maps task templates onto calendar days. The zero value is ready
// to use and is safe for concurrent use.
type Expander struct {
	// MaxDays caps the days walked for one task; zero means DefaultMaxDays.
	MaxDays int
}

// Expand uses a zero-value Expander.
func Expand(tasks []models.Task, window DateRange) (Days, error) {
	return Expander{}.Expand(tasks, window)
}

// Limit is the effective per-task day cap.
func (e Expander) Limit() int {
	if e.MaxDays <= 0 {
		return DefaultMaxDays
	}
	return e.MaxDays
}

// SpanDays counts the days from a to b inclusive.
func SpanDays(a, b time.Time) int {
	return daysBetween(a, b) + 1
}

// Expand places every task onto the days of window it falls on.
//
// A task repeating without an end date shows only on its anchor date. Tasks
// whose anchor date cannot be parsed are not placed on any day.
func (e Expander) Expand(tasks []models.Task, window DateRange) (Days, error) {
	maxDays := e.Limit()
	window = window.normalize()

	days := make(Days)
	add := func(index int, task models.Task, day time.Time) {
		key := Key(day)
		days[key] = append(days[key], Occurrence{Task: task, Index: index, Date: key})
	}

	for i, task := range tasks {
		anchor, err := ParseDate(task.Date)
		if err != nil {
			continue
		}

		if !task.Frequency.Recurring() || task.EndDate == "" {
			if window.Contains(anchor) {
				add(i, task, anchor)
			}
			continue
		}

		end, err := ParseDate(task.EndDate)
		if err != nil {
			if window.Contains(anchor) {
				add(i, task, anchor)
			}
			continue
		}

		from, to := anchor, end
		if !window.From.IsZero() && window.From.After(from) {
			from = window.From
		}
		if !window.To.IsZero() && window.To.Before(to) {
			to = window.To
		}
		if from.After(to) {
			continue
		}
		if span := daysBetween(from, to) + 1; span > maxDays {
			return nil, fmt.Errorf("task %s covers %d days, limit %d: %w", task.ID, span, maxDays, ErrRangeTooLarge)
		}

		matches := ruleFor(task.Frequency, anchor)
		for day := from; !day.After(to); day = AddDays(day, 1) {
			if matches(day) {
				add(i, task, day)
			}
		}
	}
	return days, nil
}

// ruleFor returns the inclusion test of a recurrence rule anchored on anchor.
func ruleFor(freq models.Frequency, anchor time.Time) func(time.Time) bool {
	switch freq {
	case models.FrequencyDaily:
		return func(time.Time) bool { return true }
	case models.FrequencyWeekly:
		weekday := anchor.Weekday()
		return func(day time.Time) bool { return day.Weekday() == weekday }
	case models.FrequencyMonthly:
		anchorDay := anchor.Day()
		anchorMonthEnd := anchorDay == DaysIn(anchor.Year(), anchor.Month())
		return func(day time.Time) bool {
			if day.Day() == anchorDay {
				return true
			}
			last := DaysIn(day.Year(), day.Month())
			if day.Day() != last {
				return false
			}
			// Short months clamp to their last day, and month-end anchors
			// follow the month end everywhere.
			return anchorDay > last || anchorMonthEnd
		}
	case models.FrequencyYearly:
		// Feb 29 anchors never match in non-leap years.
		month, dayOfMonth := anchor.Month(), anchor.Day()
		return func(day time.Time) bool { return day.Month() == month && day.Day() == dayOfMonth }
	default:
		return func(time.Time) bool { return false }
	}
}
