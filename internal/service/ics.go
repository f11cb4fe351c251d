package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"organizer/internal/models"
	"organizer/internal/recurrence"
)

const (
	icsDateLayout     = "20060102"
	icsDateTimeLayout = "20060102T150405"
)

// TaskICS exports one task as an iCalendar document.
func (s *Tasks) TaskICS(ctx context.Context, ownerID, id string, now time.Time) (string, error) {
	task, err := s.store.GetTask(ctx, id, ownerID)
	if err != nil {
		return "", err
	}
	return BuildTaskICS(task, now)
}

// BuildTaskICS renders a task as a single VEVENT. Recurring tasks with an end
// date carry an RRULE; without one they export once, as they show on the
// calendar.
func BuildTaskICS(t models.Task, now time.Time) (string, error) {
	start, err := recurrence.ParseDateTime(t.Date)
	if err != nil {
		return "", fmt.Errorf("task date: %w: %w", models.ErrValidation, err)
	}

	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Organizer//Task Export//EN",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
		"BEGIN:VEVENT",
		"UID:" + escapeICSText("task-"+t.ID+"@organizer"),
		"DTSTAMP:" + now.UTC().Format("20060102T150405Z"),
		"SUMMARY:" + escapeICSText(t.Text),
	}

	tzid := recurrence.Location.String()
	if recurrence.HasTimeOfDay(t.Date) {
		lines = append(lines,
			"DTSTART;TZID="+tzid+":"+start.Format(icsDateTimeLayout),
			"DURATION:PT1H",
		)
	} else {
		day := recurrence.Midnight(start)
		lines = append(lines,
			"DTSTART;VALUE=DATE:"+day.Format(icsDateLayout),
			"DTEND;VALUE=DATE:"+recurrence.AddDays(day, 1).Format(icsDateLayout),
		)
	}
	if rrule := taskRRULE(t, start); rrule != "" {
		lines = append(lines, "RRULE:"+rrule)
	}
	lines = append(lines, "END:VEVENT", "END:VCALENDAR")

	var b strings.Builder
	for _, line := range lines {
		b.WriteString(foldICSLine(line))
		b.WriteString("\r\n")
	}
	return b.String(), nil
}

// icsLineOctets is the longest content line allowed before folding.
const icsLineOctets = 75

// foldICSLine splits a content line into chunks of at most 75 octets joined
// by CRLF and a space. Multi-byte characters are never split.
func foldICSLine(line string) string {
	if len(line) <= icsLineOctets {
		return line
	}
	var b strings.Builder
	limit := icsLineOctets
	n := 0
	for len(line) > 0 {
		_, size := utf8.DecodeRuneInString(line)
		if n+size > limit {
			b.WriteString("\r\n ")
			// The leading space counts toward the next line.
			limit, n = icsLineOctets-1, 0
		}
		b.WriteString(line[:size])
		line = line[size:]
		n += size
	}
	return b.String()
}

// taskRRULE mirrors the calendar's rules, including month-end clamping.
func taskRRULE(t models.Task, start time.Time) string {
	if !t.Frequency.Recurring() || t.EndDate == "" {
		return ""
	}
	end, err := recurrence.ParseDate(t.EndDate)
	if err != nil {
		return ""
	}

	var rule string
	switch t.Frequency {
	case models.FrequencyDaily:
		rule = "FREQ=DAILY"
	case models.FrequencyWeekly:
		rule = "FREQ=WEEKLY"
	case models.FrequencyMonthly:
		rule = "FREQ=MONTHLY" + monthlyByDay(start)
	case models.FrequencyYearly:
		rule = "FREQ=YEARLY"
	default:
		return ""
	}

	until := end.Format(icsDateLayout)
	if recurrence.HasTimeOfDay(t.Date) {
		// UNTIL must match DTSTART's type; the last day is inclusive.
		until = recurrence.AddDays(end, 1).Add(-time.Second).UTC().Format("20060102T150405Z")
	}
	return rule + ";UNTIL=" + until
}

func monthlyByDay(anchor time.Time) string {
	day := anchor.Day()
	if day == recurrence.DaysIn(anchor.Year(), anchor.Month()) {
		return ";BYMONTHDAY=-1"
	}
	if day <= 28 {
		return ""
	}
	// Pick the anchor day, or the last day of shorter months.
	days := make([]string, 0, day-27)
	for d := 28; d <= day; d++ {
		days = append(days, fmt.Sprint(d))
	}
	return ";BYMONTHDAY=" + strings.Join(days, ",") + ";BYSETPOS=-1"
}

func escapeICSText(s string) string {
	repl := strings.NewReplacer(
		"\\", "\\\\",
		";", "\\;",
		",", "\\,",
		"\r\n", "\\n",
		"\n", "\\n",
		"\r", "\\n",
	)
	return repl.Replace(s)
}
