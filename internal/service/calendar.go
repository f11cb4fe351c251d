package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"organizer/internal/models"
	"organizer/internal/recurrence"
	"organizer/internal/storage"
)

// MaxPerCell is how many occurrences a month grid cell lists before folding
// the rest into More.
const MaxPerCell = 3

// Calendar lays expanded occurrences out on a month grid.
type Calendar struct {
	store    storage.TaskStore
	expander recurrence.Expander
}

// NewCalendar returns a Calendar reading tasks from store.
func NewCalendar(store storage.TaskStore, expander recurrence.Expander) *Calendar {
	return &Calendar{store: store, expander: expander}
}

// DayCell is one square of the month grid.
type DayCell struct {
	Date    recurrence.DateKey      `json:"date"`
	Day     int                     `json:"day"`
	InMonth bool                    `json:"inMonth"`
	Today   bool                    `json:"today"`
	Items   []recurrence.Occurrence `json:"items"`
	More    int                     `json:"more"`
}

// MonthView is a Sunday-first grid of five or six weeks covering a month.
type MonthView struct {
	Year  int         `json:"year"`
	Month time.Month  `json:"month"`
	Weeks [][]DayCell `json:"weeks"`
}

// Occurrences expands the owner's tasks over window.
func (c *Calendar) Occurrences(ctx context.Context, ownerID string, window recurrence.DateRange) (recurrence.Days, error) {
	tasks, err := c.store.ListTasks(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	days, err := c.expander.Expand(tasks, window)
	if errors.Is(err, recurrence.ErrRangeTooLarge) {
		return nil, fmt.Errorf("%w: %w", models.ErrValidation, err)
	}
	return days, err
}

// Month builds the grid for year/month, flagging the civil day of now.
func (c *Calendar) Month(ctx context.Context, ownerID string, year int, month time.Month, now time.Time) (MonthView, error) {
	if month < time.January || month > time.December || year < 1 || year > 9999 {
		return MonthView{}, fmt.Errorf("month %04d-%02d: %w", year, int(month), models.ErrValidation)
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, recurrence.Location)
	offset := int(first.Weekday())
	cells := offset + recurrence.DaysIn(year, month)
	rows := (cells + 6) / 7
	if rows < 5 {
		rows = 5
	}
	start := recurrence.AddDays(first, -offset)
	end := recurrence.AddDays(start, rows*7-1)

	days, err := c.Occurrences(ctx, ownerID, recurrence.Between(start, end))
	if err != nil {
		return MonthView{}, err
	}

	today := recurrence.Key(recurrence.Today(now))
	view := MonthView{Year: year, Month: month, Weeks: make([][]DayCell, rows)}
	for r := 0; r < rows; r++ {
		week := make([]DayCell, 7)
		for d := 0; d < 7; d++ {
			day := recurrence.AddDays(start, r*7+d)
			key := recurrence.Key(day)
			occ := days[key]
			cell := DayCell{
				Date:    key,
				Day:     day.Day(),
				InMonth: day.Month() == month,
				Today:   key == today,
				Items:   []recurrence.Occurrence{},
			}
			if len(occ) > MaxPerCell {
				cell.Items = append(cell.Items, occ[:MaxPerCell]...)
				cell.More = len(occ) - MaxPerCell
			} else {
				cell.Items = append(cell.Items, occ...)
			}
			week[d] = cell
		}
		view.Weeks[r] = week
	}
	return view, nil
}
