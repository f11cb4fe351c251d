package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

// KeyLayout is the layout of a DateKey.
const KeyLayout = "2006-01-02"

// Location is the civil calendar every day key is computed in, regardless of
// the process time zone.
var Location = mustLoadLocation("Australia/Sydney")

var ErrInvalidDate = errors.New("invalid date")

// DateKey identifies one civil day in Location, formatted with KeyLayout.
type DateKey string

// Key returns the day key of t in Location.
func Key(t time.Time) DateKey {
	return DateKey(t.In(Location).Format(KeyLayout))
}

// Time returns midnight of the keyed day in Location.
func (k DateKey) Time() (time.Time, error) {
	t, err := time.ParseInLocation(KeyLayout, string(k), Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, string(k))
	}
	return t, nil
}

var localLayouts = []string{
	KeyLayout,
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// ParseDate reads a task date and returns midnight of its civil day in
// Location. Dates without an offset are read as Location wall time; RFC 3339
// values are converted into Location first.
func ParseDate(raw string) (time.Time, error) {
	t, err := ParseDateTime(raw)
	if err != nil {
		return time.Time{}, err
	}
	return Midnight(t), nil
}

// ParseDateTime is ParseDate without the truncation to midnight.
func ParseDateTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(Location), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, Location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
}

// HasTimeOfDay reports whether a raw task date carries a time component.
func HasTimeOfDay(raw string) bool {
	return len(strings.TrimSpace(raw)) > len(KeyLayout)
}

// Midnight truncates t to the start of its civil day in Location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.In(Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, Location)
}

// Today returns the current civil day in Location.
func Today(now time.Time) time.Time {
	return Midnight(now)
}

// AddDays moves a civil day by n days. Wall-clock arithmetic keeps the result
// on midnight across daylight saving transitions.
func AddDays(day time.Time, n int) time.Time {
	y, m, d := day.In(Location).Date()
	return time.Date(y, m, d+n, 0, 0, 0, 0, Location)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// daysBetween counts whole civil days from a to b.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.In(Location).Date()
	by, bm, bd := b.In(Location).Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// DateRange is an inclusive range of civil days. A zero From or To leaves
// that side open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Between builds a range from two days, truncating both to midnight.
func Between(from, to time.Time) DateRange {
	return DateRange{From: from, To: to}.normalize()
}

// Month covers every day of the given month.
func Month(year int, month time.Month) DateRange {
	first := time.Date(year, month, 1, 0, 0, 0, 0, Location)
	return DateRange{From: first, To: AddDays(first, DaysIn(year, month)-1)}
}

// ParseRange reads optional from/to query values. Empty values stay open.
func ParseRange(from, to string) (DateRange, error) {
	var r DateRange
	if strings.TrimSpace(from) != "" {
		t, err := ParseDate(from)
		if err != nil {
			return DateRange{}, err
		}
		r.From = t
	}
	if strings.TrimSpace(to) != "" {
		t, err := ParseDate(to)
		if err != nil {
			return DateRange{}, err
		}
		r.To = t
	}
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return DateRange{}, fmt.Errorf("%w: range ends before it starts", ErrInvalidDate)
	}
	return r, nil
}

// Contains reports whether day falls inside the range.
func (r DateRange) Contains(day time.Time) bool {
	day = Midnight(day)
	if !r.From.IsZero() && day.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && day.After(r.To) {
		return false
	}
	return true
}

func (r DateRange) normalize() DateRange {
	if !r.From.IsZero() {
		r.From = Midnight(r.From)
	}
	if !r.To.IsZero() {
		r.To = Midnight(r.To)
	}
	return r
}

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("load location %s: %v", name, err))
	}
	return loc
}
