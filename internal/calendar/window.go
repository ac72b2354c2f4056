package calendar

import (
	"fmt"
	"strings"
	"time"
)

// ViewMode selects the calendar grid being rendered.
type ViewMode string

const (
	ViewMonth ViewMode = "month"
	ViewWeek  ViewMode = "week"
)

// ParseViewMode validates a view mode coming from a request or flag.
func ParseViewMode(s string) (ViewMode, error) {
	switch ViewMode(strings.ToLower(strings.TrimSpace(s))) {
	case ViewMonth:
		return ViewMonth, nil
	case ViewWeek:
		return ViewWeek, nil
	}
	return "", fmt.Errorf("invalid view mode %q: must be month or week", s)
}

// Window is the contiguous, week-aligned run of calendar days shown for a view.
// Start and End are local midnights of the first (Monday) and last (Sunday) day.
type Window struct {
	Mode  ViewMode    `json:"mode" yaml:"mode"`
	Start time.Time   `json:"start" yaml:"start"`
	End   time.Time   `json:"end" yaml:"end"`
	Days  []time.Time `json:"days" yaml:"days"`
}

// ResolveWindow computes the window for mode around ref. Days are in ref's
// location. Any mode other than month resolves as a week.
func ResolveWindow(mode ViewMode, ref time.Time) Window {
	var start, end time.Time
	if mode == ViewMonth {
		first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
		last := first.AddDate(0, 1, -1)
		start = StartOfWeek(first)
		end = EndOfWeek(last)
	} else {
		mode = ViewWeek
		start = StartOfWeek(ref)
		end = EndOfWeek(ref)
	}

	days := make([]time.Time, 0, 42)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return Window{Mode: mode, Start: start, End: end, Days: days}
}

// Contains reports whether t falls on one of the window's calendar days,
// judged in the window's location.
func (w Window) Contains(t time.Time) bool {
	if t.IsZero() || len(w.Days) == 0 {
		return false
	}
	d := StartOfDay(t.In(w.Start.Location()))
	return !d.Before(w.Start) && !d.After(w.End)
}

// Location returns the time zone the window's days were resolved in.
func (w Window) Location() *time.Location {
	return w.Start.Location()
}

// StartOfDay truncates t to local midnight.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// StartOfWeek returns the Monday on or before t, at local midnight.
func StartOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7 // Monday=0 .. Sunday=6
	return StartOfDay(t).AddDate(0, 0, -offset)
}

// EndOfWeek returns the Sunday on or after t, at local midnight.
func EndOfWeek(t time.Time) time.Time {
	return StartOfWeek(t).AddDate(0, 0, 6)
}

// SameDay reports whether a and b share a calendar date in a's location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// Direction is a navigation step from the toolbar.
type Direction string

const (
	DirectionPrevious Direction = "previous"
	DirectionNext     Direction = "next"
	DirectionToday    Direction = "today"
)

// ParseDirection validates a navigation direction.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case DirectionPrevious, "prev":
		return DirectionPrevious, nil
	case DirectionNext:
		return DirectionNext, nil
	case DirectionToday:
		return DirectionToday, nil
	}
	return "", fmt.Errorf("invalid direction %q: must be previous, next or today", s)
}

// Navigate moves the reference date one month or one week, or resets it to now.
func Navigate(mode ViewMode, ref time.Time, dir Direction, now time.Time) time.Time {
	step := 1
	switch dir {
	case DirectionToday:
		return now
	case DirectionPrevious:
		step = -1
	}
	if mode == ViewMonth {
		return addMonths(ref, step)
	}
	return ref.AddDate(0, 0, 7*step)
}

// addMonths adds n months, clamping the day to the end of the target month
// (Jan 31 + 1 month = Feb 28) instead of overflowing into the next one.
func addMonths(t time.Time, n int) time.Time {
	firstOfTarget := time.Date(t.Year(), t.Month()+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return firstOfTarget.AddDate(0, 0, day-1)
}
