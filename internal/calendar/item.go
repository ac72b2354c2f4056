// Package calendar holds the pure layout core of the appointment calendar:
// window resolution, the time-axis decision, slot placement and day-cell
// truncation. Nothing here performs I/O or reads the clock; callers pass in
// the appointment snapshot, reference date and "now".
package calendar

import (
	"sort"
	"time"
)

// Item is the read-only view of an appointment the layout core works on.
// A zero Start marks the item as unplaceable.
type Item struct {
	ID       string     `json:"id" yaml:"id"`
	Title    string     `json:"title" yaml:"title"`
	Start    time.Time  `json:"start" yaml:"start"`
	End      *time.Time `json:"end,omitempty" yaml:"end,omitempty"`
	Location string     `json:"location,omitempty" yaml:"location,omitempty"`
	Color    string     `json:"color,omitempty" yaml:"color,omitempty"`
	Category string     `json:"category,omitempty" yaml:"category,omitempty"`
	Patient  string     `json:"patient,omitempty" yaml:"patient,omitempty"`
}

// HasStart reports whether the item can be placed at all.
func (it Item) HasStart() bool {
	return !it.Start.IsZero()
}

// sortByStart orders items by start ascending, keeping input order on ties.
func sortByStart(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// inWindow returns the placeable items whose start falls inside w, converted
// to the window's location so hour/minute checks use local wall time.
func inWindow(items []Item, w Window) []Item {
	loc := w.Location()
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if !it.HasStart() || !w.Contains(it.Start) {
			continue
		}
		it.Start = it.Start.In(loc)
		if it.End != nil {
			end := it.End.In(loc)
			it.End = &end
		}
		out = append(out, it)
	}
	return out
}

// DayBucket is the set of items starting on one calendar day.
type DayBucket struct {
	Day   time.Time `json:"day" yaml:"day"`
	Items []Item    `json:"items" yaml:"items"`
}

// GroupByDay buckets items by the local calendar date of their start, in the
// window's day order. Days without items get an empty bucket; items without a
// start or outside the window are dropped.
func GroupByDay(items []Item, w Window) []DayBucket {
	buckets := make([]DayBucket, len(w.Days))
	index := make(map[string]int, len(w.Days))
	for i, d := range w.Days {
		buckets[i] = DayBucket{Day: d, Items: []Item{}}
		index[d.Format(dateKeyLayout)] = i
	}
	for _, it := range inWindow(items, w) {
		if i, ok := index[it.Start.Format(dateKeyLayout)]; ok {
			buckets[i].Items = append(buckets[i].Items, it)
		}
	}
	return buckets
}

const dateKeyLayout = "2006-01-02"
