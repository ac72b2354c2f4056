package calendar

import "sort"

// AgendaDay is one date heading of the list view.
type AgendaDay struct {
	Date  string `json:"date" yaml:"date"`
	Items []Item `json:"items" yaml:"items"`
}

// Agenda groups items by the YYYY-MM-DD of their start (in each start's own
// location), dates ascending and items ascending by start within a date.
func Agenda(items []Item) []AgendaDay {
	groups := make(map[string][]Item)
	for _, it := range items {
		if !it.HasStart() {
			continue
		}
		k := it.Start.Format(dateKeyLayout)
		groups[k] = append(groups[k], it)
	}

	dates := make([]string, 0, len(groups))
	for d := range groups {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	out := make([]AgendaDay, 0, len(dates))
	for _, d := range dates {
		out = append(out, AgendaDay{Date: d, Items: sortByStart(groups[d])})
	}
	return out
}
