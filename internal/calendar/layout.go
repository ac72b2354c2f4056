package calendar

import "time"

// Reason names the rule that produced a layout decision.
type Reason string

const (
	ReasonMonthView      Reason = "month-view"
	ReasonManual         Reason = "manual"
	ReasonEmpty          Reason = "empty"
	ReasonMultiplePerDay Reason = "multiple-per-day"
	ReasonCustomDuration Reason = "custom-duration"
	ReasonOffHour        Reason = "off-hour"
	ReasonHighDensity    Reason = "high-density"
	ReasonExtendedHours  Reason = "extended-hours"
	ReasonStandard       Reason = "standard"
)

// Decision says whether a week is drawn on the time axis and why.
type Decision struct {
	UseTimeAxis bool   `json:"use_time_axis" yaml:"use_time_axis"`
	Reason      Reason `json:"reason" yaml:"reason"`
}

const (
	standardDuration   = time.Hour
	highDensityLimit   = 3
	businessStartHour  = 8
	businessLatestHour = 18
)

// windowFacts is what the rules look at: the in-window items plus their
// per-day counts.
type windowFacts struct {
	items     []Item
	perDayMax int
}

type layoutRule struct {
	reason      Reason
	useTimeAxis bool
	match       func(f windowFacts) bool
}

// layoutRules is evaluated top to bottom; the first match wins. The order is
// part of the contract because it fixes which reason is reported.
var layoutRules = []layoutRule{
	{ReasonEmpty, false, func(f windowFacts) bool {
		return len(f.items) == 0
	}},
	{ReasonMultiplePerDay, true, func(f windowFacts) bool {
		return f.perDayMax > 1
	}},
	{ReasonCustomDuration, true, func(f windowFacts) bool {
		for _, it := range f.items {
			if it.End != nil && it.End.Sub(it.Start) != standardDuration {
				return true
			}
		}
		return false
	}},
	{ReasonOffHour, true, func(f windowFacts) bool {
		for _, it := range f.items {
			if it.Start.Minute() != 0 {
				return true
			}
		}
		return false
	}},
	{ReasonHighDensity, true, func(f windowFacts) bool {
		return len(f.items) > highDensityLimit
	}},
	{ReasonExtendedHours, true, func(f windowFacts) bool {
		for _, it := range f.items {
			if h := it.Start.Hour(); h < businessStartHour || h > businessLatestHour {
				return true
			}
		}
		return false
	}},
	{ReasonStandard, false, func(windowFacts) bool { return true }},
}

// DecideLayout picks between time-axis and day-cell rendering for w. Month
// views never use the axis; otherwise a non-nil override wins, then the rules.
func DecideLayout(items []Item, w Window, override *bool) Decision {
	if w.Mode == ViewMonth {
		return Decision{UseTimeAxis: false, Reason: ReasonMonthView}
	}
	if override != nil {
		return Decision{UseTimeAxis: *override, Reason: ReasonManual}
	}

	f := collectFacts(items, w)
	for _, r := range layoutRules {
		if r.match(f) {
			return Decision{UseTimeAxis: r.useTimeAxis, Reason: r.reason}
		}
	}
	return Decision{UseTimeAxis: false, Reason: ReasonStandard}
}

func collectFacts(items []Item, w Window) windowFacts {
	f := windowFacts{items: inWindow(items, w)}
	counts := make(map[string]int, len(w.Days))
	for _, it := range f.items {
		k := it.Start.Format(dateKeyLayout)
		counts[k]++
		if counts[k] > f.perDayMax {
			f.perDayMax = counts[k]
		}
	}
	return f
}
