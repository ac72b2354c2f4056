// Package ical reads and writes iCalendar feeds. Decoding expands recurring
// events into concrete occurrences inside a time range.
package ical

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"
)

const defaultMaxPerEvent = 1000

// Occurrence is one concrete instance of a VEVENT.
type Occurrence struct {
	UID string `json:"uid" yaml:"uid"`
	// RecurrenceID identifies the instance of a recurring event; empty for
	// single events.
	RecurrenceID string     `json:"recurrence_id,omitempty" yaml:"recurrence_id,omitempty"`
	Summary      string     `json:"summary" yaml:"summary"`
	Description  string     `json:"description,omitempty" yaml:"description,omitempty"`
	Location     string     `json:"location,omitempty" yaml:"location,omitempty"`
	Start        time.Time  `json:"start" yaml:"start"`
	End          *time.Time `json:"end,omitempty" yaml:"end,omitempty"`
	AllDay       bool       `json:"all_day" yaml:"all_day"`
}

// Key is stable across re-imports of the same feed.
func (o Occurrence) Key() string {
	if o.RecurrenceID == "" {
		return o.UID
	}
	return o.UID + "/" + o.RecurrenceID
}

// DecodeOptions bound the expansion. Occurrences overlapping [From, To) are
// kept and converted to Location (UTC when nil).
type DecodeOptions struct {
	From        time.Time
	To          time.Time
	Location    *time.Location
	MaxPerEvent int
}

// DecodeResult carries the occurrences, sorted by start, and the events that
// could not be used.
type DecodeResult struct {
	Occurrences []Occurrence
	// Skipped counts VEVENTs that produced nothing: no UID, no usable
	// DTSTART, an unparseable RRULE, or a RECURRENCE-ID override that matches
	// no instance of its series.
	Skipped int
	// Truncated lists UIDs whose expansion hit MaxPerEvent.
	Truncated []string
}

type event struct {
	uid         string
	summary     string
	description string
	location    string
	start       time.Time
	end         *time.Time
	allDay      bool
	rrule       string
	exdates     []time.Time
	recurrence  *time.Time
}

// Decode parses an iCalendar document and expands it within opts.
func Decode(r io.Reader, opts DecodeOptions) (DecodeResult, error) {
	var res DecodeResult
	if !opts.To.After(opts.From) {
		return res, errors.New("decode: range end must be after range start")
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxPerEvent <= 0 {
		opts.MaxPerEvent = defaultMaxPerEvent
	}

	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return res, fmt.Errorf("parse calendar: %w", err)
	}

	var order []string
	bases := make(map[string][]event)
	overrides := make(map[string][]event)
	for _, ve := range cal.Events() {
		ev, err := parseEvent(ve)
		if err != nil {
			res.Skipped++
			continue
		}
		if ev.recurrence != nil {
			overrides[ev.uid] = append(overrides[ev.uid], ev)
			continue
		}
		if _, seen := bases[ev.uid]; !seen {
			order = append(order, ev.uid)
		}
		bases[ev.uid] = append(bases[ev.uid], ev)
	}

	for _, uid := range order {
		for _, ev := range bases[uid] {
			occs, capped, unmatched, err := expand(ev, overrides[uid], opts)
			if err != nil {
				res.Skipped++
				continue
			}
			if capped {
				res.Truncated = append(res.Truncated, uid)
			}
			res.Skipped += unmatched
			res.Occurrences = append(res.Occurrences, occs...)
		}
	}
	for uid, ovs := range overrides {
		if _, ok := bases[uid]; !ok {
			res.Skipped += len(ovs)
		}
	}

	sort.SliceStable(res.Occurrences, func(i, j int) bool {
		return res.Occurrences[i].Start.Before(res.Occurrences[j].Start)
	})
	return res, nil
}

func parseEvent(ve *ics.VEvent) (event, error) {
	var ev event
	p := ve.GetProperty(ics.ComponentPropertyUniqueId)
	if p == nil || p.Value == "" {
		return ev, errors.New("missing UID")
	}
	ev.uid = p.Value

	if p := ve.GetProperty(ics.ComponentPropertySummary); p != nil {
		ev.summary = p.Value
	}
	if p := ve.GetProperty(ics.ComponentPropertyDescription); p != nil {
		ev.description = p.Value
	}
	if p := ve.GetProperty(ics.ComponentPropertyLocation); p != nil {
		ev.location = p.Value
	}

	dtstart := ve.GetProperty(ics.ComponentPropertyDtStart)
	if dtstart == nil {
		return ev, errors.New("missing DTSTART")
	}
	start, err := ve.GetStartAt()
	if err != nil {
		return ev, fmt.Errorf("DTSTART: %w", err)
	}
	ev.start = start
	ev.allDay = isDateValue(dtstart)
	if end, err := ve.GetEndAt(); err == nil && !end.IsZero() {
		ev.end = &end
	} else if ev.allDay {
		next := start.AddDate(0, 0, 1)
		ev.end = &next
	}

	if p := ve.GetProperty(ics.ComponentPropertyRrule); p != nil {
		ev.rrule = p.Value
	}
	for _, p := range ve.GetProperties(ics.ComponentPropertyExdate) {
		loc := paramLocation(p, start.Location())
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, loc); err == nil {
				ev.exdates = append(ev.exdates, t)
			}
		}
	}
	if p := ve.GetProperty(ics.ComponentProperty("RECURRENCE-ID")); p != nil {
		if t, err := parseICSTime(p.Value, paramLocation(p, start.Location())); err == nil {
			ev.recurrence = &t
		}
	}
	return ev, nil
}

func isDateValue(p *ics.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func paramLocation(p *ics.IANAProperty, fallback *time.Location) *time.Location {
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		if loc, err := time.LoadLocation(tzs[0]); err == nil {
			return loc
		}
	}
	return fallback
}

// parseICSTime handles the UTC, floating and date-only forms.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}

// expand returns the occurrences of ev overlapping the range, whether the
// series hit MaxPerEvent, and how many overrides matched no instance.
func expand(ev event, overrides []event, opts DecodeOptions) ([]Occurrence, bool, int, error) {
	if ev.rrule == "" {
		return expandSingle(ev, overrides, opts)
	}

	r, err := rrule.StrToRRule(ev.rrule)
	if err != nil {
		return nil, false, 0, fmt.Errorf("RRULE %q: %w", ev.rrule, err)
	}
	r.DTStart(ev.start)
	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.exdates {
		set.ExDate(ex.In(ev.start.Location()))
	}

	var dur time.Duration
	if ev.end != nil {
		dur = ev.end.Sub(ev.start)
	}
	// Widen the lower bound so instances that started earlier but still run
	// into the range are found.
	after := opts.From.Add(-dur).In(ev.start.Location())
	before := opts.To.In(ev.start.Location())
	starts := set.Between(after, before, true)

	capped := false
	if len(starts) > opts.MaxPerEvent {
		starts = starts[:opts.MaxPerEvent]
		capped = true
	}

	used := make([]bool, len(overrides))
	out := make([]Occurrence, 0, len(starts))
	for _, s := range starts {
		var end *time.Time
		if ev.end != nil {
			e := s.Add(dur)
			end = &e
		}
		inst, start := ev, s
		if i, ok := findOverride(overrides, s); ok {
			used[i] = true
			inst, start, end = overrides[i], overrides[i].start, overrides[i].end
		}
		if !overlaps(start, end, opts.From, opts.To) {
			continue
		}
		out = append(out, occurrence(inst, start, end, recurrenceID(s), opts.Location))
	}

	// An override can move an instance from outside the range into it.
	unmatched := 0
	for i, ov := range overrides {
		if used[i] {
			continue
		}
		orig := *ov.recurrence
		if len(set.Between(orig, orig, true)) == 0 {
			unmatched++
			continue
		}
		if overlaps(ov.start, ov.end, opts.From, opts.To) {
			out = append(out, occurrence(ov, ov.start, ov.end, recurrenceID(orig), opts.Location))
		}
	}
	return out, capped, unmatched, nil
}

// expandSingle handles a non-recurring event, which an override may only
// replace at its own start.
func expandSingle(ev event, overrides []event, opts DecodeOptions) ([]Occurrence, bool, int, error) {
	inst, rid := ev, ""
	unmatched := len(overrides)
	if i, ok := findOverride(overrides, ev.start); ok {
		inst, rid = overrides[i], recurrenceID(ev.start)
		unmatched--
	}
	if !overlaps(inst.start, inst.end, opts.From, opts.To) {
		return nil, false, unmatched, nil
	}
	return []Occurrence{occurrence(inst, inst.start, inst.end, rid, opts.Location)}, false, unmatched, nil
}

func recurrenceID(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

func findOverride(overrides []event, start time.Time) (int, bool) {
	for i, ov := range overrides {
		if ov.recurrence != nil && ov.recurrence.Equal(start) {
			return i, true
		}
	}
	return -1, false
}

func overlaps(start time.Time, end *time.Time, from, to time.Time) bool {
	if !start.Before(to) {
		return false
	}
	if end == nil || !end.After(start) {
		return !start.Before(from)
	}
	return end.After(from)
}

func occurrence(ev event, start time.Time, end *time.Time, rid string, loc *time.Location) Occurrence {
	o := Occurrence{
		UID:          ev.uid,
		RecurrenceID: rid,
		Summary:      ev.summary,
		Description:  ev.description,
		Location:     ev.location,
		Start:        start.In(loc),
		AllDay:       ev.allDay,
	}
	if end != nil {
		e := end.In(loc)
		o.End = &e
	}
	return o
}
