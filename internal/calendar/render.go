package calendar

import "time"

// RenderRequest is the full input snapshot of one layout pass.
type RenderRequest struct {
	Mode      ViewMode
	Reference time.Time
	Now       time.Time
	Items     []Item
	// TimeAxisOverride is the caller-held manual toggle; nil means automatic.
	TimeAxisOverride *bool
	// AxisOriginHour is subtracted from every placement's offset.
	AxisOriginHour int
}

// DayView is everything the rendering layer needs for one day of the grid.
// Exactly one of Placements (time-axis mode) or Cell (cell mode) is set.
type DayView struct {
	Date       time.Time   `json:"date" yaml:"date"`
	InMonth    bool        `json:"in_month" yaml:"in_month"`
	IsToday    bool        `json:"is_today" yaml:"is_today"`
	Total      int         `json:"total" yaml:"total"`
	Placements []Placement `json:"placements,omitempty" yaml:"placements,omitempty"`
	Cell       *DayCell    `json:"cell,omitempty" yaml:"cell,omitempty"`
}

// View is the result of a layout pass.
type View struct {
	Window   Window    `json:"window" yaml:"window"`
	Decision Decision  `json:"decision" yaml:"decision"`
	Axis     *TimeAxis `json:"axis,omitempty" yaml:"axis,omitempty"`
	Days     []DayView `json:"days" yaml:"days"`
}

// Render resolves the window for req, decides the layout and lays out every
// day. It is a pure function of req.
func Render(req RenderRequest) View {
	w := ResolveWindow(req.Mode, req.Reference)
	decision := DecideLayout(req.Items, w, req.TimeAxisOverride)

	view := View{
		Window:   w,
		Decision: decision,
		Days:     make([]DayView, 0, len(w.Days)),
	}
	if decision.UseTimeAxis {
		axis := DefaultTimeAxis
		view.Axis = &axis
	}

	ref := req.Reference.In(w.Location())
	now := req.Now.In(w.Location())
	capacity := CellCapacity(w.Mode)

	for _, bucket := range GroupByDay(req.Items, w) {
		dv := DayView{
			Date:    bucket.Day,
			InMonth: w.Mode != ViewMonth || bucket.Day.Month() == ref.Month(),
			IsToday: !req.Now.IsZero() && SameDay(bucket.Day, now),
			Total:   len(bucket.Items),
		}
		if decision.UseTimeAxis {
			dv.Placements = make([]Placement, 0, len(bucket.Items))
			for _, it := range sortByStart(bucket.Items) {
				dv.Placements = append(dv.Placements, PlaceAppointment(it, req.AxisOriginHour))
			}
		} else {
			cell := LayoutDayCell(bucket.Items, capacity)
			dv.Cell = &cell
		}
		view.Days = append(view.Days, dv)
	}
	return view
}
