package calendar

import "time"

const (
	// DefaultDurationMinutes is the height of an appointment with no end.
	DefaultDurationMinutes = 60
	// MinHeightMinutes floors every slot so zero or negative spans stay visible.
	MinHeightMinutes = 30
)

// TimeAxis is the vertical hour range drawn in time-axis mode.
type TimeAxis struct {
	StartHour int `json:"start_hour" yaml:"start_hour"`
	EndHour   int `json:"end_hour" yaml:"end_hour"`
}

// DefaultTimeAxis runs from 06:00 to 22:00.
var DefaultTimeAxis = TimeAxis{StartHour: 6, EndHour: 22}

// Rows is the number of one-hour rows on the axis.
func (a TimeAxis) Rows() int {
	return a.EndHour - a.StartHour
}

// RowHours lists the starting hour of every row.
func (a TimeAxis) RowHours() []int {
	hours := make([]int, 0, a.Rows())
	for h := a.StartHour; h < a.EndHour; h++ {
		hours = append(hours, h)
	}
	return hours
}

// Placement positions one appointment on the time axis. Top and Height are in
// minutes; one minute is one layout unit.
type Placement struct {
	AppointmentID string    `json:"appointment_id" yaml:"appointment_id"`
	Top           int       `json:"top" yaml:"top"`
	Height        int       `json:"height" yaml:"height"`
	Day           time.Time `json:"day" yaml:"day"`
}

// Bottom is the offset of the slot's lower edge.
func (p Placement) Bottom() int {
	return p.Top + p.Height
}

// PlaceAppointment computes the slot for it relative to axisOriginHour using
// the wall-clock hour and minute of its start (and end). Results are not
// clipped to any axis.
func PlaceAppointment(it Item, axisOriginHour int) Placement {
	origin := axisOriginHour * 60
	top := minuteOfDay(it.Start) - origin

	height := DefaultDurationMinutes
	if it.End != nil {
		height = minuteOfDay(*it.End) - origin - top
		if height < MinHeightMinutes {
			height = MinHeightMinutes
		}
	}

	return Placement{
		AppointmentID: it.ID,
		Top:           top,
		Height:        height,
		Day:           StartOfDay(it.Start),
	}
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
