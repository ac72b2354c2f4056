package calendar

const (
	// MonthCellCapacity is how many appointments a month-grid day shows.
	MonthCellCapacity = 3
	// WeekCellCapacity is how many appointments a week day cell shows when the
	// time axis is off.
	WeekCellCapacity = 6
)

// DayCell is the truncated content of one day in cell mode.
type DayCell struct {
	Shown    []Item `json:"shown" yaml:"shown"`
	Overflow int    `json:"overflow" yaml:"overflow"`
}

// LayoutDayCell orders items by start (stable) and keeps the first capacity.
func LayoutDayCell(items []Item, capacity int) DayCell {
	if capacity < 0 {
		capacity = 0
	}
	sorted := sortByStart(items)
	if len(sorted) <= capacity {
		return DayCell{Shown: sorted, Overflow: 0}
	}
	return DayCell{Shown: sorted[:capacity], Overflow: len(sorted) - capacity}
}

// CellCapacity returns the per-day capacity for mode.
func CellCapacity(mode ViewMode) int {
	if mode == ViewMonth {
		return MonthCellCapacity
	}
	return WeekCellCapacity
}
