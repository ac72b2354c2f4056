package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestLayoutDayCell_TruncatesToEarliest(t *testing.T) {
	items := []Item{
		item("e", at(2026, time.October, 20, 15, 0)),
		item("b", at(2026, time.October, 20, 9, 0)),
		item("d", at(2026, time.October, 20, 13, 0)),
		item("a", at(2026, time.October, 20, 8, 0)),
		item("c", at(2026, time.October, 20, 11, 0)),
	}
	cell := LayoutDayCell(items, MonthCellCapacity)
	require.Len(t, cell.Shown, 3)
	assert.Equal(t, 2, cell.Overflow)
	assert.Equal(t, []string{"a", "b", "c"}, ids(cell.Shown))

	// Input must not be reordered.
	assert.Equal(t, "e", items[0].ID)
}

func TestLayoutDayCell_StableOnTies(t *testing.T) {
	nine := at(2026, time.October, 20, 9, 0)
	items := []Item{item("first", nine), item("second", nine), item("third", nine), item("early", at(2026, time.October, 20, 8, 0))}
	cell := LayoutDayCell(items, 3)
	assert.Equal(t, []string{"early", "first", "second"}, ids(cell.Shown))
	assert.Equal(t, 1, cell.Overflow)
}

func TestLayoutDayCell_UnderCapacity(t *testing.T) {
	items := []Item{item("a", at(2026, time.October, 20, 9, 0))}
	cell := LayoutDayCell(items, WeekCellCapacity)
	assert.Equal(t, []string{"a"}, ids(cell.Shown))
	assert.Zero(t, cell.Overflow)

	empty := LayoutDayCell(nil, WeekCellCapacity)
	assert.Empty(t, empty.Shown)
	assert.Zero(t, empty.Overflow)
}

func TestLayoutDayCell_NonPositiveCapacity(t *testing.T) {
	items := []Item{item("a", at(2026, time.October, 20, 9, 0)), item("b", at(2026, time.October, 20, 10, 0))}
	cell := LayoutDayCell(items, -1)
	assert.Empty(t, cell.Shown)
	assert.Equal(t, 2, cell.Overflow)
}

func TestCellCapacity(t *testing.T) {
	assert.Equal(t, 3, CellCapacity(ViewMonth))
	assert.Equal(t, 6, CellCapacity(ViewWeek))
}
