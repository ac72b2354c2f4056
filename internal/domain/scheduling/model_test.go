package scheduling

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestFilter_Until(t *testing.T) {
	var f Filter
	if f.Until() != nil {
		t.Error("expected nil upper bound without To")
	}

	to := time.Date(2026, time.October, 25, 12, 0, 0, 0, testLoc)
	f.To = &to
	got := f.Until()
	want := time.Date(2026, time.October, 25, 23, 59, 59, int(999*time.Millisecond), testLoc)
	if !got.Equal(want) {
		t.Errorf("Until() = %v, want %v", got, want)
	}
}

func TestFilter_Matches(t *testing.T) {
	cat := uuid.New()
	other := uuid.New()
	pat := uuid.New()
	from := time.Date(2026, time.October, 19, 0, 0, 0, 0, testLoc)
	to := time.Date(2026, time.October, 25, 12, 0, 0, 0, testLoc)

	appt := &Appointment{Start: at(25, 22, 0), CategoryID: &cat, PatientID: &pat}

	tests := []struct {
		name   string
		filter Filter
		appt   *Appointment
		want   bool
	}{
		{"empty filter", Filter{}, appt, true},
		{"category match", Filter{CategoryID: &cat}, appt, true},
		{"category mismatch", Filter{CategoryID: &other}, appt, false},
		{"category on uncategorised", Filter{CategoryID: &cat}, &Appointment{Start: at(20, 9, 0)}, false},
		{"patient match", Filter{PatientID: &pat}, appt, true},
		{"inside range, late on last day", Filter{From: &from, To: &to}, appt, true},
		{"before range", Filter{From: &from}, &Appointment{Start: at(18, 23, 0)}, false},
		{"after range", Filter{To: &to}, &Appointment{Start: at(26, 0, 0)}, false},
		{"undated with range", Filter{From: &from}, &Appointment{}, false},
		{"undated without range", Filter{}, &Appointment{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tt.appt); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppointment_CalendarItem(t *testing.T) {
	loc := "Room 2"
	a := &Appointment{
		ID:       uuid.New(),
		Title:    "Wound care",
		Start:    at(20, 9, 0),
		End:      at(20, 9, 45),
		Location: &loc,
		Category: &CategoryRef{Label: "Nursing", Color: "#ff0000"},
		Patient:  &PatientRef{FirstName: "Ada", LastName: "Lovelace"},
	}

	it := a.CalendarItem()
	if it.ID != a.ID.String() || it.Title != "Wound care" {
		t.Errorf("unexpected identity: %+v", it)
	}
	if !it.Start.Equal(*a.Start) || it.End != a.End {
		t.Errorf("unexpected times: %+v", it)
	}
	if it.Location != "Room 2" || it.Color != "#ff0000" || it.Category != "Nursing" {
		t.Errorf("unexpected decoration: %+v", it)
	}
	if it.Patient != "Ada Lovelace" {
		t.Errorf("expected patient name, got %q", it.Patient)
	}
}

func TestAppointment_CalendarItem_Undated(t *testing.T) {
	it := (&Appointment{Title: "Call back"}).CalendarItem()
	if it.HasStart() {
		t.Error("expected undated item")
	}
	if it.Color != "" || it.Patient != "" {
		t.Errorf("expected empty decoration, got %+v", it)
	}
}

func TestCalendarItems_KeepsOrder(t *testing.T) {
	a := &Appointment{ID: uuid.New(), Start: at(21, 9, 0)}
	b := &Appointment{ID: uuid.New(), Start: at(20, 9, 0)}
	items := CalendarItems([]*Appointment{a, b})
	if len(items) != 2 || items[0].ID != a.ID.String() || items[1].ID != b.ID.String() {
		t.Errorf("unexpected items: %+v", items)
	}
	if got := CalendarItems(nil); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", got)
	}
}
