package scheduling

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carecal/carecal/internal/calendar"
)

// Category maps to the category table. The color tints appointments on the
// calendar.
type Category struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Label       string    `db:"label" json:"label"`
	Color       string    `db:"color" json:"color"`
	Icon        *string   `db:"icon" json:"icon,omitempty"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Patient maps to the patient table.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	FirstName   string     `db:"firstname" json:"firstname"`
	LastName    string     `db:"lastname" json:"lastname"`
	BirthDate   *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	CareLevel   *int       `db:"care_level" json:"care_level,omitempty"`
	Pronoun     *string    `db:"pronoun" json:"pronoun,omitempty"`
	Email       *string    `db:"email" json:"email,omitempty"`
	Phone       *string    `db:"phone" json:"phone,omitempty"`
	Active      bool       `db:"active" json:"active"`
	ActiveSince *time.Time `db:"active_since" json:"active_since,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// CategoryRef is the slice of a category resolved onto an appointment.
type CategoryRef struct {
	ID          uuid.UUID `json:"id"`
	Label       string    `json:"label"`
	Color       string    `json:"color"`
	Icon        *string   `json:"icon,omitempty"`
	Description *string   `json:"description,omitempty"`
}

// PatientRef is the slice of a patient resolved onto an appointment.
type PatientRef struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"firstname"`
	LastName  string    `json:"lastname"`
	CareLevel *int      `json:"care_level,omitempty"`
	Pronoun   *string   `json:"pronoun,omitempty"`
}

// FullName joins first and last name.
func (p *PatientRef) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

func (p *Patient) ref() *PatientRef {
	return &PatientRef{ID: p.ID, FirstName: p.FirstName, LastName: p.LastName, CareLevel: p.CareLevel, Pronoun: p.Pronoun}
}

func (c *Category) ref() *CategoryRef {
	return &CategoryRef{ID: c.ID, Label: c.Label, Color: c.Color, Icon: c.Icon, Description: c.Description}
}

// Appointment maps to the appointment table. Category and Patient are filled
// on reads only.
type Appointment struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Title       string     `db:"title" json:"title"`
	Start       *time.Time `db:"start_time" json:"start"`
	End         *time.Time `db:"end_time" json:"end,omitempty"`
	Location    *string    `db:"location" json:"location,omitempty"`
	Notes       *string    `db:"notes" json:"notes,omitempty"`
	Status      string     `db:"status" json:"status"`
	CategoryID  *uuid.UUID `db:"category_id" json:"category,omitempty"`
	PatientID   *uuid.UUID `db:"patient_id" json:"patient,omitempty"`
	ExternalUID *string    `db:"external_uid" json:"external_uid,omitempty"`
	CreatedBy   *string    `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`

	Category *CategoryRef `json:"categories,omitempty"`
	Patient  *PatientRef  `json:"patients,omitempty"`
}

// CalendarItem projects the appointment onto the layout core's input type.
func (a *Appointment) CalendarItem() calendar.Item {
	it := calendar.Item{
		ID:    a.ID.String(),
		Title: a.Title,
		End:   a.End,
	}
	if a.Start != nil {
		it.Start = *a.Start
	}
	if a.Location != nil {
		it.Location = *a.Location
	}
	if a.Category != nil {
		it.Color = a.Category.Color
		it.Category = a.Category.Label
	}
	if a.Patient != nil {
		it.Patient = a.Patient.FullName()
	}
	return it
}

// CalendarItems projects a list of appointments, keeping order.
func CalendarItems(appts []*Appointment) []calendar.Item {
	items := make([]calendar.Item, 0, len(appts))
	for _, a := range appts {
		items = append(items, a.CalendarItem())
	}
	return items
}

// Filter narrows an appointment listing. Nil fields do not filter.
type Filter struct {
	CategoryID *uuid.UUID
	PatientID  *uuid.UUID
	From       *time.Time
	To         *time.Time
}

// Until returns the inclusive upper bound on start: the last instant of the
// To day.
func (f Filter) Until() *time.Time {
	if f.To == nil {
		return nil
	}
	end := calendar.StartOfDay(*f.To).AddDate(0, 0, 1).Add(-time.Millisecond)
	return &end
}

// Matches applies the filter to a single appointment. Appointments without a
// start never match a date-range filter.
func (f Filter) Matches(a *Appointment) bool {
	if f.CategoryID != nil && (a.CategoryID == nil || *a.CategoryID != *f.CategoryID) {
		return false
	}
	if f.PatientID != nil && (a.PatientID == nil || *a.PatientID != *f.PatientID) {
		return false
	}
	if f.From != nil || f.To != nil {
		if a.Start == nil {
			return false
		}
		if f.From != nil && a.Start.Before(*f.From) {
			return false
		}
		if until := f.Until(); until != nil && a.Start.After(*until) {
			return false
		}
	}
	return true
}

// Stats is the dashboard summary.
type Stats struct {
	TodayCount     int `json:"todayCount"`
	WeekCount      int `json:"weekCount"`
	ActivePatients int `json:"activePatients"`
}

// ImportResult summarizes a calendar-feed import.
type ImportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}
