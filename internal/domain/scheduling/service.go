package scheduling

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carecal/carecal/internal/calendar"
	"github.com/carecal/carecal/internal/platform/ical"
)

// ErrValidation marks input the caller must fix.
var ErrValidation = errors.New("validation failed")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// TxFunc runs fn in a single storage transaction.
type TxFunc func(ctx context.Context, fn func(ctx context.Context) error) error

func noTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type Service struct {
	categories   CategoryRepository
	patients     PatientRepository
	appointments AppointmentRepository
	loc          *time.Location
	now          func() time.Time
	inTx         TxFunc
}

// NewService wires the repositories. loc is the display timezone used for
// day boundaries; nil means UTC.
func NewService(cat CategoryRepository, pat PatientRepository, appt AppointmentRepository, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{categories: cat, patients: pat, appointments: appt, loc: loc, now: time.Now, inTx: noTx}
}

// UseTx makes imports atomic on storage that supports transactions.
func (s *Service) UseTx(fn TxFunc) { s.inTx = fn }

func (s *Service) Location() *time.Location { return s.loc }

// -- Category --

var colorPattern = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

const defaultCategoryColor = "#4f46e5"

func (s *Service) CreateCategory(ctx context.Context, c *Category) error {
	c.Label = strings.TrimSpace(c.Label)
	if c.Label == "" {
		return invalid("label is required")
	}
	if c.Color == "" {
		c.Color = defaultCategoryColor
	}
	if !colorPattern.MatchString(c.Color) {
		return invalid("color must be a hex color, got %q", c.Color)
	}
	return s.categories.Create(ctx, c)
}

func (s *Service) ListCategories(ctx context.Context) ([]*Category, error) {
	return s.categories.List(ctx)
}

// -- Patient --

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.FirstName == "" || p.LastName == "" {
		return invalid("firstname and lastname are required")
	}
	if p.CareLevel != nil && (*p.CareLevel < 1 || *p.CareLevel > 5) {
		return invalid("care_level must be between 1 and 5")
	}
	if p.Active && p.ActiveSince == nil {
		today := calendar.StartOfDay(s.now().In(s.loc))
		p.ActiveSince = &today
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) ListActivePatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.ListActive(ctx, limit, offset)
}

// -- Appointment --

const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

var validAppointmentStatuses = map[string]bool{
	StatusScheduled: true, StatusCompleted: true, StatusCancelled: true, StatusNoShow: true,
}

func (s *Service) validateAppointment(ctx context.Context, a *Appointment) error {
	a.Title = strings.TrimSpace(a.Title)
	if a.Title == "" {
		return invalid("title is required")
	}
	if a.Start == nil || a.Start.IsZero() {
		return invalid("start is required")
	}
	if a.End != nil && a.End.Before(*a.Start) {
		return invalid("end must not be before start")
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if !validAppointmentStatuses[a.Status] {
		return invalid("invalid appointment status: %s", a.Status)
	}
	if a.CategoryID != nil {
		if _, err := s.categories.GetByID(ctx, *a.CategoryID); err != nil {
			return s.reference("category", err)
		}
	}
	if a.PatientID != nil {
		if _, err := s.patients.GetByID(ctx, *a.PatientID); err != nil {
			return s.reference("patient", err)
		}
	}
	return nil
}

func (s *Service) reference(kind string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return invalid("%s does not exist", kind)
	}
	return fmt.Errorf("lookup %s: %w", kind, err)
}

func (s *Service) CreateAppointment(ctx context.Context, a *Appointment) error {
	if err := s.validateAppointment(ctx, a); err != nil {
		return err
	}
	if err := s.appointments.Create(ctx, a); err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) UpdateAppointment(ctx context.Context, a *Appointment) error {
	if err := s.validateAppointment(ctx, a); err != nil {
		return err
	}
	return s.appointments.Update(ctx, a)
}

func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	return s.appointments.Delete(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.List(ctx, f, limit, offset)
}

// Agenda returns the filtered appointments grouped by local date.
func (s *Service) Agenda(ctx context.Context, f Filter) ([]calendar.AgendaDay, error) {
	appts, _, err := s.appointments.List(ctx, f, 0, 0)
	if err != nil {
		return nil, err
	}
	return calendar.Agenda(s.items(appts)), nil
}

// Stats counts today's and this week's appointments in the display timezone,
// plus active patients. Weeks start on Monday.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	now := s.now().In(s.loc)
	today := calendar.StartOfDay(now)
	week := calendar.StartOfWeek(now)

	var st Stats
	var err error
	if st.TodayCount, err = s.appointments.CountStartingBetween(ctx, today, today.AddDate(0, 0, 1)); err != nil {
		return nil, fmt.Errorf("count today: %w", err)
	}
	if st.WeekCount, err = s.appointments.CountStartingBetween(ctx, week, week.AddDate(0, 0, 7)); err != nil {
		return nil, fmt.Errorf("count week: %w", err)
	}
	if st.ActivePatients, err = s.patients.CountActive(ctx); err != nil {
		return nil, fmt.Errorf("count patients: %w", err)
	}
	return &st, nil
}

// items projects appointments into the display timezone.
func (s *Service) items(appts []*Appointment) []calendar.Item {
	items := CalendarItems(appts)
	for i := range items {
		if items[i].HasStart() {
			items[i].Start = items[i].Start.In(s.loc)
		}
		if items[i].End != nil {
			end := items[i].End.In(s.loc)
			items[i].End = &end
		}
	}
	return items
}

// -- Calendar --

// CalendarQuery selects the rendered window and narrows its appointments.
type CalendarQuery struct {
	Mode       calendar.ViewMode
	Date       time.Time
	TimeAxis   *bool
	CategoryID *uuid.UUID
	PatientID  *uuid.UUID
}

// CalendarWindow resolves the window for q in the display timezone and loads
// the appointments starting inside it.
func (s *Service) CalendarWindow(ctx context.Context, q CalendarQuery) (calendar.Window, []*Appointment, error) {
	w := calendar.ResolveWindow(q.Mode, q.Date.In(s.loc))
	from, to := w.Start, w.End
	appts, _, err := s.appointments.List(ctx, Filter{
		CategoryID: q.CategoryID,
		PatientID:  q.PatientID,
		From:       &from,
		To:         &to,
	}, 0, 0)
	if err != nil {
		return w, nil, fmt.Errorf("load window: %w", err)
	}
	return w, appts, nil
}

// CalendarView runs the layout pass for q.
func (s *Service) CalendarView(ctx context.Context, q CalendarQuery) (calendar.View, error) {
	_, appts, err := s.CalendarWindow(ctx, q)
	if err != nil {
		return calendar.View{}, err
	}
	return calendar.Render(calendar.RenderRequest{
		Mode:             q.Mode,
		Reference:        q.Date.In(s.loc),
		Now:              s.now().In(s.loc),
		Items:            s.items(appts),
		TimeAxisOverride: q.TimeAxis,
		AxisOriginHour:   calendar.DefaultTimeAxis.StartHour,
	}), nil
}

// Navigate moves the reference date one window in dir.
func (s *Service) Navigate(mode calendar.ViewMode, ref time.Time, dir calendar.Direction) time.Time {
	return calendar.Navigate(mode, ref.In(s.loc), dir, s.now().In(s.loc))
}

// -- Feed import --

// ImportOccurrences upserts feed occurrences keyed by source and occurrence
// key. All-day occurrences are skipped. The import is atomic when a TxFunc is
// configured.
func (s *Service) ImportOccurrences(ctx context.Context, source string, occs []ical.Occurrence, categoryID *uuid.UUID) (ImportResult, error) {
	var res ImportResult
	err := s.inTx(ctx, func(ctx context.Context) error {
		res = ImportResult{}
		for _, o := range occs {
			if o.AllDay || o.Start.IsZero() {
				res.Skipped++
				continue
			}
			a := appointmentFromOccurrence(source, o, categoryID)
			if a.End != nil && a.End.Before(*a.Start) {
				res.Skipped++
				continue
			}
			created, err := s.appointments.UpsertByExternalUID(ctx, a)
			if err != nil {
				return fmt.Errorf("upsert %s: %w", o.Key(), err)
			}
			if created {
				res.Created++
			} else {
				res.Updated++
			}
		}
		return nil
	})
	return res, err
}

func appointmentFromOccurrence(source string, o ical.Occurrence, categoryID *uuid.UUID) *Appointment {
	start := o.Start
	key := o.Key()
	if source != "" {
		key = source + "#" + key
	}
	title := strings.TrimSpace(o.Summary)
	if title == "" {
		title = "(untitled)"
	}
	a := &Appointment{
		Title:       title,
		Start:       &start,
		End:         o.End,
		Status:      StatusScheduled,
		CategoryID:  categoryID,
		ExternalUID: &key,
	}
	if o.Location != "" {
		loc := o.Location
		a.Location = &loc
	}
	if o.Description != "" {
		notes := o.Description
		a.Notes = &notes
	}
	return a
}
