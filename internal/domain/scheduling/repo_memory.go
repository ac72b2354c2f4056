package scheduling

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps categories, patients and appointments in process memory.
// It backs STORAGE=memory and the offline CLI commands. Reads return copies.
type MemoryStore struct {
	mu           sync.RWMutex
	categories   map[uuid.UUID]*Category
	patients     map[uuid.UUID]*Patient
	appointments map[uuid.UUID]*Appointment
	byExternal   map[string]uuid.UUID
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		categories:   make(map[uuid.UUID]*Category),
		patients:     make(map[uuid.UUID]*Patient),
		appointments: make(map[uuid.UUID]*Appointment),
		byExternal:   make(map[string]uuid.UUID),
		now:          time.Now,
	}
}

func (s *MemoryStore) Categories() CategoryRepository     { return &categoryRepoMem{s} }
func (s *MemoryStore) Patients() PatientRepository        { return &patientRepoMem{s} }
func (s *MemoryStore) Appointments() AppointmentRepository { return &appointmentRepoMem{s} }

// Ping always succeeds; it lets the store back the database health check.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// =========== Category Repository ===========

type categoryRepoMem struct{ s *MemoryStore }

func (r *categoryRepoMem) Create(_ context.Context, c *Category) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c.ID = uuid.New()
	c.CreatedAt = r.s.now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	r.s.categories[c.ID] = &cp
	return nil
}

func (r *categoryRepoMem) GetByID(_ context.Context, id uuid.UUID) (*Category, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.categories[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *categoryRepoMem) List(_ context.Context) ([]*Category, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	items := make([]*Category, 0, len(r.s.categories))
	for _, c := range r.s.categories {
		cp := *c
		items = append(items, &cp)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })
	return items, nil
}

// =========== Patient Repository ===========

type patientRepoMem struct{ s *MemoryStore }

func (r *patientRepoMem) Create(_ context.Context, p *Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p.ID = uuid.New()
	p.CreatedAt = r.s.now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	r.s.patients[p.ID] = &cp
	return nil
}

func (r *patientRepoMem) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *patientRepoMem) ListActive(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var items []*Patient
	for _, p := range r.s.patients {
		if p.Active {
			cp := *p
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].LastName != items[j].LastName {
			return items[i].LastName < items[j].LastName
		}
		return items[i].FirstName < items[j].FirstName
	})
	total := len(items)
	return page(items, limit, offset), total, nil
}

func (r *patientRepoMem) CountActive(_ context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, p := range r.s.patients {
		if p.Active {
			n++
		}
	}
	return n, nil
}

// =========== Appointment Repository ===========

type appointmentRepoMem struct{ s *MemoryStore }

// resolve copies a and fills its Category and Patient. Callers hold the lock.
func (r *appointmentRepoMem) resolve(a *Appointment) *Appointment {
	cp := *a
	cp.Category, cp.Patient = nil, nil
	if a.CategoryID != nil {
		if c, ok := r.s.categories[*a.CategoryID]; ok {
			cp.Category = c.ref()
		}
	}
	if a.PatientID != nil {
		if p, ok := r.s.patients[*a.PatientID]; ok {
			cp.Patient = p.ref()
		}
	}
	return &cp
}

func (r *appointmentRepoMem) insert(a *Appointment) {
	a.ID = uuid.New()
	a.CreatedAt = r.s.now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	r.s.appointments[a.ID] = &cp
	if a.ExternalUID != nil {
		r.s.byExternal[*a.ExternalUID] = a.ID
	}
}

func (r *appointmentRepoMem) Create(_ context.Context, a *Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a.ExternalUID != nil {
		if _, ok := r.s.byExternal[*a.ExternalUID]; ok {
			return fmt.Errorf("external uid %q already exists", *a.ExternalUID)
		}
	}
	r.insert(a)
	return nil
}

func (r *appointmentRepoMem) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.resolve(a), nil
}

func (r *appointmentRepoMem) Update(_ context.Context, a *Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.appointments[a.ID]
	if !ok {
		return ErrNotFound
	}
	a.CreatedAt = cur.CreatedAt
	a.ExternalUID = cur.ExternalUID
	a.CreatedBy = cur.CreatedBy
	a.UpdatedAt = r.s.now()
	cp := *a
	r.s.appointments[a.ID] = &cp
	return nil
}

func (r *appointmentRepoMem) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.appointments[id]
	if !ok {
		return ErrNotFound
	}
	if a.ExternalUID != nil {
		delete(r.s.byExternal, *a.ExternalUID)
	}
	delete(r.s.appointments, id)
	return nil
}

func (r *appointmentRepoMem) List(_ context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var items []*Appointment
	for _, a := range r.s.appointments {
		if f.Matches(a) {
			items = append(items, r.resolve(a))
		}
	}
	sortAppointments(items)
	total := len(items)
	return page(items, limit, offset), total, nil
}

func (r *appointmentRepoMem) CountStartingBetween(_ context.Context, from, to time.Time) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, a := range r.s.appointments {
		if a.Start != nil && !a.Start.Before(from) && a.Start.Before(to) {
			n++
		}
	}
	return n, nil
}

func (r *appointmentRepoMem) UpsertByExternalUID(_ context.Context, a *Appointment) (bool, error) {
	if a.ExternalUID == nil {
		return false, fmt.Errorf("upsert requires an external uid")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.byExternal[*a.ExternalUID]
	if !ok {
		r.insert(a)
		return true, nil
	}
	cur := r.s.appointments[id]
	cur.Title, cur.Start, cur.End = a.Title, a.Start, a.End
	cur.Location, cur.Notes = a.Location, a.Notes
	cur.UpdatedAt = r.s.now()
	a.ID, a.CreatedAt, a.UpdatedAt = cur.ID, cur.CreatedAt, cur.UpdatedAt
	return false, nil
}

// sortAppointments orders by start ascending, undated last, then by creation.
func sortAppointments(items []*Appointment) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch {
		case a.Start == nil && b.Start == nil:
		case a.Start == nil:
			return false
		case b.Start == nil:
			return true
		case !a.Start.Equal(*b.Start):
			return a.Start.Before(*b.Start)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
