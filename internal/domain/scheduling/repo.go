package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when no row matches.
var ErrNotFound = errors.New("not found")

type CategoryRepository interface {
	Create(ctx context.Context, c *Category) error
	GetByID(ctx context.Context, id uuid.UUID) (*Category, error)
	List(ctx context.Context) ([]*Category, error)
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	// ListActive returns active patients ordered by last name.
	ListActive(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	CountActive(ctx context.Context) (int, error)
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	// List returns matches ordered by start ascending with Category and
	// Patient resolved. A non-positive limit returns every match.
	List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error)
	// CountStartingBetween counts appointments with from <= start < to.
	CountStartingBetween(ctx context.Context, from, to time.Time) (int, error)
	// UpsertByExternalUID inserts a, or updates the row carrying the same
	// ExternalUID. It reports whether a row was created.
	UpsertByExternalUID(ctx context.Context, a *Appointment) (bool, error)
}
