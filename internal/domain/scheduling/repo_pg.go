package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carecal/carecal/internal/platform/db"
)

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// =========== Category Repository ===========

type categoryRepoPG struct{ pool *pgxpool.Pool }

func NewCategoryRepoPG(pool *pgxpool.Pool) CategoryRepository { return &categoryRepoPG{pool: pool} }

func (r *categoryRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const categoryCols = `id, label, color, icon, description, created_at, updated_at`

func (r *categoryRepoPG) scanCategory(row pgx.Row) (*Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.Label, &c.Color, &c.Icon, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *categoryRepoPG) Create(ctx context.Context, c *Category) error {
	c.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO category (id, label, color, icon, description)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		c.ID, c.Label, c.Color, c.Icon, c.Description).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *categoryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Category, error) {
	c, err := r.scanCategory(r.conn(ctx).QueryRow(ctx, `SELECT `+categoryCols+` FROM category WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (r *categoryRepoPG) List(ctx context.Context) ([]*Category, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+categoryCols+` FROM category ORDER BY label`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Category
	for rows.Next() {
		c, err := r.scanCategory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const patientCols = `id, firstname, lastname, birth_date, care_level, pronoun, email, phone,
	active, active_since, created_at, updated_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.BirthDate, &p.CareLevel, &p.Pronoun,
		&p.Email, &p.Phone, &p.Active, &p.ActiveSince, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, firstname, lastname, birth_date, care_level, pronoun, email, phone,
			active, active_since)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.BirthDate, p.CareLevel, p.Pronoun, p.Email, p.Phone,
		p.Active, p.ActiveSince).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (r *patientRepoPG) ListActive(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	total, err := r.CountActive(ctx)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patient
		WHERE active ORDER BY lastname, firstname LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *patientRepoPG) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient WHERE active`).Scan(&n)
	return n, err
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const apptSelect = `SELECT a.id, a.title, a.start_time, a.end_time, a.location, a.notes, a.status,
	a.category_id, a.patient_id, a.external_uid, a.created_by, a.created_at, a.updated_at,
	c.label, c.color, c.icon, c.description,
	p.firstname, p.lastname, p.care_level, p.pronoun
	FROM appointment a
	LEFT JOIN category c ON c.id = a.category_id
	LEFT JOIN patient p ON p.id = a.patient_id`

func (r *appointmentRepoPG) scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var catLabel, catColor, patFirst, patLast *string
	var cat CategoryRef
	var pat PatientRef
	err := row.Scan(&a.ID, &a.Title, &a.Start, &a.End, &a.Location, &a.Notes, &a.Status,
		&a.CategoryID, &a.PatientID, &a.ExternalUID, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt,
		&catLabel, &catColor, &cat.Icon, &cat.Description,
		&patFirst, &patLast, &pat.CareLevel, &pat.Pronoun)
	if err != nil {
		return nil, err
	}
	if a.CategoryID != nil && catLabel != nil {
		cat.ID, cat.Label = *a.CategoryID, *catLabel
		if catColor != nil {
			cat.Color = *catColor
		}
		a.Category = &cat
	}
	if a.PatientID != nil && patFirst != nil && patLast != nil {
		pat.ID, pat.FirstName, pat.LastName = *a.PatientID, *patFirst, *patLast
		a.Patient = &pat
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, title, start_time, end_time, location, notes, status,
			category_id, patient_id, external_uid, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		a.ID, a.Title, a.Start, a.End, a.Location, a.Notes, a.Status,
		a.CategoryID, a.PatientID, a.ExternalUID, a.CreatedBy).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := r.scanAppt(r.conn(ctx).QueryRow(ctx, apptSelect+` WHERE a.id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET title=$2, start_time=$3, end_time=$4, location=$5, notes=$6,
			status=$7, category_id=$8, patient_id=$9, updated_at=NOW()
		WHERE id = $1
		RETURNING external_uid, created_by, created_at, updated_at`,
		a.ID, a.Title, a.Start, a.End, a.Location, a.Notes, a.Status, a.CategoryID, a.PatientID,
	).Scan(&a.ExternalUID, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	return notFound(err)
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.CategoryID != nil {
		where += fmt.Sprintf(` AND a.category_id = $%d`, idx)
		args = append(args, *f.CategoryID)
		idx++
	}
	if f.PatientID != nil {
		where += fmt.Sprintf(` AND a.patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.From != nil {
		where += fmt.Sprintf(` AND a.start_time >= $%d`, idx)
		args = append(args, *f.From)
		idx++
	}
	if until := f.Until(); until != nil {
		where += fmt.Sprintf(` AND a.start_time <= $%d`, idx)
		args = append(args, *until)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment a`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := apptSelect + where + ` ORDER BY a.start_time ASC NULLS LAST, a.created_at ASC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
		args = append(args, limit, offset)
	}

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *appointmentRepoPG) CountStartingBetween(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointment WHERE start_time >= $1 AND start_time < $2`, from, to).Scan(&n)
	return n, err
}

func (r *appointmentRepoPG) UpsertByExternalUID(ctx context.Context, a *Appointment) (bool, error) {
	if a.ExternalUID == nil {
		return false, fmt.Errorf("upsert requires an external uid")
	}
	var created bool
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, title, start_time, end_time, location, notes, status,
			category_id, patient_id, external_uid, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (external_uid) DO UPDATE SET title=EXCLUDED.title,
			start_time=EXCLUDED.start_time, end_time=EXCLUDED.end_time,
			location=EXCLUDED.location, notes=EXCLUDED.notes, updated_at=NOW()
		RETURNING id, created_at, updated_at, (xmax = 0)`,
		uuid.New(), a.Title, a.Start, a.End, a.Location, a.Notes, a.Status,
		a.CategoryID, a.PatientID, a.ExternalUID, a.CreatedBy).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt, &created)
	return created, err
}
