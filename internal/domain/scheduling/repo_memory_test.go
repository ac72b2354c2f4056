package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryStore_CategoryCopies(t *testing.T) {
	store := NewMemoryStore()
	repo := store.Categories()
	ctx := context.Background()

	c := &Category{Label: "Therapy", Color: "#00ff00"}
	if err := repo.Create(ctx, c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.ID == uuid.Nil {
		t.Fatal("expected id to be assigned")
	}

	got, err := repo.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	got.Label = "changed"
	again, _ := repo.GetByID(ctx, c.ID)
	if again.Label != "Therapy" {
		t.Error("mutating a read result changed the store")
	}

	if _, err := repo.GetByID(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ListActivePatients(t *testing.T) {
	store := NewMemoryStore()
	repo := store.Patients()
	ctx := context.Background()

	for _, p := range []*Patient{
		{FirstName: "Zoe", LastName: "Brown", Active: true},
		{FirstName: "Adam", LastName: "Brown", Active: true},
		{FirstName: "Eve", LastName: "Adams", Active: true},
		{FirstName: "Old", LastName: "Aaron", Active: false},
	} {
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	items, total, err := repo.ListActive(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if total != 3 {
		t.Errorf("expected total 3, got %d", total)
	}
	if len(items) != 2 || items[0].LastName != "Adams" || items[1].FirstName != "Adam" {
		t.Errorf("unexpected order: %+v", items)
	}

	n, _ := repo.CountActive(ctx)
	if n != 3 {
		t.Errorf("expected 3 active, got %d", n)
	}
}

func TestMemoryStore_AppointmentListOrderAndPaging(t *testing.T) {
	store := NewMemoryStore()
	repo := store.Appointments()
	ctx := context.Background()

	for _, a := range []*Appointment{
		{Title: "late", Start: at(22, 15, 0)},
		{Title: "undated"},
		{Title: "early", Start: at(20, 8, 0)},
		{Title: "middle", Start: at(21, 9, 0)},
	} {
		if err := repo.Create(ctx, a); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	all, total, err := repo.List(ctx, Filter{}, 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 4 {
		t.Errorf("expected total 4, got %d", total)
	}
	want := []string{"early", "middle", "late", "undated"}
	for i, a := range all {
		if a.Title != want[i] {
			t.Errorf("position %d: got %q, want %q", i, a.Title, want[i])
		}
	}

	pageTwo, _, _ := repo.List(ctx, Filter{}, 2, 2)
	if len(pageTwo) != 2 || pageTwo[0].Title != "late" {
		t.Errorf("unexpected second page: %+v", pageTwo)
	}
	if beyond, _, _ := repo.List(ctx, Filter{}, 2, 10); len(beyond) != 0 {
		t.Errorf("expected empty page past the end, got %d", len(beyond))
	}
}

func TestMemoryStore_AppointmentResolvesRefs(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	cat := &Category{Label: "Nursing", Color: "#123456"}
	store.Categories().Create(ctx, cat)
	pat := &Patient{FirstName: "Ada", LastName: "Lovelace", Active: true}
	store.Patients().Create(ctx, pat)

	a := &Appointment{Title: "Visit", Start: at(20, 9, 0), CategoryID: &cat.ID, PatientID: &pat.ID}
	store.Appointments().Create(ctx, a)

	got, err := store.Appointments().GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Category == nil || got.Category.Color != "#123456" {
		t.Errorf("expected category ref, got %+v", got.Category)
	}
	if got.Patient == nil || got.Patient.FullName() != "Ada Lovelace" {
		t.Errorf("expected patient ref, got %+v", got.Patient)
	}
}

func TestMemoryStore_AppointmentUpdateKeepsProvenance(t *testing.T) {
	store := NewMemoryStore()
	created := time.Date(2026, time.October, 1, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return created }
	repo := store.Appointments()
	ctx := context.Background()

	uid := "feed#visit-1"
	by := "planner-1"
	a := &Appointment{Title: "Visit", Start: at(20, 9, 0), ExternalUID: &uid, CreatedBy: &by}
	repo.Create(ctx, a)

	store.now = func() time.Time { return created.Add(time.Hour) }
	upd := &Appointment{ID: a.ID, Title: "Visit (moved)", Start: at(20, 10, 0)}
	if err := repo.Update(ctx, upd); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := repo.GetByID(ctx, a.ID)
	if got.Title != "Visit (moved)" || !got.CreatedAt.Equal(created) {
		t.Errorf("unexpected update result: %+v", got)
	}
	if got.ExternalUID == nil || *got.ExternalUID != uid || got.CreatedBy == nil || *got.CreatedBy != by {
		t.Errorf("expected provenance to survive update: %+v", got)
	}

	if err := repo.Update(ctx, &Appointment{ID: uuid.New()}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_AppointmentDelete(t *testing.T) {
	store := NewMemoryStore()
	repo := store.Appointments()
	ctx := context.Background()

	uid := "feed#visit-1"
	a := &Appointment{Title: "Visit", Start: at(20, 9, 0), ExternalUID: &uid}
	repo.Create(ctx, a)

	if err := repo.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}

	again := &Appointment{Title: "Visit", Start: at(20, 9, 0), ExternalUID: &uid}
	if err := repo.Create(ctx, again); err != nil {
		t.Errorf("expected external uid to be free after delete: %v", err)
	}
}

func TestMemoryStore_UpsertByExternalUID(t *testing.T) {
	store := NewMemoryStore()
	repo := store.Appointments()
	ctx := context.Background()

	uid := "feed#visit-1"
	created, err := repo.UpsertByExternalUID(ctx, &Appointment{Title: "Visit", Start: at(20, 9, 0), ExternalUID: &uid})
	if err != nil || !created {
		t.Fatalf("expected insert, got created=%v err=%v", created, err)
	}

	upd := &Appointment{Title: "Visit (moved)", Start: at(20, 11, 0), ExternalUID: &uid}
	created, err = repo.UpsertByExternalUID(ctx, upd)
	if err != nil || created {
		t.Fatalf("expected update, got created=%v err=%v", created, err)
	}

	all, total, _ := repo.List(ctx, Filter{}, 0, 0)
	if total != 1 {
		t.Fatalf("expected a single appointment, got %d", total)
	}
	if all[0].Title != "Visit (moved)" || all[0].ID != upd.ID {
		t.Errorf("unexpected upsert result: %+v", all[0])
	}

	if _, err := repo.UpsertByExternalUID(ctx, &Appointment{Title: "x"}); err == nil {
		t.Error("expected error without external uid")
	}
}

func TestMemoryStore_CountStartingBetween(t *testing.T) {
	store := NewMemoryStore()
	repo := store.Appointments()
	ctx := context.Background()
	for _, s := range []*time.Time{at(20, 0, 0), at(20, 23, 59), at(21, 0, 0), nil} {
		repo.Create(ctx, &Appointment{Title: "x", Start: s})
	}

	n, err := repo.CountStartingBetween(ctx, *at(20, 0, 0), *at(21, 0, 0))
	if err != nil {
		t.Fatalf("CountStartingBetween: %v", err)
	}
	if n != 2 {
		t.Errorf("expected half-open range to count 2, got %d", n)
	}
}
