package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carebook/carebook/internal/platform/db"
	"github.com/carebook/carebook/internal/platform/db/dbtest"
)

func newAppointment(patientID, doctorID uuid.UUID, when time.Time, minutes int) *Appointment {
	return &Appointment{
		PatientID: patientID, DoctorID: doctorID,
		AppointmentDate: when, AppointmentEnd: when.Add(time.Duration(minutes) * time.Minute),
		Status: StatusScheduled, AppointmentType: TypeConsultation,
	}
}

func TestRepoPG_SlotUniqueness(t *testing.T) {
	pool := dbtest.Open(t)
	ctx := context.Background()
	repo := NewRepoPG(pool)
	doctorID := dbtest.SeedDoctor(t, pool)
	patients := []struct{ phone string }{{"+16502530000"}, {"+12024561111"}}

	when := time.Date(2030, time.January, 7, 9, 0, 0, 0, time.UTC)
	errs := make([]error, len(patients))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, p := range patients {
		patientID := dbtest.SeedPatient(t, pool, p.phone)
		wg.Add(1)
		go func(i int, a *Appointment) {
			defer wg.Done()
			<-start
			errs[i] = repo.Create(ctx, a)
		}(i, newAppointment(patientID, doctorID, when, 30))
	}
	close(start)
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case db.IsExclusionViolation(err, constraintOverlap):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != 1 {
		t.Fatalf("expected one insert and one overlap violation, got %d and %d", ok, dup)
	}

	booked, err := repo.BookedSpans(ctx, doctorID, when.Add(-time.Hour), when.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(booked) != 1 || !booked[0].Start.Equal(when) || !booked[0].End.Equal(when.Add(30*time.Minute)) {
		t.Errorf("BookedSpans = %v", booked)
	}
}

func TestRepoPG_OverlappingWindowsExcluded(t *testing.T) {
	pool := dbtest.Open(t)
	ctx := context.Background()
	repo := NewRepoPG(pool)
	doctorID := dbtest.SeedDoctor(t, pool)
	patientID := dbtest.SeedPatient(t, pool, "+16502530000")

	day := time.Date(2030, time.January, 7, 0, 0, 0, 0, time.UTC)
	booked := newAppointment(patientID, doctorID, day.Add(9*time.Hour+30*time.Minute), 30)
	if err := repo.Create(ctx, booked); err != nil {
		t.Fatalf("book 09:30: %v", err)
	}

	// a grid shifted to 09:15 would offer 09:15-09:45
	shifted := newAppointment(patientID, doctorID, day.Add(9*time.Hour+15*time.Minute), 30)
	if err := repo.Create(ctx, shifted); !db.IsExclusionViolation(err, constraintOverlap) {
		t.Fatalf("09:15: expected overlap violation, got %v", err)
	}

	touching := newAppointment(patientID, doctorID, day.Add(10*time.Hour), 30)
	if err := repo.Create(ctx, touching); err != nil {
		t.Fatalf("10:00 touches 09:30-10:00 and must be accepted: %v", err)
	}

	other := dbtest.SeedDoctor(t, pool)
	if err := repo.Create(ctx, newAppointment(patientID, other, day.Add(9*time.Hour+15*time.Minute), 30)); err != nil {
		t.Fatalf("another doctor's calendar is independent: %v", err)
	}

	spans, err := repo.BookedSpans(ctx, doctorID, day.Add(9*time.Hour+45*time.Minute), day.Add(11*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(spans) != 2 {
		t.Errorf("expected the spans overlapping 09:45-11:00, got %v", spans)
	}

	if _, ok, err := repo.UpdateStatus(ctx, booked.ID, StatusScheduled, StatusCanceled); err != nil || !ok {
		t.Fatalf("cancel: ok=%v err=%v", ok, err)
	}
	if err := repo.Create(ctx, shifted); err != nil {
		t.Errorf("canceling 09:30 frees 09:15: %v", err)
	}
}

func TestRepoPG_StatusCompareAndSet(t *testing.T) {
	pool := dbtest.Open(t)
	ctx := context.Background()
	repo := NewRepoPG(pool)
	doctorID := dbtest.SeedDoctor(t, pool)
	patientID := dbtest.SeedPatient(t, pool, "+16502530000")

	when := time.Date(2030, time.January, 7, 9, 0, 0, 0, time.UTC)
	a := newAppointment(patientID, doctorID, when, 30)
	a.AppointmentType, a.Notes = TypeFollowUp, "x"
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, ok, err := repo.UpdateStatus(ctx, a.ID, StatusScheduled, StatusCanceled); err != nil || !ok {
		t.Fatalf("cancel: ok=%v err=%v", ok, err)
	}
	if _, ok, err := repo.UpdateStatus(ctx, a.ID, StatusScheduled, StatusCompleted); err != nil || ok {
		t.Fatalf("stale compare-and-set must not apply: ok=%v err=%v", ok, err)
	}

	v, err := repo.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v.Status != StatusCanceled || v.Department != "General" || v.PatientPhone != "+16502530000" {
		t.Errorf("unexpected view: %+v", v)
	}
	if !v.AppointmentEnd.Equal(when.Add(30 * time.Minute)) {
		t.Errorf("appointment_end = %v", v.AppointmentEnd)
	}

	// a canceled appointment frees the slot
	again := newAppointment(patientID, doctorID, when, 30)
	if err := repo.Create(ctx, again); err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}

	items, total, err := repo.List(ctx, Filter{DoctorID: doctorID, Status: StatusScheduled}, 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ID != again.ID {
		t.Errorf("List = %d items (total %d)", len(items), total)
	}

	if err := repo.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(ctx, a.ID); !db.IsNoRows(err) {
		t.Errorf("second delete: expected no rows, got %v", err)
	}
}
