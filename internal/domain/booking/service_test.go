package booking

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/carebook/carebook/internal/domain/availability"
	"github.com/carebook/carebook/internal/platform/apperr"
	"github.com/carebook/carebook/internal/platform/auth"
)

// -- Mock Directory --

type mockDirectory struct {
	doctors  map[uuid.UUID]uuid.UUID // user id -> doctor id
	patients map[uuid.UUID]uuid.UUID // user id -> patient id
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		doctors:  make(map[uuid.UUID]uuid.UUID),
		patients: make(map[uuid.UUID]uuid.UUID),
	}
}

func (m *mockDirectory) PatientIDForUser(_ context.Context, userID uuid.UUID) (uuid.UUID, error) {
	id, ok := m.patients[userID]
	if !ok {
		return uuid.Nil, apperr.NotFound("patient profile not found")
	}
	return id, nil
}

func (m *mockDirectory) PatientUserID(_ context.Context, patientID uuid.UUID) (uuid.UUID, error) {
	for u, p := range m.patients {
		if p == patientID {
			return u, nil
		}
	}
	return uuid.Nil, apperr.NotFound("patient %s not found", patientID)
}

func (m *mockDirectory) DoctorIDForUser(_ context.Context, userID uuid.UUID) (uuid.UUID, error) {
	id, ok := m.doctors[userID]
	if !ok {
		return uuid.Nil, apperr.NotFound("doctor profile not found")
	}
	return id, nil
}

func (m *mockDirectory) DoctorExists(_ context.Context, id uuid.UUID) error {
	for _, d := range m.doctors {
		if d == id {
			return nil
		}
	}
	return apperr.NotFound("doctor %s not found", id)
}

func (m *mockDirectory) userOfDoctor(id uuid.UUID) uuid.UUID {
	for u, d := range m.doctors {
		if d == id {
			return u
		}
	}
	return uuid.Nil
}

func (m *mockDirectory) userOfPatient(id uuid.UUID) uuid.UUID {
	for u, p := range m.patients {
		if p == id {
			return u
		}
	}
	return uuid.Nil
}

// -- Mock Repository --

// mockRepo rejects overlapping live appointments under a mutex, the way the
// exclusion constraint does in Postgres.
type mockRepo struct {
	mu           sync.Mutex
	dir          *mockDirectory
	rows         map[uuid.UUID]*Appointment
	beforeUpdate func(id uuid.UUID)
	listErr      error
}

func newMockRepo(dir *mockDirectory) *mockRepo {
	return &mockRepo{dir: dir, rows: make(map[uuid.UUID]*Appointment)}
}

func (m *mockRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.DoctorID == a.DoctorID && r.Status != StatusCanceled &&
			r.AppointmentDate.Before(a.AppointmentEnd) && a.AppointmentDate.Before(r.AppointmentEnd) {
			return &pgconn.PgError{Code: "23P01", ConstraintName: constraintOverlap}
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.rows[a.ID] = &cp
	return nil
}

func (m *mockRepo) view(a *Appointment) *AppointmentView {
	return &AppointmentView{
		Appointment:   *a,
		DoctorName:    "Dr Test",
		PatientName:   "Pat Test",
		DoctorUserID:  m.dir.userOfDoctor(a.DoctorID),
		PatientUserID: m.dir.userOfPatient(a.PatientID),
	}
}

func (m *mockRepo) Get(_ context.Context, id uuid.UUID) (*AppointmentView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return m.view(a), nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (time.Time, bool, error) {
	if m.beforeUpdate != nil {
		hook := m.beforeUpdate
		m.beforeUpdate = nil
		hook(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok || a.Status != from {
		return time.Time{}, false, nil
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	return a.UpdatedAt, true, nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.rows, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*AppointmentView, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*AppointmentView
	for _, a := range m.rows {
		if (f.DoctorID == uuid.Nil || a.DoctorID == f.DoctorID) &&
			(f.PatientID == uuid.Nil || a.PatientID == f.PatientID) &&
			(f.Status == "" || a.Status == f.Status) {
			all = append(all, m.view(a))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].AppointmentDate.Before(all[j].AppointmentDate) })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockRepo) BookedSpans(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]availability.Span, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	window := availability.Span{Start: from, End: to}
	var out []availability.Span
	for _, a := range m.rows {
		sp := availability.Span{Start: a.AppointmentDate, End: a.AppointmentEnd}
		if a.DoctorID == doctorID && a.Status != StatusCanceled && sp.Overlaps(window) {
			out = append(out, sp)
		}
	}
	return out, nil
}

// -- Availability stub --

// stubAvail accepts quarter-hour starts between 09:00 and 11:45 UTC, as if
// the doctor had republished on a shifted grid, and books half-hour slots.
type stubAvail struct{}

func (stubAvail) IsBookable(_ context.Context, _ uuid.UUID, instant time.Time) error {
	u := instant.UTC()
	if u.Hour() < 9 || u.Hour() > 11 || u.Minute()%15 != 0 || u.Second() != 0 {
		return apperr.Validation("%s is not within the doctor's published availability", u.Format("15:04"))
	}
	return nil
}

func (stubAvail) SlotLength() time.Duration { return 30 * time.Minute }

// -- Fixture --

var (
	fixedNow = time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)
	slot10   = time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc          *Service
	repo         *mockRepo
	dir          *mockDirectory
	doctorID     uuid.UUID
	doctorUser   uuid.UUID
	patientID    uuid.UUID
	patientUser  uuid.UUID
	otherPatient uuid.UUID
	otherPatUser uuid.UUID
	otherDocUser uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		dir:          newMockDirectory(),
		doctorID:     uuid.New(),
		doctorUser:   uuid.New(),
		patientID:    uuid.New(),
		patientUser:  uuid.New(),
		otherPatient: uuid.New(),
		otherPatUser: uuid.New(),
		otherDocUser: uuid.New(),
	}
	f.dir.doctors[f.doctorUser] = f.doctorID
	f.dir.doctors[f.otherDocUser] = uuid.New()
	f.dir.patients[f.patientUser] = f.patientID
	f.dir.patients[f.otherPatUser] = f.otherPatient
	f.repo = newMockRepo(f.dir)
	f.svc = NewService(f.repo, f.dir, stubAvail{})
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) asPatient() context.Context {
	return auth.WithIdentity(context.Background(), f.patientUser.String(), auth.RolePatient)
}

func (f *fixture) asOtherPatient() context.Context {
	return auth.WithIdentity(context.Background(), f.otherPatUser.String(), auth.RolePatient)
}

func (f *fixture) asDoctor() context.Context {
	return auth.WithIdentity(context.Background(), f.doctorUser.String(), auth.RoleDoctor)
}

func (f *fixture) asOtherDoctor() context.Context {
	return auth.WithIdentity(context.Background(), f.otherDocUser.String(), auth.RoleDoctor)
}

func asAdmin() context.Context {
	return auth.WithIdentity(context.Background(), auth.DevUserID, auth.RoleAdmin)
}

func at(t time.Time) *time.Time { return &t }

func (f *fixture) book(t *testing.T, when time.Time) *Appointment {
	t.Helper()
	a, err := f.svc.Book(f.asPatient(), BookInput{PatientID: f.patientID, DoctorID: f.doctorID, AppointmentDate: at(when)})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	return a
}

func expectKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := apperr.KindOf(err); got != kind {
		t.Fatalf("expected %s, got %s (%v)", kind, got, err)
	}
}

// -- Booking Writer --

func TestService_Book(t *testing.T) {
	f := newFixture()
	a, err := f.svc.Book(f.asPatient(), BookInput{
		PatientID: f.patientID, DoctorID: f.doctorID, AppointmentDate: at(slot10),
		AppointmentType: "follow-up", Notes: "  knee pain ",
	})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if a.ID == uuid.Nil {
		t.Error("expected appointment id")
	}
	if a.Status != StatusScheduled {
		t.Errorf("expected Scheduled, got %s", a.Status)
	}
	if a.AppointmentType != TypeFollowUp {
		t.Errorf("expected Follow-up, got %s", a.AppointmentType)
	}
	if a.Notes != "knee pain" {
		t.Errorf("expected trimmed notes, got %q", a.Notes)
	}
}

func TestService_Book_ResolvesUserID(t *testing.T) {
	f := newFixture()
	a, err := f.svc.Book(f.asPatient(), BookInput{UserID: f.patientUser, DoctorID: f.doctorID, AppointmentDate: at(slot10)})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if a.PatientID != f.patientID {
		t.Errorf("expected patient %s, got %s", f.patientID, a.PatientID)
	}
	if a.AppointmentType != TypeConsultation {
		t.Errorf("expected default Consultation, got %s", a.AppointmentType)
	}

	// a user without a patient profile is not auto-enrolled
	_, err = f.svc.Book(f.asDoctor(), BookInput{UserID: uuid.New(), DoctorID: f.doctorID, AppointmentDate: at(slot10.Add(time.Hour))})
	expectKind(t, err, apperr.KindNotFound)
}

func TestService_Book_Validation(t *testing.T) {
	f := newFixture()
	cases := map[string]BookInput{
		"no doctor":     {PatientID: f.patientID, AppointmentDate: at(slot10)},
		"no date":       {PatientID: f.patientID, DoctorID: f.doctorID},
		"no patient":    {DoctorID: f.doctorID, AppointmentDate: at(slot10)},
		"bad type":      {PatientID: f.patientID, DoctorID: f.doctorID, AppointmentDate: at(slot10), AppointmentType: "Surgery"},
		"past":          {PatientID: f.patientID, DoctorID: f.doctorID, AppointmentDate: at(fixedNow.Add(-time.Hour))},
		"off grid":      {PatientID: f.patientID, DoctorID: f.doctorID, AppointmentDate: at(slot10.Add(10 * time.Minute))},
		"outside hours": {PatientID: f.patientID, DoctorID: f.doctorID, AppointmentDate: at(slot10.Add(5 * time.Hour))},
	}
	for name, in := range cases {
		_, err := f.svc.Book(f.asPatient(), in)
		if !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}
	if len(f.repo.rows) != 0 {
		t.Error("rejected bookings must not write")
	}
}

func TestService_Book_NotFound(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Book(asAdmin(), BookInput{PatientID: uuid.New(), DoctorID: f.doctorID, AppointmentDate: at(slot10)})
	expectKind(t, err, apperr.KindNotFound)

	_, err = f.svc.Book(asAdmin(), BookInput{PatientID: f.patientID, DoctorID: uuid.New(), AppointmentDate: at(slot10)})
	expectKind(t, err, apperr.KindNotFound)
}

func TestService_Book_Authorization(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Book(f.asOtherPatient(), BookInput{PatientID: f.patientID, DoctorID: f.doctorID, AppointmentDate: at(slot10)})
	expectKind(t, err, apperr.KindForbidden)

	_, err = f.svc.Book(context.Background(), BookInput{PatientID: f.patientID, DoctorID: f.doctorID, AppointmentDate: at(slot10)})
	expectKind(t, err, apperr.KindUnauthorized)

	if _, err := f.svc.Book(f.asOtherDoctor(), BookInput{PatientID: f.patientID, DoctorID: f.doctorID, AppointmentDate: at(slot10)}); err != nil {
		t.Errorf("doctor booking for a patient: %v", err)
	}
}

func TestService_Book_DoubleBookingConflict(t *testing.T) {
	f := newFixture()
	f.book(t, slot10)

	_, err := f.svc.Book(f.asOtherPatient(), BookInput{PatientID: f.otherPatient, DoctorID: f.doctorID, AppointmentDate: at(slot10)})
	expectKind(t, err, apperr.KindConflict)

	// the same instant expressed in another zone is the same slot
	_, err = f.svc.Book(f.asOtherPatient(), BookInput{
		PatientID: f.otherPatient, DoctorID: f.doctorID,
		AppointmentDate: at(slot10.In(time.FixedZone("EST", -5*3600))),
	})
	expectKind(t, err, apperr.KindConflict)
}

func TestService_Book_OverlapConflict(t *testing.T) {
	f := newFixture()
	a := f.book(t, slot10)
	if want := slot10.Add(30 * time.Minute); !a.AppointmentEnd.Equal(want) {
		t.Errorf("expected the appointment to end at %v, got %v", want, a.AppointmentEnd)
	}

	// 09:45 and 10:15 start on the grid but run into 10:00-10:30
	for _, when := range []time.Time{slot10.Add(-15 * time.Minute), slot10.Add(15 * time.Minute)} {
		_, err := f.svc.Book(f.asOtherPatient(), BookInput{PatientID: f.otherPatient, DoctorID: f.doctorID, AppointmentDate: at(when)})
		expectKind(t, err, apperr.KindConflict)
	}

	// touching spans are fine
	for _, when := range []time.Time{slot10.Add(-30 * time.Minute), slot10.Add(30 * time.Minute)} {
		if _, err := f.svc.Book(f.asOtherPatient(), BookInput{PatientID: f.otherPatient, DoctorID: f.doctorID, AppointmentDate: at(when)}); err != nil {
			t.Errorf("%s: %v", when.Format("15:04"), err)
		}
	}
}

func TestService_Book_ConcurrentSameSlot(t *testing.T) {
	for round := 0; round < 20; round++ {
		f := newFixture()
		inputs := []struct {
			ctx context.Context
			in  BookInput
		}{
			{f.asPatient(), BookInput{PatientID: f.patientID, DoctorID: f.doctorID, AppointmentDate: at(slot10)}},
			{f.asOtherPatient(), BookInput{PatientID: f.otherPatient, DoctorID: f.doctorID, AppointmentDate: at(slot10)}},
		}

		start := make(chan struct{})
		errs := make([]error, len(inputs))
		var wg sync.WaitGroup
		for i, in := range inputs {
			wg.Add(1)
			go func(i int, ctx context.Context, in BookInput) {
				defer wg.Done()
				<-start
				_, errs[i] = f.svc.Book(ctx, in)
			}(i, in.ctx, in.in)
		}
		close(start)
		wg.Wait()

		var ok, conflicts int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case apperr.Is(err, apperr.KindConflict):
				conflicts++
			default:
				t.Fatalf("round %d: unexpected error %v", round, err)
			}
		}
		if ok != 1 || conflicts != 1 {
			t.Fatalf("round %d: expected one success and one conflict, got %d and %d", round, ok, conflicts)
		}
	}
}

func TestService_Book_CanceledSlotIsFree(t *testing.T) {
	f := newFixture()
	a := f.book(t, slot10)
	if _, err := f.svc.Cancel(f.asPatient(), a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Book(f.asOtherPatient(), BookInput{PatientID: f.otherPatient, DoctorID: f.doctorID, AppointmentDate: at(slot10)}); err != nil {
		t.Errorf("slot should be free after cancel: %v", err)
	}
}

func TestService_Book_StorageError(t *testing.T) {
	f := newFixture()
	f.svc = NewService(failingCreateRepo{f.repo}, f.dir, stubAvail{})
	f.svc.now = func() time.Time { return fixedNow }

	_, err := f.svc.Book(f.asPatient(), BookInput{PatientID: f.patientID, DoctorID: f.doctorID, AppointmentDate: at(slot10)})
	expectKind(t, err, apperr.KindStorage)

	var ae *apperr.Error
	if errors.As(err, &ae) && ae.PublicMessage() != apperr.StorageMessage {
		t.Errorf("storage failures must not leak driver text, got %q", ae.PublicMessage())
	}
}

type failingCreateRepo struct{ *mockRepo }

func (failingCreateRepo) Create(context.Context, *Appointment) error {
	return errors.New(`pq: relation "appointments" does not exist`)
}

// -- Status Transition Gate --

func TestService_Transition_Lifecycle(t *testing.T) {
	f := newFixture()
	a := f.book(t, slot10)

	v, err := f.svc.Accept(f.asDoctor(), a.ID)
	if err != nil {
		t.Fatalf("Accept on Scheduled: %v", err)
	}
	if v.Status != StatusScheduled {
		t.Errorf("expected Scheduled, got %s", v.Status)
	}

	v, err = f.svc.Complete(f.asDoctor(), a.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if v.Status != StatusCompleted {
		t.Errorf("expected Completed, got %s", v.Status)
	}

	// idempotent
	v, err = f.svc.Complete(f.asDoctor(), a.ID)
	if err != nil || v.Status != StatusCompleted {
		t.Errorf("repeat Complete: %v, %v", v, err)
	}

	_, err = f.svc.Cancel(f.asDoctor(), a.ID)
	expectKind(t, err, apperr.KindInvalidTransition)
}

func TestService_Transition_CanceledCannotComplete(t *testing.T) {
	f := newFixture()
	a := f.book(t, slot10)
	if _, err := f.svc.Cancel(f.asPatient(), a.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	_, err := f.svc.Complete(f.asDoctor(), a.ID)
	expectKind(t, err, apperr.KindInvalidTransition)

	_, err = f.svc.Transition(asAdmin(), a.ID, StatusScheduled)
	expectKind(t, err, apperr.KindInvalidTransition)

	v, err := f.svc.Get(asAdmin(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if v.Status != StatusCanceled {
		t.Errorf("status changed to %s", v.Status)
	}

	// cancel again is a no-op
	if _, err := f.svc.Cancel(f.asPatient(), a.ID); err != nil {
		t.Errorf("repeat Cancel: %v", err)
	}
}

func TestService_Transition_LostRace(t *testing.T) {
	f := newFixture()
	a := f.book(t, slot10)

	// a concurrent cancel lands between the read and the compare-and-set
	f.repo.beforeUpdate = func(id uuid.UUID) {
		f.repo.mu.Lock()
		f.repo.rows[id].Status = StatusCanceled
		f.repo.mu.Unlock()
	}
	_, err := f.svc.Complete(f.asDoctor(), a.ID)
	expectKind(t, err, apperr.KindInvalidTransition)

	v, _ := f.svc.Get(asAdmin(), a.ID)
	if v.Status != StatusCanceled {
		t.Errorf("expected the committed cancel to win, got %s", v.Status)
	}
}

func TestService_Transition_Authorization(t *testing.T) {
	f := newFixture()
	a := f.book(t, slot10)

	_, err := f.svc.Complete(f.asPatient(), a.ID)
	expectKind(t, err, apperr.KindForbidden)

	_, err = f.svc.Cancel(f.asOtherPatient(), a.ID)
	expectKind(t, err, apperr.KindForbidden)

	_, err = f.svc.Complete(f.asOtherDoctor(), a.ID)
	expectKind(t, err, apperr.KindForbidden)

	_, err = f.svc.Cancel(context.Background(), a.ID)
	expectKind(t, err, apperr.KindUnauthorized)

	_, err = f.svc.Cancel(f.asPatient(), uuid.New())
	expectKind(t, err, apperr.KindNotFound)
}

func TestNextStatus(t *testing.T) {
	tests := []struct {
		from, to Status
		changed  bool
		kind     apperr.Kind
		ok       bool
	}{
		{StatusScheduled, StatusScheduled, false, 0, true},
		{StatusScheduled, StatusCompleted, true, 0, true},
		{StatusScheduled, StatusCanceled, true, 0, true},
		{StatusCompleted, StatusCompleted, false, 0, true},
		{StatusCanceled, StatusCanceled, false, 0, true},
		{StatusCompleted, StatusCanceled, false, apperr.KindInvalidTransition, false},
		{StatusCompleted, StatusScheduled, false, apperr.KindInvalidTransition, false},
		{StatusCanceled, StatusCompleted, false, apperr.KindInvalidTransition, false},
		{StatusCanceled, StatusScheduled, false, apperr.KindInvalidTransition, false},
		{StatusScheduled, Status("pending"), false, apperr.KindValidation, false},
	}
	for _, tt := range tests {
		changed, err := nextStatus(tt.from, tt.to)
		if tt.ok {
			if err != nil || changed != tt.changed {
				t.Errorf("%s -> %s: changed=%v err=%v", tt.from, tt.to, changed, err)
			}
			continue
		}
		if !apperr.Is(err, tt.kind) {
			t.Errorf("%s -> %s: expected %s, got %v", tt.from, tt.to, tt.kind, err)
		}
	}
}

// -- Read Projections --

func TestService_Get_Authorization(t *testing.T) {
	f := newFixture()
	a := f.book(t, slot10)

	for name, ctx := range map[string]context.Context{
		"patient": f.asPatient(), "doctor": f.asDoctor(), "admin": asAdmin(),
	} {
		v, err := f.svc.Get(ctx, a.ID)
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if v.DoctorName == "" || v.PatientName == "" {
			t.Errorf("%s: expected enriched view, got %+v", name, v)
		}
	}

	_, err := f.svc.Get(f.asOtherPatient(), a.ID)
	expectKind(t, err, apperr.KindForbidden)
}

func TestService_ListProjections(t *testing.T) {
	f := newFixture()
	f.book(t, slot10)
	f.book(t, slot10.Add(30*time.Minute))
	other, err := f.svc.Book(f.asOtherPatient(), BookInput{PatientID: f.otherPatient, DoctorID: f.doctorID, AppointmentDate: at(slot10.Add(time.Hour))})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Cancel(f.asOtherPatient(), other.ID); err != nil {
		t.Fatal(err)
	}

	items, total, err := f.svc.ListByDoctor(f.asDoctor(), f.doctorID, "", 10, 0)
	if err != nil || total != 3 || len(items) != 3 {
		t.Fatalf("ListByDoctor: %d items, total %d, err %v", len(items), total, err)
	}
	items, total, _ = f.svc.ListByDoctor(f.asDoctor(), f.doctorID, StatusCanceled, 10, 0)
	if total != 1 || items[0].ID != other.ID {
		t.Errorf("status filter: got %d", total)
	}

	items, total, err = f.svc.ListByPatientUser(f.asPatient(), f.patientUser, "", 10, 0)
	if err != nil || total != 2 {
		t.Fatalf("ListByPatientUser: total %d, err %v", total, err)
	}
	for _, v := range items {
		if v.PatientID != f.patientID {
			t.Errorf("foreign appointment in patient list: %+v", v)
		}
	}

	_, total, err = f.svc.List(asAdmin(), "", 10, 0)
	if err != nil || total != 3 {
		t.Errorf("List: total %d, err %v", total, err)
	}
}

func TestService_ListProjections_EmptyAndErrors(t *testing.T) {
	f := newFixture()
	items, total, err := f.svc.ListByDoctor(f.asDoctor(), f.doctorID, "", 10, 0)
	if err != nil {
		t.Fatalf("empty list must not error: %v", err)
	}
	if items == nil || total != 0 {
		t.Errorf("expected empty non-nil list, got %#v", items)
	}

	f.repo.listErr = errors.New("connection refused")
	_, _, err = f.svc.ListByDoctor(f.asDoctor(), f.doctorID, "", 10, 0)
	expectKind(t, err, apperr.KindStorage)
}

func TestService_ListProjections_Authorization(t *testing.T) {
	f := newFixture()

	_, _, err := f.svc.List(f.asDoctor(), "", 10, 0)
	expectKind(t, err, apperr.KindForbidden)

	_, _, err = f.svc.ListByDoctor(f.asOtherDoctor(), f.doctorID, "", 10, 0)
	expectKind(t, err, apperr.KindForbidden)

	_, _, err = f.svc.ListByDoctor(f.asPatient(), f.doctorID, "", 10, 0)
	expectKind(t, err, apperr.KindForbidden)

	_, _, err = f.svc.ListByDoctor(asAdmin(), uuid.New(), "", 10, 0)
	expectKind(t, err, apperr.KindNotFound)

	_, _, err = f.svc.ListByPatientUser(f.asOtherPatient(), f.patientUser, "", 10, 0)
	expectKind(t, err, apperr.KindForbidden)

	_, _, err = f.svc.ListByPatientUser(asAdmin(), uuid.New(), "", 10, 0)
	expectKind(t, err, apperr.KindNotFound)
}

// -- Administrative cleanup --

func TestService_Delete(t *testing.T) {
	f := newFixture()
	a := f.book(t, slot10)

	expectKind(t, f.svc.Delete(f.asDoctor(), a.ID), apperr.KindForbidden)

	if err := f.svc.Delete(asAdmin(), a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, err := f.svc.Get(asAdmin(), a.ID)
	expectKind(t, err, apperr.KindNotFound)

	expectKind(t, f.svc.Delete(asAdmin(), a.ID), apperr.KindNotFound)
}
