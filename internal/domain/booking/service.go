package booking

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/platform/apperr"
	"github.com/carebook/carebook/internal/platform/auth"
	"github.com/carebook/carebook/internal/platform/db"
)

const constraintOverlap = "appointments_doctor_no_overlap"

// casAttempts bounds how often a transition re-reads after losing a
// compare-and-set race.
const casAttempts = 3

// Directory resolves patients and doctors. Satisfied by identity.Service.
type Directory interface {
	PatientIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
	PatientUserID(ctx context.Context, patientID uuid.UUID) (uuid.UUID, error)
	DoctorIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
	DoctorExists(ctx context.Context, id uuid.UUID) error
}

// AvailabilityChecker confirms an instant is a published slot start and says
// how long a booked slot lasts. Satisfied by availability.Service.
type AvailabilityChecker interface {
	IsBookable(ctx context.Context, doctorID uuid.UUID, instant time.Time) error
	SlotLength() time.Duration
}

type Service struct {
	repo  Repository
	dir   Directory
	avail AvailabilityChecker
	now   func() time.Time
}

func NewService(repo Repository, dir Directory, avail AvailabilityChecker) *Service {
	return &Service{repo: repo, dir: dir, avail: avail, now: time.Now}
}

// -- Booking Writer --

// BookInput carries a booking request. PatientID may be omitted in favour of
// UserID, which must own an existing patient profile.
type BookInput struct {
	PatientID       uuid.UUID  `json:"patient_id"`
	UserID          uuid.UUID  `json:"user_id"`
	DoctorID        uuid.UUID  `json:"doctor_id"`
	AppointmentDate *time.Time `json:"appointment_date"`
	AppointmentType string     `json:"appointment_type"`
	Notes           string     `json:"notes"`
}

// Book persists a Scheduled appointment holding one slot length from the
// instant. The instant must be a published slot start, and the appointment
// may not overlap a live one of the same doctor; the loser of a race, or a
// booking on a grid shifted by a republish, gets Conflict.
func (s *Service) Book(ctx context.Context, in BookInput) (*Appointment, error) {
	if in.DoctorID == uuid.Nil {
		return nil, apperr.Validation("doctor_id is required")
	}
	if in.AppointmentDate == nil || in.AppointmentDate.IsZero() {
		return nil, apperr.Validation("appointment_date is required")
	}
	if in.PatientID == uuid.Nil && in.UserID == uuid.Nil {
		return nil, apperr.Validation("patient_id or user_id is required")
	}
	typ, err := ParseAppointmentType(in.AppointmentType)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	notes := strings.TrimSpace(in.Notes)
	if len(notes) > maxNotesLength {
		return nil, apperr.Validation("notes must be at most %d characters", maxNotesLength)
	}
	at := in.AppointmentDate.UTC()
	if !at.After(s.now()) {
		return nil, apperr.Validation("appointment_date must be in the future")
	}

	patientID := in.PatientID
	if patientID == uuid.Nil {
		if patientID, err = s.dir.PatientIDForUser(ctx, in.UserID); err != nil {
			return nil, err
		}
	}
	if err := s.authorizeBooking(ctx, patientID); err != nil {
		return nil, err
	}
	if err := s.dir.DoctorExists(ctx, in.DoctorID); err != nil {
		return nil, err
	}
	if err := s.avail.IsBookable(ctx, in.DoctorID, at); err != nil {
		return nil, err
	}

	a := &Appointment{
		PatientID:       patientID,
		DoctorID:        in.DoctorID,
		AppointmentDate: at,
		AppointmentEnd:  at.Add(s.avail.SlotLength()),
		Status:          StatusScheduled,
		AppointmentType: typ,
		Notes:           notes,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		switch {
		case db.IsExclusionViolation(err, constraintOverlap):
			return nil, apperr.Conflict("doctor already has an appointment overlapping %s", at.Format(time.RFC3339))
		case db.IsForeignKeyViolation(err):
			return nil, apperr.NotFound("doctor or patient no longer exists")
		}
		return nil, apperr.Storage("create appointment", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("appointment_id", a.ID.String()).
		Str("doctor_id", a.DoctorID.String()).
		Time("appointment_date", a.AppointmentDate).
		Msg("appointment booked")
	return a, nil
}

// authorizeBooking lets doctors and admins book for anyone and patients only
// for themselves. It also confirms the patient exists.
func (s *Service) authorizeBooking(ctx context.Context, patientID uuid.UUID) error {
	owner, err := s.dir.PatientUserID(ctx, patientID)
	if err != nil {
		return err
	}
	if auth.HasRole(ctx, auth.RoleDoctor) {
		return nil
	}
	callerID, err := auth.CallerID(ctx)
	if err != nil {
		return err
	}
	if owner != callerID {
		return apperr.Forbidden("patients may only book for themselves")
	}
	return nil
}

// -- Status Transition Gate --

// Transition moves an appointment to target. Re-applying the current status
// is a no-op; leaving a terminal status is InvalidTransition. The doctor may
// apply any action, the patient may only cancel.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, target Status) (*AppointmentView, error) {
	v, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeTransition(ctx, v, target); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		changed, err := nextStatus(v.Status, target)
		if err != nil {
			return nil, err
		}
		if !changed {
			return v, nil
		}

		updatedAt, ok, err := s.repo.UpdateStatus(ctx, id, v.Status, target)
		if err != nil {
			return nil, apperr.Storage("update appointment status", err)
		}
		if ok {
			zerolog.Ctx(ctx).Info().
				Str("appointment_id", id.String()).
				Str("from", string(v.Status)).
				Str("to", string(target)).
				Msg("appointment status changed")
			v.Status = target
			v.UpdatedAt = updatedAt
			return v, nil
		}

		// lost a race; re-evaluate against the committed status
		if v, err = s.get(ctx, id); err != nil {
			return nil, err
		}
	}
	return nil, apperr.Conflict("appointment %s is being modified concurrently, retry", id)
}

// Apply runs a named action.
func (s *Service) Apply(ctx context.Context, id uuid.UUID, action Action) (*AppointmentView, error) {
	return s.Transition(ctx, id, action.Target())
}

func (s *Service) Accept(ctx context.Context, id uuid.UUID) (*AppointmentView, error) {
	return s.Apply(ctx, id, ActionAccept)
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*AppointmentView, error) {
	return s.Apply(ctx, id, ActionCancel)
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*AppointmentView, error) {
	return s.Apply(ctx, id, ActionComplete)
}

func authorizeTransition(ctx context.Context, v *AppointmentView, target Status) error {
	if auth.IsAdmin(ctx) {
		return nil
	}
	callerID, err := auth.CallerID(ctx)
	if err != nil {
		return err
	}
	switch callerID {
	case v.DoctorUserID:
		return nil
	case v.PatientUserID:
		if target == StatusCanceled {
			return nil
		}
		return apperr.Forbidden("patients may only cancel their appointments")
	}
	return apperr.Forbidden("not a participant of appointment %s", v.ID)
}

// -- Read Projections --

func (s *Service) get(ctx context.Context, id uuid.UUID) (*AppointmentView, error) {
	v, err := s.repo.Get(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("appointment %s not found", id)
		}
		return nil, apperr.Storage("get appointment", err)
	}
	return v, nil
}

// Get returns one appointment to an admin or either participant.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*AppointmentView, error) {
	v, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if auth.IsAdmin(ctx) {
		return v, nil
	}
	callerID, err := auth.CallerID(ctx)
	if err != nil {
		return nil, err
	}
	if callerID != v.DoctorUserID && callerID != v.PatientUserID {
		return nil, apperr.Forbidden("not a participant of appointment %s", id)
	}
	return v, nil
}

func (s *Service) list(ctx context.Context, f Filter, limit, offset int) ([]*AppointmentView, int, error) {
	items, total, err := s.repo.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, apperr.Storage("list appointments", err)
	}
	if items == nil {
		items = []*AppointmentView{}
	}
	return items, total, nil
}

// List returns every appointment. Admin only.
func (s *Service) List(ctx context.Context, status Status, limit, offset int) ([]*AppointmentView, int, error) {
	if !auth.IsAdmin(ctx) {
		return nil, 0, apperr.Forbidden("listing all appointments requires admin")
	}
	return s.list(ctx, Filter{Status: status}, limit, offset)
}

// ListByDoctor is visible to an admin or the doctor.
func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, status Status, limit, offset int) ([]*AppointmentView, int, error) {
	if err := s.dir.DoctorExists(ctx, doctorID); err != nil {
		return nil, 0, err
	}
	if !auth.IsAdmin(ctx) {
		callerID, err := auth.CallerID(ctx)
		if err != nil {
			return nil, 0, err
		}
		own, err := s.dir.DoctorIDForUser(ctx, callerID)
		if err != nil && !apperr.Is(err, apperr.KindNotFound) {
			return nil, 0, err
		}
		if own != doctorID {
			return nil, 0, apperr.Forbidden("only the doctor or an admin may list these appointments")
		}
	}
	return s.list(ctx, Filter{DoctorID: doctorID, Status: status}, limit, offset)
}

// ListByPatientUser lists the appointments of the patient profile owned by
// userID. Visible to an admin or that user.
func (s *Service) ListByPatientUser(ctx context.Context, userID uuid.UUID, status Status, limit, offset int) ([]*AppointmentView, int, error) {
	if !auth.IsAdmin(ctx) {
		callerID, err := auth.CallerID(ctx)
		if err != nil {
			return nil, 0, err
		}
		if callerID != userID {
			return nil, 0, apperr.Forbidden("only the patient or an admin may list these appointments")
		}
	}
	patientID, err := s.dir.PatientIDForUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return s.list(ctx, Filter{PatientID: patientID, Status: status}, limit, offset)
}

// -- Administrative cleanup --

// Delete hard-deletes an appointment. Admin only; not part of the booking
// flow, where cancellation is a status change.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if !auth.IsAdmin(ctx) {
		return apperr.Forbidden("deleting appointments requires admin")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if db.IsNoRows(err) {
			return apperr.NotFound("appointment %s not found", id)
		}
		return apperr.Storage("delete appointment", err)
	}
	zerolog.Ctx(ctx).Info().Str("appointment_id", id.String()).Msg("appointment deleted")
	return nil
}
