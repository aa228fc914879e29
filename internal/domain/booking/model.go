package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusScheduled Status = "Scheduled"
	StatusCompleted Status = "Completed"
	StatusCanceled  Status = "Canceled"
)

// ParseStatus accepts the canonical names in any case.
func ParseStatus(s string) (Status, error) {
	for _, st := range []Status{StatusScheduled, StatusCompleted, StatusCanceled} {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("status must be one of Scheduled, Completed, Canceled")
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// Action is a named status change requested by a caller.
type Action string

const (
	ActionAccept   Action = "accept"
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionAccept, ActionCancel, ActionComplete:
		return a, nil
	}
	return "", fmt.Errorf("action must be one of accept, cancel, complete")
}

// Target is the status an action moves to.
func (a Action) Target() Status {
	switch a {
	case ActionCancel:
		return StatusCanceled
	case ActionComplete:
		return StatusCompleted
	default:
		return StatusScheduled
	}
}

type AppointmentType string

const (
	TypeConsultation AppointmentType = "Consultation"
	TypeFollowUp     AppointmentType = "Follow-up"
	TypeNewPatient   AppointmentType = "New Patient"
)

// ParseAppointmentType is case-insensitive. Empty means Consultation.
func ParseAppointmentType(s string) (AppointmentType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TypeConsultation, nil
	}
	for _, t := range []AppointmentType{TypeConsultation, TypeFollowUp, TypeNewPatient} {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("appointment_type must be one of Consultation, Follow-up, New Patient")
}

// Appointment maps to the appointments table.
type Appointment struct {
	ID              uuid.UUID       `db:"id" json:"appointment_id"`
	PatientID       uuid.UUID       `db:"patient_id" json:"patient_id"`
	DoctorID        uuid.UUID       `db:"doctor_id" json:"doctor_id"`
	AppointmentDate time.Time       `db:"appointment_date" json:"appointment_date"`
	AppointmentEnd  time.Time       `db:"appointment_end" json:"appointment_end"`
	Status          Status          `db:"status" json:"status"`
	AppointmentType AppointmentType `db:"appointment_type" json:"appointment_type"`
	Notes           string          `db:"notes" json:"notes"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

const maxNotesLength = 2000
