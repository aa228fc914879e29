package booking

import "github.com/google/uuid"

// AppointmentView is an appointment joined with doctor and patient display
// fields.
type AppointmentView struct {
	Appointment
	DoctorName   string `json:"doctor_name"`
	DoctorTitle  string `json:"doctor_title"`
	Department   string `json:"department"`
	PatientName  string `json:"patient_name"`
	PatientPhone string `json:"patient_phone"`

	DoctorUserID  uuid.UUID `json:"-"`
	PatientUserID uuid.UUID `json:"-"`
}

// Filter narrows a projection query. Zero fields match everything.
type Filter struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Status    Status
}
