package identity

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User maps to the users table.
type User struct {
	ID           uuid.UUID `db:"id" json:"user_id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	FullName     string    `db:"full_name" json:"full_name"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Doctor maps to the doctors table. FullName is read from the owning user.
type Doctor struct {
	ID                  uuid.UUID `db:"id" json:"doctor_id"`
	UserID              uuid.UUID `db:"user_id" json:"user_id"`
	FullName            string    `db:"full_name" json:"full_name"`
	Title               string    `db:"title" json:"title"`
	Department          string    `db:"department" json:"department"`
	Experience          int       `db:"experience" json:"experience"`
	Mobile              string    `db:"mobile" json:"mobile"`
	HospitalAffiliation string    `db:"hospital_affiliation" json:"hospital_affiliation"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// Patient maps to the patients table. PhoneNumber is stored in E.164 form.
type Patient struct {
	ID               uuid.UUID `db:"id" json:"patient_id"`
	UserID           uuid.UUID `db:"user_id" json:"user_id"`
	FullName         string    `db:"full_name" json:"full_name"`
	DateOfBirth      *Date     `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender           string    `db:"gender" json:"gender"`
	PhoneNumber      string    `db:"phone_number" json:"phone_number"`
	Address          string    `db:"address" json:"address"`
	EmergencyContact string    `db:"emergency_contact" json:"emergency_contact"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

const dateLayout = "2006-01-02"

// Date is a calendar date without time of day, encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	t, err := time.Parse(dateLayout, strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	d.Time = t
	return nil
}

// MarshalJSON and UnmarshalJSON shadow the RFC 3339 methods promoted from
// time.Time.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	return d.UnmarshalText([]byte(s))
}

var validGenders = map[string]bool{
	"": true, "male": true, "female": true, "other": true, "unknown": true,
}
