package identity

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/platform/apperr"
	"github.com/carebook/carebook/internal/platform/auth"
	"github.com/carebook/carebook/internal/platform/db"
)

const (
	constraintEmail = "users_email_key"
	constraintPhone = "patients_phone_number_key"
)

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	Issue(userID uuid.UUID, roles []string) (string, time.Time, error)
}

type Service struct {
	users       UserRepository
	doctors     DoctorRepository
	patients    PatientRepository
	tokens      TokenIssuer
	phoneRegion string
}

func NewService(users UserRepository, doctors DoctorRepository, patients PatientRepository, tokens TokenIssuer, phoneRegion string) *Service {
	return &Service{
		users:       users,
		doctors:     doctors,
		patients:    patients,
		tokens:      tokens,
		phoneRegion: strings.ToUpper(phoneRegion),
	}
}

// -- Accounts --

type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// Session is returned by Login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

// Register creates a doctor or patient account. Admin accounts can only be
// created through CreateUser.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	role := strings.ToLower(strings.TrimSpace(in.Role))
	if role == "" {
		role = auth.RolePatient
	}
	if role == auth.RoleAdmin {
		return nil, apperr.Forbidden("admin accounts cannot be self-registered")
	}
	in.Role = role
	return s.CreateUser(ctx, in)
}

func (s *Service) CreateUser(ctx context.Context, in RegisterInput) (*User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	role := strings.ToLower(strings.TrimSpace(in.Role))
	if !auth.ValidRole(role) {
		return nil, apperr.Validation("role must be one of admin, doctor, patient")
	}
	name := strings.TrimSpace(in.FullName)
	if name == "" {
		return nil, apperr.Validation("full_name is required")
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}

	u := &User{Email: email, PasswordHash: hash, Role: role, FullName: name}
	if err := s.users.Create(ctx, u); err != nil {
		if db.IsUniqueViolation(err, constraintEmail) {
			return nil, apperr.Conflict("email %s is already registered", email)
		}
		return nil, apperr.Storage("create user", err)
	}

	zerolog.Ctx(ctx).Info().Str("user_id", u.ID.String()).Str("role", role).Msg("user registered")
	return u, nil
}

// Login verifies credentials and issues a token. Unknown email and wrong
// password produce the same error.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperr.Validation("email and password are required")
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.Unauthorized("invalid email or password")
		}
		return nil, apperr.Storage("get user by email", err)
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperr.Unauthorized("invalid email or password")
		}
		return nil, apperr.Storage("check password", err)
	}

	token, exp, err := s.tokens.Issue(u.ID, []string{u.Role})
	if err != nil {
		return nil, apperr.Storage("issue token", err)
	}
	return &Session{Token: token, ExpiresAt: exp, User: u}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", apperr.Validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.Validation("email %q is not a valid address", raw)
	}
	return email, nil
}

func (s *Service) getUser(ctx context.Context, userID uuid.UUID) (*User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("user %s not found", userID)
		}
		return nil, apperr.Storage("get user", err)
	}
	return u, nil
}

// -- Doctors --

func (s *Service) SaveDoctorProfile(ctx context.Context, userID uuid.UUID, d *Doctor) (*Doctor, error) {
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Role != auth.RoleDoctor {
		return nil, apperr.Forbidden("only doctor accounts have a doctor profile")
	}
	if d.Experience < 0 {
		return nil, apperr.Validation("experience must not be negative")
	}
	d.Title = strings.TrimSpace(d.Title)
	d.Department = strings.TrimSpace(d.Department)
	if d.Department == "" {
		return nil, apperr.Validation("department is required")
	}
	if d.Mobile != "" {
		mobile, err := s.normalizePhone(d.Mobile)
		if err != nil {
			return nil, err
		}
		d.Mobile = mobile
	}

	d.UserID = userID
	if err := s.doctors.Upsert(ctx, d); err != nil {
		return nil, apperr.Storage("save doctor profile", err)
	}
	d.FullName = u.FullName
	return d, nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("doctor %s not found", id)
		}
		return nil, apperr.Storage("get doctor", err)
	}
	return d, nil
}

func (s *Service) ListDoctors(ctx context.Context, department string, limit, offset int) ([]*Doctor, int, error) {
	items, total, err := s.doctors.List(ctx, strings.TrimSpace(department), limit, offset)
	if err != nil {
		return nil, 0, apperr.Storage("list doctors", err)
	}
	if items == nil {
		items = []*Doctor{}
	}
	return items, total, nil
}

// DoctorExists returns NotFound for an unknown doctor id.
func (s *Service) DoctorExists(ctx context.Context, id uuid.UUID) error {
	_, err := s.GetDoctor(ctx, id)
	return err
}

// DoctorIDForUser resolves the doctor profile owned by userID.
func (s *Service) DoctorIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	d, err := s.doctors.GetByUserID(ctx, userID)
	if err != nil {
		if db.IsNoRows(err) {
			return uuid.Nil, apperr.NotFound("doctor profile not found")
		}
		return uuid.Nil, apperr.Storage("get doctor by user", err)
	}
	return d.ID, nil
}

// -- Patients --

func (s *Service) SavePatientProfile(ctx context.Context, userID uuid.UUID, p *Patient) (*Patient, error) {
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Role != auth.RolePatient {
		return nil, apperr.Forbidden("only patient accounts have a patient profile")
	}

	p.Gender = strings.ToLower(strings.TrimSpace(p.Gender))
	if !validGenders[p.Gender] {
		return nil, apperr.Validation("gender must be one of male, female, other, unknown")
	}
	if p.DateOfBirth != nil && p.DateOfBirth.After(time.Now()) {
		return nil, apperr.Validation("date_of_birth must not be in the future")
	}
	if strings.TrimSpace(p.PhoneNumber) == "" {
		return nil, apperr.Validation("phone_number is required")
	}
	phone, err := s.normalizePhone(p.PhoneNumber)
	if err != nil {
		return nil, err
	}
	p.PhoneNumber = phone
	p.Address = strings.TrimSpace(p.Address)
	p.EmergencyContact = strings.TrimSpace(p.EmergencyContact)

	p.UserID = userID
	if err := s.patients.Upsert(ctx, p); err != nil {
		if db.IsUniqueViolation(err, constraintPhone) {
			return nil, apperr.Conflict("phone number %s is already registered to another patient", phone)
		}
		return nil, apperr.Storage("save patient profile", err)
	}
	p.FullName = u.FullName
	return p, nil
}

func (s *Service) GetPatientByUser(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByUserID(ctx, userID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("patient profile not found")
		}
		return nil, apperr.Storage("get patient by user", err)
	}
	return p, nil
}

// PatientIDForUser resolves the patient profile owned by userID. Profiles
// are never created implicitly.
func (s *Service) PatientIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	p, err := s.GetPatientByUser(ctx, userID)
	if err != nil {
		return uuid.Nil, err
	}
	return p.ID, nil
}

// PatientUserID returns the account that owns patient id.
func (s *Service) PatientUserID(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return uuid.Nil, apperr.NotFound("patient %s not found", id)
		}
		return uuid.Nil, apperr.Storage("get patient", err)
	}
	return p.UserID, nil
}

// normalizePhone parses raw in the configured default region and returns
// the E.164 form, so "(650) 253-0000" and "+1 650-253-0000" collide on the
// unique constraint.
func (s *Service) normalizePhone(raw string) (string, error) {
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), s.phoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", apperr.Validation("phone number %q is not valid", raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
