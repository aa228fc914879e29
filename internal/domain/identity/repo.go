package identity

import (
	"context"

	"github.com/google/uuid"
)

// Repositories return pgx errors unchanged (pgx.ErrNoRows, *pgconn.PgError);
// Service translates them into apperr kinds.

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}

type DoctorRepository interface {
	// Upsert inserts or updates the profile keyed by d.UserID and fills in
	// the persisted id and timestamps.
	Upsert(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error)
	List(ctx context.Context, department string, limit, offset int) ([]*Doctor, int, error)
}

type PatientRepository interface {
	// Upsert inserts or updates the profile keyed by p.UserID.
	Upsert(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error)
}
