package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/carebook/carebook/internal/domain/availability"
)

// Repository returns pgx errors unchanged; Service translates them.
type Repository interface {
	// Create assigns the id and timestamps. Overlapping a live appointment of
	// the same doctor fails on appointments_doctor_no_overlap.
	Create(ctx context.Context, a *Appointment) error
	// Get returns the enriched row.
	Get(ctx context.Context, id uuid.UUID) (*AppointmentView, error)
	// UpdateStatus sets status to `to` only while it is still `from`.
	// ok is false when the row is gone or its status moved on.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (updatedAt time.Time, ok bool, err error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*AppointmentView, int, error)
	// BookedSpans lists the spans of non-canceled appointments that overlap
	// [from, to), ordered by start.
	BookedSpans(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]availability.Span, error)
}
