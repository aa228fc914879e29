package availability

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists the weekly availability template in schedule_timings.
// Every publish bumps doctors.timetable_revision.
type Repository interface {
	// Replace swaps the full interval set for (doctorID, day) atomically and
	// returns the doctor's new timetable revision. Replaces for one doctor
	// are serialized. An empty set leaves the day closed.
	Replace(ctx context.Context, doctorID uuid.UUID, day Weekday, intervals []Interval) (int64, error)
	// Read returns the intervals for one day ordered by start.
	Read(ctx context.Context, doctorID uuid.UUID, day Weekday) ([]Interval, error)
	// Revision returns the doctor's current timetable revision.
	Revision(ctx context.Context, doctorID uuid.UUID) (int64, error)
	// ReadAll returns every weekday, Monday first, closed days empty. The
	// days and Timetable.Revision come from one snapshot.
	ReadAll(ctx context.Context, doctorID uuid.UUID) (*Timetable, error)
}
