package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/carebook/carebook/internal/platform/apperr"
)

// Policy decides whether the last slot of an interval may run past its end.
type Policy string

const (
	// PolicyFit emits a slot only when [m, m+duration) lies inside the interval.
	PolicyFit Policy = "fit"
	// PolicyTrailing emits every m < end, so the final slot may overrun closing time.
	PolicyTrailing Policy = "trailing"
)

const DefaultSlotMinutes = 30

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyFit, PolicyTrailing:
		return Policy(s), nil
	case "":
		return PolicyFit, nil
	}
	return "", fmt.Errorf("unknown slot policy %q", s)
}

// DeriveSlots slices intervals into start times spaced durationMinutes apart.
// The result is ascending with duplicates removed; intervals with
// Start >= End contribute nothing.
func DeriveSlots(intervals []Interval, durationMinutes int, policy Policy) ([]TimeOfDay, error) {
	if durationMinutes <= 0 {
		return nil, apperr.Validation("slot duration must be positive, got %d", durationMinutes)
	}
	if policy != PolicyFit && policy != PolicyTrailing {
		return nil, apperr.Validation("unknown slot policy %q", policy)
	}

	d := TimeOfDay(durationMinutes)
	slots := []TimeOfDay{}
	for _, iv := range intervals {
		for m := iv.Start; m < iv.End; m += d {
			if policy == PolicyFit && m+d > iv.End {
				break
			}
			slots = append(slots, m)
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	out := slots[:0]
	for _, s := range slots {
		if len(out) == 0 || s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out, nil
}

// slotStartsAt reports whether one of slots, placed on dayStart's date,
// is the instant.
func slotStartsAt(slots []TimeOfDay, dayStart, instant time.Time) bool {
	for _, sl := range slots {
		if sl.On(dayStart).Equal(instant) {
			return true
		}
	}
	return false
}
