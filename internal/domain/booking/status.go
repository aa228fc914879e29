package booking

import "github.com/carebook/carebook/internal/platform/apperr"

// nextStatus decides whether moving from current to target is allowed.
// Same-state requests succeed without a change. Terminal states never change.
func nextStatus(current, target Status) (changed bool, err error) {
	if current == target {
		return false, nil
	}
	if current.Terminal() {
		return false, apperr.InvalidTransition("appointment is %s and cannot become %s", current, target)
	}
	switch target {
	case StatusScheduled, StatusCompleted, StatusCanceled:
		return true, nil
	}
	return false, apperr.Validation("unknown status %q", target)
}
