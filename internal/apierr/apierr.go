// Package apierr defines the error taxonomy shared by the Session Runtime,
// Message Hub, and Scheduler. Every sentinel is classified so callers can
// branch with errors.Is while the Hub and Runtime still return plain typed
// results over the wire (§7).
package apierr

import "errors"

var (
	// ErrNotFound is returned when a session, goal, or job is not present.
	// Never fatal.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for a missing or invalid parameter.
	ErrValidation = errors.New("validation error")

	// ErrDisconnected is returned when a required transport is not connected.
	ErrDisconnected = errors.New("not connected to server")

	// ErrTimeout is returned when an operation exceeded its bound (queue
	// consumption, Hub request, SDK interrupt).
	ErrTimeout = errors.New("operation timed out")

	// ErrUpstreamFailure is returned when the agent SDK rejected a call.
	ErrUpstreamFailure = errors.New("upstream agent failure")

	// ErrTripped is returned when the circuit breaker prevented an action.
	ErrTripped = errors.New("circuit breaker tripped")

	// ErrInternal marks an invariant violation. Logged, reported to the
	// caller, and never allowed to silently corrupt session state.
	ErrInternal = errors.New("internal error")
)

// Kind classifies err against the sentinel taxonomy for metrics/logging.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrDisconnected):
		return "disconnected"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUpstreamFailure):
		return "upstream_failure"
	case errors.Is(err, ErrTripped):
		return "tripped"
	default:
		return "internal"
	}
}
