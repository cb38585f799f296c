package application

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/session-gate/internal/persistence"
	"github.com/example/session-gate/internal/scheduler"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrSchedulingConflict is returned when a window would overlap another
	// window on the same slug.
	ErrSchedulingConflict = errors.New("application: scheduling conflict")
	// ErrStoreUnavailable is returned when the backing store could not answer
	// in time. Callers must treat it as "unknown", never as success.
	ErrStoreUnavailable = errors.New("application: store unavailable")
	// ErrAccessDenied is returned when the gate refuses entry.
	ErrAccessDenied = errors.New("application: access denied")
	// ErrTooManyAttempts is returned when a slug's attempt budget is spent.
	ErrTooManyAttempts = errors.New("application: too many attempts")
	// ErrSessionClosed is returned for writes to an ended conversation.
	ErrSessionClosed = errors.New("application: session closed")
	// ErrTurnRejected is returned when an expired conversation has no grace
	// turn left.
	ErrTurnRejected = errors.New("application: turn rejected")
	// ErrTerminationNotAllowed is returned when a public conversation is
	// closed before enough messages were exchanged.
	ErrTerminationNotAllowed = errors.New("application: termination not allowed")
	// ErrInvalidGrant is returned for unknown or expired grant tokens.
	ErrInvalidGrant = errors.New("application: invalid grant")
)

// Access denial reasons.
const (
	ReasonFinished   = "session finished"
	ReasonNotStarted = "session not started"
	ReasonMismatch   = "incorrect credential"
)

// AccessDeniedError carries the reason the gate refused entry.
type AccessDeniedError struct {
	Reason string
}

// Error implements the error interface.
func (e *AccessDeniedError) Error() string {
	if e == nil || e.Reason == "" {
		return ErrAccessDenied.Error()
	}
	return fmt.Sprintf("%s: %s", ErrAccessDenied.Error(), e.Reason)
}

// Is matches ErrAccessDenied.
func (e *AccessDeniedError) Is(target error) bool {
	return target == ErrAccessDenied
}

func accessDenied(reason string) error {
	return &AccessDeniedError{Reason: reason}
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// ConflictError lists the windows a candidate overlaps. It matches
// ErrSchedulingConflict.
type ConflictError struct {
	Conflicts []scheduler.Conflict
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e == nil || len(e.Conflicts) == 0 {
		return ErrSchedulingConflict.Error()
	}
	ids := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		ids = append(ids, c.WithWindowID)
	}
	return fmt.Sprintf("%s: overlaps %s", ErrSchedulingConflict.Error(), strings.Join(ids, ", "))
}

// Is matches ErrSchedulingConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrSchedulingConflict
}

// mapStoreError translates persistence errors into application errors.
// Anything unrecognised is reported as ErrStoreUnavailable so callers never
// mistake a failed lookup for success.
func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrOverlap), errors.Is(err, persistence.ErrDuplicate):
		return fmt.Errorf("%w: %v", ErrSchedulingConflict, err)
	case errors.Is(err, persistence.ErrConstraintViolation), errors.Is(err, persistence.ErrForeignKeyViolation):
		verr := &ValidationError{}
		verr.add("record", "rejected by store constraints")
		return verr
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
