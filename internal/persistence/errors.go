package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique key already exists.
	ErrDuplicate = errors.New("persistence: duplicate")
	// ErrConstraintViolation is returned when a CHECK or NOT NULL constraint fails.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrForeignKeyViolation is returned when a referenced row is missing.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrOverlap is returned when a scheduled window would overlap another
	// window on the same slug.
	ErrOverlap = errors.New("persistence: scheduled window overlap")
	// ErrPrecondition is returned when a conditional write finds the row in
	// an unexpected state, such as a closed conversation or a spent grace turn.
	ErrPrecondition = errors.New("persistence: precondition failed")
	// ErrUnavailable is returned when the store cannot be reached or times out.
	ErrUnavailable = errors.New("persistence: store unavailable")
)
