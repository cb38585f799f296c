package envelope

import (
	"errors"
	"fmt"
)

var (
	// ErrIntegrity is matched by every IntegrityError.
	ErrIntegrity = errors.New("envelope: integrity check failed")
	// ErrConfiguration is matched by every ConfigurationError.
	ErrConfiguration = errors.New("envelope: invalid key configuration")
)

// IntegrityError reports an envelope that could not be authenticated: it was
// truncated, malformed, tampered with, or sealed under a different key.
type IntegrityError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("envelope: integrity check failed: %s: %v", e.Reason, e.Err)
	}
	return "envelope: integrity check failed: " + e.Reason
}

// Unwrap returns the underlying cause, if any.
func (e *IntegrityError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is ErrIntegrity.
func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

func integrityError(reason string, err error) *IntegrityError {
	return &IntegrityError{Reason: reason, Err: err}
}

// ConfigurationError reports a missing or malformed encryption key. It is
// fatal: callers are expected to abort startup.
type ConfigurationError struct {
	Setting string
	Reason  string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Setting == "" {
		return "envelope: invalid key configuration: " + e.Reason
	}
	return fmt.Sprintf("envelope: invalid key configuration (%s): %s", e.Setting, e.Reason)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}
