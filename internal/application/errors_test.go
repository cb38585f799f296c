package application

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	empty := &ValidationError{}
	if got := empty.Error(); got != "validation failed" {
		t.Fatalf("expected generic message for empty error, got %q", got)
	}

	withFields := &ValidationError{FieldErrors: map[string]string{"field": "invalid"}}
	if got := withFields.Error(); got != "validation failed" {
		t.Fatalf("expected consistent message for populated error, got %q", got)
	}
}

func TestValidationError_HasErrors(t *testing.T) {
	t.Parallel()

	if err := (&ValidationError{}).HasErrors(); err {
		t.Fatalf("expected HasErrors to report false for empty error")
	}

	if err := (&ValidationError{FieldErrors: map[string]string{"field": "bad"}}).HasErrors(); !err {
		t.Fatalf("expected HasErrors to report true when fields are present")
	}
}

func TestValidationError_AddAndMerge(t *testing.T) {
	t.Parallel()

	base := &ValidationError{}
	base.add("first", "value")
	if got := base.FieldErrors["first"]; got != "value" {
		t.Fatalf("expected add to populate map, got %q", got)
	}

	other := &ValidationError{FieldErrors: map[string]string{"second": "another"}}
	base.merge(other)
	if got := base.FieldErrors["second"]; got != "another" {
		t.Fatalf("expected merge to copy field, got %q", got)
	}

	base.merge(nil)
	if len(base.FieldErrors) != 2 {
		t.Fatalf("expected merge with nil to leave fields unchanged")
	}
}

func TestAccessDeniedError(t *testing.T) {
	t.Parallel()

	err := accessDenied(ReasonFinished)
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected access denied error to match sentinel")
	}

	var denied *AccessDeniedError
	if !errors.As(err, &denied) || denied.Reason != ReasonFinished {
		t.Fatalf("expected reason %q, got %v", ReasonFinished, err)
	}
	if got := err.Error(); got != "application: access denied: session finished" {
		t.Fatalf("unexpected message %q", got)
	}

	wrapped := fmt.Errorf("authorize: %w", err)
	if ErrorKind(wrapped) != "access_denied" {
		t.Fatalf("expected wrapped denial to be labelled access_denied")
	}
}
