package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/example/session-gate/internal/envelope"
	"github.com/example/session-gate/internal/logging"
)

func TestServiceLogger_PrefersContextLogger(t *testing.T) {
	t.Parallel()

	var baseOut, ctxOut recordingWriter
	base := slog.New(slog.NewJSONHandler(&baseOut, nil))
	scoped := slog.New(slog.NewJSONHandler(&ctxOut, nil))

	ctx := logging.ContextWithLogger(context.Background(), scoped)
	serviceLogger(ctx, base, "GateService", "Authorize", "slug", "demo").Info("hello")

	if baseOut.Len() != 0 {
		t.Fatalf("expected base logger to stay silent")
	}
	for _, want := range []string{`"service":"GateService"`, `"operation":"Authorize"`, `"slug":"demo"`} {
		if !ctxOut.Contains(want) {
			t.Fatalf("expected %s in %s", want, ctxOut.String())
		}
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrNotFound, "not_found"},
		{fmt.Errorf("create: %w", ErrSchedulingConflict), "scheduling_conflict"},
		{ErrStoreUnavailable, "store_unavailable"},
		{&AccessDeniedError{Reason: ReasonMismatch}, "access_denied"},
		{ErrTooManyAttempts, "too_many_attempts"},
		{ErrSessionClosed, "session_closed"},
		{ErrTurnRejected, "turn_rejected"},
		{ErrTerminationNotAllowed, "termination_not_allowed"},
		{ErrInvalidGrant, "invalid_grant"},
		{&envelope.IntegrityError{Reason: "tag mismatch"}, "integrity"},
		{&envelope.ConfigurationError{Setting: "key", Reason: "short"}, "configuration"},
		{&ValidationError{FieldErrors: map[string]string{"slug": "required"}}, "validation"},
		{errors.New("boom"), "unexpected"},
	}

	for _, tc := range cases {
		if got := ErrorKind(tc.err); got != tc.want {
			t.Fatalf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
