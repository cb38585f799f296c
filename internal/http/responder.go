package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/session-gate/internal/application"
	"github.com/example/session-gate/internal/envelope"
)

var (
	errBadRequestBody        = errors.New("request body is malformed")
	errInvalidWindowID       = errors.New("window id is invalid")
	errInvalidSlug           = errors.New("slug is invalid")
	errInvalidConversationID = errors.New("conversation id is invalid")
	errMissingAdminToken     = errors.New("admin token is required")
	errInvalidAdminToken     = errors.New("admin token is invalid")
	errMissingSlugQuery      = errors.New("slug query parameter is required")
	errInvalidWeekday        = errors.New("weekday is invalid")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request rejected", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var (
		vErr      *application.ValidationError
		denied    *application.AccessDeniedError
		conflicts *application.ConflictError
	)
	switch {
	case errors.As(err, &vErr):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   "request has invalid fields",
			Errors:    vErr.FieldErrors,
		})
	case errors.As(err, &conflicts):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "SCHEDULING_CONFLICT",
			Message:   "the window overlaps an existing window; choose different times",
			Conflicts: toConflictDTOs(conflicts),
		})
	case errors.Is(err, application.ErrSchedulingConflict):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "SCHEDULING_CONFLICT",
			Message:   "the window overlaps an existing window; choose different times",
		})
	case errors.As(err, &denied):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{ErrorCode: "ACCESS_DENIED", Message: denied.Reason})
	case errors.Is(err, application.ErrInvalidGrant):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{ErrorCode: "INVALID_GRANT", Message: "grant is missing, expired or for another session"})
	case errors.Is(err, application.ErrTooManyAttempts):
		w.Header().Set("Retry-After", "60")
		r.writeJSON(ctx, w, http.StatusTooManyRequests, errorResponse{ErrorCode: "TOO_MANY_ATTEMPTS", Message: "too many attempts; try again later"})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Message: "resource not found"})
	case errors.Is(err, application.ErrSessionClosed):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: "SESSION_CLOSED", Message: "the session has ended"})
	case errors.Is(err, application.ErrTurnRejected):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: "TURN_REJECTED", Message: "the session time is over"})
	case errors.Is(err, application.ErrTerminationNotAllowed):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: "TERMINATION_NOT_ALLOWED", Message: "more messages are required before the session can end"})
	case errors.Is(err, application.ErrStoreUnavailable):
		r.loggerFor(ctx).ErrorContext(ctx, "store unavailable", "error", err)
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{ErrorCode: "STORE_UNAVAILABLE", Message: "storage is temporarily unavailable"})
	case errors.Is(err, envelope.ErrIntegrity):
		r.loggerFor(ctx).ErrorContext(ctx, "stored message failed integrity check", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{ErrorCode: "INTEGRITY_FAILURE", Message: "stored data failed an integrity check"})
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "unexpected service error", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: "internal server error"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
	Conflicts []conflictDTO     `json:"conflicts,omitempty"`
}

type conflictDTO struct {
	WindowID string `json:"window_id"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

func toConflictDTOs(err *application.ConflictError) []conflictDTO {
	out := make([]conflictDTO, 0, len(err.Conflicts))
	for _, c := range err.Conflicts {
		out = append(out, conflictDTO{
			WindowID: c.WithWindowID,
			Start:    formatTime(c.Start),
			End:      formatTime(c.End),
		})
	}
	return out
}

func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts
	}
	return time.Time{}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
