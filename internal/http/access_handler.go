package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/example/session-gate/internal/application"
	"github.com/example/session-gate/internal/logging"
)

// clientAddress is the peer host of the connection. Forwarding headers are
// ignored because any client can set them.
func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type accessResolver interface {
	ResolveAccess(ctx context.Context, slug string) (application.AccessDecision, error)
}

type gateService interface {
	Authorize(ctx context.Context, slug, candidate string) (application.Grant, error)
}

// AccessHandler serves the participant entry points: state lookup and
// credential exchange.
type AccessHandler struct {
	resolver  accessResolver
	gate      gateService
	responder responder
	logger    *slog.Logger
}

func NewAccessHandler(resolver accessResolver, gate gateService, logger *slog.Logger) *AccessHandler {
	return &AccessHandler{resolver: resolver, gate: gate, responder: newResponder(logger), logger: logging.OrDefault(logger)}
}

// Resolve answers GET /access/{slug}.
func (h *AccessHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.resolver == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	slug, ok := SlugFromContext(r.Context())
	if !ok || strings.TrimSpace(slug) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSlug)
		return
	}

	decision, err := h.resolver.ResolveAccess(r.Context(), slug)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	hours, minutes := decision.Decision.HoursMinutes()
	h.responder.writeJSON(r.Context(), w, http.StatusOK, accessResponse{
		Slug:             decision.Window.Slug,
		WindowID:         decision.Window.ID,
		Name:             decision.Window.Name,
		State:            string(decision.Decision.State),
		MinutesRemaining: decision.Decision.MinutesRemaining,
		Hours:            hours,
		Minutes:          minutes,
		Start:            formatTime(decision.Window.Start),
		End:              formatTime(decision.Window.End),
	})
}

// Authorize answers POST /access/{slug}/authorize.
func (h *AccessHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.gate == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	slug, ok := SlugFromContext(r.Context())
	if !ok || strings.TrimSpace(slug) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSlug)
		return
	}

	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	addr := clientAddress(r)
	ctx := application.WithClientAddress(r.Context(), addr)
	logger := logging.Scoped(ctx, h.logger, "handler", "AccessHandler", "Authorize", "slug", slug, "client", addr)
	grant, err := h.gate.Authorize(ctx, slug, req.Credential)
	if err != nil {
		logger.DebugContext(ctx, "authorization rejected", "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, authorizeResponse{
		Token:     grant.Token,
		WindowID:  grant.WindowID,
		ExpiresAt: formatTime(grant.ExpiresAt),
	})
}

type authorizeRequest struct {
	Credential string `json:"credential"`
}

type authorizeResponse struct {
	Token     string `json:"token"`
	WindowID  string `json:"window_id"`
	ExpiresAt string `json:"expires_at"`
}

type accessResponse struct {
	Slug             string `json:"slug"`
	WindowID         string `json:"window_id"`
	Name             string `json:"name"`
	State            string `json:"state"`
	MinutesRemaining int    `json:"minutes_remaining"`
	Hours            int    `json:"hours"`
	Minutes          int    `json:"minutes"`
	Start            string `json:"start"`
	End              string `json:"end"`
}
