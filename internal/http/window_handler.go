package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/session-gate/internal/application"
)

type windowService interface {
	CheckAvailability(ctx context.Context, query application.AvailabilityQuery) (bool, error)
	CreateWindow(ctx context.Context, params application.CreateWindowParams) (application.Window, error)
	CreateWindowSeries(ctx context.Context, input application.SeriesInput) ([]application.Window, error)
	UpdateWindow(ctx context.Context, params application.UpdateWindowParams) (application.Window, error)
	DeleteWindow(ctx context.Context, id string) error
	GetWindow(ctx context.Context, id string) (application.Window, error)
	ListWindows(ctx context.Context, slug string) ([]application.Window, error)
}

type WindowHandler struct {
	service   windowService
	responder responder
}

func NewWindowHandler(service windowService, logger *slog.Logger) *WindowHandler {
	return &WindowHandler{service: service, responder: newResponder(logger)}
}

// Availability answers GET /windows/availability.
func (h *WindowHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	q := r.URL.Query()
	available, err := h.service.CheckAvailability(r.Context(), application.AvailabilityQuery{
		Slug:      q.Get("slug"),
		Start:     parseTime(q.Get("start")),
		End:       parseTime(q.Get("end")),
		ExcludeID: strings.TrimSpace(q.Get("exclude_id")),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, availabilityResponse{Available: available})
}

func (h *WindowHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req windowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	window, err := h.service.CreateWindow(r.Context(), application.CreateWindowParams{
		ID:    strings.TrimSpace(req.ID),
		Input: req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, windowResponse{Window: toWindowDTO(window)})
}

// CreateSeries answers POST /windows/series. Either every window of the
// series is created or none is.
func (h *WindowHandler) CreateSeries(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req seriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	weekdays, ok := parseWeekdays(req.Weekdays)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidWeekday)
		return
	}

	windows, err := h.service.CreateWindowSeries(r.Context(), application.SeriesInput{
		Window:    req.toInput(),
		Frequency: req.Frequency,
		Weekdays:  weekdays,
		Until:     parseTime(req.Until),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]windowDTO, 0, len(windows))
	for _, window := range windows {
		out = append(out, toWindowDTO(window))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, listWindowsResponse{Windows: out})
}

func (h *WindowHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	windowID, ok := WindowIDFromContext(r.Context())
	if !ok || strings.TrimSpace(windowID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidWindowID)
		return
	}

	var req windowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	window, err := h.service.UpdateWindow(r.Context(), application.UpdateWindowParams{
		WindowID: windowID,
		Input:    req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, windowResponse{Window: toWindowDTO(window)})
}

func (h *WindowHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	windowID, ok := WindowIDFromContext(r.Context())
	if !ok || strings.TrimSpace(windowID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidWindowID)
		return
	}

	if err := h.service.DeleteWindow(r.Context(), windowID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *WindowHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	windowID, ok := WindowIDFromContext(r.Context())
	if !ok || strings.TrimSpace(windowID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidWindowID)
		return
	}

	window, err := h.service.GetWindow(r.Context(), windowID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, windowResponse{Window: toWindowDTO(window)})
}

func (h *WindowHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	slug := strings.TrimSpace(r.URL.Query().Get("slug"))
	if slug == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingSlugQuery)
		return
	}

	windows, err := h.service.ListWindows(r.Context(), slug)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]windowDTO, 0, len(windows))
	for _, window := range windows {
		out = append(out, toWindowDTO(window))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listWindowsResponse{Windows: out})
}

type windowRequest struct {
	ID         string `json:"id"`
	Slug       string `json:"slug"`
	Name       string `json:"name"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Credential string `json:"credential"`
}

func (r windowRequest) toInput() application.WindowInput {
	return application.WindowInput{
		Slug:       r.Slug,
		Name:       r.Name,
		Start:      parseTime(r.Start),
		End:        parseTime(r.End),
		Credential: r.Credential,
	}
}

type seriesRequest struct {
	windowRequest
	Frequency string   `json:"frequency"`
	Weekdays  []string `json:"weekdays"`
	Until     string   `json:"until"`
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

func parseWeekdays(names []string) ([]time.Weekday, bool) {
	if len(names) == 0 {
		return nil, true
	}
	out := make([]time.Weekday, 0, len(names))
	for _, name := range names {
		day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, false
		}
		out = append(out, day)
	}
	return out, true
}

type availabilityResponse struct {
	Available bool `json:"available"`
}

type windowResponse struct {
	Window windowDTO `json:"window"`
}

type listWindowsResponse struct {
	Windows []windowDTO `json:"windows"`
}

type windowDTO struct {
	ID        string `json:"id"`
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	Start     string `json:"start"`
	End       string `json:"end"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toWindowDTO(window application.Window) windowDTO {
	return windowDTO{
		ID:        window.ID,
		Slug:      window.Slug,
		Name:      window.Name,
		Start:     formatTime(window.Start),
		End:       formatTime(window.End),
		CreatedAt: formatTime(window.CreatedAt),
		UpdatedAt: formatTime(window.UpdatedAt),
	}
}
