package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/example/session-gate/internal/access"
	"github.com/example/session-gate/internal/logging"
	"github.com/example/session-gate/internal/persistence"
	"github.com/example/session-gate/internal/recurrence"
	"github.com/example/session-gate/internal/scheduler"
)

// DefaultStoreTimeout bounds every store call issued by the services.
const DefaultStoreTimeout = 3 * time.Second

const (
	maxSlugLength = 64
	maxNameLength = 200
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// CredentialSealer converts plaintext credentials into stored values.
type CredentialSealer interface {
	Seal(credential string) (value, format string, err error)
}

// SchedulingService manages scheduled windows and resolves their access state.
type SchedulingService struct {
	windows      persistence.WindowRepository
	credentials  CredentialSealer
	idGenerator  func() string
	now          func() time.Time
	storeTimeout time.Duration
	series       *recurrence.Engine
	logger       *slog.Logger
}

// NewSchedulingService wires dependencies for window operations.
func NewSchedulingService(windows persistence.WindowRepository, credentials CredentialSealer, idGenerator func() string, now func() time.Time, storeTimeout time.Duration) *SchedulingService {
	return NewSchedulingServiceWithLogger(windows, credentials, idGenerator, now, storeTimeout, nil)
}

// NewSchedulingServiceWithLogger wires dependencies with a specific logger.
func NewSchedulingServiceWithLogger(windows persistence.WindowRepository, credentials CredentialSealer, idGenerator func() string, now func() time.Time, storeTimeout time.Duration, logger *slog.Logger) *SchedulingService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &SchedulingService{
		windows:      windows,
		credentials:  credentials,
		idGenerator:  idGenerator,
		now:          now,
		storeTimeout: storeTimeout,
		series:       recurrence.NewEngine(time.UTC),
		logger:       logging.OrDefault(logger),
	}
}

// WithSeriesLocation sets the time zone whose wall clock window series
// follow. The default is UTC.
func (s *SchedulingService) WithSeriesLocation(loc *time.Location) *SchedulingService {
	if s != nil {
		s.series = recurrence.NewEngine(loc)
	}
	return s
}

func (s *SchedulingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SchedulingService", operation, attrs...)
}

func withStoreTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

// CheckAvailability reports whether [Start, End) is free on Slug. A store
// failure is returned as ErrStoreUnavailable, never as availability.
func (s *SchedulingService) CheckAvailability(ctx context.Context, query AvailabilityQuery) (available bool, err error) {
	if s == nil {
		return false, fmt.Errorf("SchedulingService is nil")
	}

	slug := normalizeSlug(query.Slug)
	logger := s.loggerWith(ctx, "CheckAvailability", "slug", slug, "exclude_id", query.ExcludeID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "availability check failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "availability checked", "available", available)
	}()

	candidate := scheduler.Window{Slug: slug, Start: query.Start, End: query.End}
	if vErr := validateInterval(candidate); vErr.HasErrors() {
		err = vErr
		return
	}

	var existing []scheduler.Window
	existing, err = s.overlapping(ctx, candidate, query.ExcludeID)
	if err != nil {
		return
	}
	available = scheduler.IsAvailable(existing, candidate, query.ExcludeID)
	return
}

// CreateWindow validates and stores a new window. The store enforces
// non-overlap independently of the pre-check performed here.
func (s *SchedulingService) CreateWindow(ctx context.Context, params CreateWindowParams) (window Window, err error) {
	if s == nil {
		return Window{}, fmt.Errorf("SchedulingService is nil")
	}

	input := normalizeWindowInput(params.Input)
	logger := s.loggerWith(ctx, "CreateWindow", "slug", input.Slug)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "window creation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("window_id", window.ID).InfoContext(ctx, "window created")
	}()

	vErr := validateWindowInput(input)
	if strings.TrimSpace(input.Credential) == "" {
		vErr.add("credential", "credential is required")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	id := strings.TrimSpace(params.ID)
	if id == "" {
		id = s.idGenerator()
	}
	if err = s.ensureAvailable(ctx, input, id); err != nil {
		return
	}

	record := persistence.ScheduledWindow{
		ID:    id,
		Slug:  input.Slug,
		Name:  input.Name,
		Start: input.Start.UTC(),
		End:   input.End.UTC(),
	}
	record.Credential, record.CredentialFormat, err = s.credentials.Seal(input.Credential)
	if err != nil {
		err = fmt.Errorf("seal credential: %w", err)
		return
	}
	now := s.now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err = mapStoreError(s.windows.CreateWindow(storeCtx, record)); err != nil {
		return
	}
	window = windowFromRecord(record)
	return
}

// UpdateWindow replaces a window's schedule. An empty credential keeps the
// stored one.
func (s *SchedulingService) UpdateWindow(ctx context.Context, params UpdateWindowParams) (window Window, err error) {
	if s == nil {
		return Window{}, fmt.Errorf("SchedulingService is nil")
	}

	input := normalizeWindowInput(params.Input)
	logger := s.loggerWith(ctx, "UpdateWindow", "window_id", params.WindowID, "slug", input.Slug)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "window update failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "window updated")
	}()

	if vErr := validateWindowInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	var existing persistence.ScheduledWindow
	existing, err = s.getRecord(ctx, params.WindowID)
	if err != nil {
		return
	}
	if err = s.ensureAvailable(ctx, input, existing.ID); err != nil {
		return
	}

	existing.Slug = input.Slug
	existing.Name = input.Name
	existing.Start = input.Start.UTC()
	existing.End = input.End.UTC()
	existing.UpdatedAt = s.now().UTC()
	if input.Credential != "" {
		existing.Credential, existing.CredentialFormat, err = s.credentials.Seal(input.Credential)
		if err != nil {
			err = fmt.Errorf("seal credential: %w", err)
			return
		}
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err = mapStoreError(s.windows.UpdateWindow(storeCtx, existing)); err != nil {
		return
	}
	window = windowFromRecord(existing)
	return
}

// DeleteWindow removes a window. Conversations created under it keep their
// group flag.
func (s *SchedulingService) DeleteWindow(ctx context.Context, id string) (err error) {
	if s == nil {
		return fmt.Errorf("SchedulingService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteWindow", "window_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "window deletion failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "window deleted")
	}()

	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	err = mapStoreError(s.windows.DeleteWindow(storeCtx, strings.TrimSpace(id)))
	return
}

// GetWindow returns a single window.
func (s *SchedulingService) GetWindow(ctx context.Context, id string) (Window, error) {
	if s == nil {
		return Window{}, fmt.Errorf("SchedulingService is nil")
	}
	record, err := s.getRecord(ctx, id)
	if err != nil {
		return Window{}, err
	}
	return windowFromRecord(record), nil
}

// ListWindows returns the windows of a slug ordered by start.
func (s *SchedulingService) ListWindows(ctx context.Context, slug string) ([]Window, error) {
	if s == nil {
		return nil, fmt.Errorf("SchedulingService is nil")
	}
	records, err := s.listRecords(ctx, normalizeSlug(slug))
	if err != nil {
		return nil, err
	}
	windows := make([]Window, 0, len(records))
	for _, r := range records {
		windows = append(windows, windowFromRecord(r))
	}
	return windows, nil
}

// ResolveAccess selects the slug's relevant window and classifies it at the
// current time. The decision is recomputed on every call.
func (s *SchedulingService) ResolveAccess(ctx context.Context, slug string) (decision AccessDecision, err error) {
	if s == nil {
		return AccessDecision{}, fmt.Errorf("SchedulingService is nil")
	}

	slug = normalizeSlug(slug)
	logger := s.loggerWith(ctx, "ResolveAccess", "slug", slug)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "access resolution failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "access resolved", "state", decision.Decision.State, "window_id", decision.Window.ID)
	}()

	now := s.now()
	var record persistence.ScheduledWindow
	record, err = selectWindowRecord(ctx, s.windows, s.storeTimeout, slug, now)
	if err != nil {
		return
	}
	decision = AccessDecision{
		Window:   windowFromRecord(record),
		Decision: access.Resolve(toSchedulerWindow(record), now),
	}
	return
}

func (s *SchedulingService) getRecord(ctx context.Context, id string) (persistence.ScheduledWindow, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return persistence.ScheduledWindow{}, ErrNotFound
	}
	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	record, err := s.windows.GetWindow(storeCtx, id)
	if err != nil {
		return persistence.ScheduledWindow{}, mapStoreError(err)
	}
	return record, nil
}

func (s *SchedulingService) listRecords(ctx context.Context, slug string) ([]persistence.ScheduledWindow, error) {
	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	records, err := s.windows.ListWindowsBySlug(storeCtx, slug)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return records, nil
}

// overlapping loads the stored windows on candidate's slug that the store
// reports as overlapping it.
func (s *SchedulingService) overlapping(ctx context.Context, candidate scheduler.Window, excludeID string) ([]scheduler.Window, error) {
	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	records, err := s.windows.ListOverlapping(storeCtx, candidate.Slug, candidate.Start, candidate.End, excludeID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	existing := make([]scheduler.Window, 0, len(records))
	for _, r := range records {
		existing = append(existing, toSchedulerWindow(r))
	}
	return existing, nil
}

func (s *SchedulingService) conflicts(ctx context.Context, candidate scheduler.Window, excludeID string) ([]scheduler.Conflict, error) {
	existing, err := s.overlapping(ctx, candidate, excludeID)
	if err != nil {
		return nil, err
	}
	return scheduler.DetectConflicts(existing, candidate, excludeID), nil
}

func (s *SchedulingService) ensureAvailable(ctx context.Context, input WindowInput, excludeID string) error {
	candidate := scheduler.Window{ID: excludeID, Slug: input.Slug, Start: input.Start, End: input.End}
	conflicts, err := s.conflicts(ctx, candidate, excludeID)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return &ConflictError{Conflicts: conflicts}
	}
	return nil
}

// selectWindowRecord loads the windows of slug and applies the selection
// policy of access.SelectWindow.
func selectWindowRecord(ctx context.Context, windows persistence.WindowRepository, timeout time.Duration, slug string, now time.Time) (persistence.ScheduledWindow, error) {
	if slug == "" {
		return persistence.ScheduledWindow{}, ErrNotFound
	}
	storeCtx, cancel := withStoreTimeout(ctx, timeout)
	defer cancel()
	records, err := windows.ListWindowsBySlug(storeCtx, slug)
	if err != nil {
		return persistence.ScheduledWindow{}, mapStoreError(err)
	}

	candidates := make([]scheduler.Window, 0, len(records))
	byID := make(map[string]persistence.ScheduledWindow, len(records))
	for _, r := range records {
		candidates = append(candidates, toSchedulerWindow(r))
		byID[r.ID] = r
	}
	selected, ok := access.SelectWindow(candidates, now)
	if !ok {
		return persistence.ScheduledWindow{}, ErrNotFound
	}
	return byID[selected.ID], nil
}

func toSchedulerWindow(r persistence.ScheduledWindow) scheduler.Window {
	return scheduler.Window{ID: r.ID, Slug: r.Slug, Start: r.Start, End: r.End}
}

func normalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

func normalizeWindowInput(input WindowInput) WindowInput {
	input.Slug = normalizeSlug(input.Slug)
	input.Name = strings.TrimSpace(input.Name)
	return input
}

func validateInterval(w scheduler.Window) *ValidationError {
	vErr := &ValidationError{}
	err := scheduler.Validate(w)
	if err == nil {
		return vErr
	}
	if errors.Is(err, scheduler.ErrMissingSlug) {
		vErr.add("slug", "slug is required")
	}
	if errors.Is(err, scheduler.ErrMissingStart) {
		vErr.add("start", "start is required")
	}
	if errors.Is(err, scheduler.ErrMissingEnd) {
		vErr.add("end", "end is required")
	}
	if errors.Is(err, scheduler.ErrEmptyInterval) {
		vErr.add("time", "start must be before end")
	}
	return vErr
}

func validateWindowInput(input WindowInput) *ValidationError {
	vErr := validateInterval(scheduler.Window{Slug: input.Slug, Start: input.Start, End: input.End})
	if input.Slug != "" {
		if len(input.Slug) > maxSlugLength || !slugPattern.MatchString(input.Slug) {
			vErr.add("slug", "slug must be lowercase letters, digits, '-' or '_'")
		}
	}
	if len(input.Name) > maxNameLength {
		vErr.add("name", "name is too long")
	}
	return vErr
}
