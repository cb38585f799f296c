package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/session-gate/internal/persistence"
	"github.com/example/session-gate/internal/recurrence"
	"github.com/example/session-gate/internal/scheduler"
)

// SeriesInput describes a repeating window. Window holds the first
// occurrence; every later one shares its slug, name, credential, time of day
// and duration.
type SeriesInput struct {
	Window    WindowInput
	Frequency string
	Weekdays  []time.Weekday
	Until     time.Time
}

// CreateWindowSeries creates every window of a series or none of them. All
// occurrences are checked against existing windows before the first insert;
// if an insert still fails, the windows already created are removed again.
func (s *SchedulingService) CreateWindowSeries(ctx context.Context, input SeriesInput) (windows []Window, err error) {
	if s == nil {
		return nil, fmt.Errorf("SchedulingService is nil")
	}

	input.Window = normalizeWindowInput(input.Window)
	logger := s.loggerWith(ctx, "CreateWindowSeries", "slug", input.Window.Slug, "frequency", input.Frequency)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "window series creation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "window series created", "count", len(windows))
	}()

	occurrences, vErr := s.expandSeries(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var conflicts []scheduler.Conflict
	for _, occ := range occurrences {
		candidate := scheduler.Window{Slug: input.Window.Slug, Start: occ.Start, End: occ.End}
		var found []scheduler.Conflict
		if found, err = s.conflicts(ctx, candidate, ""); err != nil {
			return
		}
		conflicts = append(conflicts, found...)
	}
	if len(conflicts) > 0 {
		err = &ConflictError{Conflicts: conflicts}
		return
	}

	credential, format, sealErr := s.credentials.Seal(input.Window.Credential)
	if sealErr != nil {
		err = fmt.Errorf("seal credential: %w", sealErr)
		return
	}

	now := s.now().UTC()
	created := make([]Window, 0, len(occurrences))
	for _, occ := range occurrences {
		record := persistence.ScheduledWindow{
			ID:               s.idGenerator(),
			Slug:             input.Window.Slug,
			Name:             input.Window.Name,
			Start:            occ.Start,
			End:              occ.End,
			Credential:       credential,
			CredentialFormat: format,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
		createErr := s.windows.CreateWindow(storeCtx, record)
		cancel()
		if createErr != nil {
			err = mapStoreError(createErr)
			s.rollbackSeries(ctx, created)
			return
		}
		created = append(created, windowFromRecord(record))
	}

	windows = created
	return
}

func (s *SchedulingService) expandSeries(input SeriesInput) ([]recurrence.Occurrence, *ValidationError) {
	vErr := validateWindowInput(input.Window)
	if strings.TrimSpace(input.Window.Credential) == "" {
		vErr.add("credential", "credential is required")
	}

	frequency, freqErr := recurrence.ParseFrequency(input.Frequency)
	if freqErr != nil {
		vErr.add("frequency", "frequency must be daily or weekly")
	}
	if vErr.HasErrors() {
		return nil, vErr
	}

	occurrences, err := s.series.Expand(recurrence.Rule{
		Frequency: frequency,
		Weekdays:  input.Weekdays,
		Until:     input.Until,
	}, input.Window.Start, input.Window.End)
	switch {
	case errors.Is(err, recurrence.ErrInvalidUntil):
		vErr.add("until", "until must not precede the first window")
	case errors.Is(err, recurrence.ErrFirstWeekdayExcluded):
		vErr.add("weekdays", "weekdays must include the first window's weekday")
	case errors.Is(err, recurrence.ErrTooManyOccurrences):
		vErr.add("until", fmt.Sprintf("series may not exceed %d windows", recurrence.MaxOccurrences))
	case err != nil:
		vErr.add("recurrence", err.Error())
	case len(occurrences) == 0:
		vErr.add("weekdays", "series has no windows")
	}
	for i := 1; i < len(occurrences) && !vErr.HasErrors(); i++ {
		prev := scheduler.Window{Slug: input.Window.Slug, Start: occurrences[i-1].Start, End: occurrences[i-1].End}
		next := scheduler.Window{Slug: input.Window.Slug, Start: occurrences[i].Start, End: occurrences[i].End}
		if scheduler.Overlaps(prev, next) {
			vErr.add("end", "windows in the series overlap each other")
		}
	}
	if vErr.HasErrors() {
		return nil, vErr
	}
	return occurrences, vErr
}

// rollbackSeries deletes windows created before a failed insert. It uses a
// fresh context so cancellation of the request does not strand a partial
// series.
func (s *SchedulingService) rollbackSeries(ctx context.Context, created []Window) {
	for _, w := range created {
		storeCtx, cancel := withStoreTimeout(context.WithoutCancel(ctx), s.storeTimeout)
		if err := s.windows.DeleteWindow(storeCtx, w.ID); err != nil {
			s.loggerWith(ctx, "CreateWindowSeries", "window_id", w.ID).ErrorContext(ctx, "series rollback failed", "error", err)
		}
		cancel()
	}
}
