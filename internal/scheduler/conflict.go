package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Window is a bookable [Start, End) period reachable through Slug.
type Window struct {
	ID    string
	Slug  string
	Start time.Time
	End   time.Time
}

// Conflict details an existing window that overlaps a candidate.
type Conflict struct {
	WithWindowID string
	Slug         string
	Start        time.Time
	End          time.Time
}

var (
	// ErrMissingSlug indicates the window has no identifier.
	ErrMissingSlug = errors.New("scheduler: slug is required")
	// ErrMissingBounds indicates the start or end instant is unset.
	ErrMissingBounds = errors.New("scheduler: start and end are required")
	ErrMissingStart  = fmt.Errorf("%w: start is unset", ErrMissingBounds)
	ErrMissingEnd    = fmt.Errorf("%w: end is unset", ErrMissingBounds)
	// ErrEmptyInterval indicates start is not strictly before end.
	ErrEmptyInterval = errors.New("scheduler: start must be before end")
)

// Validate checks the structural invariants of a window and reports every
// violation at once, joined with errors.Join.
func Validate(w Window) error {
	var errs []error
	if strings.TrimSpace(w.Slug) == "" {
		errs = append(errs, ErrMissingSlug)
	}
	if w.Start.IsZero() {
		errs = append(errs, ErrMissingStart)
	}
	if w.End.IsZero() {
		errs = append(errs, ErrMissingEnd)
	}
	if !w.Start.IsZero() && !w.End.IsZero() && !w.Start.Before(w.End) {
		errs = append(errs, ErrEmptyInterval)
	}
	return errors.Join(errs...)
}

// Overlaps applies the half-open interval test. Windows that only touch at a
// boundary do not overlap.
func Overlaps(a, b Window) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// DetectConflicts returns every existing window on the candidate's slug that
// overlaps it, skipping excludeID. Results are ordered by start then id.
func DetectConflicts(existing []Window, candidate Window, excludeID string) []Conflict {
	var conflicts []Conflict
	for _, w := range existing {
		if excludeID != "" && w.ID == excludeID {
			continue
		}
		if w.Slug != candidate.Slug {
			continue
		}
		if !Overlaps(w, candidate) {
			continue
		}
		conflicts = append(conflicts, Conflict{
			WithWindowID: w.ID,
			Slug:         w.Slug,
			Start:        w.Start,
			End:          w.End,
		})
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		if !conflicts[i].Start.Equal(conflicts[j].Start) {
			return conflicts[i].Start.Before(conflicts[j].Start)
		}
		return conflicts[i].WithWindowID < conflicts[j].WithWindowID
	})
	return conflicts
}

// IsAvailable reports whether candidate can be booked without conflicts.
func IsAvailable(existing []Window, candidate Window, excludeID string) bool {
	return len(DetectConflicts(existing, candidate, excludeID)) == 0
}
