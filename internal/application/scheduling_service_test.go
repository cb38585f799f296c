package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/session-gate/internal/access"
	"github.com/example/session-gate/internal/persistence"
)

func newTestVault(t *testing.T, mode CredentialMode) *CredentialVault {
	t.Helper()
	vault, err := NewCredentialVault(mode, newTestCipher(t), cheapArgon2)
	if err != nil {
		t.Fatalf("failed to build vault: %v", err)
	}
	return vault
}

func newSchedulingFixture(t *testing.T, repo *windowRepoStub, clock *testClock) *SchedulingService {
	t.Helper()
	return NewSchedulingService(repo, newTestVault(t, CredentialModeHashed), sequentialIDs("window"), clock.Now, 50*time.Millisecond)
}

func storedWindow(id, slug string, start, end time.Time) persistence.ScheduledWindow {
	return persistence.ScheduledWindow{ID: id, Slug: slug, Name: "Group " + id, Start: start, End: end}
}

func TestSchedulingService_CreateWindow_ValidatesInput(t *testing.T) {
	t.Parallel()

	svc := newSchedulingFixture(t, newWindowRepoStub(), newTestClock(t0))

	_, err := svc.CreateWindow(context.Background(), CreateWindowParams{
		Input: WindowInput{Slug: "  ", Start: t0.Add(time.Hour), End: t0},
	})

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"slug", "time", "credential"} {
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Fatalf("expected %s validation error, got %v", field, vErr.FieldErrors)
		}
	}

	_, err = svc.CreateWindow(context.Background(), CreateWindowParams{
		Input: WindowInput{Slug: "Bad Slug!", Start: t0, End: t0.Add(time.Hour), Credential: "pw"},
	})
	if !errors.As(err, &vErr) || vErr.FieldErrors["slug"] == "" {
		t.Fatalf("expected slug format error, got %v", err)
	}
}

func TestSchedulingService_CheckAvailability_ReportsMissingBounds(t *testing.T) {
	t.Parallel()

	svc := newSchedulingFixture(t, newWindowRepoStub(), newTestClock(t0))

	_, err := svc.CheckAvailability(context.Background(), AvailabilityQuery{Slug: "team-a"})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"start", "end"} {
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Fatalf("expected %s validation error, got %v", field, vErr.FieldErrors)
		}
	}
	if _, ok := vErr.FieldErrors["time"]; ok {
		t.Fatalf("unexpected interval error for unset bounds: %v", vErr.FieldErrors)
	}
}

func TestSchedulingService_CreateWindow_SealsCredential(t *testing.T) {
	t.Parallel()

	repo := newWindowRepoStub()
	svc := newSchedulingFixture(t, repo, newTestClock(t0))

	window, err := svc.CreateWindow(context.Background(), CreateWindowParams{
		ID:    "group-1",
		Input: WindowInput{Slug: " Team-A ", Name: "Team A", Start: t0, End: t0.Add(time.Hour), Credential: "open sesame"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if window.ID != "group-1" || window.Slug != "team-a" {
		t.Fatalf("unexpected window %+v", window)
	}

	stored := repo.windows["group-1"]
	if stored.Credential == "open sesame" || stored.CredentialFormat != credentialFormatHashed {
		t.Fatalf("expected hashed credential, got %q (%s)", stored.Credential, stored.CredentialFormat)
	}
	if !stored.CreatedAt.Equal(t0) {
		t.Fatalf("expected CreatedAt %v, got %v", t0, stored.CreatedAt)
	}
}

func TestSchedulingService_CreateWindow_RejectsOverlap(t *testing.T) {
	t.Parallel()

	repo := newWindowRepoStub(storedWindow("existing", "team", t0.Add(9*time.Hour), t0.Add(11*time.Hour)))
	svc := newSchedulingFixture(t, repo, newTestClock(t0))

	_, err := svc.CreateWindow(context.Background(), CreateWindowParams{
		Input: WindowInput{Slug: "team", Start: t0.Add(10*time.Hour + 30*time.Minute), End: t0.Add(12 * time.Hour), Credential: "pw"},
	})
	if !errors.Is(err, ErrSchedulingConflict) {
		t.Fatalf("expected scheduling conflict, got %v", err)
	}
	var cErr *ConflictError
	if !errors.As(err, &cErr) || len(cErr.Conflicts) != 1 || cErr.Conflicts[0].WithWindowID != "existing" {
		t.Fatalf("expected conflict with existing window, got %v", err)
	}

	touching, err := svc.CreateWindow(context.Background(), CreateWindowParams{
		Input: WindowInput{Slug: "team", Start: t0.Add(11 * time.Hour), End: t0.Add(12 * time.Hour), Credential: "pw"},
	})
	if err != nil {
		t.Fatalf("expected touching window to be accepted, got %v", err)
	}
	if touching.ID == "" {
		t.Fatalf("expected generated id")
	}
}

func TestSchedulingService_CreateWindow_StoreConstraintWins(t *testing.T) {
	t.Parallel()

	repo := newWindowRepoStub(storedWindow("racer", "team", t0, t0.Add(time.Hour)))
	repo.hideOverlaps = true
	svc := newSchedulingFixture(t, repo, newTestClock(t0))

	_, err := svc.CreateWindow(context.Background(), CreateWindowParams{
		Input: WindowInput{Slug: "team", Start: t0.Add(30 * time.Minute), End: t0.Add(2 * time.Hour), Credential: "pw"},
	})
	if !errors.Is(err, ErrSchedulingConflict) {
		t.Fatalf("expected store overlap to surface as conflict, got %v", err)
	}
}

func TestSchedulingService_CheckAvailability(t *testing.T) {
	t.Parallel()

	repo := newWindowRepoStub(storedWindow("w-1", "team", t0.Add(9*time.Hour), t0.Add(11*time.Hour)))
	svc := newSchedulingFixture(t, repo, newTestClock(t0))
	ctx := context.Background()

	cases := []struct {
		name      string
		query     AvailabilityQuery
		available bool
	}{
		{"touching", AvailabilityQuery{Slug: "team", Start: t0.Add(11 * time.Hour), End: t0.Add(12 * time.Hour)}, true},
		{"overlapping", AvailabilityQuery{Slug: "team", Start: t0.Add(10*time.Hour + 30*time.Minute), End: t0.Add(12 * time.Hour)}, false},
		{"self excluded", AvailabilityQuery{Slug: "team", Start: t0.Add(10 * time.Hour), End: t0.Add(12 * time.Hour), ExcludeID: "w-1"}, true},
		{"other slug", AvailabilityQuery{Slug: "other", Start: t0.Add(10 * time.Hour), End: t0.Add(12 * time.Hour)}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.CheckAvailability(ctx, tc.query)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.available {
				t.Fatalf("expected available=%v, got %v", tc.available, got)
			}
		})
	}
}

func TestSchedulingService_CheckAvailability_StoreFailure(t *testing.T) {
	t.Parallel()

	query := AvailabilityQuery{Slug: "team", Start: t0, End: t0.Add(time.Hour)}

	failing := newWindowRepoStub()
	failing.err = errors.New("disk on fire")
	available, err := newSchedulingFixture(t, failing, newTestClock(t0)).CheckAvailability(context.Background(), query)
	if !errors.Is(err, ErrStoreUnavailable) || available {
		t.Fatalf("expected store unavailable and not available, got %v, %v", available, err)
	}

	slow := newWindowRepoStub()
	slow.block = true
	started := time.Now()
	available, err = newSchedulingFixture(t, slow, newTestClock(t0)).CheckAvailability(context.Background(), query)
	if !errors.Is(err, ErrStoreUnavailable) || available {
		t.Fatalf("expected timeout to surface as store unavailable, got %v, %v", available, err)
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Fatalf("expected store timeout to bound the call, took %v", elapsed)
	}
}

func TestSchedulingService_UpdateWindow(t *testing.T) {
	t.Parallel()

	repo := newWindowRepoStub(
		storedWindow("w-1", "team", t0, t0.Add(time.Hour)),
		storedWindow("w-2", "team", t0.Add(2*time.Hour), t0.Add(3*time.Hour)),
	)
	repo.windows["w-1"] = func() persistence.ScheduledWindow {
		w := repo.windows["w-1"]
		w.Credential, w.CredentialFormat = "stored", "plain"
		return w
	}()
	clock := newTestClock(t0)
	svc := newSchedulingFixture(t, repo, clock)
	ctx := context.Background()

	clock.Set(t0.Add(time.Minute))
	updated, err := svc.UpdateWindow(ctx, UpdateWindowParams{
		WindowID: "w-1",
		Input:    WindowInput{Slug: "team", Name: "Longer", Start: t0, End: t0.Add(2 * time.Hour)},
	})
	if err != nil {
		t.Fatalf("expected extension up to the next window to succeed, got %v", err)
	}
	if updated.Name != "Longer" || !updated.UpdatedAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if repo.windows["w-1"].Credential != "stored" {
		t.Fatalf("expected empty credential to keep the stored one")
	}

	_, err = svc.UpdateWindow(ctx, UpdateWindowParams{
		WindowID: "w-1",
		Input:    WindowInput{Slug: "team", Start: t0, End: t0.Add(150 * time.Minute)},
	})
	if !errors.Is(err, ErrSchedulingConflict) {
		t.Fatalf("expected conflict with w-2, got %v", err)
	}

	_, err = svc.UpdateWindow(ctx, UpdateWindowParams{
		WindowID: "missing",
		Input:    WindowInput{Slug: "team", Start: t0, End: t0.Add(time.Hour)},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSchedulingService_DeleteAndList(t *testing.T) {
	t.Parallel()

	repo := newWindowRepoStub(
		storedWindow("w-2", "team", t0.Add(2*time.Hour), t0.Add(3*time.Hour)),
		storedWindow("w-1", "team", t0, t0.Add(time.Hour)),
	)
	svc := newSchedulingFixture(t, repo, newTestClock(t0))
	ctx := context.Background()

	windows, err := svc.ListWindows(ctx, "TEAM")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(windows) != 2 || windows[0].ID != "w-1" {
		t.Fatalf("expected windows ordered by start, got %+v", windows)
	}

	if err := svc.DeleteWindow(ctx, "w-1"); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if err := svc.DeleteWindow(ctx, "w-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if _, err := svc.GetWindow(ctx, "w-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted window to be gone, got %v", err)
	}
}

func TestSchedulingService_ResolveAccess(t *testing.T) {
	t.Parallel()

	repo := newWindowRepoStub(
		storedWindow("past", "team", t0.Add(-2*time.Hour), t0.Add(-time.Hour)),
		storedWindow("soon", "team", t0.Add(10*time.Minute), t0.Add(time.Hour)),
	)
	clock := newTestClock(t0)
	svc := newSchedulingFixture(t, repo, clock)
	ctx := context.Background()

	decision, err := svc.ResolveAccess(ctx, "team")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Window.ID != "soon" || decision.Decision.State != access.StateNearFuture || decision.Decision.MinutesRemaining != 10 {
		t.Fatalf("expected upcoming window NEAR_FUTURE 10, got %+v", decision)
	}

	clock.Set(t0.Add(20 * time.Minute))
	decision, err = svc.ResolveAccess(ctx, "team")
	if err != nil || decision.Decision.State != access.StateActive {
		t.Fatalf("expected ACTIVE after start, got %+v, %v", decision, err)
	}

	clock.Set(t0.Add(2 * time.Hour))
	decision, err = svc.ResolveAccess(ctx, "team")
	if err != nil || decision.Window.ID != "soon" || decision.Decision.State != access.StateFinished {
		t.Fatalf("expected most recent window FINISHED, got %+v, %v", decision, err)
	}

	if _, err := svc.ResolveAccess(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown slug, got %v", err)
	}
}
