package access

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/session-gate/internal/scheduler"
)

var (
	windowStart = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	windowEnd   = windowStart.Add(time.Hour)
	window      = scheduler.Window{ID: "w1", Slug: "team", Start: windowStart, End: windowEnd}
)

func TestResolveThresholds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		now     time.Time
		state   State
		minutes int
	}{
		{"exactly ten minutes before", windowStart.Add(-10 * time.Minute), StateNearFuture, 10},
		{"eleven minutes before", windowStart.Add(-11 * time.Minute), StateFarFuture, 11},
		{"rounds partial minute up", windowStart.Add(-(9*time.Minute + time.Second)), StateNearFuture, 10},
		{"just past ten minutes", windowStart.Add(-(10*time.Minute + time.Second)), StateFarFuture, 11},
		{"one second before", windowStart.Add(-time.Second), StateNearFuture, 1},
		{"at start", windowStart, StateActive, 0},
		{"at end", windowEnd, StateActive, 0},
		{"one second after end", windowEnd.Add(time.Second), StateFinished, 0},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Resolve(window, tc.now)
			require.Equal(t, tc.state, got.State)
			require.Equal(t, tc.minutes, got.MinutesRemaining)
		})
	}
}

func TestDecisionHoursMinutes(t *testing.T) {
	t.Parallel()

	d := Resolve(window, windowStart.Add(-(2*time.Hour + 5*time.Minute)))
	require.Equal(t, StateFarFuture, d.State)
	hours, minutes := d.HoursMinutes()
	require.Equal(t, 2, hours)
	require.Equal(t, 5, minutes)
	require.True(t, StateFinished.Terminal())
	require.False(t, StateActive.Terminal())
}

func TestSelectWindow(t *testing.T) {
	t.Parallel()

	day := 24 * time.Hour
	yesterday := scheduler.Window{ID: "yesterday", Slug: "team", Start: windowStart.Add(-day), End: windowEnd.Add(-day)}
	lastWeek := scheduler.Window{ID: "last-week", Slug: "team", Start: windowStart.Add(-7 * day), End: windowEnd.Add(-7 * day)}
	tomorrow := scheduler.Window{ID: "tomorrow", Slug: "team", Start: windowStart.Add(day), End: windowEnd.Add(day)}
	nextWeek := scheduler.Window{ID: "next-week", Slug: "team", Start: windowStart.Add(7 * day), End: windowEnd.Add(7 * day)}

	t.Run("active wins", func(t *testing.T) {
		got, ok := SelectWindow([]scheduler.Window{yesterday, tomorrow, window}, windowStart.Add(time.Minute))
		require.True(t, ok)
		require.Equal(t, "w1", got.ID)
	})

	t.Run("nearest upcoming before finished", func(t *testing.T) {
		got, ok := SelectWindow([]scheduler.Window{nextWeek, yesterday, tomorrow}, windowStart)
		require.True(t, ok)
		require.Equal(t, "tomorrow", got.ID)
	})

	t.Run("most recent finished", func(t *testing.T) {
		got, ok := SelectWindow([]scheduler.Window{lastWeek, yesterday}, windowStart)
		require.True(t, ok)
		require.Equal(t, "yesterday", got.ID)
	})

	t.Run("empty", func(t *testing.T) {
		_, ok := SelectWindow(nil, windowStart)
		require.False(t, ok)
	})
}

type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.now
	c.now = c.now.Add(c.step)
	return current
}

func fixedFetch(w scheduler.Window) Fetcher {
	return func(context.Context) (scheduler.Window, error) { return w, nil }
}

func TestPollerStopsWhenActive(t *testing.T) {
	t.Parallel()

	clock := &steppingClock{now: windowStart.Add(-12 * time.Minute), step: 5 * time.Minute}
	poller := NewPoller(WithInterval(time.Millisecond), WithClock(clock.Now))

	var states []State
	var minutes []int
	for update := range poller.Watch(context.Background(), fixedFetch(window)) {
		require.NoError(t, update.Err)
		states = append(states, update.Decision.State)
		minutes = append(minutes, update.Decision.MinutesRemaining)
	}

	require.Equal(t, []State{StateFarFuture, StateNearFuture, StateNearFuture, StateActive}, states)
	require.Equal(t, []int{12, 7, 2, 0}, minutes)
}

func TestPollerStopsWhenFinished(t *testing.T) {
	t.Parallel()

	poller := NewPoller(WithInterval(time.Millisecond), WithClock(func() time.Time { return windowEnd.Add(time.Minute) }))

	var updates []Update
	for update := range poller.Watch(context.Background(), fixedFetch(window)) {
		updates = append(updates, update)
	}
	require.Len(t, updates, 1)
	require.Equal(t, StateFinished, updates[0].Decision.State)
}

func TestPollerStopsOnFetchError(t *testing.T) {
	t.Parallel()

	boom := errors.New("store down")
	poller := NewPoller(WithInterval(time.Millisecond))
	fetch := func(context.Context) (scheduler.Window, error) { return scheduler.Window{}, boom }

	var updates []Update
	for update := range poller.Watch(context.Background(), fetch) {
		updates = append(updates, update)
	}
	require.Len(t, updates, 1)
	require.ErrorIs(t, updates[0].Err, boom)
}

func TestPollerStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	poller := NewPoller(WithInterval(time.Hour), WithClock(func() time.Time { return windowStart.Add(-time.Hour) }))
	updates := poller.Watch(ctx, fixedFetch(window))

	first, ok := <-updates
	require.True(t, ok)
	require.Equal(t, StateFarFuture, first.Decision.State)

	cancel()
	select {
	case _, ok := <-updates:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
}
