package access

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/session-gate/internal/scheduler"
)

// DefaultPollInterval is how often a waiting client re-resolves its window.
const DefaultPollInterval = 10 * time.Second

// Fetcher loads the current window for a watched slug.
type Fetcher func(ctx context.Context) (scheduler.Window, error)

// Update is emitted by Poller.Watch after every resolution attempt.
type Update struct {
	Decision Decision
	Window   scheduler.Window
	At       time.Time
	Err      error
}

// Poller re-resolves a window on an interval until it becomes ACTIVE or
// FINISHED. It replaces a free-running UI timer with a task bound to a
// context.
type Poller struct {
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// PollerOption customises a Poller.
type PollerOption func(*Poller)

// WithInterval overrides DefaultPollInterval.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) PollerOption {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

// WithPollerLogger sets the logger used for fetch failures.
func WithPollerLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPoller constructs a Poller.
func NewPoller(opts ...PollerOption) *Poller {
	p := &Poller{interval: DefaultPollInterval, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Watch resolves immediately and then once per interval, emitting each
// decision. The returned channel is closed when the window becomes ACTIVE or
// FINISHED, when fetch fails, or when ctx is cancelled.
func (p *Poller) Watch(ctx context.Context, fetch Fetcher) <-chan Update {
	updates := make(chan Update, 1)

	go func() {
		defer close(updates)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			update := p.poll(ctx, fetch)
			select {
			case updates <- update:
			case <-ctx.Done():
				return
			}
			if update.Err != nil || update.Decision.State == StateActive || update.Decision.State.Terminal() {
				return
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return updates
}

func (p *Poller) poll(ctx context.Context, fetch Fetcher) Update {
	w, err := fetch(ctx)
	at := p.now()
	if err != nil {
		p.logger.WarnContext(ctx, "access poll failed", "component", "access_poller", "error", err)
		return Update{At: at, Err: err}
	}
	return Update{Decision: Resolve(w, at), Window: w, At: at}
}
