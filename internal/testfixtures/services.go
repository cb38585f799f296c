package testfixtures

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/session-gate/internal/application"
	"github.com/example/session-gate/internal/envelope"
	"github.com/example/session-gate/internal/persistence/memory"
	"github.com/example/session-gate/internal/timer"
)

// Stack is the full service graph over a real SQLite store, driven by a
// shared Clock.
type Stack struct {
	Clock   *Clock
	IDs     *IDGenerator
	Harness *SQLiteHarness
	Cipher  *envelope.Cipher
	Vault   *application.CredentialVault
	Grants  *memory.GrantStore

	Scheduling    *application.SchedulingService
	Gate          *application.GateService
	Conversations *application.ConversationService
}

// StackOptions tunes NewStack. Zero values select test defaults.
type StackOptions struct {
	Start          time.Time
	CredentialMode application.CredentialMode
	Policy         timer.Policy
	AttemptRate    float64
	AttemptBurst   int
	Logger         *slog.Logger
}

// NewStack wires the services the way the binary does, with deterministic
// ids and a controllable clock.
func NewStack(tb testing.TB, opts StackOptions) *Stack {
	tb.Helper()

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.CredentialMode == "" {
		opts.CredentialMode = application.CredentialModeHashed
	}
	if opts.AttemptRate <= 0 {
		opts.AttemptRate = 100
	}
	if opts.AttemptBurst <= 0 {
		opts.AttemptBurst = 100
	}

	clock := NewClock(opts.Start)
	ids := NewIDGenerator("id")
	harness := NewSQLiteHarness(tb)

	cipher, err := envelope.NewFromHex(TestKeyHex, envelope.WithLogger(logger))
	if err != nil {
		tb.Fatalf("failed to build cipher: %v", err)
	}
	vault, err := application.NewCredentialVault(opts.CredentialMode, cipher, CheapArgon2)
	if err != nil {
		tb.Fatalf("failed to build credential vault: %v", err)
	}

	grants := memory.NewGrantStore(time.Minute, clock.NowFunc())
	limiter := memory.NewAttemptLimiter(opts.AttemptRate, opts.AttemptBurst, time.Minute)
	storage := harness.Storage

	gate := application.NewGateServiceWithLogger(
		storage.Windows,
		grants,
		vault,
		limiter,
		NewIDGenerator("grant").NextFunc(),
		clock.NowFunc(),
		time.Second,
		logger,
	)

	return &Stack{
		Clock:   clock,
		IDs:     ids,
		Harness: harness,
		Cipher:  cipher,
		Vault:   vault,
		Grants:  grants,
		Scheduling: application.NewSchedulingServiceWithLogger(
			storage.Windows,
			vault,
			ids.NextFunc(),
			clock.NowFunc(),
			time.Second,
			logger,
		),
		Gate: gate,
		Conversations: application.NewConversationServiceWithLogger(
			application.ConversationStores{
				Conversations: storage.Conversations,
				Messages:      storage.Messages,
				Windows:       storage.Windows,
			},
			gate,
			cipher,
			opts.Policy,
			ids.NextFunc(),
			clock.NowFunc(),
			time.Second,
			logger,
		),
	}
}
