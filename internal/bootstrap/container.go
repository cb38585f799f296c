// Package bootstrap is the composition root: it turns a config.Config into a
// ready HTTP handler backed by SQLite.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/example/session-gate/internal/application"
	"github.com/example/session-gate/internal/config"
	"github.com/example/session-gate/internal/envelope"
	httptransport "github.com/example/session-gate/internal/http"
	"github.com/example/session-gate/internal/persistence/memory"
	"github.com/example/session-gate/internal/persistence/sqlite"
)

// attemptIdleTTL bounds how long an idle slug keeps its limiter state.
const attemptIdleTTL = 30 * time.Minute

type Container struct {
	// Infrastructure
	Storage *sqlite.Storage
	Cipher  *envelope.Cipher
	Grants  *memory.GrantStore

	// Services
	Scheduling    *application.SchedulingService
	Gate          *application.GateService
	Conversations *application.ConversationService

	// Transport
	Handler http.Handler
}

// NewContainer opens and migrates the store and wires every service. The
// caller owns the returned container and must Close it.
func NewContainer(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// 1. Cipher and credential vault
	cipher, err := envelope.New(cfg.EncryptionKey, envelope.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: cipher: %w", err)
	}
	vault, err := application.NewCredentialVault(cfg.CredentialMode, cipher, application.DefaultArgon2idParams)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: credential vault: %w", err)
	}

	// 2. Storage
	storage, err := sqlite.Open(ctx, sqlite.DefaultConfig(cfg.DatabasePath), logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open storage: %w", err)
	}
	if err := storage.Migrate(ctx); err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	// 3. In-memory stores
	grants := memory.NewGrantStore(cfg.GrantSweep, time.Now)
	limiter := memory.NewAttemptLimiter(cfg.AttemptRate, cfg.AttemptBurst, attemptIdleTTL)

	// 4. Services
	scheduling := application.NewSchedulingServiceWithLogger(storage.Windows, vault, uuid.NewString, time.Now, cfg.StoreTimeout, logger).
		WithSeriesLocation(cfg.SeriesLocation)
	gate := application.NewGateServiceWithLogger(storage.Windows, grants, vault, limiter, uuid.NewString, time.Now, cfg.StoreTimeout, logger)
	conversations := application.NewConversationServiceWithLogger(
		application.ConversationStores{
			Conversations: storage.Conversations,
			Messages:      storage.Messages,
			Windows:       storage.Windows,
		},
		gate,
		cipher,
		cfg.Timer,
		uuid.NewString,
		time.Now,
		cfg.StoreTimeout,
		logger,
	)

	// 5. Handlers and router
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Windows:       httptransport.NewWindowHandler(scheduling, logger),
		Access:        httptransport.NewAccessHandler(scheduling, gate, logger),
		Conversations: httptransport.NewConversationHandler(conversations, logger),
		Health:        storage,
		AdminAuth:     httptransport.RequireAdminToken(cfg.AdminToken, logger),
		Middleware:    []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})

	if cfg.AdminToken == "" {
		logger.WarnContext(ctx, "admin token not configured; window management is unauthenticated")
	}

	return &Container{
		Storage:       storage,
		Cipher:        cipher,
		Grants:        grants,
		Scheduling:    scheduling,
		Gate:          gate,
		Conversations: conversations,
		Handler:       router,
	}, nil
}

// Close releases the database.
func (c *Container) Close() error {
	if c == nil || c.Storage == nil {
		return nil
	}
	return c.Storage.Close()
}
