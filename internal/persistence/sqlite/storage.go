// Package sqlite is the SQLite adapter for the persistence ports. The schema
// is embedded and applied by Migrate; overlap exclusion between windows on the
// same slug is enforced inside the database.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/session-gate/internal/persistence/sqlite/migration"
)

// Storage bundles the connection pool with the repositories built on it.
type Storage struct {
	pool   *ConnectionPool
	logger *slog.Logger

	Windows       *WindowRepository
	Conversations *ConversationRepository
	Messages      *MessageRepository
}

// Open connects to the database described by config. Call Migrate before
// using the repositories.
func Open(ctx context.Context, config Config, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := NewConnectionPool(ctx, config)
	if err != nil {
		return nil, err
	}
	return &Storage{
		pool:          pool,
		logger:        logger,
		Windows:       NewWindowRepository(pool),
		Conversations: NewConversationRepository(pool),
		Messages:      NewMessageRepository(pool),
	}, nil
}

// Migrate applies the embedded schema migrations.
func (s *Storage) Migrate(ctx context.Context) error {
	manager := migration.NewManager(
		migration.NewScanner(),
		migration.NewSQLiteExecutor(s.pool.DB()),
		migrationFiles,
		migrationDir,
		s.logger,
	)
	if err := manager.Run(ctx); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}
