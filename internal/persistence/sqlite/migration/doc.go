// Package migration applies versioned SQL files to a SQLite database.
//
// Migration files are read from an fs.FS, usually an embedded directory, and
// must be named {version}_{description}.sql (e.g. "001_initial_schema.sql").
// Each file runs in its own transaction and is recorded, together with its
// checksum, in the schema_migrations table. Files may contain CREATE TRIGGER
// bodies; statements inside BEGIN ... END are kept together.
//
// Example usage:
//
//	manager := migration.NewManager(migration.NewScanner(), migration.NewSQLiteExecutor(db), migrations, "migrations", logger)
//	if err := manager.Run(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
