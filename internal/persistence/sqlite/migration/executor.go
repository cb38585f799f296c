package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const appliedAtLayout = time.RFC3339Nano

// SQLiteExecutor applies migrations to a SQLite database.
type SQLiteExecutor struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteExecutor creates a new SQLite migration executor.
func NewSQLiteExecutor(db *sql.DB) *SQLiteExecutor {
	return &SQLiteExecutor{db: db, now: time.Now}
}

// InitializeVersionTable creates schema_migrations if it doesn't exist.
func (e *SQLiteExecutor) InitializeVersionTable(ctx context.Context) error {
	const stmt = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL,
			checksum TEXT NOT NULL DEFAULT '',
			execution_time_ms INTEGER NOT NULL DEFAULT 0
		)`
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return newDatabaseError("", stmt, "create schema_migrations table", err)
	}
	return nil
}

// ExecuteMigration runs every statement of m in a single transaction.
func (e *SQLiteExecutor) ExecuteMigration(ctx context.Context, m Migration) (err error) {
	statements := splitStatements(m.SQL)
	if len(statements) == 0 {
		return newMigrationError(m.Version, m.Path, "parse SQL", fmt.Errorf("%w: no SQL statements", ErrInvalidMigrationFile))
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return newDatabaseError(m.Version, "", "begin transaction", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	for i, stmt := range statements {
		if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
			return newDatabaseError(m.Version, stmt, fmt.Sprintf("execute statement %d", i+1), execErr)
		}
	}

	if err = tx.Commit(); err != nil {
		return newDatabaseError(m.Version, "", "commit transaction", err)
	}
	return nil
}

// RecordMigration stores m as applied.
func (e *SQLiteExecutor) RecordMigration(ctx context.Context, m Migration, executionTime time.Duration) error {
	const stmt = `INSERT INTO schema_migrations (version, applied_at, checksum, execution_time_ms) VALUES (?, ?, ?, ?)`
	appliedAt := e.now().UTC().Format(appliedAtLayout)
	if _, err := e.db.ExecContext(ctx, stmt, m.Version, appliedAt, m.Checksum, executionTime.Milliseconds()); err != nil {
		return newDatabaseError(m.Version, stmt, "record migration", err)
	}
	return nil
}

// AppliedMigrations lists schema_migrations ordered by version.
func (e *SQLiteExecutor) AppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	const query = `SELECT version, applied_at, checksum, execution_time_ms FROM schema_migrations ORDER BY CAST(version AS INTEGER)`
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, newDatabaseError("", query, "list applied migrations", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			row       AppliedMigration
			appliedAt string
			elapsedMS int64
		)
		if err := rows.Scan(&row.Version, &appliedAt, &row.Checksum, &elapsedMS); err != nil {
			return nil, newDatabaseError("", query, "scan applied migration", err)
		}
		row.AppliedAt, err = time.Parse(appliedAtLayout, appliedAt)
		if err != nil {
			return nil, newDatabaseError(row.Version, query, "parse applied_at", err)
		}
		row.ExecutionTime = time.Duration(elapsedMS) * time.Millisecond
		applied = append(applied, row)
	}
	if err := rows.Err(); err != nil {
		return nil, newDatabaseError("", query, "iterate applied migrations", err)
	}
	return applied, nil
}

// splitStatements splits a migration body on semicolons, dropping comment
// lines. A CREATE TRIGGER statement is kept whole up to its closing END.
func splitStatements(content string) []string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		lines = append(lines, trimmed)
	}

	var (
		statements []string
		pending    []string
	)
	for _, piece := range strings.Split(strings.Join(lines, "\n"), ";") {
		if len(pending) == 0 && strings.TrimSpace(piece) == "" {
			continue
		}
		pending = append(pending, piece)
		stmt := strings.TrimSpace(strings.Join(pending, ";"))
		if isTrigger(stmt) && !endsWithEnd(stmt) {
			continue
		}
		statements = append(statements, stmt)
		pending = pending[:0]
	}
	if len(pending) > 0 {
		if stmt := strings.TrimSpace(strings.Join(pending, ";")); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}

func isTrigger(stmt string) bool {
	fields := strings.Fields(strings.ToUpper(stmt))
	if len(fields) < 2 || fields[0] != "CREATE" {
		return false
	}
	for _, f := range fields[1:] {
		switch f {
		case "TEMP", "TEMPORARY":
			continue
		case "TRIGGER":
			return true
		default:
			return false
		}
	}
	return false
}

func endsWithEnd(stmt string) bool {
	fields := strings.Fields(strings.ToUpper(stmt))
	return len(fields) > 0 && fields[len(fields)-1] == "END"
}
