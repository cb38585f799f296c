package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/example/session-gate/internal/persistence"
)

// WindowRepository implements persistence.WindowRepository. Overlap between
// windows on the same slug is rejected by triggers, not by this code.
type WindowRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewWindowRepository creates a new SQLite window repository.
func NewWindowRepository(pool *ConnectionPool) *WindowRepository {
	return &WindowRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

const windowColumns = `id, slug, name, starts_at, ends_at, credential, credential_format, created_at, updated_at`

// CreateWindow inserts a new window.
func (r *WindowRepository) CreateWindow(ctx context.Context, window persistence.ScheduledWindow) error {
	if strings.TrimSpace(window.ID) == "" {
		return persistence.ErrConstraintViolation
	}

	return r.retry.WithRetry(ctx, func() error {
		_, err := r.pool.DB().ExecContext(ctx, `
			INSERT INTO scheduled_windows (`+windowColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			window.ID,
			window.Slug,
			window.Name,
			formatTime(window.Start),
			formatTime(window.End),
			window.Credential,
			window.CredentialFormat,
			formatTime(window.CreatedAt),
			formatTime(window.UpdatedAt),
		)
		return err
	})
}

// UpdateWindow replaces the mutable fields of an existing window.
func (r *WindowRepository) UpdateWindow(ctx context.Context, window persistence.ScheduledWindow) error {
	return r.retry.WithRetry(ctx, func() error {
		result, err := r.pool.DB().ExecContext(ctx, `
			UPDATE scheduled_windows
			SET slug = ?, name = ?, starts_at = ?, ends_at = ?, credential = ?, credential_format = ?, updated_at = ?
			WHERE id = ?`,
			window.Slug,
			window.Name,
			formatTime(window.Start),
			formatTime(window.End),
			window.Credential,
			window.CredentialFormat,
			formatTime(window.UpdatedAt),
			window.ID,
		)
		if err != nil {
			return err
		}
		return requireRow(result)
	})
}

// GetWindow retrieves a window by id.
func (r *WindowRepository) GetWindow(ctx context.Context, id string) (persistence.ScheduledWindow, error) {
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+windowColumns+` FROM scheduled_windows WHERE id = ?`, id)
	window, err := scanWindow(row)
	if err != nil {
		return persistence.ScheduledWindow{}, r.mapper.MapError(err)
	}
	return window, nil
}

// ListWindowsBySlug returns every window for slug ordered by start.
func (r *WindowRepository) ListWindowsBySlug(ctx context.Context, slug string) ([]persistence.ScheduledWindow, error) {
	return r.list(ctx, `SELECT `+windowColumns+` FROM scheduled_windows WHERE slug = ? ORDER BY starts_at, id`, slug)
}

// ListOverlapping returns windows on slug intersecting [start, end).
func (r *WindowRepository) ListOverlapping(ctx context.Context, slug string, start, end time.Time, excludeID string) ([]persistence.ScheduledWindow, error) {
	return r.list(ctx, `
		SELECT `+windowColumns+` FROM scheduled_windows
		WHERE slug = ? AND starts_at < ? AND ? < ends_at AND id <> ?
		ORDER BY starts_at, id`,
		slug, formatTime(end), formatTime(start), excludeID,
	)
}

// DeleteWindow removes a window. Conversations that referenced it keep
// their group flag and lose the link.
func (r *WindowRepository) DeleteWindow(ctx context.Context, id string) error {
	return r.retry.WithRetry(ctx, func() error {
		result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM scheduled_windows WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireRow(result)
	})
}

func (r *WindowRepository) list(ctx context.Context, query string, args ...any) ([]persistence.ScheduledWindow, error) {
	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var windows []persistence.ScheduledWindow
	for rows.Next() {
		window, err := scanWindow(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		windows = append(windows, window)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return windows, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWindow(row rowScanner) (persistence.ScheduledWindow, error) {
	var (
		window                                 persistence.ScheduledWindow
		startsAt, endsAt, createdAt, updatedAt string
	)
	if err := row.Scan(
		&window.ID,
		&window.Slug,
		&window.Name,
		&startsAt,
		&endsAt,
		&window.Credential,
		&window.CredentialFormat,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.ScheduledWindow{}, err
	}

	var err error
	if window.Start, err = parseTime("starts_at", startsAt); err != nil {
		return persistence.ScheduledWindow{}, err
	}
	if window.End, err = parseTime("ends_at", endsAt); err != nil {
		return persistence.ScheduledWindow{}, err
	}
	if window.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.ScheduledWindow{}, err
	}
	if window.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.ScheduledWindow{}, err
	}
	return window, nil
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
