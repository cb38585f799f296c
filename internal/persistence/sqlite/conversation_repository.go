package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/example/session-gate/internal/persistence"
)

// ConversationRepository implements persistence.ConversationRepository.
type ConversationRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewConversationRepository creates a new SQLite conversation repository.
func NewConversationRepository(pool *ConnectionPool) *ConversationRepository {
	return &ConversationRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

// CreateConversation inserts a new open conversation.
func (r *ConversationRepository) CreateConversation(ctx context.Context, conversation persistence.Conversation) error {
	if strings.TrimSpace(conversation.ID) == "" || conversation.MaxDuration <= 0 {
		return persistence.ErrConstraintViolation
	}

	var windowID sql.NullString
	if conversation.WindowID != nil {
		windowID = sql.NullString{String: *conversation.WindowID, Valid: true}
	}

	return r.retry.WithRetry(ctx, func() error {
		_, err := r.pool.DB().ExecContext(ctx, `
			INSERT INTO conversation_sessions (id, window_id, group_session, created_at, max_duration_ms, used_grace_message, ended_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			conversation.ID,
			windowID,
			boolToInt(conversation.GroupSession),
			formatTime(conversation.CreatedAt),
			conversation.MaxDuration.Milliseconds(),
			boolToInt(conversation.UsedGraceMessage),
			formatNullTime(conversation.EndedAt),
		)
		return err
	})
}

// GetConversation retrieves a conversation by id.
func (r *ConversationRepository) GetConversation(ctx context.Context, id string) (persistence.Conversation, error) {
	conversation, err := getConversation(ctx, r.pool.DB(), id)
	if err != nil {
		return persistence.Conversation{}, r.mapper.MapError(err)
	}
	return conversation, nil
}

// CloseConversation sets ended_at if it is unset and returns the stored row.
func (r *ConversationRepository) CloseConversation(ctx context.Context, id string, endedAt time.Time) (persistence.Conversation, error) {
	err := r.retry.WithRetry(ctx, func() error {
		_, err := r.pool.DB().ExecContext(ctx,
			`UPDATE conversation_sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
			formatTime(endedAt), id,
		)
		return err
	})
	if err != nil {
		return persistence.Conversation{}, err
	}
	return r.GetConversation(ctx, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getConversation(ctx context.Context, q queryRower, id string) (persistence.Conversation, error) {
	var (
		conversation      persistence.Conversation
		windowID, endedAt sql.NullString
		createdAt         string
		group, usedGrace  int
		maxDurationMillis int64
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, window_id, group_session, created_at, max_duration_ms, used_grace_message, ended_at
		FROM conversation_sessions WHERE id = ?`, id,
	).Scan(&conversation.ID, &windowID, &group, &createdAt, &maxDurationMillis, &usedGrace, &endedAt)
	if err != nil {
		return persistence.Conversation{}, err
	}

	if windowID.Valid {
		value := windowID.String
		conversation.WindowID = &value
	}
	conversation.GroupSession = group == 1
	conversation.UsedGraceMessage = usedGrace == 1
	conversation.MaxDuration = time.Duration(maxDurationMillis) * time.Millisecond
	if conversation.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Conversation{}, err
	}
	if conversation.EndedAt, err = parseNullTime("ended_at", endedAt); err != nil {
		return persistence.Conversation{}, err
	}
	return conversation, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
