package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/example/session-gate/internal/persistence"
)

// MessageRepository implements persistence.MessageRepository.
type MessageRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewMessageRepository creates a new SQLite message repository.
func NewMessageRepository(pool *ConnectionPool) *MessageRepository {
	return &MessageRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

// AppendMessage stores msg with the next sequence number. The grace flag
// update, the ended check and the insert share one transaction.
func (r *MessageRepository) AppendMessage(ctx context.Context, msg persistence.Message, consumeGrace bool) (persistence.Message, error) {
	if strings.TrimSpace(msg.ID) == "" || strings.TrimSpace(msg.ConversationID) == "" {
		return persistence.Message{}, persistence.ErrConstraintViolation
	}

	var stored persistence.Message
	err := r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			conversation, err := getConversation(ctx, tx, msg.ConversationID)
			if err != nil {
				return err
			}
			if conversation.EndedAt != nil {
				return persistence.ErrPrecondition
			}

			if consumeGrace {
				result, err := tx.ExecContext(ctx, `
					UPDATE conversation_sessions SET used_grace_message = 1
					WHERE id = ? AND used_grace_message = 0 AND ended_at IS NULL`,
					msg.ConversationID,
				)
				if err != nil {
					return err
				}
				if affected, err := result.RowsAffected(); err != nil {
					return err
				} else if affected == 0 {
					return persistence.ErrPrecondition
				}
			}

			var seq int
			if err := tx.QueryRowContext(ctx,
				`SELECT COALESCE(MAX(seq), 0) + 1 FROM conversation_messages WHERE session_id = ?`,
				msg.ConversationID,
			).Scan(&seq); err != nil {
				return err
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO conversation_messages (id, session_id, seq, role, content, content_format, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				msg.ID, msg.ConversationID, seq, msg.Role, msg.Content, msg.ContentFormat, formatTime(msg.CreatedAt),
			); err != nil {
				return err
			}

			stored = msg
			stored.Seq = seq
			stored.CreatedAt = msg.CreatedAt.UTC()
			return nil
		})
	})
	if err != nil {
		return persistence.Message{}, err
	}
	return stored, nil
}

// ListMessages returns the conversation's messages ordered by sequence.
func (r *MessageRepository) ListMessages(ctx context.Context, conversationID string) ([]persistence.Message, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT id, session_id, seq, role, content, content_format, created_at
		FROM conversation_messages WHERE session_id = ? ORDER BY seq`, conversationID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var messages []persistence.Message
	for rows.Next() {
		var (
			msg       persistence.Message
			createdAt string
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Seq, &msg.Role, &msg.Content, &msg.ContentFormat, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if msg.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return messages, nil
}

// CountMessages returns the number of stored turns.
func (r *MessageRepository) CountMessages(ctx context.Context, conversationID string) (int, error) {
	var count int
	if err := r.pool.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversation_messages WHERE session_id = ?`, conversationID,
	).Scan(&count); err != nil {
		return 0, r.mapper.MapError(err)
	}
	return count, nil
}
