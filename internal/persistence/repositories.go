package persistence

import (
	"context"
	"time"
)

// WindowRepository stores scheduled windows. Implementations must reject
// overlapping windows on the same slug with ErrOverlap, independently of any
// pre-check made by callers.
type WindowRepository interface {
	CreateWindow(ctx context.Context, window ScheduledWindow) error
	UpdateWindow(ctx context.Context, window ScheduledWindow) error
	GetWindow(ctx context.Context, id string) (ScheduledWindow, error)
	ListWindowsBySlug(ctx context.Context, slug string) ([]ScheduledWindow, error)
	// ListOverlapping returns windows on slug intersecting [start, end),
	// skipping excludeID when it is non-empty.
	ListOverlapping(ctx context.Context, slug string, start, end time.Time, excludeID string) ([]ScheduledWindow, error)
	DeleteWindow(ctx context.Context, id string) error
}

// ConversationRepository stores conversations.
type ConversationRepository interface {
	CreateConversation(ctx context.Context, conversation Conversation) error
	GetConversation(ctx context.Context, id string) (Conversation, error)
	// CloseConversation sets EndedAt once and returns the stored row. Closing
	// an already closed conversation leaves EndedAt unchanged.
	CloseConversation(ctx context.Context, id string, endedAt time.Time) (Conversation, error)
}

// MessageRepository stores conversation turns.
type MessageRepository interface {
	// AppendMessage assigns the next sequence number and inserts msg. When
	// consumeGrace is set, the conversation's grace flag is flipped in the
	// same transaction; ErrPrecondition is returned if it was already spent
	// or the conversation has ended.
	AppendMessage(ctx context.Context, msg Message, consumeGrace bool) (Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	CountMessages(ctx context.Context, conversationID string) (int, error)
}

// GrantStore keeps grants until they expire.
type GrantStore interface {
	SaveGrant(ctx context.Context, grant Grant) error
	GetGrant(ctx context.Context, token string) (Grant, error)
	RevokeGrant(ctx context.Context, token string) error
}
