package http

import (
	"context"
	"log/slog"

	"github.com/example/session-gate/internal/logging"
)

type contextKey string

const (
	windowIDContextKey       contextKey = "window_id"
	slugContextKey           contextKey = "slug"
	conversationIDContextKey contextKey = "conversation_id"
	requestIDContextKey      contextKey = "request_id"
)

// ContextWithLogger returns a derived context carrying the request logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext extracts the request logger, if any.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}

// ContextWithWindowID injects the window identifier resolved from the request
// path and tags the request logger with it.
func ContextWithWindowID(ctx context.Context, windowID string) context.Context {
	ctx = logging.WithAttrs(ctx, "window_id", windowID)
	return context.WithValue(ctx, windowIDContextKey, windowID)
}

// WindowIDFromContext extracts a window identifier previously associated with the context.
func WindowIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(windowIDContextKey).(string)
	return id, ok
}

// ContextWithSlug injects the slug resolved from the request path.
func ContextWithSlug(ctx context.Context, slug string) context.Context {
	ctx = logging.WithAttrs(ctx, "slug", slug)
	return context.WithValue(ctx, slugContextKey, slug)
}

// SlugFromContext extracts a slug previously associated with the context.
func SlugFromContext(ctx context.Context) (string, bool) {
	slug, ok := ctx.Value(slugContextKey).(string)
	return slug, ok
}

// ContextWithConversationID injects the conversation identifier resolved from the request path.
func ContextWithConversationID(ctx context.Context, conversationID string) context.Context {
	ctx = logging.WithAttrs(ctx, "conversation_id", conversationID)
	return context.WithValue(ctx, conversationIDContextKey, conversationID)
}

// ConversationIDFromContext extracts a conversation identifier previously associated with the context.
func ConversationIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(conversationIDContextKey).(string)
	return id, ok
}

// RequestIDFromContext returns the id assigned by RequestLogger.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDContextKey).(string)
	return id, ok
}
