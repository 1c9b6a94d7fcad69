// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

var global atomic.Pointer[slog.Logger]

func init() {
	global.Store(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

// SetLogger replaces the logger used by the helpers in this package.
func SetLogger(l *slog.Logger) {
	if l != nil {
		global.Store(l)
	}
}

// L returns the current logger.
func L() *slog.Logger {
	return global.Load()
}

func attrs(base []any, fields map[string]interface{}) []any {
	for k, v := range fields {
		base = append(base, slog.Any(k, v))
	}
	return base
}

// RepoLogger provides structured logging for repository operations.
type RepoLogger struct {
	tableName string
}

// NewRepoLogger creates a new RepoLogger for the given table.
func NewRepoLogger(tableName string) *RepoLogger {
	return &RepoLogger{tableName: tableName}
}

// LogCreate logs a repository create operation.
func (l *RepoLogger) LogCreate(ctx context.Context, fields map[string]interface{}) {
	L().InfoContext(ctx, "repository create", attrs([]any{
		slog.String("table", l.tableName),
		slog.String("operation", "create"),
	}, fields)...)
}

// LogDelete logs a repository delete operation.
func (l *RepoLogger) LogDelete(ctx context.Context, fields map[string]interface{}) {
	L().InfoContext(ctx, "repository delete", attrs([]any{
		slog.String("table", l.tableName),
		slog.String("operation", "delete"),
	}, fields)...)
}

// LogError logs a failed repository operation.
func (l *RepoLogger) LogError(ctx context.Context, err error, operation string) {
	L().ErrorContext(ctx, "repository error",
		slog.String("table", l.tableName),
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// WSLogger logs subscriber lifecycle events for a hub.
type WSLogger struct {
	hubName string
}

// NewWSLogger creates a new WSLogger for the given hub.
func NewWSLogger(hubName string) *WSLogger {
	return &WSLogger{hubName: hubName}
}

// LogConnect logs a new subscriber.
func (l *WSLogger) LogConnect(ctx context.Context, userID uint, active int) {
	L().InfoContext(ctx, "websocket connected",
		slog.String("hub", l.hubName),
		slog.Any("user_id", userID),
		slog.Int("active", active),
	)
}

// LogDisconnect logs a subscriber leaving.
func (l *WSLogger) LogDisconnect(ctx context.Context, userID uint, reason string) {
	L().InfoContext(ctx, "websocket disconnected",
		slog.String("hub", l.hubName),
		slog.Any("user_id", userID),
		slog.String("reason", reason),
	)
}

// LogLifecycle logs hub-level events such as startup and shutdown.
func (l *WSLogger) LogLifecycle(ctx context.Context, event string, fields map[string]interface{}) {
	L().InfoContext(ctx, "websocket hub "+event, attrs([]any{slog.String("hub", l.hubName)}, fields)...)
}

// LogAsyncOperationStart logs the start of a detached operation.
func LogAsyncOperationStart(ctx context.Context, operation string, fields map[string]interface{}) {
	L().DebugContext(ctx, "async operation started", attrs([]any{slog.String("operation", operation)}, fields)...)
}

// LogAsyncOperationEnd logs the successful completion of a detached operation.
func LogAsyncOperationEnd(ctx context.Context, operation string, fields map[string]interface{}) {
	L().InfoContext(ctx, "async operation completed", attrs([]any{slog.String("operation", operation)}, fields)...)
}

// LogAsyncOperationError logs a failed detached operation.
func LogAsyncOperationError(ctx context.Context, operation string, err error, fields map[string]interface{}) {
	L().ErrorContext(ctx, "async operation failed", attrs([]any{
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	}, fields)...)
}
