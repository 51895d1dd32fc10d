// Package logging defines the structured, context-aware logger shared by every
// service binary and background worker.
package logging

import "context"

// Logger takes key-value pairs after the message:
//
//	log.Info(ctx, "outbox delivered", "id", id, "routing_key", key)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given pairs.
	With(args ...any) Logger
}
