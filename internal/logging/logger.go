// Package logging is the structured logger shared by the client and the
// server. Attributes whose key names a credential are redacted before they
// reach the handler.
package logging

import "context"

// Logger takes alternating key/value args, as log/slog does:
//
//	log.Info(ctx, "phase changed", "from", from, "to", to)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger carrying args on every record.
	With(args ...any) Logger
}
