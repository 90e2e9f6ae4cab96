package types

// Logger defines methods for structured logging.
//
// Compatible with zap.SugaredLogger and other key-value structured loggers;
// internal/logging adapts log/slog to it. Relay components receive a Logger
// by injection and default to a nop.
//
// Never pass raw auth tokens or api keys as field values; use the
// token digest helpers so identifiers stay correlatable but unreadable.
type Logger interface {
	// Debug logs relay internals: frame dispatch, presence refreshes,
	// correlator no-ops. Key-value pairs follow the message.
	Debug(msg string, keysAndValues ...any)

	// Info logs lifecycle events worth keeping in production output:
	// connects, disconnects, state transitions, session starts.
	Info(msg string, keysAndValues ...any)

	// Warn logs degraded but survivable conditions, such as Redis
	// unavailability or a failing hook.
	Warn(msg string, keysAndValues ...any)

	// Error logs failures that abort an operation.
	Error(msg string, keysAndValues ...any)

	// Fatal logs the message and then calls os.Exit(1), even if logging
	// at FatalLevel is disabled.
	Fatal(msg string, keysAndValues ...any)
}
