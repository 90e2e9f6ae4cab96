package relay

import (
	"log/slog"

	"github.com/ssjmarx/The-Gold-Box-sub002/internal/logging"
)

// NewSlogLogger wraps a slog.Logger in the relay's Logger interface.
//
// Parameters:
//   - logger: Underlying slog logger; nil means slog.Default()
//
// Returns:
//   - Logger: Logger to pass to WithLogger
func NewSlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		return logging.NewSlogDefault()
	}

	return logging.NewSlog(logger)
}
