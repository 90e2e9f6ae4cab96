package testing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatFields(t *testing.T) {
	t.Run("no fields", func(t *testing.T) {
		require.Empty(t, formatFields(nil))
	})

	t.Run("pairs render as key=value", func(t *testing.T) {
		got := formatFields([]any{"client_id", "c1", "count", 3})
		require.Equal(t, " client_id=c1 count=3", got)
	})

	t.Run("dangling key is flagged", func(t *testing.T) {
		got := formatFields([]any{"client_id", "c1", "dangling"})
		require.Equal(t, " client_id=c1 !BADKEY=dangling", got)
	})
}

func TestNewTestLogger(t *testing.T) {
	logger := NewTestLogger(t)
	require.NotNil(t, logger)

	// Every non-fatal level writes through t.Logf without failing the test.
	logger.Debug("debug line", "key", "value")
	logger.Info("info line")
	logger.Warn("warn line", "count", 2)
	logger.Error("error line", "err", "boom")
}
