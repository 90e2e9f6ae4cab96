package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateInit, "Init"},
		{StateStarting, "Starting"},
		{StateReady, "Ready"},
		{StateShutdown, "Shutdown"},
		{State(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.state.String())
		})
	}
}

func TestCloseCodeString(t *testing.T) {
	require.Equal(t, "normal closure", CloseNormal.String())
	require.Equal(t, "duplicate connection", CloseDuplicateConnection.String())
	require.Equal(t, "server shutting down", CloseServerShutdown.String())
	require.Equal(t, "unknown", CloseCode(4999).String())
}

func TestCloseCodeValues(t *testing.T) {
	// The browser-side plugin matches on these numeric values.
	require.Equal(t, 1000, int(CloseNormal))
	require.Equal(t, 4000, int(CloseInternalError))
	require.Equal(t, 4001, int(CloseNoClientID))
	require.Equal(t, 4002, int(CloseNoAuth))
	require.Equal(t, 4003, int(CloseNoTokenGroup))
	require.Equal(t, 4004, int(CloseDuplicateConnection))
	require.Equal(t, 4005, int(CloseServerShutdown))
}
