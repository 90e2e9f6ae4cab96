package headless

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJoinURL(t *testing.T) {
	require.Equal(t, "http://localhost:30000/join", JoinURL("http://localhost:30000"))
	require.Equal(t, "http://localhost:30000/join", JoinURL("http://localhost:30000/"))
	require.Equal(t, "https://vtt.example.com/join", JoinURL("https://vtt.example.com//"))
}

func TestScriptQuoting(t *testing.T) {
	// Usernames and world titles come from callers; quotes must not be
	// able to break out of the generated expression.
	script := selectUserScript(`Game "Master" O'Brien`)
	require.Contains(t, script, `"Game \"Master\" O'Brien"`)
	require.False(t, strings.Contains(script, "`"))

	script = launchWorldScript(`My "Test" World`)
	require.Contains(t, script, `"My \"Test\" World"`)
}
