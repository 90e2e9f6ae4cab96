package testing

import (
	"fmt"
	"strings"
	"testing"

	"github.com/ssjmarx/The-Gold-Box-sub002/types"
)

// NewTestLogger creates a logger that writes through t.Logf, so relay log
// lines interleave with test output and only surface on failure or -v.
//
// Fields render as key=value pairs in the same shape the slog text handler
// produces; a dangling key is flagged the way slog flags it, so malformed
// call sites stand out in test output.
func NewTestLogger(t *testing.T) types.Logger {
	return &testLogger{t: t}
}

type testLogger struct {
	t *testing.T
}

var _ types.Logger = (*testLogger)(nil)

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.t.Logf("DEBUG %s%s", msg, formatFields(keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.t.Logf("INFO %s%s", msg, formatFields(keysAndValues))
}

func (l *testLogger) Warn(msg string, keysAndValues ...any) {
	l.t.Logf("WARN %s%s", msg, formatFields(keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.t.Logf("ERROR %s%s", msg, formatFields(keysAndValues))
}

// Fatal fails the test instead of exiting the process. Nothing in the
// relay logs at this level during normal operation, so reaching it inside
// a test is itself a failure worth stopping on.
func (l *testLogger) Fatal(msg string, keysAndValues ...any) {
	l.t.Fatalf("FATAL %s%s", msg, formatFields(keysAndValues))
}

// formatFields renders alternating keys and values as " k=v" pairs. An
// unpaired trailing element becomes !BADKEY=<elem>, matching slog.
func formatFields(keysAndValues []any) string {
	if len(keysAndValues) == 0 {
		return ""
	}

	var b strings.Builder
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	if len(keysAndValues)%2 != 0 {
		fmt.Fprintf(&b, " !BADKEY=%v", keysAndValues[len(keysAndValues)-1])
	}

	return b.String()
}
