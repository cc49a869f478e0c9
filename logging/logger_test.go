package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertion)
var (
	_ Logger = NoOpLogger{}
	_ Logger = (*SlogAdapter)(nil)
	_ Logger = (*VizierLogger)(nil)
	_ Logger = (*ZerologAdapter)(nil)
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestVizierLogger_KeyValueAndContext(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: &buf})

	l.WithComponent("dispatch").WithSession("http:s1").Info("chat handled", "latency_ms", 12)
	l.Debug("filtered out")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "chat handled", lines[0]["msg"])
	assert.Equal(t, "dispatch", lines[0]["component"])
	assert.Equal(t, "http:s1", lines[0]["session_id"])
	assert.EqualValues(t, 12, lines[0]["latency_ms"])
}

func TestVizierLogger_WithContextDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&LoggerConfig{Level: LogLevelDebug, Output: &buf})
	child := base.WithContext("request", "r1")

	base.Info("base")
	child.Info("child")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "request")
	assert.Equal(t, "r1", lines[1]["request"])
}

func TestVizierLogger_LogCompletion(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelInfo, Output: &buf})

	l.LogCompletion("http:s1", 0, false, errors.New("provider down"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "Completion failed", lines[0]["msg"])
	assert.Equal(t, "provider down", lines[0]["error"])
	assert.Equal(t, false, lines[0]["success"])
}

func TestArgsToAttrs_DanglingValue(t *testing.T) {
	attrs := argsToAttrs([]any{"a", 1, "dangling"})
	require.Len(t, attrs, 2)
	assert.Equal(t, "a", attrs[0].Key)
	assert.Equal(t, "!BADKEY", attrs[1].Key)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("debug"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLevel("ERROR"))
	assert.Equal(t, LogLevelInfo, ParseLevel("whatever"))
	assert.Equal(t, "WARN", LogLevelWarn.String())
}

func TestZerologAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologAdapter(zerolog.New(&buf).Level(zerolog.InfoLevel))

	l.Info("evicted", "session", "http:a", "error", errors.New("x"))
	l.Debug("dropped")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "evicted", lines[0]["message"])
	assert.Equal(t, "http:a", lines[0]["session"])
	assert.Equal(t, "x", lines[0]["error"])
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []recordedEntry
}

type recordedEntry struct {
	level string
	msg   string
	args  []any
}

func (r *recordingLogger) record(level, msg string, args []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, recordedEntry{level: level, msg: msg, args: args})
}

func (r *recordingLogger) Debug(msg string, args ...any) { r.record("debug", msg, args) }
func (r *recordingLogger) Info(msg string, args ...any)  { r.record("info", msg, args) }
func (r *recordingLogger) Warn(msg string, args ...any)  { r.record("warn", msg, args) }
func (r *recordingLogger) Error(msg string, args ...any) { r.record("error", msg, args) }

func TestWatermillAdapter(t *testing.T) {
	rec := &recordingLogger{}
	var wl watermill.LoggerAdapter = NewWatermillAdapter(rec)

	wl = wl.With(watermill.LogFields{"topic": "vizier.requests"})
	wl.Info("subscribed", watermill.LogFields{"n": 1})
	wl.Trace("trace", nil)
	wl.Error("publish failed", errors.New("closed"), nil)

	require.Len(t, rec.entries, 3)
	assert.Equal(t, "info", rec.entries[0].level)
	assert.ElementsMatch(t, []any{"topic", "vizier.requests", "n", 1}, rec.entries[0].args)
	assert.Equal(t, "debug", rec.entries[1].level)
	assert.Equal(t, "error", rec.entries[2].level)
	assert.Contains(t, rec.entries[2].args, "error")
}

func TestOrNoOp(t *testing.T) {
	assert.IsType(t, NoOpLogger{}, OrNoOp(nil))
	rec := &recordingLogger{}
	assert.Same(t, rec, OrNoOp(rec))
}

func TestLogCompletion_UsesCompletionLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelInfo, Output: &buf})

	LogCompletion(l, "http:s1", 0, nil)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "Completion finished", lines[0]["msg"])
	assert.Equal(t, true, lines[0]["success"])
	assert.Equal(t, "http:s1", lines[0]["session"])
}

func TestLogCompletion_FallsBackToKeyValues(t *testing.T) {
	rec := &recordingLogger{}

	LogCompletion(rec, "http:s1", 0, nil)
	LogCompletion(rec, "http:s1", 0, errors.New("boom"))

	require.Len(t, rec.entries, 2)
	assert.Equal(t, "debug", rec.entries[0].level)
	assert.Equal(t, "warn", rec.entries[1].level)
	assert.Equal(t, "Completion failed", rec.entries[1].msg)
}
