package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufLogger(level string) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return New(&Config{Level: level, Format: "json", Output: buf}), buf
}

func TestNop(t *testing.T) {
	log := Nop()

	// Nop must accept the full fluent surface without emitting anything.
	log.Info("dropped")
	log.Errorf("dropped %d", 1)
	log.ErrorWith("dropped", errors.New("boom"), nil)

	child := log.With().Str("component", "pool").Err(errors.New("x")).Logger()
	child.Warn("dropped")
	assert.NotNil(t, child)
}

func TestLogger_LevelIsPerInstance(t *testing.T) {
	// Two loggers with different levels must filter independently; setting
	// one must never affect the other.
	verbose, verboseBuf := newBufLogger("debug")
	quiet, quietBuf := newBufLogger("error")

	verbose.Debug("seen")
	quiet.Debug("filtered")
	quiet.Info("filtered")

	assert.Contains(t, verboseBuf.String(), "seen")
	assert.Empty(t, quietBuf.String())

	quiet.Error("surfaced")
	assert.Contains(t, quietBuf.String(), "surfaced")
}

func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		logFunc func(*Logger)
		emitted bool
	}{
		{"debug level logs debug", "debug", func(l *Logger) { l.Debug("m") }, true},
		{"info level skips debug", "info", func(l *Logger) { l.Debugf("m %d", 1) }, false},
		{"warn level skips info", "warn", func(l *Logger) { l.Infof("m %d", 1) }, false},
		{"error level logs error", "error", func(l *Logger) { l.Error("m") }, true},
		{"unknown level defaults to info", "verbose", func(l *Logger) { l.Info("m") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := newBufLogger(tt.level)
			tt.logFunc(log)
			if tt.emitted {
				assert.NotEmpty(t, buf.String())
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestLogger_WithFieldChaining(t *testing.T) {
	log, buf := newBufLogger("info")

	child := log.With().
		Str("component", "executor").
		Int("batch", 1000).
		Logger()

	child.Info("query finished")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "executor", entry["component"])
	assert.Equal(t, float64(1000), entry["batch"])
	assert.Equal(t, "query finished", entry["message"])

	// Chained fields stay on the child; the parent is unchanged.
	buf.Reset()
	log.Info("bare")
	var parentEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parentEntry))
	assert.NotContains(t, parentEntry, "component")
}

func TestLogger_ErrorWith(t *testing.T) {
	log, buf := newBufLogger("error")

	log.ErrorWith("query failed", errors.New("connection reset"), map[string]interface{}{
		"query_id": "abc123",
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "query failed", entry["message"])
	assert.Equal(t, "connection reset", entry["error"])
	assert.Equal(t, "abc123", entry["query_id"])

	// A nil field map is valid; callers pass it when there is nothing extra.
	buf.Reset()
	log.ErrorWith("bare failure", errors.New("boom"), nil)
	assert.Contains(t, buf.String(), "bare failure")
}

func TestLogger_ContextRoundTrip(t *testing.T) {
	log, buf := newBufLogger("info")

	ctx := log.WithContext(context.Background())
	FromContext(ctx).Info("from context")

	assert.Contains(t, buf.String(), "from context")
}
