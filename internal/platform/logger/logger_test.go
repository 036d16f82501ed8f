package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	testCases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for input, want := range testCases {
		assert.Equal(t, want, ParseLevel(input), "level %q", input)
	}
}

func TestNewWithWriter_WritesJSONAboveLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn").With("service", "inbound_processor_service")

	log.Info("dropped")
	log.Warn("pool exhausted", "country_code", "US")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "pool exhausted", entry["msg"])
	assert.Equal(t, "US", entry["country_code"])
	assert.Equal(t, "inbound_processor_service", entry["service"])
}
