package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelInfo, "arbguard", func(context.Context) string { return "trace-1" })

	log.Info(context.Background(), "assessment complete", "chain_id", 1, "score", 52)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "assessment complete", rec["msg"])
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "arbguard", rec["service"])
	assert.Equal(t, "trace-1", rec["trace_id"])
	assert.EqualValues(t, 52, rec["score"])
	assert.Contains(t, rec["file"], "logger_test.go")
}

func TestLogger_FiltersBelowMinLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelWarn, "arbguard", nil)

	log.Debug(context.Background(), "dropped")
	log.Info(context.Background(), "dropped")
	assert.Zero(t, buf.Len())

	log.Warn(context.Background(), "kept")
	assert.NotZero(t, buf.Len())
}

func TestOTelTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, OTelTraceID(context.Background()))
}
