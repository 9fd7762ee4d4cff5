package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContextAddsRequestID(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupWriter(&buf, "debug", "json")

	ctx := WithRequestID(context.Background(), "req-42")
	FromContext(ctx).Info("pipeline started", "questions", 3)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "req-42", record["request_id"])
	assert.Equal(t, "pipeline started", record["msg"])
	assert.EqualValues(t, 3, record["questions"])
}

func TestLevelFiltering(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupWriter(&buf, "warn", "text")

	WithComponent("cache").Info("hidden")
	assert.Empty(t, buf.String())

	WithComponent("cache").Warn("shown")
	assert.Contains(t, buf.String(), "component=cache")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}
