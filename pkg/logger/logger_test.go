package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesTypedFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.DebugLevel).With(String("component", "aggregator"))

	l.Warn("provider failed",
		String("provider", "binance"),
		Float64("price", 101.5),
		Duration("took", 1500*time.Millisecond),
		Error(errors.New("boom")),
	)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "aggregator", entry["component"])
	assert.Equal(t, "binance", entry["provider"])
	assert.Equal(t, 101.5, entry["price"])
	assert.Equal(t, float64(1500), entry["took"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.InfoLevel)
	l.Debug("hidden")
	assert.Zero(t, buf.Len())
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	assert.Error(t, err)
}

func TestCronLoggerPairs(t *testing.T) {
	var buf bytes.Buffer
	c := NewCronLogger(NewWithWriter(&buf, zerolog.DebugLevel))
	c.Error(errors.New("panic"), "job failed", "entry", 3)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "job failed", entry["message"])
	assert.Equal(t, float64(3), entry["entry"])
	assert.Equal(t, "cron", entry["component"])
}
