package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesServiceField(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, "user-service", "debug", "json")
	logger.Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "user-service", line["service"])
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "info", line["level"])
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, "svc", "warn", "json")
	logger.Info().Msg("dropped")
	assert.Zero(t, buf.Len())
}

func TestNewUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, "svc", "chatty", "json")
	logger.Debug().Msg("dropped")
	assert.Zero(t, buf.Len())
	logger.Info().Msg("kept")
	assert.NotZero(t, buf.Len())
}
