package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/jrsteele09/go-session-keeper/internal/logging"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, "warn", "PROD")

	logger.Info().Msg("hidden")
	logger.Warn().Str("component", "lifecycle").Msg("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "warn", line["level"])
	require.Equal(t, "lifecycle", line["component"])
	require.Equal(t, "shown", line["message"])
	require.Contains(t, line, "time")
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, "debug", "dev")

	logger.Debug().Msg("refresh scheduled")
	require.Contains(t, buf.String(), "refresh scheduled")
	require.False(t, json.Valid(buf.Bytes()))
}

func TestNew_UnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, "chatty", "PROD")

	logger.Debug().Msg("hidden")
	require.Zero(t, buf.Len())
	logger.Info().Msg("shown")
	require.NotZero(t, buf.Len())
}
