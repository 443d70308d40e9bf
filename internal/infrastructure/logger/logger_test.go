package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupJSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	require.NoError(t, setup(&buf, "warn", false))

	log.Info().Msg("hidden")
	log.Warn().Str("symbol", "BTCUSDT").Msg("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["message"])
	assert.Equal(t, "BTCUSDT", line["symbol"])
	assert.Equal(t, "warn", line["level"])
	assert.Contains(t, line, "time")
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, setup(&bytes.Buffer{}, "loud", true))
}
