package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Level(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, New("production", "warn").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, New("production", "").GetLevel())
	assert.Equal(t, zerolog.DebugLevel, New("development", "").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, New("production", "nonsense").GetLevel())
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	log := Component(zerolog.New(&buf), "reclaimer")
	log.Info().Msg("sweep")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "reclaimer", entry["component"])
	assert.Equal(t, "sweep", entry["message"])
}
