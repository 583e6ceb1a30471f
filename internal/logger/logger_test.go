package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("WARN"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("info"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("nonsense"))
}

func TestGetForComponent_JSON(t *testing.T) {
	var buf bytes.Buffer
	InitializeWriter("info", "json", &buf)
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	l := GetForComponent("planner")
	l.Info().Str("vault", "L3x-BUSDBNB-PCS1").Msg("plan computed")
	l.Debug().Msg("filtered out")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "planner", entry["component"])
	assert.Equal(t, "L3x-BUSDBNB-PCS1", entry["vault"])
	assert.Equal(t, "plan computed", entry["message"])
}
