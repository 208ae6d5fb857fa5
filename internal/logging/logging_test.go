package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutrilogic/datacache/internal/logging"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"chatty", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		l := logging.New(tt.in, &bytes.Buffer{}, true)
		assert.Equal(t, tt.want, l.GetLevel(), tt.in)
	}
}

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := logging.New("info", &buf, true)
	l.Debug().Msg("hidden")
	l.Info().Str("key", "kader_dashboard_summary").Msg("cache hit")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "cache hit", line["message"])
	assert.Equal(t, "kader_dashboard_summary", line["key"])
}
