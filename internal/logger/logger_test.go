package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf, "info")

	log.Info("processed %d rows for %s", 12, "canada")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "processed 12 rows for canada", entry["message"])
}

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf, "warn")

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
}

func TestMessageWithoutArgsKeepsPercent(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf, "debug")

	log.Error("tax sum is 100%")

	assert.Contains(t, buf.String(), "tax sum is 100%")
}

func TestWith(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf, "info").With(map[string]interface{}{
		"organization": "mexico",
		"stage":        "normalize",
	})

	log.Warn("unparsed date")

	out := buf.String()
	assert.True(t, strings.Contains(out, `"organization":"mexico"`), out)
	assert.True(t, strings.Contains(out, `"stage":"normalize"`), out)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNop(t *testing.T) {
	var l Logger = Nop()
	l.Info("nothing %s", "happens")
}
