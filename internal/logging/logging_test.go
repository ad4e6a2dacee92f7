package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/younsl/snapshooter/internal/models"
)

func TestLevelFor(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, LevelFor(0))
	assert.Equal(t, zerolog.DebugLevel, LevelFor(1))
	assert.Equal(t, zerolog.TraceLevel, LevelFor(2))
	assert.Equal(t, zerolog.TraceLevel, LevelFor(4))
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Output: &buf})

	logger.Debug().Msg("hidden")
	logger.Info().Str("volume", "vol-1").Msg("Processing volume")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "vol-1", entry["volume"])
	assert.Equal(t, "Processing volume", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNewDevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Devel: true, Verbose: 1, Output: &buf})

	logger.Debug().Str("volume", "vol-1").Msg("Processing volume")

	out := buf.String()
	assert.Contains(t, out, "Processing volume")
	assert.Contains(t, out, "vol-1")
	assert.False(t, json.Valid([]byte(strings.TrimSpace(out))))
}

func TestWithScope(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Output: &buf})

	trustLogger := WithScope(logger, models.Scope{TrustID: "t1", ProjectID: "p1"})
	trustLogger.Info().Msg("trust")
	projectLogger := WithScope(logger, models.Scope{ProjectID: "p2"})
	projectLogger.Info().Msg("project")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var trust, project map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &trust))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &project))
	assert.Equal(t, "t1", trust["trust"])
	assert.Equal(t, "p1", trust["project"])
	assert.Equal(t, "p2", project["project"])
	assert.NotContains(t, project, "trust")
}
