package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureGlobal(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	prev := global()
	t.Cleanup(func() {
		mu.Lock()
		GlobalLogger = prev
		mu.Unlock()
	})

	var buf bytes.Buffer
	InitGlobalLogger(Config{Level: level, Format: "json", Output: &buf})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := captureGlobal(t, "warn")

	Info("hidden %d", 1)
	Warn("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown 2")
}

func TestCriticalIsFlagged(t *testing.T) {
	buf := captureGlobal(t, "info")

	Critical("storage gone")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, true, line["critical"])
	assert.Equal(t, "storage gone", line["message"])
}

func TestIncidentFields(t *testing.T) {
	buf := captureGlobal(t, "info")

	entry := Incident(IncidentLogEntry{GuildID: "g1", ActorID: "u1", Rule: "anti_ban", Kind: "ban", Count: 3, Action: "punish"})
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.At.IsZero())

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "incident", line["message"])
	assert.Equal(t, entry.ID, line["incident_id"])
	assert.Equal(t, "anti_ban", line["rule"])
	assert.Equal(t, float64(3), line["count"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("TRACE"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelCritical, ParseLevel("fatal"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestRotatingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guardian.log")
	rf, err := OpenRotatingFile(path, 10)
	require.NoError(t, err)
	rf.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	_, err = rf.Write([]byte("12345678"))
	require.NoError(t, err)
	_, err = rf.Write([]byte("abcdef"))
	require.NoError(t, err)
	require.NoError(t, rf.Close())

	aside, err := os.ReadFile(filepath.Join(dir, "guardian-20240102-030405.000.log"))
	require.NoError(t, err)
	assert.Equal(t, "12345678", string(aside))

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(current))
}

func TestOpenOutputDefaultsToStderr(t *testing.T) {
	out, err := OpenOutput(Config{})
	require.NoError(t, err)
	assert.NoError(t, out.Close())
}
