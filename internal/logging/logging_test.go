package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_WritesJSONToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "engine.log")

	logger, cleanup, err := Setup(Config{
		Level:         "info",
		FilePath:      logPath,
		MaxSizeMB:     1,
		MaxFiles:      2,
		WriteToStderr: false,
	})
	require.NoError(t, err)

	logger.Info("documents_indexed", slog.Int("count", 3))
	cleanup()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)

	var entry map[string]any
	line := strings.SplitN(strings.TrimSpace(string(data)), "\n", 2)[0]
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "documents_indexed", entry["msg"])
	assert.Equal(t, float64(3), entry["count"])
}

func TestSetup_LevelFiltering(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "engine.log")

	logger, cleanup, err := Setup(Config{
		Level:         "warn",
		FilePath:      logPath,
		MaxSizeMB:     1,
		MaxFiles:      2,
		WriteToStderr: false,
	})
	require.NoError(t, err)

	logger.Debug("ignored")
	logger.Info("also ignored")
	logger.Warn("kept")
	cleanup()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "ignored")
	assert.Contains(t, string(data), "kept")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARNING"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestRotatingWriter_RotatesAtSizeLimit(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "engine.log")

	// 1MB limit; write ~1.5MB to force a single rotation.
	w, err := NewRotatingWriter(logPath, 1, 3)
	require.NoError(t, err)
	defer w.Close()

	chunk := strings.Repeat("x", 64*1024)
	for i := 0; i < 24; i++ {
		_, err := w.Write([]byte(chunk))
		require.NoError(t, err)
	}

	_, err = os.Stat(logPath + ".1")
	assert.NoError(t, err, "rotated file should exist")
}

func TestRotatingWriter_RotatesOversizedFileAtOpen(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "engine.log")
	require.NoError(t, os.WriteFile(logPath, []byte(strings.Repeat("x", 2<<20)), 0o644))

	w, err := NewRotatingWriter(logPath, 1, 3)
	require.NoError(t, err)
	defer w.Close()

	rotated, err := os.Stat(logPath + ".1")
	require.NoError(t, err)
	assert.Equal(t, int64(2<<20), rotated.Size())

	fresh, err := os.Stat(logPath)
	require.NoError(t, err)
	assert.Zero(t, fresh.Size())
}

func TestRotatingWriter_KeepsBoundedChain(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "engine.log")

	w, err := NewRotatingWriter(logPath, 1, 2)
	require.NoError(t, err)
	defer w.Close()

	// Enough writes for four rotations; only two slots may survive.
	chunk := strings.Repeat("x", 256*1024)
	for i := 0; i < 20; i++ {
		_, err := w.Write([]byte(chunk))
		require.NoError(t, err)
	}

	_, err = os.Stat(logPath + ".1")
	assert.NoError(t, err)
	_, err = os.Stat(logPath + ".2")
	assert.NoError(t, err)
	_, err = os.Stat(logPath + ".3")
	assert.True(t, os.IsNotExist(err), "chain must stop at the keep limit")
}

func TestRotatingWriter_WriteAfterCloseFails(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "engine.log")

	w, err := NewRotatingWriter(logPath, 1, 1)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}
