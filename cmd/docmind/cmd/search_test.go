package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	got, err := parseDate("2026-08-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), got)

	got, err = parseDate("2026-08-01T12:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, 12, got.Hour())

	_, err = parseDate("yesterday")
	require.Error(t, err)
}

func TestSearchCmd_RejectsUnknownFileType(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"search", "query", "--type", "parchment"})

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parchment")
}

func TestSearchCmd_RejectsUnknownMode(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"search", "query", "--mode", "psychic"})

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	err := root.Execute()
	require.Error(t, err)
}
