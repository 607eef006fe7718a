package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docmind/docmind/internal/embed"
	"github.com/docmind/docmind/internal/errors"
)

func TestBackupCoordinator_ConcurrentBackupFailsFast(t *testing.T) {
	dataDir := t.TempDir()
	e := newEngine(t, dataDir)

	_, err := e.Ingest(context.Background(), sampleDoc("doc-1", "some content"))
	require.NoError(t, err)

	// Simulate a backup in flight from another process.
	other := NewBackupCoordinator(dataDir, nil)
	require.NoError(t, other.acquire("test"))
	defer other.release()

	err = e.Backup(context.Background(), filepath.Join(t.TempDir(), "backup"))
	require.Error(t, err)
	assert.Equal(t, errors.KindLocked, errors.KindOf(err))
	assert.True(t, errors.IsRetryable(err))
}

func TestBackupManifest_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	want := backupManifest{
		Version:     1,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
		TextBackend: "bleve",
		Documents:   7,
		Files:       []string{"documents.db", "text.bleve", "embeddings.cache"},
	}
	require.NoError(t, writeManifest(dir, want))

	got, err := readManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestBackupManifest_RejectsUnsupportedVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeManifest(dir, backupManifest{Version: 9}))

	_, err := readManifest(dir)
	require.Error(t, err)
	assert.Equal(t, errors.KindConstraintViolation, errors.KindOf(err))
}

func TestBackupManifest_RejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifestName), []byte(":\n\t- not yaml"), 0o644))

	_, err := readManifest(dir)
	require.Error(t, err)
	assert.Equal(t, errors.KindConstraintViolation, errors.KindOf(err))
}

func TestEngine_BackupManifestContents(t *testing.T) {
	dataDir := t.TempDir()
	backupDir := filepath.Join(t.TempDir(), "backup")
	ctx := context.Background()

	e, err := Open(DefaultConfig(dataDir), embed.NewStaticEmbedder(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	_, err = e.Ingest(ctx, sampleDoc("doc-1", "manifest coverage"))
	require.NoError(t, err)
	require.NoError(t, e.Backup(ctx, backupDir))

	m, err := readManifest(backupDir)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Version)
	assert.Equal(t, "bleve", m.TextBackend)
	assert.Equal(t, 1, m.Documents)
	assert.Contains(t, m.Files, "documents.db")
	assert.Contains(t, m.Files, "embeddings.cache")
}
