package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"github.com/docmind/docmind/internal/errors"
	"github.com/docmind/docmind/internal/store"
)

// manifestName is the backup manifest file inside every backup dir.
const manifestName = "manifest.yaml"

// backupManifest describes what a backup contains. Restore refuses
// directories without a parseable manifest.
type backupManifest struct {
	Version     int       `yaml:"version"`
	CreatedAt   time.Time `yaml:"created_at"`
	TextBackend string    `yaml:"text_backend"`
	Documents   int       `yaml:"documents"`
	Files       []string  `yaml:"files"`
}

// BackupCoordinator serializes backups across processes with a file
// lock next to the data directory. Concurrent backups of the same data
// directory fail fast with KindLocked instead of queueing.
type BackupCoordinator struct {
	dataDir string
	lock    *flock.Flock
	logger  *slog.Logger
}

// NewBackupCoordinator creates a coordinator for dataDir.
func NewBackupCoordinator(dataDir string, logger *slog.Logger) *BackupCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackupCoordinator{
		dataDir: dataDir,
		lock:    flock.New(filepath.Join(dataDir, ".backup.lock")),
		logger:  logger,
	}
}

// acquire takes the cross-process backup lock without blocking.
func (b *BackupCoordinator) acquire(op string) error {
	if err := os.MkdirAll(b.dataDir, 0o755); err != nil {
		return errors.Wrap(errors.KindInternal, op, err)
	}
	held, err := b.lock.TryLock()
	if err != nil {
		return errors.Wrap(errors.KindInternal, op, err)
	}
	if !held {
		return errors.E(errors.KindLocked, op, "another backup or restore is in progress")
	}
	return nil
}

func (b *BackupCoordinator) release() {
	_ = b.lock.Unlock()
}

// writeManifest writes the manifest into destDir.
func writeManifest(destDir string, m backupManifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(destDir, manifestName), data, 0o644)
}

// readManifest loads and validates the manifest from srcDir.
func readManifest(srcDir string) (*backupManifest, error) {
	const op = "engine.Restore"

	data, err := os.ReadFile(filepath.Join(srcDir, manifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.E(errors.KindNotFound, op,
				fmt.Sprintf("no backup manifest in %s", srcDir))
		}
		return nil, errors.Wrap(errors.KindInternal, op, err)
	}

	var m backupManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(errors.KindConstraintViolation, op, err)
	}
	if m.Version != 1 {
		return nil, errors.E(errors.KindConstraintViolation, op,
			fmt.Sprintf("unsupported backup manifest version %d", m.Version))
	}
	return &m, nil
}

// Backup copies the engine state into destDir. The engine quiesces
// writers before calling this, so the index files copy as a unit.
func (e *Engine) Backup(ctx context.Context, destDir string) error {
	const op = "engine.Backup"

	if err := e.backup.acquire(op); err != nil {
		return err
	}
	defer e.backup.release()

	// Hold the write lock so no ingestion mutates files mid-copy.
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.E(errors.KindUnavailable, op, "engine is closed")
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return errors.Wrap(errors.KindInternal, op, err)
	}

	count, err := e.meta.Count(ctx)
	if err != nil {
		return err
	}

	// Metadata snapshots through SQLite itself.
	if err := e.meta.Backup(ctx, filepath.Join(destDir, "documents.db")); err != nil {
		return err
	}

	// The text index copies as a unit, never file by file from a live
	// writer; writers are quiesced by the lock above.
	files := []string{"documents.db"}
	textPath := store.TextIndexPath(e.cfg.DataDir, e.cfg.TextBackend)
	if _, statErr := os.Stat(textPath); statErr == nil {
		destText := filepath.Join(destDir, filepath.Base(textPath))
		if err := copyPath(textPath, destText); err != nil {
			return errors.Wrap(errors.KindInternal, op, err)
		}
		files = append(files, filepath.Base(textPath))
	}

	// Flush vectors, then copy the cache file.
	if err := e.vectors.Save(); err != nil {
		return err
	}
	cachePath := e.cachePath()
	if _, statErr := os.Stat(cachePath); statErr == nil {
		if err := copyFile(cachePath, filepath.Join(destDir, filepath.Base(cachePath))); err != nil {
			return errors.Wrap(errors.KindInternal, op, err)
		}
		files = append(files, filepath.Base(cachePath))
	}

	manifest := backupManifest{
		Version:     1,
		CreatedAt:   time.Now().UTC(),
		TextBackend: e.cfg.TextBackend,
		Documents:   count,
		Files:       files,
	}
	if err := writeManifest(destDir, manifest); err != nil {
		return errors.Wrap(errors.KindInternal, op, err)
	}

	e.logger.Info("backup_completed",
		slog.String("dest", destDir),
		slog.Int("documents", count))
	return nil
}

// Restore replaces all engine state with the backup in srcDir. Live
// state is fully replaced, never merged.
func (e *Engine) Restore(ctx context.Context, srcDir string) error {
	const op = "engine.Restore"

	manifest, err := readManifest(srcDir)
	if err != nil {
		return err
	}

	if err := e.backup.acquire(op); err != nil {
		return err
	}
	defer e.backup.release()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.E(errors.KindUnavailable, op, "engine is closed")
	}

	// Metadata restores through the store's own close-swap-reopen.
	if err := e.meta.Restore(ctx, filepath.Join(srcDir, "documents.db")); err != nil {
		return err
	}

	// Swap the text index: close, replace the files, reopen.
	if err := e.text.Close(); err != nil {
		return errors.Wrap(errors.KindInternal, op, err)
	}
	textPath := store.TextIndexPath(e.cfg.DataDir, manifest.TextBackend)
	if err := os.RemoveAll(store.TextIndexPath(e.cfg.DataDir, e.cfg.TextBackend)); err != nil {
		return errors.Wrap(errors.KindInternal, op, err)
	}
	backupText := filepath.Join(srcDir, filepath.Base(textPath))
	if _, statErr := os.Stat(backupText); statErr == nil {
		if err := copyPath(backupText, textPath); err != nil {
			return errors.Wrap(errors.KindInternal, op, err)
		}
	}
	e.cfg.TextBackend = manifest.TextBackend

	text, err := store.NewTextIndex(filepath.Join(e.cfg.DataDir, "text"),
		e.cfg.TextConfig, e.cfg.TextBackend, e.logger)
	if err != nil {
		return err
	}
	e.text = text

	// Swap the embedding cache the same way.
	if err := e.vectors.Close(); err != nil {
		return errors.Wrap(errors.KindInternal, op, err)
	}
	cachePath := e.cachePath()
	_ = os.Remove(cachePath)
	backupCache := filepath.Join(srcDir, filepath.Base(cachePath))
	if _, statErr := os.Stat(backupCache); statErr == nil {
		if err := copyFile(backupCache, cachePath); err != nil {
			return errors.Wrap(errors.KindInternal, op, err)
		}
	}
	vectors, err := store.NewHNSWEmbeddingCache(cachePath, e.embedder, e.logger)
	if err != nil {
		return err
	}
	e.vectors = vectors

	if err := e.rewireLocked(); err != nil {
		return err
	}

	e.logger.Info("restore_completed",
		slog.String("src", srcDir),
		slog.Int("documents", manifest.Documents))
	return nil
}

// copyPath copies a file or directory tree.
func copyPath(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(src, dst)
	}

	if err := os.MkdirAll(dst, info.Mode()); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := copyPath(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// copyFile copies a single file, fsyncing the destination.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
