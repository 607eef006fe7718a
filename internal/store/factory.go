package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// TextBackend selects the full-text index implementation.
type TextBackend string

const (
	// TextBackendBleve uses Bleve v2 (default). Rich scoring and matched
	// term extraction; exclusive file locking, single process only.
	TextBackendBleve TextBackend = "bleve"

	// TextBackendSQLite uses SQLite FTS5. WAL mode allows concurrent
	// multi-process readers.
	TextBackendSQLite TextBackend = "sqlite"
)

// NewTextIndex creates a TextIndex using the named backend. basePath is
// the index path without extension; the backend appends its own
// (.bleve directory, .db file). An empty basePath creates an in-memory
// index for testing.
func NewTextIndex(basePath string, cfg TextIndexConfig, backend string, logger *slog.Logger) (TextIndex, error) {
	switch backend {
	case string(TextBackendBleve), "":
		var path string
		if basePath != "" {
			path = basePath + ".bleve"
		}
		return NewBleveTextIndex(path, cfg, logger)

	case string(TextBackendSQLite):
		var path string
		if basePath != "" {
			path = basePath + ".db"
		}
		return NewSQLiteTextIndex(path, cfg, logger)

	default:
		return nil, fmt.Errorf("unknown text index backend: %s (valid options: bleve, sqlite)", backend)
	}
}

// DetectTextBackend reports which backend an existing index at basePath
// uses, or empty when no index exists. Used when opening a data
// directory written by an earlier configuration.
func DetectTextBackend(basePath string) TextBackend {
	if dirExists(basePath + ".bleve") {
		return TextBackendBleve
	}
	if fileExists(basePath + ".db") {
		return TextBackendSQLite
	}
	return ""
}

// TextIndexPath returns the full on-disk path for the given backend.
func TextIndexPath(dataDir, backend string) string {
	basePath := filepath.Join(dataDir, "text")
	if backend == string(TextBackendSQLite) {
		return basePath + ".db"
	}
	return basePath + ".bleve"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
