package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/docmind/docmind/internal/errors"
)

// DefaultBusyTimeout bounds how long a writer waits on a competing
// transaction before the store reports KindLocked.
const DefaultBusyTimeout = 5 * time.Second

// metadataSchemaVersion is the current documents.db schema version.
const metadataSchemaVersion = 1

// SQLiteStore implements MetadataStore and HistoryStore on a single
// SQLite database. A single connection serializes writers; readers see
// the last-committed snapshot via WAL.
type SQLiteStore struct {
	mu     sync.Mutex // guards reopen during Restore
	db     *sql.DB
	path   string
	closed bool
}

var (
	_ MetadataStore = (*SQLiteStore)(nil)
	_ HistoryStore  = (*SQLiteStore)(nil)
)

// validateStoreIntegrity checks the database structure before opening.
// A failed check is fatal (KindStoreCorrupted) and never auto-reset.
func validateStoreIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // fresh store, will be created
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return errors.Wrap(errors.KindStoreCorrupted, "store.Open", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return errors.Wrap(errors.KindStoreCorrupted, "store.Open", err)
	}
	if result != "ok" {
		return errors.E(errors.KindStoreCorrupted, "store.Open",
			fmt.Sprintf("integrity check failed: %s", result))
	}

	return nil
}

// NewSQLiteStore opens (or creates) the metadata store at path.
// An empty path creates an in-memory store for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		if err := validateStoreIntegrity(path); err != nil {
			return nil, err
		}
		dsn = path
	}

	db, err := openMetadataDB(dsn)
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

// openMetadataDB opens a connection with WAL mode and a bounded busy
// timeout. A single connection keeps writers serialized.
func openMetadataDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores some DSN params; set pragmas explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", DefaultBusyTimeout.Milliseconds()),
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	return db, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS documents (
		id           TEXT PRIMARY KEY,
		file_path    TEXT NOT NULL UNIQUE,
		title        TEXT NOT NULL,
		content      TEXT NOT NULL,
		file_type    TEXT NOT NULL CHECK (file_type IN ('text','markdown','pdf','word','excel')),
		size         INTEGER NOT NULL CHECK (size >= 0),
		created_at   INTEGER NOT NULL,
		modified_at  INTEGER NOT NULL,
		indexed_at   INTEGER NOT NULL,
		content_hash TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_file_type   ON documents(file_type);
	CREATE INDEX IF NOT EXISTS idx_documents_modified_at ON documents(modified_at);

	CREATE TABLE IF NOT EXISTS search_history (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		query        TEXT NOT NULL,
		mode         TEXT NOT NULL,
		result_count INTEGER NOT NULL,
		duration_ms  INTEGER NOT NULL,
		executed_at  INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_query       ON search_history(query);
	CREATE INDEX IF NOT EXISTS idx_history_executed_at ON search_history(executed_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`,
		metadataSchemaVersion)
	return err
}

// isLockedErr reports whether err is SQLite lock contention surfacing
// after the busy timeout expired.
func isLockedErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database table is locked")
}

// classify maps a driver error onto the engine taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isLockedErr(err) {
		return errors.Wrap(errors.KindLocked, op, err)
	}
	return errors.Wrap(errors.KindInternal, op, err)
}

// validateDocument enforces the Document constraints and fills derived
// fields (content hash, default title).
func validateDocument(op string, doc *Document) error {
	if doc == nil {
		return errors.E(errors.KindConstraintViolation, op, "document is nil")
	}
	if doc.ID == "" {
		return errors.E(errors.KindConstraintViolation, op, "document id is required")
	}
	if doc.FilePath == "" {
		return errors.E(errors.KindConstraintViolation, op, "file path is required")
	}
	if !doc.FileType.Valid() {
		return errors.E(errors.KindConstraintViolation, op,
			fmt.Sprintf("invalid file type %q", doc.FileType))
	}
	if doc.Size < 0 {
		return errors.E(errors.KindConstraintViolation, op,
			fmt.Sprintf("size must be >= 0, got %d", doc.Size))
	}
	if doc.ContentHash == "" {
		doc.ContentHash = HashContent(doc.Content)
	}
	if doc.Title == "" {
		doc.Title = strings.TrimSuffix(filepath.Base(doc.FilePath), filepath.Ext(doc.FilePath))
	}
	return nil
}

const upsertDocumentSQL = `
	INSERT OR REPLACE INTO documents
		(id, file_path, title, content, file_type, size, created_at, modified_at, indexed_at, content_hash)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Save upserts a document, replacing all fields.
func (s *SQLiteStore) Save(ctx context.Context, doc *Document) error {
	const op = "store.Save"
	if err := validateDocument(op, doc); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, upsertDocumentSQL,
		doc.ID, doc.FilePath, doc.Title, doc.Content, string(doc.FileType),
		doc.Size, doc.CreatedAt.UnixNano(), doc.ModifiedAt.UnixNano(),
		doc.IndexedAt.UnixNano(), doc.ContentHash)
	return classify(op, err)
}

// BulkSave writes all documents in one transaction. Any invalid record
// aborts the batch; no partial writes are observable.
func (s *SQLiteStore) BulkSave(ctx context.Context, docs []*Document) (int, error) {
	const op = "store.BulkSave"
	if len(docs) == 0 {
		return 0, nil
	}

	// Validate the whole batch before touching the database.
	for _, doc := range docs {
		if err := validateDocument(op, doc); err != nil {
			return 0, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertDocumentSQL)
	if err != nil {
		return 0, classify(op, err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		if _, err := stmt.ExecContext(ctx,
			doc.ID, doc.FilePath, doc.Title, doc.Content, string(doc.FileType),
			doc.Size, doc.CreatedAt.UnixNano(), doc.ModifiedAt.UnixNano(),
			doc.IndexedAt.UnixNano(), doc.ContentHash); err != nil {
			return 0, classify(op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, classify(op, err)
	}
	return len(docs), nil
}

const selectDocumentSQL = `
	SELECT id, file_path, title, content, file_type, size, created_at, modified_at, indexed_at, content_hash
	FROM documents`

func scanDocument(row interface{ Scan(...any) error }) (*Document, error) {
	var doc Document
	var fileType string
	var createdAt, modifiedAt, indexedAt int64

	err := row.Scan(&doc.ID, &doc.FilePath, &doc.Title, &doc.Content, &fileType,
		&doc.Size, &createdAt, &modifiedAt, &indexedAt, &doc.ContentHash)
	if err != nil {
		return nil, err
	}

	doc.FileType = FileType(fileType)
	doc.CreatedAt = time.Unix(0, createdAt)
	doc.ModifiedAt = time.Unix(0, modifiedAt)
	doc.IndexedAt = time.Unix(0, indexedAt)
	return &doc, nil
}

// Load returns the document or nil when absent.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, selectDocumentSQL+` WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("store.Load", err)
	}
	return doc, nil
}

// LoadByPath returns the document with the given file path, or nil.
func (s *SQLiteStore) LoadByPath(ctx context.Context, path string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, selectDocumentSQL+` WHERE file_path = ?`, path)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("store.LoadByPath", err)
	}
	return doc, nil
}

func (s *SQLiteStore) queryDocuments(ctx context.Context, op, query string, args ...any) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		docs = append(docs, doc)
	}
	return docs, classify(op, rows.Err())
}

// List returns documents ordered by ID. A limit <= 0 means no limit.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*Document, error) {
	if limit <= 0 {
		limit = -1 // SQLite: LIMIT -1 means unlimited
	}
	return s.queryDocuments(ctx, "store.List",
		selectDocumentSQL+` ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
}

// ListByType returns all documents of one file type, ordered by ID.
func (s *SQLiteStore) ListByType(ctx context.Context, ft FileType) ([]*Document, error) {
	return s.queryDocuments(ctx, "store.ListByType",
		selectDocumentSQL+` WHERE file_type = ? ORDER BY id`, string(ft))
}

// ListModifiedAfter returns documents modified after t, ordered by ID.
func (s *SQLiteStore) ListModifiedAfter(ctx context.Context, t time.Time) ([]*Document, error) {
	return s.queryDocuments(ctx, "store.ListModifiedAfter",
		selectDocumentSQL+` WHERE modified_at > ? ORDER BY id`, t.UnixNano())
}

// SearchTitles returns documents whose title contains the pattern
// (case-insensitive), ordered by ID.
func (s *SQLiteStore) SearchTitles(ctx context.Context, pattern string, limit int) ([]*Document, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryDocuments(ctx, "store.SearchTitles",
		selectDocumentSQL+` WHERE title LIKE ? ORDER BY id LIMIT ?`,
		"%"+pattern+"%", limit)
}

// Delete removes a document. Missing IDs are a no-op success.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return classify("store.Delete", err)
}

// DeleteByPath removes the document with the given file path.
func (s *SQLiteStore) DeleteByPath(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE file_path = ?`, path)
	return classify("store.DeleteByPath", err)
}

// Count returns the number of stored documents.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	if err != nil {
		return 0, classify("store.Count", err)
	}
	return count, nil
}

// AllIDs returns every stored document ID, sorted ascending.
func (s *SQLiteStore) AllIDs(ctx context.Context) ([]string, error) {
	const op = "store.AllIDs"
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM documents ORDER BY id`)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classify(op, err)
		}
		ids = append(ids, id)
	}
	return ids, classify(op, rows.Err())
}

// Backup writes a point-in-time copy of the database to path using
// VACUUM INTO, which snapshots the last-committed state without
// blocking readers.
func (s *SQLiteStore) Backup(ctx context.Context, path string) error {
	const op = "store.Backup"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.KindInternal, op, err)
	}
	// VACUUM INTO refuses to overwrite an existing file.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.KindInternal, op, err)
	}

	_, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path)
	return classify(op, err)
}

// Restore replaces the live database with the backup at path. Live
// state is fully replaced, never merged.
func (s *SQLiteStore) Restore(ctx context.Context, path string) error {
	const op = "store.Restore"
	if s.path == "" {
		return errors.E(errors.KindInternal, op, "cannot restore an in-memory store")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return errors.E(errors.KindNotFound, op, fmt.Sprintf("backup not found: %s", path))
	}
	// Refuse to restore from a damaged backup.
	if err := validateStoreIntegrity(path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Close the live connection, swap files, reopen.
	if err := s.db.Close(); err != nil {
		return errors.Wrap(errors.KindInternal, op, err)
	}
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if suffix != "" {
			_ = os.Remove(s.path + suffix)
		}
	}
	if err := copyFile(path, s.path); err != nil {
		return errors.Wrap(errors.KindInternal, op, err)
	}

	db, err := openMetadataDB(s.path)
	if err != nil {
		return errors.Wrap(errors.KindStoreCorrupted, op, err)
	}
	s.db = db
	return nil
}

// Close closes the store. Idempotent.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	// Checkpoint before close for durability of the main db file.
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// copyFile copies src to dst, fsyncing the destination.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

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
