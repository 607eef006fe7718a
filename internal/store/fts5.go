package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/docmind/docmind/internal/errors"
)

// SQLiteTextIndex is the FTS5-backed TextIndex. It lives in its own
// database file, separate from the metadata store, so an index rebuild
// never touches document records.
type SQLiteTextIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	config TextIndexConfig
	tok    *Tokenizer
	closed bool
}

var _ TextIndex = (*SQLiteTextIndex)(nil)

// NewSQLiteTextIndex opens (or creates) the FTS5 index at path. An
// empty path creates an in-memory index for testing.
//
// A failed integrity check surfaces as KindIndexCorrupted; the file is
// left in place for the engine to rebuild from the metadata store.
func NewSQLiteTextIndex(path string, cfg TextIndexConfig, logger *slog.Logger) (*SQLiteTextIndex, error) {
	const op = "index.Open"
	if logger == nil {
		logger = slog.Default()
	}

	dsn := path
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
		if err := validateStoreIntegrity(path); err != nil {
			logger.Warn("fts_index_corrupted",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil, errors.Wrap(errors.KindIndexCorrupted, op, err)
		}
	}

	db, err := openMetadataDB(dsn)
	if err != nil {
		return nil, err
	}

	if cfg.TitleBoost <= 0 {
		cfg.TitleBoost = 2.0
	}

	idx := &SQLiteTextIndex{
		db:     db,
		path:   path,
		config: cfg,
		tok:    NewTokenizer(cfg),
	}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize fts schema: %w", err)
	}

	return idx, nil
}

func (s *SQLiteTextIndex) initSchema() error {
	// doc_id is stored but not searchable. Text is pre-tokenized by the
	// shared tokenizer, so unicode61 only has to split on spaces.
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS fts_documents USING fts5(
		doc_id UNINDEXED,
		title,
		content,
		tokenize='unicode61'
	);

	CREATE TABLE IF NOT EXISTS doc_ids (
		doc_id TEXT PRIMARY KEY
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Add indexes a document. FTS5 has no REPLACE, so the old row is
// deleted first inside the same transaction.
func (s *SQLiteTextIndex) Add(ctx context.Context, doc *Document) error {
	const op = "index.Add"
	if doc == nil || doc.ID == "" {
		return errors.E(errors.KindConstraintViolation, op, "document id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.E(errors.KindUnavailable, op, "index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM fts_documents WHERE doc_id = ?`, doc.ID); err != nil {
		return classify(op, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO fts_documents(doc_id, title, content) VALUES (?, ?, ?)`,
		doc.ID,
		strings.Join(s.tok.Tokenize(doc.Title), " "),
		strings.Join(s.tok.Tokenize(doc.Content), " ")); err != nil {
		return classify(op, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO doc_ids(doc_id) VALUES (?)`, doc.ID); err != nil {
		return classify(op, err)
	}

	return classify(op, tx.Commit())
}

// Update replaces a document's postings.
func (s *SQLiteTextIndex) Update(ctx context.Context, doc *Document) error {
	return s.Add(ctx, doc)
}

// Remove deletes a document. Missing IDs are a no-op success.
func (s *SQLiteTextIndex) Remove(ctx context.Context, id string) error {
	const op = "index.Remove"
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.E(errors.KindUnavailable, op, "index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fts_documents WHERE doc_id = ?`, id); err != nil {
		return classify(op, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM doc_ids WHERE doc_id = ?`, id); err != nil {
		return classify(op, err)
	}

	return classify(op, tx.Commit())
}

// Search returns hits ranked by BM25. The bm25() weights boost title
// matches over content matches; FTS5 reports negative scores where
// lower is better, so scores are negated for a higher-is-better scale.
func (s *SQLiteTextIndex) Search(ctx context.Context, queryStr string, limit int) ([]*TextHit, error) {
	const op = "index.Search"
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.E(errors.KindUnavailable, op, "index is closed")
	}

	if strings.TrimSpace(queryStr) == "" {
		return []*TextHit{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	tokens := s.tok.Tokenize(queryStr)
	if len(tokens) == 0 {
		return []*TextHit{}, nil
	}

	// Quote each term so FTS5 operators in user input match literally.
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = `"` + tok + `"`
	}
	matchExpr := strings.Join(quoted, " ")

	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, bm25(fts_documents, 0, ?, 1.0) AS score
		FROM fts_documents
		WHERE fts_documents MATCH ?
		ORDER BY score
		LIMIT ?`, s.config.TitleBoost, matchExpr, limit)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []*TextHit{}, nil
		}
		return nil, classify(op, err)
	}
	defer rows.Close()

	var hits []*TextHit
	for rows.Next() {
		var docID string
		var score float64
		if err := rows.Scan(&docID, &score); err != nil {
			return nil, classify(op, err)
		}
		hits = append(hits, &TextHit{
			DocID:        docID,
			Score:        -score,
			MatchedTerms: tokens,
		})
	}
	if hits == nil {
		hits = []*TextHit{}
	}
	return hits, classify(op, rows.Err())
}

// Optimize merges the FTS5 b-tree segments and checkpoints the WAL.
func (s *SQLiteTextIndex) Optimize(ctx context.Context) error {
	const op = "index.Optimize"
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.E(errors.KindUnavailable, op, "index is closed")
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO fts_documents(fts_documents) VALUES('optimize')`); err != nil {
		return classify(op, err)
	}
	_, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	return classify(op, err)
}

// DocumentCount returns the number of indexed documents.
func (s *SQLiteTextIndex) DocumentCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errors.E(errors.KindUnavailable, "index.DocumentCount", "index is closed")
	}

	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM doc_ids`).Scan(&count)
	if err != nil {
		return 0, classify("index.DocumentCount", err)
	}
	return count, nil
}

// Exists reports whether the ID is indexed.
func (s *SQLiteTextIndex) Exists(id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, errors.E(errors.KindUnavailable, "index.Exists", "index is closed")
	}

	var one int
	err := s.db.QueryRow(`SELECT 1 FROM doc_ids WHERE doc_id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, classify("index.Exists", err)
	}
	return true, nil
}

// AllIDs returns every indexed document ID, sorted ascending.
func (s *SQLiteTextIndex) AllIDs() ([]string, error) {
	const op = "index.AllIDs"
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.E(errors.KindUnavailable, op, "index is closed")
	}

	rows, err := s.db.Query(`SELECT doc_id FROM doc_ids ORDER BY doc_id`)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classify(op, err)
		}
		ids = append(ids, id)
	}
	return ids, classify(op, rows.Err())
}

// Close closes the index. Idempotent.
func (s *SQLiteTextIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	_, _ = s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`)
	return s.db.Close()
}
