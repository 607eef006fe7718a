// Package engine wires the stores, indexes, and search together behind
// one facade: ingestion, search, maintenance, backup, and restore.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docmind/docmind/internal/embed"
	"github.com/docmind/docmind/internal/errors"
	"github.com/docmind/docmind/internal/index"
	"github.com/docmind/docmind/internal/search"
	"github.com/docmind/docmind/internal/store"
)

// DefaultIngestWorkers bounds concurrent document ingestion.
const DefaultIngestWorkers = 4

// cacheFileName is the embedding cache file inside the data directory.
const cacheFileName = "embeddings.cache"

// Config configures the engine.
type Config struct {
	// DataDir holds all engine state (databases, indexes, cache).
	DataDir string

	// TextBackend selects the full-text index backend (bleve, sqlite).
	TextBackend string

	// TextConfig configures tokenization and scoring.
	TextConfig store.TextIndexConfig

	// Search configures fusion weights and snippets.
	Search search.Config

	// IngestWorkers bounds concurrent batch ingestion (default: 4).
	IngestWorkers int
}

// DefaultConfig returns the default engine configuration for dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:       dataDir,
		TextBackend:   string(store.TextBackendBleve),
		TextConfig:    store.DefaultTextIndexConfig(),
		Search:        search.DefaultConfig(),
		IngestWorkers: DefaultIngestWorkers,
	}
}

// Engine is the top-level facade. All blocking operations take a
// context; all state mutations serialize through the internal lock.
type Engine struct {
	mu       sync.RWMutex
	cfg      Config
	meta     *store.SQLiteStore
	text     store.TextIndex
	vectors  store.EmbeddingCache
	embedder embed.Embedder
	searcher *search.Engine
	checker  *index.ConsistencyChecker
	builder  *index.Rebuilder
	backup   *BackupCoordinator
	logger   *slog.Logger
	closed   bool
}

// Open builds an engine over cfg.DataDir. A corrupt text index is
// moved aside and rebuilt from the metadata store; a corrupt embedding
// cache starts empty and is re-embedded the same way.
func Open(cfg Config, embedder embed.Embedder, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DataDir == "" {
		return nil, errors.E(errors.KindConstraintViolation, "engine.Open", "data directory is required")
	}
	if cfg.IngestWorkers <= 0 {
		cfg.IngestWorkers = DefaultIngestWorkers
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	meta, err := store.NewSQLiteStore(filepath.Join(cfg.DataDir, "documents.db"))
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		meta:     meta,
		embedder: embedder,
		logger:   logger,
		backup:   NewBackupCoordinator(cfg.DataDir, logger),
	}
	e.builder = index.NewRebuilder(meta, logger)

	if err := e.openTextIndex(context.Background()); err != nil {
		_ = meta.Close()
		return nil, err
	}
	if err := e.openEmbeddingCache(context.Background()); err != nil {
		_ = e.text.Close()
		_ = meta.Close()
		return nil, err
	}

	if err := e.rewireLocked(); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) cachePath() string {
	return filepath.Join(e.cfg.DataDir, cacheFileName)
}

// openTextIndex opens the text index, recovering from corruption by
// moving the damaged files aside and rebuilding from the metadata
// store. The damaged index is preserved for inspection, not truncated.
func (e *Engine) openTextIndex(ctx context.Context) error {
	basePath := filepath.Join(e.cfg.DataDir, "text")

	text, err := store.NewTextIndex(basePath, e.cfg.TextConfig, e.cfg.TextBackend, e.logger)
	if err == nil {
		e.text = text
		return nil
	}
	if !errors.IsKind(err, errors.KindIndexCorrupted) {
		return err
	}

	damaged := store.TextIndexPath(e.cfg.DataDir, e.cfg.TextBackend)
	aside := fmt.Sprintf("%s.corrupt-%d", damaged, time.Now().Unix())
	if renameErr := os.Rename(damaged, aside); renameErr != nil {
		return errors.Wrap(errors.KindIndexCorrupted, "engine.Open", renameErr)
	}
	e.logger.Warn("text_index_rebuilding",
		slog.String("damaged", aside),
		slog.String("error", err.Error()))

	text, err = store.NewTextIndex(basePath, e.cfg.TextConfig, e.cfg.TextBackend, e.logger)
	if err != nil {
		return err
	}
	if _, err := e.builder.RebuildText(ctx, text); err != nil {
		_ = text.Close()
		return err
	}
	e.text = text
	return nil
}

// openEmbeddingCache opens the cache and re-embeds from the metadata
// store when the persisted file was corrupt or stale.
func (e *Engine) openEmbeddingCache(ctx context.Context) error {
	vectors, err := store.NewHNSWEmbeddingCache(e.cachePath(), e.embedder, e.logger)
	if err != nil {
		return err
	}

	if vectors.Degraded() || vectors.StaleCount() > 0 {
		e.logger.Warn("embedding_cache_rebuilding",
			slog.Bool("degraded", vectors.Degraded()),
			slog.Int("stale", vectors.StaleCount()))
		if _, err := e.builder.RebuildVectors(ctx, vectors); err != nil {
			_ = vectors.Close()
			return err
		}
		if err := vectors.Save(); err != nil {
			_ = vectors.Close()
			return err
		}
	}

	e.vectors = vectors
	return nil
}

// rewireLocked rebuilds the search engine and checker over the current
// store handles. Called after any handle swap, under the write lock.
func (e *Engine) rewireLocked() error {
	searcher, err := search.NewEngine(e.meta, e.text, e.vectors, e.meta, e.cfg.Search, e.logger)
	if err != nil {
		return err
	}
	e.searcher = searcher
	e.checker = index.NewConsistencyChecker(e.meta, e.text, e.vectors, e.logger)
	return nil
}

// IngestResult reports one ingestion outcome.
type IngestResult struct {
	DocID string
	// Skipped is set when the content hash matched the stored record
	// and no work was needed.
	Skipped bool
	// EmbeddingFailed is set when the document was indexed for
	// full-text search but the semantic leg could not embed it.
	EmbeddingFailed bool
}

// Ingest adds or updates one document across all stores. Unchanged
// content (same ID, same hash) is a no-op. An embedding failure does
// not fail the ingest; the document stays findable by keyword.
func (e *Engine) Ingest(ctx context.Context, doc *store.Document) (*IngestResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, errors.E(errors.KindUnavailable, "engine.Ingest", "engine is closed")
	}
	return e.ingestOne(ctx, doc)
}

func (e *Engine) ingestOne(ctx context.Context, doc *store.Document) (*IngestResult, error) {
	if doc == nil || doc.ID == "" {
		return nil, errors.E(errors.KindConstraintViolation, "engine.Ingest", "document id is required")
	}

	hash := store.HashContent(doc.Content)
	existing, err := e.meta.Load(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.ContentHash == hash {
		return &IngestResult{DocID: doc.ID, Skipped: true}, nil
	}

	doc.ContentHash = hash
	doc.IndexedAt = time.Now()

	if err := e.meta.Save(ctx, doc); err != nil {
		return nil, err
	}
	if err := e.text.Add(ctx, doc); err != nil {
		return nil, err
	}

	result := &IngestResult{DocID: doc.ID}
	if err := e.vectors.Add(ctx, doc.ID, doc.Content); err != nil {
		result.EmbeddingFailed = true
		e.logger.Warn("ingest_embedding_failed",
			slog.String("doc_id", doc.ID),
			slog.String("error", err.Error()))
	}
	return result, nil
}

// BatchFailure is one failed document in a batch.
type BatchFailure struct {
	DocID string
	Err   error
}

// BatchReport summarizes an IngestBatch call.
type BatchReport struct {
	Succeeded int
	Skipped   int
	Failures  []BatchFailure
}

// IngestBatch ingests documents concurrently with a bounded worker
// pool. Each document succeeds or fails on its own; one bad document
// never aborts the rest.
func (e *Engine) IngestBatch(ctx context.Context, docs []*store.Document) (*BatchReport, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, errors.E(errors.KindUnavailable, "engine.IngestBatch", "engine is closed")
	}

	report := &BatchReport{}
	var reportMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.IngestWorkers)

	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			result, err := e.ingestOne(gctx, doc)

			reportMu.Lock()
			defer reportMu.Unlock()
			switch {
			case err != nil:
				id := ""
				if doc != nil {
					id = doc.ID
				}
				report.Failures = append(report.Failures, BatchFailure{DocID: id, Err: err})
			case result.Skipped:
				report.Skipped++
			default:
				report.Succeeded++
			}
			return nil // per-document failures stay in the report
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, nil
}

// Delete removes a document everywhere. Best effort: a failure in one
// store does not stop removal from the others, and the first error is
// returned after all attempts.
func (e *Engine) Delete(ctx context.Context, id string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return errors.E(errors.KindUnavailable, "engine.Delete", "engine is closed")
	}

	var firstErr error
	if err := e.meta.Delete(ctx, id); err != nil {
		firstErr = err
	}
	if err := e.text.Remove(ctx, id); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.vectors.Remove(id); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Search executes a query.
func (e *Engine) Search(ctx context.Context, query string, opts search.Options) (*search.Response, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, errors.E(errors.KindUnavailable, "engine.Search", "engine is closed")
	}
	return e.searcher.Search(ctx, query, opts)
}

// Suggest returns query completions for a prefix.
func (e *Engine) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, errors.E(errors.KindUnavailable, "engine.Suggest", "engine is closed")
	}
	return e.searcher.Suggest(ctx, prefix, limit)
}

// History returns the most recent searches, newest first.
func (e *Engine) History(ctx context.Context, limit int) ([]store.HistoryEntry, error) {
	return e.meta.RecentSearches(ctx, limit)
}

// Status is a health snapshot.
type Status struct {
	Documents      int
	TextIndexed    int
	Vectors        int
	CacheDegraded  bool
	StaleVectors   int
	Consistent     bool
	EmbedAvailable bool
}

// Health reports store sizes, cache state, and a quick consistency
// verdict.
func (e *Engine) Health(ctx context.Context) (*Status, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, errors.E(errors.KindUnavailable, "engine.Health", "engine is closed")
	}

	documents, err := e.meta.Count(ctx)
	if err != nil {
		return nil, err
	}
	textCount, err := e.text.DocumentCount()
	if err != nil {
		return nil, err
	}
	consistent, err := e.checker.QuickCheck(ctx)
	if err != nil {
		return nil, err
	}

	return &Status{
		Documents:      documents,
		TextIndexed:    textCount,
		Vectors:        e.vectors.Size(),
		CacheDegraded:  e.vectors.Degraded(),
		StaleVectors:   e.vectors.StaleCount(),
		Consistent:     consistent,
		EmbedAvailable: e.embedder.Available(ctx),
	}, nil
}

// Resync reconciles the derived stores against the metadata store:
// orphans are removed, missing entries re-added.
func (e *Engine) Resync(ctx context.Context) (*index.CheckResult, *index.RepairResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, nil, errors.E(errors.KindUnavailable, "engine.Resync", "engine is closed")
	}

	check, err := e.checker.Check(ctx)
	if err != nil {
		return nil, nil, err
	}
	if check.Consistent() {
		return check, &index.RepairResult{}, nil
	}

	repair, err := e.checker.Repair(ctx, check.Inconsistencies)
	if err != nil {
		return check, repair, err
	}
	return check, repair, nil
}

// RebuildTextIndex rebuilds the full-text index from the metadata
// store into a fresh index, swapping it in only on success. A timeout
// or failure leaves the serving index untouched.
func (e *Engine) RebuildTextIndex(ctx context.Context) (int, error) {
	// Snapshot the config under the read lock; Restore may change the
	// text backend while the fresh index is being built.
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return 0, errors.E(errors.KindUnavailable, "engine.RebuildTextIndex", "engine is closed")
	}
	cfg := e.cfg
	builder := e.builder
	e.mu.RUnlock()

	tmpBase := filepath.Join(cfg.DataDir, fmt.Sprintf("text.rebuild-%d", time.Now().UnixNano()))

	fresh, err := store.NewTextIndex(tmpBase, cfg.TextConfig, cfg.TextBackend, e.logger)
	if err != nil {
		return 0, err
	}

	freshPath := tmpBase + textExt(cfg.TextBackend)
	n, err := builder.RebuildText(ctx, fresh)
	if err != nil {
		_ = fresh.Close()
		_ = os.RemoveAll(freshPath)
		return 0, err
	}
	if err := fresh.Close(); err != nil {
		_ = os.RemoveAll(freshPath)
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		_ = os.RemoveAll(freshPath)
		return 0, errors.E(errors.KindUnavailable, "engine.RebuildTextIndex", "engine is closed")
	}
	if e.cfg.TextBackend != cfg.TextBackend {
		// A concurrent restore switched backends; the fresh index was
		// built for the old one and must not be swapped in.
		_ = os.RemoveAll(freshPath)
		return 0, errors.E(errors.KindLocked, "engine.RebuildTextIndex",
			"text backend changed during rebuild")
	}

	livePath := store.TextIndexPath(e.cfg.DataDir, e.cfg.TextBackend)
	if err := e.text.Close(); err != nil {
		return 0, errors.Wrap(errors.KindInternal, "engine.RebuildTextIndex", err)
	}
	if err := os.RemoveAll(livePath); err != nil {
		return 0, errors.Wrap(errors.KindInternal, "engine.RebuildTextIndex", err)
	}
	if err := os.Rename(freshPath, livePath); err != nil {
		return 0, errors.Wrap(errors.KindInternal, "engine.RebuildTextIndex", err)
	}

	reopened, err := store.NewTextIndex(filepath.Join(e.cfg.DataDir, "text"),
		e.cfg.TextConfig, e.cfg.TextBackend, e.logger)
	if err != nil {
		return 0, err
	}
	e.text = reopened
	if err := e.rewireLocked(); err != nil {
		return 0, err
	}

	e.logger.Info("text_index_rebuilt", slog.Int("documents", n))
	return n, nil
}

// RebuildEmbeddings re-embeds every document into a fresh cache and
// swaps it in on success.
func (e *Engine) RebuildEmbeddings(ctx context.Context) (int, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return 0, errors.E(errors.KindUnavailable, "engine.RebuildEmbeddings", "engine is closed")
	}
	dataDir := e.cfg.DataDir
	builder := e.builder
	e.mu.RUnlock()

	tmpPath := filepath.Join(dataDir,
		fmt.Sprintf("%s.rebuild-%d", cacheFileName, time.Now().UnixNano()))

	fresh, err := store.NewHNSWEmbeddingCache(tmpPath, e.embedder, e.logger)
	if err != nil {
		return 0, err
	}

	n, err := builder.RebuildVectors(ctx, fresh)
	if err != nil {
		_ = fresh.Close()
		_ = os.Remove(tmpPath)
		return 0, err
	}
	if err := fresh.Save(); err != nil {
		_ = fresh.Close()
		_ = os.Remove(tmpPath)
		return 0, err
	}
	_ = fresh.Close()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		_ = os.Remove(tmpPath)
		return 0, errors.E(errors.KindUnavailable, "engine.RebuildEmbeddings", "engine is closed")
	}

	if err := e.vectors.Close(); err != nil {
		return 0, errors.Wrap(errors.KindInternal, "engine.RebuildEmbeddings", err)
	}
	if err := os.Rename(tmpPath, e.cachePath()); err != nil {
		return 0, errors.Wrap(errors.KindInternal, "engine.RebuildEmbeddings", err)
	}

	reopened, err := store.NewHNSWEmbeddingCache(e.cachePath(), e.embedder, e.logger)
	if err != nil {
		return 0, err
	}
	e.vectors = reopened
	if err := e.rewireLocked(); err != nil {
		return 0, err
	}

	e.logger.Info("embeddings_rebuilt", slog.Int("documents", n))
	return n, nil
}

// Close flushes and closes all stores. Idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var firstErr error
	if e.vectors != nil {
		if err := e.vectors.Save(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := e.vectors.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.text != nil {
		if err := e.text.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.meta != nil {
		if err := e.meta.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// textExt returns the on-disk extension for a text backend.
func textExt(backend string) string {
	if backend == string(store.TextBackendSQLite) {
		return ".db"
	}
	return ".bleve"
}
