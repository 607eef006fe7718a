package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docmind/docmind/internal/errors"
	"github.com/docmind/docmind/internal/store"
)

// overFetchFactor widens the sub-query limits so fusion and metadata
// filters still have enough candidates after truncation.
const overFetchFactor = 3

// Config configures the search engine.
type Config struct {
	// Weights are the default fusion weights, overridable per call.
	Weights Weights

	// SnippetLength is the target snippet size in bytes.
	SnippetLength int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Weights:       DefaultWeights(),
		SnippetLength: DefaultSnippetLength,
	}
}

// Engine executes searches across the text index and embedding cache,
// resolving ranked IDs against the metadata store. All dependencies
// are injected; the engine owns none of their lifecycles.
type Engine struct {
	meta      store.MetadataStore
	text      store.TextIndex
	vectors   store.EmbeddingCache
	history   store.HistoryStore
	suggester *Suggester
	config    Config
	logger    *slog.Logger
}

// NewEngine builds a search engine. history may be nil, which disables
// recording and history-based suggestions.
func NewEngine(meta store.MetadataStore, text store.TextIndex, vectors store.EmbeddingCache,
	history store.HistoryStore, cfg Config, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, errors.Wrap(errors.KindConstraintViolation, "search.NewEngine", err)
	}
	if cfg.SnippetLength <= 0 {
		cfg.SnippetLength = DefaultSnippetLength
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		meta:    meta,
		text:    text,
		vectors: vectors,
		history: history,
		config:  cfg,
		logger:  logger,
	}
	if history != nil {
		e.suggester = NewSuggester(history, meta)
	}
	return e, nil
}

// Search executes a query. Empty or whitespace-only queries return an
// empty response, never an error.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	const op = "search.Search"
	started := time.Now()

	mode := opts.Mode
	if mode == "" {
		mode = ModeHybrid
	}
	if !mode.Valid() {
		return nil, errors.E(errors.KindConstraintViolation, op,
			"unknown search mode: "+string(mode))
	}

	weights := e.config.Weights
	if opts.Weights != nil {
		weights = *opts.Weights
	}
	if err := weights.Validate(); err != nil {
		return nil, errors.Wrap(errors.KindConstraintViolation, op, err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	offset := opts.Offset
	if offset < 0 {
		return nil, errors.E(errors.KindConstraintViolation, op, "offset must not be negative")
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return &Response{Results: []*Result{}, Mode: mode, Took: time.Since(started)}, nil
	}

	fetchLimit := (limit + offset) * overFetchFactor

	var (
		lexical  []*store.TextHit
		semantic []*store.SimilarHit
		degraded bool
	)

	switch mode {
	case ModeFullText:
		hits, err := e.text.Search(ctx, query, fetchLimit)
		if err != nil {
			return nil, err
		}
		lexical = hits

	case ModeSemantic:
		sims, err := e.vectors.SearchSimilar(ctx, query, fetchLimit)
		if err != nil {
			// An unavailable embedder narrows semantic to full-text
			// with the response flagged, rather than failing.
			if !errors.IsKind(err, errors.KindUnavailable) {
				return nil, err
			}
			hits, textErr := e.text.Search(ctx, query, fetchLimit)
			if textErr != nil {
				return nil, textErr
			}
			lexical = hits
			degraded = true
			e.logger.Warn("semantic_search_unavailable",
				slog.String("query", query),
				slog.String("error", err.Error()))
		} else {
			semantic = sims
		}

	case ModeHybrid:
		// Both legs run concurrently; they touch disjoint stores.
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			hits, err := e.text.Search(gctx, query, fetchLimit)
			if err != nil {
				return err
			}
			lexical = hits
			return nil
		})

		var semanticErr error
		g.Go(func() error {
			sims, err := e.vectors.SearchSimilar(gctx, query, fetchLimit)
			if err != nil {
				// An unavailable semantic leg degrades hybrid to
				// full-text instead of failing the whole query.
				if errors.IsKind(err, errors.KindUnavailable) {
					semanticErr = err
					return nil
				}
				return err
			}
			semantic = sims
			return nil
		})

		if err := g.Wait(); err != nil {
			return nil, err
		}
		if semanticErr != nil {
			degraded = true
			e.logger.Warn("semantic_search_unavailable",
				slog.String("query", query),
				slog.String("error", semanticErr.Error()))
		}
	}

	fused := NewLinearFusion(weights).Fuse(lexical, semantic)
	results, err := e.resolve(ctx, fused, opts.Filters, limit, offset)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Results:  results,
		Mode:     mode,
		Degraded: degraded,
		Took:     time.Since(started),
	}
	e.record(ctx, query, mode, len(results), resp.Took)
	return resp, nil
}

// resolve loads documents for fused candidates, applies metadata
// filters, runs the final deterministic sort, applies offset and
// limit, and builds snippets.
func (e *Engine) resolve(ctx context.Context, fused []*fusedResult, filters Filters, limit, offset int) ([]*Result, error) {
	type candidate struct {
		fused *fusedResult
		doc   *store.Document
	}

	candidates := make([]candidate, 0, len(fused))
	for _, f := range fused {
		doc, err := e.meta.Load(ctx, f.DocID)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			// Indexed but missing from the metadata store; re-sync
			// will clean this up.
			e.logger.Debug("search_orphan_skipped", slog.String("doc_id", f.DocID))
			continue
		}
		if !filters.Matches(doc) {
			continue
		}
		candidates = append(candidates, candidate{fused: f, doc: doc})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.fused.Score != b.fused.Score {
			return a.fused.Score > b.fused.Score
		}
		if a.fused.RawLexical != b.fused.RawLexical {
			return a.fused.RawLexical > b.fused.RawLexical
		}
		if !a.doc.IndexedAt.Equal(b.doc.IndexedAt) {
			return a.doc.IndexedAt.After(b.doc.IndexedAt)
		}
		return a.doc.ID < b.doc.ID
	})

	if offset >= len(candidates) {
		candidates = nil
	} else {
		candidates = candidates[offset:]
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	results := make([]*Result, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, &Result{
			Document:      c.doc,
			Score:         c.fused.Score,
			LexicalScore:  c.fused.LexicalScore,
			SemanticScore: c.fused.SemanticScore,
			MatchedTerms:  c.fused.MatchedTerms,
			Snippet:       BuildSnippet(c.doc.Content, c.fused.MatchedTerms, e.config.SnippetLength),
		})
	}
	return results, nil
}

// record appends the search to history. Best effort: a history failure
// never fails the search.
func (e *Engine) record(ctx context.Context, query string, mode Mode, count int, took time.Duration) {
	if e.history == nil {
		return
	}

	err := e.history.RecordSearch(ctx, store.HistoryEntry{
		Query:       query,
		Mode:        string(mode),
		ResultCount: count,
		Duration:    took,
		ExecutedAt:  time.Now(),
	})
	if err != nil {
		e.logger.Warn("search_history_record_failed",
			slog.String("query", query),
			slog.String("error", err.Error()))
		return
	}
	e.suggester.Invalidate()
}

// Suggest returns query completions for a prefix.
func (e *Engine) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	if e.suggester == nil {
		return []string{}, nil
	}
	return e.suggester.Suggest(ctx, prefix, limit)
}
