package index

import (
	"context"
	"log/slog"
	"time"

	"github.com/docmind/docmind/internal/errors"
	"github.com/docmind/docmind/internal/store"
)

// rebuildPageSize bounds how many documents one metadata read pulls in.
const rebuildPageSize = 256

// Rebuilder repopulates derived stores from the metadata store. The
// caller provides a fresh target and swaps it in only after the
// rebuild succeeds, so a failed or timed-out rebuild never damages the
// serving state.
type Rebuilder struct {
	meta   store.MetadataStore
	logger *slog.Logger
}

// NewRebuilder creates a rebuilder reading from meta.
func NewRebuilder(meta store.MetadataStore, logger *slog.Logger) *Rebuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rebuilder{meta: meta, logger: logger}
}

// RebuildText fills target with every stored document. Returns the
// number of documents indexed. A context deadline surfaces as
// KindTimeout with the target only partially filled; the caller
// discards it.
func (r *Rebuilder) RebuildText(ctx context.Context, target store.TextIndex) (int, error) {
	const op = "index.RebuildText"
	return r.walk(ctx, op, func(doc *store.Document) error {
		return target.Add(ctx, doc)
	})
}

// RebuildVectors re-embeds every stored document into target.
func (r *Rebuilder) RebuildVectors(ctx context.Context, target store.EmbeddingCache) (int, error) {
	const op = "index.RebuildVectors"
	return r.walk(ctx, op, func(doc *store.Document) error {
		return target.Add(ctx, doc.ID, doc.Content)
	})
}

// walk pages through the metadata store and applies fn per document,
// checking the deadline between documents.
func (r *Rebuilder) walk(ctx context.Context, op string, fn func(*store.Document) error) (int, error) {
	started := time.Now()
	count := 0

	for offset := 0; ; offset += rebuildPageSize {
		docs, err := r.meta.List(ctx, rebuildPageSize, offset)
		if err != nil {
			return count, err
		}
		if len(docs) == 0 {
			break
		}

		for _, doc := range docs {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return count, errors.Wrap(errors.KindTimeout, op, ctxErr)
			}
			if err := fn(doc); err != nil {
				return count, err
			}
			count++
		}
	}

	r.logger.Info("rebuild_completed",
		slog.String("op", op),
		slog.Int("documents", count),
		slog.Duration("took", time.Since(started)))
	return count, nil
}
