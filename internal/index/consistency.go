// Package index provides cross-store maintenance: consistency checking,
// repair, and full rebuilds from the metadata store.
package index

import (
	"context"
	"log/slog"
	"time"

	"github.com/docmind/docmind/internal/store"
)

// InconsistencyType categorizes detected issues. The metadata store is
// the source of truth; everything else is derived.
type InconsistencyType int

const (
	// InconsistencyOrphanText is a text index entry without metadata.
	InconsistencyOrphanText InconsistencyType = iota
	// InconsistencyOrphanVector is a cached vector without metadata.
	InconsistencyOrphanVector
	// InconsistencyMissingText is a document absent from the text index.
	InconsistencyMissingText
	// InconsistencyMissingVector is a document without a cached vector.
	InconsistencyMissingVector
)

func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanText:
		return "orphan_text"
	case InconsistencyOrphanVector:
		return "orphan_vector"
	case InconsistencyMissingText:
		return "missing_text"
	case InconsistencyMissingVector:
		return "missing_vector"
	default:
		return "unknown"
	}
}

// Inconsistency is one detected cross-store issue.
type Inconsistency struct {
	Type  InconsistencyType
	DocID string
}

// CheckResult is the outcome of a consistency check.
type CheckResult struct {
	// Checked is the number of documents verified.
	Checked int
	// Inconsistencies contains all detected issues.
	Inconsistencies []Inconsistency
	// Duration is how long the check took.
	Duration time.Duration
}

// Consistent reports whether no issues were found.
func (r *CheckResult) Consistent() bool {
	return len(r.Inconsistencies) == 0
}

// RepairResult summarizes a repair pass.
type RepairResult struct {
	OrphansRemoved int
	MissingAdded   int
	Failed         int
}

// ConsistencyChecker validates the derived stores against the metadata
// store and can repair drift in both directions: orphans are removed,
// missing entries are re-added from the stored documents.
type ConsistencyChecker struct {
	meta    store.MetadataStore
	text    store.TextIndex
	vectors store.EmbeddingCache
	logger  *slog.Logger
}

// NewConsistencyChecker creates a checker over the given stores.
func NewConsistencyChecker(meta store.MetadataStore, text store.TextIndex,
	vectors store.EmbeddingCache, logger *slog.Logger) *ConsistencyChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsistencyChecker{meta: meta, text: text, vectors: vectors, logger: logger}
}

// Check scans all stores. O(n) in the total number of entries.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()
	var issues []Inconsistency

	metaIDs, err := c.meta.AllIDs(ctx)
	if err != nil {
		return nil, err
	}
	metaSet := make(map[string]bool, len(metaIDs))
	for _, id := range metaIDs {
		metaSet[id] = true
	}

	textIDs, err := c.text.AllIDs()
	if err != nil {
		return nil, err
	}
	textSet := make(map[string]bool, len(textIDs))
	for _, id := range textIDs {
		textSet[id] = true
		if !metaSet[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanText, DocID: id})
		}
	}

	vectorSet := make(map[string]bool)
	for _, id := range c.vectors.AllIDs() {
		vectorSet[id] = true
		if !metaSet[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanVector, DocID: id})
		}
	}

	for _, id := range metaIDs {
		if !textSet[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyMissingText, DocID: id})
		}
		if !vectorSet[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyMissingVector, DocID: id})
		}
	}

	return &CheckResult{
		Checked:         len(metaIDs),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// Repair fixes detected issues: orphans are removed from the derived
// stores, missing entries are re-added from the metadata store. Each
// fix is best-effort; failures are counted and logged, not fatal.
func (c *ConsistencyChecker) Repair(ctx context.Context, issues []Inconsistency) (*RepairResult, error) {
	result := &RepairResult{}

	for _, issue := range issues {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var err error
		switch issue.Type {
		case InconsistencyOrphanText:
			if err = c.text.Remove(ctx, issue.DocID); err == nil {
				result.OrphansRemoved++
			}
		case InconsistencyOrphanVector:
			if err = c.vectors.Remove(issue.DocID); err == nil {
				result.OrphansRemoved++
			}
		case InconsistencyMissingText:
			err = c.readdText(ctx, issue.DocID)
			if err == nil {
				result.MissingAdded++
			}
		case InconsistencyMissingVector:
			err = c.readdVector(ctx, issue.DocID)
			if err == nil {
				result.MissingAdded++
			}
		}

		if err != nil {
			result.Failed++
			c.logger.Warn("consistency_repair_failed",
				slog.String("type", issue.Type.String()),
				slog.String("doc_id", issue.DocID),
				slog.String("error", err.Error()))
		}
	}

	return result, nil
}

func (c *ConsistencyChecker) readdText(ctx context.Context, id string) error {
	doc, err := c.meta.Load(ctx, id)
	if err != nil || doc == nil {
		return err
	}
	return c.text.Add(ctx, doc)
}

func (c *ConsistencyChecker) readdVector(ctx context.Context, id string) error {
	doc, err := c.meta.Load(ctx, id)
	if err != nil || doc == nil {
		return err
	}
	return c.vectors.Add(ctx, doc.ID, doc.Content)
}

// QuickCheck only compares entry counts across stores. Cheap enough
// for startup; a false positive is impossible, a false negative is
// (counts can match while IDs differ), so Check remains the authority.
func (c *ConsistencyChecker) QuickCheck(ctx context.Context) (bool, error) {
	metaCount, err := c.meta.Count(ctx)
	if err != nil {
		return false, err
	}
	textCount, err := c.text.DocumentCount()
	if err != nil {
		return false, err
	}
	vectorCount := c.vectors.Size()

	consistent := metaCount == textCount && metaCount == vectorCount
	if !consistent {
		c.logger.Debug("store_counts_mismatch",
			slog.Int("metadata", metaCount),
			slog.Int("text", textCount),
			slog.Int("vectors", vectorCount))
	}
	return consistent, nil
}
