// Package search provides hybrid document search: BM25 full-text and
// cosine-similarity semantic results merged by weighted linear fusion.
package search

import (
	"fmt"
	"time"

	"github.com/docmind/docmind/internal/store"
)

// Mode selects how a query is executed. The set is closed; anything
// else fails validation.
type Mode string

const (
	// ModeFullText runs BM25 keyword search only.
	ModeFullText Mode = "full_text"

	// ModeSemantic runs vector similarity search only.
	ModeSemantic Mode = "semantic"

	// ModeHybrid runs both and fuses the results (default).
	ModeHybrid Mode = "hybrid"
)

// Valid reports whether the mode is a member of the closed enum.
func (m Mode) Valid() bool {
	switch m {
	case ModeFullText, ModeSemantic, ModeHybrid:
		return true
	default:
		return false
	}
}

// ParseMode converts a string to a Mode. Empty means hybrid.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeHybrid, nil
	}
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown search mode: %s (valid options: full_text, semantic, hybrid)", s)
	}
	return m, nil
}

// Weights configures the relative importance of the two search legs in
// hybrid fusion. They must each lie in [0, 1] and sum to 1.
type Weights struct {
	Lexical  float64 // weight for BM25 keyword scores
	Semantic float64 // weight for vector similarity scores
}

// DefaultWeights returns the balanced default.
func DefaultWeights() Weights {
	return Weights{Lexical: 0.5, Semantic: 0.5}
}

// weightSumTolerance absorbs float arithmetic on user-supplied weights.
const weightSumTolerance = 1e-6

// Validate checks the weight constraints.
func (w Weights) Validate() error {
	if w.Lexical < 0 || w.Lexical > 1 || w.Semantic < 0 || w.Semantic > 1 {
		return fmt.Errorf("weights must be within [0, 1], got lexical=%v semantic=%v", w.Lexical, w.Semantic)
	}
	sum := w.Lexical + w.Semantic
	if sum < 1-weightSumTolerance || sum > 1+weightSumTolerance {
		return fmt.Errorf("weights must sum to 1, got %v", sum)
	}
	return nil
}

// Filters restrict results after ranking. Zero values mean no filter.
type Filters struct {
	FileTypes      []store.FileType
	ModifiedAfter  time.Time
	ModifiedBefore time.Time
	MinSize        int64
	MaxSize        int64
}

// Matches reports whether doc passes every set filter.
func (f Filters) Matches(doc *store.Document) bool {
	if len(f.FileTypes) > 0 {
		found := false
		for _, ft := range f.FileTypes {
			if doc.FileType == ft {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.ModifiedAfter.IsZero() && !doc.ModifiedAt.After(f.ModifiedAfter) {
		return false
	}
	if !f.ModifiedBefore.IsZero() && !doc.ModifiedAt.Before(f.ModifiedBefore) {
		return false
	}
	if f.MinSize > 0 && doc.Size < f.MinSize {
		return false
	}
	if f.MaxSize > 0 && doc.Size > f.MaxSize {
		return false
	}
	return true
}

// Options configures a single search call.
type Options struct {
	// Mode selects the execution path. Empty means hybrid.
	Mode Mode

	// Limit is the maximum number of results (default: 10, max: 100).
	Limit int

	// Offset skips that many ranked results before Limit applies.
	Offset int

	// Weights overrides the engine's fusion weights for this call.
	Weights *Weights

	// Filters restrict results by document metadata.
	Filters Filters
}

const (
	// DefaultLimit is the result count when Options.Limit is zero.
	DefaultLimit = 10

	// MaxLimit caps Options.Limit.
	MaxLimit = 100
)

// Result is one ranked document.
type Result struct {
	// Document is the full record from the metadata store.
	Document *store.Document

	// Score is the fused score: the weighted sum of the lexical and
	// semantic contributions. Single-leg modes still apply the weight,
	// so ordering is comparable across modes.
	Score float64

	// LexicalScore is the normalized BM25 score (0 if absent).
	LexicalScore float64

	// SemanticScore is the cosine similarity (0 if absent).
	SemanticScore float64

	// MatchedTerms are the query terms BM25 matched, for highlighting.
	MatchedTerms []string

	// Snippet is a content excerpt around the first match.
	Snippet string
}

// Response is a completed search.
type Response struct {
	Results []*Result
	Mode    Mode

	// Degraded is set when a semantic or hybrid query fell back to
	// full-text because the semantic leg was unavailable.
	Degraded bool

	Took time.Duration
}
