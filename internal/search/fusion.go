package search

import (
	"sort"

	"github.com/docmind/docmind/internal/store"
)

// fusedResult is one candidate after linear fusion, before documents
// are loaded and final tie-breaking applies.
type fusedResult struct {
	DocID         string
	Score         float64  // weighted combination, 0-1
	LexicalScore  float64  // max-normalized BM25 score
	RawLexical    float64  // original BM25 score, kept for tie-breaking
	SemanticScore float64  // cosine similarity
	MatchedTerms  []string // from the BM25 leg
}

// LinearFusion merges the two result lists by weighted linear
// combination of normalized scores:
//
//	score(d) = w_lexical * norm_bm25(d) + w_semantic * similarity(d)
//
// BM25 scores are unbounded, so they are normalized by the list
// maximum. Cosine similarities are already in [0, 1] and enter as-is.
// A document missing from one list contributes zero for that leg.
type LinearFusion struct {
	Weights Weights
}

// NewLinearFusion creates a fusion stage with the given weights.
func NewLinearFusion(w Weights) *LinearFusion {
	return &LinearFusion{Weights: w}
}

// Fuse combines the two lists. Results are sorted by fused score
// descending, then raw BM25 score descending, then DocID ascending.
// The caller applies the final IndexedAt tie-break once documents are
// loaded.
func (f *LinearFusion) Fuse(lexical []*store.TextHit, semantic []*store.SimilarHit) []*fusedResult {
	if len(lexical) == 0 && len(semantic) == 0 {
		return []*fusedResult{}
	}

	var maxLexical float64
	for _, hit := range lexical {
		if hit.Score > maxLexical {
			maxLexical = hit.Score
		}
	}

	merged := make(map[string]*fusedResult, len(lexical)+len(semantic))
	get := func(id string) *fusedResult {
		if r, ok := merged[id]; ok {
			return r
		}
		r := &fusedResult{DocID: id}
		merged[id] = r
		return r
	}

	for _, hit := range lexical {
		r := get(hit.DocID)
		r.RawLexical = hit.Score
		if maxLexical > 0 {
			r.LexicalScore = hit.Score / maxLexical
		}
		r.MatchedTerms = hit.MatchedTerms
	}

	for _, hit := range semantic {
		r := get(hit.DocID)
		r.SemanticScore = hit.Similarity
	}

	results := make([]*fusedResult, 0, len(merged))
	for _, r := range merged {
		r.Score = f.Weights.Lexical*r.LexicalScore + f.Weights.Semantic*r.SemanticScore
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.RawLexical != b.RawLexical {
			return a.RawLexical > b.RawLexical
		}
		return a.DocID < b.DocID
	})

	return results
}
