package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docmind/docmind/internal/store"
)

func TestLinearFusion_WeightedCombination(t *testing.T) {
	f := NewLinearFusion(Weights{Lexical: 0.5, Semantic: 0.5})

	lexical := []*store.TextHit{
		{DocID: "both", Score: 4.0, MatchedTerms: []string{"report"}},
		{DocID: "lex-only", Score: 2.0, MatchedTerms: []string{"report"}},
	}
	semantic := []*store.SimilarHit{
		{DocID: "both", Similarity: 0.8},
		{DocID: "sem-only", Similarity: 0.6},
	}

	fused := f.Fuse(lexical, semantic)
	require.Len(t, fused, 3)

	byID := map[string]*fusedResult{}
	for _, r := range fused {
		byID[r.DocID] = r
	}

	// "both": lexical normalized to 1.0 (list max), semantic 0.8.
	assert.InDelta(t, 0.5*1.0+0.5*0.8, byID["both"].Score, 1e-9)
	// "lex-only": lexical 2.0/4.0 = 0.5, no semantic contribution.
	assert.InDelta(t, 0.5*0.5, byID["lex-only"].Score, 1e-9)
	// "sem-only": no lexical contribution.
	assert.InDelta(t, 0.5*0.6, byID["sem-only"].Score, 1e-9)

	assert.Equal(t, "both", fused[0].DocID)
}

func TestLinearFusion_WeightsShiftRanking(t *testing.T) {
	lexical := []*store.TextHit{{DocID: "lex", Score: 5.0}}
	semantic := []*store.SimilarHit{{DocID: "sem", Similarity: 0.9}}

	lexHeavy := NewLinearFusion(Weights{Lexical: 0.9, Semantic: 0.1}).Fuse(lexical, semantic)
	assert.Equal(t, "lex", lexHeavy[0].DocID)

	semHeavy := NewLinearFusion(Weights{Lexical: 0.1, Semantic: 0.9}).Fuse(lexical, semantic)
	assert.Equal(t, "sem", semHeavy[0].DocID)
}

func TestLinearFusion_TieBreaksByRawLexicalThenID(t *testing.T) {
	f := NewLinearFusion(Weights{Lexical: 0, Semantic: 1})

	// With zero lexical weight the fused scores tie; the raw BM25
	// score must still order them.
	lexical := []*store.TextHit{
		{DocID: "weak", Score: 1.0},
		{DocID: "strong", Score: 3.0},
	}
	semantic := []*store.SimilarHit{
		{DocID: "weak", Similarity: 0.5},
		{DocID: "strong", Similarity: 0.5},
	}

	fused := f.Fuse(lexical, semantic)
	require.Len(t, fused, 2)
	assert.Equal(t, "strong", fused[0].DocID)

	// Full tie falls back to DocID ascending.
	fused = f.Fuse(nil, []*store.SimilarHit{
		{DocID: "bbb", Similarity: 0.5},
		{DocID: "aaa", Similarity: 0.5},
	})
	require.Len(t, fused, 2)
	assert.Equal(t, "aaa", fused[0].DocID)
}

func TestLinearFusion_EmptyInputs(t *testing.T) {
	f := NewLinearFusion(DefaultWeights())

	assert.Empty(t, f.Fuse(nil, nil))

	fused := f.Fuse([]*store.TextHit{{DocID: "only", Score: 2.0}}, nil)
	require.Len(t, fused, 1)
	assert.InDelta(t, 0.5, fused[0].Score, 1e-9)
}

func TestWeights_Validate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())
	assert.NoError(t, Weights{Lexical: 0.3, Semantic: 0.7}.Validate())
	assert.NoError(t, Weights{Lexical: 1, Semantic: 0}.Validate())

	assert.Error(t, Weights{Lexical: 0.5, Semantic: 0.6}.Validate())
	assert.Error(t, Weights{Lexical: -0.1, Semantic: 1.1}.Validate())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeHybrid, m)

	m, err = ParseMode("full_text")
	require.NoError(t, err)
	assert.Equal(t, ModeFullText, m)

	_, err = ParseMode("fuzzy")
	assert.Error(t, err)
}
