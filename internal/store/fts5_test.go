package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFTSIndex(t *testing.T) *SQLiteTextIndex {
	t.Helper()
	idx, err := NewSQLiteTextIndex(filepath.Join(t.TempDir(), "text.db"), DefaultTextIndexConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestSQLiteTextIndex_AddAndSearch(t *testing.T) {
	idx := newFTSIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, &Document{
		ID: "doc-1", Title: "Revenue Report", Content: "quarterly revenue grew",
	}))
	require.NoError(t, idx.Add(ctx, &Document{
		ID: "doc-2", Title: "Meeting Notes", Content: "notes about hiring",
	}))

	hits, err := idx.Search(ctx, "revenue", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-1", hits[0].DocID)
	assert.Greater(t, hits[0].Score, 0.0, "bm25 scores are negated to higher-is-better")
	assert.Equal(t, []string{"revenue"}, hits[0].MatchedTerms)
}

func TestSQLiteTextIndex_TitleMatchOutranksContentMatch(t *testing.T) {
	idx := newFTSIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, &Document{
		ID: "in-content", Title: "Meeting Notes", Content: "discussion of budget planning",
	}))
	require.NoError(t, idx.Add(ctx, &Document{
		ID: "in-title", Title: "Budget Overview", Content: "spending summary for the year",
	}))

	hits, err := idx.Search(ctx, "budget", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "in-title", hits[0].DocID)
}

func TestSQLiteTextIndex_EmptyAndStopWordQueries(t *testing.T) {
	idx := newFTSIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, &Document{ID: "doc-1", Title: "t", Content: "real content"}))

	hits, err := idx.Search(ctx, "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	// Queries reduced to nothing by stop word filtering match nothing.
	hits, err = idx.Search(ctx, "the and of", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSQLiteTextIndex_QueryOperatorsMatchLiterally(t *testing.T) {
	idx := newFTSIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, &Document{ID: "doc-1", Title: "t", Content: "alpha beta"}))

	// FTS5 syntax in user input must not be interpreted or error out.
	hits, err := idx.Search(ctx, `alpha AND NOT ("beta*`, 10)
	require.NoError(t, err)
	assert.NotNil(t, hits)
}

func TestSQLiteTextIndex_UpdateReplacesPostings(t *testing.T) {
	idx := newFTSIndex(t)
	ctx := context.Background()

	doc := &Document{ID: "doc-1", Title: "Old", Content: "alpha topic"}
	require.NoError(t, idx.Add(ctx, doc))

	doc.Content = "omega topic"
	require.NoError(t, idx.Update(ctx, doc))

	hits, err := idx.Search(ctx, "alpha", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = idx.Search(ctx, "omega", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-1", hits[0].DocID)
}

func TestSQLiteTextIndex_RemoveExistsAllIDs(t *testing.T) {
	idx := newFTSIndex(t)
	ctx := context.Background()

	for _, id := range []string{"b", "a", "c"} {
		require.NoError(t, idx.Add(ctx, &Document{ID: id, Title: id, Content: "content " + id}))
	}

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	require.NoError(t, idx.Remove(ctx, "b"))
	require.NoError(t, idx.Remove(ctx, "b"), "remove of missing id is a no-op")

	exists, err := idx.Exists("b")
	require.NoError(t, err)
	assert.False(t, exists)

	count, err := idx.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSQLiteTextIndex_OptimizePreservesResults(t *testing.T) {
	idx := newFTSIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, &Document{ID: "doc-1", Title: "t", Content: "searchable content"}))

	before, err := idx.Search(ctx, "searchable", 10)
	require.NoError(t, err)

	require.NoError(t, idx.Optimize(ctx))

	after, err := idx.Search(ctx, "searchable", 10)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSQLiteTextIndex_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "text.db")
	ctx := context.Background()

	idx, err := NewSQLiteTextIndex(path, DefaultTextIndexConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, &Document{ID: "doc-1", Title: "t", Content: "durable content"}))
	require.NoError(t, idx.Close())

	idx2, err := NewSQLiteTextIndex(path, DefaultTextIndexConfig(), nil)
	require.NoError(t, err)
	defer idx2.Close()

	hits, err := idx2.Search(ctx, "durable", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-1", hits[0].DocID)
}
