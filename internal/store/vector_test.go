package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder returns canned vectors keyed by input text.
type stubEmbedder struct {
	model   string
	dims    int
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	if vec, ok := s.vectors[text]; ok {
		return vec, nil
	}
	// Unknown text maps to a fixed direction so tests stay deterministic.
	vec := make([]float32, s.dims)
	vec[0] = 1
	return vec, nil
}

func (s *stubEmbedder) Dimensions() int   { return s.dims }
func (s *stubEmbedder) ModelName() string { return s.model }

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{
		model: "stub-v1",
		dims:  3,
		vectors: map[string][]float32{
			"north":     {0, 1, 0},
			"northeast": {1, 1, 0},
			"east":      {1, 0, 0},
			"up":        {0, 0, 1},
		},
	}
}

func newMemCache(t *testing.T) *HNSWEmbeddingCache {
	t.Helper()
	c, err := NewHNSWEmbeddingCache("", newStubEmbedder(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestHNSWEmbeddingCache_AddContainsRemove(t *testing.T) {
	c := newMemCache(t)
	ctx := context.Background()

	require.NoError(t, c.Add(ctx, "doc-1", "north"))
	assert.True(t, c.Contains("doc-1"))
	assert.Equal(t, 1, c.Size())

	require.NoError(t, c.Remove("doc-1"))
	require.NoError(t, c.Remove("doc-1"), "remove of missing id is a no-op")
	assert.False(t, c.Contains("doc-1"))
	assert.Equal(t, 0, c.Size())
}

func TestHNSWEmbeddingCache_SearchSimilarRanksByCosine(t *testing.T) {
	c := newMemCache(t)
	ctx := context.Background()

	require.NoError(t, c.Add(ctx, "doc-north", "north"))
	require.NoError(t, c.Add(ctx, "doc-northeast", "northeast"))
	require.NoError(t, c.Add(ctx, "doc-up", "up"))

	hits, err := c.SearchSimilar(ctx, "north", 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "doc-north", hits[0].DocID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.Equal(t, "doc-northeast", hits[1].DocID)
	assert.InDelta(t, 0.7071, hits[1].Similarity, 1e-3)
	assert.Equal(t, "doc-up", hits[2].DocID)
	assert.InDelta(t, 0.0, hits[2].Similarity, 1e-6)
}

func TestHNSWEmbeddingCache_TiesBreakByDocID(t *testing.T) {
	c := newMemCache(t)
	ctx := context.Background()

	// Identical vectors, so similarity ties exactly.
	require.NoError(t, c.Add(ctx, "doc-b", "east"))
	require.NoError(t, c.Add(ctx, "doc-a", "east"))

	hits, err := c.SearchSimilar(ctx, "east", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "doc-a", hits[0].DocID)
	assert.Equal(t, "doc-b", hits[1].DocID)
}

func TestHNSWEmbeddingCache_UpsertOverwrites(t *testing.T) {
	c := newMemCache(t)
	ctx := context.Background()

	require.NoError(t, c.Add(ctx, "doc-1", "north"))
	require.NoError(t, c.Add(ctx, "doc-1", "east"))
	assert.Equal(t, 1, c.Size())

	hits, err := c.SearchSimilar(ctx, "east", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
}

func TestHNSWEmbeddingCache_RemovedVectorsStayOutOfResults(t *testing.T) {
	c := newMemCache(t)
	ctx := context.Background()

	require.NoError(t, c.Add(ctx, "doc-north", "north"))
	require.NoError(t, c.Add(ctx, "doc-east", "east"))
	require.NoError(t, c.Remove("doc-north"))

	hits, err := c.SearchSimilar(ctx, "north", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-east", hits[0].DocID)
}

func TestHNSWEmbeddingCache_SaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.cache")
	ctx := context.Background()

	c, err := NewHNSWEmbeddingCache(path, newStubEmbedder(), nil)
	require.NoError(t, err)
	require.NoError(t, c.Add(ctx, "doc-north", "north"))
	require.NoError(t, c.Add(ctx, "doc-east", "east"))
	require.NoError(t, c.Save())
	require.NoError(t, c.Close())

	c2, err := NewHNSWEmbeddingCache(path, newStubEmbedder(), nil)
	require.NoError(t, err)
	defer c2.Close()

	assert.Equal(t, 2, c2.Size())
	assert.False(t, c2.Degraded())
	assert.Equal(t, []string{"doc-east", "doc-north"}, c2.AllIDs())

	hits, err := c2.SearchSimilar(ctx, "north", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-north", hits[0].DocID)
}

func TestHNSWEmbeddingCache_CorruptFileStartsEmptyDegraded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.cache")
	require.NoError(t, os.WriteFile(path, []byte("not a cache file at all"), 0o644))

	c, err := NewHNSWEmbeddingCache(path, newStubEmbedder(), nil)
	require.NoError(t, err, "corrupt cache must not fail the open")
	defer c.Close()

	assert.True(t, c.Degraded())
	assert.Equal(t, 0, c.Size())

	// A successful save clears the degraded marker.
	require.NoError(t, c.Add(context.Background(), "doc-1", "north"))
	require.NoError(t, c.Save())
	assert.False(t, c.Degraded())
}

func TestHNSWEmbeddingCache_ModelMismatchDropsVectors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.cache")
	ctx := context.Background()

	c, err := NewHNSWEmbeddingCache(path, newStubEmbedder(), nil)
	require.NoError(t, err)
	require.NoError(t, c.Add(ctx, "doc-1", "north"))
	require.NoError(t, c.Add(ctx, "doc-2", "east"))
	require.NoError(t, c.Save())
	require.NoError(t, c.Close())

	newModel := newStubEmbedder()
	newModel.model = "stub-v2"

	c2, err := NewHNSWEmbeddingCache(path, newModel, nil)
	require.NoError(t, err)
	defer c2.Close()

	assert.Equal(t, 0, c2.Size(), "stale vectors never mix with the new model")
	assert.Equal(t, 2, c2.StaleCount())
	assert.False(t, c2.Degraded())
}

func TestHNSWEmbeddingCache_EmbedderFailureSurfaces(t *testing.T) {
	emb := newStubEmbedder()
	emb.err = fmt.Errorf("model not loaded")

	c, err := NewHNSWEmbeddingCache("", emb, nil)
	require.NoError(t, err)
	defer c.Close()

	addErr := c.Add(context.Background(), "doc-1", "north")
	require.Error(t, addErr)

	_, searchErr := c.SearchSimilar(context.Background(), "north", 5)
	require.Error(t, searchErr)
}

func TestHNSWEmbeddingCache_UnreadableFileStartsEmptyDegraded(t *testing.T) {
	// A path that exists but cannot be read as a regular file.
	path := filepath.Join(t.TempDir(), "embeddings.cache")
	require.NoError(t, os.Mkdir(path, 0o755))

	c, err := NewHNSWEmbeddingCache(path, newStubEmbedder(), nil)
	require.NoError(t, err, "unreadable cache must not fail the open")
	defer c.Close()

	assert.True(t, c.Degraded())
	assert.Equal(t, 0, c.Size())
}
