package embed

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps StaticEmbedder and counts inner calls.
type countingEmbedder struct {
	*StaticEmbedder
	embedCalls int64
	batchCalls int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt64(&c.embedCalls, 1)
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt64(&c.batchCalls, 1)
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_SecondEmbedHitsCache(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	first, err := c.Embed(ctx, "repeated query")
	require.NoError(t, err)
	second, err := c.Embed(ctx, "repeated query")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), atomic.LoadInt64(&inner.embedCalls))
	assert.Equal(t, 1, c.Len())
}

func TestCachedEmbedder_BatchOnlyEmbedsMisses(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := c.Embed(ctx, "cached already")
	require.NoError(t, err)

	batch, err := c.EmbedBatch(ctx, []string{"cached already", "new text"})
	require.NoError(t, err)
	require.Len(t, batch, 2)

	// Only "new text" should have reached the inner batch call.
	assert.Equal(t, int64(1), atomic.LoadInt64(&inner.batchCalls))
	assert.Equal(t, 2, c.Len())
}

func TestCachedEmbedder_EvictsAtCapacity(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	c := NewCachedEmbedder(inner, 2)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		_, err := c.Embed(ctx, text)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())

	// "one" was evicted, so it costs another inner call.
	_, err := c.Embed(ctx, "one")
	require.NoError(t, err)
	assert.Equal(t, int64(4), atomic.LoadInt64(&inner.embedCalls))
}

func TestCachedEmbedder_DelegatesMetadata(t *testing.T) {
	c := NewCachedEmbedder(NewStaticEmbedder(), 10)

	assert.Equal(t, StaticDimensions, c.Dimensions())
	assert.Equal(t, StaticModelName, c.ModelName())
	assert.True(t, c.Available(context.Background()))
}
