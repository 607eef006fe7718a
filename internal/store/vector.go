package store

import (
	"context"
	"log/slog"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/docmind/docmind/internal/errors"
)

// Embedder turns text into a fixed-dimension vector. Implementations
// live in internal/embed; the cache only needs this surface.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	ModelName() string
}

// HNSWEmbeddingCache implements EmbeddingCache on a coder/hnsw graph.
//
// Vectors are normalized on insert so cosine distance is exact. The
// graph serves candidate lookup; stored vectors re-score candidates so
// results do not depend on graph build order. Deletion is lazy: the
// mapping entries go away and the graph node is orphaned, because
// removing the last graph node corrupts the graph in coder/hnsw.
type HNSWEmbeddingCache struct {
	mu       sync.RWMutex
	graph    *hnsw.Graph[uint64]
	embedder Embedder
	path     string
	logger   *slog.Logger

	idMap   map[string]uint64    // doc ID -> graph key
	keyMap  map[uint64]string    // graph key -> doc ID
	vectors map[string][]float32 // doc ID -> normalized vector
	nextKey uint64

	degraded   bool
	staleCount int
	closed     bool
}

var _ EmbeddingCache = (*HNSWEmbeddingCache)(nil)

// NewHNSWEmbeddingCache opens the cache at path, loading persisted
// vectors when present. An empty path keeps the cache memory-only.
//
// A corrupt cache file or a model version mismatch never fails the
// open: the cache starts empty and reports Degraded or StaleCount, and
// the engine re-embeds from the metadata store.
func NewHNSWEmbeddingCache(path string, embedder Embedder, logger *slog.Logger) (*HNSWEmbeddingCache, error) {
	if embedder == nil {
		return nil, errors.E(errors.KindInternal, "cache.Open", "embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &HNSWEmbeddingCache{
		graph:    newVectorGraph(),
		embedder: embedder,
		path:     path,
		logger:   logger,
		idMap:    make(map[string]uint64),
		keyMap:   make(map[uint64]string),
		vectors:  make(map[string][]float32),
	}

	if path == "" {
		return c, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return c, nil
	}

	// Any load failure, corrupt content or an unreadable file, starts
	// the cache empty and degraded; a rebuild repopulates it.
	modelVersion, dims, records, err := readCacheFile(path)
	if err != nil {
		msg := "embedding_cache_unreadable"
		if errors.IsKind(err, errors.KindCacheCorrupted) {
			msg = "embedding_cache_corrupted"
		}
		logger.Warn(msg,
			slog.String("path", path),
			slog.String("error", err.Error()))
		c.degraded = true
		return c, nil
	}

	if modelVersion != embedder.ModelName() || dims != embedder.Dimensions() {
		logger.Warn("embedding_cache_stale",
			slog.String("path", path),
			slog.String("cached_model", modelVersion),
			slog.String("current_model", embedder.ModelName()))
		c.staleCount = len(records)
		return c, nil
	}

	for _, rec := range records {
		c.insertLocked(rec.DocID, rec.Vector)
	}
	return c, nil
}

func newVectorGraph() *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25
	return graph
}

// insertLocked adds a normalized vector under the write lock, lazily
// deleting any existing entry for the same ID.
func (c *HNSWEmbeddingCache) insertLocked(docID string, vec []float32) {
	if existingKey, exists := c.idMap[docID]; exists {
		delete(c.keyMap, existingKey)
		delete(c.idMap, docID)
	}

	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	normalizeVectorInPlace(normalized)

	key := c.nextKey
	c.nextKey++

	c.graph.Add(hnsw.MakeNode(key, normalized))
	c.idMap[docID] = key
	c.keyMap[key] = docID
	c.vectors[docID] = normalized
}

// Add embeds text and upserts the vector. Re-adding an ID overwrites
// in place.
func (c *HNSWEmbeddingCache) Add(ctx context.Context, docID, text string) error {
	const op = "cache.Add"
	if docID == "" {
		return errors.E(errors.KindConstraintViolation, op, "document id is required")
	}

	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return errors.Wrap(errors.KindUnavailable, op, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.E(errors.KindUnavailable, op, "cache is closed")
	}

	c.insertLocked(docID, vec)
	return nil
}

// Remove drops a vector. Missing IDs are a no-op success.
func (c *HNSWEmbeddingCache) Remove(docID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.E(errors.KindUnavailable, "cache.Remove", "cache is closed")
	}

	if key, exists := c.idMap[docID]; exists {
		delete(c.keyMap, key)
		delete(c.idMap, docID)
		delete(c.vectors, docID)
	}
	return nil
}

// Contains reports whether the ID has a vector.
func (c *HNSWEmbeddingCache) Contains(docID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.idMap[docID]
	return exists
}

// Size returns the number of cached vectors.
func (c *HNSWEmbeddingCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.idMap)
}

// AllIDs returns every cached document ID, sorted ascending.
func (c *HNSWEmbeddingCache) AllIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.idMap))
	for id := range c.idMap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SearchSimilar embeds the query and returns the most similar cached
// documents, ranked by exact cosine similarity with ties broken by
// DocID ascending.
func (c *HNSWEmbeddingCache) SearchSimilar(ctx context.Context, queryText string, limit int) ([]*SimilarHit, error) {
	const op = "cache.SearchSimilar"
	if limit <= 0 {
		limit = 10
	}

	query, err := c.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, errors.Wrap(errors.KindUnavailable, op, err)
	}
	normalizeVectorInPlace(query)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, errors.E(errors.KindUnavailable, op, "cache is closed")
	}
	if len(c.idMap) == 0 {
		return []*SimilarHit{}, nil
	}

	// Over-fetch to cover orphaned graph nodes from lazy deletion.
	orphans := c.graph.Len() - len(c.idMap)
	nodes := c.graph.Search(query, limit+orphans)

	hits := make([]*SimilarHit, 0, len(nodes))
	for _, node := range nodes {
		docID, live := c.keyMap[node.Key]
		if !live {
			continue
		}
		// Re-score from the stored vector for exact similarity.
		sim := cosineSimilarity(query, c.vectors[docID])
		hits = append(hits, &SimilarHit{DocID: docID, Similarity: sim})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].DocID < hits[j].DocID
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Save persists the cache atomically and clears the degraded and stale
// markers, which only describe the previously persisted state.
func (c *HNSWEmbeddingCache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.E(errors.KindUnavailable, "cache.Save", "cache is closed")
	}
	if c.path == "" {
		return nil
	}

	ids := make([]string, 0, len(c.vectors))
	for id := range c.vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([]cacheRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, cacheRecord{DocID: id, Vector: c.vectors[id]})
	}

	err := writeCacheFile(c.path, c.embedder.ModelName(), c.embedder.Dimensions(), records)
	if err != nil {
		return err
	}

	c.degraded = false
	c.staleCount = 0
	return nil
}

// Degraded reports whether the persisted cache failed to load.
func (c *HNSWEmbeddingCache) Degraded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.degraded
}

// StaleCount reports vectors dropped at load due to a model mismatch.
func (c *HNSWEmbeddingCache) StaleCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.staleCount
}

// Close releases resources. Idempotent. The caller decides whether to
// Save first; Close never writes.
func (c *HNSWEmbeddingCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return nil
}

// normalizeVectorInPlace scales the vector to unit length. Zero
// vectors stay zero.
func normalizeVectorInPlace(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

// cosineSimilarity computes the dot product of two unit vectors,
// clipped to [0, 1].
func cosineSimilarity(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	if dot < 0 {
		return 0
	}
	if dot > 1 {
		return 1
	}
	return dot
}
