// Package embed provides embedding providers for semantic search.
//
// The engine never talks to a model directly; it goes through the
// Embedder interface so providers can be swapped or wrapped (caching,
// instrumentation) without touching the search path.
package embed

import "context"

const (
	// StaticDimensions is the vector size of the hash-based embedder.
	StaticDimensions = 256

	// StaticModelName identifies static embeddings in the cache file.
	// Bump the version when the hashing scheme changes so persisted
	// vectors are detected as stale instead of silently mixing.
	StaticModelName = "static-fnv-v1"
)

// Embedder turns text into fixed-dimension vectors.
//
// Embeddings from one Embedder must be deterministic: the same text
// always yields the same vector for a given ModelName.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier, including a version.
	ModelName() string

	// Available reports whether the provider can serve requests now.
	Available(ctx context.Context) bool

	// Close releases provider resources. Idempotent.
	Close() error
}
