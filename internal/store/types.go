// Package store provides the persistence layer for DocMind: document
// metadata and search history (SQLite), the full-text index (Bleve or
// SQLite FTS5), and the embedding cache (HNSW with a checksummed file
// format).
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"time"
)

// FileType is the closed set of document formats the engine accepts.
// Parsing raw files into Documents happens outside the engine; the type
// only participates in validation and filtering.
type FileType string

const (
	FileTypeText     FileType = "text"
	FileTypeMarkdown FileType = "markdown"
	FileTypePDF      FileType = "pdf"
	FileTypeWord     FileType = "word"
	FileTypeExcel    FileType = "excel"
)

// Valid reports whether the file type is a member of the closed enum.
func (ft FileType) Valid() bool {
	switch ft {
	case FileTypeText, FileTypeMarkdown, FileTypePDF, FileTypeWord, FileTypeExcel:
		return true
	default:
		return false
	}
}

// FileTypeFromPath derives a FileType from a file extension.
// Unknown extensions map to FileTypeText.
func FileTypeFromPath(path string) FileType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return FileTypePDF
	case ".doc", ".docx":
		return FileTypeWord
	case ".xls", ".xlsx":
		return FileTypeExcel
	case ".md", ".markdown":
		return FileTypeMarkdown
	default:
		return FileTypeText
	}
}

// Document is a parsed document record. The metadata store owns it;
// the text index and embedding cache refer to it by ID only.
type Document struct {
	ID          string    // Stable unique identifier
	FilePath    string    // Absolute path of the source file
	Title       string    // Display title (file stem when empty at save)
	Content     string    // Extracted plain text
	FileType    FileType  // Closed enum, checked on save
	Size        int64     // Source file size in bytes, >= 0
	CreatedAt   time.Time // Source file creation time
	ModifiedAt  time.Time // Source file modification time
	IndexedAt   time.Time // When the engine indexed it
	ContentHash string    // SHA-256 of Content, filled on save when empty
}

// HashContent returns the content-addressed digest used to detect no-op
// re-indexing of an unchanged document.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// MetadataStore is the durable source of truth for Document records.
// Implementations provide ACID semantics: concurrent writers serialize
// internally and surface KindLocked on contention rather than observing
// partial state.
type MetadataStore interface {
	// Save upserts a document by ID, replacing all fields.
	// Rejects invalid file types and negative sizes with
	// KindConstraintViolation.
	Save(ctx context.Context, doc *Document) error

	// BulkSave writes all documents in a single transaction.
	// Any invalid record aborts and rolls back the whole batch.
	// Returns the number of documents written.
	BulkSave(ctx context.Context, docs []*Document) (int, error)

	// Load returns the document or nil when absent.
	Load(ctx context.Context, id string) (*Document, error)

	// LoadByPath returns the document with the given file path, or nil.
	LoadByPath(ctx context.Context, path string) (*Document, error)

	// List returns documents ordered by ID for deterministic paging.
	List(ctx context.Context, limit, offset int) ([]*Document, error)

	// ListByType returns all documents of one file type, ordered by ID.
	ListByType(ctx context.Context, ft FileType) ([]*Document, error)

	// ListModifiedAfter returns documents modified after t, ordered by ID.
	ListModifiedAfter(ctx context.Context, t time.Time) ([]*Document, error)

	// SearchTitles returns documents whose title contains the pattern.
	SearchTitles(ctx context.Context, pattern string, limit int) ([]*Document, error)

	// Delete removes a document. Missing IDs are a no-op success.
	Delete(ctx context.Context, id string) error

	// DeleteByPath removes the document with the given file path.
	DeleteByPath(ctx context.Context, path string) error

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// AllIDs returns every stored document ID, sorted ascending.
	// Used by the re-sync and rebuild routines.
	AllIDs(ctx context.Context) ([]string, error)

	// Backup writes a point-in-time copy of the store to path.
	Backup(ctx context.Context, path string) error

	// Restore replaces live state with the copy at path, never merging.
	Restore(ctx context.Context, path string) error

	// Lifecycle
	Close() error
}

// HistoryEntry is one recorded search.
type HistoryEntry struct {
	Query       string
	Mode        string // search mode identifier (full_text, semantic, hybrid)
	ResultCount int
	Duration    time.Duration
	ExecutedAt  time.Time
}

// QueryCount pairs a query with its recorded frequency.
type QueryCount struct {
	Query string
	Count int
}

// HistoryStore records executed searches and serves suggestion data.
type HistoryStore interface {
	RecordSearch(ctx context.Context, entry HistoryEntry) error
	RecentSearches(ctx context.Context, limit int) ([]HistoryEntry, error)
	PopularQueries(ctx context.Context, since time.Time, limit int) ([]QueryCount, error)
	SuggestQueries(ctx context.Context, prefix string, limit int) ([]string, error)
	ClearHistoryBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// TextHit is a single full-text search result.
type TextHit struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// TextIndex maintains an inverted index over (id, title, content).
//
// Writes serialize through an internal writer lock; reads may proceed
// concurrently against the last-committed state. Corruption detected on
// open surfaces KindIndexCorrupted to the caller; the index never
// truncates itself, and the engine rebuilds it from the metadata store.
type TextIndex interface {
	// Add indexes a document. Re-adding an ID replaces the old entry.
	Add(ctx context.Context, doc *Document) error

	// Update replaces a document's postings (remove + add).
	Update(ctx context.Context, doc *Document) error

	// Remove deletes a document. Missing IDs are a no-op success.
	Remove(ctx context.Context, id string) error

	// Search returns hits ranked by BM25-class score. Empty or
	// whitespace-only queries return an empty slice, never an error.
	Search(ctx context.Context, query string, limit int) ([]*TextHit, error)

	// Optimize merges index segments. Results must not change.
	Optimize(ctx context.Context) error

	// DocumentCount returns the number of indexed documents.
	DocumentCount() (int, error)

	// Exists reports whether the ID is indexed.
	Exists(id string) (bool, error)

	// AllIDs returns every indexed document ID (for re-sync).
	AllIDs() ([]string, error)

	// Close releases resources. Idempotent.
	Close() error
}

// TextIndexConfig configures tokenization shared by both index backends.
type TextIndexConfig struct {
	// StopWords are filtered during tokenization.
	StopWords []string

	// MinTokenLength is the minimum token length to index (default: 2).
	MinTokenLength int

	// TitleBoost multiplies title-field match scores (default: 2.0).
	TitleBoost float64
}

// DefaultTextIndexConfig returns the default text index configuration.
func DefaultTextIndexConfig() TextIndexConfig {
	return TextIndexConfig{
		StopWords:      DefaultStopWords,
		MinTokenLength: 2,
		TitleBoost:     2.0,
	}
}

// DefaultStopWords contains common English words excluded from the index.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for",
	"if", "in", "into", "is", "it", "no", "not", "of", "on", "or",
	"such", "that", "the", "their", "then", "there", "these", "they",
	"this", "to", "was", "will", "with",
}

// SimilarHit is a single semantic search result. Similarity is cosine
// similarity clipped to [0, 1].
type SimilarHit struct {
	DocID      string
	Similarity float64
}

// EmbeddingCache maintains a persistent doc_id -> vector map and serves
// nearest-neighbor lookups. Vectors from different embedding model
// versions never mix in one similarity computation.
type EmbeddingCache interface {
	// Add embeds text via the injected provider and upserts the vector.
	// Re-adding an ID overwrites in place.
	Add(ctx context.Context, docID, text string) error

	// Remove drops a vector. Missing IDs are a no-op success.
	Remove(docID string) error

	// Contains reports whether the ID has a vector.
	Contains(docID string) bool

	// Size returns the number of cached vectors.
	Size() int

	// AllIDs returns every cached document ID (for re-sync).
	AllIDs() []string

	// SearchSimilar embeds the query and returns the most similar
	// documents, ties broken by DocID ascending.
	SearchSimilar(ctx context.Context, queryText string, limit int) ([]*SimilarHit, error)

	// Save persists the cache atomically (write temp, rename).
	Save() error

	// Degraded reports whether the persisted cache failed to load and
	// the cache started empty. Cleared by a successful rebuild + Save.
	Degraded() bool

	// StaleCount reports vectors dropped at load due to a model version
	// mismatch.
	StaleCount() int

	// Close releases resources. Idempotent.
	Close() error
}
