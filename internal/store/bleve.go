package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"

	"github.com/docmind/docmind/internal/errors"
)

const (
	// TextTokenizerName is the name of the registered document tokenizer.
	TextTokenizerName = "docmind_tokenizer"

	// TextAnalyzerName is the name of the registered document analyzer.
	TextAnalyzerName = "docmind_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(TextTokenizerName, textTokenizerConstructor)
}

// BleveTextIndex is the Bleve-backed TextIndex. Scorch segments merge in
// the background, so Optimize is a no-op here.
type BleveTextIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	config TextIndexConfig
	closed bool
}

var _ TextIndex = (*BleveTextIndex)(nil)

// bleveDocument is the indexed shape of a Document.
type bleveDocument struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// validateBleveIntegrity checks the index structure before opening.
// index_meta.json must exist, be non-empty, and parse as JSON.
func validateBleveIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // index doesn't exist, will be created
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}

	return nil
}

// isBleveCorruptionError reports whether an open error means the index
// files are damaged rather than merely absent.
func isBleveCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewBleveTextIndex opens (or creates) a Bleve index at path. An empty
// path creates an in-memory index for testing.
//
// Corruption detected here surfaces as KindIndexCorrupted; the index is
// never cleared in place. The engine rebuilds it from the metadata store.
func NewBleveTextIndex(path string, cfg TextIndexConfig, logger *slog.Logger) (*BleveTextIndex, error) {
	const op = "index.Open"
	if logger == nil {
		logger = slog.Default()
	}

	indexMapping, err := createTextIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}

		if validErr := validateBleveIntegrity(path); validErr != nil {
			logger.Warn("text_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			return nil, errors.Wrap(errors.KindIndexCorrupted, op, validErr)
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if isBleveCorruptionError(err) {
			logger.Warn("text_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil, errors.Wrap(errors.KindIndexCorrupted, op, err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	if cfg.TitleBoost <= 0 {
		cfg.TitleBoost = 2.0
	}

	return &BleveTextIndex{index: idx, path: path, config: cfg}, nil
}

// createTextIndexMapping maps title and content through the custom
// analyzer; all other Document fields stay out of the index.
func createTextIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(TextAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": TextTokenizerName,
	})
	if err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}
	indexMapping.DefaultAnalyzer = TextAnalyzerName

	fieldMapping := bleve.NewTextFieldMapping()
	fieldMapping.Analyzer = TextAnalyzerName

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("title", fieldMapping)
	docMapping.AddFieldMappingsAt("content", fieldMapping)
	indexMapping.DefaultMapping = docMapping

	return indexMapping, nil
}

// Add indexes a document. Bleve's Index is an upsert, so re-adding an
// ID replaces the old postings.
func (b *BleveTextIndex) Add(ctx context.Context, doc *Document) error {
	const op = "index.Add"
	if doc == nil || doc.ID == "" {
		return errors.E(errors.KindConstraintViolation, op, "document id is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.E(errors.KindUnavailable, op, "index is closed")
	}

	err := b.index.Index(doc.ID, bleveDocument{Title: doc.Title, Content: doc.Content})
	if err != nil {
		return errors.Wrap(errors.KindInternal, op, err)
	}
	return nil
}

// Update replaces a document's postings.
func (b *BleveTextIndex) Update(ctx context.Context, doc *Document) error {
	return b.Add(ctx, doc)
}

// Remove deletes a document. Missing IDs are a no-op success.
func (b *BleveTextIndex) Remove(ctx context.Context, id string) error {
	const op = "index.Remove"
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.E(errors.KindUnavailable, op, "index is closed")
	}

	if err := b.index.Delete(id); err != nil {
		return errors.Wrap(errors.KindInternal, op, err)
	}
	return nil
}

// Search returns hits ranked by BM25 score. Title matches are boosted
// over content matches; matched terms come from hit locations.
func (b *BleveTextIndex) Search(ctx context.Context, queryStr string, limit int) ([]*TextHit, error) {
	const op = "index.Search"
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errors.E(errors.KindUnavailable, op, "index is closed")
	}

	if strings.TrimSpace(queryStr) == "" {
		return []*TextHit{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	contentQuery := bleve.NewMatchQuery(queryStr)
	contentQuery.SetField("content")

	titleQuery := bleve.NewMatchQuery(queryStr)
	titleQuery.SetField("title")
	titleQuery.SetBoost(b.config.TitleBoost)

	searchRequest := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(contentQuery, titleQuery))
	searchRequest.Size = limit
	searchRequest.IncludeLocations = true // for matched terms

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, op, err)
	}

	hits := make([]*TextHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, &TextHit{
			DocID:        hit.ID,
			Score:        hit.Score,
			MatchedTerms: extractMatchedTerms(hit),
		})
	}
	return hits, nil
}

// Optimize is a no-op: scorch merges segments in the background.
func (b *BleveTextIndex) Optimize(ctx context.Context) error {
	return nil
}

// DocumentCount returns the number of indexed documents.
func (b *BleveTextIndex) DocumentCount() (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, errors.E(errors.KindUnavailable, "index.DocumentCount", "index is closed")
	}

	count, err := b.index.DocCount()
	if err != nil {
		return 0, errors.Wrap(errors.KindInternal, "index.DocumentCount", err)
	}
	return int(count), nil
}

// Exists reports whether the ID is indexed.
func (b *BleveTextIndex) Exists(id string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false, errors.E(errors.KindUnavailable, "index.Exists", "index is closed")
	}

	doc, err := b.index.Document(id)
	if err != nil {
		return false, errors.Wrap(errors.KindInternal, "index.Exists", err)
	}
	return doc != nil, nil
}

// AllIDs returns every indexed document ID. Used for re-sync.
func (b *BleveTextIndex) AllIDs() ([]string, error) {
	const op = "index.AllIDs"
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errors.E(errors.KindUnavailable, op, "index is closed")
	}

	docCount, err := b.index.DocCount()
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, op, err)
	}
	if docCount == 0 {
		return []string{}, nil
	}

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(docCount)
	req.Fields = []string{} // only IDs

	result, err := b.index.Search(req)
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, op, err)
	}

	ids := make([]string, len(result.Hits))
	for i, hit := range result.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Close closes the index. Idempotent.
func (b *BleveTextIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// extractMatchedTerms collects the query terms that matched either
// field, sorted so repeated searches return identical slices.
func extractMatchedTerms(hit *search.DocumentMatch) []string {
	terms := make(map[string]struct{})
	for _, locations := range hit.Locations {
		for term := range locations {
			terms[term] = struct{}{}
		}
	}

	result := make([]string, 0, len(terms))
	for term := range terms {
		result = append(result, term)
	}
	sort.Strings(result)
	return result
}

// textTokenizerConstructor builds the registered Bleve tokenizer. The
// registry constructs by name, so it carries the default configuration;
// stop words and minimum length match query-side tokenization.
func textTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &bleveTextTokenizer{tok: NewTokenizer(DefaultTextIndexConfig())}, nil
}

type bleveTextTokenizer struct {
	tok *Tokenizer
}

// Tokenize implements analysis.Tokenizer on top of the shared tokenizer.
func (t *bleveTextTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := t.tok.Tokenize(text)

	result := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0

	for _, token := range tokens {
		start := strings.Index(strings.ToLower(text[offset:]), token)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)

		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}

	return result
}
