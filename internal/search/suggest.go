package search

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/docmind/docmind/internal/store"
)

// DefaultSuggestionCacheSize bounds the prefix -> suggestions cache.
const DefaultSuggestionCacheSize = 256

// Suggester serves query completions from two sources: past searches
// (frequency-ranked) and document titles. An LRU cache keyed by prefix
// absorbs repeated keystroke lookups; recording a new search purges it.
type Suggester struct {
	history store.HistoryStore
	meta    store.MetadataStore
	cache   *lru.Cache[string, []string]
}

// NewSuggester builds a suggester over the given stores.
func NewSuggester(history store.HistoryStore, meta store.MetadataStore) *Suggester {
	cache, _ := lru.New[string, []string](DefaultSuggestionCacheSize)
	return &Suggester{history: history, meta: meta, cache: cache}
}

// Suggest returns up to limit completions for prefix. History matches
// rank before title matches; duplicates collapse case-insensitively.
func (s *Suggester) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return []string{}, nil
	}

	key := strings.ToLower(prefix)
	if cached, ok := s.cache.Get(key); ok {
		if len(cached) > limit {
			return cached[:limit], nil
		}
		return cached, nil
	}

	fromHistory, err := s.history.SuggestQueries(ctx, prefix, limit)
	if err != nil {
		return nil, err
	}

	suggestions := make([]string, 0, limit)
	seen := make(map[string]struct{}, limit)
	add := func(candidate string) {
		lowered := strings.ToLower(candidate)
		if _, dup := seen[lowered]; dup {
			return
		}
		seen[lowered] = struct{}{}
		suggestions = append(suggestions, candidate)
	}

	for _, q := range fromHistory {
		add(q)
	}

	if len(suggestions) < limit {
		docs, err := s.meta.SearchTitles(ctx, prefix, limit)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			if strings.HasPrefix(strings.ToLower(doc.Title), key) {
				add(doc.Title)
			}
		}
	}

	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}

	s.cache.Add(key, suggestions)
	return suggestions, nil
}

// Invalidate purges the cache. Called after a search is recorded so
// fresh history shows up in completions.
func (s *Suggester) Invalidate() {
	s.cache.Purge()
}
