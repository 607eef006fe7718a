package store

import (
	"context"
	"time"
)

// RecordSearch appends one executed search to the history table.
// Failures here must not fail the search itself; callers log and move on.
func (s *SQLiteStore) RecordSearch(ctx context.Context, entry HistoryEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_history (query, mode, result_count, duration_ms, executed_at)
		VALUES (?, ?, ?, ?, ?)`,
		entry.Query, entry.Mode, entry.ResultCount,
		entry.Duration.Milliseconds(), entry.ExecutedAt.UnixNano())
	return classify("store.RecordSearch", err)
}

// RecentSearches returns the most recent entries, newest first.
func (s *SQLiteStore) RecentSearches(ctx context.Context, limit int) ([]HistoryEntry, error) {
	const op = "store.RecentSearches"
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT query, mode, result_count, duration_ms, executed_at
		FROM search_history
		ORDER BY executed_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		var durationMS, executedAt int64
		if err := rows.Scan(&entry.Query, &entry.Mode, &entry.ResultCount,
			&durationMS, &executedAt); err != nil {
			return nil, classify(op, err)
		}
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		entry.ExecutedAt = time.Unix(0, executedAt)
		entries = append(entries, entry)
	}
	return entries, classify(op, rows.Err())
}

// PopularQueries returns the most frequent queries since the cutoff,
// ordered by count descending, ties broken by query ascending.
func (s *SQLiteStore) PopularQueries(ctx context.Context, since time.Time, limit int) ([]QueryCount, error) {
	const op = "store.PopularQueries"
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT query, COUNT(*) AS cnt
		FROM search_history
		WHERE executed_at >= ?
		GROUP BY query
		ORDER BY cnt DESC, query ASC
		LIMIT ?`, since.UnixNano(), limit)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var counts []QueryCount
	for rows.Next() {
		var qc QueryCount
		if err := rows.Scan(&qc.Query, &qc.Count); err != nil {
			return nil, classify(op, err)
		}
		counts = append(counts, qc)
	}
	return counts, classify(op, rows.Err())
}

// SuggestQueries returns distinct past queries starting with prefix,
// most frequent first. An empty prefix returns overall popular queries.
func (s *SQLiteStore) SuggestQueries(ctx context.Context, prefix string, limit int) ([]string, error) {
	const op = "store.SuggestQueries"
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT query, COUNT(*) AS cnt
		FROM search_history
		WHERE query LIKE ? ESCAPE '\'
		GROUP BY query
		ORDER BY cnt DESC, query ASC
		LIMIT ?`, escapeLike(prefix)+"%", limit)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var queries []string
	for rows.Next() {
		var q string
		var cnt int
		if err := rows.Scan(&q, &cnt); err != nil {
			return nil, classify(op, err)
		}
		queries = append(queries, q)
	}
	return queries, classify(op, rows.Err())
}

// ClearHistoryBefore deletes entries executed before the cutoff and
// returns how many were removed.
func (s *SQLiteStore) ClearHistoryBefore(ctx context.Context, cutoff time.Time) (int, error) {
	const op = "store.ClearHistoryBefore"
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM search_history WHERE executed_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, classify(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(op, err)
	}
	return int(n), nil
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
