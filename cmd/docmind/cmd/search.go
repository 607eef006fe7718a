package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/docmind/docmind/internal/output"
	"github.com/docmind/docmind/internal/search"
	"github.com/docmind/docmind/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit          int
	offset         int
	mode           string
	fileTypes      []string
	modifiedAfter  string
	modifiedBefore string
	format         string
	lexicalWeight  float64
	semanticWeight float64
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed documents",
		Long: `Search the indexed documents.

Hybrid mode (the default) combines BM25 keyword matching with embedding
similarity using weighted linear fusion. Full-text and semantic modes
use a single leg.

Examples:
  docmind search "quarterly revenue"
  docmind search "database migrations" --mode semantic --limit 5
  docmind search "meeting notes" --type markdown --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", search.DefaultLimit, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "hybrid", "Search mode: full_text, semantic, hybrid")
	cmd.Flags().StringSliceVarP(&opts.fileTypes, "type", "t", nil, "Filter by file type (repeatable): text, markdown, pdf, word, excel")
	cmd.Flags().StringVar(&opts.modifiedAfter, "modified-after", "", "Only documents modified after this date (RFC3339 or 2006-01-02)")
	cmd.Flags().StringVar(&opts.modifiedBefore, "modified-before", "", "Only documents modified before this date (RFC3339 or 2006-01-02)")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "Skip this many ranked results before returning")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().Float64Var(&opts.lexicalWeight, "lexical-weight", 0, "Override the lexical fusion weight (pair with --semantic-weight)")
	cmd.Flags().Float64Var(&opts.semanticWeight, "semantic-weight", 0, "Override the semantic fusion weight (pair with --lexical-weight)")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	mode, err := search.ParseMode(opts.mode)
	if err != nil {
		return err
	}

	searchOpts := search.Options{
		Mode:   mode,
		Limit:  opts.limit,
		Offset: opts.offset,
	}

	if opts.lexicalWeight != 0 || opts.semanticWeight != 0 {
		searchOpts.Weights = &search.Weights{
			Lexical:  opts.lexicalWeight,
			Semantic: opts.semanticWeight,
		}
	}

	for _, raw := range opts.fileTypes {
		ft := store.FileType(strings.ToLower(strings.TrimSpace(raw)))
		if !ft.Valid() {
			return fmt.Errorf("unknown file type %q", raw)
		}
		searchOpts.Filters.FileTypes = append(searchOpts.Filters.FileTypes, ft)
	}

	if opts.modifiedAfter != "" {
		after, err := parseDate(opts.modifiedAfter)
		if err != nil {
			return err
		}
		searchOpts.Filters.ModifiedAfter = after
	}

	if opts.modifiedBefore != "" {
		before, err := parseDate(opts.modifiedBefore)
		if err != nil {
			return err
		}
		searchOpts.Filters.ModifiedBefore = before
	}

	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	resp, err := eng.Search(ctx, query, searchOpts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if opts.format == "json" {
		return formatJSON(cmd, resp)
	}
	return formatText(cmd, query, resp)
}

// parseDate accepts RFC3339 or a bare date.
func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse date %q, want RFC3339 or 2006-01-02", s)
}

// formatText outputs results in human-readable format.
func formatText(cmd *cobra.Command, query string, resp *search.Response) error {
	out := output.New(cmd.OutOrStdout())

	if resp.Degraded {
		out.Warning("Semantic search unavailable, results are keyword-only")
	}

	if len(resp.Results) == 0 {
		out.Statusf("", "No results found for %q", query)
		return nil
	}

	out.Statusf("🔍", "Found %d results for %q (%s, %s):",
		len(resp.Results), query, resp.Mode, resp.Took.Round(time.Millisecond))
	out.Newline()

	for i, r := range resp.Results {
		out.Statusf("", "%d. %s (score: %.3f)", i+1, r.Document.FilePath, r.Score)
		if r.Snippet != "" {
			out.Status("", "   "+r.Snippet)
		}
		out.Newline()
	}
	return nil
}

// formatJSON outputs results as JSON for scripting.
func formatJSON(cmd *cobra.Command, resp *search.Response) error {
	type jsonResult struct {
		DocID         string   `json:"doc_id"`
		FilePath      string   `json:"file_path"`
		Title         string   `json:"title"`
		Score         float64  `json:"score"`
		LexicalScore  float64  `json:"lexical_score"`
		SemanticScore float64  `json:"semantic_score"`
		Snippet       string   `json:"snippet,omitempty"`
		MatchedTerms  []string `json:"matched_terms,omitempty"`
	}
	type jsonResponse struct {
		Mode     string       `json:"mode"`
		Degraded bool         `json:"degraded"`
		TookMS   int64        `json:"took_ms"`
		Results  []jsonResult `json:"results"`
	}

	payload := jsonResponse{
		Mode:     string(resp.Mode),
		Degraded: resp.Degraded,
		TookMS:   resp.Took.Milliseconds(),
		Results:  make([]jsonResult, 0, len(resp.Results)),
	}
	for _, r := range resp.Results {
		payload.Results = append(payload.Results, jsonResult{
			DocID:         r.Document.ID,
			FilePath:      r.Document.FilePath,
			Title:         r.Document.Title,
			Score:         r.Score,
			LexicalScore:  r.LexicalScore,
			SemanticScore: r.SemanticScore,
			Snippet:       r.Snippet,
			MatchedTerms:  r.MatchedTerms,
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func newSuggestCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "suggest <prefix>",
		Short: "Suggest queries for a prefix",
		Long: `Suggest query completions from past searches and document titles.

Example:
  docmind suggest "quart"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			suggestions, err := eng.Suggest(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			for _, s := range suggestions {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of suggestions")
	return cmd
}
