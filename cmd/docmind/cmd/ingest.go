package cmd

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/docmind/docmind/internal/output"
	"github.com/docmind/docmind/internal/store"
)

// ingestExtensions maps text file extensions to document types. Only
// plain-text formats are read directly; pre-parsed binary formats
// arrive through --ndjson.
var ingestExtensions = map[string]store.FileType{
	".txt":      store.FileTypeText,
	".text":     store.FileTypeText,
	".md":       store.FileTypeMarkdown,
	".markdown": store.FileTypeMarkdown,
}

func newIngestCmd() *cobra.Command {
	var ndjsonPath string

	cmd := &cobra.Command{
		Use:   "ingest [path]",
		Short: "Ingest documents into the index",
		Long: `Ingest documents into the search index.

With a path argument, walks the directory and ingests every .txt and
.md file. With --ndjson, reads pre-parsed documents (one JSON object
per line with file_path, title, content, file_type) so content
extracted from PDF, Word, or Excel files can be indexed too.

Examples:
  docmind ingest ./notes
  docmind ingest --ndjson parsed-docs.ndjson`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ndjsonPath == "" && len(args) == 0 {
				return fmt.Errorf("either a path argument or --ndjson is required")
			}

			var docs []*store.Document
			var err error
			if ndjsonPath != "" {
				docs, err = readNDJSONDocuments(ndjsonPath)
			} else {
				docs, err = collectFileDocuments(args[0])
			}
			if err != nil {
				return err
			}

			return runIngest(cmd.Context(), cmd, docs)
		},
	}

	cmd.Flags().StringVar(&ndjsonPath, "ndjson", "", "Read pre-parsed documents from an NDJSON file")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, docs []*store.Document) error {
	out := output.New(cmd.OutOrStdout())

	if len(docs) == 0 {
		out.Status("", "Nothing to ingest.")
		return nil
	}

	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	started := time.Now()
	report, err := eng.IngestBatch(ctx, docs)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	out.Successf("Ingested %d documents in %s (%d unchanged, %d failed)",
		report.Succeeded, time.Since(started).Round(time.Millisecond), report.Skipped, len(report.Failures))
	for _, failure := range report.Failures {
		out.Errorf("%s: %v", failure.DocID, failure.Err)
	}

	if len(report.Failures) > 0 {
		return fmt.Errorf("%d of %d documents failed", len(report.Failures), len(docs))
	}
	return nil
}

// collectFileDocuments walks root and builds documents from supported
// text files. Hidden directories are skipped.
func collectFileDocuments(root string) ([]*store.Document, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var docs []*store.Document
	walkErr := filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != abs {
				return filepath.SkipDir
			}
			return nil
		}

		fileType, ok := ingestExtensions[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return nil
		}

		doc, err := documentFromFile(path, fileType)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk %s: %w", root, walkErr)
	}
	return docs, nil
}

// documentFromFile reads one file into a document. The ID derives from
// the absolute path so re-ingesting the same file updates in place.
func documentFromFile(path string, fileType store.FileType) (*store.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	return &store.Document{
		ID:         documentID(path),
		FilePath:   path,
		Title:      strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Content:    string(content),
		FileType:   fileType,
		Size:       info.Size(),
		CreatedAt:  info.ModTime(),
		ModifiedAt: info.ModTime(),
	}, nil
}

// documentID returns a stable ID for a file path.
func documentID(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])[:16]
}

// ndjsonDocument is the wire form of a pre-parsed document.
type ndjsonDocument struct {
	ID         string    `json:"id"`
	FilePath   string    `json:"file_path"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	FileType   string    `json:"file_type"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// readNDJSONDocuments reads one document per line. Blank lines are
// skipped; a malformed line aborts with its line number.
func readNDJSONDocuments(path string) ([]*store.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var docs []*store.Document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var parsed ndjsonDocument
		if err := json.Unmarshal([]byte(text), &parsed); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}

		doc := &store.Document{
			ID:         parsed.ID,
			FilePath:   parsed.FilePath,
			Title:      parsed.Title,
			Content:    parsed.Content,
			FileType:   store.FileType(parsed.FileType),
			Size:       parsed.Size,
			CreatedAt:  parsed.CreatedAt,
			ModifiedAt: parsed.ModifiedAt,
		}
		if doc.ID == "" {
			doc.ID = documentID(parsed.FilePath)
		}
		if doc.Size == 0 {
			doc.Size = int64(len(parsed.Content))
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return docs, nil
}
