// Package cmd provides the CLI commands for DocMind.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/docmind/docmind/internal/config"
	"github.com/docmind/docmind/internal/embed"
	"github.com/docmind/docmind/internal/engine"
	"github.com/docmind/docmind/internal/logging"
	"github.com/docmind/docmind/internal/search"
	"github.com/docmind/docmind/internal/store"
	"github.com/docmind/docmind/pkg/version"
)

// rootOptions are flags shared by every subcommand.
type rootOptions struct {
	dataDir string
	debug   bool
}

var (
	rootOpts       rootOptions
	loggingCleanup func()
)

// NewRootCmd creates the root command for the docmind CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docmind",
		Short: "Local, offline document search engine",
		Long: `DocMind indexes parsed documents into a local hybrid search engine:
BM25 keyword matching fused with embedding similarity, entirely offline.

Ingest documents, then search them:

  docmind ingest ./notes
  docmind search "quarterly revenue"`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("docmind version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&rootOpts.dataDir, "data-dir", "", "Override the data directory")
	cmd.PersistentFlags().BoolVar(&rootOpts.debug, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
	}

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newSuggestCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newBackupCmd())
	cmd.AddCommand(newRestoreCmd())
	cmd.AddCommand(newRebuildCmd())
	cmd.AddCommand(newResyncCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupLogging routes structured logs to a file so stdout stays clean
// for command output.
func setupLogging(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logCfg := logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.File,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      5,
		WriteToStderr: false,
	}
	if logCfg.FilePath == "" {
		logCfg.FilePath = logging.DefaultLogPath()
	}
	if rootOpts.debug {
		logCfg.Level = "debug"
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

// loadConfig loads the effective configuration, applying the --data-dir
// override last.
func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, err
	}
	if rootOpts.dataDir != "" {
		abs, err := filepath.Abs(rootOpts.dataDir)
		if err != nil {
			return nil, fmt.Errorf("resolve data dir: %w", err)
		}
		cfg.DataDir = abs
	}
	return cfg, nil
}

// openEngine builds a fully wired engine from the configuration.
// The caller closes both the engine and the returned config is already
// validated by config.Load.
func openEngine() (*engine.Engine, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	textCfg := store.DefaultTextIndexConfig()
	textCfg.TitleBoost = cfg.Search.TitleBoost
	textCfg.MinTokenLength = cfg.Search.MinTokenLength

	engCfg := engine.Config{
		DataDir:     cfg.DataDir,
		TextBackend: cfg.Search.TextBackend,
		TextConfig:  textCfg,
		Search: search.Config{
			Weights: search.Weights{
				Lexical:  cfg.Search.LexicalWeight,
				Semantic: cfg.Search.SemanticWeight,
			},
			SnippetLength: cfg.Search.SnippetLength,
		},
		IngestWorkers: cfg.Performance.IngestWorkers,
	}

	embedder := embed.NewCachedEmbedder(embed.NewStaticEmbedder(), cfg.Embeddings.QueryCacheSize)

	eng, err := engine.Open(engCfg, embedder, slog.Default())
	if err != nil {
		return nil, nil, err
	}
	return eng, cfg, nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
