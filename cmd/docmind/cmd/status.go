package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/docmind/docmind/internal/output"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and sizes",
		Long: `Display the state of the index:
  - document, text index, and vector counts
  - embedding cache health (degraded, stale vectors)
  - cross-store consistency
  - embedder availability`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, cfg, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			status, err := eng.Health(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}

			out := output.New(cmd.OutOrStdout())
			out.Statusf("📁", "Index at %s", cfg.DataDir)
			out.Field("Documents", status.Documents)
			out.Field("Text indexed", status.TextIndexed)
			out.Field("Vectors", status.Vectors)
			out.Field("Consistent", status.Consistent)
			out.Field("Cache degraded", status.CacheDegraded)
			out.Field("Stale vectors", status.StaleVectors)
			out.Field("Embedder ready", status.EmbedAvailable)

			if !status.Consistent {
				out.Warning("Index is inconsistent, run 'docmind resync'")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
