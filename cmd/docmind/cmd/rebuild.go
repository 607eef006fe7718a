package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docmind/docmind/internal/output"
)

func newRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "rebuild [text|embeddings|all]",
		Short:     "Rebuild derived indexes from the metadata store",
		ValidArgs: []string{"text", "embeddings", "all"},
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		Long: `Rebuild the full-text index, the embedding cache, or both from the
metadata store. The rebuild happens into a fresh index which replaces
the live one only on success, so a failure leaves search untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "all"
			if len(args) == 1 {
				target = args[0]
			}

			eng, _, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			out := output.New(cmd.OutOrStdout())

			if target == "text" || target == "all" {
				n, err := eng.RebuildTextIndex(cmd.Context())
				if err != nil {
					return fmt.Errorf("rebuild text index: %w", err)
				}
				out.Successf("Text index rebuilt (%d documents)", n)
			}
			if target == "embeddings" || target == "all" {
				n, err := eng.RebuildEmbeddings(cmd.Context())
				if err != nil {
					return fmt.Errorf("rebuild embeddings: %w", err)
				}
				out.Successf("Embeddings rebuilt (%d documents)", n)
			}
			return nil
		},
	}
}

func newResyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resync",
		Short: "Reconcile indexes with the metadata store",
		Long: `Compare the full-text index and embedding cache against the metadata
store, remove orphaned entries, and re-add missing ones. The metadata
store is the source of truth.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, _, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			check, repair, err := eng.Resync(cmd.Context())
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if check.Consistent() {
				out.Successf("Index consistent (%d documents checked)", check.Checked)
				return nil
			}

			out.Statusf("", "Found %d inconsistencies across %d documents",
				len(check.Inconsistencies), check.Checked)
			out.Successf("Repaired: %d orphans removed, %d entries re-added, %d failed",
				repair.OrphansRemoved, repair.MissingAdded, repair.Failed)
			if repair.Failed > 0 {
				return fmt.Errorf("%d repairs failed, see logs", repair.Failed)
			}
			return nil
		},
	}
}
