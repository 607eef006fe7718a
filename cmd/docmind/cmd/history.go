package cmd

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/docmind/docmind/internal/output"
)

func newHistoryCmd() *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent searches",
		Long:  `List the most recent searches, newest first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, _, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			entries, err := eng.History(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			out := output.New(cmd.OutOrStdout())
			if len(entries) == 0 {
				out.Status("", "No searches recorded yet.")
				return nil
			}
			for _, entry := range entries {
				out.Statusf("", "%s  %-9s %3d results  %s",
					entry.ExecutedAt.Format(time.DateTime), entry.Mode,
					entry.ResultCount, entry.Query)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <doc-id>",
		Short: "Remove a document from the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			if err := eng.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Deleted %s", args[0])
			return nil
		},
	}
}
