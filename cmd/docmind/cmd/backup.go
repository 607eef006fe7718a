package cmd

import (
	"github.com/spf13/cobra"

	"github.com/docmind/docmind/internal/output"
)

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup <dest-dir>",
		Short: "Back up the index to a directory",
		Long: `Create a consistent backup of the whole index in dest-dir:
the metadata database, the full-text index, the embedding cache, and a
manifest describing them.

Only one backup or restore can run against a data directory at a time;
a concurrent attempt fails immediately instead of queueing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			if err := eng.Backup(cmd.Context(), args[0]); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Backup written to %s", args[0])
			return nil
		},
	}
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-dir>",
		Short: "Restore the index from a backup",
		Long: `Replace the entire index with the backup in backup-dir.
Current state is fully replaced, never merged. The directory must
contain a manifest written by 'docmind backup'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			if err := eng.Restore(cmd.Context(), args[0]); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Index restored from %s", args[0])
			return nil
		},
	}
}
