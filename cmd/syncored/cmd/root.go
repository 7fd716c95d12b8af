package cmd

import (
	"github.com/spf13/cobra"
)

// Execute runs the syncored root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "syncored",
		Short: "Synchronization engine for a semantic code-search index",
		Long: `syncored keeps a hybrid dense+sparse code-search index in sync with a
codebase on disk: full scans, incremental rescans, and real-time
filesystem watching all funnel through a single-writer controller per
codebase.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.path, "path", "", "codebase root (default: current directory)")
	cmd.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "directory containing .syncore.yaml (default: codebase root)")
	cmd.PersistentFlags().BoolVar(&flags.embeddedVS, "embedded", false, "use the in-process vector store instead of a remote one")
	cmd.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newHealthCmd())

	return cmd
}
