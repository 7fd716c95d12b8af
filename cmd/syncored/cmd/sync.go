package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run an incremental reindex now (Workflow B)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, root, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			c, ok := a.manager.Get(root)
			if !ok {
				return fmt.Errorf("codebase not indexed: %s", root)
			}
			res := c.SyncNow()
			if res.Err != nil {
				return res.Err
			}
			a.gate.Invalidate(root)
			fmt.Fprintf(cmd.OutOrStdout(), "synced %s: %d added, %d modified, %d removed\n",
				root, res.Counts.Added, res.Counts.Modified, res.Counts.Removed)
			return nil
		},
	}
	return cmd
}
