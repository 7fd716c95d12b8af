package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexCmd() *cobra.Command {
	var (
		force          bool
		ignorePatterns []string
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Run a full index of the codebase (Workflow A)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, root, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			c, err := a.manager.GetOrCreate(root, ignorePatterns)
			if err != nil {
				return err
			}
			res := c.Index(ctx, force)
			if res.Err != nil {
				return res.Err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %s: %d added, %d modified, %d removed\n",
				root, res.Counts.Added, res.Counts.Modified, res.Counts.Removed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "drop and rebuild the collection even if already indexed")
	cmd.Flags().StringSliceVar(&ignorePatterns, "ignore", nil, "additional gitignore-style patterns (repeatable)")

	return cmd
}
