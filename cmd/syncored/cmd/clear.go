package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop a codebase's collection and hash snapshot",
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
			res := c.Clear()
			if res.Err != nil {
				return res.Err
			}
			a.gate.Invalidate(root)
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", root)
			return nil
		},
	}
	return cmd
}
