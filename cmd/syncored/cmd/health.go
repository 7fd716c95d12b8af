package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amanmcp/syncore/internal/observability"
)

func newHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Report structural issues and warnings for a codebase",
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

			_, statErr := os.Stat(root)
			report := observability.CheckCodebase(statErr == nil, c.Snapshot())

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "healthy: %v\n", report.Healthy)
			for _, issue := range report.Issues {
				fmt.Fprintf(out, "  issue: %s\n", issue)
			}
			for _, warn := range report.Warnings {
				fmt.Fprintf(out, "  warning: %s\n", warn)
			}
			if !report.Healthy {
				return fmt.Errorf("health check failed")
			}
			return nil
		},
	}
	return cmd
}
