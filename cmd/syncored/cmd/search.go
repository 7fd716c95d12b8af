package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Hybrid dense+sparse search over an indexed codebase",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
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

			a.gate.CheckAndMaybeSync(ctx, c)

			dense, err := c.Indexer.Embedder.Embed(ctx, []string{query})
			if err != nil {
				return fmt.Errorf("embed query: %w", err)
			}
			var vec []float32
			if len(dense) > 0 {
				vec = dense[0]
			}

			hits, err := c.Store.HybridSearch(ctx, c.CollectionName, vec, query, limit, "")
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, hit := range hits {
				fmt.Fprintf(out, "%d. %s:%d-%d (score %.4f)\n", i+1,
					hit.Chunk.RelativePath, hit.Chunk.StartLine, hit.Chunk.EndLine, hit.Score)
				fmt.Fprintln(out, hit.Chunk.Content)
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of results")

	return cmd
}
