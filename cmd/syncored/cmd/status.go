package cmd

import (
	"github.com/spf13/cobra"

	"github.com/amanmcp/syncore/internal/syncctl"
	"github.com/amanmcp/syncore/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a codebase's indexing and sync status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, root, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			poll := func() (ui.StatusSnapshot, error) {
				c, ok := a.manager.Get(root)
				if !ok {
					return ui.StatusSnapshot{Root: root, Status: syncctl.StatusNotIndexed}, nil
				}
				st := c.Status()
				return ui.StatusSnapshot{
					Root:           root,
					Status:         st.Status,
					Progress:       st.Progress,
					IndexedFiles:   st.IndexedFiles,
					TotalChunks:    st.TotalChunks,
					Error:          st.Error,
					RealtimeOn:     c.RealtimeEnabled(),
					PendingOps:     c.PendingOps(),
					MtimeCacheSize: c.Hash.Len(),
				}, nil
			}

			out := cmd.OutOrStdout()
			if watch {
				return ui.RunWatch(out, poll, flags.noColor || ui.DetectNoColor())
			}
			snap, err := poll()
			if err != nil {
				return err
			}
			ui.NewStatusRenderer(out, flags.noColor || ui.DetectNoColor()).Render(snap)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "watch status interactively until indexing finishes")

	return cmd
}
