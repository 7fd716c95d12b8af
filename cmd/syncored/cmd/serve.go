package cmd

import (
	"github.com/spf13/cobra"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/amanmcp/syncore/internal/rpctools"
)

// newServeCmd runs the stdio RPC tool transport, the surface an AI coding
// assistant drives. No HTTP/SSE transport — syncore doesn't need one.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the RPC tool server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, _, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			srv := rpctools.NewServer(a.manager, a.gate, a.logger)
			return srv.MCPServer().Run(ctx, &mcp.StdioTransport{})
		},
	}
	return cmd
}
