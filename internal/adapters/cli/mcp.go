package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	mcpadapter "github.com/Yeiad-Explore/studynet-counselor-agent/internal/adapters/mcp"
)

func newMCPCommand(r *runner) *cobra.Command {
	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Model Context Protocol server commands",
	}
	var port int
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the SQL and knowledge base tools over MCP",
		Long: `Starts an MCP server exposing the table tools, rag_search and ask.
It speaks JSON-RPC over stdio unless --port is given, in which case the
streamable HTTP transport is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := r.services(cmd.Context())
			if err != nil {
				return err
			}
			server, err := mcpadapter.NewServer(mcpadapter.Ports{Tools: svc.Tools, Queries: svc.Queries})
			if err != nil {
				return err
			}
			if port > 0 {
				addr := fmt.Sprintf(":%d", port)
				fmt.Fprintf(cmd.ErrOrStderr(), "MCP server listening on http://localhost%s/mcp\n", addr)
				return server.RunHTTP(cmd.Context(), addr)
			}
			return server.Run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP port (0 = use stdio)")
	mcpCmd.AddCommand(serveCmd)
	return mcpCmd
}
