package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/ctxeng/logger"
	"github.com/teranos/ctxeng/mcpserver"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve context assembly to MCP clients over stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout with two tools:
assemble_context and list_models. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := mcpserver.New(logger.Logger)
			if err != nil {
				return err
			}
			return srv.Serve()
		},
	}
}
