package cmd

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

func newMCPCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the iFlow tools over MCP on stdio",
		Long: `Serve iflow_extract_text, iflow_understand, iflow_edit and iflow_final_prompt
to an MCP client over stdin/stdout. Logs go to the configured log file only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := newServer(a)
			if err != nil {
				return err
			}

			mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "iflowgen", Version: version}, nil)
			srv.RegisterMCP(mcpSrv)
			a.logger.Info("serving MCP on stdio")
			return mcpSrv.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
}
