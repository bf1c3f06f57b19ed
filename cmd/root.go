package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

// options are the persistent flags shared by every subcommand.
type options struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "iflowgen",
		Short: "Turn SAP CPI iFlow design documents into reviewed execution prompts",
		Long: `iflowgen reads an iFlow design document (PDF or DOCX), asks an LLM for a
structured understanding of the integration, lets a human approve, edit or
reject that understanding, and turns the approved design into a short
execution prompt.

Available commands:
  run      - Review a document interactively and print the final prompt
  extract  - Print the plain text extracted from a document
  serve    - Start the HTTP API
  mcp      - Serve the iFlow tools over MCP on stdio`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "config/config.json", "path to config file (.json or .yaml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logs")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newExtractCmd(opts))
	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newMCPCmd(opts))
	return root
}

// Execute runs the CLI until completion or SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}
