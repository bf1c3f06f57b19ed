package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"iflow_prompt_generator/export"
	"iflow_prompt_generator/extractor"
	"iflow_prompt_generator/pipeline"
	"iflow_prompt_generator/review"
)

func newRunCmd(opts *options) *cobra.Command {
	var exportDir string

	cmd := &cobra.Command{
		Use:   "run <document.pdf|document.docx>",
		Short: "Review a design document and print the final iFlow prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			agent, err := a.agent()
			if err != nil {
				return err
			}
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}

			in, out := cmd.InOrStdin(), cmd.OutOrStdout()
			reviewer := review.NewTerminalReviewer(in, out)
			reviewer.Quiet = !isTerminal(in)

			runner, err := pipeline.NewRunner(a.extractor(), agent,
				pipeline.WithGuard(a.guard()),
				pipeline.WithLogger(a.logger),
				pipeline.WithStageHook(progress(out)),
			)
			if err != nil {
				return err
			}

			res, err := runner.Run(cmd.Context(), doc, reviewer)
			if err != nil {
				return err
			}

			if exportDir == "" {
				exportDir = a.cfg.Export.Dir
			}
			if exportDir != "" {
				exp, err := export.New(exportDir, a.logger)
				if err != nil {
					return err
				}
				arts, err := exp.Export(cmd.Context(), res)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Report written to %s\n", arts.Markdown)
			}

			if res.Outcome == pipeline.OutcomeAborted {
				return nil
			}
			fmt.Fprintln(out, "\n========== FINAL EXECUTION PROMPT ==========")
			fmt.Fprintln(out)
			fmt.Fprintln(out, res.FinalPrompt.String())
			fmt.Fprintln(out, "\n============================================")
			fmt.Fprintln(out, "\nReady for MCP / iFlow execution.")
			return nil
		},
	}

	cmd.Flags().StringVar(&exportDir, "export", "", "write a Markdown and HTML report of the run into this directory (overrides export.dir)")
	return cmd
}

func readDocument(path string) (extractor.RawDocument, error) {
	name := filepath.Base(path)
	kind, err := extractor.KindFromFilename(name)
	if err != nil {
		return extractor.RawDocument{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return extractor.RawDocument{}, fmt.Errorf("read document: %w", err)
	}
	return extractor.RawDocument{Filename: name, Kind: kind, Data: data}, nil
}

func progress(out io.Writer) func(context.Context, pipeline.Stage) {
	return func(_ context.Context, stage pipeline.Stage) {
		switch stage {
		case pipeline.StageExtraction:
			fmt.Fprintln(out, "Extracting text from document...")
		case pipeline.StageUnderstanding:
			fmt.Fprintln(out, "Generating iFlow understanding...")
		case pipeline.StageFinalize:
			fmt.Fprintln(out, "\nGenerating final canonical prompt...")
		}
	}
}
