package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExtractCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <document.pdf|document.docx>",
		Short: "Print the plain text extracted from a design document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			text, err := a.extractor().Extract(cmd.Context(), doc)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text.Text())
			return nil
		},
	}
}
