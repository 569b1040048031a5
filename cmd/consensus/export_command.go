package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/markup-consensus/internal/pipeline"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var resultsPath, markupPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write consensus boxes back in the annotation export format",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRunner(nil, func(r *pipeline.Runner) error {
				path, n, err := r.Export(resultsPath, markupPath)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d records to %s\n", n, path)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&resultsPath, "results", "", "Consensus table written by the labels command")
	cmd.Flags().StringVar(&markupPath, "markup", "", "Original annotation export (.json)")
	_ = cmd.MarkFlagRequired("results")
	_ = cmd.MarkFlagRequired("markup")

	return cmd
}
