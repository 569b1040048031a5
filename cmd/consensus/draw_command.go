package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/markup-consensus/internal/pipeline"
)

func newDrawCommand(ctx *commandContext) *cobra.Command {
	var markupPath, dumpDir string

	cmd := &cobra.Command{
		Use:   "draw",
		Short: "Draw the boxes of an export onto their images",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRunner(nil, func(r *pipeline.Runner) error {
				n, err := r.Draw(markupPath, dumpDir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Drew %d images into %s\n", n, dumpDir)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&markupPath, "markup", "", "Annotation export (.json)")
	cmd.Flags().StringVar(&dumpDir, "dump", "", "Directory receiving the annotated images")
	_ = cmd.MarkFlagRequired("markup")
	_ = cmd.MarkFlagRequired("dump")

	return cmd
}
