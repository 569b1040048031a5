package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/banshee-data/markup-consensus/internal/config"
	"github.com/banshee-data/markup-consensus/internal/pipeline"
)

func newBoxesCommand(ctx *commandContext) *cobra.Command {
	var markupPath string
	var minSize, relErr float64
	var workers int

	cmd := &cobra.Command{
		Use:   "boxes",
		Short: "Cluster worker boxes into instances",
		Long: "Filter the export by label and box size, cluster the remaining boxes of every\n" +
			"image into instances and write the instance table plus the rejection logs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides := config.Empty()
			if cmd.Flags().Changed("min-size") {
				overrides.BboxMinimalRelativeSize = &minSize
			}
			if cmd.Flags().Changed("relative-error") {
				overrides.BboxRelativeError = &relErr
			}
			if cmd.Flags().Changed("workers") {
				overrides.Workers = &workers
			}

			return ctx.withRunner(overrides, func(r *pipeline.Runner) error {
				res, err := r.Boxes(markupPath)
				if err != nil {
					return err
				}
				pairs := [][2]string{
					{"Samples", strconv.Itoa(res.Samples)},
					{"Instances", strconv.Itoa(res.Subtasks())},
					{"Instance rows", strconv.Itoa(len(res.Instances))},
					{"Filtered files", strconv.Itoa(len(res.Logs.FilteredFiles))},
					{"Wrong boxes", strconv.Itoa(len(res.Logs.WrongBoxes))},
					{"Inconsistent boxes", strconv.Itoa(len(res.Logs.InconsistentBoxes))},
					{"Instance table", res.Path},
					{"Rejection logs", r.Config.GetWrongCasesDir()},
				}
				if res.RunID != "" {
					pairs = append(pairs, [2]string{"Run", res.RunID})
				}
				fmt.Fprintln(cmd.OutOrStdout(), keyValueTable(pairs))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&markupPath, "markup", "", "Annotation export (.json)")
	cmd.Flags().Float64Var(&minSize, "min-size", config.DefaultMinimalRelativeSize, "Minimal box side as a fraction of the image side")
	cmd.Flags().Float64Var(&relErr, "relative-error", config.DefaultRelativeError, "Clustering radius as a fraction of the image diagonal")
	cmd.Flags().IntVar(&workers, "workers", config.DefaultWorkers, "Image loading workers")
	_ = cmd.MarkFlagRequired("markup")

	return cmd
}
