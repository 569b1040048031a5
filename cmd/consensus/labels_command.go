package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/banshee-data/markup-consensus/internal/config"
	"github.com/banshee-data/markup-consensus/internal/pipeline"
)

func newLabelsCommand(ctx *commandContext) *cobra.Command {
	var instancesPath string
	var aggregator string
	var nIter int
	var tol float64

	cmd := &cobra.Command{
		Use:   "labels",
		Short: "Estimate a consensus label for every instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides := config.Empty()
			if cmd.Flags().Changed("aggregator") {
				overrides.Aggregator = &aggregator
			}
			if cmd.Flags().Changed("n-iter") {
				overrides.NIter = &nIter
			}
			if cmd.Flags().Changed("tol") {
				overrides.Tol = &tol
			}

			return ctx.withRunner(overrides, func(r *pipeline.Runner) error {
				res, err := r.Labels(instancesPath)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()

				rows := make([][]string, len(res.Labels))
				for i, lc := range res.Labels {
					rows[i] = []string{lc.Label, strconv.Itoa(lc.Count)}
				}
				fmt.Fprintln(out, renderTable([]string{"Label", "Instances"}, rows, []columnAlignment{alignLeft, alignRight}))

				pairs := [][2]string{
					{"Aggregator", res.Aggregator},
					{"Votes", strconv.Itoa(res.Votes)},
					{"Iterations", strconv.Itoa(len(res.Fit.LossHistory))},
					{"Consensus table", res.ResultsPath},
					{"Posteriors", res.PosteriorsPath},
				}
				if res.SummaryPath != "" {
					pairs = append(pairs, [2]string{"Loss plot", res.PlotPath}, [2]string{"Summary", res.SummaryPath})
				}
				if res.RunID != "" {
					pairs = append(pairs, [2]string{"Run", res.RunID})
				}
				fmt.Fprintln(out, keyValueTable(pairs))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&instancesPath, "instances", "", "Instance table written by the boxes command")
	cmd.Flags().StringVar(&aggregator, "aggregator", config.DefaultAggregator, "majority_vote or dawid_skene")
	cmd.Flags().IntVar(&nIter, "n-iter", config.DefaultNIter, "Maximum EM iterations")
	cmd.Flags().Float64Var(&tol, "tol", config.DefaultTol, "Stop when the ELBO improves by less than this")
	_ = cmd.MarkFlagRequired("instances")

	return cmd
}
