package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/markup-consensus/internal/store"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var show string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(s *store.Store) error {
				if show != "" {
					return showRun(cmd.OutOrStdout(), s, show)
				}
				return listRuns(cmd.OutOrStdout(), s)
			})
		},
	}

	cmd.Flags().StringVar(&show, "show", "", "Print the consensus labels and loss history of one run")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func listRuns(w io.Writer, s *store.Store) error {
	runs, err := s.ListRuns()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}

	rows := make([][]string, len(runs))
	for i, r := range runs {
		rows[i] = []string{
			r.ID,
			r.Kind,
			orDash(r.Aggregator),
			r.CreatedAt.Local().Format(time.DateTime),
			strconv.Itoa(r.Instances),
			strconv.Itoa(r.Subtasks),
			strconv.Itoa(r.Iterations),
		}
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Run", "Kind", "Aggregator", "Created", "Rows", "Subtasks", "Iterations"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
	))
	return nil
}

func showRun(w io.Writer, s *store.Store, runID string) error {
	run, err := s.GetRun(runID)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, keyValueTable([][2]string{
		{"Run", run.ID},
		{"Kind", run.Kind},
		{"Aggregator", orDash(run.Aggregator)},
		{"Created", run.CreatedAt.Local().Format(time.DateTime)},
		{"Instance rows", strconv.Itoa(run.Instances)},
	}))

	cs, err := s.Consensus(run.ID)
	if err != nil {
		return err
	}
	if len(cs) > 0 {
		rows := make([][]string, len(cs))
		for i, c := range cs {
			rows[i] = []string{c.Subtask, c.Label}
		}
		fmt.Fprintln(w, renderTable([]string{"Subtask", "Label"}, rows, nil))
	}

	history, err := s.LossHistory(run.ID)
	if err != nil {
		return err
	}
	if len(history) > 0 {
		rows := make([][]string, len(history))
		for i, v := range history {
			rows[i] = []string{strconv.Itoa(i + 1), strconv.FormatFloat(v, 'g', 8, 64)}
		}
		fmt.Fprintln(w, renderTable([]string{"Iteration", "ELBO"}, rows, []columnAlignment{alignRight, alignRight}))
	}
	return nil
}
