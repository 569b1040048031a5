package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:           "consensus",
		Short:         "Aggregate crowd-sourced bounding-box annotations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "Pipeline configuration file (.json)")
	pf.StringVar(&flags.images, "images", "", "Directory holding the annotated images")
	pf.StringVar(&flags.wrongCases, "wrong-cases", "", "Directory receiving rejection logs and check reports")
	pf.StringVar(&flags.out, "out", "", "Directory receiving tables, exports and reports")
	pf.StringVar(&flags.db, "db", "", "SQLite run database")
	pf.StringVar(&flags.imagesStructure, "images-structure", "", "Image path convention: flat or nested")
	pf.StringVar(&flags.markupStructure, "markup-structure", "", "Export file name convention: flat or nested")

	rootCmd.AddCommand(newBoxesCommand(ctx))
	rootCmd.AddCommand(newLabelsCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))
	rootCmd.AddCommand(newDrawCommand(ctx))
	rootCmd.AddCommand(newCheckCommand(ctx))
	rootCmd.AddCommand(newRunsCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
