package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/markup-consensus/internal/checks"
	"github.com/banshee-data/markup-consensus/internal/markup"
	"github.com/banshee-data/markup-consensus/internal/pipeline"
)

// errCheckFailed is returned after a failing check has been reported, so the
// process exits non-zero.
var errCheckFailed = errors.New("check failed")

func newCheckCommand(ctx *commandContext) *cobra.Command {
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Verify an export against the images directory",
	}

	checkCmd.AddCommand(newCheckSubcommand(ctx, "file-to-image", "Report export records whose image is missing",
		func(c *checks.Checker, samples []markup.Sample) (checks.Result, error) {
			return c.FileToImage(samples)
		}))

	var pattern string
	imageToFile := newCheckSubcommand(ctx, "image-to-file", "Report images that no export record refers to",
		func(c *checks.Checker, samples []markup.Sample) (checks.Result, error) {
			c.Pattern = pattern
			return c.ImageToFile(samples)
		})
	imageToFile.Flags().StringVar(&pattern, "pattern", checks.DefaultImagePattern, "Image base name pattern")
	checkCmd.AddCommand(imageToFile)

	var field string
	unique := newCheckSubcommand(ctx, "unique", "Report repeated values of a record field",
		func(c *checks.Checker, samples []markup.Sample) (checks.Result, error) {
			return c.UniqueField(samples, field)
		})
	unique.Flags().StringVar(&field, "field", "", "Field to check: "+strings.Join(checks.UniqueFields, ", "))
	_ = unique.MarkFlagRequired("field")
	checkCmd.AddCommand(unique)

	return checkCmd
}

func newCheckSubcommand(ctx *commandContext, use, short string, run func(*checks.Checker, []markup.Sample) (checks.Result, error)) *cobra.Command {
	var markupPath string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			samples, err := markup.Load(markupPath)
			if err != nil {
				return err
			}
			return ctx.withRunner(nil, func(r *pipeline.Runner) error {
				c, err := r.Checker()
				if err != nil {
					return err
				}
				res, err := run(c, samples)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.String())
				if !res.OK {
					return errCheckFailed
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&markupPath, "markup", "", "Annotation export (.json)")
	_ = cmd.MarkFlagRequired("markup")
	return cmd
}
