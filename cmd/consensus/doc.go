// Package main hosts the consensus CLI.
//
// Each subcommand loads the JSON pipeline configuration, applies flag
// overrides and hands off to internal/pipeline. Summaries are printed as
// tables; every data artifact is written to the configured directories.
package main
