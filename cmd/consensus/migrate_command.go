package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/banshee-data/markup-consensus/internal/store"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the run database schema",
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(s *store.Store) error {
				if err := s.MigrateUp(); err != nil {
					return err
				}
				return printSchemaStatus(cmd.OutOrStdout(), s)
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration, dropping all recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(s *store.Store) error {
				if err := s.MigrateDown(); err != nil {
					return err
				}
				return printSchemaStatus(cmd.OutOrStdout(), s)
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(s *store.Store) error {
				return printSchemaStatus(cmd.OutOrStdout(), s)
			})
		},
	})

	return migrateCmd
}

func printSchemaStatus(w io.Writer, s *store.Store) error {
	version, dirty, err := s.MigrateVersion()
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	fmt.Fprintln(w, keyValueTable([][2]string{
		{"Schema version", strconv.FormatUint(uint64(version), 10)},
		{"Dirty", strconv.FormatBool(dirty)},
	}))
	if dirty {
		fmt.Fprintln(w, "A migration failed part-way; inspect the database before retrying.")
	}
	return nil
}
