package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/houghtrack/internal/hough/storage/sqlite"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|version]",
	Short:     "Manage the results database schema",
	Long:      `Opening a database always migrates it up; down then rolls back the latest migration.`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down", "version"},
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("db")
		db, err := sqlite.Open(path)
		if err != nil {
			return err
		}
		defer db.Close()

		if args[0] == "down" {
			if err := db.MigrateDown(); err != nil {
				return err
			}
		}
		v, dirty, err := db.MigrateVersion()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %v)\n", v, dirty)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().String("db", "", "SQLite results database")
	_ = migrateCmd.MarkFlagRequired("db")
}
