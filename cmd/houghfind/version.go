package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/houghtrack/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of houghfind",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "houghfind version %s\n", version.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
