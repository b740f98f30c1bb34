package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/houghtrack/internal/config"
	"github.com/banshee-data/houghtrack/internal/hough/l3tree"
	"github.com/banshee-data/houghtrack/internal/hough/l4peaks"
	"github.com/banshee-data/houghtrack/internal/hough/l5refine"
	"github.com/banshee-data/houghtrack/internal/hough/pipeline"
	"github.com/banshee-data/houghtrack/internal/monitoring"
)

var rootCmd = &cobra.Command{
	Use:   "houghfind",
	Short: "Hough transform track finding for drift chamber events",
	Long: `houghfind searches events for circle tracks with a weighted quad tree
Hough transform, extracts peaks from the accepted cells and optionally
refines them with circle fits.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		return configureLogging(cmd.ErrOrStderr(), level)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Tuning config file (.json, .yaml or .yml)")
	rootCmd.PersistentFlags().String("variant", "", "Override the search variant (trigger, legendre or generic)")
	rootCmd.PersistentFlags().String("log-level", "ops", "Search log streams: quiet, ops, diag or trace")
}

// configureLogging routes the search layer streams and the process logger
// to w. Each level includes the ones before it.
func configureLogging(w io.Writer, level string) error {
	var ops, diag, trace io.Writer
	switch level {
	case "quiet":
	case "ops":
		ops = w
	case "diag":
		ops, diag = w, w
	case "trace":
		ops, diag, trace = w, w, w
	default:
		return fmt.Errorf("unknown log level %q (want quiet, ops, diag or trace)", level)
	}
	l3tree.SetLogWriters(ops, diag, trace)
	l4peaks.SetLogWriters(ops, diag, trace)
	l5refine.SetLogWriters(ops, diag, trace)
	pipeline.SetLogWriters(ops, diag, trace)

	if level == "quiet" {
		monitoring.SetLogger(nil)
	} else {
		monitoring.SetLogger(log.New(w, "", log.LstdFlags).Printf)
	}
	return nil
}

// loadTuning reads --config and applies --variant. Without a file the
// built-in defaults are used.
func loadTuning(cmd *cobra.Command) (*config.TuningConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	variant, _ := cmd.Flags().GetString("variant")

	tc := config.EmptyTuningConfig()
	if path != "" {
		loaded, err := config.LoadTuningConfig(path)
		if err != nil {
			return nil, err
		}
		tc = loaded
	}
	if variant != "" {
		tc.Variant = &variant
		if err := tc.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return tc, nil
}

// axisLabels names the plane axes of a variant.
func axisLabels(variant string) (x, y string) {
	switch variant {
	case config.VariantTrigger:
		return "phi [rad]", "curvature/2 [1/cm]"
	case config.VariantLegendre:
		return "theta [rad]", "conformal r [1/cm]"
	default:
		return "axis 0", "axis 1"
	}
}
