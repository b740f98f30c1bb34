package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/banshee-data/houghtrack/internal/config"
	"github.com/banshee-data/houghtrack/internal/hough/eventio"
	"github.com/banshee-data/houghtrack/internal/hough/monitor"
	"github.com/banshee-data/houghtrack/internal/hough/pipeline"
)

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Plot the parameter plane of one event",
	Long: `Searches a single event with the full occupancy plane stored and writes
the plane as a heatmap, an interactive page and a raw image.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := loadTuning(cmd)
		if err != nil {
			return err
		}
		f := cmd.Flags()
		in, _ := f.GetString("in")
		out, _ := f.GetString("out")
		event, _ := f.GetInt64("event")
		formats, _ := f.GetStringSlice("formats")

		res, err := plotEvent(cmd.Context(), tc, in, out, event, formats)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "event %d: %d leaves, %d candidates, plots in %s\n",
			res.Event, len(res.Leaves), len(res.Candidates), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(gridCmd)
	f := gridCmd.Flags()
	f.StringP("in", "i", "", "Input event file")
	f.StringP("out", "o", ".", "Output directory")
	f.Int64("event", 0, "Event number to plot")
	f.StringSlice("formats", nil, "Plot formats: heatmap, html, raw (default all)")
	_ = gridCmd.MarkFlagRequired("in")
}

// plotEvent finds event number in the input and plots its plane into dir.
func plotEvent(ctx context.Context, tc *config.TuningConfig, in, dir string, number int64, formats []string) (*pipeline.Result, error) {
	full := "full"
	tc.StorePlane = &full
	cfg, err := pipeline.ConfigFromTuning(tc)
	if err != nil {
		return nil, err
	}

	r, err := eventio.Open(in)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("event %d not found in %s", number, in)
		}
		if err != nil {
			return nil, err
		}
		if ev.Number != number {
			continue
		}

		x, y := axisLabels(tc.GetVariant())
		sink, err := monitor.NewPlaneSink(dir, cfg.Divider, monitor.PlotOptions{XLabel: x, YLabel: y}, formats...)
		if err != nil {
			return nil, err
		}
		finder, err := pipeline.NewFinder(cfg, pipeline.WithSink(sink))
		if err != nil {
			return nil, err
		}
		res, err := finder.Process(ctx, ev)
		if err != nil {
			return nil, err
		}
		return &res, nil
	}
}
