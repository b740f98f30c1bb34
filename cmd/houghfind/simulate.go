package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/houghtrack/internal/hough/eventio"
	"github.com/banshee-data/houghtrack/internal/hough/simulate"
	"github.com/banshee-data/houghtrack/internal/monitoring"
)

type simulateOptions struct {
	out      string
	truth    string
	events   int
	geometry string
	sim      simulate.Config
}

// truthLine is one line of the truth file.
type truthLine struct {
	Event  int64            `json:"event"`
	Tracks []simulate.Track `json:"tracks"`
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Write synthetic events",
	Long: `Generates circle tracks from the origin crossing concentric layers plus
uniform noise and writes them as an event stream. The compression follows
the output extension (.zst, .lz4 or plain).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		o := simulateOptions{sim: simulate.DefaultConfig()}
		o.out, _ = cmd.Flags().GetString("out")
		o.truth, _ = cmd.Flags().GetString("truth")
		o.events, _ = cmd.Flags().GetInt("events")
		o.geometry, _ = cmd.Flags().GetString("geometry")
		o.sim.Tracks, _ = cmd.Flags().GetInt("tracks")
		o.sim.Noise, _ = cmd.Flags().GetFloat64("noise")
		o.sim.MinCurvature, _ = cmd.Flags().GetFloat64("min-curvature")
		o.sim.MaxCurvature, _ = cmd.Flags().GetFloat64("max-curvature")
		o.sim.Efficiency, _ = cmd.Flags().GetFloat64("efficiency")
		o.sim.MaxDrift, _ = cmd.Flags().GetFloat64("max-drift")
		o.sim.KnownRL, _ = cmd.Flags().GetFloat64("known-rl")
		o.sim.Smear, _ = cmd.Flags().GetFloat64("smear")
		o.sim.Seed, _ = cmd.Flags().GetUint64("seed")

		n, err := simulateEvents(o)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d events to %s\n", n, o.out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	d := simulate.DefaultConfig()
	f := simulateCmd.Flags()
	f.StringP("out", "o", "", "Output event file")
	f.String("truth", "", "Optional JSON lines file for the generated tracks")
	f.IntP("events", "n", 100, "Number of events")
	f.String("geometry", "trigger", "Layer geometry: trigger or wire")
	f.Int("tracks", d.Tracks, "Tracks per event")
	f.Float64("noise", d.Noise, "Mean noise hits per event")
	f.Float64("min-curvature", d.MinCurvature, "Smallest curvature magnitude [1/cm]")
	f.Float64("max-curvature", d.MaxCurvature, "Largest curvature magnitude [1/cm]")
	f.Float64("efficiency", d.Efficiency, "Probability that a layer records a crossing")
	f.Float64("max-drift", d.MaxDrift, "Largest drift length [cm]; zero places hits on the track")
	f.Float64("known-rl", d.KnownRL, "Probability that the left/right tag is known")
	f.Float64("smear", d.Smear, "Gaussian drift length smearing [cm]")
	f.Uint64("seed", d.Seed, "Random seed")
	_ = simulateCmd.MarkFlagRequired("out")
}

// simulateEvents writes o.events events and returns the number written.
func simulateEvents(o simulateOptions) (int, error) {
	switch o.geometry {
	case "", "trigger":
		o.sim.Geometry = simulate.TriggerGeometry()
	case "wire":
		o.sim.Geometry = simulate.WireGeometry()
	default:
		return 0, fmt.Errorf("unknown geometry %q (want trigger or wire)", o.geometry)
	}
	gen, err := simulate.New(o.sim)
	if err != nil {
		return 0, err
	}

	w, err := eventio.Create(o.out)
	if err != nil {
		return 0, err
	}
	var truth *json.Encoder
	if o.truth != "" {
		tf, err := os.Create(o.truth)
		if err != nil {
			w.Close()
			return 0, fmt.Errorf("failed to create truth file: %w", err)
		}
		defer tf.Close()
		truth = json.NewEncoder(tf)
	}

	for i := 0; i < o.events; i++ {
		ev, tracks := gen.Event(int64(i))
		if err := w.Write(ev); err != nil {
			w.Close()
			return i, err
		}
		if truth != nil {
			if err := truth.Encode(truthLine{Event: ev.Number, Tracks: tracks}); err != nil {
				w.Close()
				return i, fmt.Errorf("failed to write truth: %w", err)
			}
		}
	}
	if err := w.Close(); err != nil {
		return o.events, err
	}
	monitoring.Logf("simulate: %d events, %d tracks each, geometry %s, seed %d",
		o.events, o.sim.Tracks, o.geometry, o.sim.Seed)
	return o.events, nil
}
