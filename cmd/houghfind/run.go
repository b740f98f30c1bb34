package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/houghtrack/internal/config"
	"github.com/banshee-data/houghtrack/internal/hough/debug"
	"github.com/banshee-data/houghtrack/internal/hough/eventio"
	"github.com/banshee-data/houghtrack/internal/hough/l2hits"
	"github.com/banshee-data/houghtrack/internal/hough/monitor"
	"github.com/banshee-data/houghtrack/internal/hough/pipeline"
	"github.com/banshee-data/houghtrack/internal/hough/publish"
	"github.com/banshee-data/houghtrack/internal/hough/storage/sqlite"
	"github.com/banshee-data/houghtrack/internal/monitoring"
)

type runOptions struct {
	in      string
	out     string
	workers int
	limit   int

	db string

	redisAddr     string
	redisPassword string
	redisDB       int
	stream        string
	maxLen        int64

	plots       string
	plotFormats []string
	traces      string

	metricsAddr string
}

// runSummary is what a run reports when it completes.
type runSummary struct {
	RunID  string
	Events int64
	Tracks int64
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Search an event file for tracks",
	Long: `Reads events, runs the configured search on a pool of workers and hands
every result to the enabled sinks: a record file, a SQLite results
database, a Redis stream, plane plots and debug traces. Results reach the
sinks in completion order, not in event order.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := loadTuning(cmd)
		if err != nil {
			return err
		}
		var o runOptions
		f := cmd.Flags()
		o.in, _ = f.GetString("in")
		o.out, _ = f.GetString("out")
		o.workers, _ = f.GetInt("workers")
		o.limit, _ = f.GetInt("limit")
		o.db, _ = f.GetString("db")
		o.redisAddr, _ = f.GetString("redis")
		o.redisPassword, _ = f.GetString("redis-password")
		o.redisDB, _ = f.GetInt("redis-db")
		o.stream, _ = f.GetString("stream")
		o.maxLen, _ = f.GetInt64("max-len")
		o.plots, _ = f.GetString("plots")
		o.plotFormats, _ = f.GetStringSlice("plot-formats")
		o.traces, _ = f.GetString("traces")
		o.metricsAddr, _ = f.GetString("metrics-addr")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sum, err := runSearch(ctx, o, tc)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "processed %d events, %d tracks", sum.Events, sum.Tracks)
		if sum.RunID != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " (run %s)", sum.RunID)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	f := runCmd.Flags()
	f.StringP("in", "i", "", "Input event file")
	f.StringP("out", "o", "", "Record file for the found tracks")
	f.IntP("workers", "w", runtime.NumCPU(), "Concurrent searches, each with its own tree")
	f.Int("limit", 0, "Stop after this many events (0 reads all)")
	f.String("db", "", "SQLite results database")
	f.String("redis", "", "Redis address for publishing results")
	f.String("redis-password", "", "Redis password")
	f.Int("redis-db", 0, "Redis database number")
	f.String("stream", publish.DefaultStream, "Redis stream key")
	f.Int64("max-len", 0, "Trim the stream to at most this many entries (0 keeps all)")
	f.String("plots", "", "Directory for parameter plane plots")
	f.StringSlice("plot-formats", nil, "Plot formats: heatmap, html, raw (default all)")
	f.String("traces", "", "Directory for per-event tree traces")
	f.String("metrics-addr", "", "Serve prometheus metrics on this address")
	_ = runCmd.MarkFlagRequired("in")
}

// runSearch processes the input file with o.workers finders sharing one
// configuration and one set of sinks.
func runSearch(ctx context.Context, o runOptions, tc *config.TuningConfig) (runSummary, error) {
	var sum runSummary
	cfg, err := pipeline.ConfigFromTuning(tc)
	if err != nil {
		return sum, err
	}
	if o.workers <= 0 {
		o.workers = 1
	}

	r, err := eventio.Open(o.in)
	if err != nil {
		return sum, err
	}
	defer r.Close()

	var sinks []pipeline.Sink
	var records *eventio.Writer
	if o.out != "" {
		records, err = eventio.Create(o.out)
		if err != nil {
			return sum, err
		}
		defer func() {
			if records != nil {
				records.Close()
			}
		}()
		sinks = append(sinks, eventio.NewRecordSink(records))
	}

	var store *sqlite.TrackStore
	if o.db != "" {
		db, err := sqlite.Open(o.db)
		if err != nil {
			return sum, err
		}
		defer db.Close()
		store = sqlite.NewTrackStore(db.DB)
		cfgJSON, err := json.Marshal(tc)
		if err != nil {
			return sum, fmt.Errorf("failed to encode config: %w", err)
		}
		run := &sqlite.Run{Variant: tc.GetVariant(), ConfigJSON: cfgJSON}
		if err := store.InsertRun(run); err != nil {
			return sum, err
		}
		sum.RunID = run.RunID
		sinks = append(sinks, sqlite.NewRunSink(store, run.RunID))
	}

	if o.redisAddr != "" {
		pub := publish.New(o.redisAddr, o.redisPassword, o.redisDB,
			publish.WithStream(o.stream), publish.WithMaxLen(o.maxLen))
		defer pub.Close()
		if err := pub.Ping(ctx); err != nil {
			return sum, fmt.Errorf("redis %s: %w", o.redisAddr, err)
		}
		sinks = append(sinks, pub)
	}

	if o.plots != "" {
		x, y := axisLabels(tc.GetVariant())
		ps, err := monitor.NewPlaneSink(o.plots, cfg.Divider, monitor.PlotOptions{XLabel: x, YLabel: y}, o.plotFormats...)
		if err != nil {
			return sum, err
		}
		sinks = append(sinks, ps)
	}

	if o.traces != "" {
		if err := os.MkdirAll(o.traces, 0755); err != nil {
			return sum, fmt.Errorf("failed to create trace dir: %w", err)
		}
		sinks = append(sinks, traceSink{dir: o.traces})
	}

	var metrics *monitoring.SearchMetrics
	if o.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = monitoring.NewSearchMetrics(reg)
		stopMetrics := serveMetrics(o.metricsAddr, reg)
		defer stopMetrics()
	}

	monitoring.Logf("run: variant %s, %d workers, %d sinks, input %s", tc.GetVariant(), o.workers, len(sinks), o.in)

	var events, tracks atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan l2hits.Event, 2*o.workers)

	g.Go(func() error {
		defer close(queue)
		for n := 0; o.limit <= 0 || n < o.limit; n++ {
			ev, err := r.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			select {
			case queue <- ev:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < o.workers; i++ {
		g.Go(func() error {
			opts := make([]pipeline.Option, 0, len(sinks)+2)
			for _, s := range sinks {
				opts = append(opts, pipeline.WithSink(s))
			}
			if metrics != nil {
				opts = append(opts, pipeline.WithMetrics(metrics))
			}
			if o.traces != "" {
				c := debug.NewCollector()
				c.SetEnabled(true)
				opts = append(opts, pipeline.WithCollector(c))
			}
			finder, err := pipeline.NewFinder(cfg, opts...)
			if err != nil {
				return err
			}
			for ev := range queue {
				res, err := finder.Process(gctx, ev)
				if err != nil {
					return err
				}
				events.Add(1)
				tracks.Add(int64(len(res.Output())))
			}
			return nil
		})
	}

	err = g.Wait()
	sum.Events, sum.Tracks = events.Load(), tracks.Load()

	if records != nil {
		cerr := records.Close()
		records = nil
		if err == nil && cerr != nil {
			err = cerr
		}
	}
	if store != nil {
		if ferr := store.FinishRun(sum.RunID, int(sum.Events)); ferr != nil {
			monitoring.Logf("run %s: failed to finish: %v", sum.RunID, ferr)
		}
	}
	if err != nil {
		return sum, err
	}
	monitoring.Logf("run: %d events, %d tracks", sum.Events, sum.Tracks)
	return sum, nil
}

// serveMetrics exposes reg on addr/metrics and returns a shutdown func.
func serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		monitoring.Logf("metrics: listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			monitoring.Logf("metrics: %v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			monitoring.Logf("metrics: shutdown: %v", err)
		}
	}
}

// traceSink writes the debug trace of every event as indented JSON.
type traceSink struct {
	dir string
}

func (s traceSink) Write(ctx context.Context, res *pipeline.Result) error {
	if res.Trace == nil {
		return nil
	}
	data, err := json.MarshalIndent(res.Trace, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode trace: %w", err)
	}
	path := filepath.Join(s.dir, fmt.Sprintf("event_%06d_trace.json", res.Event))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write trace: %w", err)
	}
	return nil
}
