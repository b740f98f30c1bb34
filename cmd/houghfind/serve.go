package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/banshee-data/houghtrack/internal/api"
	"github.com/banshee-data/houghtrack/internal/hough/storage/sqlite"
	"github.com/banshee-data/houghtrack/internal/monitoring"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a results database over HTTP",
	Long: `Starts a JSON API over the runs and candidates of a results database,
with process metrics at /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := loadTuning(cmd)
		if err != nil {
			return err
		}
		path, _ := cmd.Flags().GetString("db")
		addr, _ := cmd.Flags().GetString("addr")

		db, err := sqlite.Open(path)
		if err != nil {
			return err
		}
		defer db.Close()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		server := api.NewServer(sqlite.NewTrackStore(db.DB), api.WithTuning(tc), api.WithMetrics(reg))

		srv := &http.Server{
			Addr:              addr,
			Handler:           api.LoggingMiddleware(server.ServeMux()),
			ReadHeaderTimeout: 5 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		serverErrors := make(chan error, 1)
		go func() {
			monitoring.Logf("serving %s on %s", path, srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
			monitoring.Logf("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				monitoring.Logf("graceful shutdown did not complete: %v", err)
				return srv.Close()
			}
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("db", "", "SQLite results database")
	serveCmd.Flags().String("addr", ":8080", "Listen address")
	_ = serveCmd.MarkFlagRequired("db")
}
