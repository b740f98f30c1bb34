// Package api serves stored search results over HTTP.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/houghtrack/internal/config"
	"github.com/banshee-data/houghtrack/internal/hough/storage/sqlite"
	"github.com/banshee-data/houghtrack/internal/httputil"
	"github.com/banshee-data/houghtrack/internal/monitoring"
)

// ANSI escape codes for the request log
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes a results database.
type Server struct {
	store    *sqlite.TrackStore
	tuning   *config.TuningConfig
	gatherer prometheus.Gatherer
}

type Option func(*Server)

// WithTuning publishes the active tuning config at /api/config.
func WithTuning(tc *config.TuningConfig) Option {
	return func(s *Server) { s.tuning = tc }
}

// WithMetrics serves g at /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

func NewServer(store *sqlite.TrackStore, opts ...Option) *Server {
	s := &Server{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunSummary is a run with its stored candidate count.
type RunSummary struct {
	*sqlite.Run
	Candidates int `json:"candidates"`
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/{id}", s.handleRun)
	mux.HandleFunc("/api/runs/{id}/events/{event}", s.listCandidates)
	mux.HandleFunc("/api/config", s.showConfig)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

func (s *Server) summarise(run *sqlite.Run) (RunSummary, error) {
	n, err := s.store.CountCandidates(run.RunID)
	if err != nil {
		return RunSummary{}, err
	}
	return RunSummary{Run: run, Candidates: n}, nil
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	runs, err := s.store.ListRuns()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve runs: %v", err))
		return
	}
	out := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		sum, err := s.summarise(run)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("Failed to count candidates: %v", err))
			return
		}
		out = append(out, sum)
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		run, err := s.store.GetRun(id)
		if errors.Is(err, sqlite.ErrRunNotFound) {
			httputil.NotFound(w, err.Error())
			return
		}
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve run: %v", err))
			return
		}
		sum, err := s.summarise(run)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("Failed to count candidates: %v", err))
			return
		}
		httputil.WriteJSONOK(w, sum)
	case http.MethodDelete:
		err := s.store.DeleteRun(id)
		if errors.Is(err, sqlite.ErrRunNotFound) {
			httputil.NotFound(w, err.Error())
			return
		}
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("Failed to delete run: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) listCandidates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	id := r.PathValue("id")
	event, err := strconv.ParseInt(r.PathValue("event"), 10, 64)
	if err != nil {
		httputil.BadRequest(w, "Invalid event number")
		return
	}
	if _, err := s.store.GetRun(id); err != nil {
		if errors.Is(err, sqlite.ErrRunNotFound) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve run: %v", err))
		return
	}
	cands, err := s.store.ListCandidates(id, event)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve candidates: %v", err))
		return
	}
	if cands == nil {
		cands = []*sqlite.Candidate{}
	}
	minHits, err := httputil.QueryInt64(r, "min_hits", 0)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if minHits > 0 {
		kept := cands[:0]
		for _, c := range cands {
			if int64(len(c.Track.HitIDs)) >= minHits {
				kept = append(kept, c)
			}
		}
		cands = kept
	}
	httputil.WriteJSONOK(w, cands)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	tc := s.tuning
	if tc == nil {
		tc = config.EmptyTuningConfig()
	}
	httputil.WriteJSONOK(w, map[string]any{
		"variant": tc.GetVariant(),
		"tuning":  tc,
	})
}
