package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/banshee-data/houghtrack/internal/config"
	"github.com/banshee-data/houghtrack/internal/hough/storage/sqlite"
	"github.com/banshee-data/houghtrack/internal/monitoring"
	"github.com/banshee-data/houghtrack/internal/testutil"
)

func setupTestServer(t *testing.T, opts ...Option) (*Server, *sqlite.TrackStore, string) {
	t.Helper()
	monitoring.SetLogger(nil)
	store := testutil.NewTrackStore(t)
	id := testutil.SeedRun(t, store, config.VariantTrigger,
		testutil.SampleRecord(0, 2), testutil.SampleRecord(1, 0), testutil.SampleRecord(2, 1))
	return NewServer(store, opts...), store, id
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	LoggingMiddleware(s.ServeMux()).ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestListRuns(t *testing.T) {
	s, _, id := setupTestServer(t)

	rec := serve(s, http.MethodGet, "/api/runs")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	runs := testutil.DecodeJSON[[]RunSummary](t, rec)
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if runs[0].RunID != id || runs[0].Events != 3 || runs[0].Candidates != 3 {
		t.Errorf("run = %+v (candidates %d), want %s with 3 events and 3 candidates", runs[0].Run, runs[0].Candidates, id)
	}

	rec = serve(s, http.MethodPost, "/api/runs")
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestGetRun(t *testing.T) {
	s, _, id := setupTestServer(t)

	rec := serve(s, http.MethodGet, "/api/runs/"+id)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	run := testutil.DecodeJSON[RunSummary](t, rec)
	if run.Variant != config.VariantTrigger {
		t.Errorf("variant = %q, want %q", run.Variant, config.VariantTrigger)
	}
	if run.FinishedAt == 0 {
		t.Error("finished_at not set")
	}

	rec = serve(s, http.MethodGet, "/api/runs/missing")
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)

	rec = serve(s, http.MethodPut, "/api/runs/"+id)
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestDeleteRun(t *testing.T) {
	s, store, id := setupTestServer(t)

	rec := serve(s, http.MethodDelete, "/api/runs/"+id)
	testutil.AssertStatusCode(t, rec.Code, http.StatusNoContent)

	n, err := store.CountCandidates(id)
	testutil.AssertNoError(t, err)
	if n != 0 {
		t.Errorf("candidates after delete = %d, want 0", n)
	}

	rec = serve(s, http.MethodDelete, "/api/runs/"+id)
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestListCandidates(t *testing.T) {
	s, _, id := setupTestServer(t)

	tests := []struct {
		name   string
		path   string
		status int
		count  int
	}{
		{"two tracks", "/api/runs/" + id + "/events/0", http.StatusOK, 2},
		{"empty event", "/api/runs/" + id + "/events/1", http.StatusOK, 0},
		{"unknown event", "/api/runs/" + id + "/events/9", http.StatusOK, 0},
		{"min hits kept", "/api/runs/" + id + "/events/0?min_hits=5", http.StatusOK, 2},
		{"min hits dropped", "/api/runs/" + id + "/events/0?min_hits=6", http.StatusOK, 0},
		{"bad min hits", "/api/runs/" + id + "/events/0?min_hits=x", http.StatusBadRequest, -1},
		{"bad event", "/api/runs/" + id + "/events/first", http.StatusBadRequest, -1},
		{"unknown run", "/api/runs/missing/events/0", http.StatusNotFound, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, http.MethodGet, tt.path)
			testutil.AssertStatusCode(t, rec.Code, tt.status)
			if tt.count < 0 {
				return
			}
			cands := testutil.DecodeJSON[[]sqlite.Candidate](t, rec)
			if len(cands) != tt.count {
				t.Fatalf("got %d candidates, want %d", len(cands), tt.count)
			}
			for i, c := range cands {
				if c.Index != i {
					t.Errorf("candidate %d has index %d", i, c.Index)
				}
				if c.Track.Fit == nil || c.Track.Fit.Charge != -1 {
					t.Errorf("candidate %d fit = %+v, want charge -1", i, c.Track.Fit)
				}
			}
		})
	}
}

func TestShowConfig(t *testing.T) {
	variant := config.VariantLegendre
	tc := config.EmptyTuningConfig()
	tc.Variant = &variant
	s, _, _ := setupTestServer(t, WithTuning(tc))

	rec := serve(s, http.MethodGet, "/api/config")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	got := testutil.DecodeJSON[map[string]any](t, rec)
	if got["variant"] != config.VariantLegendre {
		t.Errorf("variant = %v, want %s", got["variant"], config.VariantLegendre)
	}

	s, _, _ = setupTestServer(t)
	rec = serve(s, http.MethodGet, "/api/config")
	got = testutil.DecodeJSON[map[string]any](t, rec)
	if got["variant"] != config.VariantTrigger {
		t.Errorf("default variant = %v, want %s", got["variant"], config.VariantTrigger)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := setupTestServer(t)
	rec := serve(s, http.MethodGet, "/metrics")
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)

	reg := prometheus.NewRegistry()
	m := monitoring.NewSearchMetrics(reg)
	m.ObserveEvent(10, 1, 4, 64)
	s, _, _ = setupTestServer(t, WithMetrics(reg))

	rec = serve(s, http.MethodGet, "/metrics")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "houghtrack_events_total 1") {
		t.Errorf("metrics output missing event counter:\n%s", body)
	}
}

func TestStatusCodeColor(t *testing.T) {
	for _, code := range []int{200, 301, 404, 500} {
		if !strings.Contains(statusCodeColor(code), colorReset) {
			t.Errorf("statusCodeColor(%d) missing reset", code)
		}
	}
	if got := statusCodeColor(100); got != "100" {
		t.Errorf("statusCodeColor(100) = %q, want plain", got)
	}
}
