// Package testutil provides shared test fixtures for packages that sit on
// top of the results database.
package testutil

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/banshee-data/houghtrack/internal/hough/eventio"
	"github.com/banshee-data/houghtrack/internal/hough/storage/sqlite"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// DecodeJSON decodes the recorded response body into a T.
func DecodeJSON[T any](t testing.TB, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

// NewTrackStore opens a migrated results database in a temporary
// directory. It is closed when the test ends.
func NewTrackStore(t testing.TB) *sqlite.TrackStore {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("failed to open results database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlite.NewTrackStore(db.DB)
}

// SampleRecord returns an event record with n refined tracks. Track i uses
// hit IDs 10i..10i+4.
func SampleRecord(event int64, n int) eventio.Record {
	rec := eventio.Record{Event: event, Hits: 5 * n, Leaves: 3 * n, Refined: true}
	for i := 0; i < n; i++ {
		x := float64(i)
		tr := eventio.TrackRecord{
			Params: []float64{0.1 + x, -0.002},
			Lower:  []float64{0.05 + x, -0.0025},
			Upper:  []float64{0.15 + x, -0.0015},
			Cells:  3,
			Weight: 5,
			Fit: &eventio.FitRecord{
				Phi0:        0.1 + x,
				Curvature:   0.004,
				Chi2:        1.5,
				NDF:         2,
				Probability: 0.47,
				Charge:      -1,
			},
		}
		for h := 0; h < 5; h++ {
			tr.HitIDs = append(tr.HitIDs, uint64(10*i+h))
		}
		rec.Tracks = append(rec.Tracks, tr)
	}
	return rec
}

// SeedRun stores a finished run with the given records and returns its ID.
func SeedRun(t testing.TB, store *sqlite.TrackStore, variant string, recs ...eventio.Record) string {
	t.Helper()
	run := &sqlite.Run{Variant: variant}
	AssertNoError(t, store.InsertRun(run))
	for _, rec := range recs {
		AssertNoError(t, store.InsertRecord(context.Background(), run.RunID, rec))
	}
	AssertNoError(t, store.FinishRun(run.RunID, len(recs)))
	return run.RunID
}
