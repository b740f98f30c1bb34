package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/houghtrack/internal/config"
	"github.com/banshee-data/houghtrack/internal/hough/eventio"
	"github.com/banshee-data/houghtrack/internal/hough/publish"
	"github.com/banshee-data/houghtrack/internal/hough/simulate"
	"github.com/banshee-data/houghtrack/internal/hough/storage/sqlite"
)

func writeEvents(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl.zst")
	o := simulateOptions{out: path, events: n, geometry: "trigger", sim: simulate.DefaultConfig()}
	o.sim.Tracks = 1
	o.sim.Seed = 7
	written, err := simulateEvents(o)
	require.NoError(t, err)
	require.Equal(t, n, written)
	return path
}

func readRecords(t *testing.T, path string) []eventio.Record {
	t.Helper()
	r, err := eventio.Open(path)
	require.NoError(t, err)
	defer r.Close()
	var out []eventio.Record
	for {
		rec, err := r.NextRecord()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestConfigureLogging(t *testing.T) {
	var buf bytes.Buffer
	for _, level := range []string{"quiet", "ops", "diag", "trace"} {
		assert.NoError(t, configureLogging(&buf, level), level)
	}
	assert.Error(t, configureLogging(&buf, "verbose"))
	require.NoError(t, configureLogging(io.Discard, "quiet"))
}

func TestSimulateEvents(t *testing.T) {
	dir := t.TempDir()
	o := simulateOptions{
		out:      filepath.Join(dir, "events.jsonl.lz4"),
		truth:    filepath.Join(dir, "truth.jsonl"),
		events:   4,
		geometry: "wire",
		sim:      simulate.DefaultConfig(),
	}
	o.sim.MaxDrift = 0.5
	n, err := simulateEvents(o)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	r, err := eventio.Open(o.out)
	require.NoError(t, err)
	defer r.Close()
	for i := 0; i < 4; i++ {
		ev, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, int64(i), ev.Number)
		assert.NotEmpty(t, ev.Hits)
	}
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)

	truth, err := os.ReadFile(o.truth)
	require.NoError(t, err)
	assert.Equal(t, 4, bytes.Count(truth, []byte("\n")))

	o.geometry = "spiral"
	_, err = simulateEvents(o)
	assert.Error(t, err)
}

func TestRunSearch_AllSinks(t *testing.T) {
	require.NoError(t, configureLogging(io.Discard, "quiet"))
	in := writeEvents(t, 5)
	dir := t.TempDir()
	mr := miniredis.RunT(t)

	o := runOptions{
		in:          in,
		out:         filepath.Join(dir, "records.jsonl"),
		workers:     2,
		db:          filepath.Join(dir, "results.db"),
		redisAddr:   mr.Addr(),
		stream:      "test:results",
		plots:       filepath.Join(dir, "plots"),
		plotFormats: []string{"raw"},
		traces:      filepath.Join(dir, "traces"),
	}
	sum, err := runSearch(context.Background(), o, config.EmptyTuningConfig())
	require.NoError(t, err)
	assert.Equal(t, int64(5), sum.Events)
	assert.Positive(t, sum.Tracks)
	require.NotEmpty(t, sum.RunID)

	recs := readRecords(t, o.out)
	require.Len(t, recs, 5)
	var tracks int64
	seen := map[int64]bool{}
	for _, rec := range recs {
		seen[rec.Event] = true
		tracks += int64(len(rec.Tracks))
	}
	assert.Len(t, seen, 5)
	assert.Equal(t, sum.Tracks, tracks)

	db, err := sqlite.Open(o.db)
	require.NoError(t, err)
	defer db.Close()
	store := sqlite.NewTrackStore(db.DB)
	run, err := store.GetRun(sum.RunID)
	require.NoError(t, err)
	assert.Equal(t, 5, run.Events)
	assert.Equal(t, config.VariantTrigger, run.Variant)
	n, err := store.CountCandidates(sum.RunID)
	require.NoError(t, err)
	assert.Equal(t, int(sum.Tracks), n)

	pub := publish.New(mr.Addr(), "", 0, publish.WithStream(o.stream))
	defer pub.Close()
	length, err := pub.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), length)

	plots, err := os.ReadDir(o.plots)
	require.NoError(t, err)
	assert.Len(t, plots, 5)
	traces, err := os.ReadDir(o.traces)
	require.NoError(t, err)
	assert.Len(t, traces, 5)
}

func TestRunSearch_Limit(t *testing.T) {
	require.NoError(t, configureLogging(io.Discard, "quiet"))
	in := writeEvents(t, 6)
	o := runOptions{in: in, out: filepath.Join(t.TempDir(), "records.jsonl"), workers: 3, limit: 2}
	sum, err := runSearch(context.Background(), o, config.EmptyTuningConfig())
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.Events)
	assert.Empty(t, sum.RunID)
	assert.Len(t, readRecords(t, o.out), 2)
}

func TestRunSearch_Errors(t *testing.T) {
	require.NoError(t, configureLogging(io.Discard, "quiet"))
	_, err := runSearch(context.Background(), runOptions{in: filepath.Join(t.TempDir(), "missing.jsonl")}, config.EmptyTuningConfig())
	assert.Error(t, err)

	bad := -1
	tc := config.EmptyTuningConfig()
	tc.NCellsPhi = &bad
	_, err = runSearch(context.Background(), runOptions{in: writeEvents(t, 1)}, tc)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = runSearch(ctx, runOptions{in: writeEvents(t, 3), workers: 1}, config.EmptyTuningConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlotEvent(t *testing.T) {
	require.NoError(t, configureLogging(io.Discard, "quiet"))
	in := writeEvents(t, 4)
	dir := t.TempDir()

	res, err := plotEvent(context.Background(), config.EmptyTuningConfig(), in, dir, 2, []string{"raw", "html"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Event)
	require.NotNil(t, res.Plane)
	assert.FileExists(t, filepath.Join(dir, "event_000002_raw.png"))
	assert.FileExists(t, filepath.Join(dir, "event_000002.html"))

	_, err = plotEvent(context.Background(), config.EmptyTuningConfig(), in, dir, 99, nil)
	assert.Error(t, err)
}

func TestShow(t *testing.T) {
	require.NoError(t, configureLogging(io.Discard, "quiet"))
	in := writeEvents(t, 3)
	dir := t.TempDir()
	mr := miniredis.RunT(t)
	o := runOptions{
		in:        in,
		out:       filepath.Join(dir, "records.jsonl"),
		workers:   1,
		db:        filepath.Join(dir, "results.db"),
		redisAddr: mr.Addr(),
		stream:    publish.DefaultStream,
	}
	sum, err := runSearch(context.Background(), o, config.EmptyTuningConfig())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, showRecords(&buf, o.out))
	assert.Contains(t, buf.String(), "EVENT")
	lines := 1
	for _, rec := range readRecords(t, o.out) {
		lines += max(1, len(rec.Tracks))
	}
	assert.Equal(t, lines, bytes.Count(buf.Bytes(), []byte("\n")))

	buf.Reset()
	require.NoError(t, showDatabase(&buf, o.db, "", 0))
	assert.Contains(t, buf.String(), sum.RunID)

	buf.Reset()
	require.NoError(t, showDatabase(&buf, o.db, sum.RunID, 0))
	assert.Contains(t, buf.String(), "PARAMS")

	pub := publish.New(mr.Addr(), "", 0)
	defer pub.Close()
	buf.Reset()
	require.NoError(t, showStream(context.Background(), &buf, pub, "", 10))
	assert.Contains(t, buf.String(), "-0")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs([]string{"version", "--log-level", "quiet"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "houghfind version dev")
}
