package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/houghtrack/internal/hough/eventio"
	"github.com/banshee-data/houghtrack/internal/hough/publish"
	"github.com/banshee-data/houghtrack/internal/hough/storage/sqlite"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print stored search results",
	Long: `Prints results from one source: a record file (--in), a results
database (--db, listing runs or the candidates of --run and --event) or a
Redis stream (--redis).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		in, _ := f.GetString("in")
		dbPath, _ := f.GetString("db")
		addr, _ := f.GetString("redis")
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		defer w.Flush()

		switch {
		case in != "":
			return showRecords(w, in)
		case dbPath != "":
			runID, _ := f.GetString("run")
			event, _ := f.GetInt64("event")
			return showDatabase(w, dbPath, runID, event)
		case addr != "":
			stream, _ := f.GetString("stream")
			after, _ := f.GetString("after")
			count, _ := f.GetInt64("count")
			pub := publish.New(addr, "", 0, publish.WithStream(stream))
			defer pub.Close()
			return showStream(cmd.Context(), w, pub, after, count)
		}
		return errors.New("one of --in, --db or --redis is required")
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	f := showCmd.Flags()
	f.StringP("in", "i", "", "Record file written by run --out")
	f.String("db", "", "SQLite results database")
	f.String("run", "", "Run ID; without it the runs are listed")
	f.Int64("event", 0, "Event number within --run")
	f.String("redis", "", "Redis address")
	f.String("stream", publish.DefaultStream, "Redis stream key")
	f.String("after", "", "Read entries after this stream ID")
	f.Int64("count", 100, "Maximum stream entries")
}

func showRecords(w io.Writer, path string) error {
	r, err := eventio.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()
	fmt.Fprintln(w, "EVENT\tHITS\tLEAVES\tTRACK\tPARAMS\tWEIGHT\tHITS USED\tCHARGE\tPROB")
	for {
		rec, err := r.NextRecord()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		printRecord(w, "", rec)
	}
}

func printRecord(w io.Writer, prefix string, rec eventio.Record) {
	if len(rec.Tracks) == 0 {
		fmt.Fprintf(w, "%s%d\t%d\t%d\t-\t\t\t\t\t\n", prefix, rec.Event, rec.Hits, rec.Leaves)
		return
	}
	for i, tr := range rec.Tracks {
		printTrack(w, fmt.Sprintf("%s%d\t%d\t%d\t%d", prefix, rec.Event, rec.Hits, rec.Leaves, i), tr)
	}
}

func printTrack(w io.Writer, lead string, tr eventio.TrackRecord) {
	charge, prob := "-", "-"
	if tr.Fit != nil {
		charge = fmt.Sprintf("%+d", tr.Fit.Charge)
		prob = fmt.Sprintf("%.3f", tr.Fit.Probability)
	}
	fmt.Fprintf(w, "%s\t%.4g\t%.1f\t%d\t%s\t%s\n", lead, tr.Params, tr.Weight, len(tr.HitIDs), charge, prob)
}

func showDatabase(w io.Writer, path, runID string, event int64) error {
	db, err := sqlite.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()
	store := sqlite.NewTrackStore(db.DB)

	if runID == "" {
		runs, err := store.ListRuns()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "RUN\tVARIANT\tSTARTED\tEVENTS\tCANDIDATES")
		for _, run := range runs {
			n, err := store.CountCandidates(run.RunID)
			if err != nil {
				return err
			}
			started := time.Unix(0, run.StartedAt).Format(time.RFC3339)
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", run.RunID, run.Variant, started, run.Events, n)
		}
		return nil
	}

	cands, err := store.ListCandidates(runID, event)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "EVENT\tTRACK\tPARAMS\tWEIGHT\tHITS USED\tCHARGE\tPROB")
	for _, c := range cands {
		printTrack(w, fmt.Sprintf("%d\t%d", c.Event, c.Index), c.Track)
	}
	return nil
}

func showStream(ctx context.Context, w io.Writer, pub *publish.Publisher, after string, count int64) error {
	entries, err := pub.Range(ctx, after, count)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "ID\tEVENT\tHITS\tLEAVES\tTRACK\tPARAMS\tWEIGHT\tHITS USED\tCHARGE\tPROB")
	for _, e := range entries {
		printRecord(w, e.ID+"\t", e.Record)
	}
	return nil
}
