package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/houghtrack/internal/hough/eventio"
	"github.com/banshee-data/houghtrack/internal/hough/pipeline"
	"github.com/banshee-data/houghtrack/internal/timeutil"
)

// ErrRunNotFound is returned for operations on an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Run is one search over an event stream.
type Run struct {
	RunID      string          `json:"run_id"`
	Variant    string          `json:"variant"`
	ConfigJSON json.RawMessage `json:"config_json,omitempty"`
	StartedAt  int64           `json:"started_at"`
	FinishedAt int64           `json:"finished_at,omitempty"`
	Events     int             `json:"events"`
}

// Candidate is a stored candidate or refined track.
type Candidate struct {
	CandidateID int64               `json:"candidate_id"`
	RunID       string              `json:"run_id"`
	Event       int64               `json:"event"`
	Index       int                 `json:"index"`
	Track       eventio.TrackRecord `json:"track"`
}

// TrackStore provides persistence for runs and candidates.
type TrackStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewTrackStore creates a new TrackStore on the wall clock.
func NewTrackStore(db *sql.DB) *TrackStore {
	return &TrackStore{db: db, clock: timeutil.RealClock{}}
}

// SetClock replaces the clock used for run timestamps and busy retries.
func (s *TrackStore) SetClock(c timeutil.Clock) { s.clock = c }

// InsertRun persists a new run. If RunID is empty, a UUID is generated.
func (s *TrackStore) InsertRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.StartedAt == 0 {
		run.StartedAt = s.clock.Now().UnixNano()
	}
	var cfg interface{}
	if len(run.ConfigJSON) > 0 {
		cfg = string(run.ConfigJSON)
	}
	return retryOnBusy(s.clock, func() error {
		_, err := s.db.Exec(`
			INSERT INTO hough_runs (run_id, variant, config_json, started_at, events)
			VALUES (?, ?, ?, ?, 0)`,
			run.RunID, run.Variant, cfg, run.StartedAt,
		)
		return err
	})
}

// FinishRun stamps the run as complete with its event count.
func (s *TrackStore) FinishRun(runID string, events int) error {
	return retryOnBusy(s.clock, func() error {
		result, err := s.db.Exec(`UPDATE hough_runs SET finished_at = ?, events = ? WHERE run_id = ?`,
			s.clock.Now().UnixNano(), events, runID)
		if err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil
	})
}

// GetRun returns a single run by ID.
func (s *TrackStore) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, variant, config_json, started_at, finished_at, events
		FROM hough_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return r, err
}

// ListRuns returns every run, newest first.
func (s *TrackStore) ListRuns() ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, variant, config_json, started_at, finished_at, events
		FROM hough_runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and, through the foreign keys, its candidates.
func (s *TrackStore) DeleteRun(runID string) error {
	return retryOnBusy(s.clock, func() error {
		result, err := s.db.Exec(`DELETE FROM hough_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var r Run
	var cfg sql.NullString
	var finished sql.NullInt64
	if err := sc.Scan(&r.RunID, &r.Variant, &cfg, &r.StartedAt, &finished, &r.Events); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan run row: %w", err)
	}
	if cfg.Valid {
		r.ConfigJSON = json.RawMessage(cfg.String)
	}
	r.FinishedAt = finished.Int64
	return &r, nil
}

// InsertRecord stores every track of one event in a single transaction.
func (s *TrackStore) InsertRecord(ctx context.Context, runID string, rec eventio.Record) error {
	return retryOnBusy(s.clock, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		for i, tr := range rec.Tracks {
			if err := insertTrack(ctx, tx, runID, rec.Event, i, tr); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func insertTrack(ctx context.Context, tx *sql.Tx, runID string, event int64, idx int, tr eventio.TrackRecord) error {
	var p [2]float64
	var lo, hi [2]float64
	copy(p[:], tr.Params)
	copy(lo[:], tr.Lower)
	copy(hi[:], tr.Upper)

	var phi0, curv, d0, chi2, prob sql.NullFloat64
	var ndf, charge sql.NullInt64
	if f := tr.Fit; f != nil {
		phi0 = sql.NullFloat64{Float64: f.Phi0, Valid: true}
		curv = sql.NullFloat64{Float64: f.Curvature, Valid: true}
		d0 = sql.NullFloat64{Float64: f.D0, Valid: true}
		chi2 = sql.NullFloat64{Float64: f.Chi2, Valid: true}
		prob = sql.NullFloat64{Float64: f.Probability, Valid: true}
		ndf = sql.NullInt64{Int64: int64(f.NDF), Valid: true}
		charge = sql.NullInt64{Int64: int64(f.Charge), Valid: true}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO hough_candidates (
			run_id, event, idx, param0, param1, lower0, upper0, lower1, upper1,
			cells, weight, refined, phi0, curvature, d0, chi2, ndf, probability, charge
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, event, idx, p[0], p[1], lo[0], hi[0], lo[1], hi[1],
		tr.Cells, tr.Weight, tr.Fit != nil, phi0, curv, d0, chi2, ndf, prob, charge,
	)
	if err != nil {
		return fmt.Errorf("insert candidate: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("candidate id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO hough_candidate_hits (candidate_id, hit_id, secondary) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare hit insert: %w", err)
	}
	defer stmt.Close()
	for _, h := range tr.HitIDs {
		if _, err := stmt.ExecContext(ctx, id, int64(h), false); err != nil {
			return fmt.Errorf("insert hit %d: %w", h, err)
		}
	}
	for _, h := range tr.Secondary {
		if _, err := stmt.ExecContext(ctx, id, int64(h), true); err != nil {
			return fmt.Errorf("insert secondary hit %d: %w", h, err)
		}
	}
	return nil
}

// ListCandidates returns the candidates of one event in extraction order.
func (s *TrackStore) ListCandidates(runID string, event int64) ([]*Candidate, error) {
	rows, err := s.db.Query(`
		SELECT candidate_id, run_id, event, idx, param0, param1, lower0, upper0, lower1, upper1,
		       cells, weight, refined, phi0, curvature, d0, chi2, ndf, probability, charge
		FROM hough_candidates
		WHERE run_id = ? AND event = ?
		ORDER BY idx`, runID, event)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	var cands []*Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		cands = append(cands, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, c := range cands {
		if err := s.loadHits(c); err != nil {
			return nil, err
		}
	}
	return cands, nil
}

// CountCandidates returns the number of stored candidates of a run.
func (s *TrackStore) CountCandidates(runID string) (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM hough_candidates WHERE run_id = ?`, runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count candidates: %w", err)
	}
	return n, nil
}

func scanCandidate(rows *sql.Rows) (*Candidate, error) {
	var c Candidate
	var refined bool
	var phi0, curv, d0, chi2, prob sql.NullFloat64
	var ndf, charge sql.NullInt64
	c.Track.Params = make([]float64, 2)
	c.Track.Lower = make([]float64, 2)
	c.Track.Upper = make([]float64, 2)
	err := rows.Scan(
		&c.CandidateID, &c.RunID, &c.Event, &c.Index,
		&c.Track.Params[0], &c.Track.Params[1],
		&c.Track.Lower[0], &c.Track.Upper[0], &c.Track.Lower[1], &c.Track.Upper[1],
		&c.Track.Cells, &c.Track.Weight, &refined,
		&phi0, &curv, &d0, &chi2, &ndf, &prob, &charge,
	)
	if err != nil {
		return nil, fmt.Errorf("scan candidate row: %w", err)
	}
	if refined {
		c.Track.Fit = &eventio.FitRecord{
			Phi0:        phi0.Float64,
			Curvature:   curv.Float64,
			D0:          d0.Float64,
			Chi2:        chi2.Float64,
			NDF:         int(ndf.Int64),
			Probability: prob.Float64,
			Charge:      int(charge.Int64),
		}
	}
	return &c, nil
}

func (s *TrackStore) loadHits(c *Candidate) error {
	rows, err := s.db.Query(`
		SELECT hit_id, secondary FROM hough_candidate_hits
		WHERE candidate_id = ? ORDER BY hit_id`, c.CandidateID)
	if err != nil {
		return fmt.Errorf("query candidate hits: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var secondary bool
		if err := rows.Scan(&id, &secondary); err != nil {
			return fmt.Errorf("scan candidate hit: %w", err)
		}
		if secondary {
			c.Track.Secondary = append(c.Track.Secondary, uint64(id))
		} else {
			c.Track.HitIDs = append(c.Track.HitIDs, uint64(id))
		}
	}
	return rows.Err()
}

// RunSink stores every processed event of one run.
type RunSink struct {
	store *TrackStore
	runID string
}

// NewRunSink returns a sink writing to runID.
func NewRunSink(store *TrackStore, runID string) *RunSink {
	return &RunSink{store: store, runID: runID}
}

func (s *RunSink) Write(ctx context.Context, res *pipeline.Result) error {
	return s.store.InsertRecord(ctx, s.runID, eventio.NewRecord(res))
}
