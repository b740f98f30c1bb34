package eventio

import (
	"context"
	"sync"

	"github.com/banshee-data/houghtrack/internal/hough/pipeline"
)

// Record is the serialised outcome of one event.
type Record struct {
	Event   int64         `json:"event"`
	Hits    int           `json:"hits"`
	Leaves  int           `json:"leaves"`
	Refined bool          `json:"refined"`
	Tracks  []TrackRecord `json:"tracks"`
}

// TrackRecord is one candidate or refined track. Hits are referred to by
// their ID.
type TrackRecord struct {
	Params    []float64  `json:"params"`
	Lower     []float64  `json:"lower"`
	Upper     []float64  `json:"upper"`
	Cells     int        `json:"cells"`
	Weight    float64    `json:"weight"`
	HitIDs    []uint64   `json:"hit_ids"`
	Secondary []uint64   `json:"secondary_ids,omitempty"`
	Fit       *FitRecord `json:"fit,omitempty"`
}

// FitRecord holds the fitted helix parameters of a refined track.
type FitRecord struct {
	Phi0        float64 `json:"phi0"`
	Curvature   float64 `json:"curvature"`
	D0          float64 `json:"d0"`
	Line        bool    `json:"line,omitempty"`
	Chi2        float64 `json:"chi2"`
	NDF         int     `json:"ndf"`
	Probability float64 `json:"probability"`
	Charge      int     `json:"charge"`
}

// NewRecord converts a pipeline result.
func NewRecord(res *pipeline.Result) Record {
	rec := Record{
		Event:   res.Event,
		Hits:    len(res.Hits),
		Leaves:  len(res.Leaves),
		Refined: res.Refined,
		Tracks:  make([]TrackRecord, 0, len(res.Candidates)),
	}
	ids := func(idx []int) []uint64 {
		if len(idx) == 0 {
			return nil
		}
		out := make([]uint64, len(idx))
		for i, j := range idx {
			out[i] = res.Hits[j].ID
		}
		return out
	}
	for _, tr := range res.Output() {
		n := tr.Box.N
		t := TrackRecord{
			Params:    append([]float64(nil), tr.Params[:n]...),
			Lower:     make([]float64, n),
			Upper:     make([]float64, n),
			Cells:     len(tr.Cells),
			Weight:    tr.Weight,
			HitIDs:    ids(tr.Hits),
			Secondary: ids(tr.Secondary),
		}
		for d := 0; d < n; d++ {
			t.Lower[d], t.Upper[d] = tr.Box.Lower(d), tr.Box.Upper(d)
		}
		if res.Refined {
			t.Fit = &FitRecord{
				Phi0:        tr.Fit.Phi0,
				Curvature:   tr.Fit.Curvature,
				D0:          tr.Fit.D0,
				Line:        tr.Fit.Line,
				Chi2:        tr.Fit.Chi2,
				NDF:         tr.Fit.NDF,
				Probability: tr.Fit.Probability,
				Charge:      tr.Charge,
			}
		}
		rec.Tracks = append(rec.Tracks, t)
	}
	return rec
}

// RecordSink appends a Record per event to a Writer. It may be shared by
// several finders.
type RecordSink struct {
	mu sync.Mutex
	w  *Writer
}

func NewRecordSink(w *Writer) *RecordSink { return &RecordSink{w: w} }

func (s *RecordSink) Write(ctx context.Context, res *pipeline.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec := NewRecord(res)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.WriteRecord(rec)
}
