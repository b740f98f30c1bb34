package pipeline

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/banshee-data/houghtrack/internal/config"
	"github.com/banshee-data/houghtrack/internal/hough/l1axes"
	"github.com/banshee-data/houghtrack/internal/hough/l2hits"
	"github.com/banshee-data/houghtrack/internal/hough/l3tree"
	"github.com/banshee-data/houghtrack/internal/hough/l4peaks"
	"github.com/banshee-data/houghtrack/internal/hough/l5refine"
)

// maxDerivedLevels bounds the search for a max level that matches an
// explicit division table.
const maxDerivedLevels = 32

// ConfigFromTuning builds the search configuration of the tuning variant.
//
//	trigger:  axis 0 track azimuth in [-pi, pi], axis 1 half curvature,
//	          sine projection
//	legendre: axis 0 theta in [0, pi], axis 1 conformal r, drift circle
//	          projection
//	generic:  point projection over axis_ranges
func ConfigFromTuning(tc *config.TuningConfig) (Config, error) {
	if err := tc.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	ranges := defaultRanges(tc)
	for i, r := range tc.AxisRanges {
		if i < len(ranges) {
			ranges[i] = r
		}
	}
	cells := []int{tc.GetNCellsPhi(), tc.GetNCellsR()}
	axes := make([]l1axes.Axis, len(ranges))
	for i, r := range ranges {
		bs, err := l1axes.ConstructArray(r[0], r[1], cells[i], tc.GetBinWidth(), tc.GetOverlap())
		if err != nil {
			return Config{}, fmt.Errorf("%w: axis %d: %w", ErrInvalidConfig, i, err)
		}
		axes[i] = bs
	}

	table, maxLevel, err := divisionTable(tc, cells)
	if err != nil {
		return Config{}, err
	}
	div, err := l1axes.NewBoxDivision(axes, table, maxLevel)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	cfg := Config{
		Divider: div,
		Acceptance: l2hits.Acceptance{
			MinWeight:        tc.GetMinHits(),
			RequireInnermost: tc.GetRequireInnermost(),
			Innermost:        0,
			MinHitsShort:     tc.GetMinHitsShort(),
			ShortStrata:      tc.GetShortStrata(),
		},
	}
	switch tc.GetVariant() {
	case config.VariantTrigger:
		cfg.Projection = l2hits.SineProjection{RejectCurlBack: tc.GetRejectCurlBack()}
	case config.VariantLegendre:
		cfg.Projection = l2hits.LegendreProjection{}
	default:
		cfg.Projection = l2hits.PointProjection{}
	}
	switch tc.GetStorePlane() {
	case "accepted":
		cfg.Plane = l3tree.PlaneAccepted
	case "full":
		cfg.Plane = l3tree.PlaneFull
	}

	connect := l4peaks.Connectivity(tc.GetConnect())
	if tc.GetPeakStrategy() == "pattern" {
		cfg.Extractor = l4peaks.PatternClustering{
			ClusterSizeX:            tc.GetClusterSizeX(),
			ClusterSizeY:            tc.GetClusterSizeY(),
			Connect:                 connect,
			MinCells:                tc.GetMinCells(),
			WrapX:                   tc.GetWrapPhi(),
			HitRelationsFromCorners: tc.GetHitRelationsFromCorners(),
			SelectPerStratum:        tc.GetSelectPerStratum(),
		}
	} else {
		center := l4peaks.CenterCentroid
		if tc.GetCenter() == "peak" {
			center = l4peaks.CenterPeak
		}
		cfg.Extractor = l4peaks.ConnectedRegions{
			Connect:          connect,
			OnlyLocalMax:     tc.GetOnlyLocalMax(),
			MinCells:         tc.GetMinCells(),
			WrapX:            tc.GetWrapPhi(),
			Center:           center,
			Exclusive:        tc.GetExclusive(),
			SelectPerStratum: tc.GetSelectPerStratum(),
		}
	}

	if tc.GetRefine() {
		var fitter l5refine.Fitter = l5refine.Karimaki{Sigma: tc.GetHitSigma()}
		if tc.GetFitMethod() == "algebraic" {
			fitter = l5refine.Algebraic{Sigma: tc.GetHitSigma()}
		}
		ref, err := l5refine.NewRefiner(l5refine.Config{
			OutlierFactors:      tc.GetOutlierFactors(),
			ResidualFloor:       tc.GetResidualFloor(),
			MinHits:             tc.GetMinCandidateHits(),
			MergeOverlap:        tc.GetMergeOverlap(),
			MinMergeProbability: tc.GetMinMergeProbability(),
			MinMergeHits:        tc.GetMinMergeHits(),
			LeftoverFactor:      tc.GetLeftoverFactor(),
		}, fitter)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		cfg.Refiner = ref
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaultRanges(tc *config.TuningConfig) [][2]float64 {
	maxR, shift := tc.GetMaxR(), tc.GetShiftR()
	r := [2]float64{shift - maxR, shift + maxR}
	switch tc.GetVariant() {
	case config.VariantTrigger:
		return [][2]float64{{-math.Pi, math.Pi}, r}
	case config.VariantLegendre:
		return [][2]float64{{0, math.Pi}, r}
	default:
		return [][2]float64{{0, 1}, r}
	}
}

// divisionTable returns the division rows and the max level. Without an
// explicit table every axis is halved until it reaches its cell count.
func divisionTable(tc *config.TuningConfig, cells []int) ([][]int, int, error) {
	if len(tc.Divisions) > 0 {
		maxLevel := tc.GetMaxLevel()
		if maxLevel == 0 {
			var ok bool
			if maxLevel, ok = levelsFor(tc.Divisions, cells); !ok {
				return nil, 0, fmt.Errorf("%w: divisions %v never reach %v cells", ErrInvalidConfig, tc.Divisions, cells)
			}
		}
		return tc.Divisions, maxLevel, nil
	}

	levels := make([]int, len(cells))
	maxLevel := 0
	for i, n := range cells {
		levels[i] = bits.TrailingZeros(uint(n))
		maxLevel = max(maxLevel, levels[i])
	}
	if tc.MaxLevel != nil && tc.GetMaxLevel() != maxLevel {
		return nil, 0, fmt.Errorf("%w: max_level %d does not match halving to %v cells (%d levels)",
			ErrInvalidConfig, tc.GetMaxLevel(), cells, maxLevel)
	}
	table := make([][]int, max(maxLevel, 1))
	for l := range table {
		row := make([]int, len(cells))
		for i := range cells {
			row[i] = 1
			if l < levels[i] {
				row[i] = 2
			}
		}
		table[l] = row
	}
	return table, maxLevel, nil
}

// levelsFor finds the level at which the table (last row repeating)
// produces exactly the requested cells on every axis.
func levelsFor(table [][]int, cells []int) (int, bool) {
	product := make([]int, len(cells))
	for i := range product {
		product[i] = 1
	}
	for l := 0; l < maxDerivedLevels; l++ {
		row := table[min(l, len(table)-1)]
		done := true
		for i := range cells {
			product[i] *= row[i]
			if product[i] > cells[i] {
				return 0, false
			}
			done = done && product[i] == cells[i]
		}
		if done {
			return l + 1, true
		}
	}
	return 0, false
}
