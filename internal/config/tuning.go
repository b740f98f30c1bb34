package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Search variants.
const (
	VariantTrigger  = "trigger"
	VariantLegendre = "legendre"
	VariantGeneric  = "generic"
)

// TuningConfig represents the root configuration for the hough search.
// Every field is optional; the Get* methods supply the defaults, some of
// which depend on the variant.
type TuningConfig struct {
	Variant *string `json:"variant,omitempty" yaml:"variant,omitempty"`

	// Parameter space
	NCellsPhi  *int         `json:"n_cells_phi,omitempty" yaml:"n_cells_phi,omitempty"`
	NCellsR    *int         `json:"n_cells_r,omitempty" yaml:"n_cells_r,omitempty"`
	MaxLevel   *int         `json:"max_level,omitempty" yaml:"max_level,omitempty"`
	Divisions  [][]int      `json:"divisions,omitempty" yaml:"divisions,omitempty"`
	MaxR       *float64     `json:"max_r,omitempty" yaml:"max_r,omitempty"`
	ShiftR     *float64     `json:"shift_r,omitempty" yaml:"shift_r,omitempty"`
	BinWidth   *int         `json:"bin_width,omitempty" yaml:"bin_width,omitempty"`
	Overlap    *int         `json:"overlap,omitempty" yaml:"overlap,omitempty"`
	AxisRanges [][2]float64 `json:"axis_ranges,omitempty" yaml:"axis_ranges,omitempty"`

	// Node acceptance
	MinHits          *float64 `json:"min_hits,omitempty" yaml:"min_hits,omitempty"`
	MinHitsShort     *int     `json:"min_hits_short,omitempty" yaml:"min_hits_short,omitempty"`
	ShortStrata      []int    `json:"short_strata,omitempty" yaml:"short_strata,omitempty"`
	RequireInnermost *bool    `json:"require_innermost,omitempty" yaml:"require_innermost,omitempty"`
	RejectCurlBack   *bool    `json:"reject_curl_back,omitempty" yaml:"reject_curl_back,omitempty"`
	StorePlane       *string  `json:"store_plane,omitempty" yaml:"store_plane,omitempty"` // off, accepted, full

	// Peak extraction
	PeakStrategy            *string `json:"peak_strategy,omitempty" yaml:"peak_strategy,omitempty"` // regions, pattern
	Connect                 *int    `json:"connect,omitempty" yaml:"connect,omitempty"`
	OnlyLocalMax            *bool   `json:"only_local_max,omitempty" yaml:"only_local_max,omitempty"`
	MinCells                *int    `json:"min_cells,omitempty" yaml:"min_cells,omitempty"`
	WrapPhi                 *bool   `json:"wrap_phi,omitempty" yaml:"wrap_phi,omitempty"`
	Center                  *string `json:"center,omitempty" yaml:"center,omitempty"` // centroid, peak
	Exclusive               *bool   `json:"exclusive,omitempty" yaml:"exclusive,omitempty"`
	SelectPerStratum        *bool   `json:"select_per_stratum,omitempty" yaml:"select_per_stratum,omitempty"`
	ClusterSizeX            *int    `json:"cluster_size_x,omitempty" yaml:"cluster_size_x,omitempty"`
	ClusterSizeY            *int    `json:"cluster_size_y,omitempty" yaml:"cluster_size_y,omitempty"`
	HitRelationsFromCorners *bool   `json:"hit_relations_from_corners,omitempty" yaml:"hit_relations_from_corners,omitempty"`

	// Candidate refinement
	Refine              *bool     `json:"refine,omitempty" yaml:"refine,omitempty"`
	FitMethod           *string   `json:"fit_method,omitempty" yaml:"fit_method,omitempty"` // karimaki, algebraic
	HitSigma            *float64  `json:"hit_sigma,omitempty" yaml:"hit_sigma,omitempty"`
	OutlierFactors      []float64 `json:"outlier_factors,omitempty" yaml:"outlier_factors,omitempty"`
	ResidualFloor       *float64  `json:"residual_floor,omitempty" yaml:"residual_floor,omitempty"`
	MinCandidateHits    *int      `json:"min_candidate_hits,omitempty" yaml:"min_candidate_hits,omitempty"`
	MergeOverlap        *float64  `json:"merge_overlap,omitempty" yaml:"merge_overlap,omitempty"`
	MinMergeProbability *float64  `json:"min_merge_probability,omitempty" yaml:"min_merge_probability,omitempty"`
	MinMergeHits        *int      `json:"min_merge_hits,omitempty" yaml:"min_merge_hits,omitempty"`
	LeftoverFactor      *float64  `json:"leftover_factor,omitempty" yaml:"leftover_factor,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON or YAML file.
// The file must have a .json, .yaml or .yml extension and be under the max
// file size. Fields omitted from the file fall back to the Get* defaults,
// so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,          // from internal/config/
		"../../../" + DefaultConfigPath,       // from internal/hough/pipeline/
		"../../../../" + DefaultConfigPath,    // deeper packages
		"../../../../../" + DefaultConfigPath, // even deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func isPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	switch v := c.GetVariant(); v {
	case VariantTrigger, VariantLegendre, VariantGeneric:
	default:
		return fmt.Errorf("variant must be trigger, legendre or generic, got %q", v)
	}

	for name, n := range map[string]*int{"n_cells_phi": c.NCellsPhi, "n_cells_r": c.NCellsR} {
		if n != nil && *n < 1 {
			return fmt.Errorf("%s must be positive, got %d", name, *n)
		}
	}
	if len(c.Divisions) == 0 {
		// Without an explicit table the cells are reached by halving.
		if !isPowerOfTwo(c.GetNCellsPhi()) || !isPowerOfTwo(c.GetNCellsR()) {
			return fmt.Errorf("n_cells_phi (%d) and n_cells_r (%d) must be powers of two without a divisions table",
				c.GetNCellsPhi(), c.GetNCellsR())
		}
	}
	for l, row := range c.Divisions {
		if len(row) != 2 {
			return fmt.Errorf("divisions row %d must have 2 entries, got %d", l, len(row))
		}
	}
	if c.MaxLevel != nil && *c.MaxLevel < 0 {
		return fmt.Errorf("max_level must be non-negative, got %d", *c.MaxLevel)
	}
	if c.MaxR != nil && *c.MaxR <= 0 {
		return fmt.Errorf("max_r must be positive, got %f", *c.MaxR)
	}
	if c.GetOverlap() < 0 || c.GetOverlap() >= c.GetBinWidth() {
		return fmt.Errorf("overlap must be in [0, bin_width), got %d with bin_width %d", c.GetOverlap(), c.GetBinWidth())
	}
	for i, r := range c.AxisRanges {
		if !(r[0] < r[1]) {
			return fmt.Errorf("axis_ranges[%d] must have lower < upper, got %v", i, r)
		}
	}

	if c.GetMinHits() < 0 {
		return fmt.Errorf("min_hits must be non-negative, got %f", c.GetMinHits())
	}
	if c.MinHitsShort != nil && *c.MinHitsShort < 0 {
		return fmt.Errorf("min_hits_short must be non-negative, got %d", *c.MinHitsShort)
	}
	switch p := c.GetStorePlane(); p {
	case "off", "accepted", "full":
	default:
		return fmt.Errorf("store_plane must be off, accepted or full, got %q", p)
	}

	switch s := c.GetPeakStrategy(); s {
	case "regions", "pattern":
	default:
		return fmt.Errorf("peak_strategy must be regions or pattern, got %q", s)
	}
	switch n := c.GetConnect(); n {
	case 4, 6, 8:
	default:
		return fmt.Errorf("connect must be 4, 6 or 8, got %d", n)
	}
	switch m := c.GetCenter(); m {
	case "centroid", "peak":
	default:
		return fmt.Errorf("center must be centroid or peak, got %q", m)
	}
	if c.GetClusterSizeX() < 1 || c.GetClusterSizeY() < 1 {
		return fmt.Errorf("cluster sizes must be positive, got %d x %d", c.GetClusterSizeX(), c.GetClusterSizeY())
	}

	switch m := c.GetFitMethod(); m {
	case "karimaki", "algebraic":
	default:
		return fmt.Errorf("fit_method must be karimaki or algebraic, got %q", m)
	}
	if c.HitSigma != nil && *c.HitSigma <= 0 {
		return fmt.Errorf("hit_sigma must be positive, got %f", *c.HitSigma)
	}
	for i, f := range c.OutlierFactors {
		if f <= 0 {
			return fmt.Errorf("outlier_factors[%d] must be positive, got %f", i, f)
		}
	}
	if c.GetMinCandidateHits() < 3 {
		return fmt.Errorf("min_candidate_hits must be at least 3, got %d", c.GetMinCandidateHits())
	}
	if m := c.GetMergeOverlap(); m < 0 || m > 1 {
		return fmt.Errorf("merge_overlap must be between 0 and 1, got %f", m)
	}
	if p := c.GetMinMergeProbability(); p < 0 || p > 1 {
		return fmt.Errorf("min_merge_probability must be between 0 and 1, got %f", p)
	}
	if n := c.GetMinMergeHits(); n < 0 {
		return fmt.Errorf("min_merge_hits must be non-negative, got %d", n)
	}

	return nil
}

// GetVariant returns the variant or the default (trigger).
func (c *TuningConfig) GetVariant() string {
	if c.Variant == nil || *c.Variant == "" {
		return VariantTrigger
	}
	return *c.Variant
}

// GetNCellsPhi returns the leaf cell count along axis 0.
func (c *TuningConfig) GetNCellsPhi() int {
	if c.NCellsPhi == nil {
		return 64
	}
	return *c.NCellsPhi
}

// GetNCellsR returns the leaf cell count along axis 1.
func (c *TuningConfig) GetNCellsR() int {
	if c.NCellsR == nil {
		return 32
	}
	return *c.NCellsR
}

// GetMaxLevel returns max_level, or 0 when it should be derived from the
// division table.
func (c *TuningConfig) GetMaxLevel() int {
	if c.MaxLevel == nil {
		return 0
	}
	return *c.MaxLevel
}

// GetMaxR returns the half range of axis 1. For the trigger that is the
// largest half-curvature (1/cm), for legendre the largest conformal r.
func (c *TuningConfig) GetMaxR() float64 {
	if c.MaxR != nil {
		return *c.MaxR
	}
	switch c.GetVariant() {
	case VariantTrigger:
		return 0.01 // pt ~ 0.3 GeV in 1.5 T
	case VariantLegendre:
		return 0.02
	default:
		return 1
	}
}

// GetShiftR returns the offset of the axis 1 range centre.
func (c *TuningConfig) GetShiftR() float64 {
	if c.ShiftR == nil {
		return 0
	}
	return *c.ShiftR
}

// GetBinWidth returns the number of bins per leaf.
func (c *TuningConfig) GetBinWidth() int {
	if c.BinWidth == nil {
		return 1
	}
	return *c.BinWidth
}

// GetOverlap returns the number of bins shared by neighbouring leaves.
func (c *TuningConfig) GetOverlap() int {
	if c.Overlap == nil {
		return 0
	}
	return *c.Overlap
}

// GetMinHits returns the minimum node weight.
func (c *TuningConfig) GetMinHits() float64 {
	if c.MinHits != nil {
		return *c.MinHits
	}
	if c.GetVariant() == VariantLegendre {
		return 6
	}
	return 4
}

// GetMinHitsShort returns the short track threshold; 0 disables it.
func (c *TuningConfig) GetMinHitsShort() int {
	if c.MinHitsShort == nil {
		return 0
	}
	return *c.MinHitsShort
}

// GetShortStrata returns the strata checked by the short track rule.
func (c *TuningConfig) GetShortStrata() []int {
	if c.ShortStrata == nil {
		return []int{0, 1, 2, 3}
	}
	return c.ShortStrata
}

// GetRequireInnermost returns require_innermost (default on for the trigger).
func (c *TuningConfig) GetRequireInnermost() bool {
	if c.RequireInnermost == nil {
		return c.GetVariant() == VariantTrigger
	}
	return *c.RequireInnermost
}

// GetRejectCurlBack returns reject_curl_back (default on for the trigger,
// which removes the mirrored peak at phi + pi).
func (c *TuningConfig) GetRejectCurlBack() bool {
	if c.RejectCurlBack == nil {
		return c.GetVariant() == VariantTrigger
	}
	return *c.RejectCurlBack
}

// GetStorePlane returns the occupancy plane mode.
func (c *TuningConfig) GetStorePlane() string {
	if c.StorePlane == nil || *c.StorePlane == "" {
		return "off"
	}
	return *c.StorePlane
}

// GetPeakStrategy returns the peak extraction strategy.
func (c *TuningConfig) GetPeakStrategy() string {
	if c.PeakStrategy == nil || *c.PeakStrategy == "" {
		return "regions"
	}
	return *c.PeakStrategy
}

// GetConnect returns the cell connectivity.
func (c *TuningConfig) GetConnect() int {
	if c.Connect == nil {
		return 6
	}
	return *c.Connect
}

// GetOnlyLocalMax returns only_local_max.
func (c *TuningConfig) GetOnlyLocalMax() bool {
	if c.OnlyLocalMax == nil {
		return false
	}
	return *c.OnlyLocalMax
}

// GetMinCells returns the smallest region size kept.
func (c *TuningConfig) GetMinCells() int {
	if c.MinCells == nil {
		return 1
	}
	return *c.MinCells
}

// GetWrapPhi returns wrap_phi (default on for the trigger).
func (c *TuningConfig) GetWrapPhi() bool {
	if c.WrapPhi == nil {
		return c.GetVariant() == VariantTrigger
	}
	return *c.WrapPhi
}

// GetCenter returns the region centre mode.
func (c *TuningConfig) GetCenter() string {
	if c.Center == nil || *c.Center == "" {
		return "centroid"
	}
	return *c.Center
}

// GetExclusive returns exclusive (default on).
func (c *TuningConfig) GetExclusive() bool {
	if c.Exclusive == nil {
		return true
	}
	return *c.Exclusive
}

// GetSelectPerStratum returns select_per_stratum (default on for the trigger).
func (c *TuningConfig) GetSelectPerStratum() bool {
	if c.SelectPerStratum == nil {
		return c.GetVariant() == VariantTrigger
	}
	return *c.SelectPerStratum
}

// GetClusterSizeX returns the pattern window width in squares.
func (c *TuningConfig) GetClusterSizeX() int {
	if c.ClusterSizeX == nil {
		return 3
	}
	return *c.ClusterSizeX
}

// GetClusterSizeY returns the pattern window height in squares.
func (c *TuningConfig) GetClusterSizeY() int {
	if c.ClusterSizeY == nil {
		return 3
	}
	return *c.ClusterSizeY
}

// GetHitRelationsFromCorners returns hit_relations_from_corners.
func (c *TuningConfig) GetHitRelationsFromCorners() bool {
	if c.HitRelationsFromCorners == nil {
		return false
	}
	return *c.HitRelationsFromCorners
}

// GetRefine returns refine (default on for legendre).
func (c *TuningConfig) GetRefine() bool {
	if c.Refine == nil {
		return c.GetVariant() == VariantLegendre
	}
	return *c.Refine
}

// GetFitMethod returns the circle fit used by refinement.
func (c *TuningConfig) GetFitMethod() string {
	if c.FitMethod == nil || *c.FitMethod == "" {
		return "karimaki"
	}
	return *c.FitMethod
}

// GetHitSigma returns the single hit resolution.
func (c *TuningConfig) GetHitSigma() float64 {
	if c.HitSigma == nil {
		return 0.02
	}
	return *c.HitSigma
}

// GetOutlierFactors returns the outlier rejection passes.
func (c *TuningConfig) GetOutlierFactors() []float64 {
	if c.OutlierFactors == nil {
		return []float64{5, 3, 1, 1}
	}
	return c.OutlierFactors
}

// GetResidualFloor returns the smallest residual tolerance.
func (c *TuningConfig) GetResidualFloor() float64 {
	if c.ResidualFloor == nil {
		return 0.05
	}
	return *c.ResidualFloor
}

// GetMinCandidateHits returns the smallest refined track size.
func (c *TuningConfig) GetMinCandidateHits() int {
	if c.MinCandidateHits == nil {
		return 5
	}
	return *c.MinCandidateHits
}

// GetMergeOverlap returns the shared hit fraction that forces a merge.
func (c *TuningConfig) GetMergeOverlap() float64 {
	if c.MergeOverlap == nil {
		return 0.5
	}
	return *c.MergeOverlap
}

// GetMinMergeProbability returns the combined fit probability needed to merge.
func (c *TuningConfig) GetMinMergeProbability() float64 {
	if c.MinMergeProbability == nil {
		return 0.01
	}
	return *c.MinMergeProbability
}

// GetMinMergeHits returns the smallest combined size of a probability merge.
func (c *TuningConfig) GetMinMergeHits() int {
	if c.MinMergeHits == nil {
		return 15
	}
	return *c.MinMergeHits
}

// GetLeftoverFactor returns the leftover assignment tolerance factor.
func (c *TuningConfig) GetLeftoverFactor() float64 {
	if c.LeftoverFactor == nil {
		return 1
	}
	return *c.LeftoverFactor
}
