package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	if cfg.Variant == nil || *cfg.Variant != VariantTrigger {
		t.Errorf("Expected variant trigger, got %v", cfg.Variant)
	}
	if cfg.NCellsPhi == nil || *cfg.NCellsPhi != 64 {
		t.Errorf("Expected NCellsPhi 64, got %v", cfg.NCellsPhi)
	}
	if got := cfg.GetOutlierFactors(); len(got) != 4 || got[0] != 5 {
		t.Errorf("GetOutlierFactors() = %v, want [5 3 1 1]", got)
	}

	// The defaults file must agree with the Get* fallbacks.
	empty := EmptyTuningConfig()
	if cfg.GetMinHits() != empty.GetMinHits() {
		t.Errorf("min_hits: file %f, fallback %f", cfg.GetMinHits(), empty.GetMinHits())
	}
	if cfg.GetMaxR() != empty.GetMaxR() {
		t.Errorf("max_r: file %f, fallback %f", cfg.GetMaxR(), empty.GetMaxR())
	}
	if cfg.GetConnect() != empty.GetConnect() {
		t.Errorf("connect: file %d, fallback %d", cfg.GetConnect(), empty.GetConnect())
	}
	if cfg.GetExclusive() != empty.GetExclusive() {
		t.Errorf("exclusive: file %v, fallback %v", cfg.GetExclusive(), empty.GetExclusive())
	}
	if cfg.GetMinMergeHits() != empty.GetMinMergeHits() {
		t.Errorf("min_merge_hits: file %d, fallback %d", cfg.GetMinMergeHits(), empty.GetMinMergeHits())
	}
	if cfg.GetSelectPerStratum() != empty.GetSelectPerStratum() {
		t.Errorf("select_per_stratum: file %v, fallback %v", cfg.GetSelectPerStratum(), empty.GetSelectPerStratum())
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "variant": "legendre",
  "n_cells_phi": 128,
  "min_hits": 8,
  "divisions": [[4, 2], [2, 2]],
  "outlier_factors": [4, 2]
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetVariant() != VariantLegendre {
		t.Errorf("GetVariant() = %q, want legendre", cfg.GetVariant())
	}
	if cfg.GetNCellsPhi() != 128 {
		t.Errorf("GetNCellsPhi() = %d, want 128", cfg.GetNCellsPhi())
	}
	if cfg.GetMinHits() != 8 {
		t.Errorf("GetMinHits() = %f, want 8", cfg.GetMinHits())
	}
	if len(cfg.Divisions) != 2 || cfg.Divisions[0][0] != 4 {
		t.Errorf("Divisions = %v", cfg.Divisions)
	}
	// Unset fields fall back to variant dependent defaults.
	if !cfg.GetExclusive() {
		t.Error("legendre should default to exclusive regions")
	}
	if !cfg.GetRefine() {
		t.Error("legendre should default to refinement")
	}
	if cfg.GetWrapPhi() {
		t.Error("legendre should not wrap axis 0 by default")
	}
}

func TestLoadTuningConfigYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tuning.yaml")

	testYAML := `variant: generic
n_cells_phi: 16
n_cells_r: 16
axis_ranges:
  - [0, 1]
  - [-2, 2]
peak_strategy: pattern
cluster_size_x: 2
`
	if err := os.WriteFile(configPath, []byte(testYAML), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.GetVariant() != VariantGeneric {
		t.Errorf("GetVariant() = %q, want generic", cfg.GetVariant())
	}
	if len(cfg.AxisRanges) != 2 || cfg.AxisRanges[1] != [2]float64{-2, 2} {
		t.Errorf("AxisRanges = %v", cfg.AxisRanges)
	}
	if cfg.GetPeakStrategy() != "pattern" || cfg.GetClusterSizeX() != 2 || cfg.GetClusterSizeY() != 3 {
		t.Errorf("pattern settings = %s %d %d", cfg.GetPeakStrategy(), cfg.GetClusterSizeX(), cfg.GetClusterSizeY())
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadTuningConfigBadExtension(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tuning.toml")
	if err := os.WriteFile(configPath, []byte("variant = 'trigger'"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	if _, err := LoadTuningConfig(configPath); err == nil {
		t.Error("Expected error for .toml extension, got nil")
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")

	invalidJSON := `{
  "min_hits": "invalid"
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{name: "empty config is valid", cfg: &TuningConfig{}},
		{name: "unknown variant", cfg: &TuningConfig{Variant: ptrString("kalman")}, wantErr: true},
		{name: "cells not a power of two", cfg: &TuningConfig{NCellsPhi: ptrInt(40)}, wantErr: true},
		{
			name: "cells not a power of two with table",
			cfg:  &TuningConfig{NCellsPhi: ptrInt(40), Divisions: [][]int{{5, 2}, {2, 2}}},
		},
		{name: "short divisions row", cfg: &TuningConfig{Divisions: [][]int{{2}}}, wantErr: true},
		{name: "negative max level", cfg: &TuningConfig{MaxLevel: ptrInt(-1)}, wantErr: true},
		{name: "zero max r", cfg: &TuningConfig{MaxR: ptrFloat64(0)}, wantErr: true},
		{name: "overlap equals width", cfg: &TuningConfig{BinWidth: ptrInt(2), Overlap: ptrInt(2)}, wantErr: true},
		{name: "inverted axis range", cfg: &TuningConfig{AxisRanges: [][2]float64{{1, 0}}}, wantErr: true},
		{name: "negative min hits", cfg: &TuningConfig{MinHits: ptrFloat64(-1)}, wantErr: true},
		{name: "bad plane mode", cfg: &TuningConfig{StorePlane: ptrString("some")}, wantErr: true},
		{name: "bad peak strategy", cfg: &TuningConfig{PeakStrategy: ptrString("dbscan")}, wantErr: true},
		{name: "bad connectivity", cfg: &TuningConfig{Connect: ptrInt(5)}, wantErr: true},
		{name: "bad center", cfg: &TuningConfig{Center: ptrString("median")}, wantErr: true},
		{name: "zero cluster size", cfg: &TuningConfig{ClusterSizeX: ptrInt(0)}, wantErr: true},
		{name: "bad fit method", cfg: &TuningConfig{FitMethod: ptrString("riemann")}, wantErr: true},
		{name: "zero sigma", cfg: &TuningConfig{HitSigma: ptrFloat64(0)}, wantErr: true},
		{name: "zero outlier factor", cfg: &TuningConfig{OutlierFactors: []float64{5, 0}}, wantErr: true},
		{name: "tiny tracks", cfg: &TuningConfig{MinCandidateHits: ptrInt(2)}, wantErr: true},
		{name: "merge overlap above one", cfg: &TuningConfig{MergeOverlap: ptrFloat64(1.5)}, wantErr: true},
		{name: "negative merge probability", cfg: &TuningConfig{MinMergeProbability: ptrFloat64(-0.5)}, wantErr: true},
		{name: "negative merge hits", cfg: &TuningConfig{MinMergeHits: ptrInt(-1)}, wantErr: true},
		{name: "curl back flag", cfg: &TuningConfig{RejectCurlBack: ptrBool(true)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestVariantDefaults(t *testing.T) {
	tests := []struct {
		variant    string
		minHits    float64
		innermost  bool
		perStratum bool
		maxR       float64
		wrapPhi    bool
		exclusive  bool
		refine     bool
	}{
		{VariantTrigger, 4, true, true, 0.01, true, true, false},
		{VariantLegendre, 6, false, false, 0.02, false, true, true},
		{VariantGeneric, 4, false, false, 1, false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.variant, func(t *testing.T) {
			cfg := &TuningConfig{Variant: ptrString(tt.variant)}
			if got := cfg.GetMinHits(); got != tt.minHits {
				t.Errorf("GetMinHits() = %f, want %f", got, tt.minHits)
			}
			if got := cfg.GetRequireInnermost(); got != tt.innermost {
				t.Errorf("GetRequireInnermost() = %v, want %v", got, tt.innermost)
			}
			if got := cfg.GetSelectPerStratum(); got != tt.perStratum {
				t.Errorf("GetSelectPerStratum() = %v, want %v", got, tt.perStratum)
			}
			if got := cfg.GetMaxR(); got != tt.maxR {
				t.Errorf("GetMaxR() = %f, want %f", got, tt.maxR)
			}
			if got := cfg.GetWrapPhi(); got != tt.wrapPhi {
				t.Errorf("GetWrapPhi() = %v, want %v", got, tt.wrapPhi)
			}
			if got := cfg.GetExclusive(); got != tt.exclusive {
				t.Errorf("GetExclusive() = %v, want %v", got, tt.exclusive)
			}
			if got := cfg.GetRefine(); got != tt.refine {
				t.Errorf("GetRefine() = %v, want %v", got, tt.refine)
			}
		})
	}
}
