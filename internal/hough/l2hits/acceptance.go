package l2hits

import "math/bits"

// Acceptance decides whether a node or leaf with the given weight and
// stratum mask can hold a candidate. Every rule is monotone under hit
// subsets, so a rejected node can be pruned with its whole subtree.
type Acceptance struct {
	MinWeight float64

	// RequireInnermost rejects nodes without a hit in the Innermost stratum
	// unless the short-track rule accepts them.
	RequireInnermost bool
	Innermost        int

	// MinHitsShort accepts a node whose hits cover the first MinHitsShort
	// entries of ShortStrata without a gap. Zero disables the rule.
	MinHitsShort int
	ShortStrata  []int
}

// Accept reports whether a node passes.
func (a Acceptance) Accept(weight float64, strata uint64) bool {
	full := weight >= a.MinWeight
	if a.RequireInnermost && strata&(1<<uint(a.Innermost)) == 0 {
		full = false
	}
	return full || a.shortTrack(strata)
}

func (a Acceptance) shortTrack(strata uint64) bool {
	if a.MinHitsShort <= 0 {
		return false
	}
	n := 0
	for _, s := range a.ShortStrata {
		if strata&(1<<uint(s)) == 0 {
			break
		}
		n++
	}
	return n >= a.MinHitsShort
}

// CountStrata returns the number of distinct strata in the mask.
func CountStrata(strata uint64) int { return bits.OnesCount64(strata) }
