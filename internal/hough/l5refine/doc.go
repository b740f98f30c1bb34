// Package l5refine owns Layer 5 (Refine) of the hough search model.
//
// Responsibilities: circle and line fits over candidate hits, drift-aware
// residuals, and candidate post-processing (outlier removal, merging,
// shared hit resolution and leftover assignment).
// Key types: Fit, Fitter, Karimaki, Algebraic, Refiner, Track.
//
// Dependency rule: L5 may depend on L1-L4, but never on pipeline code.
package l5refine
