// Package l1axes owns Layer 1 (Axes) of the hough search model.
//
// Responsibilities: discrete bin arrays (BinSpec), continuous axes, the
// parameter-space Box and the per-level box division strategy.
// Key types: Range, Box, BinSpec, ContinuousAxis, BoxDivision.
//
// Dependency rule: L1 depends on nothing else in internal/hough.
// Hits, trees and candidates live in higher layers.
package l1axes
