// Package l4peaks owns Layer 4 (Peaks) of the hough search model.
//
// Responsibilities: turning the accepted leaves of a search into track
// candidates, either by merging connected regions of the leaf grid or by
// bounded 2x2 pattern clustering, and deriving each candidate's hit list.
// Key types: Candidate, Extractor, ConnectedRegions, PatternClustering.
//
// Dependency rule: L4 may depend on L1-L3, but never on L5+.
package l4peaks
