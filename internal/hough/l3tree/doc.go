// Package l3tree owns Layer 3 (Tree) of the hough search model.
//
// Responsibilities: the weighted search tree over a divided parameter
// space (seed, fell, raze, find), the dense occupancy plane written as a
// side channel during the search, and the node observer hook.
// Key types: Tree, Leaf, Grid, Options, Observer.
//
// Nodes live in an arena addressed by index; children of a node are a
// contiguous index range. Fell clears item sets and keeps the arena, Raze
// drops the arena.
//
// Dependency rule: L3 may depend on L1-L2, but never on L4+.
package l3tree
