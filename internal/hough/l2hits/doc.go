// Package l2hits owns Layer 2 (Hits) of the hough search model.
//
// Responsibilities: the hit record handed to the search, hit-to-box
// compatibility predicates (projections) for the trigger, legendre and
// generic variants, and node acceptance from the distinct-stratum weight.
// Key types: Hit, Event, Projection, SineProjection, LegendreProjection,
// PointProjection, Acceptance.
//
// Dependency rule: L2 may depend on L1, but never on L3+.
// Projections are pure functions of hit geometry and box bounds.
package l2hits
