// Package sqlite persists hough search runs and their candidates.
//
// The schema lives in migrations/ and is embedded; Open applies pending
// migrations with golang-migrate before returning.
//
// Key types:
//   - DB: the migrated database handle
//   - TrackStore: runs, candidates and their hit relations
//   - RunSink: a pipeline.Sink that stores every event of one run
package sqlite
