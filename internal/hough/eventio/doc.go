// Package eventio reads and writes JSON-lines streams of events and track
// records, optionally compressed with zstd (.zst) or lz4 (.lz4).
//
// Key types:
//   - Reader / Writer: event streams
//   - Record: the serialised outcome of one event
//   - RecordSink: a pipeline.Sink that appends records to a stream
package eventio
