package monitoring

import "log"

// Logf is the process-level logger used by the CLI, sinks and stores. It
// defaults to log.Printf; SetLogger redirects or mutes it. The search layers
// log through their own SetLogWriters streams instead.
var Logf func(format string, v ...any) = log.Printf

// SetLogger replaces the process logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		Logf = func(string, ...any) {}
		return
	}
	Logf = f
}
