// Package monitoring carries the pipeline's diagnostic logging.
// Data-quality findings are reported as values, not errors, so almost
// all of the pipeline's narrative ends up here.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Context returns a logger that prefixes every line with the given
// processing context (typically a household identifier). An empty
// context returns a logger equivalent to Logf.
func Context(context string) func(format string, v ...interface{}) {
	if context == "" {
		return func(format string, v ...interface{}) { Logf(format, v...) }
	}
	return func(format string, v ...interface{}) {
		Logf(context+": "+format, v...)
	}
}
