package monitoring

import "log"

// Logf is the package-level diagnostic logger used by the pipeline, the
// inspector and the HTTP layer. It defaults to log.Printf but may be replaced
// by SetLogger so tests can capture or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// Debugf logs only when verbose logging is enabled.
var Debugf func(format string, v ...interface{}) = func(string, ...interface{}) {}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetVerbose routes Debugf to Logf when enabled.
func SetVerbose(enabled bool) {
	if !enabled {
		Debugf = func(string, ...interface{}) {}
		return
	}
	Debugf = func(format string, v ...interface{}) { Logf(format, v...) }
}
