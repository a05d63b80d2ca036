package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level progress logger. It defaults to log.Printf but
// may be replaced by SetLogger. Tests or the -q flag mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var verbose atomic.Bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetVerbose enables or disables Diagf output.
func SetVerbose(on bool) {
	verbose.Store(on)
}

// Verbose reports whether Diagf output is enabled.
func Verbose() bool {
	return verbose.Load()
}

// Diagf logs through Logf only when verbose output is enabled.
func Diagf(format string, v ...interface{}) {
	if verbose.Load() {
		Logf(format, v...)
	}
}
