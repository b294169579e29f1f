package monitoring

import "log"

// Logf is the process-wide diagnostic logger shared by the drivegate packages.
// It defaults to log.Printf; embedders and tests may swap it via SetLogger to
// redirect or silence output.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger installs f as the package logger. A nil f installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
