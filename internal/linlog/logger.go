// Package linlog provides the ambient logging shim used by the CLI and the
// loader packages, plus (in reader.go) the raw trace-line parser that turns
// log text into model.LogEntry values. Neither half is used by the analytic
// core, which per its own design has no I/O of its own.
package linlog

import (
	"io"
	"log"
	"os"
)

var std = log.New(os.Stderr, "[linspector] ", log.LstdFlags|log.Lmicroseconds)

// SetOutput redirects the shared logger, used by the CLI to switch to a
// rotating file writer when --log-file is set.
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

func Info(format string, args ...interface{}) {
	std.Printf("INFO  "+format, args...)
}

func Warn(format string, args ...interface{}) {
	std.Printf("WARN  "+format, args...)
}

func Error(format string, args ...interface{}) {
	std.Printf("ERROR "+format, args...)
}

func Fatalf(format string, args ...interface{}) {
	std.Fatalf("ERROR "+format, args...)
}
