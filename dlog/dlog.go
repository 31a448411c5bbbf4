// Package dlog is a small leveled logging facade writing through a
// console sink.
package dlog

import (
	"fmt"
	"os"
	"time"
)

type severity string

const (
	severityInfo    severity = "INFO"
	severityWarning severity = "WARNING"
	severityError   severity = "ERROR"
)

var console = newConsoleSink(os.Stderr)

func output(s severity, msg string) {
	stamp := time.Now().Format("2006-01-02 15:04:05.000000")
	_, _ = fmt.Fprintf(console, "%s %s %s\n", s, stamp, msg)
}

func Info(args ...interface{}) {
	output(severityInfo, fmt.Sprint(args...))
}

func Infof(format string, args ...interface{}) {
	output(severityInfo, fmt.Sprintf(format, args...))
}

func Warning(args ...interface{}) {
	output(severityWarning, fmt.Sprint(args...))
}

func Warningf(format string, args ...interface{}) {
	output(severityWarning, fmt.Sprintf(format, args...))
}

func Error(args ...interface{}) {
	output(severityError, fmt.Sprint(args...))
}

func Errorf(format string, args ...interface{}) {
	output(severityError, fmt.Sprintf(format, args...))
}

// Buffer switches console output from write-through to buffered.  Buffered
// output is flushed when size bytes accumulate or interval elapses,
// whichever comes first.
func Buffer(size int, interval time.Duration) {
	console.buffer(size, interval)
}

// Flush forces any buffered log output to the console.
func Flush() error {
	return console.flush()
}
