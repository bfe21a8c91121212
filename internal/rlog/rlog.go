// Package rlog configures process-wide logging the way the teacher's
// cmd/bluetooth-service/main.go does (log.Ldate|log.Ltime|log.Lmicroseconds),
// and adds Debugf/Tracef call sites gated by a package-level verbosity
// level so call sites stay terse without reaching for a logging library the
// rest of the corpus doesn't use either.
package rlog

import "log"

// Level controls which of Debugf/Tracef actually print.
type Level int

const (
	LevelInfo Level = iota
	LevelDebug
	LevelTrace
)

var current = LevelInfo

// Init sets log's flags the way the teacher does and records the verbosity.
func Init(level Level) {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	current = level
}

func SetLevel(level Level) { current = level }

func Debugf(format string, args ...interface{}) {
	if current >= LevelDebug {
		log.Printf("[debug] "+format, args...)
	}
}

func Tracef(format string, args ...interface{}) {
	if current >= LevelTrace {
		log.Printf("[trace] "+format, args...)
	}
}

func Printf(format string, args ...interface{}) {
	log.Printf(format, args...)
}
