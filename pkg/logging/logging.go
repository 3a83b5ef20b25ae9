// Package logging is a thin wrapper around the standard library's log
// package, giving every component a named prefix instead of the bare
// log.Printf call sites the original cmd/ entrypoints used.
package logging

import (
	"log"
	"os"
)

// Logger writes prefixed lines to the standard logger. The zero value is
// not usable; construct one with Default (and Named for a child).
type Logger struct {
	prefix string
	out    *log.Logger
}

// Default returns a Logger writing to stderr with Go's standard log
// flags (date and time).
func Default() *Logger {
	return &Logger{out: log.New(os.Stderr, "", log.LstdFlags)}
}

// Named returns a child logger whose lines are tagged with name, nested
// under this logger's existing prefix if any.
func (l *Logger) Named(name string) *Logger {
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	return &Logger{prefix: prefix, out: l.out}
}

func (l *Logger) line(format string) string {
	if l.prefix == "" {
		return format
	}
	return "[" + l.prefix + "] " + format
}

// Infof logs an informational message.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.out.Printf(l.line(format), args...)
}

// Errorf logs an error message.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.out.Printf(l.line("ERROR: "+format), args...)
}

// Fatalf logs and then calls os.Exit(1), matching the original
// entrypoints' log.Fatalf call sites.
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.out.Fatalf(l.line(format), args...)
}
