// Package elog is a thin wrapper around the standard library logger, used
// by the engine and its sync backends in place of a structured logging
// library. It adds:
//   - Named (component) loggers via ForComponent(name)
//   - A message prefix "[<name>>]"
//   - Warn and Debug levels (Info is the default level, Error is also provided)
//   - The ability to enable debug globally or selectively per component
//
// Debug state lives on the Logger itself rather than in a side table: a
// component either inherits the global debug flag or carries its own
// override, memoized the same way the logger instance is.
//
// NOTE: the package name intentionally collides with stdlib "log". When
// importing both, alias one:
//
//	import (
//	    stdlog "log"
//	    elog "github.com/rubiojr/weapon/pkg/elog"
//	)
package elog

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
)

// Logger is a named logger with leveled helper methods.
type Logger struct {
	name  string
	std   *log.Logger
	debug atomic.Bool
}

// writerHolder wraps an io.Writer so atomic.Value always stores the same
// concrete type, avoiding an "inconsistently typed value" panic when the
// output writer's type changes between calls (e.g. *os.File to
// *bytes.Buffer in tests).
type writerHolder struct {
	w io.Writer
}

var (
	globalDebug  atomic.Bool
	loggers      sync.Map // map[string]*Logger
	outputWriter atomic.Value
)

func init() {
	outputWriter.Store(writerHolder{w: os.Stderr})
}

// ForComponent returns (and memoizes) a named logger for the given engine
// component or sync backend. The name SHOULD be stable (e.g. "eventstore",
// "sync/remote", "sync/localstore").
func ForComponent(name string) *Logger {
	if name == "" {
		name = "unknown"
	}
	if l, ok := loggers.Load(name); ok {
		return l.(*Logger)
	}
	current := outputWriter.Load().(writerHolder).w
	std := log.New(current, "", log.LstdFlags|log.Lmicroseconds)
	logger := &Logger{name: name, std: std}
	actual, _ := loggers.LoadOrStore(name, logger)
	return actual.(*Logger)
}

// SetGlobalDebug enables or disables debug logging for every component
// that hasn't set its own override via EnableDebugFor/DisableDebugFor.
func SetGlobalDebug(enabled bool) { globalDebug.Store(enabled) }

// GlobalDebug reports whether global debug logging is enabled.
func GlobalDebug() bool { return globalDebug.Load() }

// EnableDebugFor enables debug logging for a specific component,
// regardless of the global setting.
func EnableDebugFor(name string) {
	if name == "" {
		return
	}
	ForComponent(name).debug.Store(true)
}

// DisableDebugFor turns off a component's own debug override. A global
// debug flag set via SetGlobalDebug still applies.
func DisableDebugFor(name string) {
	if name == "" {
		return
	}
	ForComponent(name).debug.Store(false)
}

// DebugEnabledFor reports whether debug is enabled for name, globally or
// via its own override.
func DebugEnabledFor(name string) bool {
	if globalDebug.Load() {
		return true
	}
	return ForComponent(name).debug.Load()
}

// SetOutput sets the output writer for all subsequently created loggers and
// updates existing ones in place.
func SetOutput(w io.Writer) {
	if w == nil {
		return
	}
	outputWriter.Store(writerHolder{w: w})
	loggers.Range(func(_, v any) bool {
		v.(*Logger).std.SetOutput(w)
		return true
	})
}

func (l *Logger) prefix() string { return "[" + l.name + ">]" }

func (l *Logger) logInternal(level, msg string) {
	l.std.Println(level + " " + l.prefix() + " " + msg)
}

// Infof logs an informational message.
func (l *Logger) Infof(format string, args ...any) {
	l.logInternal(LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf logs a warning message.
func (l *Logger) Warnf(format string, args ...any) {
	l.logInternal(LevelWarn, fmt.Sprintf(format, args...))
}

// Errorf logs an error message.
func (l *Logger) Errorf(format string, args ...any) {
	l.logInternal(LevelError, fmt.Sprintf(format, args...))
}

// Debugf logs a debug message if debug is enabled for this logger's
// component (or globally).
func (l *Logger) Debugf(format string, args ...any) {
	if !globalDebug.Load() && !l.debug.Load() {
		return
	}
	l.logInternal(LevelDebug, fmt.Sprintf(format, args...))
}

// Level names.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
	LevelDebug = "DEBUG"
)
