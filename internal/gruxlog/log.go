// Package gruxlog is Gruxi's system logger: a thin wrapper around the
// standard log package that tags every line with a component name and
// filters by the current operation mode, following the teacher's
// "[Component] message" bracketed-prefix convention
// (internal/scheduler/renewal.go, pkg/cache/redis.go) generalized into a
// shared, level-aware logger instead of ad hoc log.Printf calls.
package gruxlog

import (
	"log"
	"os"
	"sync/atomic"

	"gruxi/internal/opmode"
)

var currentLevel int32 = int32(opmode.LevelInfo)

// SetLevel adjusts the process-wide minimum level. Called through SetMode
// at startup and by the admin operation-mode route; nothing watches the
// operation_mode_changed trigger to call it.
func SetLevel(l opmode.LogLevel) {
	atomic.StoreInt32(&currentLevel, int32(l))
}

// SetMode is a convenience wrapper deriving the level from a mode.
func SetMode(m opmode.Mode) {
	SetLevel(m.LogLevel())
}

func level() opmode.LogLevel {
	return opmode.LogLevel(atomic.LoadInt32(&currentLevel))
}

// Logger logs lines tagged with a fixed component name.
type Logger struct {
	component string
	std       *log.Logger
}

// New creates a component-tagged logger writing to stderr, matching the
// teacher's use of the default std logger.
func New(component string) *Logger {
	return &Logger{
		component: component,
		std:       log.New(os.Stderr, "", log.LstdFlags),
	}
}

func (l *Logger) prefixed(format string) string {
	return "[" + l.component + "] " + format
}

// Tracef logs at trace level (visible only in DEV mode).
func (l *Logger) Tracef(format string, args ...any) {
	if level() > opmode.LevelTrace {
		return
	}
	l.std.Printf(l.prefixed(format), args...)
}

// Debugf logs at debug level (visible in DEV and DEBUG modes).
func (l *Logger) Debugf(format string, args ...any) {
	if level() > opmode.LevelDebug {
		return
	}
	l.std.Printf(l.prefixed(format), args...)
}

// Infof logs at info level (visible in DEV, DEBUG, PRODUCTION modes).
func (l *Logger) Infof(format string, args ...any) {
	if level() > opmode.LevelInfo {
		return
	}
	l.std.Printf(l.prefixed(format), args...)
}

// Warnf logs at warn level (always visible).
func (l *Logger) Warnf(format string, args ...any) {
	l.std.Printf(l.prefixed(format), args...)
}

// Errorf logs an error condition (always visible).
func (l *Logger) Errorf(format string, args ...any) {
	l.std.Printf(l.prefixed("ERROR: "+format), args...)
}
