// Package logging provides the level-tagged stderr logger used across the
// toolkit, mirroring the debug!/info!/warn! call sites of the system this
// was adapted from without pulling in a structured logging dependency.
package logging

import (
	"fmt"
	"log"
	"os"
)

type Level int

const (
	LevelWarn Level = iota
	LevelInfo
	LevelDebug
)

// Logger wraps the standard library logger with a minimum level filter.
type Logger struct {
	out *log.Logger
	min Level
}

func New(prefix string, min Level) *Logger {
	return &Logger{
		out: log.New(os.Stderr, prefix, log.LstdFlags),
		min: min,
	}
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.logAt(LevelDebug, "DEBUG", format, args) }
func (l *Logger) Infof(format string, args ...interface{})  { l.logAt(LevelInfo, "INFO", format, args) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.logAt(LevelWarn, "WARN", format, args) }

func (l *Logger) logAt(level Level, tag, format string, args []interface{}) {
	if l == nil || level > l.min {
		return
	}
	l.out.Output(3, fmt.Sprintf(tag+" "+format, args...))
}

// Default is shared by packages that don't carry their own logger reference.
var Default = New("fai: ", LevelWarn)
