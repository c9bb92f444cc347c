// Package vlog provides VelesDB's structured logging interface.
//
// The default implementation is a tiny stdlib writer, in keeping with an
// embedded library that shouldn't force a logging backend on its host
// process. Hosts that already run go.uber.org/zap can plug it in via
// NewZapLogger without any core package depending on zap directly.
package vlog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level is the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is the structured logging interface used throughout VelesDB.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
	With(keyvals ...any) Logger
}

type writerLogger struct {
	mu       sync.Mutex
	w        io.Writer
	minLevel Level
	keyvals  []any
}

// New creates a Logger that writes formatted lines to w, dropping anything
// below minLevel.
func New(w io.Writer, minLevel Level) Logger {
	return &writerLogger{w: w, minLevel: minLevel}
}

// NewStd creates a Logger writing to stderr.
func NewStd(minLevel Level) Logger {
	return New(os.Stderr, minLevel)
}

func (l *writerLogger) Debug(msg string, keyvals ...any) { l.log(LevelDebug, msg, keyvals...) }
func (l *writerLogger) Info(msg string, keyvals ...any)  { l.log(LevelInfo, msg, keyvals...) }
func (l *writerLogger) Warn(msg string, keyvals ...any)  { l.log(LevelWarn, msg, keyvals...) }
func (l *writerLogger) Error(msg string, keyvals ...any) { l.log(LevelError, msg, keyvals...) }

func (l *writerLogger) With(keyvals ...any) Logger {
	merged := make([]any, 0, len(l.keyvals)+len(keyvals))
	merged = append(merged, l.keyvals...)
	merged = append(merged, keyvals...)
	return &writerLogger{w: l.w, minLevel: l.minLevel, keyvals: merged}
}

func (l *writerLogger) log(level Level, msg string, keyvals ...any) {
	if level < l.minLevel {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintf(l.w, "%s [%s] %s", time.Now().Format("2006-01-02T15:04:05.000Z0700"), level, msg)
	for i := 0; i+1 < len(l.keyvals); i += 2 {
		fmt.Fprintf(l.w, " %v=%v", l.keyvals[i], l.keyvals[i+1])
	}
	for i := 0; i+1 < len(keyvals); i += 2 {
		fmt.Fprintf(l.w, " %v=%v", keyvals[i], keyvals[i+1])
	}
	fmt.Fprintln(l.w)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)     {}
func (nopLogger) Info(string, ...any)      {}
func (nopLogger) Warn(string, ...any)      {}
func (nopLogger) Error(string, ...any)     {}
func (n nopLogger) With(...any) Logger     { return n }

// Nop returns a Logger that discards everything.
func Nop() Logger { return nopLogger{} }
