// Package logging provides a small leveled wrapper around log/slog used
// throughout the MIDI/audio playback stack.
package logging

import (
	"fmt"
	"log/slog"
	"os"
)

// Level controls which LogXxx calls actually emit a record.
type Level int

const (
	LevelError Level = iota
	LevelInfo
	LevelDebug
)

// Logger wraps a *slog.Logger with the LogInfo/LogError/LogDebug call shape
// used by the player and the file and track parsers.
type Logger struct {
	level        Level
	slog         *slog.Logger
	handlerLevel *slog.LevelVar
}

// New builds a Logger at the given level, writing text-formatted records to
// the given writer (os.Stdout if nil).
func New(level Level, w *os.File) *Logger {
	if w == nil {
		w = os.Stdout
	}
	handlerLevel := new(slog.LevelVar)
	handlerLevel.Set(slogLevel(level))
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: handlerLevel,
	})
	return &Logger{
		level:        level,
		slog:         slog.New(handler),
		handlerLevel: handlerLevel,
	}
}

func slogLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	default:
		return slog.LevelError
	}
}

// SetLevel changes the minimum level that will be emitted.
func (l *Logger) SetLevel(level Level) {
	l.level = level
	l.handlerLevel.Set(slogLevel(level))
}

// LogError always logs; used for parse failures and device errors.
func (l *Logger) LogError(format string, args ...any) {
	l.slog.Error(msg(format, args...))
}

// LogInfo logs at LevelInfo and above.
func (l *Logger) LogInfo(format string, args ...any) {
	if l.level < LevelInfo {
		return
	}
	l.slog.Info(msg(format, args...))
}

// LogDebug logs at LevelDebug only.
func (l *Logger) LogDebug(format string, args ...any) {
	if l.level < LevelDebug {
		return
	}
	l.slog.Debug(msg(format, args...))
}

func msg(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
