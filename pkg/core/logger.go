package core

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Logger provides levelled logging for servers and the worker pool.
// It is a superset of the narrow logger the concurrency package accepts,
// so any Logger can be handed to a pool.
type Logger interface {
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
}

// Level is a log severity threshold
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
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// ParseLevel maps a config string to a Level.
// An empty string means info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// levelLogger writes each severity through its own prefixed *log.Logger and
// drops anything below min.
type levelLogger struct {
	min         Level
	errorLogger *log.Logger
	warnLogger  *log.Logger
	infoLogger  *log.Logger
	debugLogger *log.Logger
}

// NewDefaultLogger logs errors and warnings to stderr, everything else to
// stdout, at debug level
func NewDefaultLogger() Logger {
	return newLevelLogger(os.Stderr, os.Stdout, LevelDebug)
}

// NewLogger writes every severity at or above level to w
func NewLogger(w io.Writer, level Level) Logger {
	return newLevelLogger(w, w, level)
}

func newLevelLogger(errw, outw io.Writer, level Level) *levelLogger {
	flags := log.LstdFlags | log.Lshortfile
	return &levelLogger{
		min:         level,
		errorLogger: log.New(errw, "[ERROR] ", flags),
		warnLogger:  log.New(errw, "[WARN] ", flags),
		infoLogger:  log.New(outw, "[INFO] ", flags),
		debugLogger: log.New(outw, "[DEBUG] ", flags),
	}
}

func (l *levelLogger) output(level Level, lg *log.Logger, msg string) {
	if level < l.min {
		return
	}
	// 3 = output + Error/Errorf/... + caller
	_ = lg.Output(3, msg)
}

func (l *levelLogger) Error(args ...interface{}) {
	l.output(LevelError, l.errorLogger, fmt.Sprint(args...))
}

func (l *levelLogger) Errorf(format string, args ...interface{}) {
	l.output(LevelError, l.errorLogger, fmt.Sprintf(format, args...))
}

func (l *levelLogger) Warn(args ...interface{}) {
	l.output(LevelWarn, l.warnLogger, fmt.Sprint(args...))
}

func (l *levelLogger) Warnf(format string, args ...interface{}) {
	l.output(LevelWarn, l.warnLogger, fmt.Sprintf(format, args...))
}

func (l *levelLogger) Info(args ...interface{}) {
	l.output(LevelInfo, l.infoLogger, fmt.Sprint(args...))
}

func (l *levelLogger) Infof(format string, args ...interface{}) {
	l.output(LevelInfo, l.infoLogger, fmt.Sprintf(format, args...))
}

func (l *levelLogger) Debug(args ...interface{}) {
	l.output(LevelDebug, l.debugLogger, fmt.Sprint(args...))
}

func (l *levelLogger) Debugf(format string, args ...interface{}) {
	l.output(LevelDebug, l.debugLogger, fmt.Sprintf(format, args...))
}

// nopLogger discards everything
type nopLogger struct{}

// NewNopLogger returns a Logger that discards all output
func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) Error(...interface{})          {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Warn(...interface{})           {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Info(...interface{})           {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Debug(...interface{})          {}
func (nopLogger) Debugf(string, ...interface{}) {}
