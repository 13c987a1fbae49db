package concurrency

import (
	"fmt"
	"log"
	"os"
)

// Logger is the narrow logging surface the pool needs.
// core.Logger satisfies it, so callers can inject their application logger
// without this package importing core.
type Logger interface {
	Errorf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// defaultSimpleLogger implements Logger using standard log
type defaultSimpleLogger struct {
	logger *log.Logger
}

func newDefaultSimpleLogger() Logger {
	return &defaultSimpleLogger{
		logger: log.New(os.Stderr, "[pool] ", log.LstdFlags|log.Lshortfile),
	}
}

func (l *defaultSimpleLogger) Errorf(format string, args ...interface{}) {
	_ = l.logger.Output(2, "ERROR "+fmt.Sprintf(format, args...))
}

func (l *defaultSimpleLogger) Warnf(format string, args ...interface{}) {
	_ = l.logger.Output(2, "WARN "+fmt.Sprintf(format, args...))
}

// Debugf is dropped by the default logger
func (l *defaultSimpleLogger) Debugf(format string, args ...interface{}) {}
