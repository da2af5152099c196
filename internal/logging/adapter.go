package logging

import (
	"fmt"
	"log/slog"
	"os"
)

// GooseLogger adapts an slog.Logger to the Printf/Fatalf logger interface
// expected by the goose migration provider.
type GooseLogger struct {
	logger *slog.Logger
}

// NewGooseLogger creates a new GooseLogger wrapping the given slog.Logger.
// If logger is nil, slog.Default() is used.
func NewGooseLogger(logger *slog.Logger) *GooseLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &GooseLogger{logger: WithComponent(logger, "migrations")}
}

// Printf logs a formatted message at debug level.
func (a *GooseLogger) Printf(format string, v ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, v...))
}

// Fatalf logs a formatted message at error level and exits.
func (a *GooseLogger) Fatalf(format string, v ...interface{}) {
	a.logger.Error(fmt.Sprintf(format, v...))
	os.Exit(1)
}

// Logger returns the underlying slog.Logger for direct access when needed.
func (a *GooseLogger) Logger() *slog.Logger {
	return a.logger
}
