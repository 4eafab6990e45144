// Package platformlog provides the structured logger every component takes as
// a dependency (engine, observer manager, CLI), a thin wrapper over
// log/slog configured from config.LoggingConfig.
package platformlog

import (
	"log/slog"
	"os"

	"github.com/agenticaivc/intentgraph/internal/config"
)

// Logger wraps slog.Logger with the level/format this module's config
// resolves, and is the concrete type threaded through Engine, the
// observer Manager, and the CLI entrypoint.
type Logger struct {
	logger *slog.Logger
}

// New creates a new logger based on the configuration.
func New(cfg config.LoggingConfig) *Logger {
	var handler slog.Handler

	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.Level == "debug",
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return &Logger{logger: slog.New(handler)}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.logger.Debug(msg, args...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.logger.Info(msg, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.logger.Warn(msg, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.logger.Error(msg, args...)
}

// Slog returns the underlying slog.Logger, for callers (e.g. guard
// factories) that need to hand a *slog.Logger to code outside this
// package rather than take a dependency on it.
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

// parseLevel parses a log level string to slog.Level.
func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
