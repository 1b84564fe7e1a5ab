package cellgraph

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with pipeline-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	}))}
}

// WithStage adds a stage field to the logger.
func (l *Logger) WithStage(stage Stage) *Logger {
	return &Logger{Logger: l.Logger.With("stage", string(stage))}
}

// LogStage logs a completed stage computation.
func (l *Logger) LogStage(ctx context.Context, stage Stage, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "stage failed",
			"stage", string(stage),
			"elapsed", elapsed,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "stage completed",
			"stage", string(stage),
			"elapsed", elapsed,
		)
	}
}

// LogCacheHit logs a stage served from a cached layer.
func (l *Logger) LogCacheHit(ctx context.Context, stage Stage, fingerprint uint32) {
	l.DebugContext(ctx, "stage served from cache",
		"stage", string(stage),
		"fingerprint", fingerprint,
	)
}

// LogWarning logs a non-fatal stage warning.
func (l *Logger) LogWarning(ctx context.Context, stage Stage, warning error) {
	l.WarnContext(ctx, "stage warning",
		"stage", string(stage),
		"warning", warning,
	)
}
