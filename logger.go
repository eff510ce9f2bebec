package vecquant

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with vecquant-specific context.
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
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithScheme adds a quantization scheme field to the logger.
func (l *Logger) WithScheme(scheme string) *Logger {
	return &Logger{
		Logger: l.Logger.With("scheme", scheme),
	}
}

// WithDimension adds a dimension field to the logger.
func (l *Logger) WithDimension(dim int) *Logger {
	return &Logger{
		Logger: l.Logger.With("dimension", dim),
	}
}

// WithCount adds a count field to the logger.
func (l *Logger) WithCount(count int) *Logger {
	return &Logger{
		Logger: l.Logger.With("count", count),
	}
}

// LogTrain logs a codebook training operation.
func (l *Logger) LogTrain(ctx context.Context, scheme string, sampleSize int, converged bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "codebook training failed",
			"scheme", scheme,
			"sample_size", sampleSize,
			"error", err,
		)
		return
	}
	if !converged {
		l.WarnContext(ctx, "codebook training did not converge within iteration budget",
			"scheme", scheme,
			"sample_size", sampleSize,
		)
		return
	}
	l.InfoContext(ctx, "codebook training completed",
		"scheme", scheme,
		"sample_size", sampleSize,
	)
}

// LogEncode logs a bulk encode operation.
func (l *Logger) LogEncode(ctx context.Context, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "bulk encode failed",
			"count", count,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "bulk encode completed",
			"count", count,
		)
	}
}

// LogSearch logs a quantized search operation.
func (l *Logger) LogSearch(ctx context.Context, k, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"k", k,
			"results", resultsFound,
		)
	}
}

// LogPersist logs a codebook or code file persistence operation.
func (l *Logger) LogPersist(ctx context.Context, name string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "persist failed",
			"name", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "persist completed",
			"name", name,
		)
	}
}
