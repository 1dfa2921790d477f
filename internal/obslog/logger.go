// Package obslog wraps slog with the engine's structured-logging
// conventions, grounded on the teacher's common/logger/logger.go: a tint
// handler for human-readable console output, a JSON handler for
// production, and stack-trace-attached Error logging.
package obslog

import (
	"context"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/lmittmann/tint"
)

// Logger wraps slog.Logger with the fields the execution engine and HTTP
// boundary attach to every call site: workflow id, execution id, block id.
type Logger struct {
	*slog.Logger
}

// New builds a Logger. format "json" selects slog.NewJSONHandler (for
// production log aggregation); anything else selects tint's colored
// console handler (for local development).
func New(level, format string) *Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	default:
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.TimeOnly,
			AddSource:  false,
		})
	}

	return &Logger{Logger: slog.New(handler)}
}

// WithContext attaches a request-scoped trace id, if one was set by
// request-id middleware.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if traceID := ctx.Value("trace_id"); traceID != nil {
		return &Logger{Logger: l.With("trace_id", traceID)}
	}
	return l
}

// WithFields returns a logger carrying additional structured fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{Logger: l.With(args...)}
}

// WithWorkflowID scopes subsequent log lines to one workflow.
func (l *Logger) WithWorkflowID(workflowID string) *Logger {
	return &Logger{Logger: l.With("workflow_id", workflowID)}
}

// WithExecutionID scopes subsequent log lines to one run.
func (l *Logger) WithExecutionID(executionID string) *Logger {
	return &Logger{Logger: l.With("execution_id", executionID)}
}

// WithBlockID scopes subsequent log lines to one block.
func (l *Logger) WithBlockID(blockID string) *Logger {
	return &Logger{Logger: l.With("block_id", blockID)}
}

// Error logs with an attached stack trace, so a failed run's cause is
// traceable without re-running it under a debugger.
func (l *Logger) Error(msg string, args ...any) {
	args = append(args, "stack", string(debug.Stack()))
	l.Logger.Error(msg, args...)
}

// ErrorContext is the context-aware counterpart to Error.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	args = append(args, "stack", string(debug.Stack()))
	l.Logger.ErrorContext(ctx, msg, args...)
}

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
