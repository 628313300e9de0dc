package logger

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// contextKeys are the keys used for storing values in context
type contextKey string

const (
	requestIDKey contextKey = "request-id"
	taskIDKey    contextKey = "task-id"
)

// NewLogger creates and returns a new SugaredLogger configured for the given
// environment. If env is empty, it reads from the APP_ENV environment
// variable. Defaults to production mode if not specified or unrecognized.
//
// Development mode:
//   - Console output with colorized text
//   - Verbose logging (Debug level and above)
//
// Production mode:
//   - JSON output to stdout
//   - Info level and above
//   - Optimized for log aggregation systems
func NewLogger(env string) (*zap.SugaredLogger, error) {
	if env == "" {
		env = os.Getenv("APP_ENV")
	}

	var config zap.Config

	switch env {
	case "development", "dev":
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}

	default:
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}
		config.EncoderConfig.CallerKey = "caller"
		config.EncoderConfig.LevelKey = "level"
		config.EncoderConfig.MessageKey = "message"
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger.Sugar(), nil
}

// WithRequestID injects a RequestID into the given context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// ExtractRequestID retrieves the RequestID from the given context.
// Returns an empty string if no RequestID is found.
func ExtractRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithTaskID injects the running task's id into the given context so every
// component logging under that run can tag its events.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskIDKey, taskID)
}

// ExtractTaskID retrieves the task id from the given context.
// Returns an empty string if none is set.
func ExtractTaskID(ctx context.Context) string {
	if id, ok := ctx.Value(taskIDKey).(string); ok {
		return id
	}
	return ""
}

// ForTask returns a logger pre-tagged with the task id from ctx, if any.
func ForTask(ctx context.Context, log *zap.SugaredLogger) *zap.SugaredLogger {
	if id := ExtractTaskID(ctx); id != "" {
		return log.With("task_id", id)
	}
	return log
}
