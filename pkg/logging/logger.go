// Package logging provides structured logging for the guidance service.
// It wraps Go's standard slog package so every log line carries the ID of
// the trajectory being flown and vehicle quantities render as plain arrays.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Logger wraps slog.Logger to provide application-specific logging functionality
// with trajectory ID support.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger instance with JSON output to stdout.
// The log level can be controlled via the AUV_LOG_LEVEL environment variable.
// Valid levels: DEBUG, INFO, WARN, ERROR. Defaults to INFO.
func NewLogger() *Logger {
	return NewLoggerWithWriter(os.Stdout)
}

// NewLoggerWithWriter creates a JSON logger writing to w.
func NewLoggerWithWriter(w io.Writer) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       getLogLevelFromEnv(),
		ReplaceAttr: flattenAttributes,
	})
	return &Logger{slog.New(handler)}
}

// LogWithContext logs a message with the trajectory ID from ctx, if any.
func (l *Logger) LogWithContext(ctx context.Context, level slog.Level, msg string, args ...any) {
	if id := GetTrajectoryID(ctx); id != "" {
		args = append(args, "trajectory_id", id)
	}
	l.Log(ctx, level, msg, args...)
}

// Info logs an informational message with context.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.LogWithContext(ctx, slog.LevelInfo, msg, args...)
}

// Warn logs a warning message with context.
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.LogWithContext(ctx, slog.LevelWarn, msg, args...)
}

// Error logs an error message with context and proper error formatting.
func (l *Logger) Error(ctx context.Context, msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	l.LogWithContext(ctx, slog.LevelError, msg, args...)
}

// Debug logs a debug message with context.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.LogWithContext(ctx, slog.LevelDebug, msg, args...)
}

type trajectoryIDKey struct{}

// WithTrajectoryID adds a trajectory ID to the context.
// If no ID is provided, a new one will be generated.
func WithTrajectoryID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = GenerateTrajectoryID()
	}
	return context.WithValue(ctx, trajectoryIDKey{}, id)
}

// GetTrajectoryID extracts the trajectory ID from the context.
// Returns empty string if none is present.
func GetTrajectoryID(ctx context.Context) string {
	if id, ok := ctx.Value(trajectoryIDKey{}).(string); ok {
		return id
	}
	return ""
}

// GenerateTrajectoryID creates a new random (version 4) UUID string.
func GenerateTrajectoryID() string {
	return uuid.NewString()
}

func getLogLevelFromEnv() slog.Level {
	switch strings.ToUpper(os.Getenv("AUV_LOG_LEVEL")) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// flattenAttributes renders vectors and quaternions as JSON arrays instead
// of field objects.
func flattenAttributes(groups []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindAny {
		return a
	}
	switch v := a.Value.Any().(type) {
	case r3.Vec:
		return slog.Any(a.Key, [3]float64{v.X, v.Y, v.Z})
	case quat.Number:
		return slog.Any(a.Key, [4]float64{v.Real, v.Imag, v.Jmag, v.Kmag})
	}
	return a
}

// WrapError wraps an error with additional context information.
// This preserves the original error while adding descriptive context.
func WrapError(err error, context string, args ...any) error {
	if err == nil {
		return nil
	}
	if len(args) > 0 {
		context = fmt.Sprintf(context, args...)
	}
	return fmt.Errorf("%s: %w", context, err)
}
