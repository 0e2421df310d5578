// Package logger provides the process-wide structured logger.
package logger

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
)

var (
	once sync.Once
	log  *slog.Logger
)

// Config holds logger configuration.
type Config struct {
	Level     string // DEBUG, INFO, WARN, ERROR
	Format    string // json, text
	AddSource bool
}

// Init initializes the global logger. Safe to call more than once; only the
// first call takes effect.
func Init(cfg Config) {
	once.Do(func() {
		var level slog.Level
		switch cfg.Level {
		case "DEBUG":
			level = slog.LevelDebug
		case "WARN":
			level = slog.LevelWarn
		case "ERROR":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

		var handler slog.Handler
		if cfg.Format == "text" {
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			handler = slog.NewJSONHandler(os.Stdout, opts)
		}

		log = slog.New(handler)
		slog.SetDefault(log)
	})
}

// Get returns the global logger, initializing it with defaults if Init was
// never called.
func Get() *slog.Logger {
	if log == nil {
		Init(Config{Level: "INFO", Format: "json"})
	}
	return log
}

type traceIDKey struct{}

// WithTraceID returns a context carrying a fresh trace id, and the trace id
// itself.
func WithTraceID(ctx context.Context) (context.Context, string) {
	id := uuid.New().String()
	return context.WithValue(ctx, traceIDKey{}, id), id
}

// FromContext returns a logger annotated with the request's trace id, if any.
func FromContext(ctx context.Context) *slog.Logger {
	id, ok := ctx.Value(traceIDKey{}).(string)
	if !ok || id == "" {
		return Get()
	}
	return Get().With("trace_id", id)
}
