// Package telemetry provides logging, solve ids and metrics for resolves.
package telemetry

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

type contextKey string

const solveIDKey contextKey = "solve_id"

// NewLogger creates a structured logger writing to w. format is "json" or
// "text".
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// NewSolveID returns a new lexically sortable solve id.
func NewSolveID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// WithSolveID adds a solve id to the context. If id is empty, a new one is
// generated.
func WithSolveID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = NewSolveID()
	}
	return context.WithValue(ctx, solveIDKey, id)
}

// SolveID retrieves the solve id from context.
func SolveID(ctx context.Context) string {
	if id, ok := ctx.Value(solveIDKey).(string); ok {
		return id
	}
	return ""
}

// SolveLogger returns a logger with solve-scoped fields.
func SolveLogger(logger *slog.Logger, ctx context.Context, request string) *slog.Logger {
	attrs := []any{
		slog.String("request", request),
	}
	if id := SolveID(ctx); id != "" {
		attrs = append(attrs, slog.String("solve_id", id))
	}
	return logger.With(attrs...)
}
