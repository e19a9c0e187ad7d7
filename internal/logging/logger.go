// Package logging builds the module's structured logger. Generalized
// from the teacher's internal/infra/logger: a slog.Handler chosen by
// format, writing to a configurable output, with level filtering.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"wsiorpc/internal/config"
)

// New creates a configured *slog.Logger from cfg. The returned closer
// should be deferred by the caller to flush/close file handles.
func New(cfg config.LoggerConfig) (*slog.Logger, func() error, error) {
	writer, closer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(writer, opts)
	default:
		handler = slog.NewTextHandler(writer, opts)
	}

	return slog.New(handler), closer, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openOutput(output string) (io.Writer, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout, noop, nil
	case "stderr", "":
		return os.Stderr, noop, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	}
}

// WithConn returns a logger scoped to one connection, tagging every
// record with a connection id for correlation across the Dispatcher,
// Sender and cancel Registry.
func WithConn(base *slog.Logger, connID string) *slog.Logger {
	return base.With("conn", connID)
}
