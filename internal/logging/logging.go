// Package logging configures the process-wide structured logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/otel/trace"
)

// Config holds logger construction settings
type Config struct {
	debug   bool
	format  string
	logFile string
	writer  io.Writer
}

// Option configures the logger
type Option func(*Config)

// WithDebug sets the level of the logger to debug.
func WithDebug() Option {
	return func(cfg *Config) {
		cfg.debug = true
	}
}

// WithFormat sets the format of the logger (text or json).
func WithFormat(format string) Option {
	return func(cfg *Config) {
		cfg.format = format
	}
}

// WithLogFile additionally writes logs to the given file.
func WithLogFile(path string) Option {
	return func(cfg *Config) {
		cfg.logFile = path
	}
}

// WithWriter replaces stderr as the primary log destination. Used by tests.
func WithWriter(w io.Writer) Option {
	return func(cfg *Config) {
		cfg.writer = w
	}
}

// Setup builds a logger and installs it as the slog default. It returns a
// close function for the log file, if one was opened.
func Setup(opts ...Option) (*slog.Logger, func() error, error) {
	cfg := &Config{format: "text", writer: os.Stderr}
	for _, opt := range opts {
		opt(cfg)
	}

	level := slog.LevelInfo
	if cfg.debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.debug,
	}

	handlers := []slog.Handler{newHandler(cfg.writer, cfg.format, handlerOpts)}
	closer := func() error { return nil }

	if cfg.logFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.logFile), 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		handlers = append(handlers, newHandler(f, cfg.format, handlerOpts))
		closer = f.Close
	}

	logger := slog.New(
		slogmulti.Pipe(traceMiddleware()).Handler(slogmulti.Fanout(handlers...)),
	)
	slog.SetDefault(logger)
	return logger, closer, nil
}

// traceMiddleware stamps records with the active span's identifiers so log
// lines can be correlated with traces.
func traceMiddleware() slogmulti.Middleware {
	return slogmulti.NewHandleInlineMiddleware(
		func(ctx context.Context, record slog.Record, next func(context.Context, slog.Record) error) error {
			if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
				record.AddAttrs(
					slog.String("trace_id", sc.TraceID().String()),
					slog.String("span_id", sc.SpanID().String()),
				)
			}
			return next(ctx, record)
		},
	)
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
