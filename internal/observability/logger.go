package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"

	"github.com/sqlchat/sqlchat/internal/config"
)

type ctxKey string

const (
	traceIDKey   ctxKey = "trace_id"
	sessionIDKey ctxKey = "session_id"
)

func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	return slog.New(consoleHandler(cfg, writer)).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

// OpenLogger is NewLogger plus a JSON copy of every record in
// cfg.Observability.LogFile when one is configured. The returned close
// function releases the file.
func OpenLogger(cfg config.Config, writer io.Writer) (*slog.Logger, func() error, error) {
	if cfg.Observability.LogFile == "" {
		return NewLogger(cfg, writer), func() error { return nil }, nil
	}
	file, err := os.OpenFile(cfg.Observability.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := newFanoutLogger(cfg, writer, file)
	return logger, file.Close, nil
}

func newFanoutLogger(cfg config.Config, console, file io.Writer) *slog.Logger {
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: cfg.Observability.LogLevel})
	return slog.New(slogmulti.Fanout(consoleHandler(cfg, console), fileHandler)).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

func consoleHandler(cfg config.Config, writer io.Writer) slog.Handler {
	if writer == nil {
		writer = io.Discard
	}
	if cfg.Observability.LogJSON {
		return slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: cfg.Observability.LogLevel})
	}
	return slog.NewTextHandler(writer, &slog.HandlerOptions{Level: cfg.Observability.LogLevel})
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

func SessionIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(sessionIDKey).(string)
	if !ok {
		return ""
	}
	return value
}
