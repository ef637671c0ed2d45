package postgres

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/tracelog"
)

// traceLogger adapts the process slog logger to pgx's tracelog so
// query traces land in the same stream as everything else.
type traceLogger struct {
	log *slog.Logger
}

func (t traceLogger) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	attrs := make([]any, 0, len(data)*2)
	for k, v := range data {
		attrs = append(attrs, k, v)
	}
	switch level {
	case tracelog.LogLevelTrace, tracelog.LogLevelDebug:
		t.log.DebugContext(ctx, msg, attrs...)
	case tracelog.LogLevelInfo:
		t.log.InfoContext(ctx, msg, attrs...)
	case tracelog.LogLevelWarn:
		t.log.WarnContext(ctx, msg, attrs...)
	default:
		t.log.ErrorContext(ctx, msg, attrs...)
	}
}
