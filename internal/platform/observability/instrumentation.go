package observability

import (
	"context"
	"log/slog"
	"time"

	apperrors "voice3d-server/internal/platform/errors"
)

// Enabled reports whether observability has been toggled on.
func Enabled() bool {
	_, _, cfg := current()
	return cfg.Enabled
}

// StartSpan records a lightweight span around an operation. The returned
// function must be called once with the operation's error (nil on success).
func StartSpan(ctx context.Context, component, operation string) (context.Context, func(error)) {
	logger, rec, cfg := current()
	start := time.Now()

	if logger != nil && cfg.Enabled {
		logger.LogAttrs(ctx, slog.LevelDebug, "obs span start",
			slog.String("component", component),
			slog.String("operation", operation),
		)
	}

	return ctx, func(err error) {
		elapsed := time.Since(start)
		kind := ""
		if err != nil {
			kind = string(apperrors.KindOf(err))
		}
		if rec != nil && cfg.records(component) {
			rec.RecordStage(operation, elapsed, kind)
		}
		if logger == nil || !cfg.Enabled {
			return
		}

		level := slog.LevelDebug
		attrs := []slog.Attr{
			slog.String("component", component),
			slog.String("operation", operation),
			slog.Duration("duration", elapsed),
		}
		if err != nil {
			level = slog.LevelError
			attrs = append(attrs, slog.String("kind", kind), slog.Any("error", err))
		}
		logger.LogAttrs(ctx, level, "obs span end", attrs...)
	}
}
