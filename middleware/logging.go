package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Logging returns middleware that logs operation start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, call *Call, next Handler) error {
		logger.Debug("operation started",
			slog.String("operation", call.Name),
			slog.Int("attempt", call.Attempt),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Warn("operation failed",
				slog.String("operation", call.Name),
				slog.Int("attempt", call.Attempt),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Debug("operation completed",
				slog.String("operation", call.Name),
				slog.Int("attempt", call.Attempt),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
