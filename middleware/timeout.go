package middleware

import (
	"context"
	"log/slog"
)

// Timeout returns middleware that enforces a per-attempt deadline.
// If the call has a non-zero Timeout, a context.WithTimeout wraps the
// handler call. When the deadline is exceeded the context is cancelled
// and the handler should return context.DeadlineExceeded.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, call *Call, next Handler) error {
		if call.Timeout > 0 {
			logger.Debug("operation timeout set",
				slog.String("operation", call.Name),
				slog.Duration("timeout", call.Timeout),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, call.Timeout)
			defer cancel()
		}
		return next(ctx)
	}
}
