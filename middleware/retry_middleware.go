package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mini-dap/message"
)

// RetryMiddleware resends requests whose failure kind is retryable, with
// exponential backoff starting at baseDelay.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, log *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Message) *message.Message {
			resp := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if !resp.Failed() || !resp.ErrorKind.Retryable() {
					return resp
				}
				log.Debug("retrying request",
					zap.Int("attempt", i+1),
					zap.String("method", req.Method),
					zap.String("dataset", req.Dataset),
					zap.String("error", resp.Error))

				t := time.NewTimer(baseDelay * time.Duration(1<<i))
				select {
				case <-t.C:
				case <-ctx.Done():
					t.Stop()
					return resp
				}
				resp = next(ctx, req)
			}
			return resp
		}
	}
}
