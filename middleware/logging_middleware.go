package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mini-dap/message"
)

// LoggingMiddleware logs one line per request. Internal failures are logged at
// error level, every other failure at warn level.
func LoggingMiddleware(log *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Message) *message.Message {
			start := time.Now()
			resp := next(ctx, req)
			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("dataset", req.Dataset),
				zap.Duration("duration", time.Since(start)),
			}
			if req.Constraint != "" {
				fields = append(fields, zap.String("constraint", req.Constraint))
			}
			switch {
			case !resp.Failed():
				log.Info("request", append(fields, zap.Int("bytes", len(resp.Payload)))...)
			case resp.ErrorKind == message.KindInternal:
				log.Error("request failed", append(fields, zap.Stringer("kind", resp.ErrorKind), zap.String("error", resp.Error))...)
			default:
				log.Warn("request failed", append(fields, zap.Stringer("kind", resp.ErrorKind), zap.String("error", resp.Error))...)
			}
			return resp
		}
	}
}
