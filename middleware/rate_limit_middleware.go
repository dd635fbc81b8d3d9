package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"mini-dap/message"
)

// RateLimitMiddleware rejects requests beyond r per second using a token
// bucket of the given burst.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Message) *message.Message {
			if !limiter.Allow() {
				return message.Failure(req, message.KindUnavailable, "rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
}
