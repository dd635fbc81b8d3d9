package middleware

import (
	"context"
	"time"

	"mini-dap/message"
)

// TimeoutMiddleware bounds a request by timeout. The handler keeps running on
// a cancelled context after the deadline; dataset reads observe it and stop.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Message) *message.Message {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.Message, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return message.Failure(req, message.KindTimeout, "request timed out")
			}
		}
	}
}
