package middleware

import (
	"context"

	"mini-dap/message"
	"mini-dap/metrics"
)

func MetricsMiddleware(m *metrics.Metrics) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Message) *message.Message {
			done := m.Begin(req.Method)
			resp := next(ctx, req)
			kind := ""
			if resp.Failed() {
				kind = resp.ErrorKind.String()
			}
			done(kind, len(resp.Payload))
			return resp
		}
	}
}
