// Package middleware wraps request handlers with cross-cutting behaviour.
// The same HandlerFunc shape is used by the server around its dispatcher and
// by the client around the network round trip.
package middleware

import (
	"context"

	"mini-dap/message"
)

type HandlerFunc func(ctx context.Context, req *message.Message) *message.Message

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares into one; the first one runs outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
