package middleware

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"mini-dap/message"
	"mini-dap/metrics"
)

// echoHandler answers every request with payload "ok".
func echoHandler(ctx context.Context, req *message.Message) *message.Message {
	return &message.Message{Method: req.Method, Dataset: req.Dataset, Payload: []byte("ok")}
}

// slowHandler answers after 200ms unless the context ends first.
func slowHandler(ctx context.Context, req *message.Message) *message.Message {
	select {
	case <-time.After(200 * time.Millisecond):
	case <-ctx.Done():
	}
	return echoHandler(ctx, req)
}

func failing(kind message.ErrorKind) HandlerFunc {
	return func(ctx context.Context, req *message.Message) *message.Message {
		return message.Failure(req, kind, "boom")
	}
}

var req = &message.Message{Method: message.MethodData, Dataset: "test.1"}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	resp := LoggingMiddleware(log)(echoHandler)(context.Background(), req)
	require.NotNil(t, resp)
	assert.Equal(t, "ok", string(resp.Payload))

	LoggingMiddleware(log)(failing(message.KindInternal))(context.Background(), req)
	LoggingMiddleware(log)(failing(message.KindNotFound))(context.Background(), req)

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "test.1", entries[0].ContextMap()["dataset"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, "not_found", entries[2].ContextMap()["kind"])
}

func TestTimeoutPass(t *testing.T) {
	resp := TimeoutMiddleware(500*time.Millisecond)(echoHandler)(context.Background(), req)
	assert.False(t, resp.Failed())
}

func TestTimeoutExceeded(t *testing.T) {
	resp := TimeoutMiddleware(50*time.Millisecond)(slowHandler)(context.Background(), req)
	assert.Equal(t, message.KindTimeout, resp.ErrorKind)
	assert.Equal(t, "request timed out", resp.Error)
	assert.Equal(t, "test.1", resp.Dataset)
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2: the first 2 pass, the 3rd is rejected
	handler := RateLimitMiddleware(1, 2)(echoHandler)

	for i := 0; i < 2; i++ {
		resp := handler(context.Background(), req)
		require.False(t, resp.Failed(), "request %d", i)
	}

	resp := handler(context.Background(), req)
	assert.Equal(t, message.KindUnavailable, resp.ErrorKind)
	assert.Equal(t, "rate limit exceeded", resp.Error)
}

func TestRetry(t *testing.T) {
	var calls atomic.Int32
	flaky := func(ctx context.Context, r *message.Message) *message.Message {
		if calls.Add(1) < 3 {
			return message.Failure(r, message.KindUnavailable, "connection refused")
		}
		return echoHandler(ctx, r)
	}

	resp := RetryMiddleware(3, time.Millisecond, zaptest.NewLogger(t))(flaky)(context.Background(), req)
	assert.False(t, resp.Failed())
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetrySkipsPermanentErrors(t *testing.T) {
	var calls atomic.Int32
	h := func(ctx context.Context, r *message.Message) *message.Message {
		calls.Add(1)
		return failing(message.KindNotFound)(ctx, r)
	}

	resp := RetryMiddleware(3, time.Millisecond, zaptest.NewLogger(t))(h)(context.Background(), req)
	assert.Equal(t, message.KindNotFound, resp.ErrorKind)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryGivesUp(t *testing.T) {
	var calls atomic.Int32
	h := func(ctx context.Context, r *message.Message) *message.Message {
		calls.Add(1)
		return failing(message.KindTimeout)(ctx, r)
	}

	resp := RetryMiddleware(2, time.Millisecond, zaptest.NewLogger(t))(h)(context.Background(), req)
	assert.Equal(t, message.KindTimeout, resp.ErrorKind)
	assert.Equal(t, int32(3), calls.Load())
}

func TestMetrics(t *testing.T) {
	m := metrics.New()
	MetricsMiddleware(m)(echoHandler)(context.Background(), req)
	MetricsMiddleware(m)(failing(message.KindTimeout))(context.Background(), req)

	n, err := testutil.GatherAndCount(m.Registry(), "minidap_requests_total", "minidap_request_errors_total")
	require.NoError(t, err)
	// one series per method plus one per (method, kind)
	assert.Equal(t, 2, n)
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, r *message.Message) *message.Message {
				order = append(order, name)
				return next(ctx, r)
			}
		}
	}

	chained := Chain(mark("a"), LoggingMiddleware(zaptest.NewLogger(t)), mark("b"), TimeoutMiddleware(500*time.Millisecond))
	resp := chained(echoHandler)(context.Background(), req)

	require.NotNil(t, resp)
	assert.False(t, resp.Failed())
	assert.Equal(t, []string{"a", "b"}, order)
}
