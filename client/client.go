// Package client requests dataset descriptors and data from dap servers.
//
// Call flow:
//
//	Data(dataset) → middleware chain → registry.Discover(dataset) → Balancer.Pick(dataset)
//	  → pooled ClientTransport → wait for the response → decode descriptor and values
package client

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"mini-dap/codec"
	"mini-dap/dap"
	"mini-dap/dds"
	"mini-dap/loadbalance"
	"mini-dap/message"
	"mini-dap/middleware"
	"mini-dap/registry"
	"mini-dap/transport"
	"mini-dap/xdr"
)

// RemoteError is a failure reported by the server.
type RemoteError struct {
	Method  string
	Dataset string
	Kind    message.ErrorKind
	Msg     string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s %s: %s error: %s", e.Method, e.Dataset, e.Kind, e.Msg)
}

// Is lets callers test remote failures against the local sentinels.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case dap.ErrTimeout:
		return e.Kind == message.KindTimeout
	case registry.ErrNoInstances:
		return e.Kind == message.KindUnavailable
	}
	return false
}

type Client struct {
	registry   registry.Registry // find server instances for a dataset
	balancer   loadbalance.Balancer
	transports map[string]chan *transport.ClientTransport // transport pool for each server address
	codecType  codec.CodecType
	mu         sync.Mutex
	poolSize   int

	log         *zap.Logger
	limits      xdr.Limits
	heartbeat   time.Duration
	dialTimeout time.Duration
	handler     middleware.HandlerFunc
}

type Option func(*Client)

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithMiddleware wraps every round trip, e.g. with retries or a timeout.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(c *Client) {
		c.handler = middleware.Chain(mws...)(c.handler)
	}
}

// WithLimits bounds what decoding a response may allocate.
func WithLimits(l xdr.Limits) Option {
	return func(c *Client) { c.limits = l }
}

func WithHeartbeat(d time.Duration) Option {
	return func(c *Client) { c.heartbeat = d }
}

func NewClient(reg registry.Registry, bal loadbalance.Balancer, codecType codec.CodecType, poolSize int, opts ...Option) *Client {
	if poolSize <= 0 {
		poolSize = 1
	}
	c := &Client{
		registry:    reg,
		balancer:    bal,
		transports:  make(map[string]chan *transport.ClientTransport),
		codecType:   codecType,
		poolSize:    poolSize,
		log:         zap.NewNop(),
		limits:      xdr.DefaultLimits(),
		heartbeat:   transport.DefaultHeartbeat,
		dialTimeout: 3 * time.Second,
	}
	c.handler = c.roundTrip
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getTransport takes a transport for addr out of its pool, dialing when the
// slot is empty or its connection broke. Every taken slot must be returned
// with putTransport, even when nil.
func (c *Client) getTransport(ctx context.Context, addr string) (*transport.ClientTransport, error) {
	c.mu.Lock()
	pool, ok := c.transports[addr]
	if !ok {
		pool = make(chan *transport.ClientTransport, c.poolSize)
		for i := 0; i < c.poolSize; i++ {
			pool <- nil // dialed lazily
		}
		c.transports[addr] = pool
	}
	c.mu.Unlock()

	var t *transport.ClientTransport
	select {
	case t = <-pool:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if t != nil && t.Err() == nil {
		return t, nil
	}

	d := net.Dialer{Timeout: c.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		pool <- nil
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	c.log.Debug("connected", zap.String("addr", addr), zap.Stringer("codec", c.codecType))
	return transport.NewClientTransport(conn, c.codecType, c.heartbeat, 0), nil
}

func (c *Client) putTransport(addr string, t *transport.ClientTransport) {
	c.mu.Lock()
	pool, ok := c.transports[addr]
	c.mu.Unlock()
	if !ok {
		// the client was closed while t was in use
		if t != nil {
			t.Close()
		}
		return
	}
	pool <- t
}

// roundTrip is the innermost handler: it picks a server for the request's
// dataset and waits for its response. Transport failures come back as
// unavailable responses so that retry middleware can act on them.
func (c *Client) roundTrip(ctx context.Context, req *message.Message) *message.Message {
	instances, err := c.registry.Discover(req.Dataset)
	if err != nil {
		return message.Failure(req, message.KindUnavailable, err.Error())
	}

	instance, err := c.balancer.Pick(req.Dataset, instances)
	if err != nil {
		return message.Failure(req, message.KindUnavailable, err.Error())
	}

	t, err := c.getTransport(ctx, instance.Addr)
	if err != nil {
		return message.Failure(req, message.KindUnavailable, err.Error())
	}
	defer c.putTransport(instance.Addr, t)

	seq, ch, err := t.Send(req)
	if err != nil {
		return message.Failure(req, message.KindUnavailable, err.Error())
	}

	select {
	case resp := <-ch:
		return resp
	case <-ctx.Done():
		t.Cancel(seq)
		return message.Failure(req, message.KindTimeout, ctx.Err().Error())
	}
}

func (c *Client) call(ctx context.Context, req *message.Message) ([]byte, error) {
	resp := c.handler(ctx, req)
	if resp.Failed() {
		return nil, errors.WithStack(&RemoteError{
			Method:  req.Method,
			Dataset: req.Dataset,
			Kind:    resp.ErrorKind,
			Msg:     resp.Error,
		})
	}
	return resp.Payload, nil
}

// Version asks a server publishing dataset for its version string.
func (c *Client) Version(ctx context.Context, dataset string) (string, error) {
	payload, err := c.call(ctx, &message.Message{Method: message.MethodVersion, Dataset: dataset})
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// DDS fetches the descriptor of dataset, restricted to the variables named in
// constraint. An empty constraint selects every variable.
func (c *Client) DDS(ctx context.Context, dataset, constraint string) (*dds.DDS, error) {
	payload, err := c.call(ctx, &message.Message{Method: message.MethodDDS, Dataset: dataset, Constraint: constraint})
	if err != nil {
		return nil, err
	}
	return dds.ReadDescriptorWithLimits(bytes.NewReader(payload), c.limits)
}

// Data fetches the values of dataset restricted by constraint.
func (c *Client) Data(ctx context.Context, dataset, constraint string) (*dds.DDS, error) {
	payload, err := c.call(ctx, &message.Message{Method: message.MethodData, Dataset: dataset, Constraint: constraint})
	if err != nil {
		return nil, err
	}
	return dds.ReadData(bytes.NewReader(payload), c.limits)
}

// Close closes every pooled connection. In-flight calls fail as unavailable.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for addr, pool := range c.transports {
		for i := 0; i < len(pool); i++ {
			t := <-pool
			if t != nil {
				t.Close()
			}
			pool <- nil
		}
		delete(c.transports, addr)
	}
	return nil
}
