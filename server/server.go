// Package server implements the dap server with a dataset catalog, middleware chain,
// parallel request processing, and graceful shutdown.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (single goroutine reads frames)
//	  → for each request: go handleRequest (parallel processing)
//	    → Codec.Decode → Middleware Chain → dispatch (version / dds / data) → Codec.Encode → write response
package server

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"mini-dap/codec"
	"mini-dap/message"
	"mini-dap/middleware"
	"mini-dap/protocol"
	"mini-dap/registry"
)

var ErrShutdownTimeout = errors.New("timeout waiting for ongoing requests to finish")

// Server publishes the datasets of its catalog.
type Server struct {
	catalog *Catalog
	log     *zap.Logger
	clock   clock.Clock
	budget  time.Duration // Bookkeeping budget of a data response, 0 = unbounded
	maxBody uint32        // Largest request frame body accepted
	ttl     int64         // Registry lease TTL in seconds

	listener  net.Listener
	ready     chan struct{} // Closed once Serve has tried to listen
	readyOnce sync.Once

	ctx    context.Context // Parent of every request context, cancelled on forced shutdown
	cancel context.CancelFunc

	wg          sync.WaitGroup          // Tracks in-flight requests for graceful shutdown
	shutdown    atomic.Bool             // Set to true during shutdown to suppress Accept errors
	middlewares []middleware.Middleware // Registered middlewares (applied in order)
	handler     middleware.HandlerFunc  // middleware(middleware(...(dispatch)))

	connMu sync.Mutex
	conns  map[net.Conn]struct{}

	registry      registry.Registry // Dataset registry, nil if not using discovery
	advertiseAddr string            // Address registered for every dataset (e.g., "127.0.0.1:8080")
	// Different from listen address (":8080") because clients need a routable IP
}

type Option func(*Server)

func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithBudget bounds the time a data response may spend outside data reads.
func WithBudget(d time.Duration) Option {
	return func(s *Server) { s.budget = d }
}

func WithClock(c clock.Clock) Option {
	return func(s *Server) { s.clock = c }
}

func WithMaxBody(n uint32) Option {
	return func(s *Server) { s.maxBody = n }
}

func WithLeaseTTL(seconds int64) Option {
	return func(s *Server) { s.ttl = seconds }
}

// NewServer creates a server publishing the datasets of catalog.
func NewServer(catalog *Catalog, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		catalog: catalog,
		log:     zap.NewNop(),
		clock:   clock.New(),
		maxBody: protocol.DefaultMaxBodyLen,
		ttl:     10,
		ready:   make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Use registers a middleware. Middlewares are applied in the order they are added.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Serve starts the server: listens on the given address, optionally registers every
// dataset of the catalog, and enters the Accept loop to handle incoming connections.
//
// Parameters:
//   - advertiseAddr: the address to register (e.g., "127.0.0.1:8080").
//     This differs from the listen address because ":8080" resolves to "[::]:8080" locally.
//     When empty, the listener's address is used.
//   - reg: the registry implementation. Pass nil to skip discovery.
func (svr *Server) Serve(network, address string, advertiseAddr string, reg registry.Registry) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		svr.readyOnce.Do(func() { close(svr.ready) })
		return errors.Wrapf(err, "listen on %s", address)
	}
	svr.listener = listener

	// Build the middleware chain once at startup (not per-request)
	// Chain wraps middlewares in reverse order to create the onion model:
	//   Chain(A, B, C)(handler) → A(B(C(handler)))
	svr.handler = middleware.Chain(svr.middlewares...)(svr.dispatch)

	if advertiseAddr == "" {
		advertiseAddr = listener.Addr().String()
	}
	svr.advertiseAddr = advertiseAddr
	if reg != nil {
		svr.registry = reg
		for _, name := range svr.catalog.Names() {
			inst := registry.ServiceInstance{Addr: advertiseAddr, Weight: 1, Version: Version}
			if err := reg.Register(name, inst, svr.ttl); err != nil {
				listener.Close()
				svr.readyOnce.Do(func() { close(svr.ready) })
				return errors.Wrapf(err, "register dataset %s", name)
			}
		}
	}
	svr.readyOnce.Do(func() { close(svr.ready) })
	svr.log.Info("serving",
		zap.String("addr", listener.Addr().String()),
		zap.String("advertise", advertiseAddr),
		zap.Strings("datasets", svr.catalog.Names()))

	// Accept loop: one goroutine per connection
	for {
		conn, err := listener.Accept()
		if err != nil {
			// During shutdown, listener.Close() causes Accept to return an error.
			// Check the shutdown flag to distinguish intentional close from real errors.
			if svr.shutdown.Load() {
				return nil
			}
			return errors.Wrap(err, "accept")
		}
		go svr.handleConn(conn)
	}
}

// Addr waits until Serve has started listening and returns the listener
// address, or nil if listening failed.
func (svr *Server) Addr() net.Addr {
	<-svr.ready
	if svr.listener == nil {
		return nil
	}
	return svr.listener.Addr()
}

// handleConn processes a single TCP connection.
// It runs a read loop in a single goroutine (reads must be sequential to parse frame boundaries),
// but dispatches each request to its own goroutine for parallel processing.
//
// A per-connection write mutex (writeMu) is shared among all request goroutines on this connection.
// This prevents frame interleaving when multiple goroutines write responses concurrently.
func (svr *Server) handleConn(conn net.Conn) {
	svr.track(conn, true)
	defer svr.track(conn, false)
	defer conn.Close()

	writeMu := &sync.Mutex{}
	for {
		header, body, err := protocol.DecodeWithLimit(conn, svr.maxBody)
		if err != nil {
			if !svr.shutdown.Load() && !isClosed(err) {
				svr.log.Warn("dropping connection", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
			}
			return
		}

		// Skip heartbeat frames, they exist only to keep the connection alive
		if header.MsgType == protocol.MsgTypeHeartbeat {
			continue
		}

		// Without `go`, a slow data read on request 1 would block every later
		// request on the same connection.
		svr.wg.Add(1)
		go svr.handleRequest(header, body, conn, writeMu)
	}
}

func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF)
}

func (svr *Server) track(conn net.Conn, add bool) {
	svr.connMu.Lock()
	defer svr.connMu.Unlock()
	if add {
		svr.conns[conn] = struct{}{}
	} else {
		delete(svr.conns, conn)
	}
}

// handleRequest processes a single request: decode → middleware → dispatch → encode → write.
func (svr *Server) handleRequest(header *protocol.Header, body []byte, conn net.Conn, writeMu *sync.Mutex) {
	defer svr.wg.Done()

	// Step 1: Decode the frame body using the codec the client chose
	c := codec.GetCodec(codec.CodecType(header.CodecType))
	var req message.Message
	var resp *message.Message
	if err := c.Decode(body, &req); err != nil {
		resp = message.Failure(nil, message.KindBadRequest, err.Error())
	} else {
		// Step 2: Run through the middleware chain → dispatch
		resp = svr.handler(svr.ctx, &req)
	}

	// Step 3: Encode and write the response (protected by per-connection write lock)
	result, err := c.Encode(resp)
	if err != nil {
		svr.log.Error("encode response", zap.String("method", req.Method), zap.Error(err))
		return
	}

	writeMu.Lock()
	defer writeMu.Unlock()

	// Build response header, preserving the Seq so the client can match it
	replyHeader := protocol.Header{
		CodecType: header.CodecType,
		MsgType:   protocol.MsgTypeResponse,
		Seq:       header.Seq,
	}
	if err := protocol.Encode(conn, &replyHeader, result); err != nil {
		svr.log.Warn("write response", zap.String("method", req.Method), zap.Error(err))
	}
}

// Shutdown performs graceful shutdown:
//  1. Deregister all datasets (clients stop routing to this server)
//  2. Set shutdown flag (so Accept error is recognized as intentional)
//  3. Close the listener (stop accepting new connections)
//  4. Wait for in-flight requests to finish (with timeout), then close connections
func (svr *Server) Shutdown(timeout time.Duration) error {
	// Step 1: Deregister FIRST, so clients stop sending new requests
	if svr.registry != nil {
		for _, name := range svr.catalog.Names() {
			if err := svr.registry.Deregister(name, svr.advertiseAddr); err != nil {
				svr.log.Warn("deregister", zap.String("dataset", name), zap.Error(err))
			}
		}
	}

	// Step 2: Set shutdown flag BEFORE closing listener
	// If we close first, the Accept error fires before the flag is set,
	// and Serve() would return a real error instead of nil
	svr.shutdown.Store(true)
	if svr.listener != nil {
		svr.listener.Close()
	}

	// Step 3: Wait for in-flight requests with timeout
	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = errors.WithStack(ErrShutdownTimeout)
	}
	svr.cancel()

	// Step 4: Close idle connections so their read loops exit
	svr.connMu.Lock()
	for conn := range svr.conns {
		conn.Close()
	}
	svr.connMu.Unlock()
	return err
}
