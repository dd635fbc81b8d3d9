// Package transport implements the client-side transport layer with multiplexing and heartbeat.
//
// ClientTransport carries many concurrent requests over a single TCP connection.
// Each request gets a unique sequence ID, and a background goroutine (recvLoop)
// continuously reads responses and routes them to the correct caller via pending channels.
//
//	goroutine-1 ──Send(seq=1)──┐
//	goroutine-2 ──Send(seq=2)──┼──→ single TCP conn ──→ Server
//	goroutine-3 ──Send(seq=3)──┘
//
//	recvLoop:  ←── response(seq=2) → pending[2] chan ← response → goroutine-2 wakes up
package transport

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"mini-dap/codec"
	"mini-dap/message"
	"mini-dap/protocol"
)

const DefaultHeartbeat = 30 * time.Second

var ErrClosed = errors.New("transport closed")

// ClientTransport manages a single multiplexed TCP connection.
type ClientTransport struct {
	conn    net.Conn        // Underlying TCP connection
	codec   codec.CodecType // Serialization format for this transport
	maxBody uint32          // Largest response body accepted
	seq     uint32          // Monotonically increasing sequence number (protected by sending mutex)
	pending sync.Map        // map[uint32]chan *message.Message, each request waits on its own channel
	sending sync.Mutex      // Write lock: frames from concurrent callers must not interleave
	err     error           // First connection error; set under sending, never cleared
	done    chan struct{}   // Closed when the transport stops
	once    sync.Once
}

// NewClientTransport creates a transport for the given connection and starts two background goroutines:
//   - recvLoop: continuously reads responses from the connection and dispatches to pending callers
//   - heartbeatLoop: sends periodic heartbeat frames to detect dead connections
func NewClientTransport(conn net.Conn, codecType codec.CodecType, heartbeat time.Duration, maxBody uint32) *ClientTransport {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	if maxBody == 0 {
		maxBody = protocol.DefaultMaxBodyLen
	}
	t := &ClientTransport{
		conn:    conn,
		codec:   codecType,
		maxBody: maxBody,
		done:    make(chan struct{}),
	}
	go t.recvLoop()
	go t.heartbeatLoop(heartbeat)
	return t
}

// Send encodes and sends a request over the connection.
// Returns the sequence number and a channel that will receive the response.
// The sending mutex makes the whole frame (header + body) one atomic write.
func (t *ClientTransport) Send(req *message.Message) (uint32, <-chan *message.Message, error) {
	t.sending.Lock()
	defer t.sending.Unlock()
	if t.err != nil {
		return 0, nil, t.err
	}

	t.seq++
	seq := t.seq

	body, err := codec.GetCodec(t.codec).Encode(req)
	if err != nil {
		return 0, nil, err
	}

	header := protocol.Header{
		CodecType: byte(t.codec),
		MsgType:   protocol.MsgTypeRequest,
		Seq:       seq,
	}

	// Register a response channel BEFORE sending (avoid race with recvLoop)
	respChan := make(chan *message.Message, 1) // Buffered to prevent recvLoop from blocking
	t.pending.Store(seq, respChan)

	if err := protocol.Encode(t.conn, &header, body); err != nil {
		t.pending.Delete(seq)
		return 0, nil, err
	}

	return seq, respChan, nil
}

// Cancel forgets a pending request whose caller gave up waiting.
func (t *ClientTransport) Cancel(seq uint32) {
	t.pending.Delete(seq)
}

// recvLoop runs in a dedicated goroutine, continuously reading responses from the connection.
// For each response, it looks up the sequence number in the pending map, finds the caller's
// channel, and sends the response. Responses can arrive in any order.
func (t *ClientTransport) recvLoop() {
	for {
		header, body, err := protocol.DecodeWithLimit(t.conn, t.maxBody)
		if err != nil {
			t.fail(err)
			return
		}

		var resp message.Message
		cdc := codec.GetCodec(codec.CodecType(header.CodecType))
		if err := cdc.Decode(body, &resp); err != nil {
			resp = message.Message{Error: err.Error(), ErrorKind: message.KindTransmission}
		}

		if channel, ok := t.pending.LoadAndDelete(header.Seq); ok {
			channel.(chan *message.Message) <- &resp
		}
	}
}

// fail records the connection error, stops the transport, and tells every
// pending caller so they don't block forever waiting for a response.
func (t *ClientTransport) fail(err error) {
	t.sending.Lock()
	if t.err == nil {
		t.err = errors.Wrap(err, "connection lost")
	}
	t.sending.Unlock()
	t.stop()

	t.pending.Range(func(key, value any) bool {
		t.pending.Delete(key)
		value.(chan *message.Message) <- &message.Message{Error: t.Err().Error(), ErrorKind: message.KindUnavailable}
		return true
	})
}

func (t *ClientTransport) stop() {
	t.once.Do(func() {
		close(t.done)
		t.conn.Close()
	})
}

// Err returns the error that broke the connection, or nil while it is usable.
func (t *ClientTransport) Err() error {
	t.sending.Lock()
	defer t.sending.Unlock()
	return t.err
}

// Close shuts the connection down. Pending callers receive an unavailable response.
func (t *ClientTransport) Close() error {
	t.sending.Lock()
	if t.err == nil {
		t.err = errors.WithStack(ErrClosed)
	}
	t.sending.Unlock()
	t.stop()
	return nil
}

// Conn returns the underlying TCP connection.
func (t *ClientTransport) Conn() net.Conn {
	return t.conn
}

// heartbeatLoop sends periodic heartbeat frames to keep the connection alive.
// Heartbeat frames have MsgType=Heartbeat and no body, so they're very lightweight.
func (t *ClientTransport) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}
		header := &protocol.Header{MsgType: protocol.MsgTypeHeartbeat, CodecType: byte(t.codec)}
		// Heartbeat writes also need the sending lock to avoid frame interleaving
		t.sending.Lock()
		err := protocol.Encode(t.conn, header, nil)
		t.sending.Unlock()
		if err != nil {
			return // Connection broken; recvLoop reports it
		}
	}
}
