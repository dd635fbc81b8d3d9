// Package protocol implements the binary frame protocol spoken between dap clients and servers.
//
// It solves TCP's sticky packet problem by using a fixed-size 14-byte header
// followed by a variable-length body. The receiver reads the header first to
// determine the body length, then reads exactly that many bytes.
//
// Frame format:
//
//	0      3  4  5  6         10        14
//	┌──────┬──┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ct│mt│   seq   │ bodyLen │    body ...    │
//	│ dap  │01│  │  │ uint32  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴─────────┴─────────┴───────────────┘
package protocol

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Magic number bytes: "dap".
// Used to quickly identify whether the incoming data is a valid frame,
// rejecting non-protocol connections (e.g., HTTP clients hitting the wrong port).
const (
	MagicNumber byte = 0x64 // 'd'
	MagicByte2  byte = 0x61 // 'a'
	MagicByte3  byte = 0x70 // 'p'
	Version     byte = 0x01
	HeaderSize  int  = 14 // 3 (magic) + 1 (version) + 1 (codec) + 1 (msgType) + 4 (seq) + 4 (bodyLen)

	// DefaultMaxBodyLen bounds the allocation made for a single frame body.
	DefaultMaxBodyLen uint32 = 64 << 20
)

// MsgType distinguishes request, response, and heartbeat frames.
type MsgType byte

const (
	MsgTypeRequest   MsgType = 0 // Client → Server request
	MsgTypeResponse  MsgType = 1 // Server → Client response
	MsgTypeHeartbeat MsgType = 2 // KeepAlive probe (no body)
)

// Codec type constants, mirrored from codec package to avoid circular import.
const (
	CodecTypeJSON   byte = 0
	CodecTypeBinary byte = 1
)

var (
	ErrInvalidMagic       = errors.New("protocol: invalid magic number")
	ErrUnsupportedVersion = errors.New("protocol: unsupported version")
	ErrUnsupportedCodec   = errors.New("protocol: unsupported codec type")
	ErrUnsupportedMsgType = errors.New("protocol: unsupported message type")
	ErrBodyTooLarge       = errors.New("protocol: frame body too large")
)

// Header represents the fixed 14-byte frame header.
// It carries metadata needed to decode the following body correctly.
type Header struct {
	CodecType byte    // Serialization format: 0=JSON, 1=Binary
	MsgType   MsgType // Request, Response, or Heartbeat
	Seq       uint32  // Sequence ID, matches a response to its request
	BodyLen   uint32  // Body length in bytes
}

// Encode writes a complete frame (header + body) to w in a single write.
// The caller must hold a write lock if multiple goroutines share the same writer,
// otherwise frames from different requests will interleave and corrupt the stream.
func Encode(w io.Writer, h *Header, body []byte) error {
	buf := make([]byte, HeaderSize, HeaderSize+len(body))

	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = byte(h.MsgType)
	binary.BigEndian.PutUint32(buf[6:10], h.Seq)
	binary.BigEndian.PutUint32(buf[10:14], uint32(len(body)))
	buf = append(buf, body...)

	_, err := w.Write(buf)
	return errors.Wrap(err, "write frame")
}

// Decode reads a complete frame (header + body) from r, accepting bodies up
// to DefaultMaxBodyLen.
func Decode(r io.Reader) (*Header, []byte, error) {
	return DecodeWithLimit(r, DefaultMaxBodyLen)
}

// DecodeWithLimit reads a complete frame from r.
// It validates the magic number, version, codec type, and message type, and
// refuses bodies longer than maxBody before allocating them.
// io.EOF is returned unwrapped when the peer closed the connection between frames.
func DecodeWithLimit(r io.Reader, maxBody uint32) (*Header, []byte, error) {
	// Step 1: Read the fixed 14-byte header
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		if err == io.EOF {
			return nil, nil, err
		}
		return nil, nil, errors.Wrap(err, "read frame header")
	}

	// Step 2: Validate magic number, reject non-protocol connections
	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, errors.Wrapf(ErrInvalidMagic, "%x", headerBuf[0:3])
	}

	// Step 3: Validate version
	if headerBuf[3] != Version {
		return nil, nil, errors.Wrapf(ErrUnsupportedVersion, "%d", headerBuf[3])
	}

	// Step 4: Validate codec type
	if headerBuf[4] != CodecTypeJSON && headerBuf[4] != CodecTypeBinary {
		return nil, nil, errors.Wrapf(ErrUnsupportedCodec, "%d", headerBuf[4])
	}

	// Step 5: Validate message type
	msgType := headerBuf[5]
	if msgType != byte(MsgTypeRequest) && msgType != byte(MsgTypeResponse) && msgType != byte(MsgTypeHeartbeat) {
		return nil, nil, errors.Wrapf(ErrUnsupportedMsgType, "%d", msgType)
	}

	// Step 6: Parse sequence number and body length
	seq := binary.BigEndian.Uint32(headerBuf[6:10])
	bodyLen := binary.BigEndian.Uint32(headerBuf[10:14])
	if bodyLen > maxBody {
		return nil, nil, errors.Wrapf(ErrBodyTooLarge, "%d bytes, limit %d", bodyLen, maxBody)
	}

	// Step 7: Read exactly bodyLen bytes
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, errors.Wrap(err, "read frame body")
	}

	return &Header{
		CodecType: headerBuf[4],
		MsgType:   MsgType(msgType),
		Seq:       seq,
		BodyLen:   bodyLen,
	}, body, nil
}
