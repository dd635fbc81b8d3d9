package codec

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"mini-dap/message"
)

// BinaryCodec lays a Message out as length-prefixed big-endian fields:
//
//	method(u16+n) dataset(u16+n) constraint(u32+n) kind(u8) error(u32+n) payload(u32+n)
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	msg, ok := v.(*message.Message)
	if !ok {
		return nil, errors.WithStack(ErrWrongType)
	}
	if len(msg.Method) > math.MaxUint16 || len(msg.Dataset) > math.MaxUint16 {
		return nil, errors.Wrapf(ErrFieldTooLong, "method %d bytes, dataset %d bytes", len(msg.Method), len(msg.Dataset))
	}
	// Calculate the length of message
	total := 2 + len(msg.Method) + 2 + len(msg.Dataset) + 4 + len(msg.Constraint) +
		1 + 4 + len(msg.Error) + 4 + len(msg.Payload)
	buf := make([]byte, 0, total)

	buf = binary.BigEndian.AppendUint16(buf, uint16(len(msg.Method)))
	buf = append(buf, msg.Method...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(msg.Dataset)))
	buf = append(buf, msg.Dataset...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(msg.Constraint)))
	buf = append(buf, msg.Constraint...)
	buf = append(buf, byte(msg.ErrorKind))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(msg.Error)))
	buf = append(buf, msg.Error...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(msg.Payload)))
	buf = append(buf, msg.Payload...)
	return buf, nil
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	msg, ok := v.(*message.Message)
	if !ok {
		return errors.WithStack(ErrWrongType)
	}

	r := reader{data: data}
	method := r.field(2, "method")
	dataset := r.field(2, "dataset")
	constraint := r.field(4, "constraint")
	kind := r.octet("error kind")
	errText := r.field(4, "error")
	payload := r.field(4, "payload")
	if r.err != nil {
		return r.err
	}
	if r.off != len(data) {
		return errors.Wrapf(ErrTruncated, "%d trailing bytes", len(data)-r.off)
	}

	*msg = message.Message{
		Method:     string(method),
		Dataset:    string(dataset),
		Constraint: string(constraint),
		ErrorKind:  message.ErrorKind(kind),
		Error:      string(errText),
	}
	if len(payload) > 0 {
		msg.Payload = append([]byte(nil), payload...)
	}
	return nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

// reader walks a binary message, keeping the first bounds error.
type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.data)-r.off < n {
		r.err = errors.Wrapf(ErrTruncated, "%s: need %d bytes at offset %d, have %d", what, n, r.off, len(r.data)-r.off)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) octet(what string) byte {
	b := r.take(1, what)
	if b == nil {
		return 0
	}
	return b[0]
}

// field reads a length prefix of size bytes followed by that many bytes.
func (r *reader) field(size int, what string) []byte {
	prefix := r.take(size, what+" length")
	if prefix == nil {
		return nil
	}
	var n uint64
	if size == 2 {
		n = uint64(binary.BigEndian.Uint16(prefix))
	} else {
		n = uint64(binary.BigEndian.Uint32(prefix))
	}
	if n > uint64(len(r.data)) {
		r.err = errors.Wrapf(ErrTruncated, "%s: length %d exceeds message size %d", what, n, len(r.data))
		return nil
	}
	return r.take(int(n), what)
}
