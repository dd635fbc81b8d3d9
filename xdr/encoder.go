package xdr

import (
	"encoding/binary"
	"io"
	"math"
)

// chunkSize bounds the scratch buffer used when swapping packed arrays.
const chunkSize = 4096

// Encoder writes the canonical representation to an io.Writer.
// It is not safe for concurrent use.
type Encoder struct {
	w       io.Writer
	scratch [8]byte
	written int64
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Written reports the number of bytes written so far.
func (e *Encoder) Written() int64 {
	return e.written
}

func (e *Encoder) write(b []byte) error {
	n, err := e.w.Write(b)
	e.written += int64(n)
	if err == nil && n < len(b) {
		err = io.ErrShortWrite
	}
	return err
}

func (e *Encoder) PutUint8(v uint8) error {
	e.scratch[0] = v
	return e.write(e.scratch[:1])
}

func (e *Encoder) PutUint16(v uint16) error {
	binary.BigEndian.PutUint16(e.scratch[:2], v)
	return e.write(e.scratch[:2])
}

func (e *Encoder) PutInt16(v int16) error {
	return e.PutUint16(uint16(v))
}

func (e *Encoder) PutUint32(v uint32) error {
	binary.BigEndian.PutUint32(e.scratch[:4], v)
	return e.write(e.scratch[:4])
}

func (e *Encoder) PutInt32(v int32) error {
	return e.PutUint32(uint32(v))
}

func (e *Encoder) PutUint64(v uint64) error {
	binary.BigEndian.PutUint64(e.scratch[:8], v)
	return e.write(e.scratch[:8])
}

func (e *Encoder) PutFloat32(v float32) error {
	return e.PutUint32(math.Float32bits(v))
}

func (e *Encoder) PutFloat64(v float64) error {
	return e.PutUint64(math.Float64bits(v))
}

// PutOpaque writes the byte-array primitive: u32 length then the raw bytes.
func (e *Encoder) PutOpaque(b []byte) error {
	if uint64(len(b)) > math.MaxUint32 {
		return ErrTooLarge
	}
	if err := e.PutUint32(uint32(len(b))); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	return e.write(b)
}

// PutString writes a string with the byte-array primitive.
func (e *Encoder) PutString(s string) error {
	if uint64(len(s)) > math.MaxUint32 {
		return ErrTooLarge
	}
	if err := e.PutUint32(uint32(len(s))); err != nil {
		return err
	}
	if len(s) == 0 {
		return nil
	}
	n, err := io.WriteString(e.w, s)
	e.written += int64(n)
	if err == nil && n < len(s) {
		err = io.ErrShortWrite
	}
	return err
}

// PutPacked writes the general fixed-width array primitive: u32 element count
// followed by each element of buf (native order, width bytes each) in network
// order.
func (e *Encoder) PutPacked(buf []byte, width int) error {
	if !validWidth(width) || len(buf)%width != 0 {
		return ErrBadWidth
	}
	count := len(buf) / width
	if uint64(count) > math.MaxUint32 {
		return ErrTooLarge
	}
	if err := e.PutUint32(uint32(count)); err != nil {
		return err
	}
	if width == 1 {
		if count == 0 {
			return nil
		}
		return e.write(buf)
	}

	out := make([]byte, min(len(buf), chunkSize))
	for off := 0; off < len(buf); {
		n := min(len(buf)-off, len(out))
		for i := 0; i < n; i += width {
			toWire(out[i:i+width], buf[off+i:off+i+width], width)
		}
		if err := e.write(out[:n]); err != nil {
			return err
		}
		off += n
	}
	return nil
}
