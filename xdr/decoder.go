package xdr

import (
	"encoding/binary"
	"io"
	"math"
)

// Decoder reads the canonical representation from an io.Reader.
// It is not safe for concurrent use.
type Decoder struct {
	r       io.Reader
	limits  Limits
	scratch [8]byte
	read    int64
}

func NewDecoder(r io.Reader) *Decoder {
	return NewDecoderWithLimits(r, DefaultLimits())
}

func NewDecoderWithLimits(r io.Reader, limits Limits) *Decoder {
	return &Decoder{r: r, limits: limits}
}

// Consumed reports the number of bytes read so far.
func (d *Decoder) Consumed() int64 {
	return d.read
}

func (d *Decoder) fill(buf []byte) error {
	if err := readFull(d.r, buf); err != nil {
		return err
	}
	d.read += int64(len(buf))
	return nil
}

func (d *Decoder) Uint8() (uint8, error) {
	if err := d.fill(d.scratch[:1]); err != nil {
		return 0, err
	}
	return d.scratch[0], nil
}

func (d *Decoder) Uint16() (uint16, error) {
	if err := d.fill(d.scratch[:2]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(d.scratch[:2]), nil
}

func (d *Decoder) Int16() (int16, error) {
	v, err := d.Uint16()
	return int16(v), err
}

func (d *Decoder) Uint32() (uint32, error) {
	if err := d.fill(d.scratch[:4]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(d.scratch[:4]), nil
}

func (d *Decoder) Int32() (int32, error) {
	v, err := d.Uint32()
	return int32(v), err
}

func (d *Decoder) Uint64() (uint64, error) {
	if err := d.fill(d.scratch[:8]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(d.scratch[:8]), nil
}

func (d *Decoder) Float32() (float32, error) {
	v, err := d.Uint32()
	return math.Float32frombits(v), err
}

func (d *Decoder) Float64() (float64, error) {
	v, err := d.Uint64()
	return math.Float64frombits(v), err
}

// Count reads a u32 element count and checks it against the decoder limit.
func (d *Decoder) Count() (uint32, error) {
	n, err := d.Uint32()
	if err != nil {
		return 0, err
	}
	if n > d.limits.MaxCount {
		return n, ErrTooLarge
	}
	return n, nil
}

// Limits returns the limits the decoder enforces.
func (d *Decoder) Limits() Limits {
	return d.limits
}

// Text reads a length-prefixed string.
func (d *Decoder) Text() (string, error) {
	n, err := d.Uint32()
	if err != nil {
		return "", err
	}
	if n > d.limits.MaxStringLen {
		return "", ErrTooLarge
	}
	if n == 0 {
		return "", nil
	}
	buf, err := d.grow(int(n), 1)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// Opaque reads the byte-array primitive. The length on the wire must equal n;
// otherwise it is returned with ErrCountMismatch and nothing more is consumed.
func (d *Decoder) Opaque(n int) ([]byte, uint32, error) {
	return d.Packed(n, 1)
}

// Packed reads the fixed-width array primitive of n elements, converting each
// element to native order. The count on the wire must equal n.
func (d *Decoder) Packed(n, width int) ([]byte, uint32, error) {
	if !validWidth(width) || n < 0 {
		return nil, 0, ErrBadWidth
	}
	m, err := d.Uint32()
	if err != nil {
		return nil, 0, err
	}
	if uint64(m) != uint64(n) {
		return nil, m, ErrCountMismatch
	}
	buf, err := d.grow(n*width, width)
	if err != nil {
		return nil, m, err
	}
	return buf, m, nil
}

// grow reads size bytes one chunk at a time, so memory is committed only as
// the stream delivers it.
func (d *Decoder) grow(size, width int) ([]byte, error) {
	out := make([]byte, 0, min(size, chunkSize))
	for len(out) < size {
		k := min(size-len(out), chunkSize)
		off := len(out)
		out = append(out, make([]byte, k)...)
		if err := d.fill(out[off:]); err != nil {
			return nil, err
		}
		if width > 1 {
			for i := off; i < len(out); i += width {
				fromWire(out[i:i+width], out[i:i+width], width)
			}
		}
	}
	return out, nil
}
