// Package xdr implements the canonical external representation used on the
// data wire: fixed-width big-endian numbers and length-prefixed byte strings.
//
// Values held in memory are packed in the host's native byte order; the
// Encoder swaps them into network order on the way out and the Decoder swaps
// them back on the way in.
//
//	u32 count │ count × width bytes, big-endian      (packed array)
//	u32 len   │ len raw bytes                        (byte array / string)
package xdr

import (
	"encoding/binary"
	"errors"
	"io"
)

var (
	ErrTruncated     = errors.New("xdr: truncated stream")
	ErrTooLarge      = errors.New("xdr: count exceeds decoder limit")
	ErrCountMismatch = errors.New("xdr: element count does not match destination")
	ErrBadWidth      = errors.New("xdr: unsupported element width")
)

// Limits constrains decoder memory use.
type Limits struct {
	MaxCount     uint32 // Largest element count accepted for one array
	MaxStringLen uint32 // Largest byte length accepted for one string
	// MaxEmptyElements bounds arrays whose elements occupy no bytes on the
	// wire, where the stream length cannot back the count.
	MaxEmptyElements uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxCount:         1 << 26,
		MaxStringLen:     16 * 1024 * 1024,
		MaxEmptyElements: 1 << 16,
	}
}

func validWidth(width int) bool {
	switch width {
	case 1, 2, 4, 8:
		return true
	}
	return false
}

// toWire converts one native-order element of the given width into b in
// network order.
func toWire(dst, src []byte, width int) {
	switch width {
	case 1:
		dst[0] = src[0]
	case 2:
		binary.BigEndian.PutUint16(dst, binary.NativeEndian.Uint16(src))
	case 4:
		binary.BigEndian.PutUint32(dst, binary.NativeEndian.Uint32(src))
	case 8:
		binary.BigEndian.PutUint64(dst, binary.NativeEndian.Uint64(src))
	}
}

func fromWire(dst, src []byte, width int) {
	switch width {
	case 1:
		dst[0] = src[0]
	case 2:
		binary.NativeEndian.PutUint16(dst, binary.BigEndian.Uint16(src))
	case 4:
		binary.NativeEndian.PutUint32(dst, binary.BigEndian.Uint32(src))
	case 8:
		binary.NativeEndian.PutUint64(dst, binary.BigEndian.Uint64(src))
	}
}

// readFull maps short reads onto ErrTruncated, keeping other I/O errors.
func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return ErrTruncated
		}
		return err
	}
	return nil
}
