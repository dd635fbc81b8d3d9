package dap

import (
	"context"
	"io"
	"strconv"
	"unsafe"

	"mini-dap/xdr"
)

// Number lists the Go types backing the numeric variants.
type Number interface {
	uint8 | int16 | uint16 | int32 | uint32 | float32 | float64
}

// Numeric is a scalar holding one number.
type Numeric[T Number] struct {
	Base
	val T
}

type (
	Byte    = Numeric[uint8]
	Int16   = Numeric[int16]
	UInt16  = Numeric[uint16]
	Int32   = Numeric[int32]
	UInt32  = Numeric[uint32]
	Float32 = Numeric[float32]
	Float64 = Numeric[float64]
)

func typeOf[T Number]() Type {
	var z T
	switch any(z).(type) {
	case uint8:
		return TypeByte
	case int16:
		return TypeInt16
	case uint16:
		return TypeUInt16
	case int32:
		return TypeInt32
	case uint32:
		return TypeUInt32
	case float32:
		return TypeFloat32
	case float64:
		return TypeFloat64
	}
	return TypeNull
}

func NewNumeric[T Number](name string) *Numeric[T] {
	return &Numeric[T]{Base: Base{name: name, typ: typeOf[T]()}}
}

func NewByte(name string) *Byte { return NewNumeric[uint8](name) }
func NewInt16(name string) *Int16 { return NewNumeric[int16](name) }
func NewUInt16(name string) *UInt16 { return NewNumeric[uint16](name) }
func NewInt32(name string) *Int32 { return NewNumeric[int32](name) }
func NewUInt32(name string) *UInt32 { return NewNumeric[uint32](name) }
func NewFloat32(name string) *Float32 { return NewNumeric[float32](name) }
func NewFloat64(name string) *Float64 { return NewNumeric[float64](name) }

func (n *Numeric[T]) Value() T { return n.val }
func (n *Numeric[T]) SetValue(v T) { n.val = v }
func (n *Numeric[T]) Width() int { return int(unsafe.Sizeof(n.val)) }
func (n *Numeric[T]) Duplicate() Value {
	c := *n
	c.Base = n.Base.clone()
	return &c
}

func (n *Numeric[T]) Serialize(ctx context.Context, g Gate, enc *xdr.Encoder, ceEval bool) error {
	ok, err := Admit(ctx, n, g, ceEval)
	if err != nil || !ok {
		return err
	}
	if err := putNumber(enc, n.val); err != nil {
		return transmissionErr("write "+n.typ.String(), err)
	}
	return nil
}

func (n *Numeric[T]) Deserialize(dec *xdr.Decoder, _ bool) error {
	v, err := getNumber[T](dec)
	if err != nil {
		return transmissionErr("read "+n.typ.String(), err)
	}
	n.val = v
	n.read = true
	return nil
}

func (n *Numeric[T]) EncodeInto(buf []byte) (int, error) {
	src := nativeBytes(&n.val)
	if len(buf) < len(src) {
		return 0, internalErr(ErrShortBuffer, "%s needs %d bytes, have %d", n.name, len(src), len(buf))
	}
	return copy(buf, src), nil
}

func (n *Numeric[T]) DecodeFrom(buf []byte) (int, error) {
	dst := nativeBytes(&n.val)
	if len(buf) < len(dst) {
		return 0, internalErr(ErrShortBuffer, "%s needs %d bytes, have %d", n.name, len(dst), len(buf))
	}
	return copy(dst, buf), nil
}

func (n *Numeric[T]) PrintDecl(w io.Writer, indent string, constrained bool) error {
	return printDecl(w, n, indent, constrained)
}

func (n *Numeric[T]) PrintVal(w io.Writer, indent string, withDecl bool) error {
	return printVal(w, n, indent, withDecl)
}

func (n *Numeric[T]) text() string {
	return formatNumber(n.val)
}

func formatNumber[T Number](v T) string {
	switch x := any(v).(type) {
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	}
	return "?"
}

func putNumber[T Number](enc *xdr.Encoder, v T) error {
	switch x := any(v).(type) {
	case uint8:
		return enc.PutUint8(x)
	case int16:
		return enc.PutInt16(x)
	case uint16:
		return enc.PutUint16(x)
	case int32:
		return enc.PutInt32(x)
	case uint32:
		return enc.PutUint32(x)
	case float32:
		return enc.PutFloat32(x)
	case float64:
		return enc.PutFloat64(x)
	}
	return ErrUnknownType
}

func getNumber[T Number](dec *xdr.Decoder) (T, error) {
	var (
		z   T
		v   any
		err error
	)
	switch any(z).(type) {
	case uint8:
		v, err = dec.Uint8()
	case int16:
		v, err = dec.Int16()
	case uint16:
		v, err = dec.Uint16()
	case int32:
		v, err = dec.Int32()
	case uint32:
		v, err = dec.Uint32()
	case float32:
		v, err = dec.Float32()
	case float64:
		v, err = dec.Float64()
	default:
		return z, ErrUnknownType
	}
	if err != nil {
		return z, err
	}
	return v.(T), nil
}

// nativeBytes views a number as its in-memory bytes.
func nativeBytes[T Number](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
}

// pack copies vals into a fresh native byte buffer.
func pack[T Number](vals []T) []byte {
	var z T
	out := make([]byte, len(vals)*int(unsafe.Sizeof(z)))
	if len(vals) > 0 {
		copy(out, unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(vals))), len(out)))
	}
	return out
}

// unpack copies a native byte buffer into a fresh typed slice.
func unpack[T Number](buf []byte) []T {
	var z T
	w := int(unsafe.Sizeof(z))
	out := make([]T, len(buf)/w)
	if len(out) > 0 {
		copy(unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(out))), len(out)*w), buf)
	}
	return out
}
