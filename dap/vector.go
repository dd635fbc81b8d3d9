package dap

import (
	"bytes"
	"context"
	"slices"

	"github.com/pkg/errors"

	"mini-dap/xdr"
)

// growBatch is the extra capacity reserved when Assign writes past the end of
// aggregate storage.
const growBatch = 10

// initialCap caps the capacity reserved for decoded strings and children
// before their elements arrive.
const initialCap = 1024

// Vector is the storage engine shared by Array and List. It owns an element
// prototype and holds exactly one storage matching the prototype's class.
//
// A length of -1 means the length is not yet known; the first CopyIn or
// Deserialize adopts it.
type Vector struct {
	Base
	owner  Value
	length int
	proto  Value

	buf  []byte   // numeric: length * proto.Width() native bytes
	strs []string // text
	vals []Value  // aggregate; len(vals) <= length, nil slots are unassigned
}

func (v *Vector) init(owner Value, name string, typ Type, proto Value) {
	v.Base = Base{name: name, typ: typ}
	v.owner = owner
	v.length = -1
	if proto != nil {
		v.Attach(proto)
	}
}

func (v *Vector) class() Class {
	if v.proto == nil {
		return ClassNone
	}
	return v.proto.Type().Class()
}

// Prototype returns the element template. Its content is scratch space.
func (v *Vector) Prototype() Value { return v.proto }

// Attach installs a duplicate of proto as the element template. A named
// prototype renames the vector; an unnamed one takes the vector's name.
// Storage is dropped when the element type changes.
func (v *Vector) Attach(proto Value) {
	if proto == nil {
		v.proto = nil
		v.dropStorage()
		return
	}
	p := proto.Duplicate()
	if p.Name() != "" {
		v.name = p.Name()
	} else {
		p.SetName(v.name)
	}
	p.SetParent(v.owner)
	if v.proto == nil || v.proto.Type() != p.Type() {
		v.dropStorage()
	}
	v.proto = p
}

func (v *Vector) dropStorage() {
	v.buf = nil
	v.strs = nil
	v.vals = nil
}

// SetName renames the vector and its prototype.
func (v *Vector) SetName(name string) {
	v.name = name
	if v.proto != nil {
		v.proto.SetName(name)
	}
}

// Length is the declared element count, -1 when unknown.
func (v *Vector) Length() int { return v.length }

// SetLength changes the declared count without touching storage.
func (v *Vector) SetLength(n int) { v.length = n }

// Capacity is the number of element slots currently held by the storage.
func (v *Vector) Capacity() int {
	switch v.class() {
	case ClassNumeric:
		return len(v.buf) / v.proto.Width()
	case ClassText:
		return len(v.strs)
	case ClassAggregate:
		return len(v.vals)
	}
	return 0
}

func (v *Vector) Width() int {
	if v.proto == nil {
		return 0
	}
	return max(v.length, 0) * v.proto.Width()
}

func (v *Vector) SetSend(state bool) {
	v.send = state
	if v.proto != nil {
		v.proto.SetSend(state)
	}
	for _, c := range v.vals {
		if c != nil {
			c.SetSend(state)
		}
	}
}

func (v *Vector) SetRead(state bool) {
	v.read = state
	if v.proto != nil {
		v.proto.SetRead(state)
	}
	for _, c := range v.vals {
		if c != nil {
			c.SetRead(state)
		}
	}
}

// Var resolves name against the element prototype.
func (v *Vector) Var(name string) Value {
	if v.proto == nil {
		return nil
	}
	if name == "" || name == v.proto.Name() {
		return v.proto
	}
	if l, ok := v.proto.(Lookup); ok {
		return l.Var(name)
	}
	return nil
}

// Resize sets the number of aggregate slots to n. Growing adds nil slots;
// shrinking releases the tail.
func (v *Vector) Resize(n int) error {
	if v.proto == nil {
		return internalErr(ErrNoPrototype, "resizing %q", v.name)
	}
	if v.class() != ClassAggregate {
		return internalErr(ErrWrongStorage, "resize of %q: element type %s is not an aggregate", v.name, v.proto.Type())
	}
	next := make([]Value, max(n, 0))
	copy(next, v.vals)
	v.vals = next
	return nil
}

// ElementAt returns element i. For numeric and text vectors the result is the
// prototype loaded with element i: it aliases vector state and is overwritten
// by the next call. For aggregate vectors it is the stored child itself.
func (v *Vector) ElementAt(i int) (Value, error) {
	if v.proto == nil {
		return nil, internalErr(ErrNoPrototype, "element of %q", v.name)
	}
	if i < 0 || i >= v.length {
		return nil, internalErr(ErrOutOfRange, "element %d of %q with length %d", i, v.name, v.length)
	}
	switch v.class() {
	case ClassNumeric:
		w := v.proto.Width()
		if len(v.buf) < (i+1)*w {
			return nil, internalErr(ErrNoStorage, "element %d of %q", i, v.name)
		}
		if _, err := v.proto.DecodeFrom(v.buf[i*w : (i+1)*w]); err != nil {
			return nil, err
		}
		return v.proto, nil
	case ClassText:
		if i >= len(v.strs) {
			return nil, internalErr(ErrNoStorage, "element %d of %q", i, v.name)
		}
		t, ok := v.proto.(textual)
		if !ok {
			return nil, internalErr(ErrTypeMismatch, "prototype of %q is %T", v.name, v.proto)
		}
		t.SetText(v.strs[i])
		return v.proto, nil
	case ClassAggregate:
		if i >= len(v.vals) || v.vals[i] == nil {
			return nil, internalErr(ErrNoStorage, "element %d of %q is unassigned", i, v.name)
		}
		return v.vals[i], nil
	}
	return nil, internalErr(ErrUnknownType, "element type %s", v.proto.Type())
}

// Element returns an independent copy of element i.
func (v *Vector) Element(i int) (Value, error) {
	e, err := v.ElementAt(i)
	if err != nil {
		return nil, err
	}
	return e.Duplicate(), nil
}

// Assign stores a duplicate of val at slot i of an aggregate vector, growing
// the slot table if needed.
func (v *Vector) Assign(i int, val Value) error {
	if v.proto == nil {
		return internalErr(ErrNoPrototype, "assign to %q", v.name)
	}
	if v.class() != ClassAggregate {
		return internalErr(ErrWrongStorage, "assign to %q: element type %s is not an aggregate", v.name, v.proto.Type())
	}
	if i < 0 || i >= v.length {
		return internalErr(ErrOutOfRange, "assign %d to %q with length %d", i, v.name, v.length)
	}
	if val == nil {
		return internalErr(ErrNilValue, "assign %d to %q", i, v.name)
	}
	if val.Type() != v.proto.Type() {
		return internalErr(ErrTypeMismatch, "assign %s to %q of %s", val.Type(), v.name, v.proto.Type())
	}

	if i >= cap(v.vals) {
		next := make([]Value, len(v.vals), i+growBatch)
		copy(next, v.vals)
		v.vals = next
	}
	if i >= len(v.vals) {
		v.vals = v.vals[:i+1]
	}
	c := val.Duplicate()
	c.SetParent(v.owner)
	v.vals[i] = c
	return nil
}

// CopyIn bulk-loads a numeric or text vector. values must be a slice of the
// Go type matching the element type ([]int32 for Int32, []string for String
// and Url, ...).
func (v *Vector) CopyIn(values any) error {
	if v.proto == nil {
		return internalErr(ErrNoPrototype, "copy into %q", v.name)
	}
	if values == nil {
		return internalErr(ErrNilValue, "copy into %q", v.name)
	}
	switch v.class() {
	case ClassNumeric:
		buf, n, t := packSlice(values)
		if t != v.proto.Type() {
			return internalErr(ErrTypeMismatch, "copy %T into %q of %s", values, v.name, v.proto.Type())
		}
		if err := v.adoptLength(n); err != nil {
			return err
		}
		v.buf = buf
	case ClassText:
		ss, ok := values.([]string)
		if !ok {
			return internalErr(ErrTypeMismatch, "copy %T into %q of %s", values, v.name, v.proto.Type())
		}
		if err := v.adoptLength(len(ss)); err != nil {
			return err
		}
		v.strs = make([]string, len(ss))
		copy(v.strs, ss)
	case ClassAggregate:
		return internalErr(ErrWrongStorage, "copy into %q: aggregate elements are set with Assign", v.name)
	default:
		return internalErr(ErrUnknownType, "element type %s", v.proto.Type())
	}
	return nil
}

func (v *Vector) adoptLength(n int) error {
	if v.length == -1 {
		v.length = n
		return nil
	}
	if n != v.length {
		return internalErr(ErrLengthMismatch, "%q has length %d, got %d values", v.name, v.length, n)
	}
	return nil
}

// CopyOut returns a fresh typed slice with the vector's numeric or text
// content.
func (v *Vector) CopyOut() (any, error) {
	if v.proto == nil {
		return nil, internalErr(ErrNoPrototype, "copy out of %q", v.name)
	}
	switch v.class() {
	case ClassNumeric:
		if v.buf == nil {
			return nil, internalErr(ErrNoStorage, "copy out of %q", v.name)
		}
		return unpackSlice(v.proto.Type(), v.buf), nil
	case ClassText:
		if v.strs == nil {
			return nil, internalErr(ErrNoStorage, "copy out of %q", v.name)
		}
		return slices.Clone(v.strs), nil
	case ClassAggregate:
		return nil, internalErr(ErrWrongStorage, "copy out of %q: aggregate elements are read with Element", v.name)
	}
	return nil, internalErr(ErrUnknownType, "element type %s", v.proto.Type())
}

// Values is the typed form of CopyOut for numeric vectors.
func Values[T Number](v *Vector) ([]T, error) {
	out, err := v.CopyOut()
	if err != nil {
		return nil, err
	}
	typed, ok := out.([]T)
	if !ok {
		return nil, internalErr(ErrTypeMismatch, "%q holds %T", v.name, out)
	}
	return typed, nil
}

func packSlice(values any) ([]byte, int, Type) {
	switch s := values.(type) {
	case []uint8:
		return pack(s), len(s), TypeByte
	case []int16:
		return pack(s), len(s), TypeInt16
	case []uint16:
		return pack(s), len(s), TypeUInt16
	case []int32:
		return pack(s), len(s), TypeInt32
	case []uint32:
		return pack(s), len(s), TypeUInt32
	case []float32:
		return pack(s), len(s), TypeFloat32
	case []float64:
		return pack(s), len(s), TypeFloat64
	}
	return nil, 0, TypeNull
}

func unpackSlice(t Type, buf []byte) any {
	switch t {
	case TypeByte:
		return unpack[uint8](buf)
	case TypeInt16:
		return unpack[int16](buf)
	case TypeUInt16:
		return unpack[uint16](buf)
	case TypeInt32:
		return unpack[int32](buf)
	case TypeUInt32:
		return unpack[uint32](buf)
	case TypeFloat32:
		return unpack[float32](buf)
	case TypeFloat64:
		return unpack[float64](buf)
	}
	return nil
}

// EncodeInto copies the packed numeric buffer into buf.
func (v *Vector) EncodeInto(buf []byte) (int, error) {
	if v.class() != ClassNumeric {
		return 0, internalErr(ErrWrongStorage, "%q does not hold numbers", v.name)
	}
	if v.buf == nil {
		return 0, internalErr(ErrNoStorage, "%q", v.name)
	}
	if len(buf) < len(v.buf) {
		return 0, internalErr(ErrShortBuffer, "%q needs %d bytes, have %d", v.name, len(v.buf), len(buf))
	}
	return copy(buf, v.buf), nil
}

// DecodeFrom replaces the packed numeric buffer with the first
// Length()*Width bytes of buf. An unknown length is derived from len(buf).
func (v *Vector) DecodeFrom(buf []byte) (int, error) {
	if v.class() != ClassNumeric {
		return 0, internalErr(ErrWrongStorage, "%q does not hold numbers", v.name)
	}
	w := v.proto.Width()
	n := v.length
	if n == -1 {
		if len(buf)%w != 0 {
			return 0, internalErr(ErrLengthMismatch, "%d bytes is not a whole number of %s", len(buf), v.proto.Type())
		}
		n = len(buf) / w
	}
	size := n * w
	if len(buf) < size {
		return 0, internalErr(ErrShortBuffer, "%q needs %d bytes, have %d", v.name, size, len(buf))
	}
	v.buf = bytes.Clone(buf[:size])
	v.length = n
	return size, nil
}

func (v *Vector) Serialize(ctx context.Context, g Gate, enc *xdr.Encoder, ceEval bool) error {
	if v.owner == nil {
		return internalErr(ErrNilValue, "vector %q is not embedded in an Array or List", v.name)
	}
	ok, err := Admit(ctx, v.owner, g, ceEval)
	if err != nil || !ok {
		return err
	}
	if v.proto == nil {
		return internalErr(ErrNoPrototype, "serializing %q", v.name)
	}
	n := v.length
	if n < 0 {
		return internalErr(ErrLengthMismatch, "length of %q is unknown", v.name)
	}

	switch v.class() {
	case ClassNumeric:
		if v.buf == nil {
			return internalErr(ErrNoStorage, "buffer of %q was not set by its source", v.name)
		}
		w := v.proto.Width()
		if len(v.buf) != n*w {
			return internalErr(ErrLengthMismatch, "%q has length %d but holds %d bytes", v.name, n, len(v.buf))
		}
		if err := enc.PutUint32(uint32(n)); err != nil {
			return transmissionErr("write length", err)
		}
		if v.proto.Type() == TypeByte {
			err = enc.PutOpaque(v.buf)
		} else {
			err = enc.PutPacked(v.buf, w)
		}
		if err != nil {
			return transmissionErr("write packed array", err)
		}
	case ClassText:
		if v.strs == nil {
			return internalErr(ErrNoStorage, "strings of %q were not set by its source", v.name)
		}
		if len(v.strs) != n {
			return internalErr(ErrLengthMismatch, "%q has length %d but holds %d strings", v.name, n, len(v.strs))
		}
		if err := enc.PutUint32(uint32(n)); err != nil {
			return transmissionErr("write length", err)
		}
		for _, s := range v.strs {
			if err := enc.PutString(s); err != nil {
				return transmissionErr("write string", err)
			}
		}
	case ClassAggregate:
		if len(v.vals) < n {
			return internalErr(ErrNoStorage, "%q has length %d but %d slots", v.name, n, len(v.vals))
		}
		if err := enc.PutUint32(uint32(n)); err != nil {
			return transmissionErr("write length", err)
		}
		for i, c := range v.vals[:n] {
			if c == nil {
				return internalErr(ErrNoStorage, "element %d of %q is unassigned", i, v.name)
			}
			syncSend(v.proto, c)
			if err := c.Serialize(ctx, g, enc, false); err != nil {
				return err
			}
		}
	default:
		return internalErr(ErrUnknownType, "element type %s", v.proto.Type())
	}
	return nil
}

// Deserialize reads the vector from dec. Storage and length change only if the
// whole vector decodes; with reuse set, a numeric buffer that is large enough
// receives the decoded values instead of being replaced.
func (v *Vector) Deserialize(dec *xdr.Decoder, reuse bool) error {
	if v.proto == nil {
		return internalErr(ErrNoPrototype, "deserializing %q", v.name)
	}
	num, err := dec.Count()
	if err != nil {
		return transmissionErr("read length", err)
	}
	n := v.length
	if n == -1 {
		n = int(num)
	} else if int(num) != n {
		return internalErr(ErrLengthMismatch, "%q declares %d elements, stream carries %d", v.name, n, num)
	}

	switch v.class() {
	case ClassNumeric:
		var buf []byte
		var inner uint32
		if v.proto.Type() == TypeByte {
			buf, inner, err = dec.Opaque(n)
		} else {
			buf, inner, err = dec.Packed(n, v.proto.Width())
		}
		if errors.Is(err, xdr.ErrCountMismatch) {
			return internalErr(ErrLengthMismatch, "packed array of %q carries %d elements, expected %d", v.name, inner, n)
		}
		if err != nil {
			return transmissionErr("read packed array", err)
		}
		if reuse && cap(v.buf) >= len(buf) {
			v.buf = v.buf[:len(buf)]
			copy(v.buf, buf)
		} else {
			v.buf = buf
		}
	case ClassText:
		strs := make([]string, 0, min(n, initialCap))
		for range n {
			s, err := dec.Text()
			if err != nil {
				return transmissionErr("read string", err)
			}
			strs = append(strs, s)
		}
		v.strs = strs
	case ClassAggregate:
		vals := make([]Value, 0, min(n, initialCap))
		for i := range n {
			c := v.proto.Duplicate()
			c.SetParent(v.owner)
			at := dec.Consumed()
			if err := c.Deserialize(dec, reuse); err != nil {
				return err
			}
			// elements with no wire content leave the count unbacked by data
			if i == 0 && dec.Consumed() == at && uint64(n) > uint64(dec.Limits().MaxEmptyElements) {
				return transmissionErr("read elements",
					errors.Wrapf(xdr.ErrTooLarge, "%d elements of %q carry no data", n, v.name))
			}
			vals = append(vals, c)
		}
		v.vals = vals
	default:
		return internalErr(ErrUnknownType, "element type %s", v.proto.Type())
	}
	v.length = n
	v.read = true
	return nil
}

// duplicateInto deep-copies v into dst, reparenting everything to owner.
func (v *Vector) duplicateInto(dst *Vector, owner Value) {
	dst.Base = v.Base.clone()
	dst.owner = owner
	dst.length = v.length
	if v.proto != nil {
		dst.proto = v.proto.Duplicate()
		dst.proto.SetParent(owner)
	}
	dst.buf = bytes.Clone(v.buf)
	if v.strs != nil {
		dst.strs = slices.Clone(v.strs)
	}
	if v.vals != nil {
		dst.vals = make([]Value, len(v.vals))
		for i, c := range v.vals {
			if c != nil {
				d := c.Duplicate()
				d.SetParent(owner)
				dst.vals[i] = d
			}
		}
	}
}

func (v *Vector) writeRange(p *printer, start, n int) {
	p.print("{")
	for i := start; i < start+n && p.err == nil; i++ {
		if i > start {
			p.print(", ")
		}
		e, err := v.ElementAt(i)
		if err != nil {
			p.fail(err)
			return
		}
		writeValue(p, e)
	}
	p.print("}")
}
