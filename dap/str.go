package dap

import (
	"context"
	"io"
	"strconv"

	"mini-dap/xdr"
)

// Str is a String scalar.
type Str struct {
	Base
	val string
}

func NewStr(name string) *Str {
	return &Str{Base: Base{name: name, typ: TypeString}}
}

func (s *Str) Text() string { return s.val }
func (s *Str) SetText(text string) { s.val = text }
func (s *Str) Width() int { return len(s.val) }

func (s *Str) Duplicate() Value {
	c := *s
	c.Base = s.Base.clone()
	return &c
}

func (s *Str) Serialize(ctx context.Context, g Gate, enc *xdr.Encoder, ceEval bool) error {
	return s.serialize(ctx, s, g, enc, ceEval)
}

func (s *Str) serialize(ctx context.Context, self Value, g Gate, enc *xdr.Encoder, ceEval bool) error {
	ok, err := Admit(ctx, self, g, ceEval)
	if err != nil || !ok {
		return err
	}
	if err := enc.PutString(s.val); err != nil {
		return transmissionErr("write "+s.typ.String(), err)
	}
	return nil
}

func (s *Str) Deserialize(dec *xdr.Decoder, _ bool) error {
	v, err := dec.Text()
	if err != nil {
		return transmissionErr("read "+s.typ.String(), err)
	}
	s.val = v
	s.read = true
	return nil
}

func (s *Str) EncodeInto(buf []byte) (int, error) {
	if len(buf) < len(s.val) {
		return 0, internalErr(ErrShortBuffer, "%s needs %d bytes, have %d", s.name, len(s.val), len(buf))
	}
	return copy(buf, s.val), nil
}

func (s *Str) DecodeFrom(buf []byte) (int, error) {
	s.val = string(buf)
	return len(buf), nil
}

func (s *Str) text() string {
	return strconv.Quote(s.val)
}

func (s *Str) PrintDecl(w io.Writer, indent string, constrained bool) error {
	return printDecl(w, s, indent, constrained)
}

func (s *Str) PrintVal(w io.Writer, indent string, withDecl bool) error {
	return printVal(w, s, indent, withDecl)
}

// URL is a String scalar tagged as a locator.
type URL struct {
	Str
}

func NewURL(name string) *URL {
	return &URL{Str: Str{Base: Base{name: name, typ: TypeURL}}}
}

func (u *URL) Duplicate() Value {
	c := *u
	c.Base = u.Base.clone()
	return &c
}

func (u *URL) Serialize(ctx context.Context, g Gate, enc *xdr.Encoder, ceEval bool) error {
	return u.serialize(ctx, u, g, enc, ceEval)
}

func (u *URL) PrintDecl(w io.Writer, indent string, constrained bool) error {
	return printDecl(w, u, indent, constrained)
}

func (u *URL) PrintVal(w io.Writer, indent string, withDecl bool) error {
	return printVal(w, u, indent, withDecl)
}

// textual is implemented by the String and Url variants.
type textual interface {
	Value
	Text() string
	SetText(text string)
}

// NewScalar builds an empty scalar of type t.
func NewScalar(t Type, name string) (Value, error) {
	switch t {
	case TypeByte:
		return NewByte(name), nil
	case TypeInt16:
		return NewInt16(name), nil
	case TypeUInt16:
		return NewUInt16(name), nil
	case TypeInt32:
		return NewInt32(name), nil
	case TypeUInt32:
		return NewUInt32(name), nil
	case TypeFloat32:
		return NewFloat32(name), nil
	case TypeFloat64:
		return NewFloat64(name), nil
	case TypeString:
		return NewStr(name), nil
	case TypeURL:
		return NewURL(name), nil
	}
	return nil, internalErr(ErrUnknownType, "%s is not a scalar type", t)
}
