package dap

import (
	"context"
	"io"
	"strings"

	"mini-dap/xdr"
)

// Structure is an ordered record of named fields.
type Structure struct {
	Base
	vars []Value
}

func NewStructure(name string) *Structure {
	return &Structure{Base: Base{name: name, typ: TypeStructure}}
}

// AddVar appends a duplicate of v as the last field.
func (s *Structure) AddVar(v Value) {
	c := v.Duplicate()
	c.SetParent(s)
	s.vars = append(s.vars, c)
}

func (s *Structure) Vars() []Value { return s.vars }

// Var finds a field by name, or by a dotted path relative to s. Unqualified
// names are also searched for in nested fields.
func (s *Structure) Var(name string) Value {
	return findVar(s.vars, name)
}

func findVar(vars []Value, name string) Value {
	if head, rest, ok := strings.Cut(name, "."); ok {
		for _, v := range vars {
			if v.Name() == head {
				if l, ok := v.(Lookup); ok {
					return l.Var(rest)
				}
				return nil
			}
		}
		return nil
	}
	for _, v := range vars {
		if v.Name() == name {
			return v
		}
	}
	for _, v := range vars {
		if l, ok := v.(Lookup); ok {
			if found := l.Var(name); found != nil {
				return found
			}
		}
	}
	return nil
}

func (s *Structure) Width() int {
	w := 0
	for _, v := range s.vars {
		w += v.Width()
	}
	return w
}

func (s *Structure) SetSend(state bool) {
	s.send = state
	for _, v := range s.vars {
		v.SetSend(state)
	}
}

func (s *Structure) SetRead(state bool) {
	s.read = state
	for _, v := range s.vars {
		v.SetRead(state)
	}
}

func (s *Structure) Duplicate() Value {
	c := &Structure{Base: s.Base.clone(), vars: make([]Value, len(s.vars))}
	for i, v := range s.vars {
		d := v.Duplicate()
		d.SetParent(c)
		c.vars[i] = d
	}
	return c
}

// Serialize writes the fields marked for sending, in declaration order.
func (s *Structure) Serialize(ctx context.Context, g Gate, enc *xdr.Encoder, ceEval bool) error {
	ok, err := Admit(ctx, s, g, ceEval)
	if err != nil || !ok {
		return err
	}
	for _, v := range s.vars {
		if !v.Send() {
			continue
		}
		if err := v.Serialize(ctx, g, enc, false); err != nil {
			return err
		}
	}
	return nil
}

func (s *Structure) Deserialize(dec *xdr.Decoder, reuse bool) error {
	for _, v := range s.vars {
		if err := v.Deserialize(dec, reuse); err != nil {
			return err
		}
	}
	s.read = true
	return nil
}

func (s *Structure) EncodeInto(buf []byte) (int, error) {
	return encodeFields(s.vars, buf)
}

func (s *Structure) DecodeFrom(buf []byte) (int, error) {
	return decodeFields(s.vars, buf)
}

func (s *Structure) PrintDecl(w io.Writer, indent string, constrained bool) error {
	return printDecl(w, s, indent, constrained)
}

func (s *Structure) PrintVal(w io.Writer, indent string, withDecl bool) error {
	return printVal(w, s, indent, withDecl)
}

// encodeFields lays out the native representation of each field back to back.
func encodeFields(vars []Value, buf []byte) (int, error) {
	off := 0
	for _, v := range vars {
		n, err := v.EncodeInto(buf[off:])
		if err != nil {
			return off, err
		}
		off += n
	}
	return off, nil
}

func decodeFields(vars []Value, buf []byte) (int, error) {
	off := 0
	for _, v := range vars {
		n, err := v.DecodeFrom(buf[off:])
		if err != nil {
			return off, err
		}
		off += n
	}
	return off, nil
}
