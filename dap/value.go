// Package dap models the values of a self-describing dataset and their wire
// encoding.
//
// Every variant implements Value. Scalars hold one datum; Array and List embed
// a Vector, which keeps its elements in one of three storages chosen by the
// element prototype's type:
//
//	numeric (Byte ... Float64)  → packed native buffer
//	String, Url                 → []string
//	Array ... Grid              → []Value, each element owned by the vector
//
// Serialize always passes through the evaluation gate (see Admit) before any
// byte is written, so values are read from their Source lazily and skipped
// entirely when the selection excludes them.
package dap

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"mini-dap/xdr"
)

// Value is the capability set shared by every variant.
type Value interface {
	Name() string
	SetName(name string)
	Type() Type
	// Width is the native size in bytes. For String and aggregates it is only
	// meaningful once the value has been read.
	Width() int

	// Parent is a non-owning back reference used for name resolution.
	Parent() Value
	SetParent(p Value)

	Send() bool
	SetSend(state bool)
	IsRead() bool
	SetRead(state bool)
	Source() Source
	SetSource(src Source)

	// Duplicate returns a deep copy that shares no storage with the receiver.
	// The copy has no parent.
	Duplicate() Value

	Serialize(ctx context.Context, g Gate, enc *xdr.Encoder, ceEval bool) error
	Deserialize(dec *xdr.Decoder, reuse bool) error

	// EncodeInto copies the value's native representation into buf.
	EncodeInto(buf []byte) (int, error)
	// DecodeFrom replaces the value with the native representation in buf.
	DecodeFrom(buf []byte) (int, error)

	PrintDecl(w io.Writer, indent string, constrained bool) error
	PrintVal(w io.Writer, indent string, withDecl bool) error

	base() *Base
}

// Lookup is implemented by values with named children.
type Lookup interface {
	Var(name string) Value
}

// Source materializes the content of a value. On success the value's storage
// holds the data; the caller marks it read.
type Source interface {
	Read(ctx context.Context, dataset string, v Value) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, dataset string, v Value) error

func (f SourceFunc) Read(ctx context.Context, dataset string, v Value) error {
	return f(ctx, dataset, v)
}

// Gate is consulted before a value is encoded. Pause and Resume bracket the
// selection and read calls so that only bookkeeping counts against the
// response budget.
type Gate interface {
	Dataset() string
	Selected(ctx context.Context, v Value) (bool, error)
	Check() error
	Pause()
	Resume()
}

// Admit runs the evaluation gate for v. It returns false with a nil error when
// v is excluded by the selection; in that case v is not read. A value without a
// Source is taken as already populated by the caller and is marked read as is.
func Admit(ctx context.Context, v Value, g Gate, ceEval bool) (bool, error) {
	if g == nil {
		return false, internalErr(ErrNoGate, "serializing %q", v.Name())
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := g.Check(); err != nil {
		return false, err
	}

	g.Pause()
	defer g.Resume()

	if ceEval {
		ok, err := g.Selected(ctx, v)
		if err != nil {
			return false, errors.Wrapf(err, "evaluating selection for %q", v.Name())
		}
		if !ok {
			return false, nil
		}
	}
	if !v.IsRead() {
		if src := v.Source(); src != nil {
			if err := src.Read(ctx, g.Dataset(), v); err != nil {
				return false, errors.Wrapf(err, "reading %q", v.Name())
			}
		}
		v.SetRead(true)
	}
	return true, nil
}

// Base carries the attributes common to every variant.
type Base struct {
	name   string
	typ    Type
	parent Value
	send   bool
	read   bool
	source Source
}

func (b *Base) Name() string { return b.name }
func (b *Base) SetName(name string) { b.name = name }
func (b *Base) Type() Type { return b.typ }
func (b *Base) Parent() Value { return b.parent }
func (b *Base) SetParent(p Value) { b.parent = p }
func (b *Base) Send() bool { return b.send }
func (b *Base) SetSend(state bool) { b.send = state }
func (b *Base) IsRead() bool { return b.read }
func (b *Base) SetRead(state bool) { b.read = state }
func (b *Base) Source() Source { return b.source }
func (b *Base) SetSource(src Source) { b.source = src }

func (b *Base) base() *Base { return b }

// clone copies the attributes, dropping the parent.
func (b *Base) clone() Base {
	c := *b
	c.parent = nil
	return c
}

// MarkSelected sets the send flag on v and its descendants, and on every
// ancestor of v without touching the ancestors' other children.
func MarkSelected(v Value) {
	v.SetSend(true)
	for p := v.Parent(); p != nil; p = p.Parent() {
		p.base().send = true
	}
}

// syncSend copies the send flags of tmpl onto v, which has the same shape.
// Vector elements and sequence rows take their projection from the template
// they were built from.
func syncSend(tmpl, v Value) {
	v.base().send = tmpl.Send()
	switch t := tmpl.(type) {
	case *Structure:
		if s, ok := v.(*Structure); ok {
			syncAll(t.vars, s.vars)
		}
	case *Sequence:
		if s, ok := v.(*Sequence); ok {
			syncAll(t.vars, s.vars)
		}
	case *Grid:
		if g, ok := v.(*Grid); ok {
			syncAll(t.parts(), g.parts())
		}
	case *Array:
		if a, ok := v.(*Array); ok && t.proto != nil && a.proto != nil {
			syncSend(t.proto, a.proto)
		}
	case *List:
		if l, ok := v.(*List); ok && t.proto != nil && l.proto != nil {
			syncSend(t.proto, l.proto)
		}
	}
}

func syncAll(tmpl, vals []Value) {
	for i := range min(len(tmpl), len(vals)) {
		syncSend(tmpl[i], vals[i])
	}
}

// Path returns the dotted name of v from its outermost ancestor. Vector
// prototypes share their vector's name and are collapsed.
func Path(v Value) string {
	path := v.Name()
	child := v
	for p := v.Parent(); p != nil; p = p.Parent() {
		if p.Name() != child.Name() && p.Name() != "" {
			path = p.Name() + "." + path
		}
		child = p
	}
	return path
}
