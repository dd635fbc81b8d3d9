package dap

import (
	"context"
	"io"

	"mini-dap/xdr"
)

// Grid is an array together with one coordinate map per dimension.
type Grid struct {
	Base
	array *Array
	maps  []*Array
}

func NewGrid(name string) *Grid {
	return &Grid{Base: Base{name: name, typ: TypeGrid}}
}

// SetArray installs a duplicate of a as the grid's data array.
func (g *Grid) SetArray(a *Array) {
	c := a.Duplicate().(*Array)
	c.SetParent(g)
	g.array = c
}

// AddMap appends a duplicate of m as the next coordinate map.
func (g *Grid) AddMap(m *Array) {
	c := m.Duplicate().(*Array)
	c.SetParent(g)
	g.maps = append(g.maps, c)
}

func (g *Grid) Array() *Array  { return g.array }
func (g *Grid) Maps() []*Array { return g.maps }

func (g *Grid) parts() []Value {
	out := make([]Value, 0, len(g.maps)+1)
	if g.array != nil {
		out = append(out, g.array)
	}
	for _, m := range g.maps {
		out = append(out, m)
	}
	return out
}

func (g *Grid) Var(name string) Value {
	return findVar(g.parts(), name)
}

func (g *Grid) Width() int {
	w := 0
	for _, p := range g.parts() {
		w += p.Width()
	}
	return w
}

func (g *Grid) SetSend(state bool) {
	g.send = state
	for _, p := range g.parts() {
		p.SetSend(state)
	}
}

func (g *Grid) SetRead(state bool) {
	g.read = state
	for _, p := range g.parts() {
		p.SetRead(state)
	}
}

func (g *Grid) Duplicate() Value {
	c := &Grid{Base: g.Base.clone()}
	if g.array != nil {
		c.array = g.array.Duplicate().(*Array)
		c.array.SetParent(c)
	}
	for _, m := range g.maps {
		d := m.Duplicate().(*Array)
		d.SetParent(c)
		c.maps = append(c.maps, d)
	}
	return c
}

// Serialize writes the array and then the maps, skipping parts not marked for
// sending.
func (g *Grid) Serialize(ctx context.Context, gate Gate, enc *xdr.Encoder, ceEval bool) error {
	ok, err := Admit(ctx, g, gate, ceEval)
	if err != nil || !ok {
		return err
	}
	for _, p := range g.parts() {
		if !p.Send() {
			continue
		}
		if err := p.Serialize(ctx, gate, enc, false); err != nil {
			return err
		}
	}
	return nil
}

func (g *Grid) Deserialize(dec *xdr.Decoder, reuse bool) error {
	for _, p := range g.parts() {
		if err := p.Deserialize(dec, reuse); err != nil {
			return err
		}
	}
	g.read = true
	return nil
}

func (g *Grid) EncodeInto(buf []byte) (int, error) {
	return encodeFields(g.parts(), buf)
}

func (g *Grid) DecodeFrom(buf []byte) (int, error) {
	return decodeFields(g.parts(), buf)
}

func (g *Grid) PrintDecl(w io.Writer, indent string, constrained bool) error {
	return printDecl(w, g, indent, constrained)
}

func (g *Grid) PrintVal(w io.Writer, indent string, withDecl bool) error {
	return printVal(w, g, indent, withDecl)
}
