package dap

import (
	"io"
	"slices"
)

// Dim is one dimension of an Array.
type Dim struct {
	Name string
	Size int
}

// Array is a fixed-shape vector. Its length is the product of its dimension
// sizes once at least one dimension is declared.
type Array struct {
	Vector
	dims []Dim
}

func NewArray(name string, proto Value) *Array {
	a := &Array{}
	a.init(a, name, TypeArray, proto)
	return a
}

// AppendDim adds a dimension and updates the length.
func (a *Array) AppendDim(size int, name string) {
	a.dims = append(a.dims, Dim{Name: name, Size: size})
	n := 1
	for _, d := range a.dims {
		n *= d.Size
	}
	a.length = n
}

func (a *Array) Dims() []Dim { return slices.Clone(a.dims) }

func (a *Array) Duplicate() Value {
	c := &Array{dims: slices.Clone(a.dims)}
	a.duplicateInto(&c.Vector, c)
	return c
}

func (a *Array) PrintDecl(w io.Writer, indent string, constrained bool) error {
	return printDecl(w, a, indent, constrained)
}

func (a *Array) PrintVal(w io.Writer, indent string, withDecl bool) error {
	return printVal(w, a, indent, withDecl)
}

func (a *Array) writeValues(p *printer) {
	if len(a.dims) == 0 {
		a.writeRange(p, 0, max(a.length, 0))
		return
	}
	a.writeDims(p, a.dims, 0)
}

// writeDims prints the row-major block starting at offset and returns the
// offset past it.
func (a *Array) writeDims(p *printer, dims []Dim, offset int) int {
	if len(dims) == 1 {
		a.writeRange(p, offset, dims[0].Size)
		return offset + dims[0].Size
	}
	p.print("{")
	for i := 0; i < dims[0].Size; i++ {
		if i > 0 {
			p.print(", ")
		}
		offset = a.writeDims(p, dims[1:], offset)
	}
	p.print("}")
	return offset
}

// List is a vector whose length is carried by the data.
type List struct {
	Vector
}

func NewList(name string, proto Value) *List {
	l := &List{}
	l.init(l, name, TypeList, proto)
	return l
}

func (l *List) Duplicate() Value {
	c := &List{}
	l.duplicateInto(&c.Vector, c)
	return c
}

func (l *List) PrintDecl(w io.Writer, indent string, constrained bool) error {
	return printDecl(w, l, indent, constrained)
}

func (l *List) PrintVal(w io.Writer, indent string, withDecl bool) error {
	return printVal(w, l, indent, withDecl)
}
