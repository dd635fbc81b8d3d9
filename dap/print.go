package dap

import (
	"fmt"
	"io"
	"strings"
)

// printer remembers the first write error so declaration and value walkers
// can stay linear.
type printer struct {
	w   io.Writer
	err error

	// constrained declarations omit children not marked for sending
	constrained bool
}

func (p *printer) print(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, s)
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) skip(v Value) bool {
	return p.constrained && !v.Send()
}

func (p *printer) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

const nest = "    "

func printDecl(w io.Writer, v Value, indent string, constrained bool) error {
	p := &printer{w: w, constrained: constrained}
	declare(p, v, indent, "", v.Name(), "", ";\n")
	return p.err
}

func printVal(w io.Writer, v Value, indent string, withDecl bool) error {
	p := &printer{w: w}
	if withDecl {
		declare(p, v, indent, "", v.Name(), "", " = ")
	}
	writeValue(p, v)
	if withDecl {
		p.print(";\n")
	}
	return p.err
}

// declare writes the declaration of v. Arrays and Lists fold into the
// declaration of their prototype, which is printed under the vector's name.
func declare(p *printer, v Value, indent, prefix, name, suffix, end string) {
	switch x := v.(type) {
	case *Array:
		if x.proto == nil {
			p.printf("%s%sArray %s%s%s%s", indent, prefix, name, dimsText(x.dims), suffix, end)
			return
		}
		declare(p, x.proto, indent, prefix, name, dimsText(x.dims)+suffix, end)
	case *List:
		if x.proto == nil {
			p.printf("%s%sList %s%s%s", indent, prefix, name, suffix, end)
			return
		}
		declare(p, x.proto, indent, prefix+"List ", name, suffix, end)
	case *Structure:
		p.printf("%s%sStructure {\n", indent, prefix)
		for _, f := range x.vars {
			if !p.skip(f) {
				declare(p, f, indent+nest, "", f.Name(), "", ";\n")
			}
		}
		p.printf("%s} %s%s%s", indent, name, suffix, end)
	case *Sequence:
		p.printf("%s%sSequence {\n", indent, prefix)
		for _, f := range x.vars {
			if !p.skip(f) {
				declare(p, f, indent+nest, "", f.Name(), "", ";\n")
			}
		}
		p.printf("%s} %s%s%s", indent, name, suffix, end)
	case *Grid:
		p.printf("%s%sGrid {\n%s  ARRAY:\n", indent, prefix, indent)
		if x.array != nil && !p.skip(x.array) {
			declare(p, x.array, indent+nest, "", x.array.Name(), "", ";\n")
		}
		p.printf("%s  MAPS:\n", indent)
		for _, m := range x.maps {
			if !p.skip(m) {
				declare(p, m, indent+nest, "", m.Name(), "", ";\n")
			}
		}
		p.printf("%s} %s%s%s", indent, name, suffix, end)
	default:
		p.printf("%s%s%s %s%s%s", indent, prefix, v.Type(), name, suffix, end)
	}
}

func dimsText(dims []Dim) string {
	var b strings.Builder
	for _, d := range dims {
		if d.Name != "" {
			fmt.Fprintf(&b, "[%s = %d]", d.Name, d.Size)
		} else {
			fmt.Fprintf(&b, "[%d]", d.Size)
		}
	}
	return b.String()
}

type scalarText interface {
	text() string
}

func writeValue(p *printer, v Value) {
	switch x := v.(type) {
	case *Array:
		x.writeValues(p)
	case *List:
		x.writeRange(p, 0, max(x.length, 0))
	case *Structure:
		writeFields(p, x.vars)
	case *Sequence:
		p.print("{ ")
		for i, row := range x.rows {
			if i > 0 {
				p.print(", ")
			}
			writeFields(p, row)
		}
		p.print(" }")
	case *Grid:
		p.print("{ ARRAY: ")
		if x.array != nil {
			writeValue(p, x.array)
		}
		p.print(" MAPS: ")
		for i, m := range x.maps {
			if i > 0 {
				p.print(", ")
			}
			writeValue(p, m)
		}
		p.print(" }")
	case scalarText:
		p.print(x.text())
	default:
		p.fail(internalErr(ErrUnknownType, "cannot print %s", v.Type()))
	}
}

func writeFields(p *printer, fields []Value) {
	p.print("{ ")
	for i, f := range fields {
		if i > 0 {
			p.print(", ")
		}
		writeValue(p, f)
	}
	p.print(" }")
}
