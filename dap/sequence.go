package dap

import (
	"context"
	"io"

	"mini-dap/xdr"
)

// Row markers framing the instances of a Sequence on the wire.
const (
	StartOfInstance uint32 = 0x5A000000
	EndOfSequence   uint32 = 0xA5000000
)

// Sequence is an ordered table: vars declares the columns, rows hold the
// instances.
type Sequence struct {
	Base
	vars []Value
	rows [][]Value
}

func NewSequence(name string) *Sequence {
	return &Sequence{Base: Base{name: name, typ: TypeSequence}}
}

// AddVar appends a duplicate of v as the last column.
func (s *Sequence) AddVar(v Value) {
	c := v.Duplicate()
	c.SetParent(s)
	s.vars = append(s.vars, c)
}

func (s *Sequence) Vars() []Value { return s.vars }

func (s *Sequence) Var(name string) Value {
	return findVar(s.vars, name)
}

// AppendRow adds one instance. Each value must match its column's type.
func (s *Sequence) AppendRow(vals ...Value) error {
	if len(vals) != len(s.vars) {
		return internalErr(ErrLengthMismatch, "row of %q has %d values for %d columns", s.name, len(vals), len(s.vars))
	}
	row := make([]Value, len(vals))
	for i, v := range vals {
		if v == nil {
			return internalErr(ErrNilValue, "column %d of %q", i, s.name)
		}
		if v.Type() != s.vars[i].Type() {
			return internalErr(ErrTypeMismatch, "column %q of %q is %s, got %s", s.vars[i].Name(), s.name, s.vars[i].Type(), v.Type())
		}
		c := v.Duplicate()
		c.SetName(s.vars[i].Name())
		c.SetParent(s)
		c.SetSend(s.vars[i].Send())
		c.SetRead(true)
		row[i] = c
	}
	s.rows = append(s.rows, row)
	return nil
}

// Rows returns the instances read so far.
func (s *Sequence) Rows() [][]Value { return s.rows }

// ResetRows drops all instances.
func (s *Sequence) ResetRows() { s.rows = nil }

func (s *Sequence) Width() int {
	w := 0
	for _, v := range s.vars {
		w += v.Width()
	}
	return w
}

func (s *Sequence) SetSend(state bool) {
	s.send = state
	for _, v := range s.vars {
		v.SetSend(state)
	}
	for _, row := range s.rows {
		for _, v := range row {
			v.SetSend(state)
		}
	}
}

func (s *Sequence) SetRead(state bool) {
	s.read = state
	for _, v := range s.vars {
		v.SetRead(state)
	}
}

func (s *Sequence) Duplicate() Value {
	c := &Sequence{Base: s.Base.clone(), vars: make([]Value, len(s.vars))}
	for i, v := range s.vars {
		d := v.Duplicate()
		d.SetParent(c)
		c.vars[i] = d
	}
	if s.rows != nil {
		c.rows = make([][]Value, len(s.rows))
		for i, row := range s.rows {
			c.rows[i] = make([]Value, len(row))
			for j, v := range row {
				d := v.Duplicate()
				d.SetParent(c)
				c.rows[i][j] = d
			}
		}
	}
	return c
}

// Serialize writes each row behind a start-of-instance marker, then the
// end-of-sequence marker. Only columns marked for sending are written.
func (s *Sequence) Serialize(ctx context.Context, g Gate, enc *xdr.Encoder, ceEval bool) error {
	ok, err := Admit(ctx, s, g, ceEval)
	if err != nil || !ok {
		return err
	}
	for _, row := range s.rows {
		if err := enc.PutUint32(StartOfInstance); err != nil {
			return transmissionErr("write row marker", err)
		}
		for j, v := range row {
			if !s.vars[j].Send() {
				continue
			}
			syncSend(s.vars[j], v)
			if err := v.Serialize(ctx, g, enc, false); err != nil {
				return err
			}
		}
	}
	if err := enc.PutUint32(EndOfSequence); err != nil {
		return transmissionErr("write end marker", err)
	}
	return nil
}

func (s *Sequence) Deserialize(dec *xdr.Decoder, reuse bool) error {
	var rows [][]Value
	for {
		marker, err := dec.Uint32()
		if err != nil {
			return transmissionErr("read row marker", err)
		}
		if marker == EndOfSequence {
			break
		}
		if marker != StartOfInstance {
			return internalErr(ErrBadMarker, "%#08x in %q", marker, s.name)
		}
		row := make([]Value, len(s.vars))
		for j, col := range s.vars {
			c := col.Duplicate()
			c.SetParent(s)
			if err := c.Deserialize(dec, reuse); err != nil {
				return err
			}
			row[j] = c
		}
		rows = append(rows, row)
	}
	s.rows = rows
	s.read = true
	return nil
}

// EncodeInto copies the native representation of the column templates.
func (s *Sequence) EncodeInto(buf []byte) (int, error) {
	return encodeFields(s.vars, buf)
}

func (s *Sequence) DecodeFrom(buf []byte) (int, error) {
	return decodeFields(s.vars, buf)
}

func (s *Sequence) PrintDecl(w io.Writer, indent string, constrained bool) error {
	return printDecl(w, s, indent, constrained)
}

func (s *Sequence) PrintVal(w io.Writer, indent string, withDecl bool) error {
	return printVal(w, s, indent, withDecl)
}

// PrintRows writes the declaration followed by one instance per line.
func (s *Sequence) PrintRows(w io.Writer, indent string) error {
	p := &printer{w: w}
	declare(p, s, indent, "", s.name, "", " = {\n")
	for i, row := range s.rows {
		p.printf("%s%s[%d] ", indent, nest, i)
		writeFields(p, row)
		if i < len(s.rows)-1 {
			p.print(",")
		}
		p.print("\n")
	}
	p.printf("%s};\n", indent)
	return p.err
}
