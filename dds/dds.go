// Package dds holds a dataset's descriptor: the ordered top-level variables of
// a dataset, the projection chosen by a constraint, and the code that ships
// the projected variables over the wire.
package dds

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"

	"mini-dap/dap"
	"mini-dap/xdr"
)

var ErrUnknownVariable = errors.New("no such variable")

// DDS is a named, ordered collection of variables. It is not safe for
// concurrent use; servers duplicate the catalog entry per request.
type DDS struct {
	name string
	vars []dap.Value
}

func New(name string) *DDS {
	return &DDS{name: name}
}

func (d *DDS) Name() string { return d.name }

// AddVar appends a duplicate of v. The source of v is kept.
func (d *DDS) AddVar(v dap.Value) {
	d.vars = append(d.vars, v.Duplicate())
}

func (d *DDS) Vars() []dap.Value { return d.vars }

// Var resolves a dotted path such as "station.temp". An unqualified name
// that is not a top-level variable is searched for in nested variables.
func (d *DDS) Var(path string) dap.Value {
	head, rest, nested := strings.Cut(path, ".")
	for _, v := range d.vars {
		if v.Name() != head {
			continue
		}
		if !nested {
			return v
		}
		if l, ok := v.(dap.Lookup); ok {
			return l.Var(rest)
		}
		return nil
	}
	if nested {
		return nil
	}
	for _, v := range d.vars {
		if l, ok := v.(dap.Lookup); ok {
			if found := l.Var(path); found != nil {
				return found
			}
		}
	}
	return nil
}

// MarkAll sets the send flag of every variable.
func (d *DDS) MarkAll(state bool) {
	for _, v := range d.vars {
		v.SetSend(state)
	}
}

// Project marks the variables named by paths for sending and clears the rest.
// An empty projection selects everything.
func (d *DDS) Project(paths []string) error {
	if len(paths) == 0 {
		d.MarkAll(true)
		return nil
	}
	d.MarkAll(false)
	for _, p := range paths {
		v := d.Var(p)
		if v == nil {
			return errors.Wrapf(ErrUnknownVariable, "%q in %s", p, d.name)
		}
		dap.MarkSelected(v)
	}
	return nil
}

// ParseConstraint splits a projection such as "a, s.b" into paths.
func ParseConstraint(ce string) []string {
	var paths []string
	for _, p := range strings.Split(ce, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// Duplicate deep-copies the descriptor and all variable storage.
func (d *DDS) Duplicate() *DDS {
	c := &DDS{name: d.name, vars: make([]dap.Value, len(d.vars))}
	for i, v := range d.vars {
		c.vars[i] = v.Duplicate()
	}
	return c
}

// Sent returns the variables marked for sending, in order.
func (d *DDS) Sent() []dap.Value {
	return sent(d.vars)
}

// Send encodes every variable marked for sending through the gate and
// returns the number of bytes written.
func (d *DDS) Send(ctx context.Context, g dap.Gate, w io.Writer) (int64, error) {
	enc := xdr.NewEncoder(w)
	for _, v := range d.Sent() {
		if err := v.Serialize(ctx, g, enc, true); err != nil {
			return enc.Written(), err
		}
	}
	return enc.Written(), nil
}

// Receive decodes the variables marked for sending from r, in order.
func (d *DDS) Receive(r io.Reader, reuse bool) error {
	return d.ReceiveFrom(xdr.NewDecoder(r), reuse)
}

func (d *DDS) ReceiveFrom(dec *xdr.Decoder, reuse bool) error {
	for _, v := range d.Sent() {
		if err := v.Deserialize(dec, reuse); err != nil {
			return err
		}
	}
	return nil
}

// Print writes the declaration of the variables marked for sending.
func (d *DDS) Print(w io.Writer) error {
	if _, err := io.WriteString(w, "Dataset {\n"); err != nil {
		return err
	}
	for _, v := range d.Sent() {
		if err := v.PrintDecl(w, "    ", true); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "} "+d.name+";\n")
	return err
}

// PrintVals writes the declaration and value of every sent variable.
// Sequences are printed one row per line when byRows is set.
func (d *DDS) PrintVals(w io.Writer, byRows bool) error {
	for _, v := range d.Sent() {
		if seq, ok := v.(*dap.Sequence); ok && byRows {
			if err := seq.PrintRows(w, ""); err != nil {
				return err
			}
			continue
		}
		if err := v.PrintVal(w, "", true); err != nil {
			return err
		}
	}
	return nil
}
