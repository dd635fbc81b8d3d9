package dds

import (
	"io"

	"github.com/pkg/errors"

	"mini-dap/dap"
	"mini-dap/xdr"
)

var ErrBadDescriptor = errors.New("malformed dataset descriptor")

// maxDepth bounds the nesting accepted from a peer.
const maxDepth = 32

// maxDims bounds the dimensions accepted for one array.
const maxDims = 16

// Descriptor layout, all through the xdr primitives:
//
//	dataset name, u32 count, count × node
//	node = u8 type, name, body
//	  Array:     u32 ndims, ndims × (name, u32 size), node(prototype)
//	  List:      node(prototype)
//	  Structure: u32 n, n × node (sent fields only)
//	  Sequence:  u32 n, n × node (sent columns only)
//	  Grid:      u8 has array, [node(array)], u32 n, n × node (sent maps only)
//	  scalars:   empty

// WriteDescriptor writes the type tree of the variables marked for sending.
func WriteDescriptor(w io.Writer, d *DDS) error {
	return writeDescriptor(xdr.NewEncoder(w), d.name, d.Sent())
}

func writeDescriptor(enc *xdr.Encoder, name string, vars []dap.Value) error {
	if err := enc.PutString(name); err != nil {
		return wireErr("write descriptor", err)
	}
	if err := enc.PutUint32(uint32(len(vars))); err != nil {
		return wireErr("write descriptor", err)
	}
	for _, v := range vars {
		if err := writeNode(enc, v); err != nil {
			return err
		}
	}
	return nil
}

func sent(vars []dap.Value) []dap.Value {
	var out []dap.Value
	for _, v := range vars {
		if v.Send() {
			out = append(out, v)
		}
	}
	return out
}

func writeNode(enc *xdr.Encoder, v dap.Value) error {
	if err := enc.PutUint8(uint8(v.Type())); err != nil {
		return wireErr("write descriptor", err)
	}
	if err := enc.PutString(v.Name()); err != nil {
		return wireErr("write descriptor", err)
	}

	var err error
	switch x := v.(type) {
	case *dap.Array:
		if x.Prototype() == nil {
			return errors.Wrapf(ErrBadDescriptor, "array %q has no prototype", x.Name())
		}
		dims := x.Dims()
		err = enc.PutUint32(uint32(len(dims)))
		for _, d := range dims {
			if err == nil {
				err = enc.PutString(d.Name)
			}
			if err == nil {
				err = enc.PutUint32(uint32(d.Size))
			}
		}
		if err != nil {
			return wireErr("write descriptor", err)
		}
		return writeNode(enc, x.Prototype())
	case *dap.List:
		if x.Prototype() == nil {
			return errors.Wrapf(ErrBadDescriptor, "list %q has no prototype", x.Name())
		}
		return writeNode(enc, x.Prototype())
	case *dap.Structure:
		return writeChildren(enc, sent(x.Vars()))
	case *dap.Sequence:
		return writeChildren(enc, sent(x.Vars()))
	case *dap.Grid:
		var has uint8
		if x.Array() != nil && x.Array().Send() {
			has = 1
		}
		if err := enc.PutUint8(has); err != nil {
			return wireErr("write descriptor", err)
		}
		if has == 1 {
			if err := writeNode(enc, x.Array()); err != nil {
				return err
			}
		}
		var maps []dap.Value
		for _, m := range x.Maps() {
			if m.Send() {
				maps = append(maps, m)
			}
		}
		return writeChildren(enc, maps)
	}
	return nil
}

func writeChildren(enc *xdr.Encoder, vars []dap.Value) error {
	if err := enc.PutUint32(uint32(len(vars))); err != nil {
		return wireErr("write descriptor", err)
	}
	for _, v := range vars {
		if err := writeNode(enc, v); err != nil {
			return err
		}
	}
	return nil
}

// ReadDescriptor rebuilds a DDS from its type tree. Every variable of the
// result is marked for sending.
func ReadDescriptor(r io.Reader) (*DDS, error) {
	return readDescriptor(xdr.NewDecoder(r))
}

func readDescriptor(dec *xdr.Decoder) (*DDS, error) {
	name, err := dec.Text()
	if err != nil {
		return nil, wireErr("read descriptor", err)
	}
	n, err := dec.Count()
	if err != nil {
		return nil, wireErr("read descriptor", err)
	}
	d := New(name)
	for i := uint32(0); i < n; i++ {
		v, err := readNode(dec, 0)
		if err != nil {
			return nil, err
		}
		d.vars = append(d.vars, v)
	}
	d.MarkAll(true)
	return d, nil
}

func readNode(dec *xdr.Decoder, depth int) (dap.Value, error) {
	if depth > maxDepth {
		return nil, errors.Wrapf(ErrBadDescriptor, "nesting deeper than %d", maxDepth)
	}
	tag, err := dec.Uint8()
	if err != nil {
		return nil, wireErr("read descriptor", err)
	}
	name, err := dec.Text()
	if err != nil {
		return nil, wireErr("read descriptor", err)
	}

	switch t := dap.Type(tag); t {
	case dap.TypeArray:
		ndims, err := dec.Count()
		if err != nil {
			return nil, wireErr("read descriptor", err)
		}
		if ndims > maxDims {
			return nil, errors.Wrapf(ErrBadDescriptor, "array %q has %d dimensions", name, ndims)
		}
		dims := make([]dap.Dim, ndims)
		for i := range dims {
			if dims[i].Name, err = dec.Text(); err != nil {
				return nil, wireErr("read descriptor", err)
			}
			size, err := dec.Count()
			if err != nil {
				return nil, wireErr("read descriptor", err)
			}
			dims[i].Size = int(size)
		}
		proto, err := readNode(dec, depth+1)
		if err != nil {
			return nil, err
		}
		a := dap.NewArray(name, proto)
		a.SetName(name)
		for _, d := range dims {
			a.AppendDim(d.Size, d.Name)
		}
		return a, nil
	case dap.TypeList:
		proto, err := readNode(dec, depth+1)
		if err != nil {
			return nil, err
		}
		l := dap.NewList(name, proto)
		l.SetName(name)
		return l, nil
	case dap.TypeStructure:
		s := dap.NewStructure(name)
		err := readChildren(dec, depth, func(v dap.Value) error {
			s.AddVar(v)
			return nil
		})
		return s, err
	case dap.TypeSequence:
		s := dap.NewSequence(name)
		err := readChildren(dec, depth, func(v dap.Value) error {
			s.AddVar(v)
			return nil
		})
		return s, err
	case dap.TypeGrid:
		g := dap.NewGrid(name)
		has, err := dec.Uint8()
		if err != nil {
			return nil, wireErr("read descriptor", err)
		}
		if has == 1 {
			v, err := readNode(dec, depth+1)
			if err != nil {
				return nil, err
			}
			a, ok := v.(*dap.Array)
			if !ok {
				return nil, errors.Wrapf(ErrBadDescriptor, "grid %q holds a %s", name, v.Type())
			}
			g.SetArray(a)
		}
		err = readChildren(dec, depth, func(v dap.Value) error {
			m, ok := v.(*dap.Array)
			if !ok {
				return errors.Wrapf(ErrBadDescriptor, "grid %q has a %s map %q", name, v.Type(), v.Name())
			}
			g.AddMap(m)
			return nil
		})
		return g, err
	default:
		if t.Class() == dap.ClassNone {
			return nil, errors.Wrapf(ErrBadDescriptor, "unknown type tag %d", tag)
		}
		return dap.NewScalar(t, name)
	}
}

func readChildren(dec *xdr.Decoder, depth int, add func(dap.Value) error) error {
	n, err := dec.Count()
	if err != nil {
		return wireErr("read descriptor", err)
	}
	for i := uint32(0); i < n; i++ {
		v, err := readNode(dec, depth+1)
		if err != nil {
			return err
		}
		if err := add(v); err != nil {
			return err
		}
	}
	return nil
}

func wireErr(op string, err error) error {
	return errors.WithStack(&dap.TransmissionError{Op: op, Err: err})
}
