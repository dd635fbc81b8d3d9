package sim

import (
	"sort"

	"github.com/pkg/errors"

	"mini-dap/dap"
	"mini-dap/dds"
)

var ErrUnknownKind = errors.New("unknown dataset kind")

var builders = map[string]func() []dap.Value{
	"scalars":   scalars,
	"vectors":   vectors,
	"structure": structures,
	"sequence":  sequences,
	"grid":      grids,
	"all": func() []dap.Value {
		var all []dap.Value
		for _, b := range []func() []dap.Value{scalars, vectors, structures, sequences, grids} {
			all = append(all, b()...)
		}
		return all
	},
}

// Kinds lists the dataset kinds Build accepts.
func Kinds() []string {
	kinds := make([]string, 0, len(builders))
	for k := range builders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build returns a demo dataset of the given kind whose top-level variables
// read from src.
func Build(kind, name string, src dap.Source) (*dds.DDS, error) {
	build, ok := builders[kind]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownKind, "%q (known: %v)", kind, Kinds())
	}
	d := dds.New(name)
	for _, v := range build() {
		v.SetSource(src)
		d.AddVar(v)
	}
	return d, nil
}

func scalars() []dap.Value {
	return []dap.Value{
		dap.NewByte("b"),
		dap.NewInt16("i16"),
		dap.NewUInt16("ui16"),
		dap.NewInt32("i32"),
		dap.NewUInt32("ui32"),
		dap.NewFloat32("f32"),
		dap.NewFloat64("f64"),
		dap.NewStr("s"),
		dap.NewURL("u"),
	}
}

func vectors() []dap.Value {
	bytes := dap.NewArray("b_arr", dap.NewByte(""))
	bytes.AppendDim(5, "")

	ints := dap.NewArray("i32_arr", dap.NewInt32(""))
	ints.AppendDim(3, "x")
	ints.AppendDim(2, "y")

	floats := dap.NewArray("f64_arr", dap.NewFloat64(""))
	floats.AppendDim(10, "")

	return []dap.Value{
		bytes,
		ints,
		floats,
		dap.NewList("names", dap.NewStr("")),
		dap.NewList("l_i16", dap.NewInt16("")),
	}
}

func station() *dap.Structure {
	s := dap.NewStructure("station")
	s.AddVar(dap.NewInt32("id"))
	s.AddVar(dap.NewFloat64("lat"))
	s.AddVar(dap.NewFloat64("lon"))
	s.AddVar(dap.NewStr("name"))
	return s
}

func structures() []dap.Value {
	stations := dap.NewArray("stations", station())
	stations.SetName("stations")
	stations.AppendDim(3, "")
	return []dap.Value{station(), stations}
}

func sequences() []dap.Value {
	obs := dap.NewSequence("obs")
	obs.AddVar(dap.NewInt32("time"))
	obs.AddVar(dap.NewFloat32("temp"))
	obs.AddVar(dap.NewStr("site"))
	return []dap.Value{obs}
}

func grids() []dap.Value {
	g := dap.NewGrid("sst")
	data := dap.NewArray("sst", dap.NewFloat32(""))
	data.AppendDim(2, "time")
	data.AppendDim(3, "lat")
	data.AppendDim(4, "lon")
	g.SetArray(data)
	for _, d := range data.Dims() {
		m := dap.NewArray(d.Name, dap.NewFloat64(""))
		m.AppendDim(d.Size, d.Name)
		g.AddMap(m)
	}
	return []dap.Value{g}
}
