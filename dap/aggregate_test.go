package dap

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-dap/xdr"
)

func sampleStructure() *Structure {
	s := NewStructure("s")
	i := NewInt32("i")
	i.SetValue(42)
	f := NewFloat64("f")
	f.SetValue(2.5)
	name := NewStr("name")
	name.SetText("hi")
	s.AddVar(i)
	s.AddVar(f)
	s.AddVar(name)
	return s
}

func TestScalarWireFormat(t *testing.T) {
	u := NewUInt16("u")
	u.SetValue(64000)
	assert.Equal(t, []byte{0xfa, 0x00}, encode(t, u, &fakeGate{}, false))

	b := NewByte("b")
	b.SetValue(255)
	assert.Equal(t, []byte{0xff}, encode(t, b, &fakeGate{}, false))

	url := NewURL("u")
	url.SetText("http://x")
	wire := encode(t, url, &fakeGate{}, false)
	assert.Equal(t, uint32(8), binary.BigEndian.Uint32(wire))

	out := NewURL("u")
	require.NoError(t, out.Deserialize(decoder(wire), false))
	assert.Equal(t, "http://x", out.Text())
	assert.Equal(t, TypeURL, out.Type())
}

func TestScalarExcludedBySelection(t *testing.T) {
	f := NewFloat32("f")
	assert.Empty(t, encode(t, f, &fakeGate{excluded: map[string]bool{"f": true}}, true))
	assert.False(t, f.IsRead())
}

func TestStructureSendsMarkedFields(t *testing.T) {
	s := sampleStructure()
	s.Var("i").SetSend(true)
	s.Var("name").SetSend(true)

	wire := encode(t, s, &fakeGate{}, false)
	assert.Len(t, wire, 4+4+2)

	out := NewStructure("s")
	out.AddVar(NewInt32("i"))
	out.AddVar(NewStr("name"))
	require.NoError(t, out.Deserialize(decoder(wire), false))
	assert.Equal(t, int32(42), out.Var("i").(*Int32).Value())
	assert.Equal(t, "hi", out.Var("name").(*Str).Text())
	assert.True(t, out.IsRead())
}

func TestStructureLookup(t *testing.T) {
	outer := NewStructure("outer")
	outer.AddVar(sampleStructure())
	require.NotNil(t, outer.Var("s.f"))
	assert.Equal(t, TypeFloat64, outer.Var("s.f").Type())
	assert.NotNil(t, outer.Var("f"), "unqualified names search nested fields")
	assert.Nil(t, outer.Var("s.missing"))
	assert.Nil(t, outer.Var("nope"))

	f := outer.Var("s.f")
	assert.Equal(t, "outer.s.f", Path(f))
}

func TestMarkSelected(t *testing.T) {
	outer := NewStructure("outer")
	outer.AddVar(sampleStructure())
	outer.AddVar(NewInt16("other"))

	MarkSelected(outer.Var("s.f"))
	assert.True(t, outer.Send())
	assert.True(t, outer.Var("s").Send())
	assert.True(t, outer.Var("s.f").Send())
	assert.False(t, outer.Var("s.i").Send())
	assert.False(t, outer.Var("other").Send())
}

func TestStructureDuplicate(t *testing.T) {
	s := sampleStructure()
	c := s.Duplicate().(*Structure)
	s.Var("i").(*Int32).SetValue(0)
	assert.Equal(t, int32(42), c.Var("i").(*Int32).Value())
	assert.Same(t, c, c.Var("i").Parent())
	assert.Equal(t, 4+8+2, c.Width())
}

func TestStructureNativeLayout(t *testing.T) {
	s := NewStructure("s")
	a := NewInt16("a")
	a.SetValue(-1)
	s.AddVar(a)
	s.AddVar(NewFloat32("b"))

	buf := make([]byte, 6)
	n, err := s.EncodeInto(buf)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	c := NewStructure("s")
	c.AddVar(NewInt16("a"))
	c.AddVar(NewFloat32("b"))
	_, err = c.DecodeFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, int16(-1), c.Var("a").(*Int16).Value())

	_, err = s.EncodeInto(buf[:3])
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func sampleSequence(rows int) *Sequence {
	q := NewSequence("q")
	q.AddVar(NewInt32("id"))
	q.AddVar(NewStr("label"))
	for r := 0; r < rows; r++ {
		id := NewInt32("id")
		id.SetValue(int32(r))
		label := NewStr("label")
		label.SetText(string(rune('a' + r)))
		if err := q.AppendRow(id, label); err != nil {
			panic(err)
		}
	}
	return q
}

func TestSequenceMarkers(t *testing.T) {
	q := sampleSequence(2)
	q.SetSend(true)
	wire := encode(t, q, &fakeGate{}, false)

	// marker, id, label(len+1), marker, id, label, end
	require.Len(t, wire, 2*(4+4+4+1)+4)
	assert.Equal(t, StartOfInstance, binary.BigEndian.Uint32(wire[0:]))
	assert.Equal(t, StartOfInstance, binary.BigEndian.Uint32(wire[13:]))
	assert.Equal(t, EndOfSequence, binary.BigEndian.Uint32(wire[26:]))

	out := sampleSequence(0)
	require.NoError(t, out.Deserialize(decoder(wire), false))
	require.Len(t, out.Rows(), 2)
	assert.Equal(t, int32(1), out.Rows()[1][0].(*Int32).Value())
	assert.Equal(t, "b", out.Rows()[1][1].(*Str).Text())
}

func TestSequenceProjectedColumns(t *testing.T) {
	q := sampleSequence(3)
	MarkSelected(q.Var("id"))
	wire := encode(t, q, &fakeGate{}, false)
	assert.Len(t, wire, 3*(4+4)+4)
}

func TestSequenceEmpty(t *testing.T) {
	wire := encode(t, sampleSequence(0), &fakeGate{}, false)
	assert.Equal(t, []byte{0xa5, 0, 0, 0}, wire)
}

func TestSequenceBadMarker(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, xdr.NewEncoder(&buf).PutUint32(0x12345678))
	q := sampleSequence(1)
	err := q.Deserialize(decoder(buf.Bytes()), false)
	assert.True(t, IsInternal(err))
	assert.ErrorIs(t, err, ErrBadMarker)
	assert.Len(t, q.Rows(), 1, "rows are kept on failure")
}

func TestSequenceAppendRowChecks(t *testing.T) {
	q := sampleSequence(0)
	assert.ErrorIs(t, q.AppendRow(NewInt32("id")), ErrLengthMismatch)
	assert.ErrorIs(t, q.AppendRow(NewStr("id"), NewStr("label")), ErrTypeMismatch)
	assert.ErrorIs(t, q.AppendRow(nil, NewStr("label")), ErrNilValue)
	assert.Empty(t, q.Rows())
}

func sampleGrid() *Grid {
	g := NewGrid("g")
	data := NewArray("data", NewFloat32(""))
	data.AppendDim(2, "lat")
	data.AppendDim(2, "lon")
	if err := data.CopyIn([]float32{1, 2, 3, 4}); err != nil {
		panic(err)
	}
	g.SetArray(data)
	for _, name := range []string{"lat", "lon"} {
		m := NewArray(name, NewFloat64(""))
		m.AppendDim(2, name)
		if err := m.CopyIn([]float64{10, 20}); err != nil {
			panic(err)
		}
		g.AddMap(m)
	}
	return g
}

func TestGridRoundTrip(t *testing.T) {
	g := sampleGrid()
	g.SetSend(true)
	wire := encode(t, g, &fakeGate{}, false)
	assert.Len(t, wire, (8+16)+2*(8+16))

	out := sampleGrid()
	require.NoError(t, out.Deserialize(decoder(wire), false))
	vals, err := Values[float32](&out.Array().Vector)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, vals)
	assert.Len(t, out.Maps(), 2)
	assert.Equal(t, "g.lon", Path(out.Var("lon")))
}

func TestGridPartialSend(t *testing.T) {
	g := sampleGrid()
	MarkSelected(g.Var("lat"))
	wire := encode(t, g, &fakeGate{}, false)
	assert.Len(t, wire, 8+16)
}

func TestNewScalar(t *testing.T) {
	for _, typ := range []Type{TypeByte, TypeInt16, TypeUInt16, TypeInt32, TypeUInt32, TypeFloat32, TypeFloat64, TypeString, TypeURL} {
		v, err := NewScalar(typ, "x")
		require.NoError(t, err)
		assert.Equal(t, typ, v.Type())
		assert.Equal(t, "x", v.Name())
	}
	_, err := NewScalar(TypeGrid, "g")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestTypeClasses(t *testing.T) {
	assert.Equal(t, ClassNumeric, TypeUInt32.Class())
	assert.Equal(t, ClassText, TypeURL.Class())
	assert.Equal(t, ClassAggregate, TypeSequence.Class())
	assert.Equal(t, ClassNone, TypeNull.Class())
	assert.Equal(t, 8, TypeFloat64.Width())
	assert.Equal(t, "Url", TypeURL.String())
	assert.False(t, Type(99).Valid())
}
