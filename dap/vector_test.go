package dap

import (
	"bytes"
	"context"
	"encoding/binary"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-dap/xdr"
)

type fakeGate struct {
	excluded map[string]bool
	checkErr error
	paused   bool
	selects  int
}

func (g *fakeGate) Dataset() string { return "test" }

func (g *fakeGate) Selected(_ context.Context, v Value) (bool, error) {
	g.selects++
	return !g.excluded[v.Name()], nil
}

func (g *fakeGate) Check() error { return g.checkErr }
func (g *fakeGate) Pause() { g.paused = true }
func (g *fakeGate) Resume() { g.paused = false }

func encode(t *testing.T, v Value, g Gate, ceEval bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, v.Serialize(context.Background(), g, xdr.NewEncoder(&buf), ceEval))
	return buf.Bytes()
}

func decoder(b []byte) *xdr.Decoder {
	return xdr.NewDecoder(bytes.NewReader(b))
}

func int32Array(name string, vals ...int32) *Array {
	a := NewArray(name, NewInt32(""))
	a.AppendDim(len(vals), "")
	if err := a.CopyIn(vals); err != nil {
		panic(err)
	}
	return a
}

func TestInt32RoundTrip(t *testing.T) {
	a := int32Array("a", 1, 2, 3, -4, 100000)
	wire := encode(t, a, &fakeGate{}, false)

	require.Len(t, wire, 28)
	assert.Equal(t, uint32(5), binary.BigEndian.Uint32(wire[0:]))
	assert.Equal(t, uint32(5), binary.BigEndian.Uint32(wire[4:]))
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xfc}, wire[20:24])
	assert.Equal(t, uint32(100000), binary.BigEndian.Uint32(wire[24:]))

	out := NewList("a", NewInt32(""))
	require.NoError(t, out.Deserialize(decoder(wire), false))
	assert.Equal(t, 5, out.Length())
	assert.True(t, out.IsRead())
	vals, err := Values[int32](&out.Vector)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3, -4, 100000}, vals)
}

func TestStringRoundTrip(t *testing.T) {
	l := NewList("names", NewStr(""))
	require.NoError(t, l.CopyIn([]string{"alpha", "", "beta"}))
	wire := encode(t, l, &fakeGate{}, false)

	out := NewList("names", NewStr(""))
	require.NoError(t, out.Deserialize(decoder(wire), false))
	got, err := out.CopyOut()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "", "beta"}, got)
}

func TestByteVectorUsesOpaque(t *testing.T) {
	a := NewArray("b", NewByte(""))
	a.AppendDim(3, "")
	require.NoError(t, a.CopyIn([]uint8{7, 8, 255}))
	wire := encode(t, a, &fakeGate{}, false)
	assert.Equal(t, []byte{0, 0, 0, 3, 0, 0, 0, 3, 7, 8, 255}, wire)

	out := NewArray("b", NewByte(""))
	out.AppendDim(3, "")
	require.NoError(t, out.Deserialize(decoder(wire), true))
	vals, err := Values[uint8](&out.Vector)
	require.NoError(t, err)
	assert.Equal(t, []uint8{7, 8, 255}, vals)
}

func TestDeserializeLengthMismatch(t *testing.T) {
	wire := encode(t, int32Array("a", 1, 2, 3, 4), &fakeGate{}, false)

	a := int32Array("a", 9, 9, 9, 9, 9)
	err := a.Deserialize(decoder(wire), false)
	require.Error(t, err)
	assert.True(t, IsInternal(err))
	assert.ErrorIs(t, err, ErrLengthMismatch)

	vals, err := Values[int32](&a.Vector)
	require.NoError(t, err)
	assert.Equal(t, []int32{9, 9, 9, 9, 9}, vals)
}

func TestDeserializeAdoptsLength(t *testing.T) {
	wire := encode(t, int32Array("a", 1, 2, 3, 4, 5, 6, 7), &fakeGate{}, false)

	l := NewList("a", NewInt32(""))
	assert.Equal(t, -1, l.Length())
	require.NoError(t, l.Deserialize(decoder(wire), false))
	assert.Equal(t, 7, l.Length())
	assert.Equal(t, 28, l.Width())
}

func TestInnerCountMismatch(t *testing.T) {
	var buf bytes.Buffer
	enc := xdr.NewEncoder(&buf)
	require.NoError(t, enc.PutUint32(3))
	require.NoError(t, enc.PutPacked(make([]byte, 8), 4))

	l := NewList("a", NewInt32(""))
	err := l.Deserialize(decoder(buf.Bytes()), false)
	assert.True(t, IsInternal(err))
	assert.Equal(t, -1, l.Length())
	assert.Zero(t, l.Capacity())
}

func TestTruncatedStreamIsTransmission(t *testing.T) {
	wire := encode(t, int32Array("a", 1, 2, 3), &fakeGate{}, false)

	l := NewList("a", NewInt32(""))
	err := l.Deserialize(decoder(wire[:len(wire)-2]), false)
	require.Error(t, err)
	assert.True(t, IsTransmission(err))
	assert.False(t, IsInternal(err))
	assert.ErrorIs(t, err, xdr.ErrTruncated)
	assert.Equal(t, -1, l.Length())
}

func TestUnbackedCountFailsFast(t *testing.T) {
	wire := []byte{0x04, 0x00, 0x00, 0x00}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	before := ms.TotalAlloc

	strs := NewList("names", NewStr(""))
	err := strs.Deserialize(decoder(wire), false)
	assert.True(t, IsTransmission(err))
	assert.ErrorIs(t, err, xdr.ErrTruncated)
	assert.Equal(t, -1, strs.Length())

	nums := NewList("a", NewFloat64(""))
	err = nums.Deserialize(decoder(append(wire, wire...)), false)
	assert.True(t, IsTransmission(err))
	assert.ErrorIs(t, err, xdr.ErrTruncated)

	empty := NewList("rows", NewStructure("row"))
	err = empty.Deserialize(decoder(wire), false)
	assert.True(t, IsTransmission(err))
	assert.ErrorIs(t, err, xdr.ErrTooLarge)
	assert.Equal(t, -1, empty.Length())

	runtime.ReadMemStats(&ms)
	assert.Less(t, ms.TotalAlloc-before, uint64(4<<20))
}

func TestEmptyElementsWithinLimit(t *testing.T) {
	l := NewList("rows", NewStructure("row"))
	require.NoError(t, l.Deserialize(decoder([]byte{0, 0, 0, 3}), false))
	assert.Equal(t, 3, l.Length())
}

func TestReuseKeepsContentsOnTruncation(t *testing.T) {
	orig := make([]int32, 2000)
	next := make([]int32, 2000)
	for i := range orig {
		orig[i] = int32(i)
		next[i] = -int32(i) - 1
	}
	wire := encode(t, int32Array("a", next...), &fakeGate{}, false)

	a := int32Array("a", orig...)
	err := a.Deserialize(decoder(wire[:8+1100*4]), true)
	require.Error(t, err)
	assert.True(t, IsTransmission(err))
	vals, err := Values[int32](&a.Vector)
	require.NoError(t, err)
	assert.Equal(t, orig, vals)

	require.NoError(t, a.Deserialize(decoder(wire), true))
	vals, err = Values[int32](&a.Vector)
	require.NoError(t, err)
	assert.Equal(t, next, vals)
}

func TestAdmitWithoutSource(t *testing.T) {
	v := NewInt32("i")
	v.SetValue(42)
	require.Nil(t, v.Source())

	ok, err := Admit(context.Background(), v, &fakeGate{}, true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, v.IsRead())
	assert.Equal(t, int32(42), v.Value())
}

func TestStorageExclusivity(t *testing.T) {
	num := int32Array("a", 1, 2)
	assert.ErrorIs(t, num.Assign(0, NewInt32("x")), ErrWrongStorage)
	assert.ErrorIs(t, num.Resize(4), ErrWrongStorage)

	agg := NewArray("s", NewStructure(""))
	agg.AppendDim(2, "")
	assert.ErrorIs(t, agg.CopyIn([]int32{1, 2}), ErrWrongStorage)
	_, err := agg.CopyOut()
	assert.ErrorIs(t, err, ErrWrongStorage)

	txt := NewList("t", NewURL(""))
	assert.ErrorIs(t, txt.Assign(0, NewURL("u")), ErrWrongStorage)
	_, err = txt.EncodeInto(make([]byte, 8))
	assert.ErrorIs(t, err, ErrWrongStorage)
}

func TestTypeMismatch(t *testing.T) {
	a := NewArray("a", NewInt32(""))
	a.AppendDim(2, "")
	err := a.CopyIn([]float64{1, 2})
	assert.True(t, IsInternal(err))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	assert.ErrorIs(t, a.CopyIn([]int32{1, 2, 3}), ErrLengthMismatch)
	assert.ErrorIs(t, a.CopyIn(nil), ErrNilValue)

	s := NewStructure("s")
	agg := NewArray("s", s)
	agg.AppendDim(1, "")
	assert.ErrorIs(t, agg.Assign(0, NewSequence("q")), ErrTypeMismatch)
	assert.ErrorIs(t, agg.Assign(0, nil), ErrNilValue)
	assert.ErrorIs(t, agg.Assign(1, s), ErrOutOfRange)
}

func TestNoPrototype(t *testing.T) {
	a := NewArray("a", nil)
	assert.ErrorIs(t, a.CopyIn([]int32{1}), ErrNoPrototype)
	_, err := a.ElementAt(0)
	assert.ErrorIs(t, err, ErrNoPrototype)
	assert.ErrorIs(t, a.Deserialize(decoder([]byte{0, 0, 0, 0}), false), ErrNoPrototype)
	assert.Zero(t, a.Width())
}

func TestAssignGrowthPreservesContents(t *testing.T) {
	proto := NewStructure("s")
	proto.AddVar(NewInt32("i"))
	a := NewArray("", proto)
	assert.Equal(t, "s", a.Name())
	a.AppendDim(13, "")

	for i := 0; i < 3; i++ {
		e := proto.Duplicate().(*Structure)
		e.Var("i").(*Int32).SetValue(int32(i + 10))
		require.NoError(t, a.Assign(i, e))
	}
	assert.Equal(t, 3, a.Capacity())
	require.NoError(t, a.Assign(12, proto))
	assert.Equal(t, 13, a.Capacity())

	for i := 0; i < 3; i++ {
		e, err := a.ElementAt(i)
		require.NoError(t, err)
		assert.Equal(t, int32(i+10), e.(*Structure).Var("i").(*Int32).Value())
		assert.Same(t, a, e.Parent())
	}
	_, err := a.ElementAt(5)
	assert.ErrorIs(t, err, ErrNoStorage)

	// unassigned slots keep the vector from being serialized
	var buf bytes.Buffer
	err = a.Serialize(context.Background(), &fakeGate{}, xdr.NewEncoder(&buf), false)
	assert.ErrorIs(t, err, ErrNoStorage)
}

func TestAssignStoresCopy(t *testing.T) {
	proto := NewStructure("s")
	proto.AddVar(NewInt32("i"))
	a := NewArray("s", proto)
	a.AppendDim(1, "")

	e := proto.Duplicate().(*Structure)
	e.Var("i").(*Int32).SetValue(1)
	require.NoError(t, a.Assign(0, e))
	e.Var("i").(*Int32).SetValue(2)

	got, err := a.ElementAt(0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), got.(*Structure).Var("i").(*Int32).Value())
}

func TestResize(t *testing.T) {
	a := NewArray("s", NewStructure(""))
	a.AppendDim(4, "")
	require.NoError(t, a.Resize(4))
	for i := 0; i < 4; i++ {
		require.NoError(t, a.Assign(i, NewStructure("s")))
	}
	require.NoError(t, a.Resize(2))
	assert.Equal(t, 2, a.Capacity())
	require.NoError(t, a.Resize(3))
	_, err := a.ElementAt(2)
	assert.ErrorIs(t, err, ErrNoStorage)
	_, err = a.ElementAt(1)
	assert.NoError(t, err)
}

func TestAggregateRoundTrip(t *testing.T) {
	proto := NewStructure("s")
	proto.AddVar(NewInt16("i"))
	proto.AddVar(NewStr("name"))
	a := NewArray("s", proto)
	a.AppendDim(2, "")
	for i, name := range []string{"x", "y"} {
		e := proto.Duplicate().(*Structure)
		e.Var("i").(*Int16).SetValue(int16(-i))
		e.Var("name").(*Str).SetText(name)
		require.NoError(t, a.Assign(i, e))
	}
	a.SetSend(true)
	wire := encode(t, a, &fakeGate{}, false)

	out := NewArray("s", proto)
	out.AppendDim(2, "")
	require.NoError(t, out.Deserialize(decoder(wire), false))
	e, err := out.Element(1)
	require.NoError(t, err)
	assert.Equal(t, int16(-1), e.(*Structure).Var("i").(*Int16).Value())
	assert.Equal(t, "y", e.(*Structure).Var("name").(*Str).Text())
	assert.Nil(t, e.Parent())
}

func TestProjectionShortCircuit(t *testing.T) {
	reads := 0
	a := NewArray("a", NewInt32(""))
	a.AppendDim(2, "")
	a.SetSource(SourceFunc(func(_ context.Context, dataset string, v Value) error {
		reads++
		assert.Equal(t, "test", dataset)
		return v.(*Array).CopyIn([]int32{4, 5})
	}))

	g := &fakeGate{excluded: map[string]bool{"a": true}}
	assert.Empty(t, encode(t, a, g, true))
	assert.Zero(t, reads)
	assert.False(t, a.IsRead())
	assert.False(t, g.paused)

	g.excluded = nil
	assert.Len(t, encode(t, a, g, true), 16)
	assert.Equal(t, 1, reads)
	assert.True(t, a.IsRead())

	encode(t, a, g, true)
	assert.Equal(t, 1, reads)
}

func TestCheckFailsBeforeAnyWork(t *testing.T) {
	a := int32Array("a", 1)
	g := &fakeGate{checkErr: ErrTimeout}
	var buf bytes.Buffer
	err := a.Serialize(context.Background(), g, xdr.NewEncoder(&buf), true)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Zero(t, buf.Len())
	assert.Zero(t, g.selects)
}

func TestNilGate(t *testing.T) {
	var buf bytes.Buffer
	err := int32Array("a", 1).Serialize(context.Background(), nil, xdr.NewEncoder(&buf), false)
	assert.ErrorIs(t, err, ErrNoGate)
}

func TestSerializeWithoutStorage(t *testing.T) {
	a := NewArray("a", NewFloat64(""))
	a.AppendDim(3, "")
	var buf bytes.Buffer
	err := a.Serialize(context.Background(), &fakeGate{}, xdr.NewEncoder(&buf), false)
	assert.True(t, IsInternal(err))
	assert.ErrorIs(t, err, ErrNoStorage)

	l := NewList("l", NewInt32(""))
	err = l.Serialize(context.Background(), &fakeGate{}, xdr.NewEncoder(&buf), false)
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestAttach(t *testing.T) {
	a := NewArray("a", NewInt32(""))
	assert.Equal(t, "a", a.Prototype().Name())
	assert.Same(t, a, a.Prototype().Parent())

	a.AppendDim(2, "")
	require.NoError(t, a.CopyIn([]int32{1, 2}))

	a.Attach(NewInt32("renamed"))
	assert.Equal(t, "renamed", a.Name())
	assert.Equal(t, 2, a.Capacity(), "same element type keeps storage")

	a.Attach(NewFloat32(""))
	assert.Equal(t, "renamed", a.Prototype().Name())
	assert.Zero(t, a.Capacity())
	_, err := a.CopyOut()
	assert.ErrorIs(t, err, ErrNoStorage)
}

func TestElementAtAliasesPrototype(t *testing.T) {
	a := int32Array("a", 10, 20)
	first, err := a.ElementAt(0)
	require.NoError(t, err)
	kept, err := a.Element(0)
	require.NoError(t, err)
	second, err := a.ElementAt(1)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(20), first.(*Int32).Value())
	assert.Equal(t, int32(10), kept.(*Int32).Value())

	_, err = a.ElementAt(2)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = a.ElementAt(-1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestDuplicateIsDeep(t *testing.T) {
	a := int32Array("a", 1, 2)
	c := a.Duplicate().(*Array)
	require.NoError(t, a.CopyIn([]int32{7, 7}))

	vals, err := Values[int32](&c.Vector)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2}, vals)
	assert.Same(t, c, c.Prototype().Parent())
	assert.Equal(t, a.Dims(), c.Dims())
}

func TestNativeBufferCopies(t *testing.T) {
	a := int32Array("a", 1, -1)
	buf := make([]byte, 8)
	n, err := a.EncodeInto(buf)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, int32(-1), int32(binary.NativeEndian.Uint32(buf[4:])))

	_, err = a.EncodeInto(make([]byte, 4))
	assert.ErrorIs(t, err, ErrShortBuffer)

	l := NewList("l", NewInt32(""))
	n, err = l.DecodeFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, 2, l.Length())
	vals, err := Values[int32](&l.Vector)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, -1}, vals)

	_, err = l.DecodeFrom(buf[:4])
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestSendAndReadPropagate(t *testing.T) {
	proto := NewStructure("s")
	proto.AddVar(NewInt32("i"))
	a := NewArray("s", proto)
	a.AppendDim(1, "")
	require.NoError(t, a.Assign(0, proto))

	a.SetSend(true)
	e, err := a.ElementAt(0)
	require.NoError(t, err)
	assert.True(t, e.Send())
	assert.True(t, e.(*Structure).Var("i").Send())
	assert.True(t, a.Prototype().Send())

	a.SetRead(true)
	assert.True(t, e.IsRead())
}
