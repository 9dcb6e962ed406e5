package value_test

import (
	"math"
	"testing"

	"github.com/mna/pex/lang/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruthyFalsyValues(t *testing.T) {
	assert.False(t, value.Truthy(value.Null{}))
	assert.False(t, value.Truthy(value.Bool(false)))
	assert.False(t, value.Truthy(value.Number(0)))
	assert.False(t, value.Truthy(value.Number(math.NaN())))
	assert.False(t, value.Truthy(value.String("")))
}

func TestTruthyTruthyValues(t *testing.T) {
	assert.True(t, value.Truthy(value.Bool(true)))
	assert.True(t, value.Truthy(value.Number(-1)))
	assert.True(t, value.Truthy(value.String("false")))
	assert.True(t, value.Truthy(&value.Array{}))
	assert.True(t, value.Truthy(value.NewObject(0)))
}

func TestCoerceNumberFromEachType(t *testing.T) {
	assert.Equal(t, float64(0), value.CoerceNumber(value.Null{}))
	assert.Equal(t, float64(1), value.CoerceNumber(value.Bool(true)))
	assert.Equal(t, float64(0), value.CoerceNumber(value.Bool(false)))
	assert.Equal(t, float64(3), value.CoerceNumber(value.Number(3)))
	assert.Equal(t, float64(3.5), value.CoerceNumber(value.String("3.5")))
}

func TestCoerceNumberOfGarbageStringIsNaN(t *testing.T) {
	got := value.CoerceNumber(value.String("nope"))
	assert.True(t, math.IsNaN(got))
}

func TestCoerceNumberOfCompositeValuesIsNaN(t *testing.T) {
	assert.True(t, math.IsNaN(value.CoerceNumber(&value.Array{})))
	assert.True(t, math.IsNaN(value.CoerceNumber(value.NewObject(0))))
}

func TestDeepEqualScalars(t *testing.T) {
	assert.True(t, value.DeepEqual(value.Number(1), value.Number(1)))
	assert.False(t, value.DeepEqual(value.Number(1), value.Number(2)))
	assert.False(t, value.DeepEqual(value.Number(1), value.String("1")),
		"different types are never equal even when coercible")
	assert.True(t, value.DeepEqual(value.Null{}, value.Null{}))
}

func TestDeepEqualArraysCompareElementwise(t *testing.T) {
	a := &value.Array{Elems: []value.Value{value.Number(1), value.String("x")}}
	b := &value.Array{Elems: []value.Value{value.Number(1), value.String("x")}}
	c := &value.Array{Elems: []value.Value{value.Number(1)}}
	assert.True(t, value.DeepEqual(a, b))
	assert.False(t, value.DeepEqual(a, c))
}

func TestDeepEqualObjectsCompareByFieldNotInsertionOrder(t *testing.T) {
	a := value.NewObject(2)
	a.Set("x", value.Number(1))
	a.Set("y", value.Number(2))

	b := value.NewObject(2)
	b.Set("y", value.Number(2))
	b.Set("x", value.Number(1))

	assert.True(t, value.DeepEqual(a, b))

	b.Set("y", value.Number(3))
	assert.False(t, value.DeepEqual(a, b))
}

func TestDeepEqualRegexComparesPatternAndFlags(t *testing.T) {
	a := &value.Regex{Pattern: "ab+", Flags: "gi"}
	b := &value.Regex{Pattern: "ab+", Flags: "gi"}
	c := &value.Regex{Pattern: "ab+", Flags: "g"}
	assert.True(t, value.DeepEqual(a, b))
	assert.False(t, value.DeepEqual(a, c))
}

func TestDeepEqualClosuresCompareByIdentity(t *testing.T) {
	a := &value.Closure{}
	b := &value.Closure{}
	assert.True(t, value.DeepEqual(a, a))
	assert.False(t, value.DeepEqual(a, b))
}

func TestTypeNameCoversEveryVariant(t *testing.T) {
	assert.Equal(t, "null", value.TypeName(value.Null{}))
	assert.Equal(t, "bool", value.TypeName(value.Bool(true)))
	assert.Equal(t, "number", value.TypeName(value.Number(1)))
	assert.Equal(t, "string", value.TypeName(value.String("s")))
	assert.Equal(t, "array", value.TypeName(&value.Array{}))
	assert.Equal(t, "object", value.TypeName(value.NewObject(0)))
	assert.Equal(t, "regex", value.TypeName(&value.Regex{}))
	assert.Equal(t, "closure", value.TypeName(&value.Closure{}))
	assert.Equal(t, "continuation", value.TypeName(&value.Continuation{}))
}

func TestObjectGetSetHasLenKeysSorted(t *testing.T) {
	o := value.NewObject(0)
	_, ok := o.Get("missing")
	assert.False(t, ok)
	assert.False(t, o.Has("missing"))
	assert.Equal(t, 0, o.Len())

	o.Set("z", value.Number(1))
	o.Set("a", value.Number(2))
	o.Set("a", value.Number(3)) // overwrite, not a new field

	assert.Equal(t, 2, o.Len())
	assert.True(t, o.Has("a"))
	v, ok := o.Get("a")
	require.True(t, ok)
	require.Equal(t, value.Number(3), v)
	assert.Equal(t, []string{"a", "z"}, o.Keys())
}

func TestUpvalueOpenReadsThroughSlot(t *testing.T) {
	slot := value.Number(1)
	u := &value.Upvalue{Open: true, Slot: &slot}

	assert.Equal(t, value.Number(1), u.Get())
	slot = value.Number(2)
	assert.Equal(t, value.Number(2), u.Get(), "open upvalue must read live slot")

	u.Set(value.Number(5))
	assert.Equal(t, value.Number(5), slot, "open upvalue must write through to slot")
}

func TestUpvalueCloseSnapshotsAndDetaches(t *testing.T) {
	slot := value.Number(7)
	u := &value.Upvalue{Open: true, Slot: &slot}

	u.Close()
	assert.False(t, u.Open)
	assert.Nil(t, u.Slot)
	assert.Equal(t, value.Number(7), u.Get())

	slot = value.Number(99)
	assert.Equal(t, value.Number(7), u.Get(), "closed upvalue must not see later writes to the old slot")

	u.Set(value.Number(8))
	assert.Equal(t, value.Number(8), u.Get())
}

func TestUpvalueCloseIsIdempotent(t *testing.T) {
	slot := value.Number(1)
	u := &value.Upvalue{Open: true, Slot: &slot}
	u.Close()
	u.Close()
	assert.False(t, u.Open)
	assert.Equal(t, value.Number(1), u.Get())
}
