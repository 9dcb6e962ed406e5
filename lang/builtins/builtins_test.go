package builtins_test

import (
	"testing"

	"github.com/mna/pex/lang/builtins"
	"github.com/mna/pex/lang/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func call(t *testing.T, name string, args ...value.Value) value.Value {
	t.Helper()
	fn, ok := builtins.Default[name]
	require.True(t, ok, "no builtin named %q", name)
	v, err := fn(args)
	require.NoError(t, err)
	return v
}

func callErr(t *testing.T, name string, args ...value.Value) error {
	t.Helper()
	fn, ok := builtins.Default[name]
	require.True(t, ok, "no builtin named %q", name)
	_, err := fn(args)
	return err
}

func TestDefaultMatchesBroaderNameSet(t *testing.T) {
	for name := range builtins.Broader {
		_, ok := builtins.Default[name]
		assert.True(t, ok, "Broader name %q has no Default entry", name)
	}
	for name := range builtins.Default {
		assert.True(t, builtins.Broader[name], "Default name %q is not in Broader", name)
	}
}

func TestSplitOnSeparator(t *testing.T) {
	got := call(t, "split", value.String("a,b,c"), value.String(","))
	arr := got.(*value.Array)
	require.Len(t, arr.Elems, 3)
	assert.Equal(t, value.String("b"), arr.Elems[1])
}

func TestSplitOnEmptySeparatorSplitsRunes(t *testing.T) {
	got := call(t, "split", value.String("abc"), value.String(""))
	arr := got.(*value.Array)
	require.Len(t, arr.Elems, 3)
	assert.Equal(t, value.String("a"), arr.Elems[0])
}

func TestJoinRoundTripsWithSplit(t *testing.T) {
	split := call(t, "split", value.String("a-b-c"), value.String("-"))
	joined := call(t, "join", split, value.String("|"))
	assert.Equal(t, value.String("a|b|c"), joined)
}

func TestJoinRejectsNonStringElement(t *testing.T) {
	arr := &value.Array{Elems: []value.Value{value.String("a"), value.Number(1)}}
	err := callErr(t, "join", arr, value.String(","))
	require.Error(t, err)
}

func TestLenOnStringCountsRunesNotBytes(t *testing.T) {
	got := call(t, "len", value.String("héllo"))
	assert.Equal(t, value.Number(5), got)
}

func TestLenOnArrayAndObject(t *testing.T) {
	arr := &value.Array{Elems: []value.Value{value.Number(1), value.Number(2)}}
	assert.Equal(t, value.Number(2), call(t, "len", arr))

	obj := value.NewObject(2)
	obj.Set("a", value.Number(1))
	obj.Set("b", value.Number(2))
	assert.Equal(t, value.Number(2), call(t, "len", obj))
}

func TestLenRejectsScalar(t *testing.T) {
	err := callErr(t, "len", value.Number(1))
	require.Error(t, err)
}

func TestTrimRemovesLeadingAndTrailingSpace(t *testing.T) {
	assert.Equal(t, value.String("hi"), call(t, "trim", value.String("  hi  ")))
}

func TestUpperLowerAreLocaleAwareNotJustASCII(t *testing.T) {
	assert.Equal(t, value.String("STRASSE"), call(t, "upper", value.String("straße")))
	assert.Equal(t, value.String("café"), call(t, "lower", value.String("CAFÉ")))
}

func TestFirstLastOnEmptyArrayReturnNull(t *testing.T) {
	empty := &value.Array{}
	assert.Equal(t, value.Null{}, call(t, "first", empty))
	assert.Equal(t, value.Null{}, call(t, "last", empty))
}

func TestFirstLastOnPopulatedArray(t *testing.T) {
	arr := &value.Array{Elems: []value.Value{value.Number(1), value.Number(2), value.Number(3)}}
	assert.Equal(t, value.Number(1), call(t, "first", arr))
	assert.Equal(t, value.Number(3), call(t, "last", arr))
}

func TestToNumberCoercesBoolAndString(t *testing.T) {
	assert.Equal(t, value.Number(1), call(t, "to_number", value.Bool(true)))
	assert.Equal(t, value.Number(3.5), call(t, "to_number", value.String("3.5")))
}

func TestToNumberOfGarbageStringIsNaN(t *testing.T) {
	got := call(t, "to_number", value.String("not a number"))
	n := float64(got.(value.Number))
	assert.True(t, n != n, "expected NaN")
}

func TestToIntTruncatesTowardZero(t *testing.T) {
	assert.Equal(t, value.Number(3), call(t, "to_int", value.Number(3.9)))
	assert.Equal(t, value.Number(-3), call(t, "to_int", value.Number(-3.9)))
}

func TestToStringUsesStringify(t *testing.T) {
	arr := &value.Array{Elems: []value.Value{value.Number(1), value.String("x")}}
	assert.Equal(t, value.String("[1, x]"), call(t, "to_string", arr))
}

func TestConcatStrings(t *testing.T) {
	assert.Equal(t, value.String("foobar"), call(t, "concat", value.String("foo"), value.String("bar")))
}

func TestConcatArraysDoesNotMutateOperands(t *testing.T) {
	a := &value.Array{Elems: []value.Value{value.Number(1)}}
	b := &value.Array{Elems: []value.Value{value.Number(2)}}
	got := call(t, "concat", a, b)
	arr := got.(*value.Array)
	require.Len(t, arr.Elems, 2)
	assert.Len(t, a.Elems, 1)
	assert.Len(t, b.Elems, 1)
}

func TestConcatMismatchedTypesIsAnError(t *testing.T) {
	err := callErr(t, "concat", value.String("a"), value.Number(1))
	require.Error(t, err)
}

func TestPushReturnsNewArrayLeavingInputUntouched(t *testing.T) {
	arr := &value.Array{Elems: []value.Value{value.Number(1)}}
	got := call(t, "push", arr, value.Number(2))
	pushed := got.(*value.Array)
	require.Len(t, pushed.Elems, 2)
	assert.Len(t, arr.Elems, 1, "push must not mutate its argument")
}

func TestKeysReturnsSortedObjectKeys(t *testing.T) {
	obj := value.NewObject(2)
	obj.Set("z", value.Number(1))
	obj.Set("a", value.Number(2))
	got := call(t, "keys", obj)
	arr := got.(*value.Array)
	require.Len(t, arr.Elems, 2)
	assert.Equal(t, value.String("a"), arr.Elems[0])
	assert.Equal(t, value.String("z"), arr.Elems[1])
}

func TestHasOnObjectAndArray(t *testing.T) {
	obj := value.NewObject(1)
	obj.Set("name", value.String("ava"))
	assert.Equal(t, value.Bool(true), call(t, "has", obj, value.String("name")))
	assert.Equal(t, value.Bool(false), call(t, "has", obj, value.String("age")))

	arr := &value.Array{Elems: []value.Value{value.Number(1), value.Number(2)}}
	assert.Equal(t, value.Bool(true), call(t, "has", arr, value.Number(2)))
	assert.Equal(t, value.Bool(false), call(t, "has", arr, value.Number(3)))
}

func TestContainsOnStringAndArray(t *testing.T) {
	assert.Equal(t, value.Bool(true), call(t, "contains", value.String("hello world"), value.String("wor")))
	assert.Equal(t, value.Bool(false), call(t, "contains", value.String("hello world"), value.String("xyz")))

	arr := &value.Array{Elems: []value.Value{value.String("a"), value.String("b")}}
	assert.Equal(t, value.Bool(true), call(t, "contains", arr, value.String("b")))
}

func TestReplaceAllOccurrences(t *testing.T) {
	got := call(t, "replace", value.String("a-b-c"), value.String("-"), value.String("_"))
	assert.Equal(t, value.String("a_b_c"), got)
}

func TestStringifyRendersObjectAndRegex(t *testing.T) {
	obj := value.NewObject(1)
	obj.Set("k", value.Number(1))
	assert.Equal(t, "{k: 1}", builtins.Stringify(obj))
	assert.Equal(t, "/ab+/i", builtins.Stringify(&value.Regex{Pattern: "ab+", Flags: "i"}))

	assert.Equal(t, "null", builtins.Stringify(value.Null{}))
	assert.Equal(t, "true", builtins.Stringify(value.Bool(true)))
}
