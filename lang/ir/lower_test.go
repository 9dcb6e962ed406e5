package ir_test

import (
	"testing"

	"github.com/mna/pex/lang/ir"
	"github.com/mna/pex/lang/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lower(t *testing.T, src string) *ir.Fn {
	t.Helper()
	prog, err := parser.Parse(src)
	require.NoError(t, err)
	fn, err := ir.Lower(prog)
	require.NoError(t, err)
	return fn
}

func TestLowerTopLevelIsSingleArgFn(t *testing.T) {
	fn := lower(t, "42")
	assert.Equal(t, []string{"input"}, fn.Params)
	assert.Nil(t, fn.Captures)

	c, ok := fn.Body.(*ir.Const)
	require.True(t, ok, "body should be a Const, got %T", fn.Body)
	assert.Equal(t, int32(42), c.Value)
}

func TestLowerIntegerWidthSwitchesToFloat(t *testing.T) {
	// fits in int32
	fn := lower(t, "2000000000")
	c := fn.Body.(*ir.Const)
	assert.Equal(t, int32(2000000000), c.Value)

	// does not fit in int32
	fn = lower(t, "9000000000")
	c = fn.Body.(*ir.Const)
	assert.Equal(t, float64(9000000000), c.Value)
}

func TestLowerDollarDollarIsInput(t *testing.T) {
	fn := lower(t, "$$")
	v, ok := fn.Body.(*ir.Var)
	require.True(t, ok)
	assert.Equal(t, "input", v.Name)
}

func TestLowerBareDollarOutsidePipelineIsError(t *testing.T) {
	prog, err := parser.Parse("$")
	require.NoError(t, err)
	_, err = ir.Lower(prog)
	require.Error(t, err)
}

func TestLowerDollarNDesugarsToGet(t *testing.T) {
	fn := lower(t, "$2")
	call, ok := fn.Body.(*ir.Call)
	require.True(t, ok, "body should be a Call, got %T", fn.Body)
	fv, ok := call.Func.(*ir.Var)
	require.True(t, ok)
	assert.Equal(t, "get", fv.Name)
	require.Len(t, call.Args, 2)
	av, ok := call.Args[0].(*ir.Var)
	require.True(t, ok)
	assert.Equal(t, "input", av.Name)
	ac, ok := call.Args[1].(*ir.Const)
	require.True(t, ok)
	assert.Equal(t, int32(2), ac.Value)
}

func TestLowerIfDesugarsDirectly(t *testing.T) {
	fn := lower(t, "(if $$ 1 2)")
	iff, ok := fn.Body.(*ir.If)
	require.True(t, ok, "body should be an If, got %T", fn.Body)
	cond, ok := iff.Cond.(*ir.Var)
	require.True(t, ok)
	assert.Equal(t, "input", cond.Name)
}

func TestLowerAndDesugarsToLetAndIf(t *testing.T) {
	fn := lower(t, "(and $$ 1)")
	let, ok := fn.Body.(*ir.Let)
	require.True(t, ok, "body should be a Let, got %T", fn.Body)
	assert.Equal(t, "$and_temp", let.Name)

	iff, ok := let.Body.(*ir.If)
	require.True(t, ok)
	cond := iff.Cond.(*ir.Var)
	assert.Equal(t, "$and_temp", cond.Name)
	els := iff.Else.(*ir.Var)
	assert.Equal(t, "$and_temp", els.Name)
}

func TestLowerOrDesugarsToLetAndIf(t *testing.T) {
	fn := lower(t, "(or $$ 1)")
	let, ok := fn.Body.(*ir.Let)
	require.True(t, ok, "body should be a Let, got %T", fn.Body)
	assert.Equal(t, "$or_temp", let.Name)

	iff, ok := let.Body.(*ir.If)
	require.True(t, ok)
	then := iff.Then.(*ir.Var)
	assert.Equal(t, "$or_temp", then.Name)
}

func TestLowerPipelineFoldsIntoNestedLets(t *testing.T) {
	fn := lower(t, "$$ | upper | trim")

	outer, ok := fn.Body.(*ir.Let)
	require.True(t, ok, "expected outer Let, got %T", fn.Body)
	firstVar, ok := outer.Value.(*ir.Var)
	require.True(t, ok)
	assert.Equal(t, "input", firstVar.Name)

	inner, ok := outer.Body.(*ir.Let)
	require.True(t, ok, "expected inner Let, got %T", outer.Body)
	upperCall, ok := inner.Value.(*ir.Call)
	require.True(t, ok)
	upperFn := upperCall.Func.(*ir.Var)
	assert.Equal(t, "upper", upperFn.Name)
	require.Len(t, upperCall.Args, 1)
	arg := upperCall.Args[0].(*ir.Var)
	assert.Equal(t, outer.Name, arg.Name)

	// Tail stage is left unbound, not wrapped in a further Let.
	trimCall, ok := inner.Body.(*ir.Call)
	require.True(t, ok, "expected tail Call, got %T", inner.Body)
	trimFn := trimCall.Func.(*ir.Var)
	assert.Equal(t, "trim", trimFn.Name)
	trimArg := trimCall.Args[0].(*ir.Var)
	assert.Equal(t, inner.Name, trimArg.Name)
}

func TestLowerPipelineStageInjectsDollarAsFirstArgWhenAbsent(t *testing.T) {
	fn := lower(t, `$$ | (concat "!")`)
	let := fn.Body.(*ir.Let)
	call := let.Body.(*ir.Call)
	require.Len(t, call.Args, 2)
	first := call.Args[0].(*ir.Var)
	assert.Equal(t, let.Name, first.Name)
}

func TestLowerPipelineStageLeavesExplicitDollarInPlace(t *testing.T) {
	fn := lower(t, `$$ | (concat "!" $)`)
	let := fn.Body.(*ir.Let)
	call := let.Body.(*ir.Call)
	require.Len(t, call.Args, 2)
	second := call.Args[1].(*ir.Var)
	assert.Equal(t, let.Name, second.Name)
}

func TestLowerFnCapturesEnclosingScope(t *testing.T) {
	fn := lower(t, "let: x 10; fn: add (y) (+ x y); (add 5)")
	// top-level body is a Seq: [Let x, Let add, Call add 5]
	seq, ok := fn.Body.(*ir.Seq)
	require.True(t, ok, "expected Seq, got %T", fn.Body)
	require.Len(t, seq.Exprs, 3)

	addLet := seq.Exprs[1].(*ir.Let)
	assert.Equal(t, "add", addLet.Name)
	addFn := addLet.Value.(*ir.Fn)
	assert.Equal(t, []string{"x"}, addFn.Captures)
}

func TestLowerMutualRecursionPreDeclaresFnNames(t *testing.T) {
	fn := lower(t, "fn: f (n) (g n); fn: g (n) n; (f 3)")
	seq := fn.Body.(*ir.Seq)
	require.Len(t, seq.Exprs, 3)

	fLet := seq.Exprs[0].(*ir.Let)
	assert.Equal(t, "f", fLet.Name)
	fFn := fLet.Value.(*ir.Fn)
	assert.Equal(t, []string{"g"}, fFn.Captures)

	gLet := seq.Exprs[1].(*ir.Let)
	assert.Equal(t, "g", gLet.Name)
	gFn := gLet.Value.(*ir.Fn)
	assert.Empty(t, gFn.Captures)
}

func TestFreeVarsSeqExtendsScopeAcrossSiblingLets(t *testing.T) {
	body := &ir.Seq{Exprs: []ir.Expr{
		&ir.Let{Name: "a", Value: &ir.Const{Value: int32(1)}, Body: &ir.Const{Value: int32(0)}},
		&ir.Var{Name: "a"},
	}}
	free := ir.FreeVars(body, map[string]bool{})
	assert.Empty(t, free, "a is bound by the sibling Let within the same Seq")
}

func TestFreeVarsNestedFnContributesOnlyCaptures(t *testing.T) {
	inner := &ir.Fn{Params: []string{"z"}, Body: &ir.Var{Name: "z"}, Captures: []string{"outer"}}
	free := ir.FreeVars(inner, map[string]bool{})
	assert.Equal(t, []string{"outer"}, free)
}
