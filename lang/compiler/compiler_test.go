package compiler_test

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/mna/pex/lang/compiler"
	"github.com/mna/pex/lang/ir"
	"github.com/mna/pex/lang/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, src string) *compiler.Program {
	t.Helper()
	prog, err := parser.Parse(src)
	require.NoError(t, err)
	top, err := ir.Lower(prog)
	require.NoError(t, err)
	p, err := compiler.Compile(top)
	require.NoError(t, err)
	return p
}

func TestCompileEntryPointHasOneParam(t *testing.T) {
	p := compile(t, "(+ 1 1)")
	tpl := p.EntryPoint()
	assert.EqualValues(t, 1, tpl.ParamCount)
}

func TestCompileDeduplicatesConstants(t *testing.T) {
	p := compile(t, `(concat "x" "x")`)
	count := 0
	for _, c := range p.Constants {
		if s, ok := c.Value.(string); ok && s == "x" {
			count++
		}
	}
	assert.Equal(t, 1, count, "the same string constant must be interned once")
}

func TestCompileArithmeticUsesDedicatedOpcodes(t *testing.T) {
	p := compile(t, "(+ 1 2)")
	out := compiler.Disassemble(p)
	assert.Contains(t, out, "add")
	assert.NotContains(t, out, "call_builtin")
}

func TestCompileUnaryMinusEmitsNeg(t *testing.T) {
	p := compile(t, "(- 5)")
	out := compiler.Disassemble(p)
	assert.Contains(t, out, "neg")
	assert.NotContains(t, out, "sub")
}

func TestCompileBinaryMinusEmitsSub(t *testing.T) {
	p := compile(t, "(- 5 2)")
	out := compiler.Disassemble(p)
	assert.Contains(t, out, "sub")
	assert.NotContains(t, out, "neg")
}

func TestCompileBroaderBuiltinUsesCallBuiltin(t *testing.T) {
	p := compile(t, `(upper "a")`)
	out := compiler.Disassemble(p)
	assert.True(t, strings.Contains(out, "call_builtin_u8") ||
		strings.Contains(out, "call_builtin_u16") ||
		strings.Contains(out, "call_builtin_u32"))
	require.Len(t, p.Names, 1)
	assert.Equal(t, "upper", p.Names[0])
}

func TestCompileClosureEmitsMakeClosureAndSeparateTemplate(t *testing.T) {
	p := compile(t, "fn: add (x y) (+ x y); (add 1 2)")
	require.Len(t, p.Templates, 2, "entry point plus the add function")
	out := compiler.Disassemble(p)
	assert.True(t, strings.Contains(out, "make_closure_u8") ||
		strings.Contains(out, "make_closure_u16"))
}

func TestCompileUndefinedNameIsAnError(t *testing.T) {
	prog, err := parser.Parse("(totally_unknown 1)")
	require.NoError(t, err)
	top, err := ir.Lower(prog)
	require.NoError(t, err)
	_, err = compiler.Compile(top)
	require.Error(t, err)
}

func TestCompileIfEmitsBalancedJumps(t *testing.T) {
	p := compile(t, "(if $$ 1 2)")
	out := compiler.Disassemble(p)
	assert.Contains(t, out, "jump_if_false")
	assert.Contains(t, out, "jump_u8")
}

func TestEncodeDecodeRoundTripsProgramShape(t *testing.T) {
	p := compile(t, `let: x 10; fn: add (y) (+ x y); (add 5)`)
	data := compiler.Encode(p)

	got, err := compiler.Decode(data)
	require.NoError(t, err)

	assert.Equal(t, p.Names, got.Names)
	require.Equal(t, len(p.Templates), len(got.Templates))
	for i := range p.Templates {
		assert.Equal(t, p.Templates[i].ParamCount, got.Templates[i].ParamCount)
		assert.Equal(t, p.Templates[i].LocalCount, got.Templates[i].LocalCount)
		assert.Equal(t, p.Templates[i].Upvalues, got.Templates[i].Upvalues)
	}
	assert.Equal(t, p.Code, got.Code)
	assert.Equal(t, compiler.Disassemble(p), compiler.Disassemble(got))
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := compiler.Decode([]byte{0, 1, 2, 3})
	require.Error(t, err)
	var rerr *compiler.ReadError
	assert.ErrorAs(t, err, &rerr)
}

func TestDecodeRejectsTruncatedData(t *testing.T) {
	p := compile(t, "1")
	data := compiler.Encode(p)
	_, err := compiler.Decode(data[:len(data)-1])
	require.Error(t, err)
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	p := compile(t, "1")
	data := append(compiler.Encode(p), 0xff)
	_, err := compiler.Decode(data)
	require.Error(t, err)
}

func TestDecodeRejectsInvalidEntryPoint(t *testing.T) {
	p := compile(t, "1")
	data := compiler.Encode(p)
	// Header layout: 4-byte magic, 2-byte version, 2 flag/reserved bytes,
	// then the 4-byte little-endian entry point at offset 8. Encode always
	// writes 0 here; a reader must reject anything else rather than trust it.
	binary.LittleEndian.PutUint32(data[8:12], 1)

	_, err := compiler.Decode(data)
	require.Error(t, err)
	var rerr *compiler.ReadError
	assert.ErrorAs(t, err, &rerr)
}
