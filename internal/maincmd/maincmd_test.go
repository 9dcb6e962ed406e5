package maincmd_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/mna/mainer"
	"github.com/mna/pex/internal/maincmd"
	"github.com/mna/pex/lang/compiler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStdio(in string) (mainer.Stdio, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return mainer.Stdio{
		Stdin:  strings.NewReader(in),
		Stdout: &out,
		Stderr: &errOut,
	}, &out, &errOut
}

func TestRunExecutesSourceFromStdin(t *testing.T) {
	stdio, out, errOut := newStdio(`$$ | upper`)
	c := &maincmd.Cmd{Input: `"hi"`}

	err := c.Run(context.Background(), stdio, nil)
	require.NoError(t, err)
	assert.Empty(t, errOut.String())
	assert.Equal(t, "HI\n", out.String())
}

func TestRunReportsParseErrorsWithoutPanicking(t *testing.T) {
	stdio, _, _ := newStdio(`(`)
	c := &maincmd.Cmd{}

	err := c.Run(context.Background(), stdio, nil)
	require.Error(t, err)
}

func TestRunUnhandledEffectIsReportedThenFailsUnresumed(t *testing.T) {
	// stdioEffectHandler only resumes "print"; any other effect name is
	// logged to stderr but left unresumed, which the VM then surfaces as
	// a runtime error (spec §9 Open Question (a)).
	stdio, out, errOut := newStdio(`ask: "what"; 1`)
	c := &maincmd.Cmd{}

	err := c.Run(context.Background(), stdio, nil)
	require.Error(t, err)
	assert.Contains(t, errOut.String(), "unhandled effect")
	assert.Contains(t, errOut.String(), "ask")
	assert.Equal(t, "", out.String())
}

func TestRunPrintEffectWritesToStdoutAndResumes(t *testing.T) {
	stdio, out, errOut := newStdio(`print: "hello"; 42`)
	c := &maincmd.Cmd{}

	err := c.Run(context.Background(), stdio, nil)
	require.NoError(t, err)
	assert.Empty(t, errOut.String())
	assert.Equal(t, "hello\n42\n", out.String())
}

func TestCompileThenDisasmBytecodeRoundTrips(t *testing.T) {
	compileStdio, compiled, _ := newStdio(`(+ 1 2)`)
	c := &maincmd.Cmd{}
	require.NoError(t, c.Compile(context.Background(), compileStdio, nil))

	_, err := compiler.Decode(compiled.Bytes())
	require.NoError(t, err, "Compile must emit a program Decode can read back")

	disasmStdio, out, _ := newStdio(compiled.String())
	dc := &maincmd.Cmd{Bytecode: true}
	require.NoError(t, dc.Disasm(context.Background(), disasmStdio, nil))
	assert.Contains(t, out.String(), "add")
}

func TestDisasmFromSourceShowsOpcodes(t *testing.T) {
	stdio, out, _ := newStdio(`(- 1)`)
	c := &maincmd.Cmd{}

	err := c.Disasm(context.Background(), stdio, nil)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "neg")
}
