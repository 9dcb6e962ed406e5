package maincmd

import (
	"fmt"
	"io"
	"os"

	"github.com/mna/pex/internal/config"
	"github.com/mna/pex/lang/builtins"
	"github.com/mna/pex/lang/compiler"
	"github.com/mna/pex/lang/ir"
	"github.com/mna/pex/lang/machine"
	"github.com/mna/pex/lang/parser"
	"github.com/mna/pex/lang/value"
)

// newVM builds a VM for p seeded with the standard builtin library and the
// resource limits read from the environment (internal/config), falling back
// to the core spec's defaults if the environment can't be parsed.
func newVM(p *compiler.Program) *machine.VM {
	lim, err := config.LoadLimits()
	if err != nil {
		return machine.New(p, builtins.Default)
	}
	return machine.NewWithLimits(p, builtins.Default, lim.MaxStackSize, lim.MaxFrames)
}

// readSource returns the contents of path, or of stdin when path is empty.
func readSource(stdin io.Reader, path string) ([]byte, error) {
	if path == "" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// compileSource runs a source string through the full front end: parse,
// lower, codegen (spec §4.1, §4.2).
func compileSource(src string) (*compiler.Program, error) {
	prog, err := parser.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	top, err := ir.Lower(prog)
	if err != nil {
		return nil, fmt.Errorf("lower: %w", err)
	}
	p, err := compiler.Compile(top)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	return p, nil
}

// evalInputLiteral parses expr as a standalone PEX expression and evaluates
// it with a null input, reusing the same engine that runs whole programs
// rather than a bespoke literal parser. It is not permitted to perform
// effects: the --input flag describes a pure value.
func evalInputLiteral(expr string) (value.Value, error) {
	if expr == "" {
		return value.Null{}, nil
	}
	p, err := compileSource(expr)
	if err != nil {
		return nil, fmt.Errorf("--input: %w", err)
	}
	vm := newVM(p)
	noEffects := func(name string, args []value.Value, cont *value.Continuation) {
		// leave unresumed: --input literals cannot perform effects
	}
	v, err := vm.Run(value.Null{}, noEffects)
	if err != nil {
		return nil, fmt.Errorf("--input: %w", err)
	}
	return v, nil
}
