// Package machine implements the stack-based virtual machine that executes
// bytecode produced by lang/compiler (spec §4.3): an operand stack, a frame
// stack, Lua-style open/closed upvalues, and one-shot delimited
// continuations driven by algebraic effects.
package machine

import (
	"fmt"

	"github.com/mna/pex/lang/compiler"
	"github.com/mna/pex/lang/value"
)

// Limits on the two stacks, matching spec §3.5.
const (
	MaxStackSize = 10000
	MaxFrames    = 1000
)

// RuntimeError is any error raised during execution (spec §7): stack
// under/overflow, frame overflow, instruction-pointer out of bounds,
// unknown opcode, division by zero, call of a non-closure, arity mismatch,
// indexing a value that is neither an array nor an object, unknown builtin, a continuation resumed twice, or a
// builtin's own reported error.
type RuntimeError struct{ Msg string }

func (e *RuntimeError) Error() string { return e.Msg }

func runtimeErrorf(format string, args ...interface{}) error {
	return &RuntimeError{Msg: fmt.Sprintf(format, args...)}
}

// Builtin is a host- or standard-library-provided function invoked via
// CALL_BUILTIN (spec §4.3.6): a pure function from an ordered list of
// values to one value.
type Builtin func(args []value.Value) (value.Value, error)

// EffectHandler is invoked synchronously whenever the running program
// performs an EFFECT (spec §4.3.4, §6.2). It must eventually call
// cont.Resume exactly once, or leave the continuation unresumed to abort
// the program.
type EffectHandler func(name string, args []value.Value, cont *value.Continuation)

// frame is one call frame (spec §3.5): a closure, an instruction pointer
// into its template's code, and bp, the operand-stack index at which its
// locals begin.
type frame struct {
	closure *value.Closure
	ip      int
	bp      int
}

// VM is one instance of the virtual machine. It is not reentrant: Run must
// not be called again while a prior call is suspended on the same
// instance's operand/frame stacks (spec §4.3).
type VM struct {
	Program  *compiler.Program
	Builtins map[string]Builtin

	stack  []value.Value
	frames []frame

	// openUpvalues maps an absolute operand-stack index to the single open
	// upvalue object shared by every closure that has captured that slot
	// (spec §3.4).
	openUpvalues map[int]*value.Upvalue

	// regexCache memoizes the compiled regexp2 matcher for each constant-pool
	// regex entry, keyed by its index, so CONST_* never recompiles a pattern
	// it has already built.
	regexCache map[int]*value.Regex

	maxStackSize int
	maxFrames    int

	halted  bool
	pending error
}

// New builds a VM ready to run p, seeded with the given builtin table
// (typically builtins.Default, possibly overridden per spec §6.2), using
// the core spec's default resource limits (§3.5).
func New(p *compiler.Program, builtinTable map[string]Builtin) *VM {
	return NewWithLimits(p, builtinTable, MaxStackSize, MaxFrames)
}

// NewWithLimits is New, but with the operand-stack and frame-stack bounds
// overridden (see internal/config, which sources these from the
// environment rather than hardcoding the package defaults).
func NewWithLimits(p *compiler.Program, builtinTable map[string]Builtin, maxStackSize, maxFrames int) *VM {
	return &VM{
		Program:  p,
		Builtins: builtinTable,
		// Preallocated to capacity so append never reallocates the backing
		// array: open upvalues hold a *value.Value pointing directly into this
		// slice, which a reallocation would silently invalidate.
		stack:        make([]value.Value, 0, maxStackSize),
		openUpvalues: make(map[int]*value.Upvalue),
		regexCache:   make(map[int]*value.Regex),
		maxStackSize: maxStackSize,
		maxFrames:    maxFrames,
	}
}

// Run executes the program from its entry point with input as the sole
// argument, invoking handler on every EFFECT (spec §6.2). It returns once
// the program has terminated normally or a handler has chosen not to
// resume (spec §9, Open Question (a): in the latter case Run returns a nil
// value and a non-nil error, so a discarded continuation is never silent).
func (vm *VM) Run(input value.Value, handler EffectHandler) (value.Value, error) {
	tpl := vm.Program.EntryPoint()
	entry := &value.Closure{Template: tpl}
	if err := vm.pushCall(entry, []value.Value{input}); err != nil {
		return nil, err
	}
	return vm.loop(handler)
}

func (vm *VM) pushCall(closure *value.Closure, args []value.Value) error {
	tpl := closure.Template.(*compiler.FunctionTemplate)
	if uint32(len(args)) != tpl.ParamCount {
		return runtimeErrorf("arity mismatch: %s expects %d argument(s), got %d", templateName(vm.Program, tpl), tpl.ParamCount, len(args))
	}
	if len(vm.frames) >= vm.maxFrames {
		return runtimeErrorf("frame stack overflow")
	}
	bp := len(vm.stack)
	if bp+int(tpl.LocalCount) > vm.maxStackSize {
		return runtimeErrorf("operand stack overflow")
	}
	vm.stack = append(vm.stack, args...)
	for i := uint32(len(args)); i < tpl.LocalCount; i++ {
		vm.stack = append(vm.stack, value.Null{})
	}
	vm.frames = append(vm.frames, frame{closure: closure, ip: 0, bp: bp})
	return nil
}

func templateName(p *compiler.Program, tpl *compiler.FunctionTemplate) string {
	if tpl.NameIndex < 0 || int(tpl.NameIndex) >= len(p.Names) {
		return "<anonymous function>"
	}
	return p.Names[tpl.NameIndex]
}

func (vm *VM) push(v value.Value) error {
	if len(vm.stack) >= vm.maxStackSize {
		return runtimeErrorf("operand stack overflow")
	}
	vm.stack = append(vm.stack, v)
	return nil
}

func (vm *VM) pop() (value.Value, error) {
	if len(vm.stack) == 0 {
		return nil, runtimeErrorf("operand stack underflow")
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v, nil
}

func (vm *VM) popN(n int) ([]value.Value, error) {
	if len(vm.stack) < n {
		return nil, runtimeErrorf("operand stack underflow")
	}
	out := make([]value.Value, n)
	copy(out, vm.stack[len(vm.stack)-n:])
	vm.stack = vm.stack[:len(vm.stack)-n]
	return out, nil
}
