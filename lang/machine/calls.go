package machine

import (
	"github.com/google/uuid"
	"github.com/mna/pex/lang/value"
)

// openUpvalue returns the single open upvalue for the stack slot at absIdx,
// creating it on first reference so that every closure capturing that slot
// afterward shares the same object (spec §3.4).
func (vm *VM) openUpvalue(absIdx int) *value.Upvalue {
	if u, ok := vm.openUpvalues[absIdx]; ok {
		return u
	}
	u := &value.Upvalue{Open: true, Slot: &vm.stack[absIdx]}
	vm.openUpvalues[absIdx] = u
	return u
}

// makeClosure implements MAKE_CLOSURE (spec §4.3.3): build the concrete
// upvalue list for the function template at tplIdx from the current frame,
// either opening a fresh capture of one of its own locals or forwarding an
// upvalue it already holds.
func (vm *VM) makeClosure(tplIdx int) error {
	if tplIdx < 0 || tplIdx >= len(vm.Program.Templates) {
		return runtimeErrorf("invalid function template index %d", tplIdx)
	}
	tpl := &vm.Program.Templates[tplIdx]
	fr := vm.curFrame()
	ups := make([]*value.Upvalue, len(tpl.Upvalues))
	for i, spec := range tpl.Upvalues {
		if spec.IsLocal {
			ups[i] = vm.openUpvalue(fr.bp + int(spec.Index))
		} else {
			ups[i] = fr.closure.Upvalues[spec.Index]
		}
	}
	return vm.push(&value.Closure{Template: tpl, Upvalues: ups})
}

// call implements CALL (spec §4.3.3): pop argc arguments and the callee off
// the operand stack, then push a new frame for it.
func (vm *VM) call(argc int) error {
	args, err := vm.popN(argc)
	if err != nil {
		return err
	}
	callee, err := vm.pop()
	if err != nil {
		return err
	}
	closure, ok := callee.(*value.Closure)
	if !ok {
		return runtimeErrorf("cannot call a value of type %s", value.TypeName(callee))
	}
	return vm.pushCall(closure, args)
}

// doReturn implements RETURN (spec §4.3.3, §4.3.4): close every upvalue
// still open into the returning frame's locals, pop the frame, truncate the
// operand stack back to its locals, and leave the single return value on
// top. Halts the machine once the outermost frame returns.
func (vm *VM) doReturn() error {
	retVal, err := vm.pop()
	if err != nil {
		return err
	}
	fr := vm.frames[len(vm.frames)-1]
	for idx, u := range vm.openUpvalues {
		if idx >= fr.bp {
			u.Close()
			delete(vm.openUpvalues, idx)
		}
	}
	vm.stack = vm.stack[:fr.bp]
	vm.frames = vm.frames[:len(vm.frames)-1]
	if len(vm.frames) == 0 {
		vm.halted = true
	}
	return vm.push(retVal)
}

// callBuiltin implements CALL_BUILTIN (spec §4.3.6): dispatch to the named
// entry in vm.Builtins with argc arguments popped off the stack in order.
func (vm *VM) callBuiltin(nameIdx, argc int) error {
	if nameIdx < 0 || nameIdx >= len(vm.Program.Names) {
		return runtimeErrorf("invalid builtin name index %d", nameIdx)
	}
	name := vm.Program.Names[nameIdx]
	fn, ok := vm.Builtins[name]
	if !ok {
		return runtimeErrorf("unknown builtin %q", name)
	}
	args, err := vm.popN(argc)
	if err != nil {
		return err
	}
	result, err := fn(args)
	if err != nil {
		return runtimeErrorf("%s: %v", name, err)
	}
	return vm.push(result)
}

// doEffect implements EFFECT (spec §4.3.4): capture the current machine
// state as a one-shot continuation, suspend execution, and hand control to
// handler. If the handler resumes the continuation before returning, the
// resumed value becomes EFFECT's result and execution continues in place;
// otherwise the machine halts with no further progress possible.
func (vm *VM) doEffect(nameIdx, argc int, handler EffectHandler) error {
	if nameIdx < 0 || nameIdx >= len(vm.Program.Names) {
		return runtimeErrorf("invalid effect name index %d", nameIdx)
	}
	name := vm.Program.Names[nameIdx]
	args, err := vm.popN(argc)
	if err != nil {
		return err
	}
	if handler == nil {
		return runtimeErrorf("effect %q performed with no handler installed", name)
	}

	cont := vm.captureContinuation(handler)
	handler(name, args, cont)

	if !cont.Resumed {
		vm.halted = true
		vm.pending = runtimeErrorf("effect %q was not resumed", name)
	}
	return nil
}

// captureContinuation snapshots the frame and operand stacks, plus the open
// upvalue table, for later resumption (spec §3.3, §4.3.4) and binds Resume
// to a closure over this VM, so an effect handler can resume execution
// without holding a VM reference of its own. Frames are value-copied (each
// is just a closure pointer, ip and bp); the operand stack is value-copied
// too, though array/object/closure elements within it remain
// reference-shared, matching PEX's reference semantics for those types. The
// open upvalue table is copied by reference, one entry per slot: those
// *Upvalue objects are the same ones live closures already hold, and the
// stack backing array they point into is never reallocated (vm.stack is
// preallocated to capacity), so they stay valid once the stack is restored.
// Dropping this table on resume would leak any upvalue opened before the
// suspending effect: its frame's later RETURN would never find it to close.
func (vm *VM) captureContinuation(handler EffectHandler) *value.Continuation {
	frames := make([]frame, len(vm.frames))
	copy(frames, vm.frames)
	stack := make([]value.Value, len(vm.stack))
	copy(stack, vm.stack)
	ups := make(map[int]*value.Upvalue, len(vm.openUpvalues))
	for idx, u := range vm.openUpvalues {
		ups[idx] = u
	}
	cont := &value.Continuation{ID: uuid.New(), Frames: frames, Stack: stack, Upvalues: ups}
	cont.Resume = func(v value.Value) (value.Value, error) {
		return vm.resumeContinuation(cont, v, handler)
	}
	return cont
}

// resumeContinuation implements one-shot continuation resumption (spec
// §4.3.4): restore the captured frame/operand stacks, push v as EFFECT's
// result, and keep running until the program halts again (either by normal
// return or another unresumed effect). It is an error to resume the same
// continuation twice.
func (vm *VM) resumeContinuation(cont *value.Continuation, v value.Value, handler EffectHandler) (value.Value, error) {
	if cont.Resumed {
		return nil, runtimeErrorf("continuation resumed more than once")
	}
	cont.Resumed = true

	frames, ok := cont.Frames.([]frame)
	if !ok {
		return nil, runtimeErrorf("invalid continuation")
	}
	vm.frames = append([]frame(nil), frames...)
	vm.stack = append(vm.stack[:0:cap(vm.stack)], cont.Stack...)
	vm.openUpvalues = make(map[int]*value.Upvalue, len(cont.Upvalues))
	for idx, u := range cont.Upvalues {
		vm.openUpvalues[idx] = u
	}
	if err := vm.push(v); err != nil {
		return nil, err
	}
	return vm.loop(handler)
}
