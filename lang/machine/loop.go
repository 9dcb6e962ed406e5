package machine

import (
	"encoding/binary"
	"math"

	"github.com/dlclark/regexp2"
	"github.com/mna/pex/lang/compiler"
	"github.com/mna/pex/lang/ir"
	"github.com/mna/pex/lang/value"
)

// loop is the bytecode dispatch loop (spec §4.3.1). It runs until halted is
// set, either by an outer-frame RETURN (normal termination) or an EFFECT
// suspension.
func (vm *VM) loop(handler EffectHandler) (value.Value, error) {
	vm.halted = false
	vm.pending = nil
	for !vm.halted {
		if err := vm.step(handler); err != nil {
			return nil, err
		}
	}
	if vm.pending != nil {
		return nil, vm.pending
	}
	if len(vm.stack) == 0 {
		return value.Null{}, nil
	}
	return vm.stack[len(vm.stack)-1], nil
}

func (vm *VM) curFrame() *frame { return &vm.frames[len(vm.frames)-1] }

func (vm *VM) code() []byte {
	fr := vm.curFrame()
	tpl := fr.closure.Template.(*compiler.FunctionTemplate)
	return vm.Program.FuncCode(tpl)
}

func (vm *VM) fetchByte() (byte, error) {
	fr := vm.curFrame()
	code := vm.code()
	if fr.ip >= len(code) {
		return 0, runtimeErrorf("instruction pointer out of bounds")
	}
	b := code[fr.ip]
	fr.ip++
	return b, nil
}

func (vm *VM) fetchOperand(width int) (uint32, error) {
	fr := vm.curFrame()
	code := vm.code()
	if fr.ip+width > len(code) {
		return 0, runtimeErrorf("instruction pointer out of bounds")
	}
	var v uint32
	switch width {
	case 1:
		v = uint32(code[fr.ip])
	case 2:
		v = uint32(binary.LittleEndian.Uint16(code[fr.ip:]))
	default:
		v = binary.LittleEndian.Uint32(code[fr.ip:])
	}
	fr.ip += width
	return v, nil
}

func (vm *VM) fetchSignedJump(width int) (int32, error) {
	fr := vm.curFrame()
	code := vm.code()
	if fr.ip+width > len(code) {
		return 0, runtimeErrorf("instruction pointer out of bounds")
	}
	var v int32
	switch width {
	case 1:
		v = int32(int8(code[fr.ip]))
	case 2:
		v = int32(int16(binary.LittleEndian.Uint16(code[fr.ip:])))
	default:
		v = int32(binary.LittleEndian.Uint32(code[fr.ip:]))
	}
	fr.ip += width
	return v, nil
}

// step decodes and executes exactly one instruction.
func (vm *VM) step(handler EffectHandler) error {
	opByte, err := vm.fetchByte()
	if err != nil {
		return err
	}
	op := compiler.Opcode(opByte)

	switch op {
	case compiler.NOP:
		return nil
	case compiler.POP:
		_, err := vm.pop()
		return err
	case compiler.DUP:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		if err := vm.push(v); err != nil {
			return err
		}
		return vm.push(v)
	case compiler.SWAP:
		b, err := vm.pop()
		if err != nil {
			return err
		}
		a, err := vm.pop()
		if err != nil {
			return err
		}
		if err := vm.push(b); err != nil {
			return err
		}
		return vm.push(a)

	case compiler.CONST_NULL:
		return vm.push(value.Null{})
	case compiler.CONST_TRUE:
		return vm.push(value.Bool(true))
	case compiler.CONST_FALSE:
		return vm.push(value.Bool(false))
	case compiler.CONST_ZERO:
		return vm.push(value.Number(0))
	case compiler.CONST_ONE:
		return vm.push(value.Number(1))

	case compiler.CONST_U8, compiler.CONST_U16, compiler.CONST_U32:
		idx, err := vm.fetchOperand(constWidth(op))
		if err != nil {
			return err
		}
		return vm.push(vm.constantValue(int(idx)))

	case compiler.LOAD_LOCAL_U8, compiler.LOAD_LOCAL_U16, compiler.LOAD_LOCAL_U32:
		idx, err := vm.fetchOperand(localWidth(op))
		if err != nil {
			return err
		}
		return vm.push(vm.stack[vm.curFrame().bp+int(idx)])

	case compiler.STORE_LOCAL_U8, compiler.STORE_LOCAL_U16, compiler.STORE_LOCAL_U32:
		idx, err := vm.fetchOperand(localWidth(op))
		if err != nil {
			return err
		}
		v, err := vm.pop()
		if err != nil {
			return err
		}
		vm.stack[vm.curFrame().bp+int(idx)] = v
		return nil

	case compiler.LOAD_UPVALUE_U8, compiler.LOAD_UPVALUE_U16, compiler.LOAD_UPVALUE_U32:
		idx, err := vm.fetchOperand(localWidth(op))
		if err != nil {
			return err
		}
		return vm.push(vm.curFrame().closure.Upvalues[idx].Get())

	case compiler.STORE_UPVALUE_U8, compiler.STORE_UPVALUE_U16, compiler.STORE_UPVALUE_U32:
		idx, err := vm.fetchOperand(localWidth(op))
		if err != nil {
			return err
		}
		v, err := vm.pop()
		if err != nil {
			return err
		}
		vm.curFrame().closure.Upvalues[idx].Set(v)
		return nil

	case compiler.ADD, compiler.SUB, compiler.MUL, compiler.DIV, compiler.MOD:
		return vm.binaryArith(op)
	case compiler.NEG:
		a, err := vm.pop()
		if err != nil {
			return err
		}
		return vm.push(value.Number(-value.CoerceNumber(a)))

	case compiler.EQ, compiler.NE, compiler.LT, compiler.GT, compiler.LE, compiler.GE:
		return vm.compare(op)

	case compiler.NOT:
		a, err := vm.pop()
		if err != nil {
			return err
		}
		return vm.push(value.Bool(!value.Truthy(a)))

	case compiler.NULL_COALESCE:
		b, err := vm.pop()
		if err != nil {
			return err
		}
		a, err := vm.pop()
		if err != nil {
			return err
		}
		if _, isNull := a.(value.Null); isNull {
			return vm.push(b)
		}
		return vm.push(a)

	case compiler.JUMP_U8, compiler.JUMP_U16, compiler.JUMP_U32:
		off, err := vm.fetchSignedJump(jumpWidth(op))
		if err != nil {
			return err
		}
		vm.curFrame().ip += int(off)
		return nil

	case compiler.JUMP_IF_FALSE_U8, compiler.JUMP_IF_FALSE_U16, compiler.JUMP_IF_FALSE_U32:
		off, err := vm.fetchSignedJump(jumpWidth(op))
		if err != nil {
			return err
		}
		cond, err := vm.pop()
		if err != nil {
			return err
		}
		if !value.Truthy(cond) {
			vm.curFrame().ip += int(off)
		}
		return nil

	case compiler.JUMP_IF_TRUE_U8, compiler.JUMP_IF_TRUE_U16, compiler.JUMP_IF_TRUE_U32:
		off, err := vm.fetchSignedJump(jumpWidth(op))
		if err != nil {
			return err
		}
		cond, err := vm.pop()
		if err != nil {
			return err
		}
		if value.Truthy(cond) {
			vm.curFrame().ip += int(off)
		}
		return nil

	case compiler.MAKE_CLOSURE_U8, compiler.MAKE_CLOSURE_U16, compiler.MAKE_CLOSURE_U32:
		idx, err := vm.fetchOperand(tplWidth(op))
		if err != nil {
			return err
		}
		return vm.makeClosure(int(idx))

	case compiler.CALL_U8, compiler.CALL_U16, compiler.CALL_U32:
		argc, err := vm.fetchOperand(callWidth(op))
		if err != nil {
			return err
		}
		return vm.call(int(argc))

	case compiler.RETURN:
		return vm.doReturn()

	case compiler.CALL_BUILTIN_U8, compiler.CALL_BUILTIN_U16, compiler.CALL_BUILTIN_U32:
		nameIdx, err := vm.fetchOperand(nameWidth(op))
		if err != nil {
			return err
		}
		argc, err := vm.fetchByte()
		if err != nil {
			return err
		}
		return vm.callBuiltin(int(nameIdx), int(argc))

	case compiler.EFFECT_U8, compiler.EFFECT_U16, compiler.EFFECT_U32:
		nameIdx, err := vm.fetchOperand(nameWidth(op))
		if err != nil {
			return err
		}
		argc, err := vm.fetchByte()
		if err != nil {
			return err
		}
		return vm.doEffect(int(nameIdx), int(argc), handler)

	case compiler.MAKE_ARRAY_U8, compiler.MAKE_ARRAY_U16, compiler.MAKE_ARRAY_U32:
		n, err := vm.fetchOperand(callWidth(op))
		if err != nil {
			return err
		}
		elems, err := vm.popN(int(n))
		if err != nil {
			return err
		}
		return vm.push(&value.Array{Elems: elems})

	case compiler.GET_INDEX:
		return vm.getIndex()

	default:
		return runtimeErrorf("unknown opcode %d", opByte)
	}
}

func (vm *VM) constantValue(idx int) value.Value {
	c := vm.Program.Constants[idx].Value
	switch v := c.(type) {
	case nil:
		return value.Null{}
	case bool:
		return value.Bool(v)
	case int32:
		return value.Number(v)
	case float64:
		return value.Number(v)
	case string:
		return value.String(v)
	case ir.Regex:
		if r, ok := vm.regexCache[idx]; ok {
			return r
		}
		r := &value.Regex{
			Pattern:  v.Pattern,
			Flags:    v.Flags,
			Compiled: compileRegex(v.Pattern, v.Flags),
		}
		vm.regexCache[idx] = r
		return r
	default:
		return value.Null{}
	}
}

// compileRegex translates a PEX regex literal's flags (spec §3.1 "i" case
// insensitive, "m" multiline, "s" dot-matches-newline) into regexp2 options
// and compiles the pattern. A pattern that fails to compile produces a
// matcher that never matches, rather than panicking at constant-load time;
// the compile error itself is discarded and not reported.
func compileRegex(pattern, flags string) *regexp2.Regexp {
	opts := regexp2.None
	for _, f := range flags {
		switch f {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		}
	}
	re, err := regexp2.Compile(pattern, opts)
	if err != nil {
		re, _ = regexp2.Compile(`$.^`, regexp2.None)
	}
	return re
}

func (vm *VM) binaryArith(op compiler.Opcode) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	x, y := value.CoerceNumber(a), value.CoerceNumber(b)
	switch op {
	case compiler.ADD:
		return vm.push(value.Number(x + y))
	case compiler.SUB:
		return vm.push(value.Number(x - y))
	case compiler.MUL:
		return vm.push(value.Number(x * y))
	case compiler.DIV:
		if y == 0 {
			return runtimeErrorf("division by zero")
		}
		return vm.push(value.Number(x / y))
	case compiler.MOD:
		if y == 0 {
			return runtimeErrorf("division by zero")
		}
		return vm.push(value.Number(math.Mod(x, y)))
	}
	return runtimeErrorf("unreachable arithmetic opcode %s", op)
}

func (vm *VM) compare(op compiler.Opcode) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	switch op {
	case compiler.EQ:
		return vm.push(value.Bool(value.DeepEqual(a, b)))
	case compiler.NE:
		return vm.push(value.Bool(!value.DeepEqual(a, b)))
	}
	x, y := value.CoerceNumber(a), value.CoerceNumber(b)
	switch op {
	case compiler.LT:
		return vm.push(value.Bool(x < y))
	case compiler.GT:
		return vm.push(value.Bool(x > y))
	case compiler.LE:
		return vm.push(value.Bool(x <= y))
	case compiler.GE:
		return vm.push(value.Bool(x >= y))
	}
	return runtimeErrorf("unreachable comparison opcode %s", op)
}

func (vm *VM) getIndex() error {
	idx, err := vm.pop()
	if err != nil {
		return err
	}
	coll, err := vm.pop()
	if err != nil {
		return err
	}
	switch coll := coll.(type) {
	case *value.Array:
		i := int(value.CoerceNumber(idx))
		if i < 0 || i >= len(coll.Elems) {
			return vm.push(value.Null{})
		}
		return vm.push(coll.Elems[i])
	case *value.Object:
		key, ok := idx.(value.String)
		if !ok {
			return vm.push(value.Null{})
		}
		v, ok := coll.Get(string(key))
		if !ok {
			return vm.push(value.Null{})
		}
		return vm.push(v)
	default:
		return runtimeErrorf("cannot index into %s", value.TypeName(coll))
	}
}

func constWidth(op compiler.Opcode) int { return widthOf(op) }
func localWidth(op compiler.Opcode) int { return widthOf(op) }
func tplWidth(op compiler.Opcode) int   { return widthOf(op) }
func callWidth(op compiler.Opcode) int  { return widthOf(op) }
func nameWidth(op compiler.Opcode) int  { return widthOf(op) }
func jumpWidth(op compiler.Opcode) int {
	switch op {
	case compiler.JUMP_U16, compiler.JUMP_IF_FALSE_U16, compiler.JUMP_IF_TRUE_U16:
		return 2
	case compiler.JUMP_U32, compiler.JUMP_IF_FALSE_U32, compiler.JUMP_IF_TRUE_U32:
		return 4
	default:
		return 1
	}
}

// widthOf returns the operand width encoded in a U8/U16/U32 opcode name's
// suffix, independent of the opcode's logical family.
func widthOf(op compiler.Opcode) int {
	switch op {
	case compiler.CONST_U16, compiler.LOAD_LOCAL_U16, compiler.STORE_LOCAL_U16,
		compiler.LOAD_UPVALUE_U16, compiler.STORE_UPVALUE_U16, compiler.MAKE_CLOSURE_U16,
		compiler.CALL_U16, compiler.MAKE_ARRAY_U16, compiler.CALL_BUILTIN_U16, compiler.EFFECT_U16:
		return 2
	case compiler.CONST_U32, compiler.LOAD_LOCAL_U32, compiler.STORE_LOCAL_U32,
		compiler.LOAD_UPVALUE_U32, compiler.STORE_UPVALUE_U32, compiler.MAKE_CLOSURE_U32,
		compiler.CALL_U32, compiler.MAKE_ARRAY_U32, compiler.CALL_BUILTIN_U32, compiler.EFFECT_U32:
		return 4
	default:
		return 1
	}
}
