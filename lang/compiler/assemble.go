package compiler

import "encoding/binary"

// finish assembles every function body collected during compilation into
// the flat code section of a Program, resolving jump widths to a fixpoint
// (spec §4.2 "Opcode width selection", §9 Open Question (b)).
func (c *compiler) finish() (*Program, error) {
	var code []byte
	for i, body := range c.bodies {
		assembled, err := assembleFunction(body)
		if err != nil {
			return nil, err
		}
		c.templates[i].CodeOffset = uint32(len(code))
		c.templates[i].CodeLength = uint32(len(assembled))
		code = append(code, assembled...)
	}
	templates := make([]FunctionTemplate, len(c.templates))
	for i, t := range c.templates {
		templates[i] = *t
	}
	return &Program{
		Constants: c.constants,
		Names:     c.names,
		Templates: templates,
		Code:      code,
	}, nil
}

// jumpOpcode picks the concrete jump opcode for a pseudo-instruction kind
// and width.
func jumpOpcode(kind instrKind, width int) Opcode {
	switch kind {
	case kJump:
		switch width {
		case 1:
			return JUMP_U8
		case 2:
			return JUMP_U16
		default:
			return JUMP_U32
		}
	case kJumpIfFalse:
		switch width {
		case 1:
			return JUMP_IF_FALSE_U8
		case 2:
			return JUMP_IF_FALSE_U16
		default:
			return JUMP_IF_FALSE_U32
		}
	default: // kJumpIfTrue
		switch width {
		case 1:
			return JUMP_IF_TRUE_U8
		case 2:
			return JUMP_IF_TRUE_U16
		default:
			return JUMP_IF_TRUE_U32
		}
	}
}

func otherOpcode(kind instrKind, width int) Opcode {
	switch kind {
	case kConst:
		return [...]Opcode{1: CONST_U8, 2: CONST_U16, 4: CONST_U32}[width]
	case kLoadLocal:
		return [...]Opcode{1: LOAD_LOCAL_U8, 2: LOAD_LOCAL_U16, 4: LOAD_LOCAL_U32}[width]
	case kStoreLocal:
		return [...]Opcode{1: STORE_LOCAL_U8, 2: STORE_LOCAL_U16, 4: STORE_LOCAL_U32}[width]
	case kLoadUpvalue:
		return [...]Opcode{1: LOAD_UPVALUE_U8, 2: LOAD_UPVALUE_U16, 4: LOAD_UPVALUE_U32}[width]
	case kStoreUpvalue:
		return [...]Opcode{1: STORE_UPVALUE_U8, 2: STORE_UPVALUE_U16, 4: STORE_UPVALUE_U32}[width]
	case kMakeClosure:
		return [...]Opcode{1: MAKE_CLOSURE_U8, 2: MAKE_CLOSURE_U16, 4: MAKE_CLOSURE_U32}[width]
	case kCall:
		return [...]Opcode{1: CALL_U8, 2: CALL_U16, 4: CALL_U32}[width]
	case kCallBuiltin:
		return [...]Opcode{1: CALL_BUILTIN_U8, 2: CALL_BUILTIN_U16, 4: CALL_BUILTIN_U32}[width]
	case kEffect:
		return [...]Opcode{1: EFFECT_U8, 2: EFFECT_U16, 4: EFFECT_U32}[width]
	case kMakeArray:
		return [...]Opcode{1: MAKE_ARRAY_U8, 2: MAKE_ARRAY_U16, 4: MAKE_ARRAY_U32}[width]
	default:
		panic("compiler: otherOpcode called on non-width-variant kind")
	}
}

// instrSize returns the encoded size of ins given its current width.
func instrSize(ins instr) int {
	if ins.kind == kPlain {
		return ins.op.size()
	}
	switch ins.kind {
	case kCallBuiltin, kEffect:
		return 1 + ins.width + 1
	default:
		return 1 + ins.width
	}
}

// fits reports whether a signed relative offset fits in width bytes.
func fits(off int64, width int) bool {
	switch width {
	case 1:
		return off >= -128 && off <= 127
	case 2:
		return off >= -32768 && off <= 32767
	default:
		return off >= -(1<<31) && off <= (1<<31)-1
	}
}

// assembleFunction resolves jump widths to a fixpoint and encodes one
// function's instruction buffer into bytes.
func assembleFunction(instrs []instr) ([]byte, error) {
	offsets := make([]int, len(instrs)+1)
	for {
		off := 0
		for i, ins := range instrs {
			offsets[i] = off
			off += instrSize(ins)
		}
		offsets[len(instrs)] = off

		changed := false
		for i, ins := range instrs {
			if !isJumpKind(ins.kind) {
				continue
			}
			targetIdx := int(ins.operand)
			instrEnd := offsets[i] + instrSize(ins)
			rel := int64(offsets[targetIdx]) - int64(instrEnd)
			if !fits(rel, ins.width) {
				instrs[i].width = nextWidth(ins.width)
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	buf := make([]byte, 0, offsets[len(instrs)])
	for i, ins := range instrs {
		buf = appendInstr(buf, ins, offsets, i)
	}
	return buf, nil
}

func isJumpKind(k instrKind) bool {
	return k == kJump || k == kJumpIfFalse || k == kJumpIfTrue
}

func nextWidth(w int) int {
	switch w {
	case 1:
		return 2
	default:
		return 4
	}
}

func appendInstr(buf []byte, ins instr, offsets []int, i int) []byte {
	if ins.kind == kPlain {
		return append(buf, byte(ins.op))
	}
	if isJumpKind(ins.kind) {
		op := jumpOpcode(ins.kind, ins.width)
		buf = append(buf, byte(op))
		instrEnd := offsets[i] + instrSize(ins)
		rel := int64(offsets[int(ins.operand)]) - int64(instrEnd)
		return appendSigned(buf, rel, ins.width)
	}

	op := otherOpcode(ins.kind, ins.width)
	buf = append(buf, byte(op))
	buf = appendUnsigned(buf, uint64(ins.operand), ins.width)
	if ins.kind == kCallBuiltin || ins.kind == kEffect {
		buf = append(buf, ins.operand2)
	}
	return buf
}

func appendUnsigned(buf []byte, v uint64, width int) []byte {
	switch width {
	case 1:
		return append(buf, byte(v))
	case 2:
		var tmp [2]byte
		binary.LittleEndian.PutUint16(tmp[:], uint16(v))
		return append(buf, tmp[:]...)
	default:
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(v))
		return append(buf, tmp[:]...)
	}
}

func appendSigned(buf []byte, v int64, width int) []byte {
	switch width {
	case 1:
		return append(buf, byte(int8(v)))
	case 2:
		var tmp [2]byte
		binary.LittleEndian.PutUint16(tmp[:], uint16(int16(v)))
		return append(buf, tmp[:]...)
	default:
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(int32(v)))
		return append(buf, tmp[:]...)
	}
}
