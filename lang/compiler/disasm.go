package compiler

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/mna/pex/lang/ir"
)

// Disassemble renders p in a human-readable textual form: one function per
// block, each instruction annotated with its resolved operand. It exists
// purely for inspection and tests; the core never parses this format back
// (unlike the binary format of spec §6.3, which round-trips).
func Disassemble(p *Program) string {
	var b strings.Builder
	fmt.Fprintf(&b, "constants: %d\n", len(p.Constants))
	for i, k := range p.Constants {
		fmt.Fprintf(&b, "  [%d] %s\n", i, formatConstant(k.Value))
	}
	fmt.Fprintf(&b, "names: %d\n", len(p.Names))
	for i, n := range p.Names {
		fmt.Fprintf(&b, "  [%d] %s\n", i, n)
	}
	for i, t := range p.Templates {
		fmt.Fprintf(&b, "\nfunction %d: params=%d locals=%d upvalues=%d\n", i, t.ParamCount, t.LocalCount, len(t.Upvalues))
		for ui, u := range t.Upvalues {
			kind := "upvalue"
			if u.IsLocal {
				kind = "local"
			}
			fmt.Fprintf(&b, "  upvalue[%d] <- parent %s %d\n", ui, kind, u.Index)
		}
		disassembleCode(&b, p.FuncCode(&p.Templates[i]))
	}
	return b.String()
}

func formatConstant(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case ir.Regex:
		return fmt.Sprintf("/%s/%s", v.Pattern, v.Flags)
	case string:
		return fmt.Sprintf("%q", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func disassembleCode(b *strings.Builder, code []byte) {
	ip := 0
	for ip < len(code) {
		op := Opcode(code[ip])
		start := ip
		ip++
		switch {
		case isJump(op):
			rel := int32(int8(code[ip]))
			width := 1
			switch jumpWidthOf(op) {
			case 2:
				rel = int32(int16(binary.LittleEndian.Uint16(code[ip:])))
				width = 2
			case 4:
				rel = int32(binary.LittleEndian.Uint32(code[ip:]))
				width = 4
			}
			ip += width
			fmt.Fprintf(b, "  %04d %-20s %+d -> %04d\n", start, op, rel, ip+int(rel))
		case op.width() > 0:
			operand, argc, n := readOperand(op, code[ip:])
			ip += n
			if argc >= 0 {
				fmt.Fprintf(b, "  %04d %-20s %d %d\n", start, op, operand, argc)
			} else {
				fmt.Fprintf(b, "  %04d %-20s %d\n", start, op, operand)
			}
		default:
			fmt.Fprintf(b, "  %04d %s\n", start, op)
		}
	}
}

func jumpWidthOf(op Opcode) int {
	switch op {
	case JUMP_U16, JUMP_IF_FALSE_U16, JUMP_IF_TRUE_U16:
		return 2
	case JUMP_U32, JUMP_IF_FALSE_U32, JUMP_IF_TRUE_U32:
		return 4
	default:
		return 1
	}
}

// readOperand decodes a non-jump, width-variant opcode's operand(s),
// returning the bytes consumed. argc is -1 unless op is a CALL_BUILTIN or
// EFFECT variant, which carry a trailing u8 argcount.
func readOperand(op Opcode, rest []byte) (operand uint32, argc int, consumed int) {
	width := 0
	switch op {
	case CONST_U8, LOAD_LOCAL_U8, STORE_LOCAL_U8, LOAD_UPVALUE_U8, STORE_UPVALUE_U8,
		MAKE_CLOSURE_U8, CALL_U8, MAKE_ARRAY_U8, CALL_BUILTIN_U8, EFFECT_U8:
		width = 1
	case CONST_U16, LOAD_LOCAL_U16, STORE_LOCAL_U16, LOAD_UPVALUE_U16, STORE_UPVALUE_U16,
		MAKE_CLOSURE_U16, CALL_U16, MAKE_ARRAY_U16, CALL_BUILTIN_U16, EFFECT_U16:
		width = 2
	default:
		width = 4
	}
	switch width {
	case 1:
		operand = uint32(rest[0])
	case 2:
		operand = uint32(binary.LittleEndian.Uint16(rest))
	default:
		operand = binary.LittleEndian.Uint32(rest)
	}
	consumed = width
	switch op {
	case CALL_BUILTIN_U8, CALL_BUILTIN_U16, CALL_BUILTIN_U32, EFFECT_U8, EFFECT_U16, EFFECT_U32:
		argc = int(rest[width])
		consumed++
	default:
		argc = -1
	}
	return operand, argc, consumed
}
