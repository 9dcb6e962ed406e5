package compiler

import (
	"fmt"

	"github.com/mna/pex/lang/builtins"
	"github.com/mna/pex/lang/ir"
)

// Error is a codegen error: a variable that resolves to neither a binding
// nor a builtin, a builtin used as a value, or an internal inconsistency
// such as an unhandled IR node or a malformed jump.
type Error struct{ Msg string }

func (e *Error) Error() string { return e.Msg }

func errorf(format string, args ...interface{}) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// instrKind distinguishes the shape of a pseudo-instruction before its final
// opcode width has been chosen.
type instrKind int

const (
	kPlain instrKind = iota
	kConst
	kLoadLocal
	kStoreLocal
	kLoadUpvalue
	kStoreUpvalue
	kJump
	kJumpIfFalse
	kJumpIfTrue
	kMakeClosure
	kCall
	kCallBuiltin
	kEffect
	kMakeArray
)

// instr is one pseudo-instruction in a function's instruction buffer.
// Everything except jumps has a width that is known as soon as the operand
// value is, because constant/name/local/upvalue/template indices never
// change once assigned; jumps alone need the iterative fixpoint of spec
// §4.2 "Opcode width selection" because their operand is a relative byte
// offset that depends on other instructions' encoded sizes.
type instr struct {
	kind     instrKind
	op       Opcode // meaningful only for kPlain
	operand  uint32 // const/local/upvalue index, template index, argc, label id, or array length
	operand2 uint8  // argc, for kCallBuiltin/kEffect only
	width    int    // 1, 2 or 4; for jump kinds this is mutated by the backpatch fixpoint
}

func widthFor(operand uint32) int {
	switch {
	case operand <= 0xff:
		return 1
	case operand <= 0xffff:
		return 2
	default:
		return 4
	}
}

// funcCtx holds the compile-time state for one function while its body is
// being compiled (spec §4.2 "Per-function state"). Nested function literals
// push a new funcCtx onto the compiler's stack.
type funcCtx struct {
	parent *funcCtx

	locals     []string
	localIndex map[string]int

	upvalues     []UpvalueSpec
	upvalueNames []string
	upvalueIndex map[string]int

	paramCount int
	nameIndex  int32
	instrs     []instr
}

func newFuncCtx(parent *funcCtx, paramCount int, nameIndex int32) *funcCtx {
	return &funcCtx{
		parent:       parent,
		localIndex:   make(map[string]int),
		upvalueIndex: make(map[string]int),
		paramCount:   paramCount,
		nameIndex:    nameIndex,
	}
}

func (fc *funcCtx) allocLocal(name string) int {
	idx := len(fc.locals)
	fc.locals = append(fc.locals, name)
	fc.localIndex[name] = idx
	return idx
}

func (fc *funcCtx) emit(i instr) { fc.instrs = append(fc.instrs, i) }

// resolve implements spec §4.2 "Variable resolution" steps 1-3: local,
// already-registered upvalue, or recursive climb into the parent that
// registers a new upvalue spec on the way back down.
func (fc *funcCtx) resolve(name string) (kind string, index int, ok bool) {
	if idx, ok := fc.localIndex[name]; ok {
		return "local", idx, true
	}
	if idx, ok := fc.upvalueIndex[name]; ok {
		return "upvalue", idx, true
	}
	if fc.parent == nil {
		return "", 0, false
	}
	pkind, pidx, ok := fc.parent.resolve(name)
	if !ok {
		return "", 0, false
	}
	spec := UpvalueSpec{IsLocal: pkind == "local", Index: uint32(pidx)}
	idx := len(fc.upvalues)
	fc.upvalues = append(fc.upvalues, spec)
	fc.upvalueNames = append(fc.upvalueNames, name)
	fc.upvalueIndex[name] = idx
	return "upvalue", idx, true
}

// compiler drives compilation of the whole program: interning of constants
// and names, the stack of function contexts, and the finished function
// templates.
type compiler struct {
	cur *funcCtx

	constants    []Constant
	constIndex   map[interface{}]int
	names        []string
	nameIndexMap map[string]int

	templates []*FunctionTemplate
	bodies    [][]instr // parallel to templates, pre-assembly instruction buffers
}

func newCompiler() *compiler {
	return &compiler{
		constIndex:   make(map[interface{}]int),
		nameIndexMap: make(map[string]int),
	}
}

func (c *compiler) internConst(v interface{}) int {
	key := constKey(v)
	if idx, ok := c.constIndex[key]; ok {
		return idx
	}
	idx := len(c.constants)
	c.constants = append(c.constants, Constant{Value: v})
	c.constIndex[key] = idx
	return idx
}

// constKey produces a canonical, comparable key for dedup (spec §3.2): Go
// values already compare with == except float64 NaN, which PEX constants
// never produce (NaN only ever arises from runtime coercion, never from a
// literal), so the raw value itself is a safe map key.
func constKey(v interface{}) interface{} {
	switch v := v.(type) {
	case ir.Regex:
		return v // struct of two strings: comparable
	default:
		return v
	}
}

func (c *compiler) internName(name string) int {
	if idx, ok := c.nameIndexMap[name]; ok {
		return idx
	}
	idx := len(c.names)
	c.names = append(c.names, name)
	c.nameIndexMap[name] = idx
	return idx
}

// compileFunction compiles fn as a new function template, nested under
// parent (nil for the top-level entry point), and returns its template
// index. nameIndex is -1 for anonymous functions.
func (c *compiler) compileFunction(fn *ir.Fn, parent *funcCtx) (int, error) {
	fc := newFuncCtx(parent, len(fn.Params), -1)
	for _, p := range fn.Params {
		fc.allocLocal(p)
	}

	// Reserve the template slot before compiling the body, so that a parent
	// always precedes the functions nested in it and the top-level function
	// is template 0.
	tplIdx := len(c.templates)
	c.templates = append(c.templates, nil)
	c.bodies = append(c.bodies, nil)

	prevCur := c.cur
	c.cur = fc
	if err := c.compileExpr(fn.Body); err != nil {
		c.cur = prevCur
		return 0, err
	}
	fc.emit(instr{kind: kPlain, op: RETURN})
	c.cur = prevCur

	c.templates[tplIdx] = &FunctionTemplate{
		NameIndex:  fc.nameIndex,
		ParamCount: uint32(fc.paramCount),
		LocalCount: uint32(len(fc.locals)),
		Upvalues:   fc.upvalues,
	}
	c.bodies[tplIdx] = fc.instrs
	return tplIdx, nil
}

// compileExpr compiles e so that, after execution, its value is the single
// top-of-stack entry it produces (every IR expression produces exactly one
// value, per spec §3.1).
func (c *compiler) compileExpr(e ir.Expr) error {
	switch e := e.(type) {
	case *ir.Const:
		return c.compileConst(e)
	case *ir.Var:
		return c.compileVar(e.Name)
	case *ir.If:
		return c.compileIf(e)
	case *ir.Let:
		return c.compileLet(e)
	case *ir.Seq:
		return c.compileSeq(e)
	case *ir.Call:
		return c.compileCall(e)
	case *ir.Fn:
		return c.compileFn(e)
	case *ir.Effect:
		return c.compileEffect(e)
	default:
		return errorf("codegen: unhandled IR node %T", e)
	}
}

func (c *compiler) compileConst(e *ir.Const) error {
	fc := c.cur
	switch v := e.Value.(type) {
	case nil:
		fc.emit(instr{kind: kPlain, op: CONST_NULL})
		return nil
	case bool:
		if v {
			fc.emit(instr{kind: kPlain, op: CONST_TRUE})
		} else {
			fc.emit(instr{kind: kPlain, op: CONST_FALSE})
		}
		return nil
	case int32:
		if v == 0 {
			fc.emit(instr{kind: kPlain, op: CONST_ZERO})
			return nil
		}
		if v == 1 {
			fc.emit(instr{kind: kPlain, op: CONST_ONE})
			return nil
		}
	}
	idx := c.internConst(e.Value)
	fc.emit(instr{kind: kConst, operand: uint32(idx), width: widthFor(uint32(idx))})
	return nil
}

// compileVar resolves name per spec §4.2 "Variable resolution" and emits
// the load.
func (c *compiler) compileVar(name string) error {
	fc := c.cur
	if kind, idx, ok := fc.resolve(name); ok {
		if kind == "local" {
			fc.emit(instr{kind: kLoadLocal, operand: uint32(idx), width: widthFor(uint32(idx))})
		} else {
			fc.emit(instr{kind: kLoadUpvalue, operand: uint32(idx), width: widthFor(uint32(idx))})
		}
		return nil
	}
	if builtins.IsKnown(name) {
		// A builtin referenced as a bare value (not called) has no runtime
		// representation; only Call sites special-case builtin names. Reaching
		// here means e.g. `(first +)` was written, which is not supported.
		return errorf("codegen: builtin %q cannot be used as a value", name)
	}
	return errorf("codegen: undefined variable or builtin %q", name)
}

func (c *compiler) compileIf(e *ir.If) error {
	if err := c.compileExpr(e.Cond); err != nil {
		return err
	}
	fc := c.cur
	elseLabel := len(fc.instrs)
	fc.emit(instr{kind: kJumpIfFalse, width: 1})
	if err := c.compileExpr(e.Then); err != nil {
		return err
	}
	endLabel := len(fc.instrs)
	fc.emit(instr{kind: kJump, width: 1})
	fc.instrs[elseLabel].operand = uint32(len(fc.instrs))
	if err := c.compileExpr(e.Else); err != nil {
		return err
	}
	fc.instrs[endLabel].operand = uint32(len(fc.instrs))
	return nil
}

// compileLet implements spec §4.2 "Let": the local slot is allocated before
// compiling Value, so a Fn value that recursively references name (or a
// sibling pre-scanned by compileSeq) resolves.
func (c *compiler) compileLet(e *ir.Let) error {
	fc := c.cur
	idx, ok := fc.localIndex[e.Name]
	if !ok {
		idx = fc.allocLocal(e.Name)
	}
	if err := c.compileExpr(e.Value); err != nil {
		return err
	}
	fc.emit(instr{kind: kStoreLocal, operand: uint32(idx), width: widthFor(uint32(idx))})
	return c.compileExpr(e.Body)
}

// compileSeq implements spec §4.2 "Seq and mutual recursion": every direct
// Let child has its local slot pre-allocated before any of the sequence's
// elements are compiled, so sibling functions (and plain sibling lets) can
// forward-reference each other.
func (c *compiler) compileSeq(e *ir.Seq) error {
	fc := c.cur
	for _, x := range e.Exprs {
		if let, ok := x.(*ir.Let); ok {
			if _, ok := fc.localIndex[let.Name]; !ok {
				fc.allocLocal(let.Name)
			}
		}
	}
	if len(e.Exprs) == 0 {
		fc.emit(instr{kind: kPlain, op: CONST_NULL})
		return nil
	}
	for i, x := range e.Exprs {
		if err := c.compileExpr(x); err != nil {
			return err
		}
		if i < len(e.Exprs)-1 {
			fc.emit(instr{kind: kPlain, op: POP})
		}
	}
	return nil
}

var dedicatedOp = map[string]Opcode{
	"+": ADD, "*": MUL, "/": DIV, "%": MOD,
	"==": EQ, "!=": NE, "<": LT, ">": GT, "<=": LE, ">=": GE,
	"not": NOT, "??": NULL_COALESCE, "get": GET_INDEX,
}

func (c *compiler) compileCall(e *ir.Call) error {
	fc := c.cur
	if v, ok := e.Func.(*ir.Var); ok {
		if _, _, resolved := fc.resolve(v.Name); !resolved {
			if v.Name == "-" {
				return c.compileMinus(e.Args)
			}
			if op, ok := dedicatedOp[v.Name]; ok {
				return c.compileDedicated(op, e.Args)
			}
			if builtins.Broader[v.Name] {
				return c.compileCallBuiltin(v.Name, e.Args)
			}
			if !builtins.IsKnown(v.Name) {
				return errorf("codegen: undefined variable or builtin %q", v.Name)
			}
		}
	}
	if err := c.compileExpr(e.Func); err != nil {
		return err
	}
	for _, a := range e.Args {
		if err := c.compileExpr(a); err != nil {
			return err
		}
	}
	n := uint32(len(e.Args))
	fc.emit(instr{kind: kCall, operand: n, width: widthFor(n)})
	return nil
}

// compileMinus resolves the unary/binary "-" duality of spec §9, Open
// Question (c).
func (c *compiler) compileMinus(args []ir.Expr) error {
	switch len(args) {
	case 1:
		if err := c.compileExpr(args[0]); err != nil {
			return err
		}
		c.cur.emit(instr{kind: kPlain, op: NEG})
		return nil
	case 2:
		return c.compileDedicated(SUB, args)
	default:
		return errorf("codegen: \"-\" takes 1 or 2 arguments, got %d", len(args))
	}
}

func (c *compiler) compileDedicated(op Opcode, args []ir.Expr) error {
	for _, a := range args {
		if err := c.compileExpr(a); err != nil {
			return err
		}
	}
	c.cur.emit(instr{kind: kPlain, op: op})
	return nil
}

func (c *compiler) compileCallBuiltin(name string, args []ir.Expr) error {
	for _, a := range args {
		if err := c.compileExpr(a); err != nil {
			return err
		}
	}
	nameIdx := uint32(c.internName(name))
	c.cur.emit(instr{
		kind:     kCallBuiltin,
		operand:  nameIdx,
		operand2: uint8(len(args)),
		width:    widthFor(nameIdx),
	})
	return nil
}

func (c *compiler) compileFn(e *ir.Fn) error {
	parent := c.cur
	tplIdx, err := c.compileFunction(e, parent)
	if err != nil {
		return err
	}
	// Now that the nested function has been compiled, its upvalue specs
	// (and the captures they implied resolving in the parent) are final.
	n := uint32(tplIdx)
	parent.emit(instr{kind: kMakeClosure, operand: n, width: widthFor(n)})
	return nil
}

func (c *compiler) compileEffect(e *ir.Effect) error {
	for _, a := range e.Args {
		if err := c.compileExpr(a); err != nil {
			return err
		}
	}
	nameIdx := uint32(c.internName(e.Name))
	c.cur.emit(instr{
		kind:     kEffect,
		operand:  nameIdx,
		operand2: uint8(len(e.Args)),
		width:    widthFor(nameIdx),
	})
	return nil
}
