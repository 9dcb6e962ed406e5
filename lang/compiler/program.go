package compiler

import "github.com/mna/pex/lang/ir"

// Constant is one entry of the deduplicated constant pool (spec §3.2). Value
// holds one of: nil, bool, int32, float64, string, ir.Regex.
type Constant struct {
	Value interface{}
}

// UpvalueSpec describes how a closure obtains one of its upvalues at
// MAKE_CLOSURE time (spec §3.2, §4.3.3). IsLocal=true captures a local slot
// of the immediate parent frame; IsLocal=false forwards an upvalue already
// held by the enclosing closure.
type UpvalueSpec struct {
	IsLocal bool
	Index   uint32
}

// FunctionTemplate is the compile-time metadata for one function (spec
// §3.2). Closures at runtime are a FunctionTemplate paired with a concrete
// list of upvalues.
type FunctionTemplate struct {
	NameIndex  int32 // -1 for anonymous
	ParamCount uint32
	LocalCount uint32
	Upvalues   []UpvalueSpec
	CodeOffset uint32
	CodeLength uint32
}

// Program is the bytecode artifact produced by Compile and consumed by the
// virtual machine (spec §3.2). The entry point is always Templates[0].
type Program struct {
	Constants []Constant
	Names     []string
	Templates []FunctionTemplate
	Code      []byte
}

// EntryPoint returns the top-level function template, the implicit Fn of
// one parameter that every compiled program begins with.
func (p *Program) EntryPoint() *FunctionTemplate { return &p.Templates[0] }

// FuncCode returns the bytecode slice for template t.
func (p *Program) FuncCode(t *FunctionTemplate) []byte {
	return p.Code[t.CodeOffset : t.CodeOffset+t.CodeLength]
}

// Compile lowers an already-built IR function (normally the result of
// ir.Lower) into a bytecode Program (spec §4.2).
func Compile(top *ir.Fn) (*Program, error) {
	c := newCompiler()
	if _, err := c.compileFunction(top, nil); err != nil {
		return nil, err
	}
	return c.finish()
}
