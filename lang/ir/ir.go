// Package ir defines the canonical intermediate representation consumed by
// the code generator (spec §3.1, §6.1): a single recursive sum over eight
// expression variants, plus the lowering pass that produces it from the
// surface AST.
package ir

import "fmt"

// Regex is the literal (pattern, flags) pair carried by a Const regex value.
type Regex struct{ Pattern, Flags string }

// Expr is the interface implemented by every IR node. The set of
// implementations is closed and matched exhaustively wherever the IR is
// consumed (codegen, free-variable analysis).
type Expr interface {
	exprNode()
}

// Const is a literal value: null, boolean, float64, string, or Regex.
// Integers that fit in 32 bits are stored as int32, matching the bytecode
// constant pool's int32 tag (spec §3.1, §3.2).
type Const struct {
	Value interface{}
}

// Var is a reference to a lexically bound name, resolved at codegen time to
// a local, upvalue, or builtin (spec §4.2).
type Var struct {
	Name string
}

// If is a ternary branch.
type If struct {
	Cond, Then, Else Expr
}

// Let introduces Name bound to Value in the scope of Body; Body determines
// the expression's value.
type Let struct {
	Name  string
	Value Expr
	Body  Expr
}

// Seq evaluates each expression in order, discarding all but the last. An
// empty Seq evaluates to null.
type Seq struct {
	Exprs []Expr
}

// Call applies Func to Args. Func is itself an expression, usually a Var.
type Call struct {
	Func Expr
	Args []Expr
}

// Fn is a function literal. Captures is the pre-computed, sorted set of free
// variables referenced by Body that are bound in an enclosing scope (spec
// §3.1, §4.1).
type Fn struct {
	Params   []string
	Body     Expr
	Captures []string
}

// Effect performs a named effect; it evaluates to whatever the host's
// handler resumes with (spec §4.3.4).
type Effect struct {
	Name string
	Args []Expr
}

func (*Const) exprNode()  {}
func (*Var) exprNode()    {}
func (*If) exprNode()     {}
func (*Let) exprNode()    {}
func (*Seq) exprNode()    {}
func (*Call) exprNode()   {}
func (*Fn) exprNode()     {}
func (*Effect) exprNode() {}

// Error is a lowering error: a structural problem in the surface program
// that prevents producing a well-formed IR (spec §4.1, §7).
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

func errorf(format string, args ...interface{}) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}
