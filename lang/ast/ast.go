// Package ast defines the surface syntax tree produced by the parser: a
// small s-expression language with a pipe operator. It is consumed by
// lang/ir's Lower to produce the core IR (see spec §3.1, §4.1). The surface
// syntax itself is not part of the execution core.
package ast

import "github.com/mna/pex/lang/token"

// Node is any node of the surface syntax tree.
type Node interface {
	Pos() token.Pos
}

// Program is a top-level PEX source: a sequence of ';'-separated forms. The
// last form's value is the program's result; earlier forms are only useful
// for their side effects or for introducing let:/fn: bindings whose scope
// extends over the remaining forms.
type Program struct {
	Forms []Node
	P     token.Pos
}

func (p *Program) Pos() token.Pos { return p.P }

// List is a parenthesized form (f a b c...).
type List struct {
	Elems []Node
	P     token.Pos
}

func (l *List) Pos() token.Pos { return l.P }

// Pipeline is a chain `a | b | c` of stages, left to right.
type Pipeline struct {
	Stages []Node
	P      token.Pos
}

func (pl *Pipeline) Pos() token.Pos { return pl.P }

// Ident is a bare identifier, operator name, or special-form keyword such as
// `let:`, `fn:`, or an effect name like `print:`.
type Ident struct {
	Name string
	P    token.Pos
}

func (i *Ident) Pos() token.Pos { return i.P }

// Int is an integer literal.
type Int struct {
	Value int64
	P     token.Pos
}

func (n *Int) Pos() token.Pos { return n.P }

// Float is a floating-point literal.
type Float struct {
	Value float64
	P     token.Pos
}

func (n *Float) Pos() token.Pos { return n.P }

// Str is a string literal.
type Str struct {
	Value string
	P     token.Pos
}

func (s *Str) Pos() token.Pos { return s.P }

// Regex is a regex literal `/pattern/flags`.
type Regex struct {
	Pattern, Flags string
	P              token.Pos
}

func (r *Regex) Pos() token.Pos { return r.P }

// Dollar is the bare `$` pipeline reference.
type Dollar struct{ P token.Pos }

func (d *Dollar) Pos() token.Pos { return d.P }

// DollarDollar is the `$$` input reference.
type DollarDollar struct{ P token.Pos }

func (d *DollarDollar) Pos() token.Pos { return d.P }

// DollarN is the `$N` indexed-input reference.
type DollarN struct {
	N int
	P token.Pos
}

func (d *DollarN) Pos() token.Pos { return d.P }

// LetForm is a top-level `let: name value [body]` form. Body is nil for the
// two-argument form. Special forms only appear at the top level of a
// program; a function body is a plain sequence of pipeline expressions.
type LetForm struct {
	Name  string
	Value Node
	Body  Node
	P     token.Pos
}

func (l *LetForm) Pos() token.Pos { return l.P }

// FnForm is a top-level `fn: name (params...) body...` form.
type FnForm struct {
	Name   string
	Params []string
	Body   []Node
	P      token.Pos
}

func (f *FnForm) Pos() token.Pos { return f.P }

// EffectForm is a bare `effect-name: args...` form.
type EffectForm struct {
	Name string
	Args []Node
	P    token.Pos
}

func (e *EffectForm) Pos() token.Pos { return e.P }
