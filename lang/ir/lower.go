package ir

import (
	"strconv"

	"github.com/mna/pex/lang/ast"
)

// state carries the counter needed to mint globally-unique pipeline
// temporary names during a single Lower call (spec §4.1). and/or
// temporaries use fixed names instead, since lexical scoping lets nested
// uses shadow them harmlessly.
type state struct {
	pipeCounter int
}

func (st *state) freshPipe() string {
	n := "$pipe" + strconv.Itoa(st.pipeCounter)
	st.pipeCounter++
	return n
}

// Lower turns a parsed program into the top-level function that the code
// generator compiles: an implicit Fn of one parameter, "input" (spec §4.1,
// §4.3.1 "every PEX program is, semantically, a single function of one
// argument").
func Lower(prog *ast.Program) (*Fn, error) {
	st := &state{}
	body, err := lowerForms(prog.Forms, []string{"input"}, st)
	if err != nil {
		return nil, err
	}
	return &Fn{Params: []string{"input"}, Body: body, Captures: nil}, nil
}

// lowerForms lowers a ';'-separated sequence of forms (the top-level program
// or an fn: body) into a single expression. scope is the set of names bound
// in enclosing scopes, used to compute nested Fn captures.
//
// Before lowering any individual form, all let:/fn: names appearing anywhere
// in forms are pre-added to scope, so a form can forward-reference a
// sibling let:/fn: binding that is lowered later (spec §4.1 "mutual
// recursion").
func lowerForms(forms []ast.Node, scope []string, st *state) (Expr, error) {
	var preDeclared []string
	for _, f := range forms {
		switch f := f.(type) {
		case *ast.LetForm:
			preDeclared = append(preDeclared, f.Name)
		case *ast.FnForm:
			preDeclared = append(preDeclared, f.Name)
		}
	}
	innerScope := append(append([]string{}, scope...), preDeclared...)

	exprs := make([]Expr, 0, len(forms))
	for _, f := range forms {
		e, err := lowerTopForm(f, innerScope, st)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	if len(exprs) == 1 {
		return exprs[0], nil
	}
	return &Seq{Exprs: exprs}, nil
}

// lowerTopForm lowers one element of a form sequence: a let:/fn:/effect-name:
// special form, or a plain pipeline expression.
func lowerTopForm(f ast.Node, scope []string, st *state) (Expr, error) {
	switch n := f.(type) {
	case *ast.LetForm:
		value, err := lowerExpr(n.Value, scope, st)
		if err != nil {
			return nil, err
		}
		var body Expr
		if n.Body == nil {
			body = &Var{Name: n.Name}
		} else {
			body, err = lowerExpr(n.Body, scope, st)
			if err != nil {
				return nil, err
			}
		}
		return &Let{Name: n.Name, Value: value, Body: body}, nil

	case *ast.FnForm:
		fn, err := lowerFn(n.Params, n.Body, scope, st)
		if err != nil {
			return nil, err
		}
		return &Let{Name: n.Name, Value: fn, Body: &Var{Name: n.Name}}, nil

	case *ast.EffectForm:
		args, err := lowerExprList(n.Args, scope, st)
		if err != nil {
			return nil, err
		}
		return &Effect{Name: n.Name, Args: args}, nil

	default:
		return lowerExpr(f, scope, st)
	}
}

// lowerFn lowers a function literal's parameter list and body, and computes
// its Captures as the free variables of the lowered body (excluding its own
// params) that are present in the enclosing scope (spec §4.1 "Capture
// analysis").
func lowerFn(params []string, bodyForms []ast.Node, scope []string, st *state) (*Fn, error) {
	childScope := append(append([]string{}, scope...), params...)
	body, err := lowerForms(bodyForms, childScope, st)
	if err != nil {
		return nil, err
	}

	bound := make(map[string]bool, len(params))
	for _, p := range params {
		bound[p] = true
	}
	inScope := make(map[string]bool, len(scope))
	for _, s := range scope {
		inScope[s] = true
	}
	free := FreeVars(body, bound)
	var captures []string
	for _, name := range free {
		if inScope[name] {
			captures = append(captures, name)
		}
	}
	return &Fn{Params: params, Body: body, Captures: captures}, nil
}

// lowerExpr lowers a single surface expression outside of any pipeline
// context, so a bare $ is an error.
func lowerExpr(n ast.Node, scope []string, st *state) (Expr, error) {
	return lowerExprCtx(n, scope, "", st)
}

func lowerExprList(ns []ast.Node, scope []string, st *state) ([]Expr, error) {
	out := make([]Expr, 0, len(ns))
	for _, n := range ns {
		e, err := lowerExprCtx(n, scope, "", st)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// lowerExprCtx lowers n, resolving a bare $ to currentTemp if non-empty.
func lowerExprCtx(n ast.Node, scope []string, currentTemp string, st *state) (Expr, error) {
	switch n := n.(type) {
	case *ast.Dollar:
		if currentTemp == "" {
			return nil, errorf("bare $ used outside a pipeline context")
		}
		return &Var{Name: currentTemp}, nil

	case *ast.DollarDollar:
		return &Var{Name: "input"}, nil

	case *ast.DollarN:
		return &Call{
			Func: &Var{Name: "get"},
			Args: []Expr{&Var{Name: "input"}, constInt(int64(n.N))},
		}, nil

	case *ast.Int:
		return constInt(n.Value), nil

	case *ast.Float:
		return &Const{Value: n.Value}, nil

	case *ast.Str:
		return &Const{Value: n.Value}, nil

	case *ast.Regex:
		return &Const{Value: Regex{Pattern: n.Pattern, Flags: n.Flags}}, nil

	case *ast.Ident:
		switch n.Name {
		case "true":
			return &Const{Value: true}, nil
		case "false":
			return &Const{Value: false}, nil
		}
		return &Var{Name: n.Name}, nil

	case *ast.Pipeline:
		return lowerPipeline(n, scope, currentTemp, st)

	case *ast.List:
		return lowerList(n, scope, currentTemp, st)

	default:
		return nil, errorf("lowering: unsupported syntax node %T", n)
	}
}

func constInt(v int64) *Const {
	if v >= -(1<<31) && v < (1<<31) {
		return &Const{Value: int32(v)}
	}
	return &Const{Value: float64(v)}
}

// lowerList lowers a parenthesized form. `if`, `and` and `or` are recognized
// by name and desugared per spec §4.1; everything else is an ordinary call.
func lowerList(n *ast.List, scope []string, currentTemp string, st *state) (Expr, error) {
	if len(n.Elems) == 0 {
		return nil, errorf("empty list")
	}
	if head, ok := n.Elems[0].(*ast.Ident); ok {
		switch head.Name {
		case "if":
			if len(n.Elems) != 4 {
				return nil, errorf("if requires exactly 3 arguments (cond then else), got %d", len(n.Elems)-1)
			}
			cond, err := lowerExprCtx(n.Elems[1], scope, currentTemp, st)
			if err != nil {
				return nil, err
			}
			then, err := lowerExprCtx(n.Elems[2], scope, currentTemp, st)
			if err != nil {
				return nil, err
			}
			els, err := lowerExprCtx(n.Elems[3], scope, currentTemp, st)
			if err != nil {
				return nil, err
			}
			return &If{Cond: cond, Then: then, Else: els}, nil

		case "and":
			if len(n.Elems) != 3 {
				return nil, errorf("and requires exactly 2 arguments, got %d", len(n.Elems)-1)
			}
			a, err := lowerExprCtx(n.Elems[1], scope, currentTemp, st)
			if err != nil {
				return nil, err
			}
			b, err := lowerExprCtx(n.Elems[2], scope, currentTemp, st)
			if err != nil {
				return nil, err
			}
			return &Let{
				Name:  "$and_temp",
				Value: a,
				Body:  &If{Cond: &Var{Name: "$and_temp"}, Then: b, Else: &Var{Name: "$and_temp"}},
			}, nil

		case "or":
			if len(n.Elems) != 3 {
				return nil, errorf("or requires exactly 2 arguments, got %d", len(n.Elems)-1)
			}
			a, err := lowerExprCtx(n.Elems[1], scope, currentTemp, st)
			if err != nil {
				return nil, err
			}
			b, err := lowerExprCtx(n.Elems[2], scope, currentTemp, st)
			if err != nil {
				return nil, err
			}
			return &Let{
				Name:  "$or_temp",
				Value: a,
				Body:  &If{Cond: &Var{Name: "$or_temp"}, Then: &Var{Name: "$or_temp"}, Else: b},
			}, nil
		}
	}

	fn, err := lowerExprCtx(n.Elems[0], scope, currentTemp, st)
	if err != nil {
		return nil, err
	}
	args := make([]Expr, 0, len(n.Elems)-1)
	for _, a := range n.Elems[1:] {
		ae, err := lowerExprCtx(a, scope, currentTemp, st)
		if err != nil {
			return nil, err
		}
		args = append(args, ae)
	}
	return &Call{Func: fn, Args: args}, nil
}

// lowerPipeline folds a|b|c into a chain of lets, one fresh temporary per
// stage, with the final stage's value left unbound in tail position (spec
// §4.1 "Pipelines").
func lowerPipeline(n *ast.Pipeline, scope []string, ambientTemp string, st *state) (Expr, error) {
	stages := n.Stages
	temps := make([]string, len(stages))
	for i := range stages {
		temps[i] = st.freshPipe()
	}

	var build func(i int) (Expr, error)
	build = func(i int) (Expr, error) {
		incoming := ambientTemp
		if i > 0 {
			incoming = temps[i-1]
		}
		stageExpr, err := lowerStage(stages[i], scope, incoming, st)
		if err != nil {
			return nil, err
		}
		if i == len(stages)-1 {
			return stageExpr, nil
		}
		rest, err := build(i + 1)
		if err != nil {
			return nil, err
		}
		return &Let{Name: temps[i], Value: stageExpr, Body: rest}, nil
	}
	return build(0)
}

// lowerStage lowers one pipeline stage under the transform rules of spec
// §4.1: a bare identifier f becomes (f $); a call not itself mentioning $
// gets $ injected as its first argument; a call that already mentions $, or
// any other node shape, is lowered as-is with $ resolving to currentTemp.
func lowerStage(stage ast.Node, scope []string, currentTemp string, st *state) (Expr, error) {
	switch s := stage.(type) {
	case *ast.Ident:
		if currentTemp == "" {
			return nil, errorf("bare $ used outside a pipeline context")
		}
		synthetic := &ast.List{Elems: []ast.Node{s, &ast.Dollar{P: s.P}}, P: s.P}
		return lowerExprCtx(synthetic, scope, currentTemp, st)

	case *ast.List:
		if len(s.Elems) == 0 {
			return nil, errorf("empty list")
		}
		if mentionsDollar(s) {
			return lowerExprCtx(s, scope, currentTemp, st)
		}
		if currentTemp == "" {
			return nil, errorf("bare $ used outside a pipeline context")
		}
		elems := make([]ast.Node, 0, len(s.Elems)+1)
		elems = append(elems, s.Elems[0], &ast.Dollar{P: s.P})
		elems = append(elems, s.Elems[1:]...)
		synthetic := &ast.List{Elems: elems, P: s.P}
		return lowerExprCtx(synthetic, scope, currentTemp, st)

	default:
		return lowerExprCtx(stage, scope, currentTemp, st)
	}
}

// mentionsDollar reports whether n contains a bare $ anywhere in its
// subtree. $$  and $N do not count: only a bare $ refers to the pipeline's
// current temporary.
func mentionsDollar(n ast.Node) bool {
	switch n := n.(type) {
	case *ast.Dollar:
		return true
	case *ast.List:
		for _, e := range n.Elems {
			if mentionsDollar(e) {
				return true
			}
		}
		return false
	case *ast.Pipeline:
		for _, e := range n.Stages {
			if mentionsDollar(e) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
