package ir

import "sort"

// FreeVars returns the sorted, deduplicated set of names referenced by e
// that are not in bound. It is the utility mentioned in spec §6.1 for
// callers that compute their own Fn.Captures, and it is also used
// internally while lowering to compute captures for each Fn literal (spec
// §4.1 "Capture analysis").
//
// A Seq is special-cased: a Let appearing as one of its elements extends its
// binding to the remaining elements, mirroring how the code generator
// allocates one persistent local slot per Let for the rest of the enclosing
// function (spec §4.2 "Seq and mutual recursion").
func FreeVars(e Expr, bound map[string]bool) []string {
	set := map[string]bool{}
	walkFree(e, bound, set)
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func walkFree(e Expr, bound map[string]bool, set map[string]bool) {
	switch e := e.(type) {
	case *Const:
		// no variables
	case *Var:
		if !bound[e.Name] {
			set[e.Name] = true
		}
	case *If:
		walkFree(e.Cond, bound, set)
		walkFree(e.Then, bound, set)
		walkFree(e.Else, bound, set)
	case *Let:
		walkFree(e.Value, bound, set)
		walkFree(e.Body, extend(bound, e.Name), set)
	case *Seq:
		cur := bound
		for _, x := range e.Exprs {
			walkFree(x, cur, set)
			if let, ok := x.(*Let); ok {
				cur = extend(cur, let.Name)
			}
		}
	case *Call:
		walkFree(e.Func, bound, set)
		for _, a := range e.Args {
			walkFree(a, bound, set)
		}
	case *Fn:
		// A nested Fn's own free variables, from the perspective of an
		// enclosing walk, are exactly its already-computed Captures: its
		// params and internal lets are not visible here.
		for _, c := range e.Captures {
			if !bound[c] {
				set[c] = true
			}
		}
	case *Effect:
		for _, a := range e.Args {
			walkFree(a, bound, set)
		}
	default:
		panic("ir: unhandled expression in FreeVars")
	}
}

func extend(bound map[string]bool, name string) map[string]bool {
	nb := make(map[string]bool, len(bound)+1)
	for k := range bound {
		nb[k] = true
	}
	nb[name] = true
	return nb
}
