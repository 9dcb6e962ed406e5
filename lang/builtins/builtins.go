// Package builtins also supplies Default, the standard library seeded into
// every fresh VM (spec §4.3.6, §6.2): string, array and regex helpers
// compiled to CALL_BUILTIN. Its element type is a plain function value,
// structurally identical to machine.Builtin, rather than an import of
// lang/machine: compiler already imports builtins for name validation, and
// machine imports compiler, so builtins importing machine back would cycle.
package builtins

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mna/pex/lang/value"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var upperCaser = cases.Upper(language.Und)
var lowerCaser = cases.Lower(language.Und)

// Default is the standard builtin table, matching the Broader name set
// exactly: every name in Broader has an entry here, and every entry here is
// in Broader. Assignable directly to machine.New's map[string]machine.Builtin
// parameter since the two map types share an identical underlying type.
var Default = map[string]func(args []value.Value) (value.Value, error){
	"split":     biSplit,
	"join":      biJoin,
	"len":       biLen,
	"trim":      biTrim,
	"upper":     biUpper,
	"lower":     biLower,
	"first":     biFirst,
	"last":      biLast,
	"match":     biMatch,
	"test":      biTest,
	"to_number": biToNumber,
	"to_string": biToString,
	"to_int":    biToInt,
	"concat":    biConcat,
	"push":      biPush,
	"keys":      biKeys,
	"has":       biHas,
	"contains":  biContains,
	"replace":   biReplace,
}

func argErrorf(name string, format string, args ...interface{}) error {
	return fmt.Errorf(name+": "+format, args...)
}

func wantString(name string, args []value.Value, i int) (string, error) {
	if i >= len(args) {
		return "", argErrorf(name, "expects a string argument at position %d", i)
	}
	s, ok := args[i].(value.String)
	if !ok {
		return "", argErrorf(name, "expects a string at position %d, got %s", i, value.TypeName(args[i]))
	}
	return string(s), nil
}

func wantArray(name string, args []value.Value, i int) (*value.Array, error) {
	if i >= len(args) {
		return nil, argErrorf(name, "expects an array argument at position %d", i)
	}
	a, ok := args[i].(*value.Array)
	if !ok {
		return nil, argErrorf(name, "expects an array at position %d, got %s", i, value.TypeName(args[i]))
	}
	return a, nil
}

func biSplit(args []value.Value) (value.Value, error) {
	s, err := wantString("split", args, 0)
	if err != nil {
		return nil, err
	}
	sep, err := wantString("split", args, 1)
	if err != nil {
		return nil, err
	}
	var parts []string
	if sep == "" {
		parts = strings.Split(s, "")
	} else {
		parts = strings.Split(s, sep)
	}
	elems := make([]value.Value, len(parts))
	for i, p := range parts {
		elems[i] = value.String(p)
	}
	return &value.Array{Elems: elems}, nil
}

func biJoin(args []value.Value) (value.Value, error) {
	arr, err := wantArray("join", args, 0)
	if err != nil {
		return nil, err
	}
	sep, err := wantString("join", args, 1)
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(arr.Elems))
	for i, e := range arr.Elems {
		s, ok := e.(value.String)
		if !ok {
			return nil, argErrorf("join", "element %d is not a string, got %s", i, value.TypeName(e))
		}
		parts[i] = string(s)
	}
	return value.String(strings.Join(parts, sep)), nil
}

func biLen(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return nil, argErrorf("len", "expects exactly 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case value.String:
		return value.Number(len([]rune(string(v)))), nil
	case *value.Array:
		return value.Number(len(v.Elems)), nil
	case *value.Object:
		return value.Number(v.Len()), nil
	default:
		return nil, argErrorf("len", "cannot take the length of a %s", value.TypeName(v))
	}
}

func biTrim(args []value.Value) (value.Value, error) {
	s, err := wantString("trim", args, 0)
	if err != nil {
		return nil, err
	}
	return value.String(strings.TrimSpace(s)), nil
}

func biUpper(args []value.Value) (value.Value, error) {
	s, err := wantString("upper", args, 0)
	if err != nil {
		return nil, err
	}
	return value.String(upperCaser.String(s)), nil
}

func biLower(args []value.Value) (value.Value, error) {
	s, err := wantString("lower", args, 0)
	if err != nil {
		return nil, err
	}
	return value.String(lowerCaser.String(s)), nil
}

func biFirst(args []value.Value) (value.Value, error) {
	arr, err := wantArray("first", args, 0)
	if err != nil {
		return nil, err
	}
	if len(arr.Elems) == 0 {
		return value.Null{}, nil
	}
	return arr.Elems[0], nil
}

func biLast(args []value.Value) (value.Value, error) {
	arr, err := wantArray("last", args, 0)
	if err != nil {
		return nil, err
	}
	if len(arr.Elems) == 0 {
		return value.Null{}, nil
	}
	return arr.Elems[len(arr.Elems)-1], nil
}

func wantRegex(name string, args []value.Value, i int) (*value.Regex, error) {
	if i >= len(args) {
		return nil, argErrorf(name, "expects a regex argument at position %d", i)
	}
	r, ok := args[i].(*value.Regex)
	if !ok {
		return nil, argErrorf(name, "expects a regex at position %d, got %s", i, value.TypeName(args[i]))
	}
	return r, nil
}

// biMatch returns the first matched substring, or null when there is no
// match (match(regex, string)).
func biMatch(args []value.Value) (value.Value, error) {
	re, err := wantRegex("match", args, 0)
	if err != nil {
		return nil, err
	}
	s, err := wantString("match", args, 1)
	if err != nil {
		return nil, err
	}
	m, err := re.Compiled.FindStringMatch(s)
	if err != nil {
		return nil, argErrorf("match", "regex evaluation failed: %v", err)
	}
	if m == nil {
		return value.Null{}, nil
	}
	return value.String(m.String()), nil
}

// biTest reports whether regex matches anywhere in string (test(regex,
// string)).
func biTest(args []value.Value) (value.Value, error) {
	re, err := wantRegex("test", args, 0)
	if err != nil {
		return nil, err
	}
	s, err := wantString("test", args, 1)
	if err != nil {
		return nil, err
	}
	m, err := re.Compiled.FindStringMatch(s)
	if err != nil {
		return nil, argErrorf("test", "regex evaluation failed: %v", err)
	}
	return value.Bool(m != nil), nil
}

func biToNumber(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return nil, argErrorf("to_number", "expects exactly 1 argument, got %d", len(args))
	}
	return value.Number(value.CoerceNumber(args[0])), nil
}

func biToInt(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return nil, argErrorf("to_int", "expects exactly 1 argument, got %d", len(args))
	}
	n := value.CoerceNumber(args[0])
	return value.Number(float64(int64(n))), nil
}

func biToString(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return nil, argErrorf("to_string", "expects exactly 1 argument, got %d", len(args))
	}
	return value.String(Stringify(args[0])), nil
}

// Stringify renders v the way to_string and the CLI's result/print output
// do: arrays and objects recursively, regexes as /pattern/flags.
func Stringify(v value.Value) string {
	switch v := v.(type) {
	case value.Null:
		return "null"
	case value.Bool:
		if v {
			return "true"
		}
		return "false"
	case value.Number:
		return strconv.FormatFloat(float64(v), 'g', -1, 64)
	case value.String:
		return string(v)
	case *value.Array:
		parts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			parts[i] = Stringify(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *value.Object:
		keys := v.Keys()
		parts := make([]string, len(keys))
		for i, k := range keys {
			fv, _ := v.Get(k)
			parts[i] = k + ": " + Stringify(fv)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *value.Regex:
		return "/" + v.Pattern + "/" + v.Flags
	default:
		return value.TypeName(v)
	}
}

// biConcat concatenates either two strings or two arrays; a pure function,
// it never mutates either argument.
func biConcat(args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return nil, argErrorf("concat", "expects exactly 2 arguments, got %d", len(args))
	}
	switch a := args[0].(type) {
	case value.String:
		b, ok := args[1].(value.String)
		if !ok {
			return nil, argErrorf("concat", "cannot concat string with %s", value.TypeName(args[1]))
		}
		return value.String(string(a) + string(b)), nil
	case *value.Array:
		b, ok := args[1].(*value.Array)
		if !ok {
			return nil, argErrorf("concat", "cannot concat array with %s", value.TypeName(args[1]))
		}
		elems := make([]value.Value, 0, len(a.Elems)+len(b.Elems))
		elems = append(elems, a.Elems...)
		elems = append(elems, b.Elems...)
		return &value.Array{Elems: elems}, nil
	default:
		return nil, argErrorf("concat", "cannot concat a %s", value.TypeName(args[0]))
	}
}

// biPush returns a new array equal to its first argument with its second
// argument appended; the input array is left untouched (builtins are pure).
func biPush(args []value.Value) (value.Value, error) {
	arr, err := wantArray("push", args, 0)
	if err != nil {
		return nil, err
	}
	if len(args) != 2 {
		return nil, argErrorf("push", "expects exactly 2 arguments, got %d", len(args))
	}
	elems := make([]value.Value, len(arr.Elems)+1)
	copy(elems, arr.Elems)
	elems[len(arr.Elems)] = args[1]
	return &value.Array{Elems: elems}, nil
}

func wantObject(name string, args []value.Value, i int) (*value.Object, error) {
	if i >= len(args) {
		return nil, argErrorf(name, "expects an object argument at position %d", i)
	}
	o, ok := args[i].(*value.Object)
	if !ok {
		return nil, argErrorf(name, "expects an object at position %d, got %s", i, value.TypeName(args[i]))
	}
	return o, nil
}

func biKeys(args []value.Value) (value.Value, error) {
	o, err := wantObject("keys", args, 0)
	if err != nil {
		return nil, err
	}
	ks := o.Keys()
	elems := make([]value.Value, len(ks))
	for i, k := range ks {
		elems[i] = value.String(k)
	}
	return &value.Array{Elems: elems}, nil
}

// biHas reports key/field membership on an object, or element membership on
// an array (has(object, key) / has(array, element)).
func biHas(args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return nil, argErrorf("has", "expects exactly 2 arguments, got %d", len(args))
	}
	switch coll := args[0].(type) {
	case *value.Object:
		key, ok := args[1].(value.String)
		if !ok {
			return nil, argErrorf("has", "object key must be a string, got %s", value.TypeName(args[1]))
		}
		return value.Bool(coll.Has(string(key))), nil
	case *value.Array:
		for _, e := range coll.Elems {
			if value.DeepEqual(e, args[1]) {
				return value.Bool(true), nil
			}
		}
		return value.Bool(false), nil
	default:
		return nil, argErrorf("has", "expects an object or array, got %s", value.TypeName(args[0]))
	}
}

// biContains reports substring membership on strings, or element membership
// on arrays (contains(string, substring) / contains(array, element)).
func biContains(args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return nil, argErrorf("contains", "expects exactly 2 arguments, got %d", len(args))
	}
	switch coll := args[0].(type) {
	case value.String:
		sub, ok := args[1].(value.String)
		if !ok {
			return nil, argErrorf("contains", "expects a string needle, got %s", value.TypeName(args[1]))
		}
		return value.Bool(strings.Contains(string(coll), string(sub))), nil
	case *value.Array:
		for _, e := range coll.Elems {
			if value.DeepEqual(e, args[1]) {
				return value.Bool(true), nil
			}
		}
		return value.Bool(false), nil
	default:
		return nil, argErrorf("contains", "expects a string or array, got %s", value.TypeName(args[0]))
	}
}

func biReplace(args []value.Value) (value.Value, error) {
	s, err := wantString("replace", args, 0)
	if err != nil {
		return nil, err
	}
	old, err := wantString("replace", args, 1)
	if err != nil {
		return nil, err
	}
	newS, err := wantString("replace", args, 2)
	if err != nil {
		return nil, err
	}
	return value.String(strings.ReplaceAll(s, old, newS)), nil
}
