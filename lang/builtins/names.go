// Package builtins implements PEX's standard library: the dedicated-opcode
// operators and the broader CALL_BUILTIN set of string/array/regex helpers
// (spec §4.2 "Builtins", §4.3.6). This file has no dependency on the
// runtime Value type so the code generator can import it purely to
// validate names at compile time.
package builtins

// Dedicated is the fixed set of names with their own opcode, emitted inline
// by the code generator instead of CALL_BUILTIN (spec §4.2). "-" covers both
// unary negation and binary subtraction, disambiguated by argument count
// (spec §9, Open Question (c)).
var Dedicated = map[string]bool{
	"+": true, "-": true, "*": true, "/": true, "%": true,
	"==": true, "!=": true, "<": true, ">": true, "<=": true, ">=": true,
	"not": true, "??": true, "get": true,
}

// Broader is the set of names compiled to CALL_BUILTIN <name> <argc>: the
// string/array/regex helpers and numeric coercions (spec §4.2).
var Broader = map[string]bool{
	"split": true, "join": true, "len": true,
	"trim": true, "upper": true, "lower": true,
	"first": true, "last": true,
	"match": true, "test": true,
	"to_number": true, "to_string": true, "to_int": true,
	"concat": true, "push": true, "keys": true, "has": true,
	"contains": true, "replace": true,
}

// IsKnown reports whether name is any recognized builtin, dedicated or
// broader. Codegen rejects a Var(name) that resolves to neither a
// local/upvalue nor a known builtin (spec §4.2).
func IsKnown(name string) bool {
	return Dedicated[name] || Broader[name]
}
