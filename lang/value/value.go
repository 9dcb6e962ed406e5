// Package value defines the runtime value representation shared by the
// virtual machine and the builtin standard library (spec §3.3): a tagged
// union of null, boolean, number, string, array, object, regex, closure and
// continuation, plus the truthiness, coercion and equality rules opcodes
// and builtins both rely on (spec §4.3.5).
package value

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/dlclark/regexp2"
	"github.com/dolthub/swiss"
	"github.com/google/uuid"
)

// Value is any PEX runtime value. The concrete types below are the closed
// set; a type switch over them is expected to be exhaustive everywhere
// values are consumed.
type Value interface {
	value()
}

// Null is the absence-of-value.
type Null struct{}

func (Null) value() {}

// Bool is a boolean value.
type Bool bool

func (Bool) value() {}

// Number is a PEX number: always a float64 at runtime, even when produced
// from a constant-pool int32 (spec §3.3 "number (double)").
type Number float64

func (Number) value() {}

// String is a PEX string.
type String string

func (String) value() {}

// Array is an ordered, mutable list of values (spec §3.3).
type Array struct {
	Elems []Value
}

func (*Array) value() {}

// Object is a mutable string-keyed map, order-independent (spec §3.3).
// Backed by a swiss table rather than a plain Go map. PEX source has no
// object literal and no opcode or builtin creates objects; they reach a
// program from the host, for example as its input value.
type Object struct {
	m *swiss.Map[string, Value]
}

func (*Object) value() {}

// NewObject returns an empty object with initial capacity for at least size
// fields. Passing 0 is fine; the table grows as fields are set.
func NewObject(size int) *Object {
	if size < 0 {
		size = 0
	}
	return &Object{m: swiss.NewMap[string, Value](uint32(size))}
}

// Get returns the value stored under key, or (Null{}, false) if absent.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.m.Get(key)
	if !ok {
		return Null{}, false
	}
	return v, true
}

// Set stores v under key, overwriting any existing value.
func (o *Object) Set(key string, v Value) {
	o.m.Put(key, v)
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	return o.m.Has(key)
}

// Len returns the number of fields.
func (o *Object) Len() int {
	return o.m.Count()
}

// Keys returns the object's keys in sorted order, for deterministic
// iteration in builtins that enumerate fields.
func (o *Object) Keys() []string {
	keys := make([]string, 0, o.m.Count())
	o.m.Iter(func(k string, _ Value) bool {
		keys = append(keys, k)
		return false
	})
	sort.Strings(keys)
	return keys
}

// Regex is a compiled regular expression value, carrying its source pattern
// and flags for display/equality alongside the compiled matcher used by
// builtins such as match/test.
type Regex struct {
	Pattern, Flags string
	Compiled       *regexp2.Regexp
}

func (*Regex) value() {}

// Closure is a function template paired with the concrete upvalues it
// captured at MAKE_CLOSURE time (spec §3.3). Template is an
// *compiler.FunctionTemplate in practice; it is typed as interface{} here to
// avoid a value->compiler import cycle (compiler.Constant already holds raw
// Go values, not value.Value, for the same reason). Upvalues holds pointers,
// not values, so that two closures capturing the same still-open local share
// one Upvalue object: closing it on RETURN is then visible to every closure
// that captured it (spec §3.4).
type Closure struct {
	Template interface{}
	Upvalues []*Upvalue
}

func (*Closure) value() {}

// Upvalue is shared, mutable storage for one captured variable (spec §3.4).
// Exactly one of Slot (open) or Val (closed) is meaningful at a time.
type Upvalue struct {
	Open bool
	Slot *Value // points into a live operand stack slot while open
	Val  Value  // snapshotted value once closed
}

// Get reads the upvalue's current value regardless of open/closed state.
func (u *Upvalue) Get() Value {
	if u.Open {
		return *u.Slot
	}
	return u.Val
}

// Set writes through the upvalue regardless of open/closed state.
func (u *Upvalue) Set(v Value) {
	if u.Open {
		*u.Slot = v
		return
	}
	u.Val = v
}

// Close snapshots the upvalue's current value and detaches it from the
// stack slot (spec §3.4, §4.3.3 RETURN).
func (u *Upvalue) Close() {
	if !u.Open {
		return
	}
	u.Val = *u.Slot
	u.Open = false
	u.Slot = nil
}

// Continuation is a one-shot reification of suspended VM state (spec §3.3,
// §4.3.4). Frames is typed as interface{} for the same reason as
// Closure.Template: it holds []machine.frame, owned by the machine package,
// which imports value, so value cannot import machine back. Resume is bound
// by the machine package at capture time to a closure over the owning VM; an
// effect handler calls it directly without needing a VM reference of its
// own. ID identifies this particular suspension so a host juggling several
// outstanding continuations (e.g. one per in-flight session) can correlate
// one with request-scoped logs or a pending-resume registry without the VM
// itself knowing anything about that host-side bookkeeping.
type Continuation struct {
	ID      uuid.UUID
	Frames  interface{}
	Stack   []Value
	// Upvalues is the open-upvalue table captured alongside Frames/Stack: the
	// absolute stack index a slot was opened at maps to the same *Upvalue
	// object a live closure may hold, so resuming must reinstall this table
	// rather than start from empty, or an upvalue opened before the
	// suspending effect never gets closed when its frame later returns.
	Upvalues map[int]*Upvalue
	Resumed  bool
	Resume   func(v Value) (Value, error)
}

func (*Continuation) value() {}

// Truthy implements spec §4.3.2: null, false, zero, NaN, and empty string
// are falsy; everything else (including empty array/object) is truthy.
func Truthy(v Value) bool {
	switch v := v.(type) {
	case Null:
		return false
	case Bool:
		return bool(v)
	case Number:
		f := float64(v)
		return f != 0 && !math.IsNaN(f)
	case String:
		return v != ""
	default:
		return true
	}
}

// CoerceNumber implements the arithmetic/comparison coercion rules of spec
// §4.3.5: booleans become 0/1, strings parse as a number (NaN on failure),
// null becomes 0, and any other type (array, object, regex, closure,
// continuation) becomes NaN.
func CoerceNumber(v Value) float64 {
	switch v := v.(type) {
	case Null:
		return 0
	case Bool:
		if v {
			return 1
		}
		return 0
	case Number:
		return float64(v)
	case String:
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

// DeepEqual implements the EQ/NE opcode semantics (spec §4.3.5): structural
// equality without coercion; values of differing types are never equal.
func DeepEqual(a, b Value) bool {
	switch a := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		bb, ok := b.(Bool)
		return ok && a == bb
	case Number:
		bb, ok := b.(Number)
		return ok && a == bb
	case String:
		bb, ok := b.(String)
		return ok && a == bb
	case *Array:
		bb, ok := b.(*Array)
		if !ok || len(a.Elems) != len(bb.Elems) {
			return false
		}
		for i, e := range a.Elems {
			if !DeepEqual(e, bb.Elems[i]) {
				return false
			}
		}
		return true
	case *Object:
		bb, ok := b.(*Object)
		if !ok || a.Len() != bb.Len() {
			return false
		}
		for _, k := range a.Keys() {
			v, _ := a.Get(k)
			bv, ok := bb.Get(k)
			if !ok || !DeepEqual(v, bv) {
				return false
			}
		}
		return true
	case *Regex:
		bb, ok := b.(*Regex)
		return ok && a.Pattern == bb.Pattern && a.Flags == bb.Flags
	default:
		// Closures and continuations compare by identity only.
		return a == b
	}
}

// TypeName returns the builtin-facing name of v's type, used in runtime
// error messages.
func TypeName(v Value) string {
	switch v.(type) {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case *Array:
		return "array"
	case *Object:
		return "object"
	case *Regex:
		return "regex"
	case *Closure:
		return "closure"
	case *Continuation:
		return "continuation"
	default:
		return fmt.Sprintf("%T", v)
	}
}
