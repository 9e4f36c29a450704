// Package values holds the engine's runtime value representation: a
// tagged union over ECMAScript's primitive and object types, plus the
// single Object struct every exotic object specializes through its
// Class tag and Internal payload.
package values

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// Type tags a Value's runtime kind.
type Type byte

const (
	TypeUndefined Type = iota
	TypeNull
	TypeBoolean
	TypeNumber
	TypeString
	TypeBigInt
	TypeSymbol
	TypeObject
)

func (t Type) String() string {
	switch t {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeBigInt:
		return "bigint"
	case TypeSymbol:
		return "symbol"
	case TypeObject:
		return "object"
	}
	return "unknown"
}

// Value is one ECMAScript language value. Data holds the payload for
// every non-nullary type: bool, float64, string, *big.Int, *Symbol, or
// *Object. A single struct (rather than an interface per type) keeps
// the VM's operand stack a flat []Value with no per-element heap
// indirection for the common numeric and boolean cases.
type Value struct {
	Type Type
	Data interface{}
}

var Undefined = Value{Type: TypeUndefined}
var Null = Value{Type: TypeNull}
var True = Value{Type: TypeBoolean, Data: true}
var False = Value{Type: TypeBoolean, Data: false}

func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

func Number(f float64) Value { return Value{Type: TypeNumber, Data: f} }
func Int(i int64) Value      { return Value{Type: TypeNumber, Data: float64(i)} }
func String(s string) Value  { return Value{Type: TypeString, Data: s} }
func BigIntValue(b *big.Int) Value { return Value{Type: TypeBigInt, Data: b} }
func SymbolValue(s *Symbol) Value  { return Value{Type: TypeSymbol, Data: s} }
func ObjectValue(o *Object) Value  { return Value{Type: TypeObject, Data: o} }

func (v Value) IsUndefined() bool { return v.Type == TypeUndefined }
func (v Value) IsNull() bool      { return v.Type == TypeNull }
func (v Value) IsNullish() bool   { return v.Type == TypeUndefined || v.Type == TypeNull }
func (v Value) IsObject() bool    { return v.Type == TypeObject }

func (v Value) AsBool() bool     { b, _ := v.Data.(bool); return b }
func (v Value) AsNumber() float64 { f, _ := v.Data.(float64); return f }
func (v Value) AsString() string  { s, _ := v.Data.(string); return s }
func (v Value) AsBigInt() *big.Int { b, _ := v.Data.(*big.Int); return b }
func (v Value) AsSymbol() *Symbol  { s, _ := v.Data.(*Symbol); return s }
func (v Value) AsObject() *Object  { o, _ := v.Data.(*Object); return o }

// ToBoolean implements the abstract ToBoolean operation (ECMA-262 §7.1.2).
func (v Value) ToBoolean() bool {
	switch v.Type {
	case TypeUndefined, TypeNull:
		return false
	case TypeBoolean:
		return v.AsBool()
	case TypeNumber:
		f := v.AsNumber()
		return f != 0 && !math.IsNaN(f)
	case TypeString:
		return v.AsString() != ""
	case TypeBigInt:
		return v.AsBigInt().Sign() != 0
	case TypeSymbol, TypeObject:
		return true
	}
	return false
}

// ToNumber implements a pragmatic subset of ToNumber (ECMA-262 §7.1.4):
// enough for arithmetic opcodes to operate on any primitive. Objects are
// expected to already have been reduced via ToPrimitive by the VM before
// this is called; passing one here returns NaN rather than recursing
// into a user-visible valueOf/toString call (that conversion belongs to
// the VM's OP_ADD/coercion handling, which has access to the realm).
func (v Value) ToNumber() float64 {
	switch v.Type {
	case TypeUndefined:
		return math.NaN()
	case TypeNull:
		return 0
	case TypeBoolean:
		if v.AsBool() {
			return 1
		}
		return 0
	case TypeNumber:
		return v.AsNumber()
	case TypeString:
		s := strings.TrimSpace(v.AsString())
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case TypeBigInt:
		f, _ := new(big.Float).SetInt(v.AsBigInt()).Float64()
		return f
	}
	return math.NaN()
}

// ToStringValue implements a pragmatic ToString (ECMA-262 §7.1.17) over
// primitives; object stringification goes through the VM so it can
// invoke a user-defined toString/Symbol.toPrimitive.
func (v Value) ToStringValue() string {
	switch v.Type {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBoolean:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case TypeNumber:
		return formatNumber(v.AsNumber())
	case TypeString:
		return v.AsString()
	case TypeBigInt:
		return v.AsBigInt().String()
	case TypeSymbol:
		return v.AsSymbol().String()
	case TypeObject:
		return "[object Object]"
	}
	return ""
}

func formatNumber(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	if f == 0 {
		if math.Signbit(f) {
			return "0" // -0 stringifies as "0"
		}
		return "0"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// SameValueZero implements the SameValueZero algorithm (ECMA-262 §7.2.12),
// the equality notion Map/Set/Array.prototype.includes use: like ===
// except NaN equals itself.
func SameValueZero(a, b Value) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case TypeUndefined, TypeNull:
		return true
	case TypeBoolean:
		return a.AsBool() == b.AsBool()
	case TypeNumber:
		af, bf := a.AsNumber(), b.AsNumber()
		if math.IsNaN(af) && math.IsNaN(bf) {
			return true
		}
		return af == bf
	case TypeString:
		return a.AsString() == b.AsString()
	case TypeBigInt:
		return a.AsBigInt().Cmp(b.AsBigInt()) == 0
	case TypeSymbol:
		return a.AsSymbol() == b.AsSymbol()
	case TypeObject:
		return a.AsObject() == b.AsObject()
	}
	return false
}

// Symbol is a unique, optionally-described identity token (ECMA-262
// §6.1.5). Well-known symbols are package-level singletons created once
// at init time so every Realm shares the same Symbol.iterator identity.
type Symbol struct {
	Description string
	HasDesc     bool
}

func NewSymbol(desc string) *Symbol { return &Symbol{Description: desc, HasDesc: true} }

func (s *Symbol) String() string {
	if s.HasDesc {
		return fmt.Sprintf("Symbol(%s)", s.Description)
	}
	return "Symbol()"
}

// Well-known symbols, created once and shared by every Realm.
var (
	SymbolIterator      = NewSymbol("Symbol.iterator")
	SymbolAsyncIterator = NewSymbol("Symbol.asyncIterator")
	SymbolToPrimitive   = NewSymbol("Symbol.toPrimitive")
	SymbolHasInstance    = NewSymbol("Symbol.hasInstance")
	SymbolToStringTag    = NewSymbol("Symbol.toStringTag")
)

// PropertyKey is either a string or a *Symbol, matching ECMA-262's
// property-key union without needing an interface{} at every call site.
type PropertyKey struct {
	Str    string
	Sym    *Symbol
	IsSym  bool
}

func StringKey(s string) PropertyKey { return PropertyKey{Str: s} }
func SymbolKey(s *Symbol) PropertyKey { return PropertyKey{Sym: s, IsSym: true} }

func (k PropertyKey) String() string {
	if k.IsSym {
		return k.Sym.String()
	}
	return k.Str
}

// sortPropertyKeys orders own-property keys per ECMA-262 §9.1.12
// OrdinaryOwnPropertyKeys: array indices ascending, then string keys in
// insertion order, then symbol keys in insertion order. Shape already
// keeps strings/symbols in insertion order; this only needs to pull
// integer-index-looking keys to the front.
func sortPropertyKeys(keys []PropertyKey) []PropertyKey {
	var indices, strs, syms []PropertyKey
	for _, k := range keys {
		if k.IsSym {
			syms = append(syms, k)
			continue
		}
		if isArrayIndex(k.Str) {
			indices = append(indices, k)
		} else {
			strs = append(strs, k)
		}
	}
	sort.Slice(indices, func(i, j int) bool {
		a, _ := strconv.ParseUint(indices[i].Str, 10, 32)
		b, _ := strconv.ParseUint(indices[j].Str, 10, 32)
		return a < b
	})
	out := make([]PropertyKey, 0, len(keys))
	out = append(out, indices...)
	out = append(out, strs...)
	out = append(out, syms...)
	return out
}

func isArrayIndex(s string) bool {
	if s == "" {
		return false
	}
	if s == "0" {
		return true
	}
	if s[0] < '1' || s[0] > '9' {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	n, err := strconv.ParseUint(s, 10, 32)
	return err == nil && n < math.MaxUint32-1
}
