package values

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToBoolean(t *testing.T) {
	cases := []struct {
		name string
		in   Value
		want bool
	}{
		{"undefined", Undefined, false},
		{"null", Null, false},
		{"false", False, false},
		{"true", True, true},
		{"zero", Number(0), false},
		{"negative zero", Number(math.Copysign(0, -1)), false},
		{"NaN", Number(math.NaN()), false},
		{"nonzero", Number(42), true},
		{"empty string", String(""), false},
		{"string", String("x"), true},
		{"zero bigint", BigIntValue(big.NewInt(0)), false},
		{"bigint", BigIntValue(big.NewInt(-3)), true},
		{"object", ObjectValue(NewObject(nil)), true},
		{"symbol", SymbolValue(NewSymbol("s")), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.in.ToBoolean())
		})
	}
}

func TestToNumber(t *testing.T) {
	assert.True(t, math.IsNaN(Undefined.ToNumber()))
	assert.Equal(t, 0.0, Null.ToNumber())
	assert.Equal(t, 1.0, True.ToNumber())
	assert.Equal(t, 0.0, String("").ToNumber())
	assert.Equal(t, 0.0, String("  ").ToNumber())
	assert.Equal(t, 12.5, String(" 12.5 ").ToNumber())
	assert.True(t, math.IsNaN(String("12px").ToNumber()))
}

func TestToStringValue(t *testing.T) {
	assert.Equal(t, "undefined", Undefined.ToStringValue())
	assert.Equal(t, "null", Null.ToStringValue())
	assert.Equal(t, "3", Int(3).ToStringValue())
	assert.Equal(t, "3.25", Number(3.25).ToStringValue())
	assert.Equal(t, "NaN", Number(math.NaN()).ToStringValue())
	assert.Equal(t, "Infinity", Number(math.Inf(1)).ToStringValue())
	assert.Equal(t, "0", Number(math.Copysign(0, -1)).ToStringValue())
	assert.Equal(t, "9007199254740993", BigIntValue(mustBig("9007199254740993")).ToStringValue())
}

func mustBig(s string) *big.Int {
	b, _ := new(big.Int).SetString(s, 10)
	return b
}

func TestSameValueZero(t *testing.T) {
	nan := Number(math.NaN())
	assert.True(t, SameValueZero(nan, nan), "NaN equals itself under SameValueZero")
	assert.True(t, SameValueZero(Number(0), Number(math.Copysign(0, -1))), "+0 and -0 are equal")
	assert.False(t, SameValueZero(Number(1), String("1")), "no type coercion")

	obj := NewObject(nil)
	assert.True(t, SameValueZero(ObjectValue(obj), ObjectValue(obj)))
	assert.False(t, SameValueZero(ObjectValue(obj), ObjectValue(NewObject(nil))))

	s1, s2 := NewSymbol("a"), NewSymbol("a")
	assert.True(t, SameValueZero(SymbolValue(s1), SymbolValue(s1)))
	assert.False(t, SameValueZero(SymbolValue(s1), SymbolValue(s2)), "symbols compare by identity, not description")
}

func TestObjectPropertyOrder(t *testing.T) {
	o := NewObject(nil)
	o.SetData(StringKey("b"), Int(1))
	o.SetData(StringKey("a"), Int(2))
	o.SetData(StringKey("c"), Int(3))
	o.SetData(StringKey("a"), Int(4)) // overwrite must not move the key

	keys := o.OwnPropertyKeys()
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, k.Str)
	}
	assert.Equal(t, []string{"b", "a", "c"}, names, "insertion order is observable and preserved")

	v, _, ok := o.Get(StringKey("a"))
	assert.True(t, ok)
	assert.Equal(t, 4.0, v.AsNumber())
}

func TestObjectDeleteAndRedefine(t *testing.T) {
	o := NewObject(nil)
	o.SetData(StringKey("x"), Int(1))
	assert.True(t, o.DeleteOwnProperty(StringKey("x")))
	_, ok := o.GetOwnProperty(StringKey("x"))
	assert.False(t, ok)

	// Re-adding after delete appends at the end, per ordinary-object
	// insertion-order semantics.
	o.SetData(StringKey("y"), Int(2))
	o.SetData(StringKey("x"), Int(3))
	keys := o.OwnPropertyKeys()
	assert.Equal(t, "y", keys[0].Str)
	assert.Equal(t, "x", keys[1].Str)
}

func TestPrototypeChainGet(t *testing.T) {
	proto := NewObject(nil)
	proto.SetData(StringKey("inherited"), String("yes"))
	o := NewObject(proto)

	v, _, ok := o.Get(StringKey("inherited"))
	assert.True(t, ok)
	assert.Equal(t, "yes", v.AsString())

	o.SetData(StringKey("inherited"), String("shadowed"))
	v, _, _ = o.Get(StringKey("inherited"))
	assert.Equal(t, "shadowed", v.AsString())
}

func TestArrayBacking(t *testing.T) {
	arr := NewArray(nil, []Value{Int(1), Int(2)})
	ad := arr.Internal.(*ArrayData)
	assert.Len(t, ad.Elements, 2)

	lv, _, ok := arr.Get(StringKey("length"))
	assert.True(t, ok)
	assert.Equal(t, 2.0, lv.AsNumber())
}
