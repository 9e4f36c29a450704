package vm

import (
	"math"
	"math/big"

	"github.com/wudi/esprel/opcodes"
	"github.com/wudi/esprel/values"
)

func (vm *VM) execComparison(fr *Frame, op opcodes.Opcode) error {
	if op == opcodes.OP_TYPEOF {
		fr.push(values.String(vm.typeOf(fr.pop())))
		return nil
	}

	b := fr.pop()
	a := fr.pop()
	switch op {
	case opcodes.OP_SEQ:
		fr.push(values.Bool(strictEquals(a, b)))
		return nil
	case opcodes.OP_SNEQ:
		fr.push(values.Bool(!strictEquals(a, b)))
		return nil
	case opcodes.OP_EQ:
		eq, err := vm.looseEquals(a, b)
		if err != nil {
			return err
		}
		fr.push(values.Bool(eq))
		return nil
	case opcodes.OP_NEQ:
		eq, err := vm.looseEquals(a, b)
		if err != nil {
			return err
		}
		fr.push(values.Bool(!eq))
		return nil
	case opcodes.OP_LT, opcodes.OP_LTE, opcodes.OP_GT, opcodes.OP_GTE:
		return vm.relational(fr, op, a, b)
	case opcodes.OP_INSTANCEOF:
		r, err := vm.instanceOf(a, b)
		if err != nil {
			return err
		}
		fr.push(values.Bool(r))
		return nil
	case opcodes.OP_IN:
		r, err := vm.hasProperty(a, b)
		if err != nil {
			return err
		}
		fr.push(values.Bool(r))
		return nil
	}
	return vm.ThrowTypeError("unsupported comparison opcode %s", op)
}

func (vm *VM) typeOf(v values.Value) string {
	switch v.Type {
	case values.TypeUndefined:
		return "undefined"
	case values.TypeNull:
		return "object"
	case values.TypeBoolean:
		return "boolean"
	case values.TypeNumber:
		return "number"
	case values.TypeString:
		return "string"
	case values.TypeBigInt:
		return "bigint"
	case values.TypeSymbol:
		return "symbol"
	case values.TypeObject:
		if obj := v.AsObject(); obj != nil && obj.Call != nil {
			return "function"
		}
		return "object"
	}
	return "undefined"
}

// strictEquals implements the `===` algorithm (ECMA-262 §7.2.15): same
// type, identical primitive value or identical object reference, never
// coercing.
func strictEquals(a, b values.Value) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case values.TypeUndefined, values.TypeNull:
		return true
	case values.TypeBoolean:
		return a.AsBool() == b.AsBool()
	case values.TypeNumber:
		return a.AsNumber() == b.AsNumber()
	case values.TypeString:
		return a.AsString() == b.AsString()
	case values.TypeBigInt:
		return a.AsBigInt().Cmp(b.AsBigInt()) == 0
	case values.TypeSymbol:
		return a.AsSymbol() == b.AsSymbol()
	case values.TypeObject:
		return a.AsObject() == b.AsObject()
	}
	return false
}

// looseEquals implements the `==` algorithm (ECMA-262 §7.2.14),
// recursing through the type-coercion table: null == undefined;
// number/string/bigint/boolean mix via ToNumber; object vs primitive
// coerces the object via ToPrimitive first.
func (vm *VM) looseEquals(a, b values.Value) (bool, error) {
	if a.Type == b.Type {
		return strictEquals(a, b), nil
	}
	if a.IsNullish() && b.IsNullish() {
		return true, nil
	}
	if a.IsNullish() || b.IsNullish() {
		return false, nil
	}
	if a.Type == values.TypeNumber && b.Type == values.TypeString {
		return a.AsNumber() == b.ToNumber(), nil
	}
	if a.Type == values.TypeString && b.Type == values.TypeNumber {
		return a.ToNumber() == b.AsNumber(), nil
	}
	if a.Type == values.TypeBigInt && (b.Type == values.TypeString || b.Type == values.TypeNumber) {
		return bigIntLooseEquals(a, b), nil
	}
	if b.Type == values.TypeBigInt && (a.Type == values.TypeString || a.Type == values.TypeNumber) {
		return bigIntLooseEquals(b, a), nil
	}
	if a.Type == values.TypeBoolean {
		return vm.looseEquals(values.Number(a.ToNumber()), b)
	}
	if b.Type == values.TypeBoolean {
		return vm.looseEquals(a, values.Number(b.ToNumber()))
	}
	if (a.Type == values.TypeNumber || a.Type == values.TypeString || a.Type == values.TypeBigInt || a.Type == values.TypeSymbol) && b.IsObject() {
		pb, err := vm.toPrimitive(b, "default")
		if err != nil {
			return false, err
		}
		return vm.looseEquals(a, pb)
	}
	if a.IsObject() && (b.Type == values.TypeNumber || b.Type == values.TypeString || b.Type == values.TypeBigInt || b.Type == values.TypeSymbol) {
		pa, err := vm.toPrimitive(a, "default")
		if err != nil {
			return false, err
		}
		return vm.looseEquals(pa, b)
	}
	return false, nil
}

// bigIntLooseEquals compares a BigInt against a Number/String operand
// by converting the BigInt to the nearest float64 (ECMA-262 §7.2.14
// steps for the BigInt/Number and BigInt/String cases ultimately bottom
// out in a numeric comparison).
func bigIntLooseEquals(bigVal, other values.Value) bool {
	f := new(big.Float).SetInt(bigVal.AsBigInt())
	f64, _ := f.Float64()
	return f64 == other.ToNumber()
}

func (vm *VM) relational(fr *Frame, op opcodes.Opcode, a, b values.Value) error {
	pa, err := vm.toPrimitive(a, "number")
	if err != nil {
		return err
	}
	pb, err := vm.toPrimitive(b, "number")
	if err != nil {
		return err
	}
	if pa.Type == values.TypeString && pb.Type == values.TypeString {
		sa, sb := pa.AsString(), pb.AsString()
		var r bool
		switch op {
		case opcodes.OP_LT:
			r = sa < sb
		case opcodes.OP_LTE:
			r = sa <= sb
		case opcodes.OP_GT:
			r = sa > sb
		case opcodes.OP_GTE:
			r = sa >= sb
		}
		fr.push(values.Bool(r))
		return nil
	}
	na, err := vm.toNumberV(pa)
	if err != nil {
		return err
	}
	nb, err := vm.toNumberV(pb)
	if err != nil {
		return err
	}
	x, y := na.AsNumber(), nb.AsNumber()
	if math.IsNaN(x) || math.IsNaN(y) {
		fr.push(values.False)
		return nil
	}
	var r bool
	switch op {
	case opcodes.OP_LT:
		r = x < y
	case opcodes.OP_LTE:
		r = x <= y
	case opcodes.OP_GT:
		r = x > y
	case opcodes.OP_GTE:
		r = x >= y
	}
	fr.push(values.Bool(r))
	return nil
}

// instanceOf implements OrdinaryHasInstance (ECMA-262 §7.3.22): walk
// a's prototype chain looking for ctor's "prototype" property value.
func (vm *VM) instanceOf(a, ctor values.Value) (bool, error) {
	ctorObj := ctor.AsObject()
	if ctorObj == nil || ctorObj.Call == nil {
		return false, vm.ThrowTypeError("Right-hand side of 'instanceof' is not callable")
	}
	if !a.IsObject() {
		return false, nil
	}
	protoVal, _, ok := ctorObj.Get(values.StringKey("prototype"))
	if !ok || !protoVal.IsObject() {
		return false, vm.ThrowTypeError("Function has non-object prototype in instanceof check")
	}
	proto := protoVal.AsObject()
	for cur := a.AsObject().Prototype; cur != nil; cur = cur.Prototype {
		if cur == proto {
			return true, nil
		}
	}
	return false, nil
}

// hasProperty implements the `in` operator (ECMA-262 §13.10.1): walks
// the prototype chain of the right-hand object for key.
func (vm *VM) hasProperty(key, target values.Value) (bool, error) {
	obj := target.AsObject()
	if obj == nil {
		return false, vm.ThrowTypeError("Cannot use 'in' operator to search in a non-object")
	}
	pk, err := vm.toPropertyKeyV(key)
	if err != nil {
		return false, err
	}
	for cur := obj; cur != nil; cur = cur.Prototype {
		if _, ok := cur.GetOwnProperty(pk); ok {
			return true, nil
		}
	}
	if obj.Class == "Array" {
		if ad, ok := obj.Internal.(*values.ArrayData); ok && !pk.IsSym {
			if idx, ok2 := arrayIndexOf(pk.Str); ok2 && idx < len(ad.Elements) {
				return true, nil
			}
		}
	}
	return false, nil
}

// arrayIndexOf reports whether s is a canonical array index string
// (ECMA-262 §6.1.7 "array index": no leading zeros except "0" itself,
// no sign, fits in a uint32 below 2^32-1), returning its integer value.
func arrayIndexOf(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	if s == "0" {
		return 0, true
	}
	if s[0] == '0' || s[0] < '0' || s[0] > '9' {
		return 0, false
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
		if n >= 1<<32-1 {
			return 0, false
		}
	}
	return n, true
}
