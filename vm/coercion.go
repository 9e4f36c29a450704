package vm

import (
	"math"
	"math/big"

	"github.com/wudi/esprel/values"
)

// toPrimitive implements ECMA-262 §7.1.1: for a non-object value,
// returns it unchanged; for an object, tries the methods named by
// hint ("default"/"number" tries valueOf then toString, "string" the
// reverse), calling through the VM since these are ordinary method
// calls that may themselves be user-defined.
func (vm *VM) toPrimitive(v values.Value, hint string) (values.Value, error) {
	if !v.IsObject() {
		return v, nil
	}
	obj := v.AsObject()
	methods := []string{"valueOf", "toString"}
	if hint == "string" {
		methods = []string{"toString", "valueOf"}
	}
	for _, name := range methods {
		fnVal, _, ok := obj.Get(values.StringKey(name))
		if !ok {
			continue
		}
		fn := fnVal.AsObject()
		if fn == nil || fn.Call == nil {
			continue
		}
		result, err := fn.Call(v, nil)
		if err != nil {
			return values.Undefined, err
		}
		if !result.IsObject() {
			return result, nil
		}
	}
	return values.Undefined, vm.ThrowTypeError("Cannot convert object to primitive value")
}

// toNumberV is ToNumber (ECMA-262 §7.1.4) generalized over objects via
// toPrimitive, which values.Value.ToNumber intentionally leaves out.
func (vm *VM) toNumberV(v values.Value) (values.Value, error) {
	if v.Type == values.TypeBigInt {
		return values.Undefined, vm.ThrowTypeError("Cannot convert a BigInt value to a number")
	}
	if v.IsObject() {
		prim, err := vm.toPrimitive(v, "number")
		if err != nil {
			return values.Undefined, err
		}
		v = prim
	}
	return values.Number(v.ToNumber()), nil
}

// toStringV is ToString (ECMA-262 §7.1.17) generalized over objects.
func (vm *VM) toStringV(v values.Value) (string, error) {
	if v.Type == values.TypeSymbol {
		return "", vm.ThrowTypeError("Cannot convert a Symbol value to a string")
	}
	if v.IsObject() {
		prim, err := vm.toPrimitive(v, "string")
		if err != nil {
			return "", err
		}
		v = prim
	}
	return v.ToStringValue(), nil
}

// toPropertyKeyV is ToPropertyKey (ECMA-262 §7.1.19): symbols pass
// through as symbol keys, everything else becomes a string key.
func (vm *VM) toPropertyKeyV(v values.Value) (values.PropertyKey, error) {
	if v.Type == values.TypeSymbol {
		return values.SymbolKey(v.AsSymbol()), nil
	}
	s, err := vm.toStringV(v)
	if err != nil {
		return values.PropertyKey{}, err
	}
	return values.StringKey(s), nil
}

// addValues implements the `+` operator's dual string/numeric
// dispatch (ECMA-262 §13.15.3): ToPrimitive both operands first, then
// concatenate if either primitive is a string, else ToNumeric both and
// add (promoting to BigInt arithmetic when both sides are BigInt).
func (vm *VM) addValues(a, b values.Value) (values.Value, error) {
	pa, err := vm.toPrimitive(a, "default")
	if err != nil {
		return values.Undefined, err
	}
	pb, err := vm.toPrimitive(b, "default")
	if err != nil {
		return values.Undefined, err
	}
	if pa.Type == values.TypeString || pb.Type == values.TypeString {
		sa, err := vm.toStringV(pa)
		if err != nil {
			return values.Undefined, err
		}
		sb, err := vm.toStringV(pb)
		if err != nil {
			return values.Undefined, err
		}
		return values.String(sa + sb), nil
	}
	if pa.Type == values.TypeBigInt && pb.Type == values.TypeBigInt {
		return values.BigIntValue(new(big.Int).Add(pa.AsBigInt(), pb.AsBigInt())), nil
	}
	if pa.Type == values.TypeBigInt || pb.Type == values.TypeBigInt {
		return values.Undefined, vm.ThrowTypeError("Cannot mix BigInt and other types, use explicit conversions")
	}
	na, err := vm.toNumberV(pa)
	if err != nil {
		return values.Undefined, err
	}
	nb, err := vm.toNumberV(pb)
	if err != nil {
		return values.Undefined, err
	}
	return values.Number(na.AsNumber() + nb.AsNumber()), nil
}

// numericBinOp applies a float64 operator to both operands after
// ToNumeric, dispatching to BigInt arithmetic when both sides are
// BigInt (ECMA-262 §13.12 disallows mixing, enforced the same way
// addValues does).
func (vm *VM) numericBinOp(a, b values.Value, floatOp func(a, b float64) float64, bigOp func(a, b *big.Int) (*big.Int, error)) (values.Value, error) {
	pa, err := vm.toPrimitive(a, "number")
	if err != nil {
		return values.Undefined, err
	}
	pb, err := vm.toPrimitive(b, "number")
	if err != nil {
		return values.Undefined, err
	}
	if pa.Type == values.TypeBigInt && pb.Type == values.TypeBigInt {
		if bigOp == nil {
			return values.Undefined, vm.ThrowTypeError("unsupported BigInt operation")
		}
		r, err := bigOp(pa.AsBigInt(), pb.AsBigInt())
		if err != nil {
			return values.Undefined, err
		}
		return values.BigIntValue(r), nil
	}
	if pa.Type == values.TypeBigInt || pb.Type == values.TypeBigInt {
		return values.Undefined, vm.ThrowTypeError("Cannot mix BigInt and other types, use explicit conversions")
	}
	na, err := vm.toNumberV(pa)
	if err != nil {
		return values.Undefined, err
	}
	nb, err := vm.toNumberV(pb)
	if err != nil {
		return values.Undefined, err
	}
	return values.Number(floatOp(na.AsNumber(), nb.AsNumber())), nil
}

func bigDivCheckZero(a, b *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, errDivByZeroBigInt
	}
	return new(big.Int).Quo(a, b), nil
}

var errDivByZeroBigInt = &divByZeroError{}

type divByZeroError struct{}

func (*divByZeroError) Error() string { return "Division by zero" }

func toInt32(f float64) int32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int32(int64(f))
}

func toUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return uint32(int64(f))
}
