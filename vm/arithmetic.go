package vm

import (
	"math"
	"math/big"

	"github.com/wudi/esprel/opcodes"
	"github.com/wudi/esprel/values"
)

func (vm *VM) execArithmetic(fr *Frame, op opcodes.Opcode) error {
	switch op {
	case opcodes.OP_NEG:
		return vm.unaryNumeric(fr, func(f float64) float64 { return -f }, func(b *big.Int) *big.Int { return new(big.Int).Neg(b) })
	case opcodes.OP_POS:
		v, err := vm.toNumberV(fr.pop())
		if err != nil {
			return err
		}
		fr.push(v)
		return nil
	case opcodes.OP_NOT:
		fr.push(values.Bool(!fr.pop().ToBoolean()))
		return nil
	case opcodes.OP_BW_NOT:
		return vm.unaryNumeric(fr, func(f float64) float64 { return float64(^toInt32(f)) }, func(b *big.Int) *big.Int { return new(big.Int).Not(b) })
	case opcodes.OP_INC:
		return vm.unaryNumeric(fr, func(f float64) float64 { return f + 1 }, func(b *big.Int) *big.Int { return new(big.Int).Add(b, big.NewInt(1)) })
	case opcodes.OP_DEC:
		return vm.unaryNumeric(fr, func(f float64) float64 { return f - 1 }, func(b *big.Int) *big.Int { return new(big.Int).Sub(b, big.NewInt(1)) })
	}

	b := fr.pop()
	a := fr.pop()
	switch op {
	case opcodes.OP_ADD:
		v, err := vm.addValues(a, b)
		if err != nil {
			return err
		}
		fr.push(v)
		return nil
	case opcodes.OP_SUB:
		return vm.pushNumeric(fr, a, b, func(x, y float64) float64 { return x - y }, func(x, y *big.Int) (*big.Int, error) { return new(big.Int).Sub(x, y), nil })
	case opcodes.OP_MUL:
		return vm.pushNumeric(fr, a, b, func(x, y float64) float64 { return x * y }, func(x, y *big.Int) (*big.Int, error) { return new(big.Int).Mul(x, y), nil })
	case opcodes.OP_DIV:
		return vm.pushNumeric(fr, a, b, func(x, y float64) float64 { return x / y }, bigDivCheckZero)
	case opcodes.OP_MOD:
		return vm.pushNumeric(fr, a, b, math.Mod, func(x, y *big.Int) (*big.Int, error) {
			if y.Sign() == 0 {
				return nil, errDivByZeroBigInt
			}
			return new(big.Int).Rem(x, y), nil
		})
	case opcodes.OP_POW:
		return vm.pushNumeric(fr, a, b, math.Pow, func(x, y *big.Int) (*big.Int, error) { return new(big.Int).Exp(x, y, nil), nil })
	case opcodes.OP_BW_AND:
		return vm.pushNumeric(fr, a, b, func(x, y float64) float64 { return float64(toInt32(x) & toInt32(y)) }, func(x, y *big.Int) (*big.Int, error) { return new(big.Int).And(x, y), nil })
	case opcodes.OP_BW_OR:
		return vm.pushNumeric(fr, a, b, func(x, y float64) float64 { return float64(toInt32(x) | toInt32(y)) }, func(x, y *big.Int) (*big.Int, error) { return new(big.Int).Or(x, y), nil })
	case opcodes.OP_BW_XOR:
		return vm.pushNumeric(fr, a, b, func(x, y float64) float64 { return float64(toInt32(x) ^ toInt32(y)) }, func(x, y *big.Int) (*big.Int, error) { return new(big.Int).Xor(x, y), nil })
	case opcodes.OP_SHL:
		return vm.pushNumeric(fr, a, b, func(x, y float64) float64 { return float64(toInt32(x) << (toUint32(y) & 31)) }, nil)
	case opcodes.OP_SHR:
		return vm.pushNumeric(fr, a, b, func(x, y float64) float64 { return float64(toInt32(x) >> (toUint32(y) & 31)) }, nil)
	case opcodes.OP_USHR:
		return vm.pushNumeric(fr, a, b, func(x, y float64) float64 { return float64(toUint32(x) >> (toUint32(y) & 31)) }, nil)
	}
	return vm.ThrowTypeError("unsupported arithmetic opcode %s", op)
}

func (vm *VM) pushNumeric(fr *Frame, a, b values.Value, floatOp func(a, b float64) float64, bigOp func(a, b *big.Int) (*big.Int, error)) error {
	v, err := vm.numericBinOp(a, b, floatOp, bigOp)
	if err != nil {
		return err
	}
	fr.push(v)
	return nil
}

// unaryNumeric applies one of floatOp/bigOp to the popped operand
// after ToNumeric, sharing the BigInt-vs-Number dispatch arithmetic
// binops use (ECMA-262 §13.5.4 unary minus, §12.8.3 unary plus share
// this shape).
func (vm *VM) unaryNumeric(fr *Frame, floatOp func(float64) float64, bigOp func(*big.Int) *big.Int) error {
	v := fr.pop()
	prim, err := vm.toPrimitive(v, "number")
	if err != nil {
		return err
	}
	if prim.Type == values.TypeBigInt {
		fr.push(values.BigIntValue(bigOp(prim.AsBigInt())))
		return nil
	}
	n, err := vm.toNumberV(prim)
	if err != nil {
		return err
	}
	fr.push(values.Number(floatOp(n.AsNumber())))
	return nil
}
