package vm

import (
	"github.com/wudi/esprel/environment"
	"github.com/wudi/esprel/opcodes"
	"github.com/wudi/esprel/values"
)

// execProperty handles the property-access opcode group. GET/SET_PROPERTY_IC are dispatched identically
// to their non-IC counterparts: the registry's Shape transition table
// exists for a real inline cache but this engine does not yet wire
// Object.ShapeID into it, so the _IC variants are plain direct
// dispatch rather than a cached fast path.
func (vm *VM) execProperty(fr *Frame, ins opcodes.Instruction) error {
	switch ins.Op {
	case opcodes.OP_GET_PROPERTY, opcodes.OP_GET_PROPERTY_IC:
		key := fr.Block.Constants[ins.Operand].AsString()
		obj := fr.pop()
		v, err := vm.getProperty(obj, values.StringKey(key))
		if err != nil {
			return err
		}
		fr.push(v)
		return nil
	case opcodes.OP_SET_PROPERTY, opcodes.OP_SET_PROPERTY_IC:
		// All SET opcodes consume their operands without pushing the
		// value back; the compiler DUPs beforehand when an enclosing
		// expression needs the assigned value as its result.
		key := fr.Block.Constants[ins.Operand].AsString()
		value := fr.pop()
		obj := fr.pop()
		return vm.setProperty(obj, values.StringKey(key), value)
	case opcodes.OP_GET_PROPERTY_COMPUTED:
		keyVal := fr.pop()
		obj := fr.pop()
		key, err := vm.toPropertyKeyV(keyVal)
		if err != nil {
			return err
		}
		v, err := vm.getProperty(obj, key)
		if err != nil {
			return err
		}
		fr.push(v)
		return nil
	case opcodes.OP_SET_PROPERTY_COMPUTED:
		keyVal := fr.pop()
		value := fr.pop()
		obj := fr.pop()
		key, err := vm.toPropertyKeyV(keyVal)
		if err != nil {
			return err
		}
		return vm.setProperty(obj, key, value)
	case opcodes.OP_DELETE_PROPERTY:
		keyVal := fr.pop()
		obj := fr.pop()
		key, err := vm.toPropertyKeyV(keyVal)
		if err != nil {
			return err
		}
		target := obj.AsObject()
		if target == nil {
			fr.push(values.True)
			return nil
		}
		fr.push(values.Bool(target.DeleteOwnProperty(key)))
		return nil
	case opcodes.OP_GET_PRIVATE:
		name := fr.Block.Constants[ins.Operand].AsString()
		obj := fr.pop()
		target := obj.AsObject()
		if target == nil {
			return vm.ThrowTypeError("Cannot read private member #%s from non-object", name)
		}
		// Private fields are own properties of the instance; private
		// methods/accessors are installed once on the class prototype
		// (classes.go), so the lookup walks the chain rather than
		// requiring an own property the way public GetOwnProperty-based
		// field access alone would.
		key := privateKey(name)
		for cur := target; cur != nil; cur = cur.Prototype {
			if d, ok := cur.GetOwnProperty(key); ok {
				if d.IsAccessor {
					if d.Get == nil {
						return vm.ThrowTypeError("'#%s' was defined without a getter", name)
					}
					v, err := vm.Call(d.Get, obj, nil)
					if err != nil {
						return err
					}
					fr.push(v)
					return nil
				}
				fr.push(d.Value)
				return nil
			}
		}
		return vm.ThrowTypeError("Cannot read private member #%s from an object whose class did not declare it", name)
	case opcodes.OP_SET_PRIVATE:
		name := fr.Block.Constants[ins.Operand].AsString()
		value := fr.pop()
		obj := fr.pop()
		target := obj.AsObject()
		if target == nil {
			return vm.ThrowTypeError("Cannot write private member #%s to non-object", name)
		}
		key := privateKey(name)
		for cur := target; cur != nil; cur = cur.Prototype {
			if d, ok := cur.GetOwnProperty(key); ok {
				if d.IsAccessor {
					if d.Set == nil {
						return vm.ThrowTypeError("'#%s' was defined without a setter", name)
					}
					_, err := vm.Call(d.Set, obj, []values.Value{value})
					return err
				}
				if cur == target {
					d.Value = value
					return nil
				}
				break
			}
		}
		target.DefineOwnProperty(key, values.PropertyDescriptor{Value: value, Writable: true})
		return nil
	case opcodes.OP_GET_SUPER_PROPERTY:
		keyVal := fr.pop()
		key, err := vm.toPropertyKeyV(keyVal)
		if err != nil {
			return err
		}
		home := environment.HomeObjectOf(fr.Env)
		if home == nil || home.Prototype == nil {
			return vm.ThrowTypeError("'super' keyword is only valid inside a method")
		}
		v, err := vm.getPropertyOn(home.Prototype, fr.This, key)
		if err != nil {
			return err
		}
		fr.push(v)
		return nil
	case opcodes.OP_SET_SUPER_PROPERTY:
		keyVal := fr.pop()
		value := fr.pop()
		key, err := vm.toPropertyKeyV(keyVal)
		if err != nil {
			return err
		}
		home := environment.HomeObjectOf(fr.Env)
		if home == nil || home.Prototype == nil {
			return vm.ThrowTypeError("'super' keyword is only valid inside a method")
		}
		return vm.setPropertyOn(home.Prototype, fr.This, key, value)
	}
	return vm.ThrowTypeError("unsupported property opcode %s", ins.Op)
}

func privateKey(name string) values.PropertyKey {
	return values.StringKey("#" + name)
}

// getProperty is ECMA-262 §10.1.8 OrdinaryGet, generalized over the
// engine's dense-array fast path: a numeric index on an Array object
// reads straight from ArrayData rather than a synthesized data
// property for every element.
func (vm *VM) getProperty(receiver values.Value, key values.PropertyKey) (values.Value, error) {
	obj := receiver.AsObject()
	if obj == nil {
		if receiver.Type == values.TypeString && !key.IsSym && key.Str == "length" {
			return values.Int(int64(len([]rune(receiver.AsString())))), nil
		}
		return values.Undefined, vm.ThrowTypeError("Cannot read properties of %s (reading '%s')", receiver.ToStringValue(), key.Str)
	}
	return vm.getPropertyOn(obj, receiver, key)
}

func (vm *VM) getPropertyOn(obj *values.Object, receiver values.Value, key values.PropertyKey) (values.Value, error) {
	if ad, ok := arrayIndexElement(obj, key); ok {
		return ad, nil
	}
	v, getter, found := obj.Get(key)
	if !found {
		return values.Undefined, nil
	}
	if getter != nil {
		return vm.Call(getter, receiver, nil)
	}
	return v, nil
}

// setProperty is ECMA-262 §10.1.9 OrdinarySet, with the same array
// fast path getProperty uses, and length-extension when an index
// beyond the current length is assigned (ECMA-262 §10.4.2.1).
func (vm *VM) setProperty(receiver values.Value, key values.PropertyKey, value values.Value) error {
	obj := receiver.AsObject()
	if obj == nil {
		return vm.ThrowTypeError("Cannot set properties of %s (setting '%s')", receiver.ToStringValue(), key.Str)
	}
	return vm.setPropertyOn(obj, receiver, key, value)
}

func (vm *VM) setPropertyOn(obj *values.Object, receiver values.Value, key values.PropertyKey, value values.Value) error {
	if obj.Class == "Array" && !key.IsSym {
		if ad, ok := obj.Internal.(*values.ArrayData); ok {
			if idx, ok2 := arrayIndexOf(key.Str); ok2 {
				for len(ad.Elements) <= idx {
					ad.Elements = append(ad.Elements, values.Undefined)
				}
				ad.Elements[idx] = value
				obj.DefineOwnProperty(values.StringKey("length"), values.PropertyDescriptor{Value: values.Int(int64(len(ad.Elements))), Writable: true})
				return nil
			}
			if key.Str == "length" {
				n := int(value.ToNumber())
				if n < len(ad.Elements) {
					ad.Elements = ad.Elements[:n]
				} else {
					for len(ad.Elements) < n {
						ad.Elements = append(ad.Elements, values.Undefined)
					}
				}
				obj.DefineOwnProperty(values.StringKey("length"), values.PropertyDescriptor{Value: values.Int(int64(n)), Writable: true})
				return nil
			}
		}
	}
	for cur := obj; cur != nil; cur = cur.Prototype {
		if d, ok := cur.GetOwnProperty(key); ok {
			if d.IsAccessor {
				if d.Set == nil {
					return nil
				}
				_, err := vm.Call(d.Set, receiver, []values.Value{value})
				return err
			}
			if cur == obj {
				if !d.Writable {
					return nil
				}
				d.Value = value
				return nil
			}
			break
		}
	}
	obj.SetData(key, value)
	return nil
}

func arrayIndexElement(obj *values.Object, key values.PropertyKey) (values.Value, bool) {
	if obj.Class != "Array" || key.IsSym {
		return values.Undefined, false
	}
	ad, ok := obj.Internal.(*values.ArrayData)
	if !ok {
		return values.Undefined, false
	}
	idx, ok := arrayIndexOf(key.Str)
	if !ok || idx >= len(ad.Elements) {
		return values.Undefined, false
	}
	return ad.Elements[idx], true
}
