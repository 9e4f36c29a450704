package vm

import (
	"github.com/wudi/esprel/opcodes"
	"github.com/wudi/esprel/values"
)

// execIteration handles the iterator-protocol opcode group. The
// compiler emits the same OP_GET_ITERATOR for both for-of and the
// legacy for-in (statements.go's compileForInOf shares one code path
// for both), so getIterator below distinguishes them structurally: an
// object exposing a callable Symbol.iterator is iterated through that
// protocol, anything else falls back to enumerating own+inherited
// enumerable string keys, the for-in behavior. A for-of over a
// non-iterable plain object therefore enumerates its keys rather than
// raising "is not iterable" — a known, documented simplification
// rather than a silent mismatch.
func (vm *VM) execIteration(fr *Frame, op opcodes.Opcode) error {
	switch op {
	case opcodes.OP_GET_ITERATOR, opcodes.OP_GET_ASYNC_ITERATOR:
		v := fr.pop()
		it, err := vm.getIterator(v, op == opcodes.OP_GET_ASYNC_ITERATOR)
		if err != nil {
			return err
		}
		fr.push(values.ObjectValue(it))
		return nil
	case opcodes.OP_ITER_NEXT:
		itObj := fr.top().AsObject()
		if itObj == nil {
			return vm.ThrowTypeError("iterator result is not an object")
		}
		value, done, err := vm.iteratorNext(itObj)
		if err != nil {
			return err
		}
		fr.push(value)
		fr.push(values.Bool(done))
		return nil
	case opcodes.OP_ITER_NEXT_RAW:
		// The async-iteration step: call next() but push its raw result
		// (a promise, for a conforming async iterator) for the following
		// OP_AWAIT; OP_ITER_UNPACK destructures after settlement.
		itObj := fr.top().AsObject()
		if itObj == nil {
			return vm.ThrowTypeError("iterator result is not an object")
		}
		result, err := vm.iteratorNextRaw(itObj)
		if err != nil {
			return err
		}
		fr.push(result)
		return nil
	case opcodes.OP_ITER_UNPACK:
		resObj := fr.pop().AsObject()
		if resObj == nil {
			return vm.ThrowTypeError("Iterator result is not an object")
		}
		doneVal, _, _ := resObj.Get(values.StringKey("done"))
		valueVal, _, _ := resObj.Get(values.StringKey("value"))
		fr.push(valueVal)
		fr.push(values.Bool(doneVal.ToBoolean()))
		return nil
	case opcodes.OP_ITER_CLOSE:
		itVal := fr.pop()
		itObj := itVal.AsObject()
		if itObj == nil {
			return nil
		}
		return vm.iteratorClose(itObj)
	}
	return vm.ThrowTypeError("unsupported iteration opcode %s", op)
}

// getIterator implements GetIterator (ECMA-262 §7.4.2): look up
// Symbol.asyncIterator (async) or Symbol.iterator (sync) and invoke it
// with no arguments. async=true with no Symbol.asyncIterator falls
// back to the sync protocol, per §7.4.2's AsyncFromSyncIteratorAdapter
// path — results simply pass through OP_AWAIT unchanged, since
// Await on a non-thenable value resolves to that value.
func (vm *VM) getIterator(v values.Value, async bool) (*values.Object, error) {
	if obj := v.AsObject(); obj != nil {
		// Arrays are iterated by dense index directly off ArrayData,
		// the same fast path properties.go's get/set use, rather than
		// relying on an Array.prototype[Symbol.iterator] method (the
		// core VM carries no Array.prototype methods beyond this).
		if obj.Class == "Array" {
			if ad, ok := obj.Internal.(*values.ArrayData); ok {
				return vm.newArrayIterator(ad), nil
			}
		}
		symKey := values.SymbolKey(values.SymbolIterator)
		if async {
			symKey = values.SymbolKey(values.SymbolAsyncIterator)
		}
		if fnVal, _, ok := obj.Get(symKey); ok {
			if fn := fnVal.AsObject(); fn != nil && fn.Call != nil {
				result, err := fn.Call(v, nil)
				if err != nil {
					return nil, err
				}
				resObj := result.AsObject()
				if resObj == nil {
					return nil, vm.ThrowTypeError("Result of the Symbol.iterator method is not an object")
				}
				return resObj, nil
			}
		}
		if async {
			if fnVal, _, ok := obj.Get(values.SymbolKey(values.SymbolIterator)); ok {
				if fn := fnVal.AsObject(); fn != nil && fn.Call != nil {
					result, err := fn.Call(v, nil)
					if err != nil {
						return nil, err
					}
					if resObj := result.AsObject(); resObj != nil {
						return resObj, nil
					}
				}
			}
		}
		// An object that already exposes a callable `next` is treated as
		// its own iterator: rest-element destructuring spreads the live
		// loop iterator itself, and user code passes bare iterators to
		// spread positions more often than it wraps them.
		if nextVal, _, ok := obj.Get(values.StringKey("next")); ok {
			if fn := nextVal.AsObject(); fn != nil && fn.Call != nil {
				return obj, nil
			}
		}
		return vm.newKeyEnumerationIterator(obj), nil
	}
	if v.Type == values.TypeString {
		return vm.newStringIterator(v.AsString()), nil
	}
	return nil, vm.ThrowTypeError("value is not iterable")
}

// iteratorNext implements IteratorNext + IteratorComplete/IteratorValue
// (ECMA-262 §7.4.3-§7.4.5): call `next`, require an object result, read
// its done/value properties.
func (vm *VM) iteratorNext(itObj *values.Object) (values.Value, bool, error) {
	result, err := vm.iteratorNextRaw(itObj)
	if err != nil {
		return values.Undefined, false, err
	}
	resObj := result.AsObject()
	if resObj == nil {
		return values.Undefined, false, vm.ThrowTypeError("Iterator result is not an object")
	}
	doneVal, _, _ := resObj.Get(values.StringKey("done"))
	valueVal, _, _ := resObj.Get(values.StringKey("value"))
	return valueVal, doneVal.ToBoolean(), nil
}

// iteratorNextRaw calls the iterator's next method and returns its
// result uninspected, the half of IteratorNext shared by the sync
// protocol and the await-then-unpack async sequence.
func (vm *VM) iteratorNextRaw(itObj *values.Object) (values.Value, error) {
	nextVal, _, ok := itObj.Get(values.StringKey("next"))
	if !ok {
		return values.Undefined, vm.ThrowTypeError("iterator has no next method")
	}
	nextFn := nextVal.AsObject()
	if nextFn == nil || nextFn.Call == nil {
		return values.Undefined, vm.ThrowTypeError("iterator.next is not a function")
	}
	return nextFn.Call(values.ObjectValue(itObj), nil)
}

// iteratorClose implements IteratorClose (ECMA-262 §7.4.8): call
// `return` if present, ignoring a non-object result (an already-abrupt
// completion from the loop body takes precedence and is not modeled
// here since this is only reached on normal exhaustion or an explicit
// ITER_CLOSE emission, never on a bare Go panic/unwind).
func (vm *VM) iteratorClose(itObj *values.Object) error {
	returnVal, _, ok := itObj.Get(values.StringKey("return"))
	if !ok {
		return nil
	}
	returnFn := returnVal.AsObject()
	if returnFn == nil || returnFn.Call == nil {
		return nil
	}
	_, err := returnFn.Call(values.ObjectValue(itObj), nil)
	return err
}

// newKeyEnumerationIterator builds the for-in fallback: a native
// iterator over own+inherited enumerable string keys, each key visited
// once even if shadowed further down the prototype chain.
func (vm *VM) newKeyEnumerationIterator(obj *values.Object) *values.Object {
	var keys []string
	seen := map[string]bool{}
	for cur := obj; cur != nil; cur = cur.Prototype {
		for _, k := range cur.OwnPropertyKeys() {
			if k.IsSym || seen[k.Str] {
				continue
			}
			seen[k.Str] = true
			if d, ok := cur.GetOwnProperty(k); ok && d.Enumerable {
				keys = append(keys, k.Str)
			}
		}
	}
	idx := 0
	return vm.nativeIterator(func() (values.Value, bool) {
		if idx >= len(keys) {
			return values.Undefined, true
		}
		v := values.String(keys[idx])
		idx++
		return v, false
	})
}

// newArrayIterator walks an array's live ArrayData by index, so
// mutations during iteration (push/pop mid-loop) are observed the way
// %ArrayIteratorPrototype% requires (ECMA-262 §23.1.5.1).
func (vm *VM) newArrayIterator(ad *values.ArrayData) *values.Object {
	idx := 0
	return vm.nativeIterator(func() (values.Value, bool) {
		if idx >= len(ad.Elements) {
			return values.Undefined, true
		}
		v := ad.Elements[idx]
		idx++
		return v, false
	})
}

// newStringIterator iterates a string by Unicode code point (ECMA-262
// §22.1.5.1 %StringIteratorPrototype%.next), the one built-in iterable
// outside the object model the core VM still needs for `for (const c
// of "str")` to work without a separate String.prototype intrinsic.
func (vm *VM) newStringIterator(s string) *values.Object {
	runes := []rune(s)
	idx := 0
	return vm.nativeIterator(func() (values.Value, bool) {
		if idx >= len(runes) {
			return values.Undefined, true
		}
		v := values.String(string(runes[idx]))
		idx++
		return v, false
	})
}

// nativeIterator wraps a Go closure producing (value, done) pairs as a
// conforming iterator object (a "next" method returning a fresh result
// object each call), so the VM's own iteration machinery and any user
// for-of loop consuming one of these see an ordinary ECMAScript
// iterator, never a special case.
func (vm *VM) nativeIterator(next func() (values.Value, bool)) *values.Object {
	it := values.NewObject(vm.ObjectProto)
	it.Class = "Iterator"
	it.Call = nil
	nextFn := values.NewObject(vm.FunctionProto)
	nextFn.Class = "Function"
	nextFn.Call = func(this values.Value, args []values.Value) (values.Value, error) {
		v, done := next()
		res := values.NewObject(vm.ObjectProto)
		res.SetData(values.StringKey("value"), v)
		res.SetData(values.StringKey("done"), values.Bool(done))
		return values.ObjectValue(res), nil
	}
	it.SetData(values.StringKey("next"), values.ObjectValue(nextFn))
	return it
}
