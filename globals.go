package esprel

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wudi/esprel/runtime"
	"github.com/wudi/esprel/values"
	"github.com/wudi/esprel/vm"
)

// installGlobals wires the minimal intrinsic surface a host embedding
// this core is expected to provide:
// Promise with its prototype methods, JSON.stringify, queueMicrotask,
// console.log, and globalThis.
func (c *Context) installGlobals() {
	g := c.VM.GlobalObject
	g.SetData(values.StringKey("globalThis"), values.ObjectValue(g))
	g.SetData(values.StringKey("undefined"), values.Undefined)
	g.SetData(values.StringKey("NaN"), values.Number(nan()))

	c.installPromise()
	c.installJSON()

	g.SetData(values.StringKey("queueMicrotask"), values.ObjectValue(c.nativeFn("queueMicrotask", func(_ values.Value, args []values.Value) (values.Value, error) {
		fn := arg(args, 0).AsObject()
		if fn == nil || fn.Call == nil {
			return values.Undefined, c.VM.ThrowTypeError("queueMicrotask requires a function")
		}
		c.VM.Jobs.Enqueue(func() { _, _ = fn.Call(values.Undefined, nil) })
		return values.Undefined, nil
	})))

	console := values.NewObject(c.VM.ObjectProto)
	console.SetData(values.StringKey("log"), values.ObjectValue(c.nativeFn("log", func(_ values.Value, args []values.Value) (values.Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.ToStringValue()
		}
		if c.hooks.Print != nil {
			c.hooks.Print(strings.Join(parts, " "))
		}
		return values.Undefined, nil
	})))
	g.SetData(values.StringKey("console"), values.ObjectValue(console))
}

func nan() float64 {
	var zero float64
	return zero / zero
}

// installPromise builds the Promise constructor, its statics, and the
// prototype methods over the vm package's capability machinery
//; the constructor shares the realm's PromiseProto so
// engine-created and script-created promises are indistinguishable.
func (c *Context) installPromise() {
	realm := c.VM

	then := c.nativeFn("then", func(this values.Value, args []values.Value) (values.Value, error) {
		p := this.AsObject()
		if vm.PromiseDataOf(p) == nil {
			return values.Undefined, realm.ThrowTypeError("Promise.prototype.then called on a non-promise")
		}
		return values.ObjectValue(realm.Then(p, callableOrNil(arg(args, 0)), callableOrNil(arg(args, 1)))), nil
	})
	realm.PromiseProto.SetData(values.StringKey("then"), values.ObjectValue(then))

	realm.PromiseProto.SetData(values.StringKey("catch"), values.ObjectValue(c.nativeFn("catch", func(this values.Value, args []values.Value) (values.Value, error) {
		p := this.AsObject()
		if vm.PromiseDataOf(p) == nil {
			return values.Undefined, realm.ThrowTypeError("Promise.prototype.catch called on a non-promise")
		}
		return values.ObjectValue(realm.Then(p, nil, callableOrNil(arg(args, 0)))), nil
	})))

	realm.PromiseProto.SetData(values.StringKey("finally"), values.ObjectValue(c.nativeFn("finally", func(this values.Value, args []values.Value) (values.Value, error) {
		p := this.AsObject()
		if vm.PromiseDataOf(p) == nil {
			return values.Undefined, realm.ThrowTypeError("Promise.prototype.finally called on a non-promise")
		}
		onFinally := callableOrNil(arg(args, 0))
		// Pass the settlement through untouched after running the
		// callback (ECMA-262 §27.2.5.3's value/reason preservation).
		passValue := c.nativeFn("", func(_ values.Value, a []values.Value) (values.Value, error) {
			if onFinally != nil {
				if _, err := onFinally.Call(values.Undefined, nil); err != nil {
					return values.Undefined, err
				}
			}
			return arg(a, 0), nil
		})
		rethrow := c.nativeFn("", func(_ values.Value, a []values.Value) (values.Value, error) {
			if onFinally != nil {
				if _, err := onFinally.Call(values.Undefined, nil); err != nil {
					return values.Undefined, err
				}
			}
			return values.Undefined, runtime.NewException(arg(a, 0), nil)
		})
		return values.ObjectValue(realm.Then(p, passValue, rethrow)), nil
	})))

	ctor := c.nativeFn("Promise", func(values.Value, []values.Value) (values.Value, error) {
		return values.Undefined, realm.ThrowTypeError("Promise constructor requires new")
	})
	ctor.Construct = func(args []values.Value, _ *values.Object) (values.Value, error) {
		executor := arg(args, 0).AsObject()
		if executor == nil || executor.Call == nil {
			return values.Undefined, realm.ThrowTypeError("Promise executor is not a function")
		}
		p, err := realm.NewPromise(executor)
		if err != nil {
			return values.Undefined, err
		}
		return values.ObjectValue(p), nil
	}
	ctor.SetData(values.StringKey("prototype"), values.ObjectValue(realm.PromiseProto))
	realm.PromiseProto.SetData(values.StringKey("constructor"), values.ObjectValue(ctor))

	ctor.SetData(values.StringKey("resolve"), values.ObjectValue(c.nativeFn("resolve", func(_ values.Value, args []values.Value) (values.Value, error) {
		return values.ObjectValue(realm.PromiseResolve(arg(args, 0))), nil
	})))
	ctor.SetData(values.StringKey("reject"), values.ObjectValue(c.nativeFn("reject", func(_ values.Value, args []values.Value) (values.Value, error) {
		cap := realm.NewPromiseCapability()
		cap.Reject(arg(args, 0))
		return values.ObjectValue(cap.Promise), nil
	})))
	ctor.SetData(values.StringKey("all"), values.ObjectValue(c.nativeFn("all", func(_ values.Value, args []values.Value) (values.Value, error) {
		return c.promiseAll(arg(args, 0))
	})))

	c.VM.GlobalObject.SetData(values.StringKey("Promise"), values.ObjectValue(ctor))
}

// promiseAll implements Promise.all over an array argument (ECMA-262
// §27.2.4.1): results keep element order regardless of settlement
// order, and the first rejection wins.
func (c *Context) promiseAll(iterable values.Value) (values.Value, error) {
	realm := c.VM
	arr := iterable.AsObject()
	ad, _ := arrayData(arr)
	if ad == nil {
		return values.Undefined, realm.ThrowTypeError("Promise.all expects an array")
	}

	cap := realm.NewPromiseCapability()
	elements := append([]values.Value{}, ad.Elements...)
	results := make([]values.Value, len(elements))
	remaining := 1

	settleIfDone := func() {
		remaining--
		if remaining == 0 {
			cap.Resolve(values.ObjectValue(values.NewArray(realm.ArrayProto, results)))
		}
	}

	for i, el := range elements {
		i := i
		remaining++
		p := realm.PromiseResolve(el)
		onFulfilled := c.nativeFn("", func(_ values.Value, a []values.Value) (values.Value, error) {
			results[i] = arg(a, 0)
			settleIfDone()
			return values.Undefined, nil
		})
		onRejected := c.nativeFn("", func(_ values.Value, a []values.Value) (values.Value, error) {
			cap.Reject(arg(a, 0))
			return values.Undefined, nil
		})
		realm.Then(p, onFulfilled, onRejected)
	}
	settleIfDone()
	return values.ObjectValue(cap.Promise), nil
}

// installJSON provides JSON.stringify, the one serialization surface
// the REPL and tests exercise. Parsing is a standard-library
// concern the REPL doesn't need and is omitted.
func (c *Context) installJSON() {
	jsonObj := values.NewObject(c.VM.ObjectProto)
	jsonObj.SetData(values.StringKey("stringify"), values.ObjectValue(c.nativeFn("stringify", func(_ values.Value, args []values.Value) (values.Value, error) {
		out, ok := stringifyJSON(arg(args, 0), map[*values.Object]bool{})
		if !ok {
			return values.Undefined, nil
		}
		return values.String(out), nil
	})))
	c.VM.GlobalObject.SetData(values.StringKey("JSON"), values.ObjectValue(jsonObj))
}

// stringifyJSON is SerializeJSONProperty (ECMA-262 §25.5.2) restricted
// to data the core value model can produce; ok=false means the value
// is not serializable (undefined, functions), matching JSON.stringify
// returning undefined.
func stringifyJSON(v values.Value, seen map[*values.Object]bool) (string, bool) {
	switch v.Type {
	case values.TypeUndefined:
		return "", false
	case values.TypeNull:
		return "null", true
	case values.TypeBoolean:
		if v.AsBool() {
			return "true", true
		}
		return "false", true
	case values.TypeNumber:
		f := v.AsNumber()
		if f != f || f > maxFinite || f < -maxFinite {
			return "null", true
		}
		return values.Number(f).ToStringValue(), true
	case values.TypeString:
		return strconv.Quote(v.AsString()), true
	case values.TypeObject:
		obj := v.AsObject()
		if obj.Call != nil {
			return "", false
		}
		if seen[obj] {
			return "", false
		}
		seen[obj] = true
		defer delete(seen, obj)
		if ad, ok := arrayData(obj); ok {
			parts := make([]string, len(ad.Elements))
			for i, el := range ad.Elements {
				s, ok := stringifyJSON(el, seen)
				if !ok {
					s = "null"
				}
				parts[i] = s
			}
			return "[" + strings.Join(parts, ",") + "]", true
		}
		var parts []string
		for _, key := range obj.OwnPropertyKeys() {
			if key.IsSym {
				continue
			}
			d, ok := obj.GetOwnProperty(key)
			if !ok || !d.Enumerable || d.IsAccessor {
				continue
			}
			s, ok := stringifyJSON(d.Value, seen)
			if !ok {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s:%s", strconv.Quote(key.Str), s))
		}
		return "{" + strings.Join(parts, ",") + "}", true
	}
	return "", false
}

const maxFinite = 1.7976931348623157e308

func callableOrNil(v values.Value) *values.Object {
	fn := v.AsObject()
	if fn == nil || fn.Call == nil {
		return nil
	}
	return fn
}

func arrayData(obj *values.Object) (*values.ArrayData, bool) {
	if obj == nil {
		return nil, false
	}
	ad, ok := obj.Internal.(*values.ArrayData)
	return ad, ok
}

// nativeFn wraps a Go closure as a callable object in this Context's
// realm.
func (c *Context) nativeFn(name string, fn values.NativeFunc) *values.Object {
	obj := values.NewObject(c.VM.FunctionProto)
	obj.Class = "Function"
	obj.Call = fn
	if name != "" {
		obj.SetData(values.StringKey("name"), values.String(name))
	}
	return obj
}
