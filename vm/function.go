package vm

import (
	"github.com/wudi/esprel/environment"
	"github.com/wudi/esprel/registry"
	"github.com/wudi/esprel/runtime"
	"github.com/wudi/esprel/values"
)

// FunctionData is the Internal payload of every Object whose Class is
// "Function" and whose code is a compiled CodeBlock rather than a Go
// native implementation — the closure case of function instantiation
// (the other case, native builtins, only ever populate
// Object.Call/Construct directly and leave Internal nil).
type FunctionData struct {
	Block   *registry.CodeBlock
	Env     *environment.Environment
	IsArrow bool

	// HomeObject anchors `super.prop` lookups inside a method body to
	// the object literal/class prototype it was defined on (ECMA-262
	// §9.4.5 MakeMethod), independent of whatever `this` the method is
	// eventually invoked with.
	HomeObject *values.Object

	// BoundThis/BoundNewTarget (flagged by HasBoundThis) are set for an
	// arrow function closure: the lexical `this`/new.target it captured at creation
	// time rather than at call time (ECMA-262 §10.2.1.2 OrdinaryCallBindThis
	// skips this rebinding entirely for arrows).
	BoundThis      values.Value
	BoundNewTarget *values.Object
	HasBoundThis   bool

	Generator bool
	Async     bool
}

// makeFunctionObject builds the Object for a compiled closure: block
// closes over env, and Call/Construct both funnel into the VM's normal
// frame-running path so native callers (Array iteration, promise
// reactions, Reflect.apply) don't need a separate invocation path.
func (vm *VM) makeFunctionObject(block *registry.CodeBlock, env *environment.Environment, isArrow bool, homeObject *values.Object) *values.Object {
	fn := values.NewObject(vm.FunctionProto)
	fn.Class = "Function"
	data := &FunctionData{Block: block, Env: env, IsArrow: isArrow, HomeObject: homeObject, Generator: block.IsGenerator, Async: block.IsAsync}
	if isArrow {
		thisEnv := environment.ThisEnvironment(env)
		if thisEnv != nil {
			data.BoundThis = thisEnv.ThisValue
			data.BoundNewTarget = thisEnv.NewTarget
			data.HasBoundThis = true
		}
	}
	fn.Internal = data
	fn.SetData(values.StringKey("name"), values.String(block.Name))
	fn.SetData(values.StringKey("length"), values.Int(int64(block.NumParams)))

	fn.Call = func(this values.Value, args []values.Value) (values.Value, error) {
		return vm.callFunction(fn, data, this, nil, args)
	}
	if !isArrow && !data.Generator && !data.Async {
		proto := values.NewObject(vm.ObjectProto)
		proto.SetData(values.StringKey("constructor"), values.ObjectValue(fn))
		fn.DefineOwnProperty(values.StringKey("prototype"), values.PropertyDescriptor{Value: values.ObjectValue(proto), Writable: true})
		fn.Construct = func(args []values.Value, newTarget *values.Object) (values.Value, error) {
			return vm.construct(fn, data, args, newTarget)
		}
	}
	return fn
}

// callFunction runs an ordinary (non-generator, non-async) or the
// synchronous "start" portion of a generator/async function/closure.
func (vm *VM) callFunction(fnObj *values.Object, data *FunctionData, this values.Value, newTarget *values.Object, args []values.Value) (values.Value, error) {
	if data.Generator {
		if data.Async {
			return values.ObjectValue(vm.newAsyncGeneratorObject(fnObj, data, this, args)), nil
		}
		return values.ObjectValue(vm.newGeneratorObject(fnObj, data, this, args)), nil
	}
	callThis := this
	hasThis := !data.IsArrow
	if data.IsArrow {
		callThis = data.BoundThis
		newTarget = data.BoundNewTarget
	}
	fnEnv := environment.NewFunction(data.Env, callThis, hasThis, newTarget, fnObj)
	fnEnv.HomeObject = data.HomeObject
	declareLocals(fnEnv, data.Block)
	if !data.IsArrow {
		fnEnv.DeclareMutable("arguments", true)
		fnEnv.InitializeBinding("arguments", values.ObjectValue(values.NewArray(vm.ObjectProto, append([]values.Value{}, args...))))
	}
	if data.Async {
		return vm.runAsyncFunction(data.Block, fnEnv, callThis, newTarget, args)
	}
	return vm.runFunctionBody(data.Block, fnEnv, callThis, newTarget, args)
}

// construct implements OrdinaryCreateFromConstructor + [[Construct]]
// (ECMA-262 §10.2.2): a fresh object is created with the function's
// "prototype" property as its [[Prototype]], bound as `this`; if the
// body explicitly returns an object, that supersedes the created one;
// otherwise the function environment's final `this` is returned, which
// a derived constructor's super() call has rebound.
func (vm *VM) construct(fnObj *values.Object, data *FunctionData, args []values.Value, newTarget *values.Object) (values.Value, error) {
	if newTarget == nil {
		newTarget = fnObj
	}
	protoVal, _, _ := newTarget.Get(values.StringKey("prototype"))
	proto := vm.ObjectProto
	if p := protoVal.AsObject(); p != nil {
		proto = p
	}
	inst := values.NewObject(proto)
	if data.Generator || data.Async || data.IsArrow {
		result, err := vm.callFunction(fnObj, data, values.ObjectValue(inst), newTarget, args)
		if err != nil || result.IsObject() {
			return result, err
		}
		return values.ObjectValue(inst), nil
	}
	fnEnv := environment.NewFunction(data.Env, values.ObjectValue(inst), true, newTarget, fnObj)
	fnEnv.HomeObject = data.HomeObject
	declareLocals(fnEnv, data.Block)
	fnEnv.DeclareMutable("arguments", true)
	fnEnv.InitializeBinding("arguments", values.ObjectValue(values.NewArray(vm.ObjectProto, append([]values.Value{}, args...))))
	result, err := vm.runFunctionBody(data.Block, fnEnv, values.ObjectValue(inst), newTarget, args)
	if err != nil {
		return values.Undefined, err
	}
	if result.IsObject() {
		return result, nil
	}
	if fnEnv.ThisValue.IsObject() {
		return fnEnv.ThisValue, nil
	}
	return values.ObjectValue(inst), nil
}

// runFunctionBody pushes a fresh Frame for block/env and drains it,
// translating a normal OP_RETURN/OP_RETURN_UNDEFINED completion into a
// return value and an uncaught OP_THROW into a Go error.
func (vm *VM) runFunctionBody(block *registry.CodeBlock, env *environment.Environment, this values.Value, newTarget *values.Object, args []values.Value) (values.Value, error) {
	fr := NewFrame(block, env, this, newTarget)
	if err := vm.bindParameters(fr, block, args); err != nil {
		return values.Undefined, err
	}
	vm.stack.Push(fr)
	defer vm.stack.Pop()
	return vm.run(fr)
}

// declareLocals creates the function environment's parameter/var/let
// slots per the compiler's LocalBindings table, the runtime half of
// FunctionDeclarationInstantiation (ECMA-262 §10.2.11): var-like names
// hoist initialized to undefined, lexical names enter their TDZ.
func declareLocals(env *environment.Environment, block *registry.CodeBlock) {
	for _, lb := range block.LocalBindings {
		switch lb.Kind {
		case registry.LocalVar:
			env.DeclareMutable(lb.Name, true)
		case registry.LocalLet:
			env.DeclareMutable(lb.Name, false)
		case registry.LocalConst:
			env.DeclareImmutable(lb.Name)
		}
	}
}

// bindParameters pushes args onto fr's operand stack in the order the
// compiler's parameter prologue expects to pop them: the first formal
// parameter must be the first value popped, so arguments are pushed in
// reverse. A formal marked IsRest receives a single Array of every
// actual argument from its position onward instead of one positional
// value.
func (vm *VM) bindParameters(fr *Frame, block *registry.CodeBlock, args []values.Value) error {
	params := block.Parameters
	n := len(params)
	values_ := make([]values.Value, n)
	for i := 0; i < n; i++ {
		if params[i].IsRest {
			rest := []values.Value{}
			if i < len(args) {
				rest = append(rest, args[i:]...)
			}
			values_[i] = values.ObjectValue(values.NewArray(vm.ObjectProto, rest))
			continue
		}
		if i < len(args) {
			values_[i] = args[i]
		} else {
			values_[i] = values.Undefined
		}
	}
	for i := n - 1; i >= 0; i-- {
		fr.push(values_[i])
	}
	return nil
}

// ThrowTypeError is the convenience every internal VM check uses to
// raise a native TypeError tied to this VM's realm prototype, so
// `instanceof TypeError` works on engine-raised errors exactly like
// ones a script constructs itself.
func (vm *VM) ThrowTypeError(format string, args ...interface{}) error {
	return runtime.Throw(runtime.TypeError, vm.ErrorProtos[runtime.TypeError], format, args...)
}

func (vm *VM) ThrowRangeError(format string, args ...interface{}) error {
	return runtime.Throw(runtime.RangeError, vm.ErrorProtos[runtime.RangeError], format, args...)
}

func (vm *VM) ThrowReferenceError(format string, args ...interface{}) error {
	return runtime.Throw(runtime.ReferenceError, vm.ErrorProtos[runtime.ReferenceError], format, args...)
}

func (vm *VM) ThrowSyntaxError(format string, args ...interface{}) error {
	return runtime.Throw(runtime.SyntaxError, vm.ErrorProtos[runtime.SyntaxError], format, args...)
}
