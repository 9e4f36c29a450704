package vm

import (
	"github.com/wudi/esprel/environment"
	"github.com/wudi/esprel/opcodes"
	"github.com/wudi/esprel/runtime"
	"github.com/wudi/esprel/values"
)

// execOne decodes and runs a single instruction, returning how the
// dispatch loop in run should continue: a switchboard over per-concern
// execXxx helpers, plus the call/control-flow/binding cases that don't
// have their own file because they need direct access to fr.IP and
// the call stack.
func (vm *VM) execOne(fr *Frame, inst opcodes.Instruction) (stepResult, error) {
	switch inst.Op {
	case opcodes.OP_NOP:
		return next, nil
	case opcodes.OP_LOAD_CONST:
		fr.push(fr.Block.Constants[inst.Operand])
		return next, nil
	case opcodes.OP_LOAD_UNDEFINED:
		fr.push(values.Undefined)
		return next, nil
	case opcodes.OP_LOAD_NULL:
		fr.push(values.Null)
		return next, nil
	case opcodes.OP_LOAD_TRUE:
		fr.push(values.True)
		return next, nil
	case opcodes.OP_LOAD_FALSE:
		fr.push(values.False)
		return next, nil
	case opcodes.OP_LOAD_THIS:
		fr.push(fr.This)
		return next, nil
	case opcodes.OP_DUP:
		fr.push(fr.top())
		return next, nil
	case opcodes.OP_POP:
		fr.pop()
		return next, nil
	case opcodes.OP_SWAP:
		n := len(fr.Stack)
		fr.Stack[n-1], fr.Stack[n-2] = fr.Stack[n-2], fr.Stack[n-1]
		return next, nil
	case opcodes.OP_ROT3:
		n := len(fr.Stack)
		fr.Stack[n-3], fr.Stack[n-2], fr.Stack[n-1] = fr.Stack[n-2], fr.Stack[n-1], fr.Stack[n-3]
		return next, nil
	case opcodes.OP_ROT4:
		n := len(fr.Stack)
		fr.Stack[n-4], fr.Stack[n-3], fr.Stack[n-2], fr.Stack[n-1] = fr.Stack[n-3], fr.Stack[n-2], fr.Stack[n-1], fr.Stack[n-4]
		return next, nil
	}

	switch {
	case inst.Op >= opcodes.OP_ADD && inst.Op <= opcodes.OP_USHR:
		return next, vm.execArithmetic(fr, inst.Op)
	case inst.Op >= opcodes.OP_EQ && inst.Op <= opcodes.OP_TYPEOF:
		return next, vm.execComparison(fr, inst.Op)
	case inst.Op >= opcodes.OP_GET_PROPERTY && inst.Op <= opcodes.OP_SET_SUPER_PROPERTY:
		return next, vm.execProperty(fr, inst)
	case inst.Op >= opcodes.OP_GET_ITERATOR && inst.Op <= opcodes.OP_ITER_NEXT_RAW:
		return next, vm.execIteration(fr, inst.Op)
	}

	switch inst.Op {
	case opcodes.OP_GET_BINDING, opcodes.OP_SET_BINDING, opcodes.OP_INIT_BINDING,
		opcodes.OP_GET_GLOBAL, opcodes.OP_SET_GLOBAL, opcodes.OP_DELETE_BINDING,
		opcodes.OP_TYPEOF_BINDING:
		return next, vm.execBinding(fr, inst)

	case opcodes.OP_NEW_OBJECT, opcodes.OP_NEW_ARRAY, opcodes.OP_ARRAY_PUSH,
		opcodes.OP_ARRAY_SPREAD, opcodes.OP_OBJECT_SET, opcodes.OP_OBJECT_SPREAD,
		opcodes.OP_MAKE_FUNCTION, opcodes.OP_MAKE_ARROW, opcodes.OP_MAKE_CLASS,
		opcodes.OP_MAKE_GENERATOR, opcodes.OP_TEMPLATE_CONCAT, opcodes.OP_TAGGED_TEMPLATE:
		return next, vm.execConstruct(fr, inst)

	case opcodes.OP_CALL, opcodes.OP_CALL_SPREAD, opcodes.OP_NEW, opcodes.OP_NEW_SPREAD,
		opcodes.OP_CALL_OPTIONAL, opcodes.OP_SUPER_CALL:
		return vm.execCall(fr, inst)

	case opcodes.OP_CALL_EVAL:
		args := fr.popN(int(inst.Operand))
		src := argOrUndefined(args, 0)
		// eval of a non-string returns the value unchanged (ECMA-262
		// §19.2.1 step 2).
		if src.Type != values.TypeString {
			fr.push(src)
			return next, nil
		}
		result, err := vm.callEval(fr, src.AsString())
		if err != nil {
			return next, err
		}
		fr.push(result)
		return next, nil

	case opcodes.OP_RETURN:
		return stepResult{kind: stepReturn, value: fr.pop()}, nil
	case opcodes.OP_RETURN_UNDEFINED:
		return stepResult{kind: stepReturn, value: values.Undefined}, nil
	case opcodes.OP_THROW:
		return next, runtime.NewException(fr.pop(), vm.captureStack())

	case opcodes.OP_JUMP:
		fr.IP = int(inst.Operand)
		return stepResult{kind: stepJumped}, nil
	case opcodes.OP_JUMP_IF_TRUE:
		if fr.pop().ToBoolean() {
			fr.IP = int(inst.Operand)
			return stepResult{kind: stepJumped}, nil
		}
		return next, nil
	case opcodes.OP_JUMP_IF_FALSE:
		if !fr.pop().ToBoolean() {
			fr.IP = int(inst.Operand)
			return stepResult{kind: stepJumped}, nil
		}
		return next, nil
	case opcodes.OP_JUMP_IF_NULLISH:
		if fr.pop().IsNullish() {
			fr.IP = int(inst.Operand)
			return stepResult{kind: stepJumped}, nil
		}
		return next, nil
	case opcodes.OP_JUMP_IF_NOT_NULLISH:
		if !fr.pop().IsNullish() {
			fr.IP = int(inst.Operand)
			return stepResult{kind: stepJumped}, nil
		}
		return next, nil
	case opcodes.OP_LOOP_HINT:
		return next, nil

	case opcodes.OP_PUSH_TRY, opcodes.OP_PUSH_FINALLY:
		fr.tryStack = append(fr.tryStack, activeHandler{
			handler:    fr.Block.Handlers[inst.Operand],
			index:      int(inst.Operand),
			savedDepth: len(fr.Stack),
			savedEnv:   fr.Env,
		})
		return next, nil
	case opcodes.OP_POP_TRY, opcodes.OP_POP_FINALLY:
		// Pop through any stale entries a break/continue jumped past
		// without reaching their own POP instruction.
		for n := len(fr.tryStack); n > 0; n-- {
			entry := fr.tryStack[n-1]
			fr.tryStack = fr.tryStack[:n-1]
			if entry.index == int(inst.Operand) {
				break
			}
		}
		return next, nil

	case opcodes.OP_ENTER_BLOCK_SCOPE:
		if inst.Operand == -1 {
			obj := fr.pop().AsObject()
			fr.Env = environment.NewObjectEnv(fr.Env, obj)
			return next, nil
		}
		tmpl := fr.Block.Scopes[inst.Operand]
		env := environment.NewDeclarative(fr.Env)
		for _, b := range tmpl.Bindings {
			if b.Mutable {
				env.DeclareMutable(b.Name, false)
			} else {
				env.DeclareImmutable(b.Name)
			}
		}
		fr.Env = env
		return next, nil
	case opcodes.OP_EXIT_BLOCK_SCOPE:
		fr.Env = fr.Env.Outer
		return next, nil

	case opcodes.OP_YIELD:
		return stepResult{kind: stepYield, value: fr.pop()}, nil
	case opcodes.OP_YIELD_STAR:
		return vm.execYieldStar(fr)
	case opcodes.OP_AWAIT:
		return stepResult{kind: stepAwait, value: fr.pop()}, nil
	case opcodes.OP_GENERATOR_RETURN:
		return stepResult{kind: stepReturn, value: fr.pop()}, nil

	case opcodes.OP_IMPORT:
		spec := fr.pop().ToStringValue()
		if vm.DynamicImport == nil {
			return next, vm.ThrowTypeError("dynamic import is not supported by this host")
		}
		fr.push(values.ObjectValue(vm.DynamicImport(spec)))
		return next, nil
	}
	return next, vm.ThrowTypeError("unsupported opcode %s", inst.Op)
}

// execYieldStar implements the first step of `yield* iterable`
// (ECMA-262 §15.5.5 Yield/Delegating Yield): resolve iterable's
// iterator and pull its first result entirely in native code. A
// non-empty first result suspends the generator exactly like an
// ordinary yield, with fr.gen.delegate recording the sub-iterator so
// every subsequent external .next() call — handled in generator.go,
// not here — forwards straight to it without re-entering this opcode;
// an external .throw() or .return() clears the delegate and acts on
// the generator's own frame instead. Reaching this instruction again only
// happens once the delegate reports done, and the generator driver
// advances past it the same way a finished ordinary yield would.
func (vm *VM) execYieldStar(fr *Frame) (stepResult, error) {
	iterableVal := fr.pop()
	it, err := vm.getIterator(iterableVal, false)
	if err != nil {
		return next, err
	}
	value, done, err := vm.iteratorNext(it)
	if err != nil {
		return next, err
	}
	if done {
		fr.push(value)
		return next, nil
	}
	if fr.gen != nil {
		fr.gen.delegate = it
	}
	return stepResult{kind: stepYield, value: value}, nil
}

func (vm *VM) captureStack() []runtime.StackFrame {
	return nil
}

// execBinding handles every identifier-binding opcode: resolution always walks the live environment
// chain by name. The compiler's BindingLocator.Depth/Index describe a
// static slot address for a future register-indexed fast path; this
// engine's environment.Environment stores bindings in a per-record map
// keyed by name, so every locator falls back to the same
// environment.Resolve walk regardless of whether the compiler marked
// it Dynamic.
func (vm *VM) execBinding(fr *Frame, inst opcodes.Instruction) error {
	loc := fr.Block.Locators[inst.Operand]

	if loc.Name == "new.target" {
		if inst.Op != opcodes.OP_GET_BINDING {
			return vm.ThrowSyntaxError("invalid assignment to new.target")
		}
		env := environment.ThisEnvironment(fr.Env)
		if env == nil || env.NewTarget == nil {
			fr.push(values.Undefined)
			return nil
		}
		fr.push(values.ObjectValue(env.NewTarget))
		return nil
	}

	switch inst.Op {
	case opcodes.OP_GET_BINDING, opcodes.OP_GET_GLOBAL:
		env, ok := environment.Resolve(fr.Env, loc.Name)
		if !ok {
			return vm.ThrowReferenceError("%s is not defined", loc.Name)
		}
		v, err := env.GetBindingValue(loc.Name)
		if err != nil {
			return adaptEnvError(vm, err)
		}
		fr.push(v)
		return nil
	case opcodes.OP_SET_BINDING, opcodes.OP_SET_GLOBAL:
		// Consumes the value; compileAssignmentTarget DUPs beforehand
		// when the enclosing expression needs the assigned value as its
		// result.
		v := fr.pop()
		env, ok := environment.Resolve(fr.Env, loc.Name)
		if !ok {
			// Sloppy-mode implicit global creation (ECMA-262 §9.1.1.4.15
			// PutValue on an unresolvable reference, non-strict branch).
			if fr.Block.Strict {
				return vm.ThrowReferenceError("%s is not defined", loc.Name)
			}
			vm.GlobalEnv.DeclareMutable(loc.Name, true)
			_ = vm.GlobalEnv.InitializeBinding(loc.Name, v)
			return nil
		}
		if err := env.SetMutableBinding(loc.Name, v); err != nil {
			return adaptEnvError(vm, err)
		}
		return nil
	case opcodes.OP_INIT_BINDING:
		// Consumes its operand: destructuring emits INIT_BINDING with the
		// source iterator/object still beneath the value, so the value
		// must not linger above it. The slot may live above the current
		// env (a `var` initialized inside a block writes the function
		// record's hoisted slot), so resolution walks the chain; a name
		// declared nowhere lands on the current record, which at script
		// top level is the global object environment.
		v := fr.pop()
		env, ok := environment.Resolve(fr.Env, loc.Name)
		if !ok {
			// Undeclared anywhere: a script-top-level var landing on the
			// global object environment.
			env = environment.VarScopeOf(fr.Env)
		}
		if err := env.InitializeBinding(loc.Name, v); err != nil {
			return vm.ThrowSyntaxError("%s", err.Error())
		}
		return nil
	case opcodes.OP_DELETE_BINDING:
		// An unresolvable reference reports true (ECMA-262 §13.5.1.2).
		// Any binding that resolves reports false and is left in place;
		// this includes object-environment (`with`/global object)
		// bindings, which are not deleted either.
		if _, ok := environment.Resolve(fr.Env, loc.Name); !ok {
			fr.push(values.True)
			return nil
		}
		fr.push(values.False)
		return nil
	case opcodes.OP_TYPEOF_BINDING:
		env, ok := environment.Resolve(fr.Env, loc.Name)
		if !ok {
			fr.push(values.String("undefined"))
			return nil
		}
		v, err := env.GetBindingValue(loc.Name)
		if err != nil {
			// typeof on a TDZ binding still throws (ECMA-262 §13.5.3,
			// unlike an unresolvable reference which yields "undefined").
			return adaptEnvError(vm, err)
		}
		fr.push(values.String(vm.typeOf(v)))
		return nil
	}
	return vm.ThrowTypeError("unsupported binding opcode %s", inst.Op)
}

func adaptEnvError(vm *VM, err error) error {
	if re, ok := err.(*environment.ReferenceError); ok {
		if re.TDZ {
			return vm.ThrowReferenceError("Cannot access '%s' before initialization", re.Name)
		}
		return vm.ThrowReferenceError("%s is not defined", re.Name)
	}
	return vm.ThrowTypeError("%s", err.Error())
}

// execCall handles the call/new opcode group: every path funnels through vm.Call/vm.Construct so a
// compiled closure, a native builtin, and a bound function are all
// invoked identically.
func (vm *VM) execCall(fr *Frame, inst opcodes.Instruction) (stepResult, error) {
	switch inst.Op {
	case opcodes.OP_CALL, opcodes.OP_CALL_OPTIONAL:
		argc := int(inst.Operand)
		args := fr.popN(argc)
		callee := fr.pop()
		this := fr.pop()
		if inst.Op == opcodes.OP_CALL_OPTIONAL && callee.IsNullish() {
			fr.push(values.Undefined)
			return next, nil
		}
		fn := callee.AsObject()
		if fn == nil || fn.Call == nil {
			return next, vm.ThrowTypeError("value is not a function")
		}
		result, err := fn.Call(this, args)
		if err != nil {
			return next, err
		}
		fr.push(result)
		return next, nil
	case opcodes.OP_CALL_SPREAD:
		arr := fr.pop().AsObject()
		callee := fr.pop()
		this := fr.pop()
		fn := callee.AsObject()
		if fn == nil || fn.Call == nil {
			return next, vm.ThrowTypeError("value is not a function")
		}
		result, err := fn.Call(this, spreadArgs(arr))
		if err != nil {
			return next, err
		}
		fr.push(result)
		return next, nil
	case opcodes.OP_NEW, opcodes.OP_NEW_SPREAD:
		var args []values.Value
		if inst.Op == opcodes.OP_NEW_SPREAD {
			args = spreadArgs(fr.pop().AsObject())
		} else {
			args = fr.popN(int(inst.Operand))
		}
		calleeVal := fr.pop()
		callee := calleeVal.AsObject()
		if callee == nil || callee.Construct == nil {
			return next, vm.ThrowTypeError("value is not a constructor")
		}
		result, err := callee.Construct(args, callee)
		if err != nil {
			return next, err
		}
		fr.push(result)
		return next, nil
	case opcodes.OP_SUPER_CALL:
		argc := int(inst.Operand)
		args := fr.popN(argc)
		superCtor := environment.SuperConstructorOf(fr.Env)
		if superCtor == nil || superCtor.Construct == nil {
			return next, vm.ThrowTypeError("'super' keyword unexpected here")
		}
		newTarget := fr.NewTarget
		if newTarget == nil {
			newTarget = superCtor
		}
		result, err := superCtor.Construct(args, newTarget)
		if err != nil {
			return next, err
		}
		inst := result.AsObject()
		fr.This = result
		if env := environment.ThisEnvironment(fr.Env); env != nil {
			env.ThisValue = result
		}
		if inst != nil {
			if initFields := environment.InstanceFieldInitOf(fr.Env); initFields != nil {
				if err := initFields(inst); err != nil {
					return next, err
				}
			}
		}
		fr.push(result)
		return next, nil
	}
	return next, vm.ThrowTypeError("unsupported call opcode %s", inst.Op)
}

func spreadArgs(arr *values.Object) []values.Value {
	if arr == nil {
		return nil
	}
	ad, ok := arr.Internal.(*values.ArrayData)
	if !ok {
		return nil
	}
	return append([]values.Value{}, ad.Elements...)
}

// execConstruct handles object/array/function/class/template
// literal construction opcodes.
func (vm *VM) execConstruct(fr *Frame, inst opcodes.Instruction) error {
	switch inst.Op {
	case opcodes.OP_NEW_OBJECT:
		fr.push(values.ObjectValue(values.NewObject(vm.ObjectProto)))
		return nil
	case opcodes.OP_NEW_ARRAY:
		fr.push(values.ObjectValue(values.NewArray(vm.ArrayProto, nil)))
		return nil
	case opcodes.OP_ARRAY_PUSH:
		v := fr.pop()
		arr := fr.top().AsObject()
		ad := arr.Internal.(*values.ArrayData)
		ad.Elements = append(ad.Elements, v)
		arr.DefineOwnProperty(values.StringKey("length"), values.PropertyDescriptor{Value: values.Int(int64(len(ad.Elements))), Writable: true})
		return nil
	case opcodes.OP_ARRAY_SPREAD:
		iterable := fr.pop()
		arr := fr.top().AsObject()
		ad := arr.Internal.(*values.ArrayData)
		it, err := vm.getIterator(iterable, false)
		if err != nil {
			return err
		}
		for {
			v, done, err := vm.iteratorNext(it)
			if err != nil {
				return err
			}
			if done {
				break
			}
			ad.Elements = append(ad.Elements, v)
		}
		arr.DefineOwnProperty(values.StringKey("length"), values.PropertyDescriptor{Value: values.Int(int64(len(ad.Elements))), Writable: true})
		return nil
	case opcodes.OP_OBJECT_SET:
		keyVal := fr.pop()
		v := fr.pop()
		obj := fr.top().AsObject()
		key, err := vm.toPropertyKeyV(keyVal)
		if err != nil {
			return err
		}
		switch inst.Operand {
		case 1, 2: // getter / setter (compilePropertyKeyValue: accessor function, then key)
			fn := v.AsObject()
			existing, _ := obj.GetOwnProperty(key)
			desc := values.PropertyDescriptor{IsAccessor: true, Enumerable: true, Configurable: true}
			if existing != nil && existing.IsAccessor {
				desc.Get, desc.Set = existing.Get, existing.Set
			}
			if inst.Operand == 1 {
				desc.Get = fn
			} else {
				desc.Set = fn
			}
			obj.DefineOwnProperty(key, desc)
		default:
			obj.SetData(key, v)
		}
		return nil
	case opcodes.OP_OBJECT_SPREAD:
		src := fr.pop().AsObject()
		obj := fr.top().AsObject()
		if src == nil {
			return nil
		}
		for _, k := range src.OwnPropertyKeys() {
			if d, ok := src.GetOwnProperty(k); ok && d.Enumerable {
				v, err := vm.getPropertyOn(src, values.ObjectValue(src), k)
				if err != nil {
					return err
				}
				obj.SetData(k, v)
			}
		}
		return nil
	case opcodes.OP_MAKE_FUNCTION:
		cb := fr.Block.ChildBlocks[inst.Operand]
		fr.push(values.ObjectValue(vm.makeFunctionObject(cb, fr.Env, false, environment.HomeObjectOf(fr.Env))))
		return nil
	case opcodes.OP_MAKE_ARROW:
		cb := fr.Block.ChildBlocks[inst.Operand]
		fr.push(values.ObjectValue(vm.makeFunctionObject(cb, fr.Env, true, nil)))
		return nil
	case opcodes.OP_MAKE_GENERATOR:
		// Unused by the compiler: generator-ness is a CodeBlock flag
		// (IsGenerator) consulted at call time (vm/function.go's
		// callFunction), not a construction-time opcode.
		return nil
	case opcodes.OP_MAKE_CLASS:
		tmpl := fr.Block.ClassTemplates[inst.Operand]
		var superCtor *values.Object
		if tmpl.HasSuperClass {
			superCtor = fr.pop().AsObject()
		}
		ctor, err := vm.instantiateClass(fr, tmpl, superCtor)
		if err != nil {
			return err
		}
		fr.push(values.ObjectValue(ctor))
		return nil
	case opcodes.OP_TEMPLATE_CONCAT:
		info := fr.Block.Templates[inst.Operand]
		exprs := fr.popN(len(info.Cooked) - 1)
		var sb []byte
		for i, cooked := range info.Cooked {
			sb = append(sb, cooked...)
			if i < len(exprs) {
				sb = append(sb, exprs[i].ToStringValue()...)
			}
		}
		fr.push(values.String(string(sb)))
		return nil
	case opcodes.OP_TAGGED_TEMPLATE:
		info := fr.Block.Templates[inst.Operand]
		exprCount := len(info.Cooked) - 1
		exprs := fr.popN(exprCount)
		strings := values.NewArray(vm.ArrayProto, make([]values.Value, len(info.Cooked)))
		raw := values.NewArray(vm.ArrayProto, make([]values.Value, len(info.Raw)))
		stringsAD := strings.Internal.(*values.ArrayData)
		rawAD := raw.Internal.(*values.ArrayData)
		for i, c := range info.Cooked {
			stringsAD.Elements[i] = values.String(c)
		}
		for i, r := range info.Raw {
			rawAD.Elements[i] = values.String(r)
		}
		strings.SetData(values.StringKey("raw"), values.ObjectValue(raw))
		callArgs := make([]values.Value, 0, 1+exprCount)
		callArgs = append(callArgs, values.ObjectValue(strings))
		callArgs = append(callArgs, exprs...)
		tag := fr.pop()
		this := fr.pop()
		fn := tag.AsObject()
		if fn == nil || fn.Call == nil {
			return vm.ThrowTypeError("tag is not a function")
		}
		result, err := fn.Call(this, callArgs)
		if err != nil {
			return err
		}
		fr.push(result)
		return nil
	}
	return vm.ThrowTypeError("unsupported construct opcode %s", inst.Op)
}
