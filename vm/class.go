package vm

import (
	"github.com/wudi/esprel/environment"
	"github.com/wudi/esprel/registry"
	"github.com/wudi/esprel/values"
)

// instantiateClass implements ClassDefinitionEvaluation (ECMA-262
// §15.7.14): build the constructor object, wire its prototype chain to
// the superclass (or Object.prototype), install instance/static
// methods and private names, and run static field initializers/static
// blocks synchronously before returning the constructor.
func (vm *VM) instantiateClass(fr *Frame, tmpl *registry.ClassTemplate, superCtor *values.Object) (*values.Object, error) {
	var protoParent *values.Object = vm.ObjectProto
	if tmpl.HasSuperClass {
		if superCtor == nil {
			protoParent = nil
		} else if pv, _, ok := superCtor.Get(values.StringKey("prototype")); ok {
			protoParent = pv.AsObject()
		}
	}
	proto := values.NewObject(protoParent)

	classEnv := environment.NewDeclarative(fr.Env)
	classEnv.HomeObject = proto
	if tmpl.IsDerivedClass {
		classEnv.SuperConstructor = superCtor
	}

	var ctor *values.Object
	if tmpl.Constructor != nil {
		ctor = vm.makeFunctionObject(tmpl.Constructor, classEnv, false, proto)
	} else {
		ctor = values.NewObject(vm.FunctionProto)
		ctor.Class = "Function"
	}
	ctor.SetData(values.StringKey("name"), values.String(tmpl.Name))
	ctor.SetData(values.StringKey("length"), values.Int(int64(len(tmpl.InstanceMethods))))
	ctor.DefineOwnProperty(values.StringKey("prototype"), values.PropertyDescriptor{Value: values.ObjectValue(proto)})
	proto.DefineOwnProperty(values.StringKey("constructor"), values.PropertyDescriptor{Value: values.ObjectValue(ctor), Writable: true, Configurable: true})
	if tmpl.HasSuperClass && superCtor != nil {
		ctor.Prototype = superCtor
	}

	instanceFieldInit := vm.makeFieldRunner(tmpl.InstanceFields, classEnv)
	classEnv.InstanceFieldInit = func(this *values.Object) error { return instanceFieldInit(this) }

	if err := vm.installClassMembers(tmpl, classEnv, proto, ctor); err != nil {
		return nil, err
	}

	ctor.Call = func(values.Value, []values.Value) (values.Value, error) {
		return values.Undefined, vm.ThrowTypeError("Class constructor %s cannot be invoked without 'new'", tmpl.Name)
	}
	vm.wireClassConstruct(tmpl, ctor, proto, superCtor, instanceFieldInit)

	// Static fields/static blocks run once, synchronously, in template
	// order (fields then blocks — class elements interleave them by
	// source position, which this ClassTemplate does not record, so the
	// two groups run back-to-back rather than interleaved).
	staticRunner := vm.makeFieldRunner(tmpl.StaticFields, classEnv)
	if err := staticRunner(ctor); err != nil {
		return nil, err
	}
	for _, block := range tmpl.StaticBlocks {
		blockEnv := environment.NewFunction(classEnv, values.ObjectValue(ctor), true, nil, ctor)
		blockEnv.HomeObject = ctor
		if _, err := vm.runFunctionBody(block, blockEnv, values.ObjectValue(ctor), nil, nil); err != nil {
			return nil, err
		}
	}

	return ctor, nil
}

// wireClassConstruct installs [[Construct]]: a base class initializes
// instance fields immediately after OrdinaryCreateFromConstructor and
// before the constructor body runs; a derived class defers field
// initialization until its constructor body's super() call returns
// (ECMA-262 §10.2.1.1 steps 7-8), which execCall's OP_SUPER_CALL
// handler drives via environment.InstanceFieldInitOf.
func (vm *VM) wireClassConstruct(tmpl *registry.ClassTemplate, ctor, proto, superCtor *values.Object, instanceFieldInit func(*values.Object) error) {
	if tmpl.IsDerivedClass {
		if tmpl.Constructor == nil {
			ctor.Construct = func(args []values.Value, newTarget *values.Object) (values.Value, error) {
				if superCtor == nil || superCtor.Construct == nil {
					return values.Undefined, vm.ThrowTypeError("'super' keyword unexpected here")
				}
				result, err := superCtor.Construct(args, newTarget)
				if err != nil {
					return values.Undefined, err
				}
				if inst := result.AsObject(); inst != nil {
					if err := instanceFieldInit(inst); err != nil {
						return values.Undefined, err
					}
				}
				return result, nil
			}
		}
		// Explicit derived constructor: the generic Construct closure
		// makeFunctionObject already installed calls vm.construct, which
		// eagerly creates a placeholder `this` from newTarget's prototype
		// (already repointed at proto above) and runs the body; the body's
		// own OP_SUPER_CALL overwrites fr.This with super()'s result and
		// runs field initializers at that point, so the placeholder is
		// simply discarded.
		return
	}

	data, _ := ctor.Internal.(*FunctionData)
	ctor.Construct = func(args []values.Value, newTarget *values.Object) (values.Value, error) {
		if newTarget == nil {
			newTarget = ctor
		}
		instProto := proto
		if pv, _, ok := newTarget.Get(values.StringKey("prototype")); ok {
			if p := pv.AsObject(); p != nil {
				instProto = p
			}
		}
		inst := values.NewObject(instProto)
		if err := instanceFieldInit(inst); err != nil {
			return values.Undefined, err
		}
		if data == nil {
			return values.ObjectValue(inst), nil
		}
		result, err := vm.callFunction(ctor, data, values.ObjectValue(inst), newTarget, args)
		if err != nil {
			return values.Undefined, err
		}
		if result.IsObject() {
			return result, nil
		}
		return values.ObjectValue(inst), nil
	}
}

// installClassMembers installs every method/accessor onto the
// prototype (instance members) or the constructor object (static
// members), keyed by name or, for Private members, by the "#name"
// convention properties.go's OP_GET_PRIVATE/OP_SET_PRIVATE walk.
func (vm *VM) installClassMembers(tmpl *registry.ClassTemplate, classEnv *environment.Environment, proto, ctor *values.Object) error {
	install := func(target *values.Object, m registry.MemberTemplate) {
		fn := vm.makeFunctionObject(m.Body, classEnv, false, target)
		key := values.StringKey(m.Key)
		if m.Private {
			key = privateKey(m.Key)
		}
		switch m.Kind {
		case "get":
			existing, _ := target.GetOwnProperty(key)
			desc := values.PropertyDescriptor{IsAccessor: true, Configurable: true}
			if existing != nil && existing.IsAccessor {
				desc.Set = existing.Set
			}
			desc.Get = fn
			target.DefineOwnProperty(key, desc)
		case "set":
			existing, _ := target.GetOwnProperty(key)
			desc := values.PropertyDescriptor{IsAccessor: true, Configurable: true}
			if existing != nil && existing.IsAccessor {
				desc.Get = existing.Get
			}
			desc.Set = fn
			target.DefineOwnProperty(key, desc)
		default:
			target.DefineOwnProperty(key, values.PropertyDescriptor{Value: values.ObjectValue(fn), Writable: true, Configurable: true})
		}
	}
	for _, m := range tmpl.InstanceMethods {
		install(proto, m)
	}
	for _, m := range tmpl.StaticMethods {
		install(ctor, m)
	}
	return nil
}

// makeFieldRunner builds the per-field initializer closure shared by
// instance fields (run per-construction, against the new instance) and
// static fields (run once, against the constructor object itself).
func (vm *VM) makeFieldRunner(fields []registry.FieldTemplate, classEnv *environment.Environment) func(this *values.Object) error {
	return func(this *values.Object) error {
		for _, f := range fields {
			v := values.Undefined
			if f.Initializer != nil {
				fnEnv := environment.NewFunction(classEnv, values.ObjectValue(this), true, nil, nil)
				fnEnv.HomeObject = classEnv.HomeObject
				var err error
				v, err = vm.runFunctionBody(f.Initializer, fnEnv, values.ObjectValue(this), nil, nil)
				if err != nil {
					return err
				}
			}
			key := values.StringKey(f.Key)
			if f.Private {
				key = privateKey(f.Key)
				this.DefineOwnProperty(key, values.PropertyDescriptor{Value: v, Writable: true})
				continue
			}
			this.DefineOwnProperty(key, values.PropertyDescriptor{Value: v, Writable: true, Enumerable: true, Configurable: true})
		}
		return nil
	}
}
