package vm

import (
	"github.com/wudi/esprel/environment"
	"github.com/wudi/esprel/runtime"
	"github.com/wudi/esprel/values"
)

// generatorResumeKind tags how an external .next()/.throw()/.return()
// call wants a suspended frame to continue (ECMA-262 §27.5.3.3
// GeneratorResume's resumptionValue completion type).
type generatorResumeKind byte

const (
	resumeNormal generatorResumeKind = iota
	resumeThrow
	resumeReturn
)

// generatorState is the suspended half of a generator object: the
// frame itself already carries PC, operand stack, and environment
// chain, so "suspending" is just holding onto the Frame across an
// OP_YIELD/OP_YIELD_STAR instead of popping it.
type generatorState struct {
	frame     *Frame
	done      bool
	running   bool
	// delegate is the active yield* sub-iterator (ECMA-262 §15.5.5);
	// set by execYieldStar, consumed by generatorResume until it
	// reports done.
	delegate *values.Object
}

// newGeneratorObject builds the generator object returned synchronously
// by a generator function call (ECMA-262 §27.5.3 CreateIteratorFromClosure):
// the body does not run at all until the first .next() call, matching
// ordinary function calls never auto-executing beyond their prologue.
func (vm *VM) newGeneratorObject(fnObj *values.Object, data *FunctionData, this values.Value, args []values.Value) *values.Object {
	fnEnv := environment.NewFunction(data.Env, this, true, nil, fnObj)
	fnEnv.HomeObject = data.HomeObject
	declareLocals(fnEnv, data.Block)
	fnEnv.DeclareMutable("arguments", true)
	fnEnv.InitializeBinding("arguments", values.ObjectValue(values.NewArray(vm.ObjectProto, append([]values.Value{}, args...))))

	fr := NewFrame(data.Block, fnEnv, this, nil)
	vm.bindParameters(fr, data.Block, args)
	gs := &generatorState{frame: fr}
	fr.gen = gs

	proto := vm.GeneratorProto
	genObj := values.NewObject(proto)
	genObj.Class = "Generator"
	genObj.Internal = gs

	genObj.SetData(values.StringKey("next"), values.ObjectValue(vm.nativeFunction("next", func(_ values.Value, a []values.Value) (values.Value, error) {
		return vm.generatorResume(gs, resumeNormal, argOrUndefined(a, 0))
	})))
	genObj.SetData(values.StringKey("throw"), values.ObjectValue(vm.nativeFunction("throw", func(_ values.Value, a []values.Value) (values.Value, error) {
		return vm.generatorResume(gs, resumeThrow, argOrUndefined(a, 0))
	})))
	genObj.SetData(values.StringKey("return"), values.ObjectValue(vm.nativeFunction("return", func(_ values.Value, a []values.Value) (values.Value, error) {
		return vm.generatorResume(gs, resumeReturn, argOrUndefined(a, 0))
	})))
	// %GeneratorPrototype%[Symbol.iterator] returns the generator
	// itself (ECMA-262 §27.1.2.1), which is what makes `[...g()]` and
	// `for (const v of g())` work.
	genObj.SetData(values.SymbolKey(values.SymbolIterator), values.ObjectValue(vm.nativeFunction("[Symbol.iterator]", func(this values.Value, _ []values.Value) (values.Value, error) {
		return values.ObjectValue(genObj), nil
	})))
	return genObj
}

// generatorIterResult builds the {value, done} object every iterator
// protocol step expects back.
func (vm *VM) generatorIterResult(value values.Value, done bool) values.Value {
	res := values.NewObject(vm.ObjectProto)
	res.SetData(values.StringKey("value"), value)
	res.SetData(values.StringKey("done"), values.Bool(done))
	return values.ObjectValue(res)
}

// generatorResume drives one external .next()/.throw()/.return() call
// against a suspended generator frame (ECMA-262 §27.5.3.3 GeneratorResume
// / GeneratorResumeAbrupt). A delegated yield* forwards straight to the
// active sub-iterator without re-entering the generator's own frame
// until the delegate reports done.
func (vm *VM) generatorResume(gs *generatorState, kind generatorResumeKind, value values.Value) (values.Value, error) {
	if gs.running {
		return values.Undefined, vm.ThrowTypeError("Generator is already running")
	}
	if gs.done {
		switch kind {
		case resumeThrow:
			return values.Undefined, runtime.NewException(value, nil)
		case resumeReturn:
			return vm.generatorIterResult(value, true), nil
		default:
			return vm.generatorIterResult(values.Undefined, true), nil
		}
	}

	if gs.delegate != nil && kind == resumeNormal {
		v, done, err := vm.iteratorNext(gs.delegate)
		if err != nil {
			gs.delegate = nil
			return values.Undefined, err
		}
		if !done {
			return vm.generatorIterResult(v, false), nil
		}
		gs.delegate = nil
		// The delegate finished; fall through to resume our own frame
		// past the OP_YIELD_STAR with its final value as the result.
		value = v
	} else if gs.delegate != nil {
		gs.delegate = nil
	}

	fr := gs.frame
	gs.running = true

	if !gs.frameStarted() {
		// First resume: nothing to push, the frame hasn't executed its
		// first OP_YIELD yet. Only resumeNormal may start a generator
		// that never ran (throw()/return() before the first next()
		// still complete the generator without ever running its body).
		if kind != resumeNormal {
			gs.running = false
			gs.done = true
			if kind == resumeThrow {
				return values.Undefined, runtime.NewException(value, nil)
			}
			return vm.generatorIterResult(value, true), nil
		}
	} else {
		fr.IP++ // past the OP_YIELD/OP_YIELD_STAR that suspended us
		switch kind {
		case resumeNormal:
			fr.push(value)
		case resumeThrow:
			gs.running = false
			if handled, _, rerr := vm.handleThrow(fr, runtime.NewException(value, nil)); handled {
				if rerr != nil {
					gs.done = true
					return values.Undefined, rerr
				}
				gs.running = true
			} else {
				gs.done = true
				return values.Undefined, runtime.NewException(value, nil)
			}
		case resumeReturn:
			// Simplification consistent with this engine's handler
			// model (no per-completion jump table): external
			// return() completes the generator immediately without
			// running enclosing finally blocks.
			gs.running = false
			gs.done = true
			return vm.generatorIterResult(value, true), nil
		}
	}

	result, err := vm.run(fr)
	gs.running = false
	if err != nil {
		if susp, ok := err.(*suspendSignal); ok {
			if susp.kind == stepYield {
				return vm.generatorIterResult(susp.value, false), nil
			}
		}
		gs.done = true
		return values.Undefined, err
	}
	gs.done = true
	return vm.generatorIterResult(result, true), nil
}

// frameStarted reports whether this frame has ever reached a suspend
// point, distinguishing "brand new generator, return()/throw() before
// any next()" from "resuming after at least one yield".
func (gs *generatorState) frameStarted() bool { return gs.frame.IP > 0 }
