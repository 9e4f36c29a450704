package vm

import (
	"github.com/wudi/esprel/environment"
	"github.com/wudi/esprel/runtime"
	"github.com/wudi/esprel/values"
)

// asyncGenRequest is one queued consumer resumption (ECMA-262 §27.6.3.1
// AsyncGeneratorRequest): how to resume the frame, the payload, and the
// promise the consumer is holding for it.
type asyncGenRequest struct {
	kind  generatorResumeKind
	value values.Value
	cap   *PromiseCapability
}

// asyncGeneratorState is the suspended half of an async generator
// object. Like generatorState the Frame itself carries the resumable
// execution state; what's added is the request queue, since every
// next()/throw()/return() returns a promise and may arrive while the
// body is still parked on an inner await or a yield's own await.
type asyncGeneratorState struct {
	frame *Frame
	done  bool
	// executing spans a frame resumption including any inner await and
	// the await of a yielded operand; queued requests wait for it to
	// clear so settlements keep request order.
	executing bool
	queue     []asyncGenRequest
}

// newAsyncGeneratorObject builds the object an `async function*` call
// returns: an async iterator whose protocol methods enqueue resumption
// requests and hand back promises (ECMA-262 §27.6).
func (vm *VM) newAsyncGeneratorObject(fnObj *values.Object, data *FunctionData, this values.Value, args []values.Value) *values.Object {
	fnEnv := environment.NewFunction(data.Env, this, true, nil, fnObj)
	fnEnv.HomeObject = data.HomeObject
	declareLocals(fnEnv, data.Block)
	fnEnv.DeclareMutable("arguments", true)
	fnEnv.InitializeBinding("arguments", values.ObjectValue(values.NewArray(vm.ObjectProto, append([]values.Value{}, args...))))

	fr := NewFrame(data.Block, fnEnv, this, nil)
	vm.bindParameters(fr, data.Block, args)
	ags := &asyncGeneratorState{frame: fr}
	// The generatorState rider keeps yield* delegation working through
	// the shared execYieldStar path.
	fr.gen = &generatorState{frame: fr}

	genObj := values.NewObject(vm.GeneratorProto)
	genObj.Class = "AsyncGenerator"
	genObj.Internal = ags

	genObj.SetData(values.StringKey("next"), values.ObjectValue(vm.nativeFunction("next", func(_ values.Value, a []values.Value) (values.Value, error) {
		return vm.asyncGeneratorEnqueue(ags, resumeNormal, argOrUndefined(a, 0)), nil
	})))
	genObj.SetData(values.StringKey("throw"), values.ObjectValue(vm.nativeFunction("throw", func(_ values.Value, a []values.Value) (values.Value, error) {
		return vm.asyncGeneratorEnqueue(ags, resumeThrow, argOrUndefined(a, 0)), nil
	})))
	genObj.SetData(values.StringKey("return"), values.ObjectValue(vm.nativeFunction("return", func(_ values.Value, a []values.Value) (values.Value, error) {
		return vm.asyncGeneratorEnqueue(ags, resumeReturn, argOrUndefined(a, 0)), nil
	})))
	genObj.SetData(values.SymbolKey(values.SymbolAsyncIterator), values.ObjectValue(vm.nativeFunction("[Symbol.asyncIterator]", func(values.Value, []values.Value) (values.Value, error) {
		return values.ObjectValue(genObj), nil
	})))
	return genObj
}

// asyncGeneratorEnqueue queues one consumer request and starts the
// drive loop if the body is suspended (ECMA-262 §27.6.3.3
// AsyncGeneratorEnqueue).
func (vm *VM) asyncGeneratorEnqueue(ags *asyncGeneratorState, kind generatorResumeKind, v values.Value) values.Value {
	cap := vm.NewPromiseCapability()
	ags.queue = append(ags.queue, asyncGenRequest{kind: kind, value: v, cap: cap})
	if !ags.executing {
		vm.asyncGeneratorPump(ags)
	}
	return values.ObjectValue(cap.Promise)
}

// asyncGeneratorPump drains queued requests one at a time while the
// body is resumable (ECMA-262 §27.6.3.5 AsyncGeneratorResumeNext). A
// request stays "executing" until its outcome — yield, return, or
// throw — has fully settled, including the awaits in between, so
// consumer promises settle strictly in request order.
func (vm *VM) asyncGeneratorPump(ags *asyncGeneratorState) {
	for !ags.executing && len(ags.queue) > 0 {
		req := ags.queue[0]
		ags.queue = ags.queue[1:]

		if ags.done {
			vm.asyncGenSettleDone(req)
			continue
		}

		fr := ags.frame
		// Active yield* delegation forwards next() straight to the
		// sub-iterator without resuming the frame.
		if fr.gen.delegate != nil && req.kind == resumeNormal {
			v, done, err := vm.iteratorNext(fr.gen.delegate)
			if err != nil {
				fr.gen.delegate = nil
				ags.done = true
				req.cap.Reject(vm.errorToValue(err))
				continue
			}
			if !done {
				ags.executing = true
				vm.asyncGenSettleYield(ags, req, v)
				continue
			}
			fr.gen.delegate = nil
			req.value = v
		}

		if fr.IP == 0 {
			// throw()/return() before the first next() completes the
			// generator without running its body.
			if req.kind != resumeNormal {
				ags.done = true
				vm.asyncGenSettleAbrupt(req)
				continue
			}
		} else {
			fr.IP++ // past the suspending OP_YIELD/OP_YIELD_STAR
			switch req.kind {
			case resumeNormal:
				fr.push(req.value)
			case resumeThrow:
				if handled, _, _ := vm.handleThrow(fr, runtime.NewException(req.value, nil)); !handled {
					ags.done = true
					req.cap.Reject(req.value)
					continue
				}
			case resumeReturn:
				ags.done = true
				req.cap.Resolve(vm.generatorIterResult(req.value, true))
				continue
			}
		}
		vm.asyncGenStep(ags, req)
	}
}

// asyncGenStep runs the frame until it yields, awaits, or completes,
// all on behalf of one consumer request.
func (vm *VM) asyncGenStep(ags *asyncGeneratorState, req asyncGenRequest) {
	ags.executing = true
	fr := ags.frame
	vm.stack.Push(fr)
	result, err := vm.run(fr)
	vm.stack.Pop()

	if err == nil {
		ags.executing = false
		ags.done = true
		req.cap.Resolve(vm.generatorIterResult(result, true))
		vm.asyncGeneratorPump(ags)
		return
	}
	susp, ok := err.(*suspendSignal)
	if !ok {
		ags.executing = false
		ags.done = true
		req.cap.Reject(vm.errorToValue(err))
		vm.asyncGeneratorPump(ags)
		return
	}

	switch susp.kind {
	case stepYield:
		// AsyncGeneratorYield: the yielded operand is itself awaited
		// before the consumer's promise fulfills.
		vm.asyncGenSettleYield(ags, req, susp.value)
	case stepAwait:
		// An inner await: this request is not settled yet; the frame
		// resumes on settlement and keeps running for the same request.
		awaited := vm.PromiseResolve(susp.value)
		onFulfilled := vm.nativeFunction("", func(_ values.Value, a []values.Value) (values.Value, error) {
			fr.IP++
			fr.push(argOrUndefined(a, 0))
			vm.asyncGenStep(ags, req)
			return values.Undefined, nil
		})
		onRejected := vm.nativeFunction("", func(_ values.Value, a []values.Value) (values.Value, error) {
			fr.IP++
			reason := argOrUndefined(a, 0)
			if handled, _, _ := vm.handleThrow(fr, runtime.NewException(reason, nil)); handled {
				vm.asyncGenStep(ags, req)
				return values.Undefined, nil
			}
			ags.executing = false
			ags.done = true
			req.cap.Reject(reason)
			vm.asyncGeneratorPump(ags)
			return values.Undefined, nil
		})
		vm.Then(awaited, onFulfilled, onRejected)
	}
}

// asyncGenSettleYield awaits a yielded operand and fulfills the
// consumer's promise with the settled value; a rejecting operand
// completes the generator and rejects the request instead of being
// thrown back into the body.
func (vm *VM) asyncGenSettleYield(ags *asyncGeneratorState, req asyncGenRequest, v values.Value) {
	awaited := vm.PromiseResolve(v)
	onFulfilled := vm.nativeFunction("", func(_ values.Value, a []values.Value) (values.Value, error) {
		ags.executing = false
		req.cap.Resolve(vm.generatorIterResult(argOrUndefined(a, 0), false))
		vm.asyncGeneratorPump(ags)
		return values.Undefined, nil
	})
	onRejected := vm.nativeFunction("", func(_ values.Value, a []values.Value) (values.Value, error) {
		ags.executing = false
		ags.done = true
		req.cap.Reject(argOrUndefined(a, 0))
		vm.asyncGeneratorPump(ags)
		return values.Undefined, nil
	})
	vm.Then(awaited, onFulfilled, onRejected)
}

// asyncGenSettleDone settles a request that arrived after completion.
func (vm *VM) asyncGenSettleDone(req asyncGenRequest) {
	switch req.kind {
	case resumeThrow:
		req.cap.Reject(req.value)
	case resumeReturn:
		req.cap.Resolve(vm.generatorIterResult(req.value, true))
	default:
		req.cap.Resolve(vm.generatorIterResult(values.Undefined, true))
	}
}

// asyncGenSettleAbrupt settles a throw()/return() that fired before
// the body ever started.
func (vm *VM) asyncGenSettleAbrupt(req asyncGenRequest) {
	if req.kind == resumeThrow {
		req.cap.Reject(req.value)
		return
	}
	req.cap.Resolve(vm.generatorIterResult(req.value, true))
}
