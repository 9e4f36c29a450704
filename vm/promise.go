package vm

import (
	"github.com/google/uuid"

	"github.com/wudi/esprel/runtime"
	"github.com/wudi/esprel/values"
)

// PromiseState is one of a Promise's three states (ECMA-262 §27.2.1).
type PromiseState byte

const (
	PromisePending PromiseState = iota
	PromiseFulfilled
	PromiseRejected
)

// reaction is one entry of a pending Promise's fulfill/reject reaction
// list: the handler function .then registered, plus the derived
// PromiseCapability its result/rethrow settles.
type reaction struct {
	onFulfilled *values.Object
	onRejected  *values.Object
	capability  *PromiseCapability
}

// PromiseData is the Internal payload of an Object with Class ==
// "Promise": state, settled result, and reactions still waiting on a
// pending promise (ECMA-262 §27.2.6's internal slots).
type PromiseData struct {
	State     PromiseState
	Result    values.Value
	Reactions []reaction
	Handled   bool
}

// PromiseCapability bundles a Promise with its resolve/reject
// functions (ECMA-262 §27.2.1.5), the shape every Promise-producing
// operation in this engine builds and closes over.
type PromiseCapability struct {
	Promise *values.Object
	Resolve func(values.Value)
	Reject  func(values.Value)
}

// Job is one queued microtask, tagged with an ID for
// diagnostics the way vm.ID tags the realm that queued it.
type Job struct {
	ID  uuid.UUID
	Run func()
}

// JobQueue is the engine's FIFO microtask queue: promise
// reaction jobs and thenable-resolution jobs enqueue here and drain
// strictly in arrival order, never interleaved with the synchronous
// script execution that enqueued them.
type JobQueue struct {
	jobs []Job

	// OnUnhandledRejection is the host's unhandled-rejection tracker:
	// invoked for every promise that is still
	// rejected with no handler attached once the queue fully drains.
	OnUnhandledRejection func(reason values.Value)

	unhandled map[*values.Object]values.Value
}

func NewJobQueue() *JobQueue {
	return &JobQueue{unhandled: map[*values.Object]values.Value{}}
}

func (q *JobQueue) Enqueue(run func()) {
	q.jobs = append(q.jobs, Job{ID: uuid.New(), Run: run})
}

// Pending reports whether any job remains queued, letting a host loop
// decide whether to keep pumping.
func (q *JobQueue) Pending() bool { return len(q.jobs) > 0 }

// RunJobs drains the queue to completion, including jobs newly
// enqueued by jobs that already ran, then reports every promise left
// rejected and unhandled to OnUnhandledRejection.
func (q *JobQueue) RunJobs() {
	for len(q.jobs) > 0 {
		j := q.jobs[0]
		q.jobs = q.jobs[1:]
		j.Run()
	}
	if q.OnUnhandledRejection == nil {
		return
	}
	for _, reason := range q.unhandled {
		q.OnUnhandledRejection(reason)
	}
	q.unhandled = map[*values.Object]values.Value{}
}

func promiseData(obj *values.Object) *PromiseData {
	pd, _ := obj.Internal.(*PromiseData)
	return pd
}

// PromiseDataOf exposes a promise object's internal state to embedding
// code (the Context inspects load-capability promises after a drain);
// nil if obj is not a promise of this engine.
func PromiseDataOf(obj *values.Object) *PromiseData { return promiseData(obj) }

// NewPromiseCapability builds a fresh pending Promise plus its
// resolve/reject pair (ECMA-262 §27.2.1.5): resolve follows the
// thenable-adoption procedure (§27.2.1.3.2) so resolving with another
// promise or any then-able object chains rather than nesting.
func (vm *VM) NewPromiseCapability() *PromiseCapability {
	p := values.NewObject(vm.PromiseProto)
	p.Class = "Promise"
	p.Internal = &PromiseData{State: PromisePending}

	resolved := false
	var adopt, resolveFn, rejectFn func(values.Value)
	// adopt settles p from v without the one-shot guard, so the
	// resolve/reject pair a thenable job hands to then() can settle p.
	adopt = func(v values.Value) {
		if v.AsObject() == p {
			vm.settlePromise(p, PromiseRejected, vm.typeErrorValue("Chaining cycle detected for promise"))
			return
		}
		if then := thenableThen(v); then != nil {
			reject := func(x values.Value) { vm.settlePromise(p, PromiseRejected, x) }
			vm.Jobs.Enqueue(func() { vm.callThenable(v, then, adopt, reject) })
			return
		}
		vm.settlePromise(p, PromiseFulfilled, v)
	}
	resolveFn = func(v values.Value) {
		if resolved {
			return
		}
		resolved = true
		adopt(v)
	}
	rejectFn = func(v values.Value) {
		if resolved {
			return
		}
		resolved = true
		vm.settlePromise(p, PromiseRejected, v)
	}
	return &PromiseCapability{Promise: p, Resolve: resolveFn, Reject: rejectFn}
}

func (vm *VM) typeErrorValue(msg string) values.Value {
	return values.ObjectValue(runtime.NewErrorObject(runtime.TypeError, vm.ErrorProtos[runtime.TypeError], msg))
}

// thenableThen returns v's "then" method if v is an object exposing a
// callable one (ECMA-262 §27.2.1.3.1 step 6), or nil if v is not a
// thenable at all.
func thenableThen(v values.Value) *values.Object {
	obj := v.AsObject()
	if obj == nil {
		return nil
	}
	thenVal, _, ok := obj.Get(values.StringKey("then"))
	if !ok {
		return nil
	}
	then := thenVal.AsObject()
	if then == nil || then.Call == nil {
		return nil
	}
	return then
}

// callThenable invokes a thenable's then method with freshly wrapped
// resolve/reject functions, the job queued by adopt when the
// adopted value is itself thenable (ECMA-262 §27.2.1.3.2 PromiseResolveThenableJob).
func (vm *VM) callThenable(v values.Value, then *values.Object, resolve, reject func(values.Value)) {
	resolveWrapper := vm.nativeFunction("", func(_ values.Value, args []values.Value) (values.Value, error) {
		resolve(argOrUndefined(args, 0))
		return values.Undefined, nil
	})
	rejectWrapper := vm.nativeFunction("", func(_ values.Value, args []values.Value) (values.Value, error) {
		reject(argOrUndefined(args, 0))
		return values.Undefined, nil
	})
	if _, err := then.Call(v, []values.Value{values.ObjectValue(resolveWrapper), values.ObjectValue(rejectWrapper)}); err != nil {
		reject(vm.errorToValue(err))
	}
}

// settlePromise transitions a pending promise to fulfilled/rejected
// and schedules a reaction job for every handler already attached
// (ECMA-262 §27.2.1.7/.8 FulfillPromise/RejectPromise).
func (vm *VM) settlePromise(p *values.Object, state PromiseState, result values.Value) {
	data := promiseData(p)
	if data.State != PromisePending {
		return
	}
	data.State = state
	data.Result = result
	reactions := data.Reactions
	data.Reactions = nil
	if state == PromiseRejected && len(reactions) == 0 {
		vm.Jobs.unhandled[p] = result
	}
	for _, r := range reactions {
		vm.enqueueReaction(r, state, result)
	}
}

// enqueueReaction schedules one PromiseReactionJob (ECMA-262 §27.2.2.1):
// run the matching handler (or pass the value/reason through when none
// was given) and settle the derived capability with the outcome.
func (vm *VM) enqueueReaction(r reaction, state PromiseState, result values.Value) {
	vm.Jobs.Enqueue(func() {
		handler := r.onFulfilled
		if state == PromiseRejected {
			handler = r.onRejected
		}
		if handler == nil {
			if state == PromiseFulfilled {
				r.capability.Resolve(result)
			} else {
				r.capability.Reject(result)
			}
			return
		}
		out, err := handler.Call(values.Undefined, []values.Value{result})
		if err != nil {
			r.capability.Reject(vm.errorToValue(err))
			return
		}
		r.capability.Resolve(out)
	})
}

// Then implements Promise.prototype.then (ECMA-262 §27.2.5.4): register
// (or immediately schedule, if p is already settled) a reaction pair
// and return the derived promise.
func (vm *VM) Then(p *values.Object, onFulfilled, onRejected *values.Object) *values.Object {
	data := promiseData(p)
	cap := vm.NewPromiseCapability()
	r := reaction{onFulfilled: onFulfilled, onRejected: onRejected, capability: cap}
	data.Handled = true
	delete(vm.Jobs.unhandled, p)
	switch data.State {
	case PromisePending:
		data.Reactions = append(data.Reactions, r)
	case PromiseFulfilled:
		vm.enqueueReaction(r, PromiseFulfilled, data.Result)
	case PromiseRejected:
		vm.enqueueReaction(r, PromiseRejected, data.Result)
	}
	return cap.Promise
}

// PromiseResolve wraps any value as a promise (ECMA-262 §27.2.4.7):
// an existing promise of this realm passes through unchanged, anything
// else is wrapped in a capability resolved with it.
func (vm *VM) PromiseResolve(v values.Value) *values.Object {
	if obj := v.AsObject(); obj != nil && obj.Class == "Promise" {
		return obj
	}
	cap := vm.NewPromiseCapability()
	cap.Resolve(v)
	return cap.Promise
}

// NewPromise implements `new Promise(executor)` (ECMA-262 §27.2.3.1):
// the executor runs synchronously with this capability's resolve/reject,
// an executor that throws rejects the capability with the thrown value.
func (vm *VM) NewPromise(executor *values.Object) (*values.Object, error) {
	cap := vm.NewPromiseCapability()
	resolveFn := vm.nativeFunction("", func(_ values.Value, args []values.Value) (values.Value, error) {
		cap.Resolve(argOrUndefined(args, 0))
		return values.Undefined, nil
	})
	rejectFn := vm.nativeFunction("", func(_ values.Value, args []values.Value) (values.Value, error) {
		cap.Reject(argOrUndefined(args, 0))
		return values.Undefined, nil
	})
	if _, err := executor.Call(values.Undefined, []values.Value{values.ObjectValue(resolveFn), values.ObjectValue(rejectFn)}); err != nil {
		cap.Reject(vm.errorToValue(err))
	}
	return cap.Promise, nil
}

func argOrUndefined(args []values.Value, i int) values.Value {
	if i < len(args) {
		return args[i]
	}
	return values.Undefined
}

// nativeFunction wraps a Go closure as a callable Object, the same
// convenience shape every intrinsic (resolve/reject wrappers, iterator
// `next` methods) builds its callable surface from.
func (vm *VM) nativeFunction(name string, fn values.NativeFunc) *values.Object {
	obj := values.NewObject(vm.FunctionProto)
	obj.Class = "Function"
	obj.Call = fn
	if name != "" {
		obj.SetData(values.StringKey("name"), values.String(name))
	}
	return obj
}

// ErrorValue exposes errorToValue to the packages layered above the
// VM (the module evaluator rejects top-level capabilities with the
// same value a catch clause would have seen).
func (vm *VM) ErrorValue(err error) values.Value { return vm.errorToValue(err) }

// errorToValue recovers the thrown JS value from a Go error the VM
// propagates: a *runtime.Exception carries it directly; anything else
// (a ReferenceError from environment.Resolve, e.g.) is wrapped the same
// way handleThrow wraps it for an ordinary catch clause.
func (vm *VM) errorToValue(err error) values.Value {
	if exc, ok := err.(*runtime.Exception); ok {
		return exc.Value
	}
	return errorValueFor(vm, err)
}
