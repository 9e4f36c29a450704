package vm

import (
	"github.com/wudi/esprel/environment"
	"github.com/wudi/esprel/registry"
	"github.com/wudi/esprel/runtime"
	"github.com/wudi/esprel/values"
)

// runAsyncFunction implements an async function's synchronous "start"
// portion (ECMA-262 §27.7.5.1 AsyncFunctionStart): the body runs
// immediately up to its first Await (or to completion, if it never
// awaits), wrapped in a freshly created PromiseCapability that the
// caller receives back right away — reusing the Frame-suspension
// machinery generators already give us.
func (vm *VM) runAsyncFunction(block *registry.CodeBlock, env *environment.Environment, this values.Value, newTarget *values.Object, args []values.Value) (values.Value, error) {
	cap := vm.NewPromiseCapability()
	fr := NewFrame(block, env, this, newTarget)
	if err := vm.bindParameters(fr, block, args); err != nil {
		cap.Reject(vm.errorToValue(err))
		return values.ObjectValue(cap.Promise), nil
	}
	vm.driveAsync(fr, cap)
	return values.ObjectValue(cap.Promise), nil
}

// driveAsync runs fr until it either completes (settling cap directly)
// or hits an Await, in which case it registers a reaction on the
// awaited value that re-enters here on settlement (ECMA-262 §27.7.5.3
// AsyncFunctionAwait's resumption jobs).
func (vm *VM) driveAsync(fr *Frame, cap *PromiseCapability) {
	vm.stack.Push(fr)
	result, err := vm.run(fr)
	vm.stack.Pop()

	if err == nil {
		cap.Resolve(result)
		return
	}

	susp, ok := err.(*suspendSignal)
	if !ok || susp.kind != stepAwait {
		cap.Reject(vm.errorToValue(err))
		return
	}

	awaited := vm.PromiseResolve(susp.value)
	onFulfilled := vm.nativeFunction("", func(_ values.Value, a []values.Value) (values.Value, error) {
		fr.IP++
		fr.push(argOrUndefined(a, 0))
		vm.driveAsync(fr, cap)
		return values.Undefined, nil
	})
	onRejected := vm.nativeFunction("", func(_ values.Value, a []values.Value) (values.Value, error) {
		fr.IP++
		reason := argOrUndefined(a, 0)
		if handled, _, rerr := vm.handleThrow(fr, runtime.NewException(reason, nil)); handled {
			if rerr != nil {
				cap.Reject(vm.errorToValue(rerr))
				return values.Undefined, nil
			}
			vm.driveAsync(fr, cap)
			return values.Undefined, nil
		}
		cap.Reject(reason)
		return values.Undefined, nil
	})
	vm.Then(awaited, onFulfilled, onRejected)
}
