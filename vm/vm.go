// Package vm implements the register/stack bytecode interpreter: the
// fetch-decode-dispatch loop over opcodes.Instruction, call-frame
// management, and the exception/finally unwinding the compiler's
// registry.Handler table describes.
package vm

import (
	"github.com/google/uuid"

	"github.com/wudi/esprel/environment"
	"github.com/wudi/esprel/opcodes"
	"github.com/wudi/esprel/registry"
	"github.com/wudi/esprel/runtime"
	"github.com/wudi/esprel/values"
)

// VM is one ECMAScript realm's interpreter: the intrinsic prototypes,
// global environment, job queue, and call stack the dispatch loop in
// run needs to execute compiled CodeBlocks.
type VM struct {
	// ID identifies this realm for diagnostics; every Context gets its
	// own VM and its own ID. Queued jobs carry their own ids (Job.ID),
	// not this one.
	ID uuid.UUID

	ObjectProto    *values.Object
	FunctionProto  *values.Object
	ArrayProto     *values.Object
	IteratorProto  *values.Object
	GeneratorProto *values.Object
	PromiseProto   *values.Object
	ErrorProtos    map[runtime.Kind]*values.Object

	GlobalObject *values.Object
	GlobalEnv    *environment.Environment

	// Shapes holds this realm's shape tree. Property access does not
	// consult it: the _IC opcodes dispatch like their plain forms (see
	// execProperty in properties.go).
	Shapes *registry.ShapeRegistry

	stack *CallStack

	Jobs *JobQueue

	// DebugLevel gates run's per-opcode call to trace, which records
	// nothing itself; 0 (default) skips the call. A leveled field beats a logging dependency here: the
	// dispatch loop is far too hot to call through a logger interface.
	DebugLevel int

	// CompilerCallback compiles source text for indirect eval, the
	// dynamic Function constructor, and module loading. It is supplied
	// by whatever embeds this VM rather than
	// imported directly: the compiler package has no need to import vm,
	// and vm must not import compiler or this would be the only
	// dependency forcing a cycle.
	CompilerCallback func(source string, isModule bool) (*registry.CodeBlock, error)

	// DynamicImport resolves an `import(specifier)` expression to the
	// promise of a module namespace object. Like CompilerCallback it is
	// wired by the embedding layer (the module loader lives above the
	// VM), never imported, so OP_IMPORT stays a one-line dispatch.
	DynamicImport func(specifier string) *values.Object

	// interrupted, when non-nil, is returned by the dispatch loop at the
	// next safepoint (before the next opcode) instead of taking
	// another step — the cooperative cancellation hook a host needs,
	// since this engine runs on one goroutine with no preemption point
	// of its own.
	interrupted error
}

// NewVM creates a realm with its intrinsic prototypes wired up and an
// empty global environment, ready to run a compiled script or module.
func NewVM() *VM {
	vm := &VM{
		ID:          uuid.New(),
		ErrorProtos: map[runtime.Kind]*values.Object{},
		Shapes:      registry.NewShapeRegistry(),
		stack:       NewCallStack(),
		Jobs:        NewJobQueue(),
	}
	vm.bootstrap()
	return vm
}

// bootstrap wires the handful of intrinsic objects this core engine
// needs for instanceof/prototype-chain correctness (the standard
// library of Array/String/Object.prototype methods is a host concern;
// the core only needs the objects themselves to exist).
func (vm *VM) bootstrap() {
	vm.ObjectProto = values.NewObject(nil)

	vm.FunctionProto = values.NewObject(vm.ObjectProto)
	vm.FunctionProto.Class = "Function"
	vm.FunctionProto.Call = func(values.Value, []values.Value) (values.Value, error) { return values.Undefined, nil }

	vm.ArrayProto = values.NewObject(vm.ObjectProto)
	vm.ArrayProto.Class = "Array"
	vm.ArrayProto.Internal = &values.ArrayData{}

	vm.IteratorProto = values.NewObject(vm.ObjectProto)
	vm.GeneratorProto = values.NewObject(vm.IteratorProto)
	vm.PromiseProto = values.NewObject(vm.ObjectProto)

	for _, kind := range []runtime.Kind{
		runtime.TypeError, runtime.RangeError, runtime.ReferenceError,
		runtime.SyntaxError, runtime.URIError, runtime.EvalError,
		runtime.AggregateError, runtime.InternalError,
	} {
		proto := values.NewObject(vm.ObjectProto)
		proto.Class = "Error"
		proto.SetData(values.StringKey("name"), values.String(string(kind)))
		vm.ErrorProtos[kind] = proto
	}

	vm.GlobalObject = values.NewObject(vm.ObjectProto)
	vm.GlobalEnv = environment.NewGlobal(vm.GlobalObject)
}

// Interrupt arranges for the currently running (or next) dispatch loop
// to stop at its next safepoint and return err, the mechanism a host
// uses to abort a runaway script.
func (vm *VM) Interrupt(err error) { vm.interrupted = err }

// RunScript compiles-free entry point: executes an already-compiled
// top-level CodeBlock in the global environment and returns its
// completion value (the value of the last evaluated expression
// statement is not tracked by this engine's statement compiler, so
// this is ordinarily undefined unless the script ends in a bare
// `return`-like completion from a wrapping construct).
func (vm *VM) RunScript(block *registry.CodeBlock) (values.Value, error) {
	fr := NewFrame(block, vm.GlobalEnv, values.ObjectValue(vm.GlobalObject), nil)
	vm.stack.Push(fr)
	defer vm.stack.Pop()
	return vm.run(fr)
}

// RunModuleBody executes a linked module's CodeBlock inside its own
// module environment: unlike RunScript, the environment is supplied
// by the caller (the module package's linker,
// which has already populated import/export bindings) rather than
// being the realm's shared global environment.
func (vm *VM) RunModuleBody(block *registry.CodeBlock, env *environment.Environment) (values.Value, error) {
	fr := NewFrame(block, env, values.Undefined, nil)
	vm.stack.Push(fr)
	defer vm.stack.Pop()
	return vm.run(fr)
}

// RunAsyncModuleBody executes a module body that syntactically
// contains top-level await, returning the PromiseCapability its
// completion settles. It reuses the same Await-suspension driver an
// ordinary async function body uses.
func (vm *VM) RunAsyncModuleBody(block *registry.CodeBlock, env *environment.Environment) *PromiseCapability {
	cap := vm.NewPromiseCapability()
	fr := NewFrame(block, env, values.Undefined, nil)
	vm.driveAsync(fr, cap)
	return cap
}

// Call invokes a callable value with the given this/args, the single
// path every accessor invocation, iterator protocol step, and user
// callback in this package funnels through — so native code never
// needs to distinguish a compiled closure from a Go-native builtin.
func (vm *VM) Call(fn *values.Object, this values.Value, args []values.Value) (values.Value, error) {
	if fn == nil || fn.Call == nil {
		return values.Undefined, vm.ThrowTypeError("value is not a function")
	}
	return fn.Call(this, args)
}

// Construct invokes a callable value's [[Construct]], the `new`
// counterpart of Call.
func (vm *VM) Construct(fn *values.Object, args []values.Value, newTarget *values.Object) (values.Value, error) {
	if fn == nil || fn.Construct == nil {
		return values.Undefined, vm.ThrowTypeError("value is not a constructor")
	}
	return fn.Construct(args, newTarget)
}

// run is the main fetch-decode-dispatch loop: one opcode per
// iteration, dispatched by concern into the execXxx helper family. A
// normal OP_RETURN/OP_RETURN_UNDEFINED returns the frame's
// result value; an uncaught OP_THROW (no Handler in fr.Block.Handlers
// covers the faulting IP) returns the *runtime.Exception as a Go
// error, unwound by the caller (runFunctionBody, RunScript, or a
// generator/async resume point).
func (vm *VM) run(fr *Frame) (values.Value, error) {
	for {
		if vm.interrupted != nil {
			err := vm.interrupted
			vm.interrupted = nil
			return values.Undefined, err
		}
		if fr.IP >= len(fr.Block.Instructions) {
			return values.Undefined, nil
		}
		inst := fr.Block.Instructions[fr.IP]
		if vm.DebugLevel > 0 {
			vm.trace(fr, inst)
		}

		result, err := vm.execOne(fr, inst)
		if err != nil {
			if handled, _, rerr := vm.handleThrow(fr, err); handled {
				if rerr != nil {
					return values.Undefined, rerr
				}
				continue
			}
			return values.Undefined, err
		}
		switch result.kind {
		case stepReturn:
			return result.value, nil
		case stepYield, stepAwait:
			return result.value, &suspendSignal{kind: result.kind, value: result.value}
		case stepJumped:
			// IP already repositioned by the handler; do not advance.
		default:
			fr.IP++
		}
	}
}

// stepKind tags how execOne wants the dispatch loop to continue.
type stepKind byte

const (
	stepNext stepKind = iota
	stepJumped
	stepReturn
	stepYield
	stepAwait
)

type stepResult struct {
	kind  stepKind
	value values.Value
}

var next = stepResult{kind: stepNext}

// suspendSignal is returned (wrapped as a Go error, matching every
// other abrupt completion this VM propagates) from run when a
// generator/async frame hits OP_YIELD/OP_AWAIT: it carries the
// produced value back to newGeneratorObject/runAsyncFunction, which
// resume the same Frame later via run again rather than unwinding it,
// so the frame's operand stack and environment survive the
// suspension. This is why generators are "suspendable frames", not
// goroutines: suspension is just an early, typed return from run.
type suspendSignal struct {
	kind  stepKind
	value values.Value
}

func (s *suspendSignal) Error() string { return "suspend" }

// handleThrow unwinds to the innermost live handler on the frame's
// runtime handler stack (pushed by OP_PUSH_TRY/OP_PUSH_FINALLY),
// restoring the operand-stack depth and environment recorded at entry
// before transferring control — the "unwinds env depth and stack depth
// to the handler's record" unwinding step. Entries whose protected
// range no longer covers the faulting IP (a break/continue jumped out
// without reaching the matching pop) are discarded on the way.
func (vm *VM) handleThrow(fr *Frame, cause error) (handled bool, _ values.Value, _ error) {
	if _, ok := cause.(*suspendSignal); ok {
		return false, values.Undefined, nil
	}
	exc, ok := cause.(*runtime.Exception)
	if !ok {
		exc = runtime.NewException(errorValueFor(vm, cause), nil)
	}

	for n := len(fr.tryStack); n > 0; n-- {
		entry := fr.tryStack[n-1]
		fr.tryStack = fr.tryStack[:n-1]
		if fr.IP < entry.handler.Start || fr.IP >= entry.handler.End {
			continue
		}
		fr.Stack = fr.Stack[:entry.savedDepth]
		fr.Env = entry.savedEnv
		// Both catch and finally targets receive the thrown value: the
		// catch prologue binds (or pops) it, the finally epilogue
		// rethrows it.
		fr.push(exc.Value)
		fr.IP = entry.handler.Target
		return true, values.Undefined, nil
	}
	return false, values.Undefined, nil
}

// errorValueFor adapts a plain Go error (a ReferenceError from
// environment.Resolve, a TypeError-shaped error from a coercion
// helper that predates runtime.Exception, etc.) into a JS value a
// catch clause can bind, so every failure path ends up funneled
// through the same handler-search machinery regardless of which
// package originated it.
func errorValueFor(vm *VM, err error) values.Value {
	if re, ok := err.(*environment.ReferenceError); ok {
		return values.ObjectValue(runtime.NewErrorObject(runtime.ReferenceError, vm.ErrorProtos[runtime.ReferenceError], re.Error()))
	}
	return values.ObjectValue(runtime.NewErrorObject(runtime.TypeError, vm.ErrorProtos[runtime.TypeError], err.Error()))
}

func (vm *VM) trace(fr *Frame, inst opcodes.Instruction) {
	// Left intentionally minimal: a real trace sink (file, ring buffer)
	// is a host concern, not something the core interpreter should
	// format itself; cmd/esprel-repl does not install one.
	_ = fr
	_ = inst
}
