// Package esprel is the embedding surface of the engine: a Context
// owns one realm (a vm.VM), its module loader, and the host hooks, and
// exposes JavaScript evaluation as a service to a host application —
// the one place every subsystem is glued together.
package esprel

import (
	"fmt"

	"github.com/wudi/esprel/compiler"
	"github.com/wudi/esprel/modules"
	"github.com/wudi/esprel/parser"
	"github.com/wudi/esprel/registry"
	"github.com/wudi/esprel/values"
	"github.com/wudi/esprel/vm"
)

// HostHooks are the embedder-supplied callbacks. Every
// field is optional; a nil hook gets a safe default (module loading
// fails with a clear error, rejections go unreported, compile-string
// requests are allowed).
type HostHooks struct {
	// LoadModuleSource resolves a specifier (relative to the referrer
	// specifier, which is "" for a top-level load) to module source
	// text. It backs both static `import` graphs and dynamic import().
	LoadModuleSource func(referrer, specifier string) (string, error)

	// OnUnhandledRejection is invoked once per still-unhandled rejected
	// promise after a RunJobs drain.
	OnUnhandledRejection func(reason values.Value)

	// EnsureCanCompileStrings gates eval/Function-style dynamic
	// compilation; returning an error blocks the compile.
	EnsureCanCompileStrings func(source string) error

	// Print receives console.log output, one formatted line per call.
	Print func(line string)
}

// Context is one engine instance: a realm, its job queue, and its
// module graph. A Context is single-threaded by construction
// and must not be shared across goroutines.
type Context struct {
	VM     *vm.VM
	Loader *modules.Loader

	opts  Options
	hooks HostHooks
}

// New creates a Context with its intrinsics bootstrapped and host
// hooks wired.
func New(opts Options, hooks HostHooks) *Context {
	c := &Context{VM: vm.NewVM(), opts: opts, hooks: hooks}
	c.VM.DebugLevel = opts.DebugLevel
	c.VM.Jobs.OnUnhandledRejection = hooks.OnUnhandledRejection

	c.Loader = modules.NewLoader(c.VM, func(referrer *modules.SourceTextModule, specifier string, finish modules.FinishLoad) {
		from := ""
		if referrer != nil {
			from = referrer.Specifier
		}
		if hooks.LoadModuleSource == nil {
			finish(nil, fmt.Errorf("host provides no module loader (requested %q)", specifier))
			return
		}
		source, err := hooks.LoadModuleSource(from, specifier)
		if err != nil {
			finish(nil, err)
			return
		}
		mod, err := modules.ParseModule(c.VM, specifier, source)
		finish(mod, err)
	})

	c.VM.CompilerCallback = c.compileDynamic
	c.VM.DynamicImport = c.dynamicImport

	c.installGlobals()
	return c
}

// Eval parses, compiles, and runs source as a script in the global
// environment, then drains the job queue so promise reactions queued
// by the script observe the completed synchronous work first.
// Statement completion values are not tracked, so the returned value
// is undefined for a script.
func (c *Context) Eval(source string) (values.Value, error) {
	if c.opts.Strict {
		source = "\"use strict\";\n" + source
	}
	script, err := parser.ParseScript(source)
	if err != nil {
		return values.Undefined, err
	}
	block, err := compiler.CompileScript(script)
	if err != nil {
		return values.Undefined, err
	}
	result, err := c.VM.RunScript(block)
	c.RunJobs()
	return result, err
}

// LoadModule loads, links, and evaluates the module graph rooted at
// specifier, returning the module record and the capability that
// settles when evaluation (including top-level await) completes. The
// job queue is drained before returning so synchronous graphs come
// back already Evaluated.
func (c *Context) LoadModule(specifier string) (*modules.SourceTextModule, *vm.PromiseCapability, error) {
	root, ok := c.Loader.Lookup(specifier)
	if !ok {
		if c.hooks.LoadModuleSource == nil {
			return nil, nil, fmt.Errorf("host provides no module loader (requested %q)", specifier)
		}
		source, err := c.hooks.LoadModuleSource("", specifier)
		if err != nil {
			return nil, nil, err
		}
		root, err = modules.ParseModule(c.VM, specifier, source)
		if err != nil {
			return nil, nil, err
		}
		c.Loader.Register(root)
	}

	loadCap := c.Loader.LoadRequestedModules(root)
	c.RunJobs()
	if pd := vm.PromiseDataOf(loadCap.Promise); pd != nil && pd.State == vm.PromiseRejected {
		return nil, nil, fmt.Errorf("module load failed: %s", pd.Result.ToStringValue())
	}

	if err := root.Link(); err != nil {
		return nil, nil, err
	}
	evalCap := root.Evaluate(c.Loader)
	c.RunJobs()
	return root, evalCap, nil
}

// RunJobs drains the microtask queue to completion, including jobs enqueued by jobs already run.
func (c *Context) RunJobs() { c.VM.Jobs.RunJobs() }

// Interrupt requests cooperative cancellation of the running (or next)
// evaluation; the VM raises err from its next opcode boundary.
func (c *Context) Interrupt(err error) { c.VM.Interrupt(err) }

// compileDynamic backs the VM's CompilerCallback for eval/Function:
// host policy first, then an ordinary parse+compile.
func (c *Context) compileDynamic(source string, isModule bool) (*registry.CodeBlock, error) {
	if c.hooks.EnsureCanCompileStrings != nil {
		if err := c.hooks.EnsureCanCompileStrings(source); err != nil {
			return nil, err
		}
	}
	if isModule {
		mod, err := parser.ParseModule(source)
		if err != nil {
			return nil, err
		}
		return compiler.CompileModule(mod)
	}
	script, err := parser.ParseScript(source)
	if err != nil {
		return nil, err
	}
	return compiler.CompileScript(script)
}

// dynamicImport backs import(): load + link + evaluate the requested
// graph and resolve the returned promise with the namespace object
// once the module's evaluation promise settles.
func (c *Context) dynamicImport(specifier string) *values.Object {
	cap := c.VM.NewPromiseCapability()
	mod, evalCap, err := c.LoadModule(specifier)
	if err != nil {
		cap.Reject(values.String(err.Error()))
		return cap.Promise
	}
	onFulfilled := c.nativeFn("", func(values.Value, []values.Value) (values.Value, error) {
		cap.Resolve(values.ObjectValue(mod.GetModuleNamespace()))
		return values.Undefined, nil
	})
	onRejected := c.nativeFn("", func(_ values.Value, args []values.Value) (values.Value, error) {
		cap.Reject(arg(args, 0))
		return values.Undefined, nil
	})
	c.VM.Then(evalCap.Promise, onFulfilled, onRejected)
	c.RunJobs()
	return cap.Promise
}

func arg(args []values.Value, i int) values.Value {
	if i < len(args) {
		return args[i]
	}
	return values.Undefined
}
