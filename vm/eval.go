package vm

import (
	"github.com/wudi/esprel/environment"
	"github.com/wudi/esprel/registry"
	"github.com/wudi/esprel/values"
)

// callEval implements direct eval (ECMA-262 §19.2.1.1 PerformEval):
// compile source as a script that inherits the caller's strictness,
// then run it against the caller's live environment — the eval code's
// lexical declarations land in a fresh declarative record, while its
// var/function declarations reach the caller's variable scope (or stay
// private to the eval when the code is strict).
func (vm *VM) callEval(fr *Frame, source string) (values.Value, error) {
	if vm.CompilerCallback == nil {
		return values.Undefined, vm.ThrowTypeError("eval is not supported by this host")
	}
	if fr.Block.Strict {
		source = "\"use strict\";\n" + source
	}
	block, err := vm.CompilerCallback(source, false)
	if err != nil {
		return values.Undefined, vm.ThrowSyntaxError("%s", err.Error())
	}

	evalEnv := environment.NewDeclarative(fr.Env)
	varTarget := environment.VarScopeOf(fr.Env)
	if block.Strict {
		// Strict eval code gets its own variable environment; nothing
		// leaks to the caller.
		varTarget = evalEnv
	}
	for _, lb := range block.LocalBindings {
		switch lb.Kind {
		case registry.LocalVar:
			if !varTarget.HasBinding(lb.Name) {
				varTarget.DeclareMutable(lb.Name, true)
			}
		case registry.LocalLet:
			evalEnv.DeclareMutable(lb.Name, false)
		case registry.LocalConst:
			evalEnv.DeclareImmutable(lb.Name)
		}
	}

	evalFrame := NewFrame(block, evalEnv, fr.This, fr.NewTarget)
	vm.stack.Push(evalFrame)
	defer vm.stack.Pop()
	return vm.run(evalFrame)
}
