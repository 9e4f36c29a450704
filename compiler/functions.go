package compiler

import (
	"github.com/wudi/esprel/ast"
	"github.com/wudi/esprel/opcodes"
	"github.com/wudi/esprel/registry"
)

// compileFunctionBody compiles one function/arrow/method body into a
// standalone CodeBlock — a fresh Compiler per nested function — plus
// the parameter prologue FunctionDeclarationInstantiation describes:
// bind each parameter (applying defaults/destructuring), bind a rest
// parameter if present, then hoist and run the body.
func compileFunctionBody(fn *ast.Function) (*registry.CodeBlock, error) {
	c := newCompiler(fn.Scope, functionBodyIsStrict(fn))
	c.isArrow = fn.ThisMode == ast.ThisLexical
	c.isAsync = fn.IsAsync
	c.isGenerator = fn.IsGenerator

	params, err := c.compileParameterPrologue(fn.Params)
	if err != nil {
		return nil, err
	}

	switch body := fn.Body.(type) {
	case *ast.BlockStatement:
		if err := c.hoistDeclarations(body.Body); err != nil {
			return nil, err
		}
		for _, stmt := range body.Body {
			if err := c.compileStatement(stmt); err != nil {
				return nil, err
			}
		}
	case ast.Expression:
		// Concise arrow body: `(x) => x + 1` compiles to an implicit return.
		if err := c.compileExpression(body); err != nil {
			return nil, err
		}
		c.emit(opcodes.OP_RETURN, 0)
	default:
		return nil, compileErrorf("compiler: unsupported function body %T", fn.Body)
	}

	cb := c.finish(functionName(fn))
	cb.Parameters = params
	cb.NumParams = len(fn.Params)
	return cb, nil
}

func functionName(fn *ast.Function) string {
	if fn.Id != nil {
		return fn.Id.Name
	}
	return "<anonymous>"
}

// functionBodyIsStrict reports whether fn's code is strict: the parser
// marked it ThisStrict (parsed in strict code such as a strict script,
// a module or a class body, or carrying its own directive), or its body
// opens with a "use strict" directive prologue (ECMA-262 §11.2.1).
// Arrow functions (ThisLexical) count only their own directive.
func functionBodyIsStrict(fn *ast.Function) bool {
	if fn.ThisMode == ast.ThisStrict {
		return true
	}
	block, ok := fn.Body.(*ast.BlockStatement)
	if !ok {
		return false
	}
	for _, stmt := range block.Body {
		es, ok := stmt.(*ast.ExpressionStatement)
		if !ok {
			break
		}
		lit, ok := es.Expression.(*ast.StringLiteral)
		if !ok {
			break
		}
		if lit.Value == "use strict" {
			return true
		}
	}
	return false
}

// compileParameterPrologue emits the binding-initialization code for
// each formal parameter, pulling arguments off an implicit "argument
// list" the VM's call sequence has already pushed into the frame's
// parameter slots, and reports each parameter's default/rest shape for
// the CodeBlock's Parameters table.
func (c *Compiler) compileParameterPrologue(params []ast.Node) ([]registry.ParameterInfo, error) {
	infos := make([]registry.ParameterInfo, len(params))
	for i, p := range params {
		switch t := p.(type) {
		case *ast.RestElement:
			infos[i] = registry.ParameterInfo{IsRest: true}
			c.emit(opcodes.OP_NEW_ARRAY, 0)
			c.emit(opcodes.OP_SWAP, 0)
			c.emit(opcodes.OP_ARRAY_SPREAD, 0)
			if err := c.compileBindingInit(t.Argument); err != nil {
				return nil, err
			}
		case *ast.AssignmentPattern:
			infos[i] = registry.ParameterInfo{HasDefault: true}
			if err := c.compileDefaultedBindingInit(t); err != nil {
				return nil, err
			}
		default:
			if err := c.compileBindingInit(p); err != nil {
				return nil, err
			}
		}
	}
	return infos, nil
}
