// Package compiler turns an ast.Script/ast.Module/ast.Function into an
// immutable registry.CodeBlock: a walk over the AST emitting
// opcodes.Instruction slices with a label/forward-jump table, covering
// ECMAScript's binding model (let/const TDZ, closures) and
// abrupt-completion control (break/continue/return/throw unwinding
// through try/finally).
package compiler

import (
	"fmt"

	"github.com/wudi/esprel/ast"
	"github.com/wudi/esprel/opcodes"
	"github.com/wudi/esprel/registry"
	"github.com/wudi/esprel/values"
)

// pendingJump is an emitted jump instruction whose target instruction
// index isn't known yet (forward branch), resolved once the target
// label is placed.
type pendingJump struct {
	instructionIndex int
}

// loopControl tracks the break/continue targets for one enclosing
// loop or switch, plus its label if any, so nested labeled
// break/continue can resolve to the right frame.
type loopControl struct {
	label        string
	breaks       []pendingJump
	continues    []pendingJump
	continueSite int // instruction index the continue target resolves to, once known
	isSwitch     bool
	// plainLabel marks the pseudo-frame a labeled non-loop statement
	// pushes so `break label;` has a patch list; it is never a valid
	// target for an unlabeled break.
	plainLabel bool
}

// controlKind classifies one entry of the jump-control stack: what an
// abrupt completion (break/continue/return) crossing this construct
// must do on its way out of the frame region.
type controlKind byte

const (
	// controlLoop is a plain loop: nothing on the operand stack, no
	// exit action.
	controlLoop controlKind = iota
	// controlIterLoop is a for-of/for-in loop holding its live iterator
	// on the operand stack; crossing it must run IteratorClose.
	controlIterLoop
	// controlSwitch holds the duplicated discriminant on the operand
	// stack; crossing it must drop that slot.
	controlSwitch
	// controlFinally is a try-with-finally's protected region; crossing
	// it must retire the runtime handler entry and run the finally body.
	controlFinally
)

// controlEntry is one frame of the jump-control stack. Loop-family
// entries also appear in c.loops; finally entries carry the body to
// re-emit at each abrupt exit site plus the handler-table index of
// their runtime entry.
type controlEntry struct {
	kind        controlKind
	loop        *loopControl
	finallyBody *ast.BlockStatement
	finallyIdx  int
}

// Compiler compiles one function/script/module body at a time. A
// fresh Compiler is created per CodeBlock (including every nested
// function), with child blocks linked into the parent's ChildBlocks.
type Compiler struct {
	instructions []opcodes.Instruction
	constants    []values.Value
	locators       []registry.BindingLocator
	handlers       []registry.Handler
	children       []*registry.CodeBlock
	classTemplates []*registry.ClassTemplate
	scopeTemplates []*registry.ScopeTemplate
	templates      []registry.TemplateInfo

	scope *ast.Scope

	loops []*loopControl
	// controls interleaves loop/switch/finally entries in source
	// nesting order; compileBreak/compileContinue/compileReturn walk it
	// innermost-first to emit the IteratorClose, discriminant-drop, and
	// finally-body code an abrupt completion owes before transferring
	// control.
	controls []controlEntry

	strict      bool
	isArrow     bool
	isAsync     bool
	isGenerator bool

	// locatorIndex memoizes name->locator-table-index within this block
	// so repeated references to the same binding share one table entry.
	locatorIndex map[string]int

	// pendingLoopLabel, when non-empty, is consumed by the next pushLoop
	// call so a labeled iteration statement's loopControl carries its
	// label even though the per-kind compileX functions don't know the
	// enclosing LabeledStatement.
	pendingLoopLabel string
}

func newCompiler(scope *ast.Scope, strict bool) *Compiler {
	return &Compiler{scope: scope, strict: strict, locatorIndex: map[string]int{}}
}

// CompileScript compiles a top-level, non-module program.
func CompileScript(script *ast.Script) (*registry.CodeBlock, error) {
	c := newCompiler(script.Scope, script.Strict)
	if err := c.compileTopLevelBody(script.Body); err != nil {
		return nil, err
	}
	return c.finish("<script>"), nil
}

// CompileModule compiles a source-text module body. Import/export
// declarations are handled by the module package at link time; here
// they compile to no-ops except for the initializer expressions a
// `export default <expr>` or a local variable declaration carries.
func CompileModule(mod *ast.Module) (*registry.CodeBlock, error) {
	c := newCompiler(mod.Scope, true)
	if err := c.compileTopLevelBody(mod.Body); err != nil {
		return nil, err
	}
	cb := c.finish("<module>")
	return cb, nil
}

func (c *Compiler) compileTopLevelBody(body []ast.Statement) error {
	if err := c.hoistDeclarations(body); err != nil {
		return err
	}
	for _, stmt := range body {
		if err := c.compileStatement(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) finish(name string) *registry.CodeBlock {
	if n := len(c.instructions); n == 0 || c.instructions[n-1].Op != opcodes.OP_RETURN && c.instructions[n-1].Op != opcodes.OP_RETURN_UNDEFINED {
		c.emit(opcodes.OP_RETURN_UNDEFINED, 0)
	}
	return &registry.CodeBlock{
		Name: name, Instructions: c.instructions, Constants: c.constants,
		ChildBlocks: c.children, ClassTemplates: c.classTemplates,
		Locators: c.locators, Handlers: c.handlers, Scopes: c.scopeTemplates, Templates: c.templates,
		LocalBindings: localBindingsOf(c.scope),
		IsArrow:       c.isArrow, IsAsync: c.isAsync, IsGenerator: c.isGenerator, Strict: c.strict,
		NumLocals: len(c.scope.Order),
	}
}

// localBindingsOf translates the function scope's compile-time binding
// table into the call-time instantiation list: params/vars/functions hoist initialized,
// body-level let/class/const are created in their TDZ. Import bindings
// are excluded — the module linker owns those.
func localBindingsOf(scope *ast.Scope) []registry.LocalBinding {
	var out []registry.LocalBinding
	for _, name := range scope.Order {
		b := scope.Bindings[name]
		switch b.Kind {
		case ast.BindingVar, ast.BindingFunction, ast.BindingParameter:
			out = append(out, registry.LocalBinding{Name: name, Kind: registry.LocalVar})
		case ast.BindingLet, ast.BindingClass:
			out = append(out, registry.LocalBinding{Name: name, Kind: registry.LocalLet})
		case ast.BindingConst:
			out = append(out, registry.LocalBinding{Name: name, Kind: registry.LocalConst})
		}
	}
	return out
}

// addScopeTemplate records the lexically-declared names of a freshly
// entered block/catch/for-head/switch scope and returns the Scopes-table
// index the paired OP_ENTER_BLOCK_SCOPE instruction should carry, so the
// VM can pre-declare them uninitialized (TDZ) before running the block.
func (c *Compiler) addScopeTemplate(s *ast.Scope) int32 {
	tmpl := &registry.ScopeTemplate{}
	for _, name := range s.Order {
		b := s.Bindings[name]
		switch b.Kind {
		case ast.BindingLet, ast.BindingConst, ast.BindingClass, ast.BindingCatch:
			tmpl.Bindings = append(tmpl.Bindings, registry.ScopeBinding{Name: name, Mutable: b.Mutable})
		case ast.BindingFunction:
			// Block-level function declarations are instantiated by the
			// block's hoist pass right after entry, so the binding only
			// needs to exist; it never observes its own TDZ.
			tmpl.Bindings = append(tmpl.Bindings, registry.ScopeBinding{Name: name, Mutable: true})
		}
	}
	c.scopeTemplates = append(c.scopeTemplates, tmpl)
	return int32(len(c.scopeTemplates) - 1)
}

func (c *Compiler) emit(op opcodes.Opcode, operand int32) int {
	c.instructions = append(c.instructions, opcodes.Instruction{Op: op, Operand: operand})
	return len(c.instructions) - 1
}

func (c *Compiler) here() int { return len(c.instructions) }

func (c *Compiler) patchJump(idx int) {
	c.instructions[idx].Operand = int32(c.here())
}

func (c *Compiler) addConstant(v values.Value) int32 {
	c.constants = append(c.constants, v)
	return int32(len(c.constants) - 1)
}

// addLocator resolves name against the compile-time scope chain into a
// BindingLocator, walking outward from c.scope exactly the way
// ast.Scope.Lookup does, and interns the result in the locator table.
func (c *Compiler) addLocator(name string) int32 {
	if idx, ok := c.locatorIndex[name]; ok {
		return int32(idx)
	}
	depth := 0
	found := false
	index := 0
	for cur := c.scope; cur != nil; cur = cur.Parent {
		if b, ok := cur.Bindings[name]; ok {
			index = b.Index
			found = true
			break
		}
		depth++
	}
	loc := registry.BindingLocator{Name: name, Depth: depth, Index: index, Dynamic: !found}
	if !found {
		loc.Depth = -1
	}
	idx := len(c.locators)
	c.locators = append(c.locators, loc)
	c.locatorIndex[name] = idx
	return int32(idx)
}

// hoistDeclarations implements the var/function-hoisting half of
// instantiation: every var name gets an undefined
// slot up front, and every function declaration is fully created (not
// just hoisted as undefined) before the body executes, so mutual
// forward references between top-level functions work.
func (c *Compiler) hoistDeclarations(body []ast.Statement) error {
	for _, name := range ast.VarDeclaredNames(body) {
		_ = name // var slots live in the environment created by the VM frame; nothing to emit here
	}
	for _, stmt := range body {
		// `export function f() {}` hoists exactly like a bare function
		// declaration (ECMA-262 §16.2.1.6.4 InitializeEnvironment step 7).
		if exp, ok := stmt.(*ast.ExportNamedDeclaration); ok && exp.Declaration != nil {
			stmt = exp.Declaration
		}
		fd, ok := stmt.(*ast.FunctionDeclaration)
		if !ok || fd.Id == nil {
			continue
		}
		child, err := compileFunctionBody(&fd.Function)
		if err != nil {
			return err
		}
		childIdx := c.addChild(child)
		c.emit(opcodes.OP_MAKE_FUNCTION, childIdx)
		loc := c.addLocator(fd.Id.Name)
		c.emit(opcodes.OP_INIT_BINDING, loc)
	}
	return nil
}

// addTemplate interns one template literal's quasi segments, returning
// the Templates-table index OP_TEMPLATE_CONCAT/OP_TAGGED_TEMPLATE carry
// as their operand.
func (c *Compiler) addTemplate(cooked, raw []string) int32 {
	c.templates = append(c.templates, registry.TemplateInfo{Cooked: cooked, Raw: raw})
	return int32(len(c.templates) - 1)
}

func (c *Compiler) addChild(cb *registry.CodeBlock) int32 {
	c.children = append(c.children, cb)
	return int32(len(c.children) - 1)
}

func compileErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// registryHandlerPlaceholder reserves a Handlers-table slot before the
// protected region's instruction range is known, patched in afterward
// by handlerRecord once the try block has been compiled.
func registryHandlerPlaceholder() registry.Handler {
	return registry.Handler{}
}

func handlerRecord(start, end, target int) registry.Handler {
	return registry.Handler{Kind: registry.HandlerCatch, Start: start, End: end, Target: target}
}

func finallyHandlerRecord(start, end, target int) registry.Handler {
	return registry.Handler{Kind: registry.HandlerFinally, Start: start, End: end, Target: target}
}

func stringConst(s string) values.Value {
	return values.String(s)
}
