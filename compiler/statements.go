package compiler

import (
	"github.com/wudi/esprel/ast"
	"github.com/wudi/esprel/opcodes"
)

func (c *Compiler) compileStatement(stmt ast.Statement) error {
	switch s := stmt.(type) {
	case *ast.ExpressionStatement:
		if err := c.compileExpression(s.Expression); err != nil {
			return err
		}
		c.emit(opcodes.OP_POP, 0)
		return nil
	case *ast.EmptyStatement:
		return nil
	case *ast.DebuggerStatement:
		return nil
	case *ast.VariableDeclaration:
		return c.compileVariableDeclaration(s)
	case *ast.BlockStatement:
		return c.compileBlock(s)
	case *ast.IfStatement:
		return c.compileIf(s)
	case *ast.WhileStatement:
		return c.compileWhile(s)
	case *ast.DoWhileStatement:
		return c.compileDoWhile(s)
	case *ast.ForStatement:
		return c.compileFor(s)
	case *ast.ForInStatement:
		return c.compileForIn(s)
	case *ast.ForOfStatement:
		return c.compileForOf(s)
	case *ast.BreakStatement:
		return c.compileBreak(s)
	case *ast.ContinueStatement:
		return c.compileContinue(s)
	case *ast.ReturnStatement:
		return c.compileReturn(s)
	case *ast.ThrowStatement:
		if err := c.compileExpression(s.Argument); err != nil {
			return err
		}
		c.emit(opcodes.OP_THROW, 0)
		return nil
	case *ast.TryStatement:
		return c.compileTry(s)
	case *ast.SwitchStatement:
		return c.compileSwitch(s)
	case *ast.LabeledStatement:
		return c.compileLabeled(s)
	case *ast.WithStatement:
		return c.compileWith(s)
	case *ast.FunctionDeclaration:
		// Already emitted during hoisting at the top of this body; a
		// function declaration nested in a block is bound by
		// hoistBlockFunctions in the block's scope only, with no
		// var-scope (Annex B) binding.
		return nil
	case *ast.ClassDeclaration:
		return c.compileClassDeclaration(s)
	case *ast.ImportDeclaration:
		// Import bindings are created by the module linker against the
		// module environment; nothing executes at the import site.
		return nil
	case *ast.ExportNamedDeclaration:
		if s.Declaration != nil {
			return c.compileStatement(s.Declaration)
		}
		// Specifier-list and re-export forms are pure link-time metadata.
		return nil
	case *ast.ExportDefaultDeclaration:
		return c.compileExportDefault(s)
	case *ast.ExportAllDeclaration:
		return nil
	default:
		return compileErrorf("compiler: unsupported statement %T", stmt)
	}
}

// compileExportDefault evaluates the exported declaration/expression
// and initializes the module environment's "*default*" binding with it
// (ECMA-262 §16.2.3.7); a named default function/class also initializes
// its own local binding so the body can reference itself.
func (c *Compiler) compileExportDefault(s *ast.ExportDefaultDeclaration) error {
	switch d := s.Declaration.(type) {
	case *ast.FunctionDeclaration:
		child, err := compileFunctionBody(&d.Function)
		if err != nil {
			return err
		}
		c.emit(opcodes.OP_MAKE_FUNCTION, c.addChild(child))
		if d.Id != nil {
			c.emit(opcodes.OP_DUP, 0)
			c.emit(opcodes.OP_INIT_BINDING, c.addLocator(d.Id.Name))
		}
	case *ast.ClassDeclaration:
		if err := c.compileSuperClassExpr(&d.Class); err != nil {
			return err
		}
		tmpl, err := c.compileClassTemplate(&d.Class)
		if err != nil {
			return err
		}
		c.emit(opcodes.OP_MAKE_CLASS, c.addClassTemplate(tmpl))
		if d.Id != nil {
			c.emit(opcodes.OP_DUP, 0)
			c.emit(opcodes.OP_INIT_BINDING, c.addLocator(d.Id.Name))
		}
	default:
		expr, ok := s.Declaration.(ast.Expression)
		if !ok {
			return compileErrorf("compiler: unsupported export default declaration %T", s.Declaration)
		}
		if err := c.compileExpression(expr); err != nil {
			return err
		}
	}
	c.emit(opcodes.OP_INIT_BINDING, c.addLocator("*default*"))
	return nil
}

func (c *Compiler) compileVariableDeclaration(decl *ast.VariableDeclaration) error {
	for _, d := range decl.Declarations {
		if d.Init != nil {
			if err := c.compileExpression(d.Init); err != nil {
				return err
			}
		} else {
			c.emit(opcodes.OP_LOAD_UNDEFINED, 0)
		}
		if err := c.compileBindingInit(d.Target); err != nil {
			return err
		}
	}
	return nil
}

// compileBindingInit pops the top-of-stack value into target, which may
// be a plain identifier or a destructuring pattern; for patterns it lowers to a temporary plus
// per-element property/iterator pulls.
func (c *Compiler) compileBindingInit(target ast.Node) error {
	switch t := target.(type) {
	case *ast.Identifier:
		loc := c.addLocator(t.Name)
		c.emit(opcodes.OP_INIT_BINDING, loc)
		return nil
	case *ast.ArrayPattern:
		return c.compileArrayPatternInit(t)
	case *ast.ObjectPattern:
		return c.compileObjectPatternInit(t)
	case *ast.AssignmentPattern:
		// Value already on stack may be undefined; default application
		// happens the same way function-parameter defaults do.
		return c.compileDefaultedBindingInit(t)
	default:
		return compileErrorf("compiler: unsupported binding target %T", target)
	}
}

func (c *Compiler) compileDefaultedBindingInit(p *ast.AssignmentPattern) error {
	c.emit(opcodes.OP_DUP, 0)
	c.emit(opcodes.OP_LOAD_UNDEFINED, 0)
	c.emit(opcodes.OP_SEQ, 0)
	jump := c.emit(opcodes.OP_JUMP_IF_FALSE, 0)
	c.emit(opcodes.OP_POP, 0)
	if err := c.compileExpression(p.Default); err != nil {
		return err
	}
	c.patchJump(jump)
	return c.compileBindingInit(p.Target)
}

func (c *Compiler) compileArrayPatternInit(p *ast.ArrayPattern) error {
	c.emit(opcodes.OP_GET_ITERATOR, 0)
	for _, el := range p.Elements {
		if el == nil {
			c.emit(opcodes.OP_ITER_NEXT, 0)
			c.emit(opcodes.OP_POP, 0) // done
			c.emit(opcodes.OP_POP, 0) // value, elided
			continue
		}
		if rest, ok := el.(*ast.RestElement); ok {
			// The rest element exhausts the iterator (ARRAY_SPREAD
			// consumes it from the stack), so no close follows.
			c.emit(opcodes.OP_NEW_ARRAY, 0)
			c.emit(opcodes.OP_SWAP, 0)
			c.emit(opcodes.OP_ARRAY_SPREAD, 0)
			return c.compileBindingInit(rest.Argument)
		}
		c.emit(opcodes.OP_ITER_NEXT, 0)
		c.emit(opcodes.OP_POP, 0) // done, unused once ITER_CLOSE's abrupt-close handling applies
		if err := c.compileBindingInit(el); err != nil {
			return err
		}
	}
	c.emit(opcodes.OP_ITER_CLOSE, 0)
	return nil
}

func (c *Compiler) compileObjectPatternInit(p *ast.ObjectPattern) error {
	for _, prop := range p.Properties {
		c.emit(opcodes.OP_DUP, 0)
		if err := c.compilePropertyKeyAccess(prop.Key, prop.Computed); err != nil {
			return err
		}
		if err := c.compileBindingInit(prop.Value); err != nil {
			return err
		}
	}
	if p.Rest != nil {
		c.emit(opcodes.OP_NEW_OBJECT, 0)
		c.emit(opcodes.OP_SWAP, 0)
		c.emit(opcodes.OP_OBJECT_SPREAD, 0)
		if err := c.compileBindingInit(p.Rest.Argument); err != nil {
			return err
		}
	} else {
		c.emit(opcodes.OP_POP, 0)
	}
	return nil
}

func (c *Compiler) compilePropertyKeyAccess(key ast.Expression, computed bool) error {
	if computed {
		if err := c.compileExpression(key); err != nil {
			return err
		}
		c.emit(opcodes.OP_GET_PROPERTY_COMPUTED, 0)
		return nil
	}
	name := propertyKeyName(key)
	idx := c.addConstant(stringConst(name))
	c.emit(opcodes.OP_GET_PROPERTY, idx)
	return nil
}

func (c *Compiler) compileBlock(b *ast.BlockStatement) error {
	c.emit(opcodes.OP_ENTER_BLOCK_SCOPE, c.addScopeTemplate(b.Scope))
	prevScope := c.scope
	c.scope = b.Scope
	if err := c.hoistBlockFunctions(b.Body); err != nil {
		return err
	}
	for _, stmt := range b.Body {
		if err := c.compileStatement(stmt); err != nil {
			return err
		}
	}
	c.scope = prevScope
	c.emit(opcodes.OP_EXIT_BLOCK_SCOPE, 0)
	return nil
}

// hoistBlockFunctions instantiates function declarations that appear
// directly in a block body, the nested-block half of hoisting.
func (c *Compiler) hoistBlockFunctions(body []ast.Statement) error {
	for _, stmt := range body {
		fd, ok := stmt.(*ast.FunctionDeclaration)
		if !ok || fd.Id == nil {
			continue
		}
		child, err := compileFunctionBody(&fd.Function)
		if err != nil {
			return err
		}
		idx := c.addChild(child)
		c.emit(opcodes.OP_MAKE_FUNCTION, idx)
		loc := c.addLocator(fd.Id.Name)
		c.emit(opcodes.OP_INIT_BINDING, loc)
	}
	return nil
}

func (c *Compiler) compileIf(s *ast.IfStatement) error {
	if err := c.compileExpression(s.Test); err != nil {
		return err
	}
	elseJump := c.emit(opcodes.OP_JUMP_IF_FALSE, 0)
	if err := c.compileStatement(s.Consequent); err != nil {
		return err
	}
	if s.Alternate == nil {
		c.patchJump(elseJump)
		return nil
	}
	endJump := c.emit(opcodes.OP_JUMP, 0)
	c.patchJump(elseJump)
	if err := c.compileStatement(s.Alternate); err != nil {
		return err
	}
	c.patchJump(endJump)
	return nil
}

func (c *Compiler) pushLoop(label string) *loopControl {
	if label == "" && c.pendingLoopLabel != "" {
		label = c.pendingLoopLabel
		c.pendingLoopLabel = ""
	}
	lc := &loopControl{label: label}
	c.loops = append(c.loops, lc)
	c.controls = append(c.controls, controlEntry{kind: controlLoop, loop: lc})
	return lc
}

func (c *Compiler) popLoop() *loopControl {
	lc := c.loops[len(c.loops)-1]
	c.loops = c.loops[:len(c.loops)-1]
	c.controls = c.controls[:len(c.controls)-1]
	return lc
}

// markTopControl upgrades the control entry pushLoop just created to
// one of the stack-carrying kinds (for-of iterator, switch
// discriminant).
func (c *Compiler) markTopControl(kind controlKind) {
	c.controls[len(c.controls)-1].kind = kind
}

// emitExitActions emits the code an abrupt completion owes the
// constructs it is jumping out of: everything in c.controls at index
// downTo or deeper, innermost-first. valueOnTop is true at a return
// site, where the return value rides above the iterators/discriminants
// being retired. Finally bodies are re-emitted inline with the
// enclosing control context truncated, so a nested abrupt completion
// inside a finally only sees constructs outside it.
func (c *Compiler) emitExitActions(downTo int, valueOnTop bool) error {
	for i := len(c.controls) - 1; i >= downTo; i-- {
		entry := c.controls[i]
		switch entry.kind {
		case controlIterLoop:
			if valueOnTop {
				c.emit(opcodes.OP_SWAP, 0)
			}
			c.emit(opcodes.OP_ITER_CLOSE, 0)
		case controlSwitch:
			if valueOnTop {
				c.emit(opcodes.OP_SWAP, 0)
			}
			c.emit(opcodes.OP_POP, 0)
		case controlFinally:
			// Retire the runtime entry first so a throw inside the
			// inlined body propagates outward instead of re-entering
			// this same finally via its handler.
			c.emit(opcodes.OP_POP_FINALLY, int32(entry.finallyIdx))
			// The truncated view gets its own backing array: the
			// finally body may push loop entries of its own, which must
			// not overwrite the live entries being iterated here.
			saved := c.controls
			c.controls = append([]controlEntry(nil), saved[:i]...)
			err := c.compileBlock(entry.finallyBody)
			c.controls = saved
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Compiler) resolveBreaks(lc *loopControl) {
	for _, j := range lc.breaks {
		c.patchJump(j.instructionIndex)
	}
}

func (c *Compiler) resolveContinues(lc *loopControl, target int) {
	for _, j := range lc.continues {
		c.instructions[j.instructionIndex].Operand = int32(target)
	}
}

func (c *Compiler) compileWhile(s *ast.WhileStatement) error {
	lc := c.pushLoop("")
	start := c.here()
	if err := c.compileExpression(s.Test); err != nil {
		return err
	}
	exitJump := c.emit(opcodes.OP_JUMP_IF_FALSE, 0)
	if err := c.compileStatement(s.Body); err != nil {
		return err
	}
	c.emit(opcodes.OP_LOOP_HINT, 0)
	c.emit(opcodes.OP_JUMP, int32(start))
	c.patchJump(exitJump)
	c.resolveContinues(lc, start)
	c.resolveBreaks(lc)
	c.popLoop()
	return nil
}

func (c *Compiler) compileDoWhile(s *ast.DoWhileStatement) error {
	lc := c.pushLoop("")
	start := c.here()
	if err := c.compileStatement(s.Body); err != nil {
		return err
	}
	continueTarget := c.here()
	if err := c.compileExpression(s.Test); err != nil {
		return err
	}
	c.emit(opcodes.OP_JUMP_IF_TRUE, int32(start))
	c.resolveContinues(lc, continueTarget)
	c.resolveBreaks(lc)
	c.popLoop()
	return nil
}

func (c *Compiler) compileFor(s *ast.ForStatement) error {
	prevScope := c.scope
	if s.Scope != nil {
		c.emit(opcodes.OP_ENTER_BLOCK_SCOPE, c.addScopeTemplate(s.Scope))
		c.scope = s.Scope
	}
	if decl, ok := s.Init.(*ast.VariableDeclaration); ok {
		if err := c.compileVariableDeclaration(decl); err != nil {
			return err
		}
	} else if expr, ok := s.Init.(ast.Expression); ok && expr != nil {
		if err := c.compileExpression(expr); err != nil {
			return err
		}
		c.emit(opcodes.OP_POP, 0)
	}
	lc := c.pushLoop("")
	start := c.here()
	var exitJump int
	hasTest := s.Test != nil
	if hasTest {
		if err := c.compileExpression(s.Test); err != nil {
			return err
		}
		exitJump = c.emit(opcodes.OP_JUMP_IF_FALSE, 0)
	}
	if err := c.compileStatement(s.Body); err != nil {
		return err
	}
	continueTarget := c.here()
	if s.Update != nil {
		if err := c.compileExpression(s.Update); err != nil {
			return err
		}
		c.emit(opcodes.OP_POP, 0)
	}
	c.emit(opcodes.OP_LOOP_HINT, 0)
	c.emit(opcodes.OP_JUMP, int32(start))
	if hasTest {
		c.patchJump(exitJump)
	}
	c.resolveContinues(lc, continueTarget)
	c.resolveBreaks(lc)
	c.popLoop()
	if s.Scope != nil {
		c.emit(opcodes.OP_EXIT_BLOCK_SCOPE, 0)
		c.scope = prevScope
	}
	return nil
}

func (c *Compiler) compileForIn(s *ast.ForInStatement) error {
	return c.compileForInOf(s.Right, s.Left, s.IsDeclaration, s.LeftDeclKind, s.Body, s.Scope, false, opcodes.OP_GET_ITERATOR)
}

func (c *Compiler) compileForOf(s *ast.ForOfStatement) error {
	getIter := opcodes.OP_GET_ITERATOR
	if s.IsAwait {
		getIter = opcodes.OP_GET_ASYNC_ITERATOR
	}
	return c.compileForInOf(s.Right, s.Left, s.IsDeclaration, s.LeftDeclKind, s.Body, s.Scope, s.IsAwait, getIter)
}

// compileForInOf shares the iterator-driven loop shape between for-in
// (iterates enumerable keys) and for-of (iterates values); the VM's
// OP_GET_ITERATOR dispatches to the right protocol based on the
// right-hand value's type for for-in's legacy behavior.
func (c *Compiler) compileForInOf(right ast.Expression, left ast.Node, isDecl bool, declKind ast.DeclarationKind, body ast.Statement, scope *ast.Scope, isAwait bool, getIter opcodes.Opcode) error {
	if err := c.compileExpression(right); err != nil {
		return err
	}
	c.emit(getIter, 0)
	lc := c.pushLoop("")
	c.markTopControl(controlIterLoop)
	start := c.here()
	if isAwait {
		// An async iterator's next() yields a promise of the result
		// object, so the await sits between the call and the unpack.
		c.emit(opcodes.OP_ITER_NEXT_RAW, 0)
		c.emit(opcodes.OP_AWAIT, 0)
		c.emit(opcodes.OP_ITER_UNPACK, 0)
	} else {
		c.emit(opcodes.OP_ITER_NEXT, 0)
	}
	// OP_ITER_NEXT leaves {done} testable via duplication; the VM is
	// expected to push a boolean "done" flag the compiler can branch on
	// directly, then the value beneath it for binding.
	exitJump := c.emit(opcodes.OP_JUMP_IF_TRUE, 0)
	prevScope := c.scope
	if scope != nil {
		c.emit(opcodes.OP_ENTER_BLOCK_SCOPE, c.addScopeTemplate(scope))
		c.scope = scope
	}
	if isDecl {
		_ = declKind
		if err := c.compileBindingInit(left); err != nil {
			return err
		}
	} else {
		if err := c.compileAssignmentTarget(left.(ast.Expression)); err != nil {
			return err
		}
	}
	if err := c.compileStatement(body); err != nil {
		return err
	}
	if scope != nil {
		c.emit(opcodes.OP_EXIT_BLOCK_SCOPE, 0)
		c.scope = prevScope
	}
	c.emit(opcodes.OP_LOOP_HINT, 0)
	c.emit(opcodes.OP_JUMP, int32(start))
	c.patchJump(exitJump)
	// The done=true branch of ITER_NEXT left its (normally unused) value
	// on the stack alongside the iterator; drop it before closing so
	// ITER_CLOSE sees only the iterator, matching every other path that
	// reaches it.
	c.emit(opcodes.OP_POP, 0)
	c.resolveContinues(lc, start)
	// break lands here, where the stack holds exactly [iterator], so an
	// abrupt exit still runs IteratorClose (ECMA-262 §14.7.5.7 step 6.d).
	c.resolveBreaks(lc)
	c.emit(opcodes.OP_ITER_CLOSE, 0)
	c.popLoop()
	return nil
}

// findControlTarget locates the innermost control entry break/continue
// resolves to: by label when given, otherwise the innermost loop
// (continue) or loop/switch (break).
func (c *Compiler) findControlTarget(label string, continueTarget bool) int {
	for i := len(c.controls) - 1; i >= 0; i-- {
		lc := c.controls[i].loop
		if lc == nil {
			continue
		}
		if label != "" {
			if lc.label == label {
				return i
			}
			continue
		}
		if lc.plainLabel || (continueTarget && lc.isSwitch) {
			continue
		}
		return i
	}
	return -1
}

func (c *Compiler) compileBreak(s *ast.BreakStatement) error {
	idx := c.findControlTarget(s.Label, false)
	if idx < 0 {
		return compileErrorf("compiler: break outside loop/switch")
	}
	// Everything nested inside the target (inner iterators, switch
	// discriminants, finally bodies) is retired before the jump; the
	// target's own landing site handles its own cleanup.
	if err := c.emitExitActions(idx+1, false); err != nil {
		return err
	}
	j := c.emit(opcodes.OP_JUMP, 0)
	lc := c.controls[idx].loop
	lc.breaks = append(lc.breaks, pendingJump{instructionIndex: j})
	return nil
}

func (c *Compiler) compileContinue(s *ast.ContinueStatement) error {
	idx := c.findControlTarget(s.Label, true)
	if idx < 0 {
		return compileErrorf("compiler: continue outside loop")
	}
	if err := c.emitExitActions(idx+1, false); err != nil {
		return err
	}
	j := c.emit(opcodes.OP_JUMP, 0)
	lc := c.controls[idx].loop
	lc.continues = append(lc.continues, pendingJump{instructionIndex: j})
	return nil
}

// compileReturn evaluates the result, then settles every enclosing
// construct's debts — finally bodies run, live for-of iterators close,
// duplicated switch discriminants drop — innermost-first, before the
// frame actually returns (the per-finally jump routing of an abrupt
// return).
func (c *Compiler) compileReturn(s *ast.ReturnStatement) error {
	if s.Argument != nil {
		if err := c.compileExpression(s.Argument); err != nil {
			return err
		}
	} else {
		c.emit(opcodes.OP_LOAD_UNDEFINED, 0)
	}
	if err := c.emitExitActions(0, true); err != nil {
		return err
	}
	c.emit(opcodes.OP_RETURN, 0)
	return nil
}

// compileTry lowers try/catch/finally onto the VM's runtime handler
// stack: OP_PUSH_TRY/OP_PUSH_FINALLY record the operand-stack depth
// and environment to restore when a throw unwinds to them. The
// finally body is emitted twice — once on the fall-through path, once
// on the exception path followed by a rethrow — the classic
// duplication that avoids a runtime completion record.
func (c *Compiler) compileTry(s *ast.TryStatement) error {
	finallyIdx := -1
	if s.Finally != nil {
		finallyIdx = len(c.handlers)
		c.handlers = append(c.handlers, registryHandlerPlaceholder())
		c.emit(opcodes.OP_PUSH_FINALLY, int32(finallyIdx))
		// break/continue/return inside the try or catch must run this
		// finally on their way out.
		c.controls = append(c.controls, controlEntry{kind: controlFinally, finallyBody: s.Finally, finallyIdx: finallyIdx})
	}
	protectedStart := c.here()

	if s.Handler != nil {
		handlerIdx := len(c.handlers)
		c.handlers = append(c.handlers, registryHandlerPlaceholder())
		c.emit(opcodes.OP_PUSH_TRY, int32(handlerIdx))
		start := c.here()
		if err := c.compileBlock(s.Block); err != nil {
			return err
		}
		end := c.here()
		c.emit(opcodes.OP_POP_TRY, int32(handlerIdx))
		skipHandler := c.emit(opcodes.OP_JUMP, 0)

		// The handler receives the thrown value on the (restored)
		// operand stack.
		catchTarget := c.here()
		prevScope := c.scope
		if s.Handler.Scope != nil {
			c.emit(opcodes.OP_ENTER_BLOCK_SCOPE, c.addScopeTemplate(s.Handler.Scope))
			c.scope = s.Handler.Scope
		}
		if s.Handler.Param != nil {
			if err := c.compileBindingInit(s.Handler.Param); err != nil {
				return err
			}
		} else {
			c.emit(opcodes.OP_POP, 0)
		}
		for _, stmt := range s.Handler.Body.Body {
			if err := c.compileStatement(stmt); err != nil {
				return err
			}
		}
		if s.Handler.Scope != nil {
			c.emit(opcodes.OP_EXIT_BLOCK_SCOPE, 0)
			c.scope = prevScope
		}
		c.patchJump(skipHandler)
		c.handlers[handlerIdx] = handlerRecord(start, end, catchTarget)
	} else {
		if err := c.compileBlock(s.Block); err != nil {
			return err
		}
	}

	if s.Finally != nil {
		c.controls = c.controls[:len(c.controls)-1]
		c.emit(opcodes.OP_POP_FINALLY, int32(finallyIdx))
		protectedEnd := c.here()
		if err := c.compileBlock(s.Finally); err != nil {
			return err
		}
		skipRethrow := c.emit(opcodes.OP_JUMP, 0)

		rethrowTarget := c.here()
		if err := c.compileBlock(s.Finally); err != nil {
			return err
		}
		c.emit(opcodes.OP_THROW, 0)
		c.patchJump(skipRethrow)
		c.handlers[finallyIdx] = finallyHandlerRecord(protectedStart, protectedEnd, rethrowTarget)
	}
	return nil
}

func (c *Compiler) compileSwitch(s *ast.SwitchStatement) error {
	if err := c.compileExpression(s.Discriminant); err != nil {
		return err
	}
	prevScope := c.scope
	if s.Scope != nil {
		c.emit(opcodes.OP_ENTER_BLOCK_SCOPE, c.addScopeTemplate(s.Scope))
		c.scope = s.Scope
	}
	lc := c.pushLoop("")
	lc.isSwitch = true
	c.markTopControl(controlSwitch)

	var caseJumps []int
	defaultIdx := -1
	for i, cs := range s.Cases {
		if cs.Test == nil {
			defaultIdx = i
			caseJumps = append(caseJumps, -1)
			continue
		}
		c.emit(opcodes.OP_DUP, 0)
		if err := c.compileExpression(cs.Test); err != nil {
			return err
		}
		c.emit(opcodes.OP_SEQ, 0)
		caseJumps = append(caseJumps, c.emit(opcodes.OP_JUMP_IF_TRUE, 0))
	}
	afterTests := c.emit(opcodes.OP_JUMP, 0)

	bodyStarts := make([]int, len(s.Cases))
	for i, cs := range s.Cases {
		bodyStarts[i] = c.here()
		if caseJumps[i] >= 0 {
			c.patchJump(caseJumps[i])
		}
		for _, stmt := range cs.Consequent {
			if err := c.compileStatement(stmt); err != nil {
				return err
			}
		}
	}
	if defaultIdx >= 0 {
		// No test matched: enter the default body (which may sit between
		// other cases, so fall-through past it still works).
		c.instructions[afterTests].Operand = int32(bodyStarts[defaultIdx])
	} else {
		c.patchJump(afterTests)
	}
	// break lands on the POP so the duplicated discriminant is dropped
	// on every exit path.
	c.resolveBreaks(lc)
	c.emit(opcodes.OP_POP, 0)
	c.popLoop()
	if s.Scope != nil {
		c.emit(opcodes.OP_EXIT_BLOCK_SCOPE, 0)
		c.scope = prevScope
	}
	return nil
}

func (c *Compiler) compileLabeled(s *ast.LabeledStatement) error {
	switch body := s.Body.(type) {
	case *ast.WhileStatement, *ast.DoWhileStatement, *ast.ForStatement, *ast.ForInStatement, *ast.ForOfStatement:
		// The label is handed to the loop's own compile call through
		// pendingLoopLabel (compileLabeledLoop), so the loopControl that
		// call pushes carries it and labeled break/continue target it.
		return c.compileLabeledLoop(s.Label, body)
	default:
		lc := c.pushLoop(s.Label)
		lc.isSwitch = true
		lc.plainLabel = true
		if err := c.compileStatement(s.Body); err != nil {
			return err
		}
		c.resolveBreaks(lc)
		c.popLoop()
		return nil
	}
}

// compileLabeledLoop compiles a labeled iteration statement by running
// the ordinary per-kind compiler but with the label pre-seeded onto the
// loopControl it pushes, so `continue label;` resolves to this loop
// rather than only an unlabeled innermost one.
func (c *Compiler) compileLabeledLoop(label string, body ast.Statement) error {
	c.pendingLoopLabel = label
	defer func() { c.pendingLoopLabel = "" }()
	return c.compileStatement(body)
}

func (c *Compiler) compileWith(s *ast.WithStatement) error {
	if err := c.compileExpression(s.Object); err != nil {
		return err
	}
	// Operand -1 tells the VM this is an object environment record
	// sourced from the value already pushed on the stack, rather than a
	// Scopes-table index.
	c.emit(opcodes.OP_ENTER_BLOCK_SCOPE, -1)
	if err := c.compileStatement(s.Body); err != nil {
		return err
	}
	c.emit(opcodes.OP_EXIT_BLOCK_SCOPE, 0)
	return nil
}
