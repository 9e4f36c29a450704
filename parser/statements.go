package parser

import (
	"github.com/wudi/esprel/ast"
	"github.com/wudi/esprel/lexer"
)

// parseStatementListItem parses a StatementListItem: Statement or
// Declaration (function/class/let/const), per ECMA-262's split between
// the two so that declarations are rejected in single-statement
// positions like `if (x) let y = 1;`.
func (p *Parser) parseStatementListItem() (ast.Statement, error) {
	switch {
	case p.at("function"):
		return p.parseFunctionDeclaration(false)
	case p.at("async") && p.peek(0).Value == "function" && !p.peek(0).NewlineBefore:
		p.advance()
		return p.parseFunctionDeclaration(true)
	case p.at("class"):
		return p.parseClassDeclaration()
	case p.at("let") || p.at("const"):
		return p.parseVariableStatement()
	default:
		return p.parseStatement()
	}
}

func (p *Parser) parseStatement() (ast.Statement, error) {
	start := p.pos()
	switch {
	case p.at("{"):
		return p.parseBlock()
	case p.at("var"):
		return p.parseVariableStatement()
	case p.at(";"):
		p.advance()
		return &ast.EmptyStatement{Base: ast.Base{K: ast.KindEmptyStatement, Loc: start}}, nil
	case p.at("if"):
		return p.parseIf()
	case p.at("for"):
		return p.parseFor()
	case p.at("while"):
		return p.parseWhile()
	case p.at("do"):
		return p.parseDoWhile()
	case p.at("break"):
		return p.parseBreak()
	case p.at("continue"):
		return p.parseContinue()
	case p.at("return"):
		return p.parseReturn()
	case p.at("throw"):
		return p.parseThrow()
	case p.at("try"):
		return p.parseTry()
	case p.at("switch"):
		return p.parseSwitch()
	case p.at("with"):
		return p.parseWith()
	case p.at("debugger"):
		p.advance()
		if err := p.consumeSemicolon(); err != nil {
			return nil, err
		}
		return &ast.DebuggerStatement{Base: ast.Base{K: ast.KindDebuggerStatement, Loc: start}}, nil
	case p.tok.Kind == lexer.Identifier && p.peek(0).Value == ":":
		return p.parseLabeled()
	default:
		return p.parseExpressionStatement()
	}
}

func (p *Parser) parseBlock() (*ast.BlockStatement, error) {
	start := p.pos()
	if _, err := p.expect("{"); err != nil {
		return nil, err
	}
	p.pushScope(ast.ScopeBlock)
	var body []ast.Statement
	for !p.at("}") && p.tok.Kind != lexer.EOF {
		stmt, err := p.parseStatementListItem()
		if err != nil {
			return nil, err
		}
		body = append(body, stmt)
	}
	scope := p.popScope()
	if _, err := p.expect("}"); err != nil {
		return nil, err
	}
	return &ast.BlockStatement{Base: ast.Base{K: ast.KindBlockStatement, Loc: start}, Body: body, Scope: scope}, nil
}

func declKindOf(tok string) ast.DeclarationKind {
	switch tok {
	case "let":
		return ast.DeclLet
	case "const":
		return ast.DeclConst
	default:
		return ast.DeclVar
	}
}

func (p *Parser) parseVariableStatement() (ast.Statement, error) {
	decl, err := p.parseVariableDeclarationList()
	if err != nil {
		return nil, err
	}
	if err := p.consumeSemicolon(); err != nil {
		return nil, err
	}
	return decl, nil
}

func (p *Parser) parseVariableDeclarationList() (*ast.VariableDeclaration, error) {
	start := p.pos()
	kind := declKindOf(p.tok.Value)
	bkind := ast.BindingVar
	switch kind {
	case ast.DeclLet:
		bkind = ast.BindingLet
	case ast.DeclConst:
		bkind = ast.BindingConst
	}
	p.advance()
	var decls []*ast.VariableDeclarator
	for {
		target, err := p.parseBindingTarget()
		if err != nil {
			return nil, err
		}
		for _, name := range ast.BoundNames(target) {
			p.declareInto(kind, name, bkind)
		}
		var init ast.Expression
		if p.at("=") {
			p.advance()
			init, err = p.parseAssignmentExpression()
			if err != nil {
				return nil, err
			}
		} else if kind == ast.DeclConst && !p.at("in") && !p.at("of") {
			return nil, newError(p.pos(), "missing initializer in const declaration")
		}
		decls = append(decls, &ast.VariableDeclarator{
			Base:   ast.Base{K: ast.KindVariableDeclarator, Loc: target.Pos()},
			Target: target,
			Init:   init,
		})
		if !p.at(",") {
			break
		}
		p.advance()
	}
	return &ast.VariableDeclaration{Base: ast.Base{K: ast.KindVariableDeclaration, Loc: start}, DeclKind: kind, Declarations: decls}, nil
}

// declareInto places a binding in the appropriate scope: `var` hoists to
// the nearest function/script/module scope;
// let/const bind in the current lexical scope, uninitialized until the
// declaration executes (TDZ).
func (p *Parser) declareInto(kind ast.DeclarationKind, name string, bkind ast.BindingKind) {
	target := p.scope
	if kind == ast.DeclVar {
		target = p.scope.VarScope()
	}
	target.Declare(name, bkind)
}

func (p *Parser) parseBindingTarget() (ast.Node, error) {
	switch {
	case p.at("["):
		return p.parseArrayBindingPattern()
	case p.at("{"):
		return p.parseObjectBindingPattern()
	default:
		return p.parseBindingIdentifier()
	}
}

func (p *Parser) parseBindingIdentifier() (*ast.Identifier, error) {
	if p.tok.Kind != lexer.Identifier && p.tok.Kind != lexer.Keyword {
		return nil, newError(p.pos(), "expected identifier, found %q", p.tok.Value)
	}
	id := &ast.Identifier{Base: ast.Base{K: ast.KindIdentifier, Loc: p.pos()}, Name: p.tok.Value}
	p.advance()
	return id, nil
}

func (p *Parser) parseArrayBindingPattern() (*ast.ArrayPattern, error) {
	start := p.pos()
	if _, err := p.expect("["); err != nil {
		return nil, err
	}
	var elems []ast.Node
	for !p.at("]") {
		if p.at(",") {
			elems = append(elems, nil)
			p.advance()
			continue
		}
		if p.at("...") {
			p.advance()
			arg, err := p.parseBindingTarget()
			if err != nil {
				return nil, err
			}
			elems = append(elems, &ast.RestElement{Base: ast.Base{K: ast.KindRestElement, Loc: start}, Argument: arg})
			break
		}
		target, err := p.parseBindingTarget()
		if err != nil {
			return nil, err
		}
		if p.at("=") {
			p.advance()
			def, err := p.parseAssignmentExpression()
			if err != nil {
				return nil, err
			}
			target = &ast.AssignmentPattern{Base: ast.Base{K: ast.KindAssignmentPattern, Loc: target.Pos()}, Target: target, Default: def}
		}
		elems = append(elems, target)
		if p.at(",") {
			p.advance()
		} else {
			break
		}
	}
	if _, err := p.expect("]"); err != nil {
		return nil, err
	}
	return &ast.ArrayPattern{Base: ast.Base{K: ast.KindArrayPattern, Loc: start}, Elements: elems}, nil
}

func (p *Parser) parseObjectBindingPattern() (*ast.ObjectPattern, error) {
	start := p.pos()
	if _, err := p.expect("{"); err != nil {
		return nil, err
	}
	pat := &ast.ObjectPattern{Base: ast.Base{K: ast.KindObjectPattern, Loc: start}}
	for !p.at("}") {
		if p.at("...") {
			p.advance()
			arg, err := p.parseBindingIdentifier()
			if err != nil {
				return nil, err
			}
			pat.Rest = &ast.RestElement{Base: ast.Base{K: ast.KindRestElement, Loc: start}, Argument: arg}
			break
		}
		computed := false
		var key ast.Expression
		if p.at("[") {
			computed = true
			p.advance()
			k, err := p.parseAssignmentExpression()
			if err != nil {
				return nil, err
			}
			key = k
			if _, err := p.expect("]"); err != nil {
				return nil, err
			}
		} else {
			keyTok := p.tok
			key = p.identifierOrLiteralKey(keyTok)
			p.advance()
		}
		var value ast.Node
		if p.at(":") {
			p.advance()
			v, err := p.parseBindingTarget()
			if err != nil {
				return nil, err
			}
			value = v
		} else {
			if id, ok := key.(*ast.Identifier); ok {
				value = &ast.Identifier{Base: id.Base, Name: id.Name}
			} else {
				return nil, newError(p.pos(), "invalid shorthand property in binding pattern")
			}
		}
		if p.at("=") {
			p.advance()
			def, err := p.parseAssignmentExpression()
			if err != nil {
				return nil, err
			}
			value = &ast.AssignmentPattern{Base: ast.Base{K: ast.KindAssignmentPattern, Loc: key.Pos()}, Target: value, Default: def}
		}
		pat.Properties = append(pat.Properties, &ast.ObjectPatternProperty{
			Base: ast.Base{K: ast.KindObjectPattern, Loc: key.Pos()}, Key: key, Value: value, Computed: computed,
		})
		if p.at(",") {
			p.advance()
		} else {
			break
		}
	}
	if _, err := p.expect("}"); err != nil {
		return nil, err
	}
	return pat, nil
}

func (p *Parser) identifierOrLiteralKey(tok lexer.Token) ast.Expression {
	if tok.Kind == lexer.StringLiteral {
		return &ast.StringLiteral{Base: ast.Base{K: ast.KindStringLiteral, Loc: tok.Start}, Value: tok.Value}
	}
	if tok.Kind == lexer.NumericLiteral {
		return &ast.Identifier{Base: ast.Base{K: ast.KindIdentifier, Loc: tok.Start}, Name: tok.Value}
	}
	return &ast.Identifier{Base: ast.Base{K: ast.KindIdentifier, Loc: tok.Start}, Name: tok.Value}
}

func (p *Parser) parseExpressionStatement() (ast.Statement, error) {
	start := p.pos()
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.consumeSemicolon(); err != nil {
		return nil, err
	}
	return &ast.ExpressionStatement{Base: ast.Base{K: ast.KindExpressionStatement, Loc: start}, Expression: expr}, nil
}

func (p *Parser) parseIf() (ast.Statement, error) {
	start := p.pos()
	p.advance()
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	test, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	cons, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	var alt ast.Statement
	if p.at("else") {
		p.advance()
		alt, err = p.parseStatement()
		if err != nil {
			return nil, err
		}
	}
	return &ast.IfStatement{Base: ast.Base{K: ast.KindIfStatement, Loc: start}, Test: test, Consequent: cons, Alternate: alt}, nil
}

func (p *Parser) parseWhile() (ast.Statement, error) {
	start := p.pos()
	p.advance()
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	test, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	p.inLoop++
	body, err := p.parseStatement()
	p.inLoop--
	if err != nil {
		return nil, err
	}
	return &ast.WhileStatement{Base: ast.Base{K: ast.KindWhileStatement, Loc: start}, Test: test, Body: body}, nil
}

func (p *Parser) parseDoWhile() (ast.Statement, error) {
	start := p.pos()
	p.advance()
	p.inLoop++
	body, err := p.parseStatement()
	p.inLoop--
	if err != nil {
		return nil, err
	}
	if _, err := p.expect("while"); err != nil {
		return nil, err
	}
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	test, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	_ = p.consumeSemicolon()
	return &ast.DoWhileStatement{Base: ast.Base{K: ast.KindDoWhileStatement, Loc: start}, Body: body, Test: test}, nil
}

// parseFor disambiguates `for (;;)`, `for (x in y)`, and `for (x of y)`
// after committing to an init clause, via context-sensitive
// lookahead for `for (let of`/`for (async of`.
func (p *Parser) parseFor() (ast.Statement, error) {
	start := p.pos()
	p.advance()
	isAwait := false
	if p.at("await") {
		isAwait = true
		p.advance()
	}
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	scope := p.pushScope(ast.ScopeFor)

	var init ast.Node
	isDecl := false
	declKind := ast.DeclVar
	if p.at("var") || p.at("let") || p.at("const") {
		isDecl = true
		declKind = declKindOf(p.tok.Value)
		decl, err := p.parseVariableDeclarationList()
		if err != nil {
			return nil, err
		}
		init = decl
	} else if !p.at(";") {
		expr, err := p.parseExpressionNoIn()
		if err != nil {
			return nil, err
		}
		init = expr
	}

	if p.at("in") || p.at("of") {
		isOf := p.at("of")
		p.advance()
		right, err := p.parseAssignmentExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(")"); err != nil {
			return nil, err
		}
		p.inLoop++
		body, err := p.parseStatement()
		p.inLoop--
		if err != nil {
			return nil, err
		}
		p.popScope()
		var left ast.Node = init
		if decl, ok := init.(*ast.VariableDeclaration); ok {
			left = decl.Declarations[0].Target
		}
		if isOf {
			return &ast.ForOfStatement{Base: ast.Base{K: ast.KindForOfStatement, Loc: start}, Left: left, Right: right, Body: body, Scope: scope, IsAwait: isAwait, LeftDeclKind: declKind, IsDeclaration: isDecl}, nil
		}
		return &ast.ForInStatement{Base: ast.Base{K: ast.KindForInStatement, Loc: start}, Left: left, Right: right, Body: body, Scope: scope, LeftDeclKind: declKind, IsDeclaration: isDecl}, nil
	}

	if _, err := p.expect(";"); err != nil {
		return nil, err
	}
	var test ast.Expression
	if !p.at(";") {
		t, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		test = t
	}
	if _, err := p.expect(";"); err != nil {
		return nil, err
	}
	var update ast.Expression
	if !p.at(")") {
		u, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		update = u
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	p.inLoop++
	body, err := p.parseStatement()
	p.inLoop--
	if err != nil {
		return nil, err
	}
	p.popScope()
	return &ast.ForStatement{Base: ast.Base{K: ast.KindForStatement, Loc: start}, Init: init, Test: test, Update: update, Body: body, Scope: scope}, nil
}

func (p *Parser) parseBreak() (ast.Statement, error) {
	start := p.pos()
	p.advance()
	label := ""
	if p.tok.Kind == lexer.Identifier && !p.tok.NewlineBefore {
		label = p.tok.Value
		p.advance()
	}
	if err := p.consumeSemicolon(); err != nil {
		return nil, err
	}
	return &ast.BreakStatement{Base: ast.Base{K: ast.KindBreakStatement, Loc: start}, Label: label}, nil
}

func (p *Parser) parseContinue() (ast.Statement, error) {
	start := p.pos()
	p.advance()
	label := ""
	if p.tok.Kind == lexer.Identifier && !p.tok.NewlineBefore {
		label = p.tok.Value
		p.advance()
	}
	if err := p.consumeSemicolon(); err != nil {
		return nil, err
	}
	return &ast.ContinueStatement{Base: ast.Base{K: ast.KindContinueStatement, Loc: start}, Label: label}, nil
}

func (p *Parser) parseReturn() (ast.Statement, error) {
	start := p.pos()
	p.advance()
	var arg ast.Expression
	if !p.at(";") && !p.at("}") && p.tok.Kind != lexer.EOF && !p.tok.NewlineBefore {
		a, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		arg = a
	}
	if err := p.consumeSemicolon(); err != nil {
		return nil, err
	}
	return &ast.ReturnStatement{Base: ast.Base{K: ast.KindReturnStatement, Loc: start}, Argument: arg}, nil
}

func (p *Parser) parseThrow() (ast.Statement, error) {
	start := p.pos()
	p.advance()
	if p.tok.NewlineBefore {
		return nil, newError(start, "illegal newline after throw")
	}
	arg, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.consumeSemicolon(); err != nil {
		return nil, err
	}
	return &ast.ThrowStatement{Base: ast.Base{K: ast.KindThrowStatement, Loc: start}, Argument: arg}, nil
}

func (p *Parser) parseTry() (ast.Statement, error) {
	start := p.pos()
	p.advance()
	block, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	var handler *ast.CatchClause
	var finallyBlock *ast.BlockStatement
	if p.at("catch") {
		cstart := p.pos()
		p.advance()
		scope := p.pushScope(ast.ScopeCatch)
		var param ast.Node
		if p.at("(") {
			p.advance()
			target, err := p.parseBindingTarget()
			if err != nil {
				return nil, err
			}
			for _, name := range ast.BoundNames(target) {
				scope.Declare(name, ast.BindingCatch)
			}
			param = target
			if _, err := p.expect(")"); err != nil {
				return nil, err
			}
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		p.popScope()
		handler = &ast.CatchClause{Base: ast.Base{K: ast.KindCatchClause, Loc: cstart}, Param: param, Body: body, Scope: scope}
	}
	if p.at("finally") {
		p.advance()
		fb, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		finallyBlock = fb
	}
	if handler == nil && finallyBlock == nil {
		return nil, newError(start, "missing catch or finally after try")
	}
	return &ast.TryStatement{Base: ast.Base{K: ast.KindTryStatement, Loc: start}, Block: block, Handler: handler, Finally: finallyBlock}, nil
}

func (p *Parser) parseSwitch() (ast.Statement, error) {
	start := p.pos()
	p.advance()
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	disc, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	if _, err := p.expect("{"); err != nil {
		return nil, err
	}
	scope := p.pushScope(ast.ScopeSwitch)
	var cases []*ast.SwitchCase
	p.inSwitch++
	for !p.at("}") && p.tok.Kind != lexer.EOF {
		cstart := p.pos()
		var test ast.Expression
		if p.at("case") {
			p.advance()
			t, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			test = t
		} else if p.at("default") {
			p.advance()
		} else {
			return nil, newError(p.pos(), "expected 'case' or 'default'")
		}
		if _, err := p.expect(":"); err != nil {
			return nil, err
		}
		var body []ast.Statement
		for !p.at("case") && !p.at("default") && !p.at("}") && p.tok.Kind != lexer.EOF {
			stmt, err := p.parseStatementListItem()
			if err != nil {
				return nil, err
			}
			body = append(body, stmt)
		}
		cases = append(cases, &ast.SwitchCase{Base: ast.Base{K: ast.KindSwitchCase, Loc: cstart}, Test: test, Consequent: body})
	}
	p.inSwitch--
	if _, err := p.expect("}"); err != nil {
		return nil, err
	}
	p.popScope()
	return &ast.SwitchStatement{Base: ast.Base{K: ast.KindSwitchStatement, Loc: start}, Discriminant: disc, Cases: cases, Scope: scope}, nil
}

func (p *Parser) parseWith() (ast.Statement, error) {
	start := p.pos()
	if p.strict {
		return nil, newError(start, "'with' statement is not allowed in strict mode")
	}
	p.advance()
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	obj, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &ast.WithStatement{Base: ast.Base{K: ast.KindWithStatement, Loc: start}, Object: obj, Body: body}, nil
}

func (p *Parser) parseLabeled() (ast.Statement, error) {
	start := p.pos()
	label := p.tok.Value
	p.advance() // identifier
	p.advance() // ':'
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &ast.LabeledStatement{Base: ast.Base{K: ast.KindLabeledStatement, Loc: start}, Label: label, Body: body}, nil
}

func (p *Parser) parseFunctionDeclaration(isAsync bool) (*ast.FunctionDeclaration, error) {
	fn, err := p.parseFunctionCommon(isAsync, true)
	if err != nil {
		return nil, err
	}
	if fn.Id != nil {
		// The declaration binds its name in the enclosing scope (the
		// function's own scope, pushed by parseFunctionCommon, has been
		// popped by now).
		p.scope.Declare(fn.Id.Name, ast.BindingFunction)
	}
	return &ast.FunctionDeclaration{Function: *fn}, nil
}
