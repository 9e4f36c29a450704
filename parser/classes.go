package parser

import (
	"github.com/wudi/esprel/ast"
	"github.com/wudi/esprel/lexer"
)

func (p *Parser) parseClassDeclaration() (*ast.ClassDeclaration, error) {
	cls, err := p.parseClassCommon(true)
	if err != nil {
		return nil, err
	}
	cls.K = ast.KindClassDeclaration
	if cls.Id != nil {
		p.scope.Declare(cls.Id.Name, ast.BindingClass)
	}
	return &ast.ClassDeclaration{Class: *cls}, nil
}

func (p *Parser) parseClassExpression() (ast.Expression, error) {
	cls, err := p.parseClassCommon(false)
	if err != nil {
		return nil, err
	}
	cls.K = ast.KindClassExpression
	return &ast.ClassExpression{Class: *cls}, nil
}

// parseClassCommon parses `class` [id] [`extends` expr] `{` body `}`,
// shared by declarations and expressions. Classes are always strict
//, and their body introduces its own scope for the bound
// class name plus a private-name set validated after the body closes.
func (p *Parser) parseClassCommon(requireId bool) (*ast.Class, error) {
	start := p.pos()
	if _, err := p.expect("class"); err != nil {
		return nil, err
	}
	wasStrict := p.strict
	p.strict = true

	var id *ast.Identifier
	if p.tok.Kind == lexer.Identifier {
		bid, err := p.parseBindingIdentifier()
		if err != nil {
			return nil, err
		}
		id = bid
	} else if requireId {
		return nil, newError(p.pos(), "class declaration requires a name")
	}

	var super ast.Expression
	if p.at("extends") {
		p.advance()
		s, err := p.parseLeftHandSide()
		if err != nil {
			return nil, err
		}
		super = s
	}

	p.pushContains()
	scope := p.pushScope(ast.ScopeClass)
	if id != nil {
		scope.Declare(id.Name, ast.BindingClass)
	}
	body, err := p.parseClassBody(super != nil)
	if err != nil {
		return nil, err
	}
	contains := p.popContains()
	contains.ClassBody = true
	contains.ClassHeritage = super != nil
	p.popScope()

	privateNames := ast.CollectPrivateNames(body)
	cls := &ast.Class{
		Base: ast.Base{Loc: start}, Id: id, SuperClass: super, Body: body,
		Scope: scope, PrivateNames: privateNames, Contains: contains,
	}
	if err := ast.ValidatePrivateNames(cls); err != nil {
		return nil, newError(start, "%s", err.Error())
	}
	p.strict = wasStrict
	return cls, nil
}

func (p *Parser) parseClassBody(hasSuper bool) (*ast.ClassBody, error) {
	start := p.pos()
	if _, err := p.expect("{"); err != nil {
		return nil, err
	}
	body := &ast.ClassBody{Base: ast.Base{K: ast.KindClassBody, Loc: start}}
	for !p.at("}") && p.tok.Kind != lexer.EOF {
		if p.at(";") {
			p.advance()
			continue
		}
		member, err := p.parseClassMember(hasSuper)
		if err != nil {
			return nil, err
		}
		body.Members = append(body.Members, member)
	}
	if _, err := p.expect("}"); err != nil {
		return nil, err
	}
	return body, nil
}

// parseClassMember handles the full method/field/accessor grammar,
// including `static`, `async`, `*`, `get`/`set`, and private (`#name`)
// keys.
func (p *Parser) parseClassMember(hasSuper bool) (*ast.ClassMember, error) {
	start := p.pos()
	static := false
	if p.at("static") && p.peek(0).Value != "(" && p.peek(0).Value != "=" && p.peek(0).Value != ";" {
		static = true
		p.advance()
		if p.at("{") {
			// static initialization block: modeled as a zero-arg method
			// with no key and MethodKind "static-block" so the compiler can
			// recognize and invoke it during class definition without a
			// dedicated AST kind.
			fn, err := p.parseFunctionTail(false, false, false)
			if err != nil {
				return nil, err
			}
			return &ast.ClassMember{Base: ast.Base{K: ast.KindMethodDefinition, Loc: start}, MethodKind: "static-block", Value: fn, Static: true}, nil
		}
	}

	isAsync, isGen := false, false
	if p.at("async") && p.peek(0).Value != "(" && p.peek(0).Value != "=" && p.peek(0).Value != ";" && !p.peek(0).NewlineBefore {
		isAsync = true
		p.advance()
	}
	if p.at("*") {
		isGen = true
		p.advance()
	}
	if (p.at("get") || p.at("set")) && p.peek(0).Value != "(" && p.peek(0).Value != "=" && p.peek(0).Value != ";" && p.peek(0).Value != "}" {
		kind := "get"
		if p.tok.Value == "set" {
			kind = "set"
		}
		p.advance()
		private, computed, key, err := p.parseClassKey()
		if err != nil {
			return nil, err
		}
		fn, err := p.parseFunctionTail(false, false, false)
		if err != nil {
			return nil, err
		}
		return &ast.ClassMember{Base: ast.Base{K: ast.KindMethodDefinition, Loc: start}, MethodKind: kind, Key: key, Value: fn, Static: static, Computed: computed, Private: private}, nil
	}

	private, computed, key, err := p.parseClassKey()
	if err != nil {
		return nil, err
	}

	if p.at("(") {
		methodKind := "method"
		if id, ok := key.(*ast.Identifier); ok && id.Name == "constructor" && !static {
			methodKind = "constructor"
		}
		fn, err := p.parseFunctionTail(isAsync, isGen, methodKind == "constructor")
		if err != nil {
			return nil, err
		}
		return &ast.ClassMember{Base: ast.Base{K: ast.KindMethodDefinition, Loc: start}, MethodKind: methodKind, Key: key, Value: fn, Static: static, Computed: computed, Private: private}, nil
	}

	// Field definition, optionally with an initializer.
	var value ast.Node
	if p.at("=") {
		p.advance()
		v, err := p.parseAssignmentExpression()
		if err != nil {
			return nil, err
		}
		value = v
	}
	_ = p.consumeSemicolon()
	return &ast.ClassMember{Base: ast.Base{K: ast.KindPropertyDefinition, Loc: start}, MethodKind: "field", Key: key, Value: value, Static: static, Computed: computed, Private: private}, nil
}

func (p *Parser) parseClassKey() (private, computed bool, key ast.Expression, err error) {
	if p.tok.Kind == lexer.PrivateIdentifier {
		key = &ast.PrivateIdentifier{Base: ast.Base{K: ast.KindPrivateIdentifier, Loc: p.pos()}, Name: p.tok.Value}
		p.advance()
		return true, false, key, nil
	}
	if p.at("[") {
		p.advance()
		k, err := p.parseAssignmentExpression()
		if err != nil {
			return false, false, nil, err
		}
		if _, err := p.expect("]"); err != nil {
			return false, false, nil, err
		}
		return false, true, k, nil
	}
	tok := p.tok
	key = p.identifierOrLiteralKey(tok)
	p.advance()
	return false, false, key, nil
}
