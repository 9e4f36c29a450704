// Package parser is a hand-written recursive-descent parser producing an
// AST with full lexical-scope information, covering ECMAScript's
// grammar, cover grammars, and ASI rules.
package parser

import (
	"github.com/wudi/esprel/ast"
	"github.com/wudi/esprel/lexer"
)

// Parser holds the cursor and the mutable state a single parse needs:
// the current scope chain, strict-mode flag, and the stack of
// ContainsFlags accumulators for the innermost function/class.
type Parser struct {
	cursor *lexer.Cursor
	tok    lexer.Token

	strict     bool
	scope      *ast.Scope
	inFunction bool
	inLoop     int
	inSwitch   int
	containsStack []*ast.ContainsFlags

	// parenDepth counts the parenthesized groups currently being parsed,
	// driving the deep-parenthesization fast path: once it reaches
	// parenDepthFastPathThreshold purely-nested groups are consumed
	// iteratively instead of recursively.
	parenDepth int
}

const parenDepthFastPathThreshold = 64

// New creates a Parser over src.
func New(src string) *Parser {
	p := &Parser{cursor: lexer.NewCursor(src)}
	p.advance()
	return p
}

func (p *Parser) advance() {
	p.tok = p.cursor.Next()
}

// setGoal primes the scanner's regex/div disambiguation before the next
// token is materialized via advance/peek. The cursor applies the default
// rule itself after every token: `(`, `,`, `=`,
// `:`, `[`, `!`, `&`, `|`, `?`, `{`, `}`, `;`, operators, and program
// start all select RegExp; after identifiers/literals/`)` the goal is Div.
func (p *Parser) setGoal(g lexer.Goal) {
	p.cursor.SetGoal(g)
}

func (p *Parser) peek(n int) lexer.Token {
	return p.cursor.Peek(n)
}

// tokenAt returns the current token for n == 0 and the nth token of
// lookahead for n >= 1, giving callers a single 0-based index over
// "current token plus peek buffer" instead of mixing p.tok with
// zero-based p.peek.
func (p *Parser) tokenAt(n int) lexer.Token {
	if n == 0 {
		return p.tok
	}
	return p.peek(n - 1)
}

func (p *Parser) at(value string) bool {
	return (p.tok.Kind == lexer.Punctuator || p.tok.Kind == lexer.Keyword) && p.tok.Value == value
}

func (p *Parser) atKind(k lexer.Kind) bool {
	return p.tok.Kind == k
}

func (p *Parser) expect(value string) (lexer.Token, error) {
	if !p.at(value) {
		return p.tok, newError(p.tok.Start, "expected %q, found %q", value, p.tok.Value)
	}
	t := p.tok
	p.goalForNext(value)
	p.advance()
	return t, nil
}

// goalForNext sets the scan goal that should apply when fetching the
// token *after* the one we're about to consume, based on what we just
// saw.
func (p *Parser) goalForNext(consumedValue string) {
	switch consumedValue {
	case ")", "]":
		p.setGoal(lexer.GoalDiv)
	default:
		p.setGoal(lexer.GoalRegExp)
	}
}

func (p *Parser) pos() lexer.Position { return p.tok.Start }

// consumeSemicolon implements Automatic Semicolon Insertion: a `;` may be
// elided before `}`, at EOF, or when the next token began on a new line.
func (p *Parser) consumeSemicolon() error {
	if p.at(";") {
		p.advance()
		return nil
	}
	if p.at("}") || p.tok.Kind == lexer.EOF || p.tok.NewlineBefore {
		return nil
	}
	return newError(p.tok.Start, "expected ';', found %q", p.tok.Value)
}

func (p *Parser) pushContains() {
	p.containsStack = append(p.containsStack, &ast.ContainsFlags{})
}

func (p *Parser) popContains() ast.ContainsFlags {
	n := len(p.containsStack) - 1
	f := *p.containsStack[n]
	p.containsStack = p.containsStack[:n]
	return f
}

func (p *Parser) markContains(set func(*ast.ContainsFlags)) {
	for _, f := range p.containsStack {
		set(f)
	}
}

func (p *Parser) pushScope(kind ast.ScopeKind) *ast.Scope {
	p.scope = ast.NewScope(kind, p.scope)
	return p.scope
}

func (p *Parser) popScope() *ast.Scope {
	s := p.scope
	p.scope = s.Parent
	return s
}

// ParseScript parses a full non-module Script production.
func ParseScript(src string) (*ast.Script, error) {
	p := New(src)
	p.pushContains()
	scope := p.pushScript()
	var body []ast.Statement
	p.detectDirectivePrologue(&body)
	for p.tok.Kind != lexer.EOF {
		stmt, err := p.parseStatementListItem()
		if err != nil {
			return nil, err
		}
		body = append(body, stmt)
	}
	if err := ast.ValidateLabels(body); err != nil {
		return nil, err
	}
	p.popContains()
	script := &ast.Script{
		Base:   ast.Base{K: ast.KindScript, Loc: lexer.Position{Line: 1, Column: 1}},
		Body:   body,
		Scope:  scope,
		Strict: p.strict,
	}
	p.popScope()
	return script, nil
}

func (p *Parser) pushScript() *ast.Scope {
	return p.pushScope(ast.ScopeScript)
}

// ParseModule parses a source-text module body, including import/export
// declarations.
func ParseModule(src string) (*ast.Module, error) {
	p := New(src)
	p.strict = true // modules are always strict
	p.pushContains()
	scope := p.pushScope(ast.ScopeModule)
	var body []ast.Statement
	hasTLA := false
	for p.tok.Kind != lexer.EOF {
		if p.at("import") && p.peek(0).Value != "(" {
			stmt, err := p.parseImportDeclaration()
			if err != nil {
				return nil, err
			}
			body = append(body, stmt)
			continue
		}
		if p.at("export") {
			stmt, err := p.parseExportDeclaration()
			if err != nil {
				return nil, err
			}
			body = append(body, stmt)
			continue
		}
		stmt, err := p.parseStatementListItem()
		if err != nil {
			return nil, err
		}
		body = append(body, stmt)
	}
	if err := ast.ValidateLabels(body); err != nil {
		return nil, err
	}
	flags := p.popContains()
	hasTLA = hasTLA || flags.Await
	p.popScope()
	return &ast.Module{
		Base:   ast.Base{K: ast.KindModule, Loc: lexer.Position{Line: 1, Column: 1}},
		Body:   body,
		Scope:  scope,
		HasTLA: hasTLA,
	}, nil
}

// detectDirectivePrologue scans leading string-literal expression
// statements for `"use strict"`, setting p.strict before the rest of the
// body is parsed — directive prologue detection has to happen before
// later statements are parsed because it changes their grammar (e.g.
// octal literals become errors).
func (p *Parser) detectDirectivePrologue(body *[]ast.Statement) {
	for p.atKind(lexer.StringLiteral) {
		val := p.tok.Value
		// Only a bare string-literal statement (not part of a larger
		// expression) counts; peeking for `;`/newline/`}` after the
		// string is a cheap approximation that covers the common case.
		nxt := p.peek(0)
		isBareStatement := nxt.Value == ";" || nxt.NewlineBefore || nxt.Value == "}" || nxt.Kind == lexer.EOF
		if !isBareStatement {
			break
		}
		strLit := &ast.StringLiteral{Base: ast.Base{K: ast.KindStringLiteral, Loc: p.tok.Start}, Value: val}
		p.advance()
		_ = p.consumeSemicolon()
		*body = append(*body, &ast.ExpressionStatement{
			Base:       ast.Base{K: ast.KindExpressionStatement, Loc: strLit.Loc},
			Expression: strLit,
		})
		if val == "use strict" {
			p.strict = true
		}
	}
}
