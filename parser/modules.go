package parser

import (
	"github.com/wudi/esprel/ast"
	"github.com/wudi/esprel/lexer"
)

// parseImportDeclaration parses the full import grammar: bare
// `import "m"`, default/namespace/named bindings, and combinations
// thereof, per the ImportDeclaration production (ECMA-262 §16.2.2).
func (p *Parser) parseImportDeclaration() (ast.Statement, error) {
	start := p.pos()
	p.advance() // 'import'

	if p.tok.Kind == lexer.StringLiteral {
		src := p.tok.Value
		p.advance()
		_ = p.consumeSemicolon()
		return &ast.ImportDeclaration{Base: ast.Base{K: ast.KindImportDeclaration, Loc: start}, Source: src}, nil
	}

	var specifiers []ast.Node
	if p.tok.Kind == lexer.Identifier {
		local, err := p.parseBindingIdentifier()
		if err != nil {
			return nil, err
		}
		p.scope.Declare(local.Name, ast.BindingImport)
		specifiers = append(specifiers, &ast.ImportDefaultSpecifier{Base: ast.Base{K: ast.KindImportDefaultSpecifier, Loc: local.Pos()}, Local: local})
		if p.at(",") {
			p.advance()
		}
	}

	if p.at("*") {
		p.advance()
		if _, err := p.expect("as"); err != nil {
			return nil, err
		}
		local, err := p.parseBindingIdentifier()
		if err != nil {
			return nil, err
		}
		p.scope.Declare(local.Name, ast.BindingImport)
		specifiers = append(specifiers, &ast.ImportNamespaceSpecifier{Base: ast.Base{K: ast.KindImportNamespaceSpecifier, Loc: local.Pos()}, Local: local})
	} else if p.at("{") {
		p.advance()
		for !p.at("}") {
			nstart := p.pos()
			imported := p.tok.Value
			p.advance()
			local := imported
			if p.at("as") {
				p.advance()
				local = p.tok.Value
				p.advance()
			}
			localId := &ast.Identifier{Base: ast.Base{K: ast.KindIdentifier, Loc: nstart}, Name: local}
			p.scope.Declare(local, ast.BindingImport)
			specifiers = append(specifiers, &ast.ImportSpecifier{
				Base:     ast.Base{K: ast.KindImportSpecifier, Loc: nstart},
				Imported: &ast.Identifier{Base: ast.Base{K: ast.KindIdentifier, Loc: nstart}, Name: imported},
				Local:    localId,
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
	}

	if _, err := p.expect("from"); err != nil {
		return nil, err
	}
	if p.tok.Kind != lexer.StringLiteral {
		return nil, newError(p.pos(), "expected module specifier string")
	}
	src := p.tok.Value
	p.advance()
	_ = p.consumeSemicolon()
	return &ast.ImportDeclaration{Base: ast.Base{K: ast.KindImportDeclaration, Loc: start}, Specifiers: specifiers, Source: src}, nil
}

// parseExportDeclaration parses `export <decl>`, `export default ...`,
// `export { ... } [from "m"]`, and `export * [as ns] from "m"`, the
// ExportDeclaration production (ECMA-262 §16.2.3).
func (p *Parser) parseExportDeclaration() (ast.Statement, error) {
	start := p.pos()
	p.advance() // 'export'

	if p.at("default") {
		p.advance()
		var decl ast.Node
		switch {
		case p.at("function"):
			fn, err := p.parseFunctionDeclaration(false)
			if err != nil {
				return nil, err
			}
			decl = fn
		case p.at("async") && p.peek(0).Value == "function":
			p.advance()
			fn, err := p.parseFunctionDeclaration(true)
			if err != nil {
				return nil, err
			}
			decl = fn
		case p.at("class"):
			cls, err := p.parseClassDeclaration()
			if err != nil {
				return nil, err
			}
			decl = cls
		default:
			expr, err := p.parseAssignmentExpression()
			if err != nil {
				return nil, err
			}
			_ = p.consumeSemicolon()
			decl = expr
		}
		return &ast.ExportDefaultDeclaration{Base: ast.Base{K: ast.KindExportDefaultDeclaration, Loc: start}, Declaration: decl}, nil
	}

	if p.at("*") {
		p.advance()
		var exported *ast.Identifier
		if p.at("as") {
			p.advance()
			id, err := p.parseBindingIdentifier()
			if err != nil {
				return nil, err
			}
			exported = id
		}
		if _, err := p.expect("from"); err != nil {
			return nil, err
		}
		src := p.tok.Value
		p.advance()
		_ = p.consumeSemicolon()
		return &ast.ExportAllDeclaration{Base: ast.Base{K: ast.KindExportAllDeclaration, Loc: start}, Exported: exported, Source: src}, nil
	}

	if p.at("{") {
		p.advance()
		var specs []*ast.ExportSpecifier
		for !p.at("}") {
			nstart := p.pos()
			local := p.tok.Value
			p.advance()
			exported := local
			if p.at("as") {
				p.advance()
				exported = p.tok.Value
				p.advance()
			}
			specs = append(specs, &ast.ExportSpecifier{
				Base:     ast.Base{K: ast.KindExportSpecifier, Loc: nstart},
				Local:    &ast.Identifier{Base: ast.Base{K: ast.KindIdentifier, Loc: nstart}, Name: local},
				Exported: &ast.Identifier{Base: ast.Base{K: ast.KindIdentifier, Loc: nstart}, Name: exported},
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
		src := ""
		if p.at("from") {
			p.advance()
			src = p.tok.Value
			p.advance()
		}
		_ = p.consumeSemicolon()
		return &ast.ExportNamedDeclaration{Base: ast.Base{K: ast.KindExportNamedDeclaration, Loc: start}, Specifiers: specs, Source: src}, nil
	}

	var decl ast.Statement
	var err error
	switch {
	case p.at("var") || p.at("let") || p.at("const"):
		decl, err = p.parseVariableStatement()
	case p.at("function"):
		decl, err = p.parseFunctionDeclaration(false)
	case p.at("async") && p.peek(0).Value == "function":
		p.advance()
		decl, err = p.parseFunctionDeclaration(true)
	case p.at("class"):
		decl, err = p.parseClassDeclaration()
	default:
		return nil, newError(start, "unexpected token after 'export': %q", p.tok.Value)
	}
	if err != nil {
		return nil, err
	}
	return &ast.ExportNamedDeclaration{Base: ast.Base{K: ast.KindExportNamedDeclaration, Loc: start}, Declaration: decl}, nil
}
