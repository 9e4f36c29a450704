// Package ast defines the syntax tree produced by the parser and the
// scope-analysis data (BoundNames, LexicallyDeclaredNames, Contains
// queries, label validity) that rides along with it. No AST reference
// survives past the bytecode compiler: this package owns the shape, the
// compiler owns turning it into a CodeBlock.
package ast

import "github.com/wudi/esprel/lexer"

// Node is implemented by every AST node.
type Node interface {
	Kind() Kind
	Pos() lexer.Position
	Children() []Node
}

// Statement marks statement-position nodes.
type Statement interface {
	Node
	statementNode()
}

// Expression marks expression-position nodes.
type Expression interface {
	Node
	expressionNode()
}

// Base supplies the common Kind/Pos plumbing every concrete node embeds.
type Base struct {
	K   Kind
	Loc lexer.Position
}

func (b Base) Kind() Kind           { return b.K }
func (b Base) Pos() lexer.Position  { return b.Loc }
func (b Base) Children() []Node     { return nil }
