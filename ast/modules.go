package ast

// Module-binding forms for import/export declarations. These
// live in their own file since they round out the Module grammar rather
// than the core statement/expression set.

func (ImportDeclaration) statementNode()       {}
func (ExportNamedDeclaration) statementNode()  {}
func (ExportDefaultDeclaration) statementNode() {}
func (ExportAllDeclaration) statementNode()    {}

// ImportSpecifier is a single named binding: `import { a as b } from "m"`.
type ImportSpecifier struct {
	Base
	Imported *Identifier
	Local    *Identifier
}

// ImportDefaultSpecifier is the `d` in `import d from "m"`.
type ImportDefaultSpecifier struct {
	Base
	Local *Identifier
}

// ImportNamespaceSpecifier is the `* as ns` in `import * as ns from "m"`.
type ImportNamespaceSpecifier struct {
	Base
	Local *Identifier
}

// ImportDeclaration is a full import statement. Specifiers holds any mix
// of *ImportDefaultSpecifier, *ImportNamespaceSpecifier, and
// *ImportSpecifier, in source order.
type ImportDeclaration struct {
	Base
	Specifiers []Node
	Source     string // the module specifier string, already unquoted
}

func (i ImportDeclaration) Children() []Node { return i.Specifiers }

// ExportSpecifier is one binding in `export { a as b }`.
type ExportSpecifier struct {
	Base
	Local    *Identifier
	Exported *Identifier
}

// ExportNamedDeclaration covers `export { ... } [from "m"]` and
// `export <declaration>` (VariableDeclaration/FunctionDeclaration/
// ClassDeclaration, held in Declaration when Specifiers is empty).
type ExportNamedDeclaration struct {
	Base
	Declaration Statement // nil when this is a specifier-list export
	Specifiers  []*ExportSpecifier
	Source      string // non-empty for `export { x } from "m"`
}

func (e ExportNamedDeclaration) Children() []Node {
	if e.Declaration != nil {
		return []Node{e.Declaration}
	}
	out := make([]Node, len(e.Specifiers))
	for i, s := range e.Specifiers {
		out[i] = s
	}
	return out
}

// ExportDefaultDeclaration covers `export default <expr-or-decl>`.
type ExportDefaultDeclaration struct {
	Base
	Declaration Node // Expression, FunctionDeclaration, or ClassDeclaration
}

func (e ExportDefaultDeclaration) Children() []Node { return []Node{e.Declaration} }

// ExportAllDeclaration covers `export * [as ns] from "m"`.
type ExportAllDeclaration struct {
	Base
	Exported *Identifier // nil for bare `export * from "m"`
	Source   string
}
