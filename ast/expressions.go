package ast

import "github.com/wudi/esprel/lexer"

func (Identifier) expressionNode()            {}
func (PrivateIdentifier) expressionNode()      {}
func (NullLiteral) expressionNode()            {}
func (BooleanLiteral) expressionNode()         {}
func (NumericLiteral) expressionNode()         {}
func (BigIntLiteral) expressionNode()          {}
func (StringLiteral) expressionNode()          {}
func (RegExpLiteral) expressionNode()          {}
func (TemplateLiteral) expressionNode()        {}
func (TaggedTemplate) expressionNode()         {}
func (ArrayLiteral) expressionNode()           {}
func (ObjectLiteral) expressionNode()          {}
func (FunctionExpression) expressionNode()     {}
func (ArrowFunctionExpression) expressionNode() {}
func (ClassExpression) expressionNode()        {}
func (ThisExpression) expressionNode()         {}
func (SuperExpression) expressionNode()        {}
func (NewExpression) expressionNode()          {}
func (CallExpression) expressionNode()         {}
func (MemberExpression) expressionNode()       {}
func (UnaryExpression) expressionNode()        {}
func (UpdateExpression) expressionNode()       {}
func (BinaryExpression) expressionNode()       {}
func (LogicalExpression) expressionNode()      {}
func (AssignmentExpression) expressionNode()   {}
func (ConditionalExpression) expressionNode()  {}
func (SequenceExpression) expressionNode()     {}
func (SpreadElement) expressionNode()          {}
func (YieldExpression) expressionNode()        {}
func (AwaitExpression) expressionNode()        {}
func (MetaProperty) expressionNode()           {}
func (ImportExpression) expressionNode()       {}
func (ArrayPattern) expressionNode()           {}
func (ObjectPattern) expressionNode()          {}
func (AssignmentPattern) expressionNode()      {}
func (RestElement) expressionNode()            {}

// Identifier is a name reference; Binding, when non-nil, is filled in by
// scope analysis with the resolved BindingLocator so the compiler never
// has to re-resolve it.
type Identifier struct {
	Base
	Name    string
	Binding *BindingLocator
}

type PrivateIdentifier struct {
	Base
	Name string
}

type NullLiteral struct{ Base }
type BooleanLiteral struct {
	Base
	Value bool
}
type NumericLiteral struct {
	Base
	Value float64
}
type BigIntLiteral struct {
	Base
	Raw string // decimal digits, without the trailing `n`
}
type StringLiteral struct {
	Base
	Value string
}
type RegExpLiteral struct {
	Base
	Pattern string
	Flags   string
}

// TemplateLiteral holds cooked/raw quasis interleaved with Expressions.
type TemplateLiteral struct {
	Base
	Quasis      []string
	RawQuasis   []string
	Expressions []Expression
}

type TaggedTemplate struct {
	Base
	Tag   Expression
	Quasi *TemplateLiteral
}

func (t TaggedTemplate) Children() []Node {
	return append([]Node{t.Tag}, t.Quasi)
}

type ArrayLiteral struct {
	Base
	Elements []Expression // nil element = elision; *SpreadElement allowed
}

func (a ArrayLiteral) Children() []Node {
	out := make([]Node, 0, len(a.Elements))
	for _, e := range a.Elements {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

type PropertyKind int

const (
	PropertyInit PropertyKind = iota
	PropertyGet
	PropertySet
	PropertyMethod
	PropertySpread
)

type Property struct {
	Base
	PropKind  PropertyKind
	Key       Expression
	Value     Expression
	Computed  bool
	Shorthand bool
}

func (p Property) expressionNode() {}
func (p Property) Children() []Node {
	if p.Key == nil {
		return []Node{p.Value}
	}
	return []Node{p.Key, p.Value}
}

type ObjectLiteral struct {
	Base
	Properties []*Property
}

func (o ObjectLiteral) Children() []Node {
	out := make([]Node, len(o.Properties))
	for i, p := range o.Properties {
		out[i] = p
	}
	return out
}

// ThisMode is a function's this-binding mode: Lexical (arrow),
// Strict, or Global (sloppy).
type ThisMode int

const (
	ThisGlobal ThisMode = iota
	ThisStrict
	ThisLexical
)

type Function struct {
	Base
	Id          *Identifier // nil for anonymous function expressions
	Params      []Node      // Identifier, patterns, or *AssignmentPattern / *RestElement
	Body        Node        // *BlockStatement, or an Expression for concise arrows
	IsAsync     bool
	IsGenerator bool
	ThisMode    ThisMode
	Scope       *Scope
	Contains    ContainsFlags
}

func (f Function) Children() []Node {
	out := make([]Node, 0, len(f.Params)+1)
	out = append(out, f.Params...)
	if f.Body != nil {
		out = append(out, f.Body)
	}
	return out
}

type FunctionExpression struct{ Function }
type ArrowFunctionExpression struct {
	Function
	ExpressionBody bool
}

type ThisExpression struct{ Base }
type SuperExpression struct{ Base }

type NewExpression struct {
	Base
	Callee    Expression
	Arguments []Expression
}

func (n NewExpression) Children() []Node {
	out := []Node{n.Callee}
	for _, a := range n.Arguments {
		out = append(out, a)
	}
	return out
}

type CallExpression struct {
	Base
	Callee    Expression
	Arguments []Expression
	Optional  bool
}

func (c CallExpression) Children() []Node {
	out := []Node{c.Callee}
	for _, a := range c.Arguments {
		out = append(out, a)
	}
	return out
}

type MemberExpression struct {
	Base
	Object   Expression
	Property Expression // Identifier for dot access, any Expression for computed
	Computed bool
	Optional bool
}

func (m MemberExpression) Children() []Node { return []Node{m.Object, m.Property} }

type UnaryOperator string

const (
	OpPlus     UnaryOperator = "+"
	OpMinus    UnaryOperator = "-"
	OpNot      UnaryOperator = "!"
	OpBitNot   UnaryOperator = "~"
	OpTypeof   UnaryOperator = "typeof"
	OpVoid     UnaryOperator = "void"
	OpDelete   UnaryOperator = "delete"
)

type UnaryExpression struct {
	Base
	Operator UnaryOperator
	Argument Expression
}

func (u UnaryExpression) Children() []Node { return []Node{u.Argument} }

type UpdateExpression struct {
	Base
	Operator string // "++" | "--"
	Argument Expression
	Prefix   bool
}

func (u UpdateExpression) Children() []Node { return []Node{u.Argument} }

type BinaryExpression struct {
	Base
	Operator string
	Left     Expression
	Right    Expression
}

func (b BinaryExpression) Children() []Node { return []Node{b.Left, b.Right} }

type LogicalExpression struct {
	Base
	Operator string // "&&" | "||" | "??"
	Left     Expression
	Right    Expression
}

func (l LogicalExpression) Children() []Node { return []Node{l.Left, l.Right} }

type AssignmentExpression struct {
	Base
	Operator string // "=" | "+=" | ... | "&&=" | "||=" | "??="
	Target   Expression
	Value    Expression
}

func (a AssignmentExpression) Children() []Node { return []Node{a.Target, a.Value} }

type ConditionalExpression struct {
	Base
	Test       Expression
	Consequent Expression
	Alternate  Expression
}

func (c ConditionalExpression) Children() []Node {
	return []Node{c.Test, c.Consequent, c.Alternate}
}

type SequenceExpression struct {
	Base
	Expressions []Expression
}

func (s SequenceExpression) Children() []Node {
	out := make([]Node, len(s.Expressions))
	for i, e := range s.Expressions {
		out[i] = e
	}
	return out
}

type SpreadElement struct {
	Base
	Argument Expression
}

func (s SpreadElement) Children() []Node { return []Node{s.Argument} }

type RestElement struct {
	Base
	Argument Node
}

func (r RestElement) Children() []Node { return []Node{r.Argument} }

type YieldExpression struct {
	Base
	Argument Expression // may be nil
	Delegate bool       // yield*
}

func (y YieldExpression) Children() []Node {
	if y.Argument == nil {
		return nil
	}
	return []Node{y.Argument}
}

type AwaitExpression struct {
	Base
	Argument Expression
}

func (a AwaitExpression) Children() []Node { return []Node{a.Argument} }

type MetaProperty struct {
	Base
	Meta     string // "new" | "import"
	Property string // "target" | "meta"
}

type ImportExpression struct {
	Base
	Source Expression
}

func (i ImportExpression) Children() []Node { return []Node{i.Source} }

type ArrayPattern struct {
	Base
	Elements []Node // nil = elision; may include *RestElement, *AssignmentPattern
}

func (a ArrayPattern) Children() []Node {
	out := make([]Node, 0, len(a.Elements))
	for _, e := range a.Elements {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

type ObjectPatternProperty struct {
	Base
	Key      Expression
	Value    Node
	Computed bool
}

type ObjectPattern struct {
	Base
	Properties []*ObjectPatternProperty
	Rest       *RestElement
}

func (o ObjectPattern) Children() []Node {
	out := make([]Node, 0, len(o.Properties)+1)
	for _, p := range o.Properties {
		out = append(out, p.Value)
	}
	if o.Rest != nil {
		out = append(out, o.Rest)
	}
	return out
}

type AssignmentPattern struct {
	Base
	Target  Node
	Default Expression
}

func (a AssignmentPattern) Children() []Node { return []Node{a.Target, a.Default} }

var _ = lexer.Position{}
