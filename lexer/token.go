// Package lexer turns ECMAScript source text into a stream of tokens.
//
// The engine's design treats tokenization as an external collaborator
// (the parser only needs a cursor that yields tokens on demand) but a
// self-contained module still has to own one implementation of that
// contract to be runnable. This package is deliberately small: its job
// is to produce correctly-classified tokens and hand goal-sensitive
// disambiguation (regex vs division, template continuation) back to
// whichever caller set the scan goal.
package lexer

import "fmt"

// Kind classifies a Token.
type Kind int

const (
	EOF Kind = iota
	Identifier
	PrivateIdentifier
	Keyword
	NumericLiteral
	BigIntLiteral
	StringLiteral
	NoSubstitutionTemplate
	TemplateHead
	TemplateMiddle
	TemplateTail
	RegularExpressionLiteral
	Punctuator
	LineTerminator // synthetic: reported only when ASI needs it
)

// Goal selects which production the cursor should prefer when a `/`
// (division vs regex) or a `}` (template continuation) is ambiguous.
// The parser sets this before asking for the next token.
type Goal int

const (
	GoalRegExp Goal = iota
	GoalDiv
	GoalTemplateTail
)

// Position is a 1-based line/column plus a 0-based byte offset.
type Position struct {
	Line   int
	Column int
	Offset int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is one lexical unit.
type Token struct {
	Kind  Kind
	Value string
	Start              Position
	End                Position
	// NewlineBefore records whether a LineTerminator occurred between
	// this token and the previous one — needed for ASI and for the
	// no-line-terminator restrictions on return/throw/break/continue/
	// postfix ++/-- and arrow-function `=>`.
	NewlineBefore bool
	// Raw holds the unescaped source slice for string/template pieces,
	// needed for tagged templates' cooked-vs-raw distinction.
	Raw string
}

func (t Token) String() string {
	return fmt.Sprintf("Token{%v %q @%s}", t.Kind, t.Value, t.Start)
}

func (k Kind) String() string {
	switch k {
	case EOF:
		return "EOF"
	case Identifier:
		return "Identifier"
	case PrivateIdentifier:
		return "PrivateIdentifier"
	case Keyword:
		return "Keyword"
	case NumericLiteral:
		return "NumericLiteral"
	case BigIntLiteral:
		return "BigIntLiteral"
	case StringLiteral:
		return "StringLiteral"
	case NoSubstitutionTemplate:
		return "NoSubstitutionTemplate"
	case TemplateHead:
		return "TemplateHead"
	case TemplateMiddle:
		return "TemplateMiddle"
	case TemplateTail:
		return "TemplateTail"
	case RegularExpressionLiteral:
		return "RegularExpressionLiteral"
	case Punctuator:
		return "Punctuator"
	case LineTerminator:
		return "LineTerminator"
	default:
		return "Unknown"
	}
}

var Keywords = map[string]bool{
	"await": true, "break": true, "case": true, "catch": true, "class": true,
	"const": true, "continue": true, "debugger": true, "default": true,
	"delete": true, "do": true, "else": true, "export": true, "extends": true,
	"finally": true, "for": true, "function": true, "if": true, "import": true,
	"in": true, "instanceof": true, "new": true, "return": true, "super": true,
	"switch": true, "this": true, "throw": true, "try": true, "typeof": true,
	"var": true, "void": true, "while": true, "with": true, "yield": true,
	"let": true, "static": true, "async": true, "of": true, "get": true,
	"set": true, "null": true, "true": true, "false": true,
	"as": true, "from": true,
}
