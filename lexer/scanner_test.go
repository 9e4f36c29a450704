package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kindsOf(src string, goal Goal) []Kind {
	s := NewScanner(src)
	var kinds []Kind
	for {
		tok := s.Next(goal)
		if tok.Kind == EOF {
			return kinds
		}
		kinds = append(kinds, tok.Kind)
	}
}

func TestScanBasicTokens(t *testing.T) {
	s := NewScanner(`var answer = 42;`)
	tok := s.Next(GoalRegExp)
	assert.Equal(t, Keyword, tok.Kind)
	assert.Equal(t, "var", tok.Value)

	tok = s.Next(GoalDiv)
	assert.Equal(t, Identifier, tok.Kind)
	assert.Equal(t, "answer", tok.Value)

	tok = s.Next(GoalRegExp)
	assert.Equal(t, Punctuator, tok.Kind)
	assert.Equal(t, "=", tok.Value)

	tok = s.Next(GoalRegExp)
	assert.Equal(t, NumericLiteral, tok.Kind)
	assert.Equal(t, "42", tok.Value)

	tok = s.Next(GoalDiv)
	assert.Equal(t, ";", tok.Value)

	assert.Equal(t, EOF, s.Next(GoalRegExp).Kind)
}

func TestSlashGoalDisambiguation(t *testing.T) {
	// After an identifier the parser scans with GoalDiv: `a / b` is
	// division.
	s := NewScanner(`/ b`)
	tok := s.Next(GoalDiv)
	assert.Equal(t, Punctuator, tok.Kind)
	assert.Equal(t, "/", tok.Value)

	// At expression start the goal is RegExp: the same bytes scan as a
	// regex literal.
	s = NewScanner(`/ b/g`)
	tok = s.Next(GoalRegExp)
	assert.Equal(t, RegularExpressionLiteral, tok.Kind)
	assert.Equal(t, "/ b/g", tok.Value)
}

func TestRegExpClassSwallowsSlash(t *testing.T) {
	s := NewScanner(`/[/]/`)
	tok := s.Next(GoalRegExp)
	require.Equal(t, RegularExpressionLiteral, tok.Kind)
	assert.Equal(t, `/[/]/`, tok.Value, "a slash inside a character class does not close the literal")
}

func TestTemplateTokens(t *testing.T) {
	s := NewScanner("`a${x}b${y}c`")
	tok := s.Next(GoalRegExp)
	require.Equal(t, TemplateHead, tok.Kind)
	assert.Equal(t, "a", tok.Value)

	tok = s.Next(GoalDiv)
	assert.Equal(t, Identifier, tok.Kind)

	tok = s.Next(GoalTemplateTail)
	require.Equal(t, TemplateMiddle, tok.Kind)
	assert.Equal(t, "b", tok.Value)

	tok = s.Next(GoalDiv)
	assert.Equal(t, Identifier, tok.Kind)

	tok = s.Next(GoalTemplateTail)
	require.Equal(t, TemplateTail, tok.Kind)
	assert.Equal(t, "c", tok.Value)
}

func TestNoSubstitutionTemplate(t *testing.T) {
	s := NewScanner("`plain`")
	tok := s.Next(GoalRegExp)
	assert.Equal(t, NoSubstitutionTemplate, tok.Kind)
	assert.Equal(t, "plain", tok.Value)
}

func TestNewlineBeforeFlag(t *testing.T) {
	s := NewScanner("a\nb c")
	a := s.Next(GoalRegExp)
	b := s.Next(GoalRegExp)
	c := s.Next(GoalRegExp)
	assert.False(t, a.NewlineBefore)
	assert.True(t, b.NewlineBefore, "line terminator between a and b must be reported for ASI")
	assert.False(t, c.NewlineBefore)
}

func TestCommentsAreTrivia(t *testing.T) {
	kinds := kindsOf("x // line comment\n/* block\ncomment */ y", GoalDiv)
	assert.Equal(t, []Kind{Identifier, Identifier}, kinds)

	s := NewScanner("a /* multi\nline */ b")
	s.Next(GoalRegExp)
	b := s.Next(GoalRegExp)
	assert.True(t, b.NewlineBefore, "a newline inside a block comment still counts for ASI")
}

func TestNumericForms(t *testing.T) {
	cases := map[string]Kind{
		"0":        NumericLiteral,
		"3.25":     NumericLiteral,
		".5":       NumericLiteral,
		"1e9":      NumericLiteral,
		"1_000":    NumericLiteral,
		"0xFF":     NumericLiteral,
		"0b1010":   NumericLiteral,
		"0o777":    NumericLiteral,
		"42n":      BigIntLiteral,
		"0xdeadn":  BigIntLiteral,
	}
	for src, want := range cases {
		tok := NewScanner(src).Next(GoalRegExp)
		assert.Equal(t, want, tok.Kind, "scanning %q", src)
		assert.Equal(t, src, tok.Value)
	}
}

func TestStringValueVsRaw(t *testing.T) {
	tok := NewScanner(`"hi there"`).Next(GoalRegExp)
	assert.Equal(t, StringLiteral, tok.Kind)
	assert.Equal(t, "hi there", tok.Value)
	assert.Equal(t, `"hi there"`, tok.Raw)
}

func TestPrivateIdentifier(t *testing.T) {
	tok := NewScanner("#field").Next(GoalRegExp)
	assert.Equal(t, PrivateIdentifier, tok.Kind)
	assert.Equal(t, "#field", tok.Value)
}

func TestMultiCharPunctuatorsScanGreedily(t *testing.T) {
	for _, p := range []string{">>>=", "...", "===", "!==", "?.", "??", "=>", "**", "&&=", "||="} {
		tok := NewScanner(p).Next(GoalDiv)
		assert.Equal(t, Punctuator, tok.Kind)
		assert.Equal(t, p, tok.Value, "longest-match for %q", p)
	}
}

func TestCursorLookahead(t *testing.T) {
	c := NewCursor("let [ x")
	assert.Equal(t, "let", c.Peek(0).Value)
	assert.Equal(t, "[", c.Peek(1).Value)
	assert.Equal(t, "x", c.Peek(2).Value)

	// Peeking must not consume.
	tok := c.Next()
	assert.Equal(t, "let", tok.Value)
	assert.Equal(t, "[", c.Next().Value)
}
