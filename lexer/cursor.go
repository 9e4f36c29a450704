package lexer

// Cursor is the parser-facing handle onto a Scanner: it buffers a small
// lookahead window so the parser can peek up to two tokens ahead (needed
// for `let [`, `async function`, `async x =>`, `for (let of` disambiguation)
// without re-lexing.
type Cursor struct {
	scanner *Scanner
	buf     []Token
	goal    Goal
	last    Token
}

// NewCursor creates a Cursor over src starting in the RegExp goal, matching
// the state at the start of a Script/Module/function body.
func NewCursor(src string) *Cursor {
	return &Cursor{scanner: NewScanner(src), goal: GoalRegExp}
}

// SetGoal selects the disambiguation goal for the *next* token pulled from
// the scanner, overriding the goal the cursor picked from the previous
// token (Div after identifiers, literals, `)`, `]`, this, super, null,
// true and false; RegExp otherwise). Already-buffered lookahead tokens are not re-scanned, so
// callers that peek before committing to a goal must be careful — this
// mirrors the real hazard ECMA-262 §12 calls out explicitly.
func (c *Cursor) SetGoal(g Goal) {
	c.goal = g
}

func (c *Cursor) fill(n int) {
	for len(c.buf) <= n {
		t := c.scanner.Next(c.goal)
		c.buf = append(c.buf, t)
		c.goal = GoalRegExp
		switch t.Kind {
		case Identifier, PrivateIdentifier, NumericLiteral, BigIntLiteral, StringLiteral,
			NoSubstitutionTemplate, TemplateTail, RegularExpressionLiteral:
			c.goal = GoalDiv
		case Punctuator, Keyword:
			switch t.Value {
			case ")", "]", "this", "super", "null", "true", "false":
				c.goal = GoalDiv
			}
		}
	}
}

// Peek returns the token n positions ahead (0 = next token) without
// consuming it.
func (c *Cursor) Peek(n int) Token {
	c.fill(n)
	return c.buf[n]
}

// Next consumes and returns the next token.
func (c *Cursor) Next() Token {
	c.fill(0)
	t := c.buf[0]
	c.buf = c.buf[1:]
	c.last = t
	return t
}

// RescanTemplateTail discards any buffered lookahead, rewinds the scanner
// to the start of the token Next last returned, and re-scans it as a
// template continuation. The parser calls this while a substitution
// expression's closing `}` is its current token, since that token must
// never be treated as a plain punctuator.
func (c *Cursor) RescanTemplateTail() Token {
	c.buf = nil
	c.scanner.pos, c.scanner.line, c.scanner.col = c.last.Start.Offset, c.last.Start.Line, c.last.Start.Column
	c.goal = GoalTemplateTail
	return c.Next()
}
