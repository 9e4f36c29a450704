package parser

import (
	"fmt"

	"github.com/wudi/esprel/lexer"
)

// ParseError is a fatal, structured parse failure carrying the offending
// span and an expected/found detail. Errors are fatal for the parse.
type ParseError struct {
	Message  string
	Position lexer.Position
	Expected string
	Found    string
}

func (e *ParseError) Error() string {
	if e.Expected != "" {
		return fmt.Sprintf("%s: expected %s, found %q", e.Position, e.Expected, e.Found)
	}
	return fmt.Sprintf("%s: %s", e.Position, e.Message)
}

func newError(pos lexer.Position, format string, args ...interface{}) *ParseError {
	return &ParseError{Message: fmt.Sprintf(format, args...), Position: pos}
}
