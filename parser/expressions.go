package parser

import (
	"strconv"

	"github.com/wudi/esprel/ast"
	"github.com/wudi/esprel/lexer"
)

// binaryPrecedence is the Pratt-parser binding-power table for binary and
// logical operators, lowest to highest, driving the precedence climb in
// parseBinary.
var binaryPrecedence = map[string]int{
	"??": 1,
	"||": 2, "&&": 3,
	"|": 4, "^": 5, "&": 6,
	"==": 7, "!=": 7, "===": 7, "!==": 7,
	"<": 8, ">": 8, "<=": 8, ">=": 8, "instanceof": 8, "in": 8,
	"<<": 9, ">>": 9, ">>>": 9,
	"+": 10, "-": 10,
	"*": 11, "/": 11, "%": 11,
	"**": 12,
}

var assignmentOperators = map[string]bool{
	"=": true, "+=": true, "-=": true, "*=": true, "/=": true, "%=": true,
	"**=": true, "<<=": true, ">>=": true, ">>>=": true,
	"&=": true, "|=": true, "^=": true, "&&=": true, "||=": true, "??=": true,
}

// parseExpression parses a full Expression, folding comma-separated
// AssignmentExpressions into a SequenceExpression when more than one.
func (p *Parser) parseExpression() (ast.Expression, error) {
	start := p.pos()
	first, err := p.parseAssignmentExpression()
	if err != nil {
		return nil, err
	}
	if !p.at(",") {
		return first, nil
	}
	exprs := []ast.Expression{first}
	for p.at(",") {
		p.advance()
		e, err := p.parseAssignmentExpression()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	return &ast.SequenceExpression{Base: ast.Base{K: ast.KindSequenceExpression, Loc: start}, Expressions: exprs}, nil
}

// parseExpressionNoIn is used inside a `for (...)` head, where a bare `in`
// must terminate the init clause rather than be parsed as the relational
// operator.
func (p *Parser) parseExpressionNoIn() (ast.Expression, error) {
	return p.parseAssignmentExpressionNoIn()
}

func (p *Parser) parseAssignmentExpressionNoIn() (ast.Expression, error) {
	return p.parseAssignmentExpressionImpl(true)
}

func (p *Parser) parseAssignmentExpression() (ast.Expression, error) {
	return p.parseAssignmentExpressionImpl(false)
}

// parseAssignmentExpressionImpl handles arrow-function cover-grammar
// disambiguation, yield, and the full assignment-operator set on top of
// the conditional expression.
func (p *Parser) parseAssignmentExpressionImpl(noIn bool) (ast.Expression, error) {
	if p.at("yield") {
		return p.parseYield()
	}
	if arrow, ok, err := p.tryParseArrow(); err != nil {
		return nil, err
	} else if ok {
		return arrow, nil
	}

	left, err := p.parseConditional(noIn)
	if err != nil {
		return nil, err
	}
	if (p.tok.Kind == lexer.Punctuator) && assignmentOperators[p.tok.Value] {
		op := p.tok.Value
		start := left.Pos()
		p.advance()
		target := toAssignmentTarget(left)
		value, err := p.parseAssignmentExpressionImpl(noIn)
		if err != nil {
			return nil, err
		}
		return &ast.AssignmentExpression{Base: ast.Base{K: ast.KindAssignmentExpression, Loc: start}, Operator: op, Target: target, Value: value}, nil
	}
	return left, nil
}

// toAssignmentTarget reinterprets an already-parsed expression as an
// assignment/destructuring target, converting ArrayLiteral/ObjectLiteral
// cover grammar into ArrayPattern/ObjectPattern, the AssignmentTarget
// refinement of the cover grammar (ECMA-262 §13.15.5).
func toAssignmentTarget(expr ast.Expression) ast.Expression {
	switch e := expr.(type) {
	case *ast.ArrayLiteral:
		var elems []ast.Node
		for _, el := range e.Elements {
			if el == nil {
				elems = append(elems, nil)
				continue
			}
			if spread, ok := el.(*ast.SpreadElement); ok {
				elems = append(elems, &ast.RestElement{Base: spread.Base, Argument: toAssignmentTarget(spread.Argument)})
				continue
			}
			elems = append(elems, toAssignmentTarget(el))
		}
		return &ast.ArrayPattern{Base: e.Base, Elements: elems}
	case *ast.ObjectLiteral:
		pat := &ast.ObjectPattern{Base: e.Base}
		for _, prop := range e.Properties {
			if prop.PropKind == ast.PropertySpread {
				pat.Rest = &ast.RestElement{Base: prop.Base, Argument: toAssignmentTarget(prop.Value)}
				continue
			}
			pat.Properties = append(pat.Properties, &ast.ObjectPatternProperty{
				Base: prop.Base, Key: prop.Key, Value: toAssignmentTarget(prop.Value), Computed: prop.Computed,
			})
		}
		return pat
	case *ast.AssignmentExpression:
		if e.Operator == "=" {
			return &ast.AssignmentPattern{Base: e.Base, Target: toAssignmentTarget(e.Target), Default: e.Value}
		}
	}
	return expr
}

func (p *Parser) parseYield() (ast.Expression, error) {
	start := p.pos()
	p.advance()
	p.markContains(func(f *ast.ContainsFlags) { f.Yield = true })
	delegate := false
	if p.at("*") {
		delegate = true
		p.advance()
	}
	var arg ast.Expression
	canHaveArg := !p.at(")") && !p.at(";") && !p.at("]") && !p.at("}") && !p.at(",") && !p.at(":") &&
		p.tok.Kind != lexer.EOF && !p.tok.NewlineBefore
	if canHaveArg || delegate {
		a, err := p.parseAssignmentExpression()
		if err != nil {
			return nil, err
		}
		arg = a
	}
	return &ast.YieldExpression{Base: ast.Base{K: ast.KindYieldExpression, Loc: start}, Argument: arg, Delegate: delegate}, nil
}

func (p *Parser) parseConditional(noIn bool) (ast.Expression, error) {
	test, err := p.parseBinary(0, noIn)
	if err != nil {
		return nil, err
	}
	if !p.at("?") {
		return test, nil
	}
	p.advance()
	cons, err := p.parseAssignmentExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(":"); err != nil {
		return nil, err
	}
	alt, err := p.parseAssignmentExpressionImpl(noIn)
	if err != nil {
		return nil, err
	}
	return &ast.ConditionalExpression{Base: ast.Base{K: ast.KindConditionalExpression, Loc: test.Pos()}, Test: test, Consequent: cons, Alternate: alt}, nil
}

func (p *Parser) parseBinary(minPrec int, noIn bool) (ast.Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op := p.tok.Value
		if noIn && op == "in" {
			break
		}
		if p.tok.Kind != lexer.Punctuator && p.tok.Kind != lexer.Keyword {
			break
		}
		prec, ok := binaryPrecedence[op]
		if !ok || prec < minPrec {
			break
		}
		start := left.Pos()
		p.advance()
		// ** is right-associative; every other binary operator is left.
		nextMin := prec + 1
		if op == "**" {
			nextMin = prec
		}
		right, err := p.parseBinary(nextMin, noIn)
		if err != nil {
			return nil, err
		}
		if op == "&&" || op == "||" || op == "??" {
			left = &ast.LogicalExpression{Base: ast.Base{K: ast.KindLogicalExpression, Loc: start}, Operator: op, Left: left, Right: right}
		} else {
			left = &ast.BinaryExpression{Base: ast.Base{K: ast.KindBinaryExpression, Loc: start}, Operator: op, Left: left, Right: right}
		}
	}
	return left, nil
}

var unaryOps = map[string]ast.UnaryOperator{
	"+": ast.OpPlus, "-": ast.OpMinus, "!": ast.OpNot, "~": ast.OpBitNot,
	"typeof": ast.OpTypeof, "void": ast.OpVoid, "delete": ast.OpDelete,
}

func (p *Parser) parseUnary() (ast.Expression, error) {
	if p.at("await") {
		start := p.pos()
		p.advance()
		p.markContains(func(f *ast.ContainsFlags) { f.Await = true })
		arg, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.AwaitExpression{Base: ast.Base{K: ast.KindAwaitExpression, Loc: start}, Argument: arg}, nil
	}
	if op, ok := unaryOps[p.tok.Value]; ok && (p.tok.Kind == lexer.Punctuator || p.tok.Kind == lexer.Keyword) {
		start := p.pos()
		p.advance()
		arg, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpression{Base: ast.Base{K: ast.KindUnaryExpression, Loc: start}, Operator: op, Argument: arg}, nil
	}
	if p.at("++") || p.at("--") {
		start := p.pos()
		op := p.tok.Value
		p.advance()
		arg, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UpdateExpression{Base: ast.Base{K: ast.KindUpdateExpression, Loc: start}, Operator: op, Argument: arg, Prefix: true}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (ast.Expression, error) {
	expr, err := p.parseLeftHandSide()
	if err != nil {
		return nil, err
	}
	if (p.at("++") || p.at("--")) && !p.tok.NewlineBefore {
		op := p.tok.Value
		p.advance()
		return &ast.UpdateExpression{Base: ast.Base{K: ast.KindUpdateExpression, Loc: expr.Pos()}, Operator: op, Argument: expr, Prefix: false}, nil
	}
	return expr, nil
}

// parseLeftHandSide parses NewExpression/CallExpression/MemberExpression
// chains, including optional-chaining (`?.`).
func (p *Parser) parseLeftHandSide() (ast.Expression, error) {
	var expr ast.Expression
	var err error
	if p.at("new") {
		expr, err = p.parseNew()
	} else {
		expr, err = p.parsePrimary()
	}
	if err != nil {
		return nil, err
	}
	return p.parseCallTail(expr)
}

func (p *Parser) parseNew() (ast.Expression, error) {
	start := p.pos()
	p.advance()
	if p.at(".") {
		p.advance()
		if p.tok.Value != "target" {
			return nil, newError(p.pos(), "expected 'target' after 'new.'")
		}
		p.markContains(func(f *ast.ContainsFlags) { f.NewTarget = true })
		p.advance()
		return &ast.MetaProperty{Base: ast.Base{K: ast.KindMetaProperty, Loc: start}, Meta: "new", Property: "target"}, nil
	}
	var callee ast.Expression
	var err error
	if p.at("new") {
		callee, err = p.parseNew()
	} else {
		callee, err = p.parsePrimary()
	}
	if err != nil {
		return nil, err
	}
	callee, err = p.parseMemberTail(callee)
	if err != nil {
		return nil, err
	}
	var args []ast.Expression
	if p.at("(") {
		args, err = p.parseArguments()
		if err != nil {
			return nil, err
		}
	}
	return &ast.NewExpression{Base: ast.Base{K: ast.KindNewExpression, Loc: start}, Callee: callee, Arguments: args}, nil
}

// parseMemberTail consumes `.id`, `[expr]`, and template-tag suffixes but
// not calls, the restricted tail new-expression's callee uses.
func (p *Parser) parseMemberTail(expr ast.Expression) (ast.Expression, error) {
	for {
		switch {
		case p.at("."):
			p.advance()
			prop := p.parsePropertyNameToken()
			expr = &ast.MemberExpression{Base: ast.Base{K: ast.KindMemberExpression, Loc: expr.Pos()}, Object: expr, Property: prop, Computed: false}
		case p.at("["):
			p.advance()
			key, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect("]"); err != nil {
				return nil, err
			}
			expr = &ast.MemberExpression{Base: ast.Base{K: ast.KindMemberExpression, Loc: expr.Pos()}, Object: expr, Property: key, Computed: true}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parsePropertyNameToken() ast.Expression {
	if p.tok.Kind == lexer.PrivateIdentifier {
		id := &ast.PrivateIdentifier{Base: ast.Base{K: ast.KindPrivateIdentifier, Loc: p.pos()}, Name: p.tok.Value}
		p.advance()
		return id
	}
	id := &ast.Identifier{Base: ast.Base{K: ast.KindIdentifier, Loc: p.pos()}, Name: p.tok.Value}
	p.advance()
	return id
}

func (p *Parser) parseCallTail(expr ast.Expression) (ast.Expression, error) {
	for {
		switch {
		case p.at("."):
			p.advance()
			prop := p.parsePropertyNameToken()
			expr = &ast.MemberExpression{Base: ast.Base{K: ast.KindMemberExpression, Loc: expr.Pos()}, Object: expr, Property: prop, Computed: false}
		case p.at("?."):
			p.advance()
			if p.at("(") {
				args, err := p.parseArguments()
				if err != nil {
					return nil, err
				}
				expr = &ast.CallExpression{Base: ast.Base{K: ast.KindCallExpression, Loc: expr.Pos()}, Callee: expr, Arguments: args, Optional: true}
				continue
			}
			if p.at("[") {
				p.advance()
				key, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				if _, err := p.expect("]"); err != nil {
					return nil, err
				}
				expr = &ast.MemberExpression{Base: ast.Base{K: ast.KindMemberExpression, Loc: expr.Pos()}, Object: expr, Property: key, Computed: true, Optional: true}
				continue
			}
			prop := p.parsePropertyNameToken()
			expr = &ast.MemberExpression{Base: ast.Base{K: ast.KindMemberExpression, Loc: expr.Pos()}, Object: expr, Property: prop, Computed: false, Optional: true}
		case p.at("["):
			p.advance()
			key, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect("]"); err != nil {
				return nil, err
			}
			expr = &ast.MemberExpression{Base: ast.Base{K: ast.KindMemberExpression, Loc: expr.Pos()}, Object: expr, Property: key, Computed: true}
		case p.at("("):
			args, err := p.parseArguments()
			if err != nil {
				return nil, err
			}
			expr = &ast.CallExpression{Base: ast.Base{K: ast.KindCallExpression, Loc: expr.Pos()}, Callee: expr, Arguments: args}
		case p.atKind(lexer.NoSubstitutionTemplate) || p.atKind(lexer.TemplateHead):
			tmpl, err := p.parseTemplateLiteral()
			if err != nil {
				return nil, err
			}
			expr = &ast.TaggedTemplate{Base: ast.Base{K: ast.KindTaggedTemplate, Loc: expr.Pos()}, Tag: expr, Quasi: tmpl}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parseArguments() ([]ast.Expression, error) {
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	var args []ast.Expression
	for !p.at(")") {
		if p.at("...") {
			start := p.pos()
			p.advance()
			a, err := p.parseAssignmentExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, &ast.SpreadElement{Base: ast.Base{K: ast.KindSpreadElement, Loc: start}, Argument: a})
		} else {
			a, err := p.parseAssignmentExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
		}
		if p.at(",") {
			p.advance()
		} else {
			break
		}
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parsePrimary() (ast.Expression, error) {
	start := p.pos()
	switch {
	case p.at("this"):
		p.markContains(func(f *ast.ContainsFlags) { f.This = true })
		p.advance()
		return &ast.ThisExpression{Base: ast.Base{K: ast.KindThisExpression, Loc: start}}, nil
	case p.at("super"):
		p.markContains(func(f *ast.ContainsFlags) { f.Super = true })
		p.advance()
		if p.at("(") {
			p.markContains(func(f *ast.ContainsFlags) { f.SuperCall = true })
			args, err := p.parseArguments()
			if err != nil {
				return nil, err
			}
			return &ast.CallExpression{Base: ast.Base{K: ast.KindCallExpression, Loc: start}, Callee: &ast.SuperExpression{Base: ast.Base{K: ast.KindSuperExpression, Loc: start}}, Arguments: args}, nil
		}
		p.markContains(func(f *ast.ContainsFlags) { f.SuperProperty = true })
		return &ast.SuperExpression{Base: ast.Base{K: ast.KindSuperExpression, Loc: start}}, nil
	case p.at("null"):
		p.advance()
		return &ast.NullLiteral{Base: ast.Base{K: ast.KindNullLiteral, Loc: start}}, nil
	case p.at("true"), p.at("false"):
		v := p.tok.Value == "true"
		p.advance()
		return &ast.BooleanLiteral{Base: ast.Base{K: ast.KindBooleanLiteral, Loc: start}, Value: v}, nil
	case p.atKind(lexer.NumericLiteral):
		raw := p.tok.Value
		p.advance()
		f, _ := strconv.ParseFloat(raw, 64)
		return &ast.NumericLiteral{Base: ast.Base{K: ast.KindNumericLiteral, Loc: start}, Value: f}, nil
	case p.atKind(lexer.BigIntLiteral):
		raw := p.tok.Value
		p.advance()
		return &ast.BigIntLiteral{Base: ast.Base{K: ast.KindBigIntLiteral, Loc: start}, Raw: raw}, nil
	case p.atKind(lexer.StringLiteral):
		v := p.tok.Value
		p.advance()
		return &ast.StringLiteral{Base: ast.Base{K: ast.KindStringLiteral, Loc: start}, Value: v}, nil
	case p.atKind(lexer.RegularExpressionLiteral):
		tok := p.tok
		p.advance()
		pattern, flags := splitRegExp(tok.Value)
		return &ast.RegExpLiteral{Base: ast.Base{K: ast.KindRegExpLiteral, Loc: start}, Pattern: pattern, Flags: flags}, nil
	case p.atKind(lexer.NoSubstitutionTemplate) || p.atKind(lexer.TemplateHead):
		return p.parseTemplateLiteral()
	case p.at("["):
		return p.parseArrayLiteral()
	case p.at("{"):
		return p.parseObjectLiteral()
	case p.at("function"):
		return p.parseFunctionExpressionFrom(false)
	case p.at("async") && p.peek(0).Value == "function" && !p.peek(0).NewlineBefore:
		p.advance()
		return p.parseFunctionExpressionFrom(true)
	case p.at("class"):
		return p.parseClassExpression()
	case p.at("import"):
		p.advance()
		if p.at(".") {
			p.advance()
			if p.tok.Value != "meta" {
				return nil, newError(p.pos(), "expected 'meta' after 'import.'")
			}
			p.advance()
			return &ast.MetaProperty{Base: ast.Base{K: ast.KindMetaProperty, Loc: start}, Meta: "import", Property: "meta"}, nil
		}
		if _, err := p.expect("("); err != nil {
			return nil, err
		}
		src, err := p.parseAssignmentExpression()
		if err != nil {
			return nil, err
		}
		if p.at(",") {
			p.advance()
			if !p.at(")") {
				if _, err := p.parseAssignmentExpression(); err != nil {
					return nil, err
				}
			}
		}
		if _, err := p.expect(")"); err != nil {
			return nil, err
		}
		return &ast.ImportExpression{Base: ast.Base{K: ast.KindImportExpression, Loc: start}, Source: src}, nil
	case p.at("("):
		return p.parseParenthesizedExpression()
	case p.tok.Kind == lexer.PrivateIdentifier:
		id := &ast.PrivateIdentifier{Base: ast.Base{K: ast.KindPrivateIdentifier, Loc: start}, Name: p.tok.Value}
		p.advance()
		return id, nil
	case p.tok.Kind == lexer.Identifier || p.tok.Kind == lexer.Keyword:
		name := p.tok.Value
		p.advance()
		return &ast.Identifier{Base: ast.Base{K: ast.KindIdentifier, Loc: start}, Name: name}, nil
	default:
		return nil, newError(start, "unexpected token %q", p.tok.Value)
	}
}

func splitRegExp(raw string) (pattern, flags string) {
	// raw is `/pattern/flags`; find the final unescaped `/`.
	for i := len(raw) - 1; i > 0; i-- {
		if raw[i] == '/' {
			return raw[1:i], raw[i+1:]
		}
	}
	return raw, ""
}

// parseParenthesizedExpression handles the cover grammar between a plain
// parenthesized expression and an arrow function's parameter list — by
// the time we get here tryParseArrow has already failed, so this is
// committed to being a grouping expression. Deeply nested pure groups
// `(((...)))` are unwound iteratively past parenDepthFastPathThreshold,
// instead of recursing once per level.
func (p *Parser) parseParenthesizedExpression() (ast.Expression, error) {
	depth := 0
	if p.parenDepth >= parenDepthFastPathThreshold {
		// Consume opens iteratively; the matching closes are unwound the
		// same way below instead of via call-stack recursion, bounding
		// stack depth on pathological input.
		for p.at("(") && p.peek(0).Value == "(" {
			p.advance()
			depth++
		}
	}
	p.parenDepth++
	defer func() { p.parenDepth-- }()
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	for i := 0; i < depth; i++ {
		if _, err := p.expect(")"); err != nil {
			return nil, err
		}
	}
	return expr, nil
}

func (p *Parser) parseArrayLiteral() (ast.Expression, error) {
	start := p.pos()
	p.advance()
	var elems []ast.Expression
	for !p.at("]") {
		if p.at(",") {
			elems = append(elems, nil)
			p.advance()
			continue
		}
		if p.at("...") {
			sstart := p.pos()
			p.advance()
			a, err := p.parseAssignmentExpression()
			if err != nil {
				return nil, err
			}
			elems = append(elems, &ast.SpreadElement{Base: ast.Base{K: ast.KindSpreadElement, Loc: sstart}, Argument: a})
		} else {
			e, err := p.parseAssignmentExpression()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
		}
		if p.at(",") {
			p.advance()
		} else {
			break
		}
	}
	if _, err := p.expect("]"); err != nil {
		return nil, err
	}
	return &ast.ArrayLiteral{Base: ast.Base{K: ast.KindArrayLiteral, Loc: start}, Elements: elems}, nil
}

func (p *Parser) parseObjectLiteral() (ast.Expression, error) {
	start := p.pos()
	p.advance()
	obj := &ast.ObjectLiteral{Base: ast.Base{K: ast.KindObjectLiteral, Loc: start}}
	for !p.at("}") {
		prop, err := p.parseObjectProperty()
		if err != nil {
			return nil, err
		}
		obj.Properties = append(obj.Properties, prop)
		if p.at(",") {
			p.advance()
		} else {
			break
		}
	}
	if _, err := p.expect("}"); err != nil {
		return nil, err
	}
	return obj, nil
}

func (p *Parser) parseObjectProperty() (*ast.Property, error) {
	start := p.pos()
	if p.at("...") {
		p.advance()
		a, err := p.parseAssignmentExpression()
		if err != nil {
			return nil, err
		}
		return &ast.Property{Base: ast.Base{K: ast.KindProperty, Loc: start}, PropKind: ast.PropertySpread, Value: a}, nil
	}

	isAsync, isGen := false, false
	if p.at("async") && p.peek(0).Value != ":" && p.peek(0).Value != "(" && p.peek(0).Value != "," && p.peek(0).Value != "}" && !p.peek(0).NewlineBefore {
		isAsync = true
		p.advance()
	}
	if p.at("*") {
		isGen = true
		p.advance()
	}
	if (p.at("get") || p.at("set")) && p.peek(0).Value != ":" && p.peek(0).Value != "(" && p.peek(0).Value != "," && p.peek(0).Value != "}" {
		kind := ast.PropertyGet
		if p.tok.Value == "set" {
			kind = ast.PropertySet
		}
		p.advance()
		computed, key, err := p.parsePropertyKey()
		if err != nil {
			return nil, err
		}
		fn, err := p.parseFunctionTail(false, false, false)
		if err != nil {
			return nil, err
		}
		return &ast.Property{Base: ast.Base{K: ast.KindProperty, Loc: start}, PropKind: kind, Key: key, Value: fn, Computed: computed}, nil
	}

	computed, key, err := p.parsePropertyKey()
	if err != nil {
		return nil, err
	}

	if p.at("(") {
		fn, err := p.parseFunctionTail(isAsync, isGen, false)
		if err != nil {
			return nil, err
		}
		return &ast.Property{Base: ast.Base{K: ast.KindProperty, Loc: start}, PropKind: ast.PropertyMethod, Key: key, Value: fn, Computed: computed}, nil
	}
	if p.at(":") {
		p.advance()
		v, err := p.parseAssignmentExpression()
		if err != nil {
			return nil, err
		}
		return &ast.Property{Base: ast.Base{K: ast.KindProperty, Loc: start}, PropKind: ast.PropertyInit, Key: key, Value: v, Computed: computed}, nil
	}
	// Shorthand, possibly with a default (only meaningful once refined as
	// an assignment/binding target).
	id, ok := key.(*ast.Identifier)
	if !ok {
		return nil, newError(start, "invalid shorthand property")
	}
	var value ast.Expression = &ast.Identifier{Base: id.Base, Name: id.Name}
	if p.at("=") {
		p.advance()
		def, err := p.parseAssignmentExpression()
		if err != nil {
			return nil, err
		}
		value = &ast.AssignmentExpression{Base: ast.Base{K: ast.KindAssignmentExpression, Loc: start}, Operator: "=", Target: value, Value: def}
	}
	return &ast.Property{Base: ast.Base{K: ast.KindProperty, Loc: start}, PropKind: ast.PropertyInit, Key: key, Value: value, Computed: computed, Shorthand: true}, nil
}

func (p *Parser) parsePropertyKey() (bool, ast.Expression, error) {
	if p.at("[") {
		p.advance()
		key, err := p.parseAssignmentExpression()
		if err != nil {
			return false, nil, err
		}
		if _, err := p.expect("]"); err != nil {
			return false, nil, err
		}
		return true, key, nil
	}
	tok := p.tok
	key := p.identifierOrLiteralKey(tok)
	p.advance()
	return false, key, nil
}

func (p *Parser) parseTemplateLiteral() (*ast.TemplateLiteral, error) {
	start := p.pos()
	tmpl := &ast.TemplateLiteral{Base: ast.Base{K: ast.KindTemplateLiteral, Loc: start}}
	if p.tok.Kind == lexer.NoSubstitutionTemplate {
		tmpl.Quasis = append(tmpl.Quasis, p.tok.Value)
		tmpl.RawQuasis = append(tmpl.RawQuasis, p.tok.Raw)
		p.advance()
		return tmpl, nil
	}
	tmpl.Quasis = append(tmpl.Quasis, p.tok.Value)
	tmpl.RawQuasis = append(tmpl.RawQuasis, p.tok.Raw)
	p.advance()
	for {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		tmpl.Expressions = append(tmpl.Expressions, expr)
		tail := p.cursor.RescanTemplateTail()
		p.tok = tail
		tmpl.Quasis = append(tmpl.Quasis, tail.Value)
		tmpl.RawQuasis = append(tmpl.RawQuasis, tail.Raw)
		if tail.Kind == lexer.TemplateTail {
			p.advance()
			break
		}
		p.advance()
	}
	return tmpl, nil
}

// tryParseArrow attempts the arrow-function branch of the
// AssignmentExpression cover grammar: a bare identifier, `async`
// identifier, or parenthesized parameter list followed by `=>`. On
// failure it leaves the parser untouched (nothing has been consumed)
// by only committing once `=>` is confirmed via lookahead for the
// simple cases, and by re-parsing as a normal expression otherwise.
func (p *Parser) tryParseArrow() (ast.Expression, bool, error) {
	start := p.pos()
	isAsync := false
	if p.at("async") && !p.peek(0).NewlineBefore && (p.peek(0).Kind == lexer.Identifier || p.peek(0).Value == "(") {
		// Lookahead only as far as confirming the shape; committing
		// happens below once we see `=>`.
		isAsync = true
	}

	if (p.tok.Kind == lexer.Identifier) && p.peek(0).Value == "=>" && !p.peek(0).NewlineBefore {
		name := p.tok.Value
		p.advance()
		p.advance() // =>
		return p.finishArrow(start, isAsync, []ast.Node{&ast.Identifier{Base: ast.Base{K: ast.KindIdentifier, Loc: start}, Name: name}})
	}

	if isAsync && p.peek(0).Kind == lexer.Identifier && p.peek(1).Value == "=>" && !p.peek(1).NewlineBefore {
		p.advance() // async
		name := p.tok.Value
		paramStart := p.pos()
		p.advance()
		p.advance() // =>
		return p.finishArrow(start, true, []ast.Node{&ast.Identifier{Base: ast.Base{K: ast.KindIdentifier, Loc: paramStart}, Name: name}})
	}

	startIdx := 0
	if isAsync {
		startIdx = 1
	}
	if p.tokenAt(startIdx).Value != "(" {
		return nil, false, nil
	}

	// Speculative parse: scan forward past a balanced () to see if `=>`
	// follows; if so, re-parse that span as a parameter list.
	if !p.arrowLookaheadMatches(startIdx) {
		return nil, false, nil
	}

	if isAsync {
		p.advance() // consume 'async'
	}
	params, err := p.parseFormalParameters()
	if err != nil {
		return nil, false, err
	}
	if _, err := p.expect("=>"); err != nil {
		return nil, false, err
	}
	return p.finishArrow(start, isAsync, params)
}

// arrowLookaheadMatches scans the token stream starting at index start
// (in tokenAt's 0-based "current token plus peek buffer" indexing),
// counting balanced parentheses, to check whether the `(...)` there is
// immediately followed by `=>`. It consumes nothing.
func (p *Parser) arrowLookaheadMatches(start int) bool {
	i := start
	depth := 0
	for {
		t := p.tokenAt(i)
		if t.Kind == lexer.EOF {
			return false
		}
		if t.Value == "(" {
			depth++
		} else if t.Value == ")" {
			depth--
			if depth == 0 {
				next := p.tokenAt(i + 1)
				return next.Value == "=>" && !next.NewlineBefore
			}
		}
		i++
		if i-start > 4096 {
			return false
		}
	}
}

func (p *Parser) finishArrow(start lexer.Position, isAsync bool, params []ast.Node) (ast.Expression, bool, error) {
	p.pushContains()
	scope := p.pushScope(ast.ScopeFunction)
	for _, param := range params {
		for _, name := range ast.BoundNames(param) {
			scope.Declare(name, ast.BindingParameter)
		}
	}
	var body ast.Node
	exprBody := false
	if p.at("{") {
		b, err := p.parseFunctionBody()
		if err != nil {
			return nil, false, err
		}
		body = b
	} else {
		exprBody = true
		b, err := p.parseAssignmentExpression()
		if err != nil {
			return nil, false, err
		}
		body = b
	}
	contains := p.popContains()
	p.popScope()
	fn := ast.Function{
		Base: ast.Base{K: ast.KindArrowFunctionExpression, Loc: start}, Params: params, Body: body,
		IsAsync: isAsync, ThisMode: ast.ThisLexical, Scope: scope, Contains: contains,
	}
	return &ast.ArrowFunctionExpression{Function: fn, ExpressionBody: exprBody}, true, nil
}

func (p *Parser) parseFormalParameters() ([]ast.Node, error) {
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	var params []ast.Node
	for !p.at(")") {
		if p.at("...") {
			start := p.pos()
			p.advance()
			target, err := p.parseBindingTarget()
			if err != nil {
				return nil, err
			}
			params = append(params, &ast.RestElement{Base: ast.Base{K: ast.KindRestElement, Loc: start}, Argument: target})
			break
		}
		target, err := p.parseBindingTarget()
		if err != nil {
			return nil, err
		}
		var node ast.Node = target
		if p.at("=") {
			p.advance()
			def, err := p.parseAssignmentExpression()
			if err != nil {
				return nil, err
			}
			node = &ast.AssignmentPattern{Base: ast.Base{K: ast.KindAssignmentPattern, Loc: target.Pos()}, Target: target, Default: def}
		}
		params = append(params, node)
		if p.at(",") {
			p.advance()
		} else {
			break
		}
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *Parser) parseFunctionBody() (*ast.BlockStatement, error) {
	start := p.pos()
	if _, err := p.expect("{"); err != nil {
		return nil, err
	}
	var body []ast.Statement
	p.detectDirectivePrologue(&body)
	for !p.at("}") && p.tok.Kind != lexer.EOF {
		stmt, err := p.parseStatementListItem()
		if err != nil {
			return nil, err
		}
		body = append(body, stmt)
	}
	if err := ast.ValidateLabels(body); err != nil {
		return nil, err
	}
	if _, err := p.expect("}"); err != nil {
		return nil, err
	}
	return &ast.BlockStatement{Base: ast.Base{K: ast.KindBlockStatement, Loc: start}, Body: body}, nil
}

// parseFunctionCommon parses `function` [`*`] [id] `(` params `)` `{` body
// `}`, shared by declarations and expressions.
func (p *Parser) parseFunctionCommon(isAsync, requireId bool) (*ast.Function, error) {
	start := p.pos()
	if _, err := p.expect("function"); err != nil {
		return nil, err
	}
	isGen := false
	if p.at("*") {
		isGen = true
		p.advance()
	}
	var id *ast.Identifier
	if p.tok.Kind == lexer.Identifier || (!requireId && p.tok.Value != "(") {
		bid, err := p.parseBindingIdentifier()
		if err != nil {
			return nil, err
		}
		id = bid
	}
	fn, err := p.parseFunctionTailNamed(isAsync, isGen, id, start)
	if err != nil {
		return nil, err
	}
	return fn, nil
}

func (p *Parser) parseFunctionExpressionFrom(isAsync bool) (ast.Expression, error) {
	fn, err := p.parseFunctionCommon(isAsync, false)
	if err != nil {
		return nil, err
	}
	fn.K = ast.KindFunctionExpression
	return &ast.FunctionExpression{Function: *fn}, nil
}

// parseFunctionTail parses params+body for a method/getter/setter where
// the identifier, if any, is handled by the caller (object/class member
// key), returning a FunctionExpression.
func (p *Parser) parseFunctionTail(isAsync, isGen, isCtor bool) (*ast.FunctionExpression, error) {
	fn, err := p.parseFunctionTailNamed(isAsync, isGen, nil, p.pos())
	if err != nil {
		return nil, err
	}
	fn.K = ast.KindFunctionExpression
	return &ast.FunctionExpression{Function: *fn}, nil
}

func (p *Parser) parseFunctionTailNamed(isAsync, isGen bool, id *ast.Identifier, start lexer.Position) (*ast.Function, error) {
	p.pushContains()
	scope := p.pushScope(ast.ScopeFunction)
	params, err := p.parseFormalParameters()
	if err != nil {
		return nil, err
	}
	for _, param := range params {
		for _, name := range ast.BoundNames(param) {
			scope.Declare(name, ast.BindingParameter)
		}
	}
	prevInLoop, prevInSwitch := p.inLoop, p.inSwitch
	p.inLoop, p.inSwitch = 0, 0
	body, err := p.parseFunctionBody()
	p.inLoop, p.inSwitch = prevInLoop, prevInSwitch
	if err != nil {
		return nil, err
	}
	contains := p.popContains()
	contains.Yield = contains.Yield && isGen
	contains.Await = contains.Await && isAsync
	p.popScope()
	thisMode := ast.ThisGlobal
	if p.strict {
		thisMode = ast.ThisStrict
	}
	return &ast.Function{
		Base: ast.Base{K: ast.KindFunctionDeclaration, Loc: start}, Id: id, Params: params, Body: body,
		IsAsync: isAsync, IsGenerator: isGen, ThisMode: thisMode, Scope: scope, Contains: contains,
	}, nil
}
