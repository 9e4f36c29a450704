package compiler

import (
	"math/big"

	"github.com/wudi/esprel/ast"
	"github.com/wudi/esprel/opcodes"
	"github.com/wudi/esprel/values"
)

func (c *Compiler) compileExpression(expr ast.Expression) error {
	switch e := expr.(type) {
	case *ast.NullLiteral:
		c.emit(opcodes.OP_LOAD_NULL, 0)
		return nil
	case *ast.BooleanLiteral:
		if e.Value {
			c.emit(opcodes.OP_LOAD_TRUE, 0)
		} else {
			c.emit(opcodes.OP_LOAD_FALSE, 0)
		}
		return nil
	case *ast.NumericLiteral:
		c.emit(opcodes.OP_LOAD_CONST, c.addConstant(values.Number(e.Value)))
		return nil
	case *ast.BigIntLiteral:
		n := new(big.Int)
		n.SetString(e.Raw, 10)
		c.emit(opcodes.OP_LOAD_CONST, c.addConstant(values.BigIntValue(n)))
		return nil
	case *ast.StringLiteral:
		c.emit(opcodes.OP_LOAD_CONST, c.addConstant(values.String(e.Value)))
		return nil
	case *ast.RegExpLiteral:
		c.emit(opcodes.OP_LOAD_CONST, c.addConstant(values.String(e.Pattern+"\x00"+e.Flags)))
		return nil
	case *ast.TemplateLiteral:
		return c.compileTemplateLiteral(e)
	case *ast.TaggedTemplate:
		return c.compileTaggedTemplate(e)
	case *ast.Identifier:
		loc := c.addLocator(e.Name)
		c.emit(opcodes.OP_GET_BINDING, loc)
		return nil
	case *ast.ThisExpression:
		c.emit(opcodes.OP_LOAD_THIS, 0)
		return nil
	case *ast.ArrayLiteral:
		return c.compileArrayLiteral(e)
	case *ast.ObjectLiteral:
		return c.compileObjectLiteral(e)
	case *ast.FunctionExpression:
		cb, err := compileFunctionBody(&e.Function)
		if err != nil {
			return err
		}
		c.emit(opcodes.OP_MAKE_FUNCTION, c.addChild(cb))
		return nil
	case *ast.ArrowFunctionExpression:
		cb, err := compileFunctionBody(&e.Function)
		if err != nil {
			return err
		}
		c.emit(opcodes.OP_MAKE_ARROW, c.addChild(cb))
		return nil
	case *ast.ClassExpression:
		return c.compileClassExpression(e)
	case *ast.NewExpression:
		return c.compileNew(e)
	case *ast.CallExpression:
		return c.compileCall(e)
	case *ast.MemberExpression:
		return c.compileMemberGet(e)
	case *ast.UnaryExpression:
		return c.compileUnary(e)
	case *ast.UpdateExpression:
		return c.compileUpdate(e)
	case *ast.BinaryExpression:
		return c.compileBinary(e)
	case *ast.LogicalExpression:
		return c.compileLogical(e)
	case *ast.AssignmentExpression:
		return c.compileAssignment(e)
	case *ast.ConditionalExpression:
		return c.compileConditional(e)
	case *ast.SequenceExpression:
		for i, sub := range e.Expressions {
			if i > 0 {
				c.emit(opcodes.OP_POP, 0)
			}
			if err := c.compileExpression(sub); err != nil {
				return err
			}
		}
		return nil
	case *ast.SpreadElement:
		return c.compileExpression(e.Argument)
	case *ast.YieldExpression:
		return c.compileYield(e)
	case *ast.AwaitExpression:
		if err := c.compileExpression(e.Argument); err != nil {
			return err
		}
		c.emit(opcodes.OP_AWAIT, 0)
		return nil
	case *ast.MetaProperty:
		if e.Meta == "new" {
			c.emit(opcodes.OP_GET_BINDING, c.addLocator("new.target"))
			return nil
		}
		c.emit(opcodes.OP_LOAD_UNDEFINED, 0)
		return nil
	case *ast.ImportExpression:
		if err := c.compileExpression(e.Source); err != nil {
			return err
		}
		c.emit(opcodes.OP_IMPORT, 0)
		return nil
	case *ast.PrivateIdentifier:
		c.emit(opcodes.OP_LOAD_CONST, c.addConstant(values.String(e.Name)))
		return nil
	default:
		return compileErrorf("compiler: unsupported expression %T", expr)
	}
}

func (c *Compiler) compileTemplateLiteral(t *ast.TemplateLiteral) error {
	for _, expr := range t.Expressions {
		if err := c.compileExpression(expr); err != nil {
			return err
		}
	}
	idx := c.addTemplate(t.Quasis, t.RawQuasis)
	c.emit(opcodes.OP_TEMPLATE_CONCAT, idx)
	return nil
}

// compileTaggedTemplate follows the same [this, callee, args...] stack
// convention as an ordinary call: the tag
// function is invoked with the cooked/raw strings array as its first
// argument followed by the substitution values, per ECMA-262 §13.3.11.
func (c *Compiler) compileTaggedTemplate(t *ast.TaggedTemplate) error {
	if err := c.compileExpression(t.Tag); err != nil {
		return err
	}
	c.emit(opcodes.OP_LOAD_UNDEFINED, 0)
	c.emit(opcodes.OP_SWAP, 0)
	for _, expr := range t.Quasi.Expressions {
		if err := c.compileExpression(expr); err != nil {
			return err
		}
	}
	idx := c.addTemplate(t.Quasi.Quasis, t.Quasi.RawQuasis)
	c.emit(opcodes.OP_TAGGED_TEMPLATE, idx)
	return nil
}

func (c *Compiler) compileArrayLiteral(a *ast.ArrayLiteral) error {
	c.emit(opcodes.OP_NEW_ARRAY, 0)
	for _, el := range a.Elements {
		if el == nil {
			c.emit(opcodes.OP_LOAD_UNDEFINED, 0)
			c.emit(opcodes.OP_ARRAY_PUSH, 0)
			continue
		}
		if spread, ok := el.(*ast.SpreadElement); ok {
			if err := c.compileExpression(spread.Argument); err != nil {
				return err
			}
			c.emit(opcodes.OP_ARRAY_SPREAD, 0)
			continue
		}
		if err := c.compileExpression(el); err != nil {
			return err
		}
		c.emit(opcodes.OP_ARRAY_PUSH, 0)
	}
	return nil
}

func (c *Compiler) compileObjectLiteral(o *ast.ObjectLiteral) error {
	c.emit(opcodes.OP_NEW_OBJECT, 0)
	for _, p := range o.Properties {
		switch p.PropKind {
		case ast.PropertySpread:
			if err := c.compileExpression(p.Value); err != nil {
				return err
			}
			c.emit(opcodes.OP_OBJECT_SPREAD, 0)
		case ast.PropertyGet, ast.PropertySet, ast.PropertyMethod:
			fn, ok := p.Value.(*ast.FunctionExpression)
			if !ok {
				return compileErrorf("compiler: malformed object method")
			}
			cb, err := compileFunctionBody(&fn.Function)
			if err != nil {
				return err
			}
			c.emit(opcodes.OP_MAKE_FUNCTION, c.addChild(cb))
			if err := c.compilePropertyKeyValue(p.Key, p.Computed); err != nil {
				return err
			}
			// Operand distinguishes a plain method (0, a callable data
			// property) from an accessor (1=getter, 2=setter) so the VM
			// installs the right PropertyDescriptor shape.
			kind := int32(0)
			if p.PropKind == ast.PropertyGet {
				kind = 1
			} else if p.PropKind == ast.PropertySet {
				kind = 2
			}
			c.emit(opcodes.OP_OBJECT_SET, kind)
		default:
			if err := c.compileExpression(p.Value); err != nil {
				return err
			}
			if err := c.compilePropertyKeyValue(p.Key, p.Computed); err != nil {
				return err
			}
			c.emit(opcodes.OP_OBJECT_SET, 0)
		}
	}
	return nil
}

// compilePropertyKeyValue pushes the key value OP_OBJECT_SET expects
// on top of the property value already on the stack.
func (c *Compiler) compilePropertyKeyValue(key ast.Expression, computed bool) error {
	if computed {
		return c.compileExpression(key)
	}
	c.emit(opcodes.OP_LOAD_CONST, c.addConstant(values.String(propertyKeyName(key))))
	return nil
}

func propertyKeyName(key ast.Expression) string {
	switch k := key.(type) {
	case *ast.Identifier:
		return k.Name
	case *ast.StringLiteral:
		return k.Value
	case *ast.NumericLiteral:
		return values.Number(k.Value).ToStringValue()
	case *ast.PrivateIdentifier:
		return "#" + k.Name
	}
	return ""
}

// compileNew follows the [callee, args...] convention; a spread argument anywhere switches the whole argument list
// to build as a single array first (compileSpreadArgs), since a single
// instruction operand can't tag which positions were spread.
func (c *Compiler) compileNew(n *ast.NewExpression) error {
	if err := c.compileExpression(n.Callee); err != nil {
		return err
	}
	if hasSpreadArg(n.Arguments) {
		if err := c.compileSpreadArgs(n.Arguments); err != nil {
			return err
		}
		c.emit(opcodes.OP_NEW_SPREAD, 0)
		return nil
	}
	for _, a := range n.Arguments {
		if err := c.compileExpression(a); err != nil {
			return err
		}
	}
	c.emit(opcodes.OP_NEW, int32(len(n.Arguments)))
	return nil
}

func argValueOf(a ast.Expression) ast.Expression {
	if spread, ok := a.(*ast.SpreadElement); ok {
		return spread.Argument
	}
	return a
}

func hasSpreadArg(args []ast.Expression) bool {
	for _, a := range args {
		if _, ok := a.(*ast.SpreadElement); ok {
			return true
		}
	}
	return false
}

// compileSpreadArgs builds one Array from a mixed plain/spread argument
// list the same way an array literal does (compileArrayLiteral), so the
// VM's _SPREAD call opcodes always consume a single already-flattened
// array rather than needing to know which stack slots were spread.
func (c *Compiler) compileSpreadArgs(args []ast.Expression) error {
	c.emit(opcodes.OP_NEW_ARRAY, 0)
	for _, a := range args {
		if s, ok := a.(*ast.SpreadElement); ok {
			if err := c.compileExpression(s.Argument); err != nil {
				return err
			}
			c.emit(opcodes.OP_ARRAY_SPREAD, 0)
			continue
		}
		if err := c.compileExpression(a); err != nil {
			return err
		}
		c.emit(opcodes.OP_ARRAY_PUSH, 0)
	}
	return nil
}

func (c *Compiler) compileCall(call *ast.CallExpression) error {
	if sup, ok := call.Callee.(*ast.SuperExpression); ok {
		_ = sup
		for _, a := range call.Arguments {
			if err := c.compileExpression(argValueOf(a)); err != nil {
				return err
			}
		}
		c.emit(opcodes.OP_SUPER_CALL, int32(len(call.Arguments)))
		return nil
	}
	// The direct-eval form compiles to its own opcode: the callee is
	// not looked up, and the compiled source runs against the caller's
	// live environment (spread arguments demote to an ordinary call,
	// which is indirect eval territory anyway).
	if id, ok := call.Callee.(*ast.Identifier); ok && id.Name == "eval" && !hasSpreadArg(call.Arguments) {
		for _, a := range call.Arguments {
			if err := c.compileExpression(argValueOf(a)); err != nil {
				return err
			}
		}
		c.emit(opcodes.OP_CALL_EVAL, int32(len(call.Arguments)))
		return nil
	}
	// A method call `obj.method(...)` needs `obj` left as `this` for the
	// invocation, so member callees compile their own get-property form
	// rather than going through the plain identifier/expression path.
	// Stack ends up [obj, method] — already [this, callee] order, the
	// same convention the non-member branch below builds with its SWAP.
	if mem, ok := call.Callee.(*ast.MemberExpression); ok {
		if _, isSuper := mem.Object.(*ast.SuperExpression); isSuper {
			// `super.m(...)` invokes the home object's method with the
			// current `this` as receiver (ECMA-262 §13.3.7.3).
			c.emit(opcodes.OP_LOAD_THIS, 0)
			if mem.Computed {
				if err := c.compileExpression(mem.Property); err != nil {
					return err
				}
			} else {
				c.emit(opcodes.OP_LOAD_CONST, c.addConstant(values.String(propertyKeyName(mem.Property))))
			}
			c.emit(opcodes.OP_GET_SUPER_PROPERTY, 0)
		} else {
			if err := c.compileExpression(mem.Object); err != nil {
				return err
			}
			c.emit(opcodes.OP_DUP, 0)
			if err := c.compileMemberAccessOnStackObject(mem); err != nil {
				return err
			}
		}
	} else {
		if err := c.compileExpression(call.Callee); err != nil {
			return err
		}
		c.emit(opcodes.OP_LOAD_UNDEFINED, 0)
		c.emit(opcodes.OP_SWAP, 0)
	}
	if hasSpreadArg(call.Arguments) {
		if err := c.compileSpreadArgs(call.Arguments); err != nil {
			return err
		}
		c.emit(opcodes.OP_CALL_SPREAD, 0)
		return nil
	}
	for _, a := range call.Arguments {
		if err := c.compileExpression(argValueOf(a)); err != nil {
			return err
		}
	}
	op := opcodes.OP_CALL
	if call.Optional {
		op = opcodes.OP_CALL_OPTIONAL
	}
	c.emit(op, int32(len(call.Arguments)))
	return nil
}

// compileMemberAccessOnStackObject emits the property-get half of a
// MemberExpression assuming the object is already on top of the
// stack (used by method calls, which need the object kept as `this`).
func (c *Compiler) compileMemberAccessOnStackObject(m *ast.MemberExpression) error {
	if _, ok := m.Object.(*ast.SuperExpression); ok {
		if err := c.compilePropertyKeyAccess(m.Property, m.Computed); err != nil {
			return err
		}
		return nil
	}
	if m.Computed {
		if err := c.compileExpression(m.Property); err != nil {
			return err
		}
		c.emit(opcodes.OP_GET_PROPERTY_COMPUTED, 0)
		return nil
	}
	if priv, ok := m.Property.(*ast.PrivateIdentifier); ok {
		c.emit(opcodes.OP_GET_PRIVATE, c.addConstant(values.String(priv.Name)))
		return nil
	}
	name := propertyKeyName(m.Property)
	c.emit(opcodes.OP_GET_PROPERTY_IC, c.addConstant(values.String(name)))
	return nil
}

func (c *Compiler) compileMemberGet(m *ast.MemberExpression) error {
	if _, ok := m.Object.(*ast.SuperExpression); ok {
		if m.Computed {
			if err := c.compileExpression(m.Property); err != nil {
				return err
			}
		} else {
			c.emit(opcodes.OP_LOAD_CONST, c.addConstant(values.String(propertyKeyName(m.Property))))
		}
		c.emit(opcodes.OP_GET_SUPER_PROPERTY, 0)
		return nil
	}
	if err := c.compileExpression(m.Object); err != nil {
		return err
	}
	if m.Optional {
		// `a?.b` short-circuits to undefined when the base is nullish,
		// without evaluating the key.
		c.emit(opcodes.OP_DUP, 0)
		skip := c.emit(opcodes.OP_JUMP_IF_NULLISH, 0)
		if err := c.compileMemberAccessOnStackObject(m); err != nil {
			return err
		}
		end := c.emit(opcodes.OP_JUMP, 0)
		c.patchJump(skip)
		c.emit(opcodes.OP_POP, 0)
		c.emit(opcodes.OP_LOAD_UNDEFINED, 0)
		c.patchJump(end)
		return nil
	}
	return c.compileMemberAccessOnStackObject(m)
}

var unaryOpcodes = map[ast.UnaryOperator]opcodes.Opcode{
	ast.OpPlus: opcodes.OP_POS, ast.OpMinus: opcodes.OP_NEG,
	ast.OpNot: opcodes.OP_NOT, ast.OpBitNot: opcodes.OP_BW_NOT,
	ast.OpTypeof: opcodes.OP_TYPEOF,
}

func (c *Compiler) compileUnary(u *ast.UnaryExpression) error {
	if u.Operator == ast.OpDelete {
		return c.compileDelete(u.Argument)
	}
	if u.Operator == ast.OpTypeof {
		if id, ok := u.Argument.(*ast.Identifier); ok {
			c.emit(opcodes.OP_TYPEOF_BINDING, c.addLocator(id.Name))
			return nil
		}
	}
	if u.Operator == ast.OpVoid {
		if err := c.compileExpression(u.Argument); err != nil {
			return err
		}
		c.emit(opcodes.OP_POP, 0)
		c.emit(opcodes.OP_LOAD_UNDEFINED, 0)
		return nil
	}
	if err := c.compileExpression(u.Argument); err != nil {
		return err
	}
	op, ok := unaryOpcodes[u.Operator]
	if !ok {
		return compileErrorf("compiler: unsupported unary operator %q", u.Operator)
	}
	c.emit(op, 0)
	return nil
}

func (c *Compiler) compileDelete(target ast.Expression) error {
	m, ok := target.(*ast.MemberExpression)
	if !ok {
		c.emit(opcodes.OP_LOAD_TRUE, 0)
		return nil
	}
	if err := c.compileExpression(m.Object); err != nil {
		return err
	}
	if m.Computed {
		if err := c.compileExpression(m.Property); err != nil {
			return err
		}
	} else {
		c.emit(opcodes.OP_LOAD_CONST, c.addConstant(values.String(propertyKeyName(m.Property))))
	}
	c.emit(opcodes.OP_DELETE_PROPERTY, 0)
	return nil
}

func (c *Compiler) compileUpdate(u *ast.UpdateExpression) error {
	op := opcodes.OP_INC
	if u.Operator == "--" {
		op = opcodes.OP_DEC
	}
	// emitStep leaves [.., result, newValue] on the stack from [.., old]:
	// prefix keeps a copy of the incremented value as the expression
	// result, postfix keeps the original.
	emitStep := func() {
		if u.Prefix {
			c.emit(op, 0)
			c.emit(opcodes.OP_DUP, 0)
		} else {
			c.emit(opcodes.OP_DUP, 0)
			c.emit(op, 0)
		}
	}
	if id, ok := u.Argument.(*ast.Identifier); ok {
		loc := c.addLocator(id.Name)
		c.emit(opcodes.OP_GET_BINDING, loc)
		emitStep()
		c.emit(opcodes.OP_SET_BINDING, loc)
		return nil
	}
	m, ok := u.Argument.(*ast.MemberExpression)
	if !ok {
		return compileErrorf("compiler: invalid update target %T", u.Argument)
	}
	if err := c.compileExpression(m.Object); err != nil {
		return err
	}
	c.emit(opcodes.OP_DUP, 0)
	if m.Computed {
		// Both the object and the key are needed twice (get, then set)
		// and must be evaluated exactly once; the ROT shuffles keep the
		// saved copies beneath the working values.
		if err := c.compileExpression(m.Property); err != nil {
			return err
		}
		c.emit(opcodes.OP_DUP, 0)  // [o, o, k, k]
		c.emit(opcodes.OP_ROT3, 0) // [o, k, k, o]
		c.emit(opcodes.OP_SWAP, 0) // [o, k, o, k]
		c.emit(opcodes.OP_GET_PROPERTY_COMPUTED, 0)
		emitStep() // [o, k, result, new]
		c.emit(opcodes.OP_ROT4, 0)
		c.emit(opcodes.OP_ROT4, 0)
		c.emit(opcodes.OP_SWAP, 0)
		c.emit(opcodes.OP_ROT3, 0)
		c.emit(opcodes.OP_ROT3, 0) // [result, o, new, k]
		c.emit(opcodes.OP_SET_PROPERTY_COMPUTED, 0)
		return nil
	}
	if err := c.compileMemberAccessOnStackObject(m); err != nil {
		return err
	}
	emitStep()                 // [o, result, new]
	c.emit(opcodes.OP_ROT3, 0) // [result, new, o]
	c.emit(opcodes.OP_SWAP, 0) // [result, o, new]
	return c.compileMemberSetOnStackObject(m)
}

var binaryOpcodes = map[string]opcodes.Opcode{
	"+": opcodes.OP_ADD, "-": opcodes.OP_SUB, "*": opcodes.OP_MUL, "/": opcodes.OP_DIV,
	"%": opcodes.OP_MOD, "**": opcodes.OP_POW,
	"==": opcodes.OP_EQ, "!=": opcodes.OP_NEQ, "===": opcodes.OP_SEQ, "!==": opcodes.OP_SNEQ,
	"<": opcodes.OP_LT, "<=": opcodes.OP_LTE, ">": opcodes.OP_GT, ">=": opcodes.OP_GTE,
	"instanceof": opcodes.OP_INSTANCEOF, "in": opcodes.OP_IN,
	"&": opcodes.OP_BW_AND, "|": opcodes.OP_BW_OR, "^": opcodes.OP_BW_XOR,
	"<<": opcodes.OP_SHL, ">>": opcodes.OP_SHR, ">>>": opcodes.OP_USHR,
}

func (c *Compiler) compileBinary(b *ast.BinaryExpression) error {
	if err := c.compileExpression(b.Left); err != nil {
		return err
	}
	if err := c.compileExpression(b.Right); err != nil {
		return err
	}
	op, ok := binaryOpcodes[b.Operator]
	if !ok {
		return compileErrorf("compiler: unsupported binary operator %q", b.Operator)
	}
	c.emit(op, 0)
	return nil
}

func (c *Compiler) compileLogical(l *ast.LogicalExpression) error {
	if err := c.compileExpression(l.Left); err != nil {
		return err
	}
	var skip int
	switch l.Operator {
	case "&&":
		c.emit(opcodes.OP_DUP, 0)
		skip = c.emit(opcodes.OP_JUMP_IF_FALSE, 0)
	case "||":
		c.emit(opcodes.OP_DUP, 0)
		skip = c.emit(opcodes.OP_JUMP_IF_TRUE, 0)
	case "??":
		c.emit(opcodes.OP_DUP, 0)
		skip = c.emit(opcodes.OP_JUMP_IF_NOT_NULLISH, 0)
	default:
		return compileErrorf("compiler: unsupported logical operator %q", l.Operator)
	}
	c.emit(opcodes.OP_POP, 0)
	if err := c.compileExpression(l.Right); err != nil {
		return err
	}
	c.patchJump(skip)
	return nil
}

func (c *Compiler) compileConditional(cond *ast.ConditionalExpression) error {
	if err := c.compileExpression(cond.Test); err != nil {
		return err
	}
	elseJump := c.emit(opcodes.OP_JUMP_IF_FALSE, 0)
	if err := c.compileExpression(cond.Consequent); err != nil {
		return err
	}
	endJump := c.emit(opcodes.OP_JUMP, 0)
	c.patchJump(elseJump)
	if err := c.compileExpression(cond.Alternate); err != nil {
		return err
	}
	c.patchJump(endJump)
	return nil
}

func (c *Compiler) compileYield(y *ast.YieldExpression) error {
	if y.Argument != nil {
		if err := c.compileExpression(y.Argument); err != nil {
			return err
		}
	} else {
		c.emit(opcodes.OP_LOAD_UNDEFINED, 0)
	}
	if y.Delegate {
		c.emit(opcodes.OP_YIELD_STAR, 0)
	} else {
		c.emit(opcodes.OP_YIELD, 0)
	}
	return nil
}

var compoundBinaryOp = map[string]string{
	"+=": "+", "-=": "-", "*=": "*", "/=": "/", "%=": "%", "**=": "**",
	"&=": "&", "|=": "|", "^=": "^", "<<=": "<<", ">>=": ">>", ">>>=": ">>>",
}

func (c *Compiler) compileAssignment(a *ast.AssignmentExpression) error {
	switch a.Operator {
	case "=":
		if err := c.compileExpression(a.Value); err != nil {
			return err
		}
		c.emit(opcodes.OP_DUP, 0)
		if err := c.compileAssignmentTarget(a.Target); err != nil {
			return err
		}
		return nil
	case "&&=", "||=", "??=":
		return c.compileLogicalAssignment(a)
	}
	binOp, ok := compoundBinaryOp[a.Operator]
	if !ok {
		return compileErrorf("compiler: unsupported assignment operator %q", a.Operator)
	}
	if err := c.compileExpression(a.Target); err != nil {
		return err
	}
	if err := c.compileExpression(a.Value); err != nil {
		return err
	}
	c.emit(binaryOpcodes[binOp], 0)
	c.emit(opcodes.OP_DUP, 0)
	return c.compileAssignmentTarget(a.Target)
}

func (c *Compiler) compileLogicalAssignment(a *ast.AssignmentExpression) error {
	if err := c.compileExpression(a.Target); err != nil {
		return err
	}
	c.emit(opcodes.OP_DUP, 0)
	var skip int
	switch a.Operator {
	case "&&=":
		skip = c.emit(opcodes.OP_JUMP_IF_FALSE, 0)
	case "||=":
		skip = c.emit(opcodes.OP_JUMP_IF_TRUE, 0)
	default:
		skip = c.emit(opcodes.OP_JUMP_IF_NOT_NULLISH, 0)
	}
	c.emit(opcodes.OP_POP, 0)
	if err := c.compileExpression(a.Value); err != nil {
		return err
	}
	c.emit(opcodes.OP_DUP, 0)
	if err := c.compileAssignmentTarget(a.Target); err != nil {
		return err
	}
	c.patchJump(skip)
	return nil
}

// compileAssignmentTarget consumes the top-of-stack value into target,
// which may be a plain reference or a destructuring pattern refined
// from an expression by the parser's toAssignmentTarget. Callers that
// need the assigned value as an expression result DUP it first; the
// destructuring paths rely on nothing being left behind.
func (c *Compiler) compileAssignmentTarget(target ast.Expression) error {
	switch t := target.(type) {
	case *ast.Identifier:
		loc := c.addLocator(t.Name)
		c.emit(opcodes.OP_SET_BINDING, loc)
		return nil
	case *ast.MemberExpression:
		if err := c.compileExpression(t.Object); err != nil {
			return err
		}
		c.emit(opcodes.OP_SWAP, 0)
		return c.compileMemberSetOnStackObject(t)
	case *ast.ArrayPattern:
		return c.compileArrayPatternAssign(t)
	case *ast.ObjectPattern:
		return c.compileObjectPatternAssign(t)
	case *ast.AssignmentPattern:
		return c.compileDefaultedAssign(t)
	default:
		return compileErrorf("compiler: unsupported assignment target %T", target)
	}
}

func (c *Compiler) compileMemberSetOnStackObject(m *ast.MemberExpression) error {
	if m.Computed {
		if err := c.compileExpression(m.Property); err != nil {
			return err
		}
		c.emit(opcodes.OP_SET_PROPERTY_COMPUTED, 0)
		return nil
	}
	if priv, ok := m.Property.(*ast.PrivateIdentifier); ok {
		c.emit(opcodes.OP_SET_PRIVATE, c.addConstant(values.String(priv.Name)))
		return nil
	}
	name := propertyKeyName(m.Property)
	c.emit(opcodes.OP_SET_PROPERTY_IC, c.addConstant(values.String(name)))
	return nil
}

func (c *Compiler) compileDefaultedAssign(p *ast.AssignmentPattern) error {
	c.emit(opcodes.OP_DUP, 0)
	c.emit(opcodes.OP_LOAD_UNDEFINED, 0)
	c.emit(opcodes.OP_SEQ, 0)
	jump := c.emit(opcodes.OP_JUMP_IF_FALSE, 0)
	c.emit(opcodes.OP_POP, 0)
	if err := c.compileExpression(p.Default); err != nil {
		return err
	}
	c.patchJump(jump)
	target, ok := p.Target.(ast.Expression)
	if !ok {
		return compileErrorf("compiler: invalid assignment-pattern target %T", p.Target)
	}
	return c.compileAssignmentTarget(target)
}

func (c *Compiler) compileArrayPatternAssign(p *ast.ArrayPattern) error {
	c.emit(opcodes.OP_GET_ITERATOR, 0)
	for _, el := range p.Elements {
		if el == nil {
			c.emit(opcodes.OP_ITER_NEXT, 0)
			c.emit(opcodes.OP_POP, 0) // done
			c.emit(opcodes.OP_POP, 0) // value, elided
			continue
		}
		if rest, ok := el.(*ast.RestElement); ok {
			c.emit(opcodes.OP_NEW_ARRAY, 0)
			// Stack is [iterator, newArr]; ARRAY_SPREAD wants the iterable on
			// top and the destination array below it, the same convention the
			// object-rest branch below uses. Spreading exhausts the
			// iterator, so no close follows.
			c.emit(opcodes.OP_SWAP, 0)
			c.emit(opcodes.OP_ARRAY_SPREAD, 0)
			target, ok := rest.Argument.(ast.Expression)
			if !ok {
				return compileErrorf("compiler: invalid rest target %T", rest.Argument)
			}
			return c.compileAssignmentTarget(target)
		}
		c.emit(opcodes.OP_ITER_NEXT, 0)
		c.emit(opcodes.OP_POP, 0) // done
		target, ok := el.(ast.Expression)
		if !ok {
			return compileErrorf("compiler: invalid array-pattern element %T", el)
		}
		if err := c.compileAssignmentTarget(target); err != nil {
			return err
		}
	}
	c.emit(opcodes.OP_ITER_CLOSE, 0)
	return nil
}

func (c *Compiler) compileObjectPatternAssign(p *ast.ObjectPattern) error {
	for _, prop := range p.Properties {
		c.emit(opcodes.OP_DUP, 0)
		if err := c.compilePropertyKeyAccess(prop.Key, prop.Computed); err != nil {
			return err
		}
		target, ok := prop.Value.(ast.Expression)
		if !ok {
			return compileErrorf("compiler: invalid object-pattern property %T", prop.Value)
		}
		if err := c.compileAssignmentTarget(target); err != nil {
			return err
		}
	}
	if p.Rest != nil {
		c.emit(opcodes.OP_NEW_OBJECT, 0)
		c.emit(opcodes.OP_SWAP, 0)
		c.emit(opcodes.OP_OBJECT_SPREAD, 0)
		target, ok := p.Rest.Argument.(ast.Expression)
		if !ok {
			return compileErrorf("compiler: invalid rest target %T", p.Rest.Argument)
		}
		if err := c.compileAssignmentTarget(target); err != nil {
			return err
		}
	} else {
		c.emit(opcodes.OP_POP, 0)
	}
	return nil
}
