package compiler

import (
	"github.com/wudi/esprel/ast"
	"github.com/wudi/esprel/opcodes"
	"github.com/wudi/esprel/registry"
)

func (c *Compiler) compileClassDeclaration(cd *ast.ClassDeclaration) error {
	if err := c.compileSuperClassExpr(&cd.Class); err != nil {
		return err
	}
	tmpl, err := c.compileClassTemplate(&cd.Class)
	if err != nil {
		return err
	}
	idx := c.addClassTemplate(tmpl)
	c.emit(opcodes.OP_MAKE_CLASS, idx)
	if cd.Id != nil {
		loc := c.addLocator(cd.Id.Name)
		c.emit(opcodes.OP_INIT_BINDING, loc)
	} else {
		c.emit(opcodes.OP_POP, 0)
	}
	return nil
}

func (c *Compiler) compileClassExpression(ce *ast.ClassExpression) error {
	if err := c.compileSuperClassExpr(&ce.Class); err != nil {
		return err
	}
	tmpl, err := c.compileClassTemplate(&ce.Class)
	if err != nil {
		return err
	}
	idx := c.addClassTemplate(tmpl)
	c.emit(opcodes.OP_MAKE_CLASS, idx)
	return nil
}

// compileSuperClassExpr pushes the superclass constructor value, if
// any, below everything OP_MAKE_CLASS needs: the VM pops it first
// (HasSuperClass gates the pop) before instantiating the class so
// `extends` can be an arbitrary expression, not just an identifier.
func (c *Compiler) compileSuperClassExpr(cls *ast.Class) error {
	if cls.SuperClass == nil {
		return nil
	}
	return c.compileExpression(cls.SuperClass)
}

// addClassTemplate accumulates class templates the same way addChild
// accumulates nested CodeBlocks; OP_MAKE_CLASS's operand indexes into
// the enclosing CodeBlock's ClassTemplates slice.
func (c *Compiler) addClassTemplate(tmpl *registry.ClassTemplate) int32 {
	c.classTemplates = append(c.classTemplates, tmpl)
	return int32(len(c.classTemplates) - 1)
}

func (c *Compiler) compileClassTemplate(cls *ast.Class) (*registry.ClassTemplate, error) {
	prevScope := c.scope
	prevStrict := c.strict
	c.strict = true
	if cls.Scope != nil {
		c.scope = cls.Scope
	}
	defer func() {
		c.scope = prevScope
		c.strict = prevStrict
	}()

	tmpl := &registry.ClassTemplate{
		HasSuperClass:  cls.SuperClass != nil,
		IsDerivedClass: cls.SuperClass != nil,
	}
	if cls.Id != nil {
		tmpl.Name = cls.Id.Name
	}
	for name := range cls.PrivateNames {
		tmpl.PrivateNames = append(tmpl.PrivateNames, name)
	}

	for _, m := range cls.Body.Members {
		if err := c.compileClassMember(tmpl, m); err != nil {
			return nil, err
		}
	}
	return tmpl, nil
}

func (c *Compiler) compileClassMember(tmpl *registry.ClassTemplate, m *ast.ClassMember) error {
	switch m.MethodKind {
	case "static-block":
		fn, ok := m.Value.(*ast.FunctionExpression)
		if !ok {
			return compileErrorf("compiler: malformed static initialization block")
		}
		cb, err := compileFunctionBody(&fn.Function)
		if err != nil {
			return err
		}
		tmpl.StaticBlocks = append(tmpl.StaticBlocks, cb)
		return nil
	case "field":
		ft := registry.FieldTemplate{Computed: m.Computed, Private: m.Private}
		if !m.Computed {
			ft.Key = propertyKeyName(m.Key)
		}
		if m.Value != nil {
			init, ok := m.Value.(ast.Expression)
			if !ok {
				return compileErrorf("compiler: malformed field initializer %T", m.Value)
			}
			fieldScope := ast.NewScope(ast.ScopeFunction, c.scope)
			fieldFn := &ast.Function{Body: init, ThisMode: ast.ThisStrict, Scope: fieldScope}
			cb, err := compileFunctionBody(fieldFn)
			if err != nil {
				return err
			}
			ft.Initializer = cb
		}
		if m.Static {
			tmpl.StaticFields = append(tmpl.StaticFields, ft)
		} else {
			tmpl.InstanceFields = append(tmpl.InstanceFields, ft)
		}
		return nil
	default:
		fn, ok := m.Value.(*ast.FunctionExpression)
		if !ok {
			return compileErrorf("compiler: malformed class method")
		}
		cb, err := compileFunctionBody(&fn.Function)
		if err != nil {
			return err
		}
		if m.MethodKind == "constructor" {
			tmpl.Constructor = cb
			return nil
		}
		mt := registry.MemberTemplate{Computed: m.Computed, Kind: m.MethodKind, Private: m.Private, Body: cb}
		if !m.Computed {
			mt.Key = propertyKeyName(m.Key)
		}
		if m.Static {
			tmpl.StaticMethods = append(tmpl.StaticMethods, mt)
		} else {
			tmpl.InstanceMethods = append(tmpl.InstanceMethods, mt)
		}
		return nil
	}
}
