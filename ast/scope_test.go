package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ident(name string) *Identifier {
	return &Identifier{Base: Base{K: KindIdentifier}, Name: name}
}

func TestBoundNamesCoverPatterns(t *testing.T) {
	decl := &VariableDeclaration{
		DeclKind: DeclLet,
		Declarations: []*VariableDeclarator{
			{Target: ident("plain")},
			{Target: &ArrayPattern{Elements: []Node{
				ident("first"),
				nil, // elision
				&AssignmentPattern{Target: ident("defaulted")},
				&RestElement{Argument: ident("tail")},
			}}},
			{Target: &ObjectPattern{
				Properties: []*ObjectPatternProperty{{Key: ident("k"), Value: ident("renamed")}},
				Rest:       &RestElement{Argument: ident("others")},
			}},
		},
	}
	assert.Equal(t, []string{"plain", "first", "defaulted", "tail", "renamed", "others"}, BoundNames(decl))
}

func TestScopeDeclareAndLookup(t *testing.T) {
	script := NewScope(ScopeScript, nil)
	fn := NewScope(ScopeFunction, script)
	block := NewScope(ScopeBlock, fn)

	script.Declare("g", BindingVar)
	fn.Declare("local", BindingVar)
	block.Declare("shadow", BindingLet)
	fn.Declare("shadow", BindingVar)

	s, b := block.Lookup("shadow")
	require.NotNil(t, b)
	assert.Same(t, block, s, "lookup resolves to the innermost declaration")

	s, b = block.Lookup("g")
	require.NotNil(t, b)
	assert.Same(t, script, s)

	_, b = block.Lookup("missing")
	assert.Nil(t, b)
}

func TestVarScopeWalksToFunction(t *testing.T) {
	script := NewScope(ScopeScript, nil)
	fn := NewScope(ScopeFunction, script)
	inner := NewScope(ScopeBlock, NewScope(ScopeBlock, fn))
	assert.Same(t, fn, inner.VarScope(), "var declarations target the nearest function/script/module scope")
}

func TestDuplicateDeclare(t *testing.T) {
	s := NewScope(ScopeBlock, nil)
	_, first := s.Declare("x", BindingLet)
	assert.True(t, first)
	_, second := s.Declare("x", BindingLet)
	assert.False(t, second, "re-declaring in the same scope reports a conflict")
}

func TestValidatePrivateNames(t *testing.T) {
	body := &ClassBody{Members: []*ClassMember{{
		MethodKind: "field",
		Key:        &PrivateIdentifier{Base: Base{K: KindPrivateIdentifier}, Name: "x"},
		Private:    true,
	}}}
	class := &Class{Body: body, PrivateNames: CollectPrivateNames(body)}
	assert.NoError(t, ValidatePrivateNames(class))

	// Accessing an undeclared private name anywhere in the body fails.
	body.Members = append(body.Members, &ClassMember{
		MethodKind: "method",
		Key:        ident("m"),
		Value: &FunctionExpression{Function: Function{Body: &BlockStatement{Body: []Statement{
			&ExpressionStatement{Expression: &MemberExpression{
				Object:   &ThisExpression{},
				Property: &PrivateIdentifier{Base: Base{K: KindPrivateIdentifier}, Name: "nope"},
			}},
		}}}},
	})
	assert.Error(t, ValidatePrivateNames(class))
}
