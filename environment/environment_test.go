package environment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/esprel/values"
)

func TestDeclarativeBindingLifecycle(t *testing.T) {
	env := NewDeclarative(nil)
	env.DeclareMutable("x", false)

	_, err := env.GetBindingValue("x")
	var re *ReferenceError
	require.ErrorAs(t, err, &re, "read before initialization is a TDZ violation")
	assert.True(t, re.TDZ)

	err = env.SetMutableBinding("x", values.Int(1))
	require.ErrorAs(t, err, &re, "write before initialization is a TDZ violation too")

	require.NoError(t, env.InitializeBinding("x", values.Int(1)))
	v, err := env.GetBindingValue("x")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.AsNumber())

	require.NoError(t, env.SetMutableBinding("x", values.Int(2)))
	v, _ = env.GetBindingValue("x")
	assert.Equal(t, 2.0, v.AsNumber())
}

func TestConstBindingIsImmutable(t *testing.T) {
	env := NewDeclarative(nil)
	env.DeclareImmutable("c")
	require.NoError(t, env.InitializeBinding("c", values.String("k")))

	err := env.SetMutableBinding("c", values.String("other"))
	assert.ErrorContains(t, err, "constant")

	v, err := env.GetBindingValue("c")
	require.NoError(t, err)
	assert.Equal(t, "k", v.AsString())
}

func TestResolveWalksChain(t *testing.T) {
	outer := NewDeclarative(nil)
	outer.DeclareMutable("shared", true)
	inner := NewDeclarative(outer)
	inner.DeclareMutable("local", true)

	found, ok := Resolve(inner, "shared")
	require.True(t, ok)
	assert.Same(t, outer, found)

	found, ok = Resolve(inner, "local")
	require.True(t, ok)
	assert.Same(t, inner, found)

	_, ok = Resolve(inner, "missing")
	assert.False(t, ok)
}

func TestShadowing(t *testing.T) {
	outer := NewDeclarative(nil)
	outer.DeclareMutable("x", true)
	require.NoError(t, outer.InitializeBinding("x", values.Int(1)))

	inner := NewDeclarative(outer)
	inner.DeclareMutable("x", true)
	require.NoError(t, inner.InitializeBinding("x", values.Int(2)))

	env, _ := Resolve(inner, "x")
	v, _ := env.GetBindingValue("x")
	assert.Equal(t, 2.0, v.AsNumber())

	outerV, _ := outer.GetBindingValue("x")
	assert.Equal(t, 1.0, outerV.AsNumber(), "outer binding is untouched by the shadow")
}

func TestIndirectBindingObservesLiveValue(t *testing.T) {
	source := NewDeclarative(nil)
	source.DeclareMutable("counter", false)

	importer := NewDeclarative(nil)
	importer.DeclareIndirect("counter", source, "counter")

	_, err := importer.GetBindingValue("counter")
	var re *ReferenceError
	require.ErrorAs(t, err, &re, "indirect read of an uninitialized source binding still hits its TDZ")

	require.NoError(t, source.InitializeBinding("counter", values.Int(0)))
	v, err := importer.GetBindingValue("counter")
	require.NoError(t, err)
	assert.Equal(t, 0.0, v.AsNumber())

	require.NoError(t, source.SetMutableBinding("counter", values.Int(7)))
	v, _ = importer.GetBindingValue("counter")
	assert.Equal(t, 7.0, v.AsNumber(), "imports observe later writes, not a link-time snapshot")

	err = importer.SetMutableBinding("counter", values.Int(9))
	assert.ErrorContains(t, err, "constant", "import bindings are immutable from the importing side")
}

func TestObjectEnvironment(t *testing.T) {
	global := values.NewObject(nil)
	env := NewGlobal(global)

	env.DeclareMutable("answer", true)
	require.NoError(t, env.InitializeBinding("answer", values.Int(42)))

	v, _, ok := global.Get(values.StringKey("answer"))
	require.True(t, ok, "global var bindings are properties of the global object")
	assert.Equal(t, 42.0, v.AsNumber())

	assert.True(t, env.HasBinding("answer"))
	assert.False(t, env.HasBinding("nope"))
}

func TestThisEnvironmentSkipsPlainRecords(t *testing.T) {
	fn := NewFunction(nil, values.String("receiver"), true, nil, nil)
	block := NewDeclarative(fn)
	inner := NewDeclarative(block)

	got := ThisEnvironment(inner)
	require.NotNil(t, got)
	assert.Same(t, fn, got)
	assert.Equal(t, "receiver", got.ThisValue.AsString())
}
