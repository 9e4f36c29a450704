package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/esprel/values"
)

func TestGeneratorBasicProtocol(t *testing.T) {
	realm := runSource(t, `
function* g() {
	var got = yield 1;
	yield got + 1;
}
var it = g();
var r1 = it.next();
var a = r1.value;
var d1 = r1.done;
var b = it.next(10).value;
var r3 = it.next();
var d3 = r3.done;`)
	assert.Equal(t, 1.0, global(t, realm, "a").AsNumber())
	assert.False(t, global(t, realm, "d1").AsBool())
	assert.Equal(t, 11.0, global(t, realm, "b").AsNumber(), "next's argument becomes the yield expression's value")
	assert.True(t, global(t, realm, "d3").AsBool())
}

func TestGeneratorBodyIsLazy(t *testing.T) {
	realm := runSource(t, `
var started = false;
function* g() { started = true; yield 1; }
var it = g();
var before = started;
it.next();
var after = started;`)
	assert.False(t, global(t, realm, "before").AsBool(), "calling a generator function runs none of its body")
	assert.True(t, global(t, realm, "after").AsBool())
}

func TestGeneratorDelegation(t *testing.T) {
	realm := runSource(t, `
function* g() { yield* [1, 2, 3]; }
var out = [...g()];`)
	ad := global(t, realm, "out").AsObject().Internal.(*values.ArrayData)
	require.Len(t, ad.Elements, 3)
	for i, want := range []float64{1, 2, 3} {
		assert.Equal(t, want, ad.Elements[i].AsNumber())
	}
}

func TestGeneratorDelegationResumesAfterDelegate(t *testing.T) {
	realm := runSource(t, `
function* g() {
	yield* [1, 2];
	yield "tail";
}
var out = [...g()];`)
	ad := global(t, realm, "out").AsObject().Internal.(*values.ArrayData)
	require.Len(t, ad.Elements, 3)
	assert.Equal(t, "tail", ad.Elements[2].AsString())
}

func TestGeneratorForOf(t *testing.T) {
	realm := runSource(t, `
function* naturals() {
	var n = 0;
	while (true) { yield n; n = n + 1; }
}
var sum = 0;
for (const v of naturals()) {
	if (v > 3) { break; }
	sum += v;
}`)
	assert.Equal(t, 6.0, global(t, realm, "sum").AsNumber())
}

func TestGeneratorThrowIntoSuspendedFrame(t *testing.T) {
	realm := runSource(t, `
function* g() {
	var caught = "";
	try {
		yield 1;
	} catch (e) {
		caught = e;
	}
	yield "caught:" + caught;
}
var it = g();
it.next();
var out = it.throw("boom").value;`)
	assert.Equal(t, "caught:boom", global(t, realm, "out").AsString())
}

func TestGeneratorReturnCompletesEarly(t *testing.T) {
	realm := runSource(t, `
function* g() { yield 1; yield 2; }
var it = g();
it.next();
var r = it.return("early");
var v = r.value;
var d = r.done;
var after = it.next().done;`)
	assert.Equal(t, "early", global(t, realm, "v").AsString())
	assert.True(t, global(t, realm, "d").AsBool())
	assert.True(t, global(t, realm, "after").AsBool(), "a returned generator stays done")
}

func TestForOfAbruptExitClosesIteratorOnce(t *testing.T) {
	// break must invoke the iterator's `return`
	// exactly once.
	realm := NewVM()
	returns := 0
	n := 0

	iter := values.NewObject(realm.ObjectProto)
	iter.SetData(values.StringKey("next"), values.ObjectValue(realm.nativeFunction("next", func(values.Value, []values.Value) (values.Value, error) {
		n++
		return realm.generatorIterResult(values.Int(int64(n)), false), nil
	})))
	iter.SetData(values.StringKey("return"), values.ObjectValue(realm.nativeFunction("return", func(values.Value, []values.Value) (values.Value, error) {
		returns++
		return realm.generatorIterResult(values.Undefined, true), nil
	})))

	iterable := values.NewObject(realm.ObjectProto)
	iterable.SetData(values.SymbolKey(values.SymbolIterator), values.ObjectValue(realm.nativeFunction("", func(values.Value, []values.Value) (values.Value, error) {
		return values.ObjectValue(iter), nil
	})))

	realm.GlobalEnv.DeclareMutable("it", true)
	require.NoError(t, realm.GlobalEnv.InitializeBinding("it", values.ObjectValue(iterable)))

	runOn(t, realm, `for (const x of it) { if (x === 2) { break; } }`)
	assert.Equal(t, 1, returns, "IteratorClose runs exactly once on break")
	assert.Equal(t, 2, n, "the loop pulled exactly two values")
}

func TestExhaustedForOfAlsoCloses(t *testing.T) {
	realm := NewVM()
	returns := 0
	i := 0
	vals := []values.Value{values.Int(1), values.Int(2)}

	iter := values.NewObject(realm.ObjectProto)
	iter.SetData(values.StringKey("next"), values.ObjectValue(realm.nativeFunction("next", func(values.Value, []values.Value) (values.Value, error) {
		if i >= len(vals) {
			return realm.generatorIterResult(values.Undefined, true), nil
		}
		v := vals[i]
		i++
		return realm.generatorIterResult(v, false), nil
	})))
	iter.SetData(values.StringKey("return"), values.ObjectValue(realm.nativeFunction("return", func(values.Value, []values.Value) (values.Value, error) {
		returns++
		return realm.generatorIterResult(values.Undefined, true), nil
	})))
	iterable := values.NewObject(realm.ObjectProto)
	iterable.SetData(values.SymbolKey(values.SymbolIterator), values.ObjectValue(realm.nativeFunction("", func(values.Value, []values.Value) (values.Value, error) {
		return values.ObjectValue(iter), nil
	})))

	realm.GlobalEnv.DeclareMutable("seq", true)
	require.NoError(t, realm.GlobalEnv.InitializeBinding("seq", values.ObjectValue(iterable)))

	runOn(t, realm, `var total = 0; for (const x of seq) { total += x; }`)
	assert.Equal(t, 3.0, global(t, realm, "total").AsNumber())
	assert.Equal(t, 1, returns)
}
