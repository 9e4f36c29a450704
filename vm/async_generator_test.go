package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/esprel/values"
)

// settledResult unwraps a fulfilled promise of an iterator result into
// (value, done).
func settledResult(t *testing.T, p *values.Object) (values.Value, bool) {
	t.Helper()
	pd := promiseData(p)
	require.NotNil(t, pd, "next() must return a promise")
	require.Equal(t, PromiseFulfilled, pd.State)
	res := pd.Result.AsObject()
	require.NotNil(t, res)
	v, _, _ := res.Get(values.StringKey("value"))
	d, _, _ := res.Get(values.StringKey("done"))
	return v, d.ToBoolean()
}

func TestAsyncGeneratorNextReturnsPromises(t *testing.T) {
	realm := runSource(t, `
async function* ag() {
	yield 1;
	yield 2;
}
var it = ag();
var p1 = it.next();
var p2 = it.next();
var p3 = it.next();`)
	p1 := global(t, realm, "p1").AsObject()
	assert.Equal(t, PromisePending, promiseData(p1).State,
		"a yield settles through the job queue, never synchronously")

	realm.Jobs.RunJobs()

	v, done := settledResult(t, p1)
	assert.Equal(t, 1.0, v.AsNumber())
	assert.False(t, done)

	v, done = settledResult(t, global(t, realm, "p2").AsObject())
	assert.Equal(t, 2.0, v.AsNumber())
	assert.False(t, done)

	_, done = settledResult(t, global(t, realm, "p3").AsObject())
	assert.True(t, done)
}

func TestAsyncGeneratorYieldAwaitsItsOperand(t *testing.T) {
	// The yielded value is itself awaited before the consumer's promise
	// fulfills, so yielding a promise delivers its settlement value.
	// The core carries no Promise global, so the promise is built on
	// the Go side.
	realm := NewVM()
	inner := realm.NewPromiseCapability()
	realm.GlobalEnv.DeclareMutable("boxed", true)
	require.NoError(t, realm.GlobalEnv.InitializeBinding("boxed", values.ObjectValue(inner.Promise)))

	runOn(t, realm, `
async function* ag() { yield boxed; }
var p = ag().next();`)
	p := global(t, realm, "p").AsObject()
	realm.Jobs.RunJobs()
	assert.Equal(t, PromisePending, promiseData(p).State,
		"the request stays pending until the yielded promise settles")

	inner.Resolve(values.String("unboxed"))
	realm.Jobs.RunJobs()
	v, done := settledResult(t, p)
	assert.Equal(t, "unboxed", v.AsString())
	assert.False(t, done)
}

func TestAsyncGeneratorBodyMayAwait(t *testing.T) {
	realm := runSource(t, `
async function* ag() {
	var a = await 10;
	yield a + 1;
	yield await 20;
}
var it = ag();
var p1 = it.next();
var p2 = it.next();`)
	realm.Jobs.RunJobs()

	v, done := settledResult(t, global(t, realm, "p1").AsObject())
	assert.Equal(t, 11.0, v.AsNumber())
	assert.False(t, done)

	v, done = settledResult(t, global(t, realm, "p2").AsObject())
	assert.Equal(t, 20.0, v.AsNumber())
	assert.False(t, done)
}

func TestForAwaitOverAsyncGenerator(t *testing.T) {
	realm := runSource(t, `
async function* ag() {
	yield "a";
	yield await "b";
}
var out = "";
async function consume() {
	for await (const v of ag()) {
		out += v;
	}
	out += ".";
}
consume();`)
	realm.Jobs.RunJobs()
	assert.Equal(t, "ab.", global(t, realm, "out").AsString())
}

func TestAsyncGeneratorThrowRejects(t *testing.T) {
	realm := runSource(t, `
async function* ag() { throw "bad"; yield 1; }
var p = ag().next();`)
	realm.Jobs.RunJobs()
	pd := promiseData(global(t, realm, "p").AsObject())
	require.Equal(t, PromiseRejected, pd.State)
	assert.Equal(t, "bad", pd.Result.AsString())
}

func TestAsyncGeneratorReturnCompletes(t *testing.T) {
	realm := runSource(t, `
async function* ag() { yield 1; yield 2; }
var it = ag();
var p1 = it.next();
var p2 = it.return("early");
var p3 = it.next();`)
	realm.Jobs.RunJobs()

	v, done := settledResult(t, global(t, realm, "p1").AsObject())
	assert.Equal(t, 1.0, v.AsNumber())
	assert.False(t, done)

	v, done = settledResult(t, global(t, realm, "p2").AsObject())
	assert.Equal(t, "early", v.AsString())
	assert.True(t, done)

	_, done = settledResult(t, global(t, realm, "p3").AsObject())
	assert.True(t, done)
}
