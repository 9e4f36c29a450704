package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/esprel/values"
)

func TestPromiseSettlesExactlyOnce(t *testing.T) {
	realm := NewVM()
	cap := realm.NewPromiseCapability()
	data := promiseData(cap.Promise)
	require.Equal(t, PromisePending, data.State)

	cap.Resolve(values.Int(1))
	realm.Jobs.RunJobs()
	assert.Equal(t, PromiseFulfilled, data.State)
	assert.Equal(t, 1.0, data.Result.AsNumber())

	// Later resolve/reject calls are no-ops.
	cap.Resolve(values.Int(2))
	cap.Reject(values.String("nope"))
	realm.Jobs.RunJobs()
	assert.Equal(t, PromiseFulfilled, data.State)
	assert.Equal(t, 1.0, data.Result.AsNumber())
	assert.Empty(t, data.Reactions, "settled promises keep no reaction records")
}

func TestReactionRunsAsMicrotaskNotInline(t *testing.T) {
	realm := NewVM()
	cap := realm.NewPromiseCapability()

	ran := false
	realm.Then(cap.Promise, realm.nativeFunction("", func(values.Value, []values.Value) (values.Value, error) {
		ran = true
		return values.Undefined, nil
	}), nil)

	cap.Resolve(values.Undefined)
	assert.False(t, ran, "settling only enqueues the reaction")
	realm.Jobs.RunJobs()
	assert.True(t, ran)
}

func TestReactionFIFOOrdering(t *testing.T) {
	realm := NewVM()
	cap := realm.NewPromiseCapability()

	var order []string
	log := func(tag string) *values.Object {
		return realm.nativeFunction("", func(values.Value, []values.Value) (values.Value, error) {
			order = append(order, tag)
			return values.Undefined, nil
		})
	}
	realm.Then(cap.Promise, log("first"), nil)
	realm.Then(cap.Promise, log("second"), nil)
	cap.Resolve(values.Undefined)
	realm.Then(cap.Promise, log("late"), nil)
	realm.Jobs.RunJobs()

	assert.Equal(t, []string{"first", "second", "late"}, order,
		"reactions fire in attachment order; post-settlement attachment enqueues behind them")
}

func TestJobsEnqueuedDuringJobRunAfterQueued(t *testing.T) {
	realm := NewVM()
	var order []int
	realm.Jobs.Enqueue(func() {
		order = append(order, 1)
		realm.Jobs.Enqueue(func() { order = append(order, 3) })
	})
	realm.Jobs.Enqueue(func() { order = append(order, 2) })
	realm.Jobs.RunJobs()
	assert.Equal(t, []int{1, 2, 3}, order, "a job enqueued mid-drain runs after everything already queued")
}

func TestDerivedPromiseChainsHandlerResult(t *testing.T) {
	realm := NewVM()
	cap := realm.NewPromiseCapability()

	derived := realm.Then(cap.Promise, realm.nativeFunction("", func(_ values.Value, args []values.Value) (values.Value, error) {
		return values.Number(args[0].AsNumber() * 2), nil
	}), nil)

	cap.Resolve(values.Int(21))
	realm.Jobs.RunJobs()

	dd := promiseData(derived)
	require.Equal(t, PromiseFulfilled, dd.State)
	assert.Equal(t, 42.0, dd.Result.AsNumber())
}

func TestHandlerThrowRejectsDerived(t *testing.T) {
	realm := NewVM()
	cap := realm.NewPromiseCapability()

	derived := realm.Then(cap.Promise, realm.nativeFunction("", func(values.Value, []values.Value) (values.Value, error) {
		return values.Undefined, realm.ThrowTypeError("handler exploded")
	}), nil)

	cap.Resolve(values.Undefined)
	realm.Jobs.RunJobs()

	dd := promiseData(derived)
	require.Equal(t, PromiseRejected, dd.State)
	assert.Equal(t, "Error", dd.Result.AsObject().Class)
}

func TestMissingHandlerPassesSettlementThrough(t *testing.T) {
	realm := NewVM()
	cap := realm.NewPromiseCapability()

	// then(undefined, undefined) forwards both value and reason.
	mid := realm.Then(cap.Promise, nil, nil)
	var got values.Value
	realm.Then(mid, realm.nativeFunction("", func(_ values.Value, args []values.Value) (values.Value, error) {
		got = args[0]
		return values.Undefined, nil
	}), nil)

	cap.Resolve(values.String("through"))
	realm.Jobs.RunJobs()
	assert.Equal(t, "through", got.AsString())
}

func TestThenableAdoption(t *testing.T) {
	realm := NewVM()

	thenable := values.NewObject(realm.ObjectProto)
	thenable.SetData(values.StringKey("then"), values.ObjectValue(realm.nativeFunction("then", func(_ values.Value, args []values.Value) (values.Value, error) {
		resolve := args[0].AsObject()
		return resolve.Call(values.Undefined, []values.Value{values.String("adopted")})
	})))

	cap := realm.NewPromiseCapability()
	cap.Resolve(values.ObjectValue(thenable))

	data := promiseData(cap.Promise)
	assert.Equal(t, PromisePending, data.State, "thenable adoption is deferred to a job")
	realm.Jobs.RunJobs()
	require.Equal(t, PromiseFulfilled, data.State)
	assert.Equal(t, "adopted", data.Result.AsString())
}

func TestSelfResolutionRejects(t *testing.T) {
	realm := NewVM()
	cap := realm.NewPromiseCapability()
	cap.Resolve(values.ObjectValue(cap.Promise))
	realm.Jobs.RunJobs()

	data := promiseData(cap.Promise)
	assert.Equal(t, PromiseRejected, data.State, "a promise must not adopt itself")
}

func TestUnhandledRejectionHook(t *testing.T) {
	realm := NewVM()
	var reported []string
	realm.Jobs.OnUnhandledRejection = func(reason values.Value) {
		reported = append(reported, reason.ToStringValue())
	}

	cap := realm.NewPromiseCapability()
	cap.Reject(values.String("lost"))
	realm.Jobs.RunJobs()
	assert.Equal(t, []string{"lost"}, reported)

	// A rejection with a handler attached before the drain is not
	// reported.
	reported = nil
	cap2 := realm.NewPromiseCapability()
	cap2.Reject(values.String("seen"))
	realm.Then(cap2.Promise, nil, realm.nativeFunction("", func(values.Value, []values.Value) (values.Value, error) {
		return values.Undefined, nil
	}))
	realm.Jobs.RunJobs()
	assert.Empty(t, reported)
}

func TestAsyncFunctionResumesThroughQueue(t *testing.T) {
	realm := runSource(t, `
var out = 0;
async function f() {
	var v = await 5;
	out = v + await 1;
}
f();`)
	// The body beyond the first await only runs when the queue drains.
	assert.Equal(t, 0.0, global(t, realm, "out").AsNumber())
	realm.Jobs.RunJobs()
	assert.Equal(t, 6.0, global(t, realm, "out").AsNumber())
}

func TestAsyncFunctionReturnsPromise(t *testing.T) {
	realm := runSource(t, `
async function f() { return 7; }
var p = f();`)
	realm.Jobs.RunJobs()
	p := global(t, realm, "p").AsObject()
	require.NotNil(t, p)
	data := promiseData(p)
	require.NotNil(t, data, "an async function call yields a promise immediately")
	assert.Equal(t, PromiseFulfilled, data.State)
	assert.Equal(t, 7.0, data.Result.AsNumber())
}

func TestAsyncThrowRejects(t *testing.T) {
	realm := runSource(t, `
async function f() { throw "bad"; }
var p = f();`)
	p := global(t, realm, "p").AsObject()
	data := promiseData(p)
	require.NotNil(t, data)
	assert.Equal(t, PromiseRejected, data.State)
	assert.Equal(t, "bad", data.Result.AsString())
}
