package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/esprel/values"
)

func TestReturnRunsFinally(t *testing.T) {
	realm := runSource(t, `
var log = "";
function f() {
	try {
		return "r";
	} finally {
		log += "f";
	}
}
var r = f();
log += ".";`)
	assert.Equal(t, "r", global(t, realm, "r").AsString())
	assert.Equal(t, "f.", global(t, realm, "log").AsString(),
		"the finally body runs before the frame returns")
}

func TestReturnRunsNestedFinallysInnermostFirst(t *testing.T) {
	realm := runSource(t, `
var log = "";
function f() {
	try {
		try {
			return 1;
		} finally {
			log += "1";
		}
	} finally {
		log += "2";
	}
}
var r = f();`)
	assert.Equal(t, 1.0, global(t, realm, "r").AsNumber())
	assert.Equal(t, "12", global(t, realm, "log").AsString())
}

func TestReturnValueEvaluatedBeforeFinally(t *testing.T) {
	realm := runSource(t, `
var n = 1;
function f() {
	try {
		return n;
	} finally {
		n = 99;
	}
}
var r = f();`)
	assert.Equal(t, 1.0, global(t, realm, "r").AsNumber(),
		"the return operand is captured before the finally body mutates it")
	assert.Equal(t, 99.0, global(t, realm, "n").AsNumber())
}

func TestBreakRunsFinally(t *testing.T) {
	realm := runSource(t, `
var log = "";
for (;;) {
	try {
		break;
	} finally {
		log += "f";
	}
}
log += ".";`)
	assert.Equal(t, "f.", global(t, realm, "log").AsString())
}

func TestContinueRunsFinally(t *testing.T) {
	realm := runSource(t, `
var log = "";
for (let i = 0; i < 2; i++) {
	try {
		continue;
	} finally {
		log += "f";
	}
}`)
	assert.Equal(t, "ff", global(t, realm, "log").AsString(),
		"each continue runs the finally before re-testing the loop")
}

func TestCatchAbruptExitStillRunsFinally(t *testing.T) {
	realm := runSource(t, `
var log = "";
function f() {
	try {
		throw "x";
	} catch (e) {
		return "from-catch";
	} finally {
		log += "f";
	}
}
var r = f();`)
	assert.Equal(t, "from-catch", global(t, realm, "r").AsString())
	assert.Equal(t, "f", global(t, realm, "log").AsString())
}

// hookedIterable builds an iterable whose iterator counts return()
// invocations, for asserting IteratorClose behavior.
func hookedIterable(realm *VM, returns *int) *values.Object {
	n := 0
	iter := values.NewObject(realm.ObjectProto)
	iter.SetData(values.StringKey("next"), values.ObjectValue(realm.nativeFunction("next", func(values.Value, []values.Value) (values.Value, error) {
		n++
		return realm.generatorIterResult(values.Int(int64(n)), false), nil
	})))
	iter.SetData(values.StringKey("return"), values.ObjectValue(realm.nativeFunction("return", func(values.Value, []values.Value) (values.Value, error) {
		*returns++
		return realm.generatorIterResult(values.Undefined, true), nil
	})))
	iterable := values.NewObject(realm.ObjectProto)
	iterable.SetData(values.SymbolKey(values.SymbolIterator), values.ObjectValue(realm.nativeFunction("", func(values.Value, []values.Value) (values.Value, error) {
		return values.ObjectValue(iter), nil
	})))
	return iterable
}

func TestReturnInsideForOfClosesIterator(t *testing.T) {
	realm := NewVM()
	returns := 0
	realm.GlobalEnv.DeclareMutable("it", true)
	require.NoError(t, realm.GlobalEnv.InitializeBinding("it", values.ObjectValue(hookedIterable(realm, &returns))))

	runOn(t, realm, `
function f() {
	for (const x of it) {
		if (x === 2) { return x * 10; }
	}
	return -1;
}
var r = f();`)
	assert.Equal(t, 20.0, global(t, realm, "r").AsNumber())
	assert.Equal(t, 1, returns, "an abrupt return out of for-of runs IteratorClose exactly once")
}

func TestLabeledBreakClosesInnerIterator(t *testing.T) {
	realm := NewVM()
	returns := 0
	realm.GlobalEnv.DeclareMutable("it", true)
	require.NoError(t, realm.GlobalEnv.InitializeBinding("it", values.ObjectValue(hookedIterable(realm, &returns))))

	runOn(t, realm, `
var seen = 0;
outer: for (;;) {
	for (const x of it) {
		seen = x;
		break outer;
	}
}`)
	assert.Equal(t, 1.0, global(t, realm, "seen").AsNumber())
	assert.Equal(t, 1, returns, "a labeled break across a for-of closes the inner iterator")
}

func TestReturnThroughFinallyAndForOf(t *testing.T) {
	realm := NewVM()
	returns := 0
	realm.GlobalEnv.DeclareMutable("it", true)
	require.NoError(t, realm.GlobalEnv.InitializeBinding("it", values.ObjectValue(hookedIterable(realm, &returns))))

	runOn(t, realm, `
var log = "";
function f() {
	for (const x of it) {
		try {
			return x;
		} finally {
			log += "f";
		}
	}
}
var r = f();`)
	assert.Equal(t, 1.0, global(t, realm, "r").AsNumber())
	assert.Equal(t, "f", global(t, realm, "log").AsString(), "the finally inside the loop runs first")
	assert.Equal(t, 1, returns, "then the loop's iterator closes")
}

func TestBreakOutOfSwitchInsideLoopThroughFinally(t *testing.T) {
	realm := runSource(t, `
var log = "";
outer: for (;;) {
	switch (1) {
	case 1:
		try {
			break outer;
		} finally {
			log += "f";
		}
	}
	log += "unreachable";
}
log += ".";`)
	assert.Equal(t, "f.", global(t, realm, "log").AsString(),
		"a labeled break crossing a switch drops its discriminant and still runs the finally")
}
