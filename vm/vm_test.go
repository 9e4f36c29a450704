package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/esprel/compiler"
	"github.com/wudi/esprel/parser"
	"github.com/wudi/esprel/values"
)

// runSource compiles and runs src as a script on a fresh realm,
// returning the realm so tests can inspect global bindings.
func runSource(t *testing.T, src string) *VM {
	t.Helper()
	realm := NewVM()
	runOn(t, realm, src)
	return realm
}

func runOn(t *testing.T, realm *VM, src string) {
	t.Helper()
	script, err := parser.ParseScript(src)
	require.NoError(t, err)
	block, err := compiler.CompileScript(script)
	require.NoError(t, err)
	_, err = realm.RunScript(block)
	require.NoError(t, err)
}

func global(t *testing.T, realm *VM, name string) values.Value {
	t.Helper()
	v, err := realm.GlobalEnv.GetBindingValue(name)
	require.NoError(t, err, "global %q", name)
	return v
}

func TestArithmeticAndVariables(t *testing.T) {
	realm := runSource(t, `var x = 1 + 2 * 3; var y = (1 + 2) * 3; var z = 2 ** 10;`)
	assert.Equal(t, 7.0, global(t, realm, "x").AsNumber())
	assert.Equal(t, 9.0, global(t, realm, "y").AsNumber())
	assert.Equal(t, 1024.0, global(t, realm, "z").AsNumber())
}

func TestStringConcatenation(t *testing.T) {
	realm := runSource(t, `var s = "a" + "b" + 1; var u = 1 + 2 + "c";`)
	assert.Equal(t, "ab1", global(t, realm, "s").AsString())
	assert.Equal(t, "3c", global(t, realm, "u").AsString())
}

func TestComparisonOperators(t *testing.T) {
	realm := runSource(t, `
var eq = 1 == "1";
var seq = 1 === "1";
var lt = 1 < 2;
var to = typeof "x";
var tu = typeof undeclared;`)
	assert.True(t, global(t, realm, "eq").AsBool())
	assert.False(t, global(t, realm, "seq").AsBool())
	assert.True(t, global(t, realm, "lt").AsBool())
	assert.Equal(t, "string", global(t, realm, "to").AsString())
	assert.Equal(t, "undefined", global(t, realm, "tu").AsString(), "typeof on an unresolved name must not throw")
}

func TestFunctionsAndClosures(t *testing.T) {
	realm := runSource(t, `
function make() {
	var n = 0;
	return function () { n = n + 1; return n; };
}
var c = make();
var a = c();
var b = c();
var d = make()();`)
	assert.Equal(t, 1.0, global(t, realm, "a").AsNumber())
	assert.Equal(t, 2.0, global(t, realm, "b").AsNumber(), "closure state persists across calls")
	assert.Equal(t, 1.0, global(t, realm, "d").AsNumber(), "each closure owns its own environment")
}

func TestUpdateExpressions(t *testing.T) {
	realm := runSource(t, `
var n = 5;
var post = n++;
var pre = ++n;
var o = { count: 1 };
o.count++;
++o.count;
var arr = [10];
var k = 0;
arr[k]--;`)
	assert.Equal(t, 5.0, global(t, realm, "post").AsNumber())
	assert.Equal(t, 7.0, global(t, realm, "pre").AsNumber())
	assert.Equal(t, 7.0, global(t, realm, "n").AsNumber())

	o := global(t, realm, "o").AsObject()
	count, _, _ := o.Get(values.StringKey("count"))
	assert.Equal(t, 3.0, count.AsNumber())

	arr := global(t, realm, "arr").AsObject()
	ad := arr.Internal.(*values.ArrayData)
	assert.Equal(t, 9.0, ad.Elements[0].AsNumber())
}

func TestTemporalDeadZone(t *testing.T) {
	// Reading a let binding before its declaration
	// inside the block throws a ReferenceError.
	realm := runSource(t, `
"use strict";
var thrown = "";
{
	try { x; } catch (e) { thrown = e.name; }
	let x = 1;
}`)
	assert.Equal(t, "ReferenceError", global(t, realm, "thrown").AsString())
}

func TestTryCatchFinallyOrder(t *testing.T) {
	realm := runSource(t, `
var log = "";
try {
	log = log + "t";
	throw "boom";
} catch (e) {
	log = log + "c:" + e;
} finally {
	log = log + "f";
}
log = log + ".";`)
	assert.Equal(t, "tc:boomf.", global(t, realm, "log").AsString())
}

func TestFinallyRethrowsAcrossFrames(t *testing.T) {
	realm := runSource(t, `
var log = "";
function f() {
	try {
		throw "x";
	} finally {
		log = log + "f";
	}
}
try { f(); } catch (e) { log = log + "c:" + e; }`)
	assert.Equal(t, "fc:x", global(t, realm, "log").AsString(),
		"a finally without a catch runs, then the original exception keeps unwinding")
}

func TestThrowInsideBlockRestoresEnvironment(t *testing.T) {
	realm := runSource(t, `
var got = "";
let probe = "outer";
try {
	{
		let probe = "inner";
		throw "stop";
	}
} catch (e) {
	got = probe;
}`)
	assert.Equal(t, "outer", global(t, realm, "got").AsString(),
		"unwinding must pop block scopes entered after the try")
}

func TestCallErrors(t *testing.T) {
	realm := runSource(t, `
var n = 1;
var kind = "";
try { n(); } catch (e) { kind = e.name; }
var kind2 = "";
try { missing(); } catch (e) { kind2 = e.name; }`)
	assert.Equal(t, "TypeError", global(t, realm, "kind").AsString())
	assert.Equal(t, "ReferenceError", global(t, realm, "kind2").AsString())
}

func TestObjectsAndArrays(t *testing.T) {
	realm := runSource(t, `
var o = { a: 1, nested: { b: 2 } };
var v1 = o.a;
var v2 = o.nested.b;
o.c = v1 + v2;
var arr = [1, 2, 3];
var len = arr.length;
var second = arr[1];
arr[5] = 9;
var grown = arr.length;
var sp = [0, ...arr][4];`)
	assert.Equal(t, 1.0, global(t, realm, "v1").AsNumber())
	assert.Equal(t, 2.0, global(t, realm, "v2").AsNumber())
	assert.Equal(t, 3.0, global(t, realm, "len").AsNumber())
	assert.Equal(t, 2.0, global(t, realm, "second").AsNumber())
	assert.Equal(t, 6.0, global(t, realm, "grown").AsNumber())
	assert.True(t, global(t, realm, "sp").IsUndefined())
}

func TestDestructuring(t *testing.T) {
	realm := runSource(t, `
var [a, , b = 9, ...rest] = [1, 2, undefined, 4, 5];
var { p, q: renamed, missing = "dflt" } = { p: "P", q: "Q" };`)
	assert.Equal(t, 1.0, global(t, realm, "a").AsNumber())
	assert.Equal(t, 9.0, global(t, realm, "b").AsNumber(), "default applies when the pulled value is undefined")
	rest := global(t, realm, "rest").AsObject().Internal.(*values.ArrayData)
	require.Len(t, rest.Elements, 2)
	assert.Equal(t, "P", global(t, realm, "p").AsString())
	assert.Equal(t, "Q", global(t, realm, "renamed").AsString())
	assert.Equal(t, "dflt", global(t, realm, "missing").AsString())
}

func TestLoops(t *testing.T) {
	realm := runSource(t, `
var total = 0;
for (let i = 1; i <= 4; i++) { total += i; }
var w = 0;
while (w < 3) { w++; }
var d = 0;
do { d++; } while (false);
var sum = 0;
for (const v of [10, 20, 30]) {
	if (v === 30) { break; }
	sum += v;
}
var keys = "";
for (var k in { a: 1, b: 2 }) { keys += k; }`)
	assert.Equal(t, 10.0, global(t, realm, "total").AsNumber())
	assert.Equal(t, 3.0, global(t, realm, "w").AsNumber())
	assert.Equal(t, 1.0, global(t, realm, "d").AsNumber())
	assert.Equal(t, 30.0, global(t, realm, "sum").AsNumber())
	assert.Equal(t, "ab", global(t, realm, "keys").AsString())
}

func TestSwitch(t *testing.T) {
	realm := runSource(t, `
function pick(x) {
	var out = "";
	switch (x) {
	case 1: out += "one"; break;
	case 2: out += "two"; // fall through
	case 3: out += "three"; break;
	default: out += "other";
	}
	return out;
}
var a = pick(1);
var b = pick(2);
var c = pick(9);`)
	assert.Equal(t, "one", global(t, realm, "a").AsString())
	assert.Equal(t, "twothree", global(t, realm, "b").AsString())
	assert.Equal(t, "other", global(t, realm, "c").AsString())
}

func TestTemplateLiterals(t *testing.T) {
	realm := runSource(t, "var n = 6;\nvar s = `n=${n}, double=${n * 2}`;")
	assert.Equal(t, "n=6, double=12", global(t, realm, "s").AsString())
}

func TestClasses(t *testing.T) {
	realm := runSource(t, `
class Point {
	constructor(x, y) {
		this.x = x;
		this.y = y;
	}
	sum() { return this.x + this.y; }
	static origin() { return new Point(0, 0); }
}
class Point3 extends Point {
	constructor(x, y, z) {
		super(x, y);
		this.z = z;
	}
	sum() { return super.sum() + this.z; }
}
var p = new Point(1, 2);
var s = p.sum();
var o = Point.origin().sum();
var s3 = new Point3(1, 2, 3).sum();`)
	assert.Equal(t, 3.0, global(t, realm, "s").AsNumber())
	assert.Equal(t, 0.0, global(t, realm, "o").AsNumber())
	assert.Equal(t, 6.0, global(t, realm, "s3").AsNumber())
}

func TestArrowThisIsLexical(t *testing.T) {
	realm := runSource(t, `
var obj = {
	tag: "host",
	make: function () {
		return () => this.tag;
	}
};
var got = obj.make()();`)
	assert.Equal(t, "host", global(t, realm, "got").AsString())
}

func TestLogicalOperators(t *testing.T) {
	realm := runSource(t, `
var a = null ?? "fallback";
var b = 0 || "or";
var c = 1 && "and";
var d = null?.missing;
var o = { n: 0 };
o.n ||= 5;
var e = o.n;`)
	assert.Equal(t, "fallback", global(t, realm, "a").AsString())
	assert.Equal(t, "or", global(t, realm, "b").AsString())
	assert.Equal(t, "and", global(t, realm, "c").AsString())
	assert.True(t, global(t, realm, "d").IsUndefined())
	assert.Equal(t, 5.0, global(t, realm, "e").AsNumber())
}

func TestInterrupt(t *testing.T) {
	realm := NewVM()
	script, err := parser.ParseScript(`var x = 0; x = 1;`)
	require.NoError(t, err)
	block, err := compiler.CompileScript(script)
	require.NoError(t, err)

	sentinel := assert.AnError
	realm.Interrupt(sentinel)
	_, err = realm.RunScript(block)
	assert.ErrorIs(t, err, sentinel, "a pending interrupt fires at the first opcode boundary")
}
