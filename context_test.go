package esprel

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/esprel/values"
)

func newTestContext(t *testing.T, sources map[string]string) (*Context, *[]string) {
	t.Helper()
	var printed []string
	ctx := New(Options{}, HostHooks{
		LoadModuleSource: func(referrer, specifier string) (string, error) {
			src, ok := sources[specifier]
			if !ok {
				return "", fmt.Errorf("module %q not found", specifier)
			}
			return src, nil
		},
		Print: func(line string) { printed = append(printed, line) },
	})
	return ctx, &printed
}

func globalOf(t *testing.T, ctx *Context, name string) values.Value {
	t.Helper()
	v, err := ctx.VM.GlobalEnv.GetBindingValue(name)
	require.NoError(t, err)
	return v
}

func TestEvalRunsScript(t *testing.T) {
	ctx, _ := newTestContext(t, nil)
	_, err := ctx.Eval(`var x = 2 + 3;`)
	require.NoError(t, err)
	assert.Equal(t, 5.0, globalOf(t, ctx, "x").AsNumber())
}

func TestStrictOptionAppliesToEval(t *testing.T) {
	ctx, _ := newTestContext(t, nil)
	// Assignment to an undeclared name is an implicit global in sloppy
	// mode but a ReferenceError under --strict.
	_, err := ctx.Eval(`implicitGlobal = 1;`)
	require.NoError(t, err)

	strictCtx := New(Options{Strict: true}, HostHooks{})
	_, err = strictCtx.Eval(`anotherImplicit = 1;`)
	assert.Error(t, err)
}

func TestConsoleLogGoesToPrintHook(t *testing.T) {
	ctx, printed := newTestContext(t, nil)
	_, err := ctx.Eval(`console.log("hello", 1 + 1);`)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello 2"}, *printed)
}

func TestMicrotaskOrdering(t *testing.T) {
	// Synchronous code runs to completion before
	// any promise reaction.
	ctx, _ := newTestContext(t, nil)
	_, err := ctx.Eval(`
var a = [];
Promise.resolve().then(function () { a[a.length] = 1; });
a[a.length] = 0;
`)
	require.NoError(t, err)
	_, err = ctx.Eval(`var out = JSON.stringify(a);`)
	require.NoError(t, err)
	assert.Equal(t, "[0,1]", globalOf(t, ctx, "out").AsString())
}

func TestPromiseAllPreservesElementOrder(t *testing.T) {
	// Results keep argument order even when the
	// middle promise settles last via a queued microtask.
	ctx, _ := newTestContext(t, nil)
	_, err := ctx.Eval(`
var out = "";
Promise.all([
	Promise.resolve("a"),
	new Promise(function (r) { queueMicrotask(function () { r("b"); }); }),
	Promise.resolve("c")
]).then(function (v) { out = JSON.stringify(v); });
`)
	require.NoError(t, err)
	assert.Equal(t, `["a","b","c"]`, globalOf(t, ctx, "out").AsString())
}

func TestPromiseChainingThroughEval(t *testing.T) {
	ctx, _ := newTestContext(t, nil)
	_, err := ctx.Eval(`
var log = "";
Promise.resolve(1)
	.then(function (v) { log += "then:" + v; return v + 1; })
	.then(function (v) { log += ",then:" + v; throw "stop"; })
	.catch(function (e) { log += ",catch:" + e; })
	.finally(function () { log += ",finally"; });
`)
	require.NoError(t, err)
	assert.Equal(t, "then:1,then:2,catch:stop,finally", globalOf(t, ctx, "log").AsString())
}

func TestUnhandledRejectionHook(t *testing.T) {
	var reasons []string
	ctx := New(Options{}, HostHooks{
		OnUnhandledRejection: func(reason values.Value) {
			reasons = append(reasons, reason.ToStringValue())
		},
	})
	_, err := ctx.Eval(`Promise.reject("orphaned");`)
	require.NoError(t, err)
	assert.Equal(t, []string{"orphaned"}, reasons)

	// A handled rejection stays quiet.
	reasons = nil
	_, err = ctx.Eval(`Promise.reject("handled").catch(function () {});`)
	require.NoError(t, err)
	assert.Empty(t, reasons)
}

func TestAsyncAwaitEndToEnd(t *testing.T) {
	ctx, _ := newTestContext(t, nil)
	_, err := ctx.Eval(`
var out = 0;
async function add(a, b) {
	return await a + await b;
}
add(20, 22).then(function (v) { out = v; });
`)
	require.NoError(t, err)
	assert.Equal(t, 42.0, globalOf(t, ctx, "out").AsNumber())
}

func TestLoadModuleEvaluatesGraph(t *testing.T) {
	ctx, _ := newTestContext(t, map[string]string{
		"main.js": `
import { greet } from "dep.js";
export const msg = greet("engine");
`,
		"dep.js": `export function greet(who) { return "hi " + who; }`,
	})
	mod, evalCap, err := ctx.LoadModule("main.js")
	require.NoError(t, err)
	require.NotNil(t, evalCap)

	ns := mod.GetModuleNamespace()
	v, getter, ok := ns.Get(values.StringKey("msg"))
	require.True(t, ok)
	if getter != nil {
		v, err = getter.Call(values.ObjectValue(ns), nil)
		require.NoError(t, err)
	}
	assert.Equal(t, "hi engine", v.AsString())
}

func TestDynamicImport(t *testing.T) {
	ctx, _ := newTestContext(t, map[string]string{
		"lazy.js": `export const value = "lazily loaded";`,
	})
	_, err := ctx.Eval(`
var got = "";
import("lazy.js").then(function (ns) { got = ns.value; });
`)
	require.NoError(t, err)
	assert.Equal(t, "lazily loaded", globalOf(t, ctx, "got").AsString())
}

func TestLoadModuleMissingSpecifier(t *testing.T) {
	ctx, _ := newTestContext(t, map[string]string{})
	_, _, err := ctx.LoadModule("nowhere.js")
	assert.Error(t, err)
}

func TestJSONStringify(t *testing.T) {
	ctx, _ := newTestContext(t, nil)
	_, err := ctx.Eval(`
var s1 = JSON.stringify({ a: 1, b: "two", c: [true, null], d: undefined });
var s2 = JSON.stringify("quote\"me");
var s3 = JSON.stringify(1 / 0);
`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":"two","c":[true,null]}`, globalOf(t, ctx, "s1").AsString())
	assert.Equal(t, `"quote\"me"`, globalOf(t, ctx, "s2").AsString())
	assert.Equal(t, "null", globalOf(t, ctx, "s3").AsString())
}

func TestDirectEvalThroughContext(t *testing.T) {
	ctx, _ := newTestContext(t, nil)
	_, err := ctx.Eval(`
var captured = 0;
function f() {
	var n = 41;
	eval("captured = n + 1;");
}
f();`)
	require.NoError(t, err)
	assert.Equal(t, 42.0, globalOf(t, ctx, "captured").AsNumber())
}

func TestEnsureCanCompileStringsGatesEval(t *testing.T) {
	blocked := fmt.Errorf("dynamic code disabled by host policy")
	ctx := New(Options{}, HostHooks{
		EnsureCanCompileStrings: func(string) error { return blocked },
	})
	_, err := ctx.Eval(`
var kind = "";
try { eval("1;"); } catch (e) { kind = e.name; }`)
	require.NoError(t, err)
	assert.Equal(t, "SyntaxError", globalOf(t, ctx, "kind").AsString(),
		"a host veto surfaces as a catchable error at the eval site")
}

func TestLoadOptionsFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "esprel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("strict: true\ndebug_level: 2\nmodule_root: ./mods\n"), 0o644))

	opts, err := LoadOptions(path)
	require.NoError(t, err)
	assert.True(t, opts.Strict)
	assert.Equal(t, 2, opts.DebugLevel)
	assert.Equal(t, "./mods", opts.ModuleRoot)

	_, err = LoadOptions(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(":\n\t-"), 0o644))
	_, err = LoadOptions(bad)
	assert.Error(t, err)
}
