package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wudi/esprel/compiler"
	"github.com/wudi/esprel/parser"
	"github.com/wudi/esprel/registry"
)

// evalRealm wires the dynamic-compilation hook a direct eval needs,
// the way an embedding host would.
func evalRealm(t *testing.T) *VM {
	t.Helper()
	realm := NewVM()
	realm.CompilerCallback = func(source string, isModule bool) (*registry.CodeBlock, error) {
		script, err := parser.ParseScript(source)
		if err != nil {
			return nil, err
		}
		return compiler.CompileScript(script)
	}
	return realm
}

func TestDirectEvalSeesCallerScope(t *testing.T) {
	realm := evalRealm(t)
	runOn(t, realm, `
var captured = 0;
function f() {
	var local = 5;
	eval("captured = local + 2;");
}
f();`)
	assert.Equal(t, 7.0, global(t, realm, "captured").AsNumber(),
		"eval code reads the caller's live bindings")
}

func TestDirectEvalVarReachesCallerVarScope(t *testing.T) {
	realm := evalRealm(t)
	runOn(t, realm, `
function g() {
	eval("var ev = 9;");
	return ev;
}
var got = g();`)
	assert.Equal(t, 9.0, global(t, realm, "got").AsNumber(),
		"a sloppy direct eval's var lands in the calling function's variable scope")
}

func TestStrictEvalKeepsVarsPrivate(t *testing.T) {
	realm := evalRealm(t)
	runOn(t, realm, `
function g() {
	"use strict";
	eval("var ev = 1;");
	return typeof ev;
}
var got = g();`)
	assert.Equal(t, "undefined", global(t, realm, "got").AsString(),
		"strict eval code gets its own variable environment")
}

func TestEvalOfNonStringPassesThrough(t *testing.T) {
	realm := evalRealm(t)
	runOn(t, realm, `var v = eval(42);`)
	assert.Equal(t, 42.0, global(t, realm, "v").AsNumber())
}

func TestEvalSyntaxErrorIsCatchable(t *testing.T) {
	realm := evalRealm(t)
	runOn(t, realm, `
var kind = "";
try { eval("var = ;"); } catch (e) { kind = e.name; }`)
	assert.Equal(t, "SyntaxError", global(t, realm, "kind").AsString())
}

func TestEvalWithoutHostHookThrows(t *testing.T) {
	realm := NewVM()
	runOn(t, realm, `
var kind = "";
try { eval("1;"); } catch (e) { kind = e.name; }`)
	assert.Equal(t, "TypeError", global(t, realm, "kind").AsString())
}
