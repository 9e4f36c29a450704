package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/esprel/ast"
)

func TestParseScriptBattery(t *testing.T) {
	// One representative program per grammar area; each must parse
	// without error and produce at least one body statement.
	programs := map[string]string{
		"variables":       `var a = 1; let b = 2; const c = 3;`,
		"arithmetic":      `x = 1 + 2 * 3 ** 2 - 4 / 5 % 6;`,
		"logical":         `y = a && b || c ?? d;`,
		"conditional":     `z = a ? b : c;`,
		"functions":       `function add(a, b) { return a + b; }`,
		"defaults":        `function f(a = 1, ...rest) { return rest; }`,
		"arrow concise":   `const id = x => x;`,
		"arrow block":     `const f = (a, b) => { return a + b; };`,
		"async arrow":     `const g = async x => x;`,
		"generator":       `function* gen() { yield 1; yield* [2, 3]; }`,
		"async function":  `async function af() { return await p; }`,
		"classes":         `class Point { #x = 0; constructor(x) { this.#x = x; } get x() { return this.#x; } }`,
		"class heritage":  `class Derived extends Base { constructor() { super(); } }`,
		"destructuring":   `const { a, b: [c, ...d] = [] } = obj;`,
		"for":             `for (let i = 0; i < 10; i++) { total += i; }`,
		"for-of":          `for (const v of list) { use(v); }`,
		"for-in":          `for (const k in obj) { use(k); }`,
		"while":           `while (cond) { step(); }`,
		"do-while":        `do { step(); } while (cond);`,
		"switch":          `switch (x) { case 1: a(); break; default: b(); }`,
		"try":             `try { risky(); } catch (e) { handle(e); } finally { cleanup(); }`,
		"labels":          `outer: for (;;) { for (;;) { continue outer; } }`,
		"templates":       "msg = `a${x}b${y}c`;",
		"tagged template": "out = tag`n=${n}`;",
		"object literal":  `o = { a: 1, "b": 2, [k]: 3, m() { return 1; }, get p() { return 2; } };`,
		"array spread":    `a = [1, ...rest, 2];`,
		"optional chain":  `v = a?.b?.[c];`,
		"new":             `p = new Point(1, 2);`,
		"regex":           `re = /a[/]b/g;`,
		"update members":  `o.n++; --o[k];`,
		"with":            `with (o) { x = 1; }`,
	}
	for name, src := range programs {
		t.Run(name, func(t *testing.T) {
			script, err := ParseScript(src)
			require.NoError(t, err, "source: %s", src)
			require.NotEmpty(t, script.Body)
		})
	}
}

func TestDirectivePrologueSetsStrict(t *testing.T) {
	script, err := ParseScript(`"use strict"; var x = 1;`)
	require.NoError(t, err)
	assert.True(t, script.Strict)

	script, err = ParseScript(`var x = 1;`)
	require.NoError(t, err)
	assert.False(t, script.Strict)
}

func TestScriptScopeRecordsBindings(t *testing.T) {
	script, err := ParseScript(`var a = 1; let b = 2; function f() {}`)
	require.NoError(t, err)
	require.NotNil(t, script.Scope)
	for _, name := range []string{"a", "b", "f"} {
		_, ok := script.Scope.Bindings[name]
		assert.True(t, ok, "script scope should bind %q", name)
	}
}

func TestLabelValidation(t *testing.T) {
	cases := map[string]string{
		"unlabeled break outside loop":  `break;`,
		"unlabeled continue outside":    `continue;`,
		"unknown break label":           `a: { break b; }`,
		"continue targets non-loop":     `a: { continue a; }`,
		"duplicate label in set":        `a: a: for (;;) break;`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseScript(src)
			assert.Error(t, err, "source: %s", src)
		})
	}

	// break inside switch is fine without a label.
	_, err := ParseScript(`switch (x) { case 1: break; }`)
	assert.NoError(t, err)
}

func TestASI(t *testing.T) {
	// Newlines substitute for semicolons at statement boundaries.
	_, err := ParseScript("var a = 1\nvar b = 2\na = b")
	assert.NoError(t, err)

	// `return` is restricted: a newline after it terminates the
	// statement, so the bare `return` followed by `}` still parses.
	script, err := ParseScript("function f() {\n return\n }")
	require.NoError(t, err)
	require.NotEmpty(t, script.Body)
}

func TestParseModuleEntries(t *testing.T) {
	mod, err := ParseModule(`
import def from "./dep.js";
import * as ns from "./other.js";
import { a, b as c } from "./named.js";
export const local = 1;
export { local as renamed };
export * from "./star.js";
export default 42;
`)
	require.NoError(t, err)
	require.NotEmpty(t, mod.Body)

	var imports, exports int
	for _, stmt := range mod.Body {
		switch stmt.(type) {
		case *ast.ImportDeclaration:
			imports++
		case *ast.ExportNamedDeclaration, *ast.ExportDefaultDeclaration, *ast.ExportAllDeclaration:
			exports++
		}
	}
	assert.Equal(t, 3, imports)
	assert.Equal(t, 4, exports)

	for _, name := range []string{"def", "ns", "a", "c"} {
		b, ok := mod.Scope.Bindings[name]
		require.True(t, ok, "module scope should bind import %q", name)
		assert.Equal(t, ast.BindingImport, b.Kind)
	}
}

func TestModuleTopLevelAwait(t *testing.T) {
	mod, err := ParseModule(`const x = await 0;`)
	require.NoError(t, err)
	assert.True(t, mod.HasTLA)

	mod, err = ParseModule(`const x = 1;`)
	require.NoError(t, err)
	assert.False(t, mod.HasTLA)
}

func TestParenthesizedVsArrowCover(t *testing.T) {
	// Same prefix, two different disambiguations.
	script, err := ParseScript(`x = (a);`)
	require.NoError(t, err)
	require.NotEmpty(t, script.Body)

	script, err = ParseScript(`x = (a) => a + 1;`)
	require.NoError(t, err)
	es := script.Body[0].(*ast.ExpressionStatement)
	assign := es.Expression.(*ast.AssignmentExpression)
	_, isArrow := assign.Value.(*ast.ArrowFunctionExpression)
	assert.True(t, isArrow, "(a) followed by => must re-interpret the cover grammar as parameters")
}

func TestDeeplyNestedParens(t *testing.T) {
	// Deep pure parenthesization exercises the iterative fast path; the
	// expression must still parse to the innermost value.
	src := "x = "
	for i := 0; i < 500; i++ {
		src += "("
	}
	src += "42"
	for i := 0; i < 500; i++ {
		src += ")"
	}
	src += ";"
	_, err := ParseScript(src)
	assert.NoError(t, err)
}

func TestParseErrorsCarryPosition(t *testing.T) {
	_, err := ParseScript(`var = 1;`)
	require.Error(t, err)
	assert.NotEmpty(t, err.Error())
}
