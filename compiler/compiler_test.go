package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/esprel/opcodes"
	"github.com/wudi/esprel/parser"
	"github.com/wudi/esprel/registry"
)

func compileSource(t *testing.T, src string) *registry.CodeBlock {
	t.Helper()
	script, err := parser.ParseScript(src)
	require.NoError(t, err)
	block, err := CompileScript(script)
	require.NoError(t, err)
	return block
}

func opcodesOf(block *registry.CodeBlock) []opcodes.Opcode {
	ops := make([]opcodes.Opcode, len(block.Instructions))
	for i, inst := range block.Instructions {
		ops[i] = inst.Op
	}
	return ops
}

func countOp(block *registry.CodeBlock, op opcodes.Opcode) int {
	n := 0
	for _, inst := range block.Instructions {
		if inst.Op == op {
			n++
		}
	}
	return n
}

func TestCompileBattery(t *testing.T) {
	sources := map[string]string{
		"arithmetic":     `x = 1 + 2 * 3;`,
		"variables":      `var a = 1; let b = a; const c = b;`,
		"function decl":  `function f(a, b) { return a + b; } f(1, 2);`,
		"closure":        `function outer() { var n = 0; return function () { return ++n; }; }`,
		"arrow":          `const f = (a) => a * 2;`,
		"if-else":        `if (a) { b(); } else { c(); }`,
		"loops":          `for (let i = 0; i < 3; i++) { t += i; } while (x) { x--; }`,
		"for-of":         `for (const v of list) { if (v === 2) break; }`,
		"try-finally":    `try { a(); } catch (e) { b(e); } finally { c(); }`,
		"switch":         `switch (x) { case 1: a(); break; default: b(); }`,
		"template":       "s = `v=${v}`;",
		"destructuring":  `const [a, , b = 1, ...rest] = xs; const { p, q: r } = o;`,
		"class":          `class A { m() { return 1; } static s() { return 2; } }`,
		"generator":      `function* g() { yield 1; yield* [2]; }`,
		"async":          `async function a() { return await p; }`,
		"spread call":    `f(...args);`,
		"optional call":  `a?.b();`,
		"member update":  `o.count++; o[k]--;`,
		"compound":       `a += 1; o.p *= 2;`,
		"logical assign": `a ||= b; c &&= d; e ??= f;`,
	}
	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			block := compileSource(t, src)
			require.NotEmpty(t, block.Instructions)
			last := block.Instructions[len(block.Instructions)-1].Op
			assert.Contains(t, []opcodes.Opcode{opcodes.OP_RETURN, opcodes.OP_RETURN_UNDEFINED}, last,
				"every block ends in a return")
		})
	}
}

func TestConstantPool(t *testing.T) {
	block := compileSource(t, `a = "hello"; b = "world";`)
	strs := map[string]bool{}
	for _, c := range block.Constants {
		strs[c.AsString()] = true
	}
	assert.True(t, strs["hello"])
	assert.True(t, strs["world"])
}

func TestJumpTargetsAreInRange(t *testing.T) {
	block := compileSource(t, `
for (let i = 0; i < 10; i++) {
	if (i === 5) { break; }
	if (i % 2) { continue; }
	work(i);
}
done();`)
	for pc, inst := range block.Instructions {
		switch inst.Op {
		case opcodes.OP_JUMP, opcodes.OP_JUMP_IF_TRUE, opcodes.OP_JUMP_IF_FALSE,
			opcodes.OP_JUMP_IF_NULLISH, opcodes.OP_JUMP_IF_NOT_NULLISH:
			assert.GreaterOrEqual(t, inst.Operand, int32(0), "pc %d", pc)
			assert.LessOrEqual(t, inst.Operand, int32(len(block.Instructions)), "pc %d: jump past end", pc)
		}
	}
}

func TestForOfBreakStillClosesIterator(t *testing.T) {
	block := compileSource(t, `for (const v of xs) { if (v === 2) break; }`)

	// The break's jump target must precede the ITER_CLOSE emission so
	// an abrupt loop exit still runs IteratorClose.
	closeAt := -1
	for pc, inst := range block.Instructions {
		if inst.Op == opcodes.OP_ITER_CLOSE {
			closeAt = pc
		}
	}
	require.GreaterOrEqual(t, closeAt, 0)
	for _, inst := range block.Instructions {
		if inst.Op == opcodes.OP_JUMP {
			assert.LessOrEqual(t, inst.Operand, int32(closeAt), "no jump may bypass ITER_CLOSE")
		}
	}
}

func TestHandlerTableCoversTry(t *testing.T) {
	block := compileSource(t, `try { a(); } catch (e) { b(); }`)
	require.NotEmpty(t, block.Handlers)
	h := block.Handlers[0]
	assert.Less(t, h.Start, h.End)
	assert.GreaterOrEqual(t, h.Target, h.End, "catch target follows the protected range")
	assert.Equal(t, registry.HandlerCatch, h.Kind)
}

func TestFunctionMetadata(t *testing.T) {
	block := compileSource(t, `async function af(a, b = 1, ...rest) { await a; }`)
	require.Len(t, block.ChildBlocks, 1)
	child := block.ChildBlocks[0]
	assert.True(t, child.IsAsync)
	assert.False(t, child.IsGenerator)
	assert.Equal(t, "af", child.Name)
	require.Len(t, child.Parameters, 3)
	assert.False(t, child.Parameters[0].HasDefault)
	assert.True(t, child.Parameters[1].HasDefault)
	assert.True(t, child.Parameters[2].IsRest)

	block = compileSource(t, `function* g() { yield 1; }`)
	require.Len(t, block.ChildBlocks, 1)
	assert.True(t, block.ChildBlocks[0].IsGenerator)
	assert.Equal(t, 1, countOp(block.ChildBlocks[0], opcodes.OP_YIELD))
}

func TestStrictModeFlag(t *testing.T) {
	block := compileSource(t, `"use strict"; x = 1;`)
	assert.True(t, block.Strict)

	block = compileSource(t, `function f() { "use strict"; }`)
	assert.True(t, block.ChildBlocks[0].Strict)
}

func TestCompileModuleHandlesImportExport(t *testing.T) {
	mod, err := parser.ParseModule(`
import { helper } from "./helper.js";
export const wrapped = 1;
export default 2;
export * from "./star.js";
`)
	require.NoError(t, err)
	block, err := CompileModule(mod)
	require.NoError(t, err)
	assert.True(t, block.Strict, "modules always compile strict")

	// The default export's value must initialize the synthetic
	// *default* binding.
	found := false
	for _, loc := range block.Locators {
		if loc.Name == "*default*" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCompileErrors(t *testing.T) {
	cases := map[string]string{
		"break outside loop":    `function f() { break; }`,
		"continue outside loop": `function f() { continue; }`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			script, err := parser.ParseScript(src)
			if err != nil {
				// The parser may reject these before compilation; either
				// layer reporting is acceptable, silence is not.
				return
			}
			_, err = CompileScript(script)
			assert.Error(t, err)
		})
	}
}

func TestReturnThroughFinallyEmission(t *testing.T) {
	block := compileSource(t, `function f() { try { return 1; } finally { g(); } }`)
	require.Len(t, block.ChildBlocks, 1)
	fn := block.ChildBlocks[0]

	// The return site must retire the finally's runtime entry and
	// inline its body before OP_RETURN; the only other POP_FINALLY is
	// the fall-through path's.
	assert.Equal(t, 2, countOp(fn, opcodes.OP_POP_FINALLY))
	// g() appears three times: abrupt-exit copy, fall-through copy,
	// exception copy.
	assert.Equal(t, 3, countOp(fn, opcodes.OP_CALL))

	firstReturn := -1
	for pc, inst := range fn.Instructions {
		if inst.Op == opcodes.OP_RETURN {
			firstReturn = pc
			break
		}
	}
	require.GreaterOrEqual(t, firstReturn, 0)
	sawPopFinally := false
	for pc := 0; pc < firstReturn; pc++ {
		if fn.Instructions[pc].Op == opcodes.OP_POP_FINALLY {
			sawPopFinally = true
		}
	}
	assert.True(t, sawPopFinally, "the finally must run before the return transfers control")
}

func TestReturnInsideForOfEmitsIteratorClose(t *testing.T) {
	block := compileSource(t, `function f() { for (const v of xs) { return v; } }`)
	fn := block.ChildBlocks[0]

	returnAt := -1
	for pc, inst := range fn.Instructions {
		if inst.Op == opcodes.OP_RETURN {
			returnAt = pc
			break
		}
	}
	require.GreaterOrEqual(t, returnAt, 0)
	assert.Equal(t, opcodes.OP_ITER_CLOSE, fn.Instructions[returnAt-1].Op,
		"the loop iterator closes immediately before the abrupt return")
}

func TestForAwaitEmitsRawNextAwaitUnpack(t *testing.T) {
	block := compileSource(t, `async function f() { for await (const v of xs) { use(v); } }`)
	fn := block.ChildBlocks[0]
	assert.Equal(t, 1, countOp(fn, opcodes.OP_ITER_NEXT_RAW))
	assert.Equal(t, 1, countOp(fn, opcodes.OP_ITER_UNPACK))
	assert.Equal(t, 0, countOp(fn, opcodes.OP_ITER_NEXT))
	assert.GreaterOrEqual(t, countOp(fn, opcodes.OP_AWAIT), 1)
}

func TestDirectEvalCompilesToEvalOpcode(t *testing.T) {
	block := compileSource(t, `eval("x");`)
	assert.Equal(t, 1, countOp(block, opcodes.OP_CALL_EVAL))
	assert.Equal(t, 0, countOp(block, opcodes.OP_CALL), "the direct form performs no callee lookup")

	// A computed callee is not the direct form.
	block = compileSource(t, `var e = eval; e("x");`)
	assert.Equal(t, 1, countOp(block, opcodes.OP_CALL))
}

func TestBlockScopeTemplates(t *testing.T) {
	block := compileSource(t, `{ let x = 1; const y = 2; var z = 3; }`)
	require.NotEmpty(t, block.Scopes)
	tmpl := block.Scopes[0]
	names := map[string]bool{}
	for _, b := range tmpl.Bindings {
		names[b.Name] = true
	}
	assert.True(t, names["x"])
	assert.True(t, names["y"])
	assert.False(t, names["z"], "var names hoist out of the block and never enter its scope template")

	_ = opcodesOf(block)
}
