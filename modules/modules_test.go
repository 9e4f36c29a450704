package modules

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/esprel/values"
	"github.com/wudi/esprel/vm"
)

// testHost builds a loader over an in-memory specifier→source map, the
// module-test analogue of a filesystem host.
func testHost(t *testing.T, sources map[string]string) (*vm.VM, *Loader) {
	t.Helper()
	realm := vm.NewVM()
	var loader *Loader
	loader = NewLoader(realm, func(referrer *SourceTextModule, specifier string, finish FinishLoad) {
		src, ok := sources[specifier]
		if !ok {
			finish(nil, fmt.Errorf("module %q not found", specifier))
			return
		}
		mod, err := ParseModule(realm, specifier, src)
		finish(mod, err)
	})
	return realm, loader
}

func loadRoot(t *testing.T, loader *Loader, sources map[string]string, specifier string) *SourceTextModule {
	t.Helper()
	root, err := ParseModule(loader.Realm, specifier, sources[specifier])
	require.NoError(t, err)
	loader.Register(root)
	loadCap := loader.LoadRequestedModules(root)
	loader.Realm.Jobs.RunJobs()
	pd := vm.PromiseDataOf(loadCap.Promise)
	require.Equal(t, vm.PromiseFulfilled, pd.State, "graph load must succeed: %v", pd.Result)
	return root
}

func namespaceValue(t *testing.T, m *SourceTextModule, name string) values.Value {
	t.Helper()
	ns := m.GetModuleNamespace()
	v, getter, ok := ns.Get(values.StringKey(name))
	require.True(t, ok, "namespace should expose %q", name)
	if getter != nil {
		got, err := getter.Call(values.ObjectValue(ns), nil)
		require.NoError(t, err)
		return got
	}
	return v
}

func TestParseModuleEntryTables(t *testing.T) {
	realm := vm.NewVM()
	m, err := ParseModule(realm, "main", `
import d from "dep";
import * as ns from "dep";
import { a, b as c } from "other";
export const local = 1;
export { local as renamed };
export { x as y } from "reexp";
export * from "star";
export * as bundle from "star";
export default 42;
`)
	require.NoError(t, err)

	assert.Equal(t, []string{"dep", "other", "reexp", "star"}, m.RequestedModules,
		"requested modules are insertion-ordered and deduped")
	require.Len(t, m.ImportEntries, 4)
	assert.Equal(t, ImportEntry{ModuleRequest: "dep", ImportName: "default", LocalName: "d"}, m.ImportEntries[0])
	assert.Equal(t, ImportEntry{ModuleRequest: "dep", ImportName: "*", LocalName: "ns"}, m.ImportEntries[1])
	assert.Equal(t, ImportEntry{ModuleRequest: "other", ImportName: "b", LocalName: "c"}, m.ImportEntries[3])

	var exportNames []string
	for _, e := range m.LocalExportEntries {
		exportNames = append(exportNames, e.ExportName)
	}
	assert.Equal(t, []string{"local", "renamed", "default"}, exportNames)
	require.Len(t, m.IndirectExportEntries, 2)
	assert.Equal(t, "y", m.IndirectExportEntries[0].ExportName)
	assert.Equal(t, "*", m.IndirectExportEntries[1].ImportName, "export * as ns is an indirect namespace export")
	require.Len(t, m.StarExportEntries, 1)
	assert.True(t, m.HasTLA == false)
}

func TestLinkAndEvaluateSimpleGraph(t *testing.T) {
	sources := map[string]string{
		"main": `
import { double, base } from "lib";
export const result = double(base);
`,
		"lib": `
export const base = 21;
export function double(n) { return n * 2; }
`,
	}
	_, loader := testHost(t, sources)
	root := loadRoot(t, loader, sources, "main")

	require.NoError(t, root.Link())
	assert.Equal(t, Linked, root.Status)

	cap := root.Evaluate(loader)
	loader.Realm.Jobs.RunJobs()
	assert.Equal(t, Evaluated, root.Status)
	require.Equal(t, vm.PromiseFulfilled, vm.PromiseDataOf(cap.Promise).State)

	assert.Equal(t, 42.0, namespaceValue(t, root, "result").AsNumber())
}

func TestStatusIsMonotone(t *testing.T) {
	sources := map[string]string{"solo": `export const x = 1;`}
	_, loader := testHost(t, sources)
	root := loadRoot(t, loader, sources, "solo")

	assert.Equal(t, Unlinked, root.Status)
	require.NoError(t, root.Link())
	assert.Equal(t, Linked, root.Status)
	root.Evaluate(loader)
	loader.Realm.Jobs.RunJobs()
	assert.Equal(t, Evaluated, root.Status)

	// Re-evaluating returns the same settled capability.
	again := root.Evaluate(loader)
	assert.Same(t, root.TopLevelCapability, again)
}

func TestLiveBindings(t *testing.T) {
	sources := map[string]string{
		"main": `
import { counter, bump } from "state";
bump();
bump();
export const seen = counter;
`,
		"state": `
export let counter = 0;
export function bump() { counter = counter + 1; }
`,
	}
	_, loader := testHost(t, sources)
	root := loadRoot(t, loader, sources, "main")
	require.NoError(t, root.Link())
	root.Evaluate(loader)
	loader.Realm.Jobs.RunJobs()

	assert.Equal(t, 2.0, namespaceValue(t, root, "seen").AsNumber(),
		"imports observe mutations made after linking, not snapshots")

	state, _ := loader.Lookup("state")
	assert.Equal(t, 2.0, namespaceValue(t, state, "counter").AsNumber())
}

func TestCyclicGraphLinksAndEvaluates(t *testing.T) {
	sources := map[string]string{
		"a": `
import { bName } from "b";
export const aName = "A";
export const sawB = bName;
`,
		"b": `
import { aName } from "a";
export const bName = "B";
export function readA() { return aName; }
`,
	}
	_, loader := testHost(t, sources)
	root := loadRoot(t, loader, sources, "a")
	require.NoError(t, root.Link())

	b, ok := loader.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, Linked, b.Status, "the whole strongly-connected component links together")

	root.Evaluate(loader)
	loader.Realm.Jobs.RunJobs()
	assert.Equal(t, Evaluated, root.Status)
	assert.Equal(t, Evaluated, b.Status)
	assert.Equal(t, "B", namespaceValue(t, root, "sawB").AsString())
	assert.Equal(t, "Function", namespaceValue(t, b, "readA").AsObject().Class)

	got, err := b.Environment.GetBindingValue("aName")
	require.NoError(t, err)
	assert.Equal(t, "A", got.AsString())
}

func TestCyclicTopLevelAwait(t *testing.T) {
	// A cycle where one member awaits at top level
	// still evaluates without deadlock, and the importing side observes
	// the awaited module's exports.
	sources := map[string]string{
		"a": `
import { bConst } from "b";
export const fromB = bConst;
export const aConst = "A";
`,
		"b": `
import { aConst } from "a";
const waited = await "ready";
export const bConst = "B";
`,
	}
	_, loader := testHost(t, sources)
	root := loadRoot(t, loader, sources, "a")
	require.NoError(t, root.Link())

	cap := root.Evaluate(loader)
	b, _ := loader.Lookup("b")
	assert.Equal(t, EvaluatingAsync, root.Status, "the graph parks in EvaluatingAsync until the await settles")
	assert.Equal(t, EvaluatingAsync, b.Status)
	assert.Equal(t, vm.PromisePending, vm.PromiseDataOf(cap.Promise).State)

	loader.Realm.Jobs.RunJobs()

	assert.Equal(t, Evaluated, root.Status)
	assert.Equal(t, Evaluated, b.Status)
	assert.Equal(t, vm.PromiseFulfilled, vm.PromiseDataOf(cap.Promise).State)
	assert.Equal(t, "B", namespaceValue(t, root, "fromB").AsString())
	assert.Equal(t, namespaceValue(t, b, "bConst").AsString(), namespaceValue(t, root, "fromB").AsString())
}

func TestAsyncEvalOrderFollowsIndexOrder(t *testing.T) {
	// Both leaves await; the parent runs only after both, and leaf
	// ordering follows the order their async evaluation was requested.
	sources := map[string]string{
		"main": `
import { a } from "a";
import { b } from "b";
export const order = a + b;
`,
		"a": `export const a = await "a";`,
		"b": `export const b = await "b";`,
	}
	_, loader := testHost(t, sources)
	root := loadRoot(t, loader, sources, "main")
	require.NoError(t, root.Link())
	cap := root.Evaluate(loader)

	a, _ := loader.Lookup("a")
	b, _ := loader.Lookup("b")
	assert.Less(t, a.AsyncEvalIndex, b.AsyncEvalIndex,
		"async-evaluation indices are assigned in requested-module order")

	loader.Realm.Jobs.RunJobs()
	require.Equal(t, vm.PromiseFulfilled, vm.PromiseDataOf(cap.Promise).State)
	assert.Equal(t, "ab", namespaceValue(t, root, "order").AsString())
}

func TestEvaluationErrorPropagatesAndSticks(t *testing.T) {
	sources := map[string]string{
		"main": `import { x } from "boom"; export const y = x;`,
		"boom": `throw "exploded"; export const x = 1;`,
	}
	_, loader := testHost(t, sources)
	root := loadRoot(t, loader, sources, "main")
	require.NoError(t, root.Link())

	cap := root.Evaluate(loader)
	loader.Realm.Jobs.RunJobs()
	pd := vm.PromiseDataOf(cap.Promise)
	require.Equal(t, vm.PromiseRejected, pd.State)
	assert.Equal(t, "exploded", pd.Result.AsString())
	assert.Equal(t, Evaluated, root.Status)
	assert.Error(t, root.EvalError)
}

func TestMissingExportIsLinkError(t *testing.T) {
	sources := map[string]string{
		"main": `import { nope } from "lib";`,
		"lib":  `export const yes = 1;`,
	}
	_, loader := testHost(t, sources)
	root := loadRoot(t, loader, sources, "main")
	err := root.Link()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
	assert.Equal(t, Unlinked, root.Status, "a failed link resets the partially-linked modules")
}

func TestAmbiguousStarExport(t *testing.T) {
	sources := map[string]string{
		"main":  `import { x } from "both";`,
		"both":  `export * from "one"; export * from "two";`,
		"one":   `export const x = 1;`,
		"two":   `export const x = 2;`,
	}
	_, loader := testHost(t, sources)
	root := loadRoot(t, loader, sources, "main")
	err := root.Link()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")
}

func TestStarExportsSkipDefaultAndDedupe(t *testing.T) {
	sources := map[string]string{
		"hub": `export * from "leaf"; export const own = 1;`,
		"leaf": `
export default "d";
export const shared = 2;
`,
	}
	_, loader := testHost(t, sources)
	root := loadRoot(t, loader, sources, "hub")
	require.NoError(t, root.Link())

	names := root.GetExportedNames(nil)
	assert.Equal(t, []string{"own", "shared"}, names,
		"star exports never re-export default; names come back sorted")
}

func TestDefaultExportResolution(t *testing.T) {
	sources := map[string]string{
		"main": `
import dflt from "answer";
export const got = dflt;
`,
		"answer": `export default 6 * 7;`,
	}
	_, loader := testHost(t, sources)
	root := loadRoot(t, loader, sources, "main")
	require.NoError(t, root.Link())
	root.Evaluate(loader)
	loader.Realm.Jobs.RunJobs()
	assert.Equal(t, 42.0, namespaceValue(t, root, "got").AsNumber())
}

func TestNamespaceImport(t *testing.T) {
	sources := map[string]string{
		"main": `
import * as lib from "lib";
export const picked = lib.a + lib.b;
`,
		"lib": `
export const a = 1;
export const b = 2;
`,
	}
	_, loader := testHost(t, sources)
	root := loadRoot(t, loader, sources, "main")
	require.NoError(t, root.Link())
	root.Evaluate(loader)
	loader.Realm.Jobs.RunJobs()
	assert.Equal(t, 3.0, namespaceValue(t, root, "picked").AsNumber())
}

func TestLoadFailureRejectsGraphCapability(t *testing.T) {
	sources := map[string]string{"main": `import { x } from "missing";`}
	realm, loader := testHost(t, sources)
	root, err := ParseModule(realm, "main", sources["main"])
	require.NoError(t, err)
	loader.Register(root)
	loadCap := loader.LoadRequestedModules(root)
	realm.Jobs.RunJobs()
	assert.Equal(t, vm.PromiseRejected, vm.PromiseDataOf(loadCap.Promise).State)
}
