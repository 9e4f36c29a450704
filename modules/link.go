package modules

import (
	"fmt"

	"github.com/wudi/esprel/ast"
	"github.com/wudi/esprel/environment"
	"github.com/wudi/esprel/values"
)

// ResolvedBinding is ResolveExport's success result: the module and
// environment-local name an export ultimately resolves to, possibly
// through a chain of re-exports.
type ResolvedBinding struct {
	Module      *SourceTextModule
	BindingName string
	// Namespace marks a `export * as ns` / `import * as ns` resolution:
	// the binding is the whole module namespace object rather than one
	// of Module's environment slots.
	Namespace bool
}

// resolveSetEntry breaks circular import/export chains during
// ResolveExport (ECMA-262 §16.2.1.7.2.1 step 2).
type resolveSetEntry struct {
	module *SourceTextModule
	name   string
}

// ErrAmbiguous is the sentinel ResolveExport returns when a name
// reaches two different bindings through star exports; Link converts
// it into a SyntaxError naming the export.
var ErrAmbiguous = fmt.Errorf("ambiguous export")

// ResolveExport implements ECMA-262 §16.2.1.7.2.1: find the concrete
// (module, localName) pair exportName resolves to, following indirect
// and star exports, detecting cycles and star-export ambiguity.
func (m *SourceTextModule) ResolveExport(exportName string, resolveSet []resolveSetEntry) (*ResolvedBinding, error) {
	for _, r := range resolveSet {
		if r.module == m && r.name == exportName {
			// Circular import chain resolves to nothing (ECMA-262 §16.2.1.7.2.1 step 2).
			return nil, nil
		}
	}
	resolveSet = append(resolveSet, resolveSetEntry{module: m, name: exportName})

	for _, e := range m.LocalExportEntries {
		if e.ExportName == exportName {
			return &ResolvedBinding{Module: m, BindingName: e.LocalName}, nil
		}
	}
	for _, e := range m.IndirectExportEntries {
		if e.ExportName != exportName {
			continue
		}
		req := m.LoadedModules[e.ModuleRequest]
		if req == nil {
			return nil, nil
		}
		if e.ImportName == "*" {
			return &ResolvedBinding{Module: req, Namespace: true}, nil
		}
		return req.ResolveExport(e.ImportName, resolveSet)
	}
	if exportName == "default" {
		// A default export never passes through star exports
		// (ECMA-262 §16.2.1.7.2.1 step 7).
		return nil, nil
	}

	var starResolution *ResolvedBinding
	for _, e := range m.StarExportEntries {
		req := m.LoadedModules[e.ModuleRequest]
		if req == nil {
			continue
		}
		resolution, err := req.ResolveExport(exportName, resolveSet)
		if err != nil {
			return nil, err
		}
		if resolution == nil {
			continue
		}
		if starResolution == nil {
			starResolution = resolution
			continue
		}
		if starResolution.Module != resolution.Module ||
			starResolution.Namespace != resolution.Namespace ||
			starResolution.BindingName != resolution.BindingName {
			return nil, ErrAmbiguous
		}
	}
	return starResolution, nil
}

// Link implements ECMA-262 §16.2.1.6.2 Link: a DFS over the module
// graph that creates every environment, wires import bindings, and
// transitions each strongly-connected component to Linked together. A
// failed link resets every partially-linked module to Unlinked before
// returning.
func (m *SourceTextModule) Link() error {
	if m.Status == Linking || m.Status == Evaluating {
		return fmt.Errorf("module %s: Link called re-entrantly", m.Specifier)
	}
	var stack []*SourceTextModule
	index := 0
	if _, err := m.innerLink(&stack, index); err != nil {
		for _, sm := range stack {
			sm.Status = Unlinked
			sm.Environment = nil
		}
		return err
	}
	return nil
}

// innerLink is ECMA-262 §16.2.1.6.1.1 InnerModuleLinking. The module
// environment is created as soon as the module enters Linking — before
// descending into dependencies — so that a cycle member initializing
// its imports always finds every SCC sibling's environment in place.
func (m *SourceTextModule) innerLink(stack *[]*SourceTextModule, index int) (int, error) {
	switch m.Status {
	case Linking, PreLinked, Linked, EvaluatingAsync, Evaluated:
		return index, nil
	case Unlinked:
	default:
		return index, fmt.Errorf("module %s: cannot link while %s", m.Specifier, m.Status)
	}

	m.Status = Linking
	m.dfsIndex = index
	m.dfsAncestorIndex = index
	index++
	*stack = append(*stack, m)
	m.Environment = newModuleEnvironment(m)

	for _, req := range m.RequestedModules {
		dep := m.LoadedModules[req]
		if dep == nil {
			return index, m.Realm.ThrowSyntaxError("module %q requested by %q was never loaded", req, m.Specifier)
		}
		var err error
		index, err = dep.innerLink(stack, index)
		if err != nil {
			return index, err
		}
		if dep.Status == Linking || dep.Status == PreLinked {
			if dep.dfsAncestorIndex < m.dfsAncestorIndex {
				m.dfsAncestorIndex = dep.dfsAncestorIndex
			}
		}
	}

	if err := m.initializeEnvironment(); err != nil {
		return index, err
	}
	m.Status = PreLinked

	if m.dfsAncestorIndex == m.dfsIndex {
		for {
			n := len(*stack) - 1
			member := (*stack)[n]
			*stack = (*stack)[:n]
			member.Status = Linked
			if member == m {
				break
			}
		}
	}
	return index, nil
}

// newModuleEnvironment creates the module environment record: a
// declarative record whose outer is the realm's global environment,
// carrying `this` = undefined per module semantics (ECMA-262 §9.1.1.5).
func newModuleEnvironment(m *SourceTextModule) *environment.Environment {
	return environment.NewFunction(m.Realm.GlobalEnv, values.Undefined, true, nil, nil)
}

// initializeEnvironment is ECMA-262 §16.2.1.7.3.1: validate indirect
// exports, create import bindings (namespace objects or live indirect
// bindings into the source module's environment), and declare every
// local binding the compiled body will initialize.
func (m *SourceTextModule) initializeEnvironment() error {
	for _, e := range m.IndirectExportEntries {
		resolution, err := m.ResolveExport(e.ExportName, nil)
		if err != nil {
			return m.Realm.ThrowSyntaxError("module %q: ambiguous export %q", m.Specifier, e.ExportName)
		}
		if resolution == nil {
			return m.Realm.ThrowSyntaxError("module %q does not provide an export named %q", e.ModuleRequest, e.ImportName)
		}
	}

	env := m.Environment
	for _, e := range m.ImportEntries {
		src := m.LoadedModules[e.ModuleRequest]
		if src == nil {
			return m.Realm.ThrowSyntaxError("module %q requested by %q was never loaded", e.ModuleRequest, m.Specifier)
		}
		if e.ImportName == "*" {
			ns := src.GetModuleNamespace()
			env.DeclareMutable(e.LocalName, true)
			if err := env.InitializeBinding(e.LocalName, values.ObjectValue(ns)); err != nil {
				return err
			}
			continue
		}
		resolution, err := src.ResolveExport(e.ImportName, nil)
		if err != nil {
			return m.Realm.ThrowSyntaxError("module %q: ambiguous import %q", m.Specifier, e.ImportName)
		}
		if resolution == nil {
			return m.Realm.ThrowSyntaxError("module %q does not provide an export named %q", e.ModuleRequest, e.ImportName)
		}
		if resolution.Namespace {
			ns := resolution.Module.GetModuleNamespace()
			env.DeclareMutable(e.LocalName, true)
			if err := env.InitializeBinding(e.LocalName, values.ObjectValue(ns)); err != nil {
				return err
			}
			continue
		}
		// Live binding: every read forwards to the source module's own
		// slot, so later writes there are observed here.
		env.DeclareIndirect(e.LocalName, resolution.Module.Environment, resolution.BindingName)
	}

	scope := m.AST.Scope
	for _, name := range scope.Order {
		b := scope.Bindings[name]
		switch b.Kind {
		case ast.BindingImport:
			// Declared above from the import entries.
		case ast.BindingVar, ast.BindingFunction:
			env.DeclareMutable(name, true)
		case ast.BindingConst:
			env.DeclareImmutable(name)
		default:
			env.DeclareMutable(name, false)
		}
	}
	for _, e := range m.LocalExportEntries {
		if e.LocalName == "*default*" && !env.HasBinding("*default*") {
			env.DeclareMutable("*default*", false)
		}
	}
	return nil
}
