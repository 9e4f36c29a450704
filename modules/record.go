// Package modules implements source-text module records: the
// Load/Link/Evaluate state machine of ECMA-262 §16.2.1, including
// cyclic dependency graphs and top-level await. It sits above the vm
// package: a record compiles another source on demand and splices it
// into the running engine as a linked module with its own
// environment.
package modules

import (
	"sort"

	"github.com/wudi/esprel/ast"
	"github.com/wudi/esprel/compiler"
	"github.com/wudi/esprel/environment"
	"github.com/wudi/esprel/parser"
	"github.com/wudi/esprel/registry"
	"github.com/wudi/esprel/values"
	"github.com/wudi/esprel/vm"
)

// Status is a module's position in the cyclic-module-record state
// machine. Transitions are monotone: a module never moves
// backward except for the Linking→Unlinked reset a failed link applies
// to the whole strongly-connected component.
type Status int

const (
	Unlinked Status = iota
	// Linking covers InnerLink's descent into the module's dependencies.
	Linking
	// PreLinked is the window after InitializeEnvironment has populated
	// the module environment but before the module's SCC root has been
	// popped from the link DFS stack.
	PreLinked
	Linked
	Evaluating
	// EvaluatingAsync marks a module whose own body (top-level await) or
	// transitive dependencies still have pending asynchronous execution.
	EvaluatingAsync
	Evaluated
)

func (s Status) String() string {
	switch s {
	case Unlinked:
		return "unlinked"
	case Linking:
		return "linking"
	case PreLinked:
		return "pre-linked"
	case Linked:
		return "linked"
	case Evaluating:
		return "evaluating"
	case EvaluatingAsync:
		return "evaluating-async"
	case Evaluated:
		return "evaluated"
	}
	return "invalid"
}

// ImportEntry is one ImportEntry record (ECMA-262 table 43): what name
// to import from which requested module, bound to which local name.
// ImportName "*" requests the module namespace object.
type ImportEntry struct {
	ModuleRequest string
	ImportName    string
	LocalName     string
}

// ExportEntry is one ExportEntry record (ECMA-262 table 45). Exactly
// one of the three shapes is populated:
//
//	local:    ExportName + LocalName
//	indirect: ExportName + ModuleRequest + ImportName
//	star:     ModuleRequest only
type ExportEntry struct {
	ExportName    string
	ModuleRequest string
	ImportName    string
	LocalName     string
}

// SourceTextModule is one parsed module and its record state. A module is parsed once, then linked and evaluated
// at most once; every field below ImportEntries is bookkeeping for
// those two DFS passes.
type SourceTextModule struct {
	Specifier string
	Realm     *vm.VM

	AST    *ast.Module
	Block  *registry.CodeBlock
	HasTLA bool

	Status      Status
	Environment *environment.Environment
	Namespace   *values.Object

	// RequestedModules is insertion-ordered and deduped.
	RequestedModules []string
	// LoadedModules maps each requested specifier to the module record
	// the host resolved it to during the load phase.
	LoadedModules map[string]*SourceTextModule

	ImportEntries         []ImportEntry
	LocalExportEntries    []ExportEntry
	IndirectExportEntries []ExportEntry
	StarExportEntries     []ExportEntry

	// Tarjan-style SCC markers for the link and evaluate DFS passes
	// (the ancestor index tracks the lowest DFS index reachable).
	dfsIndex         int
	dfsAncestorIndex int

	// CycleRoot is the root of this module's strongly-connected
	// component, set when the SCC is popped during evaluation.
	CycleRoot *SourceTextModule

	// Async-evaluation ordering state (ECMA-262 §16.2.1.6.1.3):
	// AsyncEvalIndex is the monotone counter value assigned when
	// [[AsyncEvaluation]] was set, which fixes the order
	// GatherAvailableAncestors executes ready ancestors in.
	asyncEvaluation  bool
	AsyncEvalIndex   int
	pendingAsyncDeps int
	asyncParents     []*SourceTextModule

	// TopLevelCapability settles when the whole evaluation (including
	// async descendants) completes; only the module Evaluate was called
	// on directly carries one.
	TopLevelCapability *vm.PromiseCapability
	EvalError          error
}

// ParseModule parses and compiles one module's source text and
// extracts its import/export entry tables (ECMA-262 §16.2.1.7
// ParseModule). The returned record is Unlinked.
func ParseModule(realm *vm.VM, specifier, source string) (*SourceTextModule, error) {
	astMod, err := parser.ParseModule(source)
	if err != nil {
		return nil, err
	}
	block, err := compiler.CompileModule(astMod)
	if err != nil {
		return nil, err
	}
	m := &SourceTextModule{
		Specifier:     specifier,
		Realm:         realm,
		AST:           astMod,
		Block:         block,
		HasTLA:        astMod.HasTLA,
		Status:        Unlinked,
		LoadedModules: map[string]*SourceTextModule{},
	}
	m.extractEntries()
	return m, nil
}

// extractEntries builds the four entry tables from the module body's
// import/export declarations, in source order.
func (m *SourceTextModule) extractEntries() {
	requested := map[string]bool{}
	request := func(spec string) {
		if !requested[spec] {
			requested[spec] = true
			m.RequestedModules = append(m.RequestedModules, spec)
		}
	}

	for _, stmt := range m.AST.Body {
		switch s := stmt.(type) {
		case *ast.ImportDeclaration:
			request(s.Source)
			for _, spec := range s.Specifiers {
				switch imp := spec.(type) {
				case *ast.ImportDefaultSpecifier:
					m.ImportEntries = append(m.ImportEntries, ImportEntry{ModuleRequest: s.Source, ImportName: "default", LocalName: imp.Local.Name})
				case *ast.ImportNamespaceSpecifier:
					m.ImportEntries = append(m.ImportEntries, ImportEntry{ModuleRequest: s.Source, ImportName: "*", LocalName: imp.Local.Name})
				case *ast.ImportSpecifier:
					m.ImportEntries = append(m.ImportEntries, ImportEntry{ModuleRequest: s.Source, ImportName: imp.Imported.Name, LocalName: imp.Local.Name})
				}
			}
		case *ast.ExportNamedDeclaration:
			if s.Declaration != nil {
				for _, name := range ast.BoundNames(s.Declaration) {
					m.LocalExportEntries = append(m.LocalExportEntries, ExportEntry{ExportName: name, LocalName: name})
				}
				continue
			}
			if s.Source != "" {
				request(s.Source)
				for _, spec := range s.Specifiers {
					m.IndirectExportEntries = append(m.IndirectExportEntries, ExportEntry{
						ExportName: spec.Exported.Name, ModuleRequest: s.Source, ImportName: spec.Local.Name,
					})
				}
				continue
			}
			for _, spec := range s.Specifiers {
				m.LocalExportEntries = append(m.LocalExportEntries, ExportEntry{ExportName: spec.Exported.Name, LocalName: spec.Local.Name})
			}
		case *ast.ExportDefaultDeclaration:
			m.LocalExportEntries = append(m.LocalExportEntries, ExportEntry{ExportName: "default", LocalName: "*default*"})
		case *ast.ExportAllDeclaration:
			request(s.Source)
			if s.Exported == nil {
				m.StarExportEntries = append(m.StarExportEntries, ExportEntry{ModuleRequest: s.Source})
			} else {
				m.IndirectExportEntries = append(m.IndirectExportEntries, ExportEntry{
					ExportName: s.Exported.Name, ModuleRequest: s.Source, ImportName: "*",
				})
			}
		}
	}
}

// GetExportedNames implements ECMA-262 §16.2.1.7.2.1: local and
// indirect names plus the union of star re-exports, with "default"
// never passing through a star export. exportStarSet breaks cycles.
func (m *SourceTextModule) GetExportedNames(exportStarSet map[*SourceTextModule]bool) []string {
	if exportStarSet == nil {
		exportStarSet = map[*SourceTextModule]bool{}
	}
	if exportStarSet[m] {
		return nil
	}
	exportStarSet[m] = true

	var names []string
	seen := map[string]bool{}
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	for _, e := range m.LocalExportEntries {
		add(e.ExportName)
	}
	for _, e := range m.IndirectExportEntries {
		add(e.ExportName)
	}
	for _, e := range m.StarExportEntries {
		req := m.LoadedModules[e.ModuleRequest]
		if req == nil {
			continue
		}
		for _, n := range req.GetExportedNames(exportStarSet) {
			if n != "default" {
				add(n)
			}
		}
	}
	sort.Strings(names)
	return names
}
