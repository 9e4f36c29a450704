package modules

import (
	"github.com/wudi/esprel/values"
	"github.com/wudi/esprel/vm"
)

// FinishLoad is the continuation the host's load hook invokes once it
// has produced (or failed to produce) the requested module record,
// ECMA-262 §16.2.1.9 FinishLoadingImportedModule's callback half.
type FinishLoad func(*SourceTextModule, error)

// LoadHook resolves one specifier on behalf of referrer. The hook may
// call finish synchronously (a filesystem host) or later from a queued
// job (a network host); the loading state machine handles both.
type LoadHook func(referrer *SourceTextModule, specifier string, finish FinishLoad)

// Loader owns one realm's module registry and the async-evaluation
// ordering counter.
type Loader struct {
	Realm *vm.VM
	Load  LoadHook

	registry       map[string]*SourceTextModule
	asyncEvalCount int
}

func NewLoader(realm *vm.VM, hook LoadHook) *Loader {
	return &Loader{Realm: realm, Load: hook, registry: map[string]*SourceTextModule{}}
}

func (l *Loader) nextAsyncEvalIndex() int {
	l.asyncEvalCount++
	return l.asyncEvalCount
}

// Lookup returns the already-registered module for specifier, if any.
func (l *Loader) Lookup(specifier string) (*SourceTextModule, bool) {
	m, ok := l.registry[specifier]
	return m, ok
}

// Register records a module under its specifier so subsequent requests
// (including from other modules) reuse the same record, the
// one-module-per-specifier invariant the link phase relies on.
func (l *Loader) Register(m *SourceTextModule) {
	l.registry[m.Specifier] = m
}

// graphLoadState tracks one LoadRequestedModules run (ECMA-262
// §16.2.1.5.1's GraphLoadingState record): how many host loads are
// still outstanding, and the capability that settles when the whole
// graph is available.
type graphLoadState struct {
	loader     *Loader
	capability *vm.PromiseCapability
	isLoading  bool
	pending    int
	visited    map[*SourceTextModule]bool
}

// LoadRequestedModules walks root's transitive RequestedModules,
// invoking the host hook for every specifier not yet in the referrer's
// loaded-modules map, and returns a capability that resolves once every
// reachable module record exists (ECMA-262 §16.2.1.5.1).
func (l *Loader) LoadRequestedModules(root *SourceTextModule) *vm.PromiseCapability {
	state := &graphLoadState{
		loader:     l,
		capability: l.Realm.NewPromiseCapability(),
		isLoading:  true,
		pending:    1,
		visited:    map[*SourceTextModule]bool{},
	}
	state.innerLoad(root)
	state.finishOne()
	return state.capability
}

// innerLoad is InnerModuleLoading (ECMA-262 §16.2.1.5.1.1): descend
// into a module's requests, reusing loaded entries and dispatching the
// host hook for the rest.
func (s *graphLoadState) innerLoad(m *SourceTextModule) {
	if !s.isLoading || s.visited[m] {
		return
	}
	s.visited[m] = true
	for _, req := range m.RequestedModules {
		if dep, ok := m.LoadedModules[req]; ok {
			s.innerLoad(dep)
			continue
		}
		if dep, ok := s.loader.registry[req]; ok {
			m.LoadedModules[req] = dep
			s.innerLoad(dep)
			continue
		}
		s.pending++
		req := req
		s.loader.Load(m, req, func(dep *SourceTextModule, err error) {
			s.continueLoad(m, req, dep, err)
		})
	}
}

// continueLoad is ContinueModuleLoading (§16.2.1.5.1.2): record a
// finished host load and keep walking, or fail the whole graph load.
func (s *graphLoadState) continueLoad(referrer *SourceTextModule, specifier string, dep *SourceTextModule, err error) {
	if !s.isLoading {
		return
	}
	if err != nil {
		s.isLoading = false
		s.capability.Reject(s.loader.Realm.ErrorValue(err))
		return
	}
	s.loader.registry[specifier] = dep
	referrer.LoadedModules[specifier] = dep
	s.innerLoad(dep)
	s.finishOne()
}

// finishOne retires one outstanding load; when the counter reaches
// zero the graph is complete and the capability resolves.
func (s *graphLoadState) finishOne() {
	if !s.isLoading {
		return
	}
	s.pending--
	if s.pending == 0 {
		s.isLoading = false
		s.capability.Resolve(values.Undefined)
	}
}
