package modules

import (
	"fmt"
	"sort"

	"github.com/wudi/esprel/values"
	"github.com/wudi/esprel/vm"
)

// Evaluate implements ECMA-262 §16.2.1.6.3: run the module graph in
// dependency post-order, returning a promise capability that settles
// when evaluation — including every async (TLA) descendant — finishes.
// Calling Evaluate again returns the same capability.
func (m *SourceTextModule) Evaluate(loader *Loader) *vm.PromiseCapability {
	if m.Status == Evaluating || m.Status == EvaluatingAsync || m.Status == Evaluated {
		m = m.CycleRoot
	}
	if m.TopLevelCapability != nil {
		return m.TopLevelCapability
	}

	cap := m.Realm.NewPromiseCapability()
	m.TopLevelCapability = cap

	var stack []*SourceTextModule
	index := 0
	if _, err := m.innerEvaluate(loader, &stack, index); err != nil {
		for _, sm := range stack {
			sm.Status = Evaluated
			sm.EvalError = err
			sm.CycleRoot = m
		}
		cap.Reject(m.errorReason(err))
		return cap
	}
	if !m.asyncEvaluation {
		cap.Resolve(values.Undefined)
	}
	return cap
}

// innerEvaluate is ECMA-262 §16.2.1.6.1.2 InnerModuleEvaluation: the
// Tarjan DFS that executes synchronous modules eagerly and defers TLA
// modules (or modules depending on one) into EvaluatingAsync.
func (m *SourceTextModule) innerEvaluate(loader *Loader, stack *[]*SourceTextModule, index int) (int, error) {
	switch m.Status {
	case Evaluating, EvaluatingAsync:
		return index, nil
	case Evaluated:
		return index, m.EvalError
	case Linked:
	default:
		return index, fmt.Errorf("module %s: cannot evaluate while %s", m.Specifier, m.Status)
	}

	m.Status = Evaluating
	m.dfsIndex = index
	m.dfsAncestorIndex = index
	m.pendingAsyncDeps = 0
	index++
	*stack = append(*stack, m)

	for _, req := range m.RequestedModules {
		dep := m.LoadedModules[req]
		var err error
		index, err = dep.innerEvaluate(loader, stack, index)
		if err != nil {
			return index, err
		}
		if dep.Status == Evaluating {
			if dep.dfsAncestorIndex < m.dfsAncestorIndex {
				m.dfsAncestorIndex = dep.dfsAncestorIndex
			}
		} else {
			dep = dep.CycleRoot
			if dep.EvalError != nil {
				return index, dep.EvalError
			}
		}
		if dep.asyncEvaluation {
			m.pendingAsyncDeps++
			dep.asyncParents = append(dep.asyncParents, m)
		}
	}

	if m.pendingAsyncDeps > 0 || m.HasTLA {
		m.asyncEvaluation = true
		m.AsyncEvalIndex = loader.nextAsyncEvalIndex()
		if m.pendingAsyncDeps == 0 {
			m.executeAsync()
		}
	} else {
		if err := m.executeSync(); err != nil {
			return index, err
		}
	}

	if m.dfsAncestorIndex == m.dfsIndex {
		for {
			n := len(*stack) - 1
			member := (*stack)[n]
			*stack = (*stack)[:n]
			if member.asyncEvaluation {
				member.Status = EvaluatingAsync
			} else {
				member.Status = Evaluated
			}
			member.CycleRoot = m
			if member == m {
				break
			}
		}
	}
	return index, nil
}

// executeSync runs a module body with no top-level await to
// completion inside its own environment.
func (m *SourceTextModule) executeSync() error {
	_, err := m.Realm.RunModuleBody(m.Block, m.Environment)
	return err
}

// executeAsync is ECMA-262 §16.2.1.6.1.4 ExecuteAsyncModule: start the
// body through the VM's async-frame driver, and route its settlement
// into the async-ancestor bookkeeping.
func (m *SourceTextModule) executeAsync() {
	cap := m.Realm.RunAsyncModuleBody(m.Block, m.Environment)
	onFulfilled := nativeFn(m.Realm, func(values.Value, []values.Value) (values.Value, error) {
		m.asyncExecutionFulfilled()
		return values.Undefined, nil
	})
	onRejected := nativeFn(m.Realm, func(_ values.Value, args []values.Value) (values.Value, error) {
		var reason values.Value
		if len(args) > 0 {
			reason = args[0]
		} else {
			reason = values.Undefined
		}
		m.asyncExecutionRejected(thrownError{value: reason})
		return values.Undefined, nil
	})
	m.Realm.Then(cap.Promise, onFulfilled, onRejected)
}

// thrownError adapts a settled rejection value back into the error
// channel the synchronous evaluation path uses, so EvalError is
// uniform regardless of which path produced it.
type thrownError struct{ value values.Value }

func (t thrownError) Error() string { return t.value.ToStringValue() }

// ThrownValue exposes the rejected value for hosts reporting module
// evaluation failures.
func (t thrownError) ThrownValue() values.Value { return t.value }

// asyncExecutionFulfilled is ECMA-262 §16.2.1.6.1.5
// AsyncModuleExecutionFulfilled: mark this module done, settle its
// top-level capability if it has one, then execute every ancestor
// whose pending async dependency count just reached zero, in
// AsyncEvalIndex order.
func (m *SourceTextModule) asyncExecutionFulfilled() {
	if m.Status == Evaluated {
		return
	}
	m.asyncEvaluation = false
	m.Status = Evaluated
	if m.TopLevelCapability != nil {
		m.TopLevelCapability.Resolve(values.Undefined)
	}

	var ready []*SourceTextModule
	gatherAvailableAncestors(m, &ready, map[*SourceTextModule]bool{})
	sort.Slice(ready, func(i, j int) bool { return ready[i].AsyncEvalIndex < ready[j].AsyncEvalIndex })

	for _, a := range ready {
		if a.Status == Evaluated {
			continue
		}
		if a.HasTLA {
			a.executeAsync()
			continue
		}
		if err := a.executeSync(); err != nil {
			a.asyncExecutionRejected(err)
			continue
		}
		a.asyncEvaluation = false
		a.Status = Evaluated
		if a.TopLevelCapability != nil {
			a.TopLevelCapability.Resolve(values.Undefined)
		}
	}
}

// gatherAvailableAncestors is ECMA-262 §16.2.1.6.1.7: walk async
// parents, decrementing their pending dependency counts, collecting
// those that hit zero; parents without their own top-level await are
// recursed into because completing them synchronously will complete
// their parents in the same turn.
func gatherAvailableAncestors(m *SourceTextModule, out *[]*SourceTextModule, seen map[*SourceTextModule]bool) {
	for _, parent := range m.asyncParents {
		if seen[parent] || (parent.CycleRoot != nil && parent.CycleRoot.EvalError != nil) {
			continue
		}
		parent.pendingAsyncDeps--
		if parent.pendingAsyncDeps > 0 {
			continue
		}
		seen[parent] = true
		*out = append(*out, parent)
		if !parent.HasTLA {
			gatherAvailableAncestors(parent, out, seen)
		}
	}
}

// asyncExecutionRejected is ECMA-262 §16.2.1.6.1.6: record the error,
// propagate it to every async parent, and reject the top-level
// capability if this module carries one.
func (m *SourceTextModule) asyncExecutionRejected(err error) {
	if m.Status == Evaluated {
		return
	}
	m.EvalError = err
	m.Status = Evaluated
	m.asyncEvaluation = false
	for _, parent := range m.asyncParents {
		parent.asyncExecutionRejected(err)
	}
	if m.TopLevelCapability != nil {
		m.TopLevelCapability.Reject(m.errorReason(err))
	}
}

// errorReason recovers the JS value to reject with: a rejection that
// already carried one passes through, a Go-side error is adapted the
// same way the VM adapts it for a catch clause.
func (m *SourceTextModule) errorReason(err error) values.Value {
	if te, ok := err.(thrownError); ok {
		return te.value
	}
	return m.Realm.ErrorValue(err)
}

// nativeFn wraps a Go closure as a callable object of realm, the same
// shape the vm package uses for its own reaction handlers.
func nativeFn(realm *vm.VM, fn values.NativeFunc) *values.Object {
	obj := values.NewObject(realm.FunctionProto)
	obj.Class = "Function"
	obj.Call = fn
	return obj
}
