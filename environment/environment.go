// Package environment implements ECMAScript environment records
// (ECMA-262 §9.1): the run-time binding storage a Scope's compile-time
// analysis resolves into. Records form the nested parent chain that
// closures and TDZ semantics require, with a map of slots behind a
// small lock-free struct for the common declarative case.
package environment

import (
	"fmt"

	"github.com/wudi/esprel/values"
)

// slot is one binding's storage cell. Initialized tracks the temporal
// dead zone for let/const (ECMA-262 §9.1.1.1.1): a declarative
// environment record creates the slot uninitialized, and only the
// binding's own declaration (OP_INIT_BINDING) flips it.
type slot struct {
	value       values.Value
	mutable     bool
	initialized bool

	// indirect, when non-nil, makes this an indirect binding (ECMA-262
	// §9.1.1.5.5 CreateImportBinding): reads/writes forward live to
	// another environment record's own slot rather than storing a
	// value here, so a module's `import {x} from "m"` observes every
	// later mutation of `m`'s exported `x`, not a snapshot taken at
	// link time.
	indirect     *Environment
	indirectName string
}

// Environment is one environment record in the chain. Outer is nil for
// the global environment. A single concrete type covers declarative,
// function, and module records (they differ only in what's stored at
// creation time and whether ThisValue/NewTarget are meaningful);
// global and object environment records layer an object-backed lookup
// on top via Object.
type Environment struct {
	Outer *Environment

	slots map[string]*slot
	// Object, when non-nil, makes this an object environment record
	// (global `var`s and `with` statements, ECMA-262 §9.1.1.2): bindings are
	// properties of Object rather than entries in slots.
	Object *values.Object

	// IsFunctionOrModule marks a record that owns a `this` binding (and,
	// for functions, arguments/new.target), mirroring ast.Scope's
	// IsFunctionOrTop split between variable scopes and plain blocks.
	IsFunctionOrModule bool
	ThisValue          values.Value
	HasThis            bool
	NewTarget          *values.Object
	FunctionObject     *values.Object

	// HomeObject anchors `super.prop`/`super.prop = ...` lookups for a
	// method body to the object literal/class prototype it was defined
	// on (ECMA-262 §9.4.5 MakeMethod), independent of `this`.
	HomeObject *values.Object

	// SuperConstructor is set on a derived class constructor's function
	// environment so OP_SUPER_CALL can resolve `super(...)` without the
	// stack carrying the callee (ECMA-262 §10.2.1.1's [[Construct]] of a
	// derived constructor resolves it from the function object itself,
	// not the call site).
	SuperConstructor *values.Object

	// InstanceFieldInit runs a derived class's instance field
	// initializers against the object super() just produced (ECMA-262
	// §10.2.1.1 step 8: InitializeInstanceElements happens right after
	// super() returns, not at ordinary object-creation time the way a
	// base class's fields do).
	InstanceFieldInit func(this *values.Object) error
}

// NewDeclarative creates a child declarative environment record (block,
// catch, for-loop per-iteration, or function-parameter scope).
func NewDeclarative(outer *Environment) *Environment {
	return &Environment{Outer: outer, slots: map[string]*slot{}}
}

// NewFunction creates the environment record FunctionDeclarationInstantiation
// installs parameters into (ECMA-262 §9.2), carrying this/new.target.
func NewFunction(outer *Environment, thisValue values.Value, hasThis bool, newTarget, fn *values.Object) *Environment {
	return &Environment{
		Outer: outer, slots: map[string]*slot{}, IsFunctionOrModule: true,
		ThisValue: thisValue, HasThis: hasThis, NewTarget: newTarget, FunctionObject: fn,
	}
}

// NewGlobal creates the global environment record: an object environment
// (the global object) plus a declarative part for let/const/class at
// top level (ECMA-262 §9.1.1.4's GlobalEnvironmentRecord split).
func NewGlobal(globalObject *values.Object) *Environment {
	return &Environment{
		slots: map[string]*slot{}, Object: globalObject, IsFunctionOrModule: true,
		ThisValue: values.ObjectValue(globalObject), HasThis: true,
	}
}

// DeclareMutable creates an uninitialized (TDZ) or initialized mutable
// binding. `var`/function/parameter bindings pass initialized=true;
// let bindings pass false until their declaration executes.
func (e *Environment) DeclareMutable(name string, initialized bool) {
	if e.Object != nil {
		e.Object.SetData(values.StringKey(name), values.Undefined)
		return
	}
	e.slots[name] = &slot{mutable: true, initialized: initialized}
}

// DeclareImmutable creates a const binding, uninitialized until its
// declaration runs (ECMA-262 §9.1.1.1.4 CreateImmutableBinding).
func (e *Environment) DeclareImmutable(name string) {
	e.slots[name] = &slot{mutable: false, initialized: false}
}

// DeclareIndirect creates a module environment's indirect binding for a
// single-name import (ECMA-262 §9.1.1.5.5 CreateImportBinding): every
// read resolves through target's own GetBindingValue(targetName), and
// the binding can never be reassigned from this side.
func (e *Environment) DeclareIndirect(name string, target *Environment, targetName string) {
	e.slots[name] = &slot{indirect: target, indirectName: targetName, initialized: true}
}

// InitializeBinding sets a declared-but-uninitialized binding's value
// and clears its TDZ flag, per ECMA-262 §9.1.1.1.5.
func (e *Environment) InitializeBinding(name string, v values.Value) error {
	if e.Object != nil {
		e.Object.SetData(values.StringKey(name), v)
		return nil
	}
	s, ok := e.slots[name]
	if !ok {
		return fmt.Errorf("InitializeBinding: %q not declared in this environment", name)
	}
	s.value = v
	s.initialized = true
	return nil
}

// ReferenceError is returned by GetBindingValue/SetMutableBinding when
// a name is unresolved or still in its TDZ, so the VM can translate it
// into a catchable ReferenceError without environment importing the
// runtime package's Exception type.
type ReferenceError struct {
	Name string
	TDZ  bool
}

func (e *ReferenceError) Error() string {
	if e.TDZ {
		return fmt.Sprintf("Cannot access '%s' before initialization", e.Name)
	}
	return fmt.Sprintf("%s is not defined", e.Name)
}

// GetBindingValue resolves name in this environment record only (no
// chain walk) — Resolve below handles walking Outer.
func (e *Environment) GetBindingValue(name string) (values.Value, error) {
	if e.Object != nil {
		if v, _, ok := e.Object.Get(values.StringKey(name)); ok {
			return v, nil
		}
		return values.Undefined, &ReferenceError{Name: name}
	}
	s, ok := e.slots[name]
	if !ok {
		return values.Undefined, &ReferenceError{Name: name}
	}
	if s.indirect != nil {
		return s.indirect.GetBindingValue(s.indirectName)
	}
	if !s.initialized {
		return values.Undefined, &ReferenceError{Name: name, TDZ: true}
	}
	return s.value, nil
}

// SetMutableBinding assigns an existing binding, enforcing const
// immutability and TDZ (ECMA-262 §9.1.1.1.3).
func (e *Environment) SetMutableBinding(name string, v values.Value) error {
	if e.Object != nil {
		e.Object.SetData(values.StringKey(name), v)
		return nil
	}
	s, ok := e.slots[name]
	if !ok {
		return &ReferenceError{Name: name}
	}
	if s.indirect != nil {
		return fmt.Errorf("Assignment to constant variable '%s'", name)
	}
	if !s.initialized {
		return &ReferenceError{Name: name, TDZ: true}
	}
	if !s.mutable {
		return fmt.Errorf("Assignment to constant variable '%s'", name)
	}
	s.value = v
	return nil
}

// HasBinding reports whether name is declared directly in this record.
func (e *Environment) HasBinding(name string) bool {
	if e.Object != nil {
		_, _, ok := e.Object.Get(values.StringKey(name))
		return ok
	}
	_, ok := e.slots[name]
	return ok
}

// Resolve walks the environment chain outward from e looking for name,
// the dynamic fallback path for BindingLocators the compiler marked
// Dynamic (free variables, or scopes touched by direct eval/with).
func Resolve(e *Environment, name string) (*Environment, bool) {
	for cur := e; cur != nil; cur = cur.Outer {
		if cur.HasBinding(name) {
			return cur, true
		}
	}
	return nil, false
}

// VarScopeOf walks outward to the nearest function/module/global
// record — the environment `var` declarations target regardless of how
// many block scopes sit in between (ECMA-262 §9.2's VariableEnvironment).
func VarScopeOf(e *Environment) *Environment {
	for cur := e; cur != nil; cur = cur.Outer {
		if cur.IsFunctionOrModule {
			return cur
		}
	}
	return e
}

// HomeObjectOf walks outward for the nearest non-nil HomeObject, so an
// arrow function (which never sets its own) inherits the enclosing
// method's home object the same way it inherits `this`.
func HomeObjectOf(e *Environment) *values.Object {
	for cur := e; cur != nil; cur = cur.Outer {
		if cur.HomeObject != nil {
			return cur.HomeObject
		}
	}
	return nil
}

// ThisEnvironment walks outward to the nearest record carrying a this
// binding (ECMA-262 §8.3.2 GetThisEnvironment) — arrow functions share
// their defining scope's this, so only function/module/global records
// stop the walk.
func ThisEnvironment(e *Environment) *Environment {
	for cur := e; cur != nil; cur = cur.Outer {
		if cur.HasThis {
			return cur
		}
	}
	return nil
}

// NewObjectEnv creates a `with` statement's object environment record
// (ECMA-262 §9.1.1.2): property lookups/assignments on obj shadow outer
// bindings of the same name, the -1-operand case OP_ENTER_BLOCK_SCOPE
// describes.
func NewObjectEnv(outer *Environment, obj *values.Object) *Environment {
	return &Environment{Outer: outer, slots: map[string]*slot{}, Object: obj}
}

// SuperConstructorOf walks outward for the nearest SuperConstructor, the
// same inheritance arrows use for HomeObject: a derived constructor's
// own function environment carries it directly, and a nested arrow
// (but not a nested ordinary function) must still be able to call
// `super(...)` from inside a derived constructor.
func SuperConstructorOf(e *Environment) *values.Object {
	for cur := e; cur != nil; cur = cur.Outer {
		if cur.SuperConstructor != nil {
			return cur.SuperConstructor
		}
	}
	return nil
}

// InstanceFieldInitOf walks outward for the nearest InstanceFieldInit
// hook, mirroring SuperConstructorOf.
func InstanceFieldInitOf(e *Environment) func(this *values.Object) error {
	for cur := e; cur != nil; cur = cur.Outer {
		if cur.InstanceFieldInit != nil {
			return cur.InstanceFieldInit
		}
	}
	return nil
}
