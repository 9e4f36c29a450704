package values

// PropertyDescriptor mirrors ECMA-262 §6.2.6: either a data descriptor
// (Value + Writable) or an accessor descriptor (Get/Set), plus the
// shared Enumerable/Configurable attributes.
type PropertyDescriptor struct {
	Value        Value
	Get          *Object // callable, or nil
	Set          *Object // callable, or nil
	Writable     bool
	Enumerable   bool
	Configurable bool
	IsAccessor   bool
}

// NativeFunc is the signature every built-in (intrinsic) function and
// every compiled CodeBlock entry point present to the call machinery,
// letting OP_CALL treat both uniformly.
type NativeFunc func(this Value, args []Value) (Value, error)

// Object is the engine's single object representation: every exotic
// object (array, function, Error, Promise, Map, ...) is this same
// struct with a Class tag plus an Internal payload, so the VM never
// type-switches on a per-kind Go type.
type Object struct {
	Class     string // "Object", "Array", "Function", "Error", "Promise", ...
	Prototype *Object

	keys  []PropertyKey // insertion order, doubles as the object's current "shape" fingerprint
	props map[PropertyKey]*PropertyDescriptor

	// ShapeID is a per-object counter bumped each time a key is added
	// to or deleted from this object, so a changed value signals a
	// changed layout. The registry package does not read it.
	ShapeID int

	Extensible bool

	// Call is non-nil for callable objects (functions, including bound
	// and native functions); Construct is non-nil for objects usable
	// with `new`. Most ordinary objects leave both nil.
	Call      NativeFunc
	Construct func(args []Value, newTarget *Object) (Value, error)

	// Internal carries exotic-object payload data that doesn't fit the
	// property map: array element backing, Map/Set table, Promise
	// state, BoundTargetFunction, etc. The VM type-switches on this by
	// Class.
	Internal interface{}
}

// NewObject creates a plain ordinary object with the given prototype.
func NewObject(proto *Object) *Object {
	return &Object{Class: "Object", Prototype: proto, props: map[PropertyKey]*PropertyDescriptor{}, Extensible: true}
}

// GetOwnProperty returns the object's own descriptor for key, per
// ECMA-262 §10.1.5 OrdinaryGetOwnProperty.
func (o *Object) GetOwnProperty(key PropertyKey) (*PropertyDescriptor, bool) {
	d, ok := o.props[key]
	return d, ok
}

// DefineOwnProperty installs or replaces a property, recording insertion
// order the first time key appears (ECMA-262 §10.1.6 simplified: this
// engine does not yet enforce non-configurable-property invariants on
// redefinition; proxies
// and full Reflect semantics).
func (o *Object) DefineOwnProperty(key PropertyKey, desc PropertyDescriptor) {
	if _, exists := o.props[key]; !exists {
		o.keys = append(o.keys, key)
		o.ShapeID++
	}
	o.props[key] = &desc
}

// DeleteOwnProperty removes a property and reports whether it existed.
func (o *Object) DeleteOwnProperty(key PropertyKey) bool {
	if _, ok := o.props[key]; !ok {
		return false
	}
	delete(o.props, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	o.ShapeID++
	return true
}

// OwnPropertyKeys returns this object's own keys in ECMA-262 §9.1.12
// order: integer indices ascending, then strings, then symbols, all by
// insertion order within their group.
func (o *Object) OwnPropertyKeys() []PropertyKey {
	return sortPropertyKeys(append([]PropertyKey(nil), o.keys...))
}

// Get implements the default [[Get]] algorithm (ECMA-262 §10.1.8),
// walking the prototype chain for data properties; accessor
// invocation is left to the VM (it needs a call stack to invoke Get).
func (o *Object) Get(key PropertyKey) (Value, *Object, bool) {
	for cur := o; cur != nil; cur = cur.Prototype {
		if d, ok := cur.props[key]; ok {
			if d.IsAccessor {
				return Undefined, d.Get, true
			}
			return d.Value, nil, true
		}
	}
	return Undefined, nil, false
}

// SetData is a convenience for the common case of installing a plain,
// writable/enumerable/configurable data property — the default shape
// every object literal property and array element gets.
func (o *Object) SetData(key PropertyKey, v Value) {
	o.DefineOwnProperty(key, PropertyDescriptor{Value: v, Writable: true, Enumerable: true, Configurable: true})
}

// ArrayData is the internal payload of an exotic Array object (Class ==
// "Array"): a dense slice plus the length invariant ECMA-262 §10.4.2
// requires length to track the highest numeric index + 1.
type ArrayData struct {
	Elements []Value
}

// NewArray creates an exotic Array object backed by elements.
func NewArray(proto *Object, elements []Value) *Object {
	o := &Object{Class: "Array", Prototype: proto, props: map[PropertyKey]*PropertyDescriptor{}, Extensible: true}
	o.Internal = &ArrayData{Elements: elements}
	o.DefineOwnProperty(StringKey("length"), PropertyDescriptor{Value: Int(int64(len(elements))), Writable: true})
	return o
}
