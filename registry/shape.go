package registry

import "github.com/wudi/esprel/values"

// Shape is a node in the shape tree: the ordered list of own-property
// keys an object has accumulated by following one particular sequence
// of "add property X" transitions from the empty object. Two objects
// built the same way (same class, or the same object-literal site
// evaluated twice) land on the same Shape node, so an inline cache can
// key on a Shape pointer instead of walking every property name.
//
// Unlike a class-based layout table, the tree covers ECMAScript's
// dynamically growing objects: a literal like `{a: 1, b: 2}` still gets
// a cheap structural fingerprint even though there is no declared class
// behind it.
type Shape struct {
	id          int
	Keys        []values.PropertyKey
	parent      *Shape
	transitions map[values.PropertyKey]*Shape
}

// Root is the shape of a brand new object with no own properties.
func (r *ShapeRegistry) Root() *Shape { return r.root }

// Transition returns the Shape reached by adding key to s, creating and
// interning a new node the first time this exact edge is taken from s.
func (r *ShapeRegistry) Transition(s *Shape, key values.PropertyKey) *Shape {
	if next, ok := s.transitions[key]; ok {
		return next
	}
	keys := make([]values.PropertyKey, len(s.Keys)+1)
	copy(keys, s.Keys)
	keys[len(s.Keys)] = key
	r.nextID++
	next := &Shape{
		id:          r.nextID,
		Keys:        keys,
		parent:      s,
		transitions: map[values.PropertyKey]*Shape{},
	}
	s.transitions[key] = next
	return next
}

// Offset returns the slot index key would occupy in s, or -1 if s
// (or an ancestor) doesn't have it. The compiler and the VM's property
// access do not consult it.
func (s *Shape) Offset(key values.PropertyKey) int {
	for i, k := range s.Keys {
		if k == key {
			return i
		}
	}
	return -1
}

func (s *Shape) ID() int { return s.id }

// ShapeRegistry interns a shape tree: key sequences added in the same
// order walk transitions out of the same root and end on the same
// *Shape, so they compare shape-equal by pointer. Each VM holds one
// (VM.Shapes), but object creation and property access do not walk
// its transitions; objects track layout changes through
// values.Object's ShapeID counter instead.
type ShapeRegistry struct {
	root   *Shape
	nextID int
}

func NewShapeRegistry() *ShapeRegistry {
	return &ShapeRegistry{root: &Shape{transitions: map[values.PropertyKey]*Shape{}}}
}
