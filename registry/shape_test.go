package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/esprel/values"
)

func TestShapeTransitionsIntern(t *testing.T) {
	r := NewShapeRegistry()
	a := values.StringKey("a")
	b := values.StringKey("b")

	s1 := r.Transition(r.Root(), a)
	s2 := r.Transition(r.Root(), a)
	assert.Same(t, s1, s2, "the same edge from the same node lands on one interned shape")

	ab := r.Transition(s1, b)
	ab2 := r.Transition(r.Transition(r.Root(), a), b)
	assert.Same(t, ab, ab2, "structurally identical build orders share a shape")

	ba := r.Transition(r.Transition(r.Root(), b), a)
	assert.NotSame(t, ab, ba, "property insertion order is part of the fingerprint")
}

func TestShapeOffsets(t *testing.T) {
	r := NewShapeRegistry()
	s := r.Transition(r.Transition(r.Root(), values.StringKey("x")), values.StringKey("y"))

	require.Len(t, s.Keys, 2)
	assert.Equal(t, 0, s.Offset(values.StringKey("x")))
	assert.Equal(t, 1, s.Offset(values.StringKey("y")))
	assert.Equal(t, -1, s.Offset(values.StringKey("z")))
}

func TestShapeIDsAreUnique(t *testing.T) {
	r := NewShapeRegistry()
	s1 := r.Transition(r.Root(), values.StringKey("p"))
	s2 := r.Transition(s1, values.StringKey("q"))
	assert.NotEqual(t, r.Root().ID(), s1.ID())
	assert.NotEqual(t, s1.ID(), s2.ID())
}
