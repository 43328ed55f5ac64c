package set

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	var s Set[string]
	assert.Zero(t, s.Len())
	assert.False(t, s.Contains("a"))

	s.Insert("a")
	s.Insert("b")
	s.Insert("a")
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains("a"))

	s.Remove("a")
	assert.False(t, s.Contains("a"))
	assert.Equal(t, 1, s.Len())

	// Removing from an empty set is a no-op.
	var empty Set[int]
	empty.Remove(1)
	assert.Zero(t, empty.Len())
}
