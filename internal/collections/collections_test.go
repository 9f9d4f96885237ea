package collections

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := NewSet[string]()
	assert.True(t, s.Add("a"))
	assert.False(t, s.Add("a"))
	assert.True(t, s.Add("b"))
	assert.True(t, s.Contains("a"))
	assert.Equal(t, 2, s.Size())
	s.Remove("a")
	assert.False(t, s.Contains("a"))
	got := s.ToSlice()
	assert.Equal(t, []string{"b"}, got)
}

func TestMapKeys(t *testing.T) {
	keys := MapKeys(map[string]int{"x": 1, "y": 2})
	sort.Strings(keys)
	assert.Equal(t, []string{"x", "y"}, keys)
}
