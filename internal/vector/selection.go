package vector

// SelectionVector is a sparse index array into a Vector's physical storage.
// Logical row i of a sliced vector lives at physical position idx[i].
// Filters produce selection vectors instead of copying column data.
type SelectionVector struct {
	idx []uint32
}

// NewSelectionVector returns an empty selection with the given capacity.
func NewSelectionVector(capacity int) *SelectionVector {
	return &SelectionVector{idx: make([]uint32, 0, capacity)}
}

// SelectionFromIndices wraps an index slice without copying.
func SelectionFromIndices(idx []uint32) *SelectionVector {
	return &SelectionVector{idx: idx}
}

// Append adds a physical row index.
func (s *SelectionVector) Append(i uint32) {
	s.idx = append(s.idx, i)
}

// Get returns the physical index of logical row i.
func (s *SelectionVector) Get(i int) uint32 {
	return s.idx[i]
}

// Len returns the number of selected rows.
func (s *SelectionVector) Len() int {
	return len(s.idx)
}

// Indices exposes the raw index slice; callers must not mutate it once the
// selection has been published downstream.
func (s *SelectionVector) Indices() []uint32 {
	return s.idx
}

// Compose resolves a selection-of-a-selection into a single flat selection:
// the result maps logical rows of outer through s into physical storage.
// Slicing an already sliced chunk materializes through this, so a selection
// is never applied twice at read time.
func (s *SelectionVector) Compose(outer *SelectionVector) *SelectionVector {
	composed := make([]uint32, outer.Len())
	for i := range composed {
		composed[i] = s.idx[outer.idx[i]]
	}
	return &SelectionVector{idx: composed}
}
