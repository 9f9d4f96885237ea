package exec

import (
	"sort"
	"sync"

	"github.com/turingworks/prismdb/internal/expr"
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// sortedRows is the materialized sort state: payload chunks plus evaluated
// key columns, sorted indirectly through an index array. The payload stays
// columnar; only the index array moves.
type sortedRows struct {
	chunks  []*vector.DataChunk
	keyCols [][]*vector.Vector // per chunk, one vector per sort key
	rows    []rowRef
	keys    []SortKey
}

type rowRef struct {
	chunk int32
	row   int32
}

// compare orders two row refs by the sort keys with per-key direction and
// null order.
func (s *sortedRows) compare(a, b rowRef) int {
	for k := range s.keys {
		av := s.keyCols[a.chunk][k].MustGet(int(a.row))
		bv := s.keyCols[b.chunk][k].MustGet(int(b.row))
		cmp := compareWithNulls(av, bv, s.keys[k])
		if cmp != 0 {
			return cmp
		}
	}
	return 0
}

func compareWithNulls(av, bv types.Value, key SortKey) int {
	if av.Null || bv.Null {
		if av.Null && bv.Null {
			return 0
		}
		nullFirst := key.NullOrder == NullsFirst
		if av.Null {
			if nullFirst {
				return -1
			}
			return 1
		}
		if nullFirst {
			return 1
		}
		return -1
	}
	cmp := types.Compare(av, bv)
	if key.Desc {
		return -cmp
	}
	return cmp
}

// parallelThreshold is the partition size below which quicksort recursion
// stays on the current goroutine.
const parallelThreshold = 8192

// parallelQuicksort runs an unstable quicksort over the index array,
// recursing one side on a new goroutine while partitions are large and
// worker budget remains.
func (s *sortedRows) parallelQuicksort(workers int) {
	var wg sync.WaitGroup
	budget := make(chan struct{}, workers)
	var qsort func(lo, hi int)
	qsort = func(lo, hi int) {
		for hi-lo > 32 {
			p := s.partition(lo, hi)
			left, right := p-lo, hi-p
			small, smallLo, smallHi := left, lo, p
			bigLo, bigHi := p+1, hi
			if right < left {
				small, smallLo, smallHi = right, p+1, hi
				bigLo, bigHi = lo, p
			}
			if small > parallelThreshold {
				select {
				case budget <- struct{}{}:
					wg.Add(1)
					go func(l, h int) {
						defer wg.Done()
						qsort(l, h)
						<-budget
					}(smallLo, smallHi)
				default:
					qsort(smallLo, smallHi)
				}
			} else {
				qsort(smallLo, smallHi)
			}
			lo, hi = bigLo, bigHi
		}
		// Insertion sort for small partitions.
		for i := lo + 1; i < hi; i++ {
			for j := i; j > lo && s.compare(s.rows[j], s.rows[j-1]) < 0; j-- {
				s.rows[j], s.rows[j-1] = s.rows[j-1], s.rows[j]
			}
		}
	}
	qsort(0, len(s.rows))
	wg.Wait()
}

// partition is Lomuto-style around a median-of-three pivot, returning the
// pivot's final position.
func (s *sortedRows) partition(lo, hi int) int {
	mid := lo + (hi-lo)/2
	if s.compare(s.rows[mid], s.rows[lo]) < 0 {
		s.rows[mid], s.rows[lo] = s.rows[lo], s.rows[mid]
	}
	if s.compare(s.rows[hi-1], s.rows[lo]) < 0 {
		s.rows[hi-1], s.rows[lo] = s.rows[lo], s.rows[hi-1]
	}
	if s.compare(s.rows[hi-1], s.rows[mid]) < 0 {
		s.rows[hi-1], s.rows[mid] = s.rows[mid], s.rows[hi-1]
	}
	pivot := s.rows[mid]
	s.rows[mid], s.rows[hi-2] = s.rows[hi-2], s.rows[mid]
	store := lo
	for i := lo; i < hi-2; i++ {
		if s.compare(s.rows[i], pivot) < 0 {
			s.rows[i], s.rows[store] = s.rows[store], s.rows[i]
			store++
		}
	}
	s.rows[store], s.rows[hi-2] = s.rows[hi-2], s.rows[store]
	return store
}

// Sort is the full-materialization sort operator; a pipeline breaker. The
// sort is not stable: rows with equal keys come out in no defined order.
type Sort struct {
	plan  *SortPlan
	child Operator
	state *sortedRows
	pos   int
}

// NewSort builds a sort over child.
func NewSort(plan *SortPlan, child Operator) *Sort {
	return &Sort{plan: plan, child: child}
}

// Open implements Operator; it materializes and sorts the whole input.
func (s *Sort) Open(qc *QueryContext) error {
	state := &sortedRows{keys: s.plan.Keys}
	var mu sync.Mutex
	ectxs := make([]*expr.Context, qc.Threads)
	for i := range ectxs {
		ectxs[i] = qc.NewExprContext()
	}
	err := collect(qc, s.child, func(worker int, chunk *vector.DataChunk) error {
		chunk = chunk.Materialize()
		if err := qc.Memory.Reserve(chunkBytes(chunk)); err != nil {
			return err
		}
		keyCols := make([]*vector.Vector, len(s.plan.Keys))
		for k, key := range s.plan.Keys {
			v, err := key.Expr.Eval(ectxs[worker], chunk)
			if err != nil {
				return err
			}
			keyCols[k] = v
		}
		mu.Lock()
		state.chunks = append(state.chunks, chunk)
		state.keyCols = append(state.keyCols, keyCols)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}
	total := 0
	for _, c := range state.chunks {
		total += c.Cardinality()
	}
	state.rows = make([]rowRef, 0, total)
	for ci, c := range state.chunks {
		for r := 0; r < c.Cardinality(); r++ {
			state.rows = append(state.rows, rowRef{chunk: int32(ci), row: int32(r)})
		}
	}
	if len(state.rows) > parallelThreshold && qc.Threads > 1 {
		state.parallelQuicksort(qc.Threads)
	} else {
		sort.Slice(state.rows, func(i, j int) bool {
			return state.compare(state.rows[i], state.rows[j]) < 0
		})
	}
	s.state = state
	s.pos = 0
	return nil
}

// Next implements Operator, gathering payload rows in sorted order.
func (s *Sort) Next(qc *QueryContext) (*vector.DataChunk, error) {
	if s.pos >= len(s.state.rows) {
		return nil, nil
	}
	if err := qc.CheckCancelled(); err != nil {
		return nil, err
	}
	typs := ColumnTypes(s.plan.Schema())
	out := vector.NewChunk(typs)
	for s.pos < len(s.state.rows) && out.Cardinality() < vector.Size {
		ref := s.state.rows[s.pos]
		s.pos++
		row, err := s.state.chunks[ref.chunk].Row(int(ref.row))
		if err != nil {
			return nil, err
		}
		if err := out.AppendRow(row...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Close implements Operator.
func (s *Sort) Close() error { return s.child.Close() }

// chunkBytes estimates the materialized footprint of a chunk.
func chunkBytes(c *vector.DataChunk) int64 {
	return int64(c.Cardinality()) * int64(c.ColumnCount()) * 16
}
