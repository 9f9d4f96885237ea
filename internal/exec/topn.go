package exec

import (
	"container/heap"
	"sort"

	"github.com/turingworks/prismdb/internal/expr"
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// topNRow is one candidate row: materialized payload plus its key tuple.
type topNRow struct {
	payload []types.Value
	keys    []types.Value
}

// topNHeap is a bounded max-heap on the sort keys: the root is the worst
// kept row, evicted when a better candidate arrives.
type topNHeap struct {
	rows []*topNRow
	keys []SortKey
}

func (h *topNHeap) Len() int { return len(h.rows) }

func (h *topNHeap) Less(i, j int) bool {
	// Max-heap: the "largest" (sorting last) row sits at the root.
	return h.compare(h.rows[i], h.rows[j]) > 0
}

func (h *topNHeap) compare(a, b *topNRow) int {
	for k := range h.keys {
		if cmp := compareWithNulls(a.keys[k], b.keys[k], h.keys[k]); cmp != 0 {
			return cmp
		}
	}
	return 0
}

func (h *topNHeap) Swap(i, j int) { h.rows[i], h.rows[j] = h.rows[j], h.rows[i] }

func (h *topNHeap) Push(x any) { h.rows = append(h.rows, x.(*topNRow)) }

func (h *topNHeap) Pop() any {
	old := h.rows
	n := len(old)
	x := old[n-1]
	h.rows = old[:n-1]
	return x
}

// TopN is the limit-aware sort variant: a bounded heap of N rows replaces
// full materialization when a Limit immediately consumes the Sort.
type TopN struct {
	plan   *SortPlan
	child  Operator
	sorted []*topNRow
	pos    int
}

// NewTopN builds a bounded sort keeping plan.TopN rows.
func NewTopN(plan *SortPlan, child Operator) *TopN {
	return &TopN{plan: plan, child: child}
}

// Open implements Operator: each worker keeps a local bounded heap; the
// merge pass combines them and sorts the survivors.
func (t *TopN) Open(qc *QueryContext) error {
	n := int(t.plan.TopN)
	heaps := make([]*topNHeap, qc.Threads)
	ectxs := make([]*expr.Context, qc.Threads)
	for i := range heaps {
		heaps[i] = &topNHeap{keys: t.plan.Keys}
		ectxs[i] = qc.NewExprContext()
	}
	err := collect(qc, t.child, func(worker int, chunk *vector.DataChunk) error {
		h := heaps[worker]
		keyCols := make([]*vector.Vector, len(t.plan.Keys))
		for k, key := range t.plan.Keys {
			v, err := key.Expr.Eval(ectxs[worker], chunk)
			if err != nil {
				return err
			}
			keyCols[k] = v
		}
		for row := 0; row < chunk.Cardinality(); row++ {
			keys := make([]types.Value, len(keyCols))
			for k, kc := range keyCols {
				keys[k] = kc.MustGet(row)
			}
			if h.Len() >= n {
				worst := h.rows[0]
				if h.compare(&topNRow{keys: keys}, worst) >= 0 {
					continue
				}
			}
			payload, err := chunk.Row(row)
			if err != nil {
				return err
			}
			heap.Push(h, &topNRow{payload: payload, keys: keys})
			if h.Len() > n {
				heap.Pop(h)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	var all []*topNRow
	for _, h := range heaps {
		all = append(all, h.rows...)
	}
	cmp := &topNHeap{keys: t.plan.Keys}
	sort.Slice(all, func(i, j int) bool {
		return cmp.compare(all[i], all[j]) < 0
	})
	if len(all) > n {
		all = all[:n]
	}
	t.sorted = all
	t.pos = 0
	return nil
}

// Next implements Operator.
func (t *TopN) Next(qc *QueryContext) (*vector.DataChunk, error) {
	if t.pos >= len(t.sorted) {
		return nil, nil
	}
	typs := ColumnTypes(t.plan.Schema())
	out := vector.NewChunk(typs)
	for t.pos < len(t.sorted) && out.Cardinality() < vector.Size {
		if err := out.AppendRow(t.sorted[t.pos].payload...); err != nil {
			return nil, err
		}
		t.pos++
	}
	return out, nil
}

// Close implements Operator.
func (t *TopN) Close() error { return t.child.Close() }
