package exec

import (
	"github.com/turingworks/prismdb/internal/expr"
	"github.com/turingworks/prismdb/internal/vector"
)

// applyFilter evaluates a boolean predicate over a chunk and returns the
// surviving rows as a zero-copy slice. NULL predicate results drop the row.
// All-true forwards the chunk unchanged; all-false yields an empty chunk.
func applyFilter(ectx *expr.Context, pred expr.Expression, chunk *vector.DataChunk) (*vector.DataChunk, error) {
	flags, err := pred.Eval(ectx, chunk)
	if err != nil {
		return nil, err
	}
	n := chunk.Cardinality()
	sel := vector.NewSelectionVector(n)
	for i := 0; i < n; i++ {
		if !flags.IsNull(i) && flags.MustGet(i).Bool() {
			sel.Append(uint32(i))
		}
	}
	if sel.Len() == n {
		return chunk, nil
	}
	return chunk.Slice(sel), nil
}

// Filter drops rows whose predicate is false or NULL.
type Filter struct {
	plan  *FilterPlan
	child Operator
	ectx  *expr.Context
}

// NewFilter builds a filter over child.
func NewFilter(plan *FilterPlan, child Operator) *Filter {
	return &Filter{plan: plan, child: child}
}

// Open implements Operator.
func (f *Filter) Open(qc *QueryContext) error {
	f.ectx = qc.NewExprContext()
	return f.child.Open(qc)
}

// Next implements Operator.
func (f *Filter) Next(qc *QueryContext) (*vector.DataChunk, error) {
	for {
		chunk, err := f.child.Next(qc)
		if err != nil || chunk == nil {
			return nil, err
		}
		if chunk.Cardinality() == 0 {
			return chunk, nil
		}
		out, err := applyFilter(f.ectx, f.plan.Predicate, chunk)
		if err != nil {
			return nil, err
		}
		if out.Cardinality() == 0 {
			continue
		}
		return out, nil
	}
}

// Close implements Operator.
func (f *Filter) Close() error { return f.child.Close() }

// Tasks implements ParallelSource when the child splits; each task gets
// its own filter instance and expression context.
func (f *Filter) Tasks(qc *QueryContext) ([]Operator, error) {
	src, ok := f.child.(ParallelSource)
	if !ok {
		return nil, errNotParallel
	}
	children, err := src.Tasks(qc)
	if err != nil {
		return nil, err
	}
	tasks := make([]Operator, len(children))
	for i, c := range children {
		tasks[i] = NewFilter(f.plan, c)
	}
	return tasks, nil
}
