package exec

import (
	"github.com/turingworks/prismdb/internal/expr"
	"github.com/turingworks/prismdb/internal/vector"
)

// Projection evaluates one expression per output column. Output cardinality
// equals input cardinality; projection never filters.
type Projection struct {
	plan  *ProjectionPlan
	child Operator
	ectx  *expr.Context
}

// NewProjection builds a projection over child.
func NewProjection(plan *ProjectionPlan, child Operator) *Projection {
	return &Projection{plan: plan, child: child}
}

// Open implements Operator.
func (p *Projection) Open(qc *QueryContext) error {
	p.ectx = qc.NewExprContext()
	return p.child.Open(qc)
}

// Next implements Operator.
func (p *Projection) Next(qc *QueryContext) (*vector.DataChunk, error) {
	chunk, err := p.child.Next(qc)
	if err != nil || chunk == nil {
		return nil, err
	}
	return projectChunk(p.ectx, p.plan.Exprs, chunk)
}

func projectChunk(ectx *expr.Context, exprs []expr.Expression, chunk *vector.DataChunk) (*vector.DataChunk, error) {
	cols := make([]*vector.Vector, len(exprs))
	for i, e := range exprs {
		v, err := e.Eval(ectx, chunk)
		if err != nil {
			return nil, err
		}
		cols[i] = v
	}
	out := vector.ChunkFromVectors(cols...)
	out.SetCardinality(chunk.Cardinality())
	return out, nil
}

// Close implements Operator.
func (p *Projection) Close() error { return p.child.Close() }

// Tasks implements ParallelSource when the child splits.
func (p *Projection) Tasks(qc *QueryContext) ([]Operator, error) {
	src, ok := p.child.(ParallelSource)
	if !ok {
		return nil, errNotParallel
	}
	children, err := src.Tasks(qc)
	if err != nil {
		return nil, err
	}
	tasks := make([]Operator, len(children))
	for i, c := range children {
		tasks[i] = NewProjection(p.plan, c)
	}
	return tasks, nil
}
