package exec

import (
	"time"

	"go.uber.org/zap"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/telemetry"
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// Engine turns a bound physical plan into an operator DAG and streams its
// result chunks. It also serves as the subquery executor for expression
// evaluation, closing the loop the evaluation context needs.
type Engine struct {
	plan   Plan
	root   Operator
	qc     *QueryContext
	opened bool
	done   bool
	start  time.Time
}

// NewEngine builds an engine for one plan execution.
func NewEngine(plan Plan, qc *QueryContext) (*Engine, error) {
	root, err := Build(plan)
	if err != nil {
		return nil, err
	}
	e := &Engine{plan: plan, root: root, qc: qc}
	qc.Subquery = e
	return e, nil
}

// Context exposes the engine's query context.
func (e *Engine) Context() *QueryContext { return e.qc }

// Schema returns the output schema of the plan.
func (e *Engine) Schema() []Column { return e.plan.Schema() }

// Next pulls the next result chunk; nil marks the end of the stream. The
// first error cancels the query and is sticky.
func (e *Engine) Next() (*vector.DataChunk, error) {
	if e.done {
		return nil, nil
	}
	if !e.opened {
		e.start = time.Now()
		if err := e.root.Open(e.qc); err != nil {
			e.fail(err)
			return nil, e.qc.FirstError(err)
		}
		e.opened = true
	}
	chunk, err := e.root.Next(e.qc)
	if err != nil {
		e.fail(err)
		return nil, e.qc.FirstError(err)
	}
	if chunk == nil {
		e.finish()
		return nil, nil
	}
	if err := chunk.Verify(); err != nil {
		e.fail(err)
		return nil, err
	}
	return chunk, nil
}

func (e *Engine) fail(err error) {
	e.qc.RecordError(err)
	e.done = true
	_ = e.root.Close()
}

func (e *Engine) finish() {
	e.done = true
	_ = e.root.Close()
	telemetry.EmitQueryLatency(time.Since(e.start).Microseconds())
	zap.S().Debugw("query finished", "elapsed", time.Since(e.start))
}

// Cancel aborts the execution; in-flight morsel tasks observe the flag
// between chunks.
func (e *Engine) Cancel() {
	e.qc.Cancel()
}

// Close cancels and releases the operator tree.
func (e *Engine) Close() error {
	e.qc.Cancel()
	if e.opened && !e.done {
		e.done = true
		return e.root.Close()
	}
	return nil
}

// ExecuteSubquery implements expr.SubqueryExecutor: run a bound subplan to
// completion and return its rows. Parameters carry correlated outer values.
func (e *Engine) ExecuteSubquery(plan any, params []types.Value) ([][]types.Value, error) {
	p, ok := plan.(Plan)
	if !ok {
		return nil, errorx.Internalf("subquery plan has unexpected type %T", plan)
	}
	sub := NewQueryContext(1, e.qc.MorselSize, 0)
	sub.Params = params
	sub.Subquery = e
	root, err := Build(p)
	if err != nil {
		return nil, err
	}
	var rows [][]types.Value
	err = drain(sub, root, func(chunk *vector.DataChunk) error {
		if err := e.qc.CheckCancelled(); err != nil {
			return err
		}
		for r := 0; r < chunk.Cardinality(); r++ {
			row, err := chunk.Row(r)
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Build instantiates the operator for a plan node, recursively wrapping
// children.
func Build(plan Plan) (Operator, error) {
	switch p := plan.(type) {
	case *TableScanPlan:
		return NewTableScan(p), nil
	case *FilterPlan:
		child, err := Build(p.Child)
		if err != nil {
			return nil, err
		}
		return NewFilter(p, child), nil
	case *ProjectionPlan:
		child, err := Build(p.Child)
		if err != nil {
			return nil, err
		}
		return NewProjection(p, child), nil
	case *LimitPlan:
		child, err := Build(p.Child)
		if err != nil {
			return nil, err
		}
		return NewLimit(p, child), nil
	case *HashJoinPlan:
		probe, err := Build(p.Probe)
		if err != nil {
			return nil, err
		}
		build, err := Build(p.Build)
		if err != nil {
			return nil, err
		}
		return NewHashJoin(p, probe, build), nil
	case *HashAggregatePlan:
		child, err := Build(p.Child)
		if err != nil {
			return nil, err
		}
		return NewHashAggregate(p, child), nil
	case *SortPlan:
		child, err := Build(p.Child)
		if err != nil {
			return nil, err
		}
		if p.TopN >= 0 {
			return NewTopN(p, child), nil
		}
		return NewSort(p, child), nil
	case *WindowPlan:
		child, err := Build(p.Child)
		if err != nil {
			return nil, err
		}
		return NewWindow(p, child), nil
	case *QualifyPlan:
		child, err := Build(p.Child)
		if err != nil {
			return nil, err
		}
		return NewFilter(&FilterPlan{Child: p.Child, Predicate: p.Predicate}, child), nil
	case *SetOpPlan:
		left, err := Build(p.Left)
		if err != nil {
			return nil, err
		}
		right, err := Build(p.Right)
		if err != nil {
			return nil, err
		}
		return NewSetOp(p, left, right), nil
	case *CTEMaterializePlan:
		input, err := Build(p.Input)
		if err != nil {
			return nil, err
		}
		child, err := Build(p.Child)
		if err != nil {
			return nil, err
		}
		return NewCTEMaterialize(p, input, child), nil
	case *CTEScanPlan:
		return NewCTEScan(p), nil
	case *ValuesPlan:
		return NewValues(p), nil
	default:
		return nil, errorx.NotImplementedf("physical plan node %T", plan)
	}
}
