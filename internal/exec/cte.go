package exec

import (
	"go.uber.org/zap"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/vector"
)

// CTEMaterialize executes its input plan exactly once, stores the result
// chunks in the execution context under the CTE's name, then delegates to
// its child, whose CTEScan nodes replay the store. A pipeline breaker for
// the CTE body regardless of how many scans reference it.
type CTEMaterialize struct {
	plan  *CTEMaterializePlan
	input Operator
	child Operator
}

// NewCTEMaterialize builds a materialization node.
func NewCTEMaterialize(plan *CTEMaterializePlan, input, child Operator) *CTEMaterialize {
	return &CTEMaterialize{plan: plan, input: input, child: child}
}

// Open implements Operator.
func (c *CTEMaterialize) Open(qc *QueryContext) error {
	if _, ok := qc.LoadCTE(c.plan.Name); !ok {
		var chunks []*vector.DataChunk
		rows := 0
		err := drain(qc, c.input, func(chunk *vector.DataChunk) error {
			if err := qc.Memory.Reserve(chunkBytes(chunk)); err != nil {
				return err
			}
			chunk = chunk.Materialize()
			chunks = append(chunks, chunk)
			rows += chunk.Cardinality()
			return nil
		})
		if err != nil {
			return err
		}
		qc.StoreCTE(c.plan.Name, chunks)
		zap.S().Debugw("materialized cte", "name", c.plan.Name, "rows", rows, "chunks", len(chunks))
	}
	return c.child.Open(qc)
}

// Next implements Operator.
func (c *CTEMaterialize) Next(qc *QueryContext) (*vector.DataChunk, error) {
	return c.child.Next(qc)
}

// Close implements Operator.
func (c *CTEMaterialize) Close() error { return c.child.Close() }

// CTEScan replays the chunks a CTEMaterialize stored.
type CTEScan struct {
	plan *CTEScanPlan
	pos  int
}

// NewCTEScan builds a scan over a materialized CTE.
func NewCTEScan(plan *CTEScanPlan) *CTEScan {
	return &CTEScan{plan: plan}
}

// Open implements Operator.
func (c *CTEScan) Open(qc *QueryContext) error {
	if _, ok := qc.LoadCTE(c.plan.Name); !ok {
		return errorx.Internalf("cte %q scanned before materialization", c.plan.Name)
	}
	c.pos = 0
	return nil
}

// Next implements Operator.
func (c *CTEScan) Next(qc *QueryContext) (*vector.DataChunk, error) {
	chunks, _ := qc.LoadCTE(c.plan.Name)
	if c.pos >= len(chunks) {
		return nil, nil
	}
	chunk := chunks[c.pos]
	c.pos++
	return chunk, nil
}

// Close implements Operator.
func (c *CTEScan) Close() error { return nil }
