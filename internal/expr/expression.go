// Package expr implements the expression tree evaluated over data chunks:
// column references, constants, comparisons, scalar functions, casts, CASE,
// and subquery references. Types are resolved at bind time; evaluation is
// monomorphic per resolved signature.
package expr

import (
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// SubqueryExecutor runs a bound subplan; the execution engine implements it.
// The plan handle is opaque here to keep the expression layer below the
// operator layer.
type SubqueryExecutor interface {
	ExecuteSubquery(plan any, params []types.Value) ([][]types.Value, error)
}

// Context is the per-call evaluation context threaded through every Eval:
// prepared-statement parameters, the subquery executor and its result
// cache, and the query's cancellation check. Scalar expressions ignore it;
// subquery expressions need it, so it exists on the signature from the
// start.
type Context struct {
	Params    []types.Value
	Subquery  SubqueryExecutor
	Cancelled func() bool

	// subqueryCache memoizes uncorrelated subplan results for this context.
	subqueryCache map[any][][]types.Value
}

// NewContext creates an evaluation context.
func NewContext() *Context {
	return &Context{}
}

func (c *Context) cachedSubquery(plan any) ([][]types.Value, bool) {
	rows, ok := c.subqueryCache[plan]
	return rows, ok
}

func (c *Context) storeSubquery(plan any, rows [][]types.Value) {
	if c.subqueryCache == nil {
		c.subqueryCache = make(map[any][][]types.Value)
	}
	c.subqueryCache[plan] = rows
}

// Expression is a node of the expression tree. Eval produces one output
// vector of the chunk's cardinality.
type Expression interface {
	ReturnType() types.LogicalType
	Eval(ctx *Context, chunk *vector.DataChunk) (*vector.Vector, error)
	String() string
}

// EvalRow evaluates an expression against a single-row view and returns the
// row value; used by correlated subqueries and bind-time folding.
func EvalRow(ctx *Context, e Expression, chunk *vector.DataChunk, row int) (types.Value, error) {
	sel := vector.NewSelectionVector(1)
	sel.Append(uint32(row))
	out, err := e.Eval(ctx, chunk.Slice(sel))
	if err != nil {
		return types.Value{}, err
	}
	return out.Get(0)
}
