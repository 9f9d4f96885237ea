package expr

import (
	"fmt"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// SubqueryKind distinguishes the subquery shapes.
type SubqueryKind uint8

const (
	// SubqueryScalar yields the single value of a one-row result.
	SubqueryScalar SubqueryKind = iota
	// SubqueryExists yields true when the subplan produces any row.
	SubqueryExists
	// SubqueryIn tests the operand against the subplan's first column.
	SubqueryIn
)

// Subquery evaluates a bound subplan through the execution context. An
// uncorrelated subplan runs once per evaluation Context and is cached there; a correlated one
// runs per outer row with the referenced outer columns bound as parameters.
type Subquery struct {
	Kind SubqueryKind
	Plan any
	Type types.LogicalType
	// Operand is the left side of IN.
	Operand Expression
	// Correlations name outer-chunk columns passed to the subplan as
	// parameters, in parameter order.
	Correlations []int
	// Negated inverts EXISTS / IN.
	Negated bool
}

// ReturnType implements Expression.
func (s *Subquery) ReturnType() types.LogicalType {
	if s.Kind == SubqueryScalar {
		return s.Type
	}
	return types.TypeBoolean
}

// Eval implements Expression.
func (s *Subquery) Eval(ctx *Context, chunk *vector.DataChunk) (*vector.Vector, error) {
	if ctx == nil || ctx.Subquery == nil {
		return nil, errorx.Internalf("subquery evaluated without execution context")
	}
	n := chunk.Cardinality()
	if len(s.Correlations) == 0 {
		rows, err := s.run(ctx, nil)
		if err != nil {
			return nil, err
		}
		return s.resultVector(ctx, chunk, rows, n)
	}
	// Correlated: one execution per outer row.
	out := vector.NewFlat(s.ReturnType(), n)
	params := make([]types.Value, len(s.Correlations))
	for row := 0; row < n; row++ {
		if ctx.Cancelled != nil && ctx.Cancelled() {
			return nil, errorx.Cancelledf("query cancelled")
		}
		for i, col := range s.Correlations {
			params[i] = chunk.Column(col).MustGet(row)
		}
		rows, err := ctx.Subquery.ExecuteSubquery(s.Plan, params)
		if err != nil {
			return nil, err
		}
		v, err := s.rowResult(ctx, chunk, rows, row)
		if err != nil {
			return nil, err
		}
		if err := out.Append(v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// run executes the uncorrelated subplan once, consulting the per-query
// cache first.
func (s *Subquery) run(ctx *Context, params []types.Value) ([][]types.Value, error) {
	if rows, ok := ctx.cachedSubquery(s.Plan); ok {
		return rows, nil
	}
	rows, err := ctx.Subquery.ExecuteSubquery(s.Plan, params)
	if err != nil {
		return nil, err
	}
	ctx.storeSubquery(s.Plan, rows)
	return rows, nil
}

func (s *Subquery) resultVector(ctx *Context, chunk *vector.DataChunk, rows [][]types.Value, n int) (*vector.Vector, error) {
	switch s.Kind {
	case SubqueryScalar:
		v, err := s.scalarValue(rows)
		if err != nil {
			return nil, err
		}
		return vector.NewConstant(v, n), nil
	case SubqueryExists:
		return vector.NewConstant(types.NewBoolean((len(rows) > 0) != s.Negated), n), nil
	default:
		operand, err := s.Operand.Eval(ctx, chunk)
		if err != nil {
			return nil, err
		}
		out := vector.NewFlat(types.TypeBoolean, n)
		for i := 0; i < n; i++ {
			v, err := s.inResult(operand.MustGet(i), rows)
			if err != nil {
				return nil, err
			}
			if err := out.Append(v); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
}

func (s *Subquery) rowResult(ctx *Context, chunk *vector.DataChunk, rows [][]types.Value, row int) (types.Value, error) {
	switch s.Kind {
	case SubqueryScalar:
		return s.scalarValue(rows)
	case SubqueryExists:
		return types.NewBoolean((len(rows) > 0) != s.Negated), nil
	default:
		operand, err := EvalRow(ctx, s.Operand, chunk, row)
		if err != nil {
			return types.Value{}, err
		}
		return s.inResult(operand, rows)
	}
}

func (s *Subquery) scalarValue(rows [][]types.Value) (types.Value, error) {
	if len(rows) == 0 {
		return types.NewNull(s.Type), nil
	}
	if len(rows) > 1 {
		return types.Value{}, errorx.Parsef("scalar subquery produced %d rows", len(rows))
	}
	if len(rows[0]) != 1 {
		return types.Value{}, errorx.Parsef("scalar subquery produced %d columns", len(rows[0]))
	}
	return rows[0][0], nil
}

// inResult applies SQL IN semantics: true on a match, NULL when no match
// but the list contains NULL or the operand is NULL and the list is not
// empty, false otherwise (NOT IN inverts the non-NULL outcomes).
func (s *Subquery) inResult(operand types.Value, rows [][]types.Value) (types.Value, error) {
	if operand.Null {
		if len(rows) == 0 {
			return types.NewBoolean(s.Negated), nil
		}
		return types.NewNull(types.TypeBoolean), nil
	}
	sawNull := false
	for _, r := range rows {
		if len(r) != 1 {
			return types.Value{}, errorx.Parsef("IN subquery produced %d columns", len(r))
		}
		if r[0].Null {
			sawNull = true
			continue
		}
		if types.Compare(operand, r[0]) == 0 {
			return types.NewBoolean(!s.Negated), nil
		}
	}
	if sawNull {
		return types.NewNull(types.TypeBoolean), nil
	}
	return types.NewBoolean(s.Negated), nil
}

func (s *Subquery) String() string {
	switch s.Kind {
	case SubqueryScalar:
		return "(subquery)"
	case SubqueryExists:
		if s.Negated {
			return "NOT EXISTS(subquery)"
		}
		return "EXISTS(subquery)"
	default:
		op := "IN"
		if s.Negated {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (subquery)", s.Operand, op)
	}
}
