package exec

import (
	"github.com/turingworks/prismdb/internal/expr"
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// Values emits its literal rows; the source behind INSERT ... VALUES and
// constant SELECTs.
type Values struct {
	plan *ValuesPlan
	pos  int
	ectx *expr.Context
}

// NewValues builds a literal-row source.
func NewValues(plan *ValuesPlan) *Values {
	return &Values{plan: plan}
}

// Open implements Operator.
func (v *Values) Open(qc *QueryContext) error {
	v.ectx = qc.NewExprContext()
	v.pos = 0
	return nil
}

// Next implements Operator.
func (v *Values) Next(qc *QueryContext) (*vector.DataChunk, error) {
	if v.pos >= len(v.plan.Rows) {
		return nil, nil
	}
	typs := ColumnTypes(v.plan.Cols)
	out := vector.NewChunk(typs)
	// Row expressions are constants or parameters; evaluate each against
	// a one-row dummy chunk and coerce to the declared column type.
	one := vector.NewChunk(nil)
	one.SetCardinality(1)
	for v.pos < len(v.plan.Rows) && out.Cardinality() < vector.Size {
		exprs := v.plan.Rows[v.pos]
		v.pos++
		row := make([]types.Value, len(exprs))
		for i, e := range exprs {
			vec, err := e.Eval(v.ectx, one)
			if err != nil {
				return nil, err
			}
			val, err := vec.Get(0)
			if err != nil {
				return nil, err
			}
			row[i], err = coerceValue(val, typs[i])
			if err != nil {
				return nil, err
			}
		}
		if err := out.AppendRow(row...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Close implements Operator.
func (v *Values) Close() error { return nil }
