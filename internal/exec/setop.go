package exec

import (
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// SetOp implements UNION [ALL], INTERSECT, and EXCEPT over two inputs of
// identical schemas, through the same hashed-row path the aggregate uses.
// UNION ALL streams; the distinct variants are pipeline breakers.
type SetOp struct {
	plan  *SetOpPlan
	left  Operator
	right Operator

	output    []*vector.DataChunk
	pos       int
	streaming bool
	leftDone  bool
}

// NewSetOp builds a set operation over its two children.
func NewSetOp(plan *SetOpPlan, left, right Operator) *SetOp {
	return &SetOp{plan: plan, left: left, right: right}
}

// hashedSide is one materialized input: distinct rows keyed by their
// rendered form, in first-observed order.
type hashedSide struct {
	rows  map[string][]types.Value
	order []string
}

func materializeSide(qc *QueryContext, op Operator) (*hashedSide, error) {
	side := &hashedSide{rows: make(map[string][]types.Value)}
	err := drain(qc, op, func(chunk *vector.DataChunk) error {
		if err := qc.Memory.Reserve(chunkBytes(chunk)); err != nil {
			return err
		}
		for r := 0; r < chunk.Cardinality(); r++ {
			row, err := chunk.Row(r)
			if err != nil {
				return err
			}
			key := groupKey(row)
			if _, ok := side.rows[key]; ok {
				continue
			}
			side.rows[key] = row
			side.order = append(side.order, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return side, nil
}

// Open implements Operator.
func (s *SetOp) Open(qc *QueryContext) error {
	if s.plan.Op == SetUnion && s.plan.All {
		// UNION ALL is pure concatenation; stream both children.
		s.streaming = true
		if err := s.left.Open(qc); err != nil {
			return err
		}
		return s.right.Open(qc)
	}
	left, err := materializeSide(qc, s.left)
	if err != nil {
		return err
	}
	right, err := materializeSide(qc, s.right)
	if err != nil {
		return err
	}
	typs := ColumnTypes(s.plan.Schema())
	out := vector.NewChunk(typs)
	emit := func(row []types.Value) error {
		if err := out.AppendRow(row...); err != nil {
			return err
		}
		if out.Cardinality() == vector.Size {
			s.output = append(s.output, out)
			out = vector.NewChunk(typs)
		}
		return nil
	}
	switch s.plan.Op {
	case SetUnion:
		for _, key := range left.order {
			if err := emit(left.rows[key]); err != nil {
				return err
			}
		}
		for _, key := range right.order {
			if _, ok := left.rows[key]; ok {
				continue
			}
			if err := emit(right.rows[key]); err != nil {
				return err
			}
		}
	case SetIntersect:
		for _, key := range left.order {
			if _, ok := right.rows[key]; ok {
				if err := emit(left.rows[key]); err != nil {
					return err
				}
			}
		}
	case SetExcept:
		for _, key := range left.order {
			if _, ok := right.rows[key]; !ok {
				if err := emit(left.rows[key]); err != nil {
					return err
				}
			}
		}
	}
	if out.Cardinality() > 0 {
		s.output = append(s.output, out)
	}
	s.pos = 0
	return nil
}

// Next implements Operator.
func (s *SetOp) Next(qc *QueryContext) (*vector.DataChunk, error) {
	if s.streaming {
		if !s.leftDone {
			chunk, err := s.left.Next(qc)
			if err != nil {
				return nil, err
			}
			if chunk != nil {
				return chunk, nil
			}
			s.leftDone = true
		}
		return s.right.Next(qc)
	}
	if s.pos >= len(s.output) {
		return nil, nil
	}
	chunk := s.output[s.pos]
	s.pos++
	return chunk, nil
}

// Close implements Operator.
func (s *SetOp) Close() error {
	lerr := s.left.Close()
	rerr := s.right.Close()
	if lerr != nil {
		return lerr
	}
	return rerr
}
