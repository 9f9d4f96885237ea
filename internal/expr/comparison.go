package expr

import (
	"fmt"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// CompareOp enumerates comparison operators.
type CompareOp uint8

const (
	CmpEqual CompareOp = iota
	CmpNotEqual
	CmpLess
	CmpLessEqual
	CmpGreater
	CmpGreaterEqual
	CmpIsNull
	CmpIsNotNull
)

func (op CompareOp) String() string {
	switch op {
	case CmpEqual:
		return "="
	case CmpNotEqual:
		return "!="
	case CmpLess:
		return "<"
	case CmpLessEqual:
		return "<="
	case CmpGreater:
		return ">"
	case CmpGreaterEqual:
		return ">="
	case CmpIsNull:
		return "IS NULL"
	default:
		return "IS NOT NULL"
	}
}

// Comparison compares two child expressions into a Boolean vector. For
// IS NULL / IS NOT NULL the right child is nil. Both sides are coerced to a
// common type at bind time, so evaluation compares one concrete type.
type Comparison struct {
	Op    CompareOp
	Left  Expression
	Right Expression
}

// NewComparison builds a comparison expression.
func NewComparison(op CompareOp, left, right Expression) *Comparison {
	return &Comparison{Op: op, Left: left, Right: right}
}

// ReturnType implements Expression.
func (c *Comparison) ReturnType() types.LogicalType { return types.TypeBoolean }

// Eval implements Expression.
func (c *Comparison) Eval(ctx *Context, chunk *vector.DataChunk) (*vector.Vector, error) {
	left, err := c.Left.Eval(ctx, chunk)
	if err != nil {
		return nil, err
	}
	n := chunk.Cardinality()
	out := vector.NewFlat(types.TypeBoolean, n)
	if c.Op == CmpIsNull || c.Op == CmpIsNotNull {
		for i := 0; i < n; i++ {
			isNull := left.IsNull(i)
			if err := out.Append(types.NewBoolean(isNull == (c.Op == CmpIsNull))); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	right, err := c.Right.Eval(ctx, chunk)
	if err != nil {
		return nil, err
	}
	if !left.Type().Equal(right.Type()) && left.Type().ID != right.Type().ID {
		return nil, errorx.Typef("cannot compare %s with %s", left.Type(), right.Type())
	}
	for i := 0; i < n; i++ {
		lv := left.MustGet(i)
		rv := right.MustGet(i)
		if lv.Null || rv.Null {
			// Comparison against NULL is NULL.
			if err := out.Append(types.NewNull(types.TypeBoolean)); err != nil {
				return nil, err
			}
			continue
		}
		cmp := types.Compare(lv, rv)
		var res bool
		switch c.Op {
		case CmpEqual:
			res = cmp == 0
		case CmpNotEqual:
			res = cmp != 0
		case CmpLess:
			res = cmp < 0
		case CmpLessEqual:
			res = cmp <= 0
		case CmpGreater:
			res = cmp > 0
		case CmpGreaterEqual:
			res = cmp >= 0
		}
		if err := out.Append(types.NewBoolean(res)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *Comparison) String() string {
	if c.Right == nil {
		return fmt.Sprintf("(%s %s)", c.Left, c.Op)
	}
	return fmt.Sprintf("(%s %s %s)", c.Left, c.Op, c.Right)
}

// Conjunction combines boolean children under AND/OR with SQL three-valued
// logic; Not negates. NULL AND FALSE is FALSE, NULL OR TRUE is TRUE,
// anything else involving NULL stays NULL.
type Conjunction struct {
	And      bool
	Children []Expression
}

// NewAnd builds an AND conjunction.
func NewAnd(children ...Expression) *Conjunction { return &Conjunction{And: true, Children: children} }

// NewOr builds an OR conjunction.
func NewOr(children ...Expression) *Conjunction { return &Conjunction{And: false, Children: children} }

// ReturnType implements Expression.
func (c *Conjunction) ReturnType() types.LogicalType { return types.TypeBoolean }

// Eval implements Expression.
func (c *Conjunction) Eval(ctx *Context, chunk *vector.DataChunk) (*vector.Vector, error) {
	n := chunk.Cardinality()
	// state per row: 0 false, 1 true, 2 null
	state := make([]uint8, n)
	if c.And {
		for i := range state {
			state[i] = 1
		}
	}
	for _, child := range c.Children {
		v, err := child.Eval(ctx, chunk)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			var cur uint8
			if v.IsNull(i) {
				cur = 2
			} else if v.MustGet(i).Bool() {
				cur = 1
			}
			if c.And {
				state[i] = and3(state[i], cur)
			} else {
				state[i] = or3(state[i], cur)
			}
		}
	}
	out := vector.NewFlat(types.TypeBoolean, n)
	for i := 0; i < n; i++ {
		var v types.Value
		switch state[i] {
		case 2:
			v = types.NewNull(types.TypeBoolean)
		default:
			v = types.NewBoolean(state[i] == 1)
		}
		if err := out.Append(v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func and3(a, b uint8) uint8 {
	if a == 0 || b == 0 {
		return 0
	}
	if a == 2 || b == 2 {
		return 2
	}
	return 1
}

func or3(a, b uint8) uint8 {
	if a == 1 || b == 1 {
		return 1
	}
	if a == 2 || b == 2 {
		return 2
	}
	return 0
}

func (c *Conjunction) String() string {
	sep := " OR "
	if c.And {
		sep = " AND "
	}
	s := "("
	for i, child := range c.Children {
		if i > 0 {
			s += sep
		}
		s += child.String()
	}
	return s + ")"
}

// Not negates a boolean child; NULL stays NULL.
type Not struct {
	Child Expression
}

// ReturnType implements Expression.
func (e *Not) ReturnType() types.LogicalType { return types.TypeBoolean }

// Eval implements Expression.
func (e *Not) Eval(ctx *Context, chunk *vector.DataChunk) (*vector.Vector, error) {
	v, err := e.Child.Eval(ctx, chunk)
	if err != nil {
		return nil, err
	}
	n := chunk.Cardinality()
	out := vector.NewFlat(types.TypeBoolean, n)
	for i := 0; i < n; i++ {
		if v.IsNull(i) {
			if err := out.Append(types.NewNull(types.TypeBoolean)); err != nil {
				return nil, err
			}
			continue
		}
		if err := out.Append(types.NewBoolean(!v.MustGet(i).Bool())); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *Not) String() string { return fmt.Sprintf("(NOT %s)", e.Child) }
