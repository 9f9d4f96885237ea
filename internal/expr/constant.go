package expr

import (
	"fmt"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// Constant is a literal value, evaluated as a constant vector.
type Constant struct {
	Value types.Value
}

// NewConstant builds a literal expression.
func NewConstant(v types.Value) *Constant {
	return &Constant{Value: v}
}

// ReturnType implements Expression.
func (c *Constant) ReturnType() types.LogicalType { return c.Value.Type }

// Eval implements Expression.
func (c *Constant) Eval(_ *Context, chunk *vector.DataChunk) (*vector.Vector, error) {
	return vector.NewConstant(c.Value, chunk.Cardinality()), nil
}

func (c *Constant) String() string { return c.Value.String() }

// ColumnRef resolves to the indexed column of the input chunk. Indices are
// bound positions, never names.
type ColumnRef struct {
	Index int
	Type  types.LogicalType
	Name  string
}

// NewColumnRef builds a bound column reference.
func NewColumnRef(index int, t types.LogicalType, name string) *ColumnRef {
	return &ColumnRef{Index: index, Type: t, Name: name}
}

// ReturnType implements Expression.
func (c *ColumnRef) ReturnType() types.LogicalType { return c.Type }

// Eval implements Expression.
func (c *ColumnRef) Eval(_ *Context, chunk *vector.DataChunk) (*vector.Vector, error) {
	if c.Index < 0 || c.Index >= chunk.ColumnCount() {
		return nil, errorx.Internalf("column reference #%d outside chunk of %d columns", c.Index, chunk.ColumnCount())
	}
	return chunk.Column(c.Index), nil
}

func (c *ColumnRef) String() string {
	if c.Name != "" {
		return c.Name
	}
	return fmt.Sprintf("#%d", c.Index)
}

// ParameterRef is a prepared-statement placeholder, resolved from the
// evaluation context at execution time.
type ParameterRef struct {
	Ordinal int // zero-based
	Type    types.LogicalType
}

// ReturnType implements Expression.
func (p *ParameterRef) ReturnType() types.LogicalType { return p.Type }

// Eval implements Expression.
func (p *ParameterRef) Eval(ctx *Context, chunk *vector.DataChunk) (*vector.Vector, error) {
	if ctx == nil || p.Ordinal >= len(ctx.Params) {
		return nil, errorx.Parsef("parameter $%d not bound", p.Ordinal+1)
	}
	return vector.NewConstant(ctx.Params[p.Ordinal], chunk.Cardinality()), nil
}

func (p *ParameterRef) String() string { return fmt.Sprintf("$%d", p.Ordinal+1) }
