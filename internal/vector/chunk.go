package vector

import (
	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
)

// DataChunk is an ordered set of parallel Vectors of identical length; the
// unit of data flow between operators. Cardinality never exceeds Size.
type DataChunk struct {
	cols []*Vector
	card int
}

// NewChunk allocates an empty chunk with flat vectors of the given types.
func NewChunk(typs []types.LogicalType) *DataChunk {
	cols := make([]*Vector, len(typs))
	for i, t := range typs {
		cols[i] = NewFlat(t, Size)
	}
	return &DataChunk{cols: cols}
}

// ChunkFromVectors wraps existing vectors. All vectors must share a length.
func ChunkFromVectors(cols ...*Vector) *DataChunk {
	card := 0
	if len(cols) > 0 {
		card = cols[0].Len()
	}
	return &DataChunk{cols: cols, card: card}
}

// ColumnCount returns the number of columns.
func (c *DataChunk) ColumnCount() int { return len(c.cols) }

// Column returns column i.
func (c *DataChunk) Column(i int) *Vector { return c.cols[i] }

// Columns returns all column vectors.
func (c *DataChunk) Columns() []*Vector { return c.cols }

// Cardinality returns the row count.
func (c *DataChunk) Cardinality() int { return c.card }

// SetCardinality overrides the row count after direct vector writes.
func (c *DataChunk) SetCardinality(n int) { c.card = n }

// Types returns the logical types of all columns.
func (c *DataChunk) Types() []types.LogicalType {
	typs := make([]types.LogicalType, len(c.cols))
	for i, col := range c.cols {
		typs[i] = col.Type()
	}
	return typs
}

// AppendRow appends one row of values across all columns.
func (c *DataChunk) AppendRow(vals ...types.Value) error {
	if len(vals) != len(c.cols) {
		return errorx.Internalf("row width %d does not match chunk width %d", len(vals), len(c.cols))
	}
	if c.card >= Size {
		return errorx.Internalf("chunk overflow: capacity %d", Size)
	}
	for i, val := range vals {
		if err := c.cols[i].Append(val); err != nil {
			return err
		}
	}
	c.card++
	return nil
}

// Row materializes row i as values, for boundaries and tests only.
func (c *DataChunk) Row(i int) ([]types.Value, error) {
	if i < 0 || i >= c.card {
		return nil, errorx.Internalf("chunk row %d out of bounds (cardinality %d)", i, c.card)
	}
	row := make([]types.Value, len(c.cols))
	for j, col := range c.cols {
		row[j] = col.MustGet(i)
	}
	return row, nil
}

// Slice produces a zero-copy view of the chunk restricted to sel: vectors
// share backing storage and carry the selection.
func (c *DataChunk) Slice(sel *SelectionVector) *DataChunk {
	cols := make([]*Vector, len(c.cols))
	for i, col := range c.cols {
		cols[i] = col.Slice(sel)
	}
	return &DataChunk{cols: cols, card: sel.Len()}
}

// Materialize compacts every column into dense flat storage. Required
// before a chunk crosses into cross-chunk state or would be sliced twice.
func (c *DataChunk) Materialize() *DataChunk {
	cols := make([]*Vector, len(c.cols))
	for i, col := range c.cols {
		cols[i] = col.Materialize()
	}
	return &DataChunk{cols: cols, card: c.card}
}

// Verify checks the chunk invariants: cardinality within Size and uniform
// column lengths. Returns an internal error on violation.
func (c *DataChunk) Verify() error {
	if c.card > Size {
		return errorx.Internalf("chunk cardinality %d exceeds %d", c.card, Size)
	}
	for i, col := range c.cols {
		if col.Len() != c.card {
			return errorx.Internalf("column %d length %d does not match cardinality %d", i, col.Len(), c.card)
		}
	}
	return nil
}
