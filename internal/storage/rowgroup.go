package storage

import (
	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// RowGroupSize is the fixed horizontal partition size: 60 vectors of 2048.
const RowGroupSize = 60 * vector.Size

// RowGroup is a horizontal partition of a table with exactly one column
// data chain per column. Its aggregated statistics serve as the zone map
// for row-group pruning.
type RowGroup struct {
	// Start is the table-wide row id of the group's first row.
	Start   int64
	columns []*ColumnData
	count   int
}

// NewRowGroup creates an empty row group for the given column types.
func NewRowGroup(start int64, typs []types.LogicalType) *RowGroup {
	cols := make([]*ColumnData, len(typs))
	for i, t := range typs {
		cols[i] = NewColumnData(t)
	}
	return &RowGroup{Start: start, columns: cols}
}

// Rows returns the number of rows in the group.
func (rg *RowGroup) Rows() int { return rg.count }

// Full reports whether the group has reached RowGroupSize.
func (rg *RowGroup) Full() bool { return rg.count >= RowGroupSize }

// Column returns the column chain at index i.
func (rg *RowGroup) Column(i int) *ColumnData { return rg.columns[i] }

// ColumnCount returns the number of columns.
func (rg *RowGroup) ColumnCount() int { return len(rg.columns) }

// AppendRow appends one row across all columns. Fails once the group is
// full; the caller rolls over to a fresh group.
func (rg *RowGroup) AppendRow(vals []types.Value) error {
	if rg.Full() {
		return errorx.Internalf("append into full row group")
	}
	if len(vals) != len(rg.columns) {
		return errorx.Internalf("row width %d does not match %d columns", len(vals), len(rg.columns))
	}
	for i, v := range vals {
		if err := rg.columns[i].Append(v); err != nil {
			return err
		}
	}
	rg.count++
	return nil
}

// Seal compresses the transient tails of all columns.
func (rg *RowGroup) Seal() error {
	for _, col := range rg.columns {
		if err := col.Seal(); err != nil {
			return err
		}
	}
	return nil
}

// Prunable reports whether the pushed predicates prove the whole group
// empty for the filter, via the group-level zone map.
func (rg *RowGroup) Prunable(preds []Predicate) bool {
	for _, p := range preds {
		if p.Column >= len(rg.columns) {
			continue
		}
		if !rg.columns[p.Column].Stats().Feasible(p.Op, p.Value) {
			return true
		}
	}
	return false
}

// PrunableRange reports whether the predicates prove rows [start, end) of
// the group empty, via the per-segment zone maps of the filter columns.
func (rg *RowGroup) PrunableRange(start, end int, preds []Predicate) bool {
	for _, p := range preds {
		if p.Column >= len(rg.columns) {
			continue
		}
		if !rg.columns[p.Column].statsForRange(start, end).Feasible(p.Op, p.Value) {
			return true
		}
	}
	return false
}

// ScanChunk materializes rows [start, end) of the named columns into a
// DataChunk. The range must stay within one vector's worth of rows.
func (rg *RowGroup) ScanChunk(start, end int, columnIDs []int) (*vector.DataChunk, error) {
	if end-start > vector.Size {
		return nil, errorx.Internalf("scan chunk of %d rows exceeds vector size", end-start)
	}
	cols := make([]*vector.Vector, len(columnIDs))
	for i, id := range columnIDs {
		if id < 0 || id >= len(rg.columns) {
			return nil, errorx.Internalf("scan of unknown column %d", id)
		}
		v, err := rg.columns[id].ScanRange(start, end)
		if err != nil {
			return nil, err
		}
		cols[i] = v
	}
	return vector.ChunkFromVectors(cols...), nil
}
