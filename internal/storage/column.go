package storage

import (
	"github.com/google/btree"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// ColumnData is one column of a row group: an ordered chain of sealed
// segments indexed by start row, plus the transient tail still accepting
// appends. The segment tree keys segments by StartRow so a range scan seeks
// its first segment in O(log n).
type ColumnData struct {
	typ     types.LogicalType
	tree    *btree.BTreeG[*ColumnSegment]
	sealed  int // rows covered by sealed segments
	pending []types.Value
}

// NewColumnData creates an empty column.
func NewColumnData(t types.LogicalType) *ColumnData {
	return &ColumnData{
		typ: t,
		tree: btree.NewG[*ColumnSegment](8, func(a, b *ColumnSegment) bool {
			return a.StartRow < b.StartRow
		}),
	}
}

// Type returns the column's logical type.
func (c *ColumnData) Type() types.LogicalType { return c.typ }

// Rows returns the total row count, sealed plus pending.
func (c *ColumnData) Rows() int { return c.sealed + len(c.pending) }

// Append adds one value to the transient tail, sealing a segment when the
// tail reaches the per-segment row cap.
func (c *ColumnData) Append(v types.Value) error {
	if !v.Null && v.Type.ID != c.typ.ID {
		return errorx.Typef("cannot append %s into %s column", v.Type, c.typ)
	}
	c.pending = append(c.pending, v)
	if len(c.pending) >= SegmentMaxRows {
		return c.sealPending()
	}
	return nil
}

// sealPending compresses the transient tail into a segment.
func (c *ColumnData) sealPending() error {
	if len(c.pending) == 0 {
		return nil
	}
	seg, err := CompressSegment(c.typ, c.sealed, c.pending)
	if err != nil {
		return err
	}
	c.tree.ReplaceOrInsert(seg)
	c.sealed += len(c.pending)
	c.pending = nil
	return nil
}

// Seal compresses any transient tail; called when the owning row group
// fills or the table checkpoints.
func (c *ColumnData) Seal() error {
	return c.sealPending()
}

// AttachSegment installs a loaded persistent segment; used when reading a
// database file.
func (c *ColumnData) AttachSegment(seg *ColumnSegment) {
	c.tree.ReplaceOrInsert(seg)
	if end := seg.StartRow + seg.RowCount; end > c.sealed {
		c.sealed = end
	}
}

// Segments returns the sealed segments in start-row order.
func (c *ColumnData) Segments() []*ColumnSegment {
	out := make([]*ColumnSegment, 0, c.tree.Len())
	c.tree.Ascend(func(seg *ColumnSegment) bool {
		out = append(out, seg)
		return true
	})
	return out
}

// segmentFor seeks the sealed segment containing row, or nil when row sits
// in the pending tail.
func (c *ColumnData) segmentFor(row int) *ColumnSegment {
	if row >= c.sealed {
		return nil
	}
	var found *ColumnSegment
	probe := &ColumnSegment{StartRow: row}
	c.tree.DescendLessOrEqual(probe, func(seg *ColumnSegment) bool {
		found = seg
		return false
	})
	return found
}

// ScanRange materializes rows [start, end) of the column, stitching across
// segment boundaries and the pending tail.
func (c *ColumnData) ScanRange(start, end int) (*vector.Vector, error) {
	if start < 0 || end > c.Rows() || start > end {
		return nil, errorx.Internalf("column scan range [%d,%d) outside %d rows", start, end, c.Rows())
	}
	// Fast path: the whole range inside a single sealed segment.
	if seg := c.segmentFor(start); seg != nil && end <= seg.StartRow+seg.RowCount {
		return seg.Scan(start-seg.StartRow, end-seg.StartRow)
	}
	out := vector.NewFlat(c.typ, end-start)
	pos := start
	for pos < end {
		if pos >= c.sealed {
			// Remaining rows live in the pending tail.
			for ; pos < end; pos++ {
				if err := out.Append(c.pending[pos-c.sealed]); err != nil {
					return nil, err
				}
			}
			break
		}
		seg := c.segmentFor(pos)
		if seg == nil {
			return nil, errorx.Internalf("no segment covers row %d", pos)
		}
		segEnd := seg.StartRow + seg.RowCount
		upto := end
		if segEnd < upto {
			upto = segEnd
		}
		part, err := seg.Scan(pos-seg.StartRow, upto-seg.StartRow)
		if err != nil {
			return nil, err
		}
		for i := 0; i < part.Len(); i++ {
			if err := out.Append(part.MustGet(i)); err != nil {
				return nil, err
			}
		}
		pos = upto
	}
	return out, nil
}

// Stats aggregates zone-map statistics across sealed segments and the
// pending tail.
func (c *ColumnData) Stats() SegmentStats {
	stats := SegmentStats{Min: types.NewNull(c.typ), Max: types.NewNull(c.typ)}
	c.tree.Ascend(func(seg *ColumnSegment) bool {
		stats.merge(seg.Stats)
		return true
	})
	if len(c.pending) > 0 {
		stats.merge(computeStats(c.typ, c.pending, 0))
	}
	return stats
}

// statsForRange aggregates stats of the segments overlapping [start, end),
// used for chunk-level pruning.
func (c *ColumnData) statsForRange(start, end int) SegmentStats {
	stats := SegmentStats{Min: types.NewNull(c.typ), Max: types.NewNull(c.typ)}
	c.tree.Ascend(func(seg *ColumnSegment) bool {
		if seg.StartRow >= end {
			return false
		}
		if seg.StartRow+seg.RowCount > start {
			stats.merge(seg.Stats)
		}
		return true
	})
	if end > c.sealed && len(c.pending) > 0 {
		stats.merge(computeStats(c.typ, c.pending, 0))
	}
	return stats
}
