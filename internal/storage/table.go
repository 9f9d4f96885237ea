package storage

import (
	"sync"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// DataTable owns the row groups of one table. New rows append into the last
// row group until it fills, then a fresh group starts. Scans take a
// read-locked snapshot of the group list; segments are immutable once
// sealed, so scans never race appends within a group that is still filling
// (the append path only grows the pending tails past the snapshot count).
type DataTable struct {
	mu        sync.RWMutex
	typs      []types.LogicalType
	rowGroups []*RowGroup
	rowCount  int64
}

// NewDataTable creates an empty table with the given column types.
func NewDataTable(typs []types.LogicalType) *DataTable {
	return &DataTable{typs: typs}
}

// Types returns the column types.
func (t *DataTable) Types() []types.LogicalType { return t.typs }

// Rows returns the total row count.
func (t *DataTable) Rows() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rowCount
}

// AppendRow appends one row, rolling over to a new row group at the
// boundary.
func (t *DataTable) AppendRow(vals []types.Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.appendRowLocked(vals)
}

func (t *DataTable) appendRowLocked(vals []types.Value) error {
	if len(vals) != len(t.typs) {
		return errorx.Internalf("row width %d does not match table width %d", len(vals), len(t.typs))
	}
	last := t.lastGroupLocked()
	if last == nil || last.Full() {
		if last != nil {
			if err := last.Seal(); err != nil {
				return err
			}
		}
		last = NewRowGroup(t.rowCount, t.typs)
		t.rowGroups = append(t.rowGroups, last)
	}
	if err := last.AppendRow(vals); err != nil {
		return err
	}
	t.rowCount++
	return nil
}

// AppendChunk appends all rows of a chunk.
func (t *DataTable) AppendChunk(chunk *vector.DataChunk) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 0; i < chunk.Cardinality(); i++ {
		row, err := chunk.Row(i)
		if err != nil {
			return err
		}
		if err := t.appendRowLocked(row); err != nil {
			return err
		}
	}
	return nil
}

func (t *DataTable) lastGroupLocked() *RowGroup {
	if len(t.rowGroups) == 0 {
		return nil
	}
	return t.rowGroups[len(t.rowGroups)-1]
}

// RowGroups returns a snapshot of the current group list.
func (t *DataTable) RowGroups() []*RowGroup {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*RowGroup, len(t.rowGroups))
	copy(out, t.rowGroups)
	return out
}

// Seal compresses all transient tails, e.g. before a checkpoint.
func (t *DataTable) Seal() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rg := range t.rowGroups {
		if err := rg.Seal(); err != nil {
			return err
		}
	}
	return nil
}

// AttachRowGroup installs a loaded row group; used when reading a database
// file.
func (t *DataTable) AttachRowGroup(rg *RowGroup) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rowGroups = append(t.rowGroups, rg)
	t.rowCount += int64(rg.Rows())
}
