package exec

import (
	"go.uber.org/zap"

	"github.com/turingworks/prismdb/internal/expr"
	"github.com/turingworks/prismdb/internal/storage"
	"github.com/turingworks/prismdb/internal/telemetry"
	"github.com/turingworks/prismdb/internal/vector"
)

// DefaultMorselSize is the work-unit granularity handed to a worker:
// fifty vectors of rows.
const DefaultMorselSize = 50 * vector.Size

// morsel is one contiguous range of rows inside one row group.
type morsel struct {
	group *storage.RowGroup
	// start/end are group-relative row positions.
	start int
	end   int
}

// morselGenerator splits a table's row groups into morsel ranges, pruning
// whole groups through their zone maps first.
func morselGenerator(table *storage.DataTable, pushed []storage.Predicate, morselSize int) []morsel {
	if morselSize < vector.Size {
		morselSize = DefaultMorselSize
	}
	var morsels []morsel
	pruned := 0
	for _, rg := range table.RowGroups() {
		if len(pushed) > 0 && rg.Prunable(pushed) {
			pruned++
			continue
		}
		rows := rg.Rows()
		for start := 0; start < rows; start += morselSize {
			end := start + morselSize
			if end > rows {
				end = rows
			}
			morsels = append(morsels, morsel{group: rg, start: start, end: end})
		}
	}
	if pruned > 0 {
		telemetry.EmitSegmentsPruned("", int64(pruned))
		zap.S().Debugw("zone map pruned row groups", "pruned", pruned, "morsels", len(morsels))
	}
	return morsels
}

// TableScan reads column segments of its morsel ranges, decompresses them
// into vectors, and assembles data chunks of up to 2048 rows. Within one
// task, chunks come out in row-group, segment, row order; across parallel
// tasks there is no order.
type TableScan struct {
	plan    *TableScanPlan
	morsels []morsel
	// cursor state
	current  int
	rowInCur int
	emitted  int64
	ectx     *expr.Context
}

// NewTableScan builds a scan over the whole table.
func NewTableScan(plan *TableScanPlan) *TableScan {
	return &TableScan{plan: plan}
}

// newTableScanMorsels builds a scan restricted to the given morsels.
func newTableScanMorsels(plan *TableScanPlan, morsels []morsel) *TableScan {
	return &TableScan{plan: plan, morsels: morsels}
}

// Open implements Operator.
func (s *TableScan) Open(qc *QueryContext) error {
	if s.morsels == nil {
		s.morsels = morselGenerator(s.plan.Table, s.plan.Pushed, qc.MorselSize)
	}
	s.ectx = qc.NewExprContext()
	s.current = 0
	s.rowInCur = 0
	s.emitted = 0
	return nil
}

// Next implements Operator.
func (s *TableScan) Next(qc *QueryContext) (*vector.DataChunk, error) {
	for {
		if err := qc.CheckCancelled(); err != nil {
			return nil, err
		}
		if s.plan.Limit >= 0 && s.emitted >= s.plan.Limit {
			return nil, nil
		}
		if s.current >= len(s.morsels) {
			return nil, nil
		}
		m := s.morsels[s.current]
		start := m.start + s.rowInCur
		if start >= m.end {
			s.current++
			s.rowInCur = 0
			continue
		}
		end := start + vector.Size
		if end > m.end {
			end = m.end
		}
		s.rowInCur += end - start
		// Segment-level zone maps can prove a whole chunk range empty
		// without touching compressed data.
		if len(s.plan.Pushed) > 0 && m.group.PrunableRange(start, end, s.plan.Pushed) {
			continue
		}
		chunk, err := m.group.ScanChunk(start, end, s.plan.ColumnIDs)
		if err != nil {
			return nil, err
		}
		if s.plan.Residual != nil {
			chunk, err = applyFilter(s.ectx, s.plan.Residual, chunk)
			if err != nil {
				return nil, err
			}
			if chunk.Cardinality() == 0 {
				continue
			}
		}
		if s.plan.Limit >= 0 {
			remaining := s.plan.Limit - s.emitted
			if int64(chunk.Cardinality()) > remaining {
				sel := vector.NewSelectionVector(int(remaining))
				for i := int64(0); i < remaining; i++ {
					sel.Append(uint32(i))
				}
				chunk = chunk.Slice(sel)
			}
		}
		s.emitted += int64(chunk.Cardinality())
		return chunk, nil
	}
}

// Close implements Operator.
func (s *TableScan) Close() error { return nil }

// Tasks implements ParallelSource: one independent scan per morsel. A
// pushed limit keeps the scan serial so the cap stays exact.
func (s *TableScan) Tasks(qc *QueryContext) ([]Operator, error) {
	if s.plan.Limit >= 0 {
		return []Operator{NewTableScan(s.plan)}, nil
	}
	morsels := morselGenerator(s.plan.Table, s.plan.Pushed, qc.MorselSize)
	tasks := make([]Operator, len(morsels))
	for i, m := range morsels {
		tasks[i] = newTableScanMorsels(s.plan, []morsel{m})
	}
	return tasks, nil
}
