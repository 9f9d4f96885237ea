package exec

import (
	"github.com/turingworks/prismdb/internal/vector"
)

// Limit passes rows through until the cap is reached, trimming the final
// chunk with a selection vector, then signals end-of-stream. Offset rows
// are skipped first.
type Limit struct {
	plan    *LimitPlan
	child   Operator
	skipped int64
	emitted int64
	done    bool
}

// NewLimit builds a limit over child.
func NewLimit(plan *LimitPlan, child Operator) *Limit {
	return &Limit{plan: plan, child: child}
}

// Open implements Operator.
func (l *Limit) Open(qc *QueryContext) error {
	l.skipped = 0
	l.emitted = 0
	l.done = false
	return l.child.Open(qc)
}

// Next implements Operator.
func (l *Limit) Next(qc *QueryContext) (*vector.DataChunk, error) {
	if l.done {
		return nil, nil
	}
	for {
		chunk, err := l.child.Next(qc)
		if err != nil || chunk == nil {
			return nil, err
		}
		n := int64(chunk.Cardinality())
		if n == 0 {
			return chunk, nil
		}
		// Consume the offset.
		if l.skipped < l.plan.Offset {
			toSkip := l.plan.Offset - l.skipped
			if n <= toSkip {
				l.skipped += n
				continue
			}
			sel := vector.NewSelectionVector(int(n - toSkip))
			for i := toSkip; i < n; i++ {
				sel.Append(uint32(i))
			}
			l.skipped = l.plan.Offset
			chunk = chunk.Slice(sel)
			n = int64(chunk.Cardinality())
		}
		remaining := l.plan.Limit - l.emitted
		if remaining <= 0 {
			l.done = true
			return nil, nil
		}
		if n > remaining {
			sel := vector.NewSelectionVector(int(remaining))
			for i := int64(0); i < remaining; i++ {
				sel.Append(uint32(i))
			}
			chunk = chunk.Slice(sel)
			n = remaining
		}
		l.emitted += n
		if l.emitted >= l.plan.Limit {
			l.done = true
		}
		return chunk, nil
	}
}

// Close implements Operator.
func (l *Limit) Close() error { return l.child.Close() }
