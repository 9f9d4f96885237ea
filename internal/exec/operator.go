package exec

import (
	"errors"

	"github.com/turingworks/prismdb/internal/expr"
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// Operator is a pull-based producer of data chunks. Next returns nil when
// the stream is exhausted; empty (zero-cardinality) chunks are legal and
// downstream operators tolerate them.
type Operator interface {
	Open(qc *QueryContext) error
	Next(qc *QueryContext) (*vector.DataChunk, error)
	Close() error
}

// ParallelSource is implemented by operators whose work splits into
// independent morsel tasks. Pipeline breakers consume a parallel source
// with one task operator per morsel across the worker pool.
type ParallelSource interface {
	Operator
	// Tasks returns independent single-morsel operators covering the same
	// rows as the source. Output order across tasks is unspecified.
	Tasks(qc *QueryContext) ([]Operator, error)
}

// drain pulls an operator to exhaustion, passing every chunk to sink.
// Cancellation is checked once per chunk, which bounds the check interval
// at one vector of rows.
func drain(qc *QueryContext, op Operator, sink func(*vector.DataChunk) error) error {
	if err := op.Open(qc); err != nil {
		return err
	}
	defer op.Close()
	for {
		if err := qc.CheckCancelled(); err != nil {
			return err
		}
		chunk, err := op.Next(qc)
		if err != nil {
			return err
		}
		if chunk == nil {
			return nil
		}
		if chunk.Cardinality() == 0 {
			continue
		}
		if err := sink(chunk); err != nil {
			return err
		}
	}
}

// errNotParallel is the sentinel a conditionally parallel operator returns
// from Tasks when its child cannot split.
var errNotParallel = errors.New("operator does not split into morsel tasks")

// collect drives a child across the worker pool when it splits into morsel
// tasks, serially otherwise. The sink receives the worker id so callers
// can keep thread-local state; it is never called concurrently for the
// same worker id.
func collect(qc *QueryContext, child Operator, sink func(worker int, chunk *vector.DataChunk) error) error {
	src, ok := child.(ParallelSource)
	if !ok || qc.Threads <= 1 {
		return drain(qc, child, func(chunk *vector.DataChunk) error {
			return sink(0, chunk)
		})
	}
	tasks, err := src.Tasks(qc)
	if err == errNotParallel {
		return drain(qc, child, func(chunk *vector.DataChunk) error {
			return sink(0, chunk)
		})
	}
	if err != nil {
		return err
	}
	if len(tasks) <= 1 {
		for _, t := range tasks {
			if err := drain(qc, t, func(chunk *vector.DataChunk) error {
				return sink(0, chunk)
			}); err != nil {
				return err
			}
		}
		return nil
	}
	sched := newScheduler(qc.Threads)
	for _, t := range tasks {
		t := t
		sched.submit(func(worker int) error {
			return drain(qc, t, func(chunk *vector.DataChunk) error {
				return sink(worker, chunk)
			})
		})
	}
	if err := sched.run(qc); err != nil {
		return qc.FirstError(err)
	}
	return nil
}

// coerceValue casts a value to the declared output type when the producer
// widened it (a sum that outgrew its accumulator, an interpolated
// percentile); identical types pass through untouched.
func coerceValue(v types.Value, t types.LogicalType) (types.Value, error) {
	if v.Null {
		return types.NewNull(t), nil
	}
	if v.Type.ID == t.ID {
		return v, nil
	}
	return expr.CastValue(v, t)
}
