package exec

import (
	"go.uber.org/zap"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/expr"
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// HashJoin joins probe-side chunks against a frozen build-side hash table.
// The build phase is a pipeline breaker: it consumes the entire build child
// (in parallel when the child splits into morsels) before the first probe.
// Output order is unspecified.
type HashJoin struct {
	plan  *HashJoinPlan
	probe Operator
	build Operator

	table     *joinTable
	built     bool
	ectx      *expr.Context
	keyVals   []types.Value
	out       *vector.DataChunk
	finalScan bool
	finalRows []*buildRow
	finalPos  int
	probeDone bool
}

// NewHashJoin builds a hash join operator.
func NewHashJoin(plan *HashJoinPlan, probe, build Operator) *HashJoin {
	return &HashJoin{plan: plan, probe: probe, build: build}
}

// Open implements Operator; it runs the entire build phase.
func (j *HashJoin) Open(qc *QueryContext) error {
	j.ectx = qc.NewExprContext()
	j.table = newJoinTable(qc.Threads)
	buildSchema := j.plan.Build.Schema()
	// Each worker evaluates keys with a private context and appends into
	// its own partition buffers; no cross-thread synchronization.
	ectxs := make([]*expr.Context, qc.Threads)
	for i := range ectxs {
		ectxs[i] = qc.NewExprContext()
	}
	rowWidth := int64(len(buildSchema)*16 + 48)
	err := collect(qc, j.build, func(worker int, chunk *vector.DataChunk) error {
		keys := make([]*vector.Vector, len(j.plan.BuildKeys))
		for i, k := range j.plan.BuildKeys {
			v, err := k.Eval(ectxs[worker], chunk)
			if err != nil {
				return err
			}
			keys[i] = v
		}
		if err := qc.Memory.Reserve(rowWidth * int64(chunk.Cardinality())); err != nil {
			return err
		}
		keyBuf := make([]types.Value, 0, len(keys))
		for row := 0; row < chunk.Cardinality(); row++ {
			keyBuf = rowKeyValues(keys, row, keyBuf)
			// NULL keys never match; they only matter for RIGHT/FULL
			// where unmatched rows surface anyway.
			tuple := make([]types.Value, len(keyBuf))
			copy(tuple, keyBuf)
			payload, err := chunk.Row(row)
			if err != nil {
				return err
			}
			if err := j.table.add(worker, buildRow{
				hash:    hashValues(tuple),
				keys:    tuple,
				payload: payload,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	j.table.freeze()
	j.built = true
	zap.S().Debugw("hash join build complete", "rows", j.table.size(), "type", j.plan.Type.String())
	return j.probe.Open(qc)
}

// Next implements Operator.
func (j *HashJoin) Next(qc *QueryContext) (*vector.DataChunk, error) {
	if !j.built {
		return nil, errorx.Internalf("hash join probed before build")
	}
	outTypes := ColumnTypes(j.plan.Cols)
	for {
		if err := qc.CheckCancelled(); err != nil {
			return nil, err
		}
		if j.probeDone {
			return j.nextFinal(outTypes)
		}
		chunk, err := j.probe.Next(qc)
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			j.probeDone = true
			if j.plan.Type == JoinRight || j.plan.Type == JoinFull {
				j.prepareFinalScan()
				continue
			}
			return nil, nil
		}
		if chunk.Cardinality() == 0 {
			continue
		}
		out, err := j.probeChunk(qc, chunk, outTypes)
		if err != nil {
			return nil, err
		}
		if out.Cardinality() == 0 {
			continue
		}
		return out, nil
	}
}

func (j *HashJoin) probeChunk(qc *QueryContext, chunk *vector.DataChunk, outTypes []types.LogicalType) (*vector.DataChunk, error) {
	keys := make([]*vector.Vector, len(j.plan.ProbeKeys))
	for i, k := range j.plan.ProbeKeys {
		v, err := k.Eval(j.ectx, chunk)
		if err != nil {
			return nil, err
		}
		keys[i] = v
	}
	out := vector.NewChunk(outTypes)
	buildWidth := len(j.plan.Build.Schema())
	keyBuf := make([]types.Value, 0, len(keys))
	for row := 0; row < chunk.Cardinality(); row++ {
		keyBuf = rowKeyValues(keys, row, keyBuf)
		matched := false
		hasNullKey := false
		for _, k := range keyBuf {
			if k.Null {
				hasNullKey = true
			}
		}
		var joinErr error
		if !hasNullKey {
			h := hashValues(keyBuf)
			j.table.probe(h, keyBuf, func(b *buildRow) {
				if joinErr != nil {
					return
				}
				matched = true
				b.matched = true
				switch j.plan.Type {
				case JoinSemi:
					// First match emits; later matches are no-ops, the
					// matched flag above already latched.
				case JoinAnti:
					// Matches suppress the row entirely.
				default:
					probeVals, err := chunk.Row(row)
					if err != nil {
						joinErr = err
						return
					}
					joinErr = out.AppendRow(append(probeVals, b.payload...)...)
				}
			})
		}
		if joinErr != nil {
			return nil, joinErr
		}
		switch j.plan.Type {
		case JoinSemi:
			if matched {
				probeVals, err := chunk.Row(row)
				if err != nil {
					return nil, err
				}
				if err := out.AppendRow(probeVals...); err != nil {
					return nil, err
				}
			}
		case JoinAnti:
			if !matched {
				probeVals, err := chunk.Row(row)
				if err != nil {
					return nil, err
				}
				if err := out.AppendRow(probeVals...); err != nil {
					return nil, err
				}
			}
		case JoinLeft, JoinFull:
			if !matched {
				probeVals, err := chunk.Row(row)
				if err != nil {
					return nil, err
				}
				for i := 0; i < buildWidth; i++ {
					probeVals = append(probeVals, types.NewNull(outTypes[len(chunk.Types())+i]))
				}
				if err := out.AppendRow(probeVals...); err != nil {
					return nil, err
				}
			}
		}
	}
	return out, nil
}

// prepareFinalScan snapshots unmatched build rows for RIGHT/FULL output.
func (j *HashJoin) prepareFinalScan() {
	j.finalScan = true
	_ = j.table.eachRow(func(b *buildRow) error {
		if !b.matched {
			j.finalRows = append(j.finalRows, b)
		}
		return nil
	})
}

// nextFinal emits build rows that never matched, probe side nulled.
func (j *HashJoin) nextFinal(outTypes []types.LogicalType) (*vector.DataChunk, error) {
	if !j.finalScan || j.finalPos >= len(j.finalRows) {
		return nil, nil
	}
	out := vector.NewChunk(outTypes)
	probeWidth := len(j.plan.Probe.Schema())
	for j.finalPos < len(j.finalRows) && out.Cardinality() < vector.Size {
		b := j.finalRows[j.finalPos]
		j.finalPos++
		row := make([]types.Value, 0, len(outTypes))
		for i := 0; i < probeWidth; i++ {
			row = append(row, types.NewNull(outTypes[i]))
		}
		row = append(row, b.payload...)
		if err := out.AppendRow(row...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Close implements Operator.
func (j *HashJoin) Close() error {
	perr := j.probe.Close()
	berr := j.build.Close()
	if perr != nil {
		return perr
	}
	return berr
}
