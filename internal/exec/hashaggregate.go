package exec

import (
	"go.uber.org/zap"

	"github.com/turingworks/prismdb/internal/aggregate"
	"github.com/turingworks/prismdb/internal/expr"
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// aggGroup is one group's key values plus one state per aggregate.
type aggGroup struct {
	keys   []types.Value
	states []aggregate.State
}

// HashAggregate folds input into per-group aggregate states in two phases:
// thread-local pre-aggregation over morsels, then a single-driver merge of
// the thread-local maps. Output order is unspecified.
type HashAggregate struct {
	plan   *HashAggregatePlan
	child  Operator
	groups []*aggGroup
	pos    int
	done   bool
}

// NewHashAggregate builds a hash aggregate over child.
func NewHashAggregate(plan *HashAggregatePlan, child Operator) *HashAggregate {
	return &HashAggregate{plan: plan, child: child}
}

// Open implements Operator; it runs both aggregation phases.
func (a *HashAggregate) Open(qc *QueryContext) error {
	ectxs := make([]*expr.Context, qc.Threads)
	for i := range ectxs {
		ectxs[i] = qc.NewExprContext()
	}
	// Phase 1: thread-local maps, no cross-thread synchronization.
	locals := make([]map[string]*aggGroup, qc.Threads)
	for i := range locals {
		locals[i] = make(map[string]*aggGroup)
	}
	err := collect(qc, a.child, func(worker int, chunk *vector.DataChunk) error {
		return a.updateLocal(qc, ectxs[worker], locals[worker], chunk)
	})
	if err != nil {
		return err
	}
	// Phase 2: single-driver merge of matching groups.
	merged := make(map[string]*aggGroup)
	order := make([]string, 0)
	for _, local := range locals {
		for key, grp := range local {
			if have, ok := merged[key]; ok {
				for i, st := range have.states {
					if err := st.Merge(grp.states[i]); err != nil {
						return err
					}
				}
				continue
			}
			merged[key] = grp
			order = append(order, key)
		}
	}
	// Grouping with zero rows and no GROUP BY still yields one row of
	// identity values.
	if len(merged) == 0 && len(a.plan.GroupBy) == 0 {
		grp := &aggGroup{states: make([]aggregate.State, len(a.plan.Aggregates))}
		for i, agg := range a.plan.Aggregates {
			grp.states[i] = agg.NewState()
		}
		merged["\x00empty"] = grp
		order = append(order, "\x00empty")
	}
	a.groups = make([]*aggGroup, 0, len(order))
	for _, key := range order {
		a.groups = append(a.groups, merged[key])
	}
	zap.S().Debugw("hash aggregate merged", "groups", len(a.groups), "workers", qc.Threads)
	return nil
}

func (a *HashAggregate) updateLocal(qc *QueryContext, ectx *expr.Context, local map[string]*aggGroup, chunk *vector.DataChunk) error {
	n := chunk.Cardinality()
	groupVecs := make([]*vector.Vector, len(a.plan.GroupBy))
	for i, g := range a.plan.GroupBy {
		v, err := g.Eval(ectx, chunk)
		if err != nil {
			return err
		}
		groupVecs[i] = v
	}
	argVecs := make([][]*vector.Vector, len(a.plan.Aggregates))
	for i, agg := range a.plan.Aggregates {
		argVecs[i] = make([]*vector.Vector, len(agg.Args))
		for k, arg := range agg.Args {
			v, err := arg.Eval(ectx, chunk)
			if err != nil {
				return err
			}
			argVecs[i][k] = v
		}
	}
	keyBuf := make([]types.Value, 0, len(groupVecs))
	argBuf := make([]types.Value, 0, 4)
	const groupOverhead = 256
	for row := 0; row < n; row++ {
		keyBuf = rowKeyValues(groupVecs, row, keyBuf)
		key := groupKey(keyBuf)
		grp, ok := local[key]
		if !ok {
			if err := qc.Memory.Reserve(groupOverhead); err != nil {
				return err
			}
			keys := make([]types.Value, len(keyBuf))
			copy(keys, keyBuf)
			grp = &aggGroup{keys: keys, states: make([]aggregate.State, len(a.plan.Aggregates))}
			for i, agg := range a.plan.Aggregates {
				grp.states[i] = agg.NewState()
			}
			local[key] = grp
		}
		for i := range a.plan.Aggregates {
			argBuf = argBuf[:0]
			for _, v := range argVecs[i] {
				argBuf = append(argBuf, v.MustGet(row))
			}
			if err := grp.states[i].Update(argBuf); err != nil {
				return err
			}
		}
	}
	return nil
}

// Next implements Operator, emitting finalized groups in chunks.
func (a *HashAggregate) Next(qc *QueryContext) (*vector.DataChunk, error) {
	if a.done {
		return nil, nil
	}
	outTypes := ColumnTypes(a.plan.Cols)
	out := vector.NewChunk(outTypes)
	for a.pos < len(a.groups) && out.Cardinality() < vector.Size {
		if err := qc.CheckCancelled(); err != nil {
			return nil, err
		}
		grp := a.groups[a.pos]
		a.pos++
		row := make([]types.Value, 0, len(outTypes))
		row = append(row, grp.keys...)
		for i, st := range grp.states {
			v, err := coerceValue(st.Finalize(), outTypes[len(grp.keys)+i])
			if err != nil {
				return nil, err
			}
			row = append(row, v)
		}
		if err := out.AppendRow(row...); err != nil {
			return nil, err
		}
	}
	if a.pos >= len(a.groups) {
		a.done = true
	}
	if out.Cardinality() == 0 {
		return nil, nil
	}
	return out, nil
}

// Close implements Operator.
func (a *HashAggregate) Close() error { return a.child.Close() }
