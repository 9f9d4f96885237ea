// Package aggregate implements the mergeable accumulators behind GROUP BY
// and window aggregation. Every state supports update, merge, and finalize;
// merge is associative and commutative for all order-insensitive functions,
// which is what makes thread-local pre-aggregation correct.
package aggregate

import (
	"strings"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
)

// State is one group's accumulator for one aggregate function. A state is
// mutated by exactly one goroutine at a time: its owning worker during
// pre-aggregation, the merge driver afterwards.
type State interface {
	Update(args []types.Value) error
	Merge(other State) error
	Finalize() types.Value
}

// Function describes one aggregate: result typing and state construction.
type Function struct {
	Name string
	// ArgCount is the expected argument count; -1 accepts any.
	ArgCount int
	// ReturnType resolves the result type from the argument types.
	ReturnType func(args []types.LogicalType) (types.LogicalType, error)
	// NewState builds a fresh accumulator for one group.
	NewState func(args []types.LogicalType) State
	// OrderSensitive marks aggregates whose merge result depends on merge
	// order (string_agg, first, last); their cross-thread output is
	// implementation-defined.
	OrderSensitive bool
}

var registry = map[string]*Function{}

func register(fn *Function) {
	registry[fn.Name] = fn
}

// Lookup resolves an aggregate function by name.
func Lookup(name string) (*Function, error) {
	fn, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, errorx.Catalogf("unknown aggregate function %s", name)
	}
	return fn, nil
}

// sumReturnType widens integer sums to BIGINT and keeps floats floating.
func sumReturnType(args []types.LogicalType) (types.LogicalType, error) {
	if len(args) != 1 {
		return types.TypeInvalid, errorx.Typef("sum takes one argument")
	}
	t := args[0]
	switch {
	case t.IsInteger():
		return types.TypeBigInt, nil
	case t.ID == types.Float || t.ID == types.Double:
		return types.TypeDouble, nil
	case t.ID == types.Decimal:
		return t, nil
	}
	return types.TypeInvalid, errorx.Typef("cannot sum %s", t)
}

func doubleReturn(args []types.LogicalType) (types.LogicalType, error) {
	return types.TypeDouble, nil
}

func bigintReturn(args []types.LogicalType) (types.LogicalType, error) {
	return types.TypeBigInt, nil
}

func firstArgReturn(args []types.LogicalType) (types.LogicalType, error) {
	if len(args) == 0 {
		return types.TypeInvalid, errorx.Typef("aggregate requires an argument")
	}
	return args[0], nil
}

// DistinctState buffers the distinct argument tuples and replays them into
// a fresh inner accumulator at finalize time. Buffering (rather than
// feeding the inner state eagerly) keeps merge exact: two workers that saw
// the same value union to a single occurrence.
type DistinctState struct {
	newInner func() State
	seen     map[string][]types.Value
}

// NewDistinct wraps an accumulator factory with DISTINCT semantics.
func NewDistinct(newInner func() State) *DistinctState {
	return &DistinctState{newInner: newInner, seen: make(map[string][]types.Value)}
}

// Update implements State.
func (s *DistinctState) Update(args []types.Value) error {
	key := distinctKey(args)
	if _, ok := s.seen[key]; ok {
		return nil
	}
	s.seen[key] = append([]types.Value(nil), args...)
	return nil
}

// Merge implements State by set union.
func (s *DistinctState) Merge(other State) error {
	o, ok := other.(*DistinctState)
	if !ok {
		return errorx.Internalf("merge of distinct state with %T", other)
	}
	for key, args := range o.seen {
		if _, dup := s.seen[key]; dup {
			continue
		}
		s.seen[key] = args
	}
	return nil
}

// Finalize implements State.
func (s *DistinctState) Finalize() types.Value {
	inner := s.newInner()
	for _, args := range s.seen {
		// The replayed tuples were accepted by Update already.
		_ = inner.Update(args)
	}
	return inner.Finalize()
}

func distinctKey(args []types.Value) string {
	var b strings.Builder
	for i, a := range args {
		if i > 0 {
			b.WriteByte(0)
		}
		if a.Null {
			b.WriteString("\x00N")
			continue
		}
		b.WriteString(a.String())
	}
	return b.String()
}
