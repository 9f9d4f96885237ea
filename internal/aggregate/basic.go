package aggregate

import (
	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
)

// countState counts rows (count(*)) or non-null arguments (count(x)).
type countState struct {
	star  bool
	count int64
}

func (s *countState) Update(args []types.Value) error {
	if s.star || (len(args) > 0 && !args[0].Null) {
		s.count++
	}
	return nil
}

func (s *countState) Merge(other State) error {
	o, ok := other.(*countState)
	if !ok {
		return errorx.Internalf("merge of count state with %T", other)
	}
	s.count += o.count
	return nil
}

func (s *countState) Finalize() types.Value {
	return types.NewBigInt(s.count)
}

// sumState keeps a running sum. Integer sums accumulate in 64 bits and
// widen to 128 on overflow; the widened path stays exact under merge.
type sumState struct {
	typ     types.LogicalType
	seen    bool
	isFloat bool
	i64     int64
	wide    types.Hugeint
	widened bool
	f64     float64
}

func newSumState(t types.LogicalType) *sumState {
	return &sumState{
		typ:     t,
		isFloat: t.ID == types.Float || t.ID == types.Double,
	}
}

func (s *sumState) Update(args []types.Value) error {
	v := args[0]
	if v.Null {
		return nil
	}
	s.seen = true
	if s.isFloat {
		s.f64 += v.Float64()
		return nil
	}
	if !s.widened {
		sum := s.i64 + v.Int64()
		if (s.i64 > 0 && v.Int64() > 0 && sum < 0) || (s.i64 < 0 && v.Int64() < 0 && sum >= 0) {
			// Widen instead of failing; the declared result type still
			// bounds what finalize may return.
			s.wide = types.HugeintFromInt64(s.i64)
			s.widened = true
		} else {
			s.i64 = sum
			return nil
		}
	}
	w, overflow := s.wide.Add(types.HugeintFromInt64(v.Int64()))
	if overflow {
		return errorx.Arithmeticf("HUGEINT overflow in sum")
	}
	s.wide = w
	return nil
}

func (s *sumState) Merge(other State) error {
	o, ok := other.(*sumState)
	if !ok {
		return errorx.Internalf("merge of sum state with %T", other)
	}
	if !o.seen {
		return nil
	}
	if s.isFloat {
		s.seen = true
		s.f64 += o.f64
		return nil
	}
	if o.widened {
		if !s.widened {
			s.wide = types.HugeintFromInt64(s.i64)
			s.widened = true
		}
		w, overflow := s.wide.Add(o.wide)
		if overflow {
			return errorx.Arithmeticf("HUGEINT overflow in sum")
		}
		s.wide = w
		s.seen = true
		return nil
	}
	return s.withSeen(o.i64)
}

func (s *sumState) withSeen(v int64) error {
	s.seen = true
	return s.Update([]types.Value{types.NewBigInt(v)})
}

func (s *sumState) Finalize() types.Value {
	if !s.seen {
		if s.isFloat {
			return types.NewNull(types.TypeDouble)
		}
		if s.typ.ID == types.Decimal {
			return types.NewNull(s.typ)
		}
		return types.NewNull(types.TypeBigInt)
	}
	if s.isFloat {
		return types.NewDouble(s.f64)
	}
	if s.typ.ID == types.Decimal {
		return types.NewDecimal(s.i64, s.typ.Precision, s.typ.Scale)
	}
	if s.widened {
		return types.NewHugeint(s.wide)
	}
	return types.NewBigInt(s.i64)
}

// avgState is a sum plus a count.
type avgState struct {
	sum   *sumState
	count int64
}

func (s *avgState) Update(args []types.Value) error {
	if args[0].Null {
		return nil
	}
	s.count++
	return s.sum.Update(args)
}

func (s *avgState) Merge(other State) error {
	o, ok := other.(*avgState)
	if !ok {
		return errorx.Internalf("merge of avg state with %T", other)
	}
	s.count += o.count
	return s.sum.Merge(o.sum)
}

func (s *avgState) Finalize() types.Value {
	if s.count == 0 {
		return types.NewNull(types.TypeDouble)
	}
	total := s.sum.Finalize()
	return types.NewDouble(total.Float64() / float64(s.count))
}

// minMaxState tracks an extremum.
type minMaxState struct {
	typ  types.LogicalType
	max  bool
	seen bool
	best types.Value
}

func (s *minMaxState) Update(args []types.Value) error {
	v := args[0]
	if v.Null {
		return nil
	}
	s.consider(v)
	return nil
}

func (s *minMaxState) consider(v types.Value) {
	if !s.seen {
		s.best = v
		s.seen = true
		return
	}
	cmp := types.Compare(v, s.best)
	if (s.max && cmp > 0) || (!s.max && cmp < 0) {
		s.best = v
	}
}

func (s *minMaxState) Merge(other State) error {
	o, ok := other.(*minMaxState)
	if !ok {
		return errorx.Internalf("merge of min/max state with %T", other)
	}
	if o.seen {
		s.consider(o.best)
	}
	return nil
}

func (s *minMaxState) Finalize() types.Value {
	if !s.seen {
		return types.NewNull(s.typ)
	}
	return s.best
}

// firstLastState keeps the first (or last) non-null value in observation
// order. Cross-thread merge order is implementation-defined.
type firstLastState struct {
	typ  types.LogicalType
	last bool
	seen bool
	val  types.Value
}

func (s *firstLastState) Update(args []types.Value) error {
	v := args[0]
	if v.Null {
		return nil
	}
	if s.last || !s.seen {
		s.val = v
		s.seen = true
	}
	return nil
}

func (s *firstLastState) Merge(other State) error {
	o, ok := other.(*firstLastState)
	if !ok {
		return errorx.Internalf("merge of first/last state with %T", other)
	}
	if !o.seen {
		return nil
	}
	if s.last || !s.seen {
		s.val = o.val
		s.seen = true
	}
	return nil
}

func (s *firstLastState) Finalize() types.Value {
	if !s.seen {
		return types.NewNull(s.typ)
	}
	return s.val
}

// argExtremeState implements arg_min / arg_max: the first argument value at
// the extremum of the second.
type argExtremeState struct {
	typ     types.LogicalType
	max     bool
	seen    bool
	arg     types.Value
	extreme types.Value
}

func (s *argExtremeState) Update(args []types.Value) error {
	if args[1].Null {
		return nil
	}
	s.consider(args[0], args[1])
	return nil
}

func (s *argExtremeState) consider(arg, key types.Value) {
	if !s.seen {
		s.arg, s.extreme, s.seen = arg, key, true
		return
	}
	cmp := types.Compare(key, s.extreme)
	if (s.max && cmp > 0) || (!s.max && cmp < 0) {
		s.arg, s.extreme = arg, key
	}
}

func (s *argExtremeState) Merge(other State) error {
	o, ok := other.(*argExtremeState)
	if !ok {
		return errorx.Internalf("merge of arg_min/arg_max state with %T", other)
	}
	if o.seen {
		s.consider(o.arg, o.extreme)
	}
	return nil
}

func (s *argExtremeState) Finalize() types.Value {
	if !s.seen {
		return types.NewNull(s.typ)
	}
	return s.arg
}

// stringAggState concatenates values with a separator, preserving
// insertion order within one partition of input. Merge appends the other
// side whole; the relative order of the two sides is implementation-
// defined under parallel aggregation.
type stringAggState struct {
	parts []string
	sep   string
	sepOK bool
}

func (s *stringAggState) Update(args []types.Value) error {
	if args[0].Null {
		return nil
	}
	if len(args) > 1 && !args[1].Null && !s.sepOK {
		s.sep = args[1].Str()
		s.sepOK = true
	}
	s.parts = append(s.parts, args[0].Str())
	return nil
}

func (s *stringAggState) Merge(other State) error {
	o, ok := other.(*stringAggState)
	if !ok {
		return errorx.Internalf("merge of string_agg state with %T", other)
	}
	if !s.sepOK && o.sepOK {
		s.sep = o.sep
		s.sepOK = true
	}
	s.parts = append(s.parts, o.parts...)
	return nil
}

func (s *stringAggState) Finalize() types.Value {
	if len(s.parts) == 0 {
		return types.NewNull(types.TypeVarchar)
	}
	sep := s.sep
	if !s.sepOK {
		sep = ","
	}
	out := s.parts[0]
	for _, p := range s.parts[1:] {
		out += sep + p
	}
	return types.NewVarchar(out)
}

// modeState returns the most frequent non-null value; ties break towards
// the smaller value so the result is deterministic.
type modeState struct {
	typ    types.LogicalType
	counts map[string]int64
	values map[string]types.Value
}

func newModeState(t types.LogicalType) *modeState {
	return &modeState{typ: t, counts: make(map[string]int64), values: make(map[string]types.Value)}
}

func (s *modeState) Update(args []types.Value) error {
	v := args[0]
	if v.Null {
		return nil
	}
	key := v.String()
	s.counts[key]++
	s.values[key] = v
	return nil
}

func (s *modeState) Merge(other State) error {
	o, ok := other.(*modeState)
	if !ok {
		return errorx.Internalf("merge of mode state with %T", other)
	}
	for key, n := range o.counts {
		s.counts[key] += n
		s.values[key] = o.values[key]
	}
	return nil
}

func (s *modeState) Finalize() types.Value {
	if len(s.counts) == 0 {
		return types.NewNull(s.typ)
	}
	var bestKey string
	var bestCount int64 = -1
	for key, n := range s.counts {
		if n > bestCount || (n == bestCount && types.Compare(s.values[key], s.values[bestKey]) < 0) {
			bestKey, bestCount = key, n
		}
	}
	return s.values[bestKey]
}

// countDistinctState counts exact distinct non-null values.
type countDistinctState struct {
	seen map[string]struct{}
}

func (s *countDistinctState) Update(args []types.Value) error {
	if args[0].Null {
		return nil
	}
	s.seen[args[0].String()] = struct{}{}
	return nil
}

func (s *countDistinctState) Merge(other State) error {
	o, ok := other.(*countDistinctState)
	if !ok {
		return errorx.Internalf("merge of count_distinct state with %T", other)
	}
	for k := range o.seen {
		s.seen[k] = struct{}{}
	}
	return nil
}

func (s *countDistinctState) Finalize() types.Value {
	return types.NewBigInt(int64(len(s.seen)))
}

func init() {
	register(&Function{
		Name:       "count",
		ArgCount:   -1,
		ReturnType: bigintReturn,
		NewState: func(args []types.LogicalType) State {
			return &countState{star: len(args) == 0}
		},
	})
	register(&Function{
		Name:       "count_distinct",
		ArgCount:   1,
		ReturnType: bigintReturn,
		NewState: func(args []types.LogicalType) State {
			return &countDistinctState{seen: make(map[string]struct{})}
		},
	})
	register(&Function{
		Name:       "sum",
		ArgCount:   1,
		ReturnType: sumReturnType,
		NewState: func(args []types.LogicalType) State {
			return newSumState(args[0])
		},
	})
	register(&Function{
		Name:       "avg",
		ArgCount:   1,
		ReturnType: doubleReturn,
		NewState: func(args []types.LogicalType) State {
			return &avgState{sum: newSumState(args[0])}
		},
	})
	register(&Function{
		Name:       "min",
		ArgCount:   1,
		ReturnType: firstArgReturn,
		NewState: func(args []types.LogicalType) State {
			return &minMaxState{typ: args[0]}
		},
	})
	register(&Function{
		Name:       "max",
		ArgCount:   1,
		ReturnType: firstArgReturn,
		NewState: func(args []types.LogicalType) State {
			return &minMaxState{typ: args[0], max: true}
		},
	})
	register(&Function{
		Name:           "first",
		ArgCount:       1,
		ReturnType:     firstArgReturn,
		OrderSensitive: true,
		NewState: func(args []types.LogicalType) State {
			return &firstLastState{typ: args[0]}
		},
	})
	register(&Function{
		Name:           "last",
		ArgCount:       1,
		ReturnType:     firstArgReturn,
		OrderSensitive: true,
		NewState: func(args []types.LogicalType) State {
			return &firstLastState{typ: args[0], last: true}
		},
	})
	register(&Function{
		Name:       "arg_min",
		ArgCount:   2,
		ReturnType: firstArgReturn,
		NewState: func(args []types.LogicalType) State {
			return &argExtremeState{typ: args[0]}
		},
	})
	register(&Function{
		Name:       "arg_max",
		ArgCount:   2,
		ReturnType: firstArgReturn,
		NewState: func(args []types.LogicalType) State {
			return &argExtremeState{typ: args[0], max: true}
		},
	})
	register(&Function{
		Name:     "string_agg",
		ArgCount: 2,
		ReturnType: func(args []types.LogicalType) (types.LogicalType, error) {
			return types.TypeVarchar, nil
		},
		OrderSensitive: true,
		NewState: func(args []types.LogicalType) State {
			return &stringAggState{}
		},
	})
	register(&Function{
		Name:       "mode",
		ArgCount:   1,
		ReturnType: firstArgReturn,
		NewState: func(args []types.LogicalType) State {
			return newModeState(args[0])
		},
	})
}
