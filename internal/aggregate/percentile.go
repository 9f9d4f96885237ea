package aggregate

import (
	"math"
	"sort"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
)

// percentileState collects all non-null values per group and resolves the
// percentile at finalize: continuous percentiles interpolate linearly,
// discrete percentiles pick the element at ceil(k*(n-1)).
type percentileState struct {
	typ      types.LogicalType
	fraction float64
	discrete bool
	values   []types.Value
}

func (s *percentileState) Update(args []types.Value) error {
	v := args[0]
	if v.Null {
		return nil
	}
	// The percentile fraction rides as the second argument; it is constant
	// per call, the first observation wins.
	if len(args) > 1 && !args[1].Null && len(s.values) == 0 {
		s.fraction = args[1].Float64()
	}
	s.values = append(s.values, v)
	return nil
}

func (s *percentileState) Merge(other State) error {
	o, ok := other.(*percentileState)
	if !ok {
		return errorx.Internalf("merge of percentile state with %T", other)
	}
	if len(s.values) == 0 {
		s.fraction = o.fraction
	}
	s.values = append(s.values, o.values...)
	return nil
}

func (s *percentileState) Finalize() types.Value {
	n := len(s.values)
	if n == 0 {
		if s.discrete {
			return types.NewNull(s.typ)
		}
		return types.NewNull(types.TypeDouble)
	}
	if s.fraction < 0 || s.fraction > 1 {
		// Out-of-range fractions degrade to NULL rather than panicking.
		if s.discrete {
			return types.NewNull(s.typ)
		}
		return types.NewNull(types.TypeDouble)
	}
	sort.Slice(s.values, func(i, j int) bool {
		return types.Compare(s.values[i], s.values[j]) < 0
	})
	if s.discrete {
		idx := int(math.Ceil(s.fraction * float64(n-1)))
		return s.values[idx]
	}
	pos := s.fraction * float64(n-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	lv := s.values[lower].Float64()
	if lower == upper {
		return types.NewDouble(lv)
	}
	uv := s.values[upper].Float64()
	frac := pos - float64(lower)
	return types.NewDouble(lv + (uv-lv)*frac)
}

func init() {
	register(&Function{
		Name:       "percentile_cont",
		ArgCount:   2,
		ReturnType: doubleReturn,
		NewState: func(args []types.LogicalType) State {
			return &percentileState{typ: args[0]}
		},
	})
	register(&Function{
		Name:       "percentile_disc",
		ArgCount:   2,
		ReturnType: firstArgReturn,
		NewState: func(args []types.LogicalType) State {
			return &percentileState{typ: args[0], discrete: true}
		},
	})
	register(&Function{
		Name:       "median",
		ArgCount:   1,
		ReturnType: doubleReturn,
		NewState: func(args []types.LogicalType) State {
			return &percentileState{typ: args[0], fraction: 0.5}
		},
	})
}
