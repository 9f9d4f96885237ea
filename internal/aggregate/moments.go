package aggregate

import (
	"math"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
)

// varianceState runs Welford's online algorithm. Merge uses the parallel
// combination of counts, means, and M2, which is exact.
type varianceState struct {
	// kind selects the finalize formula.
	kind varKind
	n    int64
	mean float64
	m2   float64
}

type varKind uint8

const (
	varPop varKind = iota
	varSamp
	stddevPop
	stddevSamp
)

func (s *varianceState) Update(args []types.Value) error {
	v := args[0]
	if v.Null {
		return nil
	}
	x := v.Float64()
	s.n++
	delta := x - s.mean
	s.mean += delta / float64(s.n)
	s.m2 += delta * (x - s.mean)
	return nil
}

func (s *varianceState) Merge(other State) error {
	o, ok := other.(*varianceState)
	if !ok {
		return errorx.Internalf("merge of variance state with %T", other)
	}
	if o.n == 0 {
		return nil
	}
	if s.n == 0 {
		s.n, s.mean, s.m2 = o.n, o.mean, o.m2
		return nil
	}
	n := float64(s.n + o.n)
	delta := o.mean - s.mean
	s.m2 += o.m2 + delta*delta*float64(s.n)*float64(o.n)/n
	s.mean += delta * float64(o.n) / n
	s.n += o.n
	return nil
}

func (s *varianceState) Finalize() types.Value {
	switch s.kind {
	case varPop, stddevPop:
		if s.n == 0 {
			return types.NewNull(types.TypeDouble)
		}
		v := s.m2 / float64(s.n)
		if s.kind == stddevPop {
			v = math.Sqrt(v)
		}
		return types.NewDouble(v)
	default:
		if s.n < 2 {
			return types.NewNull(types.TypeDouble)
		}
		v := s.m2 / float64(s.n-1)
		if s.kind == stddevSamp {
			v = math.Sqrt(v)
		}
		return types.NewDouble(v)
	}
}

// covarState tracks the co-moment of two variables with the Schubert &
// Gertz parallel-safe update, so merge is exact. It also carries the
// per-variable M2 terms, which corr and the regression family need.
type covarState struct {
	kind  covarKind
	n     int64
	meanX float64
	meanY float64
	cXY   float64
	m2X   float64
	m2Y   float64
	sumX  float64
	sumY  float64
}

type covarKind uint8

const (
	covarPop covarKind = iota
	covarSamp
	corrKind
	regrSlope
	regrIntercept
	regrR2
	regrCount
	regrAvgX
	regrAvgY
	regrSXY
	regrSXX
	regrSYY
)

func (s *covarState) Update(args []types.Value) error {
	// SQL regression argument order is (y, x).
	if args[0].Null || args[1].Null {
		return nil
	}
	y := args[0].Float64()
	x := args[1].Float64()
	s.n++
	n := float64(s.n)
	dx := x - s.meanX
	dy := y - s.meanY
	s.meanX += dx / n
	s.meanY += dy / n
	// Schubert & Gertz: use the updated meanY for the co-moment term.
	s.cXY += dx * (y - s.meanY)
	s.m2X += dx * (x - s.meanX)
	s.m2Y += dy * (y - s.meanY)
	s.sumX += x
	s.sumY += y
	return nil
}

func (s *covarState) Merge(other State) error {
	o, ok := other.(*covarState)
	if !ok {
		return errorx.Internalf("merge of covariance state with %T", other)
	}
	if o.n == 0 {
		return nil
	}
	if s.n == 0 {
		*s = *o
		s.kind = o.kind
		return nil
	}
	nA, nB := float64(s.n), float64(o.n)
	n := nA + nB
	dx := o.meanX - s.meanX
	dy := o.meanY - s.meanY
	s.cXY += o.cXY + dx*dy*nA*nB/n
	s.m2X += o.m2X + dx*dx*nA*nB/n
	s.m2Y += o.m2Y + dy*dy*nA*nB/n
	s.meanX += dx * nB / n
	s.meanY += dy * nB / n
	s.sumX += o.sumX
	s.sumY += o.sumY
	s.n += o.n
	return nil
}

func (s *covarState) Finalize() types.Value {
	switch s.kind {
	case covarPop:
		if s.n == 0 {
			return types.NewNull(types.TypeDouble)
		}
		return types.NewDouble(s.cXY / float64(s.n))
	case covarSamp:
		if s.n < 2 {
			return types.NewNull(types.TypeDouble)
		}
		return types.NewDouble(s.cXY / float64(s.n-1))
	case corrKind:
		if s.n == 0 || s.m2X == 0 || s.m2Y == 0 {
			return types.NewNull(types.TypeDouble)
		}
		return types.NewDouble(s.cXY / math.Sqrt(s.m2X*s.m2Y))
	case regrCount:
		return types.NewBigInt(s.n)
	case regrAvgX:
		if s.n == 0 {
			return types.NewNull(types.TypeDouble)
		}
		return types.NewDouble(s.meanX)
	case regrAvgY:
		if s.n == 0 {
			return types.NewNull(types.TypeDouble)
		}
		return types.NewDouble(s.meanY)
	case regrSXY:
		if s.n == 0 {
			return types.NewNull(types.TypeDouble)
		}
		return types.NewDouble(s.cXY)
	case regrSXX:
		if s.n == 0 {
			return types.NewNull(types.TypeDouble)
		}
		return types.NewDouble(s.m2X)
	case regrSYY:
		if s.n == 0 {
			return types.NewNull(types.TypeDouble)
		}
		return types.NewDouble(s.m2Y)
	case regrSlope:
		if s.n == 0 || s.m2X == 0 {
			return types.NewNull(types.TypeDouble)
		}
		return types.NewDouble(s.cXY / s.m2X)
	case regrIntercept:
		if s.n == 0 || s.m2X == 0 {
			return types.NewNull(types.TypeDouble)
		}
		slope := s.cXY / s.m2X
		return types.NewDouble(s.meanY - slope*s.meanX)
	default: // regrR2
		if s.n == 0 || s.m2X == 0 {
			return types.NewNull(types.TypeDouble)
		}
		if s.m2Y == 0 {
			return types.NewDouble(1)
		}
		r := s.cXY / math.Sqrt(s.m2X*s.m2Y)
		return types.NewDouble(r * r)
	}
}

func init() {
	varAggs := map[string]varKind{
		"variance_pop":  varPop,
		"var_pop":       varPop,
		"variance_samp": varSamp,
		"var_samp":      varSamp,
		"variance":      varSamp,
		"stddev_pop":    stddevPop,
		"stddev_samp":   stddevSamp,
		"stddev":        stddevSamp,
	}
	for name, kind := range varAggs {
		kind := kind
		register(&Function{
			Name:       name,
			ArgCount:   1,
			ReturnType: doubleReturn,
			NewState: func(args []types.LogicalType) State {
				return &varianceState{kind: kind}
			},
		})
	}
	covarAggs := map[string]covarKind{
		"covar_pop":      covarPop,
		"covar_samp":     covarSamp,
		"corr":           corrKind,
		"regr_slope":     regrSlope,
		"regr_intercept": regrIntercept,
		"regr_r2":        regrR2,
		"regr_count":     regrCount,
		"regr_avgx":      regrAvgX,
		"regr_avgy":      regrAvgY,
		"regr_sxy":       regrSXY,
		"regr_sxx":       regrSXX,
		"regr_syy":       regrSYY,
	}
	for name, kind := range covarAggs {
		kind := kind
		ret := doubleReturn
		if kind == regrCount {
			ret = bigintReturn
		}
		register(&Function{
			Name:       name,
			ArgCount:   2,
			ReturnType: ret,
			NewState: func(args []types.LogicalType) State {
				return &covarState{kind: kind}
			},
		})
	}
}
