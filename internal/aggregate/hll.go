package aggregate

import (
	"math"

	"github.com/spaolacci/murmur3"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
)

const (
	hllPrecision = 14
	hllRegisters = 1 << hllPrecision // 16384
)

// hllAlpha is the standard bias-correction constant for m >= 128.
var hllAlpha = 0.7213 / (1 + 1.079/float64(hllRegisters))

// hllState approximates distinct counts with a HyperLogLog sketch: 2^14
// registers over a 64-bit murmur3 hash, standard bias correction, about
// +-2% relative error. Merge takes the register-wise max, which is exact
// for the sketch by construction.
type hllState struct {
	registers []uint8
}

func newHLLState() *hllState {
	return &hllState{registers: make([]uint8, hllRegisters)}
}

func (s *hllState) Update(args []types.Value) error {
	v := args[0]
	if v.Null {
		return nil
	}
	h := murmur3.Sum64([]byte(v.String()))
	idx := h >> (64 - hllPrecision)
	rest := h<<hllPrecision | 1<<(hllPrecision-1)
	rank := uint8(1)
	for rest&(1<<63) == 0 {
		rank++
		rest <<= 1
	}
	if rank > s.registers[idx] {
		s.registers[idx] = rank
	}
	return nil
}

func (s *hllState) Merge(other State) error {
	o, ok := other.(*hllState)
	if !ok {
		return errorx.Internalf("merge of hll state with %T", other)
	}
	for i, r := range o.registers {
		if r > s.registers[i] {
			s.registers[i] = r
		}
	}
	return nil
}

func (s *hllState) Finalize() types.Value {
	m := float64(hllRegisters)
	sum := 0.0
	zeros := 0
	for _, r := range s.registers {
		sum += 1 / float64(uint64(1)<<r)
		if r == 0 {
			zeros++
		}
	}
	estimate := hllAlpha * m * m / sum
	// Small-range correction: linear counting while registers are sparse.
	if estimate <= 2.5*m && zeros > 0 {
		estimate = m * math.Log(m/float64(zeros))
	} else if estimate > (1.0/30.0)*math.Pow(2, 64) {
		// Large-range correction for hash saturation.
		estimate = -math.Pow(2, 64) * math.Log(1-estimate/math.Pow(2, 64))
	}
	return types.NewBigInt(int64(estimate + 0.5))
}

func init() {
	register(&Function{
		Name:       "approx_count_distinct",
		ArgCount:   1,
		ReturnType: bigintReturn,
		NewState: func(args []types.LogicalType) State {
			return newHLLState()
		},
	})
}
