package aggregate

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turingworks/prismdb/internal/types"
)

func update(t *testing.T, s State, vals ...types.Value) {
	t.Helper()
	for _, v := range vals {
		require.NoError(t, s.Update([]types.Value{v}))
	}
}

func bigints(vals ...int64) []types.Value {
	out := make([]types.Value, len(vals))
	for i, v := range vals {
		out[i] = types.NewBigInt(v)
	}
	return out
}

func newState(t *testing.T, name string, argTypes ...types.LogicalType) State {
	t.Helper()
	fn, err := Lookup(name)
	require.NoError(t, err)
	return fn.NewState(argTypes)
}

func TestCountStarAndCountColumn(t *testing.T) {
	star := newState(t, "count")
	require.NoError(t, star.Update(nil))
	require.NoError(t, star.Update(nil))
	assert.Equal(t, int64(2), star.Finalize().Int64())

	col := newState(t, "count", types.TypeBigInt)
	update(t, col, types.NewBigInt(1), types.NewNull(types.TypeBigInt), types.NewBigInt(2))
	assert.Equal(t, int64(2), col.Finalize().Int64())
}

func TestSumAvgMinMax(t *testing.T) {
	sum := newState(t, "sum", types.TypeBigInt)
	update(t, sum, bigints(1, 2, 3, 4, 5)...)
	assert.Equal(t, int64(15), sum.Finalize().Int64())

	avg := newState(t, "avg", types.TypeBigInt)
	update(t, avg, bigints(1, 2, 3, 4, 5)...)
	assert.Equal(t, 3.0, avg.Finalize().Float64())

	min := newState(t, "min", types.TypeBigInt)
	max := newState(t, "max", types.TypeBigInt)
	update(t, min, bigints(5, 1, 9)...)
	update(t, max, bigints(5, 1, 9)...)
	assert.Equal(t, int64(1), min.Finalize().Int64())
	assert.Equal(t, int64(9), max.Finalize().Int64())
}

func TestEmptyInputsFinalizeNull(t *testing.T) {
	for _, name := range []string{"sum", "avg", "min", "max", "stddev_pop", "median", "mode"} {
		s := newState(t, name, types.TypeBigInt)
		assert.True(t, s.Finalize().Null, name)
	}
	count := newState(t, "count", types.TypeBigInt)
	assert.Equal(t, int64(0), count.Finalize().Int64())
}

func TestSumWidensOnOverflow(t *testing.T) {
	s := newState(t, "sum", types.TypeBigInt)
	update(t, s, types.NewBigInt(math.MaxInt64), types.NewBigInt(math.MaxInt64))
	got := s.Finalize()
	require.False(t, got.Null)
	assert.Equal(t, "18446744073709551614", got.Hugeint().String())
}

// splitMergeCheck verifies the parallel-combination contract: folding the
// whole input into one state equals folding two halves and merging.
func splitMergeCheck(t *testing.T, name string, argTypes []types.LogicalType, rows [][]types.Value, tol float64) {
	t.Helper()
	fn, err := Lookup(name)
	require.NoError(t, err)
	whole := fn.NewState(argTypes)
	a := fn.NewState(argTypes)
	b := fn.NewState(argTypes)
	for i, row := range rows {
		require.NoError(t, whole.Update(row))
		if i%2 == 0 {
			require.NoError(t, a.Update(row))
		} else {
			require.NoError(t, b.Update(row))
		}
	}
	require.NoError(t, a.Merge(b))
	want := whole.Finalize()
	got := a.Finalize()
	if want.Null {
		assert.True(t, got.Null, name)
		return
	}
	if tol > 0 {
		assert.InDelta(t, want.Float64(), got.Float64(), tol, name)
	} else {
		assert.True(t, types.Equal(want, got), "%s: want %s, got %s", name, want, got)
	}
}

func TestMergeAssociativity(t *testing.T) {
	var rows [][]types.Value
	for i := 0; i < 1000; i++ {
		rows = append(rows, []types.Value{types.NewBigInt(int64(i*7%113 - 50))})
	}
	one := []types.LogicalType{types.TypeBigInt}
	for _, name := range []string{"count", "sum", "min", "max", "avg"} {
		splitMergeCheck(t, name, one, rows, 0)
	}
	for _, name := range []string{"variance_pop", "stddev_pop", "variance_samp", "stddev_samp"} {
		splitMergeCheck(t, name, one, rows, 1e-9)
	}
}

func TestWelfordVariance(t *testing.T) {
	s := newState(t, "variance_pop", types.TypeDouble)
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		require.NoError(t, s.Update([]types.Value{types.NewDouble(v)}))
	}
	assert.InDelta(t, 4.0, s.Finalize().Float64(), 1e-12)

	sd := newState(t, "stddev_pop", types.TypeDouble)
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		require.NoError(t, sd.Update([]types.Value{types.NewDouble(v)}))
	}
	assert.InDelta(t, 2.0, sd.Finalize().Float64(), 1e-12)
}

func TestCovarianceAndCorrelation(t *testing.T) {
	// Perfectly linear: y = 2x + 1.
	corr := newState(t, "corr", types.TypeDouble, types.TypeDouble)
	covar := newState(t, "covar_pop", types.TypeDouble, types.TypeDouble)
	slope := newState(t, "regr_slope", types.TypeDouble, types.TypeDouble)
	intercept := newState(t, "regr_intercept", types.TypeDouble, types.TypeDouble)
	for x := 1.0; x <= 5; x++ {
		row := []types.Value{types.NewDouble(2*x + 1), types.NewDouble(x)}
		require.NoError(t, corr.Update(row))
		require.NoError(t, covar.Update(row))
		require.NoError(t, slope.Update(row))
		require.NoError(t, intercept.Update(row))
	}
	assert.InDelta(t, 1.0, corr.Finalize().Float64(), 1e-12)
	assert.InDelta(t, 4.0, covar.Finalize().Float64(), 1e-12) // var(x)*2 = 2*2
	assert.InDelta(t, 2.0, slope.Finalize().Float64(), 1e-12)
	assert.InDelta(t, 1.0, intercept.Finalize().Float64(), 1e-12)
}

func TestCovarianceMergeExact(t *testing.T) {
	two := []types.LogicalType{types.TypeDouble, types.TypeDouble}
	var rows [][]types.Value
	for i := 0; i < 500; i++ {
		x := float64(i%37) - 11
		y := 3*x + float64(i%5)
		rows = append(rows, []types.Value{types.NewDouble(y), types.NewDouble(x)})
	}
	for _, name := range []string{"covar_pop", "covar_samp", "corr", "regr_slope", "regr_r2", "regr_sxy"} {
		splitMergeCheck(t, name, two, rows, 1e-9)
	}
}

func TestHyperLogLogAccuracy(t *testing.T) {
	s := newState(t, "approx_count_distinct", types.TypeVarchar)
	const distinct = 50000
	for i := 0; i < distinct; i++ {
		// Each value twice; duplicates must not inflate the estimate.
		v := types.NewVarchar(fmt.Sprintf("user-%d", i))
		require.NoError(t, s.Update([]types.Value{v}))
		require.NoError(t, s.Update([]types.Value{v}))
	}
	got := float64(s.Finalize().Int64())
	assert.InDelta(t, distinct, got, distinct*0.02, "HLL must stay within 2%%")
}

func TestHyperLogLogMerge(t *testing.T) {
	a := newState(t, "approx_count_distinct", types.TypeVarchar)
	b := newState(t, "approx_count_distinct", types.TypeVarchar)
	for i := 0; i < 20000; i++ {
		v := types.NewVarchar(fmt.Sprintf("k%d", i))
		if i%2 == 0 {
			require.NoError(t, a.Update([]types.Value{v}))
		} else {
			require.NoError(t, b.Update([]types.Value{v}))
		}
	}
	require.NoError(t, a.Merge(b))
	got := float64(a.Finalize().Int64())
	assert.InDelta(t, 20000, got, 20000*0.02)
}

func TestPercentiles(t *testing.T) {
	med := newState(t, "median", types.TypeBigInt)
	update(t, med, bigints(1, 2, 3, 4)...)
	assert.InDelta(t, 2.5, med.Finalize().Float64(), 1e-12)

	cont, err := Lookup("percentile_cont")
	require.NoError(t, err)
	cs := cont.NewState([]types.LogicalType{types.TypeBigInt, types.TypeDouble})
	for _, v := range []int64{10, 20, 30, 40} {
		require.NoError(t, cs.Update([]types.Value{types.NewBigInt(v), types.NewDouble(0.25)}))
	}
	assert.InDelta(t, 17.5, cs.Finalize().Float64(), 1e-12)

	disc, err := Lookup("percentile_disc")
	require.NoError(t, err)
	ds := disc.NewState([]types.LogicalType{types.TypeBigInt, types.TypeDouble})
	for _, v := range []int64{10, 20, 30, 40} {
		require.NoError(t, ds.Update([]types.Value{types.NewBigInt(v), types.NewDouble(0.5)}))
	}
	// ceil(0.5 * 3) = index 2.
	assert.Equal(t, int64(30), ds.Finalize().Int64())
}

func TestModeDeterministicTieBreak(t *testing.T) {
	s := newState(t, "mode", types.TypeBigInt)
	update(t, s, bigints(3, 1, 3, 1, 2)...)
	// 1 and 3 tie at two occurrences; the smaller value wins.
	assert.Equal(t, int64(1), s.Finalize().Int64())
}

func TestStringAggInsertionOrder(t *testing.T) {
	fn, err := Lookup("string_agg")
	require.NoError(t, err)
	s := fn.NewState([]types.LogicalType{types.TypeVarchar, types.TypeVarchar})
	sep := types.NewVarchar(",")
	for _, v := range []string{"a", "b", "c"} {
		require.NoError(t, s.Update([]types.Value{types.NewVarchar(v), sep}))
	}
	assert.Equal(t, "a,b,c", s.Finalize().Str())
	assert.True(t, fn.OrderSensitive)
}

func TestFirstLastArgMinArgMax(t *testing.T) {
	first := newState(t, "first", types.TypeBigInt)
	last := newState(t, "last", types.TypeBigInt)
	update(t, first, bigints(7, 8, 9)...)
	update(t, last, bigints(7, 8, 9)...)
	assert.Equal(t, int64(7), first.Finalize().Int64())
	assert.Equal(t, int64(9), last.Finalize().Int64())

	argmin, err := Lookup("arg_min")
	require.NoError(t, err)
	am := argmin.NewState([]types.LogicalType{types.TypeVarchar, types.TypeBigInt})
	require.NoError(t, am.Update([]types.Value{types.NewVarchar("cheap"), types.NewBigInt(10)}))
	require.NoError(t, am.Update([]types.Value{types.NewVarchar("pricy"), types.NewBigInt(90)}))
	assert.Equal(t, "cheap", am.Finalize().Str())
}

func TestCountDistinctAndDistinctWrapper(t *testing.T) {
	cd := newState(t, "count_distinct", types.TypeBigInt)
	update(t, cd, bigints(1, 1, 2, 2, 3)...)
	assert.Equal(t, int64(3), cd.Finalize().Int64())

	fn, err := Lookup("sum")
	require.NoError(t, err)
	argTypes := []types.LogicalType{types.TypeBigInt}
	ds := NewDistinct(func() State { return fn.NewState(argTypes) })
	update(t, ds, bigints(5, 5, 7, 7)...)
	assert.Equal(t, int64(12), ds.Finalize().Int64())

	// Distinct merge unions value sets, never double-counting.
	other := NewDistinct(func() State { return fn.NewState(argTypes) })
	update(t, other, bigints(5, 9)...)
	require.NoError(t, ds.Merge(other))
	assert.Equal(t, int64(21), ds.Finalize().Int64())
}
