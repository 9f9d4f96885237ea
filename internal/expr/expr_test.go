package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

func intChunk(t *testing.T, vals ...any) *vector.DataChunk {
	t.Helper()
	chunk := vector.NewChunk([]types.LogicalType{types.TypeBigInt})
	for _, v := range vals {
		switch x := v.(type) {
		case int:
			require.NoError(t, chunk.AppendRow(types.NewBigInt(int64(x))))
		case nil:
			require.NoError(t, chunk.AppendRow(types.NewNull(types.TypeBigInt)))
		}
	}
	return chunk
}

func TestColumnRefEval(t *testing.T) {
	chunk := intChunk(t, 1, 2, nil)
	ref := NewColumnRef(0, types.TypeBigInt, "a")
	out, err := ref.Eval(NewContext(), chunk)
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.MustGet(1).Int64())
	assert.True(t, out.IsNull(2))

	bad := NewColumnRef(3, types.TypeBigInt, "x")
	_, err = bad.Eval(NewContext(), chunk)
	assert.Error(t, err)
}

func TestComparisonThreeValuedLogic(t *testing.T) {
	chunk := intChunk(t, 1, 5, nil)
	cmp := NewComparison(CmpGreater,
		NewColumnRef(0, types.TypeBigInt, "a"),
		NewConstant(types.NewBigInt(3)))
	out, err := cmp.Eval(NewContext(), chunk)
	require.NoError(t, err)
	assert.False(t, out.MustGet(0).Bool())
	assert.True(t, out.MustGet(1).Bool())
	assert.True(t, out.IsNull(2), "comparison against NULL is NULL")
}

func TestIsNull(t *testing.T) {
	chunk := intChunk(t, 1, nil)
	isNull := NewComparison(CmpIsNull, NewColumnRef(0, types.TypeBigInt, "a"), nil)
	out, err := isNull.Eval(NewContext(), chunk)
	require.NoError(t, err)
	assert.False(t, out.MustGet(0).Bool())
	assert.True(t, out.MustGet(1).Bool())

	notNull := NewComparison(CmpIsNotNull, NewColumnRef(0, types.TypeBigInt, "a"), nil)
	out, err = notNull.Eval(NewContext(), chunk)
	require.NoError(t, err)
	assert.True(t, out.MustGet(0).Bool())
	assert.False(t, out.MustGet(1).Bool())
}

func TestConjunctionTruthTable(t *testing.T) {
	// null AND false = false; null AND true = null; null OR true = true;
	// null OR false = null.
	tr := NewConstant(types.NewBoolean(true))
	fa := NewConstant(types.NewBoolean(false))
	nu := NewConstant(types.NewNull(types.TypeBoolean))
	chunk := intChunk(t, 1)

	eval := func(e Expression) types.Value {
		out, err := e.Eval(NewContext(), chunk)
		require.NoError(t, err)
		return out.MustGet(0)
	}
	assert.False(t, eval(NewAnd(nu, fa)).Bool())
	assert.False(t, eval(NewAnd(nu, fa)).Null)
	assert.True(t, eval(NewAnd(nu, tr)).Null)
	assert.True(t, eval(NewOr(nu, tr)).Bool())
	assert.True(t, eval(NewOr(nu, fa)).Null)
	assert.True(t, eval(&Not{Child: nu}).Null)
	assert.False(t, eval(&Not{Child: tr}).Bool())
}

func TestArithmeticOverflow(t *testing.T) {
	chunk := intChunk(t, 1)
	fn, err := Resolve("+", []types.LogicalType{types.TypeBigInt, types.TypeBigInt})
	require.NoError(t, err)
	add := NewFunctionExpr(fn,
		NewConstant(types.NewBigInt(1<<62)),
		NewConstant(types.NewBigInt(1<<62)))
	_, err = add.Eval(NewContext(), chunk)
	require.Error(t, err)
	assert.True(t, errorx.IsArithmetic(err))
}

func TestIntegerNarrowOverflow(t *testing.T) {
	chunk := intChunk(t, 1)
	fn, err := Resolve("*", []types.LogicalType{types.TypeInteger, types.TypeInteger})
	require.NoError(t, err)
	mul := NewFunctionExpr(fn,
		NewConstant(types.NewInteger(1<<20)),
		NewConstant(types.NewInteger(1<<20)))
	_, err = mul.Eval(NewContext(), chunk)
	require.Error(t, err)
	assert.True(t, errorx.IsArithmetic(err))
}

func TestDivisionByZero(t *testing.T) {
	chunk := intChunk(t, 1)
	fn, err := Resolve("/", []types.LogicalType{types.TypeBigInt, types.TypeBigInt})
	require.NoError(t, err)
	div := NewFunctionExpr(fn,
		NewConstant(types.NewBigInt(10)),
		NewConstant(types.NewBigInt(0)))
	_, err = div.Eval(NewContext(), chunk)
	require.Error(t, err)
	assert.True(t, errorx.IsArithmetic(err))
}

func TestNullPropagationThroughFunctions(t *testing.T) {
	chunk := intChunk(t, 1)
	fn, err := Resolve("+", []types.LogicalType{types.TypeBigInt, types.TypeBigInt})
	require.NoError(t, err)
	add := NewFunctionExpr(fn,
		NewConstant(types.NewBigInt(1)),
		NewConstant(types.NewNull(types.TypeBigInt)))
	out, err := add.Eval(NewContext(), chunk)
	require.NoError(t, err)
	assert.True(t, out.IsNull(0))
}

func TestCasts(t *testing.T) {
	cases := []struct {
		in     types.Value
		target types.LogicalType
		want   string
		fails  bool
	}{
		{types.NewInteger(42), types.TypeBigInt, "42", false},
		{types.NewBigInt(300), types.TypeTinyInt, "", true},
		{types.NewVarchar("17"), types.TypeInteger, "17", false},
		{types.NewVarchar("abc"), types.TypeInteger, "", true},
		{types.NewDouble(2.5), types.TypeVarchar, "2.5", false},
		{types.NewVarchar("2024-01-02"), types.TypeDate, "2024-01-02", false},
		{types.NewVarchar("2024-01-02 03:04:05"), types.TypeTimestamp, "2024-01-02 03:04:05.000000", false},
		{types.NewDate(0), types.TypeTimestamp, "1970-01-01 00:00:00.000000", false},
		{types.NewVarchar("true"), types.TypeBoolean, "true", false},
		{types.NewInteger(3), types.TypeDouble, "3", false},
	}
	for _, tc := range cases {
		got, err := CastValue(tc.in, tc.target)
		if tc.fails {
			assert.Error(t, err, "cast %s to %s", tc.in, tc.target)
			continue
		}
		require.NoError(t, err, "cast %s to %s", tc.in, tc.target)
		assert.Equal(t, tc.want, got.String())
	}
}

func TestTimestampToDateFloorsNegative(t *testing.T) {
	// One microsecond before the epoch lands on the prior day.
	got, err := CastValue(types.NewTimestamp(-1), types.TypeDate)
	require.NoError(t, err)
	assert.Equal(t, "1969-12-31", got.String())
}

func TestCaseWhen(t *testing.T) {
	chunk := intChunk(t, 1, 5, nil)
	col := NewColumnRef(0, types.TypeBigInt, "a")
	caseExpr := &CaseWhen{
		Branches: []CaseBranch{
			{When: NewComparison(CmpGreater, col, NewConstant(types.NewBigInt(3))), Then: NewConstant(types.NewVarchar("big"))},
			{When: NewComparison(CmpLessEqual, col, NewConstant(types.NewBigInt(3))), Then: NewConstant(types.NewVarchar("small"))},
		},
		Else: NewConstant(types.NewVarchar("unknown")),
		Type: types.TypeVarchar,
	}
	out, err := caseExpr.Eval(NewContext(), chunk)
	require.NoError(t, err)
	assert.Equal(t, "small", out.MustGet(0).Str())
	assert.Equal(t, "big", out.MustGet(1).Str())
	// NULL conditions do not match; the else arm wins.
	assert.Equal(t, "unknown", out.MustGet(2).Str())
}

func TestStringFunctions(t *testing.T) {
	chunk := intChunk(t, 1)
	eval := func(name string, args ...Expression) types.Value {
		typs := make([]types.LogicalType, len(args))
		for i, a := range args {
			typs[i] = a.ReturnType()
		}
		fn, err := Resolve(name, typs)
		require.NoError(t, err)
		out, err := NewFunctionExpr(fn, args...).Eval(NewContext(), chunk)
		require.NoError(t, err)
		return out.MustGet(0)
	}
	assert.Equal(t, int64(5), eval("length", NewConstant(types.NewVarchar("hello"))).Int64())
	assert.Equal(t, "HELLO", eval("upper", NewConstant(types.NewVarchar("hello"))).Str())
	assert.Equal(t, "ab", eval("concat",
		NewConstant(types.NewVarchar("a")), NewConstant(types.NewVarchar("b"))).Str())
	assert.Equal(t, "ell", eval("substring",
		NewConstant(types.NewVarchar("hello")),
		NewConstant(types.NewBigInt(2)),
		NewConstant(types.NewBigInt(3))).Str())
}

func TestParameterRef(t *testing.T) {
	chunk := intChunk(t, 1, 2)
	ctx := NewContext()
	ctx.Params = []types.Value{types.NewBigInt(9)}
	p := &ParameterRef{Ordinal: 0, Type: types.TypeBigInt}
	out, err := p.Eval(ctx, chunk)
	require.NoError(t, err)
	assert.Equal(t, int64(9), out.MustGet(1).Int64())

	missing := &ParameterRef{Ordinal: 5, Type: types.TypeBigInt}
	_, err = missing.Eval(ctx, chunk)
	assert.Error(t, err)
}

// stubSubqueryExec returns canned rows and records calls.
type stubSubqueryExec struct {
	rows  [][]types.Value
	calls int
}

func (s *stubSubqueryExec) ExecuteSubquery(plan any, params []types.Value) ([][]types.Value, error) {
	s.calls++
	return s.rows, nil
}

func TestScalarSubqueryCaching(t *testing.T) {
	stub := &stubSubqueryExec{rows: [][]types.Value{{types.NewBigInt(42)}}}
	ctx := NewContext()
	ctx.Subquery = stub
	sub := &Subquery{Kind: SubqueryScalar, Plan: "p", Type: types.TypeBigInt}
	chunk := intChunk(t, 1, 2, 3)
	out, err := sub.Eval(ctx, chunk)
	require.NoError(t, err)
	assert.Equal(t, int64(42), out.MustGet(2).Int64())
	// Second evaluation with the same context hits its cache.
	_, err = sub.Eval(ctx, chunk)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.calls)
}

func TestInSubqueryNullSemantics(t *testing.T) {
	stub := &stubSubqueryExec{rows: [][]types.Value{
		{types.NewBigInt(1)}, {types.NewNull(types.TypeBigInt)},
	}}
	ctx := NewContext()
	ctx.Subquery = stub
	chunk := intChunk(t, 1, 2)
	sub := &Subquery{
		Kind:    SubqueryIn,
		Plan:    "p",
		Type:    types.TypeBigInt,
		Operand: NewColumnRef(0, types.TypeBigInt, "a"),
	}
	out, err := sub.Eval(ctx, chunk)
	require.NoError(t, err)
	assert.True(t, out.MustGet(0).Bool(), "1 IN (1, NULL) is true")
	assert.True(t, out.IsNull(1), "2 IN (1, NULL) is NULL")
}
