package exec

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turingworks/prismdb/internal/aggregate"
	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/expr"
	"github.com/turingworks/prismdb/internal/storage"
	"github.com/turingworks/prismdb/internal/types"
)

func buildTable(t *testing.T, rows int) *storage.DataTable {
	t.Helper()
	table := storage.NewDataTable([]types.LogicalType{types.TypeBigInt, types.TypeVarchar})
	for i := 0; i < rows; i++ {
		name := "even"
		if i%2 == 1 {
			name = "odd"
		}
		require.NoError(t, table.AppendRow([]types.Value{
			types.NewBigInt(int64(i)),
			types.NewVarchar(name),
		}))
	}
	return table
}

func scanPlanFor(table *storage.DataTable) *TableScanPlan {
	return &TableScanPlan{
		TableName: "t",
		Table:     table,
		ColumnIDs: []int{0, 1},
		Cols: []Column{
			{Name: "a", Type: types.TypeBigInt},
			{Name: "s", Type: types.TypeVarchar},
		},
		Limit: -1,
	}
}

func drainRows(t *testing.T, plan Plan, threads int) [][]types.Value {
	t.Helper()
	qc := NewQueryContext(threads, DefaultMorselSize, 0)
	engine, err := NewEngine(plan, qc)
	require.NoError(t, err)
	var rows [][]types.Value
	for {
		chunk, err := engine.Next()
		require.NoError(t, err)
		if chunk == nil {
			return rows
		}
		for i := 0; i < chunk.Cardinality(); i++ {
			row, err := chunk.Row(i)
			require.NoError(t, err)
			rows = append(rows, row)
		}
	}
}

func TestMorselGeneratorCoversAllRows(t *testing.T) {
	table := buildTable(t, 130000) // spans two row groups
	morsels := morselGenerator(table, nil, 10240)
	total := 0
	for _, m := range morsels {
		total += m.end - m.start
	}
	assert.Equal(t, 130000, total)
}

func TestTableScanEmitsEverything(t *testing.T) {
	table := buildTable(t, 5000)
	rows := drainRows(t, scanPlanFor(table), 1)
	require.Len(t, rows, 5000)
	assert.Equal(t, int64(0), rows[0][0].Int64())
	assert.Equal(t, int64(4999), rows[4999][0].Int64())
}

func TestFilterFastPaths(t *testing.T) {
	table := buildTable(t, 100)
	scan := scanPlanFor(table)
	filter := &FilterPlan{
		Child: scan,
		Predicate: expr.NewComparison(expr.CmpGreaterEqual,
			expr.NewColumnRef(0, types.TypeBigInt, "a"),
			expr.NewConstant(types.NewBigInt(0))),
	}
	rows := drainRows(t, filter, 1)
	assert.Len(t, rows, 100, "all-true filter forwards everything")

	filter.Predicate = expr.NewComparison(expr.CmpLess,
		expr.NewColumnRef(0, types.TypeBigInt, "a"),
		expr.NewConstant(types.NewBigInt(0)))
	rows = drainRows(t, filter, 1)
	assert.Empty(t, rows, "all-false filter yields an empty stream")
}

func TestLimitOffsetTrims(t *testing.T) {
	table := buildTable(t, 100)
	plan := &LimitPlan{Child: scanPlanFor(table), Limit: 10, Offset: 95}
	rows := drainRows(t, plan, 1)
	require.Len(t, rows, 5)
	assert.Equal(t, int64(95), rows[0][0].Int64())
}

func TestJoinPartitionBuildAndProbe(t *testing.T) {
	table := newJoinTable(2)
	for i := 0; i < 1000; i++ {
		keys := []types.Value{types.NewBigInt(int64(i % 100))}
		require.NoError(t, table.add(i%2, buildRow{
			hash:    hashValues(keys),
			keys:    keys,
			payload: []types.Value{types.NewBigInt(int64(i))},
		}))
	}
	table.freeze()
	assert.Equal(t, 1000, table.size())

	probeKeys := []types.Value{types.NewBigInt(42)}
	matches := 0
	table.probe(hashValues(probeKeys), probeKeys, func(row *buildRow) {
		matches++
		assert.Equal(t, int64(42), row.keys[0].Int64())
	})
	assert.Equal(t, 10, matches)

	missing := []types.Value{types.NewBigInt(5000)}
	matches = 0
	table.probe(hashValues(missing), missing, func(*buildRow) { matches++ })
	assert.Zero(t, matches)
}

func TestFrozenTableRejectsInserts(t *testing.T) {
	table := newJoinTable(1)
	table.freeze()
	err := table.add(0, buildRow{})
	require.Error(t, err)
}

func TestSchedulerRunsAllTasks(t *testing.T) {
	sched := newScheduler(4)
	var mu sync.Mutex
	seen := map[int]bool{}
	for i := 0; i < 100; i++ {
		i := i
		sched.submit(func(worker int) error {
			mu.Lock()
			seen[i] = true
			mu.Unlock()
			return nil
		})
	}
	qc := NewQueryContext(4, DefaultMorselSize, 0)
	require.NoError(t, sched.run(qc))
	assert.Len(t, seen, 100)
}

func TestSchedulerPropagatesFirstError(t *testing.T) {
	sched := newScheduler(4)
	boom := errorx.IOf("disk gone")
	for i := 0; i < 50; i++ {
		i := i
		sched.submit(func(worker int) error {
			if i == 25 {
				return boom
			}
			return nil
		})
	}
	qc := NewQueryContext(4, DefaultMorselSize, 0)
	err := sched.run(qc)
	require.Error(t, err)
	assert.Equal(t, boom, qc.FirstError(err))
	assert.True(t, qc.Cancelled(), "failure cancels sibling tasks")
}

func TestCancellationStopsScan(t *testing.T) {
	table := buildTable(t, 50000)
	qc := NewQueryContext(1, DefaultMorselSize, 0)
	engine, err := NewEngine(scanPlanFor(table), qc)
	require.NoError(t, err)
	_, err = engine.Next()
	require.NoError(t, err)
	qc.Cancel()
	_, err = engine.Next()
	require.Error(t, err)
	assert.True(t, errorx.IsCancelled(err))
}

func TestMemoryLimitFailsSort(t *testing.T) {
	table := buildTable(t, 20000)
	plan := &SortPlan{
		Child: scanPlanFor(table),
		Keys: []SortKey{{
			Expr: expr.NewColumnRef(0, types.TypeBigInt, "a"),
		}},
		TopN: -1,
	}
	qc := NewQueryContext(1, DefaultMorselSize, 1024)
	engine, err := NewEngine(plan, qc)
	require.NoError(t, err)
	_, err = engine.Next()
	require.Error(t, err)
	assert.True(t, errorx.IsOutOfMemory(qc.FirstError(err)))
}

func TestSortOrdersAndTopNAgrees(t *testing.T) {
	table := buildTable(t, 10000)
	keys := []SortKey{{
		Expr: expr.NewColumnRef(0, types.TypeBigInt, "a"),
		Desc: true,
	}}
	full := drainRows(t, &SortPlan{Child: scanPlanFor(table), Keys: keys, TopN: -1}, 4)
	require.Len(t, full, 10000)
	for i := 1; i < len(full); i++ {
		assert.GreaterOrEqual(t, full[i-1][0].Int64(), full[i][0].Int64())
	}
	top := drainRows(t, &SortPlan{Child: scanPlanFor(table), Keys: keys, TopN: 7}, 4)
	require.Len(t, top, 7)
	for i := 0; i < 7; i++ {
		assert.Equal(t, int64(9999-i), top[i][0].Int64())
	}
}

func TestHashAggregateParallelMatchesSerial(t *testing.T) {
	table := buildTable(t, 60000)
	mkPlan := func() *HashAggregatePlan {
		countFn := mustAggregate(t, "count")
		sumFn := mustAggregate(t, "sum")
		return &HashAggregatePlan{
			Child:   scanPlanFor(table),
			GroupBy: []expr.Expression{expr.NewColumnRef(1, types.TypeVarchar, "s")},
			Aggregates: []*BoundAggregate{
				{Fn: countFn, RetType: types.TypeBigInt, Name: "count"},
				{Fn: sumFn, Args: []expr.Expression{expr.NewColumnRef(0, types.TypeBigInt, "a")}, RetType: types.TypeBigInt, Name: "sum"},
			},
			Cols: []Column{
				{Name: "s", Type: types.TypeVarchar},
				{Name: "count", Type: types.TypeBigInt},
				{Name: "sum", Type: types.TypeBigInt},
			},
		}
	}
	serial := toMap(drainRows(t, mkPlan(), 1))
	parallel := toMap(drainRows(t, mkPlan(), 8))
	assert.Equal(t, serial, parallel)
	assert.Equal(t, int64(30000), parallel["even"][0])
}

func toMap(rows [][]types.Value) map[string][]int64 {
	out := make(map[string][]int64)
	for _, row := range rows {
		out[row[0].Str()] = []int64{row[1].Int64(), row[2].Int64()}
	}
	return out
}

func mustAggregate(t *testing.T, name string) *aggregate.Function {
	t.Helper()
	fn, err := aggregate.Lookup(name)
	require.NoError(t, err)
	return fn
}

func TestCTEMaterializeExecutesOnce(t *testing.T) {
	table := buildTable(t, 100)
	cols := scanPlanFor(table).Cols
	inner := scanPlanFor(table)
	scanA := &CTEScanPlan{Name: "c", Cols: cols}
	scanB := &CTEScanPlan{Name: "c", Cols: cols}
	union := &SetOpPlan{Op: SetUnion, All: true, Left: scanA, Right: scanB}
	plan := &CTEMaterializePlan{Name: "c", Input: inner, Child: union}
	rows := drainRows(t, plan, 1)
	assert.Len(t, rows, 200, "both scans replay the single materialization")
}

func TestEmptyInputThroughOperators(t *testing.T) {
	table := storage.NewDataTable([]types.LogicalType{types.TypeBigInt, types.TypeVarchar})
	scan := scanPlanFor(table)
	countFn := mustAggregate(t, "count")
	agg := &HashAggregatePlan{
		Child: scan,
		Aggregates: []*BoundAggregate{
			{Fn: countFn, RetType: types.TypeBigInt, Name: "count"},
		},
		Cols: []Column{{Name: "count", Type: types.TypeBigInt}},
	}
	rows := drainRows(t, agg, 2)
	require.Len(t, rows, 1, "aggregate without GROUP BY emits one row on empty input")
	assert.Equal(t, int64(0), rows[0][0].Int64())

	sorted := drainRows(t, &SortPlan{
		Child: scan,
		Keys:  []SortKey{{Expr: expr.NewColumnRef(0, types.TypeBigInt, "a")}},
		TopN:  -1,
	}, 2)
	assert.Empty(t, sorted)
}
