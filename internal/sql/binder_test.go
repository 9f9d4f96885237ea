package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turingworks/prismdb/internal/catalog"
	"github.com/turingworks/prismdb/internal/exec"
	"github.com/turingworks/prismdb/internal/storage"
	"github.com/turingworks/prismdb/internal/types"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat := catalog.New()
	_, err := cat.CreateTable("emp", []catalog.Column{
		{Name: "dept", Type: types.TypeVarchar},
		{Name: "salary", Type: types.TypeInteger},
	})
	require.NoError(t, err)
	_, err = cat.CreateTable("orders", []catalog.Column{
		{Name: "id", Type: types.TypeInteger},
		{Name: "cust", Type: types.TypeInteger},
	})
	require.NoError(t, err)
	return cat
}

func bindQuery(t *testing.T, cat *catalog.Catalog, src string) exec.Plan {
	t.Helper()
	stmt, err := Parse(src)
	require.NoError(t, err)
	plan, err := NewBinder(cat).BindSelect(stmt.(*SelectStmt))
	require.NoError(t, err)
	return plan
}

func TestBindSimpleProjection(t *testing.T) {
	plan := bindQuery(t, testCatalog(t), "SELECT dept, salary FROM emp")
	proj, ok := plan.(*exec.ProjectionPlan)
	require.True(t, ok)
	schema := proj.Schema()
	require.Len(t, schema, 2)
	assert.Equal(t, "dept", schema[0].Name)
	assert.Equal(t, types.Varchar, schema[0].Type.ID)
}

func TestBindPushesZonePredicates(t *testing.T) {
	plan := bindQuery(t, testCatalog(t), "SELECT salary FROM emp WHERE salary > 100 AND dept = 'eng'")
	proj := plan.(*exec.ProjectionPlan)
	scan, ok := proj.Child.(*exec.TableScanPlan)
	require.True(t, ok, "single-table filters fold into the scan")
	require.Len(t, scan.Pushed, 2)
	assert.Equal(t, storage.CmpGt, scan.Pushed[0].Op)
	assert.NotNil(t, scan.Residual)
}

func TestBindAggregatePlanShape(t *testing.T) {
	plan := bindQuery(t, testCatalog(t),
		"SELECT dept, SUM(salary) FROM emp GROUP BY dept HAVING COUNT(*) > 1")
	proj := plan.(*exec.ProjectionPlan)
	filter, ok := proj.Child.(*exec.FilterPlan)
	require.True(t, ok, "HAVING becomes a filter over the aggregate")
	agg, ok := filter.Child.(*exec.HashAggregatePlan)
	require.True(t, ok)
	require.Len(t, agg.GroupBy, 1)
	// SUM from the projection plus COUNT from HAVING.
	require.Len(t, agg.Aggregates, 2)
	assert.Equal(t, types.BigInt, agg.Aggregates[0].RetType.ID)
}

func TestBindTopNRewrite(t *testing.T) {
	plan := bindQuery(t, testCatalog(t), "SELECT salary FROM emp ORDER BY salary DESC LIMIT 5")
	limit := plan.(*exec.LimitPlan)
	sp, ok := limit.Child.(*exec.SortPlan)
	require.True(t, ok)
	assert.Equal(t, int64(5), sp.TopN, "Limit over Sort becomes TopN")
}

func TestBindJoinKeysSplit(t *testing.T) {
	plan := bindQuery(t, testCatalog(t), `
		SELECT e.dept FROM emp e INNER JOIN orders o ON e.salary = o.id`)
	proj := plan.(*exec.ProjectionPlan)
	join, ok := proj.Child.(*exec.HashJoinPlan)
	require.True(t, ok)
	require.Len(t, join.ProbeKeys, 1)
	require.Len(t, join.BuildKeys, 1)
	assert.Equal(t, exec.JoinInner, join.Type)
}

func TestBindErrors(t *testing.T) {
	cat := testCatalog(t)
	cases := []string{
		"SELECT missing FROM emp",
		"SELECT dept FROM nope",
		"SELECT dept, salary FROM emp GROUP BY dept", // salary not grouped
		"SELECT e.dept FROM emp e INNER JOIN emp e ON e.salary = e.salary", // duplicate alias
		"SELECT dept FROM emp LIMIT dept",
	}
	for _, src := range cases {
		stmt, err := Parse(src)
		require.NoError(t, err, src)
		_, err = NewBinder(cat).BindSelect(stmt.(*SelectStmt))
		assert.Error(t, err, src)
	}
}

func TestBindInsertReordersAndFillsNulls(t *testing.T) {
	cat := testCatalog(t)
	stmt, err := Parse("INSERT INTO emp (salary) VALUES (100)")
	require.NoError(t, err)
	tbl, plan, err := BindInsert(cat, stmt.(*InsertStmt))
	require.NoError(t, err)
	assert.Equal(t, "emp", tbl.Name)
	vp := plan.(*exec.ValuesPlan)
	require.Len(t, vp.Rows, 1)
	require.Len(t, vp.Rows[0], 2, "missing columns fill with NULL")
}
