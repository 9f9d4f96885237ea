package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turingworks/prismdb/internal/types"
)

func parseSelect(t *testing.T, src string) *SelectStmt {
	t.Helper()
	stmt, err := Parse(src)
	require.NoError(t, err)
	sel, ok := stmt.(*SelectStmt)
	require.True(t, ok, "expected select, got %T", stmt)
	return sel
}

func TestParseCreateTable(t *testing.T) {
	stmt, err := Parse("CREATE TABLE t (a INTEGER, b VARCHAR, c DECIMAL(10,2));")
	require.NoError(t, err)
	create := stmt.(*CreateTableStmt)
	assert.Equal(t, "t", create.Name)
	require.Len(t, create.Columns, 3)
	assert.Equal(t, types.Integer, create.Columns[0].Type.ID)
	assert.Equal(t, types.Varchar, create.Columns[1].Type.ID)
	assert.Equal(t, uint8(10), create.Columns[2].Type.Precision)
	assert.Equal(t, uint8(2), create.Columns[2].Type.Scale)
}

func TestParseInsert(t *testing.T) {
	stmt, err := Parse("INSERT INTO t (a, b) VALUES (1, 'x'), (2, 'y')")
	require.NoError(t, err)
	ins := stmt.(*InsertStmt)
	assert.Equal(t, "t", ins.Table)
	assert.Equal(t, []string{"a", "b"}, ins.Columns)
	require.Len(t, ins.Rows, 2)
	require.Len(t, ins.Rows[0], 2)
}

func TestParseSelectShape(t *testing.T) {
	sel := parseSelect(t, `
		SELECT dept, SUM(salary) AS total
		FROM emp
		WHERE salary > 100 AND dept != 'hr'
		GROUP BY dept
		HAVING SUM(salary) > 500
		ORDER BY dept ASC NULLS FIRST
		LIMIT 10 OFFSET 5`)
	require.Len(t, sel.Items, 2)
	assert.Equal(t, "total", sel.Items[1].Alias)
	assert.NotNil(t, sel.Where)
	require.Len(t, sel.GroupBy, 1)
	assert.NotNil(t, sel.Having)
	require.Len(t, sel.OrderBy, 1)
	assert.False(t, sel.OrderBy[0].Desc)
	require.NotNil(t, sel.OrderBy[0].NullsFirst)
	assert.True(t, *sel.OrderBy[0].NullsFirst)
	assert.NotNil(t, sel.Limit)
	assert.NotNil(t, sel.Offset)
}

func TestParseJoins(t *testing.T) {
	sel := parseSelect(t, `
		SELECT o.id, c.name
		FROM orders o INNER JOIN customers c ON o.cust = c.id
		LEFT JOIN regions r ON c.region = r.id`)
	outerJoin, ok := sel.From.(*JoinRef)
	require.True(t, ok)
	assert.Equal(t, "LEFT", outerJoin.Type)
	inner, ok := outerJoin.Left.(*JoinRef)
	require.True(t, ok)
	assert.Equal(t, "INNER", inner.Type)
	base := inner.Left.(*BaseTable)
	assert.Equal(t, "orders", base.Name)
	assert.Equal(t, "o", base.Alias)
}

func TestParseWindow(t *testing.T) {
	sel := parseSelect(t, `
		SELECT d, AVG(p) OVER (PARTITION BY g ORDER BY d ROWS BETWEEN 1 PRECEDING AND CURRENT ROW)
		FROM prices`)
	call, ok := sel.Items[1].Expr.(*FuncCall)
	require.True(t, ok)
	require.NotNil(t, call.Over)
	require.Len(t, call.Over.PartitionBy, 1)
	require.Len(t, call.Over.OrderBy, 1)
	require.NotNil(t, call.Over.Frame)
	assert.Equal(t, "ROWS", call.Over.Frame.Mode)
	assert.Equal(t, "PRECEDING", call.Over.Frame.StartKind)
	assert.Equal(t, "CURRENT", call.Over.Frame.EndKind)
}

func TestParseQualify(t *testing.T) {
	sel := parseSelect(t, `
		SELECT dept, salary FROM emp
		QUALIFY ROW_NUMBER() OVER (PARTITION BY dept ORDER BY salary DESC) = 1`)
	require.NotNil(t, sel.Qualify)
}

func TestParseWithCTE(t *testing.T) {
	sel := parseSelect(t, `
		WITH hot AS (SELECT a FROM t WHERE a > 10),
		     cold AS (SELECT a FROM t WHERE a <= 10)
		SELECT * FROM hot`)
	require.Len(t, sel.With, 2)
	assert.Equal(t, "hot", sel.With[0].Name)
	assert.Equal(t, "cold", sel.With[1].Name)
}

func TestParseSetOps(t *testing.T) {
	sel := parseSelect(t, "SELECT a FROM t UNION ALL SELECT b FROM u ORDER BY 1 LIMIT 3")
	require.Len(t, sel.SetOps, 1)
	assert.Equal(t, "UNION", sel.SetOps[0].Op)
	assert.True(t, sel.SetOps[0].All)
	require.Len(t, sel.OrderBy, 1)
	assert.NotNil(t, sel.Limit)
}

func TestParseSubqueries(t *testing.T) {
	sel := parseSelect(t, `
		SELECT a FROM t
		WHERE a IN (SELECT x FROM u)
		  AND EXISTS (SELECT 1 FROM v)
		  AND a > (SELECT AVG(x) FROM u)`)
	require.NotNil(t, sel.Where)
}

func TestParseCaseAndCast(t *testing.T) {
	sel := parseSelect(t, `
		SELECT CASE WHEN a > 1 THEN 'big' ELSE 'small' END,
		       CAST(a AS DOUBLE),
		       DATE '2024-01-01'
		FROM t`)
	_, ok := sel.Items[0].Expr.(*CaseExpr)
	assert.True(t, ok)
	_, ok = sel.Items[1].Expr.(*CastExpr)
	assert.True(t, ok)
	cast, ok := sel.Items[2].Expr.(*CastExpr)
	require.True(t, ok)
	assert.Equal(t, types.Date, cast.Type.ID)
}

func TestParseStringEscapes(t *testing.T) {
	sel := parseSelect(t, "SELECT 'it''s'")
	lit := sel.Items[0].Expr.(*StringLit)
	assert.Equal(t, "it's", lit.Value)
}

func TestParseParams(t *testing.T) {
	sel := parseSelect(t, "SELECT a FROM t WHERE a > ? AND b = ?")
	require.NotNil(t, sel.Where)
	var params []int
	walkExpr(sel.Where, func(e Expr) {
		if p, ok := e.(*ParamExpr); ok {
			params = append(params, p.Ordinal)
		}
	})
	assert.Equal(t, []int{0, 1}, params)
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{
		"SELEC a FROM t",
		"SELECT a FROM",
		"SELECT 'unterminated",
		"CREATE TABLE t (a INTEGER", // missing paren
		"SELECT a FROM t WHERE",
	} {
		_, err := Parse(src)
		assert.Error(t, err, src)
	}
}

func TestParseComments(t *testing.T) {
	sel := parseSelect(t, "SELECT a -- trailing comment\nFROM t")
	require.Len(t, sel.Items, 1)
}
