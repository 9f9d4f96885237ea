package prismdb

import (
	"fmt"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConn(t *testing.T, config ...Config) *Connection {
	t.Helper()
	db, err := ConnectInMemory(config...)
	require.NoError(t, err)
	return db.Connect()
}

func mustExec(t *testing.T, conn *Connection, stmts ...string) {
	t.Helper()
	for _, s := range stmts {
		stream, err := conn.Execute(s)
		require.NoError(t, err, s)
		require.NoError(t, stream.Close())
	}
}

func query(t *testing.T, conn *Connection, sql string) [][]Value {
	t.Helper()
	stream, err := conn.Execute(sql)
	require.NoError(t, err, sql)
	rows, err := stream.Rows()
	require.NoError(t, err, sql)
	return rows
}

func rowStrings(rows [][]Value) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = make([]string, len(row))
		for j, v := range row {
			out[i][j] = v.String()
		}
	}
	return out
}

func TestAggregateScenario(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn,
		"CREATE TABLE t (a INTEGER)",
		"INSERT INTO t VALUES (1), (2), (3), (4), (5)")
	rows := query(t, conn, "SELECT SUM(a), COUNT(*), AVG(a) FROM t;")
	require.Len(t, rows, 1)
	assert.Equal(t, int64(15), rows[0][0].Int64())
	assert.Equal(t, int64(5), rows[0][1].Int64())
	assert.Equal(t, 3.0, rows[0][2].Float64())
}

func TestFilterSortScenario(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn,
		"CREATE TABLE t (a INTEGER)",
		"INSERT INTO t VALUES (1), (2), (3), (4), (5)")
	rows := query(t, conn, "SELECT a FROM t WHERE a > 2 ORDER BY a DESC;")
	require.Len(t, rows, 3)
	assert.Equal(t, int64(5), rows[0][0].Int64())
	assert.Equal(t, int64(4), rows[1][0].Int64())
	assert.Equal(t, int64(3), rows[2][0].Int64())
}

func setupEmp(t *testing.T, conn *Connection) {
	mustExec(t, conn,
		"CREATE TABLE emp (dept VARCHAR, salary INTEGER)",
		`INSERT INTO emp VALUES ('eng', 100), ('eng', 200), ('sales', 150), ('sales', 300), ('sales', 300)`)
}

func TestGroupByScenario(t *testing.T) {
	conn := newConn(t)
	setupEmp(t, conn)
	rows := query(t, conn, "SELECT dept, SUM(salary) FROM emp GROUP BY dept ORDER BY dept;")
	require.Equal(t, [][]string{
		{"eng", "300"},
		{"sales", "750"},
	}, rowStrings(rows))
}

func TestQualifyScenario(t *testing.T) {
	conn := newConn(t)
	setupEmp(t, conn)
	rows := query(t, conn, `
		SELECT dept, salary FROM emp
		QUALIFY ROW_NUMBER() OVER (PARTITION BY dept ORDER BY salary DESC) = 1
		ORDER BY dept;`)
	require.Equal(t, [][]string{
		{"eng", "200"},
		{"sales", "300"},
	}, rowStrings(rows))
}

func setupOrders(t *testing.T, conn *Connection) {
	mustExec(t, conn,
		"CREATE TABLE orders (id INTEGER, cust INTEGER)",
		"INSERT INTO orders VALUES (1, 10), (2, 10), (3, 20)",
		"CREATE TABLE customers (id INTEGER, name VARCHAR)",
		`INSERT INTO customers VALUES (10, 'A'), (20, 'B'), (30, 'C')`)
}

func TestInnerJoinScenario(t *testing.T) {
	conn := newConn(t)
	setupOrders(t, conn)
	rows := query(t, conn, `
		SELECT o.id, c.name FROM orders o
		INNER JOIN customers c ON o.cust = c.id
		ORDER BY o.id;`)
	require.Equal(t, [][]string{
		{"1", "A"},
		{"2", "A"},
		{"3", "B"},
	}, rowStrings(rows))
}

func TestLeftJoinNullScenario(t *testing.T) {
	conn := newConn(t)
	setupOrders(t, conn)
	rows := query(t, conn, `
		SELECT c.name FROM customers c
		LEFT JOIN orders o ON c.id = o.cust
		WHERE o.id IS NULL;`)
	require.Equal(t, [][]string{{"C"}}, rowStrings(rows))
}

func TestJoinTypes(t *testing.T) {
	conn := newConn(t)
	setupOrders(t, conn)
	right := query(t, conn, `
		SELECT o.id, c.name FROM orders o
		RIGHT JOIN customers c ON o.cust = c.id
		ORDER BY c.name;`)
	require.Len(t, right, 4)
	assert.Equal(t, "NULL", right[3][0].String())
	assert.Equal(t, "C", right[3][1].Str())

	semi := query(t, conn, `
		SELECT c.name FROM customers c
		SEMI JOIN orders o ON c.id = o.cust
		ORDER BY c.name;`)
	require.Equal(t, [][]string{{"A"}, {"B"}}, rowStrings(semi))

	anti := query(t, conn, `
		SELECT c.name FROM customers c
		ANTI JOIN orders o ON c.id = o.cust;`)
	require.Equal(t, [][]string{{"C"}}, rowStrings(anti))

	full := query(t, conn, `
		SELECT o.id, c.name FROM orders o
		FULL JOIN customers c ON o.cust = c.id;`)
	assert.Len(t, full, 4)
}

func TestWindowRunningAverageScenario(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn,
		"CREATE TABLE prices (d DATE, p DOUBLE)",
		`INSERT INTO prices VALUES
			(DATE '2024-01-01', 10.0),
			(DATE '2024-01-02', 12.0),
			(DATE '2024-01-03', 11.0),
			(DATE '2024-01-04', 15.0)`)
	rows := query(t, conn, `
		SELECT d, AVG(p) OVER (ORDER BY d ROWS BETWEEN 1 PRECEDING AND CURRENT ROW)
		FROM prices ORDER BY d;`)
	require.Len(t, rows, 4)
	want := []float64{10.0, 11.0, 11.5, 13.0}
	for i, row := range rows {
		assert.InDelta(t, want[i], row[1].Float64(), 1e-12, "row %d", i)
	}
}

func TestWindowRankingFunctions(t *testing.T) {
	conn := newConn(t)
	setupEmp(t, conn)
	rows := query(t, conn, `
		SELECT dept, salary,
		       RANK() OVER (PARTITION BY dept ORDER BY salary DESC) AS r,
		       DENSE_RANK() OVER (PARTITION BY dept ORDER BY salary DESC) AS dr
		FROM emp ORDER BY dept, salary DESC;`)
	require.Len(t, rows, 5)
	// sales has two tied 300 salaries: rank 1,1 then 3; dense rank 1,1,2.
	assert.Equal(t, int64(1), rows[2][2].Int64())
	assert.Equal(t, int64(1), rows[3][2].Int64())
	assert.Equal(t, int64(3), rows[4][2].Int64())
	assert.Equal(t, int64(2), rows[4][3].Int64())
}

func TestWindowSingleRowBoundaries(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn,
		"CREATE TABLE one (x INTEGER)",
		"INSERT INTO one VALUES (42)")
	rows := query(t, conn, "SELECT ROW_NUMBER() OVER () FROM one")
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0][0].Int64())

	rows = query(t, conn, "SELECT RANK() OVER (ORDER BY x) FROM one")
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0][0].Int64())
}

func TestLagLeadValueFunctions(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn,
		"CREATE TABLE seq (x INTEGER)",
		"INSERT INTO seq VALUES (1), (2), (3)")
	rows := query(t, conn, `
		SELECT x, LAG(x) OVER (ORDER BY x), LEAD(x) OVER (ORDER BY x)
		FROM seq ORDER BY x`)
	require.Equal(t, [][]string{
		{"1", "NULL", "2"},
		{"2", "1", "3"},
		{"3", "2", "NULL"},
	}, rowStrings(rows))
}

func TestAllNullsAggregates(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn,
		"CREATE TABLE n (x INTEGER)",
		"INSERT INTO n VALUES (NULL), (NULL), (NULL)")
	rows := query(t, conn, "SELECT COUNT(x), COUNT(*), SUM(x), AVG(x), MIN(x), MAX(x) FROM n")
	require.Len(t, rows, 1)
	assert.Equal(t, int64(0), rows[0][0].Int64())
	assert.Equal(t, int64(3), rows[0][1].Int64())
	for _, idx := range []int{2, 3, 4, 5} {
		assert.True(t, rows[0][idx].Null, "column %d", idx)
	}
}

func TestEmptyTableAggregates(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn, "CREATE TABLE e (x INTEGER)")
	rows := query(t, conn, "SELECT COUNT(*), SUM(x) FROM e")
	require.Len(t, rows, 1)
	assert.Equal(t, int64(0), rows[0][0].Int64())
	assert.True(t, rows[0][1].Null)

	assert.Empty(t, query(t, conn, "SELECT x FROM e WHERE x > 0"))
	assert.Empty(t, query(t, conn, "SELECT x FROM e ORDER BY x"))
}

func TestLimitOffsetAndNesting(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn, "CREATE TABLE t (a INTEGER)")
	for i := 0; i < 10; i++ {
		mustExec(t, conn, fmt.Sprintf("INSERT INTO t VALUES (%d)", i))
	}
	rows := query(t, conn, "SELECT a FROM t ORDER BY a LIMIT 3 OFFSET 4")
	require.Equal(t, [][]string{{"4"}, {"5"}, {"6"}}, rowStrings(rows))

	// Limit(n) over Limit(m) equals Limit(min(n, m)).
	rows = query(t, conn, "SELECT * FROM (SELECT a FROM t ORDER BY a LIMIT 5) sub LIMIT 8")
	assert.Len(t, rows, 5)
}

func TestSetOperations(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn,
		"CREATE TABLE l (x INTEGER)", "INSERT INTO l VALUES (1), (2), (2), (3)",
		"CREATE TABLE r (x INTEGER)", "INSERT INTO r VALUES (2), (3), (4)")
	union := query(t, conn, "SELECT x FROM l UNION SELECT x FROM r ORDER BY x")
	require.Equal(t, [][]string{{"1"}, {"2"}, {"3"}, {"4"}}, rowStrings(union))

	unionAll := query(t, conn, "SELECT x FROM l UNION ALL SELECT x FROM r")
	assert.Len(t, unionAll, 7)

	intersect := query(t, conn, "SELECT x FROM l INTERSECT SELECT x FROM r ORDER BY x")
	require.Equal(t, [][]string{{"2"}, {"3"}}, rowStrings(intersect))

	except := query(t, conn, "SELECT x FROM l EXCEPT SELECT x FROM r")
	require.Equal(t, [][]string{{"1"}}, rowStrings(except))
}

func TestCTEMaterialization(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn, "CREATE TABLE t (a INTEGER)", "INSERT INTO t VALUES (1), (2), (3)")
	rows := query(t, conn, `
		WITH big AS (SELECT a FROM t WHERE a >= 2)
		SELECT * FROM big UNION ALL SELECT * FROM big ORDER BY 1`)
	require.Equal(t, [][]string{{"2"}, {"2"}, {"3"}, {"3"}}, rowStrings(rows))
}

func TestScalarAndExistsSubqueries(t *testing.T) {
	conn := newConn(t)
	setupEmp(t, conn)
	rows := query(t, conn, "SELECT dept FROM emp WHERE salary > (SELECT AVG(salary) FROM emp) ORDER BY dept")
	require.Equal(t, [][]string{{"sales"}, {"sales"}}, rowStrings(rows))

	rows = query(t, conn, `
		SELECT dept, salary FROM emp e
		WHERE salary IN (SELECT MAX(salary) FROM emp)
		ORDER BY dept`)
	require.Equal(t, [][]string{{"sales", "300"}, {"sales", "300"}}, rowStrings(rows))

	rows = query(t, conn, "SELECT COUNT(*) FROM emp WHERE EXISTS (SELECT 1 FROM emp WHERE salary > 250)")
	assert.Equal(t, int64(5), rows[0][0].Int64())
}

func TestCorrelatedSubquery(t *testing.T) {
	conn := newConn(t)
	setupEmp(t, conn)
	rows := query(t, conn, `
		SELECT dept, salary FROM emp e
		WHERE salary = (SELECT MAX(salary) FROM emp m WHERE m.dept = e.dept)
		ORDER BY dept`)
	require.Equal(t, [][]string{
		{"eng", "200"},
		{"sales", "300"},
		{"sales", "300"},
	}, rowStrings(rows))
}

func TestDistinctAndCaseExpressions(t *testing.T) {
	conn := newConn(t)
	setupEmp(t, conn)
	rows := query(t, conn, "SELECT DISTINCT dept FROM emp ORDER BY dept")
	require.Equal(t, [][]string{{"eng"}, {"sales"}}, rowStrings(rows))

	rows = query(t, conn, `
		SELECT DISTINCT CASE WHEN salary >= 200 THEN 'high' ELSE 'low' END AS band
		FROM emp ORDER BY band`)
	require.Equal(t, [][]string{{"high"}, {"low"}}, rowStrings(rows))
}

func TestHavingClause(t *testing.T) {
	conn := newConn(t)
	setupEmp(t, conn)
	rows := query(t, conn, `
		SELECT dept, SUM(salary) FROM emp
		GROUP BY dept HAVING SUM(salary) > 500
		ORDER BY dept`)
	require.Equal(t, [][]string{{"sales", "750"}}, rowStrings(rows))
}

func TestPreparedStatements(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn, "CREATE TABLE t (a INTEGER)", "INSERT INTO t VALUES (1), (2), (3), (4)")
	stmt, err := conn.Prepare("SELECT a FROM t WHERE a > ? ORDER BY a")
	require.NoError(t, err)
	stream, err := stmt.Bind(NewBigIntValue(2)).Execute()
	require.NoError(t, err)
	rows, err := stream.Rows()
	require.NoError(t, err)
	require.Equal(t, [][]string{{"3"}, {"4"}}, rowStrings(rows))

	stream, err = stmt.Bind(NewBigIntValue(3)).Execute()
	require.NoError(t, err)
	rows, err = stream.Rows()
	require.NoError(t, err)
	require.Equal(t, [][]string{{"4"}}, rowStrings(rows))
}

func TestParallelDeterminism(t *testing.T) {
	run := func(threads int) [][]string {
		cfg := DefaultConfig()
		cfg.Execution.Threads = threads
		cfg.Execution.MorselSize = 4096
		conn := newConn(t, cfg)
		mustExec(t, conn, "CREATE TABLE big (g INTEGER, v INTEGER)")
		var stmt string
		for start := 0; start < 40000; start += 2000 {
			stmt = "INSERT INTO big VALUES "
			for i := 0; i < 2000; i++ {
				if i > 0 {
					stmt += ", "
				}
				n := start + i
				stmt += fmt.Sprintf("(%d, %d)", n%7, n)
			}
			mustExec(t, conn, stmt)
		}
		rows := query(t, conn, `
			SELECT g, COUNT(*), SUM(v), MIN(v), MAX(v), AVG(v)
			FROM big GROUP BY g ORDER BY g`)
		return rowStrings(rows)
	}
	single := run(1)
	parallel := run(8)
	assert.Equal(t, single, parallel)
	require.Len(t, single, 7)
}

func TestTypeAndCatalogErrors(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn, "CREATE TABLE t (a INTEGER)")

	_, err := conn.Execute("SELECT b FROM t")
	require.Error(t, err)
	assert.Equal(t, ErrCatalog, KindOf(err))

	_, err = conn.Execute("SELECT a FROM missing")
	require.Error(t, err)
	assert.Equal(t, ErrCatalog, KindOf(err))

	_, err = conn.Execute("SELEC a")
	require.Error(t, err)
	assert.Equal(t, ErrParse, KindOf(err))

	_, err = conn.Execute("CREATE TABLE t (a INTEGER)")
	require.Error(t, err, "duplicate table")
}

func TestDivisionByZeroSurfaces(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn, "CREATE TABLE t (a INTEGER)", "INSERT INTO t VALUES (1)")
	stream, err := conn.Execute("SELECT a / 0 FROM t")
	require.NoError(t, err)
	_, err = stream.Rows()
	require.Error(t, err)
	assert.Equal(t, ErrArithmetic, KindOf(err))
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.prsm")
	db, err := Connect(path)
	require.NoError(t, err)
	conn := db.Connect()
	mustExec(t, conn,
		"CREATE TABLE kv (k VARCHAR, v INTEGER)",
		`INSERT INTO kv VALUES ('alpha', 1), ('beta', 2), ('gamma', NULL)`)
	require.NoError(t, db.Checkpoint())

	reloaded, err := Connect(path)
	require.NoError(t, err)
	conn2 := reloaded.Connect()
	rows := query(t, conn2, "SELECT k, v FROM kv ORDER BY k")
	require.Equal(t, [][]string{
		{"alpha", "1"},
		{"beta", "2"},
		{"gamma", "NULL"},
	}, rowStrings(rows))
}

func TestOrderByNullsPlacement(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn, "CREATE TABLE t (a INTEGER)", "INSERT INTO t VALUES (2), (NULL), (1)")
	rows := query(t, conn, "SELECT a FROM t ORDER BY a")
	require.Equal(t, [][]string{{"1"}, {"2"}, {"NULL"}}, rowStrings(rows), "default NULLS LAST")

	rows = query(t, conn, "SELECT a FROM t ORDER BY a NULLS FIRST")
	require.Equal(t, [][]string{{"NULL"}, {"1"}, {"2"}}, rowStrings(rows))
}

func TestResultStreamColumnsAndClose(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn, "CREATE TABLE t (a INTEGER, b VARCHAR)", "INSERT INTO t VALUES (1, 'x')")
	stream, err := conn.Execute("SELECT a, b AS label FROM t")
	require.NoError(t, err)
	cols := stream.Columns()
	require.Len(t, cols, 2)
	assert.Equal(t, "a", cols[0].Name)
	assert.Equal(t, "label", cols[1].Name)
	require.NoError(t, stream.Close())
	chunk, err := stream.Next()
	require.NoError(t, err)
	assert.Nil(t, chunk, "closed stream yields no more chunks")
}

func TestSortIdempotence(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn, "CREATE TABLE t (a INTEGER)", "INSERT INTO t VALUES (3), (1), (2)")
	once := rowStrings(query(t, conn, "SELECT a FROM t ORDER BY a"))
	twice := rowStrings(query(t, conn, "SELECT * FROM (SELECT a FROM t ORDER BY a) s ORDER BY a"))
	assert.Equal(t, once, twice)
}

func TestStringAggAndStatsFunctions(t *testing.T) {
	conn := newConn(t)
	setupEmp(t, conn)
	rows := query(t, conn, `
		SELECT dept, STRING_AGG(CAST(salary AS VARCHAR), ',')
		FROM emp GROUP BY dept ORDER BY dept`)
	require.Len(t, rows, 2)
	assert.Equal(t, "100,200", rows[0][1].Str())

	rows = query(t, conn, "SELECT STDDEV_POP(salary), VARIANCE_POP(salary) FROM emp WHERE dept = 'eng'")
	assert.InDelta(t, 50.0, rows[0][0].Float64(), 1e-9)
	assert.InDelta(t, 2500.0, rows[0][1].Float64(), 1e-9)
}

func TestTableNamesSorted(t *testing.T) {
	db, err := ConnectInMemory()
	require.NoError(t, err)
	conn := db.Connect()
	mustExec(t, conn, "CREATE TABLE zeta (a INTEGER)", "CREATE TABLE alpha (a INTEGER)")
	names := db.TableNames()
	assert.True(t, sort.StringsAreSorted(names))
	assert.Equal(t, []string{"alpha", "zeta"}, names)
}
