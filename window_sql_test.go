package prismdb

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSeq(t *testing.T, conn *Connection, n int) {
	t.Helper()
	mustExec(t, conn, "CREATE TABLE nums (g VARCHAR, x INTEGER)")
	stmt := "INSERT INTO nums VALUES "
	for i := 0; i < n; i++ {
		if i > 0 {
			stmt += ", "
		}
		g := "a"
		if i%2 == 1 {
			g = "b"
		}
		stmt += fmt.Sprintf("('%s', %d)", g, i+1)
	}
	mustExec(t, conn, stmt)
}

func TestPercentRankAndCumeDist(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn,
		"CREATE TABLE s (x INTEGER)",
		"INSERT INTO s VALUES (10), (20), (20), (30)")
	rows := query(t, conn, `
		SELECT x,
		       PERCENT_RANK() OVER (ORDER BY x) AS pr,
		       CUME_DIST() OVER (ORDER BY x) AS cd
		FROM s ORDER BY x, pr`)
	require.Len(t, rows, 4)
	// percent_rank = (rank-1)/(n-1); cume_dist = peers at or before / n.
	assert.InDelta(t, 0.0, rows[0][1].Float64(), 1e-12)
	assert.InDelta(t, 0.25, rows[0][2].Float64(), 1e-12)
	assert.InDelta(t, 1.0/3.0, rows[1][1].Float64(), 1e-12)
	assert.InDelta(t, 0.75, rows[1][2].Float64(), 1e-12)
	assert.InDelta(t, 1.0/3.0, rows[2][1].Float64(), 1e-12)
	assert.InDelta(t, 1.0, rows[3][1].Float64(), 1e-12)
	assert.InDelta(t, 1.0, rows[3][2].Float64(), 1e-12)
}

func TestNtileDistribution(t *testing.T) {
	conn := newConn(t)
	setupSeq(t, conn, 10)
	rows := query(t, conn, `
		SELECT x, NTILE(3) OVER (ORDER BY x) AS bucket
		FROM nums ORDER BY x`)
	require.Len(t, rows, 10)
	// 10 rows over 3 buckets: sizes 4, 3, 3.
	counts := map[int64]int{}
	for _, row := range rows {
		counts[row[1].Int64()]++
	}
	assert.Equal(t, map[int64]int{1: 4, 2: 3, 3: 3}, counts)
	assert.Equal(t, int64(1), rows[0][1].Int64())
	assert.Equal(t, int64(3), rows[9][1].Int64())
}

func TestFirstLastNthValueFrames(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn,
		"CREATE TABLE v (x INTEGER)",
		"INSERT INTO v VALUES (1), (2), (3), (4)")
	rows := query(t, conn, `
		SELECT x,
		       FIRST_VALUE(x) OVER (ORDER BY x ROWS BETWEEN 1 PRECEDING AND 1 FOLLOWING),
		       LAST_VALUE(x) OVER (ORDER BY x ROWS BETWEEN 1 PRECEDING AND 1 FOLLOWING),
		       NTH_VALUE(x, 2) OVER (ORDER BY x ROWS BETWEEN UNBOUNDED PRECEDING AND UNBOUNDED FOLLOWING)
		FROM v ORDER BY x`)
	require.Equal(t, [][]string{
		{"1", "1", "2", "2"},
		{"2", "1", "3", "2"},
		{"3", "2", "4", "2"},
		{"4", "3", "4", "2"},
	}, rowStrings(rows))
}

func TestRangeFrameWithOffset(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn,
		"CREATE TABLE r (x INTEGER)",
		"INSERT INTO r VALUES (1), (2), (4), (7)")
	rows := query(t, conn, `
		SELECT x, SUM(x) OVER (ORDER BY x RANGE BETWEEN 1 PRECEDING AND 1 FOLLOWING)
		FROM r ORDER BY x`)
	// Frames by value distance: {1,2}, {1,2}, {4}, {7}.
	require.Equal(t, [][]string{
		{"1", "3"},
		{"2", "3"},
		{"4", "4"},
		{"7", "7"},
	}, rowStrings(rows))
}

func TestGroupsFrame(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn,
		"CREATE TABLE g (x INTEGER)",
		"INSERT INTO g VALUES (1), (1), (2), (3), (3)")
	rows := query(t, conn, `
		SELECT x, SUM(x) OVER (ORDER BY x GROUPS BETWEEN 1 PRECEDING AND CURRENT ROW)
		FROM g ORDER BY x`)
	// Peer groups {1,1}, {2}, {3,3}; each frame spans the prior group too.
	require.Equal(t, [][]string{
		{"1", "2"},
		{"1", "2"},
		{"2", "4"},
		{"3", "8"},
		{"3", "8"},
	}, rowStrings(rows))
}

func TestRunningSumUnboundedFrame(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn,
		"CREATE TABLE acc (x INTEGER)",
		"INSERT INTO acc VALUES (1), (2), (3), (4)")
	rows := query(t, conn, `
		SELECT x, SUM(x) OVER (ORDER BY x ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW)
		FROM acc ORDER BY x`)
	require.Equal(t, [][]string{
		{"1", "1"},
		{"2", "3"},
		{"3", "6"},
		{"4", "10"},
	}, rowStrings(rows))
}

func TestWindowedAggregateOverPeers(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn,
		"CREATE TABLE p (x INTEGER)",
		"INSERT INTO p VALUES (1), (2), (2), (3)")
	// Default frame with ORDER BY: RANGE UNBOUNDED PRECEDING..CURRENT ROW,
	// so peers share the running value.
	rows := query(t, conn, `
		SELECT x, SUM(x) OVER (ORDER BY x) FROM p ORDER BY x`)
	require.Equal(t, [][]string{
		{"1", "1"},
		{"2", "5"},
		{"2", "5"},
		{"3", "8"},
	}, rowStrings(rows))
}

func TestApproxCountDistinctSQL(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn, "CREATE TABLE u (id INTEGER)")
	for start := 0; start < 5000; start += 1000 {
		stmt := "INSERT INTO u VALUES "
		for i := 0; i < 1000; i++ {
			if i > 0 {
				stmt += ", "
			}
			stmt += fmt.Sprintf("(%d)", (start+i)%2500)
		}
		mustExec(t, conn, stmt)
	}
	rows := query(t, conn, "SELECT APPROX_COUNT_DISTINCT(id) FROM u")
	assert.InDelta(t, 2500, float64(rows[0][0].Int64()), 2500*0.02)
}

func TestCountDistinctSQL(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn,
		"CREATE TABLE d (x INTEGER)",
		"INSERT INTO d VALUES (1), (1), (2), (NULL), (3), (3)")
	rows := query(t, conn, "SELECT COUNT(DISTINCT x), COUNT(x) FROM d")
	assert.Equal(t, int64(3), rows[0][0].Int64())
	assert.Equal(t, int64(5), rows[0][1].Int64())
}

func TestMedianAndPercentilesSQL(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn,
		"CREATE TABLE m (x INTEGER)",
		"INSERT INTO m VALUES (10), (20), (30), (40)")
	rows := query(t, conn, `
		SELECT MEDIAN(x), PERCENTILE_CONT(x, 0.25), PERCENTILE_DISC(x, 0.5) FROM m`)
	assert.InDelta(t, 25.0, rows[0][0].Float64(), 1e-12)
	assert.InDelta(t, 17.5, rows[0][1].Float64(), 1e-12)
	assert.Equal(t, int64(30), rows[0][2].Int64())
}

func TestArgMinMaxSQL(t *testing.T) {
	conn := newConn(t)
	setupEmp(t, conn)
	rows := query(t, conn, "SELECT ARG_MIN(dept, salary), ARG_MAX(dept, salary) FROM emp")
	assert.Equal(t, "eng", rows[0][0].Str())
	assert.Equal(t, "sales", rows[0][1].Str())
}

func TestUnionColumnCountMismatch(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn, "CREATE TABLE a (x INTEGER)", "CREATE TABLE b (x INTEGER, y INTEGER)")
	_, err := conn.Execute("SELECT x FROM a UNION SELECT x, y FROM b")
	require.Error(t, err)
	assert.Equal(t, ErrParse, KindOf(err))
}

func TestCaseWithOperand(t *testing.T) {
	conn := newConn(t)
	mustExec(t, conn,
		"CREATE TABLE c (x INTEGER)",
		"INSERT INTO c VALUES (1), (2), (3)")
	rows := query(t, conn, `
		SELECT x, CASE x WHEN 1 THEN 'one' WHEN 2 THEN 'two' ELSE 'many' END
		FROM c ORDER BY x`)
	require.Equal(t, [][]string{
		{"1", "one"},
		{"2", "two"},
		{"3", "many"},
	}, rowStrings(rows))
}
