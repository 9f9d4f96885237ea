package prismdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.GreaterOrEqual(t, cfg.Execution.Threads, 1)
	assert.Equal(t, 2048, cfg.Execution.VectorSize)
	assert.Equal(t, NullOrderLast, cfg.Execution.DefaultNullOrder)
}

func TestConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Execution.VectorSize = 1024
	assert.Error(t, cfg.Validate(), "vector_size is pinned at 2048")

	cfg = DefaultConfig()
	cfg.Execution.Threads = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Execution.MorselSize = 100
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Execution.DefaultNullOrder = "sideways"
	assert.Error(t, cfg.Validate())
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prismdb.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[execution]
threads = 3
morsel_size = 8192
memory_limit = 1073741824
default_null_order = "first"

[logging]
level = "debug"
`), 0o644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Execution.Threads)
	assert.Equal(t, 8192, cfg.Execution.MorselSize)
	assert.Equal(t, int64(1<<30), cfg.Execution.MemoryLimit)
	assert.Equal(t, NullOrderFirst, cfg.Execution.DefaultNullOrder)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Unset fields keep their defaults.
	assert.Equal(t, 2048, cfg.Execution.VectorSize)
}

func TestDefaultNullOrderFirstApplies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Execution.DefaultNullOrder = NullOrderFirst
	conn := newConn(t, cfg)
	mustExec(t, conn, "CREATE TABLE t (a INTEGER)", "INSERT INTO t VALUES (2), (NULL), (1)")
	rows := query(t, conn, "SELECT a FROM t ORDER BY a")
	require.Equal(t, [][]string{{"NULL"}, {"1"}, {"2"}}, rowStrings(rows))
}
