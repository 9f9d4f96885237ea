package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turingworks/prismdb/internal/types"
)

func TestCreateLookupDrop(t *testing.T) {
	c := New()
	_, err := c.CreateTable("users", []Column{
		{Name: "id", Type: types.TypeBigInt},
		{Name: "name", Type: types.TypeVarchar},
	})
	require.NoError(t, err)

	tbl, err := c.Table("USERS")
	require.NoError(t, err, "lookups are case-insensitive")
	assert.Equal(t, 0, tbl.ColumnIndex("ID"))
	assert.Equal(t, 1, tbl.ColumnIndex("name"))
	assert.Equal(t, -1, tbl.ColumnIndex("missing"))

	_, err = c.CreateTable("users", nil)
	assert.Error(t, err, "duplicate table")

	_, err = c.CreateTable("bad", []Column{
		{Name: "x", Type: types.TypeBigInt},
		{Name: "X", Type: types.TypeBigInt},
	})
	assert.Error(t, err, "duplicate column")

	require.NoError(t, c.DropTable("users"))
	_, err = c.Table("users")
	assert.Error(t, err)
	assert.Error(t, c.DropTable("users"))
}

func TestCheckpointAndLoad(t *testing.T) {
	c := New()
	tbl, err := c.CreateTable("metrics", []Column{
		{Name: "ts", Type: types.TypeTimestamp},
		{Name: "value", Type: types.TypeDouble},
	})
	require.NoError(t, err)
	for i := 0; i < 300; i++ {
		require.NoError(t, tbl.Data.AppendRow([]types.Value{
			types.NewTimestamp(int64(i) * 1_000_000),
			types.NewDouble(float64(i) / 3),
		}))
	}
	path := filepath.Join(t.TempDir(), "cat.prsm")
	require.NoError(t, c.Checkpoint(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c.DatabaseID(), loaded.DatabaseID())
	got, err := loaded.Table("metrics")
	require.NoError(t, err)
	assert.Equal(t, int64(300), got.Data.Rows())
	assert.Equal(t, "ts", got.Columns[0].Name)
	assert.Equal(t, types.Timestamp, got.Columns[0].Type.ID)
}
