package storage

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turingworks/prismdb/internal/compression"
	"github.com/turingworks/prismdb/internal/types"
)

func TestCompressSegmentStatsInvariant(t *testing.T) {
	values := []types.Value{
		types.NewBigInt(5), types.NewBigInt(-3), types.NewNull(types.TypeBigInt),
		types.NewBigInt(12), types.NewBigInt(5),
	}
	seg, err := CompressSegment(types.TypeBigInt, 0, values)
	require.NoError(t, err)
	assert.Equal(t, int64(-3), seg.Stats.Min.Int64())
	assert.Equal(t, int64(12), seg.Stats.Max.Int64())
	assert.Equal(t, 1, seg.Stats.NullCount)
	assert.True(t, seg.Stats.HasNull)
	require.NoError(t, seg.CheckStats())
}

func TestSegmentDictionarySelectionAndDistinctCount(t *testing.T) {
	var values []types.Value
	for i := 0; i < 10000; i++ {
		values = append(values, types.NewVarchar(fmt.Sprintf("val_%02d", i%100)))
	}
	seg, err := CompressSegment(types.TypeVarchar, 0, values)
	require.NoError(t, err)
	assert.Equal(t, compression.TagDictionary, seg.CodecTag)
	assert.InDelta(t, 100, seg.Stats.DistinctEst, 2)

	decoded, err := seg.Decompress()
	require.NoError(t, err)
	require.Len(t, decoded, 10000)
	for i := range decoded {
		assert.Equal(t, fmt.Sprintf("val_%02d", i%100), decoded[i].Str())
	}
}

func TestZoneMapFeasibility(t *testing.T) {
	stats := SegmentStats{
		Min:     types.NewBigInt(10),
		Max:     types.NewBigInt(20),
		HasNull: false,
	}
	cases := []struct {
		op       CompareOp
		value    int64
		feasible bool
	}{
		{CmpEq, 15, true},
		{CmpEq, 5, false},
		{CmpEq, 25, false},
		{CmpGt, 20, false},
		{CmpGt, 19, true},
		{CmpGtEq, 20, true},
		{CmpLt, 10, false},
		{CmpLtEq, 10, true},
		{CmpNotEq, 15, true},
	}
	for _, tc := range cases {
		got := stats.Feasible(tc.op, types.NewBigInt(tc.value))
		assert.Equal(t, tc.feasible, got, "op %d value %d", tc.op, tc.value)
	}
	assert.False(t, stats.Feasible(CmpIsNull, types.Value{}))
	assert.True(t, stats.Feasible(CmpIsNotNull, types.Value{}))
	// NotEq on an all-equal segment is prunable.
	flat := SegmentStats{Min: types.NewBigInt(7), Max: types.NewBigInt(7)}
	assert.False(t, flat.Feasible(CmpNotEq, types.NewBigInt(7)))
	assert.True(t, flat.Feasible(CmpNotEq, types.NewBigInt(8)))
}

func TestColumnDataScanAcrossSegments(t *testing.T) {
	col := NewColumnData(types.TypeBigInt)
	total := SegmentMaxRows + 1000
	for i := 0; i < total; i++ {
		require.NoError(t, col.Append(types.NewBigInt(int64(i))))
	}
	require.Equal(t, total, col.Rows())
	// One sealed segment plus a pending tail.
	require.Len(t, col.Segments(), 1)

	vec, err := col.ScanRange(SegmentMaxRows-5, SegmentMaxRows+5)
	require.NoError(t, err)
	require.Equal(t, 10, vec.Len())
	for i := 0; i < 10; i++ {
		assert.Equal(t, int64(SegmentMaxRows-5+i), vec.MustGet(i).Int64())
	}
}

func TestRowGroupRollover(t *testing.T) {
	table := NewDataTable([]types.LogicalType{types.TypeInteger})
	for i := 0; i < RowGroupSize; i++ {
		require.NoError(t, table.AppendRow([]types.Value{types.NewInteger(int32(i % 1000))}))
	}
	require.Len(t, table.RowGroups(), 1)
	assert.Equal(t, RowGroupSize, table.RowGroups()[0].Rows())

	// One more row starts a new group.
	require.NoError(t, table.AppendRow([]types.Value{types.NewInteger(1)}))
	groups := table.RowGroups()
	require.Len(t, groups, 2)
	assert.Equal(t, int64(RowGroupSize), groups[1].Start)
	assert.Equal(t, 1, groups[1].Rows())
	assert.Equal(t, int64(RowGroupSize+1), table.Rows())
}

func TestRowGroupPruning(t *testing.T) {
	rg := NewRowGroup(0, []types.LogicalType{types.TypeBigInt})
	for i := 0; i < 100; i++ {
		require.NoError(t, rg.AppendRow([]types.Value{types.NewBigInt(int64(i + 1000))}))
	}
	require.NoError(t, rg.Seal())
	preds := []Predicate{{Column: 0, Op: CmpGt, Value: types.NewBigInt(5000)}}
	assert.True(t, rg.Prunable(preds))
	preds = []Predicate{{Column: 0, Op: CmpGt, Value: types.NewBigInt(1050)}}
	assert.False(t, rg.Prunable(preds))
}

func TestScanChunk(t *testing.T) {
	rg := NewRowGroup(0, []types.LogicalType{types.TypeBigInt, types.TypeVarchar})
	for i := 0; i < 500; i++ {
		require.NoError(t, rg.AppendRow([]types.Value{
			types.NewBigInt(int64(i)),
			types.NewVarchar(fmt.Sprintf("row-%d", i)),
		}))
	}
	chunk, err := rg.ScanChunk(100, 200, []int{1, 0})
	require.NoError(t, err)
	require.Equal(t, 100, chunk.Cardinality())
	row, err := chunk.Row(0)
	require.NoError(t, err)
	assert.Equal(t, "row-100", row[0].Str())
	assert.Equal(t, int64(100), row[1].Int64())
}

func TestFileRoundTrip(t *testing.T) {
	table := NewDataTable([]types.LogicalType{types.TypeInteger, types.TypeVarchar, types.TypeDouble})
	for i := 0; i < 5000; i++ {
		row := []types.Value{
			types.NewInteger(int32(i)),
			types.NewVarchar(fmt.Sprintf("name_%d", i%50)),
			types.NewDouble(float64(i) * 0.5),
		}
		if i%97 == 0 {
			row[2] = types.NewNull(types.TypeDouble)
		}
		require.NoError(t, table.AppendRow(row))
	}
	dbID := uuid.New()
	path := filepath.Join(t.TempDir(), "test.prsm")
	require.NoError(t, WriteDatabase(path, dbID, []TableInfo{{
		Name:        "events",
		ColumnNames: []string{"id", "name", "score"},
		Data:        table,
	}}))

	gotID, tables, err := ReadDatabase(path)
	require.NoError(t, err)
	assert.Equal(t, dbID, gotID)
	require.Len(t, tables, 1)
	assert.Equal(t, "events", tables[0].Name)
	assert.Equal(t, []string{"id", "name", "score"}, tables[0].ColumnNames)
	loaded := tables[0].Data
	require.Equal(t, int64(5000), loaded.Rows())

	rg := loaded.RowGroups()[0]
	chunk, err := rg.ScanChunk(0, 2000, []int{0, 1, 2})
	require.NoError(t, err)
	for i := 0; i < 2000; i++ {
		row, err := chunk.Row(i)
		require.NoError(t, err)
		assert.Equal(t, int64(i), row[0].Int64())
		assert.Equal(t, fmt.Sprintf("name_%d", i%50), row[1].Str())
		if i%97 == 0 {
			assert.True(t, row[2].Null)
		} else {
			assert.Equal(t, float64(i)*0.5, row[2].Float64())
		}
	}
}

func TestFileHeaderValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.prsm")
	w, err := NewBlockWriter(path)
	require.NoError(t, err)
	root, err := w.WriteChain(BlockMetadata, []byte("payload"))
	require.NoError(t, err)
	require.NoError(t, w.Finish(uuid.New(), root))

	r, err := OpenBlockReader(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, uint32(FormatVersion), r.Header().Version)
	got, err := r.ReadChain(root)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestBlockChainLargePayload(t *testing.T) {
	payload := make([]byte, BlockPayloadCap*2+123)
	for i := range payload {
		payload[i] = byte(i * 31)
	}
	path := filepath.Join(t.TempDir(), "chain.prsm")
	w, err := NewBlockWriter(path)
	require.NoError(t, err)
	head, err := w.WriteChain(BlockData, payload)
	require.NoError(t, err)
	require.NoError(t, w.Finish(uuid.New(), head))

	r, err := OpenBlockReader(path)
	require.NoError(t, err)
	defer r.Close()
	got, err := r.ReadChain(head)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestBufferPoolPinAndEvict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.prsm")
	w, err := NewBlockWriter(path)
	require.NoError(t, err)
	var heads []uint64
	for i := 0; i < 4; i++ {
		payload := make([]byte, 1024)
		for j := range payload {
			payload[j] = byte(i)
		}
		head, err := w.WriteChain(BlockData, payload)
		require.NoError(t, err)
		heads = append(heads, head)
	}
	require.NoError(t, w.Finish(uuid.New(), 0))

	r, err := OpenBlockReader(path)
	require.NoError(t, err)
	defer r.Close()
	pool := NewBufferPool(r, 2048)
	for i, head := range heads {
		data, err := pool.Pin(head)
		require.NoError(t, err)
		assert.Equal(t, byte(i), data[0])
		pool.Unpin(head)
	}
	// Eviction kept residency at or under the limit.
	assert.LessOrEqual(t, pool.MemoryUsed(), int64(2048))
}
