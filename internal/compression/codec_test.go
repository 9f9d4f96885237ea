package compression

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

func intValues(vals ...int64) []types.Value {
	out := make([]types.Value, len(vals))
	for i, v := range vals {
		out[i] = types.NewBigInt(v)
	}
	return out
}

func roundTrip(t *testing.T, c Codec, typ types.LogicalType, values []types.Value) {
	t.Helper()
	payload, err := c.Compress(typ, values)
	require.NoError(t, err)
	decoded, err := c.Decompress(typ, payload, len(values))
	require.NoError(t, err)
	require.Len(t, decoded, len(values))
	for i := range values {
		assert.True(t, types.Equal(values[i], decoded[i]),
			"row %d: want %s, got %s", i, values[i], decoded[i])
	}
}

func testValuesPerType() map[string]struct {
	typ    types.LogicalType
	values []types.Value
} {
	return map[string]struct {
		typ    types.LogicalType
		values []types.Value
	}{
		"bigint": {types.TypeBigInt, intValues(1, 2, 2, 2, 3, -9, 1<<40, 0)},
		"integer": {types.TypeInteger, []types.Value{
			types.NewInteger(5), types.NewNull(types.TypeInteger), types.NewInteger(-5),
		}},
		"varchar": {types.TypeVarchar, []types.Value{
			types.NewVarchar("aa"), types.NewVarchar("aa"), types.NewNull(types.TypeVarchar),
			types.NewVarchar(""), types.NewVarchar("zebra"),
		}},
		"double": {types.TypeDouble, []types.Value{
			types.NewDouble(1.5), types.NewDouble(-2.25), types.NewNull(types.TypeDouble),
		}},
		"bool": {types.TypeBoolean, []types.Value{
			types.NewBoolean(true), types.NewBoolean(false), types.NewNull(types.TypeBoolean),
		}},
		"date": {types.TypeDate, []types.Value{
			types.NewDate(19723), types.NewDate(19724), types.NewDate(19724),
		}},
		"hugeint": {types.TypeHugeInt, []types.Value{
			types.NewHugeint(types.Hugeint{Hi: 1, Lo: 42}),
			types.NewHugeint(types.HugeintFromInt64(-1)),
		}},
		"blob": {types.TypeBlob, []types.Value{
			types.NewBlob([]byte{0, 1, 2}), types.NewNull(types.TypeBlob), types.NewBlob(nil),
		}},
	}
}

func TestRoundTripAllCodecs(t *testing.T) {
	codecs := []Codec{&UncompressedCodec{}, &DictionaryCodec{}, &RLECodec{}, &ZstdCodec{}}
	for name, tc := range testValuesPerType() {
		for _, c := range codecs {
			if !c.Supports(tc.typ) {
				continue
			}
			t.Run(fmt.Sprintf("%s/%s", c.Name(), name), func(t *testing.T) {
				roundTrip(t, c, tc.typ, tc.values)
			})
		}
	}
}

func TestRoundTripAllNulls(t *testing.T) {
	values := []types.Value{
		types.NewNull(types.TypeBigInt),
		types.NewNull(types.TypeBigInt),
		types.NewNull(types.TypeBigInt),
	}
	for _, c := range []Codec{&UncompressedCodec{}, &DictionaryCodec{}, &RLECodec{}} {
		roundTrip(t, c, types.TypeBigInt, values)
	}
}

func TestScanRange(t *testing.T) {
	values := intValues(0, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	for _, c := range []Codec{&UncompressedCodec{}, &DictionaryCodec{}, &RLECodec{}} {
		payload, err := c.Compress(types.TypeBigInt, values)
		require.NoError(t, err)
		vec, err := c.Scan(types.TypeBigInt, payload, len(values), 3, 7)
		require.NoError(t, err)
		require.Equal(t, 4, vec.Len(), c.Name())
		for i := 0; i < 4; i++ {
			assert.Equal(t, int64(i+3), vec.MustGet(i).Int64(), c.Name())
		}
	}
}

func TestScanSelection(t *testing.T) {
	values := intValues(10, 11, 12, 13, 14, 15)
	sel := vector.NewSelectionVector(3)
	sel.Append(0)
	sel.Append(2)
	sel.Append(5)
	for _, c := range []Codec{&UncompressedCodec{}, &DictionaryCodec{}, &RLECodec{}} {
		payload, err := c.Compress(types.TypeBigInt, values)
		require.NoError(t, err)
		vec, err := c.ScanSelection(types.TypeBigInt, payload, len(values), sel)
		require.NoError(t, err)
		require.Equal(t, 3, vec.Len(), c.Name())
		assert.Equal(t, int64(10), vec.MustGet(0).Int64())
		assert.Equal(t, int64(12), vec.MustGet(1).Int64())
		assert.Equal(t, int64(15), vec.MustGet(2).Int64())
	}
}

func TestRLEPointLookupAcrossRuns(t *testing.T) {
	// Three runs with a null run in the middle.
	var values []types.Value
	for i := 0; i < 100; i++ {
		values = append(values, types.NewBigInt(7))
	}
	for i := 0; i < 50; i++ {
		values = append(values, types.NewNull(types.TypeBigInt))
	}
	for i := 0; i < 25; i++ {
		values = append(values, types.NewBigInt(9))
	}
	c := &RLECodec{}
	payload, err := c.Compress(types.TypeBigInt, values)
	require.NoError(t, err)

	sel := vector.NewSelectionVector(4)
	sel.Append(0)
	sel.Append(99)
	sel.Append(120)
	sel.Append(174)
	vec, err := c.ScanSelection(types.TypeBigInt, payload, len(values), sel)
	require.NoError(t, err)
	assert.Equal(t, int64(7), vec.MustGet(0).Int64())
	assert.Equal(t, int64(7), vec.MustGet(1).Int64())
	assert.True(t, vec.IsNull(2))
	assert.Equal(t, int64(9), vec.MustGet(3).Int64())
}

func TestDictionaryScanProducesDictionaryVector(t *testing.T) {
	values := []types.Value{
		types.NewVarchar("x"), types.NewVarchar("y"), types.NewVarchar("x"), types.NewVarchar("x"),
	}
	c := &DictionaryCodec{}
	payload, err := c.Compress(types.TypeVarchar, values)
	require.NoError(t, err)
	vec, err := c.Scan(types.TypeVarchar, payload, len(values), 0, len(values))
	require.NoError(t, err)
	assert.Equal(t, vector.Dictionary, vec.Kind())
	for i, want := range []string{"x", "y", "x", "x"} {
		assert.Equal(t, want, vec.MustGet(i).Str())
	}
}

func TestDictionaryIndexWidths(t *testing.T) {
	assert.Equal(t, 1, indexWidth(200))
	assert.Equal(t, 1, indexWidth(256))
	assert.Equal(t, 2, indexWidth(257))
	assert.Equal(t, 2, indexWidth(1<<16))
	assert.Equal(t, 4, indexWidth(1<<16+1))
}

func TestChooseDictionaryForLowCardinality(t *testing.T) {
	var values []types.Value
	for i := 0; i < 2000; i++ {
		values = append(values, types.NewVarchar(fmt.Sprintf("category_%d", i%10)))
	}
	c, res, err := Choose(types.TypeVarchar, values)
	require.NoError(t, err)
	assert.Equal(t, TagDictionary, c.Tag())
	assert.Less(t, res.EstimatedRatio, 0.5)
}

func TestChooseRLEForRuns(t *testing.T) {
	var values []types.Value
	for i := 0; i < 2000; i++ {
		values = append(values, types.NewBigInt(int64(i/500)))
	}
	c, _, err := Choose(types.TypeBigInt, values)
	require.NoError(t, err)
	assert.Equal(t, TagRLE, c.Tag())
}

func TestChooseUncompressedForRandomInts(t *testing.T) {
	var values []types.Value
	var seedBits uint64 = 0x9E3779B97F4A7C15
	seed := int64(seedBits)
	for i := 0; i < 2000; i++ {
		seed = seed*6364136223846793005 + 1442695040888963407
		values = append(values, types.NewBigInt(seed))
	}
	c, _, err := Choose(types.TypeBigInt, values)
	require.NoError(t, err)
	assert.Equal(t, TagUncompressed, c.Tag())
}

func TestCorruptedPayload(t *testing.T) {
	for _, c := range []Codec{&DictionaryCodec{}, &RLECodec{}, &ZstdCodec{}} {
		if !c.Supports(types.TypeVarchar) {
			continue
		}
		_, err := c.Decompress(types.TypeVarchar, []byte{1}, 10)
		assert.Error(t, err, c.Name())
	}
}

func TestUnsupportedType(t *testing.T) {
	c := &ZstdCodec{}
	_, err := c.Compress(types.TypeBigInt, intValues(1))
	require.Error(t, err)
}
