package compression

import (
	"encoding/binary"
	"math"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
)

// nullBitmapSize returns the byte size of the per-row null bitmap.
func nullBitmapSize(rows int) int {
	return (rows + 7) / 8
}

// buildNullBitmap encodes validity as one bit per row, 1 = valid.
func buildNullBitmap(values []types.Value) []byte {
	bm := make([]byte, nullBitmapSize(len(values)))
	for i, v := range values {
		if !v.Null {
			bm[i/8] |= 1 << (uint(i) % 8)
		}
	}
	return bm
}

func bitmapValid(bm []byte, i int) bool {
	return bm[i/8]&(1<<(uint(i)%8)) != 0
}

func floatBits32(v types.Value) uint32 {
	return math.Float32bits(float32(v.Float64()))
}

func floatBits64(v types.Value) uint64 {
	return math.Float64bits(v.Float64())
}

func fromFloatBits32(bits uint32) float32 {
	return math.Float32frombits(bits)
}

func fromFloatBits64(bits uint64) float64 {
	return math.Float64frombits(bits)
}

// putString appends a length-prefixed string payload.
func putString(dst []byte, t types.LogicalType, v types.Value) []byte {
	var b []byte
	if t.ID == types.Blob {
		b = v.Bytes()
	} else {
		b = []byte(v.Str())
	}
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(b)))
	return append(dst, b...)
}

// getString decodes a length-prefixed string payload, returning the value
// and the number of bytes consumed.
func getString(payload []byte, off int, t types.LogicalType) (types.Value, int, error) {
	if off+4 > len(payload) {
		return types.Value{}, 0, errorx.Compressionf("truncated string header at offset %d", off)
	}
	n := int(binary.LittleEndian.Uint32(payload[off:]))
	off += 4
	if off+n > len(payload) {
		return types.Value{}, 0, errorx.Compressionf("truncated string payload at offset %d", off)
	}
	if t.ID == types.Blob {
		out := make([]byte, n)
		copy(out, payload[off:off+n])
		return types.NewBlob(out), 4 + n, nil
	}
	return types.NewVarchar(string(payload[off : off+n])), 4 + n, nil
}

// stringPayloadBytes returns the raw byte length of a string value.
func stringPayloadBytes(t types.LogicalType, v types.Value) int {
	if v.Null {
		return 0
	}
	if t.ID == types.Blob {
		return len(v.Bytes())
	}
	return len(v.Str())
}
