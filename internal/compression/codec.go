// Package compression implements the column-segment codecs: uncompressed,
// dictionary, run-length, and zstd, plus the analyze phase that picks the
// codec for a new segment.
package compression

import (
	"encoding/binary"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// Tag identifies a codec in segment metadata and on disk.
type Tag uint8

const (
	TagUncompressed Tag = 0
	TagDictionary   Tag = 1
	TagRLE          Tag = 2
	TagZstd         Tag = 3
)

// AnalyzeResult reports the size a codec expects to achieve on a value run.
type AnalyzeResult struct {
	EstimatedBytes int
	EstimatedRatio float64
}

// Codec compresses and scans one column segment's worth of values.
// Payloads are self-contained given the logical type and row count, which
// segment metadata carries.
type Codec interface {
	Tag() Tag
	Name() string

	// Supports reports whether the codec can encode the logical type.
	Supports(t types.LogicalType) bool

	// Analyze estimates the encoded size of the values without building
	// the full payload where it can avoid it.
	Analyze(t types.LogicalType, values []types.Value) (AnalyzeResult, error)

	// Compress encodes the values into a payload.
	Compress(t types.LogicalType, values []types.Value) ([]byte, error)

	// Decompress decodes a full payload back into values.
	Decompress(t types.LogicalType, payload []byte, rows int) ([]types.Value, error)

	// Scan materializes rows [start, end) of the payload as a Vector
	// without decoding the whole segment where the encoding allows it.
	Scan(t types.LogicalType, payload []byte, rows, start, end int) (*vector.Vector, error)

	// ScanSelection materializes only the rows named by sel (absolute row
	// positions within the segment).
	ScanSelection(t types.LogicalType, payload []byte, rows int, sel *vector.SelectionVector) (*vector.Vector, error)
}

var registry = []Codec{
	&DictionaryCodec{},
	&RLECodec{},
	&ZstdCodec{},
	&UncompressedCodec{},
}

// ByTag returns the codec registered under tag.
func ByTag(tag Tag) (Codec, error) {
	for _, c := range registry {
		if c.Tag() == tag {
			return c, nil
		}
	}
	return nil, errorx.Compressionf("unknown codec tag %d", tag)
}

// Choose runs the analyze phase over the codecs that support the type and
// returns the winner. Minimal estimated size wins among the predicate-
// pushable codecs; ties break by preference Dictionary > RLE >
// Uncompressed. Zstd is the opaque fallback for string segments: it only
// competes when neither dictionary nor RLE improve on the baseline, so a
// compressible encoding that keeps point lookups cheap always wins first.
// Uncompressed supports every storable type, so Choose cannot fail on a
// supported column type.
func Choose(t types.LogicalType, values []types.Value) (Codec, AnalyzeResult, error) {
	var (
		best       Codec
		bestResult AnalyzeResult
		baseline   AnalyzeResult
		haveBase   bool
	)
	for _, c := range registry {
		if !c.Supports(t) || c.Tag() == TagZstd {
			continue
		}
		res, err := c.Analyze(t, values)
		if err != nil {
			return nil, AnalyzeResult{}, err
		}
		if c.Tag() == TagUncompressed {
			baseline = res
			haveBase = true
		}
		// Registry order encodes the tie-break preference.
		if best == nil || res.EstimatedBytes < bestResult.EstimatedBytes {
			best = c
			bestResult = res
		}
	}
	if best == nil {
		return nil, AnalyzeResult{}, errorx.Compressionf("no codec supports type %s", t)
	}
	if best.Tag() == TagUncompressed && haveBase && t.IsString() {
		z := &ZstdCodec{}
		res, err := z.Analyze(t, values)
		if err == nil && res.EstimatedBytes < baseline.EstimatedBytes {
			return z, res, nil
		}
	}
	return best, bestResult, nil
}

// fixedWidth returns the byte width of a fixed-size physical type, or 0 for
// var-size types.
func fixedWidth(t types.LogicalType) int {
	switch t.ID {
	case types.Boolean, types.TinyInt:
		return 1
	case types.SmallInt:
		return 2
	case types.Integer, types.Date, types.Float:
		return 4
	case types.BigInt, types.Time, types.Timestamp, types.Decimal, types.Double:
		return 8
	case types.HugeInt:
		return 16
	default:
		return 0
	}
}

// putFixed appends the fixed-width little-endian encoding of a value.
func putFixed(dst []byte, t types.LogicalType, v types.Value) []byte {
	switch t.ID {
	case types.Boolean:
		if v.Bool() {
			return append(dst, 1)
		}
		return append(dst, 0)
	case types.TinyInt:
		return append(dst, byte(int8(v.Int64())))
	case types.SmallInt:
		return binary.LittleEndian.AppendUint16(dst, uint16(int16(v.Int64())))
	case types.Integer, types.Date:
		return binary.LittleEndian.AppendUint32(dst, uint32(int32(v.Int64())))
	case types.BigInt, types.Time, types.Timestamp, types.Decimal:
		return binary.LittleEndian.AppendUint64(dst, uint64(v.Int64()))
	case types.HugeInt:
		h := v.Hugeint()
		dst = binary.LittleEndian.AppendUint64(dst, uint64(h.Hi))
		return binary.LittleEndian.AppendUint64(dst, h.Lo)
	case types.Float:
		return binary.LittleEndian.AppendUint32(dst, floatBits32(v))
	case types.Double:
		return binary.LittleEndian.AppendUint64(dst, floatBits64(v))
	default:
		return dst
	}
}

// getFixed decodes one fixed-width value starting at payload[off].
func getFixed(payload []byte, off int, t types.LogicalType) types.Value {
	switch t.ID {
	case types.Boolean:
		return types.NewBoolean(payload[off] != 0)
	case types.TinyInt:
		return types.NewTinyInt(int8(payload[off]))
	case types.SmallInt:
		return types.NewSmallInt(int16(binary.LittleEndian.Uint16(payload[off:])))
	case types.Integer:
		return types.NewInteger(int32(binary.LittleEndian.Uint32(payload[off:])))
	case types.Date:
		return types.NewDate(int32(binary.LittleEndian.Uint32(payload[off:])))
	case types.BigInt:
		return types.NewBigInt(int64(binary.LittleEndian.Uint64(payload[off:])))
	case types.Time:
		return types.NewTime(int64(binary.LittleEndian.Uint64(payload[off:])))
	case types.Timestamp:
		return types.NewTimestamp(int64(binary.LittleEndian.Uint64(payload[off:])))
	case types.Decimal:
		return types.NewDecimal(int64(binary.LittleEndian.Uint64(payload[off:])), t.Precision, t.Scale)
	case types.HugeInt:
		hi := int64(binary.LittleEndian.Uint64(payload[off:]))
		lo := binary.LittleEndian.Uint64(payload[off+8:])
		return types.NewHugeint(types.Hugeint{Hi: hi, Lo: lo})
	case types.Float:
		return types.NewFloat(fromFloatBits32(binary.LittleEndian.Uint32(payload[off:])))
	case types.Double:
		return types.NewDouble(fromFloatBits64(binary.LittleEndian.Uint64(payload[off:])))
	default:
		return types.NewNull(t)
	}
}
