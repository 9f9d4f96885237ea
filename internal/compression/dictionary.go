package compression

import (
	"encoding/binary"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// DictionaryCodec encodes low-cardinality columns as a value dictionary plus
// per-row indices. Index width is 1, 2, or 4 bytes depending on dictionary
// cardinality. Payload layout:
//
//	u32          dictionary entry count
//	entries      distinct values: raw fixed-width, or u32-length-prefixed bytes (no bitmap)
//	u8           index width (1, 2, or 4)
//	null bitmap  ceil(rows/8) bytes
//	indices      rows * width bytes
type DictionaryCodec struct{}

// Tag implements Codec.
func (*DictionaryCodec) Tag() Tag { return TagDictionary }

// Name implements Codec.
func (*DictionaryCodec) Name() string { return "dictionary" }

// Supports implements Codec.
func (*DictionaryCodec) Supports(t types.LogicalType) bool {
	return fixedWidth(t) > 0 || t.IsString()
}

func indexWidth(cardinality int) int {
	switch {
	case cardinality <= 1<<8:
		return 1
	case cardinality <= 1<<16:
		return 2
	default:
		return 4
	}
}

// dictKey builds a map key for a non-null value.
func dictKey(t types.LogicalType, v types.Value) string {
	switch {
	case t.ID == types.Blob:
		return string(v.Bytes())
	case t.ID == types.Varchar:
		return v.Str()
	default:
		return string(putFixed(nil, t, v))
	}
}

// buildDictionary hashes the values into first-observed order.
func buildDictionary(t types.LogicalType, values []types.Value) (entries []types.Value, codes []int32) {
	seen := make(map[string]int32, 64)
	codes = make([]int32, len(values))
	for i, v := range values {
		if v.Null {
			codes[i] = -1
			continue
		}
		key := dictKey(t, v)
		code, ok := seen[key]
		if !ok {
			code = int32(len(entries))
			seen[key] = code
			entries = append(entries, v)
		}
		codes[i] = code
	}
	return entries, codes
}

// Analyze implements Codec. The dictionary is built for real (it doubles as
// the distinct-count estimate the segment statistics use), but no payload is
// assembled.
func (c *DictionaryCodec) Analyze(t types.LogicalType, values []types.Value) (AnalyzeResult, error) {
	if !c.Supports(t) {
		return AnalyzeResult{}, errorx.Compressionf("dictionary: unsupported type %s", t)
	}
	entries, _ := buildDictionary(t, values)
	size := 4 + 1 + nullBitmapSize(len(values)) + indexWidth(len(entries))*len(values)
	if w := fixedWidth(t); w > 0 {
		size += w * len(entries)
	} else {
		for _, v := range entries {
			size += 4 + stringPayloadBytes(t, v)
		}
	}
	uncompressed := 1
	if base, err := (&UncompressedCodec{}).Analyze(t, values); err == nil {
		uncompressed = base.EstimatedBytes
	}
	return AnalyzeResult{
		EstimatedBytes: size,
		EstimatedRatio: float64(size) / float64(uncompressed),
	}, nil
}

// Compress implements Codec.
func (c *DictionaryCodec) Compress(t types.LogicalType, values []types.Value) ([]byte, error) {
	if !c.Supports(t) {
		return nil, errorx.Compressionf("dictionary: unsupported type %s", t)
	}
	entries, codes := buildDictionary(t, values)
	payload := binary.LittleEndian.AppendUint32(nil, uint32(len(entries)))
	if fixedWidth(t) > 0 {
		for _, v := range entries {
			payload = putFixed(payload, t, v)
		}
	} else {
		for _, v := range entries {
			payload = putString(payload, t, v)
		}
	}
	width := indexWidth(len(entries))
	payload = append(payload, byte(width))
	payload = append(payload, buildNullBitmap(values)...)
	for _, code := range codes {
		u := uint32(0)
		if code >= 0 {
			u = uint32(code)
		}
		switch width {
		case 1:
			payload = append(payload, byte(u))
		case 2:
			payload = binary.LittleEndian.AppendUint16(payload, uint16(u))
		default:
			payload = binary.LittleEndian.AppendUint32(payload, u)
		}
	}
	return payload, nil
}

// dictHeader decodes the dictionary entries and returns them plus the index
// width and the offset of the null bitmap that precedes the index section.
func (c *DictionaryCodec) dictHeader(t types.LogicalType, payload []byte, rows int) (entries []types.Value, width, bitmapOff int, err error) {
	if len(payload) < 5 {
		return nil, 0, 0, errorx.Compressionf("dictionary: truncated header")
	}
	count := int(binary.LittleEndian.Uint32(payload))
	off := 4
	entries = make([]types.Value, 0, count)
	if w := fixedWidth(t); w > 0 {
		if off+count*w > len(payload) {
			return nil, 0, 0, errorx.Compressionf("dictionary: truncated entries")
		}
		for i := 0; i < count; i++ {
			entries = append(entries, getFixed(payload, off, t))
			off += w
		}
	} else {
		for i := 0; i < count; i++ {
			v, n, serr := getString(payload, off, t)
			if serr != nil {
				return nil, 0, 0, serr
			}
			entries = append(entries, v)
			off += n
		}
	}
	if off >= len(payload) {
		return nil, 0, 0, errorx.Compressionf("dictionary: missing index width")
	}
	width = int(payload[off])
	off++
	if width != 1 && width != 2 && width != 4 {
		return nil, 0, 0, errorx.Compressionf("dictionary: bad index width %d", width)
	}
	if off+nullBitmapSize(rows)+rows*width > len(payload) {
		return nil, 0, 0, errorx.Compressionf("dictionary: truncated indices")
	}
	return entries, width, off, nil
}

func dictCode(payload []byte, indexOff, width, row int) int {
	off := indexOff + row*width
	switch width {
	case 1:
		return int(payload[off])
	case 2:
		return int(binary.LittleEndian.Uint16(payload[off:]))
	default:
		return int(binary.LittleEndian.Uint32(payload[off:]))
	}
}

// Decompress implements Codec.
func (c *DictionaryCodec) Decompress(t types.LogicalType, payload []byte, rows int) ([]types.Value, error) {
	entries, width, bitmapOff, err := c.dictHeader(t, payload, rows)
	if err != nil {
		return nil, err
	}
	indexOff := bitmapOff + nullBitmapSize(rows)
	out := make([]types.Value, 0, rows)
	for i := 0; i < rows; i++ {
		if !bitmapValid(payload[bitmapOff:], i) {
			out = append(out, types.NewNull(t))
			continue
		}
		code := dictCode(payload, indexOff, width, i)
		if code >= len(entries) {
			return nil, errorx.Compressionf("dictionary: index %d beyond %d entries", code, len(entries))
		}
		out = append(out, entries[code])
	}
	return out, nil
}

// Scan implements Codec, producing a dictionary-kind vector that shares one
// decoded dictionary across the scanned rows.
func (c *DictionaryCodec) Scan(t types.LogicalType, payload []byte, rows, start, end int) (*vector.Vector, error) {
	if start < 0 || end > rows || start > end {
		return nil, errorx.Internalf("dictionary scan range [%d,%d) outside %d rows", start, end, rows)
	}
	entries, width, bitmapOff, err := c.dictHeader(t, payload, rows)
	if err != nil {
		return nil, err
	}
	dict := vector.NewFlat(t, len(entries))
	for _, v := range entries {
		if err := dict.Append(v); err != nil {
			return nil, err
		}
	}
	indexOff := bitmapOff + nullBitmapSize(rows)
	indices := make([]int32, 0, end-start)
	nulls := make([]int, 0)
	for i := start; i < end; i++ {
		if !bitmapValid(payload[bitmapOff:], i) {
			indices = append(indices, 0)
			nulls = append(nulls, i-start)
			continue
		}
		code := dictCode(payload, indexOff, width, i)
		if code >= len(entries) {
			return nil, errorx.Compressionf("dictionary: index %d beyond %d entries", code, len(entries))
		}
		indices = append(indices, int32(code))
	}
	out := vector.NewDictionary(dict, indices)
	for _, i := range nulls {
		if err := out.SetValidity(i, false); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ScanSelection implements Codec.
func (c *DictionaryCodec) ScanSelection(t types.LogicalType, payload []byte, rows int, sel *vector.SelectionVector) (*vector.Vector, error) {
	entries, width, bitmapOff, err := c.dictHeader(t, payload, rows)
	if err != nil {
		return nil, err
	}
	indexOff := bitmapOff + nullBitmapSize(rows)
	out := vector.NewFlat(t, sel.Len())
	for i := 0; i < sel.Len(); i++ {
		row := int(sel.Get(i))
		if !bitmapValid(payload[bitmapOff:], row) {
			if err := out.Append(types.NewNull(t)); err != nil {
				return nil, err
			}
			continue
		}
		code := dictCode(payload, indexOff, width, row)
		if code >= len(entries) {
			return nil, errorx.Compressionf("dictionary: index %d beyond %d entries", code, len(entries))
		}
		if err := out.Append(entries[code]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DistinctCount builds the dictionary to report exact distinct cardinality;
// segment statistics use it when this codec wins the analyze phase.
func (c *DictionaryCodec) DistinctCount(t types.LogicalType, values []types.Value) int {
	entries, _ := buildDictionary(t, values)
	return len(entries)
}
