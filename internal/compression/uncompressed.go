package compression

import (
	"encoding/binary"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// UncompressedCodec is the passthrough baseline. Payload layout:
//
//	null bitmap  ceil(rows/8) bytes, bit 1 = valid
//	fixed types  rows * width bytes of little-endian data
//	var types    (rows+1) u32 offsets, then the concatenated bytes
type UncompressedCodec struct{}

// Tag implements Codec.
func (*UncompressedCodec) Tag() Tag { return TagUncompressed }

// Name implements Codec.
func (*UncompressedCodec) Name() string { return "uncompressed" }

// Supports implements Codec; the baseline handles every storable type.
func (*UncompressedCodec) Supports(t types.LogicalType) bool {
	return fixedWidth(t) > 0 || t.IsString()
}

// Analyze implements Codec. The estimate is exact.
func (c *UncompressedCodec) Analyze(t types.LogicalType, values []types.Value) (AnalyzeResult, error) {
	if !c.Supports(t) {
		return AnalyzeResult{}, errorx.Compressionf("uncompressed: unsupported type %s", t)
	}
	size := nullBitmapSize(len(values))
	if w := fixedWidth(t); w > 0 {
		size += w * len(values)
	} else {
		size += 4 * (len(values) + 1)
		for _, v := range values {
			size += stringPayloadBytes(t, v)
		}
	}
	return AnalyzeResult{EstimatedBytes: size, EstimatedRatio: 1.0}, nil
}

// Compress implements Codec.
func (c *UncompressedCodec) Compress(t types.LogicalType, values []types.Value) ([]byte, error) {
	if !c.Supports(t) {
		return nil, errorx.Compressionf("uncompressed: unsupported type %s", t)
	}
	payload := buildNullBitmap(values)
	if w := fixedWidth(t); w > 0 {
		zero := types.Value{Type: t}
		for _, v := range values {
			if v.Null {
				payload = putFixed(payload, t, zero)
			} else {
				payload = putFixed(payload, t, v)
			}
		}
		return payload, nil
	}
	// Var-size: offsets then bytes.
	offsets := make([]uint32, len(values)+1)
	var total uint32
	for i, v := range values {
		total += uint32(stringPayloadBytes(t, v))
		offsets[i+1] = total
	}
	for _, off := range offsets {
		payload = binary.LittleEndian.AppendUint32(payload, off)
	}
	for _, v := range values {
		if v.Null {
			continue
		}
		if t.ID == types.Blob {
			payload = append(payload, v.Bytes()...)
		} else {
			payload = append(payload, v.Str()...)
		}
	}
	return payload, nil
}

// Decompress implements Codec.
func (c *UncompressedCodec) Decompress(t types.LogicalType, payload []byte, rows int) ([]types.Value, error) {
	out := make([]types.Value, 0, rows)
	for i := 0; i < rows; i++ {
		v, err := c.valueAt(t, payload, rows, i)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// valueAt decodes row i. The flat layout makes this O(1).
func (c *UncompressedCodec) valueAt(t types.LogicalType, payload []byte, rows, i int) (types.Value, error) {
	bmSize := nullBitmapSize(rows)
	if bmSize > len(payload) {
		return types.Value{}, errorx.Compressionf("uncompressed: truncated null bitmap")
	}
	if !bitmapValid(payload, i) {
		return types.NewNull(t), nil
	}
	if w := fixedWidth(t); w > 0 {
		off := bmSize + i*w
		if off+w > len(payload) {
			return types.Value{}, errorx.Compressionf("uncompressed: truncated payload at row %d", i)
		}
		return getFixed(payload, off, t), nil
	}
	offBase := bmSize
	dataBase := bmSize + 4*(rows+1)
	if dataBase > len(payload) {
		return types.Value{}, errorx.Compressionf("uncompressed: truncated offsets")
	}
	start := binary.LittleEndian.Uint32(payload[offBase+4*i:])
	end := binary.LittleEndian.Uint32(payload[offBase+4*(i+1):])
	if dataBase+int(end) > len(payload) || start > end {
		return types.Value{}, errorx.Compressionf("uncompressed: corrupted offsets at row %d", i)
	}
	b := payload[dataBase+int(start) : dataBase+int(end)]
	if t.ID == types.Blob {
		out := make([]byte, len(b))
		copy(out, b)
		return types.NewBlob(out), nil
	}
	return types.NewVarchar(string(b)), nil
}

// Scan implements Codec.
func (c *UncompressedCodec) Scan(t types.LogicalType, payload []byte, rows, start, end int) (*vector.Vector, error) {
	if start < 0 || end > rows || start > end {
		return nil, errorx.Internalf("uncompressed scan range [%d,%d) outside %d rows", start, end, rows)
	}
	out := vector.NewFlat(t, end-start)
	for i := start; i < end; i++ {
		v, err := c.valueAt(t, payload, rows, i)
		if err != nil {
			return nil, err
		}
		if err := out.Append(v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ScanSelection implements Codec using the O(1) row addressing.
func (c *UncompressedCodec) ScanSelection(t types.LogicalType, payload []byte, rows int, sel *vector.SelectionVector) (*vector.Vector, error) {
	out := vector.NewFlat(t, sel.Len())
	for i := 0; i < sel.Len(); i++ {
		v, err := c.valueAt(t, payload, rows, int(sel.Get(i)))
		if err != nil {
			return nil, err
		}
		if err := out.Append(v); err != nil {
			return nil, err
		}
	}
	return out, nil
}
