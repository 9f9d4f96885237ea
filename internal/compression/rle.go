package compression

import (
	"encoding/binary"
	"sort"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// RLECodec encodes runs of repeated values. Null runs are first-class so an
// all-null stretch costs one run. Payload layout:
//
//	u32   run count
//	runs  u32 run length | u8 valid flag | value (fixed width, or u32
//	      length-prefixed for var-size types; absent when the run is null)
//
// The decoder rebuilds cumulative run lengths once per scan, so point
// lookups are a binary search over run boundaries.
type RLECodec struct{}

// Tag implements Codec.
func (*RLECodec) Tag() Tag { return TagRLE }

// Name implements Codec.
func (*RLECodec) Name() string { return "rle" }

// Supports implements Codec.
func (*RLECodec) Supports(t types.LogicalType) bool {
	return fixedWidth(t) > 0 || t.IsString()
}

type rleRun struct {
	value  types.Value
	length int
	valid  bool
}

func buildRuns(t types.LogicalType, values []types.Value) []rleRun {
	var runs []rleRun
	for _, v := range values {
		if n := len(runs); n > 0 {
			last := &runs[n-1]
			if last.valid == !v.Null && (v.Null || sameValue(t, last.value, v)) {
				last.length++
				continue
			}
		}
		runs = append(runs, rleRun{value: v, length: 1, valid: !v.Null})
	}
	return runs
}

func sameValue(t types.LogicalType, a, b types.Value) bool {
	return types.Compare(a, b) == 0
}

// Analyze implements Codec.
func (c *RLECodec) Analyze(t types.LogicalType, values []types.Value) (AnalyzeResult, error) {
	if !c.Supports(t) {
		return AnalyzeResult{}, errorx.Compressionf("rle: unsupported type %s", t)
	}
	runs := buildRuns(t, values)
	size := 4
	for _, r := range runs {
		size += 4 + 1
		if !r.valid {
			continue
		}
		if w := fixedWidth(t); w > 0 {
			size += w
		} else {
			size += 4 + stringPayloadBytes(t, r.value)
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
func (c *RLECodec) Compress(t types.LogicalType, values []types.Value) ([]byte, error) {
	if !c.Supports(t) {
		return nil, errorx.Compressionf("rle: unsupported type %s", t)
	}
	runs := buildRuns(t, values)
	payload := binary.LittleEndian.AppendUint32(nil, uint32(len(runs)))
	for _, r := range runs {
		payload = binary.LittleEndian.AppendUint32(payload, uint32(r.length))
		if r.valid {
			payload = append(payload, 1)
			if fixedWidth(t) > 0 {
				payload = putFixed(payload, t, r.value)
			} else {
				payload = putString(payload, t, r.value)
			}
		} else {
			payload = append(payload, 0)
		}
	}
	return payload, nil
}

// decodeRuns parses the payload into runs plus cumulative end positions.
func (c *RLECodec) decodeRuns(t types.LogicalType, payload []byte) (runs []rleRun, cum []int, err error) {
	if len(payload) < 4 {
		return nil, nil, errorx.Compressionf("rle: truncated header")
	}
	count := int(binary.LittleEndian.Uint32(payload))
	off := 4
	runs = make([]rleRun, 0, count)
	cum = make([]int, 0, count)
	total := 0
	for i := 0; i < count; i++ {
		if off+5 > len(payload) {
			return nil, nil, errorx.Compressionf("rle: truncated run %d", i)
		}
		length := int(binary.LittleEndian.Uint32(payload[off:]))
		valid := payload[off+4] != 0
		off += 5
		run := rleRun{length: length, valid: valid}
		if valid {
			if w := fixedWidth(t); w > 0 {
				if off+w > len(payload) {
					return nil, nil, errorx.Compressionf("rle: truncated value in run %d", i)
				}
				run.value = getFixed(payload, off, t)
				off += w
			} else {
				v, n, serr := getString(payload, off, t)
				if serr != nil {
					return nil, nil, serr
				}
				run.value = v
				off += n
			}
		} else {
			run.value = types.NewNull(t)
		}
		total += length
		runs = append(runs, run)
		cum = append(cum, total)
	}
	return runs, cum, nil
}

// runAt locates the run containing row via binary search over cumulative
// lengths.
func runAt(cum []int, row int) int {
	return sort.SearchInts(cum, row+1)
}

// Decompress implements Codec.
func (c *RLECodec) Decompress(t types.LogicalType, payload []byte, rows int) ([]types.Value, error) {
	runs, cum, err := c.decodeRuns(t, payload)
	if err != nil {
		return nil, err
	}
	if n := len(cum); n > 0 && cum[n-1] != rows {
		return nil, errorx.Compressionf("rle: run total %d does not match %d rows", cum[n-1], rows)
	}
	out := make([]types.Value, 0, rows)
	for _, r := range runs {
		for i := 0; i < r.length; i++ {
			out = append(out, r.value)
		}
	}
	return out, nil
}

// Scan implements Codec.
func (c *RLECodec) Scan(t types.LogicalType, payload []byte, rows, start, end int) (*vector.Vector, error) {
	if start < 0 || end > rows || start > end {
		return nil, errorx.Internalf("rle scan range [%d,%d) outside %d rows", start, end, rows)
	}
	runs, cum, err := c.decodeRuns(t, payload)
	if err != nil {
		return nil, err
	}
	out := vector.NewFlat(t, end-start)
	if start == end {
		return out, nil
	}
	ri := runAt(cum, start)
	pos := start
	for pos < end && ri < len(runs) {
		runEnd := cum[ri]
		for ; pos < end && pos < runEnd; pos++ {
			if err := out.Append(runs[ri].value); err != nil {
				return nil, err
			}
		}
		ri++
	}
	if pos < end {
		return nil, errorx.Compressionf("rle: runs exhausted at row %d of %d", pos, rows)
	}
	return out, nil
}

// ScanSelection implements Codec via per-row binary search, the predicate
// point-lookup path.
func (c *RLECodec) ScanSelection(t types.LogicalType, payload []byte, rows int, sel *vector.SelectionVector) (*vector.Vector, error) {
	runs, cum, err := c.decodeRuns(t, payload)
	if err != nil {
		return nil, err
	}
	out := vector.NewFlat(t, sel.Len())
	for i := 0; i < sel.Len(); i++ {
		row := int(sel.Get(i))
		ri := runAt(cum, row)
		if ri >= len(runs) {
			return nil, errorx.Compressionf("rle: row %d beyond run total", row)
		}
		if err := out.Append(runs[ri].value); err != nil {
			return nil, err
		}
	}
	return out, nil
}
