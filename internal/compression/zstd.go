package compression

import (
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// ZstdCodec wraps the uncompressed string layout in a zstd frame. It only
// competes for Varchar/Blob segments; low-cardinality and run-heavy string
// data still goes to dictionary or RLE, which keep predicates pushable.
type ZstdCodec struct{}

var (
	zstdEncOnce sync.Once
	zstdEnc     *zstd.Encoder
	zstdDecOnce sync.Once
	zstdDec     *zstd.Decoder
)

func zstdEncoder() *zstd.Encoder {
	zstdEncOnce.Do(func() {
		// EncodeAll-only usage; concurrency 1 keeps the shared encoder
		// stateless across callers.
		zstdEnc, _ = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1))
	})
	return zstdEnc
}

func zstdDecoder() *zstd.Decoder {
	zstdDecOnce.Do(func() {
		zstdDec, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	})
	return zstdDec
}

// Tag implements Codec.
func (*ZstdCodec) Tag() Tag { return TagZstd }

// Name implements Codec.
func (*ZstdCodec) Name() string { return "zstd" }

// Supports implements Codec.
func (*ZstdCodec) Supports(t types.LogicalType) bool {
	return t.IsString()
}

// Analyze implements Codec by compressing for real; string payloads are the
// only candidates and a size guess without compressing is useless for them.
func (c *ZstdCodec) Analyze(t types.LogicalType, values []types.Value) (AnalyzeResult, error) {
	payload, err := c.Compress(t, values)
	if err != nil {
		return AnalyzeResult{}, err
	}
	uncompressed := 1
	if base, err := (&UncompressedCodec{}).Analyze(t, values); err == nil {
		uncompressed = base.EstimatedBytes
	}
	return AnalyzeResult{
		EstimatedBytes: len(payload),
		EstimatedRatio: float64(len(payload)) / float64(uncompressed),
	}, nil
}

// Compress implements Codec.
func (c *ZstdCodec) Compress(t types.LogicalType, values []types.Value) ([]byte, error) {
	if !c.Supports(t) {
		return nil, errorx.Compressionf("zstd: unsupported type %s", t)
	}
	inner, err := (&UncompressedCodec{}).Compress(t, values)
	if err != nil {
		return nil, err
	}
	return zstdEncoder().EncodeAll(inner, nil), nil
}

func (c *ZstdCodec) inflate(payload []byte) ([]byte, error) {
	inner, err := zstdDecoder().DecodeAll(payload, nil)
	if err != nil {
		return nil, errorx.Compressionf("zstd: corrupted frame").WithCause(err)
	}
	return inner, nil
}

// Decompress implements Codec.
func (c *ZstdCodec) Decompress(t types.LogicalType, payload []byte, rows int) ([]types.Value, error) {
	inner, err := c.inflate(payload)
	if err != nil {
		return nil, err
	}
	return (&UncompressedCodec{}).Decompress(t, inner, rows)
}

// Scan implements Codec. The frame must be inflated whole; the row range is
// then addressed through the flat layout.
func (c *ZstdCodec) Scan(t types.LogicalType, payload []byte, rows, start, end int) (*vector.Vector, error) {
	inner, err := c.inflate(payload)
	if err != nil {
		return nil, err
	}
	return (&UncompressedCodec{}).Scan(t, inner, rows, start, end)
}

// ScanSelection implements Codec.
func (c *ZstdCodec) ScanSelection(t types.LogicalType, payload []byte, rows int, sel *vector.SelectionVector) (*vector.Vector, error) {
	inner, err := c.inflate(payload)
	if err != nil {
		return nil, err
	}
	return (&UncompressedCodec{}).ScanSelection(t, inner, rows, sel)
}
