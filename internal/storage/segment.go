// Package storage implements the columnar table layout: compressed column
// segments with zone-map statistics, row groups, the append path, the block
// file format, and the buffer pool.
package storage

import (
	"github.com/turingworks/prismdb/internal/compression"
	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

const (
	// SegmentMaxRows caps rows per column segment; two aligned segments
	// fill a row group exactly.
	SegmentMaxRows = 61440
	// SegmentMaxBytes caps the compressed payload of one segment.
	SegmentMaxBytes = 256 * 1024
)

// SegmentState tracks whether a segment lives in memory or is bound to a
// block in the database file.
type SegmentState uint8

const (
	// Transient segments exist only in memory.
	Transient SegmentState = iota
	// Persistent segments are backed by a block.
	Persistent
)

// SegmentStats is the zone map of one segment: conservative bounds plus
// null and distinct counts.
type SegmentStats struct {
	Min         types.Value
	Max         types.Value
	NullCount   int
	DistinctEst int
	HasNull     bool
}

// merge widens stats to cover another segment, for row-group zone maps.
func (s *SegmentStats) merge(o SegmentStats) {
	if o.HasNull {
		s.HasNull = true
	}
	s.NullCount += o.NullCount
	s.DistinctEst += o.DistinctEst
	if o.Min.Null && o.Max.Null {
		return
	}
	if s.Min.Null || (!o.Min.Null && types.Compare(o.Min, s.Min) < 0) {
		s.Min = o.Min
	}
	if s.Max.Null || (!o.Max.Null && types.Compare(o.Max, s.Max) > 0) {
		s.Max = o.Max
	}
}

// computeStats builds segment statistics over a value run. DistinctEst is
// exact when the dictionary codec won the analyze phase and a sampled
// estimate otherwise.
func computeStats(t types.LogicalType, values []types.Value, distinct int) SegmentStats {
	stats := SegmentStats{
		Min:         types.NewNull(t),
		Max:         types.NewNull(t),
		DistinctEst: distinct,
	}
	for _, v := range values {
		if v.Null {
			stats.NullCount++
			stats.HasNull = true
			continue
		}
		if stats.Min.Null || types.Compare(v, stats.Min) < 0 {
			stats.Min = v
		}
		if stats.Max.Null || types.Compare(v, stats.Max) > 0 {
			stats.Max = v
		}
	}
	return stats
}

// ColumnSegment is a contiguous compressed sub-range of one column.
type ColumnSegment struct {
	Type     types.LogicalType
	CodecTag compression.Tag
	Payload  []byte
	RowCount int
	// StartRow is the first row id of the segment within its row group.
	StartRow int
	Stats    SegmentStats
	State    SegmentState
	BlockID  uint64
}

// CompressSegment runs the analyze phase over the values and builds the
// segment with the winning codec.
func CompressSegment(t types.LogicalType, startRow int, values []types.Value) (*ColumnSegment, error) {
	codec, _, err := compression.Choose(t, values)
	if err != nil {
		return nil, err
	}
	payload, err := codec.Compress(t, values)
	if err != nil {
		return nil, err
	}
	if len(payload) > SegmentMaxBytes {
		// The analyze winner blew the byte budget; fall back to the
		// baseline only if it is smaller, otherwise accept the payload
		// (a single oversized blob row can exceed any budget).
		base := &compression.UncompressedCodec{}
		basePayload, berr := base.Compress(t, values)
		if berr == nil && len(basePayload) < len(payload) {
			codec, payload = base, basePayload
		}
	}
	distinct := estimateDistinct(t, values, codec)
	return &ColumnSegment{
		Type:     t,
		CodecTag: codec.Tag(),
		Payload:  payload,
		RowCount: len(values),
		StartRow: startRow,
		Stats:    computeStats(t, values, distinct),
		State:    Transient,
	}, nil
}

func estimateDistinct(t types.LogicalType, values []types.Value, codec compression.Codec) int {
	if dict, ok := codec.(*compression.DictionaryCodec); ok {
		return dict.DistinctCount(t, values)
	}
	// Exact count over a bounded sample; beyond the sample the estimate
	// extrapolates linearly, which the stats contract allows.
	const sample = 4096
	seen := make(map[string]struct{}, 256)
	n := len(values)
	limit := n
	if limit > sample {
		limit = sample
	}
	for _, v := range values[:limit] {
		if v.Null {
			continue
		}
		seen[v.String()] = struct{}{}
	}
	if n > limit && limit > 0 {
		return len(seen) * n / limit
	}
	return len(seen)
}

// Scan materializes rows [start, end) of the segment.
func (s *ColumnSegment) Scan(start, end int) (*vector.Vector, error) {
	codec, err := compression.ByTag(s.CodecTag)
	if err != nil {
		return nil, err
	}
	return codec.Scan(s.Type, s.Payload, s.RowCount, start, end)
}

// ScanSelection materializes only the segment-relative rows named by sel.
func (s *ColumnSegment) ScanSelection(sel *vector.SelectionVector) (*vector.Vector, error) {
	codec, err := compression.ByTag(s.CodecTag)
	if err != nil {
		return nil, err
	}
	return codec.ScanSelection(s.Type, s.Payload, s.RowCount, sel)
}

// Decompress decodes the whole segment back into values.
func (s *ColumnSegment) Decompress() ([]types.Value, error) {
	codec, err := compression.ByTag(s.CodecTag)
	if err != nil {
		return nil, err
	}
	return codec.Decompress(s.Type, s.Payload, s.RowCount)
}

// CheckStats verifies the conservative-bounds invariant over live rows.
func (s *ColumnSegment) CheckStats() error {
	values, err := s.Decompress()
	if err != nil {
		return err
	}
	for i, v := range values {
		if v.Null {
			continue
		}
		if !s.Stats.Min.Null && types.Compare(v, s.Stats.Min) < 0 {
			return errorx.Internalf("segment row %d below stats min", i)
		}
		if !s.Stats.Max.Null && types.Compare(v, s.Stats.Max) > 0 {
			return errorx.Internalf("segment row %d above stats max", i)
		}
	}
	return nil
}
