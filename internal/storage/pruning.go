package storage

import "github.com/turingworks/prismdb/internal/types"

// CompareOp enumerates the predicate shapes the zone maps understand.
type CompareOp uint8

const (
	CmpEq CompareOp = iota
	CmpNotEq
	CmpLt
	CmpLtEq
	CmpGt
	CmpGtEq
	CmpIsNull
	CmpIsNotNull
)

// Predicate is a pushed-down single-column filter in zone-map form: the
// scan consults it against row-group and segment statistics before touching
// any compressed data. Column is the table-level column index.
type Predicate struct {
	Column int
	Op     CompareOp
	Value  types.Value
}

// Feasible reports whether any row described by the stats can satisfy the
// predicate. Bounds are conservative, so false means the range is provably
// empty and may be skipped; true promises nothing.
func (s SegmentStats) Feasible(op CompareOp, value types.Value) bool {
	switch op {
	case CmpIsNull:
		return s.HasNull
	case CmpIsNotNull:
		return !s.Min.Null || !s.Max.Null
	}
	if value.Null {
		// Comparisons against NULL never yield true rows.
		return false
	}
	if s.Min.Null || s.Max.Null {
		// No non-null rows recorded; only IS NULL could match.
		return false
	}
	if !s.Min.Type.Equal(value.Type) {
		// Type drift between the bound predicate and the stored stats;
		// stay conservative.
		return true
	}
	switch op {
	case CmpEq:
		return types.Compare(value, s.Min) >= 0 && types.Compare(value, s.Max) <= 0
	case CmpNotEq:
		// Only an all-equal segment with exactly that value is prunable.
		return !(types.Compare(s.Min, s.Max) == 0 && types.Compare(value, s.Min) == 0)
	case CmpLt:
		return types.Compare(s.Min, value) < 0
	case CmpLtEq:
		return types.Compare(s.Min, value) <= 0
	case CmpGt:
		return types.Compare(s.Max, value) > 0
	case CmpGtEq:
		return types.Compare(s.Max, value) >= 0
	default:
		return true
	}
}
