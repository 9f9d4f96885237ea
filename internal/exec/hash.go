package exec

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// hashValues hashes a key tuple with xxhash. NULL hashes to a fixed tag so
// NULL keys group together (SQL GROUP BY treats NULLs as equal).
func hashValues(vals []types.Value) uint64 {
	var d xxhash.Digest
	d.Reset()
	var scratch [8]byte
	for _, v := range vals {
		if v.Null {
			_, _ = d.Write([]byte{0xFF, 0x00})
			continue
		}
		switch v.Type.ID {
		case types.Boolean:
			if v.Bool() {
				_, _ = d.Write([]byte{1, 1})
			} else {
				_, _ = d.Write([]byte{1, 0})
			}
		case types.Varchar:
			_, _ = d.Write([]byte{2})
			_, _ = d.WriteString(v.Str())
		case types.Blob:
			_, _ = d.Write([]byte{2})
			_, _ = d.Write(v.Bytes())
		case types.Float, types.Double:
			binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(v.Float64()))
			_, _ = d.Write([]byte{3})
			_, _ = d.Write(scratch[:])
		case types.HugeInt:
			h := v.Hugeint()
			binary.LittleEndian.PutUint64(scratch[:], uint64(h.Hi))
			_, _ = d.Write([]byte{4})
			_, _ = d.Write(scratch[:])
			binary.LittleEndian.PutUint64(scratch[:], h.Lo)
			_, _ = d.Write(scratch[:])
		default:
			binary.LittleEndian.PutUint64(scratch[:], uint64(v.Int64()))
			_, _ = d.Write([]byte{5})
			_, _ = d.Write(scratch[:])
		}
	}
	return d.Sum64()
}

// rowKeyValues extracts the key tuple of one row from evaluated key
// vectors.
func rowKeyValues(keys []*vector.Vector, row int, out []types.Value) []types.Value {
	out = out[:0]
	for _, k := range keys {
		out = append(out, k.MustGet(row))
	}
	return out
}

// groupKey renders a key tuple into a map key. NULL participates as its
// own value, matching GROUP BY semantics.
func groupKey(vals []types.Value) string {
	var b []byte
	for _, v := range vals {
		if v.Null {
			b = append(b, 0xFF, 0)
			continue
		}
		b = append(b, byte(v.Type.ID))
		b = append(b, v.String()...)
		b = append(b, 0)
	}
	return string(b)
}

// keysEqual compares two key tuples with SQL equality (a NULL on either side
// never matches), used by the join hash table to resolve hash collisions.
func keysEqual(a, b []types.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Null || b[i].Null {
			return false
		}
		if types.Compare(a[i], b[i]) != 0 {
			return false
		}
	}
	return true
}
