// Package vector implements the columnar data plane: typed column buffers
// with validity tracking, zero-copy selection, and the DataChunk batches
// that flow between operators.
package vector

import (
	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
)

// Size is the maximum number of rows in a Vector or DataChunk.
const Size = 2048

// Kind describes the physical encoding of a Vector.
type Kind uint8

const (
	// Flat is densely packed typed storage.
	Flat Kind = iota
	// Constant stores one value logically repeated length times.
	Constant
	// Dictionary stores indices into a shared dictionary vector.
	Dictionary
	// Sequence stores start and step, generating values on read.
	Sequence
)

// Vector is a typed column buffer of at most Size rows. Vectors are
// logically immutable once published downstream; producers mutate them only
// while they still own them.
type Vector struct {
	typ      types.LogicalType
	kind     Kind
	length   int
	validity ValidityMask

	// Flat storage, one slice populated per physical class.
	bools   []bool
	i8      []int8
	i16     []int16
	i32     []int32
	i64     []int64
	h128    []types.Hugeint
	f32     []float32
	f64     []float64
	offsets []uint32 // var-size rows: offsets into buf, len == rows+1
	buf     []byte

	// Constant payload.
	constVal types.Value

	// Dictionary encoding.
	indices []int32
	dict    *Vector

	// Sequence encoding.
	seqStart int64
	seqStep  int64

	// Shared selection view; nil for dense vectors.
	sel *SelectionVector
}

// NewFlat allocates a flat vector of the given type with room for capacity
// rows.
func NewFlat(typ types.LogicalType, capacity int) *Vector {
	v := &Vector{typ: typ, kind: Flat}
	switch typ.ID {
	case types.Boolean:
		v.bools = make([]bool, 0, capacity)
	case types.TinyInt:
		v.i8 = make([]int8, 0, capacity)
	case types.SmallInt:
		v.i16 = make([]int16, 0, capacity)
	case types.Integer, types.Date:
		v.i32 = make([]int32, 0, capacity)
	case types.BigInt, types.Time, types.Timestamp, types.Decimal:
		v.i64 = make([]int64, 0, capacity)
	case types.HugeInt:
		v.h128 = make([]types.Hugeint, 0, capacity)
	case types.Float:
		v.f32 = make([]float32, 0, capacity)
	case types.Double:
		v.f64 = make([]float64, 0, capacity)
	case types.Varchar, types.Blob:
		v.offsets = append(make([]uint32, 0, capacity+1), 0)
	}
	return v
}

// NewConstant builds a constant vector repeating val length times.
func NewConstant(val types.Value, length int) *Vector {
	return &Vector{typ: val.Type, kind: Constant, length: length, constVal: val}
}

// NewSequence builds a sequence vector yielding start, start+step, ...
func NewSequence(typ types.LogicalType, start, step int64, length int) *Vector {
	return &Vector{typ: typ, kind: Sequence, length: length, seqStart: start, seqStep: step}
}

// NewDictionary builds a dictionary vector of indices into dict.
func NewDictionary(dict *Vector, indices []int32) *Vector {
	return &Vector{typ: dict.typ, kind: Dictionary, length: len(indices), indices: indices, dict: dict}
}

// Type returns the logical type.
func (v *Vector) Type() types.LogicalType { return v.typ }

// Kind returns the physical encoding.
func (v *Vector) Kind() Kind { return v.kind }

// Len returns the logical row count.
func (v *Vector) Len() int {
	if v.sel != nil {
		return v.sel.Len()
	}
	return v.length
}

// Validity exposes the validity mask.
func (v *Vector) Validity() *ValidityMask { return &v.validity }

// Selection returns the shared selection view, or nil for dense vectors.
func (v *Vector) Selection() *SelectionVector { return v.sel }

// physIndex maps a logical row to its physical storage position.
func (v *Vector) physIndex(i int) int {
	if v.sel != nil {
		return int(v.sel.Get(i))
	}
	return i
}

// Append adds a value to a flat vector. Returns a type error for an
// incompatible value, an internal error when the vector is full or not an
// owned flat vector.
func (v *Vector) Append(val types.Value) error {
	if v.kind != Flat || v.sel != nil {
		return errorx.Internalf("append on non-owned vector")
	}
	if v.length >= Size {
		return errorx.Internalf("vector overflow: capacity %d", Size)
	}
	if !val.Null && val.Type.ID != v.typ.ID {
		return errorx.Typef("cannot append %s value to %s vector", val.Type, v.typ)
	}
	idx := v.length
	if val.Null {
		v.appendZero()
		v.length++
		v.validity.SetInvalid(idx)
		return nil
	}
	switch v.typ.ID {
	case types.Boolean:
		v.bools = append(v.bools, val.Bool())
	case types.TinyInt:
		v.i8 = append(v.i8, int8(val.Int64()))
	case types.SmallInt:
		v.i16 = append(v.i16, int16(val.Int64()))
	case types.Integer, types.Date:
		v.i32 = append(v.i32, int32(val.Int64()))
	case types.BigInt, types.Time, types.Timestamp, types.Decimal:
		v.i64 = append(v.i64, val.Int64())
	case types.HugeInt:
		v.h128 = append(v.h128, val.Hugeint())
	case types.Float:
		v.f32 = append(v.f32, float32(val.Float64()))
	case types.Double:
		v.f64 = append(v.f64, val.Float64())
	case types.Varchar:
		v.buf = append(v.buf, val.Str()...)
		v.offsets = append(v.offsets, uint32(len(v.buf)))
	case types.Blob:
		v.buf = append(v.buf, val.Bytes()...)
		v.offsets = append(v.offsets, uint32(len(v.buf)))
	default:
		return errorx.Typef("unsupported vector type %s", v.typ)
	}
	v.length++
	return nil
}

// appendZero grows the physical storage by one zero slot for a null row.
func (v *Vector) appendZero() {
	switch v.typ.ID {
	case types.Boolean:
		v.bools = append(v.bools, false)
	case types.TinyInt:
		v.i8 = append(v.i8, 0)
	case types.SmallInt:
		v.i16 = append(v.i16, 0)
	case types.Integer, types.Date:
		v.i32 = append(v.i32, 0)
	case types.BigInt, types.Time, types.Timestamp, types.Decimal:
		v.i64 = append(v.i64, 0)
	case types.HugeInt:
		v.h128 = append(v.h128, types.Hugeint{})
	case types.Float:
		v.f32 = append(v.f32, 0)
	case types.Double:
		v.f64 = append(v.f64, 0)
	case types.Varchar, types.Blob:
		v.offsets = append(v.offsets, uint32(len(v.buf)))
	}
}

// Get returns the value at logical row i.
func (v *Vector) Get(i int) (types.Value, error) {
	if i < 0 || i >= v.Len() {
		return types.Value{}, errorx.Internalf("vector index %d out of bounds (len %d)", i, v.Len())
	}
	return v.get(i), nil
}

// MustGet is Get for callers that have already bounds-checked.
func (v *Vector) MustGet(i int) types.Value {
	return v.get(i)
}

func (v *Vector) get(i int) types.Value {
	switch v.kind {
	case Constant:
		return v.constVal
	case Sequence:
		val := v.seqStart + v.seqStep*int64(i)
		if v.typ.ID == types.Integer {
			return types.NewInteger(int32(val))
		}
		return types.NewBigInt(val)
	case Dictionary:
		phys := v.physIndex(i)
		if !v.validity.RowIsValid(phys) {
			return types.NewNull(v.typ)
		}
		return v.dict.get(int(v.indices[phys]))
	default:
		phys := v.physIndex(i)
		if !v.validity.RowIsValid(phys) {
			return types.NewNull(v.typ)
		}
		return v.flatValue(phys)
	}
}

func (v *Vector) flatValue(phys int) types.Value {
	switch v.typ.ID {
	case types.Boolean:
		return types.NewBoolean(v.bools[phys])
	case types.TinyInt:
		return types.NewTinyInt(v.i8[phys])
	case types.SmallInt:
		return types.NewSmallInt(v.i16[phys])
	case types.Integer:
		return types.NewInteger(v.i32[phys])
	case types.Date:
		return types.NewDate(v.i32[phys])
	case types.BigInt:
		return types.NewBigInt(v.i64[phys])
	case types.Time:
		return types.NewTime(v.i64[phys])
	case types.Timestamp:
		return types.NewTimestamp(v.i64[phys])
	case types.Decimal:
		return types.NewDecimal(v.i64[phys], v.typ.Precision, v.typ.Scale)
	case types.HugeInt:
		return types.NewHugeint(v.h128[phys])
	case types.Float:
		return types.NewFloat(v.f32[phys])
	case types.Double:
		return types.NewDouble(v.f64[phys])
	case types.Varchar:
		return types.NewVarchar(string(v.buf[v.offsets[phys]:v.offsets[phys+1]]))
	case types.Blob:
		return types.NewBlob(v.buf[v.offsets[phys]:v.offsets[phys+1]])
	default:
		return types.NewNull(v.typ)
	}
}

// IsNull reports whether logical row i is null.
func (v *Vector) IsNull(i int) bool {
	switch v.kind {
	case Constant:
		return v.constVal.Null
	case Sequence:
		return false
	default:
		return !v.validity.RowIsValid(v.physIndex(i))
	}
}

// SetValidity marks logical row i valid or null. Only meaningful for owned
// flat vectors.
func (v *Vector) SetValidity(i int, valid bool) error {
	if i < 0 || i >= v.Len() {
		return errorx.Internalf("validity index %d out of bounds (len %d)", i, v.Len())
	}
	v.validity.Set(v.physIndex(i), valid)
	return nil
}

// Slice returns a zero-copy view of v restricted to sel. The backing
// storage is shared; an existing selection composes so reads resolve a
// single indirection.
func (v *Vector) Slice(sel *SelectionVector) *Vector {
	if v.kind == Constant {
		return NewConstant(v.constVal, sel.Len())
	}
	view := *v
	if v.sel != nil {
		view.sel = v.sel.Compose(sel)
	} else {
		view.sel = sel
	}
	return &view
}

// Materialize compacts the vector into a dense flat vector, resolving any
// selection, dictionary, sequence, or constant encoding.
func (v *Vector) Materialize() *Vector {
	n := v.Len()
	out := NewFlat(v.typ, n)
	for i := 0; i < n; i++ {
		// Append on a fresh flat vector only fails on type mismatch,
		// which cannot happen when copying from the same type.
		_ = out.Append(v.get(i))
	}
	return out
}

// Flatten returns v if already dense flat storage, else a materialized copy.
func (v *Vector) Flatten() *Vector {
	if v.kind == Flat && v.sel == nil {
		return v
	}
	return v.Materialize()
}

// Bools exposes flat boolean storage.
func (v *Vector) Bools() []bool { return v.bools }

// Int8s exposes flat tinyint storage.
func (v *Vector) Int8s() []int8 { return v.i8 }

// Int16s exposes flat smallint storage.
func (v *Vector) Int16s() []int16 { return v.i16 }

// Int32s exposes flat integer/date storage.
func (v *Vector) Int32s() []int32 { return v.i32 }

// Int64s exposes flat bigint/time/timestamp/decimal storage.
func (v *Vector) Int64s() []int64 { return v.i64 }

// Hugeints exposes flat hugeint storage.
func (v *Vector) Hugeints() []types.Hugeint { return v.h128 }

// Float32s exposes flat float storage.
func (v *Vector) Float32s() []float32 { return v.f32 }

// Float64s exposes flat double storage.
func (v *Vector) Float64s() []float64 { return v.f64 }

// StringAt returns the string payload at a physical row of a flat vector.
func (v *Vector) StringAt(phys int) string {
	return string(v.buf[v.offsets[phys]:v.offsets[phys+1]])
}

// BytesAt returns the blob payload at a physical row of a flat vector.
func (v *Vector) BytesAt(phys int) []byte {
	return v.buf[v.offsets[phys]:v.offsets[phys+1]]
}
