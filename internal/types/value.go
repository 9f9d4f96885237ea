package types

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"
	"time"
)

// Hugeint is a signed 128-bit integer stored as upper/lower halves.
type Hugeint struct {
	Hi int64
	Lo uint64
}

// HugeintFromInt64 widens a 64-bit integer.
func HugeintFromInt64(v int64) Hugeint {
	h := Hugeint{Lo: uint64(v)}
	if v < 0 {
		h.Hi = -1
	}
	return h
}

// Add returns h+o and whether the signed addition overflowed.
func (h Hugeint) Add(o Hugeint) (Hugeint, bool) {
	lo, carry := bits.Add64(h.Lo, o.Lo, 0)
	hi := h.Hi + o.Hi + int64(carry)
	// Overflow iff both operands share a sign that the result lost.
	overflow := (h.Hi >= 0 && o.Hi >= 0 && hi < 0) || (h.Hi < 0 && o.Hi < 0 && hi >= 0)
	return Hugeint{Hi: hi, Lo: lo}, overflow
}

// Neg returns -h.
func (h Hugeint) Neg() Hugeint {
	lo, borrow := bits.Sub64(0, h.Lo, 0)
	return Hugeint{Hi: -h.Hi - int64(borrow), Lo: lo}
}

// Cmp compares two hugeints, returning -1, 0 or 1.
func (h Hugeint) Cmp(o Hugeint) int {
	if h.Hi != o.Hi {
		if h.Hi < o.Hi {
			return -1
		}
		return 1
	}
	if h.Lo != o.Lo {
		if h.Lo < o.Lo {
			return -1
		}
		return 1
	}
	return 0
}

// Float64 converts to float64, losing precision beyond 2^53.
func (h Hugeint) Float64() float64 {
	return float64(h.Hi)*math.Pow(2, 64) + float64(h.Lo)
}

// String renders the decimal spelling.
func (h Hugeint) String() string {
	if h.Hi == 0 {
		return strconv.FormatUint(h.Lo, 10)
	}
	if h.Hi == -1 && h.Lo > math.MaxInt64 {
		return strconv.FormatInt(int64(h.Lo), 10)
	}
	neg := h.Hi < 0
	if neg {
		h = h.Neg()
	}
	// Long division by 1e18 into at most three limbs.
	const limb = 1_000_000_000_000_000_000
	var parts []string
	for h.Hi != 0 || h.Lo != 0 {
		var rem uint64
		hi, r := bits.Div64(0, uint64(h.Hi), limb)
		lo, r2 := bits.Div64(r, h.Lo, limb)
		rem = r2
		h = Hugeint{Hi: int64(hi), Lo: lo}
		if h.Hi == 0 && h.Lo == 0 {
			parts = append([]string{strconv.FormatUint(rem, 10)}, parts...)
		} else {
			parts = append([]string{fmt.Sprintf("%018d", rem)}, parts...)
		}
	}
	s := strings.Join(parts, "")
	if s == "" {
		s = "0"
	}
	if neg {
		s = "-" + s
	}
	return s
}

// Value is the row-level tagged union used at engine boundaries: literals,
// bind-time folding, aggregate finalization, and tests. Hot scan paths never
// allocate Values per row.
type Value struct {
	Type   LogicalType
	Null   bool
	b      bool
	i64    int64
	h128   Hugeint
	f64    float64
	str    string
	raw    []byte
}

// NewNull builds the null value of a type.
func NewNull(t LogicalType) Value {
	return Value{Type: t, Null: true}
}

// NewBoolean builds a BOOLEAN value.
func NewBoolean(v bool) Value { return Value{Type: TypeBoolean, b: v} }

// NewTinyInt builds a TINYINT value.
func NewTinyInt(v int8) Value { return Value{Type: TypeTinyInt, i64: int64(v)} }

// NewSmallInt builds a SMALLINT value.
func NewSmallInt(v int16) Value { return Value{Type: TypeSmallInt, i64: int64(v)} }

// NewInteger builds an INTEGER value.
func NewInteger(v int32) Value { return Value{Type: TypeInteger, i64: int64(v)} }

// NewBigInt builds a BIGINT value.
func NewBigInt(v int64) Value { return Value{Type: TypeBigInt, i64: v} }

// NewHugeint builds a HUGEINT value.
func NewHugeint(v Hugeint) Value { return Value{Type: TypeHugeInt, h128: v} }

// NewFloat builds a FLOAT value.
func NewFloat(v float32) Value { return Value{Type: TypeFloat, f64: float64(v)} }

// NewDouble builds a DOUBLE value.
func NewDouble(v float64) Value { return Value{Type: TypeDouble, f64: v} }

// NewDecimal builds a DECIMAL value from its scaled integer representation.
func NewDecimal(scaled int64, precision, scale uint8) Value {
	return Value{Type: MakeDecimal(precision, scale), i64: scaled}
}

// NewVarchar builds a VARCHAR value.
func NewVarchar(v string) Value { return Value{Type: TypeVarchar, str: v} }

// NewBlob builds a BLOB value.
func NewBlob(v []byte) Value { return Value{Type: TypeBlob, raw: v} }

// NewDate builds a DATE value from days since the Unix epoch.
func NewDate(days int32) Value { return Value{Type: TypeDate, i64: int64(days)} }

// NewDateFromTime builds a DATE value from a time.Time (UTC calendar date).
func NewDateFromTime(t time.Time) Value {
	return NewDate(int32(t.UTC().Truncate(24 * time.Hour).Unix() / 86400))
}

// NewTime builds a TIME value from microseconds since midnight.
func NewTime(micros int64) Value { return Value{Type: TypeTime, i64: micros} }

// NewTimestamp builds a TIMESTAMP value from microseconds since the epoch.
func NewTimestamp(micros int64) Value { return Value{Type: TypeTimestamp, i64: micros} }

// Bool returns the boolean payload.
func (v Value) Bool() bool { return v.b }

// Int64 returns the integer payload widened to 64 bits. Valid for the
// integer family, Decimal (scaled), Date, Time and Timestamp.
func (v Value) Int64() int64 { return v.i64 }

// Hugeint returns the 128-bit payload, widening smaller integers.
func (v Value) Hugeint() Hugeint {
	if v.Type.ID == HugeInt {
		return v.h128
	}
	return HugeintFromInt64(v.i64)
}

// Float64 returns the floating payload, converting integer payloads.
func (v Value) Float64() float64 {
	switch v.Type.ID {
	case Float, Double:
		return v.f64
	case HugeInt:
		return v.h128.Float64()
	case Decimal:
		return float64(v.i64) / math.Pow10(int(v.Type.Scale))
	default:
		return float64(v.i64)
	}
}

// Str returns the string payload.
func (v Value) Str() string { return v.str }

// Bytes returns the blob payload.
func (v Value) Bytes() []byte { return v.raw }

// String renders the value for result display and logs.
func (v Value) String() string {
	if v.Null {
		return "NULL"
	}
	switch v.Type.ID {
	case Boolean:
		return strconv.FormatBool(v.b)
	case TinyInt, SmallInt, Integer, BigInt:
		return strconv.FormatInt(v.i64, 10)
	case HugeInt:
		return v.h128.String()
	case Float, Double:
		return strconv.FormatFloat(v.f64, 'g', -1, 64)
	case Decimal:
		return formatDecimal(v.i64, v.Type.Scale)
	case Varchar:
		return v.str
	case Blob:
		return fmt.Sprintf("\\x%x", v.raw)
	case Date:
		return time.Unix(v.i64*86400, 0).UTC().Format("2006-01-02")
	case Time:
		return time.Unix(0, v.i64*1000).UTC().Format("15:04:05.000000")
	case Timestamp:
		return time.Unix(0, v.i64*1000).UTC().Format("2006-01-02 15:04:05.000000")
	default:
		return "INVALID"
	}
}

func formatDecimal(scaled int64, scale uint8) string {
	if scale == 0 {
		return strconv.FormatInt(scaled, 10)
	}
	neg := scaled < 0
	if neg {
		scaled = -scaled
	}
	pow := int64(math.Pow10(int(scale)))
	s := fmt.Sprintf("%d.%0*d", scaled/pow, scale, scaled%pow)
	if neg {
		s = "-" + s
	}
	return s
}

// Compare orders two non-null values of the same logical type. Returns
// -1, 0 or 1. Cross-type comparisons must be resolved by casts beforehand.
func Compare(a, b Value) int {
	switch a.Type.ID {
	case Boolean:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		default:
			return 1
		}
	case TinyInt, SmallInt, Integer, BigInt, Decimal, Date, Time, Timestamp:
		switch {
		case a.i64 < b.i64:
			return -1
		case a.i64 > b.i64:
			return 1
		default:
			return 0
		}
	case HugeInt:
		return a.h128.Cmp(b.h128)
	case Float, Double:
		switch {
		case a.f64 < b.f64:
			return -1
		case a.f64 > b.f64:
			return 1
		default:
			return 0
		}
	case Varchar:
		return strings.Compare(a.str, b.str)
	case Blob:
		return strings.Compare(string(a.raw), string(b.raw))
	default:
		return 0
	}
}

// Equal reports value equality (null == null holds here; SQL three-valued
// semantics are applied a level up, in the expression evaluator).
func Equal(a, b Value) bool {
	if a.Null || b.Null {
		return a.Null && b.Null
	}
	return Compare(a, b) == 0
}
