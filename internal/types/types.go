// Package types defines the logical type system and the row-level Value
// representation shared by the storage, expression, and execution layers.
package types

import "fmt"

// TypeID identifies a logical type.
type TypeID uint8

const (
	Invalid TypeID = iota
	Boolean
	TinyInt
	SmallInt
	Integer
	BigInt
	HugeInt
	Float
	Double
	Decimal
	Varchar
	Blob
	Date
	Time
	Timestamp
)

// LogicalType is a TypeID plus the type modifiers that some types carry
// (precision and scale for Decimal).
type LogicalType struct {
	ID        TypeID
	Precision uint8
	Scale     uint8
}

// Common logical types. Decimal types are built with MakeDecimal.
var (
	TypeInvalid   = LogicalType{ID: Invalid}
	TypeBoolean   = LogicalType{ID: Boolean}
	TypeTinyInt   = LogicalType{ID: TinyInt}
	TypeSmallInt  = LogicalType{ID: SmallInt}
	TypeInteger   = LogicalType{ID: Integer}
	TypeBigInt    = LogicalType{ID: BigInt}
	TypeHugeInt   = LogicalType{ID: HugeInt}
	TypeFloat     = LogicalType{ID: Float}
	TypeDouble    = LogicalType{ID: Double}
	TypeVarchar   = LogicalType{ID: Varchar}
	TypeBlob      = LogicalType{ID: Blob}
	TypeDate      = LogicalType{ID: Date}
	TypeTime      = LogicalType{ID: Time}
	TypeTimestamp = LogicalType{ID: Timestamp}
)

// MakeDecimal builds a Decimal logical type with the given precision and scale.
func MakeDecimal(precision, scale uint8) LogicalType {
	return LogicalType{ID: Decimal, Precision: precision, Scale: scale}
}

// String returns the SQL spelling of the type.
func (t LogicalType) String() string {
	switch t.ID {
	case Boolean:
		return "BOOLEAN"
	case TinyInt:
		return "TINYINT"
	case SmallInt:
		return "SMALLINT"
	case Integer:
		return "INTEGER"
	case BigInt:
		return "BIGINT"
	case HugeInt:
		return "HUGEINT"
	case Float:
		return "FLOAT"
	case Double:
		return "DOUBLE"
	case Decimal:
		return fmt.Sprintf("DECIMAL(%d,%d)", t.Precision, t.Scale)
	case Varchar:
		return "VARCHAR"
	case Blob:
		return "BLOB"
	case Date:
		return "DATE"
	case Time:
		return "TIME"
	case Timestamp:
		return "TIMESTAMP"
	default:
		return "INVALID"
	}
}

// IsNumeric reports whether the type participates in arithmetic.
func (t LogicalType) IsNumeric() bool {
	switch t.ID {
	case TinyInt, SmallInt, Integer, BigInt, HugeInt, Float, Double, Decimal:
		return true
	}
	return false
}

// IsInteger reports whether the type is a fixed-width integer type.
func (t LogicalType) IsInteger() bool {
	switch t.ID {
	case TinyInt, SmallInt, Integer, BigInt, HugeInt:
		return true
	}
	return false
}

// IsTemporal reports whether the type is date/time valued.
func (t LogicalType) IsTemporal() bool {
	switch t.ID {
	case Date, Time, Timestamp:
		return true
	}
	return false
}

// IsString reports whether the type stores variable-length byte payloads.
func (t LogicalType) IsString() bool {
	return t.ID == Varchar || t.ID == Blob
}

// Equal reports full logical-type equality including modifiers.
func (t LogicalType) Equal(o LogicalType) bool {
	return t.ID == o.ID && t.Precision == o.Precision && t.Scale == o.Scale
}

// IntegerWidth returns the byte width of a fixed-width integer type, or 0.
func (t LogicalType) IntegerWidth() int {
	switch t.ID {
	case TinyInt:
		return 1
	case SmallInt:
		return 2
	case Integer:
		return 4
	case BigInt:
		return 8
	case HugeInt:
		return 16
	}
	return 0
}

// numericRank orders numeric types for implicit coercion. Wider wins.
func numericRank(id TypeID) int {
	switch id {
	case TinyInt:
		return 1
	case SmallInt:
		return 2
	case Integer:
		return 3
	case BigInt:
		return 4
	case HugeInt:
		return 5
	case Decimal:
		return 6
	case Float:
		return 7
	case Double:
		return 8
	}
	return 0
}

// CommonType resolves the implicit coercion target for a binary operation
// over two types, following the widening rules: integers widen to the larger
// integer, integer+float widens to float/double, anything+varchar stays at
// the non-varchar side (the varchar operand is cast). Returns false when the
// two types cannot be reconciled.
func CommonType(a, b LogicalType) (LogicalType, bool) {
	if a.Equal(b) {
		return a, true
	}
	if a.IsNumeric() && b.IsNumeric() {
		if numericRank(a.ID) >= numericRank(b.ID) {
			return a, true
		}
		return b, true
	}
	// Comparing text against a concrete type casts the text side.
	if a.ID == Varchar && b.ID != Varchar {
		return b, true
	}
	if b.ID == Varchar && a.ID != Varchar {
		return a, true
	}
	if a.ID == Date && b.ID == Timestamp || a.ID == Timestamp && b.ID == Date {
		return TypeTimestamp, true
	}
	return TypeInvalid, false
}
