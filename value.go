package prismdb

import (
	"time"

	"github.com/turingworks/prismdb/internal/types"
)

// Public value constructors for parameter binding and row assembly.

// NewNullValue builds the NULL value of a type.
func NewNullValue(t LogicalType) Value { return types.NewNull(t) }

// NewBooleanValue builds a BOOLEAN value.
func NewBooleanValue(v bool) Value { return types.NewBoolean(v) }

// NewIntegerValue builds an INTEGER value.
func NewIntegerValue(v int32) Value { return types.NewInteger(v) }

// NewBigIntValue builds a BIGINT value.
func NewBigIntValue(v int64) Value { return types.NewBigInt(v) }

// NewDoubleValue builds a DOUBLE value.
func NewDoubleValue(v float64) Value { return types.NewDouble(v) }

// NewVarcharValue builds a VARCHAR value.
func NewVarcharValue(v string) Value { return types.NewVarchar(v) }

// NewBlobValue builds a BLOB value.
func NewBlobValue(v []byte) Value { return types.NewBlob(v) }

// NewDateValue builds a DATE value from a calendar date.
func NewDateValue(t time.Time) Value { return types.NewDateFromTime(t) }

// NewTimestampValue builds a TIMESTAMP value from a point in time.
func NewTimestampValue(t time.Time) Value { return types.NewTimestamp(t.UTC().UnixMicro()) }

// Type name helpers for building schemas programmatically.
var (
	TypeBoolean   = types.TypeBoolean
	TypeTinyInt   = types.TypeTinyInt
	TypeSmallInt  = types.TypeSmallInt
	TypeInteger   = types.TypeInteger
	TypeBigInt    = types.TypeBigInt
	TypeHugeInt   = types.TypeHugeInt
	TypeFloat     = types.TypeFloat
	TypeDouble    = types.TypeDouble
	TypeVarchar   = types.TypeVarchar
	TypeBlob      = types.TypeBlob
	TypeDate      = types.TypeDate
	TypeTime      = types.TypeTime
	TypeTimestamp = types.TypeTimestamp
)
