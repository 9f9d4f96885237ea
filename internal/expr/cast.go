package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// Cast converts a child expression to a target type. NULL casts to NULL of
// the target type; failed conversions are type errors.
type Cast struct {
	Child  Expression
	Target types.LogicalType
}

// NewCast builds a cast expression.
func NewCast(child Expression, target types.LogicalType) *Cast {
	return &Cast{Child: child, Target: target}
}

// ReturnType implements Expression.
func (c *Cast) ReturnType() types.LogicalType { return c.Target }

// Eval implements Expression.
func (c *Cast) Eval(ctx *Context, chunk *vector.DataChunk) (*vector.Vector, error) {
	in, err := c.Child.Eval(ctx, chunk)
	if err != nil {
		return nil, err
	}
	n := chunk.Cardinality()
	out := vector.NewFlat(c.Target, n)
	for i := 0; i < n; i++ {
		v, err := CastValue(in.MustGet(i), c.Target)
		if err != nil {
			return nil, err
		}
		if err := out.Append(v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *Cast) String() string {
	return fmt.Sprintf("CAST(%s AS %s)", c.Child, c.Target)
}

// CastValue converts a single value to the target type following the
// coercion matrix: integer widening/narrowing (checked), int<->float,
// text<->number via parse/format, date/timestamp cross-conversion.
func CastValue(v types.Value, target types.LogicalType) (types.Value, error) {
	if v.Null {
		return types.NewNull(target), nil
	}
	if v.Type.ID == target.ID {
		if target.ID == types.Decimal && !v.Type.Equal(target) {
			return rescaleDecimal(v, target)
		}
		return v, nil
	}
	switch target.ID {
	case types.TinyInt, types.SmallInt, types.Integer, types.BigInt:
		i, err := toInt64(v)
		if err != nil {
			return types.Value{}, err
		}
		return narrowToInt(i, target)
	case types.HugeInt:
		switch {
		case v.Type.IsInteger():
			return types.NewHugeint(v.Hugeint()), nil
		case v.Type.ID == types.Varchar:
			i, err := strconv.ParseInt(strings.TrimSpace(v.Str()), 10, 64)
			if err != nil {
				return types.Value{}, errorx.Typef("cannot cast %q to HUGEINT", v.Str())
			}
			return types.NewHugeint(types.HugeintFromInt64(i)), nil
		case v.Type.ID == types.Float || v.Type.ID == types.Double:
			return types.NewHugeint(types.HugeintFromInt64(int64(v.Float64()))), nil
		}
	case types.Float:
		f, err := toFloat64(v)
		if err != nil {
			return types.Value{}, err
		}
		return types.NewFloat(float32(f)), nil
	case types.Double:
		f, err := toFloat64(v)
		if err != nil {
			return types.Value{}, err
		}
		return types.NewDouble(f), nil
	case types.Decimal:
		f, err := toFloat64(v)
		if err != nil {
			return types.Value{}, err
		}
		scaled := math.Round(f * math.Pow10(int(target.Scale)))
		if math.Abs(scaled) >= math.Pow10(int(target.Precision)) {
			return types.Value{}, errorx.Typef("value %s out of range for %s", v, target)
		}
		return types.NewDecimal(int64(scaled), target.Precision, target.Scale), nil
	case types.Varchar:
		return types.NewVarchar(v.String()), nil
	case types.Blob:
		if v.Type.ID == types.Varchar {
			return types.NewBlob([]byte(v.Str())), nil
		}
	case types.Boolean:
		switch v.Type.ID {
		case types.Varchar:
			switch strings.ToLower(strings.TrimSpace(v.Str())) {
			case "true", "t", "1":
				return types.NewBoolean(true), nil
			case "false", "f", "0":
				return types.NewBoolean(false), nil
			}
			return types.Value{}, errorx.Typef("cannot cast %q to BOOLEAN", v.Str())
		default:
			if v.Type.IsInteger() {
				return types.NewBoolean(v.Int64() != 0), nil
			}
		}
	case types.Date:
		switch v.Type.ID {
		case types.Varchar:
			t, err := time.Parse("2006-01-02", strings.TrimSpace(v.Str()))
			if err != nil {
				return types.Value{}, errorx.Typef("cannot cast %q to DATE", v.Str())
			}
			return types.NewDate(int32(t.Unix() / 86400)), nil
		case types.Timestamp:
			// Floor towards the epoch day.
			micros := v.Int64()
			days := micros / 86400_000_000
			if micros < 0 && micros%86400_000_000 != 0 {
				days--
			}
			return types.NewDate(int32(days)), nil
		}
	case types.Time:
		if v.Type.ID == types.Varchar {
			t, err := parseTimeOfDay(strings.TrimSpace(v.Str()))
			if err != nil {
				return types.Value{}, err
			}
			return types.NewTime(t), nil
		}
	case types.Timestamp:
		switch v.Type.ID {
		case types.Varchar:
			s := strings.TrimSpace(v.Str())
			for _, layout := range []string{"2006-01-02 15:04:05.999999", "2006-01-02 15:04:05", "2006-01-02"} {
				if t, err := time.Parse(layout, s); err == nil {
					return types.NewTimestamp(t.UnixMicro()), nil
				}
			}
			return types.Value{}, errorx.Typef("cannot cast %q to TIMESTAMP", v.Str())
		case types.Date:
			return types.NewTimestamp(v.Int64() * 86400_000_000), nil
		}
	}
	return types.Value{}, errorx.Typef("unsupported cast from %s to %s", v.Type, target)
}

func parseTimeOfDay(s string) (int64, error) {
	for _, layout := range []string{"15:04:05.999999", "15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return t.Sub(midnight).Microseconds(), nil
		}
	}
	return 0, errorx.Typef("cannot cast %q to TIME", s)
}

func toInt64(v types.Value) (int64, error) {
	switch {
	case v.Type.IsInteger():
		if v.Type.ID == types.HugeInt {
			h := v.Hugeint()
			if h.Cmp(types.HugeintFromInt64(math.MaxInt64)) > 0 || h.Cmp(types.HugeintFromInt64(math.MinInt64)) < 0 {
				return 0, errorx.Typef("HUGEINT value out of BIGINT range")
			}
			return int64(h.Lo), nil
		}
		return v.Int64(), nil
	case v.Type.ID == types.Boolean:
		if v.Bool() {
			return 1, nil
		}
		return 0, nil
	case v.Type.ID == types.Float || v.Type.ID == types.Double:
		f := v.Float64()
		if f > math.MaxInt64 || f < math.MinInt64 {
			return 0, errorx.Typef("value %g out of integer range", f)
		}
		return int64(math.Round(f)), nil
	case v.Type.ID == types.Decimal:
		return int64(math.Round(v.Float64())), nil
	case v.Type.ID == types.Varchar:
		s := strings.TrimSpace(v.Str())
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			// Allow "3.0" style literals.
			if f, ferr := strconv.ParseFloat(s, 64); ferr == nil {
				return int64(math.Round(f)), nil
			}
			return 0, errorx.Typef("cannot cast %q to integer", s)
		}
		return i, nil
	}
	return 0, errorx.Typef("cannot cast %s to integer", v.Type)
}

func toFloat64(v types.Value) (float64, error) {
	switch {
	case v.Type.IsNumeric():
		return v.Float64(), nil
	case v.Type.ID == types.Boolean:
		if v.Bool() {
			return 1, nil
		}
		return 0, nil
	case v.Type.ID == types.Varchar:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str()), 64)
		if err != nil {
			return 0, errorx.Typef("cannot cast %q to DOUBLE", v.Str())
		}
		return f, nil
	}
	return 0, errorx.Typef("cannot cast %s to DOUBLE", v.Type)
}

func narrowToInt(i int64, target types.LogicalType) (types.Value, error) {
	switch target.ID {
	case types.TinyInt:
		if i < math.MinInt8 || i > math.MaxInt8 {
			return types.Value{}, errorx.Typef("value %d out of TINYINT range", i)
		}
		return types.NewTinyInt(int8(i)), nil
	case types.SmallInt:
		if i < math.MinInt16 || i > math.MaxInt16 {
			return types.Value{}, errorx.Typef("value %d out of SMALLINT range", i)
		}
		return types.NewSmallInt(int16(i)), nil
	case types.Integer:
		if i < math.MinInt32 || i > math.MaxInt32 {
			return types.Value{}, errorx.Typef("value %d out of INTEGER range", i)
		}
		return types.NewInteger(int32(i)), nil
	default:
		return types.NewBigInt(i), nil
	}
}

func rescaleDecimal(v types.Value, target types.LogicalType) (types.Value, error) {
	diff := int(target.Scale) - int(v.Type.Scale)
	scaled := v.Int64()
	switch {
	case diff > 0:
		scaled *= int64(math.Pow10(diff))
	case diff < 0:
		scaled /= int64(math.Pow10(-diff))
	}
	if math.Abs(float64(scaled)) >= math.Pow10(int(target.Precision)) {
		return types.Value{}, errorx.Typef("value %s out of range for %s", v, target)
	}
	return types.NewDecimal(scaled, target.Precision, target.Scale), nil
}
