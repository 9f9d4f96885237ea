package expr

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/exp/constraints"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// ScalarKernel is the monomorphic row kernel of one resolved signature.
// Inputs are non-null; null propagation happens in the driver.
type ScalarKernel func(args []types.Value) (types.Value, error)

// Function is one registered scalar signature.
type Function struct {
	Name   string
	Args   []types.LogicalType
	Return types.LogicalType
	Kernel ScalarKernel
	// NullPassthrough disables the any-null-in-null-out driver rule for
	// functions like coalesce that see nulls themselves.
	NullPassthrough bool
}

var scalarRegistry = map[string][]*Function{}

func register(fn *Function) {
	scalarRegistry[fn.Name] = append(scalarRegistry[fn.Name], fn)
}

// Resolve finds the signature of name matching the argument types exactly.
// The binder coerces arguments to a common type before resolving, so one
// concrete signature matches or the call is a type error.
func Resolve(name string, args []types.LogicalType) (*Function, error) {
	candidates := scalarRegistry[strings.ToLower(name)]
	if len(candidates) == 0 {
		return nil, errorx.Catalogf("unknown function %s", name)
	}
	for _, fn := range candidates {
		if len(fn.Args) != len(args) {
			continue
		}
		match := true
		for i, t := range fn.Args {
			if t.ID != args[i].ID {
				match = false
				break
			}
		}
		if match {
			return fn, nil
		}
	}
	return nil, errorx.Typef("no overload of %s matches (%s)", name, typeList(args))
}

func typeList(args []types.LogicalType) string {
	parts := make([]string, len(args))
	for i, t := range args {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// FunctionExpr applies a resolved scalar function to its children.
type FunctionExpr struct {
	Fn       *Function
	Children []Expression
}

// NewFunctionExpr builds a bound scalar function call.
func NewFunctionExpr(fn *Function, children ...Expression) *FunctionExpr {
	return &FunctionExpr{Fn: fn, Children: children}
}

// ReturnType implements Expression.
func (f *FunctionExpr) ReturnType() types.LogicalType { return f.Fn.Return }

// Eval implements Expression.
func (f *FunctionExpr) Eval(ctx *Context, chunk *vector.DataChunk) (*vector.Vector, error) {
	n := chunk.Cardinality()
	cols := make([]*vector.Vector, len(f.Children))
	for i, child := range f.Children {
		v, err := child.Eval(ctx, chunk)
		if err != nil {
			return nil, err
		}
		cols[i] = v
	}
	out := vector.NewFlat(f.Fn.Return, n)
	args := make([]types.Value, len(cols))
	for row := 0; row < n; row++ {
		null := false
		for i, col := range cols {
			args[i] = col.MustGet(row)
			if args[i].Null {
				null = true
			}
		}
		if null && !f.Fn.NullPassthrough {
			if err := out.Append(types.NewNull(f.Fn.Return)); err != nil {
				return nil, err
			}
			continue
		}
		res, err := f.Fn.Kernel(args)
		if err != nil {
			return nil, err
		}
		if err := out.Append(res); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (f *FunctionExpr) String() string {
	parts := make([]string, len(f.Children))
	for i, c := range f.Children {
		parts[i] = c.String()
	}
	return fmt.Sprintf("%s(%s)", f.Fn.Name, strings.Join(parts, ", "))
}

// fitsIn reports whether a 64-bit result stays within the narrower signed
// integer width T.
func fitsIn[T constraints.Signed](v int64) bool {
	return int64(T(v)) == v
}

func checkedNarrow(t types.LogicalType, v int64) (types.Value, error) {
	switch t.ID {
	case types.TinyInt:
		if !fitsIn[int8](v) {
			return types.Value{}, errorx.Arithmeticf("TINYINT overflow: %d", v)
		}
		return types.NewTinyInt(int8(v)), nil
	case types.SmallInt:
		if !fitsIn[int16](v) {
			return types.Value{}, errorx.Arithmeticf("SMALLINT overflow: %d", v)
		}
		return types.NewSmallInt(int16(v)), nil
	case types.Integer:
		if !fitsIn[int32](v) {
			return types.Value{}, errorx.Arithmeticf("INTEGER overflow: %d", v)
		}
		return types.NewInteger(int32(v)), nil
	default:
		return types.NewBigInt(v), nil
	}
}

// Signed 64-bit checked arithmetic. Overflow is an error per the engine's
// default policy.
func addChecked(a, b int64) (int64, error) {
	s := a + b
	if (a > 0 && b > 0 && s < 0) || (a < 0 && b < 0 && s >= 0) {
		return 0, errorx.Arithmeticf("BIGINT overflow in %d + %d", a, b)
	}
	return s, nil
}

func subChecked(a, b int64) (int64, error) {
	s := a - b
	if (a >= 0 && b < 0 && s < 0) || (a < 0 && b > 0 && s >= 0) {
		return 0, errorx.Arithmeticf("BIGINT overflow in %d - %d", a, b)
	}
	return s, nil
}

func mulChecked(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	p := a * b
	if p/b != a || (a == math.MinInt64 && b == -1) {
		return 0, errorx.Arithmeticf("BIGINT overflow in %d * %d", a, b)
	}
	return p, nil
}

func registerIntArith(name string, t types.LogicalType, op func(a, b int64) (int64, error)) {
	register(&Function{
		Name:   name,
		Args:   []types.LogicalType{t, t},
		Return: t,
		Kernel: func(args []types.Value) (types.Value, error) {
			r, err := op(args[0].Int64(), args[1].Int64())
			if err != nil {
				return types.Value{}, err
			}
			return checkedNarrow(t, r)
		},
	})
}

func registerFloatArith(name string, t types.LogicalType, op func(a, b float64) float64) {
	mk := func(f float64) types.Value {
		if t.ID == types.Float {
			return types.NewFloat(float32(f))
		}
		return types.NewDouble(f)
	}
	register(&Function{
		Name:   name,
		Args:   []types.LogicalType{t, t},
		Return: t,
		Kernel: func(args []types.Value) (types.Value, error) {
			return mk(op(args[0].Float64(), args[1].Float64())), nil
		},
	})
}

func init() {
	intTypes := []types.LogicalType{types.TypeTinyInt, types.TypeSmallInt, types.TypeInteger, types.TypeBigInt}
	for _, t := range intTypes {
		registerIntArith("+", t, addChecked)
		registerIntArith("-", t, subChecked)
		registerIntArith("*", t, mulChecked)
		registerIntArith("/", t, func(a, b int64) (int64, error) {
			if b == 0 {
				return 0, errorx.Arithmeticf("division by zero")
			}
			if a == math.MinInt64 && b == -1 {
				return 0, errorx.Arithmeticf("BIGINT overflow in %d / %d", a, b)
			}
			return a / b, nil
		})
		registerIntArith("%", t, func(a, b int64) (int64, error) {
			if b == 0 {
				return 0, errorx.Arithmeticf("modulo by zero")
			}
			if a == math.MinInt64 && b == -1 {
				return 0, nil
			}
			return a % b, nil
		})
		t := t
		register(&Function{
			Name:   "-",
			Args:   []types.LogicalType{t},
			Return: t,
			Kernel: func(args []types.Value) (types.Value, error) {
				v := args[0].Int64()
				if v == math.MinInt64 {
					return types.Value{}, errorx.Arithmeticf("BIGINT overflow negating %d", v)
				}
				return checkedNarrow(t, -v)
			},
		})
		register(&Function{
			Name:   "abs",
			Args:   []types.LogicalType{t},
			Return: t,
			Kernel: func(args []types.Value) (types.Value, error) {
				v := args[0].Int64()
				if v == math.MinInt64 {
					return types.Value{}, errorx.Arithmeticf("BIGINT overflow in abs(%d)", v)
				}
				if v < 0 {
					v = -v
				}
				return checkedNarrow(t, v)
			},
		})
	}
	register(&Function{
		Name:   "+",
		Args:   []types.LogicalType{types.TypeHugeInt, types.TypeHugeInt},
		Return: types.TypeHugeInt,
		Kernel: func(args []types.Value) (types.Value, error) {
			sum, overflow := args[0].Hugeint().Add(args[1].Hugeint())
			if overflow {
				return types.Value{}, errorx.Arithmeticf("HUGEINT overflow")
			}
			return types.NewHugeint(sum), nil
		},
	})
	for _, t := range []types.LogicalType{types.TypeFloat, types.TypeDouble} {
		registerFloatArith("+", t, func(a, b float64) float64 { return a + b })
		registerFloatArith("-", t, func(a, b float64) float64 { return a - b })
		registerFloatArith("*", t, func(a, b float64) float64 { return a * b })
		t := t
		register(&Function{
			Name:   "/",
			Args:   []types.LogicalType{t, t},
			Return: t,
			Kernel: func(args []types.Value) (types.Value, error) {
				b := args[1].Float64()
				if b == 0 {
					return types.Value{}, errorx.Arithmeticf("division by zero")
				}
				f := args[0].Float64() / b
				if t.ID == types.Float {
					return types.NewFloat(float32(f)), nil
				}
				return types.NewDouble(f), nil
			},
		})
		register(&Function{
			Name:   "-",
			Args:   []types.LogicalType{t},
			Return: t,
			Kernel: func(args []types.Value) (types.Value, error) {
				f := -args[0].Float64()
				if t.ID == types.Float {
					return types.NewFloat(float32(f)), nil
				}
				return types.NewDouble(f), nil
			},
		})
		register(&Function{
			Name:   "abs",
			Args:   []types.LogicalType{t},
			Return: t,
			Kernel: func(args []types.Value) (types.Value, error) {
				f := math.Abs(args[0].Float64())
				if t.ID == types.Float {
					return types.NewFloat(float32(f)), nil
				}
				return types.NewDouble(f), nil
			},
		})
	}
	// Date arithmetic: date +/- integer days.
	register(&Function{
		Name:   "+",
		Args:   []types.LogicalType{types.TypeDate, types.TypeInteger},
		Return: types.TypeDate,
		Kernel: func(args []types.Value) (types.Value, error) {
			return types.NewDate(int32(args[0].Int64() + args[1].Int64())), nil
		},
	})
	register(&Function{
		Name:   "-",
		Args:   []types.LogicalType{types.TypeDate, types.TypeInteger},
		Return: types.TypeDate,
		Kernel: func(args []types.Value) (types.Value, error) {
			return types.NewDate(int32(args[0].Int64() - args[1].Int64())), nil
		},
	})
	// String functions.
	register(&Function{
		Name:   "length",
		Args:   []types.LogicalType{types.TypeVarchar},
		Return: types.TypeBigInt,
		Kernel: func(args []types.Value) (types.Value, error) {
			return types.NewBigInt(int64(len([]rune(args[0].Str())))), nil
		},
	})
	register(&Function{
		Name:   "lower",
		Args:   []types.LogicalType{types.TypeVarchar},
		Return: types.TypeVarchar,
		Kernel: func(args []types.Value) (types.Value, error) {
			return types.NewVarchar(strings.ToLower(args[0].Str())), nil
		},
	})
	register(&Function{
		Name:   "upper",
		Args:   []types.LogicalType{types.TypeVarchar},
		Return: types.TypeVarchar,
		Kernel: func(args []types.Value) (types.Value, error) {
			return types.NewVarchar(strings.ToUpper(args[0].Str())), nil
		},
	})
	register(&Function{
		Name:   "concat",
		Args:   []types.LogicalType{types.TypeVarchar, types.TypeVarchar},
		Return: types.TypeVarchar,
		Kernel: func(args []types.Value) (types.Value, error) {
			return types.NewVarchar(args[0].Str() + args[1].Str()), nil
		},
	})
	register(&Function{
		Name:   "substring",
		Args:   []types.LogicalType{types.TypeVarchar, types.TypeBigInt, types.TypeBigInt},
		Return: types.TypeVarchar,
		Kernel: func(args []types.Value) (types.Value, error) {
			runes := []rune(args[0].Str())
			start := int(args[1].Int64()) - 1 // SQL is one-based
			length := int(args[2].Int64())
			if start < 0 {
				start = 0
			}
			if start > len(runes) {
				start = len(runes)
			}
			end := start + length
			if length < 0 || end > len(runes) {
				end = len(runes)
			}
			return types.NewVarchar(string(runes[start:end])), nil
		},
	})
	register(&Function{
		Name:   "round",
		Args:   []types.LogicalType{types.TypeDouble, types.TypeInteger},
		Return: types.TypeDouble,
		Kernel: func(args []types.Value) (types.Value, error) {
			pow := math.Pow10(int(args[1].Int64()))
			return types.NewDouble(math.Round(args[0].Float64()*pow) / pow), nil
		},
	})
	register(&Function{
		Name:            "coalesce",
		Args:            []types.LogicalType{types.TypeVarchar, types.TypeVarchar},
		Return:          types.TypeVarchar,
		NullPassthrough: true,
		Kernel: func(args []types.Value) (types.Value, error) {
			for _, a := range args {
				if !a.Null {
					return a, nil
				}
			}
			return types.NewNull(types.TypeVarchar), nil
		},
	})
	register(&Function{
		Name:   "not",
		Args:   []types.LogicalType{types.TypeBoolean},
		Return: types.TypeBoolean,
		Kernel: func(args []types.Value) (types.Value, error) {
			return types.NewBoolean(!args[0].Bool()), nil
		},
	})
}
