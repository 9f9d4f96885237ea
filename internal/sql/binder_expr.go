package sql

import (
	"strconv"
	"strings"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/exec"
	"github.com/turingworks/prismdb/internal/expr"
	"github.com/turingworks/prismdb/internal/types"
)

// bindScalar binds an AST expression against a scope into an executable
// expression. Aggregate and window calls are rejected here; the rewriting
// binder handles those stages.
func (b *Binder) bindScalar(e Expr, sc *scope) (expr.Expression, error) {
	switch x := e.(type) {
	case *Ident:
		return b.bindIdent(x, sc)
	case *NumberLit:
		v, err := bindNumber(x.Text)
		if err != nil {
			return nil, err
		}
		return expr.NewConstant(v), nil
	case *StringLit:
		return expr.NewConstant(types.NewVarchar(x.Value)), nil
	case *BoolLit:
		return expr.NewConstant(types.NewBoolean(x.Value)), nil
	case *NullLit:
		return expr.NewConstant(types.NewNull(types.TypeVarchar)), nil
	case *ParamExpr:
		return &expr.ParameterRef{Ordinal: x.Ordinal, Type: types.TypeVarchar}, nil
	case *BinaryExpr:
		return b.bindBinary(x, sc)
	case *UnaryExpr:
		return b.bindUnary(x, sc)
	case *IsNullExpr:
		child, err := b.bindScalar(x.X, sc)
		if err != nil {
			return nil, err
		}
		op := expr.CmpIsNull
		if x.Negated {
			op = expr.CmpIsNotNull
		}
		return expr.NewComparison(op, child, nil), nil
	case *BetweenExpr:
		// X BETWEEN lo AND hi desugars to X >= lo AND X <= hi.
		ge := &BinaryExpr{Op: ">=", Left: x.X, Right: x.Lo}
		le := &BinaryExpr{Op: "<=", Left: x.X, Right: x.Hi}
		both := &BinaryExpr{Op: "AND", Left: ge, Right: le}
		if x.Negated {
			return b.bindScalar(&UnaryExpr{Op: "NOT", X: both}, sc)
		}
		return b.bindScalar(both, sc)
	case *InExpr:
		return b.bindIn(x, sc)
	case *ExistsExpr:
		plan, correlations, err := b.bindSubquery(x.Select, sc)
		if err != nil {
			return nil, err
		}
		return &expr.Subquery{
			Kind:         expr.SubqueryExists,
			Plan:         plan,
			Type:         types.TypeBoolean,
			Correlations: correlations,
			Negated:      x.Negated,
		}, nil
	case *SubqueryExpr:
		plan, correlations, err := b.bindSubquery(x.Select, sc)
		if err != nil {
			return nil, err
		}
		schema := plan.Schema()
		if len(schema) != 1 {
			return nil, errorx.Parsef("scalar subquery must return one column, got %d", len(schema))
		}
		return &expr.Subquery{
			Kind:         expr.SubqueryScalar,
			Plan:         plan,
			Type:         schema[0].Type,
			Correlations: correlations,
		}, nil
	case *CastExpr:
		child, err := b.bindScalar(x.X, sc)
		if err != nil {
			return nil, err
		}
		return expr.NewCast(child, x.Type), nil
	case *CaseExpr:
		return b.bindCase(x, sc)
	case *FuncCall:
		if x.Over != nil {
			return nil, errorx.Parsef("window function %s is only allowed in SELECT or QUALIFY", x.Name)
		}
		return b.bindFuncCall(x, sc)
	default:
		return nil, errorx.Internalf("unhandled expression %T", e)
	}
}

func bindNumber(text string) (types.Value, error) {
	if !strings.ContainsAny(text, ".eE") {
		i, err := strconv.ParseInt(text, 10, 64)
		if err == nil {
			if i >= -2147483648 && i <= 2147483647 {
				return types.NewInteger(int32(i)), nil
			}
			return types.NewBigInt(i), nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return types.Value{}, errorx.Parsef("bad numeric literal %q", text)
	}
	return types.NewDouble(f), nil
}

func (b *Binder) bindIdent(id *Ident, sc *scope) (expr.Expression, error) {
	table, name := identParts(id)
	idx, col, err := sc.resolve(table, name)
	if err != nil {
		return nil, err
	}
	if idx >= 0 {
		return expr.NewColumnRef(idx, col.typ, col.display), nil
	}
	// Walk outward: a hit in an enclosing subquery boundary is a
	// correlated reference, bound as a parameter of the subplan.
	for outer := sc.outer; outer != nil; outer = outer.outer {
		oIdx, oCol, oErr := outer.resolve(table, name)
		if oErr != nil {
			return nil, oErr
		}
		if oIdx >= 0 {
			if outer.correlations == nil {
				return nil, errorx.Catalogf("column %q is not visible in this scope", strings.Join(id.Parts, "."))
			}
			ord := outer.correlations.add(oIdx, oCol.typ)
			return &expr.ParameterRef{Ordinal: ord, Type: oCol.typ}, nil
		}
	}
	return nil, errorx.Catalogf("column %q does not exist", strings.Join(id.Parts, "."))
}

func (b *Binder) bindBinary(x *BinaryExpr, sc *scope) (expr.Expression, error) {
	switch x.Op {
	case "AND", "OR":
		left, err := b.bindScalar(x.Left, sc)
		if err != nil {
			return nil, err
		}
		right, err := b.bindScalar(x.Right, sc)
		if err != nil {
			return nil, err
		}
		if x.Op == "AND" {
			return expr.NewAnd(left, right), nil
		}
		return expr.NewOr(left, right), nil
	case "=", "!=", "<>", "<", "<=", ">", ">=":
		left, err := b.bindScalar(x.Left, sc)
		if err != nil {
			return nil, err
		}
		right, err := b.bindScalar(x.Right, sc)
		if err != nil {
			return nil, err
		}
		left, right, err = coercePair(left, right)
		if err != nil {
			return nil, err
		}
		var op expr.CompareOp
		switch x.Op {
		case "=":
			op = expr.CmpEqual
		case "!=", "<>":
			op = expr.CmpNotEqual
		case "<":
			op = expr.CmpLess
		case "<=":
			op = expr.CmpLessEqual
		case ">":
			op = expr.CmpGreater
		default:
			op = expr.CmpGreaterEqual
		}
		return expr.NewComparison(op, left, right), nil
	case "+", "-", "*", "/", "%":
		left, err := b.bindScalar(x.Left, sc)
		if err != nil {
			return nil, err
		}
		right, err := b.bindScalar(x.Right, sc)
		if err != nil {
			return nil, err
		}
		// Date arithmetic keeps its asymmetric signature.
		if left.ReturnType().ID == types.Date && right.ReturnType().IsInteger() && (x.Op == "+" || x.Op == "-") {
			right = castTo(right, types.TypeInteger)
			fn, err := expr.Resolve(x.Op, []types.LogicalType{types.TypeDate, types.TypeInteger})
			if err != nil {
				return nil, err
			}
			return expr.NewFunctionExpr(fn, left, right), nil
		}
		left, right, err = coercePair(left, right)
		if err != nil {
			return nil, err
		}
		t := left.ReturnType()
		if t.ID == types.Decimal {
			// Decimal arithmetic runs on doubles; the result is DOUBLE.
			left = castTo(left, types.TypeDouble)
			right = castTo(right, types.TypeDouble)
			t = types.TypeDouble
		}
		fn, err := expr.Resolve(x.Op, []types.LogicalType{t, t})
		if err != nil {
			return nil, err
		}
		return expr.NewFunctionExpr(fn, left, right), nil
	default:
		return nil, errorx.Parsef("unknown operator %q", x.Op)
	}
}

func (b *Binder) bindUnary(x *UnaryExpr, sc *scope) (expr.Expression, error) {
	child, err := b.bindScalar(x.X, sc)
	if err != nil {
		return nil, err
	}
	switch x.Op {
	case "NOT":
		return &expr.Not{Child: child}, nil
	case "-":
		t := child.ReturnType()
		if t.ID == types.Decimal {
			child = castTo(child, types.TypeDouble)
			t = types.TypeDouble
		}
		fn, err := expr.Resolve("-", []types.LogicalType{t})
		if err != nil {
			return nil, err
		}
		return expr.NewFunctionExpr(fn, child), nil
	default:
		return nil, errorx.Parsef("unknown unary operator %q", x.Op)
	}
}

func (b *Binder) bindIn(x *InExpr, sc *scope) (expr.Expression, error) {
	operand, err := b.bindScalar(x.X, sc)
	if err != nil {
		return nil, err
	}
	if x.Select != nil {
		plan, correlations, err := b.bindSubquery(x.Select, sc)
		if err != nil {
			return nil, err
		}
		schema := plan.Schema()
		if len(schema) != 1 {
			return nil, errorx.Parsef("IN subquery must return one column, got %d", len(schema))
		}
		common, ok := types.CommonType(operand.ReturnType(), schema[0].Type)
		if !ok {
			return nil, errorx.Typef("cannot compare %s with %s in IN", operand.ReturnType(), schema[0].Type)
		}
		return &expr.Subquery{
			Kind:         expr.SubqueryIn,
			Plan:         plan,
			Type:         common,
			Operand:      castTo(operand, common),
			Correlations: correlations,
			Negated:      x.Negated,
		}, nil
	}
	// X IN (a, b, c) desugars to chained equality under OR, which gives
	// the standard NULL semantics through three-valued logic.
	var arms []expr.Expression
	for _, item := range x.List {
		val, err := b.bindScalar(item, sc)
		if err != nil {
			return nil, err
		}
		l, r, err := coercePair(operand, val)
		if err != nil {
			return nil, err
		}
		arms = append(arms, expr.NewComparison(expr.CmpEqual, l, r))
	}
	var out expr.Expression = expr.NewOr(arms...)
	if len(arms) == 1 {
		out = arms[0]
	}
	if x.Negated {
		out = &expr.Not{Child: out}
	}
	return out, nil
}

func (b *Binder) bindCase(x *CaseExpr, sc *scope) (expr.Expression, error) {
	branches := make([]expr.CaseBranch, 0, len(x.Whens))
	var thens []expr.Expression
	for i := range x.Whens {
		whenAST := x.Whens[i]
		if x.Operand != nil {
			whenAST = &BinaryExpr{Op: "=", Left: x.Operand, Right: whenAST}
		}
		when, err := b.bindScalar(whenAST, sc)
		if err != nil {
			return nil, err
		}
		then, err := b.bindScalar(x.Thens[i], sc)
		if err != nil {
			return nil, err
		}
		branches = append(branches, expr.CaseBranch{When: when, Then: then})
		thens = append(thens, then)
	}
	var elseBound expr.Expression
	if x.ElseExpr != nil {
		bound, err := b.bindScalar(x.ElseExpr, sc)
		if err != nil {
			return nil, err
		}
		elseBound = bound
		thens = append(thens, bound)
	}
	// All result arms coerce to one type.
	result := thens[0].ReturnType()
	for _, t := range thens[1:] {
		common, ok := types.CommonType(result, t.ReturnType())
		if !ok {
			return nil, errorx.Typef("CASE arms have incompatible types %s and %s", result, t.ReturnType())
		}
		result = common
	}
	for i := range branches {
		branches[i].Then = castTo(branches[i].Then, result)
	}
	if elseBound != nil {
		elseBound = castTo(elseBound, result)
	}
	return &expr.CaseWhen{Branches: branches, Else: elseBound, Type: result}, nil
}

func (b *Binder) bindFuncCall(x *FuncCall, sc *scope) (expr.Expression, error) {
	args := make([]expr.Expression, 0, len(x.Args))
	argTypes := make([]types.LogicalType, 0, len(x.Args))
	for _, a := range x.Args {
		bound, err := b.bindScalar(a, sc)
		if err != nil {
			return nil, err
		}
		args = append(args, bound)
		argTypes = append(argTypes, bound.ReturnType())
	}
	fn, err := expr.Resolve(x.Name, argTypes)
	if err != nil {
		// Retry with arguments coerced to the widest numeric type; the
		// registry registers one signature per concrete type.
		if len(argTypes) == 2 {
			if common, ok := types.CommonType(argTypes[0], argTypes[1]); ok {
				coerced := []types.LogicalType{common, common}
				if fn2, err2 := expr.Resolve(x.Name, coerced); err2 == nil {
					return expr.NewFunctionExpr(fn2, castTo(args[0], common), castTo(args[1], common)), nil
				}
			}
		}
		return nil, err
	}
	for i := range args {
		args[i] = castTo(args[i], fn.Args[i])
	}
	return expr.NewFunctionExpr(fn, args...), nil
}

// bindSubquery binds a nested select with correlated access to the outer
// scope, returning the subplan and the outer column indices it captures.
// The boundary scope re-exposes the outer columns behind a correlation
// collector, so inner references to them bind as subplan parameters.
func (b *Binder) bindSubquery(stmt *SelectStmt, outer *scope) (exec.Plan, []int, error) {
	corr := &correlationSet{}
	boundary := &scope{cols: outer.cols, correlations: corr, outer: outer.outer}
	plan, err := b.bindSelect(stmt, boundary)
	if err != nil {
		return nil, nil, err
	}
	return plan, corr.outerCols, nil
}

// coercePair casts two expressions to their common type.
func coercePair(l, r expr.Expression) (expr.Expression, expr.Expression, error) {
	lt, rt := l.ReturnType(), r.ReturnType()
	if lt.Equal(rt) {
		return l, r, nil
	}
	common, ok := types.CommonType(lt, rt)
	if !ok {
		return nil, nil, errorx.Typef("cannot reconcile types %s and %s", lt, rt)
	}
	return castTo(l, common), castTo(r, common), nil
}

// castTo inserts a cast unless the expression already has the type.
func castTo(e expr.Expression, t types.LogicalType) expr.Expression {
	if e.ReturnType().Equal(t) {
		return e
	}
	return expr.NewCast(e, t)
}
