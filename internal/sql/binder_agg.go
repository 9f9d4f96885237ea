package sql

import (
	"strconv"
	"strings"

	"github.com/turingworks/prismdb/internal/aggregate"
	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/exec"
	"github.com/turingworks/prismdb/internal/expr"
	"github.com/turingworks/prismdb/internal/types"
)

// aggregateScope maps canonical expression renderings of computed stages
// (GROUP BY keys, aggregate calls, window calls) to column positions in
// the current scope. Post-aggregation binding consults it before touching
// base columns.
type aggregateScope struct {
	matches map[string]int
}

func (as *aggregateScope) match(e Expr, sc *scope) (expr.Expression, bool) {
	if as == nil {
		return nil, false
	}
	idx, ok := as.matches[exprText(e)]
	if !ok {
		return nil, false
	}
	col := sc.cols[idx]
	return expr.NewColumnRef(idx, col.typ, col.display), true
}

// bindRewritten binds an expression in a post-aggregation or post-window
// scope: sub-expressions matching a computed column rewrite to column
// references; everything else binds structurally.
func (b *Binder) bindRewritten(e Expr, sc *scope, as *aggregateScope) (expr.Expression, error) {
	if bound, ok := as.match(e, sc); ok {
		return bound, nil
	}
	if as == nil {
		return b.bindScalar(e, sc)
	}
	switch x := e.(type) {
	case *BinaryExpr:
		rebound, err := b.rebindPair(x.Left, x.Right, sc, as, func(l, r Expr) Expr {
			return &BinaryExpr{Op: x.Op, Left: l, Right: r}
		})
		if err != nil {
			return nil, err
		}
		return rebound, nil
	case *UnaryExpr:
		inner, err := b.bindRewritten(x.X, sc, as)
		if err != nil {
			return nil, err
		}
		if x.Op == "NOT" {
			return &expr.Not{Child: inner}, nil
		}
		t := inner.ReturnType()
		if t.ID == types.Decimal {
			inner = castTo(inner, types.TypeDouble)
			t = types.TypeDouble
		}
		fn, err := expr.Resolve("-", []types.LogicalType{t})
		if err != nil {
			return nil, err
		}
		return expr.NewFunctionExpr(fn, inner), nil
	case *IsNullExpr:
		inner, err := b.bindRewritten(x.X, sc, as)
		if err != nil {
			return nil, err
		}
		op := expr.CmpIsNull
		if x.Negated {
			op = expr.CmpIsNotNull
		}
		return expr.NewComparison(op, inner, nil), nil
	case *CastExpr:
		inner, err := b.bindRewritten(x.X, sc, as)
		if err != nil {
			return nil, err
		}
		return expr.NewCast(inner, x.Type), nil
	case *FuncCall:
		if x.Over != nil {
			return nil, errorx.Internalf("window call %s not rewritten before binding", x.Name)
		}
		if _, err := aggregate.Lookup(x.Name); err == nil {
			return nil, errorx.Parsef("aggregate %s is not allowed here", x.Name)
		}
		// Scalar function over rewritten children.
		args := make([]Expr, len(x.Args))
		copy(args, x.Args)
		bound := make([]expr.Expression, len(args))
		argTypes := make([]types.LogicalType, len(args))
		for i, a := range args {
			be, err := b.bindRewritten(a, sc, as)
			if err != nil {
				return nil, err
			}
			bound[i] = be
			argTypes[i] = be.ReturnType()
		}
		fn, err := expr.Resolve(x.Name, argTypes)
		if err != nil {
			return nil, err
		}
		for i := range bound {
			bound[i] = castTo(bound[i], fn.Args[i])
		}
		return expr.NewFunctionExpr(fn, bound...), nil
	default:
		return b.bindScalar(e, sc)
	}
}

// rebindPair rebinds a binary expression whose sides may each be computed
// columns: both sides bind through bindRewritten, then the operator logic
// of bindBinary applies on the bound halves.
func (b *Binder) rebindPair(lAST, rAST Expr, sc *scope, as *aggregateScope, rebuild func(l, r Expr) Expr) (expr.Expression, error) {
	node := rebuild(lAST, rAST).(*BinaryExpr)
	left, err := b.bindRewritten(lAST, sc, as)
	if err != nil {
		return nil, err
	}
	right, err := b.bindRewritten(rAST, sc, as)
	if err != nil {
		return nil, err
	}
	switch node.Op {
	case "AND":
		return expr.NewAnd(left, right), nil
	case "OR":
		return expr.NewOr(left, right), nil
	case "=", "!=", "<>", "<", "<=", ">", ">=":
		left, right, err = coercePair(left, right)
		if err != nil {
			return nil, err
		}
		var op expr.CompareOp
		switch node.Op {
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
		left, right, err = coercePair(left, right)
		if err != nil {
			return nil, err
		}
		t := left.ReturnType()
		if t.ID == types.Decimal {
			left = castTo(left, types.TypeDouble)
			right = castTo(right, types.TypeDouble)
			t = types.TypeDouble
		}
		fn, err := expr.Resolve(node.Op, []types.LogicalType{t, t})
		if err != nil {
			return nil, err
		}
		return expr.NewFunctionExpr(fn, left, right), nil
	default:
		return nil, errorx.Parsef("unknown operator %q", node.Op)
	}
}

// resolveGroupAST maps GROUP BY ordinals and output aliases back to the
// underlying select-item expression.
func resolveGroupAST(g Expr, items []SelectItem) (Expr, error) {
	if num, ok := g.(*NumberLit); ok && !strings.ContainsAny(num.Text, ".eE") {
		ord, err := strconv.Atoi(num.Text)
		if err != nil || ord < 1 || ord > len(items) {
			return nil, errorx.Parsef("GROUP BY ordinal %s out of range", num.Text)
		}
		if items[ord-1].Expr == nil {
			return nil, errorx.Parsef("GROUP BY ordinal %s references a star item", num.Text)
		}
		return items[ord-1].Expr, nil
	}
	if id, ok := g.(*Ident); ok && len(id.Parts) == 1 {
		for _, item := range items {
			if item.Alias != "" && strings.EqualFold(item.Alias, id.Parts[0]) && item.Expr != nil {
				return item.Expr, nil
			}
		}
	}
	return g, nil
}

// bindAggregate builds the HashAggregate stage: bound group keys plus every
// aggregate call found in the select items, HAVING, QUALIFY, and ORDER BY.
func (b *Binder) bindAggregate(stmt *SelectStmt, plan exec.Plan, sc *scope) (exec.Plan, *scope, *aggregateScope, error) {
	as := &aggregateScope{matches: make(map[string]int)}
	var groupExprs []expr.Expression
	var cols []exec.Column
	var outCols []scopeColumn

	items, err := expandStars(stmt.Items, sc)
	if err != nil {
		return nil, nil, nil, err
	}
	for _, g := range stmt.GroupBy {
		ast, err := resolveGroupAST(g, items)
		if err != nil {
			return nil, nil, nil, err
		}
		bound, err := b.bindScalar(ast, sc)
		if err != nil {
			return nil, nil, nil, err
		}
		name := exprText(ast)
		if id, ok := ast.(*Ident); ok {
			name = id.Parts[len(id.Parts)-1]
		}
		as.matches[exprText(ast)] = len(groupExprs)
		groupExprs = append(groupExprs, bound)
		cols = append(cols, exec.Column{Name: name, Type: bound.ReturnType()})
		outCols = append(outCols, scopeColumn{name: strings.ToLower(name), typ: bound.ReturnType(), display: name})
	}

	// Collect aggregate calls from every post-aggregation clause.
	var aggs []*exec.BoundAggregate
	var collectErr error
	collect := func(e Expr) {
		walkExpr(e, func(x Expr) {
			if collectErr != nil {
				return
			}
			call, ok := x.(*FuncCall)
			if !ok || call.Over != nil {
				return
			}
			fn, err := aggregate.Lookup(call.Name)
			if err != nil {
				return
			}
			text := exprText(call)
			if _, dup := as.matches[text]; dup {
				return
			}
			bound, err := b.bindAggregateCall(call, fn, sc)
			if err != nil {
				collectErr = err
				return
			}
			as.matches[text] = len(groupExprs) + len(aggs)
			aggs = append(aggs, bound)
			cols = append(cols, exec.Column{Name: text, Type: bound.RetType})
			outCols = append(outCols, scopeColumn{name: strings.ToLower(text), typ: bound.RetType, display: text})
		})
	}
	for _, item := range items {
		collect(item.Expr)
	}
	collect(stmt.Having)
	collect(stmt.Qualify)
	for _, o := range stmt.OrderBy {
		collect(o.Expr)
	}
	if collectErr != nil {
		return nil, nil, nil, collectErr
	}

	aggPlan := &exec.HashAggregatePlan{
		Child:      plan,
		GroupBy:    groupExprs,
		Aggregates: aggs,
		Cols:       cols,
	}
	newScope := &scope{cols: outCols, outer: sc.outer}
	return aggPlan, newScope, as, nil
}

// bindAggregateCall binds one aggregate invocation's arguments against the
// pre-aggregation scope.
func (b *Binder) bindAggregateCall(call *FuncCall, fn *aggregate.Function, sc *scope) (*exec.BoundAggregate, error) {
	var args []expr.Expression
	var argTypes []types.LogicalType
	if !call.Star {
		for _, a := range call.Args {
			bound, err := b.bindScalar(a, sc)
			if err != nil {
				return nil, err
			}
			args = append(args, bound)
			argTypes = append(argTypes, bound.ReturnType())
		}
	}
	if fn.ArgCount >= 0 && len(args) != fn.ArgCount {
		return nil, errorx.Typef("%s takes %d arguments, got %d", fn.Name, fn.ArgCount, len(args))
	}
	ret, err := fn.ReturnType(argTypes)
	if err != nil {
		return nil, err
	}
	return &exec.BoundAggregate{
		Fn:       fn,
		Args:     args,
		Distinct: call.Distinct,
		RetType:  ret,
		Name:     exprText(call),
	}, nil
}

// windowRefMatch is one distinct window call found in the statement.
type windowRefMatch struct {
	call *FuncCall
}

func collectWindows(e Expr, out *[]*windowRefMatch) {
	walkExpr(e, func(x Expr) {
		call, ok := x.(*FuncCall)
		if !ok || call.Over == nil {
			return
		}
		text := exprText(call)
		for _, w := range *out {
			if exprText(w.call) == text {
				return
			}
		}
		*out = append(*out, &windowRefMatch{call: call})
	})
}

var rankingWindowFuncs = map[string]types.LogicalType{
	"row_number":   types.TypeBigInt,
	"rank":         types.TypeBigInt,
	"dense_rank":   types.TypeBigInt,
	"ntile":        types.TypeBigInt,
	"percent_rank": types.TypeDouble,
	"cume_dist":    types.TypeDouble,
}

var valueWindowFuncs = map[string]struct{}{
	"lag": {}, "lead": {}, "first_value": {}, "last_value": {}, "nth_value": {},
}

// bindWindows builds the Window stage for the distinct window calls and
// extends the scope with one column per call.
func (b *Binder) bindWindows(matches []*windowRefMatch, plan exec.Plan, sc *scope, as *aggregateScope) (exec.Plan, *scope, *aggregateScope, error) {
	if as == nil {
		as = &aggregateScope{matches: make(map[string]int)}
	}
	baseCols := make([]exec.Column, len(sc.cols))
	for i, c := range sc.cols {
		baseCols[i] = exec.Column{Name: c.display, Type: c.typ}
	}
	windows := make([]*exec.BoundWindow, 0, len(matches))
	newCols := append([]scopeColumn{}, sc.cols...)
	cols := append([]exec.Column{}, baseCols...)
	for _, m := range matches {
		call := m.call
		win := &exec.BoundWindow{Name: exprText(call)}
		for _, p := range call.Over.PartitionBy {
			bound, err := b.bindRewritten(p, sc, as)
			if err != nil {
				return nil, nil, nil, err
			}
			win.PartitionBy = append(win.PartitionBy, bound)
		}
		for _, o := range call.Over.OrderBy {
			bound, err := b.bindRewritten(o.Expr, sc, as)
			if err != nil {
				return nil, nil, nil, err
			}
			key := exec.SortKey{Expr: bound, Desc: o.Desc, NullOrder: exec.NullsLast}
			if o.NullsFirst != nil && *o.NullsFirst {
				key.NullOrder = exec.NullsFirst
			}
			win.OrderBy = append(win.OrderBy, key)
		}
		frame, err := bindFrame(call.Over.Frame, len(call.Over.OrderBy) > 0)
		if err != nil {
			return nil, nil, nil, err
		}
		win.Frame = frame
		name := strings.ToLower(call.Name)
		if ret, ok := rankingWindowFuncs[name]; ok {
			win.FuncName = name
			win.RetType = ret
			for _, a := range call.Args {
				bound, err := b.bindRewritten(a, sc, as)
				if err != nil {
					return nil, nil, nil, err
				}
				win.Args = append(win.Args, bound)
			}
		} else if _, ok := valueWindowFuncs[name]; ok {
			win.FuncName = name
			for _, a := range call.Args {
				bound, err := b.bindRewritten(a, sc, as)
				if err != nil {
					return nil, nil, nil, err
				}
				win.Args = append(win.Args, bound)
			}
			if len(win.Args) == 0 {
				return nil, nil, nil, errorx.Typef("%s requires an argument", name)
			}
			win.RetType = win.Args[0].ReturnType()
		} else if fn, err := aggregate.Lookup(name); err == nil {
			agg, err := b.bindAggregateCallRewritten(call, fn, sc, as)
			if err != nil {
				return nil, nil, nil, err
			}
			win.Agg = agg
			win.RetType = agg.RetType
		} else {
			return nil, nil, nil, errorx.Catalogf("unknown window function %s", name)
		}
		as.matches[win.Name] = len(newCols)
		newCols = append(newCols, scopeColumn{name: strings.ToLower(win.Name), typ: win.RetType, display: win.Name})
		cols = append(cols, exec.Column{Name: win.Name, Type: win.RetType})
		windows = append(windows, win)
	}
	wp := &exec.WindowPlan{Child: plan, Windows: windows, Cols: cols}
	return wp, &scope{cols: newCols, outer: sc.outer}, as, nil
}

func (b *Binder) bindAggregateCallRewritten(call *FuncCall, fn *aggregate.Function, sc *scope, as *aggregateScope) (*exec.BoundAggregate, error) {
	var args []expr.Expression
	var argTypes []types.LogicalType
	if !call.Star {
		for _, a := range call.Args {
			bound, err := b.bindRewritten(a, sc, as)
			if err != nil {
				return nil, err
			}
			args = append(args, bound)
			argTypes = append(argTypes, bound.ReturnType())
		}
	}
	if fn.ArgCount >= 0 && len(args) != fn.ArgCount {
		return nil, errorx.Typef("%s takes %d arguments, got %d", fn.Name, fn.ArgCount, len(args))
	}
	ret, err := fn.ReturnType(argTypes)
	if err != nil {
		return nil, err
	}
	return &exec.BoundAggregate{Fn: fn, Args: args, Distinct: call.Distinct, RetType: ret, Name: exprText(call)}, nil
}

func bindFrame(def *FrameDef, hasOrder bool) (exec.FrameSpec, error) {
	if def == nil {
		if hasOrder {
			return exec.DefaultFrame(), nil
		}
		return exec.FrameSpec{
			Mode:  exec.FrameRange,
			Start: exec.FrameBound{Kind: exec.BoundUnboundedPreceding},
			End:   exec.FrameBound{Kind: exec.BoundUnboundedFollowing},
		}, nil
	}
	var mode exec.FrameMode
	switch def.Mode {
	case "ROWS":
		mode = exec.FrameRows
	case "RANGE":
		mode = exec.FrameRange
	default:
		mode = exec.FrameGroups
	}
	start, err := bindFrameBound(def.StartKind, def.StartOffset)
	if err != nil {
		return exec.FrameSpec{}, err
	}
	end, err := bindFrameBound(def.EndKind, def.EndOffset)
	if err != nil {
		return exec.FrameSpec{}, err
	}
	return exec.FrameSpec{Mode: mode, Start: start, End: end}, nil
}

func bindFrameBound(kind string, offset Expr) (exec.FrameBound, error) {
	switch kind {
	case "UNBOUNDED_PRECEDING":
		return exec.FrameBound{Kind: exec.BoundUnboundedPreceding}, nil
	case "UNBOUNDED_FOLLOWING":
		return exec.FrameBound{Kind: exec.BoundUnboundedFollowing}, nil
	case "CURRENT":
		return exec.FrameBound{Kind: exec.BoundCurrentRow}, nil
	case "PRECEDING", "FOLLOWING":
		num, ok := offset.(*NumberLit)
		if !ok {
			return exec.FrameBound{}, errorx.Parsef("frame offset must be an integer literal")
		}
		v, err := strconv.ParseInt(num.Text, 10, 64)
		if err != nil || v < 0 {
			return exec.FrameBound{}, errorx.Parsef("bad frame offset %q", num.Text)
		}
		k := exec.BoundPreceding
		if kind == "FOLLOWING" {
			k = exec.BoundFollowing
		}
		return exec.FrameBound{Kind: k, Offset: v}, nil
	default:
		return exec.FrameBound{}, errorx.Internalf("unknown frame bound kind %q", kind)
	}
}
