package sql

import (
	"strconv"
	"strings"

	"github.com/turingworks/prismdb/internal/aggregate"
	"github.com/turingworks/prismdb/internal/catalog"
	"github.com/turingworks/prismdb/internal/collections"
	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/exec"
	"github.com/turingworks/prismdb/internal/expr"
	"github.com/turingworks/prismdb/internal/storage"
	"github.com/turingworks/prismdb/internal/types"
)

// scopeColumn is one resolvable column during binding.
type scopeColumn struct {
	table string // alias or table name, lower-cased
	name  string // column name, lower-cased
	typ   types.LogicalType
	// display is the column's output spelling.
	display string
}

// scope maps names to chunk column positions. Scopes chain outward for
// correlated subqueries.
type scope struct {
	cols  []scopeColumn
	outer *scope
	// correlations collects outer-column references resolved through this
	// scope's chain while binding a subquery.
	correlations *correlationSet
}

type correlationSet struct {
	outerCols []int
	typs      []types.LogicalType
}

func (c *correlationSet) add(col int, t types.LogicalType) int {
	for i, existing := range c.outerCols {
		if existing == col {
			return i
		}
	}
	c.outerCols = append(c.outerCols, col)
	c.typs = append(c.typs, t)
	return len(c.outerCols) - 1
}

// resolve finds a column in this scope only.
func (s *scope) resolve(table, name string) (int, *scopeColumn, error) {
	found := -1
	for i := range s.cols {
		c := &s.cols[i]
		if c.name != name {
			continue
		}
		if table != "" && c.table != table {
			continue
		}
		if found >= 0 {
			return -1, nil, errorx.Parsef("ambiguous column reference %q", name)
		}
		found = i
	}
	if found < 0 {
		return -1, nil, nil
	}
	return found, &s.cols[found], nil
}

// Binder resolves a parsed statement against the catalog into a bound
// physical plan.
type Binder struct {
	catalog *catalog.Catalog
	// DefaultNullsFirst applies when ORDER BY omits NULLS FIRST/LAST.
	DefaultNullsFirst bool
	// ctes tracks WITH entries visible during binding.
	ctes map[string]*boundCTE
	// cteOrder preserves materialization order.
	cteOrder []string
}

type boundCTE struct {
	name string
	plan exec.Plan
	cols []exec.Column
}

// NewBinder creates a binder over the catalog.
func NewBinder(cat *catalog.Catalog) *Binder {
	return &Binder{catalog: cat, ctes: make(map[string]*boundCTE)}
}

// BindSelect binds a SELECT statement to a physical plan.
func (b *Binder) BindSelect(stmt *SelectStmt) (exec.Plan, error) {
	return b.bindSelect(stmt, nil)
}

func (b *Binder) bindSelect(stmt *SelectStmt, outer *scope) (exec.Plan, error) {
	// Register CTEs first; they materialize around the final plan.
	var registered []string
	for _, cte := range stmt.With {
		key := strings.ToLower(cte.Name)
		if _, dup := b.ctes[key]; dup {
			return nil, errorx.Parsef("duplicate CTE name %q", cte.Name)
		}
		plan, err := b.bindSelect(cte.Select, outer)
		if err != nil {
			return nil, err
		}
		b.ctes[key] = &boundCTE{name: cte.Name, plan: plan, cols: plan.Schema()}
		b.cteOrder = append(b.cteOrder, key)
		registered = append(registered, key)
	}
	plan, err := b.bindSelectBody(stmt, outer)
	if err != nil {
		return nil, err
	}
	// Wrap materialization nodes innermost-last so earlier CTEs (which
	// later ones may reference) materialize first.
	for i := len(registered) - 1; i >= 0; i-- {
		key := registered[i]
		cte := b.ctes[key]
		plan = &exec.CTEMaterializePlan{Name: cte.name, Input: cte.plan, Child: plan}
		delete(b.ctes, key)
	}
	return plan, nil
}

func (b *Binder) bindSelectBody(stmt *SelectStmt, outer *scope) (exec.Plan, error) {
	plan, outScope, err := b.bindCore(stmt, outer)
	if err != nil {
		return nil, err
	}
	// Set-operation chain, left-deep.
	for _, clause := range stmt.SetOps {
		right, err := b.bindSelectBody(clause.Right, outer)
		if err != nil {
			return nil, err
		}
		if len(right.Schema()) != len(plan.Schema()) {
			return nil, errorx.Parsef("%s arms have different column counts (%d vs %d)",
				clause.Op, len(plan.Schema()), len(right.Schema()))
		}
		var op exec.SetOpType
		switch clause.Op {
		case "UNION":
			op = exec.SetUnion
		case "INTERSECT":
			op = exec.SetIntersect
		default:
			op = exec.SetExcept
		}
		plan = &exec.SetOpPlan{Op: op, All: clause.All, Left: plan, Right: right}
	}
	// ORDER BY over the (possibly combined) output.
	if len(stmt.OrderBy) > 0 {
		plan, err = b.bindOrderBy(stmt, plan, outScope, outer)
		if err != nil {
			return nil, err
		}
	}
	// LIMIT / OFFSET.
	if stmt.Limit != nil {
		limit, err := constInt(stmt.Limit)
		if err != nil {
			return nil, err
		}
		offset := int64(0)
		if stmt.Offset != nil {
			if offset, err = constInt(stmt.Offset); err != nil {
				return nil, err
			}
		}
		if sp, ok := plan.(*exec.SortPlan); ok {
			// Limit directly over Sort becomes TopN.
			sp.TopN = limit + offset
		}
		plan = &exec.LimitPlan{Child: plan, Limit: limit, Offset: offset}
	}
	return plan, nil
}

// BindInsert binds an INSERT statement to its target table and a values
// plan producing rows in full table column order; unnamed columns fill
// with NULL.
func BindInsert(cat *catalog.Catalog, stmt *InsertStmt) (*catalog.Table, exec.Plan, error) {
	tbl, err := cat.Table(stmt.Table)
	if err != nil {
		return nil, nil, err
	}
	// Map statement columns onto table positions.
	target := make([]int, len(tbl.Columns))
	if len(stmt.Columns) == 0 {
		for i := range target {
			target[i] = i
		}
	} else {
		for i := range target {
			target[i] = -1
		}
		for pos, name := range stmt.Columns {
			idx := tbl.ColumnIndex(name)
			if idx < 0 {
				return nil, nil, errorx.Catalogf("column %q does not exist in table %q", name, tbl.Name)
			}
			if target[idx] >= 0 {
				return nil, nil, errorx.Parsef("column %q named twice in INSERT", name)
			}
			target[idx] = pos
		}
	}
	b := NewBinder(cat)
	empty := &scope{}
	cols := make([]exec.Column, len(tbl.Columns))
	for i, c := range tbl.Columns {
		cols[i] = exec.Column{Name: c.Name, Type: c.Type}
	}
	rows := make([][]expr.Expression, 0, len(stmt.Rows))
	for _, astRow := range stmt.Rows {
		width := len(stmt.Columns)
		if width == 0 {
			width = len(tbl.Columns)
		}
		if len(astRow) != width {
			return nil, nil, errorx.Parsef("INSERT row has %d values, expected %d", len(astRow), width)
		}
		row := make([]expr.Expression, len(tbl.Columns))
		for i, c := range tbl.Columns {
			src := target[i]
			if src < 0 {
				row[i] = expr.NewConstant(types.NewNull(c.Type))
				continue
			}
			bound, err := b.bindScalar(astRow[src], empty)
			if err != nil {
				return nil, nil, err
			}
			row[i] = castTo(bound, c.Type)
		}
		rows = append(rows, row)
	}
	return tbl, &exec.ValuesPlan{Rows: rows, Cols: cols}, nil
}

// matchOutputColumn resolves an ORDER BY term against the projection
// output by name or canonical rendering, returning -1 when absent.
func matchOutputColumn(e Expr, schema []exec.Column) int {
	text := exprText(e)
	for i, c := range schema {
		if strings.ToLower(c.Name) == text {
			return i
		}
	}
	return -1
}

func constInt(e Expr) (int64, error) {
	num, ok := e.(*NumberLit)
	if !ok {
		return 0, errorx.Parsef("LIMIT/OFFSET requires an integer literal")
	}
	v, err := strconv.ParseInt(num.Text, 10, 64)
	if err != nil {
		return 0, errorx.Parsef("bad LIMIT/OFFSET literal %q", num.Text)
	}
	return v, nil
}

// bindCore binds the SELECT core (FROM..QUALIFY plus the projection) and
// returns the plan with the projection's output scope.
func (b *Binder) bindCore(stmt *SelectStmt, outer *scope) (exec.Plan, *scope, error) {
	// FROM.
	var plan exec.Plan
	var sc *scope
	if stmt.From != nil {
		var err error
		plan, sc, err = b.bindTableRef(stmt.From, outer)
		if err != nil {
			return nil, nil, err
		}
	} else {
		// SELECT without FROM: one empty row.
		plan = &exec.ValuesPlan{Rows: [][]expr.Expression{{}}, Cols: nil}
		sc = &scope{outer: outer}
	}
	sc.outer = outer

	// WHERE, with zone-map pushdown into a bare table scan.
	if stmt.Where != nil {
		pred, err := b.bindScalar(stmt.Where, sc)
		if err != nil {
			return nil, nil, err
		}
		if scan, ok := plan.(*exec.TableScanPlan); ok {
			scan.Pushed = extractZonePredicates(pred)
			if scan.Residual == nil {
				scan.Residual = pred
			} else {
				scan.Residual = expr.NewAnd(scan.Residual, pred)
			}
		} else {
			plan = &exec.FilterPlan{Child: plan, Predicate: pred}
		}
	}

	// Expand stars.
	items, err := expandStars(stmt.Items, sc)
	if err != nil {
		return nil, nil, err
	}

	// Aggregation.
	hasAgg := len(stmt.GroupBy) > 0 || stmt.Having != nil
	for _, item := range items {
		if item.Expr != nil && containsAggregate(item.Expr) {
			hasAgg = true
		}
	}
	var aggBinder *aggregateScope
	if hasAgg {
		plan, sc, aggBinder, err = b.bindAggregate(stmt, plan, sc)
		if err != nil {
			return nil, nil, err
		}
		if stmt.Having != nil {
			pred, err := b.bindRewritten(stmt.Having, sc, aggBinder)
			if err != nil {
				return nil, nil, err
			}
			plan = &exec.FilterPlan{Child: plan, Predicate: pred}
		}
	}

	// Windows (after aggregation per SQL evaluation order).
	var windows []*windowRefMatch
	for _, item := range items {
		if item.Expr != nil {
			collectWindows(item.Expr, &windows)
		}
	}
	if stmt.Qualify != nil {
		collectWindows(stmt.Qualify, &windows)
	}
	if len(windows) > 0 {
		plan, sc, aggBinder, err = b.bindWindows(windows, plan, sc, aggBinder)
		if err != nil {
			return nil, nil, err
		}
	}
	if stmt.Qualify != nil {
		pred, err := b.bindRewritten(stmt.Qualify, sc, aggBinder)
		if err != nil {
			return nil, nil, err
		}
		plan = &exec.QualifyPlan{Child: plan, Predicate: pred}
	}

	// Projection.
	exprs := make([]expr.Expression, 0, len(items))
	cols := make([]exec.Column, 0, len(items))
	outCols := make([]scopeColumn, 0, len(items))
	for _, item := range items {
		bound, err := b.bindRewritten(item.Expr, sc, aggBinder)
		if err != nil {
			return nil, nil, err
		}
		name := item.Alias
		table := ""
		if id, ok := item.Expr.(*Ident); ok {
			if name == "" {
				name = id.Parts[len(id.Parts)-1]
			}
			if len(id.Parts) >= 2 {
				table = strings.ToLower(id.Parts[len(id.Parts)-2])
			}
		} else if name == "" {
			name = exprText(item.Expr)
		}
		exprs = append(exprs, bound)
		cols = append(cols, exec.Column{Name: name, Type: bound.ReturnType()})
		outCols = append(outCols, scopeColumn{table: table, name: strings.ToLower(name), typ: bound.ReturnType(), display: name})
	}
	preProjection := sc
	plan = &exec.ProjectionPlan{Child: plan, Exprs: exprs, Cols: cols}
	outScope := &scope{cols: outCols, outer: outer}

	// DISTINCT folds into a grouping over every output column.
	if stmt.Distinct {
		group := make([]expr.Expression, len(cols))
		for i, c := range cols {
			group[i] = expr.NewColumnRef(i, c.Type, c.Name)
		}
		plan = &exec.HashAggregatePlan{Child: plan, GroupBy: group, Cols: cols}
	}

	outScope.correlations = preProjection.correlations
	return plan, outScope, nil
}

// bindOrderBy binds ORDER BY terms against the projection output, falling
// back to hidden projection columns for expressions over the input scope.
func (b *Binder) bindOrderBy(stmt *SelectStmt, plan exec.Plan, outScope *scope, outer *scope) (exec.Plan, error) {
	schema := plan.Schema()
	keys := make([]exec.SortKey, 0, len(stmt.OrderBy))
	for _, item := range stmt.OrderBy {
		key := exec.SortKey{Desc: item.Desc}
		if item.NullsFirst != nil {
			if *item.NullsFirst {
				key.NullOrder = exec.NullsFirst
			}
		} else if b.DefaultNullsFirst {
			// Configured engine default; NULLS LAST otherwise.
			key.NullOrder = exec.NullsFirst
		}
		var bound expr.Expression
		// Ordinal reference.
		if num, ok := item.Expr.(*NumberLit); ok && !strings.ContainsAny(num.Text, ".eE") {
			ord, err := strconv.Atoi(num.Text)
			if err != nil || ord < 1 || ord > len(schema) {
				return nil, errorx.Parsef("ORDER BY ordinal %s out of range", num.Text)
			}
			bound = expr.NewColumnRef(ord-1, schema[ord-1].Type, schema[ord-1].Name)
		} else if idx := matchOutputColumn(item.Expr, schema); idx >= 0 {
			// Output name, alias, or the canonical spelling of a
			// computed column (ORDER BY sum(x) after aggregation).
			bound = expr.NewColumnRef(idx, schema[idx].Type, schema[idx].Name)
		} else {
			// Expression over the output scope.
			var err error
			bound, err = b.bindScalar(item.Expr, outScope)
			if err != nil {
				return nil, err
			}
		}
		key.Expr = bound
		keys = append(keys, key)
	}
	return &exec.SortPlan{Child: plan, Keys: keys, TopN: -1}, nil
}

// bindTableRef binds a FROM element to a plan plus its scope.
func (b *Binder) bindTableRef(ref TableRef, outer *scope) (exec.Plan, *scope, error) {
	switch r := ref.(type) {
	case *BaseTable:
		alias := strings.ToLower(r.Alias)
		if alias == "" {
			alias = strings.ToLower(r.Name)
		}
		// CTE reference wins over a base table of the same name.
		if cte, ok := b.ctes[strings.ToLower(r.Name)]; ok {
			cols := make([]scopeColumn, len(cte.cols))
			for i, c := range cte.cols {
				cols[i] = scopeColumn{table: alias, name: strings.ToLower(c.Name), typ: c.Type, display: c.Name}
			}
			return &exec.CTEScanPlan{Name: cte.name, Cols: cte.cols}, &scope{cols: cols, outer: outer}, nil
		}
		tbl, err := b.catalog.Table(r.Name)
		if err != nil {
			return nil, nil, err
		}
		ids := make([]int, len(tbl.Columns))
		planCols := make([]exec.Column, len(tbl.Columns))
		cols := make([]scopeColumn, len(tbl.Columns))
		for i, c := range tbl.Columns {
			ids[i] = i
			planCols[i] = exec.Column{Name: c.Name, Type: c.Type}
			cols[i] = scopeColumn{table: alias, name: strings.ToLower(c.Name), typ: c.Type, display: c.Name}
		}
		scan := &exec.TableScanPlan{
			TableName: tbl.Name,
			Table:     tbl.Data,
			ColumnIDs: ids,
			Cols:      planCols,
			Limit:     -1,
		}
		return scan, &scope{cols: cols, outer: outer}, nil
	case *SubqueryTable:
		plan, err := b.bindSelect(r.Select, outer)
		if err != nil {
			return nil, nil, err
		}
		alias := strings.ToLower(r.Alias)
		schema := plan.Schema()
		cols := make([]scopeColumn, len(schema))
		for i, c := range schema {
			cols[i] = scopeColumn{table: alias, name: strings.ToLower(c.Name), typ: c.Type, display: c.Name}
		}
		return plan, &scope{cols: cols, outer: outer}, nil
	case *JoinRef:
		return b.bindJoin(r, outer)
	default:
		return nil, nil, errorx.Internalf("unknown table reference %T", ref)
	}
}

func (b *Binder) bindJoin(r *JoinRef, outer *scope) (exec.Plan, *scope, error) {
	leftPlan, leftScope, err := b.bindTableRef(r.Left, outer)
	if err != nil {
		return nil, nil, err
	}
	rightPlan, rightScope, err := b.bindTableRef(r.Right, outer)
	if err != nil {
		return nil, nil, err
	}
	// Table aliases must stay unique across the join tree.
	aliases := collections.NewSet[string]()
	for _, c := range leftScope.cols {
		aliases.Add(c.table)
	}
	for _, c := range rightScope.cols {
		if c.table != "" && aliases.Contains(c.table) {
			return nil, nil, errorx.Parsef("duplicate table alias %q in FROM", c.table)
		}
	}
	joined := &scope{cols: append(append([]scopeColumn{}, leftScope.cols...), rightScope.cols...), outer: outer}
	var joinType exec.JoinType
	switch r.Type {
	case "INNER", "CROSS":
		joinType = exec.JoinInner
	case "LEFT":
		joinType = exec.JoinLeft
	case "RIGHT":
		joinType = exec.JoinRight
	case "FULL":
		joinType = exec.JoinFull
	case "SEMI":
		joinType = exec.JoinSemi
	case "ANTI":
		joinType = exec.JoinAnti
	default:
		return nil, nil, errorx.NotImplementedf("join type %s", r.Type)
	}
	if r.Type == "CROSS" {
		return nil, nil, errorx.NotImplementedf("cross join")
	}
	// Split the ON condition into equi-key pairs and a residual.
	conjuncts := splitConjuncts(r.On)
	var probeKeys, buildKeys []expr.Expression
	var residual []Expr
	leftWidth := len(leftScope.cols)
	for _, c := range conjuncts {
		bin, ok := c.(*BinaryExpr)
		if !ok || bin.Op != "=" {
			residual = append(residual, c)
			continue
		}
		lSide := sideOf(bin.Left, leftScope, rightScope)
		rSide := sideOf(bin.Right, leftScope, rightScope)
		var leftExpr, rightExpr Expr
		switch {
		case lSide == 1 && rSide == 2:
			leftExpr, rightExpr = bin.Left, bin.Right
		case lSide == 2 && rSide == 1:
			leftExpr, rightExpr = bin.Right, bin.Left
		default:
			residual = append(residual, c)
			continue
		}
		lk, err := b.bindScalar(leftExpr, leftScope)
		if err != nil {
			return nil, nil, err
		}
		rk, err := b.bindScalar(rightExpr, rightScope)
		if err != nil {
			return nil, nil, err
		}
		lk, rk, err = coercePair(lk, rk)
		if err != nil {
			return nil, nil, err
		}
		probeKeys = append(probeKeys, lk)
		buildKeys = append(buildKeys, rk)
	}
	if len(probeKeys) == 0 {
		return nil, nil, errorx.NotImplementedf("join without an equality condition")
	}
	cols := make([]exec.Column, 0, len(joined.cols))
	for _, c := range joined.cols {
		cols = append(cols, exec.Column{Name: c.display, Type: c.typ})
	}
	plan := &exec.HashJoinPlan{
		Probe:     leftPlan,
		Build:     rightPlan,
		ProbeKeys: probeKeys,
		BuildKeys: buildKeys,
		Type:      joinType,
		Cols:      cols,
	}
	if joinType == exec.JoinSemi || joinType == exec.JoinAnti {
		plan.Cols = plan.Cols[:leftWidth]
		joined.cols = joined.cols[:leftWidth]
	}
	var out exec.Plan = plan
	if len(residual) > 0 {
		if joinType != exec.JoinInner {
			return nil, nil, errorx.NotImplementedf("non-equality conditions on outer joins")
		}
		for _, c := range residual {
			pred, err := b.bindScalar(c, joined)
			if err != nil {
				return nil, nil, err
			}
			out = &exec.FilterPlan{Child: out, Predicate: pred}
		}
	}
	return out, joined, nil
}

// sideOf classifies which join side an expression's columns reference:
// 1 left, 2 right, 0 none, 3 both.
func sideOf(e Expr, left, right *scope) int {
	mask := 0
	var walk func(Expr)
	walk = func(x Expr) {
		switch v := x.(type) {
		case *Ident:
			table, name := identParts(v)
			if idx, _, _ := left.resolve(table, name); idx >= 0 {
				mask |= 1
			}
			if idx, _, _ := right.resolve(table, name); idx >= 0 {
				mask |= 2
			}
		case *BinaryExpr:
			walk(v.Left)
			walk(v.Right)
		case *UnaryExpr:
			walk(v.X)
		case *CastExpr:
			walk(v.X)
		case *FuncCall:
			for _, a := range v.Args {
				walk(a)
			}
		}
	}
	walk(e)
	return mask
}

func identParts(id *Ident) (table, name string) {
	if len(id.Parts) >= 2 {
		return strings.ToLower(id.Parts[len(id.Parts)-2]), strings.ToLower(id.Parts[len(id.Parts)-1])
	}
	return "", strings.ToLower(id.Parts[0])
}

func splitConjuncts(e Expr) []Expr {
	if e == nil {
		return nil
	}
	if bin, ok := e.(*BinaryExpr); ok && bin.Op == "AND" {
		return append(splitConjuncts(bin.Left), splitConjuncts(bin.Right)...)
	}
	return []Expr{e}
}

// extractZonePredicates lifts comparisons of a column against a constant
// out of a bound predicate for zone-map pruning. The full predicate stays
// as the scan residual; pruning only needs the provable parts.
func extractZonePredicates(pred expr.Expression) []storage.Predicate {
	var out []storage.Predicate
	var walk func(e expr.Expression)
	walk = func(e expr.Expression) {
		switch x := e.(type) {
		case *expr.Conjunction:
			if !x.And {
				return
			}
			for _, c := range x.Children {
				walk(c)
			}
		case *expr.Comparison:
			if x.Op == expr.CmpIsNull || x.Op == expr.CmpIsNotNull {
				if col, ok := x.Left.(*expr.ColumnRef); ok {
					op := storage.CmpIsNull
					if x.Op == expr.CmpIsNotNull {
						op = storage.CmpIsNotNull
					}
					out = append(out, storage.Predicate{Column: col.Index, Op: op})
				}
				return
			}
			col, cok := x.Left.(*expr.ColumnRef)
			lit, lok := x.Right.(*expr.Constant)
			op := x.Op
			if !cok || !lok {
				// Try the mirrored shape: const cmp col.
				if lit2, ok := x.Left.(*expr.Constant); ok {
					if col2, ok2 := x.Right.(*expr.ColumnRef); ok2 {
						col, lit = col2, lit2
						op = mirrorCompare(op)
						cok, lok = true, true
					}
				}
			}
			if !cok || !lok {
				return
			}
			var zop storage.CompareOp
			switch op {
			case expr.CmpEqual:
				zop = storage.CmpEq
			case expr.CmpNotEqual:
				zop = storage.CmpNotEq
			case expr.CmpLess:
				zop = storage.CmpLt
			case expr.CmpLessEqual:
				zop = storage.CmpLtEq
			case expr.CmpGreater:
				zop = storage.CmpGt
			case expr.CmpGreaterEqual:
				zop = storage.CmpGtEq
			default:
				return
			}
			out = append(out, storage.Predicate{Column: col.Index, Op: zop, Value: lit.Value})
		}
	}
	walk(pred)
	return out
}

func mirrorCompare(op expr.CompareOp) expr.CompareOp {
	switch op {
	case expr.CmpLess:
		return expr.CmpGreater
	case expr.CmpLessEqual:
		return expr.CmpGreaterEqual
	case expr.CmpGreater:
		return expr.CmpLess
	case expr.CmpGreaterEqual:
		return expr.CmpLessEqual
	default:
		return op
	}
}

func expandStars(items []SelectItem, sc *scope) ([]SelectItem, error) {
	var out []SelectItem
	for _, item := range items {
		if !item.Star {
			out = append(out, item)
			continue
		}
		table := strings.ToLower(item.StarTable)
		matched := false
		for _, col := range sc.cols {
			if table != "" && col.table != table {
				continue
			}
			matched = true
			parts := []string{col.name}
			if col.table != "" {
				parts = []string{col.table, col.name}
			}
			out = append(out, SelectItem{Expr: &Ident{Parts: parts}, Alias: col.display})
		}
		if !matched {
			return nil, errorx.Parsef("star expansion matched no columns for %q", item.StarTable)
		}
	}
	return out, nil
}

func containsAggregate(e Expr) bool {
	found := false
	walkExpr(e, func(x Expr) {
		if call, ok := x.(*FuncCall); ok && call.Over == nil {
			if _, err := aggregate.Lookup(call.Name); err == nil {
				found = true
			}
		}
	})
	return found
}

// walkExpr visits every node of an AST expression, without descending into
// subquery statements.
func walkExpr(e Expr, visit func(Expr)) {
	if e == nil {
		return
	}
	visit(e)
	switch x := e.(type) {
	case *BinaryExpr:
		walkExpr(x.Left, visit)
		walkExpr(x.Right, visit)
	case *UnaryExpr:
		walkExpr(x.X, visit)
	case *IsNullExpr:
		walkExpr(x.X, visit)
	case *BetweenExpr:
		walkExpr(x.X, visit)
		walkExpr(x.Lo, visit)
		walkExpr(x.Hi, visit)
	case *InExpr:
		walkExpr(x.X, visit)
		for _, item := range x.List {
			walkExpr(item, visit)
		}
	case *CastExpr:
		walkExpr(x.X, visit)
	case *CaseExpr:
		walkExpr(x.Operand, visit)
		for i := range x.Whens {
			walkExpr(x.Whens[i], visit)
			walkExpr(x.Thens[i], visit)
		}
		walkExpr(x.ElseExpr, visit)
	case *FuncCall:
		for _, a := range x.Args {
			walkExpr(a, visit)
		}
	}
}
