package exec

import (
	"sort"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/expr"
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// windowRow is one materialized input row with the evaluated partition,
// order, and argument values of every window function.
type windowRow struct {
	payload []types.Value
	// orderKeys[w] and args[w] hold the evaluated order keys and args for window w.
	orderKeys [][]types.Value
	args      [][]types.Value
	partKey   []string
}

// Window computes window functions: input is materialized, partitioned by
// hashing the PARTITION BY keys, sorted per partition by ORDER BY, then
// each function is applied per row over its frame. A pipeline breaker.
type Window struct {
	plan   *WindowPlan
	child  Operator
	output []*vector.DataChunk
	pos    int
}

// NewWindow builds a window operator over child.
func NewWindow(plan *WindowPlan, child Operator) *Window {
	return &Window{plan: plan, child: child}
}

// Open implements Operator; it runs the whole computation.
func (w *Window) Open(qc *QueryContext) error {
	ectx := qc.NewExprContext()
	var rows []*windowRow
	err := drain(qc, w.child, func(chunk *vector.DataChunk) error {
		chunk = chunk.Materialize()
		if err := qc.Memory.Reserve(chunkBytes(chunk)); err != nil {
			return err
		}
		return w.appendRows(qc, ectx, chunk, &rows)
	})
	if err != nil {
		return err
	}
	// Partition rows per window function; most plans share one window
	// shape, but each function may partition differently.
	results := make([][]types.Value, len(w.plan.Windows))
	for wi, win := range w.plan.Windows {
		res, err := w.computeWindow(qc, wi, win, rows)
		if err != nil {
			return err
		}
		results[wi] = res
	}
	// Assemble output: child columns then one column per window.
	outTypes := ColumnTypes(w.plan.Cols)
	out := vector.NewChunk(outTypes)
	for ri, row := range rows {
		vals := make([]types.Value, 0, len(outTypes))
		vals = append(vals, row.payload...)
		for wi := range w.plan.Windows {
			v, err := coerceValue(results[wi][ri], outTypes[len(row.payload)+wi])
			if err != nil {
				return err
			}
			vals = append(vals, v)
		}
		if err := out.AppendRow(vals...); err != nil {
			return err
		}
		if out.Cardinality() == vector.Size {
			w.output = append(w.output, out)
			out = vector.NewChunk(outTypes)
		}
	}
	if out.Cardinality() > 0 {
		w.output = append(w.output, out)
	}
	w.pos = 0
	return nil
}

func (w *Window) appendRows(qc *QueryContext, ectx *expr.Context, chunk *vector.DataChunk, rows *[]*windowRow) error {
	n := chunk.Cardinality()
	// Evaluate per-window keys and args once per chunk.
	partVecs := make([][]*vector.Vector, len(w.plan.Windows))
	orderVecs := make([][]*vector.Vector, len(w.plan.Windows))
	argVecs := make([][]*vector.Vector, len(w.plan.Windows))
	for wi, win := range w.plan.Windows {
		for _, p := range win.PartitionBy {
			v, err := p.Eval(ectx, chunk)
			if err != nil {
				return err
			}
			partVecs[wi] = append(partVecs[wi], v)
		}
		for _, o := range win.OrderBy {
			v, err := o.Expr.Eval(ectx, chunk)
			if err != nil {
				return err
			}
			orderVecs[wi] = append(orderVecs[wi], v)
		}
		args := win.Args
		if win.Agg != nil {
			args = win.Agg.Args
		}
		for _, a := range args {
			v, err := a.Eval(ectx, chunk)
			if err != nil {
				return err
			}
			argVecs[wi] = append(argVecs[wi], v)
		}
	}
	for r := 0; r < n; r++ {
		payload, err := chunk.Row(r)
		if err != nil {
			return err
		}
		row := &windowRow{
			payload:   payload,
			orderKeys: make([][]types.Value, len(w.plan.Windows)),
			args:      make([][]types.Value, len(w.plan.Windows)),
			partKey:   make([]string, len(w.plan.Windows)),
		}
		for wi := range w.plan.Windows {
			pk := make([]types.Value, len(partVecs[wi]))
			for i, v := range partVecs[wi] {
				pk[i] = v.MustGet(r)
			}
			row.partKey[wi] = groupKey(pk)
			ok := make([]types.Value, len(orderVecs[wi]))
			for i, v := range orderVecs[wi] {
				ok[i] = v.MustGet(r)
			}
			row.orderKeys[wi] = ok
			av := make([]types.Value, len(argVecs[wi]))
			for i, v := range argVecs[wi] {
				av[i] = v.MustGet(r)
			}
			row.args[wi] = av
		}
		*rows = append(*rows, row)
	}
	return nil
}

// computeWindow evaluates one window function over all rows, returning the
// result aligned to the input row order.
func (w *Window) computeWindow(qc *QueryContext, wi int, win *BoundWindow, rows []*windowRow) ([]types.Value, error) {
	// Group row indices by partition (hash partitioning on the rendered
	// partition key, same path as the aggregate).
	partitions := make(map[string][]int)
	var order []string
	for i, row := range rows {
		key := row.partKey[wi]
		if _, ok := partitions[key]; !ok {
			order = append(order, key)
		}
		partitions[key] = append(partitions[key], i)
	}
	results := make([]types.Value, len(rows))
	for _, key := range order {
		if err := qc.CheckCancelled(); err != nil {
			return nil, err
		}
		idxs := partitions[key]
		// Sort within the partition by the ORDER BY keys.
		sort.SliceStable(idxs, func(a, b int) bool {
			ra, rb := rows[idxs[a]], rows[idxs[b]]
			for k := range win.OrderBy {
				if cmp := compareWithNulls(ra.orderKeys[wi][k], rb.orderKeys[wi][k], win.OrderBy[k]); cmp != 0 {
					return cmp < 0
				}
			}
			return false
		})
		if err := w.computePartition(wi, win, rows, idxs, results); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// peersEqual reports whether two partition rows are ORDER BY peers.
func peersEqual(wi int, win *BoundWindow, a, b *windowRow) bool {
	for k := range win.OrderBy {
		if compareWithNulls(a.orderKeys[wi][k], b.orderKeys[wi][k], win.OrderBy[k]) != 0 {
			return false
		}
	}
	return true
}

func (w *Window) computePartition(wi int, win *BoundWindow, rows []*windowRow, idxs []int, results []types.Value) error {
	n := len(idxs)
	switch {
	case win.Agg != nil:
		return w.computeAggWindow(wi, win, rows, idxs, results)
	case win.FuncName == "row_number":
		for pos, idx := range idxs {
			results[idx] = types.NewBigInt(int64(pos + 1))
		}
	case win.FuncName == "rank", win.FuncName == "percent_rank":
		rank := 1
		for pos, idx := range idxs {
			if pos > 0 && !peersEqual(wi, win, rows[idxs[pos-1]], rows[idx]) {
				rank = pos + 1
			}
			if win.FuncName == "rank" {
				results[idx] = types.NewBigInt(int64(rank))
			} else if n == 1 {
				results[idx] = types.NewDouble(0)
			} else {
				results[idx] = types.NewDouble(float64(rank-1) / float64(n-1))
			}
		}
	case win.FuncName == "dense_rank":
		rank := 1
		for pos, idx := range idxs {
			if pos > 0 && !peersEqual(wi, win, rows[idxs[pos-1]], rows[idx]) {
				rank++
			}
			results[idx] = types.NewBigInt(int64(rank))
		}
	case win.FuncName == "cume_dist":
		// peersAtOrBefore / partitionRows, computed per peer group.
		pos := 0
		for pos < n {
			end := pos + 1
			for end < n && peersEqual(wi, win, rows[idxs[pos]], rows[idxs[end]]) {
				end++
			}
			dist := float64(end) / float64(n)
			for i := pos; i < end; i++ {
				results[idxs[i]] = types.NewDouble(dist)
			}
			pos = end
		}
	case win.FuncName == "ntile":
		if len(rows[idxs[0]].args[wi]) == 0 || rows[idxs[0]].args[wi][0].Null {
			return errorx.Parsef("ntile requires a bucket count")
		}
		buckets := rows[idxs[0]].args[wi][0].Int64()
		if buckets <= 0 {
			return errorx.Parsef("ntile bucket count must be positive")
		}
		base := int64(n) / buckets
		rem := int64(n) % buckets
		pos := int64(0)
		for b := int64(1); b <= buckets && pos < int64(n); b++ {
			size := base
			if b <= rem {
				size++
			}
			for i := int64(0); i < size && pos < int64(n); i++ {
				results[idxs[pos]] = types.NewBigInt(b)
				pos++
			}
		}
	case win.FuncName == "lag", win.FuncName == "lead":
		offset := int64(1)
		var def types.Value
		defSet := false
		if len(rows[idxs[0]].args[wi]) > 1 && !rows[idxs[0]].args[wi][1].Null {
			offset = rows[idxs[0]].args[wi][1].Int64()
		}
		if len(rows[idxs[0]].args[wi]) > 2 {
			def = rows[idxs[0]].args[wi][2]
			defSet = true
		}
		for pos, idx := range idxs {
			var target int64
			if win.FuncName == "lag" {
				target = int64(pos) - offset
			} else {
				target = int64(pos) + offset
			}
			switch {
			case target >= 0 && target < int64(n):
				results[idx] = rows[idxs[target]].args[wi][0]
			case defSet:
				results[idx] = def
			default:
				results[idx] = types.NewNull(win.RetType)
			}
		}
	case win.FuncName == "first_value", win.FuncName == "last_value", win.FuncName == "nth_value":
		for pos, idx := range idxs {
			lo, hi, err := w.frameBounds(wi, win, rows, idxs, pos)
			if err != nil {
				return err
			}
			if lo >= hi {
				results[idx] = types.NewNull(win.RetType)
				continue
			}
			switch win.FuncName {
			case "first_value":
				results[idx] = rows[idxs[lo]].args[wi][0]
			case "last_value":
				results[idx] = rows[idxs[hi-1]].args[wi][0]
			default:
				nth := rows[idx].args[wi][1]
				if nth.Null || nth.Int64() < 1 {
					return errorx.Parsef("nth_value position must be positive")
				}
				k := lo + int(nth.Int64()) - 1
				if k >= hi {
					results[idx] = types.NewNull(win.RetType)
				} else {
					results[idx] = rows[idxs[k]].args[wi][0]
				}
			}
		}
	default:
		return errorx.NotImplementedf("window function %s", win.FuncName)
	}
	return nil
}

// computeAggWindow applies an aggregate over each row's frame. When the
// frame only grows on the right (the common running-total shape), one
// accumulating state slides forward; otherwise each row re-aggregates its
// frame.
func (w *Window) computeAggWindow(wi int, win *BoundWindow, rows []*windowRow, idxs []int, results []types.Value) error {
	n := len(idxs)
	growingOnly := win.Frame.Start.Kind == BoundUnboundedPreceding && win.Frame.Mode != FrameRange
	if win.Frame.Mode == FrameRange &&
		win.Frame.Start.Kind == BoundUnboundedPreceding && win.Frame.End.Kind == BoundCurrentRow {
		// Running aggregate over peers: extend to each peer-group end.
		state := win.Agg.NewState()
		pos := 0
		for pos < n {
			end := pos + 1
			for end < n && peersEqual(wi, win, rows[idxs[pos]], rows[idxs[end]]) {
				end++
			}
			for i := pos; i < end; i++ {
				if err := state.Update(rows[idxs[i]].args[wi]); err != nil {
					return err
				}
			}
			for i := pos; i < end; i++ {
				results[idxs[i]] = state.Finalize()
			}
			pos = end
		}
		return nil
	}
	if growingOnly && win.Frame.End.Kind == BoundCurrentRow {
		state := win.Agg.NewState()
		for pos, idx := range idxs {
			if err := state.Update(rows[idxs[pos]].args[wi]); err != nil {
				return err
			}
			results[idx] = state.Finalize()
		}
		return nil
	}
	for pos, idx := range idxs {
		lo, hi, err := w.frameBounds(wi, win, rows, idxs, pos)
		if err != nil {
			return err
		}
		state := win.Agg.NewState()
		for i := lo; i < hi; i++ {
			if err := state.Update(rows[idxs[i]].args[wi]); err != nil {
				return err
			}
		}
		results[idx] = state.Finalize()
	}
	return nil
}

// frameBounds resolves the [lo, hi) frame of the row at partition position
// pos, in partition-relative positions.
func (w *Window) frameBounds(wi int, win *BoundWindow, rows []*windowRow, idxs []int, pos int) (int, int, error) {
	n := len(idxs)
	frame := win.Frame
	switch frame.Mode {
	case FrameRows:
		lo, hi := 0, n
		switch frame.Start.Kind {
		case BoundUnboundedPreceding:
			lo = 0
		case BoundPreceding:
			lo = pos - int(frame.Start.Offset)
		case BoundCurrentRow:
			lo = pos
		case BoundFollowing:
			lo = pos + int(frame.Start.Offset)
		}
		switch frame.End.Kind {
		case BoundUnboundedFollowing:
			hi = n
		case BoundPreceding:
			hi = pos - int(frame.End.Offset) + 1
		case BoundCurrentRow:
			hi = pos + 1
		case BoundFollowing:
			hi = pos + int(frame.End.Offset) + 1
		}
		return clamp(lo, 0, n), clamp(hi, 0, n), nil
	case FrameGroups:
		groups := peerGroups(wi, win, rows, idxs)
		cur := groups[pos]
		loGroup, hiGroup := 0, groups[n-1]
		switch frame.Start.Kind {
		case BoundUnboundedPreceding:
			loGroup = 0
		case BoundPreceding:
			loGroup = cur - int(frame.Start.Offset)
		case BoundCurrentRow:
			loGroup = cur
		case BoundFollowing:
			loGroup = cur + int(frame.Start.Offset)
		}
		switch frame.End.Kind {
		case BoundUnboundedFollowing:
			hiGroup = groups[n-1]
		case BoundPreceding:
			hiGroup = cur - int(frame.End.Offset)
		case BoundCurrentRow:
			hiGroup = cur
		case BoundFollowing:
			hiGroup = cur + int(frame.End.Offset)
		}
		lo, hi := n, 0
		for i, g := range groups {
			if g >= loGroup && g <= hiGroup {
				if i < lo {
					lo = i
				}
				if i+1 > hi {
					hi = i + 1
				}
			}
		}
		if lo > hi {
			return 0, 0, nil
		}
		return lo, hi, nil
	default: // FrameRange
		if len(win.OrderBy) == 0 {
			// No ordering: every row is a peer; the frame is the whole
			// partition regardless of bounds.
			return 0, n, nil
		}
		if frame.Start.Kind == BoundPreceding || frame.Start.Kind == BoundFollowing ||
			frame.End.Kind == BoundPreceding || frame.End.Kind == BoundFollowing {
			return w.rangeOffsetBounds(wi, win, rows, idxs, pos)
		}
		lo, hi := 0, n
		if frame.Start.Kind == BoundCurrentRow {
			lo = pos
			for lo > 0 && peersEqual(wi, win, rows[idxs[lo-1]], rows[idxs[pos]]) {
				lo--
			}
		}
		if frame.End.Kind == BoundCurrentRow {
			hi = pos + 1
			for hi < n && peersEqual(wi, win, rows[idxs[hi]], rows[idxs[pos]]) {
				hi++
			}
		}
		return lo, hi, nil
	}
}

// rangeOffsetBounds resolves RANGE frames with value offsets over a single
// numeric or temporal ORDER BY key.
func (w *Window) rangeOffsetBounds(wi int, win *BoundWindow, rows []*windowRow, idxs []int, pos int) (int, int, error) {
	if len(win.OrderBy) != 1 {
		return 0, 0, errorx.Parsef("RANGE with offset requires exactly one ORDER BY expression")
	}
	key := win.OrderBy[0]
	cur := rows[idxs[pos]].orderKeys[wi][0]
	if cur.Null {
		// NULL orders group as peers.
		lo := pos
		for lo > 0 && rows[idxs[lo-1]].orderKeys[wi][0].Null {
			lo--
		}
		hi := pos + 1
		for hi < len(idxs) && rows[idxs[hi]].orderKeys[wi][0].Null {
			hi++
		}
		return lo, hi, nil
	}
	curF := cur.Float64()
	frame := win.Frame
	inFrame := func(i int) bool {
		v := rows[idxs[i]].orderKeys[wi][0]
		if v.Null {
			return false
		}
		delta := v.Float64() - curF
		if key.Desc {
			delta = -delta
		}
		loBound, hiBound := -1e308, 1e308
		switch frame.Start.Kind {
		case BoundPreceding:
			loBound = -float64(frame.Start.Offset)
		case BoundCurrentRow:
			loBound = 0
		case BoundFollowing:
			loBound = float64(frame.Start.Offset)
		}
		switch frame.End.Kind {
		case BoundPreceding:
			hiBound = -float64(frame.End.Offset)
		case BoundCurrentRow:
			hiBound = 0
		case BoundFollowing:
			hiBound = float64(frame.End.Offset)
		}
		return delta >= loBound && delta <= hiBound
	}
	n := len(idxs)
	lo := pos
	for lo > 0 && inFrame(lo-1) {
		lo--
	}
	hi := pos + 1
	for hi < n && inFrame(hi) {
		hi++
	}
	return lo, hi, nil
}

// peerGroups numbers each partition row with its peer-group ordinal.
func peerGroups(wi int, win *BoundWindow, rows []*windowRow, idxs []int) []int {
	groups := make([]int, len(idxs))
	g := 0
	for i := range idxs {
		if i > 0 && !peersEqual(wi, win, rows[idxs[i-1]], rows[idxs[i]]) {
			g++
		}
		groups[i] = g
	}
	return groups
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Next implements Operator.
func (w *Window) Next(qc *QueryContext) (*vector.DataChunk, error) {
	if w.pos >= len(w.output) {
		return nil, nil
	}
	chunk := w.output[w.pos]
	w.pos++
	return chunk, nil
}

// Close implements Operator.
func (w *Window) Close() error { return w.child.Close() }
