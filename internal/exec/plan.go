// Package exec implements the physical operator set and the morsel-driven
// execution engine: scans, filters, projections, limits, hash join, hash
// aggregate, sort, window, set operations, and CTE materialization, all
// streaming data chunks through a pull-based operator DAG.
package exec

import (
	"github.com/turingworks/prismdb/internal/aggregate"
	"github.com/turingworks/prismdb/internal/expr"
	"github.com/turingworks/prismdb/internal/storage"
	"github.com/turingworks/prismdb/internal/types"
)

// Column is one output column of a plan node.
type Column struct {
	Name string
	Type types.LogicalType
}

// Plan is a bound physical plan node. Expressions inside a plan reference
// child columns by index, never by name.
type Plan interface {
	Schema() []Column
}

// ColumnTypes extracts the logical types of a schema.
func ColumnTypes(schema []Column) []types.LogicalType {
	typs := make([]types.LogicalType, len(schema))
	for i, c := range schema {
		typs[i] = c.Type
	}
	return typs
}

// TableScanPlan reads a range of row groups of a table.
type TableScanPlan struct {
	TableName string
	Table     *storage.DataTable
	// ColumnIDs are the selected table columns in output order.
	ColumnIDs []int
	Cols      []Column
	// Pushed predicates are consulted against zone maps before
	// decompression.
	Pushed []storage.Predicate
	// Residual is the filter part zone maps cannot prove, evaluated on
	// scanned chunks.
	Residual expr.Expression
	// Limit caps scanned rows when a limit was pushed into the scan;
	// negative means none.
	Limit int64
}

// Schema implements Plan.
func (p *TableScanPlan) Schema() []Column { return p.Cols }

// FilterPlan drops rows failing the predicate.
type FilterPlan struct {
	Child     Plan
	Predicate expr.Expression
}

// Schema implements Plan.
func (p *FilterPlan) Schema() []Column { return p.Child.Schema() }

// ProjectionPlan computes one output column per expression.
type ProjectionPlan struct {
	Child Plan
	Exprs []expr.Expression
	Cols  []Column
}

// Schema implements Plan.
func (p *ProjectionPlan) Schema() []Column { return p.Cols }

// LimitPlan passes through at most Limit rows after skipping Offset.
type LimitPlan struct {
	Child  Plan
	Limit  int64
	Offset int64
}

// Schema implements Plan.
func (p *LimitPlan) Schema() []Column { return p.Child.Schema() }

// JoinType enumerates join semantics.
type JoinType uint8

const (
	JoinInner JoinType = iota
	JoinLeft
	JoinRight
	JoinFull
	JoinSemi
	JoinAnti
)

func (t JoinType) String() string {
	switch t {
	case JoinInner:
		return "INNER"
	case JoinLeft:
		return "LEFT"
	case JoinRight:
		return "RIGHT"
	case JoinFull:
		return "FULL"
	case JoinSemi:
		return "SEMI"
	default:
		return "ANTI"
	}
}

// HashJoinPlan joins Build (right) into Probe (left) on equality keys.
type HashJoinPlan struct {
	Probe     Plan
	Build     Plan
	ProbeKeys []expr.Expression
	BuildKeys []expr.Expression
	Type      JoinType
	Cols      []Column
}

// Schema implements Plan.
func (p *HashJoinPlan) Schema() []Column { return p.Cols }

// BoundAggregate is one aggregate call inside a HashAggregate or Window.
type BoundAggregate struct {
	Fn       *aggregate.Function
	Args     []expr.Expression
	Distinct bool
	RetType  types.LogicalType
	Name     string
}

// NewState builds a fresh accumulator honoring DISTINCT.
func (a *BoundAggregate) NewState() aggregate.State {
	argTypes := make([]types.LogicalType, len(a.Args))
	for i, e := range a.Args {
		argTypes[i] = e.ReturnType()
	}
	if a.Distinct {
		return aggregate.NewDistinct(func() aggregate.State {
			return a.Fn.NewState(argTypes)
		})
	}
	return a.Fn.NewState(argTypes)
}

// HashAggregatePlan groups by the key expressions and folds aggregates.
type HashAggregatePlan struct {
	Child      Plan
	GroupBy    []expr.Expression
	Aggregates []*BoundAggregate
	Cols       []Column
}

// Schema implements Plan.
func (p *HashAggregatePlan) Schema() []Column { return p.Cols }

// NullOrder places nulls first or last within a sort key.
type NullOrder uint8

const (
	NullsLast NullOrder = iota
	NullsFirst
)

// SortKey is one ORDER BY term.
type SortKey struct {
	Expr      expr.Expression
	Desc      bool
	NullOrder NullOrder
}

// SortPlan fully orders its input; the sort is not stable.
type SortPlan struct {
	Child Plan
	Keys  []SortKey
	// TopN bounds materialization when a limit immediately consumes the
	// sort; negative means full sort.
	TopN int64
}

// Schema implements Plan.
func (p *SortPlan) Schema() []Column { return p.Child.Schema() }

// FrameMode selects ROWS, RANGE, or GROUPS frame counting.
type FrameMode uint8

const (
	FrameRows FrameMode = iota
	FrameRange
	FrameGroups
)

// FrameBoundKind enumerates frame endpoint shapes.
type FrameBoundKind uint8

const (
	BoundUnboundedPreceding FrameBoundKind = iota
	BoundPreceding
	BoundCurrentRow
	BoundFollowing
	BoundUnboundedFollowing
)

// FrameBound is one endpoint of a window frame.
type FrameBound struct {
	Kind FrameBoundKind
	// Offset applies to BoundPreceding / BoundFollowing.
	Offset int64
}

// FrameSpec is a window frame definition.
type FrameSpec struct {
	Mode  FrameMode
	Start FrameBound
	End   FrameBound
}

// DefaultFrame is RANGE BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW.
func DefaultFrame() FrameSpec {
	return FrameSpec{
		Mode:  FrameRange,
		Start: FrameBound{Kind: BoundUnboundedPreceding},
		End:   FrameBound{Kind: BoundCurrentRow},
	}
}

// BoundWindow is one window function call.
type BoundWindow struct {
	// FuncName is the ranking/value function name; empty when Agg is set.
	FuncName    string
	Agg         *BoundAggregate
	Args        []expr.Expression
	PartitionBy []expr.Expression
	OrderBy     []SortKey
	Frame       FrameSpec
	RetType     types.LogicalType
	Name        string
}

// WindowPlan appends one column per window function to its child's rows.
type WindowPlan struct {
	Child   Plan
	Windows []*BoundWindow
	Cols    []Column
}

// Schema implements Plan.
func (p *WindowPlan) Schema() []Column { return p.Cols }

// QualifyPlan filters on window results; identical semantics to Filter,
// positioned after Window.
type QualifyPlan struct {
	Child     Plan
	Predicate expr.Expression
}

// Schema implements Plan.
func (p *QualifyPlan) Schema() []Column { return p.Child.Schema() }

// SetOpType enumerates set operations.
type SetOpType uint8

const (
	SetUnion SetOpType = iota
	SetIntersect
	SetExcept
)

// SetOpPlan combines two inputs of identical schemas.
type SetOpPlan struct {
	Op    SetOpType
	All   bool
	Left  Plan
	Right Plan
}

// Schema implements Plan.
func (p *SetOpPlan) Schema() []Column { return p.Left.Schema() }

// CTEMaterializePlan executes Input once into the context's CTE store,
// then runs Child, whose CTEScan nodes read the stored chunks.
type CTEMaterializePlan struct {
	Name  string
	Input Plan
	Child Plan
}

// Schema implements Plan.
func (p *CTEMaterializePlan) Schema() []Column { return p.Child.Schema() }

// CTEScanPlan replays a materialized CTE.
type CTEScanPlan struct {
	Name string
	Cols []Column
}

// Schema implements Plan.
func (p *CTEScanPlan) Schema() []Column { return p.Cols }

// ValuesPlan emits literal rows; INSERT ... VALUES and constant SELECTs.
type ValuesPlan struct {
	Rows [][]expr.Expression
	Cols []Column
}

// Schema implements Plan.
func (p *ValuesPlan) Schema() []Column { return p.Cols }
