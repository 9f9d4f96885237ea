package sql

import "github.com/turingworks/prismdb/internal/types"

// Statement is a parsed SQL statement.
type Statement interface {
	stmt()
}

// ColumnDef is one column of CREATE TABLE.
type ColumnDef struct {
	Name string
	Type types.LogicalType
}

// CreateTableStmt is CREATE TABLE name (col type, ...).
type CreateTableStmt struct {
	Name    string
	Columns []ColumnDef
}

func (*CreateTableStmt) stmt() {}

// DropTableStmt is DROP TABLE name.
type DropTableStmt struct {
	Name string
}

func (*DropTableStmt) stmt() {}

// InsertStmt is INSERT INTO name [(cols)] VALUES (...), (...).
type InsertStmt struct {
	Table   string
	Columns []string
	Rows    [][]Expr
}

func (*InsertStmt) stmt() {}

// CheckpointStmt persists the database to its file.
type CheckpointStmt struct{}

func (*CheckpointStmt) stmt() {}

// CTE is one WITH entry.
type CTE struct {
	Name   string
	Select *SelectStmt
}

// SelectItem is one projection item.
type SelectItem struct {
	Expr  Expr
	Alias string
	// Star marks SELECT * (optionally qualified).
	Star      bool
	StarTable string
}

// OrderItem is one ORDER BY term.
type OrderItem struct {
	Expr Expr
	Desc bool
	// NullsFirst is nil when unspecified (engine default applies).
	NullsFirst *bool
}

// SetOpClause chains a set operation onto the select it hangs off.
type SetOpClause struct {
	Op    string // UNION, INTERSECT, EXCEPT
	All   bool
	Right *SelectStmt
}

// SelectStmt is a full SELECT query. SetOps chains left-deep: the statement
// itself is the leftmost arm; OrderBy/Limit/Offset apply to the combined
// result when the chain is non-empty.
type SelectStmt struct {
	With     []CTE
	Distinct bool
	Items    []SelectItem
	From     TableRef
	Where    Expr
	GroupBy  []Expr
	Having   Expr
	Qualify  Expr
	OrderBy  []OrderItem
	Limit    Expr
	Offset   Expr
	SetOps   []SetOpClause
}

func (*SelectStmt) stmt() {}

// TableRef is a FROM clause element.
type TableRef interface {
	tableRef()
}

// BaseTable references a named table.
type BaseTable struct {
	Name  string
	Alias string
}

func (*BaseTable) tableRef() {}

// JoinRef joins two table references.
type JoinRef struct {
	Left  TableRef
	Right TableRef
	// Type is INNER, LEFT, RIGHT, FULL, SEMI, ANTI, or CROSS.
	Type string
	On   Expr
}

func (*JoinRef) tableRef() {}

// SubqueryTable is a derived table.
type SubqueryTable struct {
	Select *SelectStmt
	Alias  string
}

func (*SubqueryTable) tableRef() {}

// Expr is a parsed expression.
type Expr interface {
	expr()
}

// Ident is a possibly qualified identifier.
type Ident struct {
	Parts []string
}

func (*Ident) expr() {}

// NumberLit is an integer or decimal literal.
type NumberLit struct {
	Text string
}

func (*NumberLit) expr() {}

// StringLit is a quoted string literal.
type StringLit struct {
	Value string
}

func (*StringLit) expr() {}

// BoolLit is TRUE or FALSE.
type BoolLit struct {
	Value bool
}

func (*BoolLit) expr() {}

// NullLit is NULL.
type NullLit struct{}

func (*NullLit) expr() {}

// ParamExpr is a ? placeholder.
type ParamExpr struct {
	Ordinal int
}

func (*ParamExpr) expr() {}

// BinaryExpr applies an infix operator.
type BinaryExpr struct {
	Op    string
	Left  Expr
	Right Expr
}

func (*BinaryExpr) expr() {}

// UnaryExpr applies a prefix operator (-, NOT).
type UnaryExpr struct {
	Op string
	X  Expr
}

func (*UnaryExpr) expr() {}

// IsNullExpr is X IS [NOT] NULL.
type IsNullExpr struct {
	X       Expr
	Negated bool
}

func (*IsNullExpr) expr() {}

// BetweenExpr is X [NOT] BETWEEN Lo AND Hi.
type BetweenExpr struct {
	X       Expr
	Lo      Expr
	Hi      Expr
	Negated bool
}

func (*BetweenExpr) expr() {}

// InExpr is X [NOT] IN (list) or X [NOT] IN (subquery).
type InExpr struct {
	X       Expr
	List    []Expr
	Select  *SelectStmt
	Negated bool
}

func (*InExpr) expr() {}

// ExistsExpr is [NOT] EXISTS (subquery).
type ExistsExpr struct {
	Select  *SelectStmt
	Negated bool
}

func (*ExistsExpr) expr() {}

// SubqueryExpr is a scalar subquery.
type SubqueryExpr struct {
	Select *SelectStmt
}

func (*SubqueryExpr) expr() {}

// CastExpr is CAST(X AS type).
type CastExpr struct {
	X    Expr
	Type types.LogicalType
}

func (*CastExpr) expr() {}

// CaseExpr is CASE [operand] WHEN ... THEN ... [ELSE ...] END.
type CaseExpr struct {
	Operand  Expr
	Whens    []Expr
	Thens    []Expr
	ElseExpr Expr
}

func (*CaseExpr) expr() {}

// FrameDef is a parsed window frame.
type FrameDef struct {
	Mode        string // ROWS, RANGE, GROUPS
	StartKind   string // UNBOUNDED_PRECEDING, PRECEDING, CURRENT, FOLLOWING, UNBOUNDED_FOLLOWING
	StartOffset Expr
	EndKind     string
	EndOffset   Expr
}

// WindowDef is a parsed OVER clause.
type WindowDef struct {
	PartitionBy []Expr
	OrderBy     []OrderItem
	Frame       *FrameDef
}

// FuncCall is a function call, possibly aggregate or windowed.
type FuncCall struct {
	Name     string
	Args     []Expr
	Distinct bool
	// Star marks count(*).
	Star bool
	Over *WindowDef
}

func (*FuncCall) expr() {}
