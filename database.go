// Package prismdb is an embedded, in-process analytical SQL database:
// columnar storage, vectorized execution, and morsel-driven parallelism.
//
// Open a database, execute SQL, and stream columnar result chunks:
//
//	db, _ := prismdb.ConnectInMemory()
//	conn := db.Connect()
//	stream, _ := conn.Execute("SELECT 42")
//	chunk, _ := stream.Next()
package prismdb

import (
	"os"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/turingworks/prismdb/internal/catalog"
	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/exec"
	"github.com/turingworks/prismdb/internal/sql"
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// Value is the row-level value representation at API boundaries.
type Value = types.Value

// LogicalType describes a column's SQL type.
type LogicalType = types.LogicalType

// DataChunk is a column-major batch of at most 2048 result rows.
type DataChunk = vector.DataChunk

// ResultColumn describes one output column of a result stream.
type ResultColumn struct {
	Name string
	Type LogicalType
}

// Database is one embedded database instance: a catalog plus its optional
// backing file.
type Database struct {
	mu      sync.Mutex
	config  Config
	catalog *catalog.Catalog
	path    string // empty for in-memory
}

// Connect opens (or creates) a file-backed database at path.
func Connect(path string, config ...Config) (*Database, error) {
	cfg := DefaultConfig()
	if len(config) > 0 {
		cfg = config[0]
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	var err error
	var cat *catalog.Catalog
	if _, statErr := os.Stat(path); statErr == nil {
		cat, err = catalog.Load(path)
		if err != nil {
			return nil, err
		}
	} else if os.IsNotExist(statErr) {
		// A missing file starts a fresh database that will checkpoint
		// to the path.
		cat = catalog.New()
		zap.S().Infow("created new database", "path", path)
	} else {
		return nil, errorx.IOf("stat database file %s", path).WithCause(statErr)
	}
	return &Database{config: cfg, catalog: cat, path: path}, nil
}

// ConnectInMemory opens a fresh in-memory database.
func ConnectInMemory(config ...Config) (*Database, error) {
	cfg := DefaultConfig()
	if len(config) > 0 {
		cfg = config[0]
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return &Database{config: cfg, catalog: catalog.New()}, nil
}

// Connect creates a connection handle.
func (db *Database) Connect() *Connection {
	return &Connection{id: uuid.New(), db: db}
}

// Checkpoint persists the catalog and all row groups to the database file.
func (db *Database) Checkpoint() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.path == "" {
		return errorx.Parsef("cannot checkpoint an in-memory database")
	}
	return db.catalog.Checkpoint(db.path)
}

// TableNames lists the catalog's tables.
func (db *Database) TableNames() []string {
	return db.catalog.TableNames()
}

// Connection executes statements against a database.
type Connection struct {
	id uuid.UUID
	db *Database
}

// Execute parses, binds, and runs one SQL statement, returning a result
// stream. DDL and INSERT return an empty stream after taking effect.
func (c *Connection) Execute(sqlText string) (*ResultStream, error) {
	stmt, err := sql.Parse(sqlText)
	if err != nil {
		return nil, err
	}
	return c.executeStatement(stmt, nil)
}

func (c *Connection) executeStatement(stmt sql.Statement, params []Value) (*ResultStream, error) {
	switch s := stmt.(type) {
	case *sql.CreateTableStmt:
		cols := make([]catalog.Column, len(s.Columns))
		for i, col := range s.Columns {
			cols[i] = catalog.Column{Name: col.Name, Type: col.Type}
		}
		if _, err := c.db.catalog.CreateTable(s.Name, cols); err != nil {
			return nil, err
		}
		return emptyResult(), nil
	case *sql.DropTableStmt:
		if err := c.db.catalog.DropTable(s.Name); err != nil {
			return nil, err
		}
		return emptyResult(), nil
	case *sql.CheckpointStmt:
		if err := c.db.Checkpoint(); err != nil {
			return nil, err
		}
		return emptyResult(), nil
	case *sql.InsertStmt:
		return c.executeInsert(s, params)
	case *sql.SelectStmt:
		binder := sql.NewBinder(c.db.catalog)
		binder.DefaultNullsFirst = c.db.config.Execution.DefaultNullOrder == NullOrderFirst
		plan, err := binder.BindSelect(s)
		if err != nil {
			return nil, err
		}
		qc := c.newQueryContext(params)
		engine, err := exec.NewEngine(plan, qc)
		if err != nil {
			return nil, err
		}
		cols := make([]ResultColumn, 0, len(engine.Schema()))
		for _, col := range engine.Schema() {
			cols = append(cols, ResultColumn{Name: col.Name, Type: col.Type})
		}
		zap.S().Debugw("executing query", "connection", c.id.String(), "columns", len(cols))
		return &ResultStream{engine: engine, cols: cols}, nil
	default:
		return nil, errorx.NotImplementedf("statement %T", stmt)
	}
}

func (c *Connection) executeInsert(s *sql.InsertStmt, params []Value) (*ResultStream, error) {
	tbl, plan, err := sql.BindInsert(c.db.catalog, s)
	if err != nil {
		return nil, err
	}
	qc := c.newQueryContext(params)
	engine, err := exec.NewEngine(plan, qc)
	if err != nil {
		return nil, err
	}
	rows := int64(0)
	for {
		chunk, err := engine.Next()
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			break
		}
		if err := tbl.Data.AppendChunk(chunk); err != nil {
			return nil, err
		}
		rows += int64(chunk.Cardinality())
	}
	zap.S().Debugw("insert complete", "table", tbl.Name, "rows", rows)
	return emptyResult(), nil
}

func (c *Connection) newQueryContext(params []Value) *exec.QueryContext {
	cfg := c.db.config.Execution
	qc := exec.NewQueryContext(cfg.Threads, cfg.MorselSize, cfg.MemoryLimit)
	qc.Params = params
	return qc
}

// Prepare parses a statement with ? placeholders for later execution.
func (c *Connection) Prepare(sqlText string) (*PreparedStatement, error) {
	stmt, err := sql.Parse(sqlText)
	if err != nil {
		return nil, err
	}
	return &PreparedStatement{conn: c, stmt: stmt}, nil
}

// PreparedStatement re-executes a parsed statement with bound parameters.
type PreparedStatement struct {
	conn   *Connection
	stmt   sql.Statement
	params []Value
}

// Bind sets the positional parameter values.
func (p *PreparedStatement) Bind(params ...Value) *PreparedStatement {
	p.params = params
	return p
}

// Execute runs the statement with the bound parameters.
func (p *PreparedStatement) Execute() (*ResultStream, error) {
	return p.conn.executeStatement(p.stmt, p.params)
}

// ResultStream is a pull-based stream of result chunks. Closing the stream
// cancels the query; chunks already delivered stay valid.
type ResultStream struct {
	engine *exec.Engine
	cols   []ResultColumn
	closed bool
}

func emptyResult() *ResultStream {
	return &ResultStream{closed: true}
}

// Columns describes the output schema.
func (r *ResultStream) Columns() []ResultColumn { return r.cols }

// Next returns the next chunk, or nil at end of stream.
func (r *ResultStream) Next() (*DataChunk, error) {
	if r.closed || r.engine == nil {
		return nil, nil
	}
	chunk, err := r.engine.Next()
	if err != nil {
		r.closed = true
		return nil, err
	}
	if chunk == nil {
		r.closed = true
	}
	return chunk, nil
}

// Rows drains the stream into row-level values; a convenience for tests
// and small results.
func (r *ResultStream) Rows() ([][]Value, error) {
	var out [][]Value
	for {
		chunk, err := r.Next()
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			return out, nil
		}
		for i := 0; i < chunk.Cardinality(); i++ {
			row, err := chunk.Row(i)
			if err != nil {
				return nil, err
			}
			out = append(out, row)
		}
	}
}

// Close cancels the query and releases the stream.
func (r *ResultStream) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.engine != nil {
		return r.engine.Close()
	}
	return nil
}
