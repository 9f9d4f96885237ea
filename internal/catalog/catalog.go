// Package catalog holds the in-memory schema registry: table definitions
// and their backing data, consulted by the binder and persisted through
// the storage block file.
package catalog

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/storage"
	"github.com/turingworks/prismdb/internal/types"
)

// Column is one table column definition.
type Column struct {
	Name string
	Type types.LogicalType
}

// Table pairs a table definition with its row groups.
type Table struct {
	Name    string
	Columns []Column
	Data    *storage.DataTable
}

// ColumnIndex resolves a column name (case-insensitive), returning -1 when
// absent.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// Catalog is the database's table registry.
type Catalog struct {
	mu     sync.RWMutex
	id     uuid.UUID
	tables map[string]*Table
}

// New creates an empty catalog with a fresh database id.
func New() *Catalog {
	return &Catalog{id: uuid.New(), tables: make(map[string]*Table)}
}

// DatabaseID returns the database UUID persisted in the file header.
func (c *Catalog) DatabaseID() uuid.UUID { return c.id }

// CreateTable registers a new table.
func (c *Catalog) CreateTable(name string, cols []Column) (*Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := strings.ToLower(name)
	if _, exists := c.tables[key]; exists {
		return nil, errorx.Catalogf("table %q already exists", name)
	}
	typs := make([]types.LogicalType, len(cols))
	seen := make(map[string]struct{}, len(cols))
	for i, col := range cols {
		lower := strings.ToLower(col.Name)
		if _, dup := seen[lower]; dup {
			return nil, errorx.Catalogf("duplicate column %q in table %q", col.Name, name)
		}
		seen[lower] = struct{}{}
		typs[i] = col.Type
	}
	tbl := &Table{Name: name, Columns: cols, Data: storage.NewDataTable(typs)}
	c.tables[key] = tbl
	zap.S().Debugw("created table", "table", name, "columns", len(cols))
	return tbl, nil
}

// DropTable removes a table.
func (c *Catalog) DropTable(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := strings.ToLower(name)
	if _, exists := c.tables[key]; !exists {
		return errorx.Catalogf("table %q does not exist", name)
	}
	delete(c.tables, key)
	return nil
}

// Table resolves a table by name.
func (c *Catalog) Table(name string) (*Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tbl, ok := c.tables[strings.ToLower(name)]
	if !ok {
		return nil, errorx.Catalogf("table %q does not exist", name)
	}
	return tbl, nil
}

// TableNames lists the registered tables in sorted order.
func (c *Catalog) TableNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tables))
	for _, t := range c.tables {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

// Checkpoint seals all tables and writes the database to a block file.
func (c *Catalog) Checkpoint(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	infos := make([]storage.TableInfo, 0, len(c.tables))
	for _, name := range c.sortedKeysLocked() {
		tbl := c.tables[name]
		colNames := make([]string, len(tbl.Columns))
		for i, col := range tbl.Columns {
			colNames[i] = col.Name
		}
		infos = append(infos, storage.TableInfo{Name: tbl.Name, ColumnNames: colNames, Data: tbl.Data})
	}
	return storage.WriteDatabase(path, c.id, infos)
}

func (c *Catalog) sortedKeysLocked() []string {
	keys := make([]string, 0, len(c.tables))
	for k := range c.tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Load reads a checkpointed database file into a fresh catalog.
func Load(path string) (*Catalog, error) {
	dbID, infos, err := storage.ReadDatabase(path)
	if err != nil {
		return nil, err
	}
	c := &Catalog{id: dbID, tables: make(map[string]*Table)}
	for _, info := range infos {
		cols := make([]Column, len(info.ColumnNames))
		typs := info.Data.Types()
		for i, name := range info.ColumnNames {
			cols[i] = Column{Name: name, Type: typs[i]}
		}
		c.tables[strings.ToLower(info.Name)] = &Table{Name: info.Name, Columns: cols, Data: info.Data}
	}
	zap.S().Infow("loaded database", "path", path, "tables", len(infos))
	return c, nil
}
