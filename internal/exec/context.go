package exec

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/expr"
	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// MemoryTracker enforces the soft memory limit: operators reserve estimated
// bytes before materializing and release them when done. A limit of zero
// disables enforcement.
type MemoryTracker struct {
	mu    sync.Mutex
	used  int64
	limit int64
}

// NewMemoryTracker creates a tracker with the given byte limit.
func NewMemoryTracker(limit int64) *MemoryTracker {
	return &MemoryTracker{limit: limit}
}

// Reserve claims bytes, failing with OutOfMemory past the limit.
func (m *MemoryTracker) Reserve(bytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.limit > 0 && m.used+bytes > m.limit {
		return errorx.OutOfMemoryf("memory limit %d exceeded reserving %d (in use %d)", m.limit, bytes, m.used)
	}
	m.used += bytes
	return nil
}

// Release returns bytes to the tracker.
func (m *MemoryTracker) Release(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.used -= bytes
	if m.used < 0 {
		m.used = 0
	}
}

// Used reports the bytes currently reserved.
func (m *MemoryTracker) Used() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}

// QueryContext is the per-query execution state threaded through every
// operator: worker configuration, the cancellation flag, the first-error
// slot, the CTE store, prepared-statement parameters, and the memory
// tracker.
type QueryContext struct {
	Threads    int
	MorselSize int
	Params     []types.Value

	Memory *MemoryTracker

	// Subquery is the engine's subplan executor, installed before open.
	Subquery expr.SubqueryExecutor

	cancelled atomic.Bool
	firstErr  atomic.Error

	cteMu  sync.RWMutex
	ctes   map[string][]*vector.DataChunk
	exprMu sync.Mutex
	exprCtx *expr.Context
}

// NewQueryContext creates a context for one query execution.
func NewQueryContext(threads, morselSize int, memoryLimit int64) *QueryContext {
	if threads < 1 {
		threads = 1
	}
	if morselSize < vector.Size {
		morselSize = DefaultMorselSize
	}
	return &QueryContext{
		Threads:    threads,
		MorselSize: morselSize,
		Memory:     NewMemoryTracker(memoryLimit),
		ctes:       make(map[string][]*vector.DataChunk),
	}
}

// Cancel sets the cancellation flag; running morsel tasks observe it
// between chunks.
func (qc *QueryContext) Cancel() {
	qc.cancelled.Store(true)
}

// Cancelled reports whether the query was cancelled.
func (qc *QueryContext) Cancelled() bool {
	return qc.cancelled.Load()
}

// CheckCancelled returns the Cancelled error when the flag is set; called
// at least once per vector of rows processed.
func (qc *QueryContext) CheckCancelled() error {
	if qc.cancelled.Load() {
		return errorx.Cancelledf("query cancelled")
	}
	return nil
}

// RecordError stores the first non-cancellation error and cancels sibling
// tasks, so the caller sees the root cause rather than the cascade.
func (qc *QueryContext) RecordError(err error) {
	if err == nil {
		return
	}
	if !errorx.IsCancelled(err) {
		_ = qc.firstErr.CompareAndSwap(nil, err)
	}
	qc.cancelled.Store(true)
}

// FirstError returns the recorded root-cause error, or the given fallback.
func (qc *QueryContext) FirstError(fallback error) error {
	if err := qc.firstErr.Load(); err != nil {
		return err
	}
	return fallback
}

// StoreCTE saves the materialized chunks of a CTE.
func (qc *QueryContext) StoreCTE(name string, chunks []*vector.DataChunk) {
	qc.cteMu.Lock()
	defer qc.cteMu.Unlock()
	qc.ctes[name] = chunks
}

// LoadCTE retrieves a materialized CTE.
func (qc *QueryContext) LoadCTE(name string) ([]*vector.DataChunk, bool) {
	qc.cteMu.RLock()
	defer qc.cteMu.RUnlock()
	chunks, ok := qc.ctes[name]
	return chunks, ok
}

// ExprContext returns the expression evaluation context bound to this
// query. Callers on parallel paths get independent contexts via
// NewExprContext to avoid sharing the subquery cache across workers.
func (qc *QueryContext) ExprContext() *expr.Context {
	qc.exprMu.Lock()
	defer qc.exprMu.Unlock()
	if qc.exprCtx == nil {
		qc.exprCtx = qc.NewExprContext()
	}
	return qc.exprCtx
}

// NewExprContext builds a fresh expression context for a worker.
func (qc *QueryContext) NewExprContext() *expr.Context {
	ctx := expr.NewContext()
	ctx.Params = qc.Params
	ctx.Subquery = qc.Subquery
	ctx.Cancelled = qc.Cancelled
	return ctx
}
