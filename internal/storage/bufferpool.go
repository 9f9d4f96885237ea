package storage

import (
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// BlockHandle is one cached block chain: refcounted, loadable, evictable.
type BlockHandle struct {
	ID   uint64
	pins atomic.Int32

	mu     sync.Mutex
	loaded bool
	data   []byte
}

// Pinned reports whether any reader holds the handle.
func (h *BlockHandle) Pinned() bool { return h.pins.Load() > 0 }

// BufferPool caches block payloads by id. Lookups take the read lock;
// eviction is a single-threaded sweep under the write lock, so the hot path
// never blocks on eviction bookkeeping.
type BufferPool struct {
	mu      sync.RWMutex
	reader  *BlockReader
	handles map[uint64]*BlockHandle
	memory  atomic.Int64
	limit   int64
}

// NewBufferPool creates a pool over a block reader. A limit of 0 disables
// eviction pressure.
func NewBufferPool(reader *BlockReader, limit int64) *BufferPool {
	return &BufferPool{
		reader:  reader,
		handles: make(map[uint64]*BlockHandle),
		limit:   limit,
	}
}

// Pin returns the payload of the block chain at head, loading it on first
// use, and holds a reference until Unpin.
func (p *BufferPool) Pin(head uint64) ([]byte, error) {
	p.mu.RLock()
	h, ok := p.handles[head]
	p.mu.RUnlock()
	if !ok {
		p.mu.Lock()
		if h, ok = p.handles[head]; !ok {
			h = &BlockHandle{ID: head}
			p.handles[head] = h
		}
		p.mu.Unlock()
	}
	h.pins.Inc()
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.loaded {
		data, err := p.reader.ReadChain(head)
		if err != nil {
			h.pins.Dec()
			return nil, err
		}
		h.data = data
		h.loaded = true
		p.memory.Add(int64(len(data)))
		p.maybeEvict()
	}
	return h.data, nil
}

// Unpin releases a reference taken by Pin.
func (p *BufferPool) Unpin(head uint64) {
	p.mu.RLock()
	h, ok := p.handles[head]
	p.mu.RUnlock()
	if ok {
		h.pins.Dec()
	}
}

// MemoryUsed returns the bytes held by loaded handles.
func (p *BufferPool) MemoryUsed() int64 { return p.memory.Load() }

// maybeEvict sweeps unpinned handles while over the limit. Runs on the
// loading goroutine; the write lock keeps the sweep single-threaded.
func (p *BufferPool) maybeEvict() {
	if p.limit <= 0 || p.memory.Load() <= p.limit {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, h := range p.handles {
		if p.memory.Load() <= p.limit {
			break
		}
		if h.Pinned() {
			continue
		}
		h.mu.Lock()
		if h.loaded && !h.Pinned() {
			p.memory.Sub(int64(len(h.data)))
			h.data = nil
			h.loaded = false
			zap.S().Debugw("evicted block chain", "block", id)
		}
		h.mu.Unlock()
	}
}
