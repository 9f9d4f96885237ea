package exec

import (
	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
)

// joinPartitions is the fan-out of the partitioned hash table; partition
// selection is the low 8 bits of the key hash.
const joinPartitions = 256

// buildRow is one build-side tuple: hash, key values, and the projected
// payload columns.
type buildRow struct {
	hash    uint64
	keys    []types.Value
	payload []types.Value
	// matched is set during the probe phase for RIGHT/FULL joins. The
	// probe driver is single-threaded, so no atomics are needed.
	matched bool
}

// joinPartition is one read-only open-addressed table over a contiguous
// row slice. Rows with equal hashes chain through next.
type joinPartition struct {
	rows    []buildRow
	buckets []int32
	next    []int32
	mask    uint64
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// build freezes the partition: allocate buckets at twice the row count and
// insert every row. After build returns, the partition is read-only.
func (p *joinPartition) build() {
	if len(p.rows) == 0 {
		return
	}
	size := nextPow2(len(p.rows) * 2)
	p.buckets = make([]int32, size)
	for i := range p.buckets {
		p.buckets[i] = -1
	}
	p.next = make([]int32, len(p.rows))
	for i := range p.next {
		p.next[i] = -1
	}
	p.mask = uint64(size - 1)
	for i := range p.rows {
		h := p.rows[i].hash
		idx := h & p.mask
		for p.buckets[idx] >= 0 && p.rows[p.buckets[idx]].hash != h {
			idx = (idx + 1) & p.mask
		}
		if head := p.buckets[idx]; head >= 0 {
			p.next[i] = head
		}
		p.buckets[idx] = int32(i)
	}
}

// lookup returns the index of the first row with the given hash, or -1.
// Further equal-hash rows chain via next.
func (p *joinPartition) lookup(h uint64) int32 {
	if len(p.buckets) == 0 {
		return -1
	}
	idx := h & p.mask
	for {
		head := p.buckets[idx]
		if head < 0 {
			return -1
		}
		if p.rows[head].hash == h {
			return head
		}
		idx = (idx + 1) & p.mask
	}
}

// joinTable is the 256-way partitioned hash table. Builders append into
// per-thread per-partition buffers without contention; freeze concatenates
// each partition single-writer and publishes the read-only result.
type joinTable struct {
	// perWorker[worker][partition] holds pre-partitioned build buffers.
	perWorker  [][]([]buildRow)
	partitions [joinPartitions]joinPartition
	frozen     bool
	rowBytes   int64
}

func newJoinTable(workers int) *joinTable {
	per := make([][]([]buildRow), workers)
	for i := range per {
		per[i] = make([][]buildRow, joinPartitions)
	}
	return &joinTable{perWorker: per}
}

// add appends a build row into the worker's buffer for the row's
// partition. Safe without locks: each worker owns its buffer set.
func (t *joinTable) add(worker int, row buildRow) error {
	if t.frozen {
		return errorx.Internalf("insert into frozen join table")
	}
	part := row.hash & (joinPartitions - 1)
	t.perWorker[worker][part] = append(t.perWorker[worker][part], row)
	return nil
}

// freeze concatenates the per-worker buffers partition by partition and
// builds each partition's open-addressed index. After freeze the table is
// read-only for the probe phase.
func (t *joinTable) freeze() {
	for part := 0; part < joinPartitions; part++ {
		total := 0
		for _, bufs := range t.perWorker {
			total += len(bufs[part])
		}
		if total == 0 {
			continue
		}
		rows := make([]buildRow, 0, total)
		for _, bufs := range t.perWorker {
			rows = append(rows, bufs[part]...)
		}
		t.partitions[part].rows = rows
		t.partitions[part].build()
	}
	t.perWorker = nil
	t.frozen = true
}

// probe walks the matching build rows for a key hash, calling visit for
// each row whose keys compare equal.
func (t *joinTable) probe(h uint64, keys []types.Value, visit func(row *buildRow)) {
	part := &t.partitions[h&(joinPartitions-1)]
	idx := part.lookup(h)
	for idx >= 0 {
		row := &part.rows[idx]
		if keysEqual(row.keys, keys) {
			visit(row)
		}
		idx = part.next[idx]
	}
}

// eachRow visits every build row; the right/full finalize pass.
func (t *joinTable) eachRow(visit func(row *buildRow) error) error {
	for part := range t.partitions {
		rows := t.partitions[part].rows
		for i := range rows {
			if err := visit(&rows[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// size returns the total build row count.
func (t *joinTable) size() int {
	n := 0
	for part := range t.partitions {
		n += len(t.partitions[part].rows)
	}
	return n
}
