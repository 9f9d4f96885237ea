package exec

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// task is one unit of scheduled work; it receives the id of the worker
// executing it.
type task func(worker int) error

// scheduler is the work-stealing pool that runs morsel tasks: a global
// deque seeded with submitted tasks plus one deque per worker. Workers pop
// their own deque from the back, refill from the global queue, and steal
// from siblings' fronts when both run dry.
type scheduler struct {
	workers int

	mu     sync.Mutex
	global []task
	local  [][]task
}

func newScheduler(workers int) *scheduler {
	if workers < 1 {
		workers = 1
	}
	return &scheduler{
		workers: workers,
		local:   make([][]task, workers),
	}
}

// submit queues a task before run.
func (s *scheduler) submit(t task) {
	s.global = append(s.global, t)
}

// next pops work for a worker: own deque back first, then a global batch,
// then a steal from the front of the longest sibling deque.
func (s *scheduler) next(worker int) (task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q := s.local[worker]; len(q) > 0 {
		t := q[len(q)-1]
		s.local[worker] = q[:len(q)-1]
		return t, true
	}
	if len(s.global) > 0 {
		// Move a batch into the local deque to amortize the lock.
		batch := len(s.global)/s.workers + 1
		if batch > len(s.global) {
			batch = len(s.global)
		}
		s.local[worker] = append(s.local[worker], s.global[:batch]...)
		s.global = s.global[batch:]
		q := s.local[worker]
		t := q[len(q)-1]
		s.local[worker] = q[:len(q)-1]
		return t, true
	}
	// Steal from the richest sibling.
	victim, best := -1, 0
	for i, q := range s.local {
		if i != worker && len(q) > best {
			victim, best = i, len(q)
		}
	}
	if victim >= 0 {
		t := s.local[victim][0]
		s.local[victim] = s.local[victim][1:]
		return t, true
	}
	return nil, false
}

// run executes all submitted tasks across the pool and blocks until done.
// The first failure is recorded on the context, which cancels siblings.
func (s *scheduler) run(qc *QueryContext) error {
	var g errgroup.Group
	for w := 0; w < s.workers; w++ {
		w := w
		g.Go(func() error {
			for {
				if err := qc.CheckCancelled(); err != nil {
					return err
				}
				t, ok := s.next(w)
				if !ok {
					return nil
				}
				if err := t(w); err != nil {
					qc.RecordError(err)
					return err
				}
			}
		})
	}
	return g.Wait()
}
