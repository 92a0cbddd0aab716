// Package scheduler holds the in-memory priority queue and concurrency
// limiter that decides which queued job runs next. It never touches the
// store directly — callers persist status transitions through store.Store
// and mirror queue membership here.
package scheduler

import (
	"container/heap"
	"sync"
	"time"
)

// item is one queued job's position in the heap.
type item struct {
	jobID     string
	priority  int
	createdAt time.Time
	index     int
}

// pqueue orders by (priority asc, createdAt asc), matching admission order.
type pqueue []*item

func (q pqueue) Len() int { return len(q) }

func (q pqueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].createdAt.Before(q[j].createdAt)
}

func (q pqueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *pqueue) Push(x any) {
	it := x.(*item)
	it.index = len(*q)
	*q = append(*q, it)
}

func (q *pqueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*q = old[:n-1]
	return it
}

// Scheduler is a thread-safe priority queue with an admission limiter.
type Scheduler struct {
	mu  sync.Mutex
	pq  pqueue
	idx map[string]*item

	maxConcurrent int
	running       map[string]struct{}
}

// New creates a Scheduler that admits at most maxConcurrent running jobs at once.
func New(maxConcurrent int) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Scheduler{
		idx:           make(map[string]*item),
		running:       make(map[string]struct{}),
		maxConcurrent: maxConcurrent,
	}
}

// Enqueue adds jobID to the pending queue. A job already queued or running
// is left untouched.
func (s *Scheduler) Enqueue(jobID string, priority int, createdAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.idx[jobID]; ok {
		return
	}
	if _, ok := s.running[jobID]; ok {
		return
	}
	it := &item{jobID: jobID, priority: priority, createdAt: createdAt}
	heap.Push(&s.pq, it)
	s.idx[jobID] = it
}

// SetPriority updates a still-queued job's priority and restores heap order.
// Reports false if the job is not currently queued (e.g. already running).
func (s *Scheduler) SetPriority(jobID string, priority int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.idx[jobID]
	if !ok {
		return false
	}
	it.priority = priority
	heap.Fix(&s.pq, it.index)
	return true
}

// ReorderBatch assigns priority by position (1-based, capped at 10) to every
// job in jobIDs, in the order given. It validates every id is currently
// queued before mutating any of them, so a single unknown or already-running
// id rejects the whole batch with no partial effect.
func (s *Scheduler) ReorderBatch(jobIDs []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]*item, len(jobIDs))
	for i, id := range jobIDs {
		it, ok := s.idx[id]
		if !ok {
			return false
		}
		items[i] = it
	}

	for i, it := range items {
		it.priority = min(i+1, 10)
		heap.Fix(&s.pq, it.index)
	}
	return true
}

// Cancel removes jobID from the pending queue, if present. Reports whether
// it was found and removed; a running job is not affected — cancellation of
// a running job is the pipeline executor's concern.
func (s *Scheduler) Cancel(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.idx[jobID]
	if !ok {
		return false
	}
	heap.Remove(&s.pq, it.index)
	delete(s.idx, jobID)
	return true
}

// TryAdmit pops the highest-priority queued job and marks it running, but
// only if fewer than maxConcurrent jobs are currently running. Reports
// ok=false (and leaves the queue untouched) when the queue is empty or the
// limiter is saturated.
func (s *Scheduler) TryAdmit() (jobID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.running) >= s.maxConcurrent || s.pq.Len() == 0 {
		return "", false
	}
	it := heap.Pop(&s.pq).(*item)
	delete(s.idx, it.jobID)
	s.running[it.jobID] = struct{}{}
	return it.jobID, true
}

// Release marks jobID no longer running, freeing an admission slot.
func (s *Scheduler) Release(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, jobID)
}

// SetMaxConcurrent changes the admission limit; it takes effect on the next
// TryAdmit call and never preempts already-running jobs.
func (s *Scheduler) SetMaxConcurrent(n int) {
	if n < 1 {
		n = 1
	}
	s.mu.Lock()
	s.maxConcurrent = n
	s.mu.Unlock()
}

// RunningCount reports how many jobs are currently admitted.
func (s *Scheduler) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// QueuedIDs returns queued job ids in current admission order, without
// dequeuing them. Used to report queue_position to API callers.
func (s *Scheduler) QueuedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make(pqueue, len(s.pq))
	copy(cp, s.pq)
	heap.Init(&cp)

	out := make([]string, 0, len(cp))
	for cp.Len() > 0 {
		it := heap.Pop(&cp).(*item)
		out = append(out, it.jobID)
	}
	return out
}
