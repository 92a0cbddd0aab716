package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/lmsilo/transcribe-backend/scheduler"
	"github.com/lmsilo/transcribe-backend/store"
)

// Runner drains admitted jobs off a scheduler and drives each through an
// Executor on its own goroutine, releasing the admission slot when the run
// ends so the next queued job can be picked up.
type Runner struct {
	sched *scheduler.Scheduler
	store store.Store
	exec  *Executor

	wake chan struct{}

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewRunner wires a Runner around an already-constructed Scheduler/Executor.
func NewRunner(sched *scheduler.Scheduler, st store.Store, exec *Executor) *Runner {
	return &Runner{
		sched:   sched,
		store:   st,
		exec:    exec,
		wake:    make(chan struct{}, 1),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Start runs the admission loop until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	go r.loop(ctx)
}

func (r *Runner) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.wake:
		}
		for {
			jobID, ok := r.sched.TryAdmit()
			if !ok {
				break
			}
			r.runOne(ctx, jobID)
		}
	}
}

func (r *Runner) runOne(parent context.Context, jobID string) {
	jobCtx, cancel := context.WithCancel(parent)
	r.mu.Lock()
	r.cancels[jobID] = cancel
	r.mu.Unlock()

	go func() {
		defer func() {
			r.mu.Lock()
			delete(r.cancels, jobID)
			r.mu.Unlock()
			cancel()
			r.sched.Release(jobID)
			r.notify()
		}()
		_ = r.exec.Run(jobCtx, jobID)
	}()
}

// Submit enqueues jobID at priority and wakes the admission loop.
func (r *Runner) Submit(jobID string, priority int, createdAt time.Time) {
	r.sched.Enqueue(jobID, priority, createdAt)
	r.notify()
}

// Reorder changes a still-queued job's priority, returning false if the job
// is already running or unknown to the scheduler.
func (r *Runner) Reorder(jobID string, priority int) bool {
	ok := r.sched.SetPriority(jobID, priority)
	if ok {
		r.notify()
	}
	return ok
}

// ReorderBatch assigns priority by position to every job in jobIDs,
// atomically: if any id is not currently queued, none of them are touched.
func (r *Runner) ReorderBatch(jobIDs []string) bool {
	ok := r.sched.ReorderBatch(jobIDs)
	if ok {
		r.notify()
	}
	return ok
}

// Cancel stops jobID: if it is still queued it is dequeued directly; if it
// is running, its context is cancelled so the executor observes the request
// at the next stage boundary or adapter checkpoint.
func (r *Runner) Cancel(jobID string) (wasQueued, wasRunning bool) {
	wasQueued = r.sched.Cancel(jobID)

	r.mu.Lock()
	cancel, running := r.cancels[jobID]
	r.mu.Unlock()
	if running {
		cancel()
	}
	return wasQueued, running
}

// QueuedIDs returns queued job ids in current admission order.
func (r *Runner) QueuedIDs() []string {
	return r.sched.QueuedIDs()
}

// RunningCount reports how many jobs are currently admitted and running.
func (r *Runner) RunningCount() int {
	return r.sched.RunningCount()
}

func (r *Runner) notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}
