package runtime

import "sync"

// Job is one unit of queued work. Jobs always run to completion before the
// next job starts.
type Job func()

// JobQueue provides the job-queue environment for an agent.
// This interface allows plugging in different scheduling strategies
// (Go-based, event loop, deterministic testing, etc.)
type JobQueue interface {
	// Enqueue adds a job to the back of the queue.
	// Jobs are used for promise reactions and module evaluation steps.
	Enqueue(job Job)

	// RunUntilIdle executes jobs in FIFO order until the queue is empty.
	// Jobs enqueued while draining run after the ones already queued.
	// Returns true if any work was done.
	RunUntilIdle() bool

	// Pending reports the number of queued jobs.
	Pending() int

	// Reset clears all pending jobs (useful for testing)
	Reset()

	// BeginExternalOp marks the start of an external async operation (timers, module fetches, etc.)
	// This allows the agent to wait for external operations to complete
	BeginExternalOp()

	// EndExternalOp marks the completion of an external async operation
	EndExternalOp()

	// HasPendingExternalOps returns true if there are pending external operations
	HasPendingExternalOps() bool

	// WaitForExternalOp blocks until at least one external operation completes
	// or posts work. Returns immediately if there are no pending external operations.
	WaitForExternalOp()

	// Post hands a job over from another goroutine. It ends one external
	// operation and enqueues job atomically, so a waiter always sees the job.
	Post(job Job)
}

// DefaultJobQueue is a simple Go-based FIFO job queue
type DefaultJobQueue struct {
	jobs            []Job
	mu              sync.Mutex
	pendingExternal int
	externalCond    *sync.Cond
}

// NewDefaultJobQueue creates a new default job queue
func NewDefaultJobQueue() *DefaultJobQueue {
	q := &DefaultJobQueue{
		jobs: make([]Job, 0, 16),
	}
	q.externalCond = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds a job to the back of the queue
func (q *DefaultJobQueue) Enqueue(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	q.externalCond.Broadcast()
}

// RunUntilIdle executes pending jobs until none are left.
// Returns true if any jobs were executed
func (q *DefaultJobQueue) RunUntilIdle() bool {
	ran := false
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			q.mu.Unlock()
			return ran
		}
		job := q.jobs[0]
		q.jobs[0] = nil
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		// A job never interleaves with another: the next one is only
		// dequeued after this call returns.
		job()
		ran = true
	}
}

// Pending returns the number of queued jobs
func (q *DefaultJobQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Reset clears all pending jobs
func (q *DefaultJobQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = make([]Job, 0, 16)
	q.pendingExternal = 0
}

// BeginExternalOp marks the start of an external async operation
func (q *DefaultJobQueue) BeginExternalOp() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pendingExternal++
}

// EndExternalOp marks the completion of an external async operation
func (q *DefaultJobQueue) EndExternalOp() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pendingExternal--
	// Signal any waiters that an operation completed
	q.externalCond.Broadcast()
}

// HasPendingExternalOps returns true if there are pending external operations
func (q *DefaultJobQueue) HasPendingExternalOps() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pendingExternal > 0
}

// WaitForExternalOp blocks until an external operation completes or a job
// is posted
func (q *DefaultJobQueue) WaitForExternalOp() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pendingExternal > 0 && len(q.jobs) == 0 {
		q.externalCond.Wait()
	}
}

// Post enqueues job and ends one external operation
func (q *DefaultJobQueue) Post(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	q.pendingExternal--
	q.externalCond.Broadcast()
}
