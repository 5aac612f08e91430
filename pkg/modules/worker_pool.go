package modules

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// workerPool implements FetchPool. Workers run fetch for each job and
// hand the result to the job's Done callback.
type workerPool struct {
	numWorkers int
	jobQueue   chan *FetchJob
	fetch      func(job *FetchJob, workerID int) *FetchResult

	wg         sync.WaitGroup
	mu         sync.RWMutex // guards stopped against Submit
	stopped    bool
	activeJobs int32 // atomic

	stats      WorkerPoolStats
	statsMutex sync.Mutex
}

// NewWorkerPool starts a pool of config.NumWorkers goroutines that run
// fetch for every submitted job.
func NewWorkerPool(config *LoaderConfig, fetch func(job *FetchJob, workerID int) *FetchResult) FetchPool {
	numWorkers := config.NumWorkers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	wp := &workerPool{
		numWorkers: numWorkers,
		jobQueue:   make(chan *FetchJob, config.JobBufferSize),
		fetch:      fetch,
		stats:      WorkerPoolStats{WorkerCount: numWorkers},
	}
	for i := 0; i < numWorkers; i++ {
		wp.wg.Add(1)
		go wp.run(i)
	}
	return wp
}

// Submit submits a fetch job to the worker pool. It blocks while the job
// buffer is full.
func (wp *workerPool) Submit(job *FetchJob) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return fmt.Errorf("worker pool stopped")
	}
	if job.Timestamp.IsZero() {
		job.Timestamp = time.Now()
	}

	atomic.AddInt32(&wp.activeJobs, 1)
	wp.statsMutex.Lock()
	wp.stats.TotalJobs++
	wp.statsMutex.Unlock()

	wp.jobQueue <- job
	return nil
}

// Shutdown stops the pool after the queued jobs ran.
func (wp *workerPool) Shutdown() error {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return fmt.Errorf("worker pool already stopped")
	}
	wp.stopped = true
	close(wp.jobQueue)
	wp.mu.Unlock()

	wp.wg.Wait()
	return nil
}

// HasActiveJobs returns true if there are jobs in progress
func (wp *workerPool) HasActiveJobs() bool {
	return atomic.LoadInt32(&wp.activeJobs) > 0
}

// GetStats returns current worker pool statistics
func (wp *workerPool) GetStats() WorkerPoolStats {
	wp.statsMutex.Lock()
	defer wp.statsMutex.Unlock()

	stats := wp.stats
	stats.ActiveJobs = int(atomic.LoadInt32(&wp.activeJobs))
	return stats
}

// run is the main worker loop
func (wp *workerPool) run(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		start := time.Now()
		result := wp.fetch(job, id)
		elapsed := time.Since(start)

		wp.statsMutex.Lock()
		if result.Error == nil {
			wp.stats.CompletedJobs++
		} else {
			wp.stats.FailedJobs++
		}
		wp.stats.TotalTime += elapsed
		if done := wp.stats.CompletedJobs + wp.stats.FailedJobs; done > 0 {
			wp.stats.AverageTime = wp.stats.TotalTime / time.Duration(done)
		}
		wp.statsMutex.Unlock()

		atomic.AddInt32(&wp.activeJobs, -1)
		if job.Done != nil {
			job.Done(result)
		}
	}
}
