package modules

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestWorkerPoolRunsJobs(t *testing.T) {
	config := DefaultLoaderConfig()
	config.NumWorkers = 3

	pool := NewWorkerPool(config, func(job *FetchJob, workerID int) *FetchResult {
		if job.Specifier == "bad" {
			return &FetchResult{Error: fmt.Errorf("cannot fetch %s", job.Specifier), WorkerID: workerID}
		}
		return &FetchResult{
			Record:   &SourceRecord{Specifier: job.Specifier, State: SourceFetched},
			WorkerID: workerID,
		}
	})

	var mu sync.Mutex
	var wg sync.WaitGroup
	results := make(map[string]*FetchResult)
	for _, spec := range []string{"a", "b", "c", "bad"} {
		wg.Add(1)
		err := pool.Submit(&FetchJob{Specifier: spec, Done: func(r *FetchResult) {
			mu.Lock()
			results[spec] = r
			mu.Unlock()
			wg.Done()
		}})
		if err != nil {
			t.Fatalf("Expected successful job submission, got error: %v", err)
		}
	}
	wg.Wait()

	for _, spec := range []string{"a", "b", "c"} {
		r := results[spec]
		if r == nil || r.Error != nil || r.Record.Specifier != spec {
			t.Errorf("Expected a record for %s, got %+v", spec, r)
		}
		if r != nil && (r.WorkerID < 0 || r.WorkerID >= 3) {
			t.Errorf("Expected worker id in [0,3), got %d", r.WorkerID)
		}
	}
	if results["bad"] == nil || results["bad"].Error == nil {
		t.Error("Expected an error result for 'bad'")
	}

	if err := pool.Shutdown(); err != nil {
		t.Errorf("Expected successful shutdown, got error: %v", err)
	}

	stats := pool.GetStats()
	if stats.TotalJobs != 4 || stats.CompletedJobs != 3 || stats.FailedJobs != 1 {
		t.Errorf("Expected 4 jobs (3 ok, 1 failed), got %+v", stats)
	}
	if stats.WorkerCount != 3 {
		t.Errorf("Expected 3 workers, got %d", stats.WorkerCount)
	}
	if pool.HasActiveJobs() {
		t.Error("Expected no active jobs after shutdown")
	}
}

func TestWorkerPoolShutdown(t *testing.T) {
	config := DefaultLoaderConfig()
	config.NumWorkers = 1

	started := make(chan struct{})
	release := make(chan struct{})
	pool := NewWorkerPool(config, func(job *FetchJob, workerID int) *FetchResult {
		close(started)
		<-release
		return &FetchResult{}
	})

	done := make(chan struct{})
	if err := pool.Submit(&FetchJob{Specifier: "slow", Done: func(*FetchResult) { close(done) }}); err != nil {
		t.Fatal(err)
	}
	<-started
	if !pool.HasActiveJobs() {
		t.Error("Expected an active job while the fetch runs")
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	if err := pool.Shutdown(); err != nil {
		t.Errorf("Expected successful shutdown, got error: %v", err)
	}
	select {
	case <-done:
	default:
		t.Error("Expected Shutdown to wait for the running job")
	}

	if err := pool.Submit(&FetchJob{Specifier: "late"}); err == nil {
		t.Error("Expected Submit after Shutdown to fail")
	}
	if err := pool.Shutdown(); err == nil {
		t.Error("Expected second Shutdown to fail")
	}
}
