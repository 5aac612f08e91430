package runtime

import (
	"reflect"
	"testing"
	"time"
)

func TestRunUntilIdleOrder(t *testing.T) {
	q := NewDefaultJobQueue()
	var order []string

	q.Enqueue(func() {
		order = append(order, "a")
		q.Enqueue(func() { order = append(order, "c") })
	})
	q.Enqueue(func() { order = append(order, "b") })

	if q.Pending() != 2 {
		t.Errorf("Expected 2 pending jobs, got %d", q.Pending())
	}
	if !q.RunUntilIdle() {
		t.Errorf("Expected RunUntilIdle to report work")
	}
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(order, want) {
		t.Errorf("Expected order %v, got %v", want, order)
	}
	if q.RunUntilIdle() {
		t.Errorf("Expected an idle queue to report no work")
	}
}

func TestJobsDoNotInterleave(t *testing.T) {
	q := NewDefaultJobQueue()
	depth := 0
	maxDepth := 0
	job := func() {
		depth++
		if depth > maxDepth {
			maxDepth = depth
		}
		q.Enqueue(func() {})
		depth--
	}
	for i := 0; i < 5; i++ {
		q.Enqueue(job)
	}
	q.RunUntilIdle()
	if maxDepth != 1 {
		t.Errorf("Expected jobs to run one at a time, saw nesting depth %d", maxDepth)
	}
}

func TestPostFromGoroutine(t *testing.T) {
	q := NewDefaultJobQueue()
	q.BeginExternalOp()
	done := false

	go func() {
		time.Sleep(5 * time.Millisecond)
		q.Post(func() { done = true })
	}()

	for !done {
		q.RunUntilIdle()
		if !done {
			if !q.HasPendingExternalOps() && q.Pending() == 0 {
				t.Fatalf("Lost the posted job")
			}
			q.WaitForExternalOp()
		}
	}
	if q.HasPendingExternalOps() {
		t.Errorf("Expected no pending external ops after Post")
	}
}

func TestReset(t *testing.T) {
	q := NewDefaultJobQueue()
	q.Enqueue(func() { t.Errorf("Reset job should not run") })
	q.BeginExternalOp()
	q.Reset()
	if q.RunUntilIdle() {
		t.Errorf("Expected no work after Reset")
	}
	if q.HasPendingExternalOps() {
		t.Errorf("Expected Reset to clear external ops")
	}
}
