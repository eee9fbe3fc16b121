package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsJobsInSubmissionOrder(t *testing.T) {
	p := newPool(1, 8)
	defer p.close(time.Second)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		p.submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	for i, got := range order {
		if got != i {
			t.Fatalf("order[%d] = %d, want %d", i, got, i)
		}
	}
}

func TestPoolRunsWorkersConcurrently(t *testing.T) {
	p := newPool(2, 4)
	started := make(chan struct{}, 2)
	block := make(chan struct{})
	for i := 0; i < 2; i++ {
		p.submit(func() {
			started <- struct{}{}
			<-block
		})
	}
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatalf("job %d never started; pool narrower than 2 workers", i)
		}
	}
	close(block)
	p.close(time.Second)
}

func TestPoolCloseDrainsQueuedJobs(t *testing.T) {
	p := newPool(1, 8)
	var done atomic.Int32
	for i := 0; i < 3; i++ {
		p.submit(func() {
			time.Sleep(10 * time.Millisecond)
			done.Add(1)
		})
	}
	p.close(5 * time.Second)
	if got := done.Load(); got != 3 {
		t.Fatalf("drained jobs = %d, want 3", got)
	}
}

func TestPoolCloseGivesUpOnStuckJob(t *testing.T) {
	p := newPool(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})
	p.submit(func() {
		close(started)
		<-release
	})
	<-started

	begin := time.Now()
	p.close(50 * time.Millisecond)
	if elapsed := time.Since(begin); elapsed > 2*time.Second {
		t.Fatalf("close blocked %v on a stuck job, want the timeout to cut it loose", elapsed)
	}
	close(release)
}

func TestPoolCloseTwice(t *testing.T) {
	p := newPool(1, 1)
	p.close(time.Second)
	p.close(time.Second)
}
