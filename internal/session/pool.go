package session

import (
	"sync"
	"time"
)

// pool is a bounded FIFO worker pool. Jobs queue in submission order and
// each worker runs one job to completion at a time.
type pool struct {
	jobs chan func()
	wg   sync.WaitGroup
	once sync.Once
}

func newPool(workers, depth int) *pool {
	if workers < 1 {
		workers = 1
	}
	if depth < 1 {
		depth = 1
	}
	p := &pool{jobs: make(chan func(), depth)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job()
			}
		}()
	}
	return p
}

// submit enqueues a job, blocking when the queue is full.
func (p *pool) submit(job func()) {
	p.jobs <- job
}

// close stops intake and waits up to timeout for queued jobs to drain.
// Jobs still running after the deadline are abandoned to process exit.
func (p *pool) close(timeout time.Duration) {
	p.once.Do(func() { close(p.jobs) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
