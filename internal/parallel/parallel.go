package parallel

import (
	"runtime"
	"sync"

	"github.com/klauspost/cpuid/v2"
)

// DefaultLimit picks a goroutine limit for CPU-bound fan-out. Physical
// cores beat logical ones for dense float math; hyperthread siblings
// contend on the same FPU ports.
func DefaultLimit() int {
	if n := cpuid.CPU.PhysicalCores; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// ForEach executes body(i) for i in [0, length) with at most limit
// concurrent goroutines and waits for all of them to finish.
func ForEach(length, limit int, body func(i int)) {
	if length <= 0 {
		return
	}
	if limit <= 0 {
		limit = 1
	}
	if limit > length {
		limit = length
	}

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	wg.Add(length)

	for i := 0; i < length; i++ {
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			body(i)
		}(i)
	}

	wg.Wait()
}

// Chunks splits [0, n) into at most limit contiguous half-open ranges and
// runs body(start, end) for each range concurrently. Useful when per-item
// work is too small to amortize a goroutine.
func Chunks(n, limit int, body func(start, end int)) {
	if n <= 0 {
		return
	}
	if limit <= 0 {
		limit = 1
	}
	if limit > n {
		limit = n
	}
	size := (n + limit - 1) / limit

	var wg sync.WaitGroup
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			body(start, end)
		}(start, end)
	}
	wg.Wait()
}
