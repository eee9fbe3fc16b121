package parallel

import (
	"sync/atomic"
	"testing"
)

func TestForEach_VisitsEveryIndex(t *testing.T) {
	const n = 100
	var seen [n]int32
	ForEach(n, 4, func(i int) {
		atomic.AddInt32(&seen[i], 1)
	})
	for i, c := range seen {
		if c != 1 {
			t.Fatalf("index %d visited %d times, want 1", i, c)
		}
	}
}

func TestForEach_RespectsLimit(t *testing.T) {
	const limit = 3
	var inFlight, peak int32
	ForEach(64, limit, func(i int) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		atomic.AddInt32(&inFlight, -1)
	})
	if peak > limit {
		t.Fatalf("peak concurrency %d exceeds limit %d", peak, limit)
	}
}

func TestForEach_ZeroLength(t *testing.T) {
	called := false
	ForEach(0, 4, func(i int) { called = true })
	if called {
		t.Fatalf("body called for zero length")
	}
}

func TestChunks_CoversRange(t *testing.T) {
	const n = 37
	var seen [n]int32
	Chunks(n, 4, func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
	})
	for i, c := range seen {
		if c != 1 {
			t.Fatalf("index %d covered %d times, want 1", i, c)
		}
	}
}

func TestDefaultLimit_Positive(t *testing.T) {
	if DefaultLimit() < 1 {
		t.Fatalf("DefaultLimit()=%d, want >= 1", DefaultLimit())
	}
}
