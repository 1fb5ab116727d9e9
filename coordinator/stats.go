package coordinator

import (
	"sync"
	"sync/atomic"
	"time"
)

// EngineStats is a read-only snapshot of one engine's rolling counters.
type EngineStats struct {
	SuccessCount   int64
	FailureCount   int64
	AverageLatency time.Duration
}

// engineCounters is append-mostly shared state updated on the hot path, so
// increments are atomic rather than lock-guarded.
type engineCounters struct {
	success      atomic.Int64
	failure      atomic.Int64
	latencyNanos atomic.Int64
	latencyCount atomic.Int64
}

type statsBook struct {
	mu      sync.Mutex
	engines map[string]*engineCounters
}

func newStatsBook() *statsBook {
	return &statsBook{engines: make(map[string]*engineCounters)}
}

func (b *statsBook) counters(engine string) *engineCounters {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.engines[engine]
	if !ok {
		c = &engineCounters{}
		b.engines[engine] = c
	}
	return c
}

func (b *statsBook) record(engine string, ok bool, d time.Duration) {
	c := b.counters(engine)
	if ok {
		c.success.Add(1)
	} else {
		c.failure.Add(1)
	}
	c.latencyNanos.Add(int64(d))
	c.latencyCount.Add(1)
}

func (b *statsBook) snapshot() map[string]EngineStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]EngineStats, len(b.engines))
	for name, c := range b.engines {
		s := EngineStats{
			SuccessCount: c.success.Load(),
			FailureCount: c.failure.Load(),
		}
		if n := c.latencyCount.Load(); n > 0 {
			s.AverageLatency = time.Duration(c.latencyNanos.Load() / n)
		}
		out[name] = s
	}
	return out
}
