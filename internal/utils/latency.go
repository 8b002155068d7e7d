package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps a bounded ring of recent analysis durations so the
// runner can report percentile latency without unbounded growth.
type LatencyTracker struct {
	mu    sync.RWMutex
	ring  []time.Duration
	next  int
	count int
}

// NewLatencyTracker creates a tracker holding up to capacity samples; older
// samples are overwritten once the ring is full.
func NewLatencyTracker(capacity int) *LatencyTracker {
	if capacity <= 0 {
		capacity = 512
	}
	return &LatencyTracker{ring: make([]time.Duration, capacity)}
}

// Observe records one analysis duration.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ring[l.next] = d
	l.next = (l.next + 1) % len(l.ring)
	if l.count < len(l.ring) {
		l.count++
	}
}

// Count returns the number of samples currently held.
func (l *LatencyTracker) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Percentile returns the p-th percentile (0-100) of the held samples, or
// zero when nothing has been observed yet.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.RLock()
	sorted := make([]time.Duration, l.count)
	copy(sorted, l.ring[:l.count])
	l.mu.RUnlock()

	if len(sorted) == 0 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	idx := int((p / 100.0) * float64(len(sorted)-1))
	return sorted[idx]
}
