package core

import (
	"fmt"
	"sync"
)

// IterationLimiter enforces a maximum number of entries per node within one
// graph invocation. Counts survive suspension through Snapshot/Restore.
type IterationLimiter struct {
	max    int
	counts map[string]int
	mu     sync.Mutex
}

// NewIterationLimiter creates a limiter allowing max entries per node.
// If max == 0, unlimited entries are allowed.
func NewIterationLimiter(max int) *IterationLimiter {
	return &IterationLimiter{max: max, counts: map[string]int{}}
}

// RestoreIterationLimiter rebuilds a limiter from a previous snapshot.
func RestoreIterationLimiter(max int, counts map[string]int) *IterationLimiter {
	l := NewIterationLimiter(max)
	for k, v := range counts {
		l.counts[k] = v
	}
	return l
}

// Increment records one more entry into node and returns ErrMaxIterations
// once the limit is exceeded.
func (l *IterationLimiter) Increment(node string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.counts[node]++
	if l.max > 0 && l.counts[node] > l.max {
		return fmt.Errorf("%w: node %s entered %d times (max %d)", ErrMaxIterations, node, l.counts[node], l.max)
	}

	return nil
}

// Count returns how often node has been entered.
func (l *IterationLimiter) Count(node string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.counts[node]
}

// Remaining returns how many entries are left for node before hitting the limit.
func (l *IterationLimiter) Remaining(node string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max == 0 {
		return -1 // unlimited
	}

	return l.max - l.counts[node]
}

// Snapshot returns a copy of the per-node counters.
func (l *IterationLimiter) Snapshot() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]int, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out
}
