package services

import (
	"sync"
	"time"
)

// purgeInterval bounds how often the opportunistic purge may run.
const purgeInterval = 10 * time.Minute

// WindowCounter counts occurrences per key in hour buckets so that the sum
// over the trailing window can be read cheaply. Buckets are created lazily on
// first increment and garbage-collected by the opportunistic purge; there is
// no explicit destroy. Safe for arbitrary concurrent callers.
type WindowCounter struct {
	mu        sync.Mutex
	buckets   map[string]map[int64]int // key -> bucket start (unix) -> count
	window    time.Duration
	lastPurge time.Time
	nowFn     func() time.Time
}

// NewWindowCounter creates a counter whose purge horizon is windowHours+1.
func NewWindowCounter(windowHours int) *WindowCounter {
	if windowHours <= 0 {
		windowHours = 1
	}
	return &WindowCounter{
		buckets: make(map[string]map[int64]int),
		window:  time.Duration(windowHours) * time.Hour,
		nowFn:   time.Now,
	}
}

// Increment adds 1 to the current hour bucket for key.
func (w *WindowCounter) Increment(key string) {
	if key == "" {
		return
	}
	now := w.nowFn()
	bucket := now.Truncate(time.Hour).Unix()

	w.mu.Lock()
	defer w.mu.Unlock()

	counts, ok := w.buckets[key]
	if !ok {
		counts = make(map[int64]int)
		w.buckets[key] = counts
	}
	counts[bucket]++

	w.purgeLocked(now)
}

// CountInWindow returns the sum of bucket counts for key whose bucket start
// falls after now minus windowHours. Unknown keys yield 0.
func (w *WindowCounter) CountInWindow(key string, windowHours int) int {
	if windowHours <= 0 {
		windowHours = 1
	}
	now := w.nowFn()
	cutoff := now.Add(-time.Duration(windowHours) * time.Hour).Unix()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.purgeLocked(now)

	total := 0
	for bucket, count := range w.buckets[key] {
		if bucket > cutoff {
			total += count
		}
	}
	return total
}

// Purge drops buckets older than the window plus one hour. Called
// opportunistically from Increment/CountInWindow at most once per
// purgeInterval, and from the maintenance scheduler.
func (w *WindowCounter) Purge() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastPurge = time.Time{}
	w.purgeLocked(w.nowFn())
}

func (w *WindowCounter) purgeLocked(now time.Time) {
	if now.Sub(w.lastPurge) < purgeInterval {
		return
	}
	w.lastPurge = now

	cutoff := now.Add(-(w.window + time.Hour)).Unix()
	for key, counts := range w.buckets {
		for bucket := range counts {
			if bucket < cutoff {
				delete(counts, bucket)
			}
		}
		if len(counts) == 0 {
			delete(w.buckets, key)
		}
	}
}

// Reset discards all counters.
func (w *WindowCounter) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buckets = make(map[string]map[int64]int)
}

// TrackedKeys returns how many keys currently hold buckets.
func (w *WindowCounter) TrackedKeys() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buckets)
}
