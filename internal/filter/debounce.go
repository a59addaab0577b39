package filter

import (
	"sync"
	"time"
)

// Debounce suppresses repeat inspections of the same path inside a
// fixed window. It is the only shared mutable state between workers;
// a single mutex keeps the check-and-record atomic.
type Debounce struct {
	mu         sync.Mutex
	window     time.Duration
	maxEntries int
	seen       map[string]time.Time
}

// NewDebounce creates a Debounce. maxEntries bounds the cache; when
// it is full the stalest entry is evicted to admit a new path.
func NewDebounce(window time.Duration, maxEntries int) *Debounce {
	if window <= 0 {
		window = 5 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	return &Debounce{
		window:     window,
		maxEntries: maxEntries,
		seen:       make(map[string]time.Time),
	}
}

// ShouldInspect reports whether path may be inspected now and records
// the acceptance. Rejected paths keep their original timestamp.
func (d *Debounce) ShouldInspect(path string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	last, exists := d.seen[path]
	if exists && now.Sub(last) < d.window {
		return false
	}

	if !exists && len(d.seen) >= d.maxEntries {
		d.evictOldest()
	}
	d.seen[path] = now
	return true
}

// evictOldest removes the entry with the oldest timestamp. The caller
// holds the lock.
func (d *Debounce) evictOldest() {
	var oldestPath string
	var oldestAt time.Time
	for p, at := range d.seen {
		if oldestPath == "" || at.Before(oldestAt) {
			oldestPath = p
			oldestAt = at
		}
	}
	if oldestPath != "" {
		delete(d.seen, oldestPath)
	}
}

// Sweep removes entries older than the window and returns how many
// were dropped. Call this periodically to keep the cache from holding
// paths that will never be seen again.
func (d *Debounce) Sweep(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for p, at := range d.seen {
		if now.Sub(at) >= d.window {
			delete(d.seen, p)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked paths.
func (d *Debounce) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
