// Package buffer keeps a bounded tail of delivered output lines. The
// CLI feeds it from the output consumer and dumps the tail to the log
// when a command fails, so diagnostics survive past the scrollback.
package buffer

import (
	"strings"
	"sync"
)

// Ring is a thread-safe ring buffer of output lines.
type Ring struct {
	mu       sync.RWMutex
	lines    []string
	capacity int
	size     int
	head     int
}

// New creates a ring holding up to capacity lines.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 200
	}
	return &Ring{
		lines:    make([]string, capacity),
		capacity: capacity,
	}
}

// Append adds a line, evicting the oldest when full.
func (r *Ring) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines[r.head] = line
	r.head = (r.head + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// Tail returns the most recent n lines, oldest first. Fewer lines are
// returned when the ring holds fewer than n.
func (r *Ring) Tail(n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	if n > r.size {
		n = r.size
	}

	out := make([]string, n)
	start := (r.head - n + r.capacity) % r.capacity
	for i := 0; i < n; i++ {
		out[i] = r.lines[(start+i)%r.capacity]
	}
	return out
}

// TailText returns the most recent n lines joined with newlines.
func (r *Ring) TailText(n int) string {
	return strings.Join(r.Tail(n), "\n")
}

// Len returns the number of lines currently held.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap returns the maximum number of lines the ring holds.
func (r *Ring) Cap() int {
	return r.capacity
}

// Clear empties the ring.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines = make([]string, r.capacity)
	r.size = 0
	r.head = 0
}
