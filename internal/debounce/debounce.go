// Package debounce provides utilities for thinning streams of progress
// signals before they reach the chat surface.
package debounce

import (
	"sync"
	"time"
)

// Suppressor drops values identical to the previous value for the same
// key. Used to collapse runs of identical activity signals ("thinking",
// "thinking", ...) into one.
type Suppressor struct {
	mu   sync.Mutex
	last map[string]string
}

// NewSuppressor returns an empty Suppressor.
func NewSuppressor() *Suppressor {
	return &Suppressor{last: make(map[string]string)}
}

// Allow reports whether value differs from the last allowed value for key,
// recording it when it does.
func (s *Suppressor) Allow(key, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last[key] == value {
		return false
	}
	s.last[key] = value
	return true
}

// Forget clears the remembered value for key.
func (s *Suppressor) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.last, key)
}

// Coalescer batches rapid updates per key and flushes only the most recent
// value after a quiet interval. Chat message edits are rate limited, so
// per-delta edits are collapsed into one edit per interval.
type Coalescer[T any] struct {
	mu       sync.Mutex
	interval time.Duration
	pending  map[string]*pendingUpdate[T]
	flush    func(key string, v T)
	stopped  bool
}

type pendingUpdate[T any] struct {
	value T
	timer *time.Timer
}

// NewCoalescer creates a Coalescer that calls flush at most once per
// interval per key, always with the latest value.
func NewCoalescer[T any](interval time.Duration, flush func(key string, v T)) *Coalescer[T] {
	return &Coalescer[T]{
		interval: interval,
		pending:  make(map[string]*pendingUpdate[T]),
		flush:    flush,
	}
}

// Update records the latest value for key and schedules a flush if one is
// not already pending.
func (c *Coalescer[T]) Update(key string, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if p, ok := c.pending[key]; ok {
		p.value = v
		return
	}
	p := &pendingUpdate[T]{value: v}
	p.timer = time.AfterFunc(c.interval, func() { c.fire(key) })
	c.pending[key] = p
}

func (c *Coalescer[T]) fire(key string) {
	c.mu.Lock()
	p, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	stopped := c.stopped
	c.mu.Unlock()
	if ok && !stopped {
		c.flush(key, p.value)
	}
}

// Flush immediately delivers any pending value for key.
func (c *Coalescer[T]) Flush(key string) {
	c.mu.Lock()
	p, ok := c.pending[key]
	if ok {
		p.timer.Stop()
		delete(c.pending, key)
	}
	stopped := c.stopped
	c.mu.Unlock()
	if ok && !stopped {
		c.flush(key, p.value)
	}
}

// Stop cancels all pending flushes.
func (c *Coalescer[T]) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	for key, p := range c.pending {
		p.timer.Stop()
		delete(c.pending, key)
	}
}
