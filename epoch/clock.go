package epoch

import (
	"context"
	"sync"
	"time"
)

// Clock drives the monotonic epoch counter that stands in for ledger block
// height, and notifies registered listeners on every advance. Reporting and
// scoring cycles hang off its listeners.
type Clock struct {
	mu      sync.RWMutex
	tick    time.Duration
	current uint64

	listeners []func(uint64)
}

// NewClock constructs a clock that advances once per tick interval.
func NewClock(tick time.Duration) *Clock {
	return &Clock{tick: tick}
}

// Current returns the current epoch.
func (c *Clock) Current() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// AddListener registers a callback invoked with the new epoch on every
// advance. Listeners must be registered before Start.
func (c *Clock) AddListener(fn func(uint64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Advance increments the epoch immediately and notifies listeners. Used by
// tests and by the simulator's stepped mode.
func (c *Clock) Advance() uint64 {
	c.mu.Lock()
	c.current++
	epoch := c.current
	listeners := append([]func(uint64){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(epoch)
	}
	return epoch
}

// Start runs the clock until ctx is cancelled. It returns a channel that is
// closed when the clock goroutine exits.
func (c *Clock) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		ticker := time.NewTicker(c.tick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Advance()
			}
		}
	}()
	return done
}
