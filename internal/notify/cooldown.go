// ABOUTME: Thread-safe keyed cooldown used to rate-limit test notifications
// ABOUTME: Size-bounded with oldest-first eviction and periodic expiry sweeps

package notify

import (
	"container/list"
	"sync"
	"time"
)

// cooldownEntry stores the last hit time and list element for a key.
type cooldownEntry struct {
	at      time.Time
	element *list.Element
}

// Cooldown admits a key at most once per window. A zero window admits everything.
type Cooldown struct {
	mu      sync.Mutex
	hits    map[string]*cooldownEntry
	order   *list.List // keys by last hit, oldest at front
	window  time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
	sweeps  bool
}

// NewCooldown creates a cooldown tracking at most maxSize keys.
// With a positive window a background goroutine sweeps expired keys until
// Close is called. A zero window tracks nothing and starts no goroutine.
func NewCooldown(window time.Duration, maxSize int, now func() time.Time) *Cooldown {
	if now == nil {
		now = time.Now
	}
	c := &Cooldown{
		hits:    make(map[string]*cooldownEntry),
		order:   list.New(),
		window:  window,
		maxSize: maxSize,
		now:     now,
		done:    make(chan struct{}),
	}
	if window > 0 {
		c.sweeps = true
		go c.sweepLoop()
	}
	return c
}

// Allow reports whether key may proceed and, if so, starts a new window for it.
// The check and the mark happen under one lock.
func (c *Cooldown) Allow(key string) bool {
	if c.window <= 0 {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry, ok := c.hits[key]; ok {
		if now.Sub(entry.at) < c.window {
			return false
		}
		entry.at = now
		c.order.MoveToBack(entry.element)
		return true
	}

	if len(c.hits) >= c.maxSize {
		c.evictOldest()
	}
	c.hits[key] = &cooldownEntry{at: now, element: c.order.PushBack(key)}
	return true
}

// Len returns the number of tracked keys.
func (c *Cooldown) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.hits)
}

// evictOldest must be called with mu held.
func (c *Cooldown) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.hits, key)
}

func (c *Cooldown) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep drops keys whose window has passed.
func (c *Cooldown) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		key, _ := front.Value.(string)
		if now.Sub(c.hits[key].at) < c.window {
			return
		}
		c.order.Remove(front)
		delete(c.hits, key)
	}
}

// Close stops the sweeper. It is safe to call multiple times.
func (c *Cooldown) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
