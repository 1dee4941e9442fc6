// Package cache provides a bounded LRU cache with per-entry TTL, the
// recency-ordered, size-bounded structure the Message Hub's dedup cache
// requires.
package cache

import (
	"container/list"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flowlane/agentd/internal/common/logger"
)

// entry is the value stored in the backing linked list.
type entry struct {
	key       string
	value     any
	expiresAt time.Time
}

// LRU is a bounded ordered map where insertion order tracks recency: Get
// promotes to most-recent, Set evicts the oldest entry on overflow and
// promotes on update, and both treat an expired entry as absent.
type LRU struct {
	mu       sync.Mutex
	ll       *list.List
	items    map[string]*list.Element
	capacity int
	ttl      time.Duration

	log    *logger.Logger
	stopCh chan struct{}
	once   sync.Once
}

// New builds an LRU bounded at capacity entries, each living ttl after Set.
// A background sweeper deletes expired entries every sweepInterval; the
// sweeper recovers from any panic in its own loop so the timer chain
// survives (mirrors the Hub's broadcast failure isolation).
func New(capacity int, ttl, sweepInterval time.Duration, log *logger.Logger) *LRU {
	if capacity <= 0 {
		capacity = 1
	}
	c := &LRU{
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		capacity: capacity,
		ttl:      ttl,
		log:      log,
		stopCh:   make(chan struct{}),
	}
	go c.sweepLoop(sweepInterval)
	return c
}

// Get returns the cached value for k and promotes it to most-recent. It
// returns (nil, false) if the key is absent or its TTL has elapsed.
func (c *LRU) Get(k string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[k]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if time.Now().After(e.expiresAt) {
		c.removeElement(el)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return e.value, true
}

// Set stores v under k, refreshing its TTL and promoting it to
// most-recent. If the cache is at capacity and k is new, the oldest entry
// is evicted.
func (c *LRU) Set(k string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Now().Add(c.ttl)
	if el, ok := c.items[k]; ok {
		el.Value.(*entry).value = v
		el.Value.(*entry).expiresAt = expiresAt
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&entry{key: k, value: v, expiresAt: expiresAt})
	c.items[k] = el

	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.removeElement(oldest)
		}
	}
}

// Len returns the number of live (non-expired-checked) entries currently
// tracked; callers needing an exact count should Get individual keys.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// removeElement must be called with c.mu held.
func (c *LRU) removeElement(el *list.Element) {
	e := el.Value.(*entry)
	delete(c.items, e.key)
	c.ll.Remove(el)
}

// sweep deletes every expired entry. Recovers from panics so a bad entry
// never kills the sweeper goroutine.
func (c *LRU) sweep() {
	defer func() {
		if r := recover(); r != nil && c.log != nil {
			c.log.Error("cache sweep recovered from panic", zap.Any("panic", r))
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for el := c.ll.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*entry).expiresAt) {
			c.removeElement(el)
		}
		el = prev
	}
}

func (c *LRU) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

// Destroy stops the sweeper and clears all entries.
func (c *LRU) Destroy() {
	c.once.Do(func() { close(c.stopCh) })
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
}
