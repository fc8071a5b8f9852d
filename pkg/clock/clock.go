package clock

import (
	"sync"
	"time"
)

// Clock is the trusted time source every deadline comparison reads from.
// Values are unix seconds. The ledger environment supplies one reading per
// operation; nothing in the core schedules against it.
type Clock interface {
	Now() int64
}

// SystemClock reads the host wall clock.
type SystemClock struct{}

func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

func (c *SystemClock) Now() int64 {
	return time.Now().Unix()
}

// ManualClock is a settable clock for tests.
type ManualClock struct {
	mu  sync.RWMutex
	now int64
}

func NewManualClock(now int64) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) Now() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *ManualClock) Set(now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *ManualClock) Advance(seconds int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += seconds
}
