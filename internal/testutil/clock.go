package testutil

import (
	"sync"
	"time"
)

// StepClock is a manual time source. Now returns the current instant; Advance
// moves it forward.
//
// Thread-safety: all methods are safe for concurrent use.
type StepClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewStepClock(start time.Time) *StepClock {
	return &StepClock{now: start.UTC()}
}

func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *StepClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
