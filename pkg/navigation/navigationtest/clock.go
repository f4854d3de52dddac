// Package navigationtest provides test doubles for the navigation package.
package navigationtest

import (
	"sort"
	"sync"
	"time"

	"ex-paimon/pkg/navigation"
)

// Clock is a manually advanced navigation.Clock. Timer callbacks run
// synchronously inside Advance, in deadline order.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*timer
}

// NewClock returns a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the frozen time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// AfterFunc schedules f at Now()+delay.
func (c *Clock) AfterFunc(delay time.Duration, f func()) navigation.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	scheduled := &timer{clock: c, deadline: c.now.Add(delay), f: f}
	c.timers = append(c.timers, scheduled)
	return scheduled
}

// Advance moves time forward and fires every timer that became due.
func (c *Clock) Advance(delta time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(delta)
	due := make([]*timer, 0, len(c.timers))
	pending := c.timers[:0]
	for _, scheduled := range c.timers {
		switch {
		case scheduled.stopped:
		case !scheduled.deadline.After(c.now):
			scheduled.fired = true
			due = append(due, scheduled)
		default:
			pending = append(pending, scheduled)
		}
	}
	c.timers = pending
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})
	for _, scheduled := range due {
		scheduled.f()
	}
}

// Pending returns the number of timers neither stopped nor fired.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, scheduled := range c.timers {
		if !scheduled.stopped && !scheduled.fired {
			count++
		}
	}
	return count
}

type timer struct {
	clock    *Clock
	deadline time.Time
	f        func()
	stopped  bool
	fired    bool
}

func (t *timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
