// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock reading initial. Time moves only when
// Advance is called.
func Fake(initial time.Time) *FakeClock {
	fake := &FakeClock{now: initial}
	fake.changed = sync.NewCond(&fake.mu)
	return fake
}

// FakeClock is a Clock for tests. It is safe for concurrent use.
//
// AfterFunc callbacks run synchronously inside Advance, in deadline
// order. A callback must not call Advance.
type FakeClock struct {
	mu       sync.Mutex
	now      time.Time
	sequence uint64
	pending  []*pendingTimer
	changed  *sync.Cond
}

type pendingTimer struct {
	deadline time.Time
	// sequence orders timers with equal deadlines by registration.
	sequence uint64
	channel  chan time.Time
	callback func()
	done     bool
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After registers a pending timer unless d is non-positive, in which
// case the channel is ready on return.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	channel := make(chan time.Time, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.registerLocked(d, &pendingTimer{channel: channel})
	return channel
}

// AfterFunc registers f to run during the Advance that crosses its
// deadline. A non-positive d runs f before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}
	timer := &pendingTimer{callback: f}
	c.mu.Lock()
	c.registerLocked(d, timer)
	c.mu.Unlock()
	return &Timer{stop: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if timer.done {
			return false
		}
		timer.done = true
		c.changed.Broadcast()
		return true
	}}
}

func (c *FakeClock) registerLocked(d time.Duration, timer *pendingTimer) {
	c.sequence++
	timer.deadline = c.now.Add(d)
	timer.sequence = c.sequence
	c.pending = append(c.pending, timer)
	c.changed.Broadcast()
}

// Advance moves time forward by d and fires every timer whose deadline
// is at or before the new time. Timers registered by a firing callback
// with a deadline inside the window fire in the same call.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()

	for {
		expired := c.takeExpired()
		if len(expired) == 0 {
			return
		}
		for _, timer := range expired {
			if timer.callback != nil {
				timer.callback()
				continue
			}
			timer.channel <- c.Now()
		}
	}
}

// takeExpired removes due timers from the pending set and returns them
// in firing order.
func (c *FakeClock) takeExpired() []*pendingTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired, remaining []*pendingTimer
	for _, timer := range c.pending {
		switch {
		case timer.done:
		case timer.deadline.After(c.now):
			remaining = append(remaining, timer)
		default:
			timer.done = true
			expired = append(expired, timer)
		}
	}
	c.pending = remaining
	sort.Slice(expired, func(i, j int) bool {
		if expired[i].deadline.Equal(expired[j].deadline) {
			return expired[i].sequence < expired[j].sequence
		}
		return expired[i].deadline.Before(expired[j].deadline)
	})
	c.changed.Broadcast()
	return expired
}

// WaitForTimers blocks until at least n timers are pending.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of timers that have neither fired
// nor been stopped.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *FakeClock) pendingLocked() int {
	count := 0
	for _, timer := range c.pending {
		if !timer.done {
			count++
		}
	}
	return count
}
