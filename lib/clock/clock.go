// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the source of time for everything in warden that waits:
// RPC call deadlines, reconnect backoff, and launchd state polling.
// Production code uses Real; tests use Fake and drive time with
// Advance.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once d has elapsed. A
	// non-positive d delivers immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc arranges for f to run once d has elapsed. The returned
	// Timer cancels the pending call.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stop func() bool
}

// Stop cancels the pending call. It reports whether the call was
// still pending; false means f already ran (or is running) or the
// timer was stopped before.
func (t *Timer) Stop() bool { return t.stop() }
