// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time so that timeouts and backoff can be
// tested without sleeping.
//
// Types that wait hold a Clock field. Production wiring passes Real();
// tests pass a FakeClock, start the code under test, and then
// synchronize with WaitForTimers before calling Advance:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	transport := rpc.NewTransport(dialer, rpc.TransportOptions{Clock: fake})
//	go transport.Call(ctx, "status.check", nil)
//	fake.WaitForTimers(1)           // the call registered its deadline
//	fake.Advance(31 * time.Second) // the deadline fires
//
// WaitForTimers removes the race between a goroutine registering a
// timer and the test moving time past it.
package clock
