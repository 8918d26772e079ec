// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by warden's package tests.
//
// [SocketDir] returns a short directory under /tmp for Unix sockets,
// whose paths are limited to 104 bytes on macOS and 108 on Linux.
// t.TempDir() paths routinely exceed that.
//
// [RequireReceive] and [RequireClosed] bound channel waits with a
// wall-clock safety valve so a broken test fails instead of hanging.
// They are the only place tests touch real time; everything else runs
// on a clock.FakeClock.
//
// [Pipe] returns a connected pair of Unix socket connections for
// driving a protocol endpoint from the other side without a listener.
package testutil
