// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package launchd

import "syscall"

// Spawner starts a job's program without launchd. Callers use it when
// launchd refuses to load a job they still need running.
type Spawner interface {
	// Spawn starts p's program with p's environment and output paths
	// and returns its pid. It does not wait for the process.
	Spawn(p Plist) (int, error)

	// Signal sends signal to pid. Signal 0 checks that pid exists.
	Signal(pid int, signal syscall.Signal) error
}
