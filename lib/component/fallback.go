// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package component

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/bureau-foundation/warden/lib/atomicfile"
)

// A job launchd refused to load can still be started directly. The
// process is recorded in a pid file under the runtime directory so
// status, stop, and uninstall can find it; launchd does not know about
// it and will not restart it.

func (j *launchdJob) pidPath() string {
	return filepath.Join(j.env.RuntimeDir, j.label+".pid")
}

// startFallback starts the job's program after launchd failed with
// loadErr. It returns nil when the process started.
func (j *launchdJob) startFallback(loadErr error) error {
	pid, err := j.deps.Spawner.Spawn(j.plist())
	if err != nil {
		return errors.Join(loadErr, fmt.Errorf("starting %s directly: %w", j.label, err))
	}
	if err := os.MkdirAll(j.env.RuntimeDir, 0o755); err != nil {
		return err
	}
	if err := atomicfile.WriteFile(j.pidPath(), []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return err
	}
	j.deps.Logger.Warn("launchd did not load the job, started it directly",
		"component", j.descriptor.Name,
		"label", j.label,
		"pid", pid,
		"error", loadErr,
	)
	return nil
}

// fallbackPID returns the recorded pid when that process is alive.
func (j *launchdJob) fallbackPID() (int, bool) {
	if !j.fallback {
		return 0, false
	}
	data, err := os.ReadFile(j.pidPath())
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	if err := j.deps.Spawner.Signal(pid, 0); err != nil {
		return 0, false
	}
	return pid, true
}

// stopFallback terminates a directly started process and removes its
// pid file.
func (j *launchdJob) stopFallback() error {
	if !j.fallback {
		return nil
	}
	if pid, ok := j.fallbackPID(); ok {
		j.deps.Logger.Info("stopping directly started job", "component", j.descriptor.Name, "label", j.label, "pid", pid)
		if err := j.deps.Spawner.Signal(pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
			return fmt.Errorf("stopping %s (pid %d): %w", j.label, pid, err)
		}
	}
	if err := os.Remove(j.pidPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
