// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux || darwin

package launchd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

// waitFor polls condition until it holds or the deadline passes. The
// spawned process is real, so there is no fake clock to drive.
func waitFor(t *testing.T, what string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestExecSpawnerRunsProgramWithJobEnvironment(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "job.log")
	spawner := ExecSpawner{}
	pid, err := spawner.Spawn(Plist{
		Label:                "dev.warden.spawned",
		ProgramArguments:     []string{"/bin/sh", "-c", `echo "label=$WARDEN_LABEL"; exec sleep 30`},
		EnvironmentVariables: map[string]string{"WARDEN_LABEL": "dev.warden.spawned"},
		StandardOutPath:      logPath,
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	t.Cleanup(func() { spawner.Signal(pid, syscall.SIGKILL) })

	if err := spawner.Signal(pid, 0); err != nil {
		t.Fatalf("spawned process %d is not alive: %v", pid, err)
	}
	waitFor(t, "job output", func() bool {
		data, _ := os.ReadFile(logPath)
		return strings.Contains(string(data), "label=dev.warden.spawned")
	})

	if err := spawner.Signal(pid, syscall.SIGTERM); err != nil {
		t.Fatalf("SIGTERM: %v", err)
	}
	waitFor(t, "process exit", func() bool {
		return errors.Is(spawner.Signal(pid, 0), syscall.ESRCH)
	})
}

func TestExecSpawnerRejectsEmptyProgram(t *testing.T) {
	if _, err := (ExecSpawner{}).Spawn(Plist{Label: "dev.warden.empty"}); err == nil {
		t.Error("Spawn with no program succeeded")
	}
}
