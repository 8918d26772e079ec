// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux || darwin

package launchd

import (
	"fmt"
	"maps"
	"os"
	"os/exec"
	"slices"
	"syscall"

	"golang.org/x/sys/unix"
)

// ExecSpawner starts programs in their own session so they outlive the
// command that spawned them.
type ExecSpawner struct{}

func (ExecSpawner) Spawn(p Plist) (int, error) {
	if len(p.ProgramArguments) == 0 {
		return 0, fmt.Errorf("launchd plist %s has no program arguments", p.Label)
	}
	cmd := exec.Command(p.ProgramArguments[0], p.ProgramArguments[1:]...)
	cmd.Env = os.Environ()
	for _, name := range slices.Sorted(maps.Keys(p.EnvironmentVariables)) {
		cmd.Env = append(cmd.Env, name+"="+p.EnvironmentVariables[name])
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if p.StandardOutPath != "" {
		stdout, err := openLog(p.StandardOutPath)
		if err != nil {
			return 0, err
		}
		defer stdout.Close()
		cmd.Stdout = stdout
		cmd.Stderr = stdout
	}
	if p.StandardErrorPath != "" && p.StandardErrorPath != p.StandardOutPath {
		stderr, err := openLog(p.StandardErrorPath)
		if err != nil {
			return 0, err
		}
		defer stderr.Close()
		cmd.Stderr = stderr
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting %s: %w", p.Label, err)
	}
	pid := cmd.Process.Pid
	// Reap the child if it exits while this process is still running.
	go cmd.Wait()
	return pid, nil
}

func (ExecSpawner) Signal(pid int, signal syscall.Signal) error {
	return unix.Kill(pid, signal)
}

func openLog(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
