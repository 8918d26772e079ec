// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package component

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"testing"

	"github.com/bureau-foundation/warden/lib/config"
	"github.com/bureau-foundation/warden/lib/helper"
	"github.com/bureau-foundation/warden/lib/launchd"
)

// fakeSystem answers launchctl against real plist files and the core
// service's status probe with a configurable version.
type fakeSystem struct {
	mu      sync.Mutex
	jobs    map[string]int
	nextPID int
	calls   []string

	runningVersion string
	probeErr       error

	// loadErr makes launchctl load fail. spawned holds the processes
	// started outside launchd, by pid.
	loadErr error
	spawned map[int]string
}

func newFakeSystem() *fakeSystem {
	return &fakeSystem{jobs: map[string]int{}, spawned: map[int]string{}, nextPID: 400}
}

func (f *fakeSystem) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name != "launchctl" {
		if f.probeErr != nil {
			return []byte("probe failed"), f.probeErr
		}
		return []byte(fmt.Sprintf("starting\n{\"version\": %q, \"pid\": 1, \"running\": true,}\n", f.runningVersion)), nil
	}
	f.calls = append(f.calls, strings.Join(args, " "))
	switch args[0] {
	case "list":
		labels := make([]string, 0, len(f.jobs))
		for label := range f.jobs {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		var b strings.Builder
		b.WriteString("PID\tStatus\tLabel\n")
		for _, label := range labels {
			fmt.Fprintf(&b, "%d\t0\t%s\n", f.jobs[label], label)
		}
		return []byte(b.String()), nil
	case "load", "unload":
		plist, err := launchd.ReadPlist(args[len(args)-1])
		if err != nil {
			return []byte(err.Error()), errors.New("exit status 1")
		}
		if args[0] == "load" {
			if f.loadErr != nil {
				return []byte("Load failed: 5: Input/output error"), f.loadErr
			}
			f.nextPID++
			f.jobs[plist.Label] = f.nextPID
		} else {
			delete(f.jobs, plist.Label)
		}
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected launchctl %v", args)
}

func (f *fakeSystem) Spawn(p launchd.Plist) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextPID++
	f.spawned[f.nextPID] = p.Label
	f.calls = append(f.calls, "spawn "+p.Label)
	return f.nextPID, nil
}

func (f *fakeSystem) Signal(pid int, signal syscall.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.spawned[pid]; !ok {
		return syscall.ESRCH
	}
	if signal != 0 {
		delete(f.spawned, pid)
		f.calls = append(f.calls, fmt.Sprintf("signal %d %d", pid, int(signal)))
	}
	return nil
}

func (f *fakeSystem) setLoadErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadErr = err
}

func (f *fakeSystem) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeSystem) setRunning(version string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runningVersion = version
}

// fakeHelper records privileged actions and serves canned states.
type fakeHelper struct {
	mu         sync.Mutex
	calls      []string
	version    string
	versionErr error
	fuse       helper.FuseStatus
	redirector helper.RedirectorStatus
	mounts     []helper.MountRequest
	links      []helper.LinkRequest
}

func (h *fakeHelper) record(call string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, call)
}

func (h *fakeHelper) recorded() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *fakeHelper) Version(context.Context) (string, error) {
	h.record("version")
	return h.version, h.versionErr
}

func (h *fakeHelper) FuseStatus(context.Context) (helper.FuseStatus, error) {
	h.record("fuse.status")
	return h.fuse, nil
}

func (h *fakeHelper) InstallFuse(context.Context) error {
	h.record("fuse.install")
	h.fuse.Installed = true
	return nil
}

func (h *fakeHelper) UninstallFuse(context.Context) error {
	h.record("fuse.uninstall")
	h.fuse = helper.FuseStatus{}
	return nil
}

func (h *fakeHelper) LoadFuse(context.Context) error {
	h.record("fuse.load")
	h.fuse.Loaded = true
	return nil
}

func (h *fakeHelper) UnloadFuse(context.Context) error {
	h.record("fuse.unload")
	h.fuse.Loaded = false
	return nil
}

func (h *fakeHelper) CreateMount(_ context.Context, request helper.MountRequest) error {
	h.record("mount.create")
	h.mu.Lock()
	h.mounts = append(h.mounts, request)
	h.mu.Unlock()
	return nil
}

func (h *fakeHelper) RemoveMount(context.Context, string) error {
	h.record("mount.remove")
	return nil
}

func (h *fakeHelper) Unmount(context.Context, string) error {
	h.record("mount.unmount")
	return nil
}

func (h *fakeHelper) RedirectorStatus(context.Context) (helper.RedirectorStatus, error) {
	h.record("redirector.status")
	return h.redirector, nil
}

func (h *fakeHelper) StartRedirector(context.Context) error {
	h.record("redirector.start")
	h.redirector = helper.RedirectorStatus{Installed: true, Running: true, PID: 77}
	return nil
}

func (h *fakeHelper) StopRedirector(context.Context) error {
	h.record("redirector.stop")
	h.redirector.Running = false
	h.redirector.PID = 0
	return nil
}

func (h *fakeHelper) Link(_ context.Context, request helper.LinkRequest) error {
	h.record("cli.link")
	h.mu.Lock()
	h.links = append(h.links, request)
	h.mu.Unlock()
	return nil
}

func (h *fakeHelper) Unlink(context.Context, string) error {
	h.record("cli.unlink")
	return nil
}

var _ helper.Actions = (*fakeHelper)(nil)

// testEnvironment resolves a custom-mode environment rooted in a temp
// directory, with every system location moved inside it and every
// bundled binary present.
func testEnvironment(t *testing.T, bundleVersion string) *config.Environment {
	t.Helper()
	root := t.TempDir()
	env, err := config.Resolve(config.Custom, config.Overrides{
		HomeDir:       filepath.Join(root, "home"),
		SocketPath:    filepath.Join(root, "run", "wardend.sock"),
		MountDir:      filepath.Join(root, "mount"),
		BinDir:        filepath.Join(root, "bin"),
		BundleVersion: bundleVersion,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	env.LaunchDaemonsDir = filepath.Join(root, "LaunchDaemons")
	env.PrivilegedToolsDir = filepath.Join(root, "PrivilegedHelperTools")
	env.CommandLinkPath = filepath.Join(root, "usr", "local", "bin", "warden")

	if err := os.MkdirAll(env.BinDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, binary := range []config.Binary{config.CoreBinary, config.FilesystemBinary, config.UpdaterBinary, config.HelperBinary, config.CLIBinary} {
		content := "#!/bin/sh\n# " + string(binary) + " " + bundleVersion + "\n"
		if err := os.WriteFile(env.BinaryPath(binary), []byte(content), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return env
}

func testDependencies(system *fakeSystem, actions *fakeHelper) Dependencies {
	return Dependencies{Runner: system, Spawner: system, Helper: actions, UID: 501}
}
