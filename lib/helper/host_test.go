// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux || darwin

package helper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"

	"github.com/bureau-foundation/warden/lib/launchd"
)

// fakeKmutil tracks whether the extension is loaded.
type fakeKmutil struct {
	mu       sync.Mutex
	bundleID string
	loaded   bool
	calls    []string
}

func (f *fakeKmutil) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	if name != "kmutil" {
		return nil, fmt.Errorf("unexpected command %s", name)
	}
	switch args[0] {
	case "showloaded":
		if f.loaded {
			return []byte("0xffffff\t" + f.bundleID + " (1.0)\n"), nil
		}
		return nil, nil
	case "load":
		f.loaded = true
	case "unload":
		f.loaded = false
	}
	return nil, nil
}

func newFuseHost(t *testing.T) (*Host, *fakeKmutil, string) {
	t.Helper()
	dir := t.TempDir()
	bundle := filepath.Join(dir, "bundle", "warden.fs")
	if err := os.MkdirAll(filepath.Join(bundle, "Contents", "MacOS"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bundle, fuseVersionFile), []byte("4.1.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bundle, "Contents", "MacOS", "warden_fs"), []byte("binary"), 0o755); err != nil {
		t.Fatal(err)
	}
	kmutil := &fakeKmutil{bundleID: "dev.warden.filesystems.fs"}
	installPath := filepath.Join(dir, "Library", "Filesystems", "warden.fs")
	host := NewHost(HostOptions{
		Runner:          kmutil,
		FuseBundle:      bundle,
		FuseInstallPath: installPath,
		FuseBundleID:    kmutil.bundleID,
	})
	return host, kmutil, installPath
}

func TestHostFuseLifecycle(t *testing.T) {
	host, kmutil, installPath := newFuseHost(t)
	ctx := context.Background()

	status, err := host.FuseStatus(ctx)
	if err != nil || status.Installed {
		t.Fatalf("FuseStatus before install = (%+v, %v)", status, err)
	}

	if err := host.InstallFuse(ctx); err != nil {
		t.Fatalf("InstallFuse: %v", err)
	}
	if err := host.LoadFuse(ctx); err != nil {
		t.Fatalf("LoadFuse: %v", err)
	}
	status, err = host.FuseStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !status.Installed || !status.Loaded || status.Version != "4.1.0" {
		t.Errorf("FuseStatus after install = %+v", status)
	}
	if _, err := os.Stat(filepath.Join(installPath, "Contents", "MacOS", "warden_fs")); err != nil {
		t.Errorf("bundle contents not copied: %v", err)
	}

	// Loading twice does not call kmutil load again.
	if err := host.LoadFuse(ctx); err != nil {
		t.Fatal(err)
	}
	loads := 0
	for _, call := range kmutil.calls {
		if strings.HasPrefix(call, "kmutil load") {
			loads++
		}
	}
	if loads != 1 {
		t.Errorf("kmutil load ran %d times, want 1", loads)
	}

	// Reinstalling unloads and replaces.
	if err := host.InstallFuse(ctx); err != nil {
		t.Fatalf("second InstallFuse: %v", err)
	}
	if kmutil.loaded {
		t.Error("reinstall left the old extension loaded")
	}

	if err := host.UninstallFuse(ctx); err != nil {
		t.Fatalf("UninstallFuse: %v", err)
	}
	if _, err := os.Stat(installPath); !os.IsNotExist(err) {
		t.Errorf("install path still present: %v", err)
	}
	if err := host.UninstallFuse(ctx); err != nil {
		t.Errorf("repeated UninstallFuse: %v", err)
	}
}

func TestHostMountDirectory(t *testing.T) {
	ctx := context.Background()
	mount := filepath.Join(t.TempDir(), "warden")
	host := NewHost(HostOptions{MountDir: mount})
	request := MountRequest{Path: mount}

	if err := host.CreateMount(ctx, request); err != nil {
		t.Fatalf("CreateMount: %v", err)
	}
	if err := host.CreateMount(ctx, request); err != nil {
		t.Errorf("repeated CreateMount: %v", err)
	}
	info, err := os.Stat(mount)
	if err != nil || !info.IsDir() {
		t.Fatalf("mount directory missing: %v", err)
	}
	if uid := ownerOf(t, mount); uid != uint32(os.Getuid()) {
		t.Errorf("mount directory owner = %d, want %d", uid, os.Getuid())
	}

	if err := host.Unmount(ctx, mount); err != nil {
		t.Errorf("Unmount of unmounted directory: %v", err)
	}

	if err := os.WriteFile(filepath.Join(mount, "leftover"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := host.RemoveMount(ctx, mount); !errors.Is(err, ErrMountNotEmpty) {
		t.Errorf("RemoveMount of non-empty directory = %v, want ErrMountNotEmpty", err)
	}
	if err := os.Remove(filepath.Join(mount, "leftover")); err != nil {
		t.Fatal(err)
	}
	if err := host.RemoveMount(ctx, mount); err != nil {
		t.Fatalf("RemoveMount: %v", err)
	}
	if err := host.RemoveMount(ctx, mount); err != nil {
		t.Errorf("repeated RemoveMount: %v", err)
	}

	if err := host.CreateMount(ctx, MountRequest{Path: "relative"}); err == nil {
		t.Error("relative mount path accepted")
	}
}

func ownerOf(t *testing.T, path string) uint32 {
	t.Helper()
	info, err := os.Lstat(path)
	if err != nil {
		t.Fatal(err)
	}
	return info.Sys().(*syscall.Stat_t).Uid
}

func TestHostRejectsUnmanagedPaths(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "Warden.app", "bin", "warden")
	host := NewHost(HostOptions{
		MountDir:          filepath.Join(dir, "warden"),
		CommandLinkPath:   filepath.Join(dir, "bin", "warden"),
		CommandLinkTarget: target,
	})
	ctx := context.Background()

	victim := filepath.Join(dir, "etc")
	if err := os.Mkdir(victim, 0o755); err != nil {
		t.Fatal(err)
	}
	foreignLink := filepath.Join(dir, "sudoers.d", "warden")
	if err := os.MkdirAll(filepath.Dir(foreignLink), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("/bin/true", foreignLink); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		run  func() error
	}{
		{"mount.create", func() error { return host.CreateMount(ctx, MountRequest{Path: victim}) }},
		{"mount.create traversal", func() error {
			return host.CreateMount(ctx, MountRequest{Path: dir + "/warden/../etc"})
		}},
		{"mount.remove", func() error { return host.RemoveMount(ctx, victim) }},
		{"mount.unmount", func() error { return host.Unmount(ctx, victim) }},
		{"cli.link elsewhere", func() error {
			return host.Link(ctx, LinkRequest{Target: target, Link: filepath.Join(dir, "pwn"), Force: true})
		}},
		{"cli.link foreign target", func() error {
			return host.Link(ctx, LinkRequest{Target: "/tmp/attacker", Link: filepath.Join(dir, "bin", "warden")})
		}},
		{"cli.unlink", func() error { return host.Unlink(ctx, foreignLink) }},
	}
	for _, test := range tests {
		if err := test.run(); !errors.Is(err, ErrPathNotAllowed) {
			t.Errorf("%s = %v, want ErrPathNotAllowed", test.name, err)
		}
	}

	if _, err := os.Stat(victim); err != nil {
		t.Errorf("victim directory was touched: %v", err)
	}
	if _, err := os.Lstat(foreignLink); err != nil {
		t.Errorf("foreign link was removed: %v", err)
	}
	for _, path := range []string{filepath.Join(dir, "pwn"), filepath.Join(dir, "bin", "warden")} {
		if _, err := os.Lstat(path); !os.IsNotExist(err) {
			t.Errorf("rejected link request created %s: %v", path, err)
		}
	}

	// The configured link itself is allowed.
	if err := host.Link(ctx, LinkRequest{Target: target, Link: filepath.Join(dir, "bin", "warden")}); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if err := host.Unlink(ctx, filepath.Join(dir, "bin", "warden")); err != nil {
		t.Errorf("Unlink: %v", err)
	}
}

func TestHostWithoutManagedPathsRejectsEverything(t *testing.T) {
	host := NewHost(HostOptions{})
	ctx := context.Background()
	mount := filepath.Join(t.TempDir(), "warden")
	if err := host.CreateMount(ctx, MountRequest{Path: mount}); !errors.Is(err, ErrPathNotAllowed) {
		t.Errorf("CreateMount = %v, want ErrPathNotAllowed", err)
	}
	if err := host.Unlink(ctx, mount); !errors.Is(err, ErrPathNotAllowed) {
		t.Errorf("Unlink = %v, want ErrPathNotAllowed", err)
	}
}

func TestHostRedirectorStatus(t *testing.T) {
	runner := launchd.RunnerFunc(func(_ context.Context, name string, args ...string) ([]byte, error) {
		return []byte("PID\tStatus\tLabel\n731\t0\tdev.warden.redirector\n"), nil
	})
	plistPath := filepath.Join(t.TempDir(), "dev.warden.redirector.plist")
	if err := os.WriteFile(plistPath, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	host := NewHost(HostOptions{
		Runner:              runner,
		RedirectorPlistPath: plistPath,
		RedirectorPlist:     launchd.Plist{Label: "dev.warden.redirector", ProgramArguments: []string{"/bin/redirector"}},
	})
	status, err := host.RedirectorStatus(context.Background())
	if err != nil {
		t.Fatalf("RedirectorStatus: %v", err)
	}
	want := RedirectorStatus{Installed: true, Running: true, PID: 731}
	if status != want {
		t.Errorf("RedirectorStatus = %+v, want %+v", status, want)
	}
	// Already loaded: start is a no-op.
	if err := host.StartRedirector(context.Background()); err != nil {
		t.Errorf("StartRedirector: %v", err)
	}
}
