// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package component

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"

	"github.com/bureau-foundation/warden/lib/helper"
	"github.com/bureau-foundation/warden/lib/launchd"
	"github.com/bureau-foundation/warden/lib/watchdog"
)

func TestResolveVersions(t *testing.T) {
	tests := []struct {
		name          string
		installed     string
		bundled       string
		hasExitStatus bool
		install       InstallState
		action        ActionKind
	}{
		{"bundle newer", "6.2.3", "6.2.4", false, NeedsUpgrade, UpgradeAction},
		{"equal", "6.2.4", "6.2.4", false, Installed, NoAction},
		{"equal with v prefix", "v6.2.4", "6.2.4", false, Installed, NoAction},
		{"bundle older", "6.3.0", "6.2.4", false, InstallError, NoAction},
		{"unparseable", "yesterday", "6.2.4", false, InstallError, ReinstallAction},
		{"installed only", "6.2.4", "", false, Installed, NoAction},
		{"unknown version but ran", "", "6.2.4", true, Installed, ReinstallAction},
		{"nothing", "", "6.2.4", false, NotInstalled, InstallAction},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			status := ResolveVersions(test.installed, test.bundled, test.hasExitStatus)
			if status.Install() != test.install {
				t.Errorf("install = %v, want %v", status.Install(), test.install)
			}
			if status.Action() != test.action {
				t.Errorf("action = %v, want %v", status.Action(), test.action)
			}
			if (status.Install() == InstallError) != (status.Err() != nil) {
				t.Errorf("install %v with err %v", status.Install(), status.Err())
			}
		})
	}
}

func TestStatusInvariants(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewStatus(InstallError) did not panic")
		}
	}()

	if got := NewStatus(NotInstalled, NotRunning).Action(); got != InstallAction {
		t.Errorf("NotInstalled action = %v, want install", got)
	}
	if got := NewStatus(NeedsUpgrade, Running).Action(); got != UpgradeAction {
		t.Errorf("NeedsUpgrade action = %v, want upgrade", got)
	}
	if NewStatus(Installed, Running).NeedsWork() {
		t.Error("Installed status needs work")
	}
	if ErrorStatus(nil).Err() == nil {
		t.Error("ErrorStatus(nil) has no error")
	}

	original := NewStatus(Installed, Running, Field{Name: "pid", Value: "1"})
	changed := original.WithFields(Field{Name: "version", Value: "6.2.4"})
	if _, ok := original.Lookup("version"); ok {
		t.Error("WithFields modified the original")
	}
	if value, _ := changed.Lookup("version"); value != "6.2.4" {
		t.Errorf("Lookup(version) = %q", value)
	}

	NewStatus(InstallError, RuntimeUnknown)
}

func TestParseServiceInfo(t *testing.T) {
	info, err := ParseServiceInfo([]byte("warming up\n// status\n{\"version\": \"6.2.4\", \"pid\": 812, \"running\": true,}\n"))
	if err != nil {
		t.Fatalf("ParseServiceInfo: %v", err)
	}
	if info.Version != "6.2.4" || info.PID != 812 || !info.Running {
		t.Errorf("info = %+v", info)
	}

	for _, output := range []string{"", "no json here", `{"pid": 3}`} {
		if _, err := ParseServiceInfo([]byte(output)); err == nil {
			t.Errorf("ParseServiceInfo(%q) succeeded", output)
		}
	}
}

func TestErrors(t *testing.T) {
	if Fail("core-service", OperationInstall, nil) != nil {
		t.Error("Fail with nil cause is not nil")
	}
	cause := errors.New("disk full")
	err := Fail("core-service", OperationInstall, cause)
	if !errors.Is(err, ErrInstallFailed) || errors.Is(err, ErrStartFailed) {
		t.Errorf("Fail(install) matches the wrong codes: %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("Fail does not unwrap to its cause")
	}

	skipped := Skipped("updater-service", OperationInstall, "core-service")
	if want := "updater-service: install skipped (requires core-service)"; skipped.Error() != want {
		t.Errorf("Skipped = %q, want %q", skipped.Error(), want)
	}
	if !errors.Is(errors.Join(err, skipped), ErrSkipped) {
		t.Error("joined errors lose the skipped code")
	}
}

func TestKindOrder(t *testing.T) {
	for _, kind := range Kinds {
		for _, required := range kind.Requires() {
			if required.Rank() >= kind.Rank() {
				t.Errorf("%v (rank %d) requires %v (rank %d)", kind, kind.Rank(), required, required.Rank())
			}
		}
		parsed, err := ParseKind(kind.String())
		if err != nil || parsed != kind {
			t.Errorf("ParseKind(%q) = %v, %v", kind.String(), parsed, err)
		}
	}
	if _, err := ParseKind("gpu-driver"); err == nil {
		t.Error("ParseKind accepted an unknown name")
	}
}

func TestBuild(t *testing.T) {
	env := testEnvironment(t, "6.2.4")
	deps := testDependencies(newFakeSystem(), &fakeHelper{})

	all, err := Build(env, deps)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(all) != len(Kinds) {
		t.Fatalf("Build returned %d components, want %d", len(all), len(Kinds))
	}
	for i, component := range all {
		if component.Descriptor().Kind != Kinds[i] {
			t.Errorf("component %d is %v, want %v", i, component.Descriptor().Kind, Kinds[i])
		}
	}

	some, err := Build(env, deps, UpdaterServiceKind, CoreServiceKind)
	if err != nil {
		t.Fatalf("Build subset: %v", err)
	}
	if len(some) != 2 || some[0].Descriptor().Kind != CoreServiceKind {
		t.Errorf("subset not in dependency order: %v, %v", some[0].Descriptor().Name, some[1].Descriptor().Name)
	}

	deps.Helper = nil
	if _, err := Build(env, deps, KernelExtensionKind); err == nil {
		t.Error("Build of kernel extension without a helper succeeded")
	}
	if _, err := Build(env, deps, CoreServiceKind); err != nil {
		t.Errorf("Build of core service without a helper: %v", err)
	}
	if _, err := Build(env, deps, Kind(42)); err == nil {
		t.Error("Build of unknown kind succeeded")
	}
}

func TestCoreServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	env := testEnvironment(t, "6.2.4")
	system := newFakeSystem()
	system.setRunning("6.2.4")
	core := NewCoreService(env, testDependencies(system, &fakeHelper{}))

	status, err := core.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Install() != NotInstalled || status.Action() != InstallAction {
		t.Fatalf("fresh status = %v/%v, want not installed/install", status.Install(), status.Action())
	}

	if err := core.Install(ctx); err != nil {
		t.Fatalf("Install: %v", err)
	}
	plist, err := launchd.ReadPlist(filepath.Join(env.LaunchAgentsDir, env.Labels.Core+".plist"))
	if err != nil {
		t.Fatalf("reading installed plist: %v", err)
	}
	if plist.Program() != env.BinaryPath("core") || plist.EnvironmentVariables[EnvVersion] != "6.2.4" {
		t.Errorf("plist = %+v", plist)
	}

	status, err = core.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Install() != Installed || status.Runtime() != Running || status.NeedsWork() {
		t.Fatalf("installed status = %v/%v/%v", status.Install(), status.Runtime(), status.Action())
	}
	if value, _ := status.Lookup("running_version"); value != "6.2.4" {
		t.Errorf("running_version = %q", value)
	}

	loads := system.count("load")
	if err := core.Install(ctx); err != nil {
		t.Fatalf("second Install: %v", err)
	}
	if system.count("load") != loads {
		t.Error("Install of a current component reloaded it")
	}
	if err := core.Install(WithForce(ctx)); err != nil {
		t.Fatalf("forced Install: %v", err)
	}
	if system.count("load") != loads+1 {
		t.Error("forced Install did not reload")
	}

	if err := core.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if status, _ := core.Status(ctx); status.Runtime() != NotRunning {
		t.Errorf("runtime after Stop = %v", status.Runtime())
	}
	if err := core.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if status, _ := core.Status(ctx); status.Runtime() != Running {
		t.Errorf("runtime after Start = %v", status.Runtime())
	}

	for range 2 {
		if err := core.Uninstall(ctx); err != nil {
			t.Fatalf("Uninstall: %v", err)
		}
	}
	if status, _ := core.Status(ctx); status.Install() != NotInstalled {
		t.Errorf("status after Uninstall = %v", status.Install())
	}
	if err := core.Start(ctx); err == nil {
		t.Error("Start of an uninstalled service succeeded")
	}
}

func TestCoreServiceUpgradeRollback(t *testing.T) {
	ctx := context.Background()
	env := testEnvironment(t, "6.2.3")
	system := newFakeSystem()
	system.setRunning("6.2.3")
	core := NewCoreService(env, testDependencies(system, &fakeHelper{}))
	if err := core.Install(ctx); err != nil {
		t.Fatalf("Install 6.2.3: %v", err)
	}

	env.BundleVersion = "6.2.4"
	status, err := core.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Install() != NeedsUpgrade {
		t.Fatalf("status with newer bundle = %v, want needs upgrade", status.Install())
	}

	// The restarted job keeps reporting the old version.
	err = core.Install(ctx)
	if err == nil || !strings.Contains(err.Error(), "did not take effect") {
		t.Fatalf("Install with rolled-back restart: %v", err)
	}
	record, err := watchdog.Read(env.WatchdogPath)
	if err != nil {
		t.Fatalf("watchdog record: %v", err)
	}
	if record.PreviousVersion != "6.2.3" || record.NewVersion != "6.2.4" || record.Label != env.Labels.Core {
		t.Errorf("record = %+v", record)
	}

	status, err = core.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Install() != InstallError || status.Action() != ReinstallAction {
		t.Errorf("status after rollback = %v/%v, want error/reinstall", status.Install(), status.Action())
	}

	system.setRunning("6.2.4")
	status, err = core.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Install() != Installed {
		t.Errorf("status once the new version runs = %v (%v)", status.Install(), status.Err())
	}

	if err := core.Uninstall(ctx); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if _, err := os.Stat(env.WatchdogPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("watchdog record survived uninstall: %v", err)
	}
}

func TestCoreServiceUpgradeSucceeds(t *testing.T) {
	ctx := context.Background()
	env := testEnvironment(t, "6.2.3")
	system := newFakeSystem()
	system.setRunning("6.2.3")
	core := NewCoreService(env, testDependencies(system, &fakeHelper{}))
	if err := core.Install(ctx); err != nil {
		t.Fatalf("Install 6.2.3: %v", err)
	}

	env.BundleVersion = "6.2.4"
	system.setRunning("6.2.4")
	// The probe already reports the new version, so no record is kept.
	if err := core.Install(ctx); err != nil {
		t.Fatalf("Install 6.2.4: %v", err)
	}
	if _, err := os.Stat(env.WatchdogPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("watchdog record present after a verified upgrade: %v", err)
	}
}

func TestCoreServiceProbeFailure(t *testing.T) {
	ctx := context.Background()
	env := testEnvironment(t, "6.2.4")
	system := newFakeSystem()
	system.setRunning("6.2.4")
	core := NewCoreService(env, testDependencies(system, &fakeHelper{}))
	if err := core.Install(ctx); err != nil {
		t.Fatalf("Install: %v", err)
	}
	system.probeErr = errors.New("exit status 3")
	status, err := core.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Install() != InstallError || status.Err() == nil {
		t.Errorf("status with failing probe = %v", status.Install())
	}
}

func TestCoreServiceStartsDirectlyWhenLaunchdFails(t *testing.T) {
	ctx := context.Background()
	env := testEnvironment(t, "6.2.4")
	system := newFakeSystem()
	system.setRunning("6.2.4")
	system.setLoadErr(errors.New("exit status 5"))
	core := NewCoreService(env, testDependencies(system, &fakeHelper{}))

	if err := core.Install(ctx); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if system.count("spawn "+env.Labels.Core) != 1 {
		t.Fatalf("calls = %v, want one direct start", system.calls)
	}
	pidPath := filepath.Join(env.RuntimeDir, env.Labels.Core+".pid")
	data, err := os.ReadFile(pidPath)
	if err != nil {
		t.Fatalf("pid file: %v", err)
	}
	pid := strings.TrimSpace(string(data))

	status, err := core.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Install() != Installed || status.Runtime() != Running || status.NeedsWork() {
		t.Fatalf("status = %v/%v/%v", status.Install(), status.Runtime(), status.Action())
	}
	if value, _ := status.Lookup("pid"); value != pid {
		t.Errorf("pid = %q, want %q", value, pid)
	}
	if value, _ := status.Lookup("started_by"); value != "warden" {
		t.Errorf("started_by = %q", value)
	}

	loads := system.count("load")
	if err := core.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if system.count("load") != loads {
		t.Error("Start loaded the job while the direct process was running")
	}

	if err := core.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if system.count("signal "+pid+" "+strconv.Itoa(int(syscall.SIGTERM))) != 1 {
		t.Errorf("calls = %v, want SIGTERM to %s", system.calls, pid)
	}
	if _, err := os.Stat(pidPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("pid file survived Stop: %v", err)
	}
	if status, _ := core.Status(ctx); status.Runtime() != NotRunning {
		t.Errorf("runtime after Stop = %v", status.Runtime())
	}

	// With launchd working again, Start goes through launchd.
	system.setLoadErr(nil)
	if err := core.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status, err = core.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if _, found := status.Lookup("started_by"); found || status.Runtime() != Running {
		t.Errorf("status after launchd start = %v %v", status.Runtime(), status.Info())
	}
	if system.count("spawn") != 1 {
		t.Errorf("calls = %v, want no further direct starts", system.calls)
	}
}

func TestFilesystemServiceDoesNotStartDirectly(t *testing.T) {
	ctx := context.Background()
	env := testEnvironment(t, "6.2.4")
	system := newFakeSystem()
	system.setLoadErr(errors.New("exit status 5"))
	fs := NewFilesystemService(env, testDependencies(system, &fakeHelper{}))

	if err := fs.Install(ctx); err == nil {
		t.Fatal("Install succeeded although launchd refused the job")
	}
	if system.count("spawn") != 0 {
		t.Errorf("calls = %v, want no direct start", system.calls)
	}
}

func TestFilesystemServiceMount(t *testing.T) {
	ctx := context.Background()
	env := testEnvironment(t, "6.2.4")
	actions := &fakeHelper{}
	fs := NewFilesystemService(env, testDependencies(newFakeSystem(), actions))

	if err := fs.Install(ctx); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if len(actions.mounts) != 1 {
		t.Fatalf("mount requests = %v", actions.mounts)
	}
	if request := actions.mounts[0]; request.Path != env.MountDir {
		t.Errorf("mount request = %+v", request)
	}

	status, err := fs.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if value, _ := status.Lookup("mount"); !strings.HasPrefix(value, env.MountDir) {
		t.Errorf("mount field = %q", value)
	}

	if err := fs.Uninstall(ctx); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	calls := strings.Join(actions.recorded(), " ")
	if !strings.Contains(calls, "mount.unmount mount.remove") {
		t.Errorf("helper calls = %s", calls)
	}
}

func TestKernelExtension(t *testing.T) {
	ctx := context.Background()
	env := testEnvironment(t, "6.2.4")
	actions := &fakeHelper{}
	kext := NewKernelExtension(env, testDependencies(newFakeSystem(), actions))

	status, err := kext.Status(ctx)
	if err != nil || status.Install() != NotInstalled {
		t.Fatalf("Status = %v, %v", status.Install(), err)
	}
	actions.fuse.Version = "6.2.4"
	if err := kext.Install(ctx); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if calls := strings.Join(actions.recorded(), " "); calls != "fuse.status fuse.install fuse.load" {
		t.Errorf("helper calls = %s", calls)
	}
	status, err = kext.Status(ctx)
	if err != nil || status.Install() != Installed || status.Runtime() != Running {
		t.Fatalf("Status after install = %v/%v, %v", status.Install(), status.Runtime(), err)
	}
	var loaded string
	for _, field := range kext.View(status) {
		if field.Name == "loaded" {
			loaded = field.Value
		}
	}
	if loaded != "true" {
		t.Errorf("view loaded = %q", loaded)
	}

	actions.fuse.Version = "6.2.0"
	status, _ = kext.Status(ctx)
	if status.Install() != NeedsUpgrade {
		t.Errorf("Status with older kext = %v", status.Install())
	}

	// An installed bundle without a version file is reinstalled, not
	// reported missing.
	actions.fuse.Version = ""
	status, err = kext.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status.Install() != Installed || status.Action() != ReinstallAction || status.Runtime() != Running {
		t.Errorf("Status without version = %v/%v/%v, want installed/reinstall/running",
			status.Install(), status.Action(), status.Runtime())
	}
	before := len(actions.recorded())
	if err := kext.Install(ctx); err != nil {
		t.Fatalf("Install without version: %v", err)
	}
	if calls := strings.Join(actions.recorded()[before:], " "); calls != "fuse.status fuse.install fuse.load" {
		t.Errorf("helper calls for unversioned bundle = %s", calls)
	}
}

func TestMountRedirector(t *testing.T) {
	ctx := context.Background()
	env := testEnvironment(t, "6.2.4")
	actions := &fakeHelper{}
	redirector := NewMountRedirector(env, testDependencies(newFakeSystem(), actions))

	if status, _ := redirector.Status(ctx); status.Install() != NotInstalled {
		t.Errorf("fresh status = %v", status.Install())
	}
	if err := redirector.Install(ctx); err != nil {
		t.Fatalf("Install: %v", err)
	}
	status, err := redirector.Status(ctx)
	if err != nil || status.Runtime() != Running {
		t.Fatalf("status = %v, %v", status.Runtime(), err)
	}
	if pid, _ := status.Lookup("pid"); pid != "77" {
		t.Errorf("pid = %q", pid)
	}
	before := len(actions.recorded())
	if err := redirector.Install(ctx); err != nil {
		t.Fatalf("second Install: %v", err)
	}
	for _, call := range actions.recorded()[before:] {
		if call == "redirector.start" {
			t.Error("Install restarted a running redirector")
		}
	}
	if err := redirector.Uninstall(ctx); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if status, _ := redirector.Status(ctx); status.Runtime() != NotRunning {
		t.Errorf("runtime after Uninstall = %v", status.Runtime())
	}
}

func TestCommandLineLink(t *testing.T) {
	ctx := context.Background()
	env := testEnvironment(t, "6.2.4")
	link := NewCommandLineLink(env, testDependencies(newFakeSystem(), &fakeHelper{}))

	status, err := link.Status(ctx)
	if err != nil || status.Install() != NotInstalled {
		t.Fatalf("fresh status = %v, %v", status.Install(), err)
	}
	for _, field := range link.View(status) {
		if field.Name == "runtime" {
			t.Error("link view shows a runtime state")
		}
	}

	if err := link.Install(ctx); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if target, _ := os.Readlink(env.CommandLinkPath); target != env.BinaryPath("cli") {
		t.Errorf("link target = %q", target)
	}
	status, _ = link.Status(ctx)
	if status.Install() != Installed || status.Runtime() != RuntimeUnknown {
		t.Errorf("status = %v/%v", status.Install(), status.Runtime())
	}

	if err := os.Remove(env.CommandLinkPath); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("/opt/other/warden", env.CommandLinkPath); err != nil {
		t.Fatal(err)
	}
	status, _ = link.Status(ctx)
	if status.Install() != InstallError || !errors.Is(status.Err(), helper.ErrLinkConflict) {
		t.Errorf("foreign link status = %v, %v", status.Install(), status.Err())
	}
	if err := link.Install(ctx); !errors.Is(err, helper.ErrLinkConflict) {
		t.Errorf("Install over foreign link: %v", err)
	}
	if err := link.Uninstall(ctx); err != nil {
		t.Fatalf("Uninstall of foreign link: %v", err)
	}
	if target, _ := os.Readlink(env.CommandLinkPath); target != "/opt/other/warden" {
		t.Error("Uninstall removed a foreign link")
	}
	if err := link.Install(WithForce(ctx)); err != nil {
		t.Fatalf("forced Install: %v", err)
	}
	if target, _ := os.Readlink(env.CommandLinkPath); target != env.BinaryPath("cli") {
		t.Errorf("forced link target = %q", target)
	}

	if err := link.Uninstall(ctx); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if _, err := os.Lstat(env.CommandLinkPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("link still present: %v", err)
	}
}

func TestCommandLineLinkFallsBackToHelper(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	ctx := context.Background()
	env := testEnvironment(t, "6.2.4")
	directory := filepath.Dir(env.CommandLinkPath)
	if err := os.MkdirAll(directory, 0o555); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(directory, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(directory, 0o755) })

	actions := &fakeHelper{}
	link := NewCommandLineLink(env, testDependencies(newFakeSystem(), actions))
	if err := link.Install(ctx); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if len(actions.links) != 1 || actions.links[0].Link != env.CommandLinkPath {
		t.Errorf("helper link requests = %+v", actions.links)
	}
}

func TestPrivilegedHelper(t *testing.T) {
	ctx := context.Background()
	env := testEnvironment(t, "6.2.4")
	system := newFakeSystem()
	actions := &fakeHelper{version: "6.2.4"}
	privileged := NewPrivilegedHelper(env, testDependencies(system, actions))

	if status, _ := privileged.Status(ctx); status.Install() != NotInstalled {
		t.Fatalf("fresh status = %v", status.Install())
	}
	if err := privileged.Install(ctx); err != nil {
		t.Fatalf("Install: %v", err)
	}
	staged := filepath.Join(env.PrivilegedToolsDir, env.Labels.Helper)
	info, err := os.Stat(staged)
	if err != nil {
		t.Fatalf("staged binary: %v", err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("staged mode = %v", info.Mode().Perm())
	}
	plist, err := launchd.ReadPlist(filepath.Join(env.LaunchDaemonsDir, env.Labels.Helper+".plist"))
	if err != nil {
		t.Fatalf("daemon plist: %v", err)
	}
	if plist.Program() != staged || !strings.Contains(strings.Join(plist.ProgramArguments, " "), "--allow-uid 501") {
		t.Errorf("plist arguments = %v", plist.ProgramArguments)
	}

	status, err := privileged.Status(ctx)
	if err != nil || status.Install() != Installed || status.Runtime() != Running {
		t.Fatalf("status = %v/%v, %v", status.Install(), status.Runtime(), err)
	}

	// An unreachable helper is judged by its staged binary.
	actions.versionErr = errors.New("connection refused")
	if status, _ := privileged.Status(ctx); status.Install() != Installed {
		t.Errorf("status by digest = %v (%v)", status.Install(), status.Err())
	}
	if err := os.WriteFile(env.BinaryPath("helper"), []byte("#!/bin/sh\n# newer\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if status, _ := privileged.Status(ctx); status.Install() != NeedsUpgrade {
		t.Errorf("status with changed bundle = %v", status.Install())
	}

	if err := privileged.Uninstall(ctx); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if _, err := os.Stat(staged); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("staged binary survived uninstall: %v", err)
	}
}
