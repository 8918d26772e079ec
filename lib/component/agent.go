// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package component

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/bureau-foundation/warden/lib/config"
	"github.com/bureau-foundation/warden/lib/helper"
	"github.com/bureau-foundation/warden/lib/launchd"
	"github.com/bureau-foundation/warden/lib/watchdog"
)

// Environment variables set on every job.
const (
	EnvLabel      = "WARDEN_LABEL"
	EnvRunMode    = "WARDEN_RUN_MODE"
	EnvRuntimeDir = "WARDEN_RUNTIME_DIR"
	EnvVersion    = "WARDEN_VERSION"
)

const jobPath = "/sbin:/usr/sbin:/bin:/usr/bin:/usr/local/bin"

// JobEnvironment returns the environment launchd passes to the job
// with label. WARDEN_VERSION records the version being installed, which
// is how later probes learn the installed version without running it.
func JobEnvironment(env *config.Environment, label string) map[string]string {
	return map[string]string{
		EnvLabel:      label,
		EnvRunMode:    string(env.RunMode),
		EnvRuntimeDir: env.RuntimeDir,
		EnvVersion:    env.BundleVersion,
		"PATH":        jobPath,
	}
}

// launchdJob is a launchd-managed process running a bundled binary. The
// agent components embed it.
type launchdJob struct {
	descriptor Descriptor
	env        *config.Environment
	deps       Dependencies

	label     string
	plistPath string
	binary    string
	arguments []string

	// probe, when set, asks the running process for its version. Jobs
	// with a probe get upgrade watchdog tracking.
	probe func(ctx context.Context) (ServiceInfo, error)

	// fallback starts the program directly when launchd fails to load
	// the installed plist.
	fallback bool
}

func newAgent(env *config.Environment, deps Dependencies, descriptor Descriptor, label string, binary config.Binary, arguments ...string) launchdJob {
	return launchdJob{
		descriptor: descriptor,
		env:        env,
		deps:       deps,
		label:      label,
		plistPath:  filepath.Join(env.LaunchAgentsDir, label+".plist"),
		binary:     env.BinaryPath(binary),
		arguments:  arguments,
	}
}

func (j *launchdJob) Descriptor() Descriptor { return j.descriptor }

func (j *launchdJob) View(status Status) []Field { return DefaultView(status) }

func (j *launchdJob) plist() launchd.Plist {
	logPath := filepath.Join(j.env.LogDir, j.descriptor.Name+".log")
	return launchd.Plist{
		Label:                j.label,
		ProgramArguments:     append([]string{j.binary}, j.arguments...),
		EnvironmentVariables: JobEnvironment(j.env, j.label),
		KeepAlive:            true,
		RunAtLoad:            true,
		StandardOutPath:      logPath,
		StandardErrorPath:    logPath,
		Comment:              "Managed by warden. Local edits are overwritten on upgrade.",
	}
}

// Status reads the installed plist, the launchd job, and for probed
// jobs the running version and any upgrade record.
func (j *launchdJob) Status(ctx context.Context) (Status, error) {
	fields := []Field{{Name: "label", Value: j.label}}

	installed, err := launchd.ReadPlist(j.plistPath)
	if errors.Is(err, os.ErrNotExist) {
		return NewStatus(NotInstalled, NotRunning, fields...), nil
	}
	if err != nil {
		return ErrorStatus(err, fields...).WithAction(ReinstallAction), nil
	}

	job, err := j.deps.Driver.Status(ctx, j.label)
	loaded := true
	if errors.Is(err, launchd.ErrNotFound) {
		loaded = false
	} else if err != nil {
		return Status{}, err
	}

	runtime := NotRunning
	if loaded && job.Running() {
		runtime = Running
		fields = append(fields, Field{Name: "pid", Value: strconv.Itoa(job.PID)})
	} else if pid, ok := j.fallbackPID(); ok {
		runtime = Running
		fields = append(fields, Field{Name: "pid", Value: strconv.Itoa(pid)}, Field{Name: "started_by", Value: "warden"})
	}
	if loaded && job.HasExitStatus {
		fields = append(fields, Field{Name: "last_exit_status", Value: strconv.Itoa(job.LastExitStatus)})
	}

	installedVersion := installed.EnvironmentVariables[EnvVersion]
	if installedVersion != "" {
		fields = append(fields, Field{Name: "version", Value: installedVersion})
	}
	fields = append(fields, Field{Name: "bundle_version", Value: j.env.BundleVersion})

	status := ResolveVersions(installedVersion, j.env.BundleVersion, job.HasExitStatus)
	if status.Install() == InstallError {
		return ErrorStatus(status.Err(), fields...).WithRuntime(runtime).WithAction(status.Action()), nil
	}
	if status.Install() == NotInstalled {
		// The plist exists but does not say what it installed.
		status = NewStatus(Installed, runtime).WithAction(ReinstallAction)
	}
	if installed.Program() != j.binary && !status.NeedsWork() {
		status = status.WithAction(ReinstallAction)
		fields = append(fields, Field{Name: "program", Value: installed.Program()})
	}
	status = status.WithRuntime(runtime).WithFields(fields...)

	if j.probe == nil || runtime != Running {
		return status, nil
	}
	info, err := j.probe(ctx)
	if err != nil {
		return ErrorStatus(fmt.Errorf("status probe: %w", err), fields...).WithRuntime(runtime).WithAction(ReinstallAction), nil
	}
	status = status.WithFields(Field{Name: "running_version", Value: info.Version})

	record, found, err := watchdog.Check(j.env.WatchdogPath, j.deps.WatchdogMaxAge, j.deps.Clock.Now())
	if err != nil {
		j.deps.Logger.Warn("reading upgrade watchdog", "component", j.descriptor.Name, "error", err)
		return status, nil
	}
	if found && record.Label == j.label && record.Evaluate(info.Version) == watchdog.RolledBack {
		err := fmt.Errorf("upgrade to %s did not take effect: %s is still running", record.NewVersion, info.Version)
		return ErrorStatus(err, status.Info()...).WithRuntime(runtime).WithAction(ReinstallAction), nil
	}
	return status, nil
}

// Install writes and loads the plist when the job is missing, outdated,
// or forced. For probed jobs replacing a running older version, the
// upgrade is recorded first and checked after the restart.
func (j *launchdJob) Install(ctx context.Context) error {
	status, err := j.Status(ctx)
	if err != nil {
		return err
	}
	forced := Forced(ctx)
	if !forced {
		if status.Install() == Installed && !status.NeedsWork() {
			j.deps.Logger.Debug("component is current", "component", j.descriptor.Name, "label", j.label)
			return nil
		}
		if status.Install() == InstallError && !status.NeedsWork() {
			return status.Err()
		}
	}

	if _, err := os.Stat(j.binary); err != nil {
		return fmt.Errorf("bundled binary: %w", err)
	}
	for _, directory := range []string{filepath.Dir(j.plistPath), j.env.LogDir} {
		if err := os.MkdirAll(directory, 0o755); err != nil {
			return err
		}
	}

	var upgrade *watchdog.State
	if j.probe != nil && status.Runtime() == Running {
		previous, _ := status.Lookup("running_version")
		if previous != "" && previous != j.env.BundleVersion {
			upgrade = &watchdog.State{
				Component:       j.descriptor.Name,
				Label:           j.label,
				PreviousVersion: previous,
				NewVersion:      j.env.BundleVersion,
				Timestamp:       j.deps.Clock.Now(),
			}
			if err := os.MkdirAll(filepath.Dir(j.env.WatchdogPath), 0o755); err != nil {
				return err
			}
			if err := watchdog.Write(j.env.WatchdogPath, *upgrade); err != nil {
				return err
			}
		}
	}

	if err := j.stopFallback(); err != nil {
		return err
	}
	j.deps.Logger.Info("installing launchd job",
		"component", j.descriptor.Name,
		"label", j.label,
		"action", status.Action().String(),
		"version", j.env.BundleVersion,
	)
	if err := j.deps.Driver.Install(ctx, j.plistPath, j.plist()); err != nil {
		if !j.fallback || ctx.Err() != nil {
			return err
		}
		if err := j.startFallback(err); err != nil {
			return err
		}
	}
	if upgrade != nil {
		return j.verifyUpgrade(ctx, *upgrade)
	}
	return nil
}

// verifyUpgrade probes the restarted job once. A probe failure leaves
// the record for later status checks to judge.
func (j *launchdJob) verifyUpgrade(ctx context.Context, upgrade watchdog.State) error {
	info, err := j.probe(ctx)
	if err != nil {
		j.deps.Logger.Debug("upgrade not yet verifiable", "component", j.descriptor.Name, "error", err)
		return nil
	}
	switch upgrade.Evaluate(info.Version) {
	case watchdog.Succeeded:
		return watchdog.Clear(j.env.WatchdogPath)
	case watchdog.RolledBack:
		return fmt.Errorf("upgrade to %s did not take effect: %s is still running", upgrade.NewVersion, info.Version)
	}
	return nil
}

func (j *launchdJob) Uninstall(ctx context.Context) error {
	if err := j.stopFallback(); err != nil {
		return err
	}
	if err := j.deps.Driver.Uninstall(ctx, j.plistPath, j.label); err != nil {
		return err
	}
	if j.probe != nil {
		record, err := watchdog.Read(j.env.WatchdogPath)
		if err == nil && record.Label == j.label {
			return watchdog.Clear(j.env.WatchdogPath)
		}
	}
	return nil
}

func (j *launchdJob) Start(ctx context.Context) error {
	if _, err := os.Stat(j.plistPath); err != nil {
		return fmt.Errorf("%s is not installed: %w", j.descriptor.Name, err)
	}
	if _, err := j.deps.Driver.Status(ctx, j.label); err == nil {
		return nil
	}
	if _, ok := j.fallbackPID(); ok {
		return nil
	}
	return j.deps.Driver.Load(ctx, j.plistPath, j.label, false)
}

func (j *launchdJob) Stop(ctx context.Context) error {
	if err := j.stopFallback(); err != nil {
		return err
	}
	return j.deps.Driver.Unload(ctx, j.plistPath, j.label, false)
}

// CoreService is the core daemon. Its status includes the version the
// running process reports.
type CoreService struct {
	launchdJob
}

func NewCoreService(env *config.Environment, deps Dependencies) *CoreService {
	deps = deps.withDefaults()
	service := &CoreService{newAgent(env, deps,
		Descriptor{Name: CoreServiceKind.String(), Info: "core service daemon", Kind: CoreServiceKind},
		env.Labels.Core, config.CoreBinary,
		"service", "--run-mode", string(env.RunMode), "--socket", env.SocketPath,
	)}
	service.probe = func(ctx context.Context) (ServiceInfo, error) {
		return ProbeService(ctx, deps.Runner, service.binary)
	}
	service.fallback = true
	return service
}

// FilesystemService is the filesystem daemon. It needs the mount
// directory, which only the helper can create.
type FilesystemService struct {
	launchdJob
}

func NewFilesystemService(env *config.Environment, deps Dependencies) *FilesystemService {
	deps = deps.withDefaults()
	return &FilesystemService{newAgent(env, deps,
		Descriptor{Name: FilesystemServiceKind.String(), Info: "filesystem service", Kind: FilesystemServiceKind},
		env.Labels.Filesystem, config.FilesystemBinary,
		"--run-mode", string(env.RunMode), "--socket", env.SocketPath, "--mount", env.MountDir,
	)}
}

func (f *FilesystemService) Status(ctx context.Context) (Status, error) {
	status, err := f.launchdJob.Status(ctx)
	if err != nil {
		return status, err
	}
	field := Field{Name: "mount", Value: f.env.MountDir}
	if mounted, err := helper.IsMountPoint(f.env.MountDir); err == nil && mounted {
		field.Value += " (mounted)"
	}
	return status.WithFields(field), nil
}

func (f *FilesystemService) Install(ctx context.Context) error {
	request := helper.MountRequest{Path: f.env.MountDir}
	if err := f.deps.Helper.CreateMount(ctx, request); err != nil {
		return fmt.Errorf("creating mount directory: %w", err)
	}
	return f.launchdJob.Install(ctx)
}

// Uninstall stops the service, then unmounts and removes the mount
// directory. A directory that still has contents after unmounting is
// an error and is left in place.
func (f *FilesystemService) Uninstall(ctx context.Context) error {
	stopErr := f.launchdJob.Uninstall(ctx)
	if stopErr != nil {
		f.deps.Logger.Warn("filesystem service did not uninstall cleanly", "error", stopErr)
	}
	if err := f.deps.Helper.Unmount(ctx, f.env.MountDir); err != nil {
		return errors.Join(stopErr, fmt.Errorf("unmounting %s: %w", f.env.MountDir, err))
	}
	if err := f.deps.Helper.RemoveMount(ctx, f.env.MountDir); err != nil {
		return errors.Join(stopErr, err)
	}
	return stopErr
}

// UpdaterService periodically checks for new bundles.
type UpdaterService struct {
	launchdJob
}

func NewUpdaterService(env *config.Environment, deps Dependencies) *UpdaterService {
	deps = deps.withDefaults()
	return &UpdaterService{newAgent(env, deps,
		Descriptor{Name: UpdaterServiceKind.String(), Info: "updater service", Kind: UpdaterServiceKind},
		env.Labels.Updater, config.UpdaterBinary,
		"--run-mode", string(env.RunMode), "--cli", env.BinaryPath(config.CLIBinary),
	)}
}
