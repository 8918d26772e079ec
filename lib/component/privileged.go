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

	"github.com/bureau-foundation/warden/lib/artifact"
	"github.com/bureau-foundation/warden/lib/config"
	"github.com/bureau-foundation/warden/lib/launchd"
)

// PrivilegedHelper is the root helper daemon. Its binary is staged out
// of the bundle into the privileged tools directory, since launchd
// daemons must not run from a user-writable location.
type PrivilegedHelper struct {
	env  *config.Environment
	deps Dependencies

	label     string
	plistPath string
	installed string
}

func NewPrivilegedHelper(env *config.Environment, deps Dependencies) *PrivilegedHelper {
	return &PrivilegedHelper{
		env:       env,
		deps:      deps.withDefaults(),
		label:     env.Labels.Helper,
		plistPath: filepath.Join(env.LaunchDaemonsDir, env.Labels.Helper+".plist"),
		installed: filepath.Join(env.PrivilegedToolsDir, env.Labels.Helper),
	}
}

func (p *PrivilegedHelper) Descriptor() Descriptor {
	return Descriptor{Name: PrivilegedHelperKind.String(), Info: "privileged helper tool", Kind: PrivilegedHelperKind}
}

func (p *PrivilegedHelper) View(status Status) []Field { return DefaultView(status) }

func (p *PrivilegedHelper) plist() launchd.Plist {
	return launchd.Plist{
		Label: p.label,
		ProgramArguments: []string{
			p.installed,
			"--run-mode", string(p.env.RunMode),
			"--home", p.env.HomeDir,
			"--core-socket", p.env.SocketPath,
			"--mount-dir", p.env.MountDir,
			"--bin-dir", p.env.BinDir,
			"--socket", p.env.HelperSocketPath,
			"--allow-uid", strconv.Itoa(p.deps.UID),
		},
		EnvironmentVariables: JobEnvironment(p.env, p.label),
		KeepAlive:            true,
		RunAtLoad:            true,
		StandardErrorPath:    filepath.Join(p.env.LogDir, p.label+".log"),
		Comment:              "Managed by warden. Local edits are overwritten on upgrade.",
	}
}

// Status asks the running helper for its version. When the helper does
// not answer, the staged binary is compared with the bundled one
// instead.
func (p *PrivilegedHelper) Status(ctx context.Context) (Status, error) {
	fields := []Field{{Name: "label", Value: p.label}, {Name: "bundle_version", Value: p.env.BundleVersion}}
	if _, err := os.Stat(p.plistPath); errors.Is(err, os.ErrNotExist) {
		return NewStatus(NotInstalled, NotRunning, fields...), nil
	}

	runtime := NotRunning
	job, err := p.deps.Driver.Status(ctx, p.label)
	switch {
	case err == nil && job.Running():
		runtime = Running
		fields = append(fields, Field{Name: "pid", Value: strconv.Itoa(job.PID)})
	case err != nil && !errors.Is(err, launchd.ErrNotFound):
		return Status{}, err
	}

	if runtime == Running && p.deps.Helper != nil {
		running, err := p.deps.Helper.Version(ctx)
		if err == nil {
			fields = append(fields, Field{Name: "version", Value: running})
			status := ResolveVersions(running, p.env.BundleVersion, false)
			if status.Install() == InstallError {
				return ErrorStatus(status.Err(), fields...).WithRuntime(runtime).WithAction(status.Action()), nil
			}
			return status.WithRuntime(runtime).WithFields(fields...), nil
		}
		p.deps.Logger.Debug("helper did not report its version", "error", err)
	}

	source, err := artifact.Locate(p.env.BinaryPath(config.HelperBinary))
	if err != nil {
		return ErrorStatus(err, fields...).WithRuntime(runtime), nil
	}
	matches, err := artifact.Matches(source, p.installed)
	if err != nil {
		return ErrorStatus(err, fields...).WithRuntime(runtime).WithAction(ReinstallAction), nil
	}
	if !matches {
		return NewStatus(NeedsUpgrade, runtime, fields...), nil
	}
	return NewStatus(Installed, runtime, fields...), nil
}

func (p *PrivilegedHelper) Install(ctx context.Context) error {
	status, err := p.Status(ctx)
	if err != nil {
		return err
	}
	if !Forced(ctx) {
		if status.Install() == Installed && !status.NeedsWork() {
			return nil
		}
		if status.Install() == InstallError && !status.NeedsWork() {
			return status.Err()
		}
	}

	source, err := artifact.Locate(p.env.BinaryPath(config.HelperBinary))
	if err != nil {
		return err
	}
	// The old binary is replaced while launchd may still run it; the
	// job is reloaded right after.
	digest, err := artifact.Stage(source, p.installed, 0o755)
	if err != nil {
		return err
	}
	p.deps.Logger.Info("staged privileged helper",
		"path", p.installed,
		"digest", digest.Short(),
		"action", status.Action().String(),
	)
	if err := os.MkdirAll(filepath.Dir(p.plistPath), 0o755); err != nil {
		return err
	}
	return p.deps.Driver.Install(ctx, p.plistPath, p.plist())
}

func (p *PrivilegedHelper) Uninstall(ctx context.Context) error {
	if err := p.deps.Driver.Uninstall(ctx, p.plistPath, p.label); err != nil {
		return err
	}
	if err := os.Remove(p.installed); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", p.installed, err)
	}
	return nil
}

func (p *PrivilegedHelper) Start(ctx context.Context) error {
	if _, err := os.Stat(p.plistPath); err != nil {
		return fmt.Errorf("privileged helper is not installed: %w", err)
	}
	if _, err := p.deps.Driver.Status(ctx, p.label); err == nil {
		return nil
	}
	return p.deps.Driver.Load(ctx, p.plistPath, p.label, false)
}

func (p *PrivilegedHelper) Stop(ctx context.Context) error {
	return p.deps.Driver.Unload(ctx, p.plistPath, p.label, false)
}
