// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package component

import (
	"context"
	"strconv"

	"github.com/bureau-foundation/warden/lib/config"
)

// KernelExtension is the filesystem kernel extension, installed and
// loaded by the helper.
type KernelExtension struct {
	env  *config.Environment
	deps Dependencies
}

func NewKernelExtension(env *config.Environment, deps Dependencies) *KernelExtension {
	return &KernelExtension{env: env, deps: deps.withDefaults()}
}

func (k *KernelExtension) Descriptor() Descriptor {
	return Descriptor{Name: KernelExtensionKind.String(), Info: "filesystem kernel extension", Kind: KernelExtensionKind}
}

func (k *KernelExtension) View(status Status) []Field {
	fields := DefaultView(status)
	for i := range fields {
		if fields[i].Name == "runtime" && status.Runtime() != RuntimeUnknown {
			fields[i] = Field{Name: "loaded", Value: strconv.FormatBool(status.Runtime() == Running)}
		}
	}
	return fields
}

// Status maps "loaded" to Running.
func (k *KernelExtension) Status(ctx context.Context) (Status, error) {
	fuse, err := k.deps.Helper.FuseStatus(ctx)
	if err != nil {
		return Status{}, err
	}
	if !fuse.Installed {
		return NewStatus(NotInstalled, NotRunning), nil
	}
	runtime := NotRunning
	if fuse.Loaded {
		runtime = Running
	}
	fields := []Field{{Name: "bundle_version", Value: k.env.BundleVersion}}
	if fuse.Version == "" {
		// Installed, but the bundle does not say which version it is.
		return NewStatus(Installed, runtime, fields...).WithAction(ReinstallAction), nil
	}
	fields = append(fields, Field{Name: "version", Value: fuse.Version})
	status := ResolveVersions(fuse.Version, k.env.BundleVersion, false)
	if status.Install() == InstallError {
		return ErrorStatus(status.Err(), fields...).WithRuntime(runtime).WithAction(status.Action()), nil
	}
	return status.WithRuntime(runtime).WithFields(fields...), nil
}

// Install installs when missing or outdated and makes sure the
// extension is loaded.
func (k *KernelExtension) Install(ctx context.Context) error {
	status, err := k.Status(ctx)
	if err != nil {
		return err
	}
	if Forced(ctx) || status.NeedsWork() {
		if err := k.deps.Helper.InstallFuse(ctx); err != nil {
			return err
		}
	} else if status.Install() == InstallError {
		return status.Err()
	}
	return k.deps.Helper.LoadFuse(ctx)
}

func (k *KernelExtension) Uninstall(ctx context.Context) error {
	return k.deps.Helper.UninstallFuse(ctx)
}

func (k *KernelExtension) Start(ctx context.Context) error {
	return k.deps.Helper.LoadFuse(ctx)
}

func (k *KernelExtension) Stop(ctx context.Context) error {
	return k.deps.Helper.UnloadFuse(ctx)
}

// MountRedirector serves the mount directory to other users' sessions.
// The helper owns its daemon; there is no separate version to track.
type MountRedirector struct {
	env  *config.Environment
	deps Dependencies
}

func NewMountRedirector(env *config.Environment, deps Dependencies) *MountRedirector {
	return &MountRedirector{env: env, deps: deps.withDefaults()}
}

func (m *MountRedirector) Descriptor() Descriptor {
	return Descriptor{Name: MountRedirectorKind.String(), Info: "mount redirector", Kind: MountRedirectorKind}
}

func (m *MountRedirector) View(status Status) []Field { return DefaultView(status) }

func (m *MountRedirector) Status(ctx context.Context) (Status, error) {
	redirector, err := m.deps.Helper.RedirectorStatus(ctx)
	if err != nil {
		return Status{}, err
	}
	fields := []Field{{Name: "label", Value: m.env.Labels.Redirector}}
	if !redirector.Installed {
		return NewStatus(NotInstalled, NotRunning, fields...), nil
	}
	if !redirector.Running {
		return NewStatus(Installed, NotRunning, fields...), nil
	}
	fields = append(fields, Field{Name: "pid", Value: strconv.Itoa(redirector.PID)})
	return NewStatus(Installed, Running, fields...), nil
}

func (m *MountRedirector) Install(ctx context.Context) error {
	if !Forced(ctx) {
		status, err := m.Status(ctx)
		if err != nil {
			return err
		}
		if status.Install() == Installed && status.Runtime() == Running {
			return nil
		}
	}
	return m.deps.Helper.StartRedirector(ctx)
}

func (m *MountRedirector) Uninstall(ctx context.Context) error {
	return m.deps.Helper.StopRedirector(ctx)
}

func (m *MountRedirector) Start(ctx context.Context) error {
	return m.deps.Helper.StartRedirector(ctx)
}

func (m *MountRedirector) Stop(ctx context.Context) error {
	return m.deps.Helper.StopRedirector(ctx)
}
