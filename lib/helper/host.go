// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package helper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/bureau-foundation/warden/lib/launchd"
)

// HostOptions configures a Host.
type HostOptions struct {
	// Version is reported by helper.version.
	Version string

	Logger *slog.Logger

	// Runner executes kmutil. Defaults to launchd.ExecRunner.
	Runner launchd.Runner

	// Driver manages the redirector job.
	Driver *launchd.Driver

	// FuseBundle is the filesystem bundle shipped inside the app.
	// FuseInstallPath is where it is installed, for example
	// /Library/Filesystems/warden.fs. FuseBundleID is the kernel
	// extension's bundle identifier.
	FuseBundle      string
	FuseInstallPath string
	FuseBundleID    string

	// RedirectorPlistPath and RedirectorPlist define the mount
	// redirector daemon.
	RedirectorPlistPath string
	RedirectorPlist     launchd.Plist

	// MountDir is the only directory the mount actions touch.
	MountDir string

	// CommandLinkPath is the only link the link actions touch, and
	// CommandLinkTarget the only target it may point to.
	CommandLinkPath   string
	CommandLinkTarget string
}

// Host performs helper actions on the local machine. It is what the
// helper daemon serves.
type Host struct {
	options HostOptions
	logger  *slog.Logger
	runner  launchd.Runner
}

var _ Actions = (*Host)(nil)

func NewHost(options HostOptions) *Host {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	runner := options.Runner
	if runner == nil {
		runner = launchd.ExecRunner{}
	}
	if options.Driver == nil {
		options.Driver = launchd.NewDriver(launchd.DriverOptions{Runner: runner, Logger: logger})
	}
	return &Host{options: options, logger: logger, runner: runner}
}

func (h *Host) Version(context.Context) (string, error) {
	return h.options.Version, nil
}

// fuseVersionFile is the file inside a filesystem bundle naming its
// version.
const fuseVersionFile = "VERSION"

func (h *Host) FuseStatus(ctx context.Context) (FuseStatus, error) {
	var status FuseStatus
	info, err := os.Stat(h.options.FuseInstallPath)
	switch {
	case os.IsNotExist(err):
		return status, nil
	case err != nil:
		return status, err
	case !info.IsDir():
		return status, fmt.Errorf("%s is not a directory", h.options.FuseInstallPath)
	}
	status.Installed = true
	if data, err := os.ReadFile(filepath.Join(h.options.FuseInstallPath, fuseVersionFile)); err == nil {
		status.Version = strings.TrimSpace(string(data))
	}
	loaded, err := h.fuseLoaded(ctx)
	if err != nil {
		return status, err
	}
	status.Loaded = loaded
	return status, nil
}

func (h *Host) fuseLoaded(ctx context.Context) (bool, error) {
	output, err := h.runner.Run(ctx, "kmutil", "showloaded", "--list-only", "--bundle-identifier", h.options.FuseBundleID)
	if err != nil {
		return false, fmt.Errorf("kmutil showloaded: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return strings.Contains(string(output), h.options.FuseBundleID), nil
}

// InstallFuse copies the bundled filesystem into place, replacing any
// previous install. A loaded extension is unloaded first.
func (h *Host) InstallFuse(ctx context.Context) error {
	if h.options.FuseBundle == "" {
		return fmt.Errorf("no filesystem bundle configured")
	}
	if err := h.UninstallFuse(ctx); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(h.options.FuseInstallPath), 0o755); err != nil {
		return err
	}
	if err := os.CopyFS(h.options.FuseInstallPath, os.DirFS(h.options.FuseBundle)); err != nil {
		return fmt.Errorf("copying %s to %s: %w", h.options.FuseBundle, h.options.FuseInstallPath, err)
	}
	h.logger.Info("installed filesystem bundle", "path", h.options.FuseInstallPath)
	return nil
}

func (h *Host) UninstallFuse(ctx context.Context) error {
	if _, err := os.Stat(h.options.FuseInstallPath); os.IsNotExist(err) {
		return nil
	}
	if err := h.UnloadFuse(ctx); err != nil {
		return err
	}
	if err := os.RemoveAll(h.options.FuseInstallPath); err != nil {
		return fmt.Errorf("removing %s: %w", h.options.FuseInstallPath, err)
	}
	return nil
}

func (h *Host) LoadFuse(ctx context.Context) error {
	loaded, err := h.fuseLoaded(ctx)
	if err != nil || loaded {
		return err
	}
	output, err := h.runner.Run(ctx, "kmutil", "load", "-p", h.options.FuseInstallPath)
	if err != nil {
		return fmt.Errorf("kmutil load: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (h *Host) UnloadFuse(ctx context.Context) error {
	loaded, err := h.fuseLoaded(ctx)
	if err != nil || !loaded {
		return err
	}
	output, err := h.runner.Run(ctx, "kmutil", "unload", "-b", h.options.FuseBundleID)
	if err != nil {
		return fmt.Errorf("kmutil unload: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// managed returns nil when path is the configured path want. An empty
// want allows nothing.
func managed(path, want string) error {
	if want == "" || !filepath.IsAbs(path) || filepath.Clean(path) != filepath.Clean(want) {
		return fmt.Errorf("%q: %w", path, ErrPathNotAllowed)
	}
	return nil
}

func (h *Host) CreateMount(ctx context.Context, request MountRequest) error {
	if err := managed(request.Path, h.options.MountDir); err != nil {
		return err
	}
	owner, err := callerCredentials(ctx)
	if err != nil {
		return err
	}
	info, err := os.Lstat(request.Path)
	switch {
	case os.IsNotExist(err):
		if err := os.Mkdir(request.Path, 0o755); err != nil {
			return err
		}
	case err != nil:
		return err
	case !info.IsDir():
		return fmt.Errorf("%s exists and is not a directory", request.Path)
	}
	if err := os.Lchown(request.Path, int(owner.UID), int(owner.GID)); err != nil {
		return err
	}
	h.logger.Info("mount directory ready", "path", request.Path, "uid", owner.UID, "gid", owner.GID)
	return nil
}

func (h *Host) RemoveMount(_ context.Context, path string) error {
	if err := managed(path, h.options.MountDir); err != nil {
		return err
	}
	err := os.Remove(path)
	switch {
	case err == nil, os.IsNotExist(err):
		return nil
	case errors.Is(err, syscall.ENOTEMPTY), errors.Is(err, syscall.EEXIST):
		return fmt.Errorf("%s: %w", path, ErrMountNotEmpty)
	default:
		return err
	}
}

func (h *Host) Unmount(_ context.Context, path string) error {
	if err := managed(path, h.options.MountDir); err != nil {
		return err
	}
	mounted, err := IsMountPoint(path)
	if err != nil || !mounted {
		return err
	}
	return unmount(path)
}

func (h *Host) RedirectorStatus(ctx context.Context) (RedirectorStatus, error) {
	var status RedirectorStatus
	if _, err := os.Stat(h.options.RedirectorPlistPath); err == nil {
		status.Installed = true
	}
	job, err := h.options.Driver.Status(ctx, h.options.RedirectorPlist.Label)
	if errors.Is(err, launchd.ErrNotFound) {
		return status, nil
	}
	if err != nil {
		return status, err
	}
	status.Running = job.Running()
	status.PID = job.PID
	return status, nil
}

// StartRedirector installs the redirector job if needed and loads it.
func (h *Host) StartRedirector(ctx context.Context) error {
	if _, err := os.Stat(h.options.RedirectorPlistPath); os.IsNotExist(err) {
		return h.options.Driver.Install(ctx, h.options.RedirectorPlistPath, h.options.RedirectorPlist)
	}
	if _, err := h.options.Driver.Status(ctx, h.options.RedirectorPlist.Label); err == nil {
		return nil
	}
	return h.options.Driver.Load(ctx, h.options.RedirectorPlistPath, h.options.RedirectorPlist.Label, false)
}

func (h *Host) StopRedirector(ctx context.Context) error {
	return h.options.Driver.Unload(ctx, h.options.RedirectorPlistPath, h.options.RedirectorPlist.Label, false)
}

func (h *Host) Link(_ context.Context, request LinkRequest) error {
	if err := managed(request.Link, h.options.CommandLinkPath); err != nil {
		return err
	}
	if err := managed(request.Target, h.options.CommandLinkTarget); err != nil {
		return fmt.Errorf("link target: %w", err)
	}
	return CreateLink(request)
}

func (h *Host) Unlink(_ context.Context, path string) error {
	if err := managed(path, h.options.CommandLinkPath); err != nil {
		return err
	}
	return RemoveLink(path)
}
