// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package helper

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/warden/lib/rpc"
)

// Method names served by the helper daemon.
const (
	MethodVersion          = "helper.version"
	MethodFuseStatus       = "fuse.status"
	MethodFuseInstall      = "fuse.install"
	MethodFuseUninstall    = "fuse.uninstall"
	MethodFuseLoad         = "fuse.load"
	MethodFuseUnload       = "fuse.unload"
	MethodMountCreate      = "mount.create"
	MethodMountRemove      = "mount.remove"
	MethodMountUnmount     = "mount.unmount"
	MethodRedirectorStatus = "redirector.status"
	MethodRedirectorStart  = "redirector.start"
	MethodRedirectorStop   = "redirector.stop"
	MethodLink             = "cli.link"
	MethodUnlink           = "cli.unlink"
)

// Actions is everything the privileged helper can do.
type Actions interface {
	Version(ctx context.Context) (string, error)

	FuseStatus(ctx context.Context) (FuseStatus, error)
	InstallFuse(ctx context.Context) error
	UninstallFuse(ctx context.Context) error
	LoadFuse(ctx context.Context) error
	UnloadFuse(ctx context.Context) error

	// CreateMount creates the mount directory owned by the calling
	// user, as identified by the connection's peer credentials. An
	// existing directory is re-owned.
	CreateMount(ctx context.Context, request MountRequest) error
	// RemoveMount removes an empty mount directory. A missing one is
	// fine; a non-empty one is ErrMountNotEmpty.
	RemoveMount(ctx context.Context, path string) error
	// Unmount unmounts path if something is mounted there.
	Unmount(ctx context.Context, path string) error

	RedirectorStatus(ctx context.Context) (RedirectorStatus, error)
	StartRedirector(ctx context.Context) error
	StopRedirector(ctx context.Context) error

	Link(ctx context.Context, request LinkRequest) error
	Unlink(ctx context.Context, path string) error
}

// FuseStatus describes the filesystem kernel extension.
type FuseStatus struct {
	Installed bool `msgpack:"installed"`
	Loaded    bool `msgpack:"loaded"`

	// Version is the installed bundle's version, empty when not
	// installed or unknown.
	Version string `msgpack:"version"`
}

// RedirectorStatus describes the mount redirector job.
type RedirectorStatus struct {
	Installed bool `msgpack:"installed"`
	Running   bool `msgpack:"running"`
	PID       int  `msgpack:"pid"`
}

// MountRequest names the mount directory to create. The owner is never
// part of the request.
type MountRequest struct {
	Path string `msgpack:"path"`
}

// LinkRequest asks for Link to be a symlink to Target.
type LinkRequest struct {
	Target string `msgpack:"target"`
	Link   string `msgpack:"link"`

	// Force replaces a symlink pointing elsewhere. A regular file at
	// Link is never replaced.
	Force bool `msgpack:"force"`
}

type pathRequest struct {
	Path string `msgpack:"path"`
}

type versionResult struct {
	Version string `msgpack:"version"`
}

var (
	// ErrNotSymlink means a path that should be a symlink is something
	// else, and is left alone.
	ErrNotSymlink = errors.New("path exists and is not a symlink")

	// ErrLinkConflict means the link exists and points elsewhere.
	ErrLinkConflict = errors.New("symlink points elsewhere")

	// ErrMountNotEmpty means the mount directory still has contents.
	ErrMountNotEmpty = errors.New("mount directory is not empty")

	// ErrPathNotAllowed means a request named a path other than the
	// one the helper was configured to manage.
	ErrPathNotAllowed = errors.New("path is not managed by the helper")
)

// Wire codes for the sentinels. Codes below 16 belong to lib/rpc.
const (
	CodeNotSymlink     = 16
	CodeLinkConflict   = 17
	CodeMountNotEmpty  = 18
	CodePathNotAllowed = 19
)

var wireErrors = []struct {
	sentinel error
	code     int
	name     string
}{
	{ErrNotSymlink, CodeNotSymlink, "NOT_SYMLINK"},
	{ErrLinkConflict, CodeLinkConflict, "LINK_CONFLICT"},
	{ErrMountNotEmpty, CodeMountNotEmpty, "MOUNT_NOT_EMPTY"},
	{ErrPathNotAllowed, CodePathNotAllowed, "PATH_NOT_ALLOWED"},
}

// encodeError gives sentinel failures their wire name.
func encodeError(err error) error {
	for _, known := range wireErrors {
		if errors.Is(err, known.sentinel) {
			return rpc.NewError(known.code, known.name, err.Error())
		}
	}
	return err
}

// decodeError restores the sentinel for a named remote error.
func decodeError(err error) error {
	var rpcErr *rpc.Error
	if !errors.As(err, &rpcErr) || !rpcErr.Remote() {
		return err
	}
	for _, known := range wireErrors {
		if rpcErr.Name == known.name {
			return &remoteFailure{sentinel: known.sentinel, err: rpcErr}
		}
	}
	return err
}

// remoteFailure matches both the sentinel and the *rpc.Error it came
// from.
type remoteFailure struct {
	sentinel error
	err      *rpc.Error
}

func (f *remoteFailure) Error() string {
	return fmt.Sprintf("helper: %s", f.err.Description)
}

func (f *remoteFailure) Unwrap() []error { return []error{f.sentinel, f.err} }
