// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package component models the background pieces warden installs and
// keeps running.
//
// Every piece implements [Installable]: a [Descriptor], a pure
// [Installable.Status] probe, and blocking Install, Uninstall, Start,
// and Stop operations that each return one terminal error. There is
// one concrete type per [Kind]:
//
//   - [CoreService], [FilesystemService], and [UpdaterService] are
//     per-user launchd agents running binaries from the application
//     bundle.
//   - [PrivilegedHelper] is a root launchd daemon whose binary is
//     staged out of the bundle into the privileged tools directory.
//   - [KernelExtension] and [MountRedirector] are driven through the
//     helper, since only root may touch them.
//   - [CommandLineLink] is the command-line symlink.
//
// [Build] constructs them from a resolved config.Environment and the
// shared [Dependencies].
//
// A [Status] is an immutable value built only by [NewStatus] or
// [ErrorStatus], so Install() is InstallError exactly when Err() is
// non-nil. Alongside the install and runtime states it carries the
// [ActionKind] the installer should take and ordered display [Field]s.
//
// Install decides between a fresh install, an upgrade, and a no-op
// from the installed and bundled versions (see [ResolveVersions]). A
// context marked with [WithForce] makes Install redo the work even when
// the component is current.
package component
