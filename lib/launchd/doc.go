// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package launchd drives macOS launchd jobs through launchctl.
//
// A [Driver] wraps a [Runner] (the real one executes launchctl) and
// exposes the handful of operations the installer needs: load and
// unload a property list, query a job's status by label, and wait for
// a job to appear or disappear. Waits poll on an injected clock so
// tests can drive them with a fake.
//
// [Plist] renders the property list for a job. [Driver.Install] writes
// it atomically and loads it; [Driver.Uninstall] unloads the job and
// removes the file.
//
// Failures are classified into [ErrUnavailable] (launchctl is not on
// this machine), [ErrPermissionDenied], and [ErrNotFound] (no job with
// that label); other failures carry launchctl's output.
package launchd
