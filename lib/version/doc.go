// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version holds build information for warden binaries and
// compares component versions.
//
// [Version], [GitCommit], and [BuildTime] are injected with -ldflags
// -X and fall back to development defaults. [Info] and [Full] format
// them for --version output.
//
// [Compare] orders two semantic versions. Components use it to decide
// between Installed, NeedsUpgrade, and the error state where the
// bundled version is older than what is installed.
package version
