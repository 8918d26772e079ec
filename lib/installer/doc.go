// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package installer drives warden's components through install,
// uninstall, start, and stop.
//
// A [Manager] takes the components built by component.Build and runs
// one operation across them. Install plans first: it probes every
// component and creates an [Action] only for those that are missing,
// outdated, or broken (or for all of them with [Options].Force). The
// plan then runs rank by rank in dependency order, with the actions of
// one rank running concurrently. A component whose required dependency
// failed or was skipped is skipped in turn, its action carrying a
// component.SkippedDueToDependency error and Attempted false.
//
// Uninstall and Stop run in reverse rank order and attempt every
// component. Start runs in rank order with the same skipping as
// Install.
//
// Every run logs under a fresh operation_id so the lines of one run
// can be pulled out of an interleaved log.
package installer
