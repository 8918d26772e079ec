// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package watchdog tracks launchd job upgrades across the restart that
// applies them.
//
// Replacing a job's binary and restarting it can silently fail: launchd
// may bring back a cached copy, or the new binary may crash and a
// KeepAlive respawn may race the install. The installer therefore
// writes a [State] naming the previous and new versions before the
// restart:
//
//  1. [Write] the state with PreviousVersion and NewVersion.
//  2. Replace the binary and restart the job.
//  3. Once the job reports its version, the installer [Check]s for a
//     fresh state and [State.Evaluate]s the running version. Succeeded
//     [Clear]s the file. Status probes only read it: while it says
//     RolledBack they report an install error ("upgrade did not take
//     effect") until the next install attempt replaces it.
//
// State files are CBOR (lib/codec), written atomically, mode 0600.
// [Check] ignores states older than a caller-chosen maximum age so an
// abandoned file from an interrupted install cannot poison later
// probes forever.
package watchdog
