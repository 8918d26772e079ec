// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifact stages bundled executables into their installed
// locations.
//
// A bundle may ship a binary plain, zstd-compressed (".zst"), or
// LZ4-frame-compressed (".lz4"). [Stage] decompresses the source,
// writes the result atomically with the requested mode, and returns the
// BLAKE3 [Digest] of the installed bytes. [Matches] answers whether an
// installed file already holds exactly what the bundle would stage, so
// an upgrade can be skipped when nothing changed.
//
// Digests are BLAKE3 keyed with a fixed domain key, so they never
// collide with plain BLAKE3 sums computed elsewhere over the same
// bytes.
package artifact
