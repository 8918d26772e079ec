// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds warden's CBOR configuration for on-disk state
// files. RPC traffic uses lib/msgpack; CLI output uses JSON; anything
// warden writes for itself to read back later (the upgrade watchdog)
// is CBOR through this package so every writer encodes identically.
//
// Types serialized only here carry `cbor` struct tags.
package codec
