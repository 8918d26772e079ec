// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package msgpack implements the MessagePack subset used by the warden
// RPC envelope.
//
// The value model is deliberately closed. [Marshal] accepts nil, bool,
// every Go integer type, float32, float64, string, []byte, []any,
// []string, *[Map], and map[string]any. [Decode] produces only nil,
// bool, int64, uint64 (for values above math.MaxInt64), float32,
// float64, string, []byte, []any, and *[Map]. Decoded maps are always
// *Map so the order in which the peer wrote the keys survives: the
// core service sends ordered diagnostic maps and the order is what the
// user sees.
//
// Integers are written with the smallest MessagePack encoding that
// holds the value. map[string]any is written with sorted keys so the
// same logical value always produces the same bytes; use *Map when the
// key order matters.
//
// Decoding is resumable. [Decode] returns [ErrInsufficientData] when
// the buffer holds only a prefix of a value, which lets a stream reader
// keep appending socket reads until a whole envelope is available.
// [Decoder] packages that loop around an io.Reader. Malformed input
// produces a *[CodecError] carrying the byte offset of the problem.
//
// str values must be valid UTF-8 in both directions; arbitrary bytes
// travel as bin ([]byte).
//
// This package depends on no other warden packages.
package msgpack
