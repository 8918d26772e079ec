// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rpc multiplexes MessagePack request/response calls over one
// stream connection in both directions.
//
// Every message is a four-element envelope encoded with lib/msgpack:
//
//	[0, seqid, method, params]   request
//	[1, seqid, error, result]    response
//	[2, 0, method, params]       notification
//
// Envelopes are written back to back with no length prefix. The reader
// feeds the stream through a msgpack.Decoder, which keeps partial
// envelopes buffered until the rest arrives. A frame that fails to
// decode poisons the connection: frame boundaries can no longer be
// trusted, so the connection is dropped.
//
// Both ends of a connection are symmetric. Either side may issue
// requests, and either side serves the methods registered with it.
// [Transport] is the dialing side: it owns one connection at a time,
// reconnects with capped exponential backoff after an unexpected loss,
// and queues a bounded number of calls while reconnecting. [Server] is
// the listening side: each accepted connection becomes a [Peer] that
// can call back into the client.
//
// Responses are matched by sequence id in whatever order the remote
// sends them. Inbound requests and notifications run one at a time in
// the order they arrived. A handler that needs to call the remote end
// may do so; responses are read on a separate goroutine from the one
// running handlers.
//
// Each call has its own deadline (DefaultCallTimeout unless overridden
// with [WithTimeout]). A response arriving after its call timed out is
// dropped and counted, never delivered.
package rpc
