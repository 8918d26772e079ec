// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package helper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"slices"

	"github.com/bureau-foundation/warden/lib/rpc"
)

// ErrPeerRejected means a connecting process is not allowed to use the
// helper.
var ErrPeerRejected = errors.New("helper: peer not authorized")

// Credentials identify the process on the other end of a connection.
type Credentials struct {
	UID uint32
	GID uint32
}

// PeerCredentials returns the user and primary group of the process on
// the other end of a Unix socket connection.
func PeerCredentials(conn net.Conn) (Credentials, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return Credentials{}, fmt.Errorf("peer credentials need a unix connection, got %T", conn)
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return Credentials{}, err
	}
	var credentials Credentials
	var credentialErr error
	controlErr := raw.Control(func(fd uintptr) {
		credentials, credentialErr = peerCredentials(int(fd))
	})
	if err := errors.Join(controlErr, credentialErr); err != nil {
		return Credentials{}, fmt.Errorf("reading peer credentials: %w", err)
	}
	return credentials, nil
}

// PeerUID returns the user ID of the process on the other end of a
// Unix socket connection.
func PeerUID(conn net.Conn) (uint32, error) {
	credentials, err := PeerCredentials(conn)
	return credentials.UID, err
}

// callerCredentials identifies who asked for an action: the connected
// peer when ctx comes from an rpc.Server, otherwise this process.
func callerCredentials(ctx context.Context) (Credentials, error) {
	if peer, ok := rpc.PeerFromContext(ctx); ok {
		return PeerCredentials(peer.Conn())
	}
	return Credentials{UID: uint32(os.Getuid()), GID: uint32(os.Getgid())}, nil
}

// AllowUIDs returns an rpc.ServerOptions.Authorize hook admitting root
// and the listed users.
func AllowUIDs(uids ...uint32) func(net.Conn) error {
	return func(conn net.Conn) error {
		uid, err := PeerUID(conn)
		if err != nil {
			return err
		}
		if uid == 0 || slices.Contains(uids, uid) {
			return nil
		}
		return fmt.Errorf("uid %d: %w", uid, ErrPeerRejected)
	}
}
