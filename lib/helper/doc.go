// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package helper is the channel between warden and its privileged
// helper daemon.
//
// The helper runs as root under launchd and performs the few operations
// that need privileges: installing and loading the filesystem kernel
// extension, creating and unmounting the mount directory, starting the
// mount redirector, and maintaining the command-line symlink. Every
// operation is one method of the [Actions] interface.
//
// [Client] implements Actions by calling the helper over lib/rpc on
// its Unix socket. [Register] serves any Actions implementation on an
// rpc.Server; the daemon serves a [Host], which performs the work on
// the local machine. Because both ends speak Actions, components can be
// tested against an in-memory implementation and the wire layer tested
// separately.
//
// Connections are authorized by peer credentials: [AllowUIDs] admits
// root and the listed users and rejects everyone else before any
// request is read. A [Host] acts only on the mount directory and
// command link it was configured with; any other path is
// [ErrPathNotAllowed]. The mount directory's owner is taken from the
// caller's peer credentials, never from the request.
//
// Failures the caller acts on cross the wire as named rpc errors and
// come back as the same sentinels ([ErrNotSymlink], [ErrLinkConflict],
// [ErrMountNotEmpty], [ErrPathNotAllowed]), so errors.Is works on either side.
package helper
