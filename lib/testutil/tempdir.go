// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"net"
	"os"
	"path/filepath"
	"testing"
)

// SocketDir creates a directory under /tmp for socket files and removes
// it when the test finishes.
func SocketDir(t *testing.T) string {
	t.Helper()
	directory, err := os.MkdirTemp("/tmp", "warden-test-*")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(directory)
	})
	return directory
}

// Pipe returns both ends of a Unix stream connection. Unlike net.Pipe
// the connection is buffered by the kernel, so a writer does not block
// until the reader is ready. Both ends are closed on cleanup.
func Pipe(t *testing.T) (client, server net.Conn) {
	t.Helper()
	socketPath := filepath.Join(SocketDir(t), "pipe.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listening on %s: %v", socketPath, err)
	}
	defer listener.Close()

	accepted := make(chan net.Conn, 1)
	acceptErr := make(chan error, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- conn
	}()

	client, err = net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dialing %s: %v", socketPath, err)
	}
	select {
	case server = <-accepted:
	case err := <-acceptErr:
		t.Fatalf("accepting on %s: %v", socketPath, err)
	}
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}
