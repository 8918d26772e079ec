// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import "golang.org/x/sys/unix"

// mountPoint returns where the filesystem holding path is mounted.
func mountPoint(path string) (string, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return "", err
	}
	return unix.ByteSliceToString(stat.Mntonname[:]), nil
}
