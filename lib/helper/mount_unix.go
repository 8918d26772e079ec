// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux || darwin

package helper

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// IsMountPoint reports whether something is mounted at path, by
// comparing its device with its parent's. A missing path is not a
// mount point.
func IsMountPoint(path string) (bool, error) {
	var self, parent unix.Stat_t
	if err := unix.Stat(path, &self); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &os.PathError{Op: "stat", Path: path, Err: err}
	}
	if err := unix.Stat(filepath.Dir(path), &parent); err != nil {
		return false, &os.PathError{Op: "stat", Path: filepath.Dir(path), Err: err}
	}
	return self.Dev != parent.Dev, nil
}

func unmount(path string) error {
	if err := unix.Unmount(path, 0); err != nil {
		return &os.PathError{Op: "unmount", Path: path, Err: err}
	}
	return nil
}
