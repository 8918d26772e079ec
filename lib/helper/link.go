// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package helper

import (
	"fmt"
	"os"
	"path/filepath"
)

// CreateLink makes request.Link a symlink to request.Target. An
// existing correct link is left alone. A link to somewhere else is
// replaced only with Force, and anything that is not a symlink is
// never touched.
func CreateLink(request LinkRequest) error {
	if request.Target == "" || request.Link == "" {
		return fmt.Errorf("link request needs both target and link")
	}
	info, err := os.Lstat(request.Link)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(filepath.Dir(request.Link), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(request.Link), err)
		}
	case err != nil:
		return err
	case info.Mode()&os.ModeSymlink == 0:
		return fmt.Errorf("%s: %w", request.Link, ErrNotSymlink)
	default:
		current, err := os.Readlink(request.Link)
		if err != nil {
			return err
		}
		if current == request.Target {
			return nil
		}
		if !request.Force {
			return fmt.Errorf("%s -> %s, want %s: %w", request.Link, current, request.Target, ErrLinkConflict)
		}
	}
	return atomicSymlink(request.Target, request.Link)
}

// RemoveLink removes the symlink at path. A missing path is fine; a
// non-symlink is ErrNotSymlink.
func RemoveLink(path string) error {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return fmt.Errorf("%s: %w", path, ErrNotSymlink)
	}
	return os.Remove(path)
}

// atomicSymlink creates or replaces a symlink by creating a temporary
// symlink and renaming it over the target.
func atomicSymlink(source, target string) error {
	tempPath := target + ".new"
	os.Remove(tempPath)
	if err := os.Symlink(source, tempPath); err != nil {
		return fmt.Errorf("create symlink %s -> %s: %w", tempPath, source, err)
	}
	if err := os.Rename(tempPath, target); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename %s -> %s: %w", tempPath, target, err)
	}
	return nil
}
