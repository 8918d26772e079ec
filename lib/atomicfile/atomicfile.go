// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package atomicfile replaces files so that readers see either the old
// content or the new content, never a partial write.
package atomicfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteFile writes data to path with the given mode. See Write.
func WriteFile(path string, data []byte, mode os.FileMode) error {
	return Write(path, mode, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// Write creates a temporary file next to path, lets fill write the
// content, fsyncs it, renames it over path, and fsyncs the parent
// directory. On any failure the temporary file is removed and path is
// left untouched. The parent directory must exist.
func Write(path string, mode os.FileMode, fill func(io.Writer) error) error {
	directory := filepath.Dir(path)
	file, err := os.CreateTemp(directory, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temporary file for %s: %w", path, err)
	}
	temporaryPath := file.Name()

	fail := func(step string, err error) error {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("%s %s: %w", step, path, err)
	}
	if err := fill(file); err != nil {
		return fail("writing", err)
	}
	if err := file.Chmod(mode); err != nil {
		return fail("setting mode of", err)
	}
	if err := file.Sync(); err != nil {
		return fail("syncing", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary file for %s: %w", path, err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming %s into place: %w", path, err)
	}

	// The rename is only durable once the directory entry is flushed.
	if parent, err := os.Open(directory); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}
