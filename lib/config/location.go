// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedLocation means the bundle is somewhere installed jobs
// cannot keep pointing at.
var ErrUnsupportedLocation = errors.New("bundle location does not support installing")

// CheckLocation refuses bundle binary directories on a mounted disk
// image or other removable volume, and copies Gatekeeper translocated
// to a randomized read-only path. launchd jobs reference binaries in
// place, so installing from either would leave them dangling once the
// volume is ejected or the translocation expires.
func CheckLocation(binDir string) error {
	if !filepath.IsAbs(binDir) {
		return fmt.Errorf("bin directory %q is not absolute", binDir)
	}
	clean := filepath.Clean(binDir)
	if strings.Contains(clean+"/", "/AppTranslocation/") {
		return fmt.Errorf("%s is a translocated copy; move the application to /Applications and run it from there: %w", binDir, ErrUnsupportedLocation)
	}
	if onVolumes(clean) {
		return fmt.Errorf("%s is on a mounted volume; copy the application to /Applications first: %w", binDir, ErrUnsupportedLocation)
	}
	mount, err := mountPoint(clean)
	if err != nil {
		return fmt.Errorf("checking the volume of %s: %w", binDir, err)
	}
	if mount != "" && onVolumes(mount) {
		return fmt.Errorf("%s is on the volume mounted at %s; copy the application to /Applications first: %w", binDir, mount, ErrUnsupportedLocation)
	}
	return nil
}

func onVolumes(path string) bool {
	return strings.HasPrefix(path, "/Volumes/")
}
