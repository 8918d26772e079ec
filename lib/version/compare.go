// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Canonical returns v in canonical semantic version form with a
// leading "v", or an error if v is not a semantic version. Build
// metadata ("+abc123") is dropped.
func Canonical(v string) (string, error) {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return "", fmt.Errorf("empty version")
	}
	if !strings.HasPrefix(trimmed, "v") {
		trimmed = "v" + trimmed
	}
	if !semver.IsValid(trimmed) {
		return "", fmt.Errorf("%q is not a semantic version", v)
	}
	return semver.Canonical(trimmed), nil
}

// Compare returns -1, 0, or +1 as a is older than, the same as, or
// newer than b. The leading "v" is optional on both.
func Compare(a, b string) (int, error) {
	left, err := Canonical(a)
	if err != nil {
		return 0, err
	}
	right, err := Canonical(b)
	if err != nil {
		return 0, err
	}
	return semver.Compare(left, right), nil
}
