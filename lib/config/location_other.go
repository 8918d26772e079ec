// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !darwin

package config

// mountPoint reports no mount point; only the path itself is checked
// where disk images are not a concern.
func mountPoint(string) (string, error) { return "", nil }
