// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux && !darwin

package helper

import "errors"

func IsMountPoint(string) (bool, error) { return false, errors.ErrUnsupported }

func unmount(string) error { return errors.ErrUnsupported }
