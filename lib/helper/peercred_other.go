// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux && !darwin

package helper

import "errors"

func peerCredentials(int) (Credentials, error) {
	return Credentials{}, errors.ErrUnsupported
}
