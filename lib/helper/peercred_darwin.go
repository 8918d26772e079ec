// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package helper

import "golang.org/x/sys/unix"

func peerCredentials(fd int) (Credentials, error) {
	xucred, err := unix.GetsockoptXucred(fd, unix.SOL_LOCAL, unix.LOCAL_PEERCRED)
	if err != nil {
		return Credentials{}, err
	}
	credentials := Credentials{UID: xucred.Uid}
	if xucred.Ngroups > 0 {
		credentials.GID = xucred.Groups[0]
	}
	return credentials, nil
}
