// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package component

import (
	"fmt"
	"strings"
)

// Kind identifies what sort of component something is. The set is
// closed.
type Kind int

const (
	PrivilegedHelperKind Kind = iota + 1
	KernelExtensionKind
	MountRedirectorKind
	FilesystemServiceKind
	CoreServiceKind
	UpdaterServiceKind
	CommandLineLinkKind
)

// Kinds lists every kind in dependency order.
var Kinds = []Kind{
	PrivilegedHelperKind,
	KernelExtensionKind,
	MountRedirectorKind,
	FilesystemServiceKind,
	CoreServiceKind,
	UpdaterServiceKind,
	CommandLineLinkKind,
}

var kindNames = map[Kind]string{
	PrivilegedHelperKind:  "privileged-helper",
	KernelExtensionKind:   "kernel-extension",
	MountRedirectorKind:   "mount-redirector",
	FilesystemServiceKind: "filesystem-service",
	CoreServiceKind:       "core-service",
	UpdaterServiceKind:    "updater-service",
	CommandLineLinkKind:   "command-line",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind accepts the String form of a kind.
func ParseKind(name string) (Kind, error) {
	for kind, kindName := range kindNames {
		if strings.EqualFold(name, kindName) {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown component %q", name)
}

// Rank orders installation: a component may only depend on components
// of a lower rank, and components of equal rank are independent.
func (k Kind) Rank() int {
	switch k {
	case PrivilegedHelperKind:
		return 0
	case KernelExtensionKind, MountRedirectorKind:
		return 1
	case FilesystemServiceKind:
		return 2
	case CoreServiceKind:
		return 3
	case UpdaterServiceKind, CommandLineLinkKind:
		return 4
	}
	return -1
}

// Requires returns the kinds that must be installed successfully before
// k can be.
func (k Kind) Requires() []Kind {
	switch k {
	case KernelExtensionKind, MountRedirectorKind, CoreServiceKind:
		return []Kind{PrivilegedHelperKind}
	case FilesystemServiceKind:
		return []Kind{PrivilegedHelperKind, KernelExtensionKind}
	case UpdaterServiceKind:
		return []Kind{CoreServiceKind}
	}
	return nil
}
