// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package component

import (
	"errors"
	"slices"
)

// InstallState is whether a component is installed and current.
type InstallState int

const (
	InstallUnknown InstallState = iota
	NotInstalled
	NeedsUpgrade
	Installed
	InstallError
)

func (s InstallState) String() string {
	switch s {
	case NotInstalled:
		return "not installed"
	case NeedsUpgrade:
		return "needs upgrade"
	case Installed:
		return "installed"
	case InstallError:
		return "error"
	default:
		return "unknown"
	}
}

// RuntimeState is whether a component's process is up. Components
// without a process (the command-line link) report RuntimeUnknown.
type RuntimeState int

const (
	RuntimeUnknown RuntimeState = iota
	Running
	NotRunning
)

func (s RuntimeState) String() string {
	switch s {
	case Running:
		return "running"
	case NotRunning:
		return "not running"
	default:
		return "unknown"
	}
}

// ActionKind is what installing a component would do.
type ActionKind int

const (
	NoAction ActionKind = iota
	InstallAction
	UpgradeAction
	ReinstallAction
)

func (a ActionKind) String() string {
	switch a {
	case InstallAction:
		return "install"
	case UpgradeAction:
		return "upgrade"
	case ReinstallAction:
		return "reinstall"
	default:
		return "none"
	}
}

// Field is one labelled display value.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Status is one probe result. The zero value is an unknown status.
type Status struct {
	install InstallState
	runtime RuntimeState
	action  ActionKind
	err     error
	info    []Field
}

// NewStatus builds a non-error status. The action is derived from the
// install state: Install for NotInstalled, Upgrade for NeedsUpgrade.
// Use ErrorStatus for InstallError; passing it here panics.
func NewStatus(install InstallState, runtime RuntimeState, info ...Field) Status {
	if install == InstallError {
		panic("component.NewStatus: use ErrorStatus for InstallError")
	}
	status := Status{install: install, runtime: runtime, info: slices.Clone(info)}
	switch install {
	case NotInstalled:
		status.action = InstallAction
	case NeedsUpgrade:
		status.action = UpgradeAction
	}
	return status
}

// ErrorStatus builds an InstallError status carrying err. A nil err is
// replaced by a generic one so the invariant holds.
func ErrorStatus(err error, info ...Field) Status {
	if err == nil {
		err = errors.New("unknown error")
	}
	return Status{install: InstallError, err: err, info: slices.Clone(info)}
}

func (s Status) Install() InstallState { return s.install }
func (s Status) Runtime() RuntimeState { return s.runtime }
func (s Status) Action() ActionKind    { return s.action }
func (s Status) Err() error            { return s.err }

// Info returns a copy of the display fields.
func (s Status) Info() []Field { return slices.Clone(s.info) }

// Lookup returns the value of the first field named name.
func (s Status) Lookup(name string) (string, bool) {
	for _, field := range s.info {
		if field.Name == name {
			return field.Value, true
		}
	}
	return "", false
}

// WithRuntime returns a copy with the runtime state replaced.
func (s Status) WithRuntime(runtime RuntimeState) Status {
	s.info = slices.Clone(s.info)
	s.runtime = runtime
	return s
}

// WithAction returns a copy with the action replaced.
func (s Status) WithAction(action ActionKind) Status {
	s.info = slices.Clone(s.info)
	s.action = action
	return s
}

// WithFields returns a copy with fields appended.
func (s Status) WithFields(fields ...Field) Status {
	s.info = append(slices.Clone(s.info), fields...)
	return s
}

// NeedsWork reports whether installing would change anything.
func (s Status) NeedsWork() bool {
	return s.action != NoAction
}
