// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package component

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failed component operation.
type ErrorCode string

const (
	InstallFailed          ErrorCode = "INSTALL_FAILED"
	UninstallFailed        ErrorCode = "UNINSTALL_FAILED"
	StartFailed            ErrorCode = "START_FAILED"
	StopFailed             ErrorCode = "STOP_FAILED"
	StatusUnavailable      ErrorCode = "STATUS_UNAVAILABLE"
	SkippedDueToDependency ErrorCode = "SKIPPED_DUE_TO_DEPENDENCY"
)

// Operation names used in errors and actions.
const (
	OperationInstall   = "install"
	OperationUninstall = "uninstall"
	OperationStart     = "start"
	OperationStop      = "stop"
	OperationStatus    = "status"
)

// Error is a failed operation on one component.
type Error struct {
	Code      ErrorCode
	Component string
	Operation string

	// Dependency names the failed dependency for SkippedDueToDependency.
	Dependency string

	Cause error
}

func (e *Error) Error() string {
	if e.Code == SkippedDueToDependency {
		return fmt.Sprintf("%s: %s skipped (requires %s)", e.Component, e.Operation, e.Dependency)
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s failed", e.Component, e.Operation)
	}
	return fmt.Sprintf("%s: %s failed: %v", e.Component, e.Operation, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error by code, so errors.Is(err, ErrSkipped)
// works on joined results.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Component == "" && e.Code == other.Code
	}
	return false
}

// Code sentinels for errors.Is.
var (
	ErrInstallFailed     = &Error{Code: InstallFailed}
	ErrUninstallFailed   = &Error{Code: UninstallFailed}
	ErrStartFailed       = &Error{Code: StartFailed}
	ErrStopFailed        = &Error{Code: StopFailed}
	ErrStatusUnavailable = &Error{Code: StatusUnavailable}
	ErrSkipped           = &Error{Code: SkippedDueToDependency}
)

// Fail wraps cause as the failure of operation on component. A nil
// cause yields nil.
func Fail(component, operation string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Code: codeFor(operation), Component: component, Operation: operation, Cause: cause}
}

func codeFor(operation string) ErrorCode {
	switch operation {
	case OperationInstall:
		return InstallFailed
	case OperationUninstall:
		return UninstallFailed
	case OperationStart:
		return StartFailed
	case OperationStop:
		return StopFailed
	default:
		return StatusUnavailable
	}
}

// Skipped reports that operation on component was not attempted because
// dependency failed.
func Skipped(component, operation, dependency string) *Error {
	return &Error{Code: SkippedDueToDependency, Component: component, Operation: operation, Dependency: dependency}
}
