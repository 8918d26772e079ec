// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package launchd

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var (
	// ErrUnavailable means launchctl could not be executed.
	ErrUnavailable = errors.New("launchd: launchctl unavailable")

	// ErrPermissionDenied means launchctl refused the operation.
	ErrPermissionDenied = errors.New("launchd: permission denied")

	// ErrNotFound means no job with the requested label is loaded.
	ErrNotFound = errors.New("launchd: job not found")

	// ErrWaitTimeout means a job did not reach the requested state
	// within the poll budget.
	ErrWaitTimeout = errors.New("launchd: timed out waiting for job state")
)

// CommandError is a failed launchctl invocation.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	message := fmt.Sprintf("launchctl %s: %v", strings.Join(e.Args, " "), e.Err)
	if e.Output != "" {
		message += ": " + e.Output
	}
	return message
}

func (e *CommandError) Unwrap() error { return e.Err }

// classify turns a runner result into nil or a *CommandError whose Err
// is one of the package sentinels where the failure is recognizable.
// launchctl's legacy subcommands exit zero on some failures and only
// say so in their output, so output is inspected even on success.
func classify(args []string, output []byte, err error) error {
	text := strings.TrimSpace(string(output))
	lower := strings.ToLower(text)

	var cause error
	switch {
	case err != nil && errors.Is(err, exec.ErrNotFound):
		cause = ErrUnavailable
	case strings.Contains(lower, "operation not permitted"), strings.Contains(lower, "permission denied"):
		cause = ErrPermissionDenied
	case strings.Contains(lower, "could not find service"), strings.Contains(lower, "no such process"):
		cause = ErrNotFound
	case err != nil:
		cause = err
	case strings.Contains(lower, "load failed"), strings.Contains(lower, "unload failed"):
		cause = errors.New("launchctl reported failure")
	default:
		return nil
	}
	return &CommandError{Args: args, Output: text, Err: cause}
}
