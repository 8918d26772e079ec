// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"os"
)

// ExitCoder is implemented by errors that carry a process exit code.
type ExitCoder interface {
	ExitCode() int
}

// Fatal writes "error: err" to stderr and exits. The exit code is 1
// unless err (or something it wraps) implements ExitCoder. Use it in
// main() for errors returned by run(), where the structured logger may
// not exist yet.
func Fatal(err error) {
	code := 1
	var coder ExitCoder
	if errors.As(err, &coder) {
		code = coder.ExitCode()
	}
	if message := err.Error(); message != "" {
		fmt.Fprintf(os.Stderr, "error: %s\n", message)
	}
	os.Exit(code)
}
