// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command warden manages the background components of a Warden
// installation: the privileged helper, the filesystem kernel
// extension, the mount redirector, the filesystem, core and updater
// services, and the command-line link.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := root().Execute(os.Args[1:]); err != nil {
		// Commands that print their own report return an ExitError.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
