// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watchdog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bureau-foundation/warden/lib/atomicfile"
	"github.com/bureau-foundation/warden/lib/codec"
)

// State records an upgrade in progress.
type State struct {
	// Component is the component name, for diagnostics.
	Component string `cbor:"component"`

	// Label is the launchd label of the job being restarted.
	Label string `cbor:"label"`

	// PreviousVersion is what was running before the restart.
	PreviousVersion string `cbor:"previous_version"`

	// NewVersion is what the restart should bring up.
	NewVersion string `cbor:"new_version"`

	// Timestamp is when the upgrade started. Check ignores states older
	// than its maxAge.
	Timestamp time.Time `cbor:"timestamp"`
}

// Outcome is what the running version says about an upgrade.
type Outcome int

const (
	// Pending means the running version matches neither side; the job
	// may still be restarting.
	Pending Outcome = iota
	// Succeeded means the new version is running.
	Succeeded
	// RolledBack means the previous version is still running: the
	// upgrade did not take effect.
	RolledBack
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case RolledBack:
		return "rolled back"
	default:
		return "pending"
	}
}

// Evaluate compares the running version against the state. An empty
// running version is Pending.
func (s State) Evaluate(running string) Outcome {
	switch {
	case running == "":
		return Pending
	case running == s.NewVersion:
		return Succeeded
	case running == s.PreviousVersion:
		return RolledBack
	default:
		return Pending
	}
}

// Write atomically replaces the state file at path. The file is mode
// 0600; the parent directory must exist.
func Write(path string, state State) error {
	data, err := codec.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding watchdog state: %w", err)
	}
	return atomicfile.Write(path, 0o600, func(w io.Writer) error {
		_, err := io.Copy(w, bytes.NewReader(data))
		return err
	})
}

// Read parses the state file at path. A missing file yields an error
// wrapping os.ErrNotExist.
func Read(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, err
	}
	var state State
	if err := codec.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("parsing watchdog file %s: %w", path, err)
	}
	return state, nil
}

// Check returns the state at path if it exists and was written within
// maxAge of now. Missing and stale files both report false with no
// error; anything else (unreadable, corrupt) is an error so callers can
// tell "no upgrade in flight" from "cannot tell".
func Check(path string, maxAge time.Duration, now time.Time) (State, bool, error) {
	state, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, false, nil
		}
		return State{}, false, err
	}
	if now.Sub(state.Timestamp) > maxAge {
		return State{}, false, nil
	}
	return state, true, nil
}

// Clear removes the state file. A missing file is not an error.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing watchdog file: %w", err)
	}
	return nil
}
