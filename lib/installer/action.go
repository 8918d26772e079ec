// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package installer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/warden/lib/component"
)

// Action is one planned operation on one component. The manager
// creates it while planning and fills in the outcome exactly once.
type Action struct {
	Component string
	Kind      component.Kind
	Operation string

	// Planned is what the status probe said installing would do. Only
	// set for install actions.
	Planned component.ActionKind

	// Attempted is false when the action never ran: skipped for a
	// failed dependency, or left over after StopOnError.
	Attempted bool

	// Err is nil on success, a *component.Error otherwise.
	Err error
}

// Failed reports whether the action ran or was skipped with an error.
func (a *Action) Failed() bool { return a.Err != nil }

// Skipped reports whether the action was skipped for a dependency.
func (a *Action) Skipped() bool { return errors.Is(a.Err, component.ErrSkipped) }

func (a *Action) String() string {
	switch {
	case a.Err != nil:
		return a.Err.Error()
	case !a.Attempted:
		return fmt.Sprintf("%s: %s not attempted", a.Component, a.Operation)
	case a.Planned != component.NoAction:
		return fmt.Sprintf("%s: %s ok", a.Component, a.Planned)
	default:
		return fmt.Sprintf("%s: %s ok", a.Component, a.Operation)
	}
}

// Describe renders actions one per line for display.
func Describe(actions []*Action) string {
	var b strings.Builder
	for _, action := range actions {
		b.WriteString(action.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// joinErrors collects the errors of actions in order.
func joinErrors(actions []*Action) error {
	var errs []error
	for _, action := range actions {
		if action.Err != nil {
			errs = append(errs, action.Err)
		}
	}
	return errors.Join(errs...)
}
