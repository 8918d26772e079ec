// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package installer

import (
	"fmt"
	"strings"

	"github.com/bureau-foundation/warden/lib/component"
)

// Result is one component's probe outcome. Err is set when the probe
// itself failed, in which case Status is the zero (unknown) status.
type Result struct {
	Component component.Installable
	Status    component.Status
	Err       error
}

// Name returns the component name.
func (r Result) Name() string { return r.Component.Descriptor().Name }

// Statuses are probe results in component order.
type Statuses []Result

// Lookup returns the result for the named component.
func (s Statuses) Lookup(name string) (Result, bool) {
	for _, result := range s {
		if result.Name() == name {
			return result, true
		}
	}
	return Result{}, false
}

// Overall folds the results into one install state: Error if any
// component is in error or could not be probed, then NotInstalled,
// then NeedsUpgrade, else Installed. An empty set is Unknown.
func (s Statuses) Overall() component.InstallState {
	if len(s) == 0 {
		return component.InstallUnknown
	}
	overall := component.Installed
	for _, result := range s {
		state := result.Status.Install()
		if result.Err != nil {
			state = component.InstallError
		}
		switch state {
		case component.InstallError, component.InstallUnknown:
			return component.InstallError
		case component.NotInstalled:
			overall = component.NotInstalled
		case component.NeedsUpgrade:
			if overall == component.Installed {
				overall = component.NeedsUpgrade
			}
		}
	}
	return overall
}

// Summary is a one-line description of the results, such as
// "needs upgrade: 5 installed, 1 needs upgrade, 1 error".
func Summary(statuses Statuses) string {
	order := []component.InstallState{
		component.Installed,
		component.NeedsUpgrade,
		component.NotInstalled,
		component.InstallError,
		component.InstallUnknown,
	}
	counts := make(map[component.InstallState]int)
	for _, result := range statuses {
		state := result.Status.Install()
		if result.Err != nil {
			state = component.InstallError
		}
		counts[state]++
	}
	var parts []string
	for _, state := range order {
		if counts[state] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[state], state))
		}
	}
	if len(parts) == 0 {
		return "no components"
	}
	return statuses.Overall().String() + ": " + strings.Join(parts, ", ")
}
