// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package component

import (
	"fmt"

	"github.com/bureau-foundation/warden/lib/version"
)

// ResolveVersions decides the install state and action from the
// installed version, the bundled version, and whether launchd recorded
// an exit status for the job. Empty strings mean unknown.
//
//   - bundle newer than installed: NeedsUpgrade, Upgrade
//   - equal: Installed, no action
//   - bundle older: an error, nothing is downgraded
//   - nothing installed: NotInstalled, Install
//   - installed version unknown but the job has run: Installed,
//     Reinstall
func ResolveVersions(installed, bundled string, hasExitStatus bool) Status {
	switch {
	case installed != "" && bundled != "":
		order, err := version.Compare(bundled, installed)
		if err != nil {
			return ErrorStatus(err).WithAction(ReinstallAction)
		}
		switch {
		case order > 0:
			return NewStatus(NeedsUpgrade, RuntimeUnknown)
		case order == 0:
			return NewStatus(Installed, RuntimeUnknown)
		default:
			return ErrorStatus(fmt.Errorf("bundle version %s is older than installed version %s", bundled, installed))
		}
	case installed != "":
		return NewStatus(Installed, RuntimeUnknown)
	case bundled != "" && hasExitStatus:
		return NewStatus(Installed, RuntimeUnknown).WithAction(ReinstallAction)
	default:
		return NewStatus(NotInstalled, RuntimeUnknown)
	}
}
