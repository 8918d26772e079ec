// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package component

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/warden/lib/launchd"
)

// ServiceInfo is what a service prints for "status --json".
type ServiceInfo struct {
	Version string `json:"version"`
	PID     int    `json:"pid"`
	Running bool   `json:"running"`
}

// ProbeService runs "<binary> status --json" and parses the last JSON
// object line of its output. Comments and trailing commas are
// tolerated. A non-zero exit, no object, or no version is an error.
func ProbeService(ctx context.Context, runner launchd.Runner, binary string) (ServiceInfo, error) {
	output, err := runner.Run(ctx, binary, "status", "--json")
	if err != nil {
		return ServiceInfo{}, fmt.Errorf("%s status: %w: %s", binary, err, bytes.TrimSpace(output))
	}
	return ParseServiceInfo(output)
}

// ParseServiceInfo extracts ServiceInfo from probe output.
func ParseServiceInfo(output []byte) (ServiceInfo, error) {
	var line []byte
	for _, candidate := range bytes.Split(output, []byte("\n")) {
		candidate = bytes.TrimSpace(candidate)
		if bytes.HasPrefix(candidate, []byte("{")) {
			line = candidate
		}
	}
	if line == nil {
		return ServiceInfo{}, fmt.Errorf("status output has no JSON object: %q", bytes.TrimSpace(output))
	}
	var info ServiceInfo
	if err := json.Unmarshal(jsonc.ToJSON(line), &info); err != nil {
		return ServiceInfo{}, fmt.Errorf("parsing status output: %w", err)
	}
	if info.Version == "" {
		return ServiceInfo{}, fmt.Errorf("status output has no version")
	}
	return info, nil
}
