// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package launchd

import (
	"fmt"
	"os"

	"howett.net/plist"
)

// Plist describes one launchd job.
type Plist struct {
	Label string `plist:"Label"`

	// ProgramArguments is argv, program path first.
	ProgramArguments []string `plist:"ProgramArguments"`

	EnvironmentVariables map[string]string `plist:"EnvironmentVariables,omitempty"`

	// KeepAlive makes launchd restart the job whenever it exits.
	KeepAlive bool `plist:"KeepAlive"`
	RunAtLoad bool `plist:"RunAtLoad"`

	WorkingDirectory  string `plist:"WorkingDirectory,omitempty"`
	StandardOutPath   string `plist:"StandardOutPath,omitempty"`
	StandardErrorPath string `plist:"StandardErrorPath,omitempty"`

	// Comment is free text for humans reading the file.
	Comment string `plist:"Comment,omitempty"`
}

// Program returns the executable path, or "" when there are no
// arguments.
func (p Plist) Program() string {
	if len(p.ProgramArguments) == 0 {
		return ""
	}
	return p.ProgramArguments[0]
}

// Encode renders p as an XML property list.
func (p Plist) Encode() ([]byte, error) {
	if p.Label == "" {
		return nil, fmt.Errorf("launchd plist has no label")
	}
	if len(p.ProgramArguments) == 0 {
		return nil, fmt.Errorf("launchd plist %s has no program arguments", p.Label)
	}
	data, err := plist.MarshalIndent(p, plist.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("encoding launchd plist %s: %w", p.Label, err)
	}
	return data, nil
}

// DecodePlist parses a property list in any format launchd accepts.
func DecodePlist(data []byte) (Plist, error) {
	var decoded Plist
	if _, err := plist.Unmarshal(data, &decoded); err != nil {
		return Plist{}, fmt.Errorf("decoding launchd plist: %w", err)
	}
	return decoded, nil
}

// ReadPlist reads and parses the property list at path. A missing file
// yields an error wrapping os.ErrNotExist.
func ReadPlist(path string) (Plist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plist{}, err
	}
	decoded, err := DecodePlist(data)
	if err != nil {
		return Plist{}, fmt.Errorf("%s: %w", path, err)
	}
	return decoded, nil
}
