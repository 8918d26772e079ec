// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// File is the on-disk configuration. Every field is optional.
type File struct {
	// RunMode is the default mode when no --run-mode flag is given.
	RunMode       string `yaml:"run_mode"`
	BinDir        string `yaml:"bin_dir"`
	BundleVersion string `yaml:"bundle_version"`

	Production *Section `yaml:"production"`
	Staging    *Section `yaml:"staging"`
	Devel      *Section `yaml:"devel"`
	Custom     *Section `yaml:"custom"`
}

// Section holds overrides that apply to one run mode only.
type Section struct {
	HomeDir    string `yaml:"home_dir"`
	SocketPath string `yaml:"socket_path"`
	MountDir   string `yaml:"mount_dir"`
	BinDir     string `yaml:"bin_dir"`

	// Binaries maps binary names ("core", "filesystem", "updater",
	// "helper", "cli") to explicit paths.
	Binaries map[string]string `yaml:"binaries"`
}

// EnvConfigPath names the environment variable Load reads.
const EnvConfigPath = "WARDEN_CONFIG"

// Load reads the file named by WARDEN_CONFIG. With the variable unset
// it returns an empty File: there is no implicit discovery.
func Load() (*File, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		return &File{}, nil
	}
	return LoadFile(path)
}

// LoadFile parses a YAML configuration file. Unknown keys are errors;
// an empty file is not.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	var file File
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return &file, nil
}

func (f *File) section(mode RunMode) *Section {
	switch mode {
	case Production:
		return f.Production
	case Staging:
		return f.Staging
	case Devel:
		return f.Devel
	case Custom:
		return f.Custom
	}
	return nil
}

// Overrides returns the overrides the file supplies for mode, with
// variables expanded. The mode section wins over the base fields.
func (f *File) Overrides(mode RunMode) (Overrides, error) {
	vars := map[string]string{}
	if home, err := os.UserHomeDir(); err == nil {
		vars["HOME"] = home
	}

	overrides := Overrides{
		BinDir:        expandVars(f.BinDir, vars),
		BundleVersion: f.BundleVersion,
	}

	section := f.section(mode)
	if section == nil {
		return overrides, nil
	}
	if section.HomeDir != "" {
		overrides.HomeDir = expandVars(section.HomeDir, vars)
		vars["HOME"] = overrides.HomeDir
	}
	if section.SocketPath != "" {
		overrides.SocketPath = expandVars(section.SocketPath, vars)
	}
	if section.MountDir != "" {
		overrides.MountDir = expandVars(section.MountDir, vars)
	}
	if section.BinDir != "" {
		overrides.BinDir = expandVars(section.BinDir, vars)
	}

	if len(section.Binaries) > 0 {
		names := make([]string, 0, len(section.Binaries))
		for name := range section.Binaries {
			names = append(names, name)
		}
		sort.Strings(names)

		overrides.BinaryPaths = make(map[Binary]string, len(names))
		for _, name := range names {
			binary := Binary(name)
			if _, known := bundledNames[binary]; !known {
				return Overrides{}, &ConfigError{Mode: mode, Reason: fmt.Sprintf("unknown binary %q in config file", name)}
			}
			overrides.BinaryPaths[binary] = expandVars(section.Binaries[name], vars)
		}
	}
	return overrides, nil
}

// Merge layers explicit values over o and returns the result. Empty
// fields of explicit leave o's values in place.
func (o Overrides) Merge(explicit Overrides) Overrides {
	merged := o
	if explicit.HomeDir != "" {
		merged.HomeDir = explicit.HomeDir
	}
	if explicit.SocketPath != "" {
		merged.SocketPath = explicit.SocketPath
	}
	if explicit.MountDir != "" {
		merged.MountDir = explicit.MountDir
	}
	if explicit.BinDir != "" {
		merged.BinDir = explicit.BinDir
	}
	if explicit.BundleVersion != "" {
		merged.BundleVersion = explicit.BundleVersion
	}
	if len(explicit.BinaryPaths) > 0 {
		paths := make(map[Binary]string, len(o.BinaryPaths)+len(explicit.BinaryPaths))
		for binary, path := range o.BinaryPaths {
			paths[binary] = path
		}
		for binary, path := range explicit.BinaryPaths {
			paths[binary] = path
		}
		merged.BinaryPaths = paths
	}
	merged.ValidatePaths = o.ValidatePaths || explicit.ValidatePaths
	return merged
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns. vars take
// precedence over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}
