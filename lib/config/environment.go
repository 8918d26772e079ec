// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bureau-foundation/warden/lib/version"
)

// RunMode is a named deployment profile.
type RunMode string

const (
	Production RunMode = "production"
	Staging    RunMode = "staging"
	Devel      RunMode = "devel"
	Custom     RunMode = "custom"
)

// ParseRunMode accepts the mode names plus the short forms "prod" and
// "dev".
func ParseRunMode(value string) (RunMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "production", "prod":
		return Production, nil
	case "staging":
		return Staging, nil
	case "devel", "dev":
		return Devel, nil
	case "custom":
		return Custom, nil
	}
	return "", &ConfigError{Reason: fmt.Sprintf("unknown run mode %q", value)}
}

// Binary names one executable in the application bundle.
type Binary string

const (
	CoreBinary       Binary = "core"
	FilesystemBinary Binary = "filesystem"
	UpdaterBinary    Binary = "updater"
	HelperBinary     Binary = "helper"
	CLIBinary        Binary = "cli"
)

// bundledNames are the file names of each binary inside BinDir.
var bundledNames = map[Binary]string{
	CoreBinary:       "wardend",
	FilesystemBinary: "wardenfs",
	UpdaterBinary:    "warden-updater",
	HelperBinary:     "warden-helper",
	CLIBinary:        "warden",
}

// DefaultBinDir is where the application bundle keeps its executables.
const DefaultBinDir = "/Applications/Warden.app/Contents/SharedSupport/bin"

// Labels are the launchd labels of the jobs warden manages.
type Labels struct {
	Core       string `json:"core"`
	Filesystem string `json:"filesystem"`
	Updater    string `json:"updater"`
	Helper     string `json:"helper"`
	Redirector string `json:"redirector"`
}

// Environment is the resolved configuration. It is built once by
// Resolve and never modified; share it by pointer.
type Environment struct {
	RunMode RunMode `json:"run_mode"`
	HomeDir string  `json:"home_dir"`

	// RuntimeDir holds the socket, logs of the core service, and
	// watchdog state.
	RuntimeDir string `json:"runtime_dir"`

	// SocketPath is the core service's RPC endpoint.
	SocketPath string `json:"socket_path"`

	// HelperSocketPath is the privileged helper's RPC endpoint.
	HelperSocketPath string `json:"helper_socket_path"`

	MountDir           string `json:"mount_dir"`
	LogDir             string `json:"log_dir"`
	LaunchAgentsDir    string `json:"launch_agents_dir"`
	LaunchDaemonsDir   string `json:"launch_daemons_dir"`
	PrivilegedToolsDir string `json:"privileged_tools_dir"`

	// BinDir is the bundle directory the executables are installed from.
	BinDir      string            `json:"bin_dir"`
	BinaryPaths map[Binary]string `json:"binary_paths"`

	// CommandLinkPath is where the command-line symlink is created.
	CommandLinkPath string `json:"command_link_path"`

	// WatchdogPath is the upgrade watchdog state file.
	WatchdogPath string `json:"watchdog_path"`

	// BundleVersion is the version of the components shipped in BinDir.
	BundleVersion string `json:"bundle_version"`

	Labels Labels `json:"labels"`
}

// BinaryPath returns the configured path of binary.
func (e *Environment) BinaryPath(binary Binary) string {
	return e.BinaryPaths[binary]
}

// Overrides are explicit values that take precedence over what the
// run mode derives. Empty fields are not overrides.
type Overrides struct {
	HomeDir       string
	SocketPath    string
	MountDir      string
	BinDir        string
	BundleVersion string

	// BinaryPaths replaces individual binary paths.
	BinaryPaths map[Binary]string

	// ValidatePaths makes Resolve check that every override path (or,
	// for files that may not exist yet, its parent directory) exists.
	ValidatePaths bool
}

// ConfigError reports configuration that cannot be resolved.
type ConfigError struct {
	Mode RunMode
	// Missing lists required override fields that were not supplied,
	// by their configuration file names.
	Missing []string
	Reason  string
}

func (e *ConfigError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s run mode requires %s", e.Mode, strings.Join(e.Missing, ", "))
	}
	if e.Mode != "" {
		return fmt.Sprintf("%s run mode: %s", e.Mode, e.Reason)
	}
	return e.Reason
}

// modeSuffix distinguishes the non-production profiles wherever two
// modes could otherwise collide on one machine.
func modeSuffix(mode RunMode) string {
	if mode == Production {
		return ""
	}
	return string(mode)
}

// appName is the per-mode directory name under ~/Library.
func appName(mode RunMode) string {
	switch mode {
	case Staging:
		return "WardenStaging"
	case Devel:
		return "WardenDevel"
	case Custom:
		return "WardenCustom"
	default:
		return "Warden"
	}
}

// Resolve derives the full Environment for mode. It performs no I/O
// unless overrides.ValidatePaths is set.
func Resolve(mode RunMode, overrides Overrides) (*Environment, error) {
	switch mode {
	case Production, Staging, Devel, Custom:
	default:
		return nil, &ConfigError{Mode: mode, Reason: "unknown run mode"}
	}

	if mode == Custom {
		var missing []string
		if overrides.HomeDir == "" {
			missing = append(missing, "home_dir")
		}
		if overrides.SocketPath == "" {
			missing = append(missing, "socket_path")
		}
		if overrides.MountDir == "" {
			missing = append(missing, "mount_dir")
		}
		if len(missing) > 0 {
			return nil, &ConfigError{Mode: mode, Missing: missing}
		}
	}

	homeDir := overrides.HomeDir
	if homeDir == "" {
		var err error
		homeDir, err = os.UserHomeDir()
		if err != nil || homeDir == "" {
			return nil, &ConfigError{Mode: mode, Missing: []string{"home_dir"}}
		}
	}
	if !filepath.IsAbs(homeDir) {
		return nil, &ConfigError{Mode: mode, Reason: fmt.Sprintf("home_dir %q is not absolute", homeDir)}
	}

	suffix := modeSuffix(mode)
	dotted := func(base string) string {
		if suffix == "" {
			return base
		}
		return base + "." + suffix
	}
	dashed := func(base string) string {
		if suffix == "" {
			return base
		}
		return base + "-" + suffix
	}

	environment := &Environment{
		RunMode:            mode,
		HomeDir:            homeDir,
		RuntimeDir:         filepath.Join(homeDir, "Library", "Caches", appName(mode)),
		LogDir:             filepath.Join(homeDir, "Library", "Logs", appName(mode)),
		LaunchAgentsDir:    filepath.Join(homeDir, "Library", "LaunchAgents"),
		LaunchDaemonsDir:   "/Library/LaunchDaemons",
		PrivilegedToolsDir: "/Library/PrivilegedHelperTools",
		MountDir:           "/" + dotted("warden"),
		HelperSocketPath:   "/var/run/" + dashed("warden") + ".helper.sock",
		CommandLinkPath:    "/usr/local/bin/" + dashed("warden"),
		BinDir:             DefaultBinDir,
		BundleVersion:      version.Version,
		Labels: Labels{
			Core:       dotted("dev.warden.service"),
			Filesystem: dotted("dev.warden.fs"),
			Updater:    dotted("dev.warden.updater"),
			Helper:     dotted("dev.warden.helper"),
			Redirector: dotted("dev.warden.redirector"),
		},
	}
	environment.SocketPath = filepath.Join(environment.RuntimeDir, "wardend.sock")

	if overrides.SocketPath != "" {
		environment.SocketPath = overrides.SocketPath
		if mode == Custom {
			environment.RuntimeDir = filepath.Dir(overrides.SocketPath)
		}
	}
	if overrides.MountDir != "" {
		environment.MountDir = overrides.MountDir
	}
	if overrides.BinDir != "" {
		environment.BinDir = overrides.BinDir
	}
	if overrides.BundleVersion != "" {
		environment.BundleVersion = overrides.BundleVersion
	}
	environment.WatchdogPath = filepath.Join(environment.RuntimeDir, "upgrade.cbor")

	environment.BinaryPaths = make(map[Binary]string, len(bundledNames))
	for binary, name := range bundledNames {
		environment.BinaryPaths[binary] = filepath.Join(environment.BinDir, name)
	}
	for binary, path := range overrides.BinaryPaths {
		if _, known := bundledNames[binary]; !known {
			return nil, &ConfigError{Mode: mode, Reason: fmt.Sprintf("unknown binary %q", binary)}
		}
		environment.BinaryPaths[binary] = path
	}

	for _, path := range []string{environment.SocketPath, environment.MountDir, environment.BinDir} {
		if !filepath.IsAbs(path) {
			return nil, &ConfigError{Mode: mode, Reason: fmt.Sprintf("path %q is not absolute", path)}
		}
	}

	if overrides.ValidatePaths {
		if err := validateOverrides(overrides); err != nil {
			return nil, &ConfigError{Mode: mode, Reason: err.Error()}
		}
	}
	return environment, nil
}

// validateOverrides checks that supplied override paths exist. The
// socket and mount directory themselves are created later, so only
// their parents must exist.
func validateOverrides(overrides Overrides) error {
	checks := map[string]string{}
	if overrides.HomeDir != "" {
		checks["home_dir"] = overrides.HomeDir
	}
	if overrides.SocketPath != "" {
		checks["socket_path"] = filepath.Dir(overrides.SocketPath)
	}
	if overrides.MountDir != "" {
		checks["mount_dir"] = filepath.Dir(overrides.MountDir)
	}
	if overrides.BinDir != "" {
		checks["bin_dir"] = overrides.BinDir
	}
	for binary, path := range overrides.BinaryPaths {
		checks["binary "+string(binary)] = path
	}

	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if _, err := os.Stat(checks[name]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
