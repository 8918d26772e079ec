// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config resolves a run mode into the concrete paths warden
// works with.
//
// [Resolve] is the core: a pure function from a [RunMode] and explicit
// [Overrides] to an [Environment]. Production, staging, and devel
// derive every path from the home directory and the mode; custom mode
// derives nothing and requires the home directory, socket path, and
// mount directory to be supplied, failing with a *[ConfigError] that
// lists every missing field.
//
// Overrides come from command-line flags and optionally a YAML file
// loaded with [LoadFile] or [Load] (which reads WARDEN_CONFIG). The
// file has a base section plus per-mode sections:
//
//	run_mode: devel
//	bin_dir: /Applications/Warden.app/Contents/SharedSupport/bin
//	devel:
//	  socket_path: ${HOME}/tmp/wardend.sock
//	custom:
//	  home_dir: /Users/ci
//	  socket_path: /tmp/ci/wardend.sock
//	  mount_dir: /tmp/ci/mount
//
// There is no implicit discovery of config files. ${VAR} and
// ${VAR:-default} are expanded in path values.
package config
