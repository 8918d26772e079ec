// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the warden
// command-line tool.
//
// A [Command] has a name, an optional [pflag.FlagSet] factory, and
// either a Run function or nested [Command.Subcommands]. [Command.Execute]
// parses flags, routes to subcommands, and prints help. Unknown commands
// and flags get a "did you mean" suggestion when one is within an edit
// distance of three.
//
// [ExitError] lets a command choose its exit status after printing its
// own output, and [NewCommandLogger] picks a text or JSON log handler
// depending on whether stderr is a terminal.
package cli
