// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/warden/cmd/warden/cli"
	"github.com/bureau-foundation/warden/lib/config"
)

func envCommand() *cli.Command {
	var flags globalFlags
	var asJSON bool
	return &cli.Command{
		Name:    "env",
		Summary: "Print the resolved environment",
		Description: `Print every path and label warden derives for the selected run mode,
after applying the config file and flags.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("env", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.BoolVar(&asJSON, "json", false, "print as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			env, err := flags.environment()
			if err != nil {
				return err
			}
			if asJSON {
				return cli.WriteJSON(env)
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 2, ' ', 0)
			rows := [][2]string{
				{"run_mode", string(env.RunMode)},
				{"bundle_version", env.BundleVersion},
				{"home_dir", env.HomeDir},
				{"runtime_dir", env.RuntimeDir},
				{"socket_path", env.SocketPath},
				{"helper_socket_path", env.HelperSocketPath},
				{"mount_dir", env.MountDir},
				{"log_dir", env.LogDir},
				{"launch_agents_dir", env.LaunchAgentsDir},
				{"launch_daemons_dir", env.LaunchDaemonsDir},
				{"privileged_tools_dir", env.PrivilegedToolsDir},
				{"bin_dir", env.BinDir},
				{"command_link_path", env.CommandLinkPath},
				{"watchdog_path", env.WatchdogPath},
				{"label.core", env.Labels.Core},
				{"label.filesystem", env.Labels.Filesystem},
				{"label.updater", env.Labels.Updater},
				{"label.helper", env.Labels.Helper},
				{"label.redirector", env.Labels.Redirector},
			}
			for _, row := range rows {
				fmt.Fprintf(tw, "%s\t%s\n", row[0], row[1])
			}
			binaries := make([]string, 0, len(env.BinaryPaths))
			for binary := range env.BinaryPaths {
				binaries = append(binaries, string(binary))
			}
			sort.Strings(binaries)
			for _, binary := range binaries {
				fmt.Fprintf(tw, "binary.%s\t%s\n", binary, env.BinaryPaths[config.Binary(binary)])
			}
			return tw.Flush()
		},
	}
}
