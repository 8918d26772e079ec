// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/warden/cmd/warden/cli"
	"github.com/bureau-foundation/warden/lib/component"
	"github.com/bureau-foundation/warden/lib/config"
	"github.com/bureau-foundation/warden/lib/installer"
)

func installCommand() *cli.Command {
	var flags globalFlags
	var options installer.Options
	var names []string
	var asJSON, auto bool
	return &cli.Command{
		Name:    "install",
		Summary: "Install or upgrade components",
		Description: `Install every component that is missing or older than the bundle.
Components run in dependency order; a component whose dependency failed
is skipped and reported as such.

Production and staging bundles must not run from a disk image or a
translocated copy. With --auto (production only) the command also
reports whether a new core service process was started.`,
		Examples: []cli.Example{
			{Description: "Install or upgrade everything", Command: "warden install"},
			{Description: "Reinstall the core service even if current", Command: "warden install --force --component core-service"},
			{Description: "Install at application launch", Command: "warden install --auto --json"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("install", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.BoolVar(&options.Force, "force", false, "reinstall components that are already current")
			flagSet.BoolVar(&options.StopOnError, "stop-on-error", false, "stop after the first failing dependency rank")
			flagSet.BoolVar(&auto, "auto", false, "install what needs work and report whether the core service started")
			flagSet.StringSliceVar(&names, "component", nil, "limit to the named components (repeatable)")
			flagSet.BoolVar(&asJSON, "json", false, "print actions as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected arguments %q", args)
			}
			if auto && options.Force {
				return errors.New("--auto and --force cannot be combined")
			}
			env, err := flags.environment()
			if err != nil {
				return err
			}
			if err := checkInstallLocation(env); err != nil {
				return err
			}
			if auto {
				if env.RunMode != config.Production {
					return fmt.Errorf("--auto only installs in production mode, not %s", env.RunMode)
				}
				return runAutoInstall(&flags, names, asJSON)
			}
			return runLifecycle(&flags, names, asJSON, func(ctx context.Context, s *session) ([]*installer.Action, error) {
				return s.manager.Install(ctx, s.components, options)
			})
		},
	}
}

// checkInstallLocation refuses bundles that launchd jobs could not keep
// referencing. Devel and custom builds run from wherever they were
// built.
func checkInstallLocation(env *config.Environment) error {
	switch env.RunMode {
	case config.Production, config.Staging:
		return config.CheckLocation(env.BinDir)
	}
	return nil
}

type autoRecord struct {
	Started bool           `json:"started"`
	Actions []actionRecord `json:"actions"`
}

func runAutoInstall(flags *globalFlags, names []string, asJSON bool) error {
	s, err := openSession(flags, names)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()
	result, err := s.manager.AutoInstall(ctx, s.components)

	if asJSON {
		if writeErr := cli.WriteJSON(autoRecord{Started: result.Started, Actions: actionRecords(result.Actions)}); writeErr != nil {
			return writeErr
		}
	} else {
		printAutoResult(os.Stdout, result)
	}
	if err != nil {
		return &cli.ExitError{Code: 1}
	}
	return nil
}

func printAutoResult(w io.Writer, result installer.AutoResult) {
	printActions(w, result.Actions)
	if result.Started {
		fmt.Fprintln(w, "Core service started.")
	} else {
		fmt.Fprintln(w, "Core service not restarted.")
	}
}

type managerOperation func(*installer.Manager, context.Context, []component.Installable) ([]*installer.Action, error)

func lifecycleCommand(name, summary string, operation managerOperation) *cli.Command {
	var flags globalFlags
	var names []string
	var asJSON bool
	return &cli.Command{
		Name:    name,
		Summary: summary,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringSliceVar(&names, "component", nil, "limit to the named components (repeatable)")
			flagSet.BoolVar(&asJSON, "json", false, "print actions as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected arguments %q", args)
			}
			return runLifecycle(&flags, names, asJSON, func(ctx context.Context, s *session) ([]*installer.Action, error) {
				return operation(s.manager, ctx, s.components)
			})
		},
	}
}

func runLifecycle(flags *globalFlags, names []string, asJSON bool, run func(context.Context, *session) ([]*installer.Action, error)) error {
	s, err := openSession(flags, names)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()
	actions, err := run(ctx, s)

	if asJSON {
		if writeErr := cli.WriteJSON(actionRecords(actions)); writeErr != nil {
			return writeErr
		}
	} else {
		printActions(os.Stdout, actions)
	}
	if err != nil {
		return &cli.ExitError{Code: 1}
	}
	return nil
}

type actionRecord struct {
	Component string `json:"component"`
	Operation string `json:"operation"`
	Planned   string `json:"planned,omitempty"`
	Attempted bool   `json:"attempted"`
	Skipped   bool   `json:"skipped,omitempty"`
	Error     string `json:"error,omitempty"`
}

func actionRecords(actions []*installer.Action) []actionRecord {
	records := make([]actionRecord, 0, len(actions))
	for _, action := range actions {
		record := actionRecord{
			Component: action.Component,
			Operation: action.Operation,
			Attempted: action.Attempted,
			Skipped:   action.Skipped(),
		}
		if action.Planned != component.NoAction {
			record.Planned = action.Planned.String()
		}
		if action.Err != nil {
			record.Error = action.Err.Error()
		}
		records = append(records, record)
	}
	return records
}

// printActions writes one line per action. Skips are shown as such so
// they are not mistaken for failures worth retrying on their own.
func printActions(w io.Writer, actions []*installer.Action) {
	if len(actions) == 0 {
		fmt.Fprintln(w, "Nothing to do.")
		return
	}
	for _, action := range actions {
		switch {
		case action.Skipped():
			fmt.Fprintf(w, "  skip  %s\n", action.Err)
		case action.Err != nil:
			fmt.Fprintf(w, "  FAIL  %s\n", action.Err)
		case !action.Attempted:
			fmt.Fprintf(w, "  ----  %s: not attempted\n", action.Component)
		default:
			fmt.Fprintf(w, "  ok    %s\n", action)
		}
	}
}
