// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/warden/cmd/warden/cli"
	"github.com/bureau-foundation/warden/lib/component"
	"github.com/bureau-foundation/warden/lib/installer"
)

func statusCommand() *cli.Command {
	var flags globalFlags
	var names []string
	var asJSON bool
	return &cli.Command{
		Name:    "status",
		Summary: "Show the state of every component",
		Description: `Probe every component and show whether it is installed, current, and
running. Exits 2 if any component could not be probed.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringSliceVar(&names, "component", nil, "limit to the named components (repeatable)")
			flagSet.BoolVar(&asJSON, "json", false, "print status as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			s, err := openSession(&flags, names)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := signalContext()
			defer cancel()
			statuses, err := s.manager.RefreshStatus(ctx, s.components)

			if asJSON {
				if writeErr := cli.WriteJSON(statusReport(statuses)); writeErr != nil {
					return writeErr
				}
			} else {
				printStatuses(os.Stdout, statuses, newStatusStyles(cli.IsTerminal()))
			}
			if err != nil {
				return &cli.ExitError{Code: 2}
			}
			return nil
		},
	}
}

type componentReport struct {
	Name    string            `json:"name"`
	Kind    string            `json:"kind"`
	Install string            `json:"install"`
	Runtime string            `json:"runtime"`
	Action  string            `json:"action,omitempty"`
	Fields  []component.Field `json:"fields"`
	Error   string            `json:"error,omitempty"`
}

type report struct {
	Summary    string            `json:"summary"`
	Components []componentReport `json:"components"`
}

func statusReport(statuses installer.Statuses) report {
	result := report{Summary: installer.Summary(statuses), Components: []componentReport{}}
	for _, status := range statuses {
		descriptor := status.Component.Descriptor()
		entry := componentReport{
			Name:    descriptor.Name,
			Kind:    descriptor.Kind.String(),
			Install: status.Status.Install().String(),
			Runtime: status.Status.Runtime().String(),
			Fields:  status.Status.Info(),
		}
		if status.Status.NeedsWork() {
			entry.Action = status.Status.Action().String()
		}
		if entry.Fields == nil {
			entry.Fields = []component.Field{}
		}
		switch {
		case status.Err != nil:
			entry.Error = status.Err.Error()
		case status.Status.Err() != nil:
			entry.Error = status.Status.Err().Error()
		}
		result.Components = append(result.Components, entry)
	}
	return result
}

// statusStyles colour install states. Without a terminal every style
// renders plain text.
type statusStyles struct {
	name    lipgloss.Style
	good    lipgloss.Style
	warning lipgloss.Style
	bad     lipgloss.Style
	dim     lipgloss.Style
}

func newStatusStyles(color bool) statusStyles {
	if !color {
		plain := lipgloss.NewStyle()
		return statusStyles{name: plain, good: plain, warning: plain, bad: plain, dim: plain}
	}
	return statusStyles{
		name:    lipgloss.NewStyle().Bold(true),
		good:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		bad:     lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

func (s statusStyles) state(state component.InstallState) lipgloss.Style {
	switch state {
	case component.Installed:
		return s.good
	case component.NeedsUpgrade, component.NotInstalled:
		return s.warning
	default:
		return s.bad
	}
}

const nameColumnWidth = 20

// printStatuses writes one block per component: the name and install
// state, then the component's view fields indented beneath.
func printStatuses(w io.Writer, statuses installer.Statuses, styles statusStyles) {
	for _, result := range statuses {
		name := styles.name.Width(nameColumnWidth).Render(result.Name())
		if result.Err != nil {
			fmt.Fprintf(w, "%s %s\n", name, styles.bad.Render("unavailable"))
			fmt.Fprintf(w, "    %s\n", styles.dim.Render(result.Err.Error()))
			continue
		}
		state := result.Status.Install()
		fmt.Fprintf(w, "%s %s\n", name, styles.state(state).Render(state.String()))
		for _, field := range result.Component.View(result.Status) {
			if field.Name == "install" {
				continue
			}
			label := styles.dim.Render(field.Name + ":")
			fmt.Fprintf(w, "    %s %s\n", label, strings.TrimSpace(field.Value))
		}
	}
	fmt.Fprintf(w, "\n%s\n", installer.Summary(statuses))
}
