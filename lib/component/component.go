// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package component

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bureau-foundation/warden/lib/clock"
	"github.com/bureau-foundation/warden/lib/config"
	"github.com/bureau-foundation/warden/lib/helper"
	"github.com/bureau-foundation/warden/lib/launchd"
)

// Descriptor names a component. It never changes after construction.
type Descriptor struct {
	Name string
	Info string
	Kind Kind
}

// Installable is one managed component. Every operation blocks until
// it finishes and reports a single terminal error. Status never
// changes anything on the machine.
type Installable interface {
	Descriptor() Descriptor

	// View renders a status for display.
	View(Status) []Field

	Status(ctx context.Context) (Status, error)

	// Install brings the component to the bundled version: a no-op when
	// it is current, unless ctx carries WithForce.
	Install(ctx context.Context) error

	// Uninstall removes the component, tolerating any part of it
	// already being gone.
	Uninstall(ctx context.Context) error

	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type forceKey struct{}

// WithForce marks ctx so Install redoes its work even when the
// component is current.
func WithForce(ctx context.Context) context.Context {
	return context.WithValue(ctx, forceKey{}, true)
}

// Forced reports whether ctx was marked by WithForce.
func Forced(ctx context.Context) bool {
	forced, _ := ctx.Value(forceKey{}).(bool)
	return forced
}

// DefaultWatchdogMaxAge bounds how long an upgrade record stays
// relevant.
const DefaultWatchdogMaxAge = 10 * time.Minute

// Dependencies are the collaborators components share.
type Dependencies struct {
	// Driver manages launchd jobs. Defaults to a driver over Runner.
	Driver *launchd.Driver

	// Helper performs privileged actions. Required by the kernel
	// extension, mount redirector, filesystem service, and
	// command-line link.
	Helper helper.Actions

	// Runner executes probe commands. Defaults to launchd.ExecRunner.
	Runner launchd.Runner

	// Spawner starts the core service directly when launchd will not
	// load it. Defaults to launchd.ExecSpawner.
	Spawner launchd.Spawner

	Clock  clock.Clock
	Logger *slog.Logger

	// UID is the user the privileged helper serves. Defaults to this
	// process's.
	UID int

	WatchdogMaxAge time.Duration
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	if d.Runner == nil {
		d.Runner = launchd.ExecRunner{}
	}
	if d.Spawner == nil {
		d.Spawner = launchd.ExecSpawner{}
	}
	if d.Driver == nil {
		d.Driver = launchd.NewDriver(launchd.DriverOptions{Runner: d.Runner, Clock: d.Clock, Logger: d.Logger})
	}
	if d.UID == 0 {
		d.UID = os.Getuid()
	}
	if d.WatchdogMaxAge <= 0 {
		d.WatchdogMaxAge = DefaultWatchdogMaxAge
	}
	return d
}

// Build constructs the components of the given kinds, in dependency
// order. With no kinds it builds all of them.
func Build(env *config.Environment, deps Dependencies, kinds ...Kind) ([]Installable, error) {
	deps = deps.withDefaults()
	if len(kinds) == 0 {
		kinds = Kinds
	}
	wanted := make(map[Kind]bool, len(kinds))
	for _, kind := range kinds {
		wanted[kind] = true
	}

	var components []Installable
	for _, kind := range Kinds {
		if !wanted[kind] {
			continue
		}
		delete(wanted, kind)
		switch kind {
		case KernelExtensionKind, MountRedirectorKind, FilesystemServiceKind, CommandLineLinkKind:
			if deps.Helper == nil {
				return nil, fmt.Errorf("%s needs a helper client", kind)
			}
		}
		switch kind {
		case PrivilegedHelperKind:
			components = append(components, NewPrivilegedHelper(env, deps))
		case KernelExtensionKind:
			components = append(components, NewKernelExtension(env, deps))
		case MountRedirectorKind:
			components = append(components, NewMountRedirector(env, deps))
		case FilesystemServiceKind:
			components = append(components, NewFilesystemService(env, deps))
		case CoreServiceKind:
			components = append(components, NewCoreService(env, deps))
		case UpdaterServiceKind:
			components = append(components, NewUpdaterService(env, deps))
		case CommandLineLinkKind:
			components = append(components, NewCommandLineLink(env, deps))
		}
	}
	for kind := range wanted {
		return nil, fmt.Errorf("unknown component kind %v", kind)
	}
	return components, nil
}

// DefaultView lists the install and runtime states, then the status
// fields, then the error if any.
func DefaultView(status Status) []Field {
	fields := []Field{
		{Name: "install", Value: status.Install().String()},
		{Name: "runtime", Value: status.Runtime().String()},
	}
	if status.NeedsWork() {
		fields = append(fields, Field{Name: "action", Value: status.Action().String()})
	}
	fields = append(fields, status.Info()...)
	if err := status.Err(); err != nil {
		fields = append(fields, Field{Name: "error", Value: err.Error()})
	}
	return fields
}
