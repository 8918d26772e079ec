// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package installer

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/warden/lib/clock"
	"github.com/bureau-foundation/warden/lib/component"
)

// DefaultConcurrency bounds how many components are probed or
// operated on at once.
const DefaultConcurrency = 4

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Logger *slog.Logger
	Clock  clock.Clock

	// Concurrency bounds parallel work within one rank and during
	// status refresh. Defaults to DefaultConcurrency.
	Concurrency int

	// NewOperationID labels each run in the logs. Defaults to random
	// UUIDs.
	NewOperationID func() string
}

// Options modify an install run.
type Options struct {
	// Force installs every component, current or not.
	Force bool

	// StopOnError stops after the first rank with a failed action.
	// Later actions are left unattempted with no error.
	StopOnError bool
}

// Manager runs lifecycle operations across components. It holds no
// per-run state and is safe for concurrent use, though concurrent runs
// over the same components will race on the machine.
type Manager struct {
	logger      *slog.Logger
	clock       clock.Clock
	concurrency int
	newID       func() string
}

func NewManager(options ManagerOptions) *Manager {
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Concurrency <= 0 {
		options.Concurrency = DefaultConcurrency
	}
	if options.NewOperationID == nil {
		options.NewOperationID = uuid.NewString
	}
	return &Manager{
		logger:      options.Logger,
		clock:       options.Clock,
		concurrency: options.Concurrency,
		newID:       options.NewOperationID,
	}
}

// RefreshStatus probes every component concurrently and waits for all
// of them. Every result is returned; the error joins a
// component.StatusUnavailable error for each probe that failed.
func (m *Manager) RefreshStatus(ctx context.Context, components []component.Installable) (Statuses, error) {
	results := make(Statuses, len(components))
	var group errgroup.Group
	group.SetLimit(m.concurrency)
	for i, target := range components {
		results[i].Component = target
		group.Go(func() error {
			status, err := target.Status(ctx)
			if err != nil {
				results[i].Err = component.Fail(target.Descriptor().Name, component.OperationStatus, err)
				return nil
			}
			results[i].Status = status
			return nil
		})
	}
	group.Wait()

	var errs []error
	for _, result := range results {
		if result.Err != nil {
			m.logger.Warn("status probe failed", "component", result.Name(), "error", result.Err)
			errs = append(errs, result.Err)
		}
	}
	return results, errors.Join(errs...)
}

// Install brings components to the bundled version. Only components
// whose probe shows work to do get an action, unless options.Force is
// set. A failed probe still gets an action: the install attempt
// reports why it cannot proceed.
func (m *Manager) Install(ctx context.Context, components []component.Installable, options Options) ([]*Action, error) {
	logger := m.logger.With("operation_id", m.newID(), "operation", component.OperationInstall)
	statuses, _ := m.RefreshStatus(ctx, components)

	var plan []step
	for _, result := range statuses {
		current := result.Err == nil && result.Status.Install() == component.Installed && !result.Status.NeedsWork()
		if current && !options.Force {
			continue
		}
		planned := result.Status.Action()
		if planned == component.NoAction {
			planned = component.ReinstallAction
		}
		plan = append(plan, newStep(result.Component, component.OperationInstall, planned))
	}
	logger.Info("install planned", "components", len(components), "actions", len(plan), "force", options.Force)

	if options.Force {
		ctx = component.WithForce(ctx)
	}
	actions := m.execute(ctx, logger, plan, runOptions{
		reverse:      false,
		dependencies: true,
		stopOnError:  options.StopOnError,
		run:          component.Installable.Install,
	})
	return actions, m.finish(ctx, logger, actions)
}

// AutoResult is the outcome of AutoInstall.
type AutoResult struct {
	Actions []*Action

	// Started reports whether the run installed the core service, which
	// means a new core process was started.
	Started bool
}

// AutoInstall installs whatever needs work, never forcing, and reports
// whether the core service was (re)started. Callers launching the
// application use Started to decide whether to wait for a fresh core
// process.
func (m *Manager) AutoInstall(ctx context.Context, components []component.Installable) (AutoResult, error) {
	actions, err := m.Install(ctx, components, Options{})
	result := AutoResult{Actions: actions}
	for _, action := range actions {
		if action.Kind == component.CoreServiceKind && action.Attempted && action.Err == nil {
			result.Started = true
		}
	}
	return result, err
}

// Uninstall removes every component in reverse dependency order. A
// failure does not stop the others.
func (m *Manager) Uninstall(ctx context.Context, components []component.Installable) ([]*Action, error) {
	return m.runAll(ctx, components, component.OperationUninstall, runOptions{
		reverse: true,
		run:     component.Installable.Uninstall,
	})
}

// Start starts every component in dependency order, skipping those
// whose dependencies failed to start.
func (m *Manager) Start(ctx context.Context, components []component.Installable) ([]*Action, error) {
	return m.runAll(ctx, components, component.OperationStart, runOptions{
		dependencies: true,
		run:          component.Installable.Start,
	})
}

// Stop stops every component in reverse dependency order.
func (m *Manager) Stop(ctx context.Context, components []component.Installable) ([]*Action, error) {
	return m.runAll(ctx, components, component.OperationStop, runOptions{
		reverse: true,
		run:     component.Installable.Stop,
	})
}

func (m *Manager) runAll(ctx context.Context, components []component.Installable, operation string, options runOptions) ([]*Action, error) {
	logger := m.logger.With("operation_id", m.newID(), "operation", operation)
	plan := make([]step, 0, len(components))
	for _, target := range components {
		plan = append(plan, newStep(target, operation, component.NoAction))
	}
	actions := m.execute(ctx, logger, plan, options)
	return actions, m.finish(ctx, logger, actions)
}

type step struct {
	target component.Installable
	action *Action
}

func newStep(target component.Installable, operation string, planned component.ActionKind) step {
	descriptor := target.Descriptor()
	return step{
		target: target,
		action: &Action{
			Component: descriptor.Name,
			Kind:      descriptor.Kind,
			Operation: operation,
			Planned:   planned,
		},
	}
}

type runOptions struct {
	reverse      bool
	dependencies bool
	stopOnError  bool
	run          func(component.Installable, context.Context) error
}

// execute runs the plan rank by rank and returns the actions in plan
// order.
func (m *Manager) execute(ctx context.Context, logger *slog.Logger, plan []step, options runOptions) []*Action {
	byRank := make(map[int][]step)
	var ranks []int
	for _, s := range plan {
		rank := s.action.Kind.Rank()
		if _, ok := byRank[rank]; !ok {
			ranks = append(ranks, rank)
		}
		byRank[rank] = append(byRank[rank], s)
	}
	slices.Sort(ranks)
	if options.reverse {
		slices.Reverse(ranks)
	}

	// failed maps a kind to the name of its failed or skipped component.
	failed := make(map[component.Kind]string)
	for _, rank := range ranks {
		if ctx.Err() != nil {
			logger.Warn("run cancelled", "rank", rank, "error", ctx.Err())
			break
		}

		var group errgroup.Group
		group.SetLimit(m.concurrency)
		for _, s := range byRank[rank] {
			if options.dependencies {
				if dependency, ok := failedDependency(s.action.Kind, failed); ok {
					s.action.Err = component.Skipped(s.action.Component, s.action.Operation, dependency)
					failed[s.action.Kind] = s.action.Component
					logger.Warn("skipping component", "component", s.action.Component, "requires", dependency)
					continue
				}
			}
			group.Go(func() error {
				started := m.clock.Now()
				logger.Debug("starting", "component", s.action.Component, "planned", s.action.Planned.String())
				err := options.run(s.target, ctx)

				s.action.Attempted = true
				s.action.Err = component.Fail(s.action.Component, s.action.Operation, err)

				elapsed := m.clock.Now().Sub(started)
				if err != nil {
					logger.Warn("component failed", "component", s.action.Component, "duration", elapsed, "error", err)
				} else {
					logger.Info("component done", "component", s.action.Component, "duration", elapsed)
				}
				return nil
			})
		}
		group.Wait()

		rankFailed := false
		for _, s := range byRank[rank] {
			if s.action.Attempted && s.action.Err != nil {
				failed[s.action.Kind] = s.action.Component
				rankFailed = true
			}
		}
		if rankFailed && options.stopOnError {
			logger.Warn("stopping after failed rank", "rank", rank)
			break
		}
	}

	actions := make([]*Action, len(plan))
	for i, s := range plan {
		actions[i] = s.action
	}
	return actions
}

func failedDependency(kind component.Kind, failed map[component.Kind]string) (string, bool) {
	for _, required := range kind.Requires() {
		if name, ok := failed[required]; ok {
			return name, true
		}
	}
	return "", false
}

func (m *Manager) finish(ctx context.Context, logger *slog.Logger, actions []*Action) error {
	attempted, failures := 0, 0
	for _, action := range actions {
		if action.Attempted {
			attempted++
		}
		if action.Err != nil {
			failures++
		}
	}
	logger.Info("run finished", "actions", len(actions), "attempted", attempted, "failed", failures)
	err := joinErrors(actions)
	if ctx.Err() != nil && attempted < len(actions) {
		err = errors.Join(err, ctx.Err())
	}
	return err
}
