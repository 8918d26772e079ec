// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package launchd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/warden/lib/atomicfile"
	"github.com/bureau-foundation/warden/lib/clock"
)

const (
	DefaultPollInterval = 250 * time.Millisecond
	DefaultPollAttempts = 40
)

// JobState is the presence of a job in launchd.
type JobState int

const (
	Unloaded JobState = iota
	Loaded
)

func (s JobState) String() string {
	if s == Loaded {
		return "loaded"
	}
	return "unloaded"
}

// JobStatus is one row of launchctl's job list.
type JobStatus struct {
	Label string

	// PID is zero when the job is loaded but not running.
	PID int

	// LastExitStatus is the last exit status launchd recorded.
	// HasExitStatus is false when launchd has none.
	LastExitStatus int
	HasExitStatus  bool
}

// Running reports whether the job has a live process.
func (s JobStatus) Running() bool { return s.PID > 0 }

// DriverOptions configures a Driver. Zero values select defaults.
type DriverOptions struct {
	Runner       Runner
	Clock        clock.Clock
	Logger       *slog.Logger
	PollInterval time.Duration
	PollAttempts int

	// Launchctl is the launchctl executable name or path.
	Launchctl string
}

// Driver runs launchctl operations. It is safe for concurrent use.
type Driver struct {
	runner       Runner
	clock        clock.Clock
	logger       *slog.Logger
	pollInterval time.Duration
	pollAttempts int
	launchctl    string
}

func NewDriver(options DriverOptions) *Driver {
	if options.Runner == nil {
		options.Runner = ExecRunner{}
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	if options.PollInterval <= 0 {
		options.PollInterval = DefaultPollInterval
	}
	if options.PollAttempts <= 0 {
		options.PollAttempts = DefaultPollAttempts
	}
	if options.Launchctl == "" {
		options.Launchctl = "launchctl"
	}
	return &Driver{
		runner:       options.Runner,
		clock:        options.Clock,
		logger:       options.Logger,
		pollInterval: options.PollInterval,
		pollAttempts: options.PollAttempts,
		launchctl:    options.Launchctl,
	}
}

func (d *Driver) run(ctx context.Context, args ...string) ([]byte, error) {
	output, err := d.runner.Run(ctx, d.launchctl, args...)
	if err := classify(args, output, err); err != nil {
		return output, err
	}
	return output, nil
}

// List returns every job launchd reports for the current domain.
func (d *Driver) List(ctx context.Context) ([]JobStatus, error) {
	output, err := d.run(ctx, "list")
	if err != nil {
		return nil, err
	}
	return parseList(output)
}

// Status returns the job with label, or ErrNotFound.
func (d *Driver) Status(ctx context.Context, label string) (JobStatus, error) {
	jobs, err := d.List(ctx)
	if err != nil {
		return JobStatus{}, err
	}
	for _, job := range jobs {
		if job.Label == label {
			return job, nil
		}
	}
	return JobStatus{}, fmt.Errorf("%s: %w", label, ErrNotFound)
}

// parseList reads the "PID\tStatus\tLabel" table launchctl list
// prints. "-" in the PID or status column means none.
func parseList(output []byte) ([]JobStatus, error) {
	var jobs []JobStatus
	for number, line := range strings.Split(string(output), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if number == 0 && fields[0] == "PID" {
			continue
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("launchctl list line %d: expected 3 fields, got %q", number+1, line)
		}
		job := JobStatus{Label: fields[2]}
		if fields[0] != "-" {
			pid, err := strconv.Atoi(fields[0])
			if err != nil {
				return nil, fmt.Errorf("launchctl list line %d: bad pid %q", number+1, fields[0])
			}
			job.PID = pid
		}
		if fields[1] != "-" {
			status, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("launchctl list line %d: bad status %q", number+1, fields[1])
			}
			job.LastExitStatus = status
			job.HasExitStatus = true
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Load loads the job defined at plistPath and waits for label to
// appear. With force the job is re-enabled even if the user disabled
// it; without, a disabled job stays disabled and launchctl's refusal
// is returned.
func (d *Driver) Load(ctx context.Context, plistPath, label string, force bool) error {
	args := []string{"load"}
	if force {
		args = append(args, "-w")
	}
	args = append(args, plistPath)
	d.logger.Debug("loading launchd job", "label", label, "plist", plistPath, "force", force)
	if _, err := d.run(ctx, args...); err != nil {
		return err
	}
	return d.WaitForState(ctx, label, Loaded)
}

// Unload unloads the job and waits for label to disappear. A job that
// is not loaded is not an error. With disable the job is also marked
// disabled so it stays unloaded across logins.
func (d *Driver) Unload(ctx context.Context, plistPath, label string, disable bool) error {
	if _, err := d.Status(ctx, label); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	args := []string{"unload"}
	if disable {
		args = append(args, "-w")
	}
	args = append(args, plistPath)
	d.logger.Debug("unloading launchd job", "label", label, "plist", plistPath)
	if _, err := d.run(ctx, args...); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return d.WaitForState(ctx, label, Unloaded)
}

// WaitForState polls until label reaches want, checking immediately
// and then every poll interval, for at most the configured number of
// attempts.
func (d *Driver) WaitForState(ctx context.Context, label string, want JobState) error {
	for attempt := 1; ; attempt++ {
		_, err := d.Status(ctx, label)
		var current JobState
		switch {
		case err == nil:
			current = Loaded
		case errors.Is(err, ErrNotFound):
			current = Unloaded
		default:
			return err
		}
		if current == want {
			return nil
		}
		if attempt >= d.pollAttempts {
			return fmt.Errorf("%s still %s after %d checks: %w", label, current, attempt, ErrWaitTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.clock.After(d.pollInterval):
		}
	}
}

// Install writes p to path and loads it, replacing any loaded job with
// the same label. The old job is unloaded before the plist is
// rewritten, and the new one is loaded with force: installing is an
// explicit request to run the job.
func (d *Driver) Install(ctx context.Context, path string, p Plist) error {
	data, err := p.Encode()
	if err != nil {
		return err
	}
	if err := d.Unload(ctx, path, p.Label, false); err != nil {
		return err
	}
	if err := atomicfile.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	d.logger.Info("installed launchd job", "label", p.Label, "plist", path)
	return d.Load(ctx, path, p.Label, true)
}

// Uninstall unloads the job and removes its plist. Either may already
// be gone.
func (d *Driver) Uninstall(ctx context.Context, path, label string) error {
	if err := d.Unload(ctx, path, label, false); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	d.logger.Info("uninstalled launchd job", "label", label, "plist", path)
	return nil
}
