// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package launchd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/warden/lib/clock"
	"github.com/bureau-foundation/warden/lib/testutil"
)

// fakeLaunchctl simulates the legacy launchctl subcommands against
// real plist files on disk.
type fakeLaunchctl struct {
	mu      sync.Mutex
	jobs    map[string]JobStatus
	nextPID int
	calls   []string

	// hiddenLists makes the next N list calls omit changes made by the
	// most recent load or unload, imitating launchd's asynchrony.
	hiddenLists int
	stale       map[string]JobStatus

	// output is returned verbatim for matching subcommands.
	output map[string]string
}

func newFakeLaunchctl() *fakeLaunchctl {
	return &fakeLaunchctl{jobs: map[string]JobStatus{}, nextPID: 100, output: map[string]string{}}
}

func (f *fakeLaunchctl) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, strings.Join(args, " "))
	if text, ok := f.output[args[0]]; ok {
		return []byte(text), nil
	}

	switch args[0] {
	case "list":
		jobs := f.jobs
		if f.hiddenLists > 0 {
			f.hiddenLists--
			jobs = f.stale
		}
		var b strings.Builder
		b.WriteString("PID\tStatus\tLabel\n")
		labels := make([]string, 0, len(jobs))
		for label := range jobs {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			job := jobs[label]
			pid, status := "-", "-"
			if job.PID > 0 {
				pid = fmt.Sprint(job.PID)
			}
			if job.HasExitStatus {
				status = fmt.Sprint(job.LastExitStatus)
			}
			fmt.Fprintf(&b, "%s\t%s\t%s\n", pid, status, label)
		}
		return []byte(b.String()), nil
	case "load", "unload":
		plist, err := ReadPlist(args[len(args)-1])
		if err != nil {
			return []byte(err.Error()), errors.New("exit status 1")
		}
		f.snapshot()
		if args[0] == "load" {
			f.nextPID++
			f.jobs[plist.Label] = JobStatus{Label: plist.Label, PID: f.nextPID}
		} else {
			delete(f.jobs, plist.Label)
		}
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected launchctl %v", args)
}

func (f *fakeLaunchctl) snapshot() {
	f.stale = make(map[string]JobStatus, len(f.jobs))
	for label, job := range f.jobs {
		f.stale[label] = job
	}
}

func (f *fakeLaunchctl) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// matching returns the recorded commands for one subcommand.
func (f *fakeLaunchctl) matching(subcommand string) []string {
	var matched []string
	for _, command := range f.commands() {
		if strings.Fields(command)[0] == subcommand {
			matched = append(matched, command)
		}
	}
	return matched
}

func samplePlist(program string) Plist {
	return Plist{
		Label:                "dev.warden.service",
		ProgramArguments:     []string{program, "service", "--log-format=json"},
		EnvironmentVariables: map[string]string{"WARDEN_LABEL": "dev.warden.service", "WARDEN_RUN_MODE": "production"},
		KeepAlive:            true,
		RunAtLoad:            true,
		StandardErrorPath:    "/Users/alice/Library/Logs/Warden/wardend.log",
		Comment:              "Generated by warden; may be overwritten.",
	}
}

func TestPlistRoundTrip(t *testing.T) {
	original := samplePlist("/Applications/Warden.app/Contents/SharedSupport/bin/wardend")
	data, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(data), "<key>Label</key>") {
		t.Errorf("encoded plist is not XML:\n%s", data)
	}
	if strings.Contains(string(data), "WorkingDirectory") {
		t.Errorf("empty WorkingDirectory was encoded:\n%s", data)
	}
	decoded, err := DecodePlist(data)
	if err != nil {
		t.Fatalf("DecodePlist: %v", err)
	}
	if !reflect.DeepEqual(decoded, original) {
		t.Errorf("round trip = %+v, want %+v", decoded, original)
	}
	if decoded.Program() != original.ProgramArguments[0] {
		t.Errorf("Program = %q", decoded.Program())
	}
}

func TestPlistEncodeRequiresLabelAndProgram(t *testing.T) {
	if _, err := (Plist{ProgramArguments: []string{"/bin/true"}}).Encode(); err == nil {
		t.Error("plist without label encoded")
	}
	if _, err := (Plist{Label: "x"}).Encode(); err == nil {
		t.Error("plist without program encoded")
	}
}

func TestParseList(t *testing.T) {
	output := "PID\tStatus\tLabel\n" +
		"412\t0\tdev.warden.service\n" +
		"-\t78\tdev.warden.fs\n" +
		"-\t-\tdev.warden.updater\n"
	jobs, err := parseList([]byte(output))
	if err != nil {
		t.Fatalf("parseList: %v", err)
	}
	want := []JobStatus{
		{Label: "dev.warden.service", PID: 412, LastExitStatus: 0, HasExitStatus: true},
		{Label: "dev.warden.fs", LastExitStatus: 78, HasExitStatus: true},
		{Label: "dev.warden.updater"},
	}
	if !reflect.DeepEqual(jobs, want) {
		t.Errorf("parseList = %+v, want %+v", jobs, want)
	}
	if !jobs[0].Running() || jobs[1].Running() {
		t.Error("Running() disagrees with PID")
	}

	if _, err := parseList([]byte("abc\t0\tx\n")); err == nil {
		t.Error("bad pid accepted")
	}
	if _, err := parseList([]byte("1\t0\n")); err == nil {
		t.Error("short line accepted")
	}
}

func TestStatusNotFound(t *testing.T) {
	driver := NewDriver(DriverOptions{Runner: newFakeLaunchctl()})
	_, err := driver.Status(context.Background(), "dev.warden.service")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Status = %v, want ErrNotFound", err)
	}
}

func TestInstallLoadsAndUninstallRemoves(t *testing.T) {
	fake := newFakeLaunchctl()
	driver := NewDriver(DriverOptions{Runner: fake})
	path := filepath.Join(t.TempDir(), "dev.warden.service.plist")
	ctx := context.Background()

	if err := driver.Install(ctx, path, samplePlist("/bin/wardend")); err != nil {
		t.Fatalf("Install: %v", err)
	}
	status, err := driver.Status(ctx, "dev.warden.service")
	if err != nil {
		t.Fatalf("Status after install: %v", err)
	}
	if !status.Running() {
		t.Errorf("job not running after install: %+v", status)
	}
	onDisk, err := ReadPlist(path)
	if err != nil {
		t.Fatalf("ReadPlist: %v", err)
	}
	if onDisk.Program() != "/bin/wardend" {
		t.Errorf("installed program = %q", onDisk.Program())
	}

	// Reinstalling replaces the loaded job.
	if err := driver.Install(ctx, path, samplePlist("/bin/wardend2")); err != nil {
		t.Fatalf("second Install: %v", err)
	}
	commands := fake.commands()
	unloads := 0
	for _, command := range commands {
		if strings.HasPrefix(command, "unload") {
			unloads++
		}
	}
	if unloads != 1 {
		t.Errorf("unload ran %d times, want 1: %v", unloads, commands)
	}
	for _, load := range fake.matching("load") {
		if load != "load -w "+path {
			t.Errorf("install ran %q, want load -w %s", load, path)
		}
	}

	if err := driver.Uninstall(ctx, path, "dev.warden.service"); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("plist still present: %v", err)
	}
	if _, err := driver.Status(ctx, "dev.warden.service"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Status after uninstall = %v, want ErrNotFound", err)
	}

	// Uninstalling again tolerates the missing job and file.
	if err := driver.Uninstall(ctx, path, "dev.warden.service"); err != nil {
		t.Errorf("repeated Uninstall: %v", err)
	}
}

func TestLoadWaitsForJob(t *testing.T) {
	fake := newFakeLaunchctl()
	fakeClock := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	driver := NewDriver(DriverOptions{Runner: fake, Clock: fakeClock, PollInterval: time.Second, PollAttempts: 5})
	path := filepath.Join(t.TempDir(), "job.plist")
	data, err := samplePlist("/bin/wardend").Encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	fake.mu.Lock()
	fake.hiddenLists = 2
	fake.mu.Unlock()

	result := make(chan error, 1)
	go func() { result <- driver.Load(context.Background(), path, "dev.warden.service", false) }()

	for range 2 {
		fakeClock.WaitForTimers(1)
		fakeClock.Advance(time.Second)
	}
	if err := testutil.RequireReceive(t, result, 5*time.Second, "Load"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loads := fake.matching("load"); len(loads) != 1 || loads[0] != "load "+path {
		t.Errorf("load without force = %v, want [load %s]", loads, path)
	}
	if unloads := fake.matching("unload"); len(unloads) != 0 {
		t.Errorf("load without force unloaded first: %v", unloads)
	}
}

func TestLoadWithForceReenables(t *testing.T) {
	fake := newFakeLaunchctl()
	driver := NewDriver(DriverOptions{Runner: fake})
	path := filepath.Join(t.TempDir(), "job.plist")
	data, err := samplePlist("/bin/wardend").Encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := driver.Load(context.Background(), path, "dev.warden.service", true); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loads := fake.matching("load"); len(loads) != 1 || loads[0] != "load -w "+path {
		t.Errorf("load with force = %v, want [load -w %s]", loads, path)
	}
}

func TestWaitForStateTimesOut(t *testing.T) {
	fakeClock := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	driver := NewDriver(DriverOptions{Runner: newFakeLaunchctl(), Clock: fakeClock, PollInterval: time.Second, PollAttempts: 3})

	result := make(chan error, 1)
	go func() { result <- driver.WaitForState(context.Background(), "dev.warden.service", Loaded) }()

	for range 2 {
		fakeClock.WaitForTimers(1)
		fakeClock.Advance(time.Second)
	}
	err := testutil.RequireReceive(t, result, 5*time.Second, "WaitForState")
	if !errors.Is(err, ErrWaitTimeout) {
		t.Errorf("WaitForState = %v, want ErrWaitTimeout", err)
	}
}

func TestWaitForStateHonorsContext(t *testing.T) {
	fakeClock := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	driver := NewDriver(DriverOptions{Runner: newFakeLaunchctl(), Clock: fakeClock})
	ctx, cancel := context.WithCancel(context.Background())

	result := make(chan error, 1)
	go func() { result <- driver.WaitForState(ctx, "dev.warden.service", Loaded) }()
	fakeClock.WaitForTimers(1)
	cancel()

	err := testutil.RequireReceive(t, result, 5*time.Second, "WaitForState")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("WaitForState = %v, want context.Canceled", err)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		runner RunnerFunc
		want   error
	}{
		{
			name: "missing launchctl",
			runner: func(context.Context, string, ...string) ([]byte, error) {
				return nil, &exec.Error{Name: "launchctl", Err: exec.ErrNotFound}
			},
			want: ErrUnavailable,
		},
		{
			name: "permission",
			runner: func(context.Context, string, ...string) ([]byte, error) {
				return []byte("Load failed: 1: Operation not permitted"), nil
			},
			want: ErrPermissionDenied,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			driver := NewDriver(DriverOptions{Runner: test.runner})
			_, err := driver.List(context.Background())
			if !errors.Is(err, test.want) {
				t.Errorf("List = %v, want %v", err, test.want)
			}
			var commandErr *CommandError
			if !errors.As(err, &commandErr) || commandErr.Args[0] != "list" {
				t.Errorf("error %v is not a *CommandError for list", err)
			}
		})
	}
}

func TestLoadFailureReportedInOutput(t *testing.T) {
	fake := newFakeLaunchctl()
	fake.output["load"] = "Load failed: 5: Input/output error"
	driver := NewDriver(DriverOptions{Runner: fake})
	err := driver.Load(context.Background(), "/nonexistent.plist", "dev.warden.service", false)
	if err == nil || !strings.Contains(err.Error(), "Input/output error") {
		t.Errorf("Load = %v, want launchctl output in error", err)
	}
}
