// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package installer

import (
	"context"
	"sync"

	"github.com/bureau-foundation/warden/lib/component"
)

// callLog records operations across components in the order they run.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) index(call string) int {
	for i, recorded := range l.list() {
		if recorded == call {
			return i
		}
	}
	return -1
}

type fakeComponent struct {
	kind component.Kind
	log  *callLog

	status    component.Status
	statusErr error
	err       map[string]error

	// block, when set, is called inside Install before returning.
	block func()

	mu     sync.Mutex
	forced bool
}

func newFake(log *callLog, kind component.Kind, install component.InstallState) *fakeComponent {
	return &fakeComponent{
		kind:   kind,
		log:    log,
		status: component.NewStatus(install, component.NotRunning),
		err:    map[string]error{},
	}
}

func (f *fakeComponent) Descriptor() component.Descriptor {
	return component.Descriptor{Name: f.kind.String(), Info: "fake " + f.kind.String(), Kind: f.kind}
}

func (f *fakeComponent) View(status component.Status) []component.Field {
	return component.DefaultView(status)
}

func (f *fakeComponent) Status(context.Context) (component.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.statusErr
}

func (f *fakeComponent) operate(operation string) error {
	f.log.add(operation + " " + f.kind.String())
	return f.err[operation]
}

func (f *fakeComponent) Install(ctx context.Context) error {
	f.mu.Lock()
	f.forced = component.Forced(ctx)
	f.mu.Unlock()
	if f.block != nil {
		f.block()
	}
	err := f.operate(component.OperationInstall)
	if err == nil {
		f.mu.Lock()
		f.status = component.NewStatus(component.Installed, component.Running)
		f.mu.Unlock()
	}
	return err
}

func (f *fakeComponent) Uninstall(context.Context) error {
	return f.operate(component.OperationUninstall)
}

func (f *fakeComponent) Start(context.Context) error {
	return f.operate(component.OperationStart)
}

func (f *fakeComponent) Stop(context.Context) error {
	return f.operate(component.OperationStop)
}

func (f *fakeComponent) wasForced() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forced
}

// fullSet returns one fake per kind, all in the given install state,
// in dependency order.
func fullSet(log *callLog, install component.InstallState) (map[component.Kind]*fakeComponent, []component.Installable) {
	fakes := make(map[component.Kind]*fakeComponent)
	var components []component.Installable
	for _, kind := range component.Kinds {
		fake := newFake(log, kind, install)
		fakes[kind] = fake
		components = append(components, fake)
	}
	return fakes, components
}
