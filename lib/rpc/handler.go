// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"errors"
	"sync"
)

// Handler serves one inbound method. params is the decoded params slot
// of the envelope (usually a []any). For requests the returned value
// becomes the result and a non-nil error becomes the error slot; for
// notifications both are discarded.
//
// ctx is cancelled when the connection closes.
type Handler func(ctx context.Context, params any) (any, error)

// methodTable maps method names to handlers. Lookups happen at
// dispatch time, so registration changes apply to the next inbound
// message on every connection sharing the table.
type methodTable struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func newMethodTable() *methodTable {
	return &methodTable{handlers: make(map[string]Handler)}
}

func (m *methodTable) set(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[name] = handler
}

func (m *methodTable) remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, name)
}

func (m *methodTable) lookup(name string) (Handler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	handler, ok := m.handlers[name]
	return handler, ok
}

func asTransportError(err error) (*TransportError, bool) {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr, true
	}
	return nil, false
}
