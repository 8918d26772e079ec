// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bureau-foundation/warden/lib/clock"
)

const (
	// DefaultCallTimeout bounds a call from issue to response,
	// including any time spent waiting for a reconnect.
	DefaultCallTimeout = 30 * time.Second

	// DefaultMaxQueuedCalls bounds how many calls may wait for a
	// connection at once. Further calls fail with NotConnected.
	DefaultMaxQueuedCalls = 64

	// Reconnect backoff starts at InitialBackoff and doubles after each
	// failed attempt up to MaxBackoff.
	InitialBackoff = 500 * time.Millisecond
	MaxBackoff     = 8 * time.Second
)

// State is the connection state of a Transport.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Dialer opens the underlying stream connection.
type Dialer interface {
	Dial(ctx context.Context) (net.Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (net.Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (net.Conn, error) { return f(ctx) }

// UnixDialer dials a Unix socket at path.
func UnixDialer(path string) Dialer {
	return DialerFunc(func(ctx context.Context) (net.Conn, error) {
		var dialer net.Dialer
		return dialer.DialContext(ctx, "unix", path)
	})
}

// TransportOptions configures a Transport. Zero values select the
// defaults.
type TransportOptions struct {
	Logger  *slog.Logger
	Clock   clock.Clock
	Metrics *Metrics

	// CallTimeout replaces DefaultCallTimeout for calls without a
	// WithTimeout option.
	CallTimeout time.Duration

	// MaxQueuedCalls replaces DefaultMaxQueuedCalls.
	MaxQueuedCalls int

	// AutoConnect makes a call issued while Disconnected connect first
	// instead of failing with NotConnected.
	AutoConnect bool

	// OnStateChange, when set, is called after every state transition.
	// It runs on whichever goroutine caused the transition and must
	// not block.
	OnStateChange func(State)
}

// CallOption adjusts a single call.
type CallOption func(*callSettings)

type callSettings struct {
	timeout time.Duration
}

// WithTimeout overrides the transport's call timeout for one call.
// Non-positive values are ignored.
func WithTimeout(timeout time.Duration) CallOption {
	return func(settings *callSettings) {
		if timeout > 0 {
			settings.timeout = timeout
		}
	}
}

// Transport is the client end of an RPC connection. It is safe for
// concurrent use. See the package documentation for the protocol.
type Transport struct {
	dialer  Dialer
	options TransportOptions
	logger  *slog.Logger
	clock   clock.Clock
	metrics *Metrics
	methods *methodTable

	sequence atomic.Uint32
	connects singleflight.Group

	// lifetime is cancelled by Close and bounds reconnect dials.
	lifetime       context.Context
	cancelLifetime context.CancelFunc

	mu           sync.Mutex
	state        State
	session      *session
	closed       bool
	queued       int
	stateChanged chan struct{}
}

// NewTransport creates a disconnected Transport. Call Connect, or set
// AutoConnect, before making calls.
func NewTransport(dialer Dialer, options TransportOptions) *Transport {
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Metrics == nil {
		options.Metrics = NewMetrics(nil)
	}
	if options.CallTimeout <= 0 {
		options.CallTimeout = DefaultCallTimeout
	}
	if options.MaxQueuedCalls <= 0 {
		options.MaxQueuedCalls = DefaultMaxQueuedCalls
	}
	lifetime, cancel := context.WithCancel(context.Background())
	return &Transport{
		dialer:         dialer,
		options:        options,
		logger:         options.Logger,
		clock:          options.Clock,
		metrics:        options.Metrics,
		methods:        newMethodTable(),
		lifetime:       lifetime,
		cancelLifetime: cancel,
		stateChanged:   make(chan struct{}),
	}
}

// State returns the current connection state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// RegisterMethod installs handler for inbound requests and
// notifications named name, replacing any previous handler.
func (t *Transport) RegisterMethod(name string, handler Handler) {
	t.methods.set(name, handler)
}

// UnregisterMethod removes the handler for name. Inbound requests for
// it are then answered with a method-not-found error.
func (t *Transport) UnregisterMethod(name string) {
	t.methods.remove(name)
}

// Connect dials the endpoint unless a connection already exists.
// Concurrent callers share a single dial. While the transport is
// reconnecting, Connect waits for that to finish instead of dialing.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	switch {
	case t.closed:
		t.mu.Unlock()
		return &TransportError{Kind: Cancelled, Op: "connect", Err: errTransportClosed}
	case t.state == Connected:
		t.mu.Unlock()
		return nil
	case t.state == Reconnecting:
		changed := t.stateChanged
		t.mu.Unlock()
		select {
		case <-changed:
			return t.Connect(ctx)
		case <-ctx.Done():
			return &TransportError{Kind: Cancelled, Op: "connect", Err: ctx.Err()}
		}
	}
	t.mu.Unlock()

	_, err, _ := t.connects.Do("connect", func() (any, error) {
		return nil, t.dial(ctx)
	})
	return err
}

// dial performs the initial connection attempt.
func (t *Transport) dial(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return &TransportError{Kind: Cancelled, Op: "connect", Err: errTransportClosed}
	}
	if t.state == Connected {
		t.mu.Unlock()
		return nil
	}
	notify := t.setStateLocked(Connecting)
	t.mu.Unlock()
	notify()

	conn, err := t.dialer.Dial(ctx)
	if err != nil {
		t.mu.Lock()
		notify := func() {}
		if !t.closed {
			notify = t.setStateLocked(Disconnected)
		}
		t.mu.Unlock()
		notify()
		t.logger.Warn("rpc connect failed", "error", err)
		return &TransportError{Kind: ConnectFailed, Op: "connect", Err: err}
	}
	if !t.attach(conn) {
		return &TransportError{Kind: Cancelled, Op: "connect", Err: errTransportClosed}
	}
	return nil
}

// attach makes conn the live connection. It reports false (and closes
// conn) if the transport was closed in the meantime.
func (t *Transport) attach(conn net.Conn) bool {
	current := newSession(endpoint{
		logger:   t.logger,
		clock:    t.clock,
		metrics:  t.metrics,
		methods:  t.methods,
		sequence: &t.sequence,
	}, conn)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return false
	}
	t.session = current
	notify := t.setStateLocked(Connected)
	t.mu.Unlock()

	current.start()
	go t.watch(current)
	notify()
	t.logger.Info("rpc connected", "remote", conn.RemoteAddr().String())
	return true
}

// watch waits for the session to end and starts reconnecting if the
// loss was not caused by Close.
func (t *Transport) watch(current *session) {
	<-current.Done()

	t.mu.Lock()
	if t.closed || t.session != current {
		t.mu.Unlock()
		return
	}
	t.session = nil
	notify := t.setStateLocked(Reconnecting)
	t.mu.Unlock()
	notify()

	t.logger.Warn("rpc connection lost, reconnecting", "error", current.Err())
	t.reconnect()
}

// reconnect dials with capped exponential backoff until it succeeds or
// the transport is closed.
func (t *Transport) reconnect() {
	delay := InitialBackoff
	for attempt := 1; ; attempt++ {
		select {
		case <-t.lifetime.Done():
			return
		case <-t.clock.After(delay):
		}

		t.metrics.Reconnects.Inc()
		conn, err := t.dialer.Dial(t.lifetime)
		if err == nil {
			t.attach(conn)
			return
		}
		if t.lifetime.Err() != nil {
			return
		}
		t.logger.Warn("rpc reconnect failed",
			"attempt", attempt,
			"retry_in", min(delay*2, MaxBackoff),
			"error", err,
		)
		delay = min(delay*2, MaxBackoff)
	}
}

// setStateLocked records a transition and wakes everything waiting on
// stateChanged. The returned function runs the OnStateChange hook and
// must be called after t.mu is released.
func (t *Transport) setStateLocked(state State) func() {
	if t.state == state {
		return func() {}
	}
	t.state = state
	close(t.stateChanged)
	t.stateChanged = make(chan struct{})
	hook := t.options.OnStateChange
	if hook == nil {
		return func() {}
	}
	return func() { hook(state) }
}

// Call sends a request and waits for its response. The result is the
// decoded result slot. Errors are always *Error: either a remote
// error (Remote reports true) or a wrapped *TransportError.
func (t *Transport) Call(ctx context.Context, method string, params any, options ...CallOption) (any, error) {
	settings := callSettings{timeout: t.options.CallTimeout}
	for _, option := range options {
		option(&settings)
	}
	deadline := t.clock.Now().Add(settings.timeout)

	current, err := t.acquire(ctx, "call", settings.timeout)
	if err != nil {
		t.metrics.observeCall(err)
		return nil, &Error{Method: method, Cause: err}
	}
	remaining := deadline.Sub(t.clock.Now())
	if remaining <= 0 {
		err := &TransportError{Kind: Timeout, Op: "call", Err: fmt.Errorf("no connection within %v", settings.timeout)}
		t.metrics.observeCall(err)
		return nil, &Error{Method: method, Cause: err}
	}
	return current.call(ctx, method, params, remaining)
}

// CallInto is [CallInto] on this transport.
func (t *Transport) CallInto(ctx context.Context, method string, params any, result any, options ...CallOption) error {
	return CallInto(ctx, t, method, params, result, options...)
}

// Notify sends a notification. It returns once the envelope is
// written; there is no response.
func (t *Transport) Notify(ctx context.Context, method string, params any) error {
	current, err := t.acquire(ctx, "notify", t.options.CallTimeout)
	if err != nil {
		return err
	}
	return current.notify(method, params)
}

// acquire returns the live session, waiting for a pending connect or
// reconnect when there is room in the queue.
func (t *Transport) acquire(ctx context.Context, op string, timeout time.Duration) (*session, error) {
	var expired <-chan time.Time
	for {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return nil, &TransportError{Kind: Cancelled, Op: op, Err: errTransportClosed}
		}
		switch t.state {
		case Connected:
			current := t.session
			t.mu.Unlock()
			return current, nil

		case Disconnected:
			t.mu.Unlock()
			if !t.options.AutoConnect {
				return nil, &TransportError{Kind: NotConnected, Op: op}
			}
			if err := t.Connect(ctx); err != nil {
				return nil, err
			}
			continue
		}

		// Connecting or Reconnecting.
		if t.queued >= t.options.MaxQueuedCalls {
			t.mu.Unlock()
			return nil, &TransportError{
				Kind: NotConnected,
				Op:   op,
				Err:  fmt.Errorf("%d calls already waiting for connection", t.options.MaxQueuedCalls),
			}
		}
		t.queued++
		changed := t.stateChanged
		t.mu.Unlock()

		if expired == nil {
			expired = t.clock.After(timeout)
		}
		var waitErr error
		select {
		case <-changed:
		case <-ctx.Done():
			waitErr = &TransportError{Kind: Cancelled, Op: op, Err: ctx.Err()}
		case <-expired:
			waitErr = &TransportError{Kind: Timeout, Op: op, Err: fmt.Errorf("no connection within %v", timeout)}
		}

		t.mu.Lock()
		t.queued--
		t.mu.Unlock()
		if waitErr != nil {
			return nil, waitErr
		}
	}
}

// Close drops the connection, fails every pending call with Cancelled,
// and stops reconnecting. The transport cannot be reused.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	current := t.session
	t.session = nil
	notify := t.setStateLocked(Disconnected)
	t.mu.Unlock()

	t.cancelLifetime()
	if current != nil {
		current.close()
	}
	notify()
	return nil
}
