// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/warden/lib/clock"
)

// ServerOptions configures a Server.
type ServerOptions struct {
	Clock   clock.Clock
	Metrics *Metrics

	// CallTimeout bounds server-initiated calls made through a Peer
	// without a WithTimeout option. Defaults to DefaultCallTimeout.
	CallTimeout time.Duration

	// Authorize, when set, runs on every accepted connection before
	// any envelope is read. A non-nil error closes the connection.
	Authorize func(conn net.Conn) error
}

// Server accepts connections and serves registered methods on each.
// Register methods with Handle before calling Serve.
type Server struct {
	logger  *slog.Logger
	options ServerOptions
	methods *methodTable

	mu        sync.Mutex
	onConnect func(*Peer)
	peers     map[*Peer]struct{}
	stopping  bool

	activePeers sync.WaitGroup
}

// NewServer creates a server. A nil logger discards output.
func NewServer(logger *slog.Logger, options ServerOptions) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
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
	return &Server{
		logger:  logger,
		options: options,
		methods: newMethodTable(),
		peers:   make(map[*Peer]struct{}),
	}
}

// Handle registers handler for method. Panics if method is already
// registered: a server's method set is fixed at startup.
func (s *Server) Handle(method string, handler Handler) {
	if _, exists := s.methods.lookup(method); exists {
		panic(fmt.Sprintf("rpc.Server: duplicate handler for method %q", method))
	}
	s.methods.set(method, handler)
}

// OnConnect sets a function called with each new Peer once it is
// ready to send and receive.
func (s *Server) OnConnect(callback func(*Peer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnect = callback
}

// Serve accepts connections on listener until ctx is cancelled, then
// closes the listener and every open connection and waits for them to
// finish.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("rpc server listening", "address", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		s.activePeers.Add(1)
		go func() {
			defer s.activePeers.Done()
			s.serveConn(conn)
		}()
	}

	s.mu.Lock()
	s.stopping = true
	for peer := range s.peers {
		peer.Close()
	}
	s.mu.Unlock()
	s.activePeers.Wait()
	return nil
}

func (s *Server) serveConn(conn net.Conn) {
	if s.options.Authorize != nil {
		if err := s.options.Authorize(conn); err != nil {
			s.logger.Warn("rejecting rpc connection", "remote", conn.RemoteAddr().String(), "error", err)
			conn.Close()
			return
		}
	}

	peer := &Peer{
		session: newSession(endpoint{
			logger:   s.logger,
			clock:    s.options.Clock,
			metrics:  s.options.Metrics,
			methods:  s.methods,
			sequence: new(atomic.Uint32),
		}, conn),
		callTimeout: s.options.CallTimeout,
	}

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.peers[peer] = struct{}{}
	onConnect := s.onConnect
	s.mu.Unlock()

	peer.session.ctx = context.WithValue(peer.session.ctx, peerKey{}, peer)

	peer.session.start()
	if onConnect != nil {
		onConnect(peer)
	}
	<-peer.Done()

	s.mu.Lock()
	delete(s.peers, peer)
	s.mu.Unlock()
	s.logger.Debug("rpc peer disconnected", "error", peer.session.Err())
}

// Peer is one accepted connection. Besides serving the server's
// methods it can issue calls and notifications to the client.
type Peer struct {
	session     *session
	callTimeout time.Duration
}

// Call sends a request to the client and waits for the response.
func (p *Peer) Call(ctx context.Context, method string, params any, options ...CallOption) (any, error) {
	settings := callSettings{timeout: p.callTimeout}
	for _, option := range options {
		option(&settings)
	}
	return p.session.call(ctx, method, params, settings.timeout)
}

// Notify sends a notification to the client.
func (p *Peer) Notify(ctx context.Context, method string, params any) error {
	return p.session.notify(method, params)
}

// Conn returns the underlying connection, for inspecting credentials.
func (p *Peer) Conn() net.Conn { return p.session.conn }

type peerKey struct{}

// PeerFromContext returns the connection a handler is serving. It
// reports false for contexts not created by a Server.
func PeerFromContext(ctx context.Context) (*Peer, bool) {
	peer, ok := ctx.Value(peerKey{}).(*Peer)
	return peer, ok
}

// Done is closed when the connection has ended.
func (p *Peer) Done() <-chan struct{} { return p.session.Done() }

// Close drops the connection. Pending calls fail with Cancelled.
func (p *Peer) Close() error {
	p.session.close()
	return nil
}

// ListenUnix listens on a Unix socket at path, replacing a stale socket
// file left by a previous process. mode is applied to the socket file.
func ListenUnix(path string, mode os.FileMode) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	if err := os.Chmod(path, mode); err != nil {
		listener.Close()
		return nil, fmt.Errorf("setting mode on %s: %w", path, err)
	}
	return listener, nil
}
