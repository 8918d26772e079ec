// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/warden/lib/clock"
	"github.com/bureau-foundation/warden/lib/msgpack"
)

// endpoint holds what a connection needs from the Transport or Server
// that owns it.
type endpoint struct {
	logger   *slog.Logger
	clock    clock.Clock
	metrics  *Metrics
	methods  *methodTable
	sequence *atomic.Uint32
}

// session is one live connection. It owns the read side (one reader
// goroutine holding the decode buffer), serializes writes, tracks
// outbound calls awaiting responses, and runs inbound handlers one at
// a time in arrival order on a dispatch goroutine.
//
// A session never reconnects. When the connection fails it fails every
// pending call and closes done; the owner decides what happens next.
type session struct {
	endpoint
	conn net.Conn

	// ctx is handed to inbound handlers and cancelled on shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu         sync.Mutex
	pending    map[uint32]*pendingCall
	inbox      []Envelope
	closed     bool
	closeError *TransportError

	inboxReady chan struct{}
	done       chan struct{}
}

type pendingCall struct {
	method  string
	started time.Time
	timer   *clock.Timer
	// result is buffered so whichever path resolves the call (response,
	// timeout, cancellation, shutdown) never blocks. Only the path that
	// removed the call from pending sends.
	result chan callResult
}

type callResult struct {
	value any
	err   error
}

func newSession(owner endpoint, conn net.Conn) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		endpoint:   owner,
		conn:       conn,
		ctx:        ctx,
		cancel:     cancel,
		pending:    make(map[uint32]*pendingCall),
		inboxReady: make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

func (s *session) start() {
	go s.readLoop()
	go s.dispatchLoop()
}

// Done is closed once the session has shut down and every pending call
// has been resolved.
func (s *session) Done() <-chan struct{} { return s.done }

// Err returns why the session shut down, or nil while it is live.
func (s *session) Err() *TransportError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeError
}

func (s *session) call(ctx context.Context, method string, params any, timeout time.Duration) (any, error) {
	s.mu.Lock()
	if s.closed {
		closeError := s.closeError
		s.mu.Unlock()
		return nil, &Error{Method: method, Cause: &TransportError{Kind: closeError.Kind, Op: "call", Err: closeError.Err}}
	}
	seqid := s.allocateLocked()
	call := &pendingCall{
		method:  method,
		started: s.clock.Now(),
		result:  make(chan callResult, 1),
	}
	s.pending[seqid] = call
	call.timer = s.clock.AfterFunc(timeout, func() { s.expire(seqid, call, timeout) })
	s.metrics.Pending.Inc()
	s.mu.Unlock()

	frame, err := Envelope{Type: TypeRequest, SeqID: seqid, Method: method, Params: params}.Encode()
	if err != nil {
		s.resolve(seqid, call, callResult{err: &Error{Method: method, Cause: fmt.Errorf("encoding params: %w", err)}})
		result := <-call.result
		return result.value, result.err
	}

	if err := s.write(frame); err != nil {
		s.shutdown(ConnectionLost, err)
	}

	select {
	case result := <-call.result:
		return result.value, result.err
	case <-ctx.Done():
		s.resolve(seqid, call, callResult{err: &Error{
			Method: method,
			Cause:  &TransportError{Kind: Cancelled, Op: "call", Err: ctx.Err()},
		}})
		result := <-call.result
		return result.value, result.err
	}
}

// allocateLocked returns the next sequence id not currently pending.
// Ids come from a counter shared by every connection of the owning
// endpoint, so they keep increasing across reconnects.
func (s *session) allocateLocked() uint32 {
	for {
		seqid := s.sequence.Add(1)
		if _, busy := s.pending[seqid]; !busy {
			return seqid
		}
	}
}

// resolve completes call with result if it is still pending under
// seqid. It reports whether it did; false means another path already
// resolved the call.
func (s *session) resolve(seqid uint32, call *pendingCall, result callResult) bool {
	s.mu.Lock()
	if s.pending[seqid] != call {
		s.mu.Unlock()
		return false
	}
	delete(s.pending, seqid)
	s.mu.Unlock()
	s.finish(call, result)
	return true
}

func (s *session) finish(call *pendingCall, result callResult) {
	if call.timer != nil {
		call.timer.Stop()
	}
	s.metrics.Pending.Dec()
	s.metrics.observeCall(result.err)
	call.result <- result
}

func (s *session) expire(seqid uint32, call *pendingCall, timeout time.Duration) {
	resolved := s.resolve(seqid, call, callResult{err: &Error{
		Method: call.method,
		Cause:  &TransportError{Kind: Timeout, Op: "call", Err: fmt.Errorf("no response within %v", timeout)},
	}})
	if resolved {
		s.logger.Debug("rpc call timed out", "method", call.method, "seqid", seqid, "timeout", timeout)
	}
}

// complete matches a response to its pending call.
func (s *session) complete(response Envelope) {
	s.mu.Lock()
	call, ok := s.pending[response.SeqID]
	if ok {
		delete(s.pending, response.SeqID)
	}
	s.mu.Unlock()

	if !ok {
		s.metrics.DroppedResponses.Inc()
		s.logger.Warn("dropping response with no pending call", "seqid", response.SeqID)
		return
	}

	var result callResult
	if response.Error != nil {
		result.err = remoteError(call.method, response.Error)
	} else {
		result.value = response.Result
	}
	s.logger.Debug("rpc call completed",
		"method", call.method,
		"seqid", response.SeqID,
		"duration", s.clock.Now().Sub(call.started),
	)
	s.finish(call, result)
}

func (s *session) notify(method string, params any) error {
	s.mu.Lock()
	if s.closed {
		closeError := s.closeError
		s.mu.Unlock()
		return &TransportError{Kind: closeError.Kind, Op: "notify", Err: closeError.Err}
	}
	s.mu.Unlock()

	frame, err := Envelope{Type: TypeNotification, Method: method, Params: params}.Encode()
	if err != nil {
		return fmt.Errorf("encoding %s notification: %w", method, err)
	}
	if err := s.write(frame); err != nil {
		s.shutdown(ConnectionLost, err)
		return &TransportError{Kind: ConnectionLost, Op: "notify", Err: err}
	}
	return nil
}

// write sends one whole envelope. Envelopes from concurrent callers
// never interleave.
func (s *session) write(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.conn.Write(frame)
	return err
}

// shutdown closes the connection and fails every pending call with an
// error of the given kind. Only the first call has any effect.
func (s *session) shutdown(kind ErrorKind, cause error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.closeError = &TransportError{Kind: kind, Op: "call", Err: cause}
	pending := s.pending
	s.pending = make(map[uint32]*pendingCall)
	s.inbox = nil
	s.mu.Unlock()

	s.cancel()
	s.conn.Close()
	for _, call := range pending {
		s.finish(call, callResult{err: &Error{
			Method: call.method,
			Cause:  &TransportError{Kind: kind, Op: "call", Err: cause},
		}})
	}
	close(s.done)
}

func (s *session) close() {
	s.shutdown(Cancelled, errTransportClosed)
}

func (s *session) readLoop() {
	decoder := msgpack.NewDecoder(s.conn)
	for {
		value, err := decoder.Decode()
		if err != nil {
			var codecErr *msgpack.CodecError
			if errors.As(err, &codecErr) {
				s.logger.Error("corrupt rpc frame, dropping connection", "error", err)
			}
			s.shutdown(ConnectionLost, err)
			return
		}
		envelope, err := ParseEnvelope(value)
		if err != nil {
			s.logger.Error("malformed rpc envelope, dropping connection", "error", err)
			s.shutdown(ConnectionLost, fmt.Errorf("malformed envelope: %w", err))
			return
		}
		if envelope.Type == TypeResponse {
			s.complete(envelope)
			continue
		}
		s.enqueue(envelope)
	}
}

func (s *session) enqueue(envelope Envelope) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.inbox = append(s.inbox, envelope)
	s.mu.Unlock()
	select {
	case s.inboxReady <- struct{}{}:
	default:
	}
}

func (s *session) dispatchLoop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.inboxReady:
		}
		for {
			envelope, ok := s.nextInbound()
			if !ok {
				break
			}
			s.dispatch(envelope)
		}
	}
}

func (s *session) nextInbound() (Envelope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.inbox) == 0 {
		return Envelope{}, false
	}
	envelope := s.inbox[0]
	s.inbox = s.inbox[1:]
	return envelope, true
}

func (s *session) dispatch(envelope Envelope) {
	handler, found := s.methods.lookup(envelope.Method)

	if envelope.Type == TypeNotification {
		if !found {
			s.metrics.Handled.WithLabelValues("method_not_found").Inc()
			s.logger.Debug("no handler for notification", "method", envelope.Method)
			return
		}
		if _, err := handler(s.ctx, envelope.Params); err != nil {
			s.metrics.Handled.WithLabelValues("error").Inc()
			s.logger.Warn("notification handler failed", "method", envelope.Method, "error", err)
			return
		}
		s.metrics.Handled.WithLabelValues("ok").Inc()
		return
	}

	response := Envelope{Type: TypeResponse, SeqID: envelope.SeqID}
	outcome := "ok"
	if !found {
		outcome = "method_not_found"
		response.Error = wireError(NewError(CodeMethodNotFound, "METHOD_NOT_FOUND", "method not found: "+envelope.Method))
	} else if result, err := handler(s.ctx, envelope.Params); err != nil {
		outcome = "error"
		response.Error = wireError(err)
	} else {
		response.Result = result
	}
	s.metrics.Handled.WithLabelValues(outcome).Inc()

	frame, err := response.Encode()
	if err != nil {
		s.logger.Error("handler result cannot be encoded", "method", envelope.Method, "error", err)
		response.Result = nil
		response.Error = wireError(fmt.Errorf("encoding result of %s: %w", envelope.Method, err))
		if frame, err = response.Encode(); err != nil {
			return
		}
	}
	if err := s.write(frame); err != nil {
		s.shutdown(ConnectionLost, err)
	}
}
