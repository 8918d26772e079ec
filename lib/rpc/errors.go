// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/warden/lib/msgpack"
)

// ErrorKind classifies transport failures.
type ErrorKind int

const (
	// ConnectFailed means dialing the endpoint failed.
	ConnectFailed ErrorKind = iota + 1
	// NotConnected means there is no connection to send on: the
	// transport is disconnected without auto-connect, or too many
	// calls are already waiting for a reconnect.
	NotConnected
	// Timeout means no response arrived within the call's deadline.
	Timeout
	// Cancelled means the transport was closed or the caller's
	// context ended before the call resolved.
	Cancelled
	// ConnectionLost means the connection dropped while the call was
	// in flight.
	ConnectionLost
)

func (k ErrorKind) String() string {
	switch k {
	case ConnectFailed:
		return "connect failed"
	case NotConnected:
		return "not connected"
	case Timeout:
		return "timeout"
	case Cancelled:
		return "cancelled"
	case ConnectionLost:
		return "connection lost"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// TransportError is a failure of the connection rather than of the
// remote method.
type TransportError struct {
	Kind ErrorKind
	// Op names what was being done: "connect", "call", "notify".
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("rpc %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("rpc %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is matches another *TransportError with the same Kind and no Op, so
// that errors.Is(err, rpc.ErrTimeout) works on any timeout.
func (e *TransportError) Is(target error) bool {
	other, ok := target.(*TransportError)
	if !ok {
		return false
	}
	return other.Op == "" && other.Kind == e.Kind
}

// Sentinels for errors.Is. They match any *TransportError of the same
// kind.
var (
	ErrConnectFailed  = &TransportError{Kind: ConnectFailed}
	ErrNotConnected   = &TransportError{Kind: NotConnected}
	ErrTimeout        = &TransportError{Kind: Timeout}
	ErrCancelled      = &TransportError{Kind: Cancelled}
	ErrConnectionLost = &TransportError{Kind: ConnectionLost}
)

var errTransportClosed = errors.New("transport closed")

// Error codes carried in error responses. Handlers may return an
// *Error with any code; plain Go errors are reported as CodeGeneric.
const (
	CodeGeneric        = 1
	CodeMethodNotFound = 2
	CodeInvalidParams  = 3
)

// Error is the outcome of a failed call. Either the remote end
// reported the failure (Cause is nil, Code/Name/Description come from
// the response) or the call never completed (Cause is the
// *TransportError or encoding error, and errors.Is/As reach it).
type Error struct {
	Method      string
	Code        int
	Name        string
	Description string
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("calling %s: %v", e.Method, e.Cause)
	}
	if e.Name != "" {
		return fmt.Sprintf("calling %s: %s (%s, code %d)", e.Method, e.Description, e.Name, e.Code)
	}
	return fmt.Sprintf("calling %s: %s (code %d)", e.Method, e.Description, e.Code)
}

func (e *Error) Unwrap() error { return e.Cause }

// Remote reports whether the error came from the remote end.
func (e *Error) Remote() bool { return e.Cause == nil }

// NewError builds an error for a handler to return when it wants a
// specific code and name on the wire.
func NewError(code int, name, description string) *Error {
	return &Error{Code: code, Name: name, Description: description}
}

// wireError renders a handler error for the error slot of a response.
func wireError(err error) *msgpack.Map {
	var rpcErr *Error
	if errors.As(err, &rpcErr) && rpcErr.Cause == nil {
		return msgpack.NewMap("code", int64(rpcErr.Code), "name", rpcErr.Name, "desc", rpcErr.Description)
	}
	return msgpack.NewMap("code", int64(CodeGeneric), "name", "ERROR", "desc", err.Error())
}

// remoteError converts a non-nil error slot into an *Error. Peers that
// send a bare string are accepted as well as the map form.
func remoteError(method string, slot any) *Error {
	result := &Error{Method: method, Code: CodeGeneric}
	switch value := slot.(type) {
	case string:
		result.Description = value
	case *msgpack.Map:
		if code, ok := value.Get("code"); ok {
			if number, ok := code.(int64); ok {
				result.Code = int(number)
			}
		}
		result.Name, _ = value.String("name")
		result.Description, _ = value.String("desc")
	default:
		result.Description = fmt.Sprintf("%v", slot)
	}
	return result
}
