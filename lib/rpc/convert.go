// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"fmt"

	vmsgpack "github.com/vmihailenco/msgpack/v5"

	"github.com/bureau-foundation/warden/lib/msgpack"
)

// Convert copies a decoded value into out, a pointer to a Go value
// with msgpack struct tags. It re-encodes value and decodes it with
// the struct-aware codec, so the usual tag rules apply.
func Convert(value any, out any) error {
	encoded, err := msgpack.Marshal(value)
	if err != nil {
		return err
	}
	if err := vmsgpack.Unmarshal(encoded, out); err != nil {
		return fmt.Errorf("converting %T: %w", value, err)
	}
	return nil
}

// Params turns a tagged Go struct (or any value the struct-aware codec
// accepts) into the value model used on the wire.
func Params(value any) (any, error) {
	encoded, err := vmsgpack.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", value, err)
	}
	decoded, _, err := msgpack.Decode(encoded)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

// Caller is implemented by Transport and Peer.
type Caller interface {
	Call(ctx context.Context, method string, params any, options ...CallOption) (any, error)
}

// CallInto calls method with params converted by Params (wrapped in a
// one-element array, as msgpack-rpc methods take positional arguments)
// and decodes the result into result. A nil params sends an empty
// argument list; a nil result discards the response body.
func CallInto(ctx context.Context, caller Caller, method string, params any, result any, options ...CallOption) error {
	arguments := []any{}
	if params != nil {
		converted, err := Params(params)
		if err != nil {
			return &Error{Method: method, Cause: err}
		}
		arguments = []any{converted}
	}
	response, err := caller.Call(ctx, method, arguments, options...)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := Convert(response, result); err != nil {
		return &Error{Method: method, Cause: err}
	}
	return nil
}

// Argument decodes the first positional argument of an inbound
// request's params into out. Handlers use it as the counterpart of
// CallInto.
func Argument(params any, out any) error {
	arguments, ok := params.([]any)
	if !ok {
		return NewError(CodeInvalidParams, "INVALID_PARAMS", fmt.Sprintf("params is %T, want array", params))
	}
	if len(arguments) == 0 {
		return NewError(CodeInvalidParams, "INVALID_PARAMS", "missing argument")
	}
	if err := Convert(arguments[0], out); err != nil {
		return NewError(CodeInvalidParams, "INVALID_PARAMS", err.Error())
	}
	return nil
}
