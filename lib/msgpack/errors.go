// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package msgpack

import (
	"errors"
	"fmt"
)

// ErrInsufficientData is returned by [Decode] when the buffer ends in
// the middle of a value. It is not a decoding failure: append more
// bytes and decode again from the same starting point.
var ErrInsufficientData = errors.New("msgpack: insufficient data")

// CodecError reports malformed or unencodable input. Offset is the
// byte position (relative to the start of the buffer handed to Decode,
// or the output position for encoding) at which the problem was found.
type CodecError struct {
	Offset int
	Reason string
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("msgpack: %s at offset %d", e.Reason, e.Offset)
}

func codecErrorf(offset int, format string, args ...any) *CodecError {
	return &CodecError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}
