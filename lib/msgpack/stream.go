// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package msgpack

import (
	"errors"
	"io"
)

// readChunkSize is the size of each read from the underlying stream.
const readChunkSize = 32 * 1024

// DefaultMaxBuffered bounds how many bytes a Decoder holds while
// waiting for one value to complete.
const DefaultMaxBuffered = 16 << 20

// Decoder decodes a sequence of values from a byte stream. Values are
// written back to back with no framing; partial reads are buffered and
// replayed through [Decode] until a complete value is available.
type Decoder struct {
	reader      io.Reader
	buffer      []byte
	start       int
	end         int
	maxBuffered int
}

// NewDecoder returns a Decoder reading from reader.
func NewDecoder(reader io.Reader) *Decoder {
	return &Decoder{reader: reader, maxBuffered: DefaultMaxBuffered}
}

// SetMaxBuffered changes the buffering bound. A value that cannot be
// completed within the bound fails with a *CodecError.
func (d *Decoder) SetMaxBuffered(limit int) {
	d.maxBuffered = limit
}

// Buffered returns the number of bytes read from the stream but not yet
// consumed by a decoded value.
func (d *Decoder) Buffered() int {
	return d.end - d.start
}

// Decode returns the next value in the stream. It returns io.EOF when
// the stream ends cleanly between values and io.ErrUnexpectedEOF when it
// ends inside one. A *CodecError means the stream is corrupt; the
// Decoder cannot resynchronize after that.
func (d *Decoder) Decode() (any, error) {
	for {
		if d.end > d.start {
			value, consumed, err := Decode(d.buffer[d.start:d.end])
			if err == nil {
				d.start += consumed
				if d.start == d.end {
					d.start, d.end = 0, 0
				}
				return value, nil
			}
			if !errors.Is(err, ErrInsufficientData) {
				return nil, err
			}
			if d.end-d.start >= d.maxBuffered {
				return nil, codecErrorf(d.end-d.start, "value exceeds %d buffered bytes", d.maxBuffered)
			}
		}

		if err := d.fill(); err != nil {
			if errors.Is(err, io.EOF) && d.end > d.start {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
}

// fill reads at least one more byte into the buffer, compacting or
// growing it as needed.
func (d *Decoder) fill() error {
	if d.start > 0 {
		copy(d.buffer, d.buffer[d.start:d.end])
		d.end -= d.start
		d.start = 0
	}
	if len(d.buffer)-d.end < readChunkSize {
		grown := make([]byte, d.end, d.end+readChunkSize)
		copy(grown, d.buffer[:d.end])
		d.buffer = grown[:cap(grown)]
	}
	for {
		count, err := d.reader.Read(d.buffer[d.end:])
		d.end += count
		if count > 0 {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
