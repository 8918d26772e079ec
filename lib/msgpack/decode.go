// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package msgpack

import (
	"encoding/binary"
	"math"
	"unicode/utf8"
)

// MaxDeclaredLength bounds the length a str, bin, array, or map header
// may declare. Anything larger is treated as corruption rather than
// buffered: a stream reader would otherwise wait forever (or allocate
// without bound) for bytes that are never coming.
const MaxDeclaredLength = 64 << 20

// Decode decodes the first value in data. It returns the value and the
// number of bytes it occupied. When data ends partway through the
// value, Decode returns [ErrInsufficientData]; any other error is a
// *[CodecError].
func Decode(data []byte) (any, int, error) {
	state := decodeState{data: data}
	value, err := state.value(0)
	if err != nil {
		return nil, 0, err
	}
	return value, state.offset, nil
}

type decodeState struct {
	data   []byte
	offset int
}

// take returns the next n bytes and advances past them.
func (d *decodeState) take(n int) ([]byte, error) {
	if len(d.data)-d.offset < n {
		return nil, ErrInsufficientData
	}
	chunk := d.data[d.offset : d.offset+n]
	d.offset += n
	return chunk, nil
}

// length reads a big-endian length field of the given width and
// validates it against MaxDeclaredLength. tagOffset is reported on
// failure so the error points at the header, not the length bytes.
func (d *decodeState) length(width int, tagOffset int) (int, error) {
	raw, err := d.take(width)
	if err != nil {
		return 0, err
	}
	var declared uint64
	switch width {
	case 1:
		declared = uint64(raw[0])
	case 2:
		declared = uint64(binary.BigEndian.Uint16(raw))
	case 4:
		declared = uint64(binary.BigEndian.Uint32(raw))
	}
	if declared > uint64(math.MaxInt) {
		return 0, codecErrorf(tagOffset, "declared length %d overflows int", declared)
	}
	if declared > MaxDeclaredLength {
		return 0, codecErrorf(tagOffset, "declared length %d exceeds limit %d", declared, MaxDeclaredLength)
	}
	return int(declared), nil
}

func (d *decodeState) value(depth int) (any, error) {
	tagOffset := d.offset
	if depth > MaxDepth {
		return nil, codecErrorf(tagOffset, "nesting exceeds maximum depth %d", MaxDepth)
	}
	header, err := d.take(1)
	if err != nil {
		return nil, err
	}
	tag := header[0]

	switch {
	case tag <= 0x7f:
		return int64(tag), nil
	case tag >= 0xe0:
		return int64(int8(tag)), nil
	case tag&0xf0 == 0x80:
		return d.mapBody(int(tag&0x0f), depth)
	case tag&0xf0 == 0x90:
		return d.arrayBody(int(tag&0x0f), depth)
	case tag&0xe0 == 0xa0:
		return d.stringBody(int(tag&0x1f), tagOffset)
	}

	switch tag {
	case 0xc0:
		return nil, nil
	case 0xc2:
		return false, nil
	case 0xc3:
		return true, nil

	case 0xc4, 0xc5, 0xc6:
		length, err := d.length(1<<(tag-0xc4), tagOffset)
		if err != nil {
			return nil, err
		}
		raw, err := d.take(length)
		if err != nil {
			return nil, err
		}
		result := make([]byte, length)
		copy(result, raw)
		return result, nil

	case 0xca:
		raw, err := d.take(4)
		if err != nil {
			return nil, err
		}
		return math.Float32frombits(binary.BigEndian.Uint32(raw)), nil
	case 0xcb:
		raw, err := d.take(8)
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.BigEndian.Uint64(raw)), nil

	case 0xcc:
		raw, err := d.take(1)
		if err != nil {
			return nil, err
		}
		return int64(raw[0]), nil
	case 0xcd:
		raw, err := d.take(2)
		if err != nil {
			return nil, err
		}
		return int64(binary.BigEndian.Uint16(raw)), nil
	case 0xce:
		raw, err := d.take(4)
		if err != nil {
			return nil, err
		}
		return int64(binary.BigEndian.Uint32(raw)), nil
	case 0xcf:
		raw, err := d.take(8)
		if err != nil {
			return nil, err
		}
		unsigned := binary.BigEndian.Uint64(raw)
		if unsigned > math.MaxInt64 {
			return unsigned, nil
		}
		return int64(unsigned), nil

	case 0xd0:
		raw, err := d.take(1)
		if err != nil {
			return nil, err
		}
		return int64(int8(raw[0])), nil
	case 0xd1:
		raw, err := d.take(2)
		if err != nil {
			return nil, err
		}
		return int64(int16(binary.BigEndian.Uint16(raw))), nil
	case 0xd2:
		raw, err := d.take(4)
		if err != nil {
			return nil, err
		}
		return int64(int32(binary.BigEndian.Uint32(raw))), nil
	case 0xd3:
		raw, err := d.take(8)
		if err != nil {
			return nil, err
		}
		return int64(binary.BigEndian.Uint64(raw)), nil

	case 0xd9, 0xda, 0xdb:
		length, err := d.length(1<<(tag-0xd9), tagOffset)
		if err != nil {
			return nil, err
		}
		return d.stringBody(length, tagOffset)

	case 0xdc, 0xdd:
		length, err := d.length(2<<(tag-0xdc), tagOffset)
		if err != nil {
			return nil, err
		}
		return d.arrayBody(length, depth)

	case 0xde, 0xdf:
		length, err := d.length(2<<(tag-0xde), tagOffset)
		if err != nil {
			return nil, err
		}
		return d.mapBody(length, depth)

	case 0xc7, 0xc8, 0xc9, 0xd4, 0xd5, 0xd6, 0xd7, 0xd8:
		return nil, codecErrorf(tagOffset, "extension type 0x%02x is not supported", tag)
	}

	return nil, codecErrorf(tagOffset, "invalid type tag 0x%02x", tag)
}

func (d *decodeState) stringBody(length int, tagOffset int) (any, error) {
	raw, err := d.take(length)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(raw) {
		return nil, codecErrorf(tagOffset, "str is not valid UTF-8")
	}
	return string(raw), nil
}

func (d *decodeState) arrayBody(count int, depth int) (any, error) {
	// Every element occupies at least one byte, so the remaining
	// buffer bounds a sensible preallocation.
	result := make([]any, 0, min(count, len(d.data)-d.offset))
	for range count {
		item, err := d.value(depth + 1)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, nil
}

func (d *decodeState) mapBody(count int, depth int) (any, error) {
	result := &Map{entries: make([]Entry, 0, min(count, (len(d.data)-d.offset)/2))}
	for range count {
		key, err := d.value(depth + 1)
		if err != nil {
			return nil, err
		}
		value, err := d.value(depth + 1)
		if err != nil {
			return nil, err
		}
		result.add(key, value)
	}
	return result, nil
}
