// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package msgpack

import (
	"encoding/binary"
	"math"
	"sort"
	"unicode/utf8"
)

// MaxDepth bounds nesting of arrays and maps in both directions. A
// peer that sends deeper structures is either broken or hostile.
const MaxDepth = 64

// Marshal encodes v. See the package documentation for the accepted
// types.
func Marshal(v any) ([]byte, error) {
	return AppendValue(nil, v)
}

// AppendValue appends the encoding of v to dst and returns the
// extended buffer.
func AppendValue(dst []byte, v any) ([]byte, error) {
	return appendValue(dst, v, 0)
}

func appendValue(dst []byte, v any, depth int) ([]byte, error) {
	if depth > MaxDepth {
		return nil, codecErrorf(len(dst), "nesting exceeds maximum depth %d", MaxDepth)
	}

	if number, ok := asInteger(v); ok {
		if number.negative {
			return appendNegative(dst, number.signed), nil
		}
		return appendUnsigned(dst, number.unsigned), nil
	}

	switch value := v.(type) {
	case nil:
		return append(dst, 0xc0), nil
	case bool:
		if value {
			return append(dst, 0xc3), nil
		}
		return append(dst, 0xc2), nil
	case float32:
		dst = append(dst, 0xca)
		return binary.BigEndian.AppendUint32(dst, math.Float32bits(value)), nil
	case float64:
		dst = append(dst, 0xcb)
		return binary.BigEndian.AppendUint64(dst, math.Float64bits(value)), nil
	case string:
		return appendString(dst, value)
	case []byte:
		return appendBinary(dst, value)
	case []string:
		dst, err := appendArrayHeader(dst, len(value))
		if err != nil {
			return nil, err
		}
		for _, item := range value {
			if dst, err = appendString(dst, item); err != nil {
				return nil, err
			}
		}
		return dst, nil
	case []any:
		dst, err := appendArrayHeader(dst, len(value))
		if err != nil {
			return nil, err
		}
		for _, item := range value {
			if dst, err = appendValue(dst, item, depth+1); err != nil {
				return nil, err
			}
		}
		return dst, nil
	case *Map:
		if value == nil {
			return append(dst, 0xc0), nil
		}
		return appendMap(dst, value.entries, depth)
	case map[string]any:
		if value == nil {
			return append(dst, 0xc0), nil
		}
		return appendMap(dst, sortedMap(value).entries, depth)
	default:
		return nil, codecErrorf(len(dst), "unsupported type %T", v)
	}
}

func appendUnsigned(dst []byte, value uint64) []byte {
	switch {
	case value <= 0x7f:
		return append(dst, byte(value))
	case value <= math.MaxUint8:
		return append(dst, 0xcc, byte(value))
	case value <= math.MaxUint16:
		return binary.BigEndian.AppendUint16(append(dst, 0xcd), uint16(value))
	case value <= math.MaxUint32:
		return binary.BigEndian.AppendUint32(append(dst, 0xce), uint32(value))
	default:
		return binary.BigEndian.AppendUint64(append(dst, 0xcf), value)
	}
}

func appendNegative(dst []byte, value int64) []byte {
	switch {
	case value >= -32:
		return append(dst, byte(int8(value)))
	case value >= math.MinInt8:
		return append(dst, 0xd0, byte(int8(value)))
	case value >= math.MinInt16:
		return binary.BigEndian.AppendUint16(append(dst, 0xd1), uint16(int16(value)))
	case value >= math.MinInt32:
		return binary.BigEndian.AppendUint32(append(dst, 0xd2), uint32(int32(value)))
	default:
		return binary.BigEndian.AppendUint64(append(dst, 0xd3), uint64(value))
	}
}

func appendString(dst []byte, value string) ([]byte, error) {
	if !utf8.ValidString(value) {
		return nil, codecErrorf(len(dst), "string is not valid UTF-8; send it as bin")
	}
	length := len(value)
	switch {
	case length < 32:
		dst = append(dst, 0xa0|byte(length))
	case length <= math.MaxUint8:
		dst = append(dst, 0xd9, byte(length))
	case length <= math.MaxUint16:
		dst = binary.BigEndian.AppendUint16(append(dst, 0xda), uint16(length))
	case uint64(length) <= math.MaxUint32:
		dst = binary.BigEndian.AppendUint32(append(dst, 0xdb), uint32(length))
	default:
		return nil, codecErrorf(len(dst), "string length %d exceeds format limit", length)
	}
	return append(dst, value...), nil
}

func appendBinary(dst []byte, value []byte) ([]byte, error) {
	length := len(value)
	switch {
	case length <= math.MaxUint8:
		dst = append(dst, 0xc4, byte(length))
	case length <= math.MaxUint16:
		dst = binary.BigEndian.AppendUint16(append(dst, 0xc5), uint16(length))
	case uint64(length) <= math.MaxUint32:
		dst = binary.BigEndian.AppendUint32(append(dst, 0xc6), uint32(length))
	default:
		return nil, codecErrorf(len(dst), "binary length %d exceeds format limit", length)
	}
	return append(dst, value...), nil
}

func appendArrayHeader(dst []byte, count int) ([]byte, error) {
	switch {
	case count < 16:
		return append(dst, 0x90|byte(count)), nil
	case count <= math.MaxUint16:
		return binary.BigEndian.AppendUint16(append(dst, 0xdc), uint16(count)), nil
	case uint64(count) <= math.MaxUint32:
		return binary.BigEndian.AppendUint32(append(dst, 0xdd), uint32(count)), nil
	default:
		return nil, codecErrorf(len(dst), "array length %d exceeds format limit", count)
	}
}

func appendMap(dst []byte, entries []Entry, depth int) ([]byte, error) {
	count := len(entries)
	switch {
	case count < 16:
		dst = append(dst, 0x80|byte(count))
	case count <= math.MaxUint16:
		dst = binary.BigEndian.AppendUint16(append(dst, 0xde), uint16(count))
	case uint64(count) <= math.MaxUint32:
		dst = binary.BigEndian.AppendUint32(append(dst, 0xdf), uint32(count))
	default:
		return nil, codecErrorf(len(dst), "map length %d exceeds format limit", count)
	}
	var err error
	for _, entry := range entries {
		if dst, err = appendValue(dst, entry.Key, depth+1); err != nil {
			return nil, err
		}
		if dst, err = appendValue(dst, entry.Value, depth+1); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

// sortedMap converts an unordered Go map to a *Map with keys in
// lexical order.
func sortedMap(value map[string]any) *Map {
	keys := make([]string, 0, len(value))
	for key := range value {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	result := &Map{entries: make([]Entry, 0, len(keys))}
	for _, key := range keys {
		result.entries = append(result.entries, Entry{Key: key, Value: value[key]})
	}
	return result
}
