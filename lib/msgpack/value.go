// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package msgpack

import (
	"bytes"
	"math"
)

// Entry is one key/value pair of a [Map].
type Entry struct {
	Key   any
	Value any
}

// Map is an insertion-ordered MessagePack map. Keys are usually
// strings but any encodable value is allowed, matching the wire format.
//
// The zero value is an empty map ready to use. A Map is not safe for
// concurrent mutation.
type Map struct {
	entries []Entry
}

// NewMap returns a map populated from alternating key/value arguments:
//
//	msgpack.NewMap("version", "1.2.0", "pid", 4242)
//
// Panics if given an odd number of arguments.
func NewMap(keysAndValues ...any) *Map {
	if len(keysAndValues)%2 != 0 {
		panic("msgpack: NewMap requires an even number of arguments")
	}
	result := &Map{}
	for i := 0; i < len(keysAndValues); i += 2 {
		result.Set(keysAndValues[i], keysAndValues[i+1])
	}
	return result
}

// Set stores value under key. An existing key keeps its position and
// has its value replaced; a new key is appended.
func (m *Map) Set(key, value any) {
	for i := range m.entries {
		if Equal(m.entries[i].Key, key) {
			m.entries[i].Value = value
			return
		}
	}
	m.entries = append(m.entries, Entry{Key: key, Value: value})
}

// Get returns the value stored under key.
func (m *Map) Get(key any) (any, bool) {
	if m == nil {
		return nil, false
	}
	for _, entry := range m.entries {
		if Equal(entry.Key, key) {
			return entry.Value, true
		}
	}
	return nil, false
}

// String returns the value under key if it is present and a string.
func (m *Map) String(key string) (string, bool) {
	value, ok := m.Get(key)
	if !ok {
		return "", false
	}
	text, ok := value.(string)
	return text, ok
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Entries returns a copy of the entries in insertion order.
func (m *Map) Entries() []Entry {
	if m == nil {
		return nil
	}
	result := make([]Entry, len(m.entries))
	copy(result, m.entries)
	return result
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []any {
	if m == nil {
		return nil
	}
	keys := make([]any, len(m.entries))
	for i, entry := range m.entries {
		keys[i] = entry.Key
	}
	return keys
}

// add appends without the duplicate check. The decoder uses it so a
// map is reproduced exactly as the peer wrote it.
func (m *Map) add(key, value any) {
	m.entries = append(m.entries, Entry{Key: key, Value: value})
}

// Equal reports whether a and b are the same value under the decoded
// value model. Integers compare by numeric value regardless of Go type,
// nil and empty slices are equal, and maps compare entry by entry in
// order. A map[string]any compares equal to a *Map holding the same
// pairs in sorted key order, which is how it is encoded.
func Equal(a, b any) bool {
	if ai, ok := asInteger(a); ok {
		bi, ok := asInteger(b)
		return ok && ai == bi
	}
	switch left := a.(type) {
	case nil:
		return b == nil
	case bool:
		right, ok := b.(bool)
		return ok && left == right
	case float32:
		right, ok := b.(float32)
		return ok && (left == right || (left != left && right != right))
	case float64:
		right, ok := b.(float64)
		return ok && (left == right || (math.IsNaN(left) && math.IsNaN(right)))
	case string:
		right, ok := b.(string)
		return ok && left == right
	case []byte:
		right, ok := b.([]byte)
		return ok && bytes.Equal(left, right)
	case []string:
		converted := make([]any, len(left))
		for i, item := range left {
			converted[i] = item
		}
		return Equal(converted, b)
	case []any:
		var right []any
		switch typed := b.(type) {
		case []any:
			right = typed
		case []string:
			right = make([]any, len(typed))
			for i, item := range typed {
				right[i] = item
			}
		default:
			return false
		}
		if len(left) != len(right) {
			return false
		}
		for i := range left {
			if !Equal(left[i], right[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		return Equal(sortedMap(left), b)
	case *Map:
		var right *Map
		switch typed := b.(type) {
		case *Map:
			right = typed
		case map[string]any:
			right = sortedMap(typed)
		default:
			return false
		}
		if left.Len() != right.Len() {
			return false
		}
		for i := 0; i < left.Len(); i++ {
			if !Equal(left.entries[i].Key, right.entries[i].Key) ||
				!Equal(left.entries[i].Value, right.entries[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// integer is a normalized integer: negative values live in signed,
// everything else in unsigned.
type integer struct {
	negative bool
	signed   int64
	unsigned uint64
}

func asInteger(v any) (integer, bool) {
	var signed int64
	switch value := v.(type) {
	case int:
		signed = int64(value)
	case int8:
		signed = int64(value)
	case int16:
		signed = int64(value)
	case int32:
		signed = int64(value)
	case int64:
		signed = value
	case uint:
		return integer{unsigned: uint64(value)}, true
	case uint8:
		return integer{unsigned: uint64(value)}, true
	case uint16:
		return integer{unsigned: uint64(value)}, true
	case uint32:
		return integer{unsigned: uint64(value)}, true
	case uint64:
		return integer{unsigned: value}, true
	default:
		return integer{}, false
	}
	if signed < 0 {
		return integer{negative: true, signed: signed}, true
	}
	return integer{unsigned: uint64(signed)}, true
}
