// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package msgpack

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"
)

func TestDecoderReassemblesValuesAcrossReads(t *testing.T) {
	values := []any{
		[]any{int64(0), int64(1), "status.check", []any{}},
		NewMap("version", "6.2.4", "running", true),
		"tail",
	}
	var stream []byte
	for _, value := range values {
		var err error
		stream, err = AppendValue(stream, value)
		if err != nil {
			t.Fatalf("AppendValue: %v", err)
		}
	}

	decoder := NewDecoder(iotest.OneByteReader(bytes.NewReader(stream)))
	for i, want := range values {
		got, err := decoder.Decode()
		if err != nil {
			t.Fatalf("Decode value %d: %v", i, err)
		}
		if !Equal(got, want) {
			t.Errorf("value %d = %#v, want %#v", i, got, want)
		}
	}
	if _, err := decoder.Decode(); !errors.Is(err, io.EOF) {
		t.Errorf("Decode at end of stream: got %v, want io.EOF", err)
	}
}

func TestDecoderReportsTruncatedStream(t *testing.T) {
	encoded, err := Marshal("truncated value")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	decoder := NewDecoder(bytes.NewReader(encoded[:len(encoded)-3]))
	if _, err := decoder.Decode(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("got %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestDecoderBufferLimit(t *testing.T) {
	encoded, err := Marshal(bytes.Repeat([]byte{1}, 1000))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	decoder := NewDecoder(iotest.OneByteReader(bytes.NewReader(encoded)))
	decoder.SetMaxBuffered(100)
	var codecErr *CodecError
	if _, err := decoder.Decode(); !errors.As(err, &codecErr) {
		t.Errorf("got %v, want *CodecError", err)
	}
}

func TestDecoderSurfacesCorruption(t *testing.T) {
	decoder := NewDecoder(bytes.NewReader([]byte{0x93, 0x01, 0xc1, 0x02}))
	var codecErr *CodecError
	if _, err := decoder.Decode(); !errors.As(err, &codecErr) {
		t.Fatalf("got %v, want *CodecError", err)
	}
	if codecErr.Offset != 2 {
		t.Errorf("offset = %d, want 2", codecErr.Offset)
	}
}
