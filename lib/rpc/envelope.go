// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"fmt"
	"math"

	"github.com/bureau-foundation/warden/lib/msgpack"
)

// MessageType is the first element of an envelope.
type MessageType int

const (
	TypeRequest      MessageType = 0
	TypeResponse     MessageType = 1
	TypeNotification MessageType = 2
)

func (t MessageType) String() string {
	switch t {
	case TypeRequest:
		return "request"
	case TypeResponse:
		return "response"
	case TypeNotification:
		return "notification"
	default:
		return fmt.Sprintf("MessageType(%d)", int(t))
	}
}

// Envelope is one decoded message. Method and Params are set for
// requests and notifications; Error and Result for responses.
type Envelope struct {
	Type   MessageType
	SeqID  uint32
	Method string
	Params any
	Error  any
	Result any
}

// Encode returns the wire form of the envelope.
func (e Envelope) Encode() ([]byte, error) {
	var slots []any
	switch e.Type {
	case TypeRequest:
		slots = []any{int64(TypeRequest), int64(e.SeqID), e.Method, paramsOrEmpty(e.Params)}
	case TypeResponse:
		slots = []any{int64(TypeResponse), int64(e.SeqID), e.Error, e.Result}
	case TypeNotification:
		slots = []any{int64(TypeNotification), int64(0), e.Method, paramsOrEmpty(e.Params)}
	default:
		return nil, fmt.Errorf("encoding envelope: unknown message type %d", int(e.Type))
	}
	return msgpack.Marshal(slots)
}

// paramsOrEmpty sends an empty array for a call with no parameters,
// which is what msgpack-rpc peers expect.
func paramsOrEmpty(params any) any {
	if params == nil {
		return []any{}
	}
	return params
}

// ParseEnvelope validates a decoded value as an envelope. Notifications
// are accepted both as [2, seqid, method, params] and as the three-slot
// [2, method, params] form some peers send.
func ParseEnvelope(value any) (Envelope, error) {
	slots, ok := value.([]any)
	if !ok {
		return Envelope{}, fmt.Errorf("envelope is %T, want array", value)
	}
	if len(slots) == 0 {
		return Envelope{}, fmt.Errorf("empty envelope")
	}
	kind, ok := slots[0].(int64)
	if !ok {
		return Envelope{}, fmt.Errorf("envelope type is %T, want integer", slots[0])
	}

	envelope := Envelope{Type: MessageType(kind)}
	switch envelope.Type {
	case TypeRequest, TypeResponse:
		if len(slots) != 4 {
			return Envelope{}, fmt.Errorf("%s envelope has %d elements, want 4", envelope.Type, len(slots))
		}
		seqid, err := parseSeqID(slots[1])
		if err != nil {
			return Envelope{}, err
		}
		envelope.SeqID = seqid
		if envelope.Type == TypeResponse {
			envelope.Error = slots[2]
			envelope.Result = slots[3]
			return envelope, nil
		}
		method, ok := slots[2].(string)
		if !ok {
			return Envelope{}, fmt.Errorf("request method is %T, want string", slots[2])
		}
		envelope.Method = method
		envelope.Params = slots[3]
		return envelope, nil

	case TypeNotification:
		var method any
		switch len(slots) {
		case 3:
			method, envelope.Params = slots[1], slots[2]
		case 4:
			method, envelope.Params = slots[2], slots[3]
		default:
			return Envelope{}, fmt.Errorf("notification envelope has %d elements, want 3 or 4", len(slots))
		}
		name, ok := method.(string)
		if !ok {
			return Envelope{}, fmt.Errorf("notification method is %T, want string", method)
		}
		envelope.Method = name
		return envelope, nil
	}
	return Envelope{}, fmt.Errorf("unknown envelope type %d", kind)
}

func parseSeqID(value any) (uint32, error) {
	number, ok := value.(int64)
	if !ok || number < 0 || number > math.MaxUint32 {
		return 0, fmt.Errorf("invalid sequence id %v", value)
	}
	return uint32(number), nil
}
