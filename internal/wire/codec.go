package wire

import (
	"encoding/binary"
	"unicode/utf8"

	"wsiorpc/internal/wsierr"
)

// Encode serializes frame into a single WebSocket binary message. The
// documented field order (§4.1, §9) is used — not the discrepant
// event-then-id order mentioned in the spec's own design notes:
//
//	Notify:   opcode | event_len(1) | event | payload
//	Request:  opcode | id(4)        | event_len(1) | event | payload
//	Reset:    opcode | id(4)
//	Response: opcode | id(4)        | payload
func Encode(f Frame) ([]byte, error) {
	if (f.Op == OpNotify || f.Op == OpRequest) && len(f.Event) > MaxEventNameLen {
		return nil, wsierr.ErrEventNameTooLong
	}

	switch f.Op {
	case OpNotify:
		buf := make([]byte, 0, 2+len(f.Event)+len(f.Payload))
		buf = append(buf, byte(OpNotify), byte(len(f.Event)))
		buf = append(buf, f.Event...)
		buf = append(buf, f.Payload...)
		return buf, nil

	case OpRequest:
		buf := make([]byte, 0, 6+len(f.Event)+len(f.Payload))
		buf = append(buf, byte(OpRequest))
		buf = appendUint32(buf, f.ID)
		buf = append(buf, byte(len(f.Event)))
		buf = append(buf, f.Event...)
		buf = append(buf, f.Payload...)
		return buf, nil

	case OpReset:
		buf := make([]byte, 0, 5)
		buf = append(buf, byte(OpReset))
		buf = appendUint32(buf, f.ID)
		return buf, nil

	case OpResponse:
		buf := make([]byte, 0, 5+len(f.Payload))
		buf = append(buf, byte(OpResponse))
		buf = appendUint32(buf, f.ID)
		buf = append(buf, f.Payload...)
		return buf, nil

	default:
		return nil, wsierr.ErrUnknownFrame
	}
}

// Decode parses a single WebSocket binary message into a Frame. Decode is
// the exact inverse of Encode for well-formed input (§8 invariant 4).
func Decode(b []byte) (Frame, error) {
	if len(b) < 1 {
		return Frame{}, wsierr.ErrTruncated
	}
	op := Opcode(b[0])
	rest := b[1:]

	switch op {
	case OpNotify:
		event, payload, err := decodeEventAndPayload(rest)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Op: OpNotify, Event: event, Payload: payload}, nil

	case OpRequest:
		if len(rest) < 4 {
			return Frame{}, wsierr.ErrTruncated
		}
		id := binary.BigEndian.Uint32(rest[:4])
		event, payload, err := decodeEventAndPayload(rest[4:])
		if err != nil {
			return Frame{}, err
		}
		return Frame{Op: OpRequest, ID: id, Event: event, Payload: payload}, nil

	case OpReset:
		if len(rest) != 4 {
			return Frame{}, wsierr.ErrTruncated
		}
		return Frame{Op: OpReset, ID: binary.BigEndian.Uint32(rest)}, nil

	case OpResponse:
		if len(rest) < 4 {
			return Frame{}, wsierr.ErrTruncated
		}
		id := binary.BigEndian.Uint32(rest[:4])
		payload := rest[4:]
		return Frame{Op: OpResponse, ID: id, Payload: payload}, nil

	default:
		return Frame{}, wsierr.ErrUnknownFrame
	}
}

// decodeEventAndPayload reads the length-prefixed event name followed by
// the remaining payload bytes, shared by Notify and (the tail of) Request.
func decodeEventAndPayload(b []byte) (event string, payload []byte, err error) {
	if len(b) < 1 {
		return "", nil, wsierr.ErrTruncated
	}
	l := int(b[0])
	if len(b) < 1+l {
		return "", nil, wsierr.ErrTruncated
	}
	name := b[1 : 1+l]
	if !utf8.Valid(name) {
		return "", nil, wsierr.ErrBadEventName
	}
	return string(name), b[1+l:], nil
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}
