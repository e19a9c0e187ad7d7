// Package wire implements the wsiorpc binary frame codec (§4.1). It is a
// pure, allocation-minimal transform over byte slices with no I/O of its
// own — the Codec the spec describes as "pure function over byte slices."
package wire

// Opcode identifies the frame variant. It is always the first byte on the
// wire.
type Opcode byte

const (
	OpNotify   Opcode = 1
	OpRequest  Opcode = 2
	OpReset    Opcode = 3
	OpResponse Opcode = 4
)

func (o Opcode) String() string {
	switch o {
	case OpNotify:
		return "Notify"
	case OpRequest:
		return "Request"
	case OpReset:
		return "Reset"
	case OpResponse:
		return "Response"
	default:
		return "Unknown"
	}
}

// MaxEventNameLen is the wire-level limit on event name length (§3): the
// length prefix is a single byte.
const MaxEventNameLen = 255

// Frame is the in-memory representation of one of the four wire variants
// (§3). Not every field is meaningful for every Opcode:
//
//   - Notify:   Event, Payload
//   - Request:  ID, Event, Payload
//   - Reset:    ID
//   - Response: ID, Payload
type Frame struct {
	Op      Opcode
	ID      uint32
	Event   string
	Payload []byte
}

// Notify builds a Notify frame.
func Notify(event string, payload []byte) Frame {
	return Frame{Op: OpNotify, Event: event, Payload: payload}
}

// Request builds a Request frame.
func Request(id uint32, event string, payload []byte) Frame {
	return Frame{Op: OpRequest, ID: id, Event: event, Payload: payload}
}

// Reset builds a Reset frame.
func Reset(id uint32) Frame {
	return Frame{Op: OpReset, ID: id}
}

// Response builds a Response frame.
func Response(id uint32, payload []byte) Frame {
	return Frame{Op: OpResponse, ID: id, Payload: payload}
}
