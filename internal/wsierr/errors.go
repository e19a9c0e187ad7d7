// Package wsierr defines the sentinel error taxonomy for wsiorpc and a
// DomainError wrapper carrying operation context, generalized from the
// teacher's domain-error package to the protocol's error model (§7).
package wsierr

import (
	"errors"
	"fmt"
)

// Sentinel errors. An error reporting one of these protocol conditions
// either is the sentinel or wraps it (errors.Is must find it). Context
// errors, io.EOF at the end of an event stream, and transport errors are
// returned as they are or wrapped with fmt.Errorf.
var (
	// Encode errors (§7: synchronous at the call site).
	ErrEventNameTooLong = fmt.Errorf("wsiorpc: event name exceeds 255 bytes")

	// Decode errors (§7: fatal for the connection).
	ErrUnknownFrame = fmt.Errorf("wsiorpc: unknown frame opcode")
	ErrTruncated    = fmt.Errorf("wsiorpc: frame shorter than its minimum length")
	ErrBadEventName = fmt.Errorf("wsiorpc: event name is not valid UTF-8")

	// Lifecycle errors.
	ErrNotConnected     = fmt.Errorf("wsiorpc: not connected")
	ErrConnectionClosed = fmt.Errorf("wsiorpc: connection closed")

	// Cancellation.
	ErrAborted = fmt.Errorf("wsiorpc: call aborted")

	// User programming errors — explicit, never silent corruption.
	ErrAlreadySubscribed = fmt.Errorf("wsiorpc: event already has an active subscriber")
	ErrDoubleSend        = fmt.Errorf("wsiorpc: response already sent for this call id")
	ErrCallIDUnknown     = fmt.Errorf("wsiorpc: no pending call for this id")
	ErrNotACall          = fmt.Errorf("wsiorpc: procedure is a Notify, not a Call")

	// Transport-level protocol violations (§6: text message on the wire).
	ErrTextMessage = fmt.Errorf("wsiorpc: received text message, binary required")

	// Connection admission (§9 supplement: auth/authz hooks).
	ErrAuthFailed  = fmt.Errorf("wsiorpc: authentication failed")
	ErrForbidden   = fmt.Errorf("wsiorpc: not authorized for this event")
	ErrRateLimited = fmt.Errorf("wsiorpc: request rate limit exceeded")
)

// Aborted wraps ErrAborted with the user-supplied reason, preserved verbatim
// in the message; errors.Is finds both ErrAborted and reason.
func Aborted(reason error) error {
	if reason == nil {
		return ErrAborted
	}
	return fmt.Errorf("%w: %w", ErrAborted, reason)
}

// DomainError wraps a sentinel error with operation context, mirroring the
// teacher's domain.DomainError shape.
type DomainError struct {
	Op     string // operation name, e.g. "Client.Call"
	Err    error  // underlying sentinel
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// Wrap creates a DomainError. Returns nil if err is nil, for idiomatic use:
// return wsierr.Wrap("Client.Call", err, "")
func Wrap(op string, err error, detail string) error {
	if err == nil {
		return nil
	}
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// ErrorCode is a machine-parseable error category for monitoring.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeEventNameTooLong  ErrorCode = "EVENT_NAME_TOO_LONG"
	CodeUnknownFrame      ErrorCode = "UNKNOWN_FRAME"
	CodeTruncated         ErrorCode = "TRUNCATED"
	CodeBadEventName      ErrorCode = "BAD_EVENT_NAME"
	CodeNotConnected      ErrorCode = "NOT_CONNECTED"
	CodeConnectionClosed  ErrorCode = "CONNECTION_CLOSED"
	CodeAborted           ErrorCode = "ABORTED"
	CodeAlreadySubscribed ErrorCode = "ALREADY_SUBSCRIBED"
	CodeDoubleSend        ErrorCode = "DOUBLE_SEND"
	CodeCallIDUnknown     ErrorCode = "CALL_ID_UNKNOWN"
	CodeNotACall          ErrorCode = "NOT_A_CALL"
	CodeTextMessage       ErrorCode = "TEXT_MESSAGE"
	CodeAuthFailed        ErrorCode = "AUTH_FAILED"
	CodeForbidden         ErrorCode = "FORBIDDEN"
	CodeRateLimited       ErrorCode = "RATE_LIMITED"
)

var errorCodeMap = map[error]ErrorCode{
	ErrEventNameTooLong:  CodeEventNameTooLong,
	ErrUnknownFrame:      CodeUnknownFrame,
	ErrTruncated:         CodeTruncated,
	ErrBadEventName:      CodeBadEventName,
	ErrNotConnected:      CodeNotConnected,
	ErrConnectionClosed:  CodeConnectionClosed,
	ErrAborted:           CodeAborted,
	ErrAlreadySubscribed: CodeAlreadySubscribed,
	ErrDoubleSend:        CodeDoubleSend,
	ErrCallIDUnknown:     CodeCallIDUnknown,
	ErrNotACall:          CodeNotACall,
	ErrTextMessage:       CodeTextMessage,
	ErrAuthFailed:        CodeAuthFailed,
	ErrForbidden:         CodeForbidden,
	ErrRateLimited:       CodeRateLimited,
}

// ErrorCodeOf returns the machine-parseable code for err, unwrapping
// DomainError and walking the chain with errors.Is. Returns CodeUnknown if
// nothing matches.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if code, ok := errorCodeMap[err]; ok {
		return code
	}
	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}
