package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedPayload indicates the message is not a JSON object.
	ErrMalformedPayload = errors.New("stream: malformed payload")
	// ErrMissingField indicates a required field is absent.
	ErrMissingField = errors.New("stream: missing required field")
	// ErrInvalidAction indicates the action is not start, finished or error.
	ErrInvalidAction = errors.New("stream: invalid action")
	// ErrInvalidField indicates a field has the wrong type or value.
	ErrInvalidField = errors.New("stream: invalid field")
	// ErrSessionClosed is returned once a session has been closed.
	ErrSessionClosed = errors.New("stream: session closed")
)

// DecodeError reports why an inbound message was discarded.
type DecodeError struct {
	Field string
	Err   error
	Cause error
}

func (e *DecodeError) Error() string {
	msg := e.Err.Error()
	if e.Field != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Field)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Reason returns a short label suitable for metrics.
func (e *DecodeError) Reason() string {
	switch {
	case errors.Is(e.Err, ErrMissingField):
		return "missing_field"
	case errors.Is(e.Err, ErrInvalidAction):
		return "invalid_action"
	case errors.Is(e.Err, ErrInvalidField):
		return "invalid_field"
	default:
		return "malformed"
	}
}

// ChannelError wraps a transport failure of the inbound source. The session
// keeps its state when one occurs.
type ChannelError struct {
	Err error
}

func (e *ChannelError) Error() string { return "stream: channel error: " + e.Err.Error() }

func (e *ChannelError) Unwrap() error { return e.Err }
