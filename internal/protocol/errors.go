package protocol

import (
	"errors"
	"fmt"
)

// ErrInvalidMessage matches every *ValidationError.
var ErrInvalidMessage = errors.New("invalid message")

// ValidationError reports a malformed or out-of-range inbound message.
type ValidationError struct {
	Type   Type
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s message: %s", e.typeName(), e.Reason)
	}
	return fmt.Sprintf("invalid %s message: %s %s", e.typeName(), e.Field, e.Reason)
}

func (e *ValidationError) typeName() string {
	if e.Type == "" {
		return "client"
	}
	return string(e.Type)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidMessage }

// UnsupportedTypeError is returned for unknown types and for types only the
// server may send.
type UnsupportedTypeError struct {
	Type Type
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported message type %q", string(e.Type))
}
