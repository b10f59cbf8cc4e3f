package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindNetwork: the transport failed before any response arrived.
	KindNetwork
	// KindServer: the classifier answered with a non-2xx status.
	KindServer
	// KindValidation: a 2xx answer whose body did not match the wire contract.
	KindValidation
	// KindDevice: microphone permission denied or the device could not be opened.
	KindDevice
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "NetworkError"
	case KindServer:
		return "ServerError"
	case KindValidation:
		return "ValidationError"
	case KindDevice:
		return "DeviceError"
	default:
		return "UnknownError"
	}
}

// Error is the unified error surfaced to the view collaborator.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an *Error.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
