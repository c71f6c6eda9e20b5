// Package errors defines the sentinel error kinds shared across the
// service and the helpers used to wrap and classify them.
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard errors package functions.
var (
	As     = errors.As
	Is     = errors.Is
	New    = errors.New
	Unwrap = errors.Unwrap
)

// Error kinds from the protocol and component contracts.
var (
	ErrTimeout            = errors.New("timeout")
	ErrProtocol           = errors.New("protocol error")
	ErrIdentityUnresolved = errors.New("cannot resolve user profile")
	ErrAlreadyRegistered  = errors.New("already registered")
	ErrNotRegistered      = errors.New("not registered")
	ErrValidation         = errors.New("validation failed")
	ErrIO                 = errors.New("io failure")
	ErrCancelled          = errors.New("cancelled")
)

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// WrapWithCode wraps an error with a specific error kind.
func WrapWithCode(err error, code error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	wrappedErr := fmt.Errorf(format+": %w", append(args, err)...)
	return fmt.Errorf("%w: %w", code, wrappedErr)
}

// GetErrorCode extracts the known error kind from an error, or nil.
func GetErrorCode(err error) error {
	if err == nil {
		return nil
	}

	codes := []error{
		ErrTimeout,
		ErrProtocol,
		ErrIdentityUnresolved,
		ErrAlreadyRegistered,
		ErrNotRegistered,
		ErrValidation,
		ErrIO,
		ErrCancelled,
	}

	for _, code := range codes {
		if errors.Is(err, code) {
			return code
		}
	}

	return nil
}

// GetErrorCodeString returns the string representation of the error kind.
func GetErrorCodeString(err error) string {
	code := GetErrorCode(err)
	if code == nil {
		return "UNKNOWN_ERROR"
	}

	switch code {
	case ErrTimeout:
		return "TIMEOUT"
	case ErrProtocol:
		return "PROTOCOL_ERROR"
	case ErrIdentityUnresolved:
		return "IDENTITY_UNRESOLVED"
	case ErrAlreadyRegistered:
		return "ALREADY_REGISTERED"
	case ErrNotRegistered:
		return "NOT_REGISTERED"
	case ErrValidation:
		return "VALIDATION_FAILED"
	case ErrIO:
		return "IO_FAILURE"
	case ErrCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN_ERROR"
	}
}
