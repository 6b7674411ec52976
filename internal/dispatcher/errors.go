package dispatcher

import (
	"errors"
	"fmt"

	"github.com/m3rciful/tempmailbot/internal/mailtm"
)

var (
	// ErrNotVerified means the caller has not passed the membership gate.
	ErrNotVerified = errors.New("user not verified")
	// ErrNoMailbox means the caller has no active mailbox.
	ErrNoMailbox = errors.New("no mailbox")
	// ErrUnauthorized means an admin command was called by someone else.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrEmptyBroadcast means /broadcast was called without text.
	ErrEmptyBroadcast = errors.New("empty broadcast")
	// ErrUnknownCommand means the command name is not handled.
	ErrUnknownCommand = errors.New("unknown command")
)

// TransportError wraps a failed call to the messaging platform.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Code implements the err_code convention of the handler logs.
func (e *TransportError) Code() string { return "transport" }

// outcome classifies err for metrics and logs.
func outcome(err error) string {
	var (
		te *TransportError
		pe *mailtm.ProviderError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotVerified):
		return "not_verified"
	case errors.Is(err, ErrNoMailbox):
		return "no_mailbox"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrEmptyBroadcast):
		return "usage"
	case errors.Is(err, ErrUnknownCommand):
		return "unknown"
	case errors.As(err, &te):
		return "transport_error"
	case errors.As(err, &pe):
		return "provider_error"
	}
	return "error"
}

// errorCode extracts the Code() of the first coded error in the chain.
func errorCode(err error) string {
	var coder interface{ Code() string }
	if errors.As(err, &coder) {
		return coder.Code()
	}
	return outcome(err)
}
