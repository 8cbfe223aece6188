package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/otcheredev/ris-modality-workflow/internal/gateway"
	"github.com/otcheredev/ris-modality-workflow/internal/session"
)

// Kind classifies a command failure
type Kind string

const (
	KindNotFound           Kind = "NotFound"
	KindPersistence        Kind = "PersistenceError"
	KindGateway            Kind = "GatewayError"
	KindBusiness           Kind = "BusinessFailure"
	KindInvariantViolation Kind = "InvariantViolation"
	KindStoreUnavailable   Kind = "StoreUnavailable"
	KindInvalidInput       Kind = "InvalidInput"
)

// Error is the failure type of every manager operation
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a kind sentinel such as ErrNotFound
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind sentinels for errors.Is
var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrPersistence        = &Error{Kind: KindPersistence}
	ErrGateway            = &Error{Kind: KindGateway}
	ErrBusiness           = &Error{Kind: KindBusiness}
	ErrInvariantViolation = &Error{Kind: KindInvariantViolation}
	ErrStoreUnavailable   = &Error{Kind: KindStoreUnavailable}
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
)

func notFound(kind, key string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %q not found", kind, key)}
}

func invalidInput(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func invariant(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvariantViolation, Message: fmt.Sprintf(format, args...)}
}

func persistence(message string, err error) *Error {
	return &Error{Kind: KindPersistence, Message: message, Err: err}
}

// business carries the engine's message verbatim
func business(message string) *Error {
	if message == "" {
		message = "protocol engine reported failure"
	}
	return &Error{Kind: KindBusiness, Message: message}
}

func gatewayFailure(operation string, err error) *Error {
	return &Error{Kind: KindGateway, Message: operation + " failed", Err: err}
}

// KindOf returns the kind of err, classifying foreign errors
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return classify(err).Kind
}

// classify maps any error onto an *Error
func classify(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, session.ErrUnavailable):
		return &Error{Kind: KindStoreUnavailable, Message: "record store unavailable", Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindStoreUnavailable, Message: "gave up waiting for the record store", Err: err}
	case errors.Is(err, gateway.ErrTransport):
		return &Error{Kind: KindGateway, Message: "protocol engine unreachable", Err: err}
	default:
		return &Error{Kind: KindPersistence, Message: "unexpected failure", Err: err}
	}
}
