package apperr

import (
	"errors"
	"fmt"
)

// Kind distinguishes the error classes the API surfaces to clients.
type Kind int

const (
	KindInvalidArgument Kind = iota
	KindNotFound
	KindPayloadTooLarge
	KindStorage
	KindUpstream
	KindConflict
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindPayloadTooLarge:
		return "payload_too_large"
	case KindStorage:
		return "storage_error"
	case KindUpstream:
		return "upstream_error"
	case KindConflict:
		return "conflict"
	}
	return "internal_error"
}

// Error is a classified error. Err, when set, carries the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func InvalidArgument(message string) *Error { return New(KindInvalidArgument, message) }
func NotFound(message string) *Error        { return New(KindNotFound, message) }
func PayloadTooLarge(message string) *Error { return New(KindPayloadTooLarge, message) }

// KindOf classifies err, defaulting to KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }
