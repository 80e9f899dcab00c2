// Package apperr defines the tagged error returned by the auth services.
// Transports switch on Kind to pick a response; nothing inspects messages.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindInvalidCredentials
	KindOAuthOnlyAccount
	KindTokenMissing
	KindTokenInvalid
	KindTokenRevoked
	KindUserNotFound
	KindLinkingConflict
	KindOAuthRejected
	KindConflict
	KindForbidden
	KindStorageUnavailable
)

var kindNames = map[Kind]string{
	KindInternal:           "internal",
	KindInvalidInput:       "invalid_input",
	KindInvalidCredentials: "invalid_credentials",
	KindOAuthOnlyAccount:   "oauth_only_account",
	KindTokenMissing:       "token_missing",
	KindTokenInvalid:       "token_invalid",
	KindTokenRevoked:       "token_revoked",
	KindUserNotFound:       "user_not_found",
	KindLinkingConflict:    "linking_conflict",
	KindOAuthRejected:      "oauth_rejected",
	KindConflict:           "conflict",
	KindForbidden:          "forbidden",
	KindStorageUnavailable: "storage_unavailable",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the single error type crossing the service boundary.
type Error struct {
	Kind    Kind
	Message string
	Context map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, apperr.New(KindTokenRevoked, "")) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// With returns a copy of e carrying an extra context entry.
func (e *Error) With(key string, value any) *Error {
	cp := *e
	cp.Context = make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		cp.Context[k] = v
	}
	cp.Context[key] = value
	return &cp
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Storage wraps a backend failure. Callers must not retry inline.
func Storage(op string, err error) *Error {
	return &Error{Kind: KindStorageUnavailable, Message: op, Err: err}
}

// KindOf reports the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
