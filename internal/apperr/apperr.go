// Package apperr defines the error kinds the messaging service distinguishes.
// Kinds are sentinel errors so callers can match with errors.Is; the message
// carried alongside is what handlers surface to the client.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("validation")
	ErrNotFound      = errors.New("not found")
	ErrAuthorization = errors.New("authorization")
	ErrConflict      = errors.New("conflict")
	ErrStorage       = errors.New("storage")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func Validation(msg string) error    { return &kindError{kind: ErrValidation, msg: msg} }
func NotFound(msg string) error      { return &kindError{kind: ErrNotFound, msg: msg} }
func Authorization(msg string) error { return &kindError{kind: ErrAuthorization, msg: msg} }
func Conflict(msg string) error      { return &kindError{kind: ErrConflict, msg: msg} }

// Storage wraps a collaborator failure. The cause stays in the chain for
// logs; the client only ever sees the operation name.
func Storage(op string, err error) error {
	return &kindError{kind: ErrStorage, msg: fmt.Sprintf("%s: %v", op, err)}
}

// Message returns the human-readable text for an error of any kind.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
