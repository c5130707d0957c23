// Package apperr is the error taxonomy shared by the ledger, lifecycle,
// settlement engine and scheduler.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	// Validation: bad input shape. Surfaced verbatim, never retried.
	KindValidation
	// State: the request is well formed but the current state forbids it.
	KindState
	// Transient: a collaborator timed out or is unavailable. Retried on the next tick.
	KindTransient
	// Deferred: the work cannot be done yet (results incomplete).
	KindDeferred
	// Integrity: stored data violates an invariant. Halts only the affected race.
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindTransient:
		return "transient"
	case KindDeferred:
		return "deferred"
	case KindIntegrity:
		return "integrity"
	default:
		return "internal"
	}
}

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so a sentinel with a rewritten message still compares equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// With returns a copy of the sentinel carrying a more specific user message.
func (e *Error) With(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...), Err: e.Err}
}

// Wrap returns a copy of the sentinel with cause attached.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: cause}
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrDuplicatePick = New(KindValidation, "duplicate_pick", "the three riders must be different")
	ErrUnknownRider  = New(KindValidation, "unknown_rider", "one or more riders are not valid")
	ErrBadInput      = New(KindValidation, "bad_input", "invalid request")

	ErrRaceNotFound      = New(KindState, "race_not_found", "race not found")
	ErrBettingClosed     = New(KindState, "betting_closed", "betting is closed for this race")
	ErrInvalidTransition = New(KindState, "invalid_transition", "invalid race status transition")
	ErrDuplicateBet      = New(KindState, "duplicate_bet", "you already have a bet for this race, use edit to change it")
	ErrNoBet             = New(KindState, "no_bet", "you have no bet for this race")
	ErrNotFound          = New(KindState, "not_found", "not found")

	ErrIncompleteResult = New(KindDeferred, "incomplete_result", "race results are incomplete")
	ErrTransient        = New(KindTransient, "transient", "collaborator unavailable")
	ErrIntegrity        = New(KindIntegrity, "integrity", "data integrity violation")
)

// KindOf reports the taxonomy kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the text a user should see for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindValidation, KindState:
			return e.Message
		}
	}
	return "something went wrong, please try again later"
}

// Retryable is true for errors the scheduler should retry on its next tick.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindDeferred:
		return true
	}
	return false
}
