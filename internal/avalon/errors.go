package avalon

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine errors so the transport layer can map them to
// client-facing error codes without string matching.
type ErrorKind string

const (
	ErrValidation    ErrorKind = "validation"
	ErrNotFound      ErrorKind = "not_found"
	ErrWrongPhase    ErrorKind = "wrong_phase"
	ErrUnauthorized  ErrorKind = "unauthorized"
	ErrDoubleAction  ErrorKind = "double_action"
	ErrRuleViolation ErrorKind = "rule_violation"
	ErrCapacity      ErrorKind = "capacity"
)

// Error is a typed engine error. Operations that return an Error leave the
// game state untouched.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ErrGameNotFound reports an unknown game id.
func ErrGameNotFound(gameID int64) *Error {
	return newError(ErrNotFound, "game %d not found", gameID)
}

// ErrRoomHasNoGame reports a room with no ongoing game.
func ErrRoomHasNoGame(roomID string) *Error {
	return newError(ErrNotFound, "room %s has no ongoing game", roomID)
}

// KindOf returns the ErrorKind of an engine error, or "" for other errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
