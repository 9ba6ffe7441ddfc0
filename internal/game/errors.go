package game

import (
	"errors"
)

// Kind classifies a rejected action so callers can tell failures apart.
type Kind string

const (
	KindInvalidGameState  Kind = "invalid_game_state"
	KindNotYourTurn       Kind = "not_your_turn"
	KindIllegalMove       Kind = "illegal_move"
	KindTimeoutNotElapsed Kind = "timeout_not_elapsed"
	KindUnknownGame       Kind = "unknown_game"
	KindAlreadyJoined     Kind = "already_joined"
	KindNotAPlayer        Kind = "not_a_player"
	KindMalformedAction   Kind = "malformed_action"
)

// Error is the typed failure returned by the state machine and its collaborators.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Msg
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotYourTurn)
// holds regardless of the detail message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidGameState  = &Error{Kind: KindInvalidGameState}
	ErrNotYourTurn       = &Error{Kind: KindNotYourTurn}
	ErrIllegalMove       = &Error{Kind: KindIllegalMove}
	ErrTimeoutNotElapsed = &Error{Kind: KindTimeoutNotElapsed}
	ErrUnknownGame       = &Error{Kind: KindUnknownGame}
	ErrAlreadyJoined     = &Error{Kind: KindAlreadyJoined}
	ErrNotAPlayer        = &Error{Kind: KindNotAPlayer}
	ErrMalformedAction   = &Error{Kind: KindMalformedAction}
)

func newError(kind Kind, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

// UnknownGame is returned by stores when no state exists for id.
func UnknownGame(id string) error { return newError(KindUnknownGame, "game "+id) }

// KindOf extracts the kind of a game error, or "" for foreign errors.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}
