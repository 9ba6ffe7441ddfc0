package game

import (
	"github.com/park285/flashchain-chess/internal/board"
)

// Move is a coordinate move as submitted by a player.
type Move struct {
	From      string
	To        string
	Promotion string
}

// Notation is the canonical history entry, e.g. "e2e4" or "e7e8q".
func (m Move) Notation() string { return m.From + m.To + m.Promotion }

// Rules decides whether a move is allowed for color on the given FEN board.
type Rules interface {
	IsLegal(board, from, to string, color Color) bool
}

// Outcome is what a rule set reports about the position after a move.
type Outcome int

const (
	OutcomeOngoing Outcome = iota
	OutcomeCheckmate
	OutcomeStalemate
	OutcomeDraw
)

// OutcomeReporter is implemented by rule sets that can detect game end.
// board is the position before mv is played.
type OutcomeReporter interface {
	OutcomeAfter(board string, mv Move) Outcome
}

// OwnershipRules only checks that the origin holds a piece of the mover and
// the destination is not occupied by one of its own pieces.
type OwnershipRules struct{}

func (OwnershipRules) IsLegal(fen, from, to string, color Color) bool {
	if from == to {
		return false
	}
	pos, err := board.Load(fen)
	if err != nil {
		return false
	}
	if pos.Owner(from) != string(color) {
		return false
	}
	if _, err := board.ParseSquare(to); err != nil {
		return false
	}
	return pos.Owner(to) != string(color)
}
