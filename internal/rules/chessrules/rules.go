// Package chessrules plugs full chess legality into the game machine.
package chessrules

import (
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/flashchain-chess/internal/game"
)

// Rules validates moves and detects checkmate, stalemate and automatic draws
// with corentings/chess.
type Rules struct{}

var _ game.Rules = Rules{}
var _ game.OutcomeReporter = Rules{}

func New() Rules { return Rules{} }

// IsLegal accepts a pawn move onto the last rank when any promotion is legal;
// the machine fills in the piece.
func (Rules) IsLegal(board, from, to string, color game.Color) bool {
	g := load(board)
	if g == nil || colorFrom(g.Position().Turn()) != color {
		return false
	}
	uci := strings.ToLower(from + to)
	if _, ok := play(g, uci); ok {
		return true
	}
	if g = load(board); g == nil {
		return false
	}
	_, ok := play(g, uci+"q")
	return ok
}

// OutcomeAfter plays mv on board and reports how the game stands.
func (Rules) OutcomeAfter(board string, mv game.Move) game.Outcome {
	g := load(board)
	if g == nil {
		return game.OutcomeOngoing
	}
	if _, ok := play(g, strings.ToLower(mv.Notation())); !ok {
		return game.OutcomeOngoing
	}
	switch g.Outcome() {
	case nchess.WhiteWon, nchess.BlackWon:
		return game.OutcomeCheckmate
	case nchess.Draw:
		if g.Method() == nchess.Stalemate {
			return game.OutcomeStalemate
		}
		return game.OutcomeDraw
	}
	return game.OutcomeOngoing
}

func load(board string) *nchess.Game {
	opt, err := nchess.FEN(board)
	if err != nil {
		return nil
	}
	return nchess.NewGame(opt)
}

func play(g *nchess.Game, uci string) (*nchess.Move, bool) {
	pos := g.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return nil, false
	}
	if err := g.Move(mv, nil); err != nil {
		return nil, false
	}
	return mv, true
}

func colorFrom(c nchess.Color) game.Color {
	if c == nchess.White {
		return game.White
	}
	return game.Black
}

// SANHistory converts coordinate moves to SAN from the standard start. When a
// move cannot be replayed it and the rest are returned in coordinate form.
func SANHistory(moves []string) []string {
	out := make([]string, 0, len(moves))
	g := nchess.NewGame()
	for i, uci := range moves {
		pos := g.Position()
		mv, err := nchess.UCINotation{}.Decode(pos, strings.ToLower(uci))
		if err != nil {
			return append(out, moves[i:]...)
		}
		san := nchess.AlgebraicNotation{}.Encode(pos, mv)
		if err := g.Move(mv, nil); err != nil {
			return append(out, moves[i:]...)
		}
		out = append(out, san)
	}
	return out
}
