// Package board reads and advances FEN positions on top of corentings/chess.
// Moves are applied as given; judging legality belongs to a rule set.
package board

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var (
	ErrInvalidFEN    = errors.New("invalid fen")
	ErrInvalidSquare = errors.New("invalid square")
	ErrEmptySquare   = errors.New("no piece on origin square")
)

// Position wraps a decoded chess position.
type Position struct {
	pos *nchess.Position
}

// Load decodes a six-field FEN.
func Load(fen string) (p *Position, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("%w: %v", ErrInvalidFEN, r)
		}
	}()
	opt, err := nchess.FEN(strings.TrimSpace(fen))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	return &Position{pos: nchess.NewGame(opt).Position()}, nil
}

// ParseSquare converts "e4" to a board square.
func ParseSquare(sq string) (nchess.Square, error) {
	if len(sq) != 2 {
		return nchess.NoSquare, fmt.Errorf("%w: %q", ErrInvalidSquare, sq)
	}
	f, r := sq[0], sq[1]
	if f < 'a' || f > 'h' || r < '1' || r > '8' {
		return nchess.NoSquare, fmt.Errorf("%w: %q", ErrInvalidSquare, sq)
	}
	return nchess.NewSquare(nchess.File(f-'a'), nchess.Rank(r-'1')), nil
}

// PieceAt returns the piece on sq, nchess.NoPiece when empty.
func (p *Position) PieceAt(sq string) (nchess.Piece, error) {
	s, err := ParseSquare(sq)
	if err != nil {
		return nchess.NoPiece, err
	}
	return p.pos.Board().Piece(s), nil
}

// Owner returns "w" or "b" for the piece on sq and "" for an empty square.
func (p *Position) Owner(sq string) string {
	pc, err := p.PieceAt(sq)
	if err != nil || pc == nchess.NoPiece {
		return ""
	}
	return pc.Color().String()
}

// Turn is the FEN side to move, "w" or "b".
func (p *Position) Turn() string { return p.pos.Turn().String() }

// IsPromotion reports whether from -> to carries a pawn onto its last rank.
func (p *Position) IsPromotion(from, to string) bool {
	pc, err := p.PieceAt(from)
	if err != nil || pc.Type() != nchess.Pawn {
		return false
	}
	dst, err := ParseSquare(to)
	if err != nil {
		return false
	}
	if pc.Color() == nchess.White {
		return dst.Rank() == nchess.Rank8
	}
	return dst.Rank() == nchess.Rank1
}

// Apply returns the position after the piece on from moves to to. Captures,
// castling rook hops, en passant removal, promotion and both clocks follow
// the library's move update. promo is "q", "r", "b", "n" or "".
func (p *Position) Apply(from, to, promo string) (*Position, error) {
	if _, err := ParseSquare(from); err != nil {
		return nil, err
	}
	if _, err := ParseSquare(to); err != nil {
		return nil, err
	}
	if p.Owner(from) == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptySquare, from)
	}
	mv, err := nchess.UCINotation{}.Decode(p.pos, from+to+promo)
	if err != nil {
		return nil, err
	}
	return &Position{pos: p.pos.Update(mv)}, nil
}

// LegalMoves lists every fully legal move for the side to move in
// coordinate notation.
func (p *Position) LegalMoves() []string {
	moves := p.pos.ValidMoves()
	out := make([]string, 0, len(moves))
	for i := range moves {
		out = append(out, nchess.UCINotation{}.Encode(p.pos, &moves[i]))
	}
	return out
}

// String renders the position as FEN.
func (p *Position) String() string { return p.pos.String() }
