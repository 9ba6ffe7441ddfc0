// Package audit re-derives stored games from their move history to check
// that the state machine is deterministic.
package audit

import (
	"fmt"

	"github.com/park285/flashchain-chess/internal/game"
	"github.com/park285/flashchain-chess/internal/store"
)

// Report describes one replayed game.
type Report struct {
	GameID      string
	Moves       int
	StoredFEN   string
	ReplayedFEN string
	Mismatches  []string
}

func (r *Report) OK() bool { return len(r.Mismatches) == 0 }

// Replay seats the stored players in a fresh game, plays the recorded
// history through m and compares the resulting boards with stored and with
// the MoveApplied records of its event log.
func Replay(m *game.Machine, stored *game.GameState, records []store.Record) (*Report, error) {
	if stored == nil {
		return nil, fmt.Errorf("replay: nil game")
	}
	rep := &Report{GameID: stored.GameID, StoredFEN: stored.BoardState}
	if len(stored.Players) < 2 {
		if len(stored.MoveHistory) > 0 {
			rep.Mismatches = append(rep.Mismatches, "moves recorded before a second player joined")
		}
		return rep, nil
	}

	white, black := seats(stored)
	g := game.NewGame(stored.GameID, white, stored.CreatedAt)
	g, _, err := m.Apply(g, game.Join{}, black, stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("replay join: %w", err)
	}

	fens := make([]string, 0, len(stored.MoveHistory))
	for i, notation := range stored.MoveHistory {
		mv, err := parseNotation(notation)
		if err != nil {
			return nil, fmt.Errorf("replay move %d: %w", i+1, err)
		}
		p, _ := g.CurrentPlayer()
		next, _, err := m.Apply(g, mv, p.Wallet, stored.LastMoveAt)
		if err != nil {
			rep.Mismatches = append(rep.Mismatches, fmt.Sprintf("move %d %s rejected: %v", i+1, notation, err))
			break
		}
		g = next
		fens = append(fens, g.BoardState)
		rep.Moves++
	}
	rep.ReplayedFEN = g.BoardState
	if rep.ReplayedFEN != stored.BoardState {
		rep.Mismatches = append(rep.Mismatches, fmt.Sprintf("board differs: stored %q replayed %q", stored.BoardState, rep.ReplayedFEN))
	}

	applied := 0
	for _, rec := range records {
		ma, ok := rec.Event.(game.MoveApplied)
		if !ok {
			continue
		}
		if applied >= len(fens) {
			rep.Mismatches = append(rep.Mismatches, fmt.Sprintf("event seq %d has no matching move", rec.Seq))
			applied++
			continue
		}
		if ma.FEN != fens[applied] || ma.Move != stored.MoveHistory[applied] {
			rep.Mismatches = append(rep.Mismatches, fmt.Sprintf("event seq %d disagrees with move %d", rec.Seq, applied+1))
		}
		applied++
	}
	if records != nil && applied < len(fens) {
		rep.Mismatches = append(rep.Mismatches, fmt.Sprintf("event log has %d moves, history has %d", applied, len(fens)))
	}
	return rep, nil
}

func seats(g *game.GameState) (white, black string) {
	for _, p := range g.Players {
		if p.Color == game.White {
			white = p.Wallet
		} else {
			black = p.Wallet
		}
	}
	return white, black
}

func parseNotation(s string) (game.MakeMove, error) {
	if len(s) != 4 && len(s) != 5 {
		return game.MakeMove{}, fmt.Errorf("bad notation %q", s)
	}
	mv := game.MakeMove{From: s[0:2], To: s[2:4]}
	if len(s) == 5 {
		p := s[4:]
		mv.Promotion = &p
	}
	return mv, nil
}
