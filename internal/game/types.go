package game

import (
	"time"
)

// Color identifies a chess side as it appears in FEN.
type Color string

const (
	White Color = "w"
	Black Color = "b"
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// StatusKind is the lifecycle stage of a game.
type StatusKind string

const (
	StatusWaiting  StatusKind = "WAITING"
	StatusActive   StatusKind = "ACTIVE"
	StatusFinished StatusKind = "FINISHED"
)

// Status is Waiting, Active or Finished{Winner}. A finished game with a nil
// Winner is a draw.
type Status struct {
	Kind   StatusKind `json:"kind"`
	Winner *string    `json:"winner,omitempty"`
}

func Waiting() Status { return Status{Kind: StatusWaiting} }
func Active() Status  { return Status{Kind: StatusActive} }

// Finished builds a terminal status; pass "" for a draw.
func Finished(winner string) Status {
	if winner == "" {
		return Status{Kind: StatusFinished}
	}
	w := winner
	return Status{Kind: StatusFinished, Winner: &w}
}

func (s Status) IsWaiting() bool  { return s.Kind == StatusWaiting }
func (s Status) IsActive() bool   { return s.Kind == StatusActive }
func (s Status) IsFinished() bool { return s.Kind == StatusFinished }

// IsDraw reports a finished game without a winner.
func (s Status) IsDraw() bool { return s.Kind == StatusFinished && s.Winner == nil }

// Result explains how a finished game ended.
type Result string

const (
	ResultNone        Result = ""
	ResultCheckmate   Result = "checkmate"
	ResultStalemate   Result = "stalemate"
	ResultDraw        Result = "draw"
	ResultResignation Result = "resignation"
	ResultTimeout     Result = "timeout"
)

// Player owns one seat. Seat order defines turn order.
type Player struct {
	Wallet string `json:"wallet"`
	Color  Color  `json:"color"`
}

// GameState is the persisted snapshot of one game.
type GameState struct {
	GameID      string    `json:"game_id"`
	Players     []Player  `json:"players"`
	Turn        int       `json:"turn"`
	BoardState  string    `json:"board_state"`
	MoveHistory []string  `json:"move_history"`
	Status      Status    `json:"status"`
	Result      Result    `json:"result,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastMoveAt  time.Time `json:"last_move_at"`
}

// Clone returns a deep copy; the machine never shares slices with its input.
func (g *GameState) Clone() *GameState {
	if g == nil {
		return nil
	}
	out := *g
	out.Players = make([]Player, len(g.Players))
	copy(out.Players, g.Players)
	out.MoveHistory = make([]string, len(g.MoveHistory))
	copy(out.MoveHistory, g.MoveHistory)
	if g.Status.Winner != nil {
		w := *g.Status.Winner
		out.Status.Winner = &w
	}
	return &out
}

// CurrentPlayer returns the seat whose move is next.
func (g *GameState) CurrentPlayer() (Player, bool) {
	if g == nil || g.Turn < 0 || g.Turn >= len(g.Players) {
		return Player{}, false
	}
	return g.Players[g.Turn], true
}

// Seat returns the index of wallet in Players, or -1.
func (g *GameState) Seat(wallet string) int {
	for i, p := range g.Players {
		if p.Wallet == wallet {
			return i
		}
	}
	return -1
}

// Opponent returns the wallet facing the given one, or "".
func (g *GameState) Opponent(wallet string) string {
	if len(g.Players) != 2 {
		return ""
	}
	switch wallet {
	case g.Players[0].Wallet:
		return g.Players[1].Wallet
	case g.Players[1].Wallet:
		return g.Players[0].Wallet
	}
	return ""
}

// NewGame creates a Waiting game seated by its creator, who plays white.
func NewGame(id, creator string, now time.Time) *GameState {
	return &GameState{
		GameID:      id,
		Players:     []Player{{Wallet: creator, Color: White}},
		Turn:        0,
		MoveHistory: []string{},
		Status:      Waiting(),
		CreatedAt:   now,
		LastMoveAt:  now,
	}
}
