// Package chessdto holds the JSON shapes exchanged with API clients.
package chessdto

import "time"

type PlayerView struct {
	Wallet string `json:"wallet"`
	Color  string `json:"color"`
}

// GameView is the public snapshot of a game.
type GameView struct {
	GameID      string       `json:"game_id"`
	Status      string       `json:"status"`
	Winner      *string      `json:"winner"`
	Result      string       `json:"result,omitempty"`
	Summary     string       `json:"summary,omitempty"`
	Players     []PlayerView `json:"players"`
	Turn        int          `json:"turn"`
	ToMove      string       `json:"to_move,omitempty"`
	BoardState  string       `json:"board_state"`
	MoveHistory []string     `json:"move_history"`
	CreatedAt   time.Time    `json:"created_at"`
	LastMoveAt  time.Time    `json:"last_move_at"`
	// Deadline is when the player to move can be claimed out on time.
	Deadline *time.Time `json:"deadline,omitempty"`
}

// GamesResponse answers GET /games, newest game first.
type GamesResponse struct {
	Games []GameView `json:"games"`
}
