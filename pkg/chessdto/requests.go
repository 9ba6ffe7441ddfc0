package chessdto

import "encoding/json"

// CreateGameRequest is the optional body of POST /games. The creator comes
// from the X-Wallet header.
type CreateGameRequest struct {
	GameID string `json:"game_id,omitempty"`
}

type CreateGameResponse struct {
	Game GameView `json:"game"`
}

// ActionResponse answers POST /games/{id}/actions. Events hold the tagged
// event envelopes in emission order.
type ActionResponse struct {
	Game      GameView          `json:"game"`
	Events    []json.RawMessage `json:"events"`
	Duplicate bool              `json:"duplicate,omitempty"`
}

// EventRecord is one committed event of a game's log.
type EventRecord struct {
	Seq    int             `json:"seq"`
	GameID string          `json:"game_id"`
	Event  json.RawMessage `json:"event"`
}

type EventsResponse struct {
	GameID string        `json:"game_id"`
	Next   int           `json:"next"`
	Events []EventRecord `json:"events"`
}
