package game

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Event describes a committed transition. Events are only delivered when the
// state they came with is committed.
type Event interface {
	Name() string
	Game() string
}

// GameStarted is emitted when the second seat is taken.
type GameStarted struct {
	GameID string `json:"game_id"`
	White  string `json:"white"`
	Black  string `json:"black"`
}

// MoveApplied carries the position after an accepted move.
type MoveApplied struct {
	GameID string `json:"game_id"`
	FEN    string `json:"fen"`
	Player string `json:"player"`
	Move   string `json:"move"`
}

// GameEnded marks the terminal transition. Winner is nil for a draw.
type GameEnded struct {
	GameID string  `json:"game_id"`
	Winner *string `json:"winner"`
	Reason Result  `json:"reason,omitempty"`
}

func (GameStarted) Name() string { return "GameStarted" }
func (MoveApplied) Name() string { return "MoveApplied" }
func (GameEnded) Name() string   { return "GameEnded" }

func (e GameStarted) Game() string { return e.GameID }
func (e MoveApplied) Game() string { return e.GameID }
func (e GameEnded) Game() string   { return e.GameID }

// EncodeEvent renders {"MoveApplied":{...}}.
func EncodeEvent(e Event) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("encode event: nil")
	}
	return json.Marshal(map[string]Event{e.Name(): e})
}

func DecodeEvent(raw []byte) (Event, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(raw), &env); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if len(env) != 1 {
		return nil, fmt.Errorf("decode event: expected one variant, got %d", len(env))
	}
	for tag, body := range env {
		switch tag {
		case "GameStarted":
			var e GameStarted
			if err := json.Unmarshal(body, &e); err != nil {
				return nil, fmt.Errorf("decode %s: %w", tag, err)
			}
			return e, nil
		case "MoveApplied":
			var e MoveApplied
			if err := json.Unmarshal(body, &e); err != nil {
				return nil, fmt.Errorf("decode %s: %w", tag, err)
			}
			return e, nil
		case "GameEnded":
			var e GameEnded
			if err := json.Unmarshal(body, &e); err != nil {
				return nil, fmt.Errorf("decode %s: %w", tag, err)
			}
			return e, nil
		default:
			return nil, fmt.Errorf("decode event: unknown variant %q", tag)
		}
	}
	return nil, fmt.Errorf("decode event: empty envelope")
}
