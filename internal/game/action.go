package game

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Action is a player request submitted against one game. The concrete types
// are MakeMove, ClaimTimeout, Join and Resign.
type Action interface {
	Name() string
}

// MakeMove moves the piece on From to To. Promotion is one of q, r, b, n and
// only applies when a pawn reaches the back rank.
type MakeMove struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Promotion *string `json:"promotion"`
}

// ClaimTimeout asks for the player on turn to forfeit after inactivity.
type ClaimTimeout struct{}

// Join takes the free seat of a waiting game.
type Join struct{}

// Resign concedes the game to the opponent.
type Resign struct{}

func (MakeMove) Name() string     { return "MakeMove" }
func (ClaimTimeout) Name() string { return "ClaimTimeout" }
func (Join) Name() string         { return "Join" }
func (Resign) Name() string       { return "Resign" }

// EncodeAction renders the externally tagged wire form, e.g.
// {"MakeMove":{"from":"e2","to":"e4","promotion":null}}.
func EncodeAction(a Action) ([]byte, error) {
	if a == nil {
		return nil, newError(KindMalformedAction, "nil action")
	}
	return json.Marshal(map[string]Action{a.Name(): a})
}

// DecodeAction parses the wire form. Field-less variants are also accepted as
// a bare string ("ClaimTimeout").
func DecodeAction(raw []byte) (Action, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, newError(KindMalformedAction, "empty payload")
	}
	var tag string
	if err := json.Unmarshal(raw, &tag); err == nil {
		return unitAction(tag)
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, newError(KindMalformedAction, err.Error())
	}
	if len(env) != 1 {
		return nil, newError(KindMalformedAction, fmt.Sprintf("expected one variant, got %d", len(env)))
	}
	for tag, body := range env {
		if tag != "MakeMove" {
			return unitAction(tag)
		}
		var mv MakeMove
		if err := json.Unmarshal(body, &mv); err != nil {
			return nil, newError(KindMalformedAction, "MakeMove: "+err.Error())
		}
		return mv, nil
	}
	return nil, newError(KindMalformedAction, "empty envelope")
}

func unitAction(tag string) (Action, error) {
	switch tag {
	case "ClaimTimeout":
		return ClaimTimeout{}, nil
	case "Join":
		return Join{}, nil
	case "Resign":
		return Resign{}, nil
	case "MakeMove":
		return nil, newError(KindMalformedAction, "MakeMove requires from and to")
	}
	return nil, newError(KindMalformedAction, "unknown action "+tag)
}
