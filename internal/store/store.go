// Package store commits game snapshots together with the events they produced.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/park285/flashchain-chess/internal/game"
)

var (
	ErrConflict        = errors.New("game changed concurrently")
	ErrDuplicateAction = errors.New("action already applied")
	ErrGameExists      = errors.New("game already exists")
)

// Store is the persistence collaborator of the executor. Commit stores next
// and appends events atomically, but only if the stored game still matches prev.
type Store interface {
	Create(ctx context.Context, g *game.GameState) error
	Load(ctx context.Context, id string) (*game.GameState, error)
	Seen(ctx context.Context, id, actionID string) (bool, error)
	Commit(ctx context.Context, prev, next *game.GameState, events []game.Event, actionID string) error
	List(ctx context.Context, f ListFilter) ([]*game.GameState, error)
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// ListFilter narrows List. Zero fields match every game.
type ListFilter struct {
	Status game.StatusKind
	Player string
	Limit  int
}

func (f ListFilter) match(g *game.GameState) bool {
	if f.Status != "" && g.Status.Kind != f.Status {
		return false
	}
	return f.Player == "" || g.Seat(f.Player) >= 0
}

func (f ListFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	}
	return f.Limit
}

// newestFirst orders games by creation time, newest first, then by id.
func newestFirst(games []*game.GameState) {
	sort.SliceStable(games, func(i, j int) bool {
		a, b := games[i], games[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.GameID < b.GameID
	})
}

// Feed exposes committed events to subscribers.
type Feed interface {
	Events(ctx context.Context, id string, from int) ([]Record, error)
	Subscribe(ctx context.Context, id string) (<-chan Record, error)
	SubscribeAll(ctx context.Context) (<-chan Record, error)
}

// Record is a committed event with its position in the game's event log.
type Record struct {
	Seq    int        `json:"seq"`
	GameID string     `json:"game_id"`
	Event  game.Event `json:"-"`
}

type recordWire struct {
	Seq    int             `json:"seq"`
	GameID string          `json:"game_id"`
	Event  json.RawMessage `json:"event"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	ev, err := game.EncodeEvent(r.Event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(recordWire{Seq: r.Seq, GameID: r.GameID, Event: ev})
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var w recordWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	ev, err := game.DecodeEvent(w.Event)
	if err != nil {
		return err
	}
	r.Seq, r.GameID, r.Event = w.Seq, w.GameID, ev
	return nil
}

// revision identifies a snapshot well enough to detect a stale prev: every
// accepted action changes at least one of these.
type revision struct {
	status  game.StatusKind
	players int
	moves   int
	turn    int
}

func revisionOf(g *game.GameState) revision {
	return revision{status: g.Status.Kind, players: len(g.Players), moves: len(g.MoveHistory), turn: g.Turn}
}

func checkPair(prev, next *game.GameState) error {
	if prev == nil || next == nil {
		return fmt.Errorf("commit: nil state")
	}
	if prev.GameID != next.GameID {
		return fmt.Errorf("commit: game id mismatch %q != %q", prev.GameID, next.GameID)
	}
	return nil
}
