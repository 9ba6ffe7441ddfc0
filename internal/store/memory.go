package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/park285/flashchain-chess/internal/game"
)

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu      sync.RWMutex
	games   map[string]*game.GameState
	events  map[string][]Record
	applied map[string]map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games:   make(map[string]*game.GameState),
		events:  make(map[string][]Record),
		applied: make(map[string]map[string]struct{}),
	}
}

func (m *MemoryStore) Create(ctx context.Context, g *game.GameState) error {
	if g == nil || strings.TrimSpace(g.GameID) == "" {
		return fmt.Errorf("create: game id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[g.GameID]; ok {
		return fmt.Errorf("%w: %s", ErrGameExists, g.GameID)
	}
	m.games[g.GameID] = g.Clone()
	return nil
}

func (m *MemoryStore) Load(ctx context.Context, id string) (*game.GameState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return nil, game.UnknownGame(id)
	}
	return g.Clone(), nil
}

func (m *MemoryStore) Seen(ctx context.Context, id, actionID string) (bool, error) {
	if actionID == "" {
		return false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.applied[id][actionID]
	return ok, nil
}

func (m *MemoryStore) Commit(ctx context.Context, prev, next *game.GameState, events []game.Event, actionID string) error {
	if err := checkPair(prev, next); err != nil {
		return err
	}
	id := next.GameID
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.games[id]
	if !ok {
		return game.UnknownGame(id)
	}
	if revisionOf(cur) != revisionOf(prev) {
		return ErrConflict
	}
	if actionID != "" {
		if _, dup := m.applied[id][actionID]; dup {
			return ErrDuplicateAction
		}
		if m.applied[id] == nil {
			m.applied[id] = make(map[string]struct{})
		}
		m.applied[id][actionID] = struct{}{}
	}
	m.games[id] = next.Clone()
	base := len(m.events[id])
	for i, ev := range events {
		m.events[id] = append(m.events[id], Record{Seq: base + i, GameID: id, Event: ev})
	}
	return nil
}

func (m *MemoryStore) Events(ctx context.Context, id string, from int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.events[id]
	if from < 0 {
		from = 0
	}
	if from >= len(list) {
		return []Record{}, nil
	}
	return append([]Record(nil), list[from:]...), nil
}

func (m *MemoryStore) List(ctx context.Context, f ListFilter) ([]*game.GameState, error) {
	m.mu.RLock()
	out := make([]*game.GameState, 0, len(m.games))
	for _, g := range m.games {
		if f.match(g) {
			out = append(out, g.Clone())
		}
	}
	m.mu.RUnlock()
	newestFirst(out)
	if n := f.limit(); len(out) > n {
		out = out[:n]
	}
	return out, nil
}
