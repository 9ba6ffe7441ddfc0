// Package contract runs submitted actions against stored games: it loads the
// snapshot, applies the action through the state machine and commits the
// result, retrying when another submission wins the race.
package contract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/park285/flashchain-chess/internal/game"
	"github.com/park285/flashchain-chess/internal/obslog"
	"github.com/park285/flashchain-chess/internal/store"
	"go.uber.org/zap"
)

const defaultMaxRetries = 5

// Archiver receives every game that reaches Finished.
type Archiver interface {
	SaveResult(ctx context.Context, g *game.GameState) error
}

// Submission is one signed action. Sender is already authenticated.
type Submission struct {
	GameID   string
	ActionID string
	Sender   string
	Action   game.Action
}

// Result is what a submission produced. Duplicate is set when the action id
// had already been applied; State is then the current snapshot and Events is
// empty.
type Result struct {
	State     *game.GameState
	Events    []game.Event
	Duplicate bool
}

type Executor struct {
	store      store.Store
	machine    *game.Machine
	clock      Clock
	archive    Archiver
	logger     *zap.Logger
	maxRetries int
}

type Option func(*Executor)

func WithClock(c Clock) Option {
	return func(e *Executor) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithArchive hands finished games to a.
func WithArchive(a Archiver) Option {
	return func(e *Executor) { e.archive = a }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaxRetries bounds how often a conflicting commit is retried.
func WithMaxRetries(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

func NewExecutor(s store.Store, m *game.Machine, opts ...Option) *Executor {
	if m == nil {
		m = game.NewMachine()
	}
	e := &Executor{store: s, machine: m, clock: SystemClock{}, maxRetries: defaultMaxRetries}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) log() *zap.Logger {
	if e.logger != nil {
		return e.logger
	}
	return obslog.L()
}

// Create opens a Waiting game seated by wallet. An empty id gets a uuid.
func (e *Executor) Create(ctx context.Context, gameID, wallet string) (*game.GameState, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, &game.Error{Kind: game.KindNotAPlayer, Msg: "wallet required"}
	}
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		gameID = uuid.NewString()
	}
	g := game.NewGame(gameID, wallet, e.clock.Now())
	if err := e.store.Create(ctx, g); err != nil {
		return nil, err
	}
	e.log().Info("game_create", zap.String("game_id", g.GameID), zap.String("creator", wallet))
	return g, nil
}

// Load returns the stored snapshot of id.
func (e *Executor) Load(ctx context.Context, id string) (*game.GameState, error) {
	return e.store.Load(ctx, strings.TrimSpace(id))
}

// List returns stored games matching f, newest first.
func (e *Executor) List(ctx context.Context, f store.ListFilter) ([]*game.GameState, error) {
	f.Player = strings.TrimSpace(f.Player)
	return e.store.List(ctx, f)
}

// Execute applies sub to its game and commits the outcome.
func (e *Executor) Execute(ctx context.Context, sub Submission) (*Result, error) {
	sub.GameID = strings.TrimSpace(sub.GameID)
	if sub.GameID == "" {
		return nil, &game.Error{Kind: game.KindUnknownGame, Msg: "game id required"}
	}
	if mm, ok := sub.Action.(*game.MakeMove); sub.Action == nil || (ok && mm == nil) {
		return nil, &game.Error{Kind: game.KindMalformedAction, Msg: "action required"}
	}
	logger := e.log().With(
		zap.String("game_id", sub.GameID),
		zap.String("sender", sub.Sender),
		zap.String("action", sub.Action.Name()),
	)
	if sub.ActionID != "" {
		logger = logger.With(zap.String("action_id", sub.ActionID))
	}

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if sub.ActionID != "" {
			seen, err := e.store.Seen(ctx, sub.GameID, sub.ActionID)
			if err != nil {
				return nil, fmt.Errorf("check action %s: %w", sub.ActionID, err)
			}
			if seen {
				return e.duplicate(ctx, sub, logger)
			}
		}
		prev, err := e.store.Load(ctx, sub.GameID)
		if err != nil {
			return nil, err
		}
		next, events, err := e.machine.Apply(prev, sub.Action, sub.Sender, e.clock.Now())
		if err != nil {
			logger.Info("action_rejected", zap.String("kind", string(game.KindOf(err))), zap.Error(err))
			return nil, err
		}
		err = e.store.Commit(ctx, prev, next, events, sub.ActionID)
		switch {
		case err == nil:
		case errors.Is(err, store.ErrConflict):
			logger.Debug("commit_conflict", zap.Int("attempt", attempt))
			continue
		case errors.Is(err, store.ErrDuplicateAction):
			return e.duplicate(ctx, sub, logger)
		default:
			return nil, fmt.Errorf("commit %s: %w", sub.GameID, err)
		}

		logger.Info("action_applied",
			zap.Int("events", len(events)),
			zap.Int("moves", len(next.MoveHistory)),
			zap.String("status", string(next.Status.Kind)),
		)
		if next.Status.IsFinished() {
			e.finish(ctx, next, logger)
		}
		return &Result{State: next, Events: events}, nil
	}
	logger.Warn("commit_retries_exhausted", zap.Int("retries", e.maxRetries))
	return nil, fmt.Errorf("execute %s: %w", sub.GameID, store.ErrConflict)
}

func (e *Executor) duplicate(ctx context.Context, sub Submission, logger *zap.Logger) (*Result, error) {
	cur, err := e.store.Load(ctx, sub.GameID)
	if err != nil {
		return nil, err
	}
	logger.Info("action_duplicate")
	return &Result{State: cur, Events: []game.Event{}, Duplicate: true}, nil
}

// finish archives a terminal game. Archive failures never undo the commit.
func (e *Executor) finish(ctx context.Context, g *game.GameState, logger *zap.Logger) {
	winner := ""
	if g.Status.Winner != nil {
		winner = *g.Status.Winner
	}
	logger.Info("game_finished", zap.String("winner", winner), zap.String("result", string(g.Result)))
	if e.archive == nil {
		return
	}
	if err := e.archive.SaveResult(ctx, g); err != nil {
		logger.Warn("archive_save_failed", zap.Error(err))
	}
}
