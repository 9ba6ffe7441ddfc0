// Package agent seats an automated opponent. It follows committed events and
// a periodic sweep of its own games, and plays a legal move whenever its
// wallet is on turn.
package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/park285/flashchain-chess/internal/board"
	"github.com/park285/flashchain-chess/internal/contract"
	"github.com/park285/flashchain-chess/internal/game"
	"github.com/park285/flashchain-chess/internal/obslog"
	"github.com/park285/flashchain-chess/internal/store"
	"go.uber.org/zap"
)

const (
	defaultDelay = 1500 * time.Millisecond
	defaultSweep = 2 * time.Second
)

// Games is the part of the executor the agent drives.
type Games interface {
	Load(ctx context.Context, id string) (*game.GameState, error)
	List(ctx context.Context, f store.ListFilter) ([]*game.GameState, error)
	Execute(ctx context.Context, sub contract.Submission) (*contract.Result, error)
}

// Source yields committed events of every game.
type Source interface {
	SubscribeAll(ctx context.Context) (<-chan store.Record, error)
}

// Chooser picks one of the legal coordinate moves available in pos.
type Chooser func(pos *board.Position, legal []string) string

// RandomChooser plays any legal move.
func RandomChooser(_ *board.Position, legal []string) string {
	return legal[rand.IntN(len(legal))]
}

type Agent struct {
	wallet   string
	games    Games
	choose   Chooser
	delay    time.Duration
	sweep    time.Duration
	autoJoin bool
	logger   *zap.Logger
}

type Option func(*Agent)

func WithChooser(c Chooser) Option {
	return func(a *Agent) {
		if c != nil {
			a.choose = c
		}
	}
}

// WithDelay waits d before submitting each move.
func WithDelay(d time.Duration) Option {
	return func(a *Agent) {
		if d >= 0 {
			a.delay = d
		}
	}
}

// WithSweep sets how often the agent rescans its games; zero disables it.
func WithSweep(d time.Duration) Option {
	return func(a *Agent) {
		if d >= 0 {
			a.sweep = d
		}
	}
}

// WithAutoJoin lets the sweep take the open seat of waiting games.
func WithAutoJoin(on bool) Option {
	return func(a *Agent) { a.autoJoin = on }
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

func New(wallet string, games Games, opts ...Option) *Agent {
	a := &Agent{
		wallet: wallet,
		games:  games,
		choose: RandomChooser,
		delay:  defaultDelay,
		sweep:  defaultSweep,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) log() *zap.Logger {
	if a.logger != nil {
		return a.logger
	}
	return obslog.L()
}

// Run reacts to src until ctx ends. src may be nil, leaving only the sweep.
func (a *Agent) Run(ctx context.Context, src Source) error {
	var records <-chan store.Record
	if src != nil {
		ch, err := src.SubscribeAll(ctx)
		if err != nil {
			return fmt.Errorf("agent subscribe: %w", err)
		}
		records = ch
	}
	var tick <-chan time.Time
	if a.sweep > 0 {
		t := time.NewTicker(a.sweep)
		defer t.Stop()
		tick = t.C
	}
	a.log().Info("agent_start", zap.String("wallet", a.wallet), zap.Bool("auto_join", a.autoJoin))
	a.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case rec, ok := <-records:
			if !ok {
				return nil
			}
			switch rec.Event.(type) {
			case game.GameStarted, game.MoveApplied:
				a.Play(ctx, rec.GameID)
			}
		case <-tick:
			a.Sweep(ctx)
		}
	}
}

// Sweep joins waiting games when enabled and moves in every active game
// where the agent is on turn.
func (a *Agent) Sweep(ctx context.Context) {
	if a.autoJoin {
		waiting, err := a.games.List(ctx, store.ListFilter{Status: game.StatusWaiting, Limit: store.MaxListLimit})
		if err != nil {
			a.log().Warn("agent_list_failed", zap.Error(err))
			return
		}
		for _, g := range waiting {
			if g.Seat(a.wallet) >= 0 {
				continue
			}
			a.submit(ctx, g, game.Join{}, "agent:join:"+g.GameID)
		}
	}
	active, err := a.games.List(ctx, store.ListFilter{Status: game.StatusActive, Player: a.wallet, Limit: store.MaxListLimit})
	if err != nil {
		a.log().Warn("agent_list_failed", zap.Error(err))
		return
	}
	for _, g := range active {
		a.move(ctx, g)
	}
}

// Play moves in game id if the agent is on turn there.
func (a *Agent) Play(ctx context.Context, id string) {
	g, err := a.games.Load(ctx, id)
	if err != nil {
		a.log().Warn("agent_load_failed", zap.String("game_id", id), zap.Error(err))
		return
	}
	a.move(ctx, g)
}

func (a *Agent) move(ctx context.Context, g *game.GameState) {
	if !g.Status.IsActive() {
		return
	}
	if p, ok := g.CurrentPlayer(); !ok || p.Wallet != a.wallet {
		return
	}
	pos, err := board.Load(g.BoardState)
	if err != nil {
		a.log().Warn("agent_board_invalid", zap.String("game_id", g.GameID), zap.Error(err))
		return
	}
	legal := pos.LegalMoves()
	if len(legal) == 0 {
		return
	}
	uci := a.choose(pos, legal)
	if len(uci) < 4 {
		return
	}
	mv := game.MakeMove{From: uci[:2], To: uci[2:4]}
	if len(uci) == 5 {
		promo := uci[4:]
		mv.Promotion = &promo
	}
	if a.delay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.delay):
		}
	}
	// one id per ply, so the feed and the sweep never play twice
	a.submit(ctx, g, mv, fmt.Sprintf("agent:%s:%d", g.GameID, len(g.MoveHistory)))
}

func (a *Agent) submit(ctx context.Context, g *game.GameState, action game.Action, actionID string) {
	res, err := a.games.Execute(ctx, contract.Submission{
		GameID:   g.GameID,
		ActionID: actionID,
		Sender:   a.wallet,
		Action:   action,
	})
	logger := a.log().With(zap.String("game_id", g.GameID), zap.String("action", action.Name()))
	switch {
	case err == nil:
		if !res.Duplicate {
			logger.Info("agent_action", zap.Int("moves", len(res.State.MoveHistory)))
		}
	case errors.Is(err, context.Canceled):
	case game.KindOf(err) != "" || errors.Is(err, store.ErrConflict):
		// the game moved on since it was read
		logger.Debug("agent_action_stale", zap.Error(err))
	default:
		logger.Warn("agent_action_failed", zap.Error(err))
	}
}
