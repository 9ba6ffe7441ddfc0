package game

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/flashchain-chess/internal/board"
)

// DefaultTimeout is the inactivity window used when none is configured.
const DefaultTimeout = 24 * time.Hour

// Machine is the only mutator of GameState. Apply is a pure function of its
// inputs: no clock reads, no I/O, no hidden counters.
type Machine struct {
	rules   Rules
	timeout time.Duration
}

type Option func(*Machine)

// WithRules swaps the move legality checker.
func WithRules(r Rules) Option {
	return func(m *Machine) {
		if r != nil {
			m.rules = r
		}
	}
}

// WithTimeout sets how long the player on turn may stay idle before the
// opponent can claim the game.
func WithTimeout(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.timeout = d
		}
	}
}

func NewMachine(opts ...Option) *Machine {
	m := &Machine{rules: OwnershipRules{}, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) Timeout() time.Duration { return m.timeout }

// Apply validates action from sender against state at time now. On success it
// returns a fresh state and the events describing the transition; on failure
// it returns a *Error and state is left untouched.
func (m *Machine) Apply(state *GameState, action Action, sender string, now time.Time) (*GameState, []Event, error) {
	if state == nil {
		return nil, nil, newError(KindUnknownGame, "nil state")
	}
	switch a := action.(type) {
	case MakeMove:
		return m.makeMove(state, a, sender, now)
	case *MakeMove:
		if a == nil {
			return nil, nil, newError(KindMalformedAction, "nil MakeMove")
		}
		return m.makeMove(state, *a, sender, now)
	case ClaimTimeout, *ClaimTimeout:
		return m.claimTimeout(state, now)
	case Join, *Join:
		return m.join(state, sender, now)
	case Resign, *Resign:
		return m.resign(state, sender)
	case nil:
		return nil, nil, newError(KindMalformedAction, "nil action")
	default:
		return nil, nil, newError(KindMalformedAction, "unsupported action "+action.Name())
	}
}

func requireActive(state *GameState) error {
	if !state.Status.IsActive() {
		return newError(KindInvalidGameState, fmt.Sprintf("game %s is %s", state.GameID, strings.ToLower(string(state.Status.Kind))))
	}
	return nil
}

func (m *Machine) makeMove(state *GameState, a MakeMove, sender string, now time.Time) (*GameState, []Event, error) {
	if err := requireActive(state); err != nil {
		return nil, nil, err
	}
	mover, ok := state.CurrentPlayer()
	if !ok {
		return nil, nil, newError(KindInvalidGameState, "turn index out of range")
	}
	if mover.Wallet != sender {
		return nil, nil, newError(KindNotYourTurn, "waiting for "+mover.Wallet)
	}

	mv, err := normalizeMove(a)
	if err != nil {
		return nil, nil, err
	}
	pos, err := board.Load(state.BoardState)
	if err != nil {
		return nil, nil, newError(KindInvalidGameState, "corrupt board: "+err.Error())
	}
	switch pos.Owner(mv.From) {
	case "":
		return nil, nil, newError(KindIllegalMove, "no piece on "+mv.From)
	case string(mover.Color):
	default:
		return nil, nil, newError(KindIllegalMove, mv.From+" does not hold your piece")
	}
	// clients attach a promotion piece to every move; it only counts on the last rank
	if !pos.IsPromotion(mv.From, mv.To) {
		mv.Promotion = ""
	} else if mv.Promotion == "" {
		mv.Promotion = "q"
	}
	if !m.rules.IsLegal(state.BoardState, mv.From, mv.To, mover.Color) {
		return nil, nil, newError(KindIllegalMove, mv.Notation()+" rejected by rules")
	}
	nextPos, err := pos.Apply(mv.From, mv.To, mv.Promotion)
	if err != nil {
		return nil, nil, newError(KindIllegalMove, err.Error())
	}

	next := state.Clone()
	next.BoardState = nextPos.String()
	next.MoveHistory = append(next.MoveHistory, mv.Notation())
	next.Turn = (state.Turn + 1) % len(state.Players)
	next.LastMoveAt = now

	events := []Event{MoveApplied{GameID: state.GameID, FEN: next.BoardState, Player: sender, Move: mv.Notation()}}

	if rep, ok := m.rules.(OutcomeReporter); ok {
		switch rep.OutcomeAfter(state.BoardState, mv) {
		case OutcomeCheckmate:
			next.Status = Finished(sender)
			next.Result = ResultCheckmate
		case OutcomeStalemate:
			next.Status = Finished("")
			next.Result = ResultStalemate
		case OutcomeDraw:
			next.Status = Finished("")
			next.Result = ResultDraw
		}
	}
	if next.Status.IsFinished() {
		events = append(events, GameEnded{GameID: state.GameID, Winner: next.Status.Winner, Reason: next.Result})
	}
	return next, events, nil
}

func normalizeMove(a MakeMove) (Move, error) {
	mv := Move{
		From: strings.ToLower(strings.TrimSpace(a.From)),
		To:   strings.ToLower(strings.TrimSpace(a.To)),
	}
	if _, err := board.ParseSquare(mv.From); err != nil {
		return Move{}, newError(KindIllegalMove, "bad origin "+a.From)
	}
	if _, err := board.ParseSquare(mv.To); err != nil {
		return Move{}, newError(KindIllegalMove, "bad destination "+a.To)
	}
	if mv.From == mv.To {
		return Move{}, newError(KindIllegalMove, "origin equals destination")
	}
	if a.Promotion != nil {
		p := strings.ToLower(strings.TrimSpace(*a.Promotion))
		switch p {
		case "":
		case "q", "r", "b", "n":
			mv.Promotion = p
		default:
			return Move{}, newError(KindIllegalMove, "bad promotion "+*a.Promotion)
		}
	}
	return mv, nil
}

func (m *Machine) claimTimeout(state *GameState, now time.Time) (*GameState, []Event, error) {
	if err := requireActive(state); err != nil {
		return nil, nil, err
	}
	if len(state.Players) != 2 {
		return nil, nil, newError(KindInvalidGameState, "timeout needs two players")
	}
	if _, ok := state.CurrentPlayer(); !ok {
		return nil, nil, newError(KindInvalidGameState, "turn index out of range")
	}
	elapsed := now.Sub(state.LastMoveAt)
	if elapsed <= m.timeout {
		return nil, nil, newError(KindTimeoutNotElapsed, fmt.Sprintf("%s of %s elapsed", elapsed, m.timeout))
	}
	winner := state.Players[(state.Turn+1)%2].Wallet
	next := state.Clone()
	next.Status = Finished(winner)
	next.Result = ResultTimeout
	return next, []Event{GameEnded{GameID: state.GameID, Winner: next.Status.Winner, Reason: ResultTimeout}}, nil
}

func (m *Machine) join(state *GameState, sender string, now time.Time) (*GameState, []Event, error) {
	if !state.Status.IsWaiting() {
		return nil, nil, newError(KindInvalidGameState, "game "+state.GameID+" is not waiting for players")
	}
	if strings.TrimSpace(sender) == "" {
		return nil, nil, newError(KindNotAPlayer, "empty wallet")
	}
	if state.Seat(sender) >= 0 {
		return nil, nil, newError(KindAlreadyJoined, sender)
	}
	if len(state.Players) != 1 {
		return nil, nil, newError(KindInvalidGameState, "waiting game must have one seat taken")
	}
	next := state.Clone()
	next.Players = append(next.Players, Player{Wallet: sender, Color: state.Players[0].Color.Opponent()})
	// white always moves first
	if next.Players[0].Color != White {
		next.Players[0], next.Players[1] = next.Players[1], next.Players[0]
	}
	next.Status = Active()
	next.BoardState = board.StartFEN
	next.MoveHistory = []string{}
	next.Turn = 0
	next.LastMoveAt = now
	return next, []Event{GameStarted{GameID: state.GameID, White: next.Players[0].Wallet, Black: next.Players[1].Wallet}}, nil
}

func (m *Machine) resign(state *GameState, sender string) (*GameState, []Event, error) {
	if err := requireActive(state); err != nil {
		return nil, nil, err
	}
	if state.Seat(sender) < 0 {
		return nil, nil, newError(KindNotAPlayer, sender)
	}
	next := state.Clone()
	next.Status = Finished(state.Opponent(sender))
	next.Result = ResultResignation
	return next, []Event{GameEnded{GameID: state.GameID, Winner: next.Status.Winner, Reason: ResultResignation}}, nil
}
