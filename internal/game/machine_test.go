package game

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/park285/flashchain-chess/internal/board"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func strp(s string) *string { return &s }

func activeGame(t *testing.T, m *Machine) *GameState {
	t.Helper()
	g := NewGame("g1", "A", t0)
	next, events, err := m.Apply(g, Join{}, "B", t0)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected GameStarted, got %v", events)
	}
	return next
}

func mustApply(t *testing.T, m *Machine, g *GameState, a Action, sender string, now time.Time) (*GameState, []Event) {
	t.Helper()
	next, events, err := m.Apply(g, a, sender, now)
	if err != nil {
		t.Fatalf("Apply(%s by %s): %v", a.Name(), sender, err)
	}
	return next, events
}

func expectKind(t *testing.T, m *Machine, g *GameState, a Action, sender string, now time.Time, want *Error) {
	t.Helper()
	before := g.Clone()
	next, events, err := m.Apply(g, a, sender, now)
	if !errors.Is(err, want) {
		t.Fatalf("Apply(%s by %s): expected %s, got %v", a.Name(), sender, want.Kind, err)
	}
	if next != nil || events != nil {
		t.Fatalf("failed Apply returned state=%v events=%v", next, events)
	}
	if !reflect.DeepEqual(before, g) {
		t.Fatalf("failed Apply mutated state:\nbefore %+v\nafter  %+v", before, g)
	}
}

func TestJoinActivatesGame(t *testing.T) {
	m := NewMachine()
	g := NewGame("g1", "A", t0)
	if !g.Status.IsWaiting() || len(g.Players) != 1 {
		t.Fatalf("unexpected new game: %+v", g)
	}
	later := t0.Add(time.Minute)
	next, events := mustApply(t, m, g, Join{}, "B", later)
	if !next.Status.IsActive() || next.Turn != 0 || next.BoardState != board.StartFEN {
		t.Fatalf("unexpected active game: %+v", next)
	}
	if next.Players[0] != (Player{Wallet: "A", Color: White}) || next.Players[1] != (Player{Wallet: "B", Color: Black}) {
		t.Fatalf("unexpected seats: %+v", next.Players)
	}
	if !next.LastMoveAt.Equal(later) {
		t.Fatalf("LastMoveAt should be game start")
	}
	want := GameStarted{GameID: "g1", White: "A", Black: "B"}
	if events[0] != want {
		t.Fatalf("got %+v want %+v", events[0], want)
	}
	if !g.Status.IsWaiting() || len(g.Players) != 1 {
		t.Fatalf("input mutated by Join")
	}
}

func TestJoinRejections(t *testing.T) {
	m := NewMachine()
	g := NewGame("g1", "A", t0)
	expectKind(t, m, g, Join{}, "A", t0, ErrAlreadyJoined)
	active := activeGame(t, m)
	expectKind(t, m, active, Join{}, "C", t0, ErrInvalidGameState)
}

func TestWaitingGameRejectsPlay(t *testing.T) {
	m := NewMachine()
	g := NewGame("g1", "A", t0)
	expectKind(t, m, g, MakeMove{From: "e2", To: "e4"}, "A", t0, ErrInvalidGameState)
	expectKind(t, m, g, ClaimTimeout{}, "A", t0.Add(48*time.Hour), ErrInvalidGameState)
	expectKind(t, m, g, Resign{}, "A", t0, ErrInvalidGameState)
}

func TestScenarioMoveThenImpersonation(t *testing.T) {
	m := NewMachine()
	g := activeGame(t, m)
	now := t0.Add(time.Hour)
	next, events := mustApply(t, m, g, MakeMove{From: "e2", To: "e4"}, "A", now)
	if next.Turn != 1 {
		t.Fatalf("turn = %d, want 1", next.Turn)
	}
	if !reflect.DeepEqual(next.MoveHistory, []string{"e2e4"}) {
		t.Fatalf("history = %v", next.MoveHistory)
	}
	wantFEN := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	if next.BoardState != wantFEN {
		t.Fatalf("board = %s", next.BoardState)
	}
	if len(events) != 1 {
		t.Fatalf("expected one event, got %v", events)
	}
	ev, ok := events[0].(MoveApplied)
	if !ok || ev.FEN != wantFEN || ev.Player != "A" || ev.GameID != "g1" || ev.Move != "e2e4" {
		t.Fatalf("unexpected event %+v", events[0])
	}
	// B's turn now; a submission carrying A's wallet is rejected
	expectKind(t, m, next, MakeMove{From: "e2", To: "e4"}, "A", now, ErrNotYourTurn)
}

func TestNotYourTurnForEverySeatMismatch(t *testing.T) {
	m := NewMachine()
	g := activeGame(t, m)
	senders := []string{"B", "C", ""}
	for i := 0; i < 4; i++ {
		for _, s := range senders {
			if s == g.Players[g.Turn].Wallet {
				continue
			}
			expectKind(t, m, g, MakeMove{From: "a2", To: "a3"}, s, t0, ErrNotYourTurn)
		}
		mover := g.Players[g.Turn].Wallet
		moves := []MakeMove{{From: "g1", To: "f3"}, {From: "g8", To: "f6"}, {From: "f3", To: "g1"}, {From: "f6", To: "g8"}}
		g, _ = mustApply(t, m, g, moves[i], mover, t0)
		senders = []string{mover, "C", ""}
	}
}

func TestSuccessfulMoveInvariants(t *testing.T) {
	m := NewMachine()
	g := activeGame(t, m)
	moves := []MakeMove{
		{From: "e2", To: "e4"}, {From: "e7", To: "e5"},
		{From: "g1", To: "f3"}, {From: "b8", To: "c6"},
		{From: "f1", To: "c4"}, {From: "g8", To: "f6"},
	}
	for i, mv := range moves {
		now := t0.Add(time.Duration(i+1) * time.Minute)
		before := g.Clone()
		next, _ := mustApply(t, m, g, mv, g.Players[g.Turn].Wallet, now)
		if next.Turn != (before.Turn+1)%2 {
			t.Fatalf("move %d: turn %d -> %d", i, before.Turn, next.Turn)
		}
		if len(next.MoveHistory) != len(before.MoveHistory)+1 {
			t.Fatalf("move %d: history did not grow by one", i)
		}
		if !next.LastMoveAt.Equal(now) {
			t.Fatalf("move %d: LastMoveAt not updated", i)
		}
		if !reflect.DeepEqual(before, g) {
			t.Fatalf("move %d: input mutated", i)
		}
		g = next
	}
}

func TestIllegalMoves(t *testing.T) {
	m := NewMachine()
	g := activeGame(t, m)
	cases := []MakeMove{
		{From: "e3", To: "e4"}, // empty origin
		{From: "e7", To: "e5"}, // opponent's piece
		{From: "e1", To: "d1"}, // own piece on target
		{From: "z9", To: "e4"}, // bad square
		{From: "e2", To: "e2"}, // no-op
	}
	for _, c := range cases {
		expectKind(t, m, g, c, "A", t0, ErrIllegalMove)
	}
}

func TestPromotionDefaultsToQueen(t *testing.T) {
	m := NewMachine()
	g := activeGame(t, m)
	g.BoardState = "8/4P3/8/8/8/8/8/k6K w - - 0 40"
	next, _ := mustApply(t, m, g, MakeMove{From: "e7", To: "e8"}, "A", t0)
	if next.MoveHistory[0] != "e7e8q" {
		t.Fatalf("history = %v", next.MoveHistory)
	}
	next, _ = mustApply(t, m, g, MakeMove{From: "e7", To: "e8", Promotion: strp("R")}, "A", t0)
	if next.MoveHistory[0] != "e7e8r" || next.BoardState != "4R3/8/8/8/8/8/8/k6K b - - 0 40" {
		t.Fatalf("unexpected promotion result: %v %s", next.MoveHistory, next.BoardState)
	}
	expectKind(t, m, g, MakeMove{From: "e7", To: "e8", Promotion: strp("k")}, "A", t0, ErrIllegalMove)
}

func TestPromotionIgnoredOffTheLastRank(t *testing.T) {
	m := NewMachine()
	g := activeGame(t, m)
	next, events := mustApply(t, m, g, MakeMove{From: "e2", To: "e4", Promotion: strp("q")}, "A", t0)
	if !reflect.DeepEqual(next.MoveHistory, []string{"e2e4"}) {
		t.Fatalf("history = %v", next.MoveHistory)
	}
	if next.BoardState != "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1" {
		t.Fatalf("board = %s", next.BoardState)
	}
	if ev := events[0].(MoveApplied); ev.Move != "e2e4" {
		t.Fatalf("event move = %s", ev.Move)
	}
	next, _ = mustApply(t, m, next, MakeMove{From: "g8", To: "f6", Promotion: strp("n")}, "B", t0)
	if next.MoveHistory[1] != "g8f6" {
		t.Fatalf("history = %v", next.MoveHistory)
	}
}

type fixedRules struct {
	legal   bool
	outcome Outcome
}

func (r fixedRules) IsLegal(string, string, string, Color) bool { return r.legal }
func (r fixedRules) OutcomeAfter(string, Move) Outcome         { return r.outcome }

func TestRulesRejectionIsIllegalMove(t *testing.T) {
	m := NewMachine(WithRules(fixedRules{legal: false}))
	g := activeGame(t, m)
	expectKind(t, m, g, MakeMove{From: "e2", To: "e4"}, "A", t0, ErrIllegalMove)
}

func TestOutcomeEndsGame(t *testing.T) {
	cases := []struct {
		outcome Outcome
		winner  *string
		result  Result
	}{
		{OutcomeCheckmate, strp("A"), ResultCheckmate},
		{OutcomeStalemate, nil, ResultStalemate},
		{OutcomeDraw, nil, ResultDraw},
	}
	for _, c := range cases {
		m := NewMachine(WithRules(fixedRules{legal: true, outcome: c.outcome}))
		g := activeGame(t, m)
		next, events := mustApply(t, m, g, MakeMove{From: "e2", To: "e4"}, "A", t0)
		if !next.Status.IsFinished() || next.Result != c.result {
			t.Fatalf("outcome %d: status=%+v result=%s", c.outcome, next.Status, next.Result)
		}
		if !reflect.DeepEqual(next.Status.Winner, c.winner) {
			t.Fatalf("outcome %d: winner %v want %v", c.outcome, next.Status.Winner, c.winner)
		}
		if len(events) != 2 {
			t.Fatalf("outcome %d: expected MoveApplied+GameEnded, got %v", c.outcome, events)
		}
		end, ok := events[1].(GameEnded)
		if !ok || !reflect.DeepEqual(end.Winner, c.winner) || end.Reason != c.result {
			t.Fatalf("outcome %d: unexpected end event %+v", c.outcome, events[1])
		}
		expectKind(t, m, next, MakeMove{From: "e7", To: "e5"}, "B", t0, ErrInvalidGameState)
	}
}

func TestClaimTimeoutBoundary(t *testing.T) {
	timeout := 24 * time.Hour
	m := NewMachine(WithTimeout(timeout))
	g := activeGame(t, m)
	g, _ = mustApply(t, m, g, MakeMove{From: "e2", To: "e4"}, "A", t0)

	expectKind(t, m, g, ClaimTimeout{}, "A", t0.Add(timeout-time.Second), ErrTimeoutNotElapsed)
	expectKind(t, m, g, ClaimTimeout{}, "A", t0.Add(timeout), ErrTimeoutNotElapsed)

	next, events := mustApply(t, m, g, ClaimTimeout{}, "relayer", t0.Add(timeout+time.Second))
	// B was on turn and forfeits
	if !next.Status.IsFinished() || next.Status.Winner == nil || *next.Status.Winner != "A" {
		t.Fatalf("unexpected status %+v", next.Status)
	}
	if next.Result != ResultTimeout {
		t.Fatalf("result = %s", next.Result)
	}
	want := GameEnded{GameID: "g1", Winner: strp("A"), Reason: ResultTimeout}
	if len(events) != 1 || !reflect.DeepEqual(events[0], want) {
		t.Fatalf("events = %+v", events)
	}
}

func TestClaimTimeoutRejectsCorruptTurn(t *testing.T) {
	m := NewMachine()
	late := t0.Add(48 * time.Hour)
	for _, turn := range []int{-2, -1, 2, 5} {
		g := activeGame(t, m)
		g.Turn = turn
		expectKind(t, m, g, ClaimTimeout{}, "A", late, ErrInvalidGameState)
	}
}

func TestGameEndedBeforeAnyMoveKeepsEmptyHistory(t *testing.T) {
	m := NewMachine()
	g := activeGame(t, m)
	for _, a := range []Action{Resign{}, ClaimTimeout{}} {
		next, _ := mustApply(t, m, g, a, "A", t0.Add(48*time.Hour))
		if next.MoveHistory == nil || len(next.MoveHistory) != 0 {
			t.Fatalf("%s: history = %#v", a.Name(), next.MoveHistory)
		}
		raw, err := json.Marshal(next)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if !strings.Contains(string(raw), `"move_history":[]`) {
			t.Fatalf("%s: unexpected json %s", a.Name(), raw)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	g := NewGame("g1", "A", t0)
	c := g.Clone()
	if !reflect.DeepEqual(g, c) {
		t.Fatalf("clone differs:
%+v
%+v", g, c)
	}
	c.Players[0].Wallet = "Z"
	c.MoveHistory = append(c.MoveHistory, "e2e4")
	if g.Players[0].Wallet != "A" || len(g.MoveHistory) != 0 {
		t.Fatalf("clone shares slices with its source: %+v", g)
	}
	w := "A"
	g.Status = Status{Kind: StatusFinished, Winner: &w}
	c = g.Clone()
	*c.Status.Winner = "B"
	if *g.Status.Winner != "A" {
		t.Fatal("clone shares the winner pointer")
	}
}

func TestTerminalStateRejectsEverything(t *testing.T) {
	m := NewMachine()
	g := activeGame(t, m)
	done, _ := mustApply(t, m, g, Resign{}, "B", t0)
	if *done.Status.Winner != "A" || done.Result != ResultResignation {
		t.Fatalf("unexpected resignation result %+v", done)
	}
	for _, a := range []Action{MakeMove{From: "e2", To: "e4"}, ClaimTimeout{}, Resign{}, Join{}} {
		expectKind(t, m, done, a, "A", t0.Add(72*time.Hour), ErrInvalidGameState)
	}
}

func TestResignRequiresSeat(t *testing.T) {
	m := NewMachine()
	g := activeGame(t, m)
	expectKind(t, m, g, Resign{}, "C", t0, ErrNotAPlayer)
}

func TestApplyIsDeterministic(t *testing.T) {
	m := NewMachine()
	g := activeGame(t, m)
	a := MakeMove{From: "d2", To: "d4"}
	n1, e1, err1 := m.Apply(g, a, "A", t0)
	n2, e2, err2 := m.Apply(g, a, "A", t0)
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v %v", err1, err2)
	}
	if !reflect.DeepEqual(n1, n2) || !reflect.DeepEqual(e1, e2) {
		t.Fatalf("replay diverged")
	}
	_, _, f1 := m.Apply(g, a, "B", t0)
	_, _, f2 := m.Apply(g, a, "B", t0)
	if f1.Error() != f2.Error() {
		t.Fatalf("failure replay diverged: %v vs %v", f1, f2)
	}
}

func TestApplyNilInputs(t *testing.T) {
	m := NewMachine()
	if _, _, err := m.Apply(nil, ClaimTimeout{}, "A", t0); !errors.Is(err, ErrUnknownGame) {
		t.Fatalf("expected ErrUnknownGame, got %v", err)
	}
	g := activeGame(t, m)
	if _, _, err := m.Apply(g, nil, "A", t0); !errors.Is(err, ErrMalformedAction) {
		t.Fatalf("expected ErrMalformedAction, got %v", err)
	}
}
