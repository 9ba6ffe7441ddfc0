package agent

import (
	"context"
	"reflect"
	"slices"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/flashchain-chess/internal/board"
	"github.com/park285/flashchain-chess/internal/contract"
	"github.com/park285/flashchain-chess/internal/game"
	"github.com/park285/flashchain-chess/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const bot = "AI-AGENT-001"

var t0 = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

// prefer returns the first of want that is legal, else the first legal move.
func prefer(want ...string) Chooser {
	return func(_ *board.Position, legal []string) string {
		for _, w := range want {
			if slices.Contains(legal, w) {
				return w
			}
		}
		return legal[0]
	}
}

func move(t *testing.T, e *contract.Executor, id, sender, from, to string) {
	t.Helper()
	_, err := e.Execute(context.Background(), contract.Submission{GameID: id, Sender: sender, Action: game.MakeMove{From: from, To: to}})
	if err != nil {
		t.Fatalf("%s%s by %s: %v", from, to, sender, err)
	}
}

func load(t *testing.T, e *contract.Executor, id string) *game.GameState {
	t.Helper()
	g, err := e.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("Load %s: %v", id, err)
	}
	return g
}

func TestRunAnswersCommittedMoves(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	rs := store.NewRedisStore(rdb)
	exec := contract.NewExecutor(rs, nil, contract.WithClock(contract.NewFixedClock(t0)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := exec.Create(ctx, "vs-ai", "A"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := exec.Execute(ctx, contract.Submission{GameID: "vs-ai", Sender: bot, Action: game.Join{}}); err != nil {
		t.Fatalf("Join: %v", err)
	}

	a := New(bot, exec, WithChooser(prefer("e7e5", "b8c6")), WithDelay(0), WithSweep(0))
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, rs) }()

	move(t, exec, "vs-ai", "A", "e2", "e4")
	waitForMoves(t, exec, "vs-ai", 2)
	move(t, exec, "vs-ai", "A", "g1", "f3")
	g := waitForMoves(t, exec, "vs-ai", 4)

	if want := []string{"e2e4", "e7e5", "g1f3", "b8c6"}; !reflect.DeepEqual(g.MoveHistory, want) {
		t.Fatalf("history = %v, want %v", g.MoveHistory, want)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func waitForMoves(t *testing.T, e *contract.Executor, id string, n int) *game.GameState {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		g := load(t, e, id)
		if len(g.MoveHistory) >= n {
			return g
		}
		if time.Now().After(deadline) {
			t.Fatalf("game %s stuck at %v, want %d moves", id, g.MoveHistory, n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSweepJoinsWaitingGamesAndMoves(t *testing.T) {
	ctx := context.Background()
	exec := contract.NewExecutor(store.NewMemoryStore(), nil, contract.WithClock(contract.NewFixedClock(t0)))
	if _, err := exec.Create(ctx, "open", "A"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := exec.Create(ctx, "mine", bot); err != nil {
		t.Fatalf("Create: %v", err)
	}
	a := New(bot, exec, WithChooser(prefer("d7d5")), WithDelay(0), WithAutoJoin(true))

	a.Sweep(ctx)
	g := load(t, exec, "open")
	if !g.Status.IsActive() || g.Players[1] != (game.Player{Wallet: bot, Color: game.Black}) {
		t.Fatalf("agent did not take the black seat: %+v", g)
	}
	if own := load(t, exec, "mine"); !own.Status.IsWaiting() {
		t.Fatalf("agent joined its own game: %+v", own)
	}

	// white to move: nothing to do
	a.Sweep(ctx)
	if g := load(t, exec, "open"); len(g.MoveHistory) != 0 {
		t.Fatalf("agent moved out of turn: %v", g.MoveHistory)
	}

	move(t, exec, "open", "A", "d2", "d4")
	a.Sweep(ctx)
	a.Sweep(ctx)
	g = load(t, exec, "open")
	if !reflect.DeepEqual(g.MoveHistory, []string{"d2d4", "d7d5"}) || g.Turn != 0 {
		t.Fatalf("unexpected game after sweep: %v turn=%d", g.MoveHistory, g.Turn)
	}
}

func TestPlayPromotesAndSkipsFinishedGames(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	exec := contract.NewExecutor(mem, game.NewMachine(), contract.WithClock(contract.NewFixedClock(t0)))
	g := &game.GameState{
		GameID:      "promo",
		Players:     []game.Player{{Wallet: "A", Color: game.White}, {Wallet: bot, Color: game.Black}},
		Turn:        1,
		BoardState:  "7k/8/8/8/8/8/1p6/4K3 b - - 0 30",
		MoveHistory: []string{},
		Status:      game.Active(),
		CreatedAt:   t0,
		LastMoveAt:  t0,
	}
	if err := mem.Create(ctx, g); err != nil {
		t.Fatalf("Create: %v", err)
	}
	a := New(bot, exec, WithChooser(prefer("b2b1n")), WithDelay(0))
	a.Play(ctx, "promo")
	got := load(t, exec, "promo")
	if !reflect.DeepEqual(got.MoveHistory, []string{"b2b1n"}) {
		t.Fatalf("history = %v", got.MoveHistory)
	}
	if pos, err := board.Load(got.BoardState); err != nil || pos.Owner("b1") != "b" {
		t.Fatalf("no black piece on b1 in %s (%v)", got.BoardState, err)
	}

	if _, err := exec.Execute(ctx, contract.Submission{GameID: "promo", Sender: "A", Action: game.Resign{}}); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	a.Play(ctx, "promo")
	if got := load(t, exec, "promo"); len(got.MoveHistory) != 1 {
		t.Fatalf("agent moved in a finished game: %v", got.MoveHistory)
	}
}

func TestPlayLogsMissingGame(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	exec := contract.NewExecutor(store.NewMemoryStore(), nil)
	a := New(bot, exec, WithLogger(zap.New(core)), WithDelay(0))
	a.Play(context.Background(), "nope")
	if logs.FilterMessage("agent_load_failed").Len() != 1 {
		t.Fatalf("expected agent_load_failed, got %v", logs.All())
	}
}

func TestRandomChooserPicksLegalMove(t *testing.T) {
	pos, err := board.Load(board.StartFEN)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	legal := pos.LegalMoves()
	for i := 0; i < 20; i++ {
		if mv := RandomChooser(pos, legal); !slices.Contains(legal, mv) {
			t.Fatalf("RandomChooser returned %q", mv)
		}
	}
}
