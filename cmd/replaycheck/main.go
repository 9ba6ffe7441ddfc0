package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/park285/flashchain-chess/internal/audit"
	"github.com/park285/flashchain-chess/internal/game"
	"github.com/park285/flashchain-chess/internal/rules/chessrules"
	"github.com/park285/flashchain-chess/internal/store"
)

func main() {
	rules := flag.String("rules", envDefault("CHESS_RULES", "standard"), "ownership or standard")
	flag.Parse()
	ids := flag.Args()
	if len(ids) == 0 {
		log.Fatal("usage: replaycheck [-rules standard] <game-id>...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	rdb, err := store.Dial(ctx, os.Getenv("REDIS_URL"))
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	s := store.NewRedisStore(rdb)
	defer s.Close()

	var r game.Rules = chessrules.New()
	if strings.EqualFold(*rules, "ownership") {
		r = game.OwnershipRules{}
	}
	m := game.NewMachine(game.WithRules(r))

	failed := 0
	for _, id := range ids {
		g, err := s.Load(ctx, id)
		if err != nil {
			log.Printf("%s: load: %v", id, err)
			failed++
			continue
		}
		recs, err := s.Events(ctx, id, 0)
		if err != nil {
			log.Printf("%s: events: %v", id, err)
			failed++
			continue
		}
		rep, err := audit.Replay(m, g, recs)
		if err != nil {
			log.Printf("%s: replay: %v", id, err)
			failed++
			continue
		}
		if rep.OK() {
			fmt.Printf("%s ok moves=%d fen=%q\n", id, rep.Moves, rep.ReplayedFEN)
			continue
		}
		failed++
		fmt.Printf("%s MISMATCH moves=%d\n", id, rep.Moves)
		for _, line := range rep.Mismatches {
			fmt.Printf("  - %s\n", line)
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func envDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
