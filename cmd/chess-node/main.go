package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/park285/flashchain-chess/internal/agent"
	"github.com/park285/flashchain-chess/internal/archive"
	appcfg "github.com/park285/flashchain-chess/internal/config"
	"github.com/park285/flashchain-chess/internal/contract"
	"github.com/park285/flashchain-chess/internal/game"
	"github.com/park285/flashchain-chess/internal/msgcat"
	"github.com/park285/flashchain-chess/internal/obslog"
	"github.com/park285/flashchain-chess/internal/relay"
	"github.com/park285/flashchain-chess/internal/rules/chessrules"
	"github.com/park285/flashchain-chess/internal/store"
	"github.com/park285/flashchain-chess/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(cfg.Log); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := store.Dial(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis_init_failed", zap.Error(err))
	}
	games := store.NewRedisStore(rdb, store.WithEventTTL(cfg.EventTTL))
	defer games.Close()

	machine := game.NewMachine(game.WithTimeout(cfg.GameTimeout), game.WithRules(rulesFor(cfg.Rules)))
	execOpts := []contract.Option{contract.WithLogger(logger)}
	if cfg.DatabaseURL != "" {
		repo, err := archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("archive_init_failed", zap.Error(err))
		}
		defer repo.Close()
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Fatal("archive_schema_failed", zap.Error(err))
		}
		execOpts = append(execOpts, contract.WithArchive(repo))
	}
	exec := contract.NewExecutor(games, machine, execOpts...)

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("messages_init_failed", zap.Error(err))
	}

	logger.Info("node_start",
		zap.String("rules", cfg.Rules),
		zap.Duration("game_timeout", cfg.GameTimeout),
		zap.Bool("archive", cfg.DatabaseURL != ""),
		zap.Bool("relay", cfg.IndexerURL != ""),
		zap.Bool("agent", cfg.AgentWallet != ""),
	)

	g, gctx := errgroup.WithContext(ctx)
	api := transport.NewAPI(exec, games, cat, transport.WithGameTimeout(cfg.GameTimeout))
	g.Go(func() error { return api.Serve(gctx, cfg.APIAddr) })
	stream := transport.NewStream(exec, games, cat)
	g.Go(func() error { return stream.Serve(gctx, cfg.WSAddr) })
	if cfg.IndexerURL != "" {
		r := relay.New(cfg.IndexerURL, relay.WithToken(cfg.IndexerToken), relay.WithRetry(cfg.IndexerMaxRetries))
		g.Go(func() error { return r.Run(gctx, games) })
	}
	if cfg.AgentWallet != "" {
		bot := agent.New(cfg.AgentWallet, exec,
			agent.WithDelay(cfg.AgentDelay),
			agent.WithAutoJoin(cfg.AgentAutoJoin),
			agent.WithLogger(logger.Named("agent")),
		)
		g.Go(func() error { return bot.Run(gctx, games) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("node_stopped", zap.Error(err))
		return
	}
	logger.Info("node_stopped")
}

func rulesFor(name string) game.Rules {
	if name == appcfg.RulesOwnership {
		return game.OwnershipRules{}
	}
	return chessrules.New()
}
