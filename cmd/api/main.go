package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"duox/internal/cache"
	"duox/internal/config"
	"duox/internal/database"
	"duox/internal/game"
	"duox/internal/logger"
	"duox/internal/metrics"
	"duox/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	logger.Init(cfg.LogLevel, cfg.LogFormat == "json")
	log := logger.Component("api")

	fairness := game.FairnessConfig{
		HouseEdge:     cfg.Game.HouseEdge,
		MinMultiplier: cfg.Game.MinMultiplier,
		MaxMultiplier: cfg.Game.MaxMultiplier,
	}

	recorder := metrics.NewRecorder()
	hub := game.NewHub()
	recorder.TrackClients(hub.GetClientCount)

	round := game.NewRoundCoordinator(fairness, game.WithCoordinatorObserver(recorder))

	var (
		archivers []game.RoundArchiver
		opts      = []server.Option{server.WithMetrics(recorder.Handler())}
	)

	// Both stores are optional; the game runs without persistence.
	if redisService := cache.New(cfg.Redis); redisService != nil {
		store := cache.NewRoundStore(redisService.GetClient(), cfg.Game.HistorySize, cache.DefaultRoundTTL)
		archivers = append(archivers, store)
		opts = append(opts, server.WithCache(redisService, store))
	}
	if db, err := database.New(cfg.Database); err != nil {
		log.Warn("running without database", "error", err)
	} else {
		repo := database.NewRoundRepository(db.Pool())
		archivers = append(archivers, repo)
		opts = append(opts, server.WithDatabase(db, repo))
	}

	srv := server.New(round, hub, fairness, opts...)
	srv.RegisterFiberRoutes()

	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	scheduler := game.NewScheduler(round, hub, game.SchedulerConfig{
		BettingWindow:  cfg.Game.BettingWindow,
		CountdownTick:  cfg.Game.CountdownTick,
		MultiplierTick: cfg.Game.MultiplierTick,
		EndHold:        cfg.Game.EndHold,
	},
		game.WithArchivers(archivers...),
		game.WithSchedulerObserver(recorder),
		game.WithLogger(logger.Component("scheduler")),
	)

	loopCtx, cancelLoop := context.WithCancel(context.Background())
	defer cancelLoop()
	loopErr := make(chan error, 1)
	go func() { loopErr <- scheduler.Run(loopCtx) }()

	go func() {
		log.Info("server started", "port", cfg.Port)
		if err := srv.Listen(":" + cfg.Port); err != nil {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-quit:
		log.Info("shutdown requested, finishing current round", "signal", sig.String(), "grace", cfg.Game.ShutdownGrace)
		scheduler.Drain()
		select {
		case err := <-loopErr:
			if err != nil {
				exitCode = 1
			}
		case <-time.After(cfg.Game.ShutdownGrace):
			log.Warn("round did not finish within grace period, abandoning", "round_id", round.RoundID())
			cancelLoop()
			<-loopErr
		}

	case err := <-loopErr:
		// the loop only returns on its own after a phase failure
		log.Error("game loop stopped", "error", err, "phase", round.Phase())
		exitCode = 1
	}

	cancelLoop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown", "error", err)
	}
	stopHub()

	log.Info("server exited", "code", exitCode)
	os.Exit(exitCode)
}
