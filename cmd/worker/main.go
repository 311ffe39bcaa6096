// Package main runs the discovery daemon: scheduled discovery passes,
// the scoring pipeline, and the read-only status API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/walletradar/internal/alert"
	"github.com/walletradar/internal/api"
	"github.com/walletradar/internal/config"
	"github.com/walletradar/internal/discovery"
	"github.com/walletradar/internal/keypool"
	"github.com/walletradar/internal/ledger"
	"github.com/walletradar/internal/logging"
	"github.com/walletradar/internal/marketdata"
	"github.com/walletradar/internal/scheduler"
	"github.com/walletradar/internal/scoring"
	"github.com/walletradar/internal/storage"
	"github.com/walletradar/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logging.Setup(cfg.Logging)
	log.Info().Msg("walletradar worker starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Outbound alerting is optional; without a bot token the key pool
	// just logs.
	var alerter keypool.Alerter
	if cfg.Alert.TelegramBotToken != "" {
		dispatcher := alert.NewDispatcher(
			alert.NewTelegramNotifier(cfg.Alert.TelegramBotToken, cfg.Alert.TelegramChatID),
			cfg.Alert.QueueSize,
			log,
		)
		defer dispatcher.Close()
		alerter = dispatcher
	}

	pool, err := keypool.New(keypool.Config{
		Keys:             cfg.KeyPool.Keys,
		ThrottleCooldown: cfg.KeyPool.ThrottleCooldown,
		InvalidCooldown:  cfg.KeyPool.InvalidCooldown,
		GlobalCooldown:   cfg.KeyPool.GlobalCooldown,
		NotifyCooldown:   cfg.KeyPool.NotifyCooldown,
	}, alerter, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create credential pool")
	}

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Postgres")
	}
	defer postgres.Close()

	wallets := storage.NewSuggestedWalletRepository(postgres)
	watchlist := storage.NewWatchlistRepository(postgres)

	// Redis caching and ClickHouse history are optional. The pipeline
	// runs without them, just with more provider calls and no trend data.
	var (
		cache marketdata.Cache
		seen  discovery.SeenSet
	)
	if redis, err := storage.NewRedisCache(&cfg.Database.Redis); err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, running without caches")
	} else {
		defer redis.Close()
		cache = storage.NewMarketCache(redis, cfg.Provider.PriceCacheTTL, cfg.Provider.ValueCacheTTL)
		seen = storage.NewSeenAddresses(redis, cfg.Discovery.SeenTTL)
	}

	var history worker.History
	if ch, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse); err != nil {
		log.Warn().Err(err).Msg("ClickHouse unavailable, running without analysis history")
	} else {
		defer ch.Close()
		if err := ch.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ensure ClickHouse schema")
		}
		history = storage.NewAnalysisHistoryRepository(ch)
	}

	md := marketdata.New(marketdata.Config{
		BaseURL:          cfg.Provider.BaseURL,
		FallbackPriceURL: cfg.Provider.FallbackPriceURL,
		RequestTimeout:   cfg.Provider.RequestTimeout,
		RequestsPerSec:   cfg.Provider.RequestsPerSec,
	}, pool, cache, log)

	discoverer := discovery.NewWorker(md, watchlist, seen, discovery.Config{
		SeedTokens:      cfg.Discovery.SeedTokens,
		HoldersPerToken: cfg.Discovery.HoldersPerToken,
		HolderPageSize:  cfg.Discovery.HolderPageSize,
		CapitalFloorUsd: cfg.Discovery.CapitalFloorUsd,
		MinTradeCount:   cfg.Discovery.MinTradeCount,
		ActivityWindow:  cfg.Discovery.ActivityWindow,
		InterCallDelay:  cfg.Discovery.InterCallDelay,
	}, log)

	analyzer := ledger.NewAnalyzer(md, cfg.Pipeline.MaxTradeCount, log)
	ranker := scoring.NewRanker(scoring.Weights{
		Pnl30d:      cfg.Scoring.WeightPnl30d,
		WinRate:     cfg.Scoring.WeightWinRate,
		Consistency: cfg.Scoring.WeightConsistency,
	}, wallets, log)

	pipeline := worker.NewPipeline(discoverer, analyzer, ranker, history, worker.Config{
		WorkerCount: cfg.Pipeline.WorkerCount,
	}, log)

	sched := scheduler.New(ctx, pipeline, log)
	if err := sched.Register(cfg.Pipeline.Schedule); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Pipeline.Schedule).Msg("failed to register schedule")
	}
	sched.Start()
	defer sched.Stop()

	server := api.NewServer(&api.ServerConfig{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, wallets, pool, log)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("api server stopped")
			stop()
		}
	}()

	if cfg.Pipeline.RunOnStart {
		go sched.RunNow()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("api server shutdown failed")
	}
}
