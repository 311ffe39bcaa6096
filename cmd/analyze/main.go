// Package main analyzes a single wallet and prints the result as JSON.
// Useful for spot checks without the full daemon.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/walletradar/internal/config"
	"github.com/walletradar/internal/keypool"
	"github.com/walletradar/internal/ledger"
	"github.com/walletradar/internal/logging"
	"github.com/walletradar/internal/marketdata"
	"github.com/walletradar/internal/scoring"
	"github.com/walletradar/internal/types"
)

func main() {
	var (
		address = flag.String("address", "", "wallet address to analyze")
		timeout = flag.Duration("timeout", 2*time.Minute, "overall deadline")
	)
	flag.Parse()

	if *address == "" {
		fmt.Fprintln(os.Stderr, "usage: analyze -address 0x...")
		os.Exit(2)
	}
	if !types.ValidAddress(*address) {
		fmt.Fprintf(os.Stderr, "invalid wallet address: %s\n", *address)
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logging.Setup(cfg.Logging)

	pool, err := keypool.New(keypool.Config{
		Keys:             cfg.KeyPool.Keys,
		ThrottleCooldown: cfg.KeyPool.ThrottleCooldown,
		InvalidCooldown:  cfg.KeyPool.InvalidCooldown,
		GlobalCooldown:   cfg.KeyPool.GlobalCooldown,
		NotifyCooldown:   cfg.KeyPool.NotifyCooldown,
	}, nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create credential pool")
	}

	md := marketdata.New(marketdata.Config{
		BaseURL:          cfg.Provider.BaseURL,
		FallbackPriceURL: cfg.Provider.FallbackPriceURL,
		RequestTimeout:   cfg.Provider.RequestTimeout,
		RequestsPerSec:   cfg.Provider.RequestsPerSec,
	}, pool, nil, log)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	analyzer := ledger.NewAnalyzer(md, cfg.Pipeline.MaxTradeCount, log)
	analysis, series, err := analyzer.AnalyzeWalletWithSeries(ctx, *address)
	if err != nil {
		log.Fatal().Err(err).Str("address", *address).Msg("analysis failed")
	}

	weights := scoring.Weights{
		Pnl30d:      cfg.Scoring.WeightPnl30d,
		WinRate:     cfg.Scoring.WeightWinRate,
		Consistency: cfg.Scoring.WeightConsistency,
	}
	scores := weights.Score(analysis, series)

	out := struct {
		Analysis *types.WalletAnalysis `json:"analysis"`
		Scores   scoring.Scores        `json:"scores"`
	}{analysis, scores}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal().Err(err).Msg("failed to encode result")
	}
}
