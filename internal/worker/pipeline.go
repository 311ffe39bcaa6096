// Package worker runs the discovery and scoring pipeline: enumerate
// candidate wallets, screen them, analyze the survivors, and persist
// the ranked results.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/walletradar/internal/faults"
	"github.com/walletradar/internal/retry"
	"github.com/walletradar/internal/storage"
	"github.com/walletradar/internal/types"
)

// ErrPassInProgress is returned when a pass is requested while the
// previous one is still running. Overlapping passes would double the
// provider load for no extra information.
var ErrPassInProgress = errors.New("discovery pass already in progress")

// Discoverer enumerates and screens candidate wallets.
type Discoverer interface {
	DiscoverCandidates(ctx context.Context, seedTokens []string) ([]string, error)
	Screen(ctx context.Context, address string) (bool, error)
	SeedTokens() []string
}

// Analyzer produces a full wallet analysis plus the cumulative realized
// PnL series scoring needs.
type Analyzer interface {
	AnalyzeWalletWithSeries(ctx context.Context, address string) (*types.WalletAnalysis, []float64, error)
}

// Ranker scores an analysis and persists the ranked wallet.
type Ranker interface {
	Rank(ctx context.Context, analysis *types.WalletAnalysis, cumulativePnl []float64) (*types.SuggestedWallet, error)
}

// History appends analysis snapshots. May be nil when ClickHouse is not
// configured; the pipeline then skips history entirely.
type History interface {
	Append(ctx context.Context, rec *storage.AnalysisRecord) error
}

// Config holds pipeline tuning knobs.
type Config struct {
	WorkerCount int
	Retry       retry.Config
}

func (c Config) withDefaults() Config {
	if c.WorkerCount <= 0 {
		// Analysis is provider-bound, not CPU-bound. One worker keeps
		// request pacing trivially correct; raise only with key headroom.
		c.WorkerCount = 1
	}
	return c
}

// PassResult summarizes one discovery pass.
type PassResult struct {
	RunID      string
	Candidates int
	Screened   int
	Ranked     int
	Failed     int
	Exhausted  bool
	Duration   time.Duration
}

// Pipeline wires discovery, analysis, scoring, and history together.
type Pipeline struct {
	discoverer Discoverer
	analyzer   Analyzer
	ranker     Ranker
	history    History
	cfg        Config
	log        zerolog.Logger

	mu      sync.Mutex
	running bool
	now     func() time.Time
}

// NewPipeline creates a pipeline. history may be nil.
func NewPipeline(d Discoverer, a Analyzer, r Ranker, h History, cfg Config, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		discoverer: d,
		analyzer:   a,
		ranker:     r,
		history:    h,
		cfg:        cfg.withDefaults(),
		log:        log,
		now:        time.Now,
	}
}

// RunDiscoveryPass executes one full pass. Only one pass runs at a time;
// a second call while one is active returns ErrPassInProgress. A
// credential pool exhausted fault abandons the pass early rather than
// hammering a provider that has already cut us off.
func (p *Pipeline) RunDiscoveryPass(ctx context.Context) (*PassResult, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil, ErrPassInProgress
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	started := p.now()
	result := &PassResult{RunID: uuid.NewString()}
	log := p.log.With().Str("run_id", result.RunID).Logger()
	log.Info().Msg("discovery pass started")

	candidates, err := p.discoverer.DiscoverCandidates(ctx, p.discoverer.SeedTokens())
	if err != nil {
		if faults.Is(err, faults.CategoryPoolExhausted) {
			result.Exhausted = true
			result.Duration = p.now().Sub(started)
			log.Warn().Err(err).Msg("pass abandoned, credential pool exhausted during enumeration")
			return result, err
		}
		return nil, err
	}
	result.Candidates = len(candidates)

	accepted := p.screen(ctx, log, candidates, result)
	if result.Exhausted {
		result.Duration = p.now().Sub(started)
		log.Warn().Msg("pass abandoned, credential pool exhausted during screening")
		return result, faults.PoolExhausted("worker.RunDiscoveryPass")
	}

	p.analyzeAll(ctx, log, result, accepted)

	result.Duration = p.now().Sub(started)
	if result.Exhausted {
		log.Warn().Int("ranked", result.Ranked).Msg("pass abandoned, credential pool exhausted during analysis")
		return result, faults.PoolExhausted("worker.RunDiscoveryPass")
	}

	log.Info().
		Int("candidates", result.Candidates).
		Int("screened", result.Screened).
		Int("ranked", result.Ranked).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("discovery pass finished")
	return result, nil
}

func (p *Pipeline) screen(ctx context.Context, log zerolog.Logger, candidates []string, result *PassResult) []string {
	var accepted []string
	for _, addr := range candidates {
		if ctx.Err() != nil {
			return accepted
		}
		ok, err := p.discoverer.Screen(ctx, addr)
		if err != nil {
			if faults.Is(err, faults.CategoryPoolExhausted) {
				result.Exhausted = true
				return accepted
			}
			// One bad candidate never sinks the pass.
			result.Failed++
			log.Warn().Err(err).Str("address", addr).Msg("screening failed")
			continue
		}
		if ok {
			result.Screened++
			accepted = append(accepted, addr)
		}
	}
	return accepted
}

func (p *Pipeline) analyzeAll(parent context.Context, log zerolog.Logger, result *PassResult, addresses []string) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		exhausted atomic.Bool
		ranked    atomic.Int64
		failed    atomic.Int64
		wg        sync.WaitGroup
	)

	work := make(chan string)
	for i := 0; i < p.cfg.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for addr := range work {
				if err := p.analyzeOne(ctx, log, result.RunID, addr); err != nil {
					if faults.Is(err, faults.CategoryPoolExhausted) {
						exhausted.Store(true)
						cancel()
						return
					}
					failed.Add(1)
					log.Warn().Err(err).Str("address", addr).Msg("analysis failed")
					continue
				}
				ranked.Add(1)
			}
		}()
	}

feed:
	for _, addr := range addresses {
		select {
		case work <- addr:
		case <-ctx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()

	result.Ranked += int(ranked.Load())
	result.Failed += int(failed.Load())
	if exhausted.Load() {
		result.Exhausted = true
	}
}

func (p *Pipeline) analyzeOne(ctx context.Context, log zerolog.Logger, runID, address string) error {
	var (
		analysis *types.WalletAnalysis
		series   []float64
	)
	err := retry.Do(ctx, p.cfg.Retry, log, "worker.analyzeOne", func(ctx context.Context) error {
		var err error
		analysis, series, err = p.analyzer.AnalyzeWalletWithSeries(ctx, address)
		return err
	})
	if err != nil {
		return err
	}

	wallet, err := p.ranker.Rank(ctx, analysis, series)
	if err != nil {
		return err
	}

	if p.history != nil {
		rec := analysisRecord(runID, analysis, wallet)
		if err := p.history.Append(ctx, rec); err != nil {
			// History is best effort. The ranked row already landed.
			log.Warn().Err(err).Str("address", address).Msg("history append failed")
		}
	}
	return nil
}

func analysisRecord(runID string, a *types.WalletAnalysis, w *types.SuggestedWallet) *storage.AnalysisRecord {
	return &storage.AnalysisRecord{
		Address:        a.Address,
		AnalyzedAt:     a.AnalyzedAt,
		RunID:          runID,
		RealizedPnl:    a.Ledger.RealizedPnl,
		UnrealizedPnl:  a.UnrealizedPnl,
		WinRate:        a.Ledger.WinRatePercent,
		AvgTradeSize:   a.Ledger.AvgTradeSizeUsd,
		TradeCount:     uint32(a.Ledger.TotalClosedTrades),
		OpenPositions:  uint32(len(a.Ledger.OpenPositions)),
		PortfolioValue: a.TotalValueUsd,
		Pnl1d:          a.PnlPercent.Day1,
		Pnl7d:          a.PnlPercent.Day7,
		Pnl30d:         a.PnlPercent.Day30,
		Pnl180d:        a.PnlPercent.Day180,
		Pnl365d:        a.PnlPercent.Day365,
		SmartScore:     w.SmartScore,
		Consistency:    w.ConsistencyScore,
	}
}
