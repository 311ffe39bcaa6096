// Package scoring turns deep-analysis output into a consistency score and a
// composite smart score, and persists ranked wallet records.
package scoring

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/walletradar/internal/types"
)

// Weights blends the smart-score inputs. The values are policy, not
// contract; they ship with the defaults the product settled on.
type Weights struct {
	Pnl30d      float64
	WinRate     float64
	Consistency float64
}

// DefaultWeights returns the shipped smart-score blend.
func DefaultWeights() Weights {
	return Weights{Pnl30d: 0.4, WinRate: 0.3, Consistency: 0.3}
}

// Scores is the output of scoring one wallet analysis.
type Scores struct {
	Consistency float64
	Smart       float64
}

// ConsistencyScore measures how smooth a cumulative-PnL series is, on a
// 0-100 scale. It compares the population standard deviation of the series
// against its final magnitude, so a steadily climbing curve scores high
// regardless of absolute scale.
func ConsistencyScore(cumulativePnl []float64) float64 {
	if len(cumulativePnl) < 2 {
		return 0
	}

	var sum float64
	for _, v := range cumulativePnl {
		sum += v
	}
	mean := sum / float64(len(cumulativePnl))

	var variance float64
	for _, v := range cumulativePnl {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(cumulativePnl))
	sigma := math.Sqrt(variance)

	last := cumulativePnl[len(cumulativePnl)-1]
	k := math.Max(100, math.Abs(last))

	score := 1 - sigma/k
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score * 100
}

// Score computes both scores for one analysis. Deterministic for identical
// inputs.
func (w Weights) Score(analysis *types.WalletAnalysis, cumulativePnl []float64) Scores {
	consistency := ConsistencyScore(cumulativePnl)
	smart := w.Pnl30d*analysis.PnlPercent.Day30 +
		w.WinRate*analysis.Ledger.WinRatePercent +
		w.Consistency*consistency
	return Scores{Consistency: consistency, Smart: smart}
}

// riskLevel classifies the wallet for downstream consumers: erratic wallets
// and wallets spread thin across many positions carry more copy risk.
func riskLevel(analysis *types.WalletAnalysis, consistency float64) types.RiskLevel {
	positions := len(analysis.Ledger.OpenPositions)
	switch {
	case consistency >= 70 && positions <= 5:
		return types.RiskLow
	case consistency >= 40 && positions <= 15:
		return types.RiskMedium
	default:
		return types.RiskHigh
	}
}

// WalletStore is the upsert contract the ranker writes through.
type WalletStore interface {
	Upsert(ctx context.Context, wallet *types.SuggestedWallet) error
}

// Ranker scores analyses and upserts the resulting SuggestedWallet rows.
type Ranker struct {
	weights Weights
	store   WalletStore
	log     zerolog.Logger
}

// NewRanker creates a ranker with the given weights and store.
func NewRanker(weights Weights, store WalletStore, log zerolog.Logger) *Ranker {
	return &Ranker{weights: weights, store: store, log: log}
}

// Rank scores one analysis and persists the record keyed by address.
// Re-ranking a known address overwrites its stale metrics.
func (r *Ranker) Rank(ctx context.Context, analysis *types.WalletAnalysis, cumulativePnl []float64) (*types.SuggestedWallet, error) {
	scores := r.weights.Score(analysis, cumulativePnl)

	wallet := &types.SuggestedWallet{
		Address:            analysis.Address,
		Name:               shortName(analysis.Address),
		RiskLevel:          riskLevel(analysis, scores.Consistency),
		PnlPercent:         analysis.PnlPercent,
		OpenPositionsCount: len(analysis.Ledger.OpenPositions),
		ConsistencyScore:   types.RoundUsd(scores.Consistency),
		SmartScore:         types.RoundUsd(scores.Smart),
		TotalValue:         types.RoundUsd(analysis.TotalValueUsd),
		LastAnalyzedAt:     analysis.AnalyzedAt,
	}

	if err := r.store.Upsert(ctx, wallet); err != nil {
		return nil, fmt.Errorf("upsert suggested wallet %s: %w", wallet.Address, err)
	}
	r.log.Info().Str("address", wallet.Address).Float64("smartScore", wallet.SmartScore).
		Float64("consistency", wallet.ConsistencyScore).Str("risk", string(wallet.RiskLevel)).
		Msg("suggested wallet ranked")
	return wallet, nil
}

// shortName derives a display name from an address, e.g. "0x1234…cdef".
func shortName(address string) string {
	if len(address) < 12 {
		return address
	}
	return address[:6] + "…" + address[len(address)-4:]
}
