package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/walletradar/internal/faults"
	"github.com/walletradar/internal/types"
)

// MarketData is the slice of the market-data client the analyzer needs.
type MarketData interface {
	GetTradeHistory(ctx context.Context, address string, maxCount int) ([]types.Trade, error)
	GetCurrentPrices(ctx context.Context, symbols []string) (map[string]float64, error)
	GetTotalPortfolioValue(ctx context.Context, address string) (float64, error)
}

// Analyzer runs one full analysis pass over a wallet: trade history,
// ledger reconstruction, unrealized PnL against current prices, and
// performance windows.
type Analyzer struct {
	md        MarketData
	maxTrades int
	log       zerolog.Logger
	now       func() time.Time
}

// NewAnalyzer creates an analyzer fetching at most maxTrades per wallet.
func NewAnalyzer(md MarketData, maxTrades int, log zerolog.Logger) *Analyzer {
	if maxTrades <= 0 {
		maxTrades = 500
	}
	return &Analyzer{md: md, maxTrades: maxTrades, log: log, now: time.Now}
}

// AnalyzeWallet builds a WalletAnalysis for the address. A missing trade
// history fails the analysis; missing prices or portfolio value only degrade
// it (the affected parts contribute zero).
func (a *Analyzer) AnalyzeWallet(ctx context.Context, address string) (*types.WalletAnalysis, error) {
	analysis, _, err := a.AnalyzeWalletWithSeries(ctx, address)
	return analysis, err
}

// AnalyzeWalletWithSeries is AnalyzeWallet plus the cumulative realized
// PnL series from the same trade history, so scoring does not need a
// second provider fetch.
func (a *Analyzer) AnalyzeWalletWithSeries(ctx context.Context, address string) (*types.WalletAnalysis, []float64, error) {
	const op = "ledger.AnalyzeWallet"

	trades, err := a.md.GetTradeHistory(ctx, address, a.maxTrades)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", op, address, err)
	}
	if len(trades) == 0 {
		return nil, nil, faults.DataUnavailable(op, fmt.Sprintf("no trade history for %s", address))
	}

	summary := BuildLedger(trades)

	var unrealized float64
	if len(summary.OpenPositions) > 0 {
		symbols := make([]string, 0, len(summary.OpenPositions))
		for symbol := range summary.OpenPositions {
			symbols = append(symbols, symbol)
		}
		prices, err := a.md.GetCurrentPrices(ctx, symbols)
		if err != nil {
			// Degraded analysis: open positions contribute zero.
			a.log.Warn().Err(err).Str("address", address).Msg("prices unavailable, unrealized PnL degraded")
		} else {
			if len(prices) < len(symbols) {
				a.log.Debug().Str("address", address).Int("requested", len(symbols)).
					Int("priced", len(prices)).Msg("partial prices, unpriced positions contribute zero")
			}
			unrealized = UnrealizedPnl(summary.OpenPositions, prices)
		}
	}

	totalValue, err := a.md.GetTotalPortfolioValue(ctx, address)
	if err != nil {
		a.log.Warn().Err(err).Str("address", address).Msg("portfolio value unavailable")
		totalValue = 0
	}

	now := a.now().UTC()
	analysis := &types.WalletAnalysis{
		Address:       types.NormalizeAddress(address),
		TotalValueUsd: totalValue,
		Ledger:        summary,
		UnrealizedPnl: unrealized,
		TotalPnl:      summary.RealizedPnl + unrealized,
		PnlPercent:    pnlWindows(trades, totalValue, now),
		AnalyzedAt:    now,
	}
	return analysis, CumulativePnlSeries(trades), nil
}

// CumulativePnlSeries returns the running realized PnL after each disposal,
// in date order. The scoring worker uses this series for its consistency
// measure.
func CumulativePnlSeries(trades []types.Trade) []float64 {
	points := realizedPoints(trades)
	if len(points) == 0 {
		return nil
	}
	series := make([]float64, len(points))
	for i, p := range points {
		series[i] = p.cum
	}
	return series
}

// pnlPoint is the cumulative realized PnL immediately after one disposal.
type pnlPoint struct {
	date time.Time
	cum  float64
}

// realizedPoints replays the full trade history once, recording the running
// realized total after each disposal. The windows are carved out of this
// single replay so a disposal keeps the cost basis of lots acquired before
// the window opened.
func realizedPoints(trades []types.Trade) []pnlPoint {
	ordered := make([]types.Trade, len(trades))
	copy(ordered, trades)
	lots := make(map[string][]types.Lot)
	var points []pnlPoint
	var running float64

	// Same FIFO replay as BuildLedger, recording the running total.
	for _, t := range sortedByDate(ordered) {
		if !t.Valid() {
			continue
		}
		units := abs(t.Units)
		switch {
		case t.Side.IsAcquisition():
			lots[t.Symbol] = append(lots[t.Symbol], types.Lot{
				Symbol:         t.Symbol,
				Units:          units,
				CostBasisPrice: t.UnitPriceUsd,
			})
		case t.Side.IsDisposal():
			remaining := units
			queue := lots[t.Symbol]
			for len(queue) > 0 && remaining > 0 {
				lot := &queue[0]
				consumed := remaining
				if lot.Units < consumed {
					consumed = lot.Units
				}
				running += (t.UnitPriceUsd - lot.CostBasisPrice) * consumed
				lot.Units -= consumed
				remaining -= consumed
				if lot.Units <= types.DustUnits {
					queue = queue[1:]
				}
			}
			lots[t.Symbol] = queue
			points = append(points, pnlPoint{date: t.Date, cum: running})
		}
	}
	return points
}

// pnlWindows computes realized-PnL percentages over the standard lookback
// windows, using the wallet's current total value as the capital base.
// With no usable base the percentages are zero.
func pnlWindows(trades []types.Trade, totalValue float64, now time.Time) types.PnlWindows {
	points := realizedPoints(trades)
	return types.PnlWindows{
		Day1:   windowPercent(points, totalValue, now, 24*time.Hour),
		Day7:   windowPercent(points, totalValue, now, 7*24*time.Hour),
		Day30:  windowPercent(points, totalValue, now, 30*24*time.Hour),
		Day180: windowPercent(points, totalValue, now, 180*24*time.Hour),
		Day365: windowPercent(points, totalValue, now, 365*24*time.Hour),
	}
}

// windowPercent is the realized PnL accrued strictly after the window
// opened, as a percentage of the wallet's current total value. Disposals
// sitting exactly on the cutoff belong to the baseline, not the window.
func windowPercent(points []pnlPoint, totalValue float64, now time.Time, window time.Duration) float64 {
	if totalValue <= 0 || len(points) == 0 {
		return 0
	}
	cutoff := now.Add(-window)
	final := points[len(points)-1].cum
	var baseline float64
	for _, p := range points {
		if p.date.After(cutoff) {
			break
		}
		baseline = p.cum
	}
	return (final - baseline) / totalValue * 100
}

func sortedByDate(trades []types.Trade) []types.Trade {
	sortTradesByDate(trades)
	return trades
}
