// Package ledger reconstructs a wallet's position history from its trade
// stream and computes realized and unrealized profit-and-loss.
package ledger

import (
	"sort"

	"github.com/walletradar/internal/types"
)

// BuildLedger replays the trade stream in date order and FIFO-matches
// disposals against acquisition lots.
//
// Known limitation: a sell that exceeds the units held in open lots has its
// unmatched remainder silently dropped. The engine does not model short
// positions; disposals can only realize PnL against lots it has seen.
func BuildLedger(trades []types.Trade) types.LedgerSummary {
	ordered := make([]types.Trade, len(trades))
	copy(ordered, trades)
	sortTradesByDate(ordered)

	lots := make(map[string][]types.Lot)
	var (
		realizedPnl    float64
		closedCount    int
		winCount       int
		totalSellValue float64
		totalSellCount int
	)

	for _, t := range ordered {
		if !t.Valid() {
			continue
		}
		symbol := t.Symbol
		units := abs(t.Units)

		switch {
		case t.Side.IsAcquisition():
			lots[symbol] = append(lots[symbol], types.Lot{
				Symbol:         symbol,
				Units:          units,
				CostBasisPrice: t.UnitPriceUsd,
			})

		case t.Side.IsDisposal():
			remaining := units
			var tradePnl float64
			queue := lots[symbol]
			for len(queue) > 0 && remaining > 0 {
				lot := &queue[0]
				consumed := remaining
				if lot.Units < consumed {
					consumed = lot.Units
				}
				tradePnl += (t.UnitPriceUsd - lot.CostBasisPrice) * consumed
				lot.Units -= consumed
				remaining -= consumed
				if lot.Units <= types.DustUnits {
					queue = queue[1:]
				}
			}
			lots[symbol] = queue
			// Any remaining unmatched quantity is dropped here.

			realizedPnl += tradePnl
			closedCount++
			if tradePnl > 0 {
				winCount++
			}
			totalSellValue += units * t.UnitPriceUsd
			totalSellCount++
		}
	}

	summary := types.LedgerSummary{
		RealizedPnl:       realizedPnl,
		TotalClosedTrades: closedCount,
		OpenPositions:     make(map[string]types.OpenPosition),
	}
	if closedCount > 0 {
		summary.WinRatePercent = float64(winCount) / float64(closedCount) * 100
	}
	if totalSellCount > 0 {
		summary.AvgTradeSizeUsd = totalSellValue / float64(totalSellCount)
	}

	for symbol, queue := range lots {
		var netUnits, costSum float64
		for _, lot := range queue {
			netUnits += lot.Units
			costSum += lot.Units * lot.CostBasisPrice
		}
		if netUnits <= types.DustUnits {
			continue
		}
		summary.OpenPositions[symbol] = types.OpenPosition{
			Symbol:            symbol,
			NetUnits:          netUnits,
			AverageEntryPrice: costSum / netUnits,
		}
	}

	return summary
}

// UnrealizedPnl marks the open positions to the given current prices.
// Positions without a price contribute zero rather than failing the run.
func UnrealizedPnl(positions map[string]types.OpenPosition, prices map[string]float64) float64 {
	var total float64
	for symbol, pos := range positions {
		price, ok := prices[symbol]
		if !ok || pos.NetUnits <= 0 {
			continue
		}
		total += (price - pos.AverageEntryPrice) * pos.NetUnits
	}
	return total
}

// sortTradesByDate sorts in place, ascending by date. The sort is stable so
// same-timestamp trades keep their upstream order.
func sortTradesByDate(trades []types.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Date.Before(trades[j].Date)
	})
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
