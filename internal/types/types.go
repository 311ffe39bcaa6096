// Package types provides common type definitions for the wallet radar system.
package types

import (
	"math"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TradeSide represents the direction of a trade event
type TradeSide string

const (
	// SideBuy represents a swap into the asset
	SideBuy TradeSide = "buy"
	// SideSell represents a swap out of the asset
	SideSell TradeSide = "sell"
	// SideReceive represents an inbound transfer, treated as an acquisition
	SideReceive TradeSide = "receive"
	// SideSend represents an outbound transfer, treated as a disposal
	SideSend TradeSide = "send"
)

// IsAcquisition reports whether the side adds units to a position.
func (s TradeSide) IsAcquisition() bool {
	return s == SideBuy || s == SideReceive
}

// IsDisposal reports whether the side removes units from a position.
func (s TradeSide) IsDisposal() bool {
	return s == SideSell || s == SideSend
}

// ParseTradeSide normalizes a raw provider side string. The second return
// value is false for sides the ledger does not model (approvals, stakes, ...).
func ParseTradeSide(raw string) (TradeSide, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy", "swap_in":
		return SideBuy, true
	case "sell", "swap_out":
		return SideSell, true
	case "receive", "transfer_in":
		return SideReceive, true
	case "send", "transfer_out":
		return SideSend, true
	default:
		return "", false
	}
}

// Trade is a single normalized trade event from a wallet's history.
// Trades are immutable once constructed; date ordering is load-bearing
// for ledger reconstruction.
type Trade struct {
	Date         time.Time `json:"date"`
	Side         TradeSide `json:"side"`
	Symbol       string    `json:"symbol"`
	Units        float64   `json:"units"`
	UnitPriceUsd float64   `json:"unitPriceUsd"`
}

// Valid reports whether the trade carries finite, usable numbers.
func (t Trade) Valid() bool {
	if t.Symbol == "" {
		return false
	}
	if math.IsNaN(t.Units) || math.IsInf(t.Units, 0) || t.Units == 0 {
		return false
	}
	if math.IsNaN(t.UnitPriceUsd) || math.IsInf(t.UnitPriceUsd, 0) || t.UnitPriceUsd < 0 {
		return false
	}
	return true
}

// Lot is a discrete batch of units acquired at a specific cost basis,
// consumed FIFO on disposal.
type Lot struct {
	Symbol         string
	Units          float64
	CostBasisPrice float64
}

// DustUnits is the threshold below which a lot is considered depleted.
const DustUnits = 1e-8

// OpenPosition is a derived view over the remaining lots for one symbol.
type OpenPosition struct {
	Symbol            string  `json:"symbol"`
	NetUnits          float64 `json:"netUnits"`
	AverageEntryPrice float64 `json:"averageEntryPrice"`
}

// LedgerSummary is the result of one full ledger reconstruction.
// It is recomputed per analysis run and never persisted as a mutable entity.
type LedgerSummary struct {
	RealizedPnl       float64                 `json:"realizedPnl"`
	WinRatePercent    float64                 `json:"winRatePercent"`
	TotalClosedTrades int                     `json:"totalClosedTrades"`
	AvgTradeSizeUsd   float64                 `json:"avgTradeSizeUsd"`
	OpenPositions     map[string]OpenPosition `json:"openPositions"`
}

// PnlWindows holds performance percentages over standard lookback windows.
type PnlWindows struct {
	Day1   float64 `json:"pnlPercent1d"`
	Day7   float64 `json:"pnlPercent7d"`
	Day30  float64 `json:"pnlPercent30d"`
	Day180 float64 `json:"pnlPercent180d"`
	Day365 float64 `json:"pnlPercent365d"`
}

// WalletAnalysis is the transient result of one analysis pass over a wallet.
type WalletAnalysis struct {
	Address       string        `json:"address"`
	TotalValueUsd float64       `json:"totalValueUsd"`
	Ledger        LedgerSummary `json:"ledger"`
	UnrealizedPnl float64       `json:"unrealizedPnl"`
	TotalPnl      float64       `json:"totalPnl"`
	PnlPercent    PnlWindows    `json:"pnlPercent"`
	AnalyzedAt    time.Time     `json:"analyzedAt"`
}

// RiskLevel classifies a suggested wallet for downstream consumers
type RiskLevel string

const (
	// RiskLow represents consistent wallets with few concurrent positions
	RiskLow RiskLevel = "low"
	// RiskMedium represents moderately diversified or moderately erratic wallets
	RiskMedium RiskLevel = "medium"
	// RiskHigh represents erratic wallets or wallets spread across many positions
	RiskHigh RiskLevel = "high"
)

// SuggestedWallet is the persisted, ranked record produced by the scoring
// worker. Rows are keyed by address and only ever upserted by the engine.
type SuggestedWallet struct {
	Address            string     `json:"address"`
	Name               string     `json:"name"`
	RiskLevel          RiskLevel  `json:"riskLevel"`
	PnlPercent         PnlWindows `json:"pnlPercent"`
	OpenPositionsCount int        `json:"openPositionsCount"`
	ConsistencyScore   float64    `json:"consistencyScore"`
	SmartScore         float64    `json:"smartScore"`
	TotalValue         float64    `json:"totalValue"`
	LastAnalyzedAt     time.Time  `json:"lastAnalyzedAt"`
}

// ValidAddress reports whether s looks like a wallet address the engine
// can analyze (0x-prefixed 20-byte hex).
func ValidAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// NormalizeAddress lowercases an address for use as a storage key.
func NormalizeAddress(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// RoundUsd rounds a USD amount to 2 decimals for presentation.
func RoundUsd(v float64) float64 {
	return math.Round(v*100) / 100
}

// RoundUnits rounds a unit quantity to 8 decimals for presentation.
func RoundUnits(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}
