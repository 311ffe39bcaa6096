package storage

import (
	"context"
	"fmt"
	"time"
)

// AnalysisRecord is one append-only snapshot of a wallet analysis run.
// History rows are never updated, so trends across runs stay queryable.
type AnalysisRecord struct {
	Address        string
	AnalyzedAt     time.Time
	RunID          string
	RealizedPnl    float64
	UnrealizedPnl  float64
	WinRate        float64
	AvgTradeSize   float64
	TradeCount     uint32
	OpenPositions  uint32
	PortfolioValue float64
	Pnl1d          float64
	Pnl7d          float64
	Pnl30d         float64
	Pnl180d        float64
	Pnl365d        float64
	SmartScore     float64
	Consistency    float64
}

// AnalysisHistoryRepository appends wallet analysis snapshots to ClickHouse
type AnalysisHistoryRepository struct {
	db *ClickHouseDB
}

// NewAnalysisHistoryRepository creates a new analysis history repository
func NewAnalysisHistoryRepository(db *ClickHouseDB) *AnalysisHistoryRepository {
	return &AnalysisHistoryRepository{db: db}
}

// Append records one analysis snapshot
func (r *AnalysisHistoryRepository) Append(ctx context.Context, rec *AnalysisRecord) error {
	query := `
		INSERT INTO wallet_analysis_history (
			address, analyzed_at, run_id,
			realized_pnl, unrealized_pnl, win_rate, avg_trade_size,
			trade_count, open_positions, portfolio_value,
			pnl_1d, pnl_7d, pnl_30d, pnl_180d, pnl_365d,
			smart_score, consistency
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := r.db.Conn().Exec(ctx, query,
		rec.Address,
		rec.AnalyzedAt,
		rec.RunID,
		rec.RealizedPnl,
		rec.UnrealizedPnl,
		rec.WinRate,
		rec.AvgTradeSize,
		rec.TradeCount,
		rec.OpenPositions,
		rec.PortfolioValue,
		rec.Pnl1d,
		rec.Pnl7d,
		rec.Pnl30d,
		rec.Pnl180d,
		rec.Pnl365d,
		rec.SmartScore,
		rec.Consistency,
	)
	if err != nil {
		return fmt.Errorf("failed to append analysis record: %w", err)
	}
	return nil
}

// History returns the most recent snapshots for a wallet, newest first
func (r *AnalysisHistoryRepository) History(ctx context.Context, address string, limit int) ([]*AnalysisRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT address, analyzed_at, run_id,
			realized_pnl, unrealized_pnl, win_rate, avg_trade_size,
			trade_count, open_positions, portfolio_value,
			pnl_1d, pnl_7d, pnl_30d, pnl_180d, pnl_365d,
			smart_score, consistency
		FROM wallet_analysis_history
		WHERE address = ?
		ORDER BY analyzed_at DESC
		LIMIT ?
	`

	rows, err := r.db.Conn().Query(ctx, query, address, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis history: %w", err)
	}
	defer rows.Close()

	var records []*AnalysisRecord
	for rows.Next() {
		var rec AnalysisRecord
		err := rows.Scan(
			&rec.Address,
			&rec.AnalyzedAt,
			&rec.RunID,
			&rec.RealizedPnl,
			&rec.UnrealizedPnl,
			&rec.WinRate,
			&rec.AvgTradeSize,
			&rec.TradeCount,
			&rec.OpenPositions,
			&rec.PortfolioValue,
			&rec.Pnl1d,
			&rec.Pnl7d,
			&rec.Pnl30d,
			&rec.Pnl180d,
			&rec.Pnl365d,
			&rec.SmartScore,
			&rec.Consistency,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis record: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analysis history: %w", err)
	}
	return records, nil
}
