package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/walletradar/internal/types"
)

// SuggestedWalletRepository handles persistence of ranked wallets
type SuggestedWalletRepository struct {
	db *PostgresDB
}

// NewSuggestedWalletRepository creates a new suggested wallet repository
func NewSuggestedWalletRepository(db *PostgresDB) *SuggestedWalletRepository {
	return &SuggestedWalletRepository{db: db}
}

// Upsert inserts or refreshes a ranked wallet keyed by address. A repeat
// analysis of the same wallet replaces the previous row in full.
func (r *SuggestedWalletRepository) Upsert(ctx context.Context, wallet *types.SuggestedWallet) error {
	if !types.ValidAddress(wallet.Address) {
		return fmt.Errorf("invalid wallet address: %s", wallet.Address)
	}
	address := types.NormalizeAddress(wallet.Address)

	query := `
		INSERT INTO suggested_wallets (
			address, name, risk_level,
			pnl_percent_1d, pnl_percent_7d, pnl_percent_30d, pnl_percent_180d, pnl_percent_365d,
			open_positions_count, consistency_score, smart_score, total_value, last_analyzed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (address) DO UPDATE SET
			name = EXCLUDED.name,
			risk_level = EXCLUDED.risk_level,
			pnl_percent_1d = EXCLUDED.pnl_percent_1d,
			pnl_percent_7d = EXCLUDED.pnl_percent_7d,
			pnl_percent_30d = EXCLUDED.pnl_percent_30d,
			pnl_percent_180d = EXCLUDED.pnl_percent_180d,
			pnl_percent_365d = EXCLUDED.pnl_percent_365d,
			open_positions_count = EXCLUDED.open_positions_count,
			consistency_score = EXCLUDED.consistency_score,
			smart_score = EXCLUDED.smart_score,
			total_value = EXCLUDED.total_value,
			last_analyzed_at = EXCLUDED.last_analyzed_at
	`

	_, err := r.db.Pool().Exec(ctx, query,
		address,
		wallet.Name,
		string(wallet.RiskLevel),
		wallet.PnlPercent.Day1,
		wallet.PnlPercent.Day7,
		wallet.PnlPercent.Day30,
		wallet.PnlPercent.Day180,
		wallet.PnlPercent.Day365,
		wallet.OpenPositionsCount,
		wallet.ConsistencyScore,
		wallet.SmartScore,
		wallet.TotalValue,
		wallet.LastAnalyzedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert suggested wallet: %w", err)
	}
	return nil
}

// GetByAddress fetches a ranked wallet, or nil if it was never suggested
func (r *SuggestedWalletRepository) GetByAddress(ctx context.Context, address string) (*types.SuggestedWallet, error) {
	query := `
		SELECT address, name, risk_level,
			pnl_percent_1d, pnl_percent_7d, pnl_percent_30d, pnl_percent_180d, pnl_percent_365d,
			open_positions_count, consistency_score, smart_score, total_value, last_analyzed_at
		FROM suggested_wallets
		WHERE address = $1
	`

	row := r.db.Pool().QueryRow(ctx, query, types.NormalizeAddress(address))
	wallet, err := scanSuggestedWallet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get suggested wallet: %w", err)
	}
	return wallet, nil
}

// ListTop returns ranked wallets ordered by smart score descending
func (r *SuggestedWalletRepository) ListTop(ctx context.Context, limit int) ([]*types.SuggestedWallet, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT address, name, risk_level,
			pnl_percent_1d, pnl_percent_7d, pnl_percent_30d, pnl_percent_180d, pnl_percent_365d,
			open_positions_count, consistency_score, smart_score, total_value, last_analyzed_at
		FROM suggested_wallets
		ORDER BY smart_score DESC, address ASC
		LIMIT $1
	`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggested wallets: %w", err)
	}
	defer rows.Close()

	var wallets []*types.SuggestedWallet
	for rows.Next() {
		wallet, err := scanSuggestedWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan suggested wallet: %w", err)
		}
		wallets = append(wallets, wallet)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate suggested wallets: %w", err)
	}
	return wallets, nil
}

// Count returns the total number of ranked wallets
func (r *SuggestedWalletRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM suggested_wallets`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count suggested wallets: %w", err)
	}
	return count, nil
}

func scanSuggestedWallet(row pgx.Row) (*types.SuggestedWallet, error) {
	var w types.SuggestedWallet
	var risk string
	err := row.Scan(
		&w.Address,
		&w.Name,
		&risk,
		&w.PnlPercent.Day1,
		&w.PnlPercent.Day7,
		&w.PnlPercent.Day30,
		&w.PnlPercent.Day180,
		&w.PnlPercent.Day365,
		&w.OpenPositionsCount,
		&w.ConsistencyScore,
		&w.SmartScore,
		&w.TotalValue,
		&w.LastAnalyzedAt,
	)
	if err != nil {
		return nil, err
	}
	w.RiskLevel = types.RiskLevel(risk)
	return &w, nil
}
