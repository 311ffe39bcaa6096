package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/walletradar/internal/types"
)

// WatchlistRepository handles the set of wallets queued for analysis
type WatchlistRepository struct {
	db *PostgresDB
}

// NewWatchlistRepository creates a new watchlist repository
func NewWatchlistRepository(db *PostgresDB) *WatchlistRepository {
	return &WatchlistRepository{db: db}
}

// Add inserts a wallet into the watchlist. Adding an address that is
// already present is a no-op, never an error.
func (r *WatchlistRepository) Add(ctx context.Context, address string) error {
	if !types.ValidAddress(address) {
		return fmt.Errorf("invalid wallet address: %s", address)
	}

	query := `
		INSERT INTO watchlist (address, added_at)
		VALUES ($1, $2)
		ON CONFLICT (address) DO NOTHING
	`

	_, err := r.db.Pool().Exec(ctx, query, types.NormalizeAddress(address), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add to watchlist: %w", err)
	}
	return nil
}

// Contains reports whether a wallet is on the watchlist
func (r *WatchlistRepository) Contains(ctx context.Context, address string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM watchlist WHERE address = $1)`
	err := r.db.Pool().QueryRow(ctx, query, types.NormalizeAddress(address)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check watchlist: %w", err)
	}
	return exists, nil
}

// List returns all watched addresses in the order they were added
func (r *WatchlistRepository) List(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT address FROM watchlist ORDER BY added_at ASC, address ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchlist: %w", err)
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var address string
		if err := rows.Scan(&address); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist row: %w", err)
		}
		addresses = append(addresses, address)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate watchlist: %w", err)
	}
	return addresses, nil
}

// Remove deletes a wallet from the watchlist
func (r *WatchlistRepository) Remove(ctx context.Context, address string) error {
	_, err := r.db.Pool().Exec(ctx, `DELETE FROM watchlist WHERE address = $1`, types.NormalizeAddress(address))
	if err != nil {
		return fmt.Errorf("failed to remove from watchlist: %w", err)
	}
	return nil
}
