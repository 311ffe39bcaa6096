// Package discovery walks seed token contracts, enumerates their holders,
// and filters the resulting candidate set down to wallets worth deep
// analysis. Filters run cheapest first so most rejects cost one call.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/walletradar/internal/faults"
	"github.com/walletradar/internal/types"
)

// MarketData is the slice of the market-data client discovery needs.
type MarketData interface {
	GetTokenHolders(ctx context.Context, token string, page, pageSize int) ([]string, error)
	GetTotalPortfolioValue(ctx context.Context, address string) (float64, error)
	GetRecentTradeCount(ctx context.Context, address string, since time.Time) (int, error)
}

// Watchlist records every candidate the engine has ever seen, with
// skip-duplicate semantics.
type Watchlist interface {
	Add(ctx context.Context, address string) error
}

// SeenSet suppresses re-enumeration churn between passes. Implementations
// are expected to expire entries on their own.
type SeenSet interface {
	Seen(ctx context.Context, address string) bool
	MarkSeen(ctx context.Context, address string)
}

// Config holds discovery thresholds. The capital floor uses strict
// less-than rejection: a wallet worth exactly the floor passes.
type Config struct {
	SeedTokens      []string
	HoldersPerToken int
	HolderPageSize  int
	CapitalFloorUsd float64
	MinTradeCount   int
	ActivityWindow  time.Duration
	InterCallDelay  time.Duration
}

func (c Config) withDefaults() Config {
	if c.HoldersPerToken <= 0 {
		c.HoldersPerToken = 200
	}
	if c.HolderPageSize <= 0 {
		c.HolderPageSize = 50
	}
	if c.CapitalFloorUsd <= 0 {
		c.CapitalFloorUsd = 50000
	}
	if c.MinTradeCount <= 0 {
		c.MinTradeCount = 4
	}
	if c.ActivityWindow <= 0 {
		c.ActivityWindow = 30 * 24 * time.Hour
	}
	return c
}

// Worker enumerates and filters candidate wallets. It is stateless between
// runs except for the watchlist and seen-set collaborators.
type Worker struct {
	md        MarketData
	watchlist Watchlist
	seen      SeenSet
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time
}

// NewWorker creates a discovery worker. watchlist and seen may be nil.
func NewWorker(md MarketData, watchlist Watchlist, seen SeenSet, cfg Config, log zerolog.Logger) *Worker {
	return &Worker{
		md:        md,
		watchlist: watchlist,
		seen:      seen,
		cfg:       cfg.withDefaults(),
		log:       log,
		now:       time.Now,
	}
}

// DiscoverCandidates pages through every seed token's holder list and
// returns the deduplicated union of holder addresses, sorted for
// deterministic processing order. Per-token failures are logged and the
// remaining seeds still run; only pool exhaustion aborts the enumeration.
func (w *Worker) DiscoverCandidates(ctx context.Context, seedTokens []string) ([]string, error) {
	set := make(map[string]struct{})

	for _, token := range seedTokens {
		collected := 0
		for page := 1; collected < w.cfg.HoldersPerToken; page++ {
			holders, err := w.md.GetTokenHolders(ctx, token, page, w.cfg.HolderPageSize)
			if err != nil {
				if faults.Is(err, faults.CategoryPoolExhausted) {
					return sorted(set), err
				}
				w.log.Warn().Err(err).Str("token", token).Int("page", page).
					Msg("holder enumeration failed, skipping token")
				break
			}
			if len(holders) == 0 {
				break
			}
			for _, h := range holders {
				set[h] = struct{}{}
			}
			collected += len(holders)

			if err := w.pace(ctx); err != nil {
				return sorted(set), err
			}
		}
	}

	candidates := sorted(set)
	w.log.Info().Int("seeds", len(seedTokens)).Int("candidates", len(candidates)).
		Msg("candidate enumeration complete")
	return candidates, nil
}

// Screen runs the cheap-first filter chain on one candidate. It returns
// true when the wallet clears both the capital floor and the activity
// minimum. Rejections are skips, not errors. Only rejects are marked seen:
// a wallet that passes must be re-screened on the next pass so its metrics
// keep refreshing on the pass schedule, not on the seen-set TTL.
func (w *Worker) Screen(ctx context.Context, address string) (bool, error) {
	if !types.ValidAddress(address) {
		return false, nil
	}
	addr := types.NormalizeAddress(address)

	if w.seen != nil && w.seen.Seen(ctx, addr) {
		return false, nil
	}

	if w.watchlist != nil {
		if err := w.watchlist.Add(ctx, addr); err != nil {
			// Watchlist bookkeeping must not block screening.
			w.log.Warn().Err(err).Str("address", addr).Msg("watchlist append failed")
		}
	}

	// Capital filter first: one cheap call eliminates most candidates.
	value, err := w.md.GetTotalPortfolioValue(ctx, addr)
	if err != nil {
		return false, fmt.Errorf("capital filter for %s: %w", addr, err)
	}
	if value < w.cfg.CapitalFloorUsd {
		w.markSeen(ctx, addr)
		w.log.Debug().Str("address", addr).Float64("valueUsd", value).Msg("below capital floor")
		return false, nil
	}

	since := w.now().Add(-w.cfg.ActivityWindow)
	count, err := w.md.GetRecentTradeCount(ctx, addr, since)
	if err != nil {
		return false, fmt.Errorf("activity filter for %s: %w", addr, err)
	}
	if count < w.cfg.MinTradeCount {
		w.markSeen(ctx, addr)
		w.log.Debug().Str("address", addr).Int("trades", count).Msg("below activity minimum")
		return false, nil
	}

	return true, nil
}

// SeedTokens returns the configured seed token contracts.
func (w *Worker) SeedTokens() []string {
	return w.cfg.SeedTokens
}

// pace applies the fixed inter-call delay. This runs on top of the key
// pool's own cooldowns so a healthy pool still never hammers the provider.
func (w *Worker) pace(ctx context.Context) error {
	if w.cfg.InterCallDelay <= 0 {
		return nil
	}
	select {
	case <-time.After(w.cfg.InterCallDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) markSeen(ctx context.Context, addr string) {
	if w.seen != nil {
		w.seen.MarkSeen(ctx, addr)
	}
}

func sorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for addr := range set {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}
