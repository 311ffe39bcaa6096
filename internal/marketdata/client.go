// Package marketdata is the fetch layer over the upstream market-data
// provider. Every request obtains its credential from the key pool and
// reports the outcome back so cooldown state stays accurate.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/walletradar/internal/faults"
	"github.com/walletradar/internal/keypool"
	"github.com/walletradar/internal/types"
)

// Cache is the optional read-through cache for prices and portfolio values.
type Cache interface {
	GetPrice(ctx context.Context, symbol string) (float64, bool)
	SetPrice(ctx context.Context, symbol string, price float64)
	GetPortfolioValue(ctx context.Context, address string) (float64, bool)
	SetPortfolioValue(ctx context.Context, address string, value float64)
}

// Config holds client construction parameters.
type Config struct {
	BaseURL          string
	FallbackPriceURL string
	RequestTimeout   time.Duration
	RequestsPerSec   float64
}

// Client fetches trade history, prices, portfolio values, and token-holder
// lists from the primary provider, with a secondary source for prices the
// primary cannot serve.
type Client struct {
	baseURL     string
	fallbackURL string
	http        *http.Client
	pool        *keypool.Pool
	breaker     *gobreaker.CircuitBreaker
	pacer       *rate.Limiter
	cache       Cache
	log         zerolog.Logger
}

// New creates a market-data client. cache may be nil.
func New(cfg Config, pool *keypool.Pool, cache Cache, log zerolog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 2.0
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "market-data-provider",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		fallbackURL: strings.TrimRight(cfg.FallbackPriceURL, "/"),
		http:        &http.Client{Timeout: timeout},
		pool:        pool,
		breaker:     breaker,
		pacer:       rate.NewLimiter(rate.Limit(rps), 1),
		cache:       cache,
		log:         log,
	}
}

// rawTrade is the loose shape the provider returns. Fields are validated and
// converted into types.Trade before anything downstream sees them.
type rawTrade struct {
	BlockTime    int64   `json:"blockTime"`
	Side         string  `json:"side"`
	Symbol       string  `json:"symbol"`
	Units        float64 `json:"units"`
	UnitPriceUsd float64 `json:"unitPriceUsd"`
}

type tradeHistoryResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Items []rawTrade `json:"items"`
	} `json:"data"`
}

// GetTradeHistory returns the wallet's trades ordered ascending by date.
// Malformed rows are skipped at this boundary. A response with no usable
// rows comes back as an empty slice; callers decide whether that is a
// fault for them.
func (c *Client) GetTradeHistory(ctx context.Context, address string, maxCount int) ([]types.Trade, error) {
	const op = "marketdata.GetTradeHistory"
	if !types.ValidAddress(address) {
		return nil, faults.DataUnavailable(op, fmt.Sprintf("invalid address %q", address))
	}
	if maxCount <= 0 {
		maxCount = 500
	}

	endpoint := fmt.Sprintf("%s/v1/wallet/trades?address=%s&limit=%d",
		c.baseURL, url.QueryEscape(types.NormalizeAddress(address)), maxCount)

	var resp tradeHistoryResponse
	if err := c.getJSON(ctx, op, endpoint, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, faults.DataUnavailable(op, "provider reported failure")
	}

	trades := make([]types.Trade, 0, len(resp.Data.Items))
	skipped := 0
	for _, raw := range resp.Data.Items {
		side, ok := types.ParseTradeSide(raw.Side)
		if !ok {
			skipped++
			continue
		}
		t := types.Trade{
			Date:         time.Unix(raw.BlockTime, 0).UTC(),
			Side:         side,
			Symbol:       strings.ToUpper(strings.TrimSpace(raw.Symbol)),
			Units:        raw.Units,
			UnitPriceUsd: raw.UnitPriceUsd,
		}
		if !t.Valid() {
			skipped++
			continue
		}
		trades = append(trades, t)
	}
	if skipped > 0 {
		c.log.Debug().Str("address", address).Int("skipped", skipped).
			Msg("skipped malformed trade rows")
	}

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Date.Before(trades[j].Date)
	})
	return trades, nil
}

type priceResponse struct {
	Success bool `json:"success"`
	Data    map[string]struct {
		Value float64 `json:"value"`
	} `json:"data"`
}

// GetCurrentPrices returns USD prices by symbol. Symbols the primary source
// cannot price are looked up on the secondary source; symbols neither source
// can price are simply absent from the result (partial-data tolerance).
func (c *Client) GetCurrentPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	const op = "marketdata.GetCurrentPrices"
	prices := make(map[string]float64, len(symbols))
	if len(symbols) == 0 {
		return prices, nil
	}

	missing := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if c.cache != nil {
			if v, ok := c.cache.GetPrice(ctx, s); ok {
				prices[s] = v
				continue
			}
		}
		missing = append(missing, s)
	}
	if len(missing) == 0 {
		return prices, nil
	}

	endpoint := fmt.Sprintf("%s/v1/prices?symbols=%s", c.baseURL, url.QueryEscape(strings.Join(missing, ",")))
	var resp priceResponse
	if err := c.getJSON(ctx, op, endpoint, &resp); err != nil {
		// The primary being down is not fatal for pricing; fall through to
		// the secondary source for everything.
		c.log.Warn().Err(err).Msg("primary price source unavailable")
	} else {
		for sym, entry := range resp.Data {
			sym = strings.ToUpper(sym)
			if entry.Value > 0 {
				prices[sym] = entry.Value
				c.cachePrice(ctx, sym, entry.Value)
			}
		}
	}

	var unresolved []string
	for _, s := range missing {
		if _, ok := prices[s]; !ok {
			unresolved = append(unresolved, s)
		}
	}
	if len(unresolved) > 0 {
		c.fetchFallbackPrices(ctx, unresolved, prices)
	}
	return prices, nil
}

// fetchFallbackPrices consults the secondary price source for symbols the
// primary returned nothing for. Failures here are logged, never propagated.
func (c *Client) fetchFallbackPrices(ctx context.Context, symbols []string, out map[string]float64) {
	if c.fallbackURL == "" {
		return
	}
	ids := make([]string, 0, len(symbols))
	for _, s := range symbols {
		ids = append(ids, strings.ToLower(s))
	}
	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd",
		c.fallbackURL, url.QueryEscape(strings.Join(ids, ",")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Msg("fallback price source unreachable")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log.Warn().Int("status", resp.StatusCode).Msg("fallback price source error")
		return
	}

	var body map[string]struct {
		Usd float64 `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.log.Warn().Err(err).Msg("fallback price response malformed")
		return
	}
	for id, entry := range body {
		sym := strings.ToUpper(id)
		if entry.Usd > 0 {
			out[sym] = entry.Usd
			c.cachePrice(ctx, sym, entry.Usd)
		}
	}
}

type portfolioResponse struct {
	Success bool `json:"success"`
	Data    struct {
		TotalUsd float64 `json:"totalUsd"`
	} `json:"data"`
}

// GetTotalPortfolioValue returns the wallet's current total value in USD.
func (c *Client) GetTotalPortfolioValue(ctx context.Context, address string) (float64, error) {
	const op = "marketdata.GetTotalPortfolioValue"
	addr := types.NormalizeAddress(address)
	if c.cache != nil {
		if v, ok := c.cache.GetPortfolioValue(ctx, addr); ok {
			return v, nil
		}
	}

	endpoint := fmt.Sprintf("%s/v1/wallet/portfolio?address=%s", c.baseURL, url.QueryEscape(addr))
	var resp portfolioResponse
	if err := c.getJSON(ctx, op, endpoint, &resp); err != nil {
		return 0, err
	}
	if !resp.Success {
		return 0, faults.DataUnavailable(op, "provider reported failure")
	}
	if c.cache != nil {
		c.cache.SetPortfolioValue(ctx, addr, resp.Data.TotalUsd)
	}
	return resp.Data.TotalUsd, nil
}

type holdersResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Items []struct {
			Owner string `json:"owner"`
		} `json:"items"`
	} `json:"data"`
}

// GetTokenHolders returns one page of holder addresses for a token contract.
func (c *Client) GetTokenHolders(ctx context.Context, token string, page, pageSize int) ([]string, error) {
	const op = "marketdata.GetTokenHolders"
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}

	endpoint := fmt.Sprintf("%s/v1/token/holders?token=%s&page=%d&page_size=%d",
		c.baseURL, url.QueryEscape(token), page, pageSize)
	var resp holdersResponse
	if err := c.getJSON(ctx, op, endpoint, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, faults.DataUnavailable(op, "provider reported failure")
	}

	holders := make([]string, 0, len(resp.Data.Items))
	for _, item := range resp.Data.Items {
		if types.ValidAddress(item.Owner) {
			holders = append(holders, types.NormalizeAddress(item.Owner))
		}
	}
	return holders, nil
}

// GetRecentTradeCount returns how many trades the wallet executed since the
// given time. Used by the discovery activity filter before deep analysis.
func (c *Client) GetRecentTradeCount(ctx context.Context, address string, since time.Time) (int, error) {
	trades, err := c.GetTradeHistory(ctx, address, 100)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, t := range trades {
		if !t.Date.Before(since) {
			count++
		}
	}
	return count, nil
}

func (c *Client) cachePrice(ctx context.Context, symbol string, price float64) {
	if c.cache != nil {
		c.cache.SetPrice(ctx, symbol, price)
	}
}

// getJSON performs one authenticated GET, rotating through credentials on
// failure. Outcomes are classified per the fault taxonomy: 429 throttles the
// credential, 401/403 invalidates it, network errors cost nothing. When every
// credential fails with a credential-level fault in a single call the pool is
// put into global cooldown.
func (c *Client) getJSON(ctx context.Context, op, endpoint string, out any) error {
	if c.pool.InGlobalCooldown() {
		return faults.PoolExhausted(op)
	}

	attempts := c.pool.Size()
	if attempts < 2 {
		attempts = 2
	}

	var lastErr error
	credentialFailures := 0
	for attempt := 0; attempt < attempts; attempt++ {
		if err := c.pacer.Wait(ctx); err != nil {
			return faults.Transient(op, err)
		}

		key := c.pool.Next()
		body, err := c.doRequest(ctx, endpoint, key.Secret)
		if err == nil {
			if decodeErr := json.Unmarshal(body, out); decodeErr != nil {
				return faults.DataUnavailable(op, fmt.Sprintf("malformed response: %v", decodeErr))
			}
			return nil
		}

		lastErr = err
		switch faults.CategoryOf(err) {
		case faults.CategoryRateLimited:
			c.pool.ReportThrottled(key.ID, endpoint)
			credentialFailures++
		case faults.CategoryUnauthorized:
			c.pool.ReportInvalid(key.ID, endpoint)
			credentialFailures++
		default:
			// Transient: no credential penalty, retry with the next key.
		}
		c.log.Debug().Err(err).Str("key", key.ID).Int("attempt", attempt+1).Msg("upstream call failed")
	}

	if credentialFailures >= attempts {
		c.pool.EnterGlobalCooldown(fmt.Sprintf("%s failed on every credential", op))
		return faults.PoolExhausted(op)
	}
	return faults.Transient(op, lastErr)
}

// doRequest issues one HTTP GET through the circuit breaker and maps the
// response status into the fault taxonomy.
func (c *Client) doRequest(ctx context.Context, endpoint, secret string) ([]byte, error) {
	const op = "marketdata.doRequest"

	result, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, faults.Transient(op, err)
		}
		req.Header.Set("X-API-KEY", secret)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, faults.Transient(op, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, faults.Transient(op, err)
		}

		switch faults.FromStatusCode(resp.StatusCode) {
		case faults.CategoryRateLimited:
			return nil, faults.RateLimited(op)
		case faults.CategoryUnauthorized:
			return nil, faults.Unauthorized(op, resp.StatusCode)
		case faults.CategoryTransient:
			return nil, faults.Transient(op, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body)))
		}
		if resp.StatusCode != http.StatusOK {
			return nil, faults.DataUnavailable(op, fmt.Sprintf("HTTP %d", resp.StatusCode))
		}
		return body, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, faults.Transient(op, err)
		}
		return nil, err
	}
	return result.([]byte), nil
}
