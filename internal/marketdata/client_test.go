package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/walletradar/internal/faults"
	"github.com/walletradar/internal/keypool"
)

const testAddress = "0x1111111111111111111111111111111111111111"

func newTestClient(t *testing.T, baseURL, fallbackURL string, keys int) (*Client, *keypool.Pool) {
	t.Helper()
	names := make([]string, 0, keys)
	for i := 0; i < keys; i++ {
		names = append(names, fmt.Sprintf("secret-%d", i+1))
	}
	pool, err := keypool.New(keypool.Config{Keys: names}, nil, zerolog.New(nil).Level(zerolog.Disabled))
	if err != nil {
		t.Fatalf("keypool.New: %v", err)
	}
	client := New(Config{
		BaseURL:          baseURL,
		FallbackPriceURL: fallbackURL,
		RequestTimeout:   2 * time.Second,
		RequestsPerSec:   1000,
	}, pool, nil, zerolog.New(nil).Level(zerolog.Disabled))
	return client, pool
}

func TestGetTradeHistorySkipsMalformedRowsAndSortsAscending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") == "" {
			t.Error("request missing credential header")
		}
		fmt.Fprint(w, `{"success":true,"data":{"items":[
			{"blockTime":1700000200,"side":"sell","symbol":"sol","units":1,"unitPriceUsd":20},
			{"blockTime":1700000100,"side":"buy","symbol":"SOL","units":2,"unitPriceUsd":10},
			{"blockTime":1700000300,"side":"approve","symbol":"SOL","units":1,"unitPriceUsd":10},
			{"blockTime":1700000400,"side":"buy","symbol":"SOL","units":0,"unitPriceUsd":10},
			{"blockTime":1700000500,"side":"buy","symbol":"","units":1,"unitPriceUsd":10}
		]}}`)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, "", 1)
	trades, err := client.GetTradeHistory(context.Background(), testAddress, 100)
	if err != nil {
		t.Fatalf("GetTradeHistory: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want 2 (malformed rows skipped)", len(trades))
	}
	if !trades[0].Date.Before(trades[1].Date) {
		t.Fatal("trades not sorted ascending by date")
	}
	if trades[0].Symbol != "SOL" || trades[1].Symbol != "SOL" {
		t.Fatalf("symbols not normalized: %q / %q", trades[0].Symbol, trades[1].Symbol)
	}
}

func TestGetTradeHistoryRejectsInvalidAddress(t *testing.T) {
	client, _ := newTestClient(t, "http://unused", "", 1)
	_, err := client.GetTradeHistory(context.Background(), "not-an-address", 10)
	if !faults.Is(err, faults.CategoryDataUnavailable) {
		t.Fatalf("got %v, want DataUnavailable", err)
	}
}

func TestThrottledResponseRotatesCredential(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"success":true,"data":{"totalUsd":75000}}`)
	}))
	defer srv.Close()

	client, pool := newTestClient(t, srv.URL, "", 2)
	value, err := client.GetTotalPortfolioValue(context.Background(), testAddress)
	if err != nil {
		t.Fatalf("GetTotalPortfolioValue: %v", err)
	}
	if value != 75000 {
		t.Fatalf("got %v, want 75000", value)
	}

	snap := pool.Snapshot()
	if snap[0].Throttles != 1 {
		t.Fatalf("first credential should have been throttled, snapshot: %+v", snap)
	}
}

func TestUnauthorizedResponseInvalidatesCredential(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"success":true,"data":{"totalUsd":100}}`)
	}))
	defer srv.Close()

	client, pool := newTestClient(t, srv.URL, "", 2)
	if _, err := client.GetTotalPortfolioValue(context.Background(), testAddress); err != nil {
		t.Fatalf("GetTotalPortfolioValue: %v", err)
	}
	snap := pool.Snapshot()
	if !snap[0].Invalid {
		t.Fatalf("first credential should be invalid, snapshot: %+v", snap)
	}
}

func TestAllCredentialsThrottledEntersGlobalCooldown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, pool := newTestClient(t, srv.URL, "", 2)
	_, err := client.GetTotalPortfolioValue(context.Background(), testAddress)
	if !faults.Is(err, faults.CategoryPoolExhausted) {
		t.Fatalf("got %v, want PoolExhausted", err)
	}
	if !pool.InGlobalCooldown() {
		t.Fatal("pool should be in global cooldown")
	}

	// Subsequent calls short-circuit while the cooldown holds.
	_, err = client.GetTotalPortfolioValue(context.Background(), testAddress)
	if !faults.Is(err, faults.CategoryPoolExhausted) {
		t.Fatalf("got %v, want PoolExhausted during cooldown", err)
	}
}

func TestGetCurrentPricesFallsBackForMissingSymbols(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"data":{"SOL":{"value":150}}}`)
	}))
	defer primary.Close()

	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bonk":{"usd":0.00002}}`)
	}))
	defer fallback.Close()

	client, _ := newTestClient(t, primary.URL, fallback.URL, 1)
	prices, err := client.GetCurrentPrices(context.Background(), []string{"SOL", "BONK", "GHOST"})
	if err != nil {
		t.Fatalf("GetCurrentPrices: %v", err)
	}
	if prices["SOL"] != 150 {
		t.Fatalf("primary price missing: %v", prices)
	}
	if prices["BONK"] != 0.00002 {
		t.Fatalf("fallback price missing: %v", prices)
	}
	if _, ok := prices["GHOST"]; ok {
		t.Fatal("unpriceable symbol should be absent, not zero")
	}
}

func TestGetTokenHoldersFiltersInvalidAddresses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"data":{"items":[
			{"owner":"0x2222222222222222222222222222222222222222"},
			{"owner":"garbage"},
			{"owner":"0x3333333333333333333333333333333333333333"}
		]}}`)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, "", 1)
	holders, err := client.GetTokenHolders(context.Background(), "0x4444444444444444444444444444444444444444", 1, 50)
	if err != nil {
		t.Fatalf("GetTokenHolders: %v", err)
	}
	if len(holders) != 2 {
		t.Fatalf("got %d holders, want 2", len(holders))
	}
}

func TestGetRecentTradeCountHonorsWindow(t *testing.T) {
	now := time.Now().UTC()
	recent := now.Add(-24 * time.Hour).Unix()
	old := now.Add(-90 * 24 * time.Hour).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"success":true,"data":{"items":[
			{"blockTime":%d,"side":"buy","symbol":"SOL","units":1,"unitPriceUsd":10},
			{"blockTime":%d,"side":"sell","symbol":"SOL","units":1,"unitPriceUsd":12},
			{"blockTime":%d,"side":"buy","symbol":"SOL","units":1,"unitPriceUsd":8}
		]}}`, recent, recent, old)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, "", 1)
	count, err := client.GetRecentTradeCount(context.Background(), testAddress, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("GetRecentTradeCount: %v", err)
	}
	if count != 2 {
		t.Fatalf("got %d recent trades, want 2", count)
	}
}
