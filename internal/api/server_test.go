package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/walletradar/internal/keypool"
	"github.com/walletradar/internal/types"
)

type fakeWallets struct {
	wallets  map[string]*types.SuggestedWallet
	top      []*types.SuggestedWallet
	err      error
	gotLimit int
}

func (f *fakeWallets) ListTop(ctx context.Context, limit int) ([]*types.SuggestedWallet, error) {
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.top) {
		return f.top[:limit], nil
	}
	return f.top, nil
}

func (f *fakeWallets) GetByAddress(ctx context.Context, address string) (*types.SuggestedWallet, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.wallets[types.NormalizeAddress(address)], nil
}

func (f *fakeWallets) Count(ctx context.Context) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return len(f.top), nil
}

type fakePool struct {
	cooldown bool
}

func (f *fakePool) Snapshot() []keypool.CredentialStatus {
	return []keypool.CredentialStatus{
		{ID: "key-1", Hits: 10},
		{ID: "key-2", Invalid: true, NextAvailableAt: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)},
	}
}

func (f *fakePool) InGlobalCooldown() bool { return f.cooldown }

func newTestServer(wallets WalletReader, pool PoolStatus) *Server {
	return NewServer(&ServerConfig{Host: "127.0.0.1", Port: "0"}, wallets, pool, zerolog.Nop())
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(&fakeWallets{}, nil)
	rr := doRequest(t, s, "GET", "/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status field = %q, want healthy", body["status"])
	}
}

func TestListSuggestedDefaultLimit(t *testing.T) {
	fw := &fakeWallets{top: []*types.SuggestedWallet{
		{Address: "0x1", SmartScore: 90},
		{Address: "0x2", SmartScore: 80},
	}}
	s := newTestServer(fw, nil)
	rr := doRequest(t, s, "GET", "/api/v1/wallets/suggested")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	if fw.gotLimit != defaultListLimit {
		t.Errorf("limit = %d, want default %d", fw.gotLimit, defaultListLimit)
	}

	var body struct {
		Wallets []*types.SuggestedWallet `json:"wallets"`
		Total   int                      `json:"total"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Wallets) != 2 || body.Total != 2 {
		t.Errorf("wallets = %d total = %d, want 2/2", len(body.Wallets), body.Total)
	}
}

func TestListSuggestedRejectsBadLimit(t *testing.T) {
	s := newTestServer(&fakeWallets{}, nil)

	for _, raw := range []string{"abc", "-1", "0"} {
		rr := doRequest(t, s, "GET", "/api/v1/wallets/suggested?limit="+raw)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("limit=%q status = %d, want 400", raw, rr.Code)
		}
	}
}

func TestListSuggestedCapsLimit(t *testing.T) {
	fw := &fakeWallets{}
	s := newTestServer(fw, nil)
	doRequest(t, s, "GET", "/api/v1/wallets/suggested?limit=10000")

	if fw.gotLimit != maxListLimit {
		t.Errorf("limit = %d, want cap %d", fw.gotLimit, maxListLimit)
	}
}

func TestListSuggestedEmptyIsNotNull(t *testing.T) {
	s := newTestServer(&fakeWallets{}, nil)
	rr := doRequest(t, s, "GET", "/api/v1/wallets/suggested")

	var body map[string]json.RawMessage
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(body["wallets"]) == "null" {
		t.Error("wallets should serialize as [], not null")
	}
}

func TestGetWallet(t *testing.T) {
	addr := "0xAAaAaaAaaaAaAAaAaaaaAAaAAAaaaAaaaaaAaAa1"
	fw := &fakeWallets{wallets: map[string]*types.SuggestedWallet{
		types.NormalizeAddress(addr): {Address: types.NormalizeAddress(addr), SmartScore: 77},
	}}
	s := newTestServer(fw, nil)

	rr := doRequest(t, s, "GET", "/api/v1/wallets/"+addr)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}

	var got types.SuggestedWallet
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.SmartScore != 77 {
		t.Errorf("SmartScore = %v, want 77", got.SmartScore)
	}
}

func TestGetWalletNotFound(t *testing.T) {
	s := newTestServer(&fakeWallets{}, nil)
	rr := doRequest(t, s, "GET", "/api/v1/wallets/0x1111111111111111111111111111111111111111")

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestGetWalletRejectsBadAddress(t *testing.T) {
	s := newTestServer(&fakeWallets{}, nil)
	rr := doRequest(t, s, "GET", "/api/v1/wallets/nonsense")

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestGetWalletRepositoryError(t *testing.T) {
	fw := &fakeWallets{err: errors.New("db down")}
	s := newTestServer(fw, nil)
	rr := doRequest(t, s, "GET", "/api/v1/wallets/0x1111111111111111111111111111111111111111")

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}

func TestPoolStatus(t *testing.T) {
	s := newTestServer(&fakeWallets{}, &fakePool{cooldown: true})
	rr := doRequest(t, s, "GET", "/api/v1/pool/status")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var body struct {
		GlobalCooldown bool                       `json:"globalCooldown"`
		Credentials    []keypool.CredentialStatus `json:"credentials"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !body.GlobalCooldown {
		t.Error("globalCooldown = false, want true")
	}
	if len(body.Credentials) != 2 {
		t.Errorf("credentials = %d, want 2", len(body.Credentials))
	}
}

func TestPoolStatusAbsentWithoutPool(t *testing.T) {
	s := newTestServer(&fakeWallets{}, nil)
	rr := doRequest(t, s, "GET", "/api/v1/pool/status")

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when no pool is wired", rr.Code)
	}
}
