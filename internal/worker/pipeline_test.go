package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/walletradar/internal/faults"
	"github.com/walletradar/internal/retry"
	"github.com/walletradar/internal/storage"
	"github.com/walletradar/internal/types"
)

type fakeDiscoverer struct {
	candidates  []string
	discoverErr error
	screenErr   map[string]error
	reject      map[string]bool
	screened    []string
}

func (f *fakeDiscoverer) DiscoverCandidates(ctx context.Context, seedTokens []string) ([]string, error) {
	if f.discoverErr != nil {
		return nil, f.discoverErr
	}
	return f.candidates, nil
}

func (f *fakeDiscoverer) Screen(ctx context.Context, address string) (bool, error) {
	f.screened = append(f.screened, address)
	if err := f.screenErr[address]; err != nil {
		return false, err
	}
	return !f.reject[address], nil
}

func (f *fakeDiscoverer) SeedTokens() []string { return []string{"0xseed"} }

type fakeAnalyzer struct {
	mu       sync.Mutex
	errs     map[string]error
	analyzed []string
}

func (f *fakeAnalyzer) AnalyzeWalletWithSeries(ctx context.Context, address string) (*types.WalletAnalysis, []float64, error) {
	f.mu.Lock()
	f.analyzed = append(f.analyzed, address)
	f.mu.Unlock()
	if err := f.errs[address]; err != nil {
		return nil, nil, err
	}
	return &types.WalletAnalysis{
		Address:    address,
		AnalyzedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Ledger:     types.LedgerSummary{RealizedPnl: 100, TotalClosedTrades: 5},
	}, []float64{10, 50, 100}, nil
}

type fakeRanker struct {
	mu     sync.Mutex
	ranked []string
	err    error
}

func (f *fakeRanker) Rank(ctx context.Context, analysis *types.WalletAnalysis, cumulativePnl []float64) (*types.SuggestedWallet, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.ranked = append(f.ranked, analysis.Address)
	f.mu.Unlock()
	return &types.SuggestedWallet{Address: analysis.Address, SmartScore: 42}, nil
}

type fakeHistory struct {
	mu      sync.Mutex
	records []*storage.AnalysisRecord
	err     error
}

func (f *fakeHistory) Append(ctx context.Context, rec *storage.AnalysisRecord) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.records = append(f.records, rec)
	f.mu.Unlock()
	return nil
}

func addr(i int) string {
	return fmt.Sprintf("0x%040x", i+1)
}

func newTestPipeline(d Discoverer, a Analyzer, r Ranker, h History, workers int) *Pipeline {
	return NewPipeline(d, a, r, h, Config{WorkerCount: workers}, zerolog.Nop())
}

func TestRunDiscoveryPassHappyPath(t *testing.T) {
	disc := &fakeDiscoverer{
		candidates: []string{addr(0), addr(1), addr(2)},
		reject:     map[string]bool{addr(1): true},
	}
	an := &fakeAnalyzer{}
	rk := &fakeRanker{}
	hist := &fakeHistory{}

	p := newTestPipeline(disc, an, rk, hist, 2)
	result, err := p.RunDiscoveryPass(context.Background())
	if err != nil {
		t.Fatalf("RunDiscoveryPass() error = %v", err)
	}

	if result.Candidates != 3 {
		t.Errorf("Candidates = %d, want 3", result.Candidates)
	}
	if result.Screened != 2 {
		t.Errorf("Screened = %d, want 2 (one rejected)", result.Screened)
	}
	if result.Ranked != 2 {
		t.Errorf("Ranked = %d, want 2", result.Ranked)
	}
	if result.RunID == "" {
		t.Error("RunID should be set")
	}
	if len(hist.records) != 2 {
		t.Errorf("history records = %d, want 2", len(hist.records))
	}
	for _, rec := range hist.records {
		if rec.RunID != result.RunID {
			t.Errorf("history RunID = %q, want %q", rec.RunID, result.RunID)
		}
		if rec.SmartScore != 42 {
			t.Errorf("history SmartScore = %v, want 42", rec.SmartScore)
		}
	}
}

func TestRunDiscoveryPassRejectsOverlap(t *testing.T) {
	disc := &fakeDiscoverer{candidates: []string{addr(0)}}
	p := newTestPipeline(disc, &fakeAnalyzer{}, &fakeRanker{}, nil, 1)

	p.mu.Lock()
	p.running = true
	p.mu.Unlock()

	_, err := p.RunDiscoveryPass(context.Background())
	if !errors.Is(err, ErrPassInProgress) {
		t.Errorf("error = %v, want ErrPassInProgress", err)
	}
}

func TestRunDiscoveryPassAbandonsOnExhaustedEnumeration(t *testing.T) {
	disc := &fakeDiscoverer{discoverErr: faults.PoolExhausted("test")}
	p := newTestPipeline(disc, &fakeAnalyzer{}, &fakeRanker{}, nil, 1)

	result, err := p.RunDiscoveryPass(context.Background())
	if !faults.Is(err, faults.CategoryPoolExhausted) {
		t.Fatalf("error = %v, want pool exhausted fault", err)
	}
	if result == nil || !result.Exhausted {
		t.Error("result should record exhaustion")
	}
}

func TestRunDiscoveryPassAbandonsOnExhaustedScreening(t *testing.T) {
	disc := &fakeDiscoverer{
		candidates: []string{addr(0), addr(1), addr(2)},
		screenErr:  map[string]error{addr(1): faults.PoolExhausted("test")},
	}
	an := &fakeAnalyzer{}
	p := newTestPipeline(disc, an, &fakeRanker{}, nil, 1)

	result, err := p.RunDiscoveryPass(context.Background())
	if !faults.Is(err, faults.CategoryPoolExhausted) {
		t.Fatalf("error = %v, want pool exhausted fault", err)
	}
	if !result.Exhausted {
		t.Error("result should record exhaustion")
	}
	// Screening stops at the exhausted candidate; addr(2) is never screened.
	if len(disc.screened) != 2 {
		t.Errorf("screened %d candidates before abandoning, want 2", len(disc.screened))
	}
}

func TestRunDiscoveryPassIsolatesPerWalletFailures(t *testing.T) {
	disc := &fakeDiscoverer{candidates: []string{addr(0), addr(1), addr(2)}}
	an := &fakeAnalyzer{errs: map[string]error{
		addr(1): faults.DataUnavailable("test", "no history"),
	}}
	rk := &fakeRanker{}
	p := newTestPipeline(disc, an, rk, nil, 1)

	result, err := p.RunDiscoveryPass(context.Background())
	if err != nil {
		t.Fatalf("RunDiscoveryPass() error = %v", err)
	}
	if result.Ranked != 2 {
		t.Errorf("Ranked = %d, want 2", result.Ranked)
	}
	if result.Failed != 1 {
		t.Errorf("Failed = %d, want 1", result.Failed)
	}
}

func TestRunDiscoveryPassAbandonsOnExhaustedAnalysis(t *testing.T) {
	disc := &fakeDiscoverer{candidates: []string{addr(0), addr(1), addr(2)}}
	an := &fakeAnalyzer{errs: map[string]error{
		addr(0): faults.PoolExhausted("test"),
	}}
	p := newTestPipeline(disc, an, &fakeRanker{}, nil, 1)

	result, err := p.RunDiscoveryPass(context.Background())
	if !faults.Is(err, faults.CategoryPoolExhausted) {
		t.Fatalf("error = %v, want pool exhausted fault", err)
	}
	if !result.Exhausted {
		t.Error("result should record exhaustion")
	}
	// The first wallet exhausts the pool; the rest are never analyzed.
	if len(an.analyzed) != 1 {
		t.Errorf("analyzed %d wallets, want 1", len(an.analyzed))
	}
}

type flakyAnalyzer struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyAnalyzer) AnalyzeWalletWithSeries(ctx context.Context, address string) (*types.WalletAnalysis, []float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, nil, faults.Transient("test", errors.New("connection reset"))
	}
	return &types.WalletAnalysis{Address: address}, []float64{1}, nil
}

func TestRunDiscoveryPassRetriesTransientAnalysis(t *testing.T) {
	disc := &fakeDiscoverer{candidates: []string{addr(0)}}
	an := &flakyAnalyzer{failures: 2}
	rk := &fakeRanker{}
	p := NewPipeline(disc, an, rk, nil, Config{
		WorkerCount: 1,
		Retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   2,
		},
	}, zerolog.Nop())

	result, err := p.RunDiscoveryPass(context.Background())
	if err != nil {
		t.Fatalf("RunDiscoveryPass() error = %v", err)
	}
	if result.Ranked != 1 {
		t.Errorf("Ranked = %d, want 1 after retries", result.Ranked)
	}
	if an.calls != 3 {
		t.Errorf("analyzer calls = %d, want 3", an.calls)
	}
}

func TestRunDiscoveryPassHistoryFailureIsBestEffort(t *testing.T) {
	disc := &fakeDiscoverer{candidates: []string{addr(0)}}
	hist := &fakeHistory{err: errors.New("clickhouse down")}
	rk := &fakeRanker{}
	p := newTestPipeline(disc, &fakeAnalyzer{}, rk, hist, 1)

	result, err := p.RunDiscoveryPass(context.Background())
	if err != nil {
		t.Fatalf("RunDiscoveryPass() error = %v", err)
	}
	if result.Ranked != 1 {
		t.Errorf("Ranked = %d, want 1 (history failure must not undo ranking)", result.Ranked)
	}
}
