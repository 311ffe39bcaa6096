package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/walletradar/internal/faults"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), zerolog.Nop(), "test", func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoRetriesTransientFaults(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), zerolog.Nop(), "test", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return faults.Transient("test", errors.New("connection reset"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnNonTransientFault(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(5), zerolog.Nop(), "test", func(ctx context.Context) error {
		calls++
		return faults.Unauthorized("test", 401)
	})
	if !faults.Is(err, faults.CategoryUnauthorized) {
		t.Fatalf("error = %v, want unauthorized fault", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on credential faults)", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), zerolog.Nop(), "test", func(ctx context.Context) error {
		calls++
		return faults.Transient("test", errors.New("timeout"))
	})
	if !faults.Is(err, faults.CategoryTransient) {
		t.Fatalf("error = %v, want transient fault", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := Config{MaxAttempts: 10, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, cfg, zerolog.Nop(), "test", func(ctx context.Context) error {
		calls++
		return faults.Transient("test", errors.New("timeout"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
