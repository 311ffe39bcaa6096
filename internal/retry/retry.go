// Package retry provides exponential backoff for transient upstream
// failures. Faults in any other category fail immediately; backing off
// on a rejected credential or missing data would only waste the window.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/walletradar/internal/faults"
)

// Config configures retry behavior.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultConfig returns the standard backoff: 3 attempts, 1s, 2s.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Multiplier <= 1 {
		c.Multiplier = d.Multiplier
	}
	return c
}

// Do runs fn, retrying with exponential backoff while it returns
// transient faults. The first non-transient error, context cancellation,
// or exhausted attempts ends the loop with the last error.
func Do(ctx context.Context, cfg Config, log zerolog.Logger, op string, fn func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info().Str("op", op).Int("attempts", attempt).Msg("succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !faults.Is(err, faults.CategoryTransient) {
			return err
		}
		if attempt >= cfg.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := backoff(cfg, attempt)
		log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("delay", delay).
			Msg("transient failure, backing off")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	log.Error().Err(lastErr).Str("op", op).Int("attempts", cfg.MaxAttempts).
		Msg("retries exhausted")
	return lastErr
}

func backoff(cfg Config, attempt int) time.Duration {
	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1)))
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}
