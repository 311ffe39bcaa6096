// Package keypool owns the upstream API credentials. It rotates them
// round-robin, tracks per-key and pool-wide cooldowns, and raises alerts
// on throttling and invalidation.
//
// The pool is the one piece of state shared by every upstream call, so all
// selection and mutation happens under a single mutex. The pool never fails
// hard: when every credential is cooling down or invalid, Next returns the
// credential that becomes available soonest and marks it degraded, leaving
// the caller to wait or risk the request.
package keypool

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Alerter receives pool events as fire-and-forget notifications.
type Alerter interface {
	Notify(subject, body string)
}

// Config controls cooldown windows and alert suppression.
type Config struct {
	// Keys is the ordered list of credential secrets.
	Keys []string
	// ThrottleCooldown is applied to a key after a 429.
	ThrottleCooldown time.Duration
	// InvalidCooldown is applied to a key after a 401/403.
	InvalidCooldown time.Duration
	// GlobalCooldown is applied pool-wide on total exhaustion.
	GlobalCooldown time.Duration
	// NotifyCooldown suppresses repeat alerts for the same key.
	NotifyCooldown time.Duration
}

func (c Config) withDefaults() Config {
	if c.ThrottleCooldown <= 0 {
		c.ThrottleCooldown = 120 * time.Second
	}
	if c.InvalidCooldown <= 0 {
		c.InvalidCooldown = 24 * time.Hour
	}
	if c.GlobalCooldown <= 0 {
		c.GlobalCooldown = time.Hour
	}
	if c.NotifyCooldown <= 0 {
		c.NotifyCooldown = 5 * time.Minute
	}
	return c
}

// Key is what callers get from Next: the credential to attach to the next
// request. Degraded is set when the pool had nothing usable and handed out
// the credential that becomes available soonest.
type Key struct {
	ID       string
	Secret   string
	Degraded bool
}

// CredentialStatus is a read-only view of one credential's state.
type CredentialStatus struct {
	ID              string    `json:"id"`
	Invalid         bool      `json:"invalid"`
	NextAvailableAt time.Time `json:"nextAvailableAt"`
	Hits            int64     `json:"hits"`
	Throttles       int64     `json:"throttles"`
}

type credential struct {
	id              string
	secret          string
	nextAvailableAt time.Time
	invalid         bool
	hits            int64
	throttles       int64
	lastNotifiedAt  time.Time
}

// Pool rotates a fixed set of API credentials.
type Pool struct {
	mu                  sync.Mutex
	creds               []*credential
	cursor              int
	globalCooldownUntil time.Time

	cfg    Config
	alerts Alerter
	log    zerolog.Logger
	now    func() time.Time
}

// New constructs a pool from configuration. At least one key is required.
func New(cfg Config, alerts Alerter, log zerolog.Logger) (*Pool, error) {
	if len(cfg.Keys) == 0 {
		return nil, fmt.Errorf("key pool requires at least one credential")
	}
	cfg = cfg.withDefaults()

	creds := make([]*credential, 0, len(cfg.Keys))
	for i, secret := range cfg.Keys {
		creds = append(creds, &credential{
			id:     fmt.Sprintf("key-%d", i+1),
			secret: secret,
		})
	}

	return &Pool{
		creds:  creds,
		cfg:    cfg,
		alerts: alerts,
		log:    log,
		now:    time.Now,
	}, nil
}

// Next returns the credential to use for the next upstream request.
//
// It scans from the round-robin cursor and returns the first credential
// that is neither cooling down nor invalid, advancing the cursor past it.
// When no credential qualifies, the one with the earliest nextAvailableAt
// is returned with Degraded set.
func (p *Pool) Next() Key {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	n := len(p.creds)
	for i := 0; i < n; i++ {
		c := p.creds[(p.cursor+i)%n]
		if c.nextAvailableAt.After(now) {
			continue
		}
		// The invalid flag expires with its cooldown window.
		if c.invalid {
			c.invalid = false
			p.log.Info().Str("key", c.id).Msg("invalid credential cooldown expired, key eligible again")
		}
		p.cursor = (p.cursor + i + 1) % n
		c.hits++
		return Key{ID: c.id, Secret: c.secret}
	}

	// Total exhaustion. Hand out the soonest-available credential and let
	// the caller decide whether to wait or risk the request.
	best := p.creds[0]
	for _, c := range p.creds[1:] {
		if c.nextAvailableAt.Before(best.nextAvailableAt) {
			best = c
		}
	}
	best.hits++
	p.log.Warn().Str("key", best.id).Time("availableAt", best.nextAvailableAt).
		Msg("all credentials unavailable, returning soonest-available key")
	return Key{ID: best.id, Secret: best.secret, Degraded: true}
}

// ReportThrottled applies the per-key throttle cooldown after a 429 and
// alerts unless the key was already notified within the notify window.
func (p *Pool) ReportThrottled(id, detail string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.find(id)
	if c == nil {
		return
	}
	now := p.now()
	c.nextAvailableAt = now.Add(p.cfg.ThrottleCooldown)
	c.throttles++
	p.log.Warn().Str("key", id).Dur("cooldown", p.cfg.ThrottleCooldown).Str("detail", detail).
		Msg("credential throttled")

	if now.Sub(c.lastNotifiedAt) >= p.cfg.NotifyCooldown {
		c.lastNotifiedAt = now
		p.notify("API key throttled",
			fmt.Sprintf("key %s throttled until %s: %s", id, c.nextAvailableAt.Format(time.RFC3339), detail))
	}
}

// ReportInvalid marks a credential unusable for the invalid cooldown window
// after a 401/403 and alerts once.
func (p *Pool) ReportInvalid(id, detail string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.find(id)
	if c == nil {
		return
	}
	now := p.now()
	if c.invalid {
		// Already reported; extend the window without another alert.
		c.nextAvailableAt = now.Add(p.cfg.InvalidCooldown)
		return
	}
	c.invalid = true
	c.nextAvailableAt = now.Add(p.cfg.InvalidCooldown)
	c.lastNotifiedAt = now
	p.log.Error().Str("key", id).Str("detail", detail).Msg("credential marked invalid")
	p.notify("API key invalid",
		fmt.Sprintf("key %s rejected by provider, sidelined until %s: %s",
			id, c.nextAvailableAt.Format(time.RFC3339), detail))
}

// EnterGlobalCooldown pauses the whole pool, typically after repeated
// failures across every credential in a single call.
func (p *Pool) EnterGlobalCooldown(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.globalCooldownUntil.After(now) {
		return
	}
	p.globalCooldownUntil = now.Add(p.cfg.GlobalCooldown)
	p.log.Error().Str("reason", reason).Time("until", p.globalCooldownUntil).
		Msg("entering global cooldown")
	p.notify("API key pool exhausted",
		fmt.Sprintf("all credentials unavailable, pausing until %s: %s",
			p.globalCooldownUntil.Format(time.RFC3339), reason))
}

// InGlobalCooldown reports whether the pool-wide pause is active.
func (p *Pool) InGlobalCooldown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.globalCooldownUntil.After(p.now())
}

// ClearGlobalCooldown lifts the pool-wide pause.
func (p *Pool) ClearGlobalCooldown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.globalCooldownUntil.IsZero() {
		return
	}
	active := p.globalCooldownUntil.After(p.now())
	p.globalCooldownUntil = time.Time{}
	if active {
		p.log.Info().Msg("global cooldown cleared")
		p.notify("API key pool reactivated", "global cooldown cleared, resuming upstream calls")
	}
}

// Snapshot returns the current state of every credential for the status API.
func (p *Pool) Snapshot() []CredentialStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	out := make([]CredentialStatus, 0, len(p.creds))
	for _, c := range p.creds {
		out = append(out, CredentialStatus{
			ID: c.id,
			// Next clears the stored flag lazily, so report against now.
			Invalid:         c.invalid && c.nextAvailableAt.After(now),
			NextAvailableAt: c.nextAvailableAt,
			Hits:            c.hits,
			Throttles:       c.throttles,
		})
	}
	return out
}

// Size returns the number of credentials in the pool.
func (p *Pool) Size() int {
	return len(p.creds)
}

// find must be called with the mutex held.
func (p *Pool) find(id string) *credential {
	for _, c := range p.creds {
		if c.id == id {
			return c
		}
	}
	p.log.Warn().Str("key", id).Msg("report for unknown credential id")
	return nil
}

func (p *Pool) notify(subject, body string) {
	if p.alerts != nil {
		p.alerts.Notify(subject, body)
	}
}
